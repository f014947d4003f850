package config

import (
	"io"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// Dump writes cfg to w as YAML, in the same layout as config.yaml.
func Dump(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return oops.Wrapf(err, "failed to encode configuration")
	}
	return enc.Close()
}
