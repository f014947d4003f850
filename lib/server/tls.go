package server

import (
	"crypto/tls"

	"github.com/go-i2p/go-echochat/lib/config"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// LoadTLSConfig builds the server TLS context from the configured PEM files.
func LoadTLSConfig(cfg config.TLSConfig) (*tls.Config, error) {
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, oops.Errorf("missing certificate or key file")
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, oops.Wrapf(err, "failed to load certificate %s with key %s", cfg.CertFile, cfg.KeyFile)
	}

	minVersion, err := parseTLSVersion(cfg.MinVersion)
	if err != nil {
		return nil, err
	}

	log.WithFields(logger.Fields{
		"at":         "server.LoadTLSConfig",
		"certFile":   cfg.CertFile,
		"minVersion": cfg.MinVersion,
	}).Debug("tls_config_loaded")

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   minVersion,
	}, nil
}

func parseTLSVersion(v string) (uint16, error) {
	switch v {
	case "", "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, oops.Errorf("unsupported TLS version %q", v)
	}
}
