package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"github.com/spf13/viper"
)

var (
	CfgFile string
	log     = logger.GetGoI2PLogger()
)

// BaseDirName is the directory under the user's home holding config.yaml.
const BaseDirName = ".go-echochat"

// Viper keys.
const (
	KeyServerAddress          = "server.address"
	KeyServerMaxSessions      = "server.max_sessions"
	KeyServerReadBufferSize   = "server.read_buffer_size"
	KeyServerWriteTimeout     = "server.write_timeout"
	KeyServerHandshakeTimeout = "server.handshake_timeout"
	KeyTLSCertFile            = "tls.cert_file"
	KeyTLSKeyFile             = "tls.key_file"
	KeyTLSMinVersion          = "tls.min_version"
	KeyClientMessagesPerSec   = "client.messages_per_second"
	KeyClientBurst            = "client.burst"
	KeyConsolePollInterval    = "console.poll_interval"
	KeyConsolePrompt          = "console.prompt"
	KeyConsoleColor           = "console.color"
)

// InitConfig loads defaults and the config file into viper. A missing default
// config file is created; a missing file named by CfgFile is an error.
func InitConfig() error {
	if CfgFile != "" {
		viper.SetConfigFile(CfgFile)
	} else {
		viper.AddConfigPath(BuildDirPath())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	setDefaults()

	return handleConfigFile()
}

func setDefaults() {
	d := Defaults()

	viper.SetDefault(KeyServerAddress, d.Server.Address)
	viper.SetDefault(KeyServerMaxSessions, d.Server.MaxSessions)
	viper.SetDefault(KeyServerReadBufferSize, d.Server.ReadBufferSize)
	viper.SetDefault(KeyServerWriteTimeout, d.Server.WriteTimeout)
	viper.SetDefault(KeyServerHandshakeTimeout, d.Server.HandshakeTimeout)

	viper.SetDefault(KeyTLSCertFile, d.TLS.CertFile)
	viper.SetDefault(KeyTLSKeyFile, d.TLS.KeyFile)
	viper.SetDefault(KeyTLSMinVersion, d.TLS.MinVersion)

	viper.SetDefault(KeyClientMessagesPerSec, d.Client.MessagesPerSecond)
	viper.SetDefault(KeyClientBurst, d.Client.Burst)

	viper.SetDefault(KeyConsolePollInterval, d.Console.PollInterval)
	viper.SetDefault(KeyConsolePrompt, d.Console.Prompt)
	viper.SetDefault(KeyConsoleColor, d.Console.Color)
}

// CurrentConfig builds a Config from the current viper settings.
func CurrentConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:          viper.GetString(KeyServerAddress),
			MaxSessions:      viper.GetInt(KeyServerMaxSessions),
			ReadBufferSize:   viper.GetInt(KeyServerReadBufferSize),
			WriteTimeout:     viper.GetDuration(KeyServerWriteTimeout),
			HandshakeTimeout: viper.GetDuration(KeyServerHandshakeTimeout),
		},
		TLS: TLSConfig{
			CertFile:   viper.GetString(KeyTLSCertFile),
			KeyFile:    viper.GetString(KeyTLSKeyFile),
			MinVersion: viper.GetString(KeyTLSMinVersion),
		},
		Client: ClientConfig{
			MessagesPerSecond: viper.GetFloat64(KeyClientMessagesPerSec),
			Burst:             viper.GetInt(KeyClientBurst),
		},
		Console: ConsoleConfig{
			PollInterval: viper.GetDuration(KeyConsolePollInterval),
			Prompt:       viper.GetString(KeyConsolePrompt),
			Color:        viper.GetBool(KeyConsoleColor),
		},
	}
}

func createDefaultConfig(defaultConfigDir string) error {
	defaultConfigFile := filepath.Join(defaultConfigDir, "config.yaml")
	if err := os.MkdirAll(defaultConfigDir, 0o755); err != nil {
		return oops.Wrapf(err, "could not create config directory %s", defaultConfigDir)
	}

	if err := viper.WriteConfigAs(defaultConfigFile); err != nil {
		return oops.Wrapf(err, "could not write default config file %s", defaultConfigFile)
	}

	log.WithField("path", defaultConfigFile).Debug("created_default_config")
	return nil
}

func handleConfigFile() error {
	err := viper.ReadInConfig()
	if err == nil {
		log.WithField("path", viper.ConfigFileUsed()).Debug("using_config_file")
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	switch {
	case CfgFile != "" && errors.Is(err, fs.ErrNotExist):
		return oops.Wrapf(err, "config file %s is not found", CfgFile)
	case errors.As(err, &notFound):
		if createErr := createDefaultConfig(BuildDirPath()); createErr != nil {
			// Defaults are already loaded; an unwritable home must not stop the server.
			log.WithError(createErr).Warn("default_config_not_written")
		}
		return nil
	default:
		return oops.Wrapf(err, "error reading config file")
	}
}

// BuildDirPath returns $HOME/.go-echochat, falling back to the working
// directory when no home directory can be determined.
func BuildDirPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		if home = os.Getenv("HOME"); home == "" {
			wd, wdErr := os.Getwd()
			if wdErr != nil {
				wd = "."
			}
			log.WithError(err).Warn("home_directory_unavailable_using_working_directory")
			home = wd
		}
	}
	return filepath.Join(home, BaseDirName)
}
