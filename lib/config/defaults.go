package config

import (
	"net"
	"strconv"
	"time"

	"github.com/go-i2p/logger"
)

// DefaultPort is the TCP port the server listens on unless configured otherwise.
const DefaultPort = 3391

// DefaultHost is the interface the server binds to unless configured otherwise.
const DefaultHost = "localhost"

// Config is the merged server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	TLS     TLSConfig     `yaml:"tls"`
	Client  ClientConfig  `yaml:"client"`
	Console ConsoleConfig `yaml:"console"`
}

// ServerConfig controls the listener and per-connection I/O.
type ServerConfig struct {
	// Address is the host:port to listen on.
	// Default: localhost:3391
	Address string `yaml:"address"`

	// MaxSessions caps concurrently connected clients; 0 means unlimited.
	MaxSessions int `yaml:"max_sessions"`

	// ReadBufferSize is the largest chunk read from a client at once.
	// Default: 1024 bytes
	ReadBufferSize int `yaml:"read_buffer_size"`

	// WriteTimeout bounds every server-originated write; 0 disables it.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// HandshakeTimeout bounds the TLS handshake of a new client; 0 disables it.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

// TLSConfig names the PEM files used to build the server TLS context.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// MinVersion is "1.2" or "1.3".
	MinVersion string `yaml:"min_version"`
}

// ClientConfig limits how fast a single client may be echoed.
type ClientConfig struct {
	// MessagesPerSecond is the sustained echo rate per client; 0 means unlimited.
	MessagesPerSecond float64 `yaml:"messages_per_second"`

	// Burst is the number of messages allowed above the sustained rate.
	Burst int `yaml:"burst"`
}

// ConsoleConfig controls the operator console.
type ConsoleConfig struct {
	// PollInterval is how often queued notifications are flushed.
	// Default: 20ms
	PollInterval time.Duration `yaml:"poll_interval"`

	Prompt string `yaml:"prompt"`

	// Color enables styled output when the console is a terminal.
	Color bool `yaml:"color"`
}

// Defaults returns a Config with every default value set.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Address:          net.JoinHostPort(DefaultHost, strconv.Itoa(DefaultPort)),
			MaxSessions:      0,
			ReadBufferSize:   1024,
			WriteTimeout:     10 * time.Second,
			HandshakeTimeout: 10 * time.Second,
		},
		TLS: TLSConfig{
			CertFile:   "server.crt",
			KeyFile:    "server.key",
			MinVersion: "1.2",
		},
		Client: ClientConfig{
			MessagesPerSecond: 0,
			Burst:             16,
		},
		Console: ConsoleConfig{
			PollInterval: 20 * time.Millisecond,
			Prompt:       "> ",
			Color:        true,
		},
	}
}

// Validate checks that cfg can be used to start the server.
func Validate(cfg *Config) error {
	if cfg == nil {
		return newValidationError("config is nil")
	}
	validators := []func() error{
		func() error { return validateServer(cfg.Server) },
		func() error { return validateTLS(cfg.TLS) },
		func() error { return validateClient(cfg.Client) },
		func() error { return validateConsole(cfg.Console) },
	}

	for _, validator := range validators {
		if err := validator(); err != nil {
			log.WithError(err).Error("configuration_validation_failed")
			return err
		}
	}
	log.WithField("at", "config.Validate").Debug("configuration_validated")
	return nil
}

func validateServer(s ServerConfig) error {
	if s.Address == "" {
		return newValidationError("server.address must not be empty")
	}
	if s.MaxSessions < 0 {
		log.WithFields(logger.Fields{
			"at":           "config.validateServer",
			"max_sessions": s.MaxSessions,
		}).Error("invalid_server_configuration")
		return newValidationError("server.max_sessions must not be negative")
	}
	if s.ReadBufferSize < 1 {
		log.WithFields(logger.Fields{
			"at":               "config.validateServer",
			"read_buffer_size": s.ReadBufferSize,
		}).Error("invalid_server_configuration")
		return newValidationError("server.read_buffer_size must be at least 1")
	}
	if s.WriteTimeout < 0 || s.HandshakeTimeout < 0 {
		return newValidationError("server timeouts must not be negative")
	}
	return nil
}

func validateTLS(t TLSConfig) error {
	if t.CertFile == "" || t.KeyFile == "" {
		return newValidationError("tls.cert_file and tls.key_file are required")
	}
	switch t.MinVersion {
	case "", "1.2", "1.3":
		return nil
	default:
		return newValidationError("tls.min_version must be 1.2 or 1.3")
	}
}

func validateClient(c ClientConfig) error {
	if c.MessagesPerSecond < 0 {
		return newValidationError("client.messages_per_second must not be negative")
	}
	if c.MessagesPerSecond > 0 && c.Burst < 1 {
		return newValidationError("client.burst must be at least 1 when rate limiting is enabled")
	}
	return nil
}

func validateConsole(c ConsoleConfig) error {
	if c.PollInterval <= 0 {
		return newValidationError("console.poll_interval must be positive")
	}
	return nil
}

// validationError is returned when configuration validation fails
type validationError struct {
	message string
}

func newValidationError(message string) error {
	return &validationError{message: message}
}

func (e *validationError) Error() string {
	return "configuration validation failed: " + e.message
}
