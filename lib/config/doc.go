// Package config provides configuration management for the echo/chat server.
//
// Settings are read with viper from $HOME/.go-echochat/config.yaml, or from
// the file named by CfgFile (the --config flag). When no file exists a default
// one is written so operators have something to edit. Command-line flags are
// bound to the same viper keys by the cobra root command, so the precedence
// is flag > config file > default.
//
// CurrentConfig returns a typed snapshot of the merged settings; Defaults is
// the single source of truth for default values.
package config
