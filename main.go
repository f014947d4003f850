package main

import (
	"fmt"
	"os"

	"github.com/go-i2p/go-echochat/lib/config"
	"github.com/go-i2p/go-echochat/lib/console"
	"github.com/go-i2p/go-echochat/lib/notify"
	"github.com/go-i2p/go-echochat/lib/server"
	"github.com/go-i2p/go-echochat/lib/session"
	"github.com/go-i2p/go-echochat/lib/shutdown"
	"github.com/go-i2p/go-echochat/lib/util/signals"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var log = logger.GetGoI2PLogger()

var rootCmd = &cobra.Command{
	Use:   "go-echochat",
	Short: "TLS echo and chat server with an operator console",
	Long: `go-echochat accepts TLS clients, echoes every message back with an
acknowledgement and lets the operator talk to clients from the console.

Console commands:
  sessions                 list connected clients
  send <id> <message>      send a message to one client
  send 0 <message>         broadcast a message to every client
  exit                     notify clients and shut down`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServer,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.InitConfig(); err != nil {
			return err
		}
		return config.Dump(cmd.OutOrStdout(), config.CurrentConfig())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&config.CfgFile, "config", "", "config file (default is $HOME/.go-echochat/config.yaml)")
	rootCmd.PersistentFlags().String("address", config.Defaults().Server.Address, "listen address (host:port)")
	rootCmd.PersistentFlags().String("cert", config.Defaults().TLS.CertFile, "TLS certificate file (PEM)")
	rootCmd.PersistentFlags().String("key", config.Defaults().TLS.KeyFile, "TLS private key file (PEM)")
	rootCmd.PersistentFlags().Int("max-sessions", config.Defaults().Server.MaxSessions, "maximum concurrent clients, 0 for unlimited")

	bindFlag(config.KeyServerAddress, "address")
	bindFlag(config.KeyTLSCertFile, "cert")
	bindFlag(config.KeyTLSKeyFile, "key")
	bindFlag(config.KeyServerMaxSessions, "max-sessions")

	rootCmd.AddCommand(configCmd)
}

func bindFlag(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		log.WithError(err).WithField("flag", flag).Warn("failed_to_bind_flag")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runServer starts the server and runs the console until shutdown. Errors
// returned here are startup failures.
func runServer(cmd *cobra.Command, args []string) error {
	if err := config.InitConfig(); err != nil {
		return err
	}
	cfg := config.CurrentConfig()
	if err := config.Validate(cfg); err != nil {
		return oops.Wrapf(err, "invalid configuration")
	}

	tlsConfig, err := server.LoadTLSConfig(cfg.TLS)
	if err != nil {
		return err
	}

	sessions := session.NewRegistry()
	events := notify.NewQueue()
	stop := shutdown.NewSignal()

	srv, err := server.NewServer(cfg, tlsConfig, sessions, events, stop)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}

	signals.RegisterInterruptHandler(srv.Shutdown)
	signals.Notify()
	defer signals.StopHandle()
	go signals.Handle()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Server is running and accepting connections on %s...\n", srv.Addr())

	con, err := console.New(os.Stdin, out, srv, events, stop, console.Options{
		PollInterval: cfg.Console.PollInterval,
		Prompt:       cfg.Console.Prompt,
		Styled:       cfg.Console.Color && term.IsTerminal(int(os.Stdout.Fd())),
	})
	if err != nil {
		srv.Shutdown()
		srv.Wait()
		return err
	}

	if err := con.Run(); err != nil {
		log.WithError(err).Warn("console_input_failed")
	}

	srv.Shutdown()
	srv.Wait()
	con.Flush()

	log.WithFields(logger.Fields{
		"at":       "main.runServer",
		"instance": srv.InstanceID(),
	}).Info("server_stopped")
	fmt.Fprintln(out, "Server stopped.")
	return nil
}
