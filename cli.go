package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is the current server version. Set at build time via -ldflags.
var Version = "0.1.0-dev"

var cfgFile string

// newRootCmd builds the cobra command tree: a bare root (help only), a
// "serve" subcommand that runs the broker, and "version", "status" and
// "demo" subcommands. Configuration loading is shared by serve and status
// via --config, bound through viper in loadServerConfig.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "omnitak",
		Short: "OmniTAK server core: a tactical CoT message broker",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a config file (YAML, JSON, or TOML)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newDemoCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var tcpPort, tlsPort, martiPort int
	var maxClients int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the broker until terminated by a signal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServerConfig(cfgFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("tcp-port") {
				cfg.TCPPort = tcpPort
			}
			if cmd.Flags().Changed("tls-port") {
				cfg.TLSPort = tlsPort
			}
			if cmd.Flags().Changed("marti-port") {
				cfg.MartiPort = martiPort
			}
			if cmd.Flags().Changed("max-clients") {
				cfg.MaxClients = maxClients
			}
			if err := validateServerConfig(cfg); err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}
	cmd.Flags().IntVar(&tcpPort, "tcp-port", 0, "plaintext TCP listen port (overrides config)")
	cmd.Flags().IntVar(&tlsPort, "tls-port", 0, "TLS listen port (overrides config)")
	cmd.Flags().IntVar(&martiPort, "marti-port", 0, "Marti HTTP listen port (overrides config)")
	cmd.Flags().IntVar(&maxClients, "max-clients", 0, "maximum concurrent clients (overrides config)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "omnitak server %s\n", Version)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the resolved configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServerConfig(cfgFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Version: %s\n", Version)
			fmt.Fprintf(out, "TCP port: %d\n", cfg.TCPPort)
			if cfg.TLSPort != 0 {
				fmt.Fprintf(out, "TLS port: %d\n", cfg.TLSPort)
			}
			fmt.Fprintf(out, "Marti port: %d\n", cfg.MartiPort)
			fmt.Fprintf(out, "Max clients: %d\n", cfg.MaxClients)
			return nil
		},
	}
}

func newDemoCmd() *cobra.Command {
	var addr, callsign string

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Connect a synthetic CoT source to a running broker and emit PLI events",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(defaultServerConfig())
			RunTestClient(cmd.Context(), addr, callsign, log)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8087", "broker TCP address to connect to")
	cmd.Flags().StringVar(&callsign, "callsign", "DEMO-1", "callsign to report in emitted events")
	return cmd
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(exitCodeForError(err))
}

func exitCodeForError(err error) int {
	switch err.(type) {
	case *ConfigurationError:
		return exitConfigurationError
	case *BindError:
		return exitBindError
	case *TLSMaterialError:
		return exitInternalError
	default:
		return exitInternalError
	}
}
