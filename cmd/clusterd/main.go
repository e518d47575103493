package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"clusterlink/config"
	"clusterlink/daemon"
	"clusterlink/internal/logging"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := logging.Configure(logging.LevelInfo); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := rootCmd().Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	debug      bool
	noColor    bool
}

func rootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "clusterd",
		Short:         "Keeps this node connected to the peers its topologies discover",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return daemon.Run(ctx, cfg, daemon.DefaultRegistry())
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default "+config.Path()+")")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.AddCommand(validateCmd(opts), eventsCmd(opts))
	return cmd
}

// load reads the config and reconfigures logging from it. --debug wins over
// the configured level.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if o.debug {
		level = logging.LevelDebug
	}
	if err := logging.ConfigureFormat(level, cfg.LogFormat); err != nil {
		return nil, fmt.Errorf("configure logger: %w", err)
	}
	return cfg, nil
}
