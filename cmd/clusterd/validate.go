package main

import (
	"errors"
	"fmt"
	"strconv"

	"clusterlink/cmd/clusterd/ui"
	"clusterlink/config"
	"clusterlink/daemon"
	"clusterlink/internal/strategy"
	"clusterlink/internal/transport"

	"github.com/spf13/cobra"
)

func validateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config and list its topologies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ui.ConfigureColor(opts.noColor)
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return printValidation(cmd, cfg, daemon.DefaultRegistry())
		},
	}
}

func printValidation(cmd *cobra.Command, cfg *config.Config, reg *strategy.Registry) error {
	rows := make([][]string, 0, len(cfg.Topologies))
	var errs []error
	for _, t := range cfg.Topologies {
		status := ui.SuccessStyle.Render("ok")
		if !reg.Has(t.Strategy) {
			status = ui.ErrorStyle.Render("unknown strategy")
			errs = append(errs, fmt.Errorf("topology %s: unknown strategy %q", t.Name, t.Strategy))
		}
		port := t.Transport.Port
		if port == 0 {
			port = transport.DefaultPort
		}
		rows = append(rows, []string{t.Name, t.Strategy, t.Transport.Kind, strconv.Itoa(port), status})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, ui.Table([]string{"TOPOLOGY", "STRATEGY", "TRANSPORT", "PORT", "STATUS"}, rows))
	if err := errors.Join(errs...); err != nil {
		fmt.Fprintln(out, ui.ErrorMsg("config has %d problem(s)", len(errs)))
		return err
	}
	fmt.Fprintln(out, ui.SuccessMsg("node %s on network %s is ready to run %d topologies", cfg.Node.Name, cfg.Node.Network, len(rows)))
	return nil
}
