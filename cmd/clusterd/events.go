package main

import (
	"errors"
	"fmt"
	"time"

	"clusterlink/cmd/clusterd/ui"
	"clusterlink/internal/adapter/sqlite"
	"clusterlink/internal/telemetry"

	"github.com/spf13/cobra"
)

func eventsCmd(opts *rootOptions) *cobra.Command {
	var (
		topology string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the most recent journaled events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ui.ConfigureColor(opts.noColor)
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Journal == "" {
				return errors.New("no journal configured")
			}
			store, err := sqlite.Open(cfg.Journal)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context(), topology, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderEvents(entries))
			return nil
		},
	}
	cmd.Flags().StringVarP(&topology, "topology", "t", "", "Only show events for this topology")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of events")
	return cmd
}

func renderEvents(entries []sqlite.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		md := e.Event.Metadata
		detail := md.String(telemetry.KeyReason)
		if detail == "" {
			detail = md.String(telemetry.KeyError)
		}
		if detail == "" {
			if n, ok := md[telemetry.KeyNodesDiscovered].(float64); ok {
				detail = fmt.Sprintf("%d discovered", int(n))
			}
		}
		duration := ""
		if d := e.Event.Measurements.Duration; d > 0 {
			duration = d.Round(time.Microsecond).String()
		}
		rows = append(rows, []string{
			e.At.Local().Format(time.DateTime),
			md.String(telemetry.KeyTopology),
			ui.EventName(e.Event.Name),
			md.String(telemetry.KeyPeer),
			duration,
			ui.Muted(detail),
		})
	}
	return ui.Table([]string{"TIME", "TOPOLOGY", "EVENT", "PEER", "DURATION", "DETAIL"}, rows)
}
