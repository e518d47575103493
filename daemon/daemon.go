// Package daemon wires a loaded config into running topologies: one gRPC
// adapter and one supervised strategy per topology, the event bus with its
// metrics and journal subscribers, and the local health endpoint.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"clusterlink/config"
	"clusterlink/internal/adapter/sqlite"
	"clusterlink/internal/metrics"
	"clusterlink/internal/strategy"
	"clusterlink/internal/supervisor"
	"clusterlink/internal/telemetry"
	"clusterlink/internal/transport"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

// journalRetention is how many events the journal keeps across restarts.
const journalRetention = 10000

// Run starts every topology in cfg and blocks until ctx is cancelled or the
// supervisor gives up.
func Run(ctx context.Context, cfg *config.Config, reg *strategy.Registry) error {
	tp := telemetry.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	bus := telemetry.NewBus()
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	bus.Subscribe(metrics.NewCollector(promReg))

	if cfg.Journal != "" {
		store, err := sqlite.Open(cfg.Journal)
		if err != nil {
			return err
		}
		defer store.Close()
		if n, err := store.Prune(ctx, journalRetention); err != nil {
			slog.Warn("prune journal failed", "err", err)
		} else if n > 0 {
			slog.Debug("pruned journal", "deleted", n)
		}
		bus.Subscribe(store)
	}

	emitter := &telemetry.Emitter{Sink: bus, Tracer: tp.Tracer("clusterlink")}
	children, adapters, err := buildTopologies(cfg, reg, emitter)
	defer func() {
		for _, a := range adapters {
			if err := a.Close(); err != nil {
				slog.Debug("close adapter", "err", err)
			}
		}
	}()
	if err != nil {
		return err
	}

	sup := &supervisor.Supervisor{
		Children: children,
		Policy: supervisor.Policy{
			MaxRestarts: cfg.Supervisor.MaxRestarts,
			Period:      cfg.Supervisor.Period,
			Backoff:     cfg.Supervisor.Backoff,
		},
	}

	g, ctx := errgroup.WithContext(ctx)
	if cfg.Node.Listen != "" {
		g.Go(func() error { return serveHealth(ctx, cfg.Node.Listen, cfg.Node.Network) })
	}
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(ctx, cfg.MetricsAddr, promReg) })
	}
	g.Go(func() error {
		slog.Info("starting topologies", "node", cfg.Node.Name, "network", cfg.Node.Network, "topologies", len(children))
		err := sup.Run(ctx)
		if err != nil {
			return err
		}
		// Every topology finished on its own; keep serving until shutdown.
		<-ctx.Done()
		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// buildTopologies builds every strategy once so config errors surface
// before anything starts. A restarted child rebuilds its strategy, which
// resets its state.
func buildTopologies(cfg *config.Config, reg *strategy.Registry, emitter *telemetry.Emitter) ([]supervisor.Child, []*transport.GRPC, error) {
	var (
		children []supervisor.Child
		adapters []*transport.GRPC
	)
	for _, t := range cfg.Topologies {
		adapter := transport.NewGRPC(transport.GRPCConfig{
			Network:     cfg.Node.Network,
			Basename:    cfg.Node.Name.Basename(),
			Port:        t.Transport.Port,
			DialTimeout: t.Transport.DialTimeout,
		})
		adapters = append(adapters, adapter)

		deps := strategy.Deps{
			Topology:  t.Name,
			Self:      cfg.Node.Name,
			Transport: adapter,
			Emitter:   emitter,
		}
		node := &t.Config
		first, err := reg.Build(t.Strategy, deps, node)
		if err != nil {
			return nil, adapters, err
		}

		name := t.Strategy
		children = append(children, supervisor.Child{
			Name: t.Name,
			Run: func(ctx context.Context) error {
				s := first
				first = nil
				if s == nil {
					var err error
					if s, err = reg.Build(name, deps, node); err != nil {
						return fmt.Errorf("rebuild topology %s: %w", deps.Topology, err)
					}
				}
				return s.Run(ctx)
			},
		})
	}
	return children, adapters, nil
}
