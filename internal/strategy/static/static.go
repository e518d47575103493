// Package static connects a topology to a fixed list of peers.
//
// The list is connected once at start. Peers that cannot be reached are
// logged and left alone; the strategy then idles until cancelled.
package static

import (
	"context"
	"errors"
	"log/slog"

	"clusterlink"
	"clusterlink/internal/strategy"

	"gopkg.in/yaml.v3"
)

const Name = "static"

// Config lists the peers to connect to.
type Config struct {
	Hosts []clusterlink.PeerID `yaml:"hosts"`
}

type Strategy struct {
	state *strategy.State[Config, struct{}]
}

func New(deps strategy.Deps, node *yaml.Node) (strategy.Strategy, error) {
	var cfg Config
	if err := strategy.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Hosts) == 0 {
		return nil, errors.New("static strategy requires at least one host")
	}
	state, err := strategy.NewState[Config, struct{}](deps, cfg)
	if err != nil {
		return nil, err
	}
	return &Strategy{state: state}, nil
}

func (s *Strategy) Run(ctx context.Context) error {
	out, err := s.state.Reconciler().Connect(ctx, s.state.Config.Hosts)
	if err != nil {
		return err
	}
	if !out.OK() {
		slog.Warn("some static peers are unreachable", "topology", s.state.Topology, "err", out.Err())
	}

	<-ctx.Done()
	return nil
}
