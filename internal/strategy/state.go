// Package strategy holds what discovery strategies share: the per-topology
// state, the strategy registry and the polling driver.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"clusterlink"
	"clusterlink/internal/reconcile"
	"clusterlink/internal/telemetry"
	"clusterlink/internal/transport"

	"gopkg.in/yaml.v3"
)

// Deps are the bindings a topology hands to its strategy.
type Deps struct {
	Topology  string
	Self      clusterlink.PeerID
	Transport transport.Adapter
	Emitter   *telemetry.Emitter
}

// State is a topology's identity, adapter bindings and strategy-owned data.
// Config is read-only after construction. Meta belongs to the goroutine
// running the strategy and is never shared.
type State[C, M any] struct {
	Topology  string
	Self      clusterlink.PeerID
	Transport transport.Adapter
	Emitter   *telemetry.Emitter
	Config    C
	Meta      M
}

// NewState validates the adapter binding and returns a fresh state. A
// missing adapter operation is a configuration error.
func NewState[C, M any](deps Deps, cfg C) (*State[C, M], error) {
	if strings.TrimSpace(deps.Topology) == "" {
		return nil, errors.New("topology name is required")
	}
	if err := transport.Validate(deps.Transport); err != nil {
		return nil, fmt.Errorf("topology %s: %w", deps.Topology, err)
	}
	return &State[C, M]{
		Topology:  deps.Topology,
		Self:      deps.Self,
		Transport: deps.Transport,
		Emitter:   deps.Emitter,
		Config:    cfg,
	}, nil
}

// Reconciler returns a reconciler bound to the state's topology and adapter.
func (s *State[C, M]) Reconciler() *reconcile.Reconciler {
	return &reconcile.Reconciler{
		Topology:  s.Topology,
		Self:      s.Self,
		Transport: s.Transport,
		Emitter:   s.Emitter,
	}
}

// Strategy runs until ctx is cancelled or a fatal error occurs.
type Strategy interface {
	Run(ctx context.Context) error
}

// Factory builds a strategy from its yaml config. node may be nil.
type Factory func(deps Deps, node *yaml.Node) (Strategy, error)

// Registry maps strategy names to factories.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

func (r *Registry) Has(name string) bool {
	_, ok := r.factories[name]
	return ok
}

// Names returns the registered names in lexical order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

func (r *Registry) Build(name string, deps Deps, node *yaml.Node) (Strategy, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
	s, err := f(deps, node)
	if err != nil {
		return nil, fmt.Errorf("build %s strategy for topology %s: %w", name, deps.Topology, err)
	}
	return s, nil
}

// DecodeConfig decodes node into out. A nil or empty node leaves out untouched.
func DecodeConfig(node *yaml.Node, out any) error {
	if node == nil || node.Kind == 0 {
		return nil
	}
	if err := node.Decode(out); err != nil {
		return fmt.Errorf("decode strategy config: %w", err)
	}
	return nil
}
