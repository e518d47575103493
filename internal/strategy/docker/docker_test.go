package docker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"clusterlink"
	"clusterlink/internal/adapter/fake"
	"clusterlink/internal/strategy"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
)

type fakeLister struct {
	containers []container.Summary
	err        error
	opts       container.ListOptions
}

func (f *fakeLister) ContainerList(_ context.Context, opts container.ListOptions) ([]container.Summary, error) {
	f.opts = opts
	return f.containers, f.err
}

func withNetworks(nets map[string]string) container.Summary {
	eps := make(map[string]*network.EndpointSettings, len(nets))
	for name, ip := range nets {
		eps[name] = &network.EndpointSettings{IPAddress: ip}
	}
	return container.Summary{NetworkSettings: &container.NetworkSettingsSummary{Networks: eps}}
}

func newTestStrategy(t *testing.T, cfg Config, lister ContainerLister) *Strategy {
	t.Helper()
	s, err := NewWithClient(strategy.Deps{Topology: "docker", Transport: fake.NewTransport()}, cfg, lister)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	return s
}

func TestDiscoverFiltersByLabel(t *testing.T) {
	lister := &fakeLister{containers: []container.Summary{
		withNetworks(map[string]string{"mesh": "10.9.0.2", "bridge": "172.17.0.2"}),
		withNetworks(map[string]string{"bridge": "172.17.0.3"}),
		{},
	}}
	s := newTestStrategy(t, Config{
		Basename: "app",
		Labels:   map[string]string{"cluster": "blue"},
		Network:  "mesh",
	}, lister)

	got, err := s.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if !slices.Equal(got, []clusterlink.PeerID{"app@10.9.0.2"}) {
		t.Fatalf("Discover() = %v", got)
	}
	if !lister.opts.Filters.ExactMatch("label", "cluster=blue") {
		t.Errorf("label filter missing: %v", lister.opts.Filters.Get("label"))
	}
	if !lister.opts.Filters.ExactMatch("status", "running") {
		t.Errorf("status filter missing: %v", lister.opts.Filters.Get("status"))
	}
}

func TestContainerIPPicksFirstNetworkByName(t *testing.T) {
	c := withNetworks(map[string]string{"zeta": "10.0.0.9", "alpha": "10.0.0.1"})
	if got := containerIP(c, ""); got != "10.0.0.1" {
		t.Fatalf("containerIP() = %q, want 10.0.0.1", got)
	}
}

func TestDiscoverWrapsDaemonErrors(t *testing.T) {
	lister := &fakeLister{err: fmt.Errorf("socket closed: %w", errdefs.ErrUnavailable)}
	s := newTestStrategy(t, Config{Basename: "app", Labels: map[string]string{"a": "b"}}, lister)

	_, err := s.Discover(context.Background())
	if err == nil || !strings.Contains(err.Error(), "unavailable") {
		t.Fatalf("Discover() error = %v", err)
	}
	if !errors.Is(err, errdefs.ErrUnavailable) {
		t.Fatalf("Discover() error does not wrap ErrUnavailable: %v", err)
	}
}

func TestNewWithClientValidates(t *testing.T) {
	deps := strategy.Deps{Topology: "docker", Transport: fake.NewTransport()}
	if _, err := NewWithClient(deps, Config{Labels: map[string]string{"a": "b"}}, &fakeLister{}); err == nil {
		t.Fatal("NewWithClient() error = nil without basename")
	}
	if _, err := NewWithClient(deps, Config{Basename: "app"}, &fakeLister{}); err == nil {
		t.Fatal("NewWithClient() error = nil without labels")
	}
}
