// Package rancher discovers the containers of the local Rancher service
// through the Rancher metadata API.
package rancher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"clusterlink"
	"clusterlink/internal/strategy"
	"clusterlink/internal/telemetry"

	"gopkg.in/yaml.v3"
)

const (
	Name = "rancher"

	defaultMetadataURL = "http://rancher-metadata"
	defaultTimeout     = 5 * time.Second
)

type Config struct {
	MetadataURL  string        `yaml:"metadata_url"`
	Basename     string        `yaml:"basename"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

type Strategy struct {
	state  *strategy.State[Config, strategy.PollMeta]
	client *http.Client
}

func New(deps strategy.Deps, node *yaml.Node) (strategy.Strategy, error) {
	return newStrategy(deps, node)
}

func newStrategy(deps strategy.Deps, node *yaml.Node) (*Strategy, error) {
	cfg := Config{MetadataURL: defaultMetadataURL, Timeout: defaultTimeout}
	if err := strategy.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Basename) == "" {
		return nil, errors.New("rancher strategy requires a basename")
	}
	state, err := strategy.NewState[Config, strategy.PollMeta](deps, cfg)
	if err != nil {
		return nil, err
	}
	return &Strategy{state: state, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

func (s *Strategy) Run(ctx context.Context) error {
	return strategy.Poll(ctx, s.state, Name, s.state.Config.PollInterval, s.Discover)
}

type service struct {
	Containers []struct {
		PrimaryIP string `json:"primary_ip"`
	} `json:"containers"`
}

func (s *Strategy) Discover(ctx context.Context) ([]clusterlink.PeerID, error) {
	cfg := s.state.Config
	endpoint := strings.TrimSuffix(cfg.MetadataURL, "/") + "/latest/self/service"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := telemetry.Request(ctx, s.state.Emitter, s.state.Topology, s.client, req)
	if err != nil {
		return nil, fmt.Errorf("query rancher metadata: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query rancher metadata: unexpected status %s", resp.Status)
	}

	var svc service
	if err := json.NewDecoder(resp.Body).Decode(&svc); err != nil {
		return nil, fmt.Errorf("decode rancher metadata: %w", err)
	}
	peers := make([]clusterlink.PeerID, 0, len(svc.Containers))
	for _, c := range svc.Containers {
		if c.PrimaryIP == "" {
			continue
		}
		peers = append(peers, clusterlink.PeerID(cfg.Basename+"@"+c.PrimaryIP))
	}
	return peers, nil
}
