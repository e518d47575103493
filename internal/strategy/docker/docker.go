// Package docker discovers peers among the running containers that carry a
// set of labels, addressed by their IP on a Docker network.
package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"clusterlink"
	"clusterlink/internal/strategy"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	dockerfilters "github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"gopkg.in/yaml.v3"
)

const Name = "docker"

type Config struct {
	// Host overrides DOCKER_HOST.
	Host     string            `yaml:"host"`
	Labels   map[string]string `yaml:"labels"`
	Basename string            `yaml:"basename"`
	// Network picks the address to use. Empty takes the first network by name.
	Network      string        `yaml:"network"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ContainerLister is the slice of the Docker API the strategy needs.
type ContainerLister interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
}

type Strategy struct {
	state  *strategy.State[Config, strategy.PollMeta]
	docker ContainerLister
}

// New connects to the Docker daemon from the environment.
func New(deps strategy.Deps, node *yaml.Node) (strategy.Strategy, error) {
	var cfg Config
	if err := strategy.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	s, err := NewWithClient(deps, cfg, cli)
	if err != nil {
		cli.Close()
		return nil, err
	}
	return s, nil
}

func NewWithClient(deps strategy.Deps, cfg Config, docker ContainerLister) (*Strategy, error) {
	if strings.TrimSpace(cfg.Basename) == "" {
		return nil, errors.New("docker strategy requires a basename")
	}
	if len(cfg.Labels) == 0 {
		return nil, errors.New("docker strategy requires at least one label")
	}
	state, err := strategy.NewState[Config, strategy.PollMeta](deps, cfg)
	if err != nil {
		return nil, err
	}
	return &Strategy{state: state, docker: docker}, nil
}

func (s *Strategy) Run(ctx context.Context) error {
	if c, ok := s.docker.(io.Closer); ok {
		defer c.Close()
	}
	return strategy.Poll(ctx, s.state, Name, s.state.Config.PollInterval, s.Discover)
}

func (s *Strategy) Discover(ctx context.Context) ([]clusterlink.PeerID, error) {
	cfg := s.state.Config
	filters := dockerfilters.NewArgs()
	filters.Add("status", "running")
	for key, value := range cfg.Labels {
		filters.Add("label", key+"="+value)
	}

	containers, err := s.docker.ContainerList(ctx, container.ListOptions{Filters: filters})
	if err != nil {
		switch {
		case errdefs.IsUnavailable(err):
			return nil, fmt.Errorf("docker daemon unavailable: %w", err)
		case errdefs.IsPermissionDenied(err):
			return nil, fmt.Errorf("docker daemon denied access: %w", err)
		}
		return nil, fmt.Errorf("list containers: %w", err)
	}

	peers := make([]clusterlink.PeerID, 0, len(containers))
	for _, c := range containers {
		ip := containerIP(c, cfg.Network)
		if ip == "" {
			continue
		}
		peers = append(peers, clusterlink.PeerID(cfg.Basename+"@"+ip))
	}
	return peers, nil
}

func containerIP(c container.Summary, network string) string {
	if c.NetworkSettings == nil {
		return ""
	}
	nets := c.NetworkSettings.Networks
	if network != "" {
		if ep := nets[network]; ep != nil {
			return ep.IPAddress
		}
		return ""
	}
	names := make([]string, 0, len(nets))
	for name := range nets {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if ep := nets[name]; ep != nil && ep.IPAddress != "" {
			return ep.IPAddress
		}
	}
	return ""
}
