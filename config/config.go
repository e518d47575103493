// Package config loads the clusterd daemon configuration.
//
// The file is stored at $XDG_CONFIG_HOME/clusterlink/clusterd.yaml (defaults
// to ~/.config/clusterlink/clusterd.yaml) unless a path is given. It names
// the local node and lists topologies, each with a discovery strategy and a
// transport. Strategy settings stay raw yaml and are decoded by the strategy.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"clusterlink"

	"gopkg.in/yaml.v3"
)

const TransportGRPC = "grpc"

// Node identifies this process.
type Node struct {
	Name    clusterlink.PeerID `yaml:"name"`
	Network string             `yaml:"network"`
	// Listen is the address the health endpoint serves on, e.g. ":7946".
	Listen string `yaml:"listen,omitempty"`
}

type Supervisor struct {
	MaxRestarts int           `yaml:"max_restarts,omitempty"`
	Period      time.Duration `yaml:"period,omitempty"`
	Backoff     time.Duration `yaml:"backoff,omitempty"`
}

type Transport struct {
	Kind        string        `yaml:"kind,omitempty"`
	Port        int           `yaml:"port,omitempty"`
	DialTimeout time.Duration `yaml:"dial_timeout,omitempty"`
}

type Topology struct {
	Name      string    `yaml:"name"`
	Strategy  string    `yaml:"strategy"`
	Transport Transport `yaml:"transport,omitempty"`
	Config    yaml.Node `yaml:"config,omitempty"`
}

type Config struct {
	Node        Node   `yaml:"node"`
	LogLevel    string `yaml:"log_level,omitempty"`
	LogFormat   string `yaml:"log_format,omitempty"`
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
	// Journal is the sqlite path for the event journal. Empty disables it.
	Journal    string     `yaml:"journal,omitempty"`
	Supervisor Supervisor `yaml:"supervisor,omitempty"`
	Topologies []Topology `yaml:"topologies"`
}

// Path returns the default config file location. It respects
// XDG_CONFIG_HOME, falling back to ~/.config/clusterlink/clusterd.yaml.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".config", "clusterlink", "clusterd.yaml")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "clusterlink", "clusterd.yaml")
}

// Load reads and validates the config at path, or at Path() when path is
// empty.
func Load(path string) (*Config, error) {
	if path == "" {
		path = Path()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a config document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	for i := range c.Topologies {
		if c.Topologies[i].Transport.Kind == "" {
			c.Topologies[i].Transport.Kind = TransportGRPC
		}
	}
}

// Validate checks the structure of the config. It does not know which
// strategies exist; the caller checks names against its registry.
func (c *Config) Validate() error {
	var errs []error
	if c.Node.Name == "" {
		errs = append(errs, errors.New("node.name is required"))
	} else if !strings.Contains(string(c.Node.Name), "@") || c.Node.Name.Basename() == "" || c.Node.Name.Host() == "" {
		errs = append(errs, fmt.Errorf("node.name %q must look like basename@host", c.Node.Name))
	}
	if strings.TrimSpace(c.Node.Network) == "" {
		errs = append(errs, errors.New("node.network is required"))
	}
	if c.Node.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Node.Listen); err != nil {
			errs = append(errs, fmt.Errorf("node.listen: %w", err))
		}
	}
	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			errs = append(errs, fmt.Errorf("metrics_addr: %w", err))
		}
	}
	if c.Supervisor.MaxRestarts < 0 || c.Supervisor.Period < 0 || c.Supervisor.Backoff < 0 {
		errs = append(errs, errors.New("supervisor settings must not be negative"))
	}

	if len(c.Topologies) == 0 {
		errs = append(errs, errors.New("at least one topology is required"))
	}
	seen := make(map[string]bool, len(c.Topologies))
	for i, t := range c.Topologies {
		where := fmt.Sprintf("topologies[%d]", i)
		if strings.TrimSpace(t.Name) == "" {
			errs = append(errs, fmt.Errorf("%s: name is required", where))
		} else if seen[t.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate topology %q", where, t.Name))
		}
		seen[t.Name] = true
		if strings.TrimSpace(t.Strategy) == "" {
			errs = append(errs, fmt.Errorf("%s: strategy is required", where))
		}
		if t.Transport.Kind != TransportGRPC {
			errs = append(errs, fmt.Errorf("%s: unsupported transport %q", where, t.Transport.Kind))
		}
		if t.Transport.Port < 0 || t.Transport.Port > 65535 {
			errs = append(errs, fmt.Errorf("%s: invalid transport port %d", where, t.Transport.Port))
		}
		if t.Transport.DialTimeout < 0 {
			errs = append(errs, fmt.Errorf("%s: dial_timeout must not be negative", where))
		}
	}
	return errors.Join(errs...)
}
