// Package dns discovers peers by polling the A or SRV records of a service
// name, e.g. a Kubernetes headless service.
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"clusterlink"
	"clusterlink/internal/strategy"

	"github.com/miekg/dns"
	"gopkg.in/yaml.v3"
)

const (
	Name = "dns"

	ModeA   = "a"
	ModeSRV = "srv"

	resolvConf     = "/etc/resolv.conf"
	defaultTimeout = 2 * time.Second
)

type Config struct {
	// Service is the name to resolve, e.g. "app-headless.default.svc.cluster.local".
	Service  string `yaml:"service"`
	Basename string `yaml:"basename"`
	// Mode is "a" (peers named after addresses) or "srv" (peers named after targets).
	Mode string `yaml:"mode"`
	// Resolver is host:port; empty uses the first nameserver in /etc/resolv.conf.
	Resolver     string        `yaml:"resolver"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

type Strategy struct {
	state    *strategy.State[Config, strategy.PollMeta]
	client   *dns.Client
	resolver string
}

func New(deps strategy.Deps, node *yaml.Node) (strategy.Strategy, error) {
	return newStrategy(deps, node)
}

func newStrategy(deps strategy.Deps, node *yaml.Node) (*Strategy, error) {
	cfg := Config{Mode: ModeA, Timeout: defaultTimeout}
	if err := strategy.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Service) == "" {
		return nil, errors.New("dns strategy requires a service")
	}
	if strings.TrimSpace(cfg.Basename) == "" {
		return nil, errors.New("dns strategy requires a basename")
	}
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	if cfg.Mode != ModeA && cfg.Mode != ModeSRV {
		return nil, fmt.Errorf("invalid dns mode %q", cfg.Mode)
	}

	resolver := cfg.Resolver
	if resolver == "" {
		conf, err := dns.ClientConfigFromFile(resolvConf)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", resolvConf, err)
		}
		if len(conf.Servers) == 0 {
			return nil, fmt.Errorf("no nameservers in %s", resolvConf)
		}
		resolver = net.JoinHostPort(conf.Servers[0], conf.Port)
	}

	state, err := strategy.NewState[Config, strategy.PollMeta](deps, cfg)
	if err != nil {
		return nil, err
	}
	return &Strategy{
		state:    state,
		client:   &dns.Client{Timeout: cfg.Timeout},
		resolver: resolver,
	}, nil
}

func (s *Strategy) Run(ctx context.Context) error {
	return strategy.Poll(ctx, s.state, Name, s.state.Config.PollInterval, s.Discover)
}

// Discover resolves the service once. A name that does not exist yields no
// peers rather than an error.
func (s *Strategy) Discover(ctx context.Context) ([]clusterlink.PeerID, error) {
	cfg := s.state.Config
	qtype := dns.TypeA
	if cfg.Mode == ModeSRV {
		qtype = dns.TypeSRV
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(cfg.Service), qtype)
	msg.RecursionDesired = true

	resp, _, err := s.client.ExchangeContext(ctx, msg, s.resolver)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", cfg.Service, err)
	}
	switch resp.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, nil
	default:
		return nil, fmt.Errorf("query %s: %s", cfg.Service, dns.RcodeToString[resp.Rcode])
	}

	var peers []clusterlink.PeerID
	for _, rr := range resp.Answer {
		var host string
		switch v := rr.(type) {
		case *dns.A:
			host = v.A.String()
		case *dns.AAAA:
			host = v.AAAA.String()
		case *dns.SRV:
			host = strings.TrimSuffix(v.Target, ".")
		default:
			continue
		}
		peers = append(peers, clusterlink.PeerID(cfg.Basename+"@"+host))
	}
	return peers, nil
}
