package daemon

import (
	"clusterlink/internal/strategy"
	"clusterlink/internal/strategy/dns"
	"clusterlink/internal/strategy/docker"
	"clusterlink/internal/strategy/gossip"
	"clusterlink/internal/strategy/kubernetes"
	"clusterlink/internal/strategy/rancher"
	"clusterlink/internal/strategy/static"
)

// DefaultRegistry knows every built-in strategy.
func DefaultRegistry() *strategy.Registry {
	reg := strategy.NewRegistry()
	reg.Register(static.Name, static.New)
	reg.Register(dns.Name, dns.New)
	reg.Register(kubernetes.Name, kubernetes.New)
	reg.Register(rancher.Name, rancher.New)
	reg.Register(docker.Name, docker.New)
	reg.Register(gossip.Name, gossip.New)
	return reg
}
