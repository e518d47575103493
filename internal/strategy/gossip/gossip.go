// Package gossip discovers peers by UDP multicast heartbeats. Every node
// announces itself on a group and connects to the nodes it hears. Gossip
// never disconnects; peers that go away are left to the transport.
package gossip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"clusterlink"
	"clusterlink/internal/strategy"

	"golang.org/x/net/ipv4"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

const (
	Name = "gossip"

	DefaultGroup    = "233.252.1.32"
	DefaultPort     = 45892
	defaultInterval = 5 * time.Second
	maxPacket       = 64 * 1024
)

type Config struct {
	Group string `yaml:"multicast_addr"`
	Port  int    `yaml:"port"`
	// Interface names the NIC to join on. Empty lets the kernel choose.
	Interface         string        `yaml:"interface"`
	TTL               int           `yaml:"multicast_ttl"`
	Loopback          bool          `yaml:"loopback"`
	Secret            string        `yaml:"secret"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

type Strategy struct {
	state *strategy.State[Config, struct{}]
	codec *codec
}

func New(deps strategy.Deps, node *yaml.Node) (strategy.Strategy, error) {
	return newStrategy(deps, node)
}

func newStrategy(deps strategy.Deps, node *yaml.Node) (*Strategy, error) {
	cfg := Config{
		Group:             DefaultGroup,
		Port:              DefaultPort,
		TTL:               1,
		Loopback:          true,
		HeartbeatInterval: defaultInterval,
	}
	if err := strategy.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}
	ip := net.ParseIP(cfg.Group)
	if ip == nil || ip.To4() == nil || !ip.IsMulticast() {
		return nil, fmt.Errorf("invalid multicast group %q", cfg.Group)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid gossip port %d", cfg.Port)
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultInterval
	}
	if deps.Self == "" {
		return nil, errors.New("gossip strategy requires the local peer id")
	}

	c, err := newCodec(cfg.Secret)
	if err != nil {
		return nil, err
	}
	state, err := strategy.NewState[Config, struct{}](deps, cfg)
	if err != nil {
		return nil, err
	}
	return &Strategy{state: state, codec: c}, nil
}

// Run joins the group, then heartbeats and listens until ctx is done.
func (s *Strategy) Run(ctx context.Context) error {
	cfg := s.state.Config
	conn, err := net.ListenPacket("udp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(cfg.Port)))
	if err != nil {
		return fmt.Errorf("listen gossip port %d: %w", cfg.Port, err)
	}
	defer conn.Close()

	var iface *net.Interface
	if cfg.Interface != "" {
		if iface, err = net.InterfaceByName(cfg.Interface); err != nil {
			return fmt.Errorf("lookup interface %s: %w", cfg.Interface, err)
		}
	}

	group := &net.UDPAddr{IP: net.ParseIP(cfg.Group)}
	pc := ipv4.NewPacketConn(conn)
	if err := pc.JoinGroup(iface, group); err != nil {
		return fmt.Errorf("join multicast group %s: %w", cfg.Group, err)
	}
	defer pc.LeaveGroup(iface, group)
	if iface != nil {
		if err := pc.SetMulticastInterface(iface); err != nil {
			return fmt.Errorf("set multicast interface: %w", err)
		}
	}
	if err := pc.SetMulticastTTL(cfg.TTL); err != nil {
		return fmt.Errorf("set multicast ttl: %w", err)
	}
	if err := pc.SetMulticastLoopback(cfg.Loopback); err != nil {
		return fmt.Errorf("set multicast loopback: %w", err)
	}

	dst := &net.UDPAddr{IP: group.IP, Port: cfg.Port}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		conn.Close()
		return nil
	})
	g.Go(func() error { return s.announce(ctx, pc, dst) })
	g.Go(func() error { return s.listen(ctx, pc) })
	return g.Wait()
}

func (s *Strategy) announce(ctx context.Context, pc *ipv4.PacketConn, dst net.Addr) error {
	payload, err := s.codec.seal(s.state.Self)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(s.state.Config.HeartbeatInterval)
	defer ticker.Stop()
	for {
		if _, err := pc.WriteTo(payload, nil, dst); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("gossip heartbeat failed", "topology", s.state.Topology, "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Strategy) listen(ctx context.Context, pc *ipv4.PacketConn) error {
	buf := make([]byte, maxPacket)
	for {
		n, _, _, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read gossip packet: %w", err)
		}
		if err := s.handle(ctx, buf[:n]); err != nil {
			return err
		}
	}
}

// handle connects to the sender of one heartbeat. Packets that do not decode
// are dropped. Only binding and listing failures are returned.
func (s *Strategy) handle(ctx context.Context, pkt []byte) error {
	peer, err := s.codec.open(pkt)
	if err != nil {
		slog.Debug("dropping gossip packet", "topology", s.state.Topology, "err", err)
		return nil
	}
	if peer == s.state.Self {
		return nil
	}
	_, err = s.state.Reconciler().Connect(ctx, []clusterlink.PeerID{peer})
	return err
}
