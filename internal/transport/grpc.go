package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"clusterlink"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

const (
	DefaultPort        = 7946
	defaultDialTimeout = 5 * time.Second
)

// GRPCConfig configures the gRPC adapter.
type GRPCConfig struct {
	// Network is the health service name every member serves.
	Network string
	// Basename, when set, marks peers with another basename as not part of the network.
	Basename    string
	Port        int
	DialTimeout time.Duration
	// DialOptions are appended to the adapter's defaults.
	DialOptions []grpc.DialOption
}

// GRPC keeps one client connection per connected peer. A peer counts as
// connected once it answers SERVING for the network's health service.
type GRPC struct {
	cfg GRPCConfig

	mu    sync.Mutex
	conns map[clusterlink.PeerID]*grpc.ClientConn
}

func NewGRPC(cfg GRPCConfig) *GRPC {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	return &GRPC{cfg: cfg, conns: make(map[clusterlink.PeerID]*grpc.ClientConn)}
}

func (g *GRPC) Connect(ctx context.Context, peer clusterlink.PeerID) error {
	if g.cfg.Basename != "" && peer.Basename() != g.cfg.Basename {
		return fmt.Errorf("connect %s: basename %q: %w", peer, peer.Basename(), ErrNotPartOfNetwork)
	}

	g.mu.Lock()
	_, ok := g.conns[peer]
	g.mu.Unlock()
	if ok {
		return nil
	}

	target := net.JoinHostPort(peer.Host(), strconv.Itoa(g.cfg.Port))
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, g.cfg.DialOptions...)

	conn, err := grpc.NewClient("passthrough:///"+target, opts...)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, g.cfg.DialTimeout)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(checkCtx, &healthpb.HealthCheckRequest{Service: g.cfg.Network})
	if err != nil {
		_ = conn.Close()
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("connect %s: network %q not served: %w", peer, g.cfg.Network, ErrNotPartOfNetwork)
		}
		return fmt.Errorf("health check %s: %w", peer, err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		_ = conn.Close()
		return fmt.Errorf("health check %s: status %s", peer, resp.GetStatus())
	}

	g.mu.Lock()
	g.conns[peer] = conn
	g.mu.Unlock()
	return nil
}

func (g *GRPC) Disconnect(_ context.Context, peer clusterlink.PeerID) error {
	g.mu.Lock()
	conn, ok := g.conns[peer]
	delete(g.conns, peer)
	g.mu.Unlock()

	if !ok {
		return ErrAlreadyDisconnected
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("close %s: %w", peer, err)
	}
	return nil
}

// ListConnected drops connections that have failed since they were opened,
// so the next reconciliation dials them again.
func (g *GRPC) ListConnected(context.Context) ([]clusterlink.PeerID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]clusterlink.PeerID, 0, len(g.conns))
	for peer, conn := range g.conns {
		switch conn.GetState() {
		case connectivity.TransientFailure, connectivity.Shutdown:
			slog.Debug("dropping failed peer connection", "peer", peer, "state", conn.GetState())
			_ = conn.Close()
			delete(g.conns, peer)
		default:
			out = append(out, peer)
		}
	}
	return out, nil
}

// Close closes every open connection.
func (g *GRPC) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var errs []error
	for peer, conn := range g.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", peer, err))
		}
		delete(g.conns, peer)
	}
	return errors.Join(errs...)
}

// Serve answers health checks for network on lis until ctx is cancelled.
// Peers running the gRPC adapter connect to this endpoint.
func Serve(ctx context.Context, lis net.Listener, network string) error {
	srv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	hs := health.NewServer()
	hs.SetServingStatus(network, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	go func() {
		<-ctx.Done()
		hs.Shutdown()
		srv.GracefulStop()
	}()

	slog.Info("Serving peer health endpoint.", "addr", lis.Addr().String(), "network", network)
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve health endpoint: %w", err)
	}
	return nil
}
