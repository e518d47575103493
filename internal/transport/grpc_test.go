package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"clusterlink"

	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

func startHealthServer(t *testing.T, network string) *bufconn.Listener {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, lis, network) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	})
	return lis
}

func newBufconnAdapter(t *testing.T, lis *bufconn.Listener, cfg GRPCConfig) *GRPC {
	t.Helper()
	cfg.DialTimeout = 2 * time.Second
	cfg.DialOptions = append(cfg.DialOptions, grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	g := NewGRPC(cfg)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestGRPCConnectListDisconnect(t *testing.T) {
	lis := startHealthServer(t, "prod")
	g := newBufconnAdapter(t, lis, GRPCConfig{Network: "prod", Basename: "app"})
	ctx := context.Background()
	peer := clusterlink.PeerID("app@10.0.0.2")

	if err := g.Connect(ctx, peer); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := g.Connect(ctx, peer); err != nil {
		t.Fatalf("second Connect() error = %v", err)
	}

	peers, err := g.ListConnected(ctx)
	if err != nil {
		t.Fatalf("ListConnected() error = %v", err)
	}
	if len(peers) != 1 || peers[0] != peer {
		t.Fatalf("ListConnected() = %v, want [%s]", peers, peer)
	}

	if err := g.Disconnect(ctx, peer); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if err := g.Disconnect(ctx, peer); !errors.Is(err, ErrAlreadyDisconnected) {
		t.Fatalf("second Disconnect() error = %v, want ErrAlreadyDisconnected", err)
	}
}

func TestGRPCConnectForeignNetworkIsIgnored(t *testing.T) {
	lis := startHealthServer(t, "prod")
	g := newBufconnAdapter(t, lis, GRPCConfig{Network: "staging"})

	err := g.Connect(context.Background(), "app@10.0.0.2")
	if !errors.Is(err, ErrNotPartOfNetwork) {
		t.Fatalf("Connect() error = %v, want ErrNotPartOfNetwork", err)
	}
}

func TestGRPCConnectForeignBasenameIsIgnored(t *testing.T) {
	g := NewGRPC(GRPCConfig{Network: "prod", Basename: "app"})

	err := g.Connect(context.Background(), "db@10.0.0.2")
	if !errors.Is(err, ErrNotPartOfNetwork) {
		t.Fatalf("Connect() error = %v, want ErrNotPartOfNetwork", err)
	}
}

func TestGRPCConnectUnreachableIsRejected(t *testing.T) {
	g := NewGRPC(GRPCConfig{
		Network:     "prod",
		DialTimeout: time.Second,
		DialOptions: []grpc.DialOption{grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		})},
	})

	err := g.Connect(context.Background(), "app@10.0.0.9")
	if err == nil {
		t.Fatal("Connect() error = nil, want rejection")
	}
	if errors.Is(err, ErrNotPartOfNetwork) {
		t.Fatalf("Connect() error = %v, want a rejection rather than ErrNotPartOfNetwork", err)
	}

	peers, _ := g.ListConnected(context.Background())
	if len(peers) != 0 {
		t.Fatalf("ListConnected() = %v, want empty", peers)
	}
}
