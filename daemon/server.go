package daemon

import (
	"context"
	"fmt"
	"net"

	"clusterlink/internal/metrics"
	"clusterlink/internal/transport"

	"github.com/prometheus/client_golang/prometheus"
)

// serveHealth answers health checks for network on addr so that peers
// running the gRPC adapter can connect to this node.
func serveHealth(ctx context.Context, addr, network string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen health %s: %w", addr, err)
	}
	return transport.Serve(ctx, lis, network)
}

func serveMetrics(ctx context.Context, addr string, g prometheus.Gatherer) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen metrics %s: %w", addr, err)
	}
	return metrics.Serve(ctx, lis, g)
}
