package strategy

import (
	"context"
	"log/slog"
	"time"

	"clusterlink"
	"clusterlink/internal/telemetry"
)

// DefaultPollInterval is used when a polling strategy sets no interval.
const DefaultPollInterval = 5 * time.Second

// PollMeta is the runtime state of a polling strategy: the peers it believes
// it is connected to.
type PollMeta struct {
	Known clusterlink.PeerSet
}

// Discover returns the desired peers for one poll.
type Discover func(ctx context.Context) ([]clusterlink.PeerID, error)

// Poll runs PollOnce immediately and then every interval until ctx is done.
// It returns a non-nil error only for fatal conditions.
func Poll[C any](ctx context.Context, s *State[C, PollMeta], name string, interval time.Duration, discover Discover) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := PollOnce(ctx, s, name, discover); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// PollOnce discovers the desired peers, disconnects known peers that
// disappeared and connects the rest. A discovery error keeps the previous
// known set. Peers that fail to disconnect stay known; peers that fail to
// connect are forgotten so the next poll tries them again.
func PollOnce[C any](ctx context.Context, s *State[C, PollMeta], name string, discover Discover) error {
	peers, err := telemetry.PollSpan(ctx, s.Emitter, s.Topology, name, discover)
	if err != nil {
		slog.Warn("peer discovery failed", "topology", s.Topology, "strategy", name, "err", err)
		return nil
	}

	discovered := clusterlink.NewPeerSet(peers...).Without(s.Self)
	removed := s.Meta.Known.Difference(discovered)
	known := discovered.Union(nil)

	r := s.Reconciler()
	if removed.Len() > 0 {
		out, err := r.Disconnect(ctx, removed.Sorted())
		if err != nil {
			return err
		}
		for _, peer := range out.FailedPeers() {
			known.Add(peer)
		}
	}

	out, err := r.Connect(ctx, discovered.Sorted())
	if err != nil {
		return err
	}
	for _, peer := range out.FailedPeers() {
		known.Remove(peer)
	}

	s.Meta.Known = known
	return nil
}
