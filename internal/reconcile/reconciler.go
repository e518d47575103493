// Package reconcile converges the connected peer set toward a desired set.
//
// Connect and Disconnect treat non-success results differently. For connect,
// a rejected or ignored peer is a failure: the node never reached the
// connected state. For disconnect, a peer that is already disconnected or
// outside the network is already where the caller wants it, so only an
// unexpected adapter error counts as a failure. Both still emit an error
// event for every non-success result.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"clusterlink"
	"clusterlink/internal/telemetry"
	"clusterlink/internal/transport"
)

// Reconciler applies connect/disconnect diffs for one topology. It is owned
// by the topology's worker and is not safe for concurrent use.
type Reconciler struct {
	Topology  string
	Self      clusterlink.PeerID
	Transport transport.Adapter
	Emitter   *telemetry.Emitter
}

// Connect connects every desired peer that is neither connected nor self.
// Peers are attempted one at a time; a failing peer does not stop the rest.
// The error is reserved for an unbound adapter operation, reported before
// any peer is attempted, and for a failing ListConnected.
func (r *Reconciler) Connect(ctx context.Context, desired []clusterlink.PeerID) (Outcome, error) {
	if err := transport.Check(r.Transport, transport.OpListConnected, transport.OpConnect); err != nil {
		return Outcome{}, fmt.Errorf("connect peers in topology %s: %w", r.Topology, err)
	}

	connected, err := r.connected(ctx)
	if err != nil {
		return Outcome{}, err
	}
	need := clusterlink.NewPeerSet(desired...).Difference(connected).Without(r.Self)

	var out Outcome
	for _, peer := range need.Sorted() {
		start := r.Emitter.Now()
		err := r.Transport.Connect(ctx, peer)
		elapsed := r.Emitter.Since(start)

		if err == nil {
			r.emit(ctx, telemetry.EventConnectOK, peer, elapsed, nil)
			slog.Info("connected to peer", "topology", r.Topology, "peer", peer)
			continue
		}

		reason := Reason{Kind: ReasonUnreachable, Err: err}
		if errors.Is(err, transport.ErrNotPartOfNetwork) {
			reason.Kind = ReasonNotPartOfNetwork
		}
		r.emit(ctx, telemetry.EventConnectError, peer, elapsed, &reason)
		slog.Warn("unable to connect to peer", "topology", r.Topology, "peer", peer, "reason", reason.Kind, "err", err)
		out.Failures = append(out.Failures, Failure{Peer: peer, Reason: reason})
	}
	return out, nil
}

// Disconnect disconnects every desired peer that is connected and not self.
// Already-disconnected and foreign peers are reported but are not failures.
func (r *Reconciler) Disconnect(ctx context.Context, desired []clusterlink.PeerID) (Outcome, error) {
	if err := transport.Check(r.Transport, transport.OpListConnected, transport.OpDisconnect); err != nil {
		return Outcome{}, fmt.Errorf("disconnect peers in topology %s: %w", r.Topology, err)
	}

	connected, err := r.connected(ctx)
	if err != nil {
		return Outcome{}, err
	}
	need := clusterlink.NewPeerSet(desired...).Intersect(connected).Without(r.Self)

	var out Outcome
	for _, peer := range need.Sorted() {
		start := r.Emitter.Now()
		err := r.Transport.Disconnect(ctx, peer)
		elapsed := r.Emitter.Since(start)

		switch {
		case err == nil:
			r.emit(ctx, telemetry.EventDisconnectOK, peer, elapsed, nil)
			slog.Info("disconnected from peer", "topology", r.Topology, "peer", peer)
		case errors.Is(err, transport.ErrAlreadyDisconnected):
			reason := Reason{Kind: ReasonAlreadyDisconnected, Err: err}
			r.emit(ctx, telemetry.EventDisconnectError, peer, elapsed, &reason)
			slog.Warn("peer already disconnected", "topology", r.Topology, "peer", peer)
		case errors.Is(err, transport.ErrNotPartOfNetwork):
			reason := Reason{Kind: ReasonNotPartOfNetwork, Err: err}
			r.emit(ctx, telemetry.EventDisconnectError, peer, elapsed, &reason)
			slog.Warn("peer is not part of the network", "topology", r.Topology, "peer", peer)
		default:
			reason := Reason{Kind: ReasonOther, Err: err}
			r.emit(ctx, telemetry.EventDisconnectError, peer, elapsed, &reason)
			slog.Warn("unable to disconnect from peer", "topology", r.Topology, "peer", peer, "err", err)
			out.Failures = append(out.Failures, Failure{Peer: peer, Reason: reason})
		}
	}
	return out, nil
}

func (r *Reconciler) connected(ctx context.Context) (clusterlink.PeerSet, error) {
	peers, err := r.Transport.ListConnected(ctx)
	if err != nil {
		return nil, fmt.Errorf("list connected peers in topology %s: %w", r.Topology, err)
	}
	return clusterlink.NewPeerSet(peers...), nil
}

func (r *Reconciler) emit(ctx context.Context, name string, peer clusterlink.PeerID, elapsed time.Duration, reason *Reason) {
	md := telemetry.Metadata{
		telemetry.KeyTopology: r.Topology,
		telemetry.KeyPeer:     string(peer),
	}
	if reason != nil {
		md[telemetry.KeyReason] = reason.String()
	}
	r.Emitter.Emit(ctx, telemetry.Event{
		Name:         name,
		Measurements: telemetry.Measurements{Duration: elapsed},
		Metadata:     md,
	})
}
