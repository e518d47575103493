package fake

import (
	"context"
	"errors"
	"sync"

	"clusterlink"
	"clusterlink/internal/transport"
)

var _ transport.Adapter = (*Transport)(nil)

// ErrUnreachable is returned by Connect for peers marked unreachable.
var ErrUnreachable = errors.New("fake: peer unreachable")

// Transport tracks connected peers in memory.
type Transport struct {
	CallRecorder

	mu          sync.Mutex
	connected   clusterlink.PeerSet
	unreachable clusterlink.PeerSet
	foreign     clusterlink.PeerSet

	DisconnectErr map[clusterlink.PeerID]error
	ListErr       error
}

func NewTransport(connected ...clusterlink.PeerID) *Transport {
	return &Transport{
		connected:   clusterlink.NewPeerSet(connected...),
		unreachable: clusterlink.NewPeerSet(),
		foreign:     clusterlink.NewPeerSet(),
	}
}

// SetUnreachable makes Connect reject the given peers.
func (t *Transport) SetUnreachable(peers ...clusterlink.PeerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unreachable = clusterlink.NewPeerSet(peers...)
}

// SetForeign makes Connect ignore the given peers as outside the network.
func (t *Transport) SetForeign(peers ...clusterlink.PeerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.foreign = clusterlink.NewPeerSet(peers...)
}

// Drop simulates a peer going away without a disconnect call.
func (t *Transport) Drop(peer clusterlink.PeerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected.Remove(peer)
}

// Connected returns the connected peers in lexical order.
func (t *Transport) Connected() []clusterlink.PeerID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected.Sorted()
}

func (t *Transport) Connect(_ context.Context, peer clusterlink.PeerID) error {
	t.record("Connect", peer)
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.foreign.Has(peer):
		return transport.ErrNotPartOfNetwork
	case t.unreachable.Has(peer):
		return ErrUnreachable
	}
	t.connected.Add(peer)
	return nil
}

func (t *Transport) Disconnect(_ context.Context, peer clusterlink.PeerID) error {
	t.record("Disconnect", peer)
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.DisconnectErr[peer]; err != nil {
		return err
	}
	if !t.connected.Has(peer) {
		return transport.ErrAlreadyDisconnected
	}
	t.connected.Remove(peer)
	return nil
}

func (t *Transport) ListConnected(context.Context) ([]clusterlink.PeerID, error) {
	t.record("ListConnected", "")
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ListErr != nil {
		return nil, t.ListErr
	}
	return t.connected.Sorted(), nil
}
