// Package scenario simulates a set of nodes that discover each other and
// reconcile their connections over an in-memory network with partitions,
// crashes and restarts.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"clusterlink"
	"clusterlink/internal/adapter/fake"
	"clusterlink/internal/check"
	"clusterlink/internal/strategy"
	"clusterlink/internal/telemetry"
	"clusterlink/internal/transport"
)

const (
	defaultBasename = "app"
	strategyName    = "scenario"
	topologyName    = "scenario"
)

var errUnreachable = errors.New("peer unreachable")

// Config defines how a Scenario is composed.
type Config struct {
	// Hosts become node ids basename@host.
	Hosts    []string
	Basename string
}

// Node is one simulated member. State is replaced when the node restarts.
type Node struct {
	ID    clusterlink.PeerID
	State *strategy.State[struct{}, strategy.PollMeta]
	Sink  *fake.Sink
	link  *link
}

// Scenario owns the simulated network. Every node discovers every live node,
// like a DNS record listing all members.
type Scenario struct {
	mu       sync.Mutex
	basename string
	nodes    map[clusterlink.PeerID]*Node
	down     map[clusterlink.PeerID]bool
	cuts     map[[2]clusterlink.PeerID]bool
}

// New creates a scenario with one node per host.
func New(cfg Config) (*Scenario, error) {
	if len(cfg.Hosts) == 0 {
		return nil, fmt.Errorf("hosts must not be empty")
	}
	if strings.TrimSpace(cfg.Basename) == "" {
		cfg.Basename = defaultBasename
	}

	s := &Scenario{
		basename: cfg.Basename,
		nodes:    make(map[clusterlink.PeerID]*Node),
		down:     make(map[clusterlink.PeerID]bool),
		cuts:     make(map[[2]clusterlink.PeerID]bool),
	}
	for _, host := range cfg.Hosts {
		if _, err := s.AddNode(host); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// AddNode starts a node on host.
func (s *Scenario) AddNode(host string) (*Node, error) {
	host = strings.TrimSpace(host)
	if host == "" || strings.Contains(host, "@") {
		return nil, fmt.Errorf("invalid host %q", host)
	}
	id := clusterlink.PeerID(s.basename + "@" + host)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.nodes[id]; exists {
		return nil, fmt.Errorf("duplicate node %s", id)
	}
	n, err := s.newNodeLocked(id)
	if err != nil {
		return nil, err
	}
	s.nodes[id] = n
	return n, nil
}

func (s *Scenario) newNodeLocked(id clusterlink.PeerID) (*Node, error) {
	l := &link{s: s, self: id, peers: clusterlink.NewPeerSet()}
	sink := &fake.Sink{}
	state, err := strategy.NewState[struct{}, strategy.PollMeta](strategy.Deps{
		Topology:  topologyName,
		Self:      id,
		Transport: l,
		Emitter:   &telemetry.Emitter{Sink: sink},
	}, struct{}{})
	if err != nil {
		return nil, err
	}
	return &Node{ID: id, State: state, Sink: sink, link: l}, nil
}

// RemoveNode takes a node out of the network for good.
func (s *Scenario) RemoveNode(id clusterlink.PeerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[id]; !ok {
		return fmt.Errorf("unknown node %s", id)
	}
	delete(s.nodes, id)
	delete(s.down, id)
	for pair := range s.cuts {
		if pair[0] == id || pair[1] == id {
			delete(s.cuts, pair)
		}
	}
	return nil
}

// KillNode crashes a node: it stops answering, drops out of discovery and
// loses its connections.
func (s *Scenario) KillNode(id clusterlink.PeerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return
	}
	s.down[id] = true
	n.link.peers = clusterlink.NewPeerSet()
}

// RestartNode brings a node back with empty state.
func (s *Scenario) RestartNode(id clusterlink.PeerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[id]; !ok {
		return
	}
	n, err := s.newNodeLocked(id)
	check.NoError(err, "RestartNode: rebuild "+string(id))
	if err != nil {
		return
	}
	s.nodes[id] = n
	delete(s.down, id)
}

// Partition cuts every link between a node in a and a node in b.
func (s *Scenario) Partition(a, b []clusterlink.PeerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range a {
		for _, y := range b {
			if x != y {
				s.cuts[pairKey(x, y)] = true
			}
		}
	}
}

// Heal removes every partition.
func (s *Scenario) Heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.cuts)
}

// Nodes returns every node id, live or dead, in lexical order.
func (s *Scenario) Nodes() []clusterlink.PeerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]clusterlink.PeerID, 0, len(s.nodes))
	for id := range s.nodes {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (s *Scenario) Node(id clusterlink.PeerID) *Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodes[id]
}

func (s *Scenario) Alive(id clusterlink.PeerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.nodes[id]
	return ok && !s.down[id]
}

// Poll runs one discovery round on a live node. Polling a dead or unknown
// node is a no-op.
func (s *Scenario) Poll(ctx context.Context, id clusterlink.PeerID) error {
	if !s.Alive(id) {
		return nil
	}
	n := s.Node(id)
	return strategy.PollOnce(ctx, n.State, strategyName, s.discover)
}

// PollAll polls every live node once, in lexical order.
func (s *Scenario) PollAll(ctx context.Context) error {
	for _, id := range s.Nodes() {
		if err := s.Poll(ctx, id); err != nil {
			return fmt.Errorf("poll %s: %w", id, err)
		}
	}
	return nil
}

// Connected is what the node's transport would report without pruning.
func (s *Scenario) Connected(id clusterlink.PeerID) []clusterlink.PeerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil
	}
	var out []clusterlink.PeerID
	for _, peer := range n.link.peers.Sorted() {
		if s.reachableLocked(id, peer) {
			out = append(out, peer)
		}
	}
	return out
}

// Known is the peer set the node's last poll settled on.
func (s *Scenario) Known(id clusterlink.PeerID) clusterlink.PeerSet {
	n := s.Node(id)
	if n == nil {
		return clusterlink.NewPeerSet()
	}
	return n.State.Meta.Known.Union(nil)
}

func (s *Scenario) discover(context.Context) ([]clusterlink.PeerID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]clusterlink.PeerID, 0, len(s.nodes))
	for id := range s.nodes {
		if !s.down[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *Scenario) reachableLocked(from, to clusterlink.PeerID) bool {
	if _, ok := s.nodes[to]; !ok {
		return false
	}
	if s.down[from] || s.down[to] {
		return false
	}
	return !s.cuts[pairKey(from, to)]
}

func pairKey(a, b clusterlink.PeerID) [2]clusterlink.PeerID {
	if b < a {
		a, b = b, a
	}
	return [2]clusterlink.PeerID{a, b}
}

// link is one node's view of the simulated network. Connections to peers
// that became unreachable are dropped when listed, like a transport noticing
// broken connections.
type link struct {
	s     *Scenario
	self  clusterlink.PeerID
	peers clusterlink.PeerSet
}

var _ transport.Adapter = (*link)(nil)

func (l *link) Connect(_ context.Context, peer clusterlink.PeerID) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	if peer.Basename() != l.s.basename {
		return transport.ErrNotPartOfNetwork
	}
	if !l.s.reachableLocked(l.self, peer) {
		return errUnreachable
	}
	l.peers.Add(peer)
	return nil
}

func (l *link) Disconnect(_ context.Context, peer clusterlink.PeerID) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	if !l.peers.Has(peer) {
		return transport.ErrAlreadyDisconnected
	}
	l.peers.Remove(peer)
	return nil
}

func (l *link) ListConnected(context.Context) ([]clusterlink.PeerID, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	for _, peer := range l.peers.Sorted() {
		if !l.s.reachableLocked(l.self, peer) {
			l.peers.Remove(peer)
		}
	}
	return l.peers.Sorted(), nil
}
