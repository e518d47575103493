package scenario

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"strings"
	"sync"
	"time"

	"clusterlink"
	"clusterlink/internal/check"
)

const (
	defaultChaosMaxEvents      = 4096
	defaultChaosOpWeight       = 1
	defaultChaosMaxAutoNodes   = 12
	defaultChaosAddNodeRetries = 3
)

// ChaosOperation mutates the network or a node for one chaos step.
type ChaosOperation struct {
	Name   string
	Weight int
	Run    func(ctx context.Context, s *Scenario, rng *rand.Rand) (string, error)
}

// ChaosInvariant is checked after every step.
type ChaosInvariant struct {
	Name  string
	Check func(ctx context.Context, s *Scenario) error
}

// ChaosEvent records one executed step for replay.
type ChaosEvent struct {
	Step              int
	Seed              int64
	Timestamp         time.Time
	Operation         string
	Detail            string
	OperationError    string
	InvariantFailures []string
}

type ChaosRunnerConfig struct {
	Seed       int64
	MaxEvents  int
	Operations []ChaosOperation
	Invariants []ChaosInvariant
}

// ChaosRunner executes seeded, reproducible chaos steps against a Scenario.
type ChaosRunner struct {
	mu         sync.Mutex
	scenario   *Scenario
	rng        *rand.Rand
	seed       int64
	step       int
	maxEvents  int
	operations []ChaosOperation
	invariants []ChaosInvariant
	events     []ChaosEvent
}

func NewChaosRunner(s *Scenario, cfg ChaosRunnerConfig) (*ChaosRunner, error) {
	check.Assert(s != nil, "NewChaosRunner: scenario must not be nil")
	if s == nil {
		return nil, fmt.Errorf("scenario is required")
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	maxEvents := cfg.MaxEvents
	if maxEvents <= 0 {
		maxEvents = defaultChaosMaxEvents
	}

	ops := cfg.Operations
	if len(ops) == 0 {
		ops = DefaultChaosOperations()
	}
	for _, op := range ops {
		if err := validateOperation(op); err != nil {
			return nil, err
		}
	}
	invariants := cfg.Invariants
	if len(invariants) == 0 {
		invariants = DefaultChaosInvariants()
	}
	for _, inv := range invariants {
		if err := validateInvariant(inv); err != nil {
			return nil, err
		}
	}

	return &ChaosRunner{
		scenario:   s,
		rng:        rand.New(rand.NewSource(seed)),
		seed:       seed,
		maxEvents:  maxEvents,
		operations: slices.Clone(ops),
		invariants: slices.Clone(invariants),
		events:     make([]ChaosEvent, 0, min(maxEvents, 128)),
	}, nil
}

func validateOperation(op ChaosOperation) error {
	if strings.TrimSpace(op.Name) == "" {
		return fmt.Errorf("chaos operation name is required")
	}
	if op.Run == nil {
		return fmt.Errorf("chaos operation %q run func is required", op.Name)
	}
	return nil
}

func validateInvariant(inv ChaosInvariant) error {
	if strings.TrimSpace(inv.Name) == "" {
		return fmt.Errorf("chaos invariant name is required")
	}
	if inv.Check == nil {
		return fmt.Errorf("chaos invariant %q check func is required", inv.Name)
	}
	return nil
}

func (r *ChaosRunner) Seed() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seed
}

func (r *ChaosRunner) RegisterOperation(op ChaosOperation) error {
	if err := validateOperation(op); err != nil {
		return err
	}
	r.mu.Lock()
	r.operations = append(r.operations, op)
	r.mu.Unlock()
	return nil
}

func (r *ChaosRunner) RegisterInvariant(inv ChaosInvariant) error {
	if err := validateInvariant(inv); err != nil {
		return err
	}
	r.mu.Lock()
	r.invariants = append(r.invariants, inv)
	r.mu.Unlock()
	return nil
}

// ReplayLog returns a copy of the recorded steps, oldest first.
func (r *ChaosRunner) ReplayLog() []ChaosEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ChaosEvent, len(r.events))
	for i, ev := range r.events {
		out[i] = ev
		out[i].InvariantFailures = slices.Clone(ev.InvariantFailures)
	}
	return out
}

// Step runs one weighted random operation and then every invariant.
func (r *ChaosRunner) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	op, err := chooseChaosOperation(r.rng, r.operations)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	r.step++
	step := r.step
	seed := r.seed
	r.mu.Unlock()

	detail, opErr := op.Run(ctx, r.scenario, r.rng)
	failures := r.checkInvariants(ctx)

	event := ChaosEvent{
		Step:              step,
		Seed:              seed,
		Timestamp:         time.Now(),
		Operation:         op.Name,
		Detail:            detail,
		InvariantFailures: failures,
	}
	if opErr != nil {
		event.OperationError = opErr.Error()
	}
	r.appendEvent(event)

	if opErr != nil {
		return fmt.Errorf("chaos step %d op %q: %w", step, op.Name, opErr)
	}
	if len(failures) > 0 {
		return fmt.Errorf("chaos step %d invariant failures: %s", step, strings.Join(failures, "; "))
	}
	return nil
}

func (r *ChaosRunner) Run(ctx context.Context, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be > 0")
	}
	for range steps {
		if err := r.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *ChaosRunner) checkInvariants(ctx context.Context) []string {
	r.mu.Lock()
	invariants := slices.Clone(r.invariants)
	r.mu.Unlock()

	var failures []string
	for _, inv := range invariants {
		if err := inv.Check(ctx, r.scenario); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", inv.Name, err))
		}
	}
	slices.Sort(failures)
	return failures
}

func (r *ChaosRunner) appendEvent(event ChaosEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)
	if len(r.events) > r.maxEvents {
		r.events = r.events[len(r.events)-r.maxEvents:]
	}
}

func chooseChaosOperation(rng *rand.Rand, ops []ChaosOperation) (ChaosOperation, error) {
	weight := func(op ChaosOperation) int {
		if op.Weight <= 0 {
			return defaultChaosOpWeight
		}
		return op.Weight
	}
	total := 0
	for _, op := range ops {
		total += weight(op)
	}
	if total <= 0 {
		return ChaosOperation{}, fmt.Errorf("no chaos operations registered")
	}

	pick := rng.Intn(total)
	for _, op := range ops {
		if pick < weight(op) {
			return op, nil
		}
		pick -= weight(op)
	}
	return ChaosOperation{}, fmt.Errorf("failed to choose chaos operation")
}

func pickNode(s *Scenario, rng *rand.Rand) (clusterlink.PeerID, bool) {
	ids := s.Nodes()
	if len(ids) == 0 {
		return "", false
	}
	return ids[rng.Intn(len(ids))], true
}

func DefaultChaosOperations() []ChaosOperation {
	return []ChaosOperation{
		{
			Name:   "heal",
			Weight: 1,
			Run: func(_ context.Context, s *Scenario, _ *rand.Rand) (string, error) {
				s.Heal()
				return "all partitions healed", nil
			},
		},
		{
			Name:   "partition_pair",
			Weight: 2,
			Run: func(_ context.Context, s *Scenario, rng *rand.Rand) (string, error) {
				ids := s.Nodes()
				if len(ids) < 2 {
					return "skip: need at least 2 nodes", nil
				}
				a := rng.Intn(len(ids))
				b := rng.Intn(len(ids) - 1)
				if b >= a {
					b++
				}
				s.Partition([]clusterlink.PeerID{ids[a]}, []clusterlink.PeerID{ids[b]})
				return fmt.Sprintf("partitioned %s <-> %s", ids[a], ids[b]), nil
			},
		},
		{
			Name:   "kill_node",
			Weight: 1,
			Run: func(_ context.Context, s *Scenario, rng *rand.Rand) (string, error) {
				id, ok := pickNode(s, rng)
				if !ok {
					return "skip: no nodes", nil
				}
				s.KillNode(id)
				return fmt.Sprintf("killed %s", id), nil
			},
		},
		{
			Name:   "restart_node",
			Weight: 2,
			Run: func(_ context.Context, s *Scenario, rng *rand.Rand) (string, error) {
				id, ok := pickNode(s, rng)
				if !ok {
					return "skip: no nodes", nil
				}
				s.RestartNode(id)
				return fmt.Sprintf("restarted %s", id), nil
			},
		},
		{
			Name:   "add_node",
			Weight: 1,
			Run: func(_ context.Context, s *Scenario, rng *rand.Rand) (string, error) {
				if len(s.Nodes()) >= defaultChaosMaxAutoNodes {
					return fmt.Sprintf("skip: max auto nodes (%d)", defaultChaosMaxAutoNodes), nil
				}
				for range defaultChaosAddNodeRetries {
					host := fmt.Sprintf("chaos-%04d", rng.Intn(defaultChaosMaxAutoNodes*100))
					n, err := s.AddNode(host)
					if err != nil {
						continue
					}
					return fmt.Sprintf("added %s", n.ID), nil
				}
				return "skip: no unique host", nil
			},
		},
		{
			Name:   "remove_node",
			Weight: 1,
			Run: func(_ context.Context, s *Scenario, rng *rand.Rand) (string, error) {
				if len(s.Nodes()) <= 1 {
					return "skip: keep at least one node", nil
				}
				id, _ := pickNode(s, rng)
				if err := s.RemoveNode(id); err != nil {
					return "", err
				}
				return fmt.Sprintf("removed %s", id), nil
			},
		},
		{
			Name:   "poll_node",
			Weight: 4,
			Run: func(ctx context.Context, s *Scenario, rng *rand.Rand) (string, error) {
				id, ok := pickNode(s, rng)
				if !ok {
					return "skip: no nodes", nil
				}
				if err := s.Poll(ctx, id); err != nil {
					return "", err
				}
				return fmt.Sprintf("polled %s", id), nil
			},
		},
		{
			Name:   "poll_all",
			Weight: 1,
			Run: func(ctx context.Context, s *Scenario, _ *rand.Rand) (string, error) {
				return "polled all", s.PollAll(ctx)
			},
		},
	}
}

func DefaultChaosInvariants() []ChaosInvariant {
	return []ChaosInvariant{
		{
			Name: "no_self_peer",
			Check: func(_ context.Context, s *Scenario) error {
				for _, id := range s.Nodes() {
					if slices.Contains(s.Connected(id), id) {
						return fmt.Errorf("%s is connected to itself", id)
					}
					if s.Known(id).Has(id) {
						return fmt.Errorf("%s knows itself", id)
					}
				}
				return nil
			},
		},
		{
			Name: "connected_are_known",
			Check: func(_ context.Context, s *Scenario) error {
				for _, id := range s.Nodes() {
					known := s.Known(id)
					for _, peer := range s.Connected(id) {
						if !known.Has(peer) {
							return fmt.Errorf("%s is connected to unknown peer %s", id, peer)
						}
					}
				}
				return nil
			},
		},
		{
			Name: "dead_nodes_hold_nothing",
			Check: func(_ context.Context, s *Scenario) error {
				s.mu.Lock()
				defer s.mu.Unlock()
				for id, n := range s.nodes {
					if s.down[id] && n.link.peers.Len() > 0 {
						return fmt.Errorf("dead node %s still holds %v", id, n.link.peers.Sorted())
					}
				}
				return nil
			},
		},
	}
}
