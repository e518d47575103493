package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var fastPolicy = Policy{MaxRestarts: 3, Period: time.Minute, Backoff: time.Millisecond}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) record(eventType, child, _ string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, child+":"+eventType)
}

func (l *eventLog) count(want string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e == want {
			n++
		}
	}
	return n
}

func TestFailingChildDoesNotDisturbSiblings(t *testing.T) {
	var flakyRuns, steadyRuns atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := &eventLog{}
	s := &Supervisor{
		Policy:  fastPolicy,
		OnEvent: log.record,
		Children: []Child{
			{Name: "flaky", Run: func(context.Context) error {
				if flakyRuns.Add(1) < 3 {
					return errors.New("boom")
				}
				cancel()
				return nil
			}},
			{Name: "steady", Run: func(ctx context.Context) error {
				steadyRuns.Add(1)
				<-ctx.Done()
				return nil
			}},
		},
	}

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := flakyRuns.Load(); got != 3 {
		t.Fatalf("flaky runs = %d, want 3", got)
	}
	if got := steadyRuns.Load(); got != 1 {
		t.Fatalf("steady runs = %d, want 1", got)
	}
	if got := log.count("flaky:child.restart"); got != 2 {
		t.Fatalf("flaky restarts = %d, want 2", got)
	}
}

func TestEscalationStopsEverything(t *testing.T) {
	siblingStopped := make(chan struct{})
	last := errors.New("still broken")
	s := &Supervisor{
		Policy: Policy{MaxRestarts: 2, Period: time.Minute, Backoff: time.Millisecond},
		Children: []Child{
			{Name: "broken", Run: func(context.Context) error { return last }},
			{Name: "sibling", Run: func(ctx context.Context) error {
				<-ctx.Done()
				close(siblingStopped)
				return nil
			}},
		},
	}

	err := s.Run(context.Background())
	if !errors.Is(err, ErrRestartIntensity) {
		t.Fatalf("Run() error = %v, want ErrRestartIntensity", err)
	}
	if !errors.Is(err, last) {
		t.Fatalf("Run() error = %v, want it to wrap the last failure", err)
	}
	var esc *EscalationError
	if !errors.As(err, &esc) || esc.Child != "broken" || esc.Restarts != 3 {
		t.Fatalf("escalation = %+v", esc)
	}
	select {
	case <-siblingStopped:
	case <-time.After(time.Second):
		t.Fatal("sibling was not stopped on escalation")
	}
}

func TestPanicIsRestarted(t *testing.T) {
	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Supervisor{
		Policy: fastPolicy,
		Children: []Child{{Name: "panicky", Run: func(context.Context) error {
			if runs.Add(1) == 1 {
				panic("nil map")
			}
			cancel()
			return nil
		}}},
	}
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := runs.Load(); got != 2 {
		t.Fatalf("runs = %d, want 2", got)
	}
}

func TestFinishedChildIsNotRestarted(t *testing.T) {
	var runs atomic.Int32
	log := &eventLog{}
	s := &Supervisor{
		Policy:   fastPolicy,
		OnEvent:  log.record,
		Children: []Child{{Name: "once", Run: func(context.Context) error { runs.Add(1); return nil }}},
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if runs.Load() != 1 || log.count("once:child.exit") != 1 {
		t.Fatalf("runs = %d, events = %v", runs.Load(), log.events)
	}
}

func TestCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		Policy: Policy{MaxRestarts: 10, Period: time.Minute, Backoff: time.Hour},
		Children: []Child{{Name: "slow", Run: func(context.Context) error {
			return errors.New("fail")
		}}},
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWithinDropsExpiredRestarts(t *testing.T) {
	base := time.Unix(1000, 0)
	ts := []time.Time{base, base.Add(2 * time.Second), base.Add(6 * time.Second)}
	got := within(ts, base.Add(time.Second))
	if len(got) != 2 || !got[0].Equal(base.Add(2*time.Second)) {
		t.Fatalf("within() = %v", got)
	}
}

func TestPolicyDefaults(t *testing.T) {
	p := Policy{}.normalized()
	if p.MaxRestarts != DefaultMaxRestarts || p.Period != DefaultPeriod || p.Backoff != DefaultBackoff {
		t.Fatalf("normalized() = %+v", p)
	}
}
