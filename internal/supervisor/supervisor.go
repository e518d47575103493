// Package supervisor runs one worker per topology and restarts the ones
// that fail, one-for-one. Restarts back off exponentially. When a worker
// fails more than MaxRestarts times within Period the supervisor gives up,
// stops every worker and returns an *EscalationError.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"clusterlink/internal/check"
	"clusterlink/internal/telemetry"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxRestarts = 3
	DefaultPeriod      = 5 * time.Second
	DefaultBackoff     = 100 * time.Millisecond
	// maxBackoff caps the doubling so a flapping worker is retried at least
	// every 15s.
	maxBackoff = 15 * time.Second
)

// ErrRestartIntensity marks a supervisor that gave up on a worker.
var ErrRestartIntensity = errors.New("restart intensity exceeded")

// Child is one supervised worker. Run returning nil means the child is done
// and it is not restarted.
type Child struct {
	Name string
	Run  func(ctx context.Context) error
}

// Policy bounds restarts. Zero fields take the package defaults.
type Policy struct {
	MaxRestarts int
	Period      time.Duration
	Backoff     time.Duration
}

func (p Policy) normalized() Policy {
	if p.MaxRestarts <= 0 {
		p.MaxRestarts = DefaultMaxRestarts
	}
	if p.Period <= 0 {
		p.Period = DefaultPeriod
	}
	if p.Backoff <= 0 {
		p.Backoff = DefaultBackoff
	}
	return p
}

// EscalationError reports the worker that exhausted its restarts and the
// error it last failed with.
type EscalationError struct {
	Child    string
	Restarts int
	Period   time.Duration
	Last     error
}

func (e *EscalationError) Error() string {
	return fmt.Sprintf("worker %s failed %d times within %s: %v", e.Child, e.Restarts, e.Period, e.Last)
}

func (e *EscalationError) Unwrap() []error {
	return []error{ErrRestartIntensity, e.Last}
}

type Supervisor struct {
	Children []Child
	Policy   Policy
	Clock    telemetry.Clock
	OnEvent  func(eventType, child, message string)
}

func (s *Supervisor) getClock() telemetry.Clock {
	if s.Clock != nil {
		return s.Clock
	}
	return telemetry.RealClock{}
}

func (s *Supervisor) emit(eventType, child, message string) {
	if s.OnEvent != nil {
		s.OnEvent(eventType, child, message)
	}
	slog.Debug("supervisor event", "event", eventType, "child", child, "message", message)
}

// Run starts every child and blocks until ctx is done, every child has
// finished or a child escalated. Cancellation is not an error.
func (s *Supervisor) Run(ctx context.Context) error {
	for _, c := range s.Children {
		check.Assertf(c.Run != nil, "Supervisor.Run: child %q has no Run func", c.Name)
	}
	policy := s.Policy.normalized()

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range s.Children {
		g.Go(func() error { return s.supervise(gctx, c, policy) })
	}
	return g.Wait()
}

func (s *Supervisor) supervise(ctx context.Context, c Child, policy Policy) error {
	clock := s.getClock()
	backoff := policy.Backoff
	var restarts []time.Time

	s.emit("child.start", c.Name, "")
	for {
		started := clock.Now()
		err := runChild(ctx, c)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			s.emit("child.exit", c.Name, "")
			return nil
		}

		now := clock.Now()
		if now.Sub(started) >= policy.Period {
			backoff = policy.Backoff
		}
		restarts = append(within(restarts, now.Add(-policy.Period)), now)
		if len(restarts) > policy.MaxRestarts {
			s.emit("child.escalate", c.Name, err.Error())
			slog.Error("worker exceeded restart intensity", "child", c.Name, "restarts", len(restarts), "err", err)
			return &EscalationError{Child: c.Name, Restarts: len(restarts), Period: policy.Period, Last: err}
		}

		s.emit("child.restart", c.Name, err.Error())
		slog.Warn("worker failed, restarting", "child", c.Name, "backoff", backoff, "err", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// within drops the timestamps before cutoff.
func within(ts []time.Time, cutoff time.Time) []time.Time {
	out := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

func runChild(ctx context.Context, c Child) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("worker panic", "child", c.Name, "stack", string(debug.Stack()))
			err = fmt.Errorf("worker %s panicked: %v", c.Name, r)
		}
	}()
	return c.Run(ctx)
}
