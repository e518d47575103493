package fake

import (
	"sync"
	"time"

	"clusterlink/internal/telemetry"
)

var _ telemetry.Clock = (*Clock)(nil)

// Clock is a deterministic clock for testing. With a non-zero step, every
// Now call advances the clock by step after reading it.
type Clock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewClock creates a Clock starting at the given time.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// NewSteppingClock creates a Clock that advances by step on every read.
func NewSteppingClock(start time.Time, step time.Duration) *Clock {
	return &Clock{now: start, step: step}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
