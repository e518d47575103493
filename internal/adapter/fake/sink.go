package fake

import (
	"sync"

	"clusterlink/internal/telemetry"
)

var _ telemetry.Sink = (*Sink)(nil)

// Sink records every event it receives.
type Sink struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (s *Sink) Handle(ev telemetry.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

// Events returns recorded events. If name is "", returns all events.
func (s *Sink) Events(name string) []telemetry.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []telemetry.Event
	for _, ev := range s.events {
		if name == "" || ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

// Names returns the names of all recorded events in order.
func (s *Sink) Names() []string {
	events := s.Events("")
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Name
	}
	return out
}

func (s *Sink) Reset() {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
}
