package telemetry

import (
	"fmt"
	"log/slog"
	"sync"
)

// Sink consumes events. Handle runs on the emitting goroutine, so
// implementations should return quickly.
type Sink interface {
	Handle(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Handle(ev Event) { f(ev) }

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Handle(Event) {}

// Bus fans events out to subscribers. A subscriber that panics is detached
// and never called again; the emitter is unaffected.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]Sink
	nextID uint64
}

func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]Sink)}
}

// Subscribe attaches s and returns a function that detaches it.
func (b *Bus) Subscribe(s Sink) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = s
	b.mu.Unlock()

	return func() { b.detach(id) }
}

// Len reports the number of attached subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) Handle(ev Event) {
	b.mu.RLock()
	ids := make([]uint64, 0, len(b.subs))
	sinks := make([]Sink, 0, len(b.subs))
	for id, s := range b.subs {
		ids = append(ids, id)
		sinks = append(sinks, s)
	}
	b.mu.RUnlock()

	for i, s := range sinks {
		if err := deliver(s, ev); err != nil {
			slog.Warn("telemetry subscriber detached", "event", ev.Name, "err", err)
			b.detach(ids[i])
		}
	}
}

func (b *Bus) detach(id uint64) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

func deliver(s Sink, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	s.Handle(ev)
	return nil
}
