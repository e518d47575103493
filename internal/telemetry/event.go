// Package telemetry emits the timed observability events produced by
// reconciliation and discovery.
//
// Event names and metadata keys are a stable contract: subscribers such as
// the metrics exporter and the journal key on them directly.
package telemetry

import (
	"maps"
	"time"
)

const (
	EventConnectOK       = "connect.ok"
	EventConnectError    = "connect.error"
	EventDisconnectOK    = "disconnect.ok"
	EventDisconnectError = "disconnect.error"

	PrefixPoll    = "poll"
	PrefixRequest = "request"

	SuffixStart     = ".start"
	SuffixStop      = ".stop"
	SuffixException = ".exception"
)

// Metadata keys.
const (
	KeyTopology        = "topology"
	KeyPeer            = "peer"
	KeyReason          = "reason"
	KeyStrategy        = "strategy"
	KeyNodesDiscovered = "nodes_discovered"
	KeyStatus          = "status"
	KeyURL             = "url"
	KeyError           = "error"
)

// Measurements carries the numeric part of an event. Start events set
// SystemTime; everything else sets Duration.
type Measurements struct {
	Duration   time.Duration `json:"duration,omitempty"`
	SystemTime time.Time     `json:"system_time,omitzero"`
}

// Metadata is the descriptive part of an event.
type Metadata map[string]any

// Merge returns a new Metadata holding m overlaid with other.
func (m Metadata) Merge(other Metadata) Metadata {
	out := make(Metadata, len(m)+len(other))
	maps.Copy(out, m)
	maps.Copy(out, other)
	return out
}

// String returns the value at key if it is a string.
func (m Metadata) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// Int returns the value at key if it is an int.
func (m Metadata) Int(key string) int {
	n, _ := m[key].(int)
	return n
}

// Event is an append-only fact. Sinks must not mutate it.
type Event struct {
	Name         string       `json:"name"`
	Measurements Measurements `json:"measurements"`
	Metadata     Metadata     `json:"metadata"`
}
