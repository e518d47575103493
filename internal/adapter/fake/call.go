// Package fake provides in-memory stand-ins for transports, clocks and
// sinks, for tests across the repository.
package fake

import (
	"sync"

	"clusterlink"
)

// Call records a single adapter invocation.
type Call struct {
	Method string
	Peer   clusterlink.PeerID
}

// CallRecorder tracks adapter calls for assertion in tests.
type CallRecorder struct {
	mu    sync.Mutex
	calls []Call
}

func (r *CallRecorder) record(method string, peer clusterlink.PeerID) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Method: method, Peer: peer})
	r.mu.Unlock()
}

// Calls returns recorded calls. If method is "", returns all calls.
func (r *CallRecorder) Calls(method string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Call
	for _, c := range r.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Peers returns the peers passed to method, in call order.
func (r *CallRecorder) Peers(method string) []clusterlink.PeerID {
	calls := r.Calls(method)
	out := make([]clusterlink.PeerID, len(calls))
	for i, c := range calls {
		out[i] = c.Peer
	}
	return out
}

// Reset clears all recorded calls.
func (r *CallRecorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}
