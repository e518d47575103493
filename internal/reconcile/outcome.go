package reconcile

import (
	"fmt"
	"strings"

	"clusterlink"
)

// ReasonKind classifies a non-success adapter result.
type ReasonKind uint8

const (
	ReasonUnreachable ReasonKind = iota + 1
	ReasonNotPartOfNetwork
	ReasonAlreadyDisconnected
	ReasonOther
)

func (k ReasonKind) String() string {
	switch k {
	case ReasonUnreachable:
		return "unreachable"
	case ReasonNotPartOfNetwork:
		return "not_part_of_network"
	case ReasonAlreadyDisconnected:
		return "already_disconnected"
	case ReasonOther:
		return "other"
	default:
		return "unknown"
	}
}

// Reason is why a single peer did not reach the requested state. Err holds
// the adapter's error; for ReasonOther it is the reason itself.
type Reason struct {
	Kind ReasonKind
	Err  error
}

func (r Reason) String() string {
	if r.Kind == ReasonOther && r.Err != nil {
		return r.Err.Error()
	}
	return r.Kind.String()
}

// Failure pairs a peer with its reason.
type Failure struct {
	Peer   clusterlink.PeerID
	Reason Reason
}

// Outcome is the aggregate result of one reconciliation call.
type Outcome struct {
	Failures []Failure
}

func (o Outcome) OK() bool { return len(o.Failures) == 0 }

// FailedPeers returns the peers in Failures, in order.
func (o Outcome) FailedPeers() []clusterlink.PeerID {
	out := make([]clusterlink.PeerID, len(o.Failures))
	for i, f := range o.Failures {
		out[i] = f.Peer
	}
	return out
}

// Err returns nil for a successful outcome and a *FailureError otherwise.
func (o Outcome) Err() error {
	if o.OK() {
		return nil
	}
	return &FailureError{Failures: o.Failures}
}

// FailureError reports the peers a reconciliation could not converge.
type FailureError struct {
	Failures []Failure
}

func (e *FailureError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s (%s)", f.Peer, f.Reason)
	}
	return fmt.Sprintf("%d peers failed: %s", len(e.Failures), strings.Join(parts, ", "))
}
