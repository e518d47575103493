// Package transport defines the operations the reconciler uses to change
// which peers the local node is connected to.
//
// Outcomes are reported through errors:
//
//	Connect:    nil = connected, ErrNotPartOfNetwork = ignored, other = rejected
//	Disconnect: nil = disconnected, ErrAlreadyDisconnected, ErrNotPartOfNetwork = ignored,
//	            other = an adapter-specific reason
package transport

import (
	"context"
	"errors"
	"fmt"

	"clusterlink"
)

var (
	// ErrNotPartOfNetwork reports a peer that is categorically outside the
	// network, e.g. a different basename or an incompatible version.
	ErrNotPartOfNetwork = errors.New("peer is not part of the network")
	// ErrAlreadyDisconnected reports a disconnect of a peer that is not connected.
	ErrAlreadyDisconnected = errors.New("peer already disconnected")
	// ErrUnbound reports a missing adapter operation. It is a configuration
	// error and is never recovered from by the reconciler.
	ErrUnbound = errors.New("transport operation not bound")
)

// Adapter is the pluggable connection layer.
type Adapter interface {
	Connect(ctx context.Context, peer clusterlink.PeerID) error
	Disconnect(ctx context.Context, peer clusterlink.PeerID) error
	ListConnected(ctx context.Context) ([]clusterlink.PeerID, error)
}

// Op names one adapter operation.
type Op string

const (
	OpConnect       Op = "connect"
	OpDisconnect    Op = "disconnect"
	OpListConnected Op = "list_connected"
)

// AllOps lists every adapter operation.
var AllOps = []Op{OpConnect, OpDisconnect, OpListConnected}

// BindingError reports which operation is missing.
type BindingError struct {
	Op Op
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("transport operation %s not bound", e.Op)
}

func (e *BindingError) Unwrap() error { return ErrUnbound }

// binder is implemented by adapters whose operations can be individually absent.
type binder interface {
	Bound(Op) bool
}

// Check verifies that ops are bound on a. It performs no side effects.
func Check(a Adapter, ops ...Op) error {
	for _, op := range ops {
		if a == nil {
			return &BindingError{Op: op}
		}
		if b, ok := a.(binder); ok && !b.Bound(op) {
			return &BindingError{Op: op}
		}
	}
	return nil
}

// Validate checks every operation.
func Validate(a Adapter) error {
	return Check(a, AllOps...)
}

// Funcs binds adapter operations to plain functions.
type Funcs struct {
	ConnectFunc       func(ctx context.Context, peer clusterlink.PeerID) error
	DisconnectFunc    func(ctx context.Context, peer clusterlink.PeerID) error
	ListConnectedFunc func(ctx context.Context) ([]clusterlink.PeerID, error)
}

func (f Funcs) Bound(op Op) bool {
	switch op {
	case OpConnect:
		return f.ConnectFunc != nil
	case OpDisconnect:
		return f.DisconnectFunc != nil
	case OpListConnected:
		return f.ListConnectedFunc != nil
	default:
		return false
	}
}

func (f Funcs) Connect(ctx context.Context, peer clusterlink.PeerID) error {
	if f.ConnectFunc == nil {
		return &BindingError{Op: OpConnect}
	}
	return f.ConnectFunc(ctx, peer)
}

func (f Funcs) Disconnect(ctx context.Context, peer clusterlink.PeerID) error {
	if f.DisconnectFunc == nil {
		return &BindingError{Op: OpDisconnect}
	}
	return f.DisconnectFunc(ctx, peer)
}

func (f Funcs) ListConnected(ctx context.Context) ([]clusterlink.PeerID, error) {
	if f.ListConnectedFunc == nil {
		return nil, &BindingError{Op: OpListConnected}
	}
	return f.ListConnectedFunc(ctx)
}
