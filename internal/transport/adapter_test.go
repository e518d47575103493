package transport

import (
	"context"
	"errors"
	"testing"

	"clusterlink"
)

func TestCheck(t *testing.T) {
	connect := func(context.Context, clusterlink.PeerID) error { return nil }
	list := func(context.Context) ([]clusterlink.PeerID, error) { return nil, nil }

	tests := []struct {
		name    string
		adapter Adapter
		ops     []Op
		wantOp  Op
	}{
		{name: "nil adapter", adapter: nil, ops: []Op{OpListConnected}, wantOp: OpListConnected},
		{name: "all bound", adapter: Funcs{ConnectFunc: connect, DisconnectFunc: connect, ListConnectedFunc: list}, ops: AllOps},
		{name: "missing list", adapter: Funcs{ConnectFunc: connect}, ops: []Op{OpConnect, OpListConnected}, wantOp: OpListConnected},
		{name: "missing disconnect", adapter: Funcs{ConnectFunc: connect, ListConnectedFunc: list}, ops: AllOps, wantOp: OpDisconnect},
		{name: "unchecked op ignored", adapter: Funcs{ConnectFunc: connect}, ops: []Op{OpConnect}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.adapter, tt.ops...)
			if tt.wantOp == "" {
				if err != nil {
					t.Fatalf("Check() error = %v", err)
				}
				return
			}

			var bindErr *BindingError
			if !errors.As(err, &bindErr) {
				t.Fatalf("Check() error = %v, want *BindingError", err)
			}
			if bindErr.Op != tt.wantOp {
				t.Errorf("BindingError.Op = %s, want %s", bindErr.Op, tt.wantOp)
			}
			if !errors.Is(err, ErrUnbound) {
				t.Error("BindingError does not unwrap to ErrUnbound")
			}
		})
	}
}

func TestFuncsUnboundCallReturnsBindingError(t *testing.T) {
	var f Funcs
	if err := f.Connect(context.Background(), "a"); !errors.Is(err, ErrUnbound) {
		t.Errorf("Connect() error = %v", err)
	}
	if err := f.Disconnect(context.Background(), "a"); !errors.Is(err, ErrUnbound) {
		t.Errorf("Disconnect() error = %v", err)
	}
	if _, err := f.ListConnected(context.Background()); !errors.Is(err, ErrUnbound) {
		t.Errorf("ListConnected() error = %v", err)
	}
}
