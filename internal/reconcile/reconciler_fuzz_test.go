package reconcile

import (
	"context"
	"strings"
	"testing"

	"clusterlink"
)

func splitPeers(s string) []clusterlink.PeerID {
	var out []clusterlink.PeerID
	for _, part := range strings.Split(s, ",") {
		if part != "" {
			out = append(out, clusterlink.PeerID(part))
		}
	}
	return out
}

func FuzzReconcileTargets(f *testing.F) {
	f.Add("a,b,c", "b", "self")
	f.Add("self,x", "", "self")
	f.Add("", "a", "a")

	f.Fuzz(func(t *testing.T, desiredCSV, connectedCSV, self string) {
		desired := splitPeers(desiredCSV)
		connected := splitPeers(connectedCSV)
		selfID := clusterlink.PeerID(self)

		desiredSet := clusterlink.NewPeerSet(desired...)
		connectedSet := clusterlink.NewPeerSet(connected...)

		tr := &fakeTransport{connected: connected}
		r := &Reconciler{Topology: "fuzz", Self: selfID, Transport: tr}

		if _, err := r.Connect(context.Background(), desired); err != nil {
			t.Fatal(err)
		}
		want := desiredSet.Difference(connectedSet).Without(selfID)
		if len(tr.connects) != want.Len() {
			t.Fatalf("connect calls = %v, want %v", tr.connects, want.Sorted())
		}
		for _, p := range tr.connects {
			if p == selfID || !want.Has(p) {
				t.Fatalf("unexpected connect target %q", p)
			}
		}

		if _, err := r.Disconnect(context.Background(), desired); err != nil {
			t.Fatal(err)
		}
		want = desiredSet.Intersect(connectedSet).Without(selfID)
		if len(tr.disconnects) != want.Len() {
			t.Fatalf("disconnect calls = %v, want %v", tr.disconnects, want.Sorted())
		}
		for _, p := range tr.disconnects {
			if p == selfID || !want.Has(p) {
				t.Fatalf("unexpected disconnect target %q", p)
			}
		}
	})
}
