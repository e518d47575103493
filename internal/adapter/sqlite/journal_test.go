package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"clusterlink/internal/adapter/fake"
	"clusterlink/internal/telemetry"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "state", "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	store.clock = fake.NewSteppingClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), time.Second)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestJournal_HandleAndList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	store.Handle(telemetry.Event{
		Name:         telemetry.EventConnectOK,
		Measurements: telemetry.Measurements{Duration: 3 * time.Millisecond},
		Metadata:     telemetry.Metadata{telemetry.KeyTopology: "k8s", telemetry.KeyPeer: "app@a"},
	})
	store.Handle(telemetry.Event{
		Name:     telemetry.EventConnectError,
		Metadata: telemetry.Metadata{telemetry.KeyTopology: "k8s", telemetry.KeyPeer: "app@b", telemetry.KeyReason: "unreachable"},
	})
	store.Handle(telemetry.Event{
		Name:     "poll.stop",
		Metadata: telemetry.Metadata{telemetry.KeyTopology: "dns", telemetry.KeyNodesDiscovered: 2},
	})

	all, err := store.List(ctx, "", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List returned %d entries, want 3", len(all))
	}
	if all[0].Event.Name != "poll.stop" {
		t.Errorf("newest entry = %q, want poll.stop", all[0].Event.Name)
	}
	if got, _ := all[0].Event.Metadata[telemetry.KeyNodesDiscovered].(float64); got != 2 {
		t.Errorf("nodes_discovered = %v, want 2", all[0].Event.Metadata[telemetry.KeyNodesDiscovered])
	}

	k8s, err := store.List(ctx, "k8s", 10)
	if err != nil {
		t.Fatalf("List(k8s): %v", err)
	}
	if len(k8s) != 2 {
		t.Fatalf("List(k8s) returned %d entries, want 2", len(k8s))
	}
	last := k8s[1]
	if last.Event.Measurements.Duration != 3*time.Millisecond {
		t.Errorf("duration = %v, want 3ms", last.Event.Measurements.Duration)
	}
	if last.Event.Metadata.String(telemetry.KeyPeer) != "app@a" {
		t.Errorf("peer = %v", last.Event.Metadata[telemetry.KeyPeer])
	}
	if !k8s[0].At.After(last.At) {
		t.Errorf("entries not ordered by time: %v then %v", k8s[0].At, last.At)
	}
}

func TestJournal_StartEventsUseSystemTime(t *testing.T) {
	store := openTestStore(t)
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store.Handle(telemetry.Event{Name: "poll.start", Measurements: telemetry.Measurements{SystemTime: at}})

	entries, err := store.List(context.Background(), "", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || !entries[0].At.Equal(at) {
		t.Fatalf("entries = %+v, want one at %v", entries, at)
	}
}

func TestJournal_Prune(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	for range 5 {
		if err := store.Append(ctx, telemetry.Event{Name: telemetry.EventConnectOK}); err != nil {
			t.Fatal(err)
		}
	}

	n, err := store.Prune(ctx, 2)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 3 {
		t.Errorf("Prune deleted %d rows, want 3", n)
	}
	entries, err := store.List(ctx, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].ID != 5 {
		t.Fatalf("remaining entries = %+v", entries)
	}
}

func TestJournal_ReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	store, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Append(context.Background(), telemetry.Event{Name: telemetry.EventDisconnectOK}); err != nil {
		t.Fatal(err)
	}
	store.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	entries, err := reopened.List(context.Background(), "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Event.Name != telemetry.EventDisconnectOK {
		t.Fatalf("entries after reopen = %+v", entries)
	}
}
