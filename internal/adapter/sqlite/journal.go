package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"clusterlink/internal/telemetry"
)

var _ telemetry.Sink = (*Store)(nil)

// Entry is one journaled event. Metadata numbers come back as float64.
type Entry struct {
	ID    int64
	At    time.Time
	Event telemetry.Event
}

// Handle appends ev to the journal. Failures are logged, not returned, so a
// full disk never blocks reconciliation.
func (s *Store) Handle(ev telemetry.Event) {
	if err := s.Append(context.Background(), ev); err != nil {
		slog.Warn("journal append failed", "event", ev.Name, "err", err)
	}
}

func (s *Store) Append(ctx context.Context, ev telemetry.Event) error {
	payload, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("marshal event metadata: %w", err)
	}
	at := ev.Measurements.SystemTime
	if at.IsZero() {
		at = s.clock.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (at, name, topology, peer, duration_ns, metadata_json) VALUES (?, ?, ?, ?, ?, ?)`,
		at.UTC().Format(time.RFC3339Nano),
		ev.Name,
		ev.Metadata.String(telemetry.KeyTopology),
		ev.Metadata.String(telemetry.KeyPeer),
		int64(ev.Measurements.Duration),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// List returns up to limit of the newest entries, newest first. An empty
// topology matches every topology.
func (s *Store) List(ctx context.Context, topology string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, at, name, duration_ns, metadata_json FROM events
WHERE ? = '' OR topology = ?
ORDER BY id DESC
LIMIT ?`, topology, topology, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0)
	for rows.Next() {
		var (
			e          Entry
			at         string
			durationNS int64
			mdJSON     string
		)
		if err := rows.Scan(&e.ID, &at, &e.Event.Name, &durationNS, &mdJSON); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		if e.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("parse event %d time: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(mdJSON), &e.Event.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal event %d metadata: %w", e.ID, err)
		}
		e.Event.Measurements.Duration = time.Duration(durationNS)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return out, nil
}

// Prune keeps the newest keep entries and deletes the rest.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM events WHERE id <= (SELECT COALESCE(MAX(id), 0) FROM events) - ?`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return n, nil
}
