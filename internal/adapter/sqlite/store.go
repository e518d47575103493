// Package sqlite persists the event journal in a local SQLite database.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"clusterlink/internal/telemetry"

	_ "modernc.org/sqlite"
)

type Store struct {
	db    *sql.DB
	clock telemetry.Clock
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal db journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal db busy timeout: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	at TEXT NOT NULL,
	name TEXT NOT NULL,
	topology TEXT NOT NULL DEFAULT '',
	peer TEXT NOT NULL DEFAULT '',
	duration_ns INTEGER NOT NULL DEFAULT 0,
	metadata_json TEXT NOT NULL
)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize events schema: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS events_topology ON events (topology, id)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize events index: %w", err)
	}

	return &Store{db: db, clock: telemetry.RealClock{}}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
