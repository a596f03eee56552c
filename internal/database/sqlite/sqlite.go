// Package sqlite implements the attendance store on an embedded SQLite file.
// Concurrent writers are serialized by compare-and-swap on the record revision.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kozaktomas/face-attendance/internal/database"
)

const currentVersion = 2

func init() {
	database.RegisterBackend("sqlite", func(ctx context.Context, dsn string, opts database.OpenOptions) (database.Store, error) {
		return Open(ctx, dsn, opts)
	})
}

// Store is a database.Store backed by SQLite.
type Store struct {
	db  *sql.DB
	loc *time.Location
	now func() time.Time
}

var _ database.Store = (*Store)(nil)

// Open opens (or creates) the SQLite database at path and runs migrations.
func Open(ctx context.Context, path string, opts database.OpenOptions) (*Store, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	// Configure pragmas.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, loc: opts.Loc(), now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewMemory creates an in-memory store for testing.
func NewMemory(loc *time.Location) (*Store, error) {
	return Open(context.Background(), ":memory:", database.OpenOptions{Location: loc})
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	if version >= currentVersion {
		return nil
	}

	if version < 1 {
		if _, err := s.db.ExecContext(ctx, schemaV1); err != nil {
			return fmt.Errorf("migrate v1: %w", err)
		}
	}
	if version < 2 {
		if _, err := s.db.ExecContext(ctx, schemaV2); err != nil {
			return fmt.Errorf("migrate v2: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentVersion))
	return err
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS registrants (
	name       TEXT PRIMARY KEY,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);

CREATE TABLE IF NOT EXISTS attendance (
	name         TEXT NOT NULL REFERENCES registrants(name),
	date         TEXT NOT NULL,
	entry1_in    TEXT,
	entry1_out   TEXT,
	entry1_hours INTEGER,
	entry2_in    TEXT,
	entry2_out   TEXT,
	entry2_hours INTEGER,
	entry3_in    TEXT,
	entry3_out   TEXT,
	entry3_hours INTEGER,
	entry4_in    TEXT,
	entry4_out   TEXT,
	entry4_hours INTEGER,
	entry5_in    TEXT,
	entry5_out   TEXT,
	entry5_hours INTEGER,
	total_hours  INTEGER NOT NULL DEFAULT 0,
	status       TEXT NOT NULL DEFAULT 'Absent' CHECK (status IN ('Absent', 'Present')),
	revision     INTEGER NOT NULL DEFAULT 0,
	updated_at   TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
	PRIMARY KEY (name, date)
);

CREATE INDEX IF NOT EXISTS idx_attendance_date ON attendance(date);
`

const schemaV2 = `
CREATE TABLE IF NOT EXISTS registrant_faces (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL REFERENCES registrants(name),
	embedding  TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);

CREATE INDEX IF NOT EXISTS idx_registrant_faces_name ON registrant_faces(name);
`

// timeArg stores times as RFC 3339 text in UTC.
func timeArg(t time.Time) any {
	return t.UTC().Format(time.RFC3339)
}
