// Package sqlite provides a SQLite store backend on database/sql with
// the modernc.org/sqlite driver. Suited to single-node deployments and
// integration tests; use :memory: for an ephemeral database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/outreachlab/cadence/store"
)

var _ store.Store = (*Store)(nil)

// Store is a SQLite implementation of store.Store.
type Store struct {
	db *sql.DB

	// ownsDB is set when Open created the connection; Close only closes
	// connections the Store owns.
	ownsDB bool
}

// New wraps an existing database handle. The caller keeps ownership of
// the handle; Close is a no-op.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens a SQLite database at the given DSN and returns a Store
// that owns the connection.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cadence/sqlite: open %q: %w", dsn, err)
	}
	// SQLite serializes writes; a single connection avoids SQLITE_BUSY
	// under concurrent sweeps.
	db.SetMaxOpenConns(1)
	return &Store{db: db, ownsDB: true}, nil
}

// DB returns the underlying handle for advanced usage.
func (s *Store) DB() *sql.DB { return s.db }

const schema = `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS cadence_jobs (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  id TEXT NOT NULL UNIQUE,
  trigger_id TEXT NOT NULL,
  entity_id TEXT NOT NULL,
  sequence_id TEXT NOT NULL,
  step_id TEXT NOT NULL,
  bindings TEXT NOT NULL DEFAULT '{}',
  state TEXT NOT NULL CHECK(state IN ('pending','sending','sent','failed')),
  fire_at DATETIME NOT NULL,
  attempts INTEGER NOT NULL DEFAULT 0,
  max_attempts INTEGER NOT NULL DEFAULT 3,
  last_error TEXT NOT NULL DEFAULT '',
  sent_at DATETIME,
  created_at DATETIME NOT NULL,
  updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cadence_jobs_due ON cadence_jobs(state, fire_at, seq);
CREATE INDEX IF NOT EXISTS idx_cadence_jobs_sequence ON cadence_jobs(sequence_id);
`

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("cadence/sqlite: migrate: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection if this Store opened it.
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

// ── helpers ──────────────────────────────────────────────────────

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
