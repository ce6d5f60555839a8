// Package store implements the transactional sqlite-backed persistence
// layer described in spec §4.A: repos, categories, tasks, their invariants,
// and the typed StoreError taxonomy drivers and the Orchestrator rely on.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/maruel/ksid"
	_ "modernc.org/sqlite"

	"github.com/opencode-kanban/okb/internal/lock"
)

// Store wraps a single project's sqlite database.
type Store struct {
	db *sql.DB
}

// Open creates the database file (and parent directory) if needed, applies
// all idempotent migrations under a short-lived cross-process file lock,
// and returns a ready Store. Safe to call from multiple processes against
// the same path; only one will perform the migration work.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: creating data dir: %w", err)
	}

	release, err := lock.Acquire(ctx, path+".lock")
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	if err != nil {
		release()
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}
	// sqlite only supports one writer at a time; a single connection avoids
	// SQLITE_BUSY races inside a process without needing WAL tuning here.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		release()
		db.Close()
		return nil, fmt.Errorf("store: migrating %s: %w", path, err)
	}
	release()

	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func newID() string {
	return ksid.NewID()
}

func nowISO() string {
	return isoNow()
}
