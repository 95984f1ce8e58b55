// Package store is the durable mirror of coordinator state: hosts, jobs,
// services, and the idempotency ledger, persisted to a single sqlite file.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/KairoCuan/skyclaw/internal/coordinator"
)

// Store is a sqlite-backed Durable mirror plus idempotency ledger.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at dbPath, applies
// pragmas recommended for durability under crash, runs embedded migrations,
// and returns a ready Store.
func Open(dbPath string) (*Store, error) {
	if err := runMigrations(dbPath); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer file; avoids SQLITE_BUSY under the coordinator's coarse lock

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ coordinator.Durable = (*Store)(nil)
