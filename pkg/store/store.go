// Package store persists link-session history, MCU address observations,
// and periodic stats snapshots to a local SQLite database, so the admin
// HTTP and MCP introspection surfaces can answer "what happened" questions
// the in-memory Collector alone cannot once the process restarts.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite connection holding REthos's history tables.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the SQLite database at path, in WAL mode with
// foreign keys enabled. An empty path opens an in-memory database, useful
// for tests and for runs where history does not need to survive restart.
func Open(path string) (*Store, error) {
	dsn := "file::memory:?cache=shared"
	if path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("store: create directory for %s: %w", path, err)
			}
		}
		dsn = fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path)
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if path == "" {
		sqlDB.SetMaxOpenConns(1) // keep the single in-memory database alive across connections
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	s := &Store{db: sqlDB, path: path}
	if err := s.migrate(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Path returns the database file path ("" for the in-memory database).
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// tx runs fn within a transaction, rolling back on error and committing
// otherwise.
func (s *Store) tx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}
	return tx.Commit()
}
