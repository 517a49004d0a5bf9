package store

import (
	"context"
	"database/sql"
	"fmt"
)

const currentSchemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version     INTEGER PRIMARY KEY,
    applied_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS link_sessions (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at   TEXT NOT NULL DEFAULT (datetime('now')),
    ended_at     TEXT,
    lost_frames  INTEGER NOT NULL DEFAULT 0,
    bad_frames   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS mcu_addresses (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    address      TEXT NOT NULL,
    observed_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS stats_snapshots (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    taken_at           TEXT NOT NULL DEFAULT (datetime('now')),
    serial_received    INTEGER NOT NULL,
    domain_forwarded   INTEGER NOT NULL,
    domain_received    INTEGER NOT NULL,
    serial_forwarded   INTEGER NOT NULL,
    lost_frames        INTEGER NOT NULL,
    bad_frames         INTEGER NOT NULL,
    drop_notconnected  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_mcu_addresses_observed ON mcu_addresses(observed_at);
CREATE INDEX IF NOT EXISTS idx_stats_snapshots_taken ON stats_snapshots(taken_at);
`

func (s *Store) migrate(ctx context.Context) error {
	version, err := s.schemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}
	if version >= currentSchemaVersion {
		return nil
	}
	if version < 1 {
		if err := s.applySchemaV1(ctx); err != nil {
			return fmt.Errorf("apply schema v1: %w", err)
		}
	}
	return nil
}

func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'
	`).Scan(&count)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}

	var version int
	err = s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (s *Store) applySchemaV1(ctx context.Context) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schemaV1); err != nil {
			return fmt.Errorf("execute schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (1)`); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	})
}
