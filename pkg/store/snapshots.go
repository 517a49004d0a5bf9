package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rethos/rethos/pkg/stats"
)

// SnapshotRecord is one persisted stats snapshot.
type SnapshotRecord struct {
	TakenAt time.Time
	stats.Snapshot
}

// RecordSnapshot persists one global stats snapshot, taken on the 15s
// stats timer tick alongside the existing text/binary reporting.
func (s *Store) RecordSnapshot(ctx context.Context, snap stats.Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stats_snapshots
			(serial_received, domain_forwarded, domain_received, serial_forwarded, lost_frames, bad_frames, drop_notconnected)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		snap.SerialReceived, snap.DomainForwarded, snap.DomainReceived,
		snap.SerialForwarded, snap.LostFrames, snap.BadFrames, snap.DropNotConnected,
	)
	if err != nil {
		return fmt.Errorf("insert stats_snapshots: %w", err)
	}
	return nil
}

// RecentSnapshots returns the most recent stats snapshots, newest first.
func (s *Store) RecentSnapshots(ctx context.Context, limit int) ([]SnapshotRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT taken_at, serial_received, domain_forwarded, domain_received, serial_forwarded, lost_frames, bad_frames, drop_notconnected
		FROM stats_snapshots
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query stats_snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotRecord
	for rows.Next() {
		var rec SnapshotRecord
		var takenAt string
		if err := rows.Scan(
			&takenAt, &rec.SerialReceived, &rec.DomainForwarded, &rec.DomainReceived,
			&rec.SerialForwarded, &rec.LostFrames, &rec.BadFrames, &rec.DropNotConnected,
		); err != nil {
			return nil, fmt.Errorf("scan stats_snapshots row: %w", err)
		}
		rec.TakenAt, _ = time.Parse(time.DateTime, takenAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}
