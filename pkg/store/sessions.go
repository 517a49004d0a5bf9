package store

import (
	"context"
	"fmt"
	"time"
)

// Session is one recorded link lifetime, from reactor start to reactor
// stop. After an unclean shutdown EndedAt stays nil and the loss counters
// stay 0.
type Session struct {
	ID         int64
	StartedAt  time.Time
	EndedAt    *time.Time
	LostFrames uint64
	BadFrames  uint64
}

// StartSession records the beginning of a new link session and returns its
// ID, used later to close it out via EndSession.
func (s *Store) StartSession(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO link_sessions DEFAULT VALUES`)
	if err != nil {
		return 0, fmt.Errorf("insert link_sessions: %w", err)
	}
	return res.LastInsertId()
}

// EndSession closes out a session with its final loss counters.
func (s *Store) EndSession(ctx context.Context, id int64, lostFrames, badFrames uint64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE link_sessions
		SET ended_at = datetime('now'), lost_frames = ?, bad_frames = ?
		WHERE id = ?
	`, lostFrames, badFrames, id)
	if err != nil {
		return fmt.Errorf("update link_sessions: %w", err)
	}
	return nil
}

// RecentSessions returns the most recent link sessions, newest first.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, ended_at, lost_frames, bad_frames
		FROM link_sessions
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query link_sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var startedAt string
		var endedAt *string
		if err := rows.Scan(&sess.ID, &startedAt, &endedAt, &sess.LostFrames, &sess.BadFrames); err != nil {
			return nil, fmt.Errorf("scan link_sessions row: %w", err)
		}
		sess.StartedAt, _ = time.Parse(time.DateTime, startedAt)
		if endedAt != nil {
			t, _ := time.Parse(time.DateTime, *endedAt)
			sess.EndedAt = &t
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}
