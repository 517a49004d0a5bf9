package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/rethos/rethos/pkg/stats"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.StartSession(ctx)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := s.EndSession(ctx, id, 3, 1); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	sessions, err := s.RecentSessions(ctx, 10)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].LostFrames != 3 || sessions[0].BadFrames != 1 {
		t.Fatalf("unexpected counters: %+v", sessions[0])
	}
	if sessions[0].EndedAt == nil {
		t.Fatalf("expected EndedAt to be set")
	}
}

func TestMCUAddressHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.RecordMCUAddress(ctx, "fd00::2"); err != nil {
		t.Fatalf("RecordMCUAddress: %v", err)
	}
	if err := s.RecordMCUAddress(ctx, "fd00::2"); err != nil {
		t.Fatalf("RecordMCUAddress: %v", err)
	}

	latest, err := s.LatestMCUAddress(ctx)
	if err != nil {
		t.Fatalf("LatestMCUAddress: %v", err)
	}
	if latest.Address != "fd00::2" {
		t.Fatalf("unexpected address: %q", latest.Address)
	}

	history, err := s.RecentMCUAddresses(ctx, 10)
	if err != nil {
		t.Fatalf("RecentMCUAddresses: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(history))
	}
}

func TestStatsSnapshotHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	snap := stats.Snapshot{SerialReceived: 10, LostFrames: 2}
	if err := s.RecordSnapshot(ctx, snap); err != nil {
		t.Fatalf("RecordSnapshot: %v", err)
	}

	recent, err := s.RecentSnapshots(ctx, 5)
	if err != nil {
		t.Fatalf("RecentSnapshots: %v", err)
	}
	if len(recent) != 1 || recent[0].SerialReceived != 10 || recent[0].LostFrames != 2 {
		t.Fatalf("unexpected snapshot history: %+v", recent)
	}
}

func TestLatestMCUAddressNoneRecordedReturnsErrNoRows(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.LatestMCUAddress(context.Background()); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows when no address has ever been recorded, got %v", err)
	}
}
