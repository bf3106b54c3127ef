package api

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/omerbl/trackd/internal/audit"
	"github.com/omerbl/trackd/internal/engine"
	"github.com/omerbl/trackd/internal/models"
	"github.com/omerbl/trackd/internal/store"
)

func newTestService(t *testing.T, policy ConflictPolicy) *Service {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewService(s, audit.NewTrail(s), policy)
}

func TestStartEntryRequiresOwner(t *testing.T) {
	svc := newTestService(t, ConflictReject)

	_, err := svc.StartEntry(context.Background(), engine.StartRequest{})
	if err != ErrOwnerRequired {
		t.Errorf("Expected ErrOwnerRequired, got %v", err)
	}
}

func TestStartEntrySnapshotsRate(t *testing.T) {
	svc := newTestService(t, ConflictReject)
	ctx := context.Background()

	err := svc.PutProfile(ctx, models.Profile{OwnerID: "owner-1", HourlyRate: 150})
	if err != nil {
		t.Fatalf("PutProfile failed: %v", err)
	}

	entry, err := svc.StartEntry(ctx, engine.StartRequest{OwnerID: "owner-1", Description: "תכנון"})
	if err != nil {
		t.Fatalf("StartEntry failed: %v", err)
	}
	if entry.HourlyRate == nil || *entry.HourlyRate != 150 {
		t.Errorf("Expected snapshotted rate 150, got %v", entry.HourlyRate)
	}

	// A later rate change must not affect the existing entry
	if err := svc.PutProfile(ctx, models.Profile{OwnerID: "owner-1", HourlyRate: 200}); err != nil {
		t.Fatalf("PutProfile failed: %v", err)
	}
	got, err := svc.GetEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if got.HourlyRate == nil || *got.HourlyRate != 150 {
		t.Errorf("Rate snapshot changed after profile update: %v", got.HourlyRate)
	}
}

func TestStartEntryWithoutProfileHasNoRate(t *testing.T) {
	svc := newTestService(t, ConflictReject)

	entry, err := svc.StartEntry(context.Background(), engine.StartRequest{OwnerID: "owner-1"})
	if err != nil {
		t.Fatalf("StartEntry failed: %v", err)
	}
	if entry.HourlyRate != nil {
		t.Errorf("Expected no rate, got %v", *entry.HourlyRate)
	}
}

func TestConflictRejectPolicy(t *testing.T) {
	svc := newTestService(t, ConflictReject)
	ctx := context.Background()

	first, err := svc.StartEntry(ctx, engine.StartRequest{OwnerID: "owner-1"})
	if err != nil {
		t.Fatalf("First StartEntry failed: %v", err)
	}

	_, err = svc.StartEntry(ctx, engine.StartRequest{OwnerID: "owner-1"})
	if err != ErrTimerAlreadyRunning {
		t.Errorf("Expected ErrTimerAlreadyRunning, got %v", err)
	}

	// The first entry is untouched
	running, err := svc.RunningEntry(ctx, "owner-1")
	if err != nil {
		t.Fatalf("RunningEntry failed: %v", err)
	}
	if running == nil || running.ID != first.ID {
		t.Error("Expected the first entry to still be running")
	}
}

func TestConflictStopPreviousPolicy(t *testing.T) {
	svc := newTestService(t, ConflictStopPrevious)
	ctx := context.Background()

	first, err := svc.StartEntry(ctx, engine.StartRequest{OwnerID: "owner-1"})
	if err != nil {
		t.Fatalf("First StartEntry failed: %v", err)
	}

	second, err := svc.StartEntry(ctx, engine.StartRequest{OwnerID: "owner-1"})
	if err != nil {
		t.Fatalf("Second StartEntry failed: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("Expected a new entry")
	}

	// The previous entry was closed at handover
	closed, err := svc.GetEntry(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if closed.IsRunning {
		t.Error("Previous entry should have been stopped")
	}
	if closed.EndTime == nil || closed.DurationMinutes == nil {
		t.Error("Previous entry should be completed with a derived duration")
	}

	running, _ := svc.RunningEntry(ctx, "owner-1")
	if running == nil || running.ID != second.ID {
		t.Error("Expected the new entry to be the running one")
	}
}

func TestDeleteEntryNotFound(t *testing.T) {
	svc := newTestService(t, ConflictReject)

	err := svc.DeleteEntry(context.Background(), "missing-id")
	if err != ErrEntryNotFound {
		t.Errorf("Expected ErrEntryNotFound, got %v", err)
	}
}

func TestSummaryIncludesLiveMinutes(t *testing.T) {
	svc := newTestService(t, ConflictReject)
	ctx := context.Background()

	// A completed 30-minute entry earlier today
	now := time.Now().Truncate(time.Second)
	entry, err := svc.store.CreateEntry(store.NewEntry{OwnerID: "owner-1", StartTime: now.Add(-90 * time.Minute)})
	if err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}
	end := entry.StartTime.Add(30 * time.Minute)
	running := false
	if _, err := svc.store.UpdateEntry(entry.ID, models.EntryPatch{EndTime: &end, IsRunning: &running}); err != nil {
		t.Fatalf("UpdateEntry failed: %v", err)
	}

	// Plus a running entry that started 10 minutes ago
	if _, err := svc.store.CreateEntry(store.NewEntry{OwnerID: "owner-1", StartTime: now.Add(-10 * time.Minute)}); err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}

	summary, err := svc.Summary(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if summary.LiveMinutes != 10 {
		t.Errorf("Expected 10 live minutes, got %d", summary.LiveMinutes)
	}
	if summary.TodayMinutes != 40 {
		t.Errorf("Expected 40 today minutes, got %d", summary.TodayMinutes)
	}
	if summary.WeekMinutes != 40 {
		t.Errorf("Expected 40 week minutes, got %d", summary.WeekMinutes)
	}
}

func TestStopWritesAuditRecord(t *testing.T) {
	svc := newTestService(t, ConflictReject)
	ctx := context.Background()

	entry, err := svc.StartEntry(ctx, engine.StartRequest{OwnerID: "owner-1"})
	if err != nil {
		t.Fatalf("StartEntry failed: %v", err)
	}

	end := entry.StartTime.Add(5 * time.Minute)
	running := false
	if _, err := svc.UpdateEntry(ctx, entry.ID, models.EntryPatch{EndTime: &end, IsRunning: &running}); err != nil {
		t.Fatalf("UpdateEntry failed: %v", err)
	}

	recs, err := svc.AuditLog(ctx, "owner-1", 10)
	if err != nil {
		t.Fatalf("AuditLog failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Expected 2 audit records, got %d", len(recs))
	}
	actions := map[string]bool{}
	for _, r := range recs {
		actions[r.Action] = true
	}
	if !actions["entry.start"] || !actions["entry.stop"] {
		t.Errorf("Expected start and stop actions, got %v", actions)
	}
}
