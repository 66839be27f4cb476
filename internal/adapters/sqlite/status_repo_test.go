package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/MythicalCosmic/smart-pos/internal/adapters/sqlite"
)

func TestSyncStatus_GetMissingReturnsNil(t *testing.T) {
	repo := sqlite.NewSyncStatusRepository(setupTestDB(t))

	status, err := repo.Get(context.Background(), "order", "branch-a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if status != nil {
		t.Error("expected nil for never-synced entity type")
	}
}

func TestSyncStatus_FailuresAccumulateAndResetOnSuccess(t *testing.T) {
	repo := sqlite.NewSyncStatusRepository(setupTestDB(t))
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := repo.RecordAttempt(ctx, "order", "branch-a", base.Add(time.Duration(i)*time.Minute), true); err != nil {
			t.Fatalf("RecordAttempt failed: %v", err)
		}
	}

	status, err := repo.Get(ctx, "order", "branch-a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if status.ConsecutiveFailures != 3 {
		t.Errorf("expected 3 consecutive failures, got %d", status.ConsecutiveFailures)
	}
	if status.Online() {
		t.Error("expected offline after failures")
	}

	success := base.Add(10 * time.Minute)
	if err := repo.RecordAttempt(ctx, "order", "branch-a", success, false); err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}

	status, err = repo.Get(ctx, "order", "branch-a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if status.ConsecutiveFailures != 0 {
		t.Errorf("expected failure counter reset, got %d", status.ConsecutiveFailures)
	}
	if !status.LastSuccessAt.Equal(success) {
		t.Errorf("expected success stamp %v, got %v", success, status.LastSuccessAt)
	}
	if !status.Online() {
		t.Error("expected online after success")
	}
}

func TestSyncStatus_AckedVersionNeverLowers(t *testing.T) {
	repo := sqlite.NewSyncStatusRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.SetAckedVersion(ctx, "order", "branch-a", 7); err != nil {
		t.Fatalf("SetAckedVersion failed: %v", err)
	}
	// A re-delivered old acknowledgement must not move the high-water mark back.
	if err := repo.SetAckedVersion(ctx, "order", "branch-a", 3); err != nil {
		t.Fatalf("SetAckedVersion failed: %v", err)
	}

	status, err := repo.Get(ctx, "order", "branch-a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if status.LastAckedVersion != 7 {
		t.Errorf("expected acked version 7, got %d", status.LastAckedVersion)
	}
}

func TestSyncStatus_PullCursorAndReset(t *testing.T) {
	repo := sqlite.NewSyncStatusRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.SetPullCursor(ctx, "order", "branch-a", "42"); err != nil {
		t.Fatalf("SetPullCursor failed: %v", err)
	}
	if err := repo.SetPullCursor(ctx, "product", "branch-a", "17"); err != nil {
		t.Fatalf("SetPullCursor failed: %v", err)
	}

	statuses, err := repo.List(ctx, "branch-a")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 status rows, got %d", len(statuses))
	}
	if statuses[0].EntityType != "order" || statuses[0].LastPullCursor != "42" {
		t.Errorf("unexpected first row: %+v", statuses[0])
	}

	if err := repo.Reset(ctx, "order", "branch-a"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	status, err := repo.Get(ctx, "order", "branch-a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if status != nil {
		t.Error("expected status row deleted after reset")
	}
}
