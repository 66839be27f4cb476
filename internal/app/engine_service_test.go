package app_test

import (
	"context"
	"testing"

	"github.com/MythicalCosmic/smart-pos/internal/models"
	"github.com/MythicalCosmic/smart-pos/internal/ports/secondary"
)

func TestEngine_CommitEnqueuesAndMirrors(t *testing.T) {
	f := setupBranch(t, "branch-a")
	ctx := context.Background()

	record := f.commit(t, "order", "ord-1", models.OpCreate, map[string]any{"number": "1"})
	if record.ID != models.ChangeID("branch-a", record.Seq) {
		t.Errorf("unexpected change id %s", record.ID)
	}

	got, err := f.store.Get(ctx, "order", "ord-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil || got.Version != 1 {
		t.Fatalf("expected mirrored state at version 1, got %+v", got)
	}
}

func TestEngine_UnregisteredCommitIsNoOp(t *testing.T) {
	f := setupBranch(t, "branch-a")

	record, err := f.engine.OnLocalCommit(context.Background(),
		commitReq("printer_config", "p-1", models.OpUpdate, map[string]any{}))
	if err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	if record != nil {
		t.Error("expected nil record for unregistered type")
	}
}

func TestEngine_StatusReportAggregates(t *testing.T) {
	f := setupBranch(t, "branch-a")
	ctx := context.Background()

	f.commit(t, "order", "ord-1", models.OpCreate, map[string]any{"number": "1"})
	f.commit(t, "order", "ord-2", models.OpCreate, map[string]any{"number": "2"})
	f.commit(t, "product", "prod-1", models.OpCreate, map[string]any{"name": "plov"})

	report, err := f.engine.StatusReport(ctx)
	if err != nil {
		t.Fatalf("StatusReport failed: %v", err)
	}
	if report.Branch != "branch-a" {
		t.Errorf("unexpected branch %s", report.Branch)
	}
	if report.PendingTotal != 3 {
		t.Errorf("expected 3 pending, got %d", report.PendingTotal)
	}
	if report.PendingByType["order"] != 2 {
		t.Errorf("expected 2 pending orders, got %d", report.PendingByType["order"])
	}
	if report.Online {
		t.Error("expected offline before any sync attempt")
	}
}

func TestEngine_ForceResyncDropsTypeState(t *testing.T) {
	f := setupBranch(t, "branch-a")
	ctx := context.Background()

	f.commit(t, "order", "ord-1", models.OpCreate, map[string]any{"number": "1"})
	f.commit(t, "product", "prod-1", models.OpCreate, map[string]any{"name": "plov"})

	if err := f.engine.ForceResync(ctx, "order"); err != nil {
		t.Fatalf("ForceResync failed: %v", err)
	}

	report, err := f.engine.StatusReport(ctx)
	if err != nil {
		t.Fatalf("StatusReport failed: %v", err)
	}
	if report.PendingByType["order"] != 0 {
		t.Error("expected order queue cleared")
	}
	if report.PendingByType["product"] != 1 {
		t.Error("resync must not touch other entity types")
	}

	if err := f.engine.ForceResync(ctx, ""); err == nil {
		t.Error("expected error for empty entity type")
	}
}

func TestEngine_ForceResyncRewindsPullCursor(t *testing.T) {
	f := setupBranch(t, "branch-a")
	ctx := context.Background()

	// A cycle that consumed the feed leaves the cursor advanced.
	cloud := &fakeCloud{pullPage: &secondary.PullResult{
		Records: []*models.ChangeRecord{
			remoteChange("branch-b-000000000001", "product", "prod-9", "branch-b", 1, map[string]any{"name": "shashlik"}),
		},
		NextCursor: "7",
	}}
	if err := f.newWorker(t, cloud).RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if err := f.engine.ForceResync(ctx, "product"); err != nil {
		t.Fatalf("ForceResync failed: %v", err)
	}

	// The cursor must be rewound, or the feed is never replayed and
	// nothing rebuilds after the reset.
	status, err := f.status.Get(ctx, "_feed", "branch-a")
	if err != nil {
		t.Fatalf("status Get failed: %v", err)
	}
	if status != nil && status.LastPullCursor != "" {
		t.Fatalf("expected pull cursor rewound, got %q", status.LastPullCursor)
	}
}

func TestEngine_SessionLifecycle(t *testing.T) {
	f := setupBranch(t, "branch-a")
	ctx := context.Background()

	if _, err := f.engine.OpenSession(ctx, "", ""); err == nil {
		t.Error("expected error for empty cashier")
	}

	session, err := f.engine.OpenSession(ctx, "aziz", "morning")
	if err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}
	if session.Branch != "branch-a" || !session.Open() {
		t.Fatalf("unexpected session: %+v", session)
	}

	current, err := f.engine.CurrentSession(ctx)
	if err != nil {
		t.Fatalf("CurrentSession failed: %v", err)
	}
	if current == nil || current.ID != session.ID {
		t.Fatalf("expected open session, got %+v", current)
	}

	if err := f.engine.CloseSession(ctx); err != nil {
		t.Fatalf("CloseSession failed: %v", err)
	}
	current, err = f.engine.CurrentSession(ctx)
	if err != nil {
		t.Fatalf("CurrentSession failed: %v", err)
	}
	if current != nil {
		t.Error("expected no session after close")
	}
}
