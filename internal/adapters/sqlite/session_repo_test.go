package sqlite_test

import (
	"context"
	"testing"

	"github.com/MythicalCosmic/smart-pos/internal/adapters/sqlite"
	"github.com/MythicalCosmic/smart-pos/internal/models"
)

func TestSession_OpenClosesPrevious(t *testing.T) {
	repo := sqlite.NewSessionRepository(setupTestDB(t))
	ctx := context.Background()

	first := &models.ActiveSession{Branch: "branch-a", Cashier: "aziz", ShiftRef: "morning"}
	if err := repo.Open(ctx, first); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	second := &models.ActiveSession{Branch: "branch-a", Cashier: "dilnoza", ShiftRef: "evening"}
	if err := repo.Open(ctx, second); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	current, err := repo.Current(ctx)
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if current == nil || current.ID != second.ID {
		t.Fatalf("expected second session to be current, got %+v", current)
	}
	if current.Cashier != "dilnoza" || current.ShiftRef != "evening" {
		t.Errorf("unexpected session fields: %+v", current)
	}
	if !current.Open() {
		t.Error("expected current session to be open")
	}
}

func TestSession_CloseAndNoCurrent(t *testing.T) {
	repo := sqlite.NewSessionRepository(setupTestDB(t))
	ctx := context.Background()

	// Closing with nothing open is a no-op.
	if err := repo.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := repo.Open(ctx, &models.ActiveSession{Branch: "branch-a", Cashier: "aziz"}); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := repo.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	current, err := repo.Current(ctx)
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if current != nil {
		t.Errorf("expected no open session, got %+v", current)
	}
}
