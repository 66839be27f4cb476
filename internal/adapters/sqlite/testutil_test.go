// Package sqlite_test contains integration tests for SQLite repositories.
//
// # Schema Protection
//
// This file is the SINGLE POINT where the database schema is loaded for
// tests. All test setup functions use db.GetSchemaSQL() to ensure tests run
// against the authoritative schema, preventing drift between test and
// production.
package sqlite_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/MythicalCosmic/smart-pos/internal/adapters/sqlite"
	"github.com/MythicalCosmic/smart-pos/internal/db"
	"github.com/MythicalCosmic/smart-pos/internal/models"
)

// setupTestDB creates an in-memory database with the authoritative schema.
// This is the single shared test database setup function for all repository
// tests. Uses db.GetSchemaSQL() to prevent test schemas from drifting.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	testDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	// Use the authoritative schema from schema.go
	_, err = testDB.Exec(db.GetSchemaSQL())
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		testDB.Close()
	})

	return testDB
}

// enqueueChange appends a change record through the repository and returns it.
func enqueueChange(t *testing.T, queue *sqlite.ChangeQueueRepository, entityType, entityID string, op models.Operation, version int64) *models.ChangeRecord {
	t.Helper()

	record := &models.ChangeRecord{
		EntityType:     entityType,
		EntityID:       entityID,
		Operation:      op,
		Payload:        map[string]any{"name": "test", "is_deleted": op == models.OpDelete},
		OriginBranch:   "branch-a",
		LocalTimestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Version:        version,
	}
	if err := queue.Enqueue(context.Background(), record); err != nil {
		t.Fatalf("failed to enqueue: %v", err)
	}
	return record
}
