package app_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/MythicalCosmic/smart-pos/internal/adapters/sqlite"
	"github.com/MythicalCosmic/smart-pos/internal/app"
	"github.com/MythicalCosmic/smart-pos/internal/core/backoff"
	"github.com/MythicalCosmic/smart-pos/internal/db"
	"github.com/MythicalCosmic/smart-pos/internal/models"
	"github.com/MythicalCosmic/smart-pos/internal/ports/primary"
	"github.com/MythicalCosmic/smart-pos/internal/ports/secondary"
)

func primaryOpts(appendOnly bool) primary.SyncableOptions {
	return primary.SyncableOptions{AppendOnly: appendOnly}
}

func commitReq(entityType, entityID string, op models.Operation, fields map[string]any) primary.CommitRequest {
	return primary.CommitRequest{
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  op,
		Fields:     fields,
	}
}

// branchFixture is a full branch-side engine wired against an in-memory
// database, the same way the daemon wires it.
type branchFixture struct {
	engine *app.EngineService
	queue  *sqlite.ChangeQueueRepository
	status *sqlite.SyncStatusRepository
	store  *sqlite.EntityStore
	audit  *sqlite.ConflictAuditRepository
}

func setupBranch(t *testing.T, branch string) *branchFixture {
	t.Helper()

	testDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if _, err := testDB.Exec(db.GetSchemaSQL()); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })

	f := &branchFixture{
		queue:  sqlite.NewChangeQueueRepository(testDB, branch),
		status: sqlite.NewSyncStatusRepository(testDB),
		store:  sqlite.NewEntityStore(testDB),
		audit:  sqlite.NewConflictAuditRepository(testDB),
	}
	f.engine = app.NewEngineService(branch, f.queue, f.status, f.store, sqlite.NewSessionRepository(testDB))
	f.engine.RegisterSyncable("product", nil, primaryOpts(false))
	f.engine.RegisterSyncable("order", nil, primaryOpts(false))
	f.engine.RegisterSyncable("payment", nil, primaryOpts(true))
	return f
}

func (f *branchFixture) newWorker(t *testing.T, cloud secondary.CloudTransport) *app.Worker {
	t.Helper()
	return app.NewWorker(app.WorkerOptions{
		Branch:       "branch-a",
		PushInterval: time.Hour,
		BatchSize:    10,
		PullLimit:    100,
		StaleTimeout: time.Minute,
		Backoff:      backoff.Policy{Base: time.Millisecond, Max: time.Millisecond},
	}, f.engine.Registry(), f.queue, f.status, f.store, f.audit, cloud)
}

func (f *branchFixture) commit(t *testing.T, entityType, entityID string, op models.Operation, fields map[string]any) *models.ChangeRecord {
	t.Helper()
	record, err := f.engine.OnLocalCommit(context.Background(), commitReq(entityType, entityID, op, fields))
	if err != nil {
		t.Fatalf("OnLocalCommit failed: %v", err)
	}
	if record == nil {
		t.Fatalf("expected a change record for %s/%s", entityType, entityID)
	}
	return record
}

// fakeCloud is a scriptable transport double.
type fakeCloud struct {
	pingErr error
	pushErr error
	pullErr error

	pushed   [][]*models.ChangeRecord
	result   *secondary.PushResult
	pullPage *secondary.PullResult
}

func (c *fakeCloud) Ping(ctx context.Context) error { return c.pingErr }

func (c *fakeCloud) Push(ctx context.Context, branch string, batch []*models.ChangeRecord) (*secondary.PushResult, error) {
	if c.pushErr != nil {
		return nil, c.pushErr
	}
	c.pushed = append(c.pushed, batch)
	if c.result != nil {
		return c.result, nil
	}
	ids := make([]string, len(batch))
	for i, r := range batch {
		ids[i] = r.ID
	}
	return &secondary.PushResult{AcceptedIDs: ids}, nil
}

func (c *fakeCloud) Pull(ctx context.Context, branch, cursor string, limit int) (*secondary.PullResult, error) {
	if c.pullErr != nil {
		return nil, c.pullErr
	}
	if c.pullPage == nil {
		return &secondary.PullResult{NextCursor: cursor}, nil
	}
	page := c.pullPage
	c.pullPage = nil
	return page, nil
}

var _ secondary.CloudTransport = (*fakeCloud)(nil)

func remoteChange(id, entityType, entityID, branch string, version int64, fields map[string]any) *models.ChangeRecord {
	payload := map[string]any{"is_deleted": false}
	for k, v := range fields {
		payload[k] = v
	}
	return &models.ChangeRecord{
		ID:             id,
		EntityType:     entityType,
		EntityID:       entityID,
		Operation:      models.OpUpdate,
		Payload:        payload,
		OriginBranch:   branch,
		LocalTimestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Version:        version,
	}
}
