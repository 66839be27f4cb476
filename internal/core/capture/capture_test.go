package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MythicalCosmic/smart-pos/internal/models"
	"github.com/MythicalCosmic/smart-pos/internal/ports/primary"
	"github.com/MythicalCosmic/smart-pos/internal/ports/secondary"
)

type fakeQueue struct {
	records    []*models.ChangeRecord
	enqueueErr error
}

func (q *fakeQueue) Enqueue(ctx context.Context, record *models.ChangeRecord) error {
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.records = append(q.records, record)
	return nil
}

type fakeStore struct {
	versions map[string]int64
	applied  []*secondary.EntityRecord
	applyErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{versions: make(map[string]int64)}
}

func (s *fakeStore) NextVersion(ctx context.Context, entityType, entityID string) (int64, error) {
	key := entityType + "/" + entityID
	s.versions[key]++
	return s.versions[key], nil
}

func (s *fakeStore) Apply(ctx context.Context, record *secondary.EntityRecord) error {
	if s.applyErr != nil {
		return s.applyErr
	}
	s.applied = append(s.applied, record)
	return nil
}

func fixedNow() time.Time {
	return time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
}

func newTestCapturer(queue *fakeQueue, store *fakeStore) *Capturer {
	registry := NewRegistry()
	registry.Register("product", nil, primary.SyncableOptions{})
	registry.Register("order", nil, primary.SyncableOptions{})
	return New(registry, queue, store, "branch-a", fixedNow)
}

func TestCapture_ProducesChangeRecord(t *testing.T) {
	queue := &fakeQueue{}
	store := newFakeStore()
	c := newTestCapturer(queue, store)

	record, err := c.Capture(context.Background(), primary.CommitRequest{
		EntityType: "order",
		EntityID:   "ord-501",
		Operation:  models.OpCreate,
		Fields:     map[string]any{"number": "501", "total": "129000.00"},
	})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	if record.Version != 1 {
		t.Errorf("expected version 1, got %d", record.Version)
	}
	if record.OriginBranch != "branch-a" {
		t.Errorf("expected origin branch-a, got %s", record.OriginBranch)
	}
	if record.Status != models.ChangePending {
		t.Errorf("expected pending status, got %s", record.Status)
	}
	if deleted, _ := record.Payload["is_deleted"].(bool); deleted {
		t.Error("create must not carry a tombstone")
	}
	if len(queue.records) != 1 {
		t.Fatalf("expected 1 queued record, got %d", len(queue.records))
	}
}

func TestCapture_UnregisteredTypeIsNoOp(t *testing.T) {
	queue := &fakeQueue{}
	c := newTestCapturer(queue, newFakeStore())

	record, err := c.Capture(context.Background(), primary.CommitRequest{
		EntityType: "kitchen_display_layout",
		EntityID:   "kd-1",
		Operation:  models.OpUpdate,
		Fields:     map[string]any{},
	})
	if err != nil {
		t.Fatalf("expected no-op, got error: %v", err)
	}
	if record != nil {
		t.Error("expected nil record for unregistered type")
	}
	if len(queue.records) != 0 {
		t.Error("unregistered type must not enqueue")
	}
}

func TestCapture_VersionIncrementsPerEntity(t *testing.T) {
	queue := &fakeQueue{}
	c := newTestCapturer(queue, newFakeStore())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.Capture(ctx, primary.CommitRequest{
			EntityType: "product",
			EntityID:   "prod-x",
			Operation:  models.OpUpdate,
			Fields:     map[string]any{"price": i},
		}); err != nil {
			t.Fatalf("Capture failed: %v", err)
		}
	}
	// A different entity has its own counter.
	record, err := c.Capture(ctx, primary.CommitRequest{
		EntityType: "product",
		EntityID:   "prod-y",
		Operation:  models.OpCreate,
		Fields:     map[string]any{},
	})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	if queue.records[2].Version != 3 {
		t.Errorf("expected third update at version 3, got %d", queue.records[2].Version)
	}
	if record.Version != 1 {
		t.Errorf("expected independent counter at version 1, got %d", record.Version)
	}
}

func TestCapture_QueueFailureFailsTheWrite(t *testing.T) {
	queueErr := &secondary.QueueWriteError{Err: errors.New("disk full")}
	queue := &fakeQueue{enqueueErr: queueErr}
	store := newFakeStore()
	c := newTestCapturer(queue, store)

	_, err := c.Capture(context.Background(), primary.CommitRequest{
		EntityType: "order",
		EntityID:   "ord-502",
		Operation:  models.OpCreate,
		Fields:     map[string]any{},
	})

	var qwe *secondary.QueueWriteError
	if !errors.As(err, &qwe) {
		t.Fatalf("expected QueueWriteError to propagate, got %v", err)
	}
	if len(queue.records) != 0 {
		t.Error("no record may be queued when the write fails")
	}
}

func TestCapture_MirrorFailurePreventsEnqueue(t *testing.T) {
	// The queue append is the last step: a capture that fails before it
	// must leave nothing behind that would still be pushed.
	queue := &fakeQueue{}
	store := newFakeStore()
	store.applyErr = errors.New("database is locked")
	c := newTestCapturer(queue, store)

	_, err := c.Capture(context.Background(), primary.CommitRequest{
		EntityType: "order",
		EntityID:   "ord-505",
		Operation:  models.OpCreate,
		Fields:     map[string]any{},
	})
	if err == nil {
		t.Fatal("expected mirror failure to fail the capture")
	}
	if len(queue.records) != 0 {
		t.Error("failed capture must not leave a queued record")
	}
}

func TestCapture_DeleteCarriesTombstone(t *testing.T) {
	queue := &fakeQueue{}
	c := newTestCapturer(queue, newFakeStore())

	record, err := c.Capture(context.Background(), primary.CommitRequest{
		EntityType: "product",
		EntityID:   "prod-x",
		Operation:  models.OpDelete,
		Fields:     map[string]any{"name": "lagman"},
	})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	if !record.Tombstone() {
		t.Error("expected delete record to be a tombstone")
	}
	if record.Payload["name"] != "lagman" {
		t.Error("tombstone must still carry the full field set")
	}
}

func TestCapture_SerializerFallback(t *testing.T) {
	type order struct {
		Number string
		Total  string
	}

	registry := NewRegistry()
	registry.Register("order", func(entity any) (map[string]any, error) {
		o, ok := entity.(*order)
		if !ok {
			return nil, errors.New("not an order")
		}
		return map[string]any{"number": o.Number, "total": o.Total}, nil
	}, primary.SyncableOptions{})

	queue := &fakeQueue{}
	c := New(registry, queue, newFakeStore(), "branch-a", fixedNow)

	record, err := c.Capture(context.Background(), primary.CommitRequest{
		EntityType: "order",
		EntityID:   "ord-503",
		Operation:  models.OpCreate,
		Entity:     &order{Number: "503", Total: "42000.00"},
	})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if record.Payload["number"] != "503" {
		t.Errorf("expected serialized number, got %v", record.Payload["number"])
	}
}

func TestCapture_InvalidOperation(t *testing.T) {
	c := newTestCapturer(&fakeQueue{}, newFakeStore())

	_, err := c.Capture(context.Background(), primary.CommitRequest{
		EntityType: "order",
		EntityID:   "ord-504",
		Operation:  models.Operation("upsert"),
		Fields:     map[string]any{},
	})
	if err == nil {
		t.Error("expected error for invalid operation")
	}
}

func TestRegistry_DeliveryOrder(t *testing.T) {
	registry := NewRegistry()
	registry.Register("user", nil, primary.SyncableOptions{})
	registry.Register("product", nil, primary.SyncableOptions{})
	registry.Register("order", nil, primary.SyncableOptions{})

	// Re-registering must not move a type to the back of the order.
	registry.Register("user", nil, primary.SyncableOptions{})

	got := registry.Registered()
	want := []string{"user", "product", "order"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}

	if registry.DeliveryRank("product") != 1 {
		t.Errorf("expected product at rank 1, got %d", registry.DeliveryRank("product"))
	}
	if registry.DeliveryRank("unknown") != 3 {
		t.Errorf("expected unknown types to sort last, got %d", registry.DeliveryRank("unknown"))
	}
}

func TestRegistry_AppendOnly(t *testing.T) {
	registry := NewRegistry()
	registry.Register("payment", nil, primary.SyncableOptions{AppendOnly: true})
	registry.Register("order", nil, primary.SyncableOptions{})

	if !registry.AppendOnly("payment") {
		t.Error("expected payment to be append-only")
	}
	if registry.AppendOnly("order") {
		t.Error("expected order to be last-writer-wins")
	}
}
