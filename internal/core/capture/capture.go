// Package capture intercepts committed local mutations and turns them into
// queued change records. Capture sits inside the write's durability
// boundary: a mutation whose change record cannot be queued must fail,
// otherwise the branch diverges silently from the cloud.
package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MythicalCosmic/smart-pos/internal/models"
	"github.com/MythicalCosmic/smart-pos/internal/ports/primary"
	"github.com/MythicalCosmic/smart-pos/internal/ports/secondary"
)

// Queue is the slice of the change queue the capturer needs.
type Queue interface {
	Enqueue(ctx context.Context, record *models.ChangeRecord) error
}

// Store is the slice of the entity store the capturer needs.
type Store interface {
	NextVersion(ctx context.Context, entityType, entityID string) (int64, error)
	Apply(ctx context.Context, record *secondary.EntityRecord) error
}

// Registry holds the syncable entity types in registration order.
// Registration order is delivery order: parents before dependents, the
// same way the original deployment synced users and products before
// orders and order items.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]registration
}

type registration struct {
	serializer primary.Serializer
	opts       primary.SyncableOptions
}

// NewRegistry creates an empty syncable registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

// Register adds an entity type. Re-registering replaces the serializer but
// keeps the original position in the delivery order.
func (r *Registry) Register(entityType string, serializer primary.Serializer, opts primary.SyncableOptions) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[entityType]; !ok {
		r.order = append(r.order, entityType)
	}
	r.entries[entityType] = registration{serializer: serializer, opts: opts}
}

// Registered returns entity types in registration order.
func (r *Registry) Registered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Lookup returns the serializer and options for a type.
func (r *Registry) Lookup(entityType string) (primary.Serializer, primary.SyncableOptions, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[entityType]
	return reg.serializer, reg.opts, ok
}

// AppendOnly reports whether a type was registered append-only.
func (r *Registry) AppendOnly(entityType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[entityType].opts.AppendOnly
}

// DeliveryRank returns the position of a type in the delivery order.
// Unregistered types sort last.
func (r *Registry) DeliveryRank(entityType string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i, name := range r.order {
		if name == entityType {
			return i
		}
	}
	return len(r.order)
}

// Capturer produces change records from committed mutations.
type Capturer struct {
	registry *Registry
	queue    Queue
	store    Store
	branch   string
	now      func() time.Time
}

// New creates a Capturer for one branch. now may be nil for wall clock.
func New(registry *Registry, queue Queue, store Store, branch string, now func() time.Time) *Capturer {
	if now == nil {
		now = time.Now
	}
	return &Capturer{
		registry: registry,
		queue:    queue,
		store:    store,
		branch:   branch,
		now:      now,
	}
}

// Capture turns one committed mutation into a queued change record.
//
// Returns (nil, nil) for entity types that are not registered as syncable.
// Side effect: bumps the entity's branch-local version counter and mirrors
// the post-mutation state into the entity store so pulls can detect
// concurrent edits.
func (c *Capturer) Capture(ctx context.Context, req primary.CommitRequest) (*models.ChangeRecord, error) {
	serializer, _, ok := c.registry.Lookup(req.EntityType)
	if !ok {
		return nil, nil
	}

	if req.EntityID == "" {
		return nil, fmt.Errorf("capture %s: entity id is empty", req.EntityType)
	}
	if !req.Operation.Valid() {
		return nil, fmt.Errorf("capture %s/%s: invalid operation %q", req.EntityType, req.EntityID, req.Operation)
	}

	fields := req.Fields
	if fields == nil {
		if req.Entity == nil {
			return nil, fmt.Errorf("capture %s/%s: no fields and no entity", req.EntityType, req.EntityID)
		}
		if serializer == nil {
			return nil, fmt.Errorf("capture %s/%s: no serializer registered", req.EntityType, req.EntityID)
		}
		var err error
		fields, err = serializer(req.Entity)
		if err != nil {
			return nil, fmt.Errorf("capture %s/%s: serialize: %w", req.EntityType, req.EntityID, err)
		}
	}

	// Tombstones travel as a full payload too, so replay stays idempotent.
	payload := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	payload["is_deleted"] = req.Operation == models.OpDelete

	version, err := c.store.NextVersion(ctx, req.EntityType, req.EntityID)
	if err != nil {
		return nil, fmt.Errorf("capture %s/%s: version counter: %w", req.EntityType, req.EntityID, err)
	}

	now := c.now()
	record := &models.ChangeRecord{
		EntityType:     req.EntityType,
		EntityID:       req.EntityID,
		Operation:      req.Operation,
		Payload:        payload,
		OriginBranch:   c.branch,
		LocalTimestamp: now,
		Version:        version,
		Status:         models.ChangePending,
	}

	// Mirror first, enqueue last. The queue append is the durable step:
	// when Capture reports failure, nothing may be left behind that would
	// still be pushed. A stale mirror is overwritten by the next capture;
	// a queued record is not recallable.
	if err := c.store.Apply(ctx, &secondary.EntityRecord{
		EntityType:   req.EntityType,
		EntityID:     req.EntityID,
		Payload:      payload,
		Version:      version,
		OriginBranch: c.branch,
		Deleted:      req.Operation == models.OpDelete,
		UpdatedAt:    now,
	}); err != nil {
		return nil, fmt.Errorf("capture %s/%s: mirror state: %w", req.EntityType, req.EntityID, err)
	}

	// Queue append failure propagates: the triggering write must fail.
	if err := c.queue.Enqueue(ctx, record); err != nil {
		return nil, err
	}

	return record, nil
}
