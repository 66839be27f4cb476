// Package primary defines the primary ports (driving interfaces) exposed
// by the sync engine to the rest of the POS system.
package primary

import (
	"context"
	"time"

	"github.com/MythicalCosmic/smart-pos/internal/models"
)

// Serializer converts an application entity into the flat field set that
// travels in a change record payload. Registered per entity type.
type Serializer func(entity any) (map[string]any, error)

// SyncableOptions tune how an entity type participates in sync.
type SyncableOptions struct {
	// AppendOnly marks financial record types (payments, cash
	// collections) whose rows must never be overwritten by a remote
	// winner. Conflicting versions are both kept and audited.
	AppendOnly bool
}

// CommitRequest describes one committed local mutation handed to the
// engine by the persistence layer.
type CommitRequest struct {
	EntityType string
	EntityID   string
	Operation  models.Operation

	// Fields is the full post-mutation field set. When nil, Entity is run
	// through the type's registered serializer instead.
	Fields map[string]any
	Entity any
}

// SyncEngine is the collaborator interface exposed to the rest of the
// system. The persistence layer calls OnLocalCommit on every committed
// write; operational surfaces read GetSyncStatus.
type SyncEngine interface {
	// RegisterSyncable registers an entity type for sync. Registration
	// order is delivery order within a drain cycle, so parents (users,
	// products) register before their dependents (orders, order items).
	RegisterSyncable(entityType string, serializer Serializer, opts SyncableOptions)

	// Registered reports whether an entity type is syncable, in
	// registration order.
	Registered() []string

	// OnLocalCommit captures a committed mutation into the sync queue.
	// It is part of the write's durability boundary: an error here must
	// fail the triggering write. Unregistered entity types are a no-op.
	OnLocalCommit(ctx context.Context, req CommitRequest) (*models.ChangeRecord, error)

	// GetSyncStatus returns sync health for one entity type, or nil if
	// that type has not attempted a sync yet.
	GetSyncStatus(ctx context.Context, entityType string) (*models.SyncStatus, error)

	// StatusReport aggregates queue depth and per-type status for
	// operator surfaces.
	StatusReport(ctx context.Context) (*StatusReport, error)

	// ForceResync performs an administrative reset for an entity type:
	// queue records dropped, status row deleted, pull cursor cleared.
	ForceResync(ctx context.Context, entityType string) error

	// OpenSession starts a terminal operating session.
	OpenSession(ctx context.Context, cashier, shiftRef string) (*models.ActiveSession, error)

	// CurrentSession returns the open session, or nil.
	CurrentSession(ctx context.Context) (*models.ActiveSession, error)

	// CloseSession ends the open session.
	CloseSession(ctx context.Context) error
}

// StatusReport is the operator-facing sync health summary. It reflects
// consecutive failures and last success, not individual record failures.
type StatusReport struct {
	Branch        string
	Online        bool
	PendingTotal  int
	PendingByType map[string]int
	Quarantined   int
	LastSuccessAt time.Time
	PerEntityType []*models.SyncStatus
	OpenSession   *models.ActiveSession
}
