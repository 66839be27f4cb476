// Package secondary defines the secondary ports (driven adapters) for the
// sync engine. These are the interfaces through which the engine drives
// durable storage and the network.
package secondary

import (
	"context"
	"fmt"
	"time"

	"github.com/MythicalCosmic/smart-pos/internal/models"
)

// ChangeQueueRepository defines the secondary port for the durable sync
// queue. The queue exclusively owns change records until they are
// acknowledged by the cloud authority.
type ChangeQueueRepository interface {
	// Enqueue durably appends a change record and assigns its branch
	// sequence and ID. Returns QueueWriteError if the append cannot be
	// made durable; the triggering local write must then fail too.
	Enqueue(ctx context.Context, record *models.ChangeRecord) error

	// PeekBatch returns up to maxSize deliverable records (pending, plus
	// failed ones awaiting retry) in enqueue order, oldest first, without
	// removing them. At most one record per entity is returned, and
	// entities with a record already in flight are skipped, preserving
	// strict per-entity delivery order. Records whose payload cannot be
	// decoded are quarantined (with a trace) and excluded, never skipped
	// silently.
	PeekBatch(ctx context.Context, maxSize int) ([]*models.ChangeRecord, error)

	// MarkInFlight transitions pending records to in_flight and bumps
	// their attempt count.
	MarkInFlight(ctx context.Context, ids []string) error

	// MarkAcknowledged removes acknowledged records from the queue.
	MarkAcknowledged(ctx context.Context, ids []string) error

	// MarkFailed transitions records to failed with a reason. Failed
	// records stay deliverable and retry on the next drain.
	MarkFailed(ctx context.Context, ids []string, reason string) error

	// Quarantine permanently sidelines a record (validation rejection or
	// undecodable payload) for operator review.
	Quarantine(ctx context.Context, id string, reason string) error

	// RequeueStale resets records stuck in_flight longer than olderThan
	// back to pending. Handles a worker crash mid-send.
	RequeueStale(ctx context.Context, olderThan time.Duration) (int, error)

	// PendingSummary returns pending record counts per entity type.
	PendingSummary(ctx context.Context) (map[string]int, error)

	// ListByStatus returns records in the given status, oldest first.
	ListByStatus(ctx context.Context, status models.ChangeStatus, limit int) ([]*models.ChangeRecord, error)

	// HasUnacked reports whether the queue holds any not-yet-acknowledged
	// record for the entity. Used to detect true concurrent edits when
	// applying pulled changes.
	HasUnacked(ctx context.Context, entityType, entityID string) (bool, error)

	// Clear removes records for one entity type, or every record when
	// entityType is empty. Only used by explicit resync resets.
	Clear(ctx context.Context, entityType string) error
}

// SyncStatusRepository defines the secondary port for per-entity-type sync
// health rows. Rows are only written by the sync worker, and deleted only
// on explicit resync.
type SyncStatusRepository interface {
	// Get retrieves the status row, or nil if no sync was attempted yet.
	Get(ctx context.Context, entityType, branch string) (*models.SyncStatus, error)

	// List retrieves all status rows for a branch.
	List(ctx context.Context, branch string) ([]*models.SyncStatus, error)

	// RecordAttempt stamps last_attempt_at and increments
	// consecutive_failures when failed is true; any success resets the
	// counter to zero and stamps last_success_at.
	RecordAttempt(ctx context.Context, entityType, branch string, at time.Time, failed bool) error

	// SetAckedVersion raises last_acked_version if version is higher.
	SetAckedVersion(ctx context.Context, entityType, branch string, version int64) error

	// SetPullCursor stores the cursor of the last consumed remote change.
	SetPullCursor(ctx context.Context, entityType, branch, cursor string) error

	// Reset deletes the status row as part of an administrative resync.
	Reset(ctx context.Context, entityType, branch string) error
}

// ConflictAuditRepository defines the secondary port for the conflict
// audit trail.
type ConflictAuditRepository interface {
	// Record persists a resolved conflict's losing side.
	Record(ctx context.Context, entry *models.ConflictAudit) error

	// List retrieves audit entries, newest first.
	List(ctx context.Context, entityType string, limit int) ([]*models.ConflictAudit, error)
}

// EntityRecord is the stored current state of one syncable entity.
type EntityRecord struct {
	EntityType   string
	EntityID     string
	Payload      map[string]any
	Version      int64
	OriginBranch string
	Deleted      bool
	UpdatedAt    time.Time
}

// EntityStore defines the secondary port for authoritative current entity
// state. On a branch it is the local application store; on the cloud it is
// the merged cross-branch store.
type EntityStore interface {
	// Get retrieves the stored state, or nil if the entity is unknown.
	Get(ctx context.Context, entityType, entityID string) (*EntityRecord, error)

	// Apply upserts the winning field set for an entity.
	Apply(ctx context.Context, record *EntityRecord) error

	// NextVersion atomically increments and returns the branch-local
	// version counter for an entity.
	NextVersion(ctx context.Context, entityType, entityID string) (int64, error)

	// SeedVersion raises the version counter to at least the given value.
	// Called when a remote winner is applied, so the next local edit gets
	// a version that can compete with it.
	SeedVersion(ctx context.Context, entityType, entityID string, atLeast int64) error
}

// SessionRepository defines the secondary port for terminal sessions.
type SessionRepository interface {
	// Open creates a new session; any previously open session is closed.
	Open(ctx context.Context, session *models.ActiveSession) error

	// Current returns the open session, or nil if none.
	Current(ctx context.Context) (*models.ActiveSession, error)

	// Close stamps closed_at on the open session.
	Close(ctx context.Context) error
}

// FeedPage is one page of the cloud authority's change feed.
type FeedPage struct {
	Records    []*models.ChangeRecord
	NextCursor string
}

// CloudFeedRepository defines the secondary port for the cloud authority's
// ordered change feed. Appends and cursor reads share one sequence space so
// a cursor is a stable resume point.
type CloudFeedRepository interface {
	// Seen reports whether a change ID was already accepted. Re-delivery
	// of an accepted ID is a no-op, which makes pushes retryable.
	Seen(ctx context.Context, changeID string) (bool, error)

	// Append adds an accepted change to the feed.
	Append(ctx context.Context, record *models.ChangeRecord) error

	// Read returns changes after the cursor, excluding those that
	// originated from the requesting branch.
	Read(ctx context.Context, excludeBranch, cursor string, limit int) (*FeedPage, error)
}

// QueueWriteError reports that the durable queue could not be written.
// Change capture propagates it to the triggering local write, which must
// fail rather than diverge silently.
type QueueWriteError struct {
	Err error
}

func (e *QueueWriteError) Error() string {
	return fmt.Sprintf("sync queue write failed: %v", e.Err)
}

func (e *QueueWriteError) Unwrap() error { return e.Err }

// QueueCorruptionError reports a persisted queue entry that could not be
// decoded. The entry is quarantined, not dropped.
type QueueCorruptionError struct {
	ChangeID string
	Err      error
}

func (e *QueueCorruptionError) Error() string {
	return fmt.Sprintf("corrupt queue entry %s: %v", e.ChangeID, e.Err)
}

func (e *QueueCorruptionError) Unwrap() error { return e.Err }
