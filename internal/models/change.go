// Package models contains domain types for the sync engine.
// SQL persistence lives in internal/adapters/sqlite/*.go
package models

import (
	"fmt"
	"time"
)

// Operation is the kind of local mutation a change record carries.
type Operation string

// Operation constants
const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Valid reports whether op is one of the known operations.
func (op Operation) Valid() bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// ChangeStatus is the delivery state of a queued change record.
type ChangeStatus string

// Change status constants
const (
	ChangePending      ChangeStatus = "pending"
	ChangeInFlight     ChangeStatus = "in_flight"
	ChangeAcknowledged ChangeStatus = "acknowledged"
	ChangeFailed       ChangeStatus = "failed"
	// ChangeQuarantined marks records whose persisted payload could not be
	// decoded. They are excluded from batches but kept for inspection.
	ChangeQuarantined ChangeStatus = "quarantined"
)

// ChangeRecord represents one committed local mutation awaiting propagation
// to the cloud authority.
type ChangeRecord struct {
	// ID is monotonic per branch: "<branch>-<zero-padded sequence>".
	// The cloud authority dedupes re-deliveries on this value.
	ID string

	// Seq is the branch-local queue sequence backing ID. It orders records
	// within one branch; it is not meaningful across branches.
	Seq int64

	EntityType string
	EntityID   string
	Operation  Operation

	// Payload is the full post-mutation field set, not a diff. Replaying it
	// is idempotent by construction.
	Payload map[string]any

	OriginBranch string

	// LocalTimestamp is the wall-clock commit time on the origin branch.
	// Monotonic within a branch, not globally ordered.
	LocalTimestamp time.Time

	// Version is the per-entity counter maintained by the origin branch.
	Version int64

	Status     ChangeStatus
	Attempts   int
	LastError  string
	EnqueuedAt time.Time
}

// ChangeID formats a branch-scoped change identifier.
func ChangeID(branch string, seq int64) string {
	return fmt.Sprintf("%s-%012d", branch, seq)
}

// Tombstone reports whether the record marks its entity deleted.
func (c *ChangeRecord) Tombstone() bool {
	if c.Operation == OpDelete {
		return true
	}
	deleted, _ := c.Payload["is_deleted"].(bool)
	return deleted
}
