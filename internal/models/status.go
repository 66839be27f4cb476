package models

import "time"

// SyncStatus tracks sync health for one (entity type, branch) pair.
// It is created on the first sync attempt for an entity type and is only
// ever written by the sync worker, except for explicit resync resets.
type SyncStatus struct {
	EntityType string
	Branch     string

	// LastAckedVersion is the highest version the cloud has confirmed.
	LastAckedVersion int64

	// LastPullCursor is the opaque cursor of the last remote change consumed.
	LastPullCursor string

	LastSuccessAt       time.Time
	LastAttemptAt       time.Time
	ConsecutiveFailures int
}

// Online reports whether the last attempt for this entity type succeeded.
func (s *SyncStatus) Online() bool {
	return s.ConsecutiveFailures == 0 && !s.LastSuccessAt.IsZero()
}
