package models

import "time"

// ConflictAudit records the losing side of a resolved conflict. Losing
// changes are kept for inspection, never silently dropped.
type ConflictAudit struct {
	ID         string
	EntityType string
	EntityID   string

	WinnerBranch  string
	WinnerVersion int64
	LoserBranch   string
	LoserVersion  int64

	// LoserPayload is the field set that lost the resolution.
	LoserPayload map[string]any

	// Reason is the resolver's decision basis ("higher version",
	// "delete wins", "branch tie-break", ...).
	Reason string

	ResolvedAt time.Time
}
