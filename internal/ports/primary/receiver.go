package primary

import (
	"context"

	"github.com/MythicalCosmic/smart-pos/internal/models"
)

// ReceiveRequest is a push batch arriving from a branch.
type ReceiveRequest struct {
	Branch  string
	Records []*models.ChangeRecord
}

// ReceiveResult reports per-record acceptance for a push batch.
type ReceiveResult struct {
	AcceptedIDs []string
	Rejected    []RejectedRecord
}

// RejectedRecord describes one refused change.
type RejectedRecord struct {
	ID        string
	Reason    string
	Permanent bool
}

// PullRequest asks for changes a branch has not yet seen.
type PullRequest struct {
	Branch string
	Cursor string
	Limit  int
}

// PullResponse is one page of the authority's change feed.
type PullResponse struct {
	Records    []*models.ChangeRecord
	NextCursor string
}

// Receiver is the cloud authority's primary port. It serializes writes per
// entity so the conflict resolver runs against a stable current state, and
// treats re-delivery of an accepted change ID as a no-op.
type Receiver interface {
	// ReceiveBatch applies a push batch from a branch.
	ReceiveBatch(ctx context.Context, req ReceiveRequest) (*ReceiveResult, error)

	// PullChanges returns feed entries after the cursor, excluding the
	// requesting branch's own changes.
	PullChanges(ctx context.Context, req PullRequest) (*PullResponse, error)

	// AuthorizeBranch checks a branch token against the allow list.
	AuthorizeBranch(token string) bool
}
