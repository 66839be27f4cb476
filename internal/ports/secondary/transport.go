package secondary

import (
	"context"
	"fmt"

	"github.com/MythicalCosmic/smart-pos/internal/models"
)

// RejectedChange describes one change the cloud refused.
type RejectedChange struct {
	ID     string
	Reason string
	// Permanent marks payload validation failures, which must not be
	// retried. Transient server errors are retried with backoff.
	Permanent bool
}

// PushResult is the cloud's response to a push batch.
type PushResult struct {
	AcceptedIDs []string
	Rejected    []RejectedChange
}

// PullResult is the cloud's response to a pull request.
type PullResult struct {
	Records    []*models.ChangeRecord
	NextCursor string
}

// CloudTransport defines the secondary port for the network boundary to
// the cloud authority. It performs no business logic; HTTP and message-bus
// backings are interchangeable.
//
// A batch is atomic from the caller's perspective: either the full
// acceptance list comes back, or the call failed as a whole and will be
// retried. Network, timeout and auth failures surface as *TransportError.
type CloudTransport interface {
	// Ping is a lightweight reachability probe.
	Ping(ctx context.Context) error

	// Push delivers a batch of change records.
	Push(ctx context.Context, branch string, batch []*models.ChangeRecord) (*PushResult, error)

	// Pull fetches remote changes this branch has not yet seen.
	Pull(ctx context.Context, branch, cursor string, limit int) (*PullResult, error)
}

// TransportError reports a network-level failure (unreachable, timeout,
// authentication). It is retried with backoff and never surfaced to the
// terminal user.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
