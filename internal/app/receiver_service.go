package app

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/MythicalCosmic/smart-pos/internal/core/capture"
	"github.com/MythicalCosmic/smart-pos/internal/core/resolve"
	"github.com/MythicalCosmic/smart-pos/internal/models"
	"github.com/MythicalCosmic/smart-pos/internal/ports/primary"
	"github.com/MythicalCosmic/smart-pos/internal/ports/secondary"
)

// ReceiverService implements the cloud authority's Receiver port. It is
// the single merge point: every branch's changes pass through here, in
// arrival order, against the merged entity store.
type ReceiverService struct {
	registry *capture.Registry
	feed     secondary.CloudFeedRepository
	store    secondary.EntityStore
	audit    secondary.ConflictAuditRepository
	tokens   []string
	logger   *log.Logger

	// mu serializes batch application so the resolver always runs against
	// a settled current state.
	mu sync.Mutex
}

// NewReceiverService creates the cloud receiver with injected dependencies.
func NewReceiverService(
	registry *capture.Registry,
	feed secondary.CloudFeedRepository,
	store secondary.EntityStore,
	audit secondary.ConflictAuditRepository,
	allowedTokens []string,
	logger *log.Logger,
) *ReceiverService {
	if logger == nil {
		logger = log.Default()
	}
	return &ReceiverService{
		registry: registry,
		feed:     feed,
		store:    store,
		audit:    audit,
		tokens:   allowedTokens,
		logger:   logger,
	}
}

// AuthorizeBranch checks a branch token against the allow list.
func (s *ReceiverService) AuthorizeBranch(token string) bool {
	if token == "" {
		return false
	}
	for _, allowed := range s.tokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(allowed)) == 1 {
			return true
		}
	}
	return false
}

// ReceiveBatch applies a push batch from a branch. Re-delivery of an
// already accepted change ID is acknowledged without reapplying, which
// makes at-least-once delivery safe.
func (s *ReceiverService) ReceiveBatch(ctx context.Context, req primary.ReceiveRequest) (*primary.ReceiveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &primary.ReceiveResult{}
	for _, record := range req.Records {
		if reason := s.validate(req.Branch, record); reason != "" {
			result.Rejected = append(result.Rejected, primary.RejectedRecord{
				ID: record.ID, Reason: reason, Permanent: true,
			})
			continue
		}

		seen, err := s.feed.Seen(ctx, record.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check change %s: %w", record.ID, err)
		}
		if seen {
			result.AcceptedIDs = append(result.AcceptedIDs, record.ID)
			continue
		}

		if err := s.merge(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to merge change %s: %w", record.ID, err)
		}
		if err := s.feed.Append(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to append change %s: %w", record.ID, err)
		}
		result.AcceptedIDs = append(result.AcceptedIDs, record.ID)
	}
	return result, nil
}

// merge resolves one accepted change against the merged store. Losing
// changes still enter the feed; branches re-run the same deterministic
// resolution and converge.
func (s *ReceiverService) merge(ctx context.Context, record *models.ChangeRecord) error {
	current, err := s.store.Get(ctx, record.EntityType, record.EntityID)
	if err != nil {
		return err
	}
	if current == nil {
		return s.apply(ctx, record)
	}

	stored := resolve.Candidate{
		Branch:    current.OriginBranch,
		Version:   current.Version,
		Timestamp: current.UpdatedAt,
		Deleted:   current.Deleted,
	}
	incoming := resolve.Candidate{
		Branch:    record.OriginBranch,
		Version:   record.Version,
		Timestamp: record.LocalTimestamp,
		Deleted:   record.Tombstone(),
	}

	var decision resolve.Decision
	if s.registry.AppendOnly(record.EntityType) {
		decision = resolve.ResolveAppendOnly(stored, incoming)
	} else {
		decision = resolve.Resolve(stored, incoming)
	}

	if decision.Winner == resolve.SideRemote {
		// Incoming wins. Cross-branch overwrites are audited; a branch
		// advancing its own entity is the normal case.
		if current.OriginBranch != record.OriginBranch {
			if err := s.recordConflict(ctx, record, incoming, stored, current.Payload, decision.Reason); err != nil {
				return err
			}
		}
		return s.apply(ctx, record)
	}

	if decision.Reason == "identical change" {
		return nil
	}
	s.logger.Printf("change %s lost against stored state of %s/%s: %s",
		record.ID, record.EntityType, record.EntityID, decision.Reason)
	return s.recordConflict(ctx, record, stored, incoming, record.Payload, decision.Reason)
}

func (s *ReceiverService) apply(ctx context.Context, record *models.ChangeRecord) error {
	return s.store.Apply(ctx, &secondary.EntityRecord{
		EntityType:   record.EntityType,
		EntityID:     record.EntityID,
		Payload:      record.Payload,
		Version:      record.Version,
		OriginBranch: record.OriginBranch,
		Deleted:      record.Tombstone(),
		UpdatedAt:    record.LocalTimestamp,
	})
}

func (s *ReceiverService) recordConflict(ctx context.Context, record *models.ChangeRecord, winner, loser resolve.Candidate, loserPayload map[string]any, reason string) error {
	return s.audit.Record(ctx, &models.ConflictAudit{
		EntityType:    record.EntityType,
		EntityID:      record.EntityID,
		WinnerBranch:  winner.Branch,
		WinnerVersion: winner.Version,
		LoserBranch:   loser.Branch,
		LoserVersion:  loser.Version,
		LoserPayload:  loserPayload,
		Reason:        reason,
		ResolvedAt:    time.Now().UTC(),
	})
}

// validate screens one incoming record. Failures here are permanent: the
// record can never become acceptable, so the branch must quarantine it
// instead of retrying.
func (s *ReceiverService) validate(branch string, record *models.ChangeRecord) string {
	switch {
	case record.ID == "":
		return "missing change id"
	case record.EntityType == "":
		return "missing entity type"
	case record.EntityID == "":
		return "missing entity id"
	case !record.Operation.Valid():
		return fmt.Sprintf("invalid operation %q", record.Operation)
	case record.Payload == nil:
		return "missing payload"
	case record.Version < 1:
		return "version must be positive"
	case record.OriginBranch == "":
		return "missing origin branch"
	case branch != "" && record.OriginBranch != branch:
		return fmt.Sprintf("origin branch %q does not match pushing branch %q", record.OriginBranch, branch)
	case record.LocalTimestamp.IsZero():
		return "missing local timestamp"
	}
	if types := s.registry.Registered(); len(types) > 0 {
		if _, _, ok := s.registry.Lookup(record.EntityType); !ok {
			return fmt.Sprintf("unregistered entity type %q", record.EntityType)
		}
	}
	return ""
}

// PullChanges returns feed entries after the cursor, excluding the
// requesting branch's own changes.
func (s *ReceiverService) PullChanges(ctx context.Context, req primary.PullRequest) (*primary.PullResponse, error) {
	limit := req.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	page, err := s.feed.Read(ctx, req.Branch, req.Cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read change feed: %w", err)
	}
	return &primary.PullResponse{
		Records:    page.Records,
		NextCursor: page.NextCursor,
	}, nil
}

// Ensure ReceiverService implements the interface.
var _ primary.Receiver = (*ReceiverService)(nil)
