// Package app contains the application services that orchestrate the sync
// engine: change capture on the branch, the background worker, and the
// cloud-side receiver.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/MythicalCosmic/smart-pos/internal/core/capture"
	"github.com/MythicalCosmic/smart-pos/internal/models"
	"github.com/MythicalCosmic/smart-pos/internal/ports/primary"
	"github.com/MythicalCosmic/smart-pos/internal/ports/secondary"
)

// EngineService implements the SyncEngine interface for one branch.
type EngineService struct {
	branch   string
	registry *capture.Registry
	capturer *capture.Capturer

	queue    secondary.ChangeQueueRepository
	status   secondary.SyncStatusRepository
	sessions secondary.SessionRepository
}

// NewEngineService creates a new EngineService with injected dependencies.
func NewEngineService(
	branch string,
	queue secondary.ChangeQueueRepository,
	status secondary.SyncStatusRepository,
	store secondary.EntityStore,
	sessions secondary.SessionRepository,
) *EngineService {
	registry := capture.NewRegistry()
	return &EngineService{
		branch:   branch,
		registry: registry,
		capturer: capture.New(registry, queue, store, branch, nil),
		queue:    queue,
		status:   status,
		sessions: sessions,
	}
}

// RegisterSyncable registers an entity type for sync. Registration order is
// delivery order within a drain cycle.
func (s *EngineService) RegisterSyncable(entityType string, serializer primary.Serializer, opts primary.SyncableOptions) {
	s.registry.Register(entityType, serializer, opts)
}

// Registered returns syncable entity types in registration order.
func (s *EngineService) Registered() []string {
	return s.registry.Registered()
}

// Registry exposes the syncable registry to collaborating services.
func (s *EngineService) Registry() *capture.Registry {
	return s.registry
}

// OnLocalCommit captures a committed mutation into the sync queue. It runs
// inside the write's durability boundary: an error fails the write.
func (s *EngineService) OnLocalCommit(ctx context.Context, req primary.CommitRequest) (*models.ChangeRecord, error) {
	return s.capturer.Capture(ctx, req)
}

// GetSyncStatus returns sync health for one entity type, or nil if that
// type has not attempted a sync yet.
func (s *EngineService) GetSyncStatus(ctx context.Context, entityType string) (*models.SyncStatus, error) {
	return s.status.Get(ctx, entityType, s.branch)
}

// StatusReport aggregates queue depth and per-type status for operator
// surfaces.
func (s *EngineService) StatusReport(ctx context.Context) (*primary.StatusReport, error) {
	summary, err := s.queue.PendingSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize queue: %w", err)
	}

	statuses, err := s.status.List(ctx, s.branch)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync status: %w", err)
	}

	quarantined, err := s.queue.ListByStatus(ctx, models.ChangeQuarantined, 1000)
	if err != nil {
		return nil, fmt.Errorf("failed to list quarantined records: %w", err)
	}

	session, err := s.sessions.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	report := &primary.StatusReport{
		Branch:        s.branch,
		Online:        len(statuses) > 0,
		PendingByType: summary,
		Quarantined:   len(quarantined),
		PerEntityType: statuses,
		OpenSession:   session,
	}
	for _, n := range summary {
		report.PendingTotal += n
	}
	for _, st := range statuses {
		if !st.Online() {
			report.Online = false
		}
		if st.LastSuccessAt.After(report.LastSuccessAt) {
			report.LastSuccessAt = st.LastSuccessAt
		}
	}
	return report, nil
}

// ForceResync performs an administrative reset for an entity type: queued
// records dropped, status row deleted, pull cursor rewound. The cursor is
// branch-wide, so the next sync replays the whole feed; Reconcile is
// idempotent and the replay converges on current state.
func (s *EngineService) ForceResync(ctx context.Context, entityType string) error {
	if entityType == "" {
		return fmt.Errorf("entity type is required for resync")
	}
	if err := s.queue.Clear(ctx, entityType); err != nil {
		return fmt.Errorf("failed to clear queue for %s: %w", entityType, err)
	}
	if err := s.status.Reset(ctx, entityType, s.branch); err != nil {
		return fmt.Errorf("failed to reset status for %s: %w", entityType, err)
	}
	if err := s.status.Reset(ctx, feedCursorKey, s.branch); err != nil {
		return fmt.Errorf("failed to rewind pull cursor: %w", err)
	}
	return nil
}

// OpenSession starts a terminal operating session.
func (s *EngineService) OpenSession(ctx context.Context, cashier, shiftRef string) (*models.ActiveSession, error) {
	if cashier == "" {
		return nil, fmt.Errorf("cashier is required")
	}
	session := &models.ActiveSession{
		Branch:   s.branch,
		Cashier:  cashier,
		ShiftRef: shiftRef,
		OpenedAt: time.Now().UTC(),
	}
	if err := s.sessions.Open(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// CurrentSession returns the open session, or nil.
func (s *EngineService) CurrentSession(ctx context.Context) (*models.ActiveSession, error) {
	return s.sessions.Current(ctx)
}

// CloseSession ends the open session.
func (s *EngineService) CloseSession(ctx context.Context) error {
	return s.sessions.Close(ctx)
}

// Ensure EngineService implements the interface.
var _ primary.SyncEngine = (*EngineService)(nil)
