package app

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MythicalCosmic/smart-pos/internal/core/backoff"
	"github.com/MythicalCosmic/smart-pos/internal/core/capture"
	"github.com/MythicalCosmic/smart-pos/internal/core/resolve"
	"github.com/MythicalCosmic/smart-pos/internal/models"
	"github.com/MythicalCosmic/smart-pos/internal/ports/secondary"
)

// WorkerState is the sync worker's current phase.
type WorkerState string

// Worker states
const (
	StateIdle        WorkerState = "idle"
	StateConnecting  WorkerState = "connecting"
	StatePushing     WorkerState = "pushing"
	StatePulling     WorkerState = "pulling"
	StateReconciling WorkerState = "reconciling"
	StateBackingOff  WorkerState = "backing_off"
)

// feedCursorKey is the reserved sync status row that carries the pull
// cursor and pull health. The feed is branch-wide, not per entity type.
const feedCursorKey = "_feed"

// WorkerOptions configures the background sync worker.
type WorkerOptions struct {
	Branch       string
	PushInterval time.Duration
	BatchSize    int
	PullLimit    int
	StaleTimeout time.Duration
	Backoff      backoff.Policy
	Logger       *log.Logger
}

// Worker is the background sync loop: requeue stale, push pending, pull
// remote, reconcile. One cycle runs at a time; a trigger during a cycle is
// coalesced into the next one.
type Worker struct {
	opts     WorkerOptions
	registry *capture.Registry

	queue  secondary.ChangeQueueRepository
	status secondary.SyncStatusRepository
	store  secondary.EntityStore
	audit  secondary.ConflictAuditRepository
	cloud  secondary.CloudTransport

	state    atomic.Value
	running  atomic.Bool
	failures atomic.Int64
	trigger  chan struct{}

	wg sync.WaitGroup
}

// NewWorker creates a sync worker for one branch.
func NewWorker(
	opts WorkerOptions,
	registry *capture.Registry,
	queue secondary.ChangeQueueRepository,
	status secondary.SyncStatusRepository,
	store secondary.EntityStore,
	audit secondary.ConflictAuditRepository,
	cloud secondary.CloudTransport,
) *Worker {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	w := &Worker{
		opts:     opts,
		registry: registry,
		queue:    queue,
		status:   status,
		store:    store,
		audit:    audit,
		cloud:    cloud,
		trigger:  make(chan struct{}, 1),
	}
	w.state.Store(StateIdle)
	return w
}

// State returns the worker's current phase.
func (w *Worker) State() WorkerState {
	return w.state.Load().(WorkerState)
}

func (w *Worker) transition(s WorkerState) {
	w.state.Store(s)
}

// TriggerNow requests an immediate cycle. Triggers during a running cycle
// coalesce into one follow-up cycle.
func (w *Worker) TriggerNow() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Run drives the sync loop until ctx is cancelled. Periodic cycles run at
// PushInterval; failures stretch the wait with exponential backoff.
func (w *Worker) Run(ctx context.Context) {
	w.wg.Add(1)
	defer w.wg.Done()

	timer := time.NewTimer(w.opts.PushInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.transition(StateIdle)
			return
		case <-timer.C:
		case <-w.trigger:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		if err := w.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				w.transition(StateIdle)
				return
			}
			failures := int(w.failures.Load())
			delay := w.opts.Backoff.Delay(failures)
			w.opts.Logger.Printf("sync cycle failed (attempt %d, next in %s): %v", failures, delay, err)
			w.transition(StateBackingOff)
			timer.Reset(delay)
			continue
		}

		w.transition(StateIdle)
		timer.Reset(w.opts.PushInterval)
	}
}

// Wait blocks until Run has returned.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// RunCycle performs one full sync cycle: requeue stale records, push the
// queue, pull the remote feed, reconcile. At most one cycle runs at a
// time; concurrent calls return immediately.
func (w *Worker) RunCycle(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return nil
	}
	defer w.running.Store(false)

	if n, err := w.queue.RequeueStale(ctx, w.opts.StaleTimeout); err != nil {
		return fmt.Errorf("requeue stale: %w", err)
	} else if n > 0 {
		w.opts.Logger.Printf("requeued %d stale in-flight records", n)
	}

	w.transition(StateConnecting)
	if err := w.cloud.Ping(ctx); err != nil {
		w.failures.Add(1)
		w.recordAttempt(ctx, []string{feedCursorKey}, true)
		return fmt.Errorf("cloud unreachable: %w", err)
	}

	w.transition(StatePushing)
	if err := w.push(ctx); err != nil {
		w.failures.Add(1)
		return err
	}

	w.transition(StatePulling)
	if err := w.pull(ctx); err != nil {
		w.failures.Add(1)
		w.recordAttempt(ctx, []string{feedCursorKey}, true)
		return err
	}
	w.recordAttempt(ctx, []string{feedCursorKey}, false)

	w.failures.Store(0)
	return nil
}

// push drains the queue batch by batch until nothing deliverable is left
// or a batch hits failures.
func (w *Worker) push(ctx context.Context) error {
	for {
		batch, err := w.queue.PeekBatch(ctx, w.opts.BatchSize)
		if err != nil {
			return fmt.Errorf("peek batch: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}

		// Parents before dependents: registration order, then enqueue order.
		sort.SliceStable(batch, func(i, j int) bool {
			ri, rj := w.registry.DeliveryRank(batch[i].EntityType), w.registry.DeliveryRank(batch[j].EntityType)
			if ri != rj {
				return ri < rj
			}
			return batch[i].Seq < batch[j].Seq
		})

		ids := make([]string, len(batch))
		types := make(map[string]bool, 4)
		for i, r := range batch {
			ids[i] = r.ID
			types[r.EntityType] = true
		}

		if err := w.queue.MarkInFlight(ctx, ids); err != nil {
			return fmt.Errorf("mark in flight: %w", err)
		}

		result, err := w.cloud.Push(ctx, w.opts.Branch, batch)
		if err != nil {
			if markErr := w.queue.MarkFailed(ctx, ids, err.Error()); markErr != nil {
				w.opts.Logger.Printf("failed to mark batch failed: %v", markErr)
			}
			w.recordAttempt(ctx, keys(types), true)
			return fmt.Errorf("push batch: %w", err)
		}

		if err := w.queue.MarkAcknowledged(ctx, result.AcceptedIDs); err != nil {
			return fmt.Errorf("acknowledge batch: %w", err)
		}
		w.raiseAckedVersions(ctx, batch, result.AcceptedIDs)

		clean := true
		for _, rej := range result.Rejected {
			clean = false
			if rej.Permanent {
				w.opts.Logger.Printf("change %s rejected permanently: %s", rej.ID, rej.Reason)
				if err := w.queue.Quarantine(ctx, rej.ID, rej.Reason); err != nil {
					w.opts.Logger.Printf("failed to quarantine %s: %v", rej.ID, err)
				}
			} else {
				if err := w.queue.MarkFailed(ctx, []string{rej.ID}, rej.Reason); err != nil {
					w.opts.Logger.Printf("failed to mark %s failed: %v", rej.ID, err)
				}
			}
		}
		w.recordAttempt(ctx, keys(types), false)

		// A batch with rejections stops the drain; retryable records get
		// their backoff instead of spinning inside one cycle.
		if !clean {
			return nil
		}
	}
}

// pull consumes the cloud feed page by page and reconciles each change.
func (w *Worker) pull(ctx context.Context) error {
	cursor := ""
	if st, err := w.status.Get(ctx, feedCursorKey, w.opts.Branch); err != nil {
		return fmt.Errorf("read pull cursor: %w", err)
	} else if st != nil {
		cursor = st.LastPullCursor
	}

	for {
		page, err := w.cloud.Pull(ctx, w.opts.Branch, cursor, w.opts.PullLimit)
		if err != nil {
			return fmt.Errorf("pull changes: %w", err)
		}

		w.transition(StateReconciling)
		for _, record := range page.Records {
			if err := w.Reconcile(ctx, record); err != nil {
				return fmt.Errorf("reconcile %s: %w", record.ID, err)
			}
		}
		w.transition(StatePulling)

		// A page can come back empty while the cursor still advances: the
		// feed filters this branch's own echoes after paging. The feed is
		// exhausted only when the cursor stops moving.
		if page.NextCursor == "" || page.NextCursor == cursor {
			return nil
		}
		cursor = page.NextCursor
		if err := w.status.SetPullCursor(ctx, feedCursorKey, w.opts.Branch, cursor); err != nil {
			return fmt.Errorf("advance pull cursor: %w", err)
		}
	}
}

// Reconcile applies one remote change against local state. Resolution is
// deterministic, so every branch converges on the same outcome for the
// same pair of changes.
func (w *Worker) Reconcile(ctx context.Context, remote *models.ChangeRecord) error {
	local, err := w.store.Get(ctx, remote.EntityType, remote.EntityID)
	if err != nil {
		return err
	}

	// Unknown entity: nothing to conflict with.
	if local == nil {
		return w.applyRemote(ctx, remote)
	}

	// Echo of a change this branch already holds.
	if local.OriginBranch == remote.OriginBranch && local.Version >= remote.Version {
		return nil
	}

	localCand := resolve.Candidate{
		Branch:    local.OriginBranch,
		Version:   local.Version,
		Timestamp: local.UpdatedAt,
		Deleted:   local.Deleted,
	}
	remoteCand := resolve.Candidate{
		Branch:    remote.OriginBranch,
		Version:   remote.Version,
		Timestamp: remote.LocalTimestamp,
		Deleted:   remote.Tombstone(),
	}

	var decision resolve.Decision
	if w.registry.AppendOnly(remote.EntityType) {
		decision = resolve.ResolveAppendOnly(localCand, remoteCand)
	} else {
		decision = resolve.Resolve(localCand, remoteCand)
	}

	// A plain fast-forward is not a conflict: no concurrent local edit
	// means nothing was lost, so nothing is audited.
	concurrent, err := w.queue.HasUnacked(ctx, remote.EntityType, remote.EntityID)
	if err != nil {
		return err
	}

	if decision.Winner == resolve.SideRemote {
		if concurrent {
			if err := w.recordConflict(ctx, remote.EntityType, remote.EntityID, remoteCand, localCand, local.Payload, decision.Reason); err != nil {
				return err
			}
		}
		return w.applyRemote(ctx, remote)
	}

	// Local wins: the remote change is set aside with a trace, never
	// silently dropped.
	return w.recordConflict(ctx, remote.EntityType, remote.EntityID, localCand, remoteCand, remote.Payload, decision.Reason)
}

func (w *Worker) applyRemote(ctx context.Context, remote *models.ChangeRecord) error {
	if err := w.store.Apply(ctx, &secondary.EntityRecord{
		EntityType:   remote.EntityType,
		EntityID:     remote.EntityID,
		Payload:      remote.Payload,
		Version:      remote.Version,
		OriginBranch: remote.OriginBranch,
		Deleted:      remote.Tombstone(),
		UpdatedAt:    remote.LocalTimestamp,
	}); err != nil {
		return err
	}
	// The next local edit must be able to outrank the applied winner.
	return w.store.SeedVersion(ctx, remote.EntityType, remote.EntityID, remote.Version)
}

func (w *Worker) recordConflict(ctx context.Context, entityType, entityID string, winner, loser resolve.Candidate, loserPayload map[string]any, reason string) error {
	return w.audit.Record(ctx, &models.ConflictAudit{
		EntityType:    entityType,
		EntityID:      entityID,
		WinnerBranch:  winner.Branch,
		WinnerVersion: winner.Version,
		LoserBranch:   loser.Branch,
		LoserVersion:  loser.Version,
		LoserPayload:  loserPayload,
		Reason:        reason,
		ResolvedAt:    time.Now().UTC(),
	})
}

// raiseAckedVersions records the highest acknowledged version per entity
// type from an accepted batch.
func (w *Worker) raiseAckedVersions(ctx context.Context, batch []*models.ChangeRecord, acceptedIDs []string) {
	accepted := make(map[string]bool, len(acceptedIDs))
	for _, id := range acceptedIDs {
		accepted[id] = true
	}
	high := make(map[string]int64)
	for _, r := range batch {
		if accepted[r.ID] && r.Version > high[r.EntityType] {
			high[r.EntityType] = r.Version
		}
	}
	for entityType, version := range high {
		if err := w.status.SetAckedVersion(ctx, entityType, w.opts.Branch, version); err != nil {
			w.opts.Logger.Printf("failed to record acked version for %s: %v", entityType, err)
		}
	}
}

func (w *Worker) recordAttempt(ctx context.Context, entityTypes []string, failed bool) {
	now := time.Now().UTC()
	for _, entityType := range entityTypes {
		if err := w.status.RecordAttempt(ctx, entityType, w.opts.Branch, now, failed); err != nil {
			w.opts.Logger.Printf("failed to record attempt for %s: %v", entityType, err)
		}
	}
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
