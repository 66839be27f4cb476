// Package sqlite contains SQLite implementations of the sync engine's
// repository interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MythicalCosmic/smart-pos/internal/codec"
	"github.com/MythicalCosmic/smart-pos/internal/models"
	"github.com/MythicalCosmic/smart-pos/internal/ports/secondary"
)

// ChangeQueueRepository implements secondary.ChangeQueueRepository with
// SQLite. The table is the append-only delivery log; status transitions
// run in single statements so a crash never leaves a batch half-marked.
type ChangeQueueRepository struct {
	db     *sql.DB
	branch string
}

// NewChangeQueueRepository creates a new SQLite change queue for a branch.
func NewChangeQueueRepository(db *sql.DB, branch string) *ChangeQueueRepository {
	return &ChangeQueueRepository{db: db, branch: branch}
}

const queueColumns = "seq, id, entity_type, entity_id, operation, payload, origin_branch, local_timestamp, version, status, attempts, last_error, enqueued_at"

// Enqueue durably appends a change record, assigning its branch sequence
// and ID. Any storage failure comes back as *secondary.QueueWriteError so
// the triggering local write fails with it.
func (r *ChangeQueueRepository) Enqueue(ctx context.Context, record *models.ChangeRecord) error {
	payload, err := codec.EncodePayload(record.Payload)
	if err != nil {
		return &secondary.QueueWriteError{Err: err}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &secondary.QueueWriteError{Err: err}
	}
	defer tx.Rollback()

	// Insert under a placeholder ID, then rewrite it from the assigned
	// sequence. SQLite serializes writers, so the placeholder is never
	// visible to a concurrent enqueue.
	placeholder := uuid.NewString()
	res, err := tx.ExecContext(ctx,
		"INSERT INTO sync_queue (id, entity_type, entity_id, operation, payload, origin_branch, local_timestamp, version, status) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		placeholder, record.EntityType, record.EntityID, string(record.Operation), payload,
		record.OriginBranch, record.LocalTimestamp.UnixNano(), record.Version, string(models.ChangePending),
	)
	if err != nil {
		return &secondary.QueueWriteError{Err: err}
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return &secondary.QueueWriteError{Err: err}
	}

	id := models.ChangeID(record.OriginBranch, seq)
	if _, err := tx.ExecContext(ctx, "UPDATE sync_queue SET id = ? WHERE seq = ?", id, seq); err != nil {
		return &secondary.QueueWriteError{Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &secondary.QueueWriteError{Err: err}
	}

	record.Seq = seq
	record.ID = id
	record.Status = models.ChangePending
	return nil
}

// PeekBatch returns up to maxSize deliverable records, oldest first, one
// per entity, skipping entities that already have a record in flight.
func (r *ChangeQueueRepository) PeekBatch(ctx context.Context, maxSize int) ([]*models.ChangeRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+queueColumns+`
		FROM sync_queue q
		WHERE status IN ('pending', 'failed')
		  AND seq = (
			SELECT MIN(seq) FROM sync_queue q2
			WHERE q2.entity_type = q.entity_type AND q2.entity_id = q.entity_id
			  AND q2.status IN ('pending', 'failed')
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM sync_queue q3
			WHERE q3.entity_type = q.entity_type AND q3.entity_id = q.entity_id
			  AND q3.status = 'in_flight'
		  )
		ORDER BY seq
		LIMIT ?`, maxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to peek batch: %w", err)
	}
	defer rows.Close()

	var batch []*models.ChangeRecord
	var corrupt []corruptEntry
	for rows.Next() {
		record, err := scanQueueRecord(rows)
		if err != nil {
			return nil, err
		}
		if record.Payload == nil {
			// Undecodable payload: quarantine with a trace, keep going.
			corrupt = append(corrupt, corruptEntry{id: record.ID, reason: record.LastError})
			continue
		}
		batch = append(batch, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan batch: %w", err)
	}

	for _, c := range corrupt {
		if err := r.Quarantine(ctx, c.id, c.reason); err != nil {
			return nil, err
		}
	}

	return batch, nil
}

type corruptEntry struct {
	id     string
	reason string
}

// MarkInFlight transitions pending records to in_flight and bumps their
// attempt count.
func (r *ChangeQueueRepository) MarkInFlight(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(
		"UPDATE sync_queue SET status = 'in_flight', attempts = attempts + 1, in_flight_since = ? WHERE id IN (%s) AND status IN ('pending', 'failed')",
		placeholders(len(ids)),
	)
	args := append([]any{time.Now().Unix()}, idArgs(ids)...)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to mark in flight: %w", err)
	}
	return nil
}

// MarkAcknowledged removes acknowledged records. The queue owns a record
// only until the cloud confirms it.
func (r *ChangeQueueRepository) MarkAcknowledged(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf("DELETE FROM sync_queue WHERE id IN (%s)", placeholders(len(ids)))
	if _, err := r.db.ExecContext(ctx, query, idArgs(ids)...); err != nil {
		return fmt.Errorf("failed to acknowledge records: %w", err)
	}
	return nil
}

// MarkFailed records a transient delivery failure. Failed records stay in
// the queue and are retried on the next drain.
func (r *ChangeQueueRepository) MarkFailed(ctx context.Context, ids []string, reason string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(
		"UPDATE sync_queue SET status = 'failed', last_error = ?, in_flight_since = NULL WHERE id IN (%s)",
		placeholders(len(ids)),
	)
	args := append([]any{reason}, idArgs(ids)...)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to mark failed: %w", err)
	}
	return nil
}

// Quarantine permanently sidelines a record for operator review.
func (r *ChangeQueueRepository) Quarantine(ctx context.Context, id string, reason string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE sync_queue SET status = 'quarantined', last_error = ?, in_flight_since = NULL WHERE id = ?",
		reason, id,
	)
	if err != nil {
		return fmt.Errorf("failed to quarantine record: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("record %s not found", id)
	}
	return nil
}

// RequeueStale resets records stuck in_flight past the timeout back to
// pending, so a worker crash mid-send never strands them.
func (r *ChangeQueueRepository) RequeueStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).Unix()
	result, err := r.db.ExecContext(ctx,
		"UPDATE sync_queue SET status = 'pending', in_flight_since = NULL WHERE status = 'in_flight' AND in_flight_since <= ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale records: %w", err)
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

// PendingSummary returns deliverable record counts per entity type.
func (r *ChangeQueueRepository) PendingSummary(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT entity_type, COUNT(*) FROM sync_queue WHERE status IN ('pending', 'failed', 'in_flight') GROUP BY entity_type",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize queue: %w", err)
	}
	defer rows.Close()

	summary := make(map[string]int)
	for rows.Next() {
		var entityType string
		var count int
		if err := rows.Scan(&entityType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		summary[entityType] = count
	}
	return summary, rows.Err()
}

// ListByStatus returns records in the given status, oldest first.
func (r *ChangeQueueRepository) ListByStatus(ctx context.Context, status models.ChangeStatus, limit int) ([]*models.ChangeRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+queueColumns+" FROM sync_queue WHERE status = ? ORDER BY seq LIMIT ?",
		string(status), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []*models.ChangeRecord
	for rows.Next() {
		record, err := scanQueueRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// HasUnacked reports whether the entity still has undelivered changes.
func (r *ChangeQueueRepository) HasUnacked(ctx context.Context, entityType, entityID string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sync_queue WHERE entity_type = ? AND entity_id = ? AND status IN ('pending', 'in_flight', 'failed')",
		entityType, entityID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check unacked changes: %w", err)
	}
	return count > 0, nil
}

// Clear removes records for one entity type, or every record when
// entityType is empty. Only explicit resync resets call this.
func (r *ChangeQueueRepository) Clear(ctx context.Context, entityType string) error {
	var err error
	if entityType == "" {
		_, err = r.db.ExecContext(ctx, "DELETE FROM sync_queue")
	} else {
		_, err = r.db.ExecContext(ctx, "DELETE FROM sync_queue WHERE entity_type = ?", entityType)
	}
	if err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}
	return nil
}

// scanQueueRecord scans one queue row. A record with an undecodable
// payload comes back with Payload nil and the decode error in LastError.
func scanQueueRecord(rows *sql.Rows) (*models.ChangeRecord, error) {
	var (
		record     models.ChangeRecord
		operation  string
		payload    []byte
		localTS    int64
		status     string
		lastError  sql.NullString
		enqueuedAt time.Time
	)

	err := rows.Scan(&record.Seq, &record.ID, &record.EntityType, &record.EntityID, &operation,
		&payload, &record.OriginBranch, &localTS, &record.Version, &status,
		&record.Attempts, &lastError, &enqueuedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan queue record: %w", err)
	}

	record.Operation = models.Operation(operation)
	record.LocalTimestamp = time.Unix(0, localTS).UTC()
	record.Status = models.ChangeStatus(status)
	record.LastError = lastError.String
	record.EnqueuedAt = enqueuedAt

	fields, err := codec.DecodePayload(payload)
	if err != nil {
		corruption := &secondary.QueueCorruptionError{ChangeID: record.ID, Err: err}
		record.Payload = nil
		record.LastError = corruption.Error()
		return &record, nil
	}
	record.Payload = fields

	return &record, nil
}

// placeholders builds "?, ?, ?" for an IN clause.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func idArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// Ensure ChangeQueueRepository implements the interface.
var _ secondary.ChangeQueueRepository = (*ChangeQueueRepository)(nil)
