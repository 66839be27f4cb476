package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MythicalCosmic/smart-pos/internal/models"
	"github.com/MythicalCosmic/smart-pos/internal/ports/secondary"
)

// SyncStatusRepository implements secondary.SyncStatusRepository with SQLite.
type SyncStatusRepository struct {
	db *sql.DB
}

// NewSyncStatusRepository creates a new SQLite sync status repository.
func NewSyncStatusRepository(db *sql.DB) *SyncStatusRepository {
	return &SyncStatusRepository{db: db}
}

// Get retrieves the status row, or nil if no sync was attempted yet.
func (r *SyncStatusRepository) Get(ctx context.Context, entityType, branch string) (*models.SyncStatus, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT entity_type, branch, last_acked_version, last_pull_cursor, last_success_at, last_attempt_at, consecutive_failures FROM sync_status WHERE entity_type = ? AND branch = ?",
		entityType, branch,
	)
	status, err := scanStatus(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return status, err
}

// List retrieves all status rows for a branch, ordered by entity type.
func (r *SyncStatusRepository) List(ctx context.Context, branch string) ([]*models.SyncStatus, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT entity_type, branch, last_acked_version, last_pull_cursor, last_success_at, last_attempt_at, consecutive_failures FROM sync_status WHERE branch = ? ORDER BY entity_type",
		branch,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync status: %w", err)
	}
	defer rows.Close()

	var statuses []*models.SyncStatus
	for rows.Next() {
		status, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, rows.Err()
}

// RecordAttempt stamps the attempt. Success resets the failure counter and
// stamps last_success_at; failure increments it.
func (r *SyncStatusRepository) RecordAttempt(ctx context.Context, entityType, branch string, at time.Time, failed bool) error {
	ts := at.Unix()
	var query string
	if failed {
		query = `INSERT INTO sync_status (entity_type, branch, last_attempt_at, consecutive_failures)
			VALUES (?, ?, ?, 1)
			ON CONFLICT(entity_type, branch) DO UPDATE SET
				last_attempt_at = excluded.last_attempt_at,
				consecutive_failures = consecutive_failures + 1`
	} else {
		query = `INSERT INTO sync_status (entity_type, branch, last_attempt_at, last_success_at, consecutive_failures)
			VALUES (?, ?, ?, ?, 0)
			ON CONFLICT(entity_type, branch) DO UPDATE SET
				last_attempt_at = excluded.last_attempt_at,
				last_success_at = excluded.last_success_at,
				consecutive_failures = 0`
	}

	args := []any{entityType, branch, ts}
	if !failed {
		args = append(args, ts)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to record sync attempt: %w", err)
	}
	return nil
}

// SetAckedVersion raises last_acked_version, never lowering it.
func (r *SyncStatusRepository) SetAckedVersion(ctx context.Context, entityType, branch string, version int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_status (entity_type, branch, last_acked_version)
		VALUES (?, ?, ?)
		ON CONFLICT(entity_type, branch) DO UPDATE SET
			last_acked_version = MAX(last_acked_version, excluded.last_acked_version)`,
		entityType, branch, version,
	)
	if err != nil {
		return fmt.Errorf("failed to set acked version: %w", err)
	}
	return nil
}

// SetPullCursor stores the cursor of the last consumed remote change.
func (r *SyncStatusRepository) SetPullCursor(ctx context.Context, entityType, branch, cursor string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_status (entity_type, branch, last_pull_cursor)
		VALUES (?, ?, ?)
		ON CONFLICT(entity_type, branch) DO UPDATE SET
			last_pull_cursor = excluded.last_pull_cursor`,
		entityType, branch, cursor,
	)
	if err != nil {
		return fmt.Errorf("failed to set pull cursor: %w", err)
	}
	return nil
}

// Reset deletes the status row as part of an administrative resync.
func (r *SyncStatusRepository) Reset(ctx context.Context, entityType, branch string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM sync_status WHERE entity_type = ? AND branch = ?",
		entityType, branch,
	)
	if err != nil {
		return fmt.Errorf("failed to reset sync status: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStatus(row rowScanner) (*models.SyncStatus, error) {
	var (
		status    models.SyncStatus
		successAt sql.NullInt64
		attemptAt sql.NullInt64
	)
	err := row.Scan(&status.EntityType, &status.Branch, &status.LastAckedVersion,
		&status.LastPullCursor, &successAt, &attemptAt, &status.ConsecutiveFailures)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan sync status: %w", err)
	}
	if successAt.Valid {
		status.LastSuccessAt = time.Unix(successAt.Int64, 0).UTC()
	}
	if attemptAt.Valid {
		status.LastAttemptAt = time.Unix(attemptAt.Int64, 0).UTC()
	}
	return &status, nil
}

// Ensure SyncStatusRepository implements the interface.
var _ secondary.SyncStatusRepository = (*SyncStatusRepository)(nil)
