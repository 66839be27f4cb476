package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MythicalCosmic/smart-pos/internal/codec"
	"github.com/MythicalCosmic/smart-pos/internal/models"
	"github.com/MythicalCosmic/smart-pos/internal/ports/secondary"
)

// ConflictAuditRepository implements secondary.ConflictAuditRepository with
// SQLite.
type ConflictAuditRepository struct {
	db *sql.DB
}

// NewConflictAuditRepository creates a new SQLite conflict audit repository.
func NewConflictAuditRepository(db *sql.DB) *ConflictAuditRepository {
	return &ConflictAuditRepository{db: db}
}

// Record persists a resolved conflict's losing side.
func (r *ConflictAuditRepository) Record(ctx context.Context, entry *models.ConflictAudit) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ResolvedAt.IsZero() {
		entry.ResolvedAt = time.Now().UTC()
	}

	payload, err := codec.EncodePayload(entry.LoserPayload)
	if err != nil {
		return fmt.Errorf("failed to encode loser payload: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO conflict_audit (id, entity_type, entity_id, winner_branch, winner_version, loser_branch, loser_version, loser_payload, reason, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.EntityType, entry.EntityID,
		entry.WinnerBranch, entry.WinnerVersion,
		entry.LoserBranch, entry.LoserVersion,
		payload, entry.Reason, entry.ResolvedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record conflict: %w", err)
	}
	return nil
}

// List retrieves audit entries, newest first. An empty entityType lists
// across all types.
func (r *ConflictAuditRepository) List(ctx context.Context, entityType string, limit int) ([]*models.ConflictAudit, error) {
	query := "SELECT id, entity_type, entity_id, winner_branch, winner_version, loser_branch, loser_version, loser_payload, reason, resolved_at FROM conflict_audit"
	var args []any
	if entityType != "" {
		query += " WHERE entity_type = ?"
		args = append(args, entityType)
	}
	query += " ORDER BY resolved_at DESC, id LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflict audit: %w", err)
	}
	defer rows.Close()

	var entries []*models.ConflictAudit
	for rows.Next() {
		var (
			entry      models.ConflictAudit
			payload    []byte
			resolvedAt int64
		)
		err := rows.Scan(&entry.ID, &entry.EntityType, &entry.EntityID,
			&entry.WinnerBranch, &entry.WinnerVersion,
			&entry.LoserBranch, &entry.LoserVersion,
			&payload, &entry.Reason, &resolvedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conflict audit: %w", err)
		}
		entry.ResolvedAt = time.Unix(resolvedAt, 0).UTC()
		if len(payload) > 0 {
			fields, err := codec.DecodePayload(payload)
			if err != nil {
				return nil, fmt.Errorf("failed to decode loser payload for %s: %w", entry.ID, err)
			}
			entry.LoserPayload = fields
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// Ensure ConflictAuditRepository implements the interface.
var _ secondary.ConflictAuditRepository = (*ConflictAuditRepository)(nil)
