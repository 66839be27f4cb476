package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MythicalCosmic/smart-pos/internal/codec"
	"github.com/MythicalCosmic/smart-pos/internal/ports/secondary"
)

// EntityStore implements secondary.EntityStore with SQLite. It holds the
// authoritative current state per entity plus the branch-local version
// counters that stamp outgoing changes.
type EntityStore struct {
	db *sql.DB
}

// NewEntityStore creates a new SQLite entity store.
func NewEntityStore(db *sql.DB) *EntityStore {
	return &EntityStore{db: db}
}

// Get retrieves the stored state, or nil if the entity is unknown.
func (s *EntityStore) Get(ctx context.Context, entityType, entityID string) (*secondary.EntityRecord, error) {
	var (
		record    secondary.EntityRecord
		payload   []byte
		deleted   int
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT entity_type, entity_id, payload, version, origin_branch, is_deleted, updated_at FROM entities WHERE entity_type = ? AND entity_id = ?",
		entityType, entityID,
	).Scan(&record.EntityType, &record.EntityID, &payload, &record.Version,
		&record.OriginBranch, &deleted, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity %s/%s: %w", entityType, entityID, err)
	}

	fields, err := codec.DecodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode entity %s/%s: %w", entityType, entityID, err)
	}
	record.Payload = fields
	record.Deleted = deleted != 0
	record.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &record, nil
}

// Apply upserts the winning field set for an entity. Tombstones are stored
// as rows with is_deleted set, never as physical deletes, so late changes
// from a disconnected branch can still lose against them.
func (s *EntityStore) Apply(ctx context.Context, record *secondary.EntityRecord) error {
	payload, err := codec.EncodePayload(record.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode entity %s/%s: %w", record.EntityType, record.EntityID, err)
	}

	deleted := 0
	if record.Deleted {
		deleted = 1
	}
	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entities (entity_type, entity_id, payload, version, origin_branch, is_deleted, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_type, entity_id) DO UPDATE SET
			payload = excluded.payload,
			version = excluded.version,
			origin_branch = excluded.origin_branch,
			is_deleted = excluded.is_deleted,
			updated_at = excluded.updated_at`,
		record.EntityType, record.EntityID, payload, record.Version,
		record.OriginBranch, deleted, updatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to apply entity %s/%s: %w", record.EntityType, record.EntityID, err)
	}
	return nil
}

// NextVersion atomically increments and returns the branch-local version
// counter for an entity. Counters never reset, so replays of old changes
// always carry a lower version than fresh edits.
func (s *EntityStore) NextVersion(ctx context.Context, entityType, entityID string) (int64, error) {
	var version int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO entity_versions (entity_type, entity_id, version)
		VALUES (?, ?, 1)
		ON CONFLICT(entity_type, entity_id) DO UPDATE SET version = version + 1
		RETURNING version`,
		entityType, entityID,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to bump version for %s/%s: %w", entityType, entityID, err)
	}
	return version, nil
}

// SeedVersion raises the version counter to at least the given value.
func (s *EntityStore) SeedVersion(ctx context.Context, entityType, entityID string, atLeast int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entity_versions (entity_type, entity_id, version)
		VALUES (?, ?, ?)
		ON CONFLICT(entity_type, entity_id) DO UPDATE SET version = MAX(version, excluded.version)`,
		entityType, entityID, atLeast,
	)
	if err != nil {
		return fmt.Errorf("failed to seed version for %s/%s: %w", entityType, entityID, err)
	}
	return nil
}

// Ensure EntityStore implements the interface.
var _ secondary.EntityStore = (*EntityStore)(nil)
