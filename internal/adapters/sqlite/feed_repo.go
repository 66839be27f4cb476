package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/MythicalCosmic/smart-pos/internal/codec"
	"github.com/MythicalCosmic/smart-pos/internal/models"
	"github.com/MythicalCosmic/smart-pos/internal/ports/secondary"
)

// CloudFeedRepository implements secondary.CloudFeedRepository with SQLite.
// It is the cloud authority's ordered change feed: one global sequence
// space, dedup on change ID, cursors that are stable resume points.
type CloudFeedRepository struct {
	db *sql.DB
}

// NewCloudFeedRepository creates a new SQLite cloud feed repository.
func NewCloudFeedRepository(db *sql.DB) *CloudFeedRepository {
	return &CloudFeedRepository{db: db}
}

// Seen reports whether a change ID was already accepted. Re-delivery of an
// accepted ID is a no-op, which keeps pushes safely retryable.
func (r *CloudFeedRepository) Seen(ctx context.Context, changeID string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM cloud_changes WHERE change_id = ?", changeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check change %s: %w", changeID, err)
	}
	return count > 0, nil
}

// Append adds an accepted change to the feed. A duplicate change ID is
// ignored rather than erroring, so the seen check and the append do not
// need to share a transaction.
func (r *CloudFeedRepository) Append(ctx context.Context, record *models.ChangeRecord) error {
	payload, err := codec.EncodePayload(record.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode change %s: %w", record.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO cloud_changes (change_id, entity_type, entity_id, operation, payload, origin_branch, local_timestamp, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(change_id) DO NOTHING`,
		record.ID, record.EntityType, record.EntityID, string(record.Operation),
		payload, record.OriginBranch, record.LocalTimestamp.UnixNano(), record.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to append change %s: %w", record.ID, err)
	}
	return nil
}

// Read returns up to limit changes after the cursor, excluding those that
// originated from the requesting branch. The cursor still advances over
// excluded rows, so a branch that only hears its own echoes keeps making
// progress.
func (r *CloudFeedRepository) Read(ctx context.Context, excludeBranch, cursor string, limit int) (*secondary.FeedPage, error) {
	after, err := parseCursor(cursor)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT feed_seq, change_id, entity_type, entity_id, operation, payload, origin_branch, local_timestamp, version
		FROM cloud_changes
		WHERE feed_seq > ?
		ORDER BY feed_seq
		LIMIT ?`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read change feed: %w", err)
	}
	defer rows.Close()

	page := &secondary.FeedPage{NextCursor: cursor}
	for rows.Next() {
		var (
			feedSeq   int64
			record    models.ChangeRecord
			operation string
			payload   []byte
			localTS   int64
		)
		err := rows.Scan(&feedSeq, &record.ID, &record.EntityType, &record.EntityID,
			&operation, &payload, &record.OriginBranch, &localTS, &record.Version)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed row: %w", err)
		}

		page.NextCursor = strconv.FormatInt(feedSeq, 10)
		if record.OriginBranch == excludeBranch {
			continue
		}

		fields, err := codec.DecodePayload(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode change %s: %w", record.ID, err)
		}
		record.Operation = models.Operation(operation)
		record.Payload = fields
		record.LocalTimestamp = time.Unix(0, localTS).UTC()
		page.Records = append(page.Records, &record)
	}
	return page, rows.Err()
}

// parseCursor decodes the opaque cursor. Empty means start of feed.
func parseCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}
	after, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid feed cursor %q: %w", cursor, err)
	}
	return after, nil
}

// Ensure CloudFeedRepository implements the interface.
var _ secondary.CloudFeedRepository = (*CloudFeedRepository)(nil)
