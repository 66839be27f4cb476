package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MythicalCosmic/smart-pos/internal/models"
	"github.com/MythicalCosmic/smart-pos/internal/ports/secondary"
)

// SessionRepository implements secondary.SessionRepository with SQLite.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SQLite session repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Open creates a new session. Any previously open session is closed first;
// a terminal has at most one open session.
func (r *SessionRepository) Open(ctx context.Context, session *models.ActiveSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.OpenedAt.IsZero() {
		session.OpenedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin session transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE active_sessions SET closed_at = ? WHERE closed_at IS NULL",
		session.OpenedAt,
	); err != nil {
		return fmt.Errorf("failed to close previous session: %w", err)
	}

	offline := 0
	if session.Offline {
		offline = 1
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO active_sessions (id, branch, cashier, shift_ref, offline, opened_at) VALUES (?, ?, ?, ?, ?, ?)",
		session.ID, session.Branch, session.Cashier, session.ShiftRef, offline, session.OpenedAt,
	); err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

// Current returns the open session, or nil if none.
func (r *SessionRepository) Current(ctx context.Context) (*models.ActiveSession, error) {
	var (
		session  models.ActiveSession
		shiftRef sql.NullString
		offline  int
		closedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT id, branch, cashier, shift_ref, offline, opened_at, closed_at FROM active_sessions WHERE closed_at IS NULL ORDER BY opened_at DESC LIMIT 1",
	).Scan(&session.ID, &session.Branch, &session.Cashier, &shiftRef, &offline, &session.OpenedAt, &closedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current session: %w", err)
	}
	session.ShiftRef = shiftRef.String
	session.Offline = offline != 0
	if closedAt.Valid {
		session.ClosedAt = closedAt.Time
	}
	return &session, nil
}

// Close stamps closed_at on the open session. Closing with no open session
// is a no-op.
func (r *SessionRepository) Close(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE active_sessions SET closed_at = ? WHERE closed_at IS NULL",
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}

// Ensure SessionRepository implements the interface.
var _ secondary.SessionRepository = (*SessionRepository)(nil)
