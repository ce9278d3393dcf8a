// Package storage implements the session repository and the bot definition
// store on sqlx, for PostgreSQL in production and SQLite for single-node
// deployments and tests.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/flowbot/core/session"
)

// Sessions is a session.Repository backed by SQL.
type Sessions struct {
	db *sqlx.DB
}

var _ session.Repository = (*Sessions)(nil)

// NewSessions wraps an open, migrated database.
func NewSessions(db *sqlx.DB) *Sessions {
	return &Sessions{db: db}
}

const sessionColumns = `id, bot_id, external_user_id, username, first_name, last_name, language,
	current_block_id, status, started_at, last_activity_at, completed_at`

type sessionRow struct {
	ID             string        `db:"id"`
	BotID          string        `db:"bot_id"`
	UserID         string        `db:"external_user_id"`
	Username       string        `db:"username"`
	FirstName      string        `db:"first_name"`
	LastName       string        `db:"last_name"`
	Language       string        `db:"language"`
	CurrentBlockID string        `db:"current_block_id"`
	Status         string        `db:"status"`
	StartedAt      int64         `db:"started_at"`
	LastActivityAt int64         `db:"last_activity_at"`
	CompletedAt    sql.NullInt64 `db:"completed_at"`
}

func newSessionRow(s *session.Session) sessionRow {
	row := sessionRow{
		ID:             s.ID,
		BotID:          s.BotID,
		UserID:         s.UserID,
		Username:       s.Profile.Username,
		FirstName:      s.Profile.FirstName,
		LastName:       s.Profile.LastName,
		Language:       s.Profile.Language,
		CurrentBlockID: s.CurrentBlockID,
		Status:         string(s.Status),
		StartedAt:      millis(s.StartedAt),
		LastActivityAt: millis(s.LastActivityAt),
	}
	if s.CompletedAt != nil {
		row.CompletedAt = sql.NullInt64{Int64: millis(*s.CompletedAt), Valid: true}
	}
	return row
}

func (r sessionRow) session() *session.Session {
	s := &session.Session{
		ID:     r.ID,
		BotID:  r.BotID,
		UserID: r.UserID,
		Profile: session.Profile{
			Username:  r.Username,
			FirstName: r.FirstName,
			LastName:  r.LastName,
			Language:  r.Language,
		},
		CurrentBlockID: r.CurrentBlockID,
		Status:         session.Status(r.Status),
		StartedAt:      fromMillis(r.StartedAt),
		LastActivityAt: fromMillis(r.LastActivityAt),
	}
	if r.CompletedAt.Valid {
		t := fromMillis(r.CompletedAt.Int64)
		s.CompletedAt = &t
	}
	return s
}

// GetOrCreateActive relies on the partial unique index over active sessions:
// a losing concurrent insert is dropped and the winner is read back.
func (s *Sessions) GetOrCreateActive(ctx context.Context, key session.Key, profile session.Profile, now time.Time) (*session.Session, bool, error) {
	existing, err := s.FindLatest(ctx, key, session.StatusActive)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, session.ErrNotFound) {
		return nil, false, err
	}

	fresh := &session.Session{
		ID:             uuid.NewString(),
		BotID:          key.BotID,
		UserID:         key.UserID,
		Profile:        profile,
		Status:         session.StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}
	var inserted int64
	err = retry(ctx, isBusy, func() error {
		res, err := s.db.NamedExecContext(ctx, `INSERT INTO sessions (`+sessionColumns+`)
			VALUES (:id, :bot_id, :external_user_id, :username, :first_name, :last_name, :language,
				:current_block_id, :status, :started_at, :last_activity_at, :completed_at)
			ON CONFLICT DO NOTHING`, newSessionRow(fresh))
		if err != nil {
			return err
		}
		inserted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("insert session: %w", err)
	}
	if inserted == 1 {
		created := newSessionRow(fresh).session()
		return created, true, nil
	}

	winner, err := s.FindLatest(ctx, key, session.StatusActive)
	if err != nil {
		return nil, false, err
	}
	return winner, false, nil
}

// FindLatest returns the most recently active session for key in status.
func (s *Sessions) FindLatest(ctx context.Context, key session.Key, status session.Status) (*session.Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+sessionColumns+` FROM sessions
		WHERE bot_id = ? AND external_user_id = ? AND status = ?
		ORDER BY last_activity_at DESC LIMIT 1`), key.BotID, key.UserID, string(status))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return row.session(), nil
}

// Get loads a session by id.
func (s *Sessions) Get(ctx context.Context, id string) (*session.Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return row.session(), nil
}

// SaveSession writes profile, pointer and activity. The update is guarded by
// the status the caller holds, so a concurrent close is never reverted.
func (s *Sessions) SaveSession(ctx context.Context, sess *session.Session) error {
	var n int64
	err := retry(ctx, isBusy, func() error {
		res, err := s.db.NamedExecContext(ctx, `UPDATE sessions SET
				username = :username, first_name = :first_name, last_name = :last_name, language = :language,
				current_block_id = :current_block_id, last_activity_at = :last_activity_at
			WHERE id = :id AND status = :status`, newSessionRow(sess))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n == 0 {
		return s.missingOrStale(ctx, sess.ID)
	}
	return nil
}

// UpdateStatus moves a session between statuses if it is still in from.
func (s *Sessions) UpdateStatus(ctx context.Context, id string, from, to session.Status, at time.Time, completedAt *time.Time) error {
	var done sql.NullInt64
	if completedAt != nil {
		done = sql.NullInt64{Int64: millis(*completedAt), Valid: true}
	}
	var n int64
	err := retry(ctx, isBusy, func() error {
		res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE sessions SET status = ?, last_activity_at = ?, completed_at = ?
			WHERE id = ? AND status = ?`),
			string(to), millis(at), done, id, string(from))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	if n == 0 {
		return s.missingOrStale(ctx, id)
	}
	return nil
}

func (s *Sessions) missingOrStale(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return session.ErrStale
}

// AbandonStale moves idle active and handoff sessions to abandoned.
func (s *Sessions) AbandonStale(ctx context.Context, cutoff, now time.Time) (int, error) {
	var n int64
	err := retry(ctx, isBusy, func() error {
		res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE sessions SET status = ?, completed_at = ?
			WHERE status IN (?, ?) AND last_activity_at < ?`),
			string(session.StatusAbandoned), millis(now),
			string(session.StatusActive), string(session.StatusHandoff), millis(cutoff))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("abandon stale sessions: %w", err)
	}
	return int(n), nil
}
