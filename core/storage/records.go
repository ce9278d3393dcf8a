package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/flowbot/core/session"
)

type stepRow struct {
	ID         string         `db:"id"`
	SessionID  string         `db:"session_id"`
	Order      int            `db:"step_order"`
	BlockID    string         `db:"block_id"`
	BlockLabel string         `db:"block_label"`
	ActionKind string         `db:"action_kind"`
	InputType  string         `db:"input_type"`
	UserInput  string         `db:"user_input"`
	Summary    sql.NullString `db:"response_summary"`
	Raw        sql.NullString `db:"response_raw"`
	CreatedAt  int64          `db:"created_at"`
}

func (r stepRow) step() session.Step {
	st := session.Step{
		ID:         r.ID,
		SessionID:  r.SessionID,
		BlockID:    r.BlockID,
		BlockLabel: r.BlockLabel,
		ActionKind: r.ActionKind,
		InputType:  session.InputType(r.InputType),
		UserInput:  r.UserInput,
		Order:      r.Order,
		CreatedAt:  fromMillis(r.CreatedAt),
	}
	if r.Summary.Valid {
		summary := r.Summary.String
		st.Summary = &summary
	}
	if r.Raw.Valid {
		st.ResponseRaw = []byte(r.Raw.String)
	}
	return st
}

// AppendStep computes the next order inside the insert itself. Two writers racing
// on one session collide on UNIQUE(session_id, step_order) and the loser retries.
func (s *Sessions) AppendStep(ctx context.Context, st *session.Step) error {
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	query := s.db.Rebind(`INSERT INTO steps
			(id, session_id, step_order, block_id, block_label, action_kind, input_type, user_input, created_at)
		SELECT ?, ?, COALESCE(MAX(step_order), 0) + 1, ?, ?, ?, ?, ?, CAST(? AS BIGINT)
		FROM steps WHERE session_id = ?
		RETURNING step_order`)

	transient := func(err error) bool { return isBusy(err) || isUniqueViolation(err) }
	var id string
	var order int
	err := retry(ctx, transient, func() error {
		id = uuid.NewString()
		return s.db.QueryRowxContext(ctx, query,
			id, st.SessionID, st.BlockID, st.BlockLabel, st.ActionKind,
			string(st.InputType), st.UserInput, millis(st.CreatedAt), st.SessionID,
		).Scan(&order)
	})
	if err != nil {
		return fmt.Errorf("insert step: %w", err)
	}
	st.ID = id
	st.Order = order
	return nil
}

// SetStepResponse backfills the transport response of a recorded step.
func (s *Sessions) SetStepResponse(ctx context.Context, stepID string, summary string, raw []byte) error {
	rawCol := sql.NullString{}
	if raw != nil {
		rawCol = sql.NullString{String: string(raw), Valid: true}
	}
	var n int64
	err := retry(ctx, isBusy, func() error {
		res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE steps SET response_summary = ?, response_raw = ? WHERE id = ?`),
			summary, rawCol, stepID)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update step: %w", err)
	}
	if n == 0 {
		return session.ErrNotFound
	}
	return nil
}

// Steps lists a session's steps by order.
func (s *Sessions) Steps(ctx context.Context, sessionID string) ([]session.Step, error) {
	var rows []stepRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT id, session_id, step_order, block_id, block_label,
			action_kind, input_type, user_input, response_summary, response_raw, created_at
		FROM steps WHERE session_id = ? ORDER BY step_order`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	out := make([]session.Step, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.step())
	}
	return out, nil
}

type answerRow struct {
	SessionID     string `db:"session_id"`
	Key           string `db:"answer_key"`
	Value         string `db:"value"`
	SourceBlockID string `db:"source_block_id"`
	CollectedAt   int64  `db:"collected_at"`
}

// UpsertAnswer keeps one value per (session, key); the latest write wins.
func (s *Sessions) UpsertAnswer(ctx context.Context, a session.Answer) error {
	row := answerRow{
		SessionID:     a.SessionID,
		Key:           a.Key,
		Value:         a.Value,
		SourceBlockID: a.SourceBlockID,
		CollectedAt:   millis(a.CollectedAt),
	}
	err := retry(ctx, isBusy, func() error {
		_, err := s.db.NamedExecContext(ctx, `INSERT INTO answers (session_id, answer_key, value, source_block_id, collected_at)
			VALUES (:session_id, :answer_key, :value, :source_block_id, :collected_at)
			ON CONFLICT (session_id, answer_key) DO UPDATE SET
				value = excluded.value,
				source_block_id = excluded.source_block_id,
				collected_at = excluded.collected_at`, row)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}
	return nil
}

// Answers lists a session's answers sorted by key.
func (s *Sessions) Answers(ctx context.Context, sessionID string) ([]session.Answer, error) {
	var rows []answerRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT session_id, answer_key, value, source_block_id, collected_at
		FROM answers WHERE session_id = ? ORDER BY answer_key`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	out := make([]session.Answer, 0, len(rows))
	for _, r := range rows {
		out = append(out, session.Answer{
			SessionID:     r.SessionID,
			Key:           r.Key,
			Value:         r.Value,
			SourceBlockID: r.SourceBlockID,
			CollectedAt:   fromMillis(r.CollectedAt),
		})
	}
	return out, nil
}

type fileRow struct {
	ID        string `db:"id"`
	SessionID string `db:"session_id"`
	StepID    string `db:"step_id"`
	FileID    string `db:"file_id"`
	Kind      string `db:"kind"`
	Name      string `db:"name"`
	MIME      string `db:"mime"`
	Size      int64  `db:"size"`
	LocalPath string `db:"local_path"`
	CreatedAt int64  `db:"created_at"`
}

// SaveFile records a file the user sent.
func (s *Sessions) SaveFile(ctx context.Context, f *session.File) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	row := fileRow{
		ID:        f.ID,
		SessionID: f.SessionID,
		StepID:    f.StepID,
		FileID:    f.FileID,
		Kind:      f.Kind,
		Name:      f.Name,
		MIME:      f.MIME,
		Size:      f.Size,
		LocalPath: f.LocalPath,
		CreatedAt: millis(f.CreatedAt),
	}
	err := retry(ctx, isBusy, func() error {
		_, err := s.db.NamedExecContext(ctx, `INSERT INTO session_files
				(id, session_id, step_id, file_id, kind, name, mime, size, local_path, created_at)
			VALUES (:id, :session_id, :step_id, :file_id, :kind, :name, :mime, :size, :local_path, :created_at)`, row)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

// Files lists a session's files in arrival order.
func (s *Sessions) Files(ctx context.Context, sessionID string) ([]session.File, error) {
	var rows []fileRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT id, session_id, step_id, file_id, kind, name, mime,
			size, local_path, created_at
		FROM session_files WHERE session_id = ? ORDER BY created_at, id`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	out := make([]session.File, 0, len(rows))
	for _, r := range rows {
		out = append(out, session.File{
			ID:        r.ID,
			SessionID: r.SessionID,
			StepID:    r.StepID,
			FileID:    r.FileID,
			Kind:      r.Kind,
			Name:      r.Name,
			MIME:      r.MIME,
			Size:      r.Size,
			LocalPath: r.LocalPath,
			CreatedAt: fromMillis(r.CreatedAt),
		})
	}
	return out, nil
}
