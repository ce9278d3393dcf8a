package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/m3rciful/flowbot/core/logger"
)

// Store applies lifecycle rules on top of a Repository.
type Store struct {
	repo Repository
	now  func() time.Time
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore wraps repo with the session lifecycle policy.
func NewStore(repo Repository, opts ...StoreOption) *Store {
	s := &Store{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Repository exposes the underlying repository for read-only queries.
func (s *Store) Repository() Repository { return s.repo }

// Now returns the store's current time.
func (s *Store) Now() time.Time { return s.now().UTC() }

// GetOrCreateActive returns the most recently active Active session for the pair,
// creating one when none exists. Existing sessions get their profile refreshed and
// activity bumped.
func (s *Store) GetOrCreateActive(ctx context.Context, botID, userID string, profile Profile) (*Session, error) {
	now := s.Now()
	key := Key{BotID: botID, UserID: userID}
	sess, created, err := s.repo.GetOrCreateActive(ctx, key, profile, now)
	if err != nil {
		return nil, persistErr("get_or_create_session", err)
	}
	if created {
		logger.Info(logger.WithSession(ctx, sess.ID), "session", "session.created",
			slog.String("status", "ok"),
		)
		return sess, nil
	}
	sess.Profile = sess.Profile.Merge(profile)
	sess.LastActivityAt = now
	if err := s.repo.SaveSession(ctx, sess); err != nil {
		return nil, persistErr("touch_session", err)
	}
	return sess, nil
}

// HandoffActive returns the pair's latest session in handoff, or nil when there is none.
func (s *Store) HandoffActive(ctx context.Context, botID, userID string) (*Session, error) {
	sess, err := s.repo.FindLatest(ctx, Key{BotID: botID, UserID: userID}, StatusHandoff)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("find_handoff", err)
	}
	return sess, nil
}

// Touch bumps the session's activity without moving its pointer.
func (s *Store) Touch(ctx context.Context, sess *Session) error {
	prev := sess.LastActivityAt
	sess.LastActivityAt = s.Now()
	if err := s.repo.SaveSession(ctx, sess); err != nil {
		sess.LastActivityAt = prev
		return persistErr("touch_session", err)
	}
	return nil
}

// SetCurrentBlock moves the session pointer and bumps activity.
func (s *Store) SetCurrentBlock(ctx context.Context, sess *Session, blockID string) error {
	prev := sess.CurrentBlockID
	sess.CurrentBlockID = blockID
	sess.LastActivityAt = s.Now()
	if err := s.repo.SaveSession(ctx, sess); err != nil {
		sess.CurrentBlockID = prev
		return persistErr("set_current_block", err)
	}
	return nil
}

// Get loads a session by id.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := s.repo.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, persistErr("get_session", err)
	}
	return sess, nil
}

// Close ends the session with id as Completed, or as Abandoned when abandon is
// set. It is how an operator releases a session held in Handoff.
func (s *Store) Close(ctx context.Context, id string, abandon bool) (*Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if abandon {
		err = s.MarkAbandoned(ctx, sess)
	} else {
		err = s.MarkCompleted(ctx, sess)
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// MarkHandoff moves the session under operator control.
func (s *Store) MarkHandoff(ctx context.Context, sess *Session) error {
	return s.transition(ctx, sess, StatusHandoff)
}

// MarkCompleted closes the session successfully.
func (s *Store) MarkCompleted(ctx context.Context, sess *Session) error {
	return s.transition(ctx, sess, StatusCompleted)
}

// MarkAbandoned closes the session without completion.
func (s *Store) MarkAbandoned(ctx context.Context, sess *Session) error {
	return s.transition(ctx, sess, StatusAbandoned)
}

// transition enforces: same status is a no-op, completed and abandoned are final.
func (s *Store) transition(ctx context.Context, sess *Session, to Status) error {
	from := sess.Status
	if from == to {
		return nil
	}
	if from.Terminal() {
		return ErrTerminal
	}
	now := s.Now()
	sess.Status = to
	sess.LastActivityAt = now
	if to.Terminal() {
		sess.CompletedAt = &now
	}
	if err := s.repo.UpdateStatus(ctx, sess.ID, from, to, now, sess.CompletedAt); err != nil {
		sess.Status = from
		sess.CompletedAt = nil
		return persistErr("transition_session", err)
	}
	logger.Info(logger.WithSession(ctx, sess.ID), "session", "session.transition",
		slog.String("status", "ok"),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
	return nil
}

// AppendStep records a step; the repository assigns its order.
func (s *Store) AppendStep(ctx context.Context, st *Step) error {
	if st.CreatedAt.IsZero() {
		st.CreatedAt = s.Now()
	}
	if err := s.repo.AppendStep(ctx, st); err != nil {
		return persistErr("append_step", err)
	}
	return nil
}

// SetStepResponse backfills the transport response of a recorded step.
func (s *Store) SetStepResponse(ctx context.Context, st *Step, summary string, raw []byte) error {
	if err := s.repo.SetStepResponse(ctx, st.ID, summary, raw); err != nil {
		return persistErr("set_step_response", err)
	}
	st.Summary = &summary
	st.ResponseRaw = raw
	return nil
}

// SaveAnswer upserts a collected answer by (session, key).
func (s *Store) SaveAnswer(ctx context.Context, sess *Session, key, value, sourceBlockID string) error {
	a := Answer{
		SessionID:     sess.ID,
		Key:           key,
		Value:         value,
		SourceBlockID: sourceBlockID,
		CollectedAt:   s.Now(),
	}
	if err := s.repo.UpsertAnswer(ctx, a); err != nil {
		return persistErr("upsert_answer", err)
	}
	return nil
}

// SaveFile records a file the user sent.
func (s *Store) SaveFile(ctx context.Context, f *File) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.Now()
	}
	if err := s.repo.SaveFile(ctx, f); err != nil {
		return persistErr("save_file", err)
	}
	return nil
}

// AbandonStale abandons Active and Handoff sessions idle for longer than olderThan.
func (s *Store) AbandonStale(ctx context.Context, olderThan time.Duration) (int, error) {
	now := s.Now()
	n, err := s.repo.AbandonStale(ctx, now.Add(-olderThan), now)
	if err != nil {
		return 0, persistErr("abandon_stale", err)
	}
	if n > 0 {
		logger.Info(ctx, "session", "session.abandon_stale",
			slog.String("status", "ok"),
			slog.Int("count", n),
		)
	}
	return n, nil
}
