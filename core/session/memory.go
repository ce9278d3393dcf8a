package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	steps    map[string][]*Step
	stepByID map[string]*Step
	answers  map[string]map[string]Answer
	files    map[string][]File
}

// NewMemoryRepository constructs an in-memory Repository for tests and development.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		sessions: make(map[string]*Session),
		steps:    make(map[string][]*Step),
		stepByID: make(map[string]*Step),
		answers:  make(map[string]map[string]Answer),
		files:    make(map[string][]File),
	}
}

// GetOrCreateActive returns a copy of the latest Active session for key or creates one.
func (m *memoryRepository) GetOrCreateActive(_ context.Context, key Key, profile Profile, now time.Time) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess := m.latestLocked(key, StatusActive); sess != nil {
		cp := *sess
		return &cp, false, nil
	}
	sess := &Session{
		ID:             uuid.NewString(),
		BotID:          key.BotID,
		UserID:         key.UserID,
		Profile:        profile,
		Status:         StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}
	m.sessions[sess.ID] = sess
	cp := *sess
	return &cp, true, nil
}

// FindLatest returns the most recently active session for key in the given status.
func (m *memoryRepository) FindLatest(_ context.Context, key Key, status Status) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sess := m.latestLocked(key, status); sess != nil {
		cp := *sess
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *memoryRepository) latestLocked(key Key, status Status) *Session {
	var best *Session
	for _, sess := range m.sessions {
		if sess.BotID != key.BotID || sess.UserID != key.UserID || sess.Status != status {
			continue
		}
		if best == nil || sess.LastActivityAt.After(best.LastActivityAt) {
			best = sess
		}
	}
	return best
}

// Get returns a session by id.
func (m *memoryRepository) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

// SaveSession updates profile, pointer and activity while the stored status still matches.
func (m *memoryRepository) SaveSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sessions[s.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != s.Status {
		return ErrStale
	}
	stored.Profile = s.Profile
	stored.CurrentBlockID = s.CurrentBlockID
	stored.LastActivityAt = s.LastActivityAt
	return nil
}

// UpdateStatus is a compare-and-set on the stored status.
func (m *memoryRepository) UpdateStatus(_ context.Context, id string, from, to Status, at time.Time, completedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != from {
		return ErrStale
	}
	stored.Status = to
	stored.LastActivityAt = at
	if completedAt != nil {
		done := *completedAt
		stored.CompletedAt = &done
	} else {
		stored.CompletedAt = nil
	}
	return nil
}

// AppendStep stores st with the next order for its session.
func (m *memoryRepository) AppendStep(_ context.Context, st *Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[st.SessionID]; !ok {
		return ErrNotFound
	}
	st.ID = uuid.NewString()
	st.Order = len(m.steps[st.SessionID]) + 1
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	cp := *st
	m.steps[st.SessionID] = append(m.steps[st.SessionID], &cp)
	m.stepByID[cp.ID] = &cp
	return nil
}

// SetStepResponse backfills the response of a step.
func (m *memoryRepository) SetStepResponse(_ context.Context, stepID string, summary string, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stepByID[stepID]
	if !ok {
		return ErrNotFound
	}
	st.Summary = &summary
	st.ResponseRaw = append([]byte(nil), raw...)
	return nil
}

// Steps lists a session's steps in order.
func (m *memoryRepository) Steps(_ context.Context, sessionID string) ([]Step, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Step, 0, len(m.steps[sessionID]))
	for _, st := range m.steps[sessionID] {
		out = append(out, *st)
	}
	return out, nil
}

// UpsertAnswer inserts or replaces the answer for (session, key).
func (m *memoryRepository) UpsertAnswer(_ context.Context, a Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byKey, ok := m.answers[a.SessionID]
	if !ok {
		byKey = make(map[string]Answer)
		m.answers[a.SessionID] = byKey
	}
	byKey[a.Key] = a
	return nil
}

// Answers lists a session's answers sorted by key.
func (m *memoryRepository) Answers(_ context.Context, sessionID string) ([]Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Answer, 0, len(m.answers[sessionID]))
	for _, a := range m.answers[sessionID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// SaveFile stores a received file.
func (m *memoryRepository) SaveFile(_ context.Context, f *File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	m.files[f.SessionID] = append(m.files[f.SessionID], *f)
	return nil
}

// Files lists a session's files in arrival order.
func (m *memoryRepository) Files(_ context.Context, sessionID string) ([]File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]File(nil), m.files[sessionID]...), nil
}

// AbandonStale abandons Active and Handoff sessions idle since before cutoff.
func (m *memoryRepository) AbandonStale(_ context.Context, cutoff, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, sess := range m.sessions {
		if (sess.Status != StatusActive && sess.Status != StatusHandoff) || !sess.LastActivityAt.Before(cutoff) {
			continue
		}
		sess.Status = StatusAbandoned
		done := now
		sess.CompletedAt = &done
		n++
	}
	return n, nil
}
