package session

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("session: not found")
	// ErrTerminal is returned when a completed or abandoned session is asked to change status.
	ErrTerminal = errors.New("session: terminal status")
	// ErrStale is returned when the stored status no longer matches the caller's copy,
	// for example after an operator closed the session from another process.
	ErrStale = errors.New("session: status changed concurrently")
)

// Repository is the persistence contract behind the Store.
//
// GetOrCreateActive must be atomic per key: concurrent callers for the same key
// observe the same Active session and never create two.
type Repository interface {
	GetOrCreateActive(ctx context.Context, key Key, profile Profile, now time.Time) (*Session, bool, error)
	FindLatest(ctx context.Context, key Key, status Status) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	// SaveSession writes the profile, current block and activity of s. It never
	// changes the status and returns ErrStale when the stored status differs from s.Status.
	SaveSession(ctx context.Context, s *Session) error
	// UpdateStatus moves session id from one status to another, stamping activity
	// with at and completed_at with completedAt. It returns ErrStale when the
	// stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time, completedAt *time.Time) error

	// AppendStep assigns st.ID, st.Order (1-based, monotonic per session) and st.CreatedAt.
	AppendStep(ctx context.Context, st *Step) error
	SetStepResponse(ctx context.Context, stepID string, summary string, raw []byte) error
	Steps(ctx context.Context, sessionID string) ([]Step, error)

	UpsertAnswer(ctx context.Context, a Answer) error
	Answers(ctx context.Context, sessionID string) ([]Answer, error)

	SaveFile(ctx context.Context, f *File) error
	Files(ctx context.Context, sessionID string) ([]File, error)

	// AbandonStale moves Active and Handoff sessions idle since before cutoff to Abandoned.
	AbandonStale(ctx context.Context, cutoff, now time.Time) (int, error)
}

// PersistenceError wraps a repository failure. It is the only error class that aborts event processing.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Code returns a stable identifier for logs.
func (e *PersistenceError) Code() string { return "PERSISTENCE_ERROR" }

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
