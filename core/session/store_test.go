package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore() (*Store, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	return NewStore(NewMemoryRepository(), WithClock(clock.Now)), clock
}

func TestGetOrCreateActiveConcurrentSingleSession(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	const workers = 64
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := store.GetOrCreateActive(ctx, "bot", "42", Profile{})
			if err == nil {
				ids[i] = sess.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		require.NotEmpty(t, id)
		assert.Equal(t, ids[0], id)
	}
}

func TestGetOrCreateActiveRefreshesProfile(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	first, err := store.GetOrCreateActive(ctx, "bot", "42", Profile{Username: "ann", FirstName: "Ann"})
	require.NoError(t, err)
	assert.Equal(t, first.StartedAt, first.LastActivityAt)

	clock.Advance(time.Minute)
	again, err := store.GetOrCreateActive(ctx, "bot", "42", Profile{FirstName: "Anna"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "ann", again.Profile.Username)
	assert.Equal(t, "Anna", again.Profile.FirstName)
	assert.Equal(t, first.StartedAt.Add(time.Minute), again.LastActivityAt)

	other, err := store.GetOrCreateActive(ctx, "bot", "43", Profile{})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestTransitionPolicy(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	sess, err := store.GetOrCreateActive(ctx, "bot", "1", Profile{})
	require.NoError(t, err)

	require.NoError(t, store.MarkHandoff(ctx, sess))
	require.NoError(t, store.MarkHandoff(ctx, sess))
	assert.Equal(t, StatusHandoff, sess.Status)
	assert.Nil(t, sess.CompletedAt)

	handoff, err := store.HandoffActive(ctx, "bot", "1")
	require.NoError(t, err)
	require.NotNil(t, handoff)
	assert.Equal(t, sess.ID, handoff.ID)

	fresh, err := store.GetOrCreateActive(ctx, "bot", "1", Profile{})
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, fresh.ID)

	require.NoError(t, store.MarkCompleted(ctx, sess))
	require.NotNil(t, sess.CompletedAt)
	require.NoError(t, store.MarkCompleted(ctx, sess))
	assert.ErrorIs(t, store.MarkAbandoned(ctx, sess), ErrTerminal)
	assert.ErrorIs(t, store.MarkHandoff(ctx, sess), ErrTerminal)

	none, err := store.HandoffActive(ctx, "bot", "1")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestAnswerUpsertKeepsLatest(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	sess, err := store.GetOrCreateActive(ctx, "bot", "1", Profile{})
	require.NoError(t, err)

	require.NoError(t, store.SaveAnswer(ctx, sess, "email", "a@x.io", "4"))
	require.NoError(t, store.SaveAnswer(ctx, sess, "email", "b@x.io", "4"))
	require.NoError(t, store.SaveAnswer(ctx, sess, "phone", "+100", "7"))

	answers, err := store.Repository().Answers(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, answers, 2)
	assert.Equal(t, "email", answers[0].Key)
	assert.Equal(t, "b@x.io", answers[0].Value)
}

func TestStepOrderAndBackfill(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	sess, err := store.GetOrCreateActive(ctx, "bot", "1", Profile{})
	require.NoError(t, err)

	var steps []*Step
	for _, id := range []string{"1", "2", "3"} {
		st := &Step{SessionID: sess.ID, BlockID: id, InputType: InputText}
		require.NoError(t, store.AppendStep(ctx, st))
		steps = append(steps, st)
	}
	assert.Equal(t, 1, steps[0].Order)
	assert.Equal(t, 3, steps[2].Order)

	require.NoError(t, store.SetStepResponse(ctx, steps[1], "message_id=9", []byte(`{"id":9}`)))

	stored, err := store.Repository().Steps(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Nil(t, stored[0].Summary)
	require.NotNil(t, stored[1].Summary)
	assert.Equal(t, "message_id=9", *stored[1].Summary)
}

func TestAbandonStale(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	old, err := store.GetOrCreateActive(ctx, "bot", "1", Profile{})
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)
	recent, err := store.GetOrCreateActive(ctx, "bot", "2", Profile{})
	require.NoError(t, err)

	n, err := store.AbandonStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.Repository().Get(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAbandoned, got.Status)
	got, err = store.Repository().Get(ctx, recent.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
}

type failingRepo struct {
	Repository
}

func (failingRepo) SaveSession(context.Context, *Session) error {
	return errors.New("disk full")
}

func TestRepositoryFailuresArePersistenceErrors(t *testing.T) {
	store := NewStore(failingRepo{Repository: NewMemoryRepository()})
	ctx := context.Background()

	sess, err := store.GetOrCreateActive(ctx, "bot", "1", Profile{})
	require.NoError(t, err)

	err = store.SetCurrentBlock(ctx, sess, "2")
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "PERSISTENCE_ERROR", pe.Code())
	assert.Equal(t, "set_current_block", pe.Op)
	assert.Empty(t, sess.CurrentBlockID)

	_, err = store.GetOrCreateActive(ctx, "bot", "1", Profile{})
	require.ErrorAs(t, err, &pe)
}

func TestStaleCopyCannotReopenClosedSession(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	sess, err := store.GetOrCreateActive(ctx, "bot", "1", Profile{})
	require.NoError(t, err)
	require.NoError(t, store.MarkHandoff(ctx, sess))

	closed, err := store.Close(ctx, sess.ID, true)
	require.NoError(t, err)
	assert.Equal(t, StatusAbandoned, closed.Status)

	err = store.MarkCompleted(ctx, sess)
	assert.ErrorIs(t, err, ErrStale)
	assert.Equal(t, StatusHandoff, sess.Status)
	assert.ErrorIs(t, store.SetCurrentBlock(ctx, sess, "2"), ErrStale)
	assert.ErrorIs(t, store.Touch(ctx, sess), ErrStale)

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAbandoned, got.Status)
	assert.Empty(t, got.CurrentBlockID)

	_, err = store.Close(ctx, "missing", false)
	assert.ErrorIs(t, err, ErrNotFound)
}
