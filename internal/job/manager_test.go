package job

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingObserver struct {
	mu     sync.Mutex
	states []domain.JobState
}

func (r *recordingObserver) ObserveJob(_ domain.JobKind, state domain.JobState, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *recordingObserver) seen() []domain.JobState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.JobState(nil), r.states...)
}

func newTestManager(opts ...Option) *Manager {
	return NewManager(NewMemoryStore(), testLogger(), opts...)
}

func createMediaJob(t *testing.T, m *Manager) *domain.Job {
	t.Helper()
	job, err := m.Create(context.Background(), domain.MediaTarget(uuid.New()))
	require.NoError(t, err)
	return job
}

func TestManager_Create(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	t.Run("media target", func(t *testing.T) {
		job := createMediaJob(t, m)
		assert.Equal(t, domain.JobKindMedia, job.Kind)
		assert.Equal(t, domain.JobStatePending, job.State)

		status, err := m.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatePending, status.State)
	})

	t.Run("chunk target", func(t *testing.T) {
		ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
		job, err := m.Create(ctx, domain.ChunkTarget(uuid.New(), 2, ids))
		require.NoError(t, err)
		assert.Equal(t, domain.JobKindBatchChunk, job.Kind)
		assert.Equal(t, 3, job.Total)
	})

	t.Run("unknown job", func(t *testing.T) {
		_, err := m.Get(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrJobNotFound)
	})
}

func TestManager_Lifecycle(t *testing.T) {
	obs := &recordingObserver{}
	m := newTestManager(WithObserver(obs))
	ctx := context.Background()
	job := createMediaJob(t, m)

	started, err := m.Start(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateProcessing, started.State)

	t.Run("start is idempotent while processing", func(t *testing.T) {
		again, err := m.Start(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStateProcessing, again.State)
	})

	require.NoError(t, m.UpdateProgress(ctx, job.ID, 3, 10, "frame 3"))
	status, err := m.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, status.Current)
	assert.Equal(t, 10, status.Total)

	require.NoError(t, m.Complete(ctx, job.ID, domain.MediaResult{FacesFound: 4}))

	status, err = m.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateSuccess, status.State)

	var result domain.MediaResult
	require.NoError(t, json.Unmarshal(status.Result, &result))
	assert.Equal(t, 4, result.FacesFound)
	assert.Equal(t, []domain.JobState{domain.JobStateSuccess}, obs.seen())
}

func TestManager_TerminalStatesDoNotRegress(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	job := createMediaJob(t, m)
	_, err := m.Start(ctx, job.ID)
	require.NoError(t, err)
	require.NoError(t, m.Fail(ctx, job.ID, domain.ErrDetectionFailed))

	assert.ErrorIs(t, m.Complete(ctx, job.ID, nil), domain.ErrJobTerminal)
	assert.ErrorIs(t, m.Fail(ctx, job.ID, errors.New("again")), domain.ErrJobTerminal)
	_, err = m.Start(ctx, job.ID)
	assert.ErrorIs(t, err, domain.ErrJobTerminal)

	// Progress after the end is dropped without error.
	require.NoError(t, m.UpdateProgress(ctx, job.ID, 9, 9, "late"))

	stored, err := m.Job(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateFailure, stored.State)
	assert.Equal(t, domain.ErrDetectionFailed.Code, stored.ErrorCode)
	assert.Zero(t, stored.Current)
}

func TestManager_ProgressIgnoredWhilePending(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	job := createMediaJob(t, m)

	require.NoError(t, m.UpdateProgress(ctx, job.ID, 1, 2, "early"))

	status, err := m.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatePending, status.State)
	assert.Zero(t, status.Current)
}

func TestManager_CompleteRequiresProcessing(t *testing.T) {
	m := newTestManager()
	job := createMediaJob(t, m)

	err := m.Complete(context.Background(), job.ID, nil)
	assert.ErrorIs(t, err, domain.ErrStaleJobState)
}

func TestManager_FailFromPending(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	job := createMediaJob(t, m)

	require.NoError(t, m.Fail(ctx, job.ID, errors.New("unreadable")))

	stored, err := m.Job(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateFailure, stored.State)
	assert.Equal(t, domain.ErrInternal.Code, stored.ErrorCode)
	assert.Equal(t, "unreadable", stored.Message)
}

func TestManager_Claim(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	first := createMediaJob(t, m)
	second := createMediaJob(t, m)

	claimed, err := m.Claim(ctx, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, first.ID, claimed.ID)
	assert.Equal(t, "worker-1", claimed.ClaimedBy)

	claimed, err = m.Claim(ctx, "worker-2")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, second.ID, claimed.ID)

	claimed, err = m.Claim(ctx, "worker-3")
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestManager_ConcurrentStartClaimsOnce(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, testLogger())
	ctx := context.Background()
	job := createMediaJob(t, m)

	var wg sync.WaitGroup
	var mu sync.Mutex
	claims := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Transition(ctx, job.ID, domain.JobTransition{
				From: domain.JobStatePending,
				To:   domain.JobStateProcessing,
			})
			if err == nil {
				mu.Lock()
				claims++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, claims)
}

func TestManager_Subscribe(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	job := createMediaJob(t, m)

	events, cancel := m.Subscribe(job.ID)
	defer cancel()

	_, err := m.Start(ctx, job.ID)
	require.NoError(t, err)
	require.NoError(t, m.UpdateProgress(ctx, job.ID, 1, 2, "half"))
	require.NoError(t, m.Complete(ctx, job.ID, map[string]int{"faces": 1}))

	var got []domain.JobEvent
	for ev := range events {
		got = append(got, ev)
	}

	require.Len(t, got, 3)
	assert.Equal(t, domain.JobEventState, got[0].Type)
	assert.Equal(t, domain.JobStateProcessing, got[0].State)
	assert.Equal(t, domain.JobEventProgress, got[1].Type)
	assert.Equal(t, 1, got[1].Current)
	assert.Equal(t, domain.JobStateSuccess, got[2].State)
}

func TestManager_SlowSubscriberStillSeesFinalState(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	job := createMediaJob(t, m)

	events, cancel := m.Subscribe(job.ID)
	defer cancel()

	_, err := m.Start(ctx, job.ID)
	require.NoError(t, err)
	for i := 1; i <= subscriberBuffer*2; i++ {
		require.NoError(t, m.UpdateProgress(ctx, job.ID, i, subscriberBuffer*2, "working"))
	}
	require.NoError(t, m.Fail(ctx, job.ID, errors.New("detector crashed")))

	var got []domain.JobEvent
	for ev := range events {
		got = append(got, ev)
	}

	require.Len(t, got, subscriberBuffer)
	last := got[len(got)-1]
	assert.Equal(t, domain.JobEventState, last.Type)
	assert.Equal(t, domain.JobStateFailure, last.State)
}

func TestManager_SubscribeCancel(t *testing.T) {
	m := newTestManager()
	job := createMediaJob(t, m)

	events, cancel := m.Subscribe(job.ID)
	cancel()
	cancel()

	_, open := <-events
	assert.False(t, open)

	// Publishing after cancel must not panic on a closed channel.
	_, err := m.Start(context.Background(), job.ID)
	require.NoError(t, err)
}
