package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/job"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/service"
)

func TestChunkRunner_ItemFailureIsIsolated(t *testing.T) {
	media := ids(5)
	ingestor := &fakeIngestor{
		faces: 2,
		fail:  map[uuid.UUID]error{media[2]: domain.ErrInvalidImage},
	}
	runner := NewChunkRunner(ingestor, &recordingFailer{}, testLogger())

	manager := job.NewManager(job.NewMemoryStore(), testLogger())
	ctx := context.Background()
	target := domain.ChunkTarget(uuid.New(), 0, media)
	j, err := manager.Create(ctx, target)
	require.NoError(t, err)

	require.NoError(t, manager.Run(ctx, j.ID, runner.ChunkJob(target)))

	stored, err := manager.Job(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateSuccess, stored.State)
	assert.Equal(t, 5, stored.Current)

	var result domain.ChunkResult
	require.NoError(t, json.Unmarshal(stored.Result, &result))
	assert.Equal(t, 4, result.Processed)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 8, result.TotalFaces)
	require.Len(t, result.Items, 5)
	assert.Equal(t, domain.ItemFailed, result.Items[2].Status)
	assert.NotEmpty(t, result.Items[2].Error)
	for _, i := range []int{0, 1, 3, 4} {
		assert.Equal(t, domain.ItemCompleted, result.Items[i].Status)
		assert.Equal(t, media[i], result.Items[i].MediaID)
	}
	assert.Equal(t, media, ingestor.seen, "items run in order")
}

func TestChunkRunner_FatalErrorFailsChunk(t *testing.T) {
	media := ids(4)
	ingestor := &fakeIngestor{
		fail: map[uuid.UUID]error{media[1]: fmt.Errorf("%w: %w", service.ErrFatal, errors.New("corpus down"))},
	}
	failer := &recordingFailer{}
	runner := NewChunkRunner(ingestor, failer, testLogger())

	manager := job.NewManager(job.NewMemoryStore(), testLogger())
	ctx := context.Background()
	target := domain.ChunkTarget(uuid.New(), 1, media)
	j, err := manager.Create(ctx, target)
	require.NoError(t, err)

	err = manager.Run(ctx, j.ID, runner.ChunkJob(target))
	assert.ErrorIs(t, err, service.ErrFatal)

	stored, err := manager.Job(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateFailure, stored.State)
	assert.Equal(t, media, failer.failed, "every item of the chunk is marked failed")
	assert.Equal(t, media[:2], ingestor.seen, "processing stops at the fatal item")
}

func TestChunkRunner_SoftDeadlineSkipsRemaining(t *testing.T) {
	media := ids(3)
	ingestor := &slowIngestor{delay: 30 * time.Millisecond}
	runner := NewChunkRunner(ingestor, &recordingFailer{}, testLogger())

	manager := job.NewManager(job.NewMemoryStore(), testLogger(), job.WithTimeouts(10*time.Millisecond, time.Second))
	ctx := context.Background()
	target := domain.ChunkTarget(uuid.New(), 0, media)
	j, err := manager.Create(ctx, target)
	require.NoError(t, err)

	require.NoError(t, manager.Run(ctx, j.ID, runner.ChunkJob(target)))

	stored, err := manager.Job(ctx, j.ID)
	require.NoError(t, err)

	var result domain.ChunkResult
	require.NoError(t, json.Unmarshal(stored.Result, &result))
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, softDeadlineReason, result.Items[2].Error)
}

func TestChunkRunner_RequiresBatch(t *testing.T) {
	runner := NewChunkRunner(&fakeIngestor{}, &recordingFailer{}, testLogger())
	_, err := runner.Run(context.Background(), nil, domain.MediaTarget(uuid.New()))
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
}

type slowIngestor struct {
	delay time.Duration
}

func (s *slowIngestor) Ingest(ctx context.Context, id uuid.UUID, _ chan<- domain.Progress, _ <-chan struct{}) (*domain.MediaResult, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &domain.MediaResult{MediaID: id}, nil
}
