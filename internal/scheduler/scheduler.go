// Package scheduler splits batches of media into chunk jobs and runs them.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

// DefaultChunkSize is the number of media items per chunk job.
const DefaultChunkSize = 10

var ErrEmptyBatch = domain.ErrValidationFailed.WithError(errors.New("batch has no media"))

type JobCreator interface {
	Create(ctx context.Context, target domain.JobTarget) (*domain.Job, error)
}

type JobLister interface {
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]domain.Job, error)
}

type Notifier interface {
	Notify()
}

// Batch is the handle returned by Submit.
type Batch struct {
	ID        uuid.UUID   `json:"id"`
	Total     int         `json:"total"`
	ChunkSize int         `json:"chunk_size"`
	JobIDs    []uuid.UUID `json:"job_ids"`
}

// BatchStatus aggregates the chunk jobs of a batch.
type BatchStatus struct {
	ID     uuid.UUID               `json:"id"`
	Chunks int                     `json:"chunks"`
	States map[domain.JobState]int `json:"states"`
	Done   bool                    `json:"done"`
	Jobs   []domain.JobStatus      `json:"jobs"`
}

type Scheduler struct {
	jobs     JobCreator
	lister   JobLister
	notifier Notifier
	logger   *slog.Logger
}

// NewScheduler builds a scheduler. lister may be nil when batch status is not needed.
func NewScheduler(jobs JobCreator, lister JobLister, notifier Notifier, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		jobs:     jobs,
		lister:   lister,
		notifier: notifier,
		logger:   logger.With("component", "scheduler"),
	}
}

// Submit partitions mediaIDs, in order, into ceil(N/chunkSize) chunks and
// queues one PENDING batch_chunk job per chunk. It returns once the jobs
// exist; processing happens on the worker pool.
func (s *Scheduler) Submit(ctx context.Context, mediaIDs []uuid.UUID, chunkSize int) (*Batch, error) {
	if len(mediaIDs) == 0 {
		return nil, ErrEmptyBatch
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	batch := &Batch{
		ID:        uuid.New(),
		Total:     len(mediaIDs),
		ChunkSize: chunkSize,
	}

	for i, chunk := range Partition(mediaIDs, chunkSize) {
		j, err := s.jobs.Create(ctx, domain.ChunkTarget(batch.ID, i, chunk))
		if err != nil {
			return nil, fmt.Errorf("queue chunk %d of batch %s: %w", i, batch.ID, err)
		}
		batch.JobIDs = append(batch.JobIDs, j.ID)
	}

	if s.notifier != nil {
		s.notifier.Notify()
	}

	s.logger.InfoContext(ctx, "batch submitted",
		slog.String("batch_id", batch.ID.String()),
		slog.Int("media", batch.Total),
		slog.Int("chunks", len(batch.JobIDs)),
	)
	return batch, nil
}

// Status reports the state of every chunk job of a batch.
func (s *Scheduler) Status(ctx context.Context, batchID uuid.UUID) (*BatchStatus, error) {
	if s.lister == nil {
		return nil, errors.New("batch status is not available")
	}

	jobs, err := s.lister.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, domain.ErrNotFound
	}

	status := &BatchStatus{
		ID:     batchID,
		Chunks: len(jobs),
		States: make(map[domain.JobState]int),
		Done:   true,
		Jobs:   make([]domain.JobStatus, 0, len(jobs)),
	}
	for i := range jobs {
		status.States[jobs[i].State]++
		if !jobs[i].State.IsTerminal() {
			status.Done = false
		}
		status.Jobs = append(status.Jobs, jobs[i].Status())
	}
	return status, nil
}

// Partition splits ids into contiguous chunks of at most size, preserving order.
func Partition(ids []uuid.UUID, size int) [][]uuid.UUID {
	if size <= 0 {
		size = DefaultChunkSize
	}
	chunks := make([][]uuid.UUID, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end:end])
	}
	return chunks
}
