// Package job tracks units of ingestion work through
// PENDING -> PROCESSING -> SUCCESS | FAILURE and runs them under a soft and
// a hard time ceiling.
package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

const (
	DefaultSoftTimeout = 25 * time.Minute
	DefaultHardTimeout = 30 * time.Minute
)

// Observer receives a job's final state.
type Observer interface {
	ObserveJob(kind domain.JobKind, state domain.JobState, duration time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveJob(domain.JobKind, domain.JobState, time.Duration) {}

type Manager struct {
	store    Store
	events   *broadcaster
	observer Observer
	soft     time.Duration
	hard     time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Manager)

// WithTimeouts sets the soft and hard execution ceilings used by Run.
func WithTimeouts(soft, hard time.Duration) Option {
	return func(m *Manager) {
		m.soft = soft
		m.hard = hard
	}
}

func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

func NewManager(store Store, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		events:   newBroadcaster(),
		observer: nopObserver{},
		soft:     DefaultSoftTimeout,
		hard:     DefaultHardTimeout,
		logger:   logger.With("component", "job_manager"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create registers a PENDING job for target.
func (m *Manager) Create(ctx context.Context, target domain.JobTarget) (*domain.Job, error) {
	job := &domain.Job{
		ID:     uuid.New(),
		Kind:   domain.JobKindMedia,
		Target: target,
		State:  domain.JobStatePending,
		Total:  1,
	}
	if target.BatchID != nil {
		job.Kind = domain.JobKindBatchChunk
		job.Total = len(target.MediaIDs)
	}

	if err := m.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	m.logger.DebugContext(ctx, "job created",
		slog.String("job_id", job.ID.String()),
		slog.String("kind", string(job.Kind)),
	)
	return job, nil
}

// Start moves a PENDING job to PROCESSING. Starting a job that is already
// PROCESSING is a no-op; starting a finished job returns ErrJobTerminal.
func (m *Manager) Start(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	job, err := m.store.Transition(ctx, id, domain.JobTransition{
		From:    domain.JobStatePending,
		To:      domain.JobStateProcessing,
		Message: "processing",
	})
	if err == nil {
		m.publishState(job)
		return job, nil
	}
	if !errors.Is(err, domain.ErrStaleJobState) {
		return nil, err
	}

	current, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.State.IsTerminal() {
		return nil, domain.ErrJobTerminal
	}
	return current, nil
}

// Claim takes the oldest PENDING job for owner. Nil when the queue is empty.
func (m *Manager) Claim(ctx context.Context, owner string) (*domain.Job, error) {
	job, err := m.store.ClaimNext(ctx, owner)
	if err != nil {
		return nil, err
	}
	if job != nil {
		m.publishState(job)
	}
	return job, nil
}

// UpdateProgress records progress on a PROCESSING job and is silently
// ignored in any other state.
func (m *Manager) UpdateProgress(ctx context.Context, id uuid.UUID, current, total int, message string) error {
	ok, err := m.store.UpdateProgress(ctx, id, current, total, message)
	if err != nil {
		return err
	}
	if !ok {
		m.logger.DebugContext(ctx, "progress ignored, job not processing", slog.String("job_id", id.String()))
		return nil
	}

	m.events.publish(domain.JobEvent{
		JobID:     id,
		Type:      domain.JobEventProgress,
		State:     domain.JobStateProcessing,
		Current:   current,
		Total:     total,
		Message:   message,
		Timestamp: m.now(),
	})
	return nil
}

// Complete marks a PROCESSING job SUCCESS with result serialized as JSON.
func (m *Manager) Complete(ctx context.Context, id uuid.UUID, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode job result: %w", err)
	}
	return m.finish(ctx, id, domain.JobTransition{
		To:      domain.JobStateSuccess,
		Message: "completed",
		Result:  raw,
	})
}

// Fail marks a PENDING or PROCESSING job FAILURE with cause.
func (m *Manager) Fail(ctx context.Context, id uuid.UUID, cause error) error {
	code := domain.ErrInternal.Code
	var appErr *domain.AppError
	if errors.As(cause, &appErr) {
		code = appErr.Code
	}

	message := "failed"
	if cause != nil {
		message = cause.Error()
	}

	return m.finish(ctx, id, domain.JobTransition{
		To:        domain.JobStateFailure,
		Message:   message,
		ErrorCode: code,
	})
}

func (m *Manager) finish(ctx context.Context, id uuid.UUID, t domain.JobTransition) error {
	// One retry covers a concurrent PENDING -> PROCESSING move between Get and Transition.
	for attempt := 0; attempt < 2; attempt++ {
		current, err := m.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if current.State.IsTerminal() {
			return domain.ErrJobTerminal
		}
		if !current.State.CanTransition(t.To) {
			return domain.ErrStaleJobState.WithError(
				fmt.Errorf("cannot move job from %s to %s", current.State, t.To))
		}

		t.From = current.State
		job, err := m.store.Transition(ctx, id, t)
		if errors.Is(err, domain.ErrStaleJobState) {
			continue
		}
		if err != nil {
			return err
		}

		m.publishState(job)
		m.observe(job)
		return nil
	}
	return domain.ErrStaleJobState
}

// Get returns the polling view of a job.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (domain.JobStatus, error) {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return domain.JobStatus{}, err
	}
	return job.Status(), nil
}

// Job returns the full job record.
func (m *Manager) Job(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return m.store.Get(ctx, id)
}

// Subscribe streams state and progress events for one job. The channel is
// closed after the terminal state event or when cancel is called.
func (m *Manager) Subscribe(id uuid.UUID) (<-chan domain.JobEvent, func()) {
	return m.events.subscribe(id)
}

func (m *Manager) publishState(job *domain.Job) {
	m.events.publish(domain.JobEvent{
		JobID:     job.ID,
		Type:      domain.JobEventState,
		State:     job.State,
		Current:   job.Current,
		Total:     job.Total,
		Message:   job.Message,
		Timestamp: m.now(),
	})
}

func (m *Manager) observe(job *domain.Job) {
	var d time.Duration
	if job.StartedAt != nil && job.FinishedAt != nil {
		d = job.FinishedAt.Sub(*job.StartedAt)
	}
	m.observer.ObserveJob(job.Kind, job.State, d)

	m.logger.Info("job finished",
		slog.String("job_id", job.ID.String()),
		slog.String("kind", string(job.Kind)),
		slog.String("state", string(job.State)),
		slog.String("error_code", job.ErrorCode),
		slog.Duration("duration", d),
	)
}
