package job

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

// Execution is handed to the function run by Manager.Run.
type Execution struct {
	Job *domain.Job

	manager  *Manager
	soft     chan struct{}
	softOnce sync.Once
}

// SoftDeadline is closed when the soft ceiling passes. Work should wind down
// and return what it has.
func (e *Execution) SoftDeadline() <-chan struct{} {
	return e.soft
}

// Progress records progress on the running job. Store errors are logged only.
func (e *Execution) Progress(ctx context.Context, current, total int, message string) {
	if err := e.manager.UpdateProgress(ctx, e.Job.ID, current, total, message); err != nil {
		e.manager.logger.WarnContext(ctx, "progress not recorded",
			slog.String("job_id", e.Job.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Execution) expireSoft() {
	e.softOnce.Do(func() { close(e.soft) })
}

// Func performs a job's work and returns the result payload.
type Func func(ctx context.Context, exec *Execution) (any, error)

// Run starts job id and executes fn under the soft and hard ceilings.
// The hard ceiling cancels fn's context and fails the job with
// ErrJobTimeout whatever fn has done so far; Run does not wait for fn to
// notice. There is no retry.
func (m *Manager) Run(ctx context.Context, id uuid.UUID, fn Func) error {
	job, err := m.Start(ctx, id)
	if err != nil {
		return err
	}

	exec := &Execution{Job: job, manager: m, soft: make(chan struct{})}

	runCtx, cancel := context.WithTimeout(ctx, m.hard)
	defer cancel()

	softTimer := time.AfterFunc(m.soft, func() {
		m.logger.Warn("job passed soft deadline", slog.String("job_id", id.String()))
		exec.expireSoft()
	})
	defer softTimer.Stop()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("job panicked", slog.String("job_id", id.String()), slog.Any("panic", r))
				done <- outcome{err: domain.ErrInternal}
			}
		}()
		result, err := fn(runCtx, exec)
		done <- outcome{result: result, err: err}
	}()

	// Final state writes must land even when ctx is already cancelled.
	finalCtx := context.WithoutCancel(ctx)

	select {
	case out := <-done:
		if out.err != nil {
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				out.err = domain.ErrJobTimeout.WithError(out.err)
			}
			if ferr := m.Fail(finalCtx, id, out.err); ferr != nil && !errors.Is(ferr, domain.ErrJobTerminal) {
				return ferr
			}
			return out.err
		}
		return m.Complete(finalCtx, id, out.result)

	case <-runCtx.Done():
		cause := runCtx.Err()
		if errors.Is(cause, context.DeadlineExceeded) {
			cause = domain.ErrJobTimeout.WithError(cause)
		}
		if ferr := m.Fail(finalCtx, id, cause); ferr != nil && !errors.Is(ferr, domain.ErrJobTerminal) {
			return ferr
		}
		return cause
	}
}

// RunByID is a convenience for callers that only hold the id.
func (m *Manager) RunByID(ctx context.Context, id string, fn Func) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return domain.ErrBadRequest.WithError(err)
	}
	return m.Run(ctx, parsed, fn)
}
