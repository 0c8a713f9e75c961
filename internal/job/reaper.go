package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

const DefaultReaperInterval = time.Minute

// StaleLister finds PROCESSING jobs started before a cutoff.
type StaleLister interface {
	ListStale(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
}

// Reaper fails jobs that stayed PROCESSING past the hard ceiling. A live
// worker fails its own job at the ceiling; the reaper catches jobs whose
// worker died, which would otherwise never reach a terminal state.
type Reaper struct {
	jobs     *Manager
	lister   StaleLister
	interval time.Duration
	logger   *slog.Logger
}

func NewReaper(jobs *Manager, lister StaleLister, logger *slog.Logger, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = DefaultReaperInterval
	}
	return &Reaper{
		jobs:     jobs,
		lister:   lister,
		interval: interval,
		logger:   logger.With("component", "job_reaper"),
	}
}

// Run reaps on every tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("job reaper started", "interval", r.interval, "hard_timeout", r.jobs.hard)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("job reaper stopped")
			return
		case <-ticker.C:
			r.Reap(ctx)
		}
	}
}

// Reap fails every job started more than the hard ceiling ago and returns
// how many it moved to FAILURE. Jobs that finished in the meantime are skipped.
func (r *Reaper) Reap(ctx context.Context) int {
	cutoff := r.jobs.now().Add(-r.jobs.hard)
	ids, err := r.lister.ListStale(ctx, cutoff)
	if err != nil {
		r.logger.Warn("failed to list stale jobs", "error", err)
		return 0
	}

	reaped := 0
	for _, id := range ids {
		cause := domain.ErrJobTimeout.WithError(fmt.Errorf("no result after %s", r.jobs.hard))
		err := r.jobs.Fail(ctx, id, cause)
		switch {
		case err == nil:
			reaped++
			r.logger.Warn("stale job failed", "job_id", id)
		case errors.Is(err, domain.ErrJobTerminal), errors.Is(err, domain.ErrStaleJobState):
		default:
			r.logger.Warn("failed to reap job", "job_id", id, "error", err)
		}
	}
	return reaped
}
