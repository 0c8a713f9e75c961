// Package worker drains the durable job queue with a fixed pool of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/job"
)

const DefaultPollInterval = 2 * time.Second

// Dispatcher picks the function that executes a claimed job.
type Dispatcher interface {
	JobFunc(j *domain.Job) (job.Func, error)
}

type Config struct {
	Concurrency  int
	PollInterval time.Duration
	// Owner prefixes the claim owner recorded on each job; defaults to the hostname.
	Owner string
}

type Pool struct {
	manager    *job.Manager
	dispatcher Dispatcher
	cfg        Config
	logger     *slog.Logger
	wake       chan struct{}
	stopCh     chan struct{}
	stopOnce   sync.Once
}

func NewPool(manager *job.Manager, dispatcher Dispatcher, cfg Config, logger *slog.Logger) *Pool {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Owner == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "worker"
		}
		cfg.Owner = fmt.Sprintf("%s-%d", host, os.Getpid())
	}

	return &Pool{
		manager:    manager,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger.With("component", "worker_pool"),
		wake:       make(chan struct{}, cfg.Concurrency),
		stopCh:     make(chan struct{}),
	}
}

// Notify wakes idle workers without waiting for the next poll. It never blocks.
func (p *Pool) Notify() {
	for i := 0; i < cap(p.wake); i++ {
		select {
		case p.wake <- struct{}{}:
		default:
			return
		}
	}
}

// Run blocks until ctx is cancelled or Stop is called. Jobs already running
// finish under their own ceilings before Run returns.
func (p *Pool) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-p.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	p.logger.Info("worker pool started",
		slog.Int("concurrency", p.cfg.Concurrency),
		slog.Duration("poll_interval", p.cfg.PollInterval),
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Concurrency; i++ {
		owner := fmt.Sprintf("%s/%d", p.cfg.Owner, i)
		g.Go(func() error {
			p.loop(gctx, owner)
			return nil
		})
	}

	err := g.Wait()
	p.logger.Info("worker pool stopped")
	return err
}

func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

func (p *Pool) loop(ctx context.Context, owner string) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		// Drain the queue before sleeping again.
		for p.runNext(ctx, owner) {
			if ctx.Err() != nil {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.wake:
		}
	}
}

// runNext claims and executes one job. It reports whether a job was found.
func (p *Pool) runNext(ctx context.Context, owner string) bool {
	j, err := p.manager.Claim(ctx, owner)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("failed to claim job", slog.String("owner", owner), slog.String("error", err.Error()))
		}
		return false
	}
	if j == nil {
		return false
	}

	logger := p.logger.With(
		slog.String("job_id", j.ID.String()),
		slog.String("kind", string(j.Kind)),
		slog.String("owner", owner),
	)

	fn, err := p.dispatcher.JobFunc(j)
	if err != nil {
		logger.Error("no handler for job", slog.String("error", err.Error()))
		if ferr := p.manager.Fail(context.WithoutCancel(ctx), j.ID, err); ferr != nil {
			logger.Error("failed to fail job", slog.String("error", ferr.Error()))
		}
		return true
	}

	// Running jobs are not interrupted by shutdown; only their hard ceiling stops them.
	if err := p.manager.Run(context.WithoutCancel(ctx), j.ID, fn); err != nil {
		if errors.Is(err, domain.ErrJobTerminal) {
			logger.Warn("job already finished")
		} else {
			logger.Warn("job failed", slog.String("error", err.Error()))
		}
	}
	return true
}
