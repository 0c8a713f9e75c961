package cache

import (
	"context"
	"log/slog"
	"time"
)

const DefaultJanitorInterval = 10 * time.Minute

// Sweeper removes expired entries from a backend without native expiry.
type Sweeper interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Janitor periodically sweeps expired entries. Reads already ignore them, so
// the sweep only bounds table growth.
type Janitor struct {
	sweeper  Sweeper
	logger   *slog.Logger
	interval time.Duration
}

func NewJanitor(sweeper Sweeper, logger *slog.Logger, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	return &Janitor{
		sweeper:  sweeper,
		logger:   logger.With("component", "cache_janitor"),
		interval: interval,
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("cache janitor started", "interval", j.interval)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("cache janitor stopped")
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep runs one cleanup pass. Failures are logged and retried on the next tick.
func (j *Janitor) Sweep(ctx context.Context) int64 {
	n, err := j.sweeper.CleanupExpired(ctx)
	if err != nil {
		j.logger.Warn("failed to sweep expired cache entries", "error", err)
		return 0
	}
	if n > 0 {
		j.logger.Debug("expired cache entries removed", "count", n)
	}
	return n
}
