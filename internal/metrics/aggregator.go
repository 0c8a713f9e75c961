package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

type StatsSource interface {
	Stats(ctx context.Context) (*domain.Stats, error)
}

// Aggregator periodically refreshes the corpus gauges from the store.
type Aggregator struct {
	source   StatsSource
	recorder *Recorder
	logger   *slog.Logger
	interval time.Duration
	done     chan struct{}
}

func NewAggregator(source StatsSource, recorder *Recorder, logger *slog.Logger, interval time.Duration) *Aggregator {
	if interval == 0 {
		interval = 1 * time.Minute
	}

	return &Aggregator{
		source:   source,
		recorder: recorder,
		logger:   logger,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start refreshes once and then on every tick until ctx ends or Stop is called.
func (a *Aggregator) Start(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info("metrics aggregator started", "interval", a.interval)
	a.aggregate(ctx)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("metrics aggregator stopped")
			return
		case <-a.done:
			a.logger.Info("metrics aggregator stopped")
			return
		case <-ticker.C:
			a.aggregate(ctx)
		}
	}
}

func (a *Aggregator) Stop() {
	close(a.done)
}

func (a *Aggregator) aggregate(ctx context.Context) {
	stats, err := a.source.Stats(ctx)
	if err != nil {
		a.logger.Error("failed to refresh corpus gauges", "error", err)
		return
	}
	a.recorder.SetStats(stats)
}
