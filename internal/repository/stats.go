package repository

import (
	"context"
	"fmt"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

type StatsRepository struct {
	pool PgxPool
}

func NewStatsRepository(pool PgxPool) *StatsRepository {
	return &StatsRepository{pool: pool}
}

// Stats aggregates corpus totals. CacheEntries is left for the caller,
// which owns the cache backend.
func (r *StatsRepository) Stats(ctx context.Context) (*domain.Stats, error) {
	stats := &domain.Stats{
		MediaByStatus: make(map[domain.MediaStatus]int64),
		MediaByType:   make(map[domain.MediaType]int64),
		JobsByState:   make(map[domain.JobState]int64),
	}

	if err := r.groupCount(ctx, `SELECT status, COUNT(*) FROM media_items GROUP BY status`, func(k string, n int64) {
		stats.MediaByStatus[domain.MediaStatus(k)] = n
	}); err != nil {
		return nil, fmt.Errorf("media by status: %w", err)
	}

	if err := r.groupCount(ctx, `SELECT media_type, COUNT(*) FROM media_items GROUP BY media_type`, func(k string, n int64) {
		stats.MediaByType[domain.MediaType(k)] = n
	}); err != nil {
		return nil, fmt.Errorf("media by type: %w", err)
	}

	if err := r.groupCount(ctx, `SELECT state, COUNT(*) FROM jobs GROUP BY state`, func(k string, n int64) {
		stats.JobsByState[domain.JobState(k)] = n
	}); err != nil {
		return nil, fmt.Errorf("jobs by state: %w", err)
	}

	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM faces`).Scan(&stats.TotalFaces); err != nil {
		return nil, fmt.Errorf("count faces: %w", err)
	}

	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM search_logs`).Scan(&stats.TotalSearches); err != nil {
		return nil, fmt.Errorf("count searches: %w", err)
	}

	return stats, nil
}

func (r *StatsRepository) groupCount(ctx context.Context, query string, add func(string, int64)) error {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		add(key, n)
	}
	return rows.Err()
}
