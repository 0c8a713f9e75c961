package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

type SearchLogRepository struct {
	pool PgxPool
}

func NewSearchLogRepository(pool PgxPool) *SearchLogRepository {
	return &SearchLogRepository{pool: pool}
}

// Create inserts a new search log record
func (r *SearchLogRepository) Create(ctx context.Context, log *domain.SearchLog) error {
	query := `
		INSERT INTO search_logs (
			id, query_hash, threshold, top_k, results_count, cache_hit, latency_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at
	`

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}

	err := r.pool.QueryRow(ctx, query,
		log.ID,
		log.QueryHash,
		log.Threshold,
		log.TopK,
		log.ResultsCount,
		log.CacheHit,
		log.LatencyMs,
	).Scan(&log.CreatedAt)

	if err != nil {
		return fmt.Errorf("create search log: %w", err)
	}

	return nil
}
