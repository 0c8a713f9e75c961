package handler

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/cache"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/search"
)

type StatsReader interface {
	Stats(ctx context.Context) (*domain.Stats, error)
}

type CacheStatsReader interface {
	Stats(ctx context.Context, pattern string) (cache.Stats, error)
}

type StatsHandler struct {
	stats  StatsReader
	cache  CacheStatsReader
	logger *slog.Logger
}

func NewStatsHandler(stats StatsReader, c CacheStatsReader, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{stats: stats, cache: c, logger: logger}
}

// StatsResponse merges corpus totals with the search cache state
type StatsResponse struct {
	*domain.Stats
	Cache *cache.Stats `json:"cache,omitempty"`
}

// Get GET /v1/stats
func (h *StatsHandler) Get(c *fiber.Ctx) error {
	stats, err := h.stats.Stats(c.Context())
	if err != nil {
		return err
	}

	resp := StatsResponse{Stats: stats}
	if h.cache != nil {
		cs, err := h.cache.Stats(c.Context(), search.CachePattern)
		if err != nil {
			// Cache failures never fail the request.
			h.logger.Warn("cache stats unavailable", slog.String("error", err.Error()))
		} else {
			resp.Cache = &cs
			stats.CacheEntries = cs.Entries
		}
	}

	return c.JSON(resp)
}
