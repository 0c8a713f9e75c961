package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/search"
)

type Searcher interface {
	Search(ctx context.Context, q domain.SearchQuery) (*search.Result, error)
	ClearCache(ctx context.Context) (int64, error)
}

type SearchHandler struct {
	searcher Searcher
	maxSize  int64
	logger   *slog.Logger
}

func NewSearchHandler(searcher Searcher, maxSize int64, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{searcher: searcher, maxSize: maxSize, logger: logger}
}

// ClearCacheResponse reports how many cached searches were dropped
type ClearCacheResponse struct {
	Deleted int64 `json:"deleted"`
}

// Search POST /v1/search - find stored faces similar to the first face in the query media.
// The engine body is written verbatim so cached and fresh answers are identical.
func (h *SearchHandler) Search(c *fiber.Ctx) error {
	q, err := h.parseQuery(c)
	if err != nil {
		return searchError(c, err)
	}

	res, err := h.searcher.Search(c.Context(), q)
	if err != nil {
		if domain.KindOf(err) == domain.KindValidation {
			return searchError(c, err)
		}
		return err
	}

	cacheHeader := "MISS"
	if res.CacheHit {
		cacheHeader = "HIT"
	}
	c.Set("X-Cache", cacheHeader)
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(fiber.StatusOK).Send(res.Body)
}

// ClearCache DELETE /v1/cache/search
func (h *SearchHandler) ClearCache(c *fiber.Ctx) error {
	n, err := h.searcher.ClearCache(c.Context())
	if err != nil {
		return err
	}
	h.logger.Info("search cache cleared", slog.Int64("deleted", n))
	return c.JSON(ClearCacheResponse{Deleted: n})
}

func (h *SearchHandler) parseQuery(c *fiber.Ctx) (domain.SearchQuery, error) {
	q := domain.SearchQuery{
		Threshold: domain.DefaultThreshold,
		TopK:      domain.DefaultTopK,
	}

	if raw := c.FormValue("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return q, domain.ErrInvalidThreshold.WithError(err)
		}
		q.Threshold = v
	}
	if raw := c.FormValue("top_k"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return q, domain.ErrInvalidTopK.WithError(err)
		}
		q.TopK = v
	}

	file, err := c.FormFile("file")
	if err != nil {
		return q, domain.ErrValidationFailed.WithError(errors.New("file is required"))
	}
	if _, err := domain.MediaTypeFromPath(file.Filename); err != nil {
		return q, err
	}
	if h.maxSize > 0 && file.Size > h.maxSize {
		return q, domain.ErrMediaTooLarge.WithError(fmt.Errorf("%d bytes exceeds %d", file.Size, h.maxSize))
	}

	src, err := file.Open()
	if err != nil {
		return q, domain.ErrValidationFailed.WithError(err)
	}
	defer src.Close()

	q.Media, err = io.ReadAll(src)
	if err != nil {
		return q, domain.ErrValidationFailed.WithError(err)
	}
	return q, q.Validate()
}

// searchError writes the search envelope for a rejected query.
func searchError(c *fiber.Ctx, err error) error {
	status := fiber.StatusBadRequest
	message := err.Error()

	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		status = appErr.StatusCode
		message = appErr.Message
	}
	return c.Status(status).JSON(domain.SearchFailure(message))
}
