package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/scheduler"
)

type BatchScheduler interface {
	Submit(ctx context.Context, mediaIDs []uuid.UUID, chunkSize int) (*scheduler.Batch, error)
	Status(ctx context.Context, batchID uuid.UUID) (*scheduler.BatchStatus, error)
}

type BatchHandler struct {
	scheduler BatchScheduler
	chunkSize int
	logger    *slog.Logger
}

func NewBatchHandler(s BatchScheduler, chunkSize int, logger *slog.Logger) *BatchHandler {
	return &BatchHandler{scheduler: s, chunkSize: chunkSize, logger: logger}
}

// BatchRequest lists already registered media to ingest as one batch.
// ChunkSize overrides the server default when positive.
type BatchRequest struct {
	MediaIDs  []string `json:"media_ids"`
	ChunkSize int      `json:"chunk_size,omitempty"`
}

// Submit POST /v1/batches
func (h *BatchHandler) Submit(c *fiber.Ctx) error {
	var req BatchRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}
	if len(req.MediaIDs) == 0 {
		return domain.ErrValidationFailed.WithError(errors.New("media_ids is required"))
	}
	if req.ChunkSize < 0 {
		return domain.ErrValidationFailed.WithError(errors.New("chunk_size must not be negative"))
	}

	ids := make([]uuid.UUID, 0, len(req.MediaIDs))
	for _, raw := range req.MediaIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return domain.ErrValidationFailed.WithError(fmt.Errorf("invalid media id %q", raw))
		}
		ids = append(ids, id)
	}

	size := h.chunkSize
	if req.ChunkSize > 0 {
		size = req.ChunkSize
	}

	batch, err := h.scheduler.Submit(c.Context(), ids, size)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(batch)
}

// Status GET /v1/batches/:id
func (h *BatchHandler) Status(c *fiber.Ctx) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	status, err := h.scheduler.Status(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(status)
}
