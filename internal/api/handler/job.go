package handler

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

type JobReader interface {
	Get(ctx context.Context, id uuid.UUID) (domain.JobStatus, error)
}

type JobHandler struct {
	jobs   JobReader
	logger *slog.Logger
}

func NewJobHandler(jobs JobReader, logger *slog.Logger) *JobHandler {
	return &JobHandler{jobs: jobs, logger: logger}
}

// Get GET /v1/jobs/:id - polling view of a job
func (h *JobHandler) Get(c *fiber.Ctx) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	status, err := h.jobs.Get(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(status)
}
