package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/service"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// MediaRegistrar stores an uploaded file and queues it for ingestion
type MediaRegistrar interface {
	Register(ctx context.Context, r io.Reader, filename string) (*service.Registration, error)
}

// MediaReader reads the media catalog
type MediaReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.MediaItem, error)
	List(ctx context.Context, filter domain.MediaFilter) ([]domain.MediaItem, int64, error)
}

// FaceLister lists the faces extracted from one media item
type FaceLister interface {
	ListByMedia(ctx context.Context, mediaID uuid.UUID) ([]domain.FaceRecord, error)
}

type MediaHandler struct {
	registrar MediaRegistrar
	media     MediaReader
	faces     FaceLister
	maxSize   int64
	logger    *slog.Logger
}

func NewMediaHandler(registrar MediaRegistrar, media MediaReader, faces FaceLister, maxSize int64, logger *slog.Logger) *MediaHandler {
	return &MediaHandler{
		registrar: registrar,
		media:     media,
		faces:     faces,
		maxSize:   maxSize,
		logger:    logger,
	}
}

// UploadResponse is returned for both new and duplicate uploads
type UploadResponse struct {
	Media     *domain.MediaItem `json:"media"`
	JobID     *uuid.UUID        `json:"job_id,omitempty"`
	Duplicate bool              `json:"duplicate"`
}

// MediaListResponse is one page of the catalog
type MediaListResponse struct {
	Items    []domain.MediaItem `json:"items"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}

// MediaFacesResponse lists the faces of one media item
type MediaFacesResponse struct {
	MediaID uuid.UUID           `json:"media_id"`
	Faces   []domain.FaceRecord `json:"faces"`
	Total   int                 `json:"total"`
}

// Upload POST /v1/media - store a file and queue a media job
func (h *MediaHandler) Upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return domain.ErrValidationFailed.WithError(errors.New("file is required"))
	}
	if file.Filename == "" {
		return domain.ErrValidationFailed.WithError(errors.New("file name is empty"))
	}
	if _, err := domain.MediaTypeFromPath(file.Filename); err != nil {
		return err
	}
	if h.maxSize > 0 && file.Size > h.maxSize {
		return domain.ErrMediaTooLarge.WithError(fmt.Errorf("%d bytes exceeds %d", file.Size, h.maxSize))
	}

	src, err := file.Open()
	if err != nil {
		return domain.ErrValidationFailed.WithError(err)
	}
	defer src.Close()

	reg, err := h.registrar.Register(c.Context(), src, file.Filename)
	if err != nil {
		return err
	}

	if reg.Duplicate {
		h.logger.Info("duplicate upload",
			slog.String("media_id", reg.Media.ID.String()),
			slog.String("filename", file.Filename),
		)
		return c.Status(fiber.StatusConflict).JSON(UploadResponse{
			Media:     reg.Media,
			Duplicate: true,
		})
	}

	resp := UploadResponse{Media: reg.Media}
	if reg.Job != nil {
		resp.JobID = &reg.Job.ID
	}
	return c.Status(fiber.StatusAccepted).JSON(resp)
}

// List GET /v1/media - paginated catalog filterable by type and status
func (h *MediaHandler) List(c *fiber.Ctx) error {
	filter := domain.MediaFilter{}

	if t := c.Query("type"); t != "" {
		mt := domain.MediaType(t)
		if mt != domain.MediaTypeImage && mt != domain.MediaTypeVideo {
			return domain.ErrBadRequest.WithError(fmt.Errorf("unknown media type %q", t))
		}
		filter.Type = mt
	}

	if s := c.Query("status"); s != "" {
		ms := domain.MediaStatus(s)
		switch ms {
		case domain.MediaStatusPending, domain.MediaStatusProcessing, domain.MediaStatusCompleted, domain.MediaStatusFailed:
			filter.Status = ms
		default:
			return domain.ErrBadRequest.WithError(fmt.Errorf("unknown media status %q", s))
		}
	}

	page, err := positiveQueryInt(c, "page", 1)
	if err != nil {
		return err
	}
	pageSize, err := positiveQueryInt(c, "page_size", defaultPageSize)
	if err != nil {
		return err
	}
	pageSize = min(pageSize, maxPageSize)

	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize

	items, total, err := h.media.List(c.Context(), filter)
	if err != nil {
		return err
	}
	if items == nil {
		items = []domain.MediaItem{}
	}

	return c.JSON(MediaListResponse{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

// Get GET /v1/media/:id
func (h *MediaHandler) Get(c *fiber.Ctx) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	item, err := h.media.GetByID(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(item)
}

// Faces GET /v1/media/:id/faces
func (h *MediaHandler) Faces(c *fiber.Ctx) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	if _, err := h.media.GetByID(c.Context(), id); err != nil {
		return err
	}

	faces, err := h.faces.ListByMedia(c.Context(), id)
	if err != nil {
		return err
	}
	if faces == nil {
		faces = []domain.FaceRecord{}
	}

	return c.JSON(MediaFacesResponse{
		MediaID: id,
		Faces:   faces,
		Total:   len(faces),
	})
}

func pathUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, domain.ErrBadRequest.WithError(fmt.Errorf("invalid %s: %w", name, err))
	}
	return id, nil
}

func positiveQueryInt(c *fiber.Ctx, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, domain.ErrBadRequest.WithError(fmt.Errorf("%s must be a positive integer", name))
	}
	return v, nil
}
