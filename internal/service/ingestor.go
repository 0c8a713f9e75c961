package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/job"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/media"
)

// ErrFatal marks an ingestion failure that is not local to the item, such as
// a corpus write error. Batch runners stop the whole chunk on it.
var ErrFatal = errors.New("fatal ingestion error")

func fatal(err error) error {
	return fmt.Errorf("%w: %w", ErrFatal, err)
}

type MediaRepositoryInterface interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.MediaItem, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID, faceCount int) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

type FaceRepositoryInterface interface {
	CreateBatch(ctx context.Context, faces []*domain.FaceRecord) error
}

// MediaProcessor is satisfied by *media.Processor.
type MediaProcessor interface {
	ProcessUntil(ctx context.Context, item *domain.MediaItem, progress chan<- domain.Progress, stop <-chan struct{}) (*media.Result, error)
}

// IngestObserver receives one call per ingested item.
type IngestObserver interface {
	ObserveIngest(mediaType domain.MediaType, faces int, duration time.Duration, err error)
}

type nopIngestObserver struct{}

func (nopIngestObserver) ObserveIngest(domain.MediaType, int, time.Duration, error) {}

// Ingestor runs one media item through detection, scoring and persistence.
type Ingestor struct {
	mediaRepo MediaRepositoryInterface
	faceRepo  FaceRepositoryInterface
	processor MediaProcessor
	observer  IngestObserver
	logger    *slog.Logger
}

func NewIngestor(
	mediaRepo MediaRepositoryInterface,
	faceRepo FaceRepositoryInterface,
	processor MediaProcessor,
	logger *slog.Logger,
) *Ingestor {
	return &Ingestor{
		mediaRepo: mediaRepo,
		faceRepo:  faceRepo,
		processor: processor,
		observer:  nopIngestObserver{},
		logger:    logger.With("component", "ingestor"),
	}
}

func (s *Ingestor) WithObserver(o IngestObserver) *Ingestor {
	s.observer = o
	return s
}

// Ingest processes mediaID. Detection failures mark the item failed and are
// returned as is; store failures are wrapped in ErrFatal.
func (s *Ingestor) Ingest(ctx context.Context, mediaID uuid.UUID, progress chan<- domain.Progress, stop <-chan struct{}) (*domain.MediaResult, error) {
	start := time.Now()

	item, err := s.mediaRepo.GetByID(ctx, mediaID)
	if err != nil {
		if errors.Is(err, domain.ErrMediaNotFound) {
			return nil, err
		}
		return nil, fatal(fmt.Errorf("load media %s: %w", mediaID, err))
	}

	if err := s.mediaRepo.MarkProcessing(ctx, mediaID); err != nil {
		return nil, fatal(fmt.Errorf("mark media %s processing: %w", mediaID, err))
	}

	result, err := s.processor.ProcessUntil(ctx, item, progress, stop)
	if err != nil {
		s.markFailed(ctx, mediaID, err)
		s.observer.ObserveIngest(item.Type, 0, time.Since(start), err)
		return nil, err
	}

	records := make([]*domain.FaceRecord, 0, len(result.Detections))
	for _, d := range result.Detections {
		records = append(records, domain.NewFaceRecord(mediaID, d))
	}

	if len(records) > 0 {
		if err := s.faceRepo.CreateBatch(ctx, records); err != nil {
			s.markFailed(ctx, mediaID, err)
			s.observer.ObserveIngest(item.Type, 0, time.Since(start), err)
			if errors.Is(err, domain.ErrInvalidEmbedding) {
				return nil, err
			}
			return nil, fatal(fmt.Errorf("store faces for %s: %w", mediaID, err))
		}
	}

	if err := s.mediaRepo.MarkCompleted(ctx, mediaID, len(records)); err != nil {
		return nil, fatal(fmt.Errorf("mark media %s completed: %w", mediaID, err))
	}

	elapsed := time.Since(start)
	s.observer.ObserveIngest(item.Type, len(records), elapsed, nil)

	s.logger.InfoContext(ctx, "media ingested",
		slog.String("media_id", mediaID.String()),
		slog.String("type", string(item.Type)),
		slog.Int("faces", len(records)),
		slog.Bool("truncated", result.Truncated),
		slog.Duration("duration", elapsed),
	)

	return &domain.MediaResult{
		MediaID:       mediaID,
		FacesFound:    len(records),
		FramesSampled: result.FramesSampled,
		Truncated:     result.Truncated,
		DurationMs:    elapsed.Milliseconds(),
	}, nil
}

func (s *Ingestor) markFailed(ctx context.Context, mediaID uuid.UUID, cause error) {
	// The item status must be written even when ctx was cancelled by the hard ceiling.
	if err := s.mediaRepo.MarkFailed(context.WithoutCancel(ctx), mediaID, cause.Error()); err != nil {
		s.logger.ErrorContext(ctx, "failed to mark media failed",
			slog.String("media_id", mediaID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// MediaJob adapts Ingest to a job.Func, forwarding processor progress to the job.
func (s *Ingestor) MediaJob(mediaID uuid.UUID) job.Func {
	return func(ctx context.Context, exec *job.Execution) (any, error) {
		progress := make(chan domain.Progress, 16)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range progress {
				exec.Progress(ctx, p.Current, p.Total, progressMessage(p))
			}
		}()

		result, err := s.Ingest(ctx, mediaID, progress, exec.SoftDeadline())
		close(progress)
		wg.Wait()

		if err != nil {
			return nil, err
		}
		return result, nil
	}
}

func progressMessage(p domain.Progress) string {
	if p.Message != "" {
		return p.Message
	}
	if p.FramesProcessed > 0 {
		return fmt.Sprintf("%.0f%% complete, %d frames sampled, %d faces found", p.Percent, p.FramesProcessed, p.FacesFound)
	}
	return fmt.Sprintf("%d faces found", p.FacesFound)
}
