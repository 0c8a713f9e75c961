package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/job"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/service"
)

// ItemIngestor is satisfied by *service.Ingestor.
type ItemIngestor interface {
	Ingest(ctx context.Context, mediaID uuid.UUID, progress chan<- domain.Progress, stop <-chan struct{}) (*domain.MediaResult, error)
}

// MediaFailer marks media items failed when a chunk aborts.
type MediaFailer interface {
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

const softDeadlineReason = "chunk soft deadline reached before this item"

// ChunkRunner processes the items of one chunk sequentially.
type ChunkRunner struct {
	ingestor ItemIngestor
	media    MediaFailer
	logger   *slog.Logger
}

func NewChunkRunner(ingestor ItemIngestor, media MediaFailer, logger *slog.Logger) *ChunkRunner {
	return &ChunkRunner{
		ingestor: ingestor,
		media:    media,
		logger:   logger.With("component", "chunk_runner"),
	}
}

// Run ingests every item of target in order. A per-item error fails only
// that item. An error wrapping service.ErrFatal fails every item and is
// returned, failing the job. Items not started before the soft deadline are
// reported failed and the partial result is returned.
func (r *ChunkRunner) Run(ctx context.Context, exec *job.Execution, target domain.JobTarget) (*domain.ChunkResult, error) {
	if target.BatchID == nil {
		return nil, domain.ErrValidationFailed.WithError(errors.New("chunk target without batch id"))
	}

	result := &domain.ChunkResult{
		BatchID:    *target.BatchID,
		ChunkIndex: target.ChunkIndex,
		Items:      make([]domain.ItemResult, 0, len(target.MediaIDs)),
	}
	total := len(target.MediaIDs)

	var soft <-chan struct{}
	if exec != nil {
		soft = exec.SoftDeadline()
	}

	for i, mediaID := range target.MediaIDs {
		if expired(soft) {
			for _, rest := range target.MediaIDs[i:] {
				result.Items = append(result.Items, domain.ItemResult{MediaID: rest, Status: domain.ItemFailed, Error: softDeadlineReason})
				result.Failed++
			}
			r.logger.WarnContext(ctx, "chunk stopped at soft deadline",
				slog.String("batch_id", result.BatchID.String()),
				slog.Int("chunk", result.ChunkIndex),
				slog.Int("skipped", total-i),
			)
			break
		}

		item, err := r.ingestor.Ingest(ctx, mediaID, nil, soft)
		switch {
		case err == nil:
			result.Items = append(result.Items, domain.ItemResult{MediaID: mediaID, Status: domain.ItemCompleted, Faces: item.FacesFound})
			result.Processed++
			result.TotalFaces += item.FacesFound

		case errors.Is(err, service.ErrFatal) || ctx.Err() != nil:
			r.failAll(ctx, target.MediaIDs, err)
			return nil, fmt.Errorf("chunk %d of batch %s: %w", result.ChunkIndex, result.BatchID, err)

		default:
			result.Items = append(result.Items, domain.ItemResult{MediaID: mediaID, Status: domain.ItemFailed, Error: err.Error()})
			result.Failed++
			r.logger.WarnContext(ctx, "chunk item failed",
				slog.String("media_id", mediaID.String()),
				slog.String("error", err.Error()),
			)
		}

		if exec != nil {
			exec.Progress(ctx, i+1, total, fmt.Sprintf("processed %d/%d", i+1, total))
		}
	}

	return result, nil
}

// ChunkJob adapts Run to a job.Func.
func (r *ChunkRunner) ChunkJob(target domain.JobTarget) job.Func {
	return func(ctx context.Context, exec *job.Execution) (any, error) {
		result, err := r.Run(ctx, exec, target)
		if err != nil {
			return nil, err
		}
		return result, nil
	}
}

func (r *ChunkRunner) failAll(ctx context.Context, ids []uuid.UUID, cause error) {
	writeCtx := context.WithoutCancel(ctx)
	for _, id := range ids {
		if err := r.media.MarkFailed(writeCtx, id, cause.Error()); err != nil {
			r.logger.ErrorContext(ctx, "failed to mark chunk item failed",
				slog.String("media_id", id.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func expired(ch <-chan struct{}) bool {
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
