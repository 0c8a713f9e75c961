package worker

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/job"
)

type MediaJobs interface {
	MediaJob(mediaID uuid.UUID) job.Func
}

type ChunkJobs interface {
	ChunkJob(target domain.JobTarget) job.Func
}

// KindDispatcher routes jobs by kind to the ingestor or the chunk runner.
type KindDispatcher struct {
	media  MediaJobs
	chunks ChunkJobs
}

func NewKindDispatcher(media MediaJobs, chunks ChunkJobs) *KindDispatcher {
	return &KindDispatcher{media: media, chunks: chunks}
}

func (d *KindDispatcher) JobFunc(j *domain.Job) (job.Func, error) {
	switch j.Kind {
	case domain.JobKindMedia:
		if j.Target.MediaID == nil {
			return nil, domain.ErrValidationFailed.WithError(errors.New("media job without media id"))
		}
		return d.media.MediaJob(*j.Target.MediaID), nil
	case domain.JobKindBatchChunk:
		if d.chunks == nil {
			return nil, fmt.Errorf("chunk jobs are not handled by this worker")
		}
		return d.chunks.ChunkJob(j.Target), nil
	default:
		return nil, domain.ErrValidationFailed.WithError(fmt.Errorf("unknown job kind %q", j.Kind))
	}
}
