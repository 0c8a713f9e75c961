package job

import (
	"context"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

// Store persists jobs. Transition and UpdateProgress must be atomic with
// respect to the state they check.
type Store interface {
	Create(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	Transition(ctx context.Context, id uuid.UUID, t domain.JobTransition) (*domain.Job, error)
	UpdateProgress(ctx context.Context, id uuid.UUID, current, total int, message string) (bool, error)
	// ClaimNext moves the oldest PENDING job to PROCESSING. Nil when none is pending.
	ClaimNext(ctx context.Context, owner string) (*domain.Job, error)
}
