package job

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

// MemoryStore is a process-local Store for one-shot CLI runs and tests.
type MemoryStore struct {
	mu    sync.Mutex
	jobs  map[uuid.UUID]*domain.Job
	order []uuid.UUID
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[uuid.UUID]*domain.Job),
		now:  time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.State == "" {
		job.State = domain.JobStatePending
	}
	now := s.now()
	job.CreatedAt = now
	job.UpdatedAt = now

	stored := *job
	s.jobs[job.ID] = &stored
	s.order = append(s.order, job.ID)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	out := *job
	return &out, nil
}

func (s *MemoryStore) Transition(_ context.Context, id uuid.UUID, t domain.JobTransition) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if job.State != t.From {
		return nil, domain.ErrStaleJobState
	}

	s.apply(job, t.To)
	job.Message = t.Message
	if len(t.Result) > 0 {
		job.Result = append(json.RawMessage(nil), t.Result...)
	}
	job.ErrorCode = t.ErrorCode

	out := *job
	return &out, nil
}

func (s *MemoryStore) UpdateProgress(_ context.Context, id uuid.UUID, current, total int, message string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.State != domain.JobStateProcessing {
		return false, nil
	}
	job.Current = current
	job.Total = total
	job.Message = message
	job.UpdatedAt = s.now()
	return true, nil
}

func (s *MemoryStore) ClaimNext(_ context.Context, owner string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		job := s.jobs[id]
		if job.State != domain.JobStatePending {
			continue
		}
		s.apply(job, domain.JobStateProcessing)
		job.ClaimedBy = owner
		out := *job
		return &out, nil
	}
	return nil, nil
}

// ListStale returns the PROCESSING jobs started before cutoff.
func (s *MemoryStore) ListStale(_ context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []uuid.UUID
	for _, id := range s.order {
		job := s.jobs[id]
		if job.State == domain.JobStateProcessing && job.StartedAt != nil && job.StartedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ListByBatch returns the chunk jobs of a batch ordered by chunk index.
func (s *MemoryStore) ListByBatch(_ context.Context, batchID uuid.UUID) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []domain.Job
	for _, id := range s.order {
		job := s.jobs[id]
		if job.Kind != domain.JobKindBatchChunk || job.Target.BatchID == nil || *job.Target.BatchID != batchID {
			continue
		}
		jobs = append(jobs, *job)
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].Target.ChunkIndex < jobs[j].Target.ChunkIndex
	})
	return jobs, nil
}

func (s *MemoryStore) apply(job *domain.Job, to domain.JobState) {
	now := s.now()
	job.State = to
	job.UpdatedAt = now
	if to == domain.JobStateProcessing {
		job.StartedAt = &now
	}
	if to.IsTerminal() {
		job.FinishedAt = &now
	}
}
