package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

const jobColumns = `id, kind, target, state, current, total, message, result,
		error_code, claimed_by, created_at, started_at, finished_at, updated_at`

// JobRepository is the durable job queue. Every state change is a
// compare-and-set on the current state, so concurrent writers cannot regress a job.
type JobRepository struct {
	pool PgxPool
}

func NewJobRepository(pool PgxPool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (id, kind, target, state, current, total, message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.State == "" {
		job.State = domain.JobStatePending
	}

	target, err := json.Marshal(job.Target)
	if err != nil {
		return fmt.Errorf("marshal job target: %w", err)
	}

	err = r.pool.QueryRow(ctx, query,
		job.ID,
		job.Kind,
		target,
		job.State,
		job.Current,
		job.Total,
		job.Message,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	return nil
}

func (r *JobRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	job, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Transition applies t only while the job is still in t.From. It returns
// ErrStaleJobState when another writer moved the job first.
func (r *JobRepository) Transition(ctx context.Context, id uuid.UUID, t domain.JobTransition) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET state = $3,
		    message = $4,
		    result = COALESCE($5, result),
		    error_code = NULLIF($6, ''),
		    started_at = CASE WHEN $3 = 'PROCESSING' THEN NOW() ELSE started_at END,
		    finished_at = CASE WHEN $3 IN ('SUCCESS', 'FAILURE') THEN NOW() ELSE finished_at END,
		    updated_at = NOW()
		WHERE id = $1 AND state = $2
		RETURNING ` + jobColumns

	var result []byte
	if len(t.Result) > 0 {
		result = t.Result
	}

	job, err := scanJob(r.pool.QueryRow(ctx, query, id, t.From, t.To, t.Message, result, t.ErrorCode))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrStaleJobState
	}
	if err != nil {
		return nil, fmt.Errorf("transition job: %w", err)
	}
	return job, nil
}

// UpdateProgress records progress on a PROCESSING job. It reports false
// when the job is in any other state.
func (r *JobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, current, total int, message string) (bool, error) {
	query := `
		UPDATE jobs
		SET current = $2, total = $3, message = $4, updated_at = NOW()
		WHERE id = $1 AND state = 'PROCESSING'
	`

	result, err := r.pool.Exec(ctx, query, id, current, total, message)
	if err != nil {
		return false, fmt.Errorf("update job progress: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ClaimNext moves the oldest PENDING job to PROCESSING on behalf of owner.
// It returns nil when the queue is empty.
func (r *JobRepository) ClaimNext(ctx context.Context, owner string) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET state = 'PROCESSING', claimed_by = $1, started_at = NOW(), updated_at = NOW()
		WHERE id = (
			SELECT id FROM jobs
			WHERE state = 'PENDING'
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING ` + jobColumns

	job, err := scanJob(r.pool.QueryRow(ctx, query, owner))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// ListStale returns the PROCESSING jobs started before cutoff, oldest first.
// Their worker either is still running past the hard ceiling or is gone.
func (r *JobRepository) ListStale(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM jobs
		WHERE state = 'PROCESSING' AND started_at < $1
		ORDER BY started_at
	`

	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale job: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale jobs: %w", err)
	}
	return ids, nil
}

// ListByBatch returns the chunk jobs of a batch ordered by chunk index.
func (r *JobRepository) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE kind = 'batch_chunk' AND target->>'batch_id' = $1
		ORDER BY (target->>'chunk_index')::int NULLS FIRST
	`

	rows, err := r.pool.Query(ctx, query, batchID.String())
	if err != nil {
		return nil, fmt.Errorf("list batch jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batch jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var target, result []byte
	var errorCode, claimedBy *string

	err := row.Scan(
		&job.ID,
		&job.Kind,
		&target,
		&job.State,
		&job.Current,
		&job.Total,
		&job.Message,
		&result,
		&errorCode,
		&claimedBy,
		&job.CreatedAt,
		&job.StartedAt,
		&job.FinishedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalOptional(target, &job.Target); err != nil {
		return nil, fmt.Errorf("job %s target: %w", job.ID, err)
	}
	if len(result) > 0 {
		job.Result = json.RawMessage(result)
	}
	if errorCode != nil {
		job.ErrorCode = *errorCode
	}
	if claimedBy != nil {
		job.ClaimedBy = *claimedBy
	}
	return &job, nil
}
