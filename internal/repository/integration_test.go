//go:build integration

package repository

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/database"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

func setupIntegrationTest(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "facetrail_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connStr := fmt.Sprintf("postgres://test:test@%s:%s/facetrail_test?sslmode=disable", host, port.Port())

	pool, err := database.NewPool(ctx, database.DefaultPoolConfig(connStr, 4))
	require.NoError(t, err)

	db := database.SQLDB(pool)
	require.NoError(t, database.MigrateUp(db, "facetrail_test", slog.New(slog.NewTextHandler(io.Discard, nil))))

	t.Cleanup(func() {
		_ = db.Close()
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	return pool
}

func embeddingAt(axis int) []float32 {
	v := make([]float32, domain.EmbeddingDimension)
	v[axis] = 1
	return v
}

func TestRepositories_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pool := setupIntegrationTest(t)
	ctx := context.Background()

	media := NewMediaRepository(pool)
	faces := NewFaceRepository(pool)
	jobs := NewJobRepository(pool)

	item := &domain.MediaItem{
		StoragePath:  "/tmp/abc_a.jpg",
		OriginalName: "a.jpg",
		DedupName:    "abc_a.jpg",
		ContentHash:  "0123456789abcdef0123456789abcdef",
		Type:         domain.MediaTypeImage,
	}
	require.NoError(t, media.Create(ctx, item))

	t.Run("duplicate dedup name conflicts", func(t *testing.T) {
		dup := *item
		dup.ID = uuid.Nil
		assert.ErrorIs(t, media.Create(ctx, &dup), domain.ErrMediaExists)
	})

	t.Run("same content under another name conflicts", func(t *testing.T) {
		dup := *item
		dup.ID = uuid.Nil
		dup.OriginalName = "copy_of_a.jpg"
		dup.DedupName = "abc_copy_of_a.jpg"
		dup.StoragePath = "/tmp/abc_copy_of_a.jpg"
		assert.ErrorIs(t, media.Create(ctx, &dup), domain.ErrMediaExists)

		found, err := media.GetByContentHash(ctx, item.ContentHash)
		require.NoError(t, err)
		assert.Equal(t, item.ID, found.ID)
	})

	t.Run("corpus keeps insertion order", func(t *testing.T) {
		records := make([]*domain.FaceRecord, 3)
		for i := range records {
			records[i] = &domain.FaceRecord{
				MediaID:      item.ID,
				Embedding:    embeddingAt(i),
				Confidence:   0.9,
				QualityScore: 0.5,
			}
		}
		require.NoError(t, faces.CreateBatch(ctx, records))

		corpus, err := faces.Corpus(ctx)
		require.NoError(t, err)
		require.Len(t, corpus, 3)
		for i, e := range corpus {
			assert.Equal(t, records[i].ID, e.FaceID)
			assert.Equal(t, float32(1), e.Embedding[i])
		}

		tail, err := faces.CorpusSince(ctx, corpus[0].Seq)
		require.NoError(t, err)
		assert.Len(t, tail, 2)
	})

	t.Run("each pending job is claimed once", func(t *testing.T) {
		const n = 8
		for i := 0; i < n; i++ {
			require.NoError(t, jobs.Create(ctx, &domain.Job{Kind: domain.JobKindMedia, Target: domain.MediaTarget(item.ID)}))
		}

		var mu sync.Mutex
		claimed := make(map[uuid.UUID]int)
		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(owner string) {
				defer wg.Done()
				for {
					job, err := jobs.ClaimNext(ctx, owner)
					if err != nil || job == nil {
						return
					}
					mu.Lock()
					claimed[job.ID]++
					mu.Unlock()
				}
			}(fmt.Sprintf("worker-%d", w))
		}
		wg.Wait()

		assert.Len(t, claimed, n)
		for id, count := range claimed {
			assert.Equal(t, 1, count, "job %s claimed more than once", id)
		}
	})

	t.Run("terminal state cannot regress", func(t *testing.T) {
		job := &domain.Job{Kind: domain.JobKindMedia, Target: domain.MediaTarget(item.ID)}
		require.NoError(t, jobs.Create(ctx, job))

		_, err := jobs.Transition(ctx, job.ID, domain.JobTransition{From: domain.JobStatePending, To: domain.JobStateProcessing})
		require.NoError(t, err)
		done, err := jobs.Transition(ctx, job.ID, domain.JobTransition{From: domain.JobStateProcessing, To: domain.JobStateSuccess})
		require.NoError(t, err)
		assert.NotNil(t, done.FinishedAt)

		_, err = jobs.Transition(ctx, job.ID, domain.JobTransition{From: domain.JobStateProcessing, To: domain.JobStateFailure})
		assert.ErrorIs(t, err, domain.ErrStaleJobState)

		ok, err := jobs.UpdateProgress(ctx, job.ID, 1, 2, "late")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
