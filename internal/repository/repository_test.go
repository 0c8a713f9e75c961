package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func strPtr(s string) *string { return &s }

func unitEmbedding() []float32 {
	v := make([]float32, domain.EmbeddingDimension)
	v[0] = 1
	return v
}

// MediaRepository Tests

func TestMediaRepository_Create(t *testing.T) {
	now := time.Now()

	newItem := func() *domain.MediaItem {
		return &domain.MediaItem{
			StoragePath:  "/data/uploads/0123456789ab_a.jpg",
			OriginalName: "a.jpg",
			DedupName:    "0123456789ab_a.jpg",
			ContentHash:  "0123456789abcdef0123456789abcdef",
			SizeBytes:    2048,
			Type:         domain.MediaTypeImage,
		}
	}

	tests := []struct {
		name      string
		item      *domain.MediaItem
		mockSetup func(mock pgxmock.PgxPoolIface)
		wantErr   error
	}{
		{
			name: "successful creation",
			item: newItem(),
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO media_items`).
					WithArgs(pgxmock.AnyArg(), "/data/uploads/0123456789ab_a.jpg", "a.jpg", "0123456789ab_a.jpg",
						"0123456789abcdef0123456789abcdef", int64(2048), domain.MediaTypeImage, domain.MediaStatusPending).
					WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))
			},
		},
		{
			name: "duplicate dedup name",
			item: newItem(),
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO media_items`).
					WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})
			},
			wantErr: domain.ErrMediaExists,
		},
		{
			name:      "invalid item never reaches the database",
			item:      &domain.MediaItem{Type: domain.MediaTypeImage},
			mockSetup: func(mock pgxmock.PgxPoolIface) {},
			wantErr:   domain.ErrValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			tt.mockSetup(mock)

			repo := NewMediaRepository(mock)
			err := repo.Create(context.Background(), tt.item)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.NotEqual(t, uuid.Nil, tt.item.ID)
				assert.Equal(t, now, tt.item.CreatedAt)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func mediaRow(id uuid.UUID, now time.Time) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "storage_path", "original_name", "dedup_name", "content_hash", "size_bytes",
		"media_type", "status", "face_count", "error_message", "created_at", "processed_at",
	}).AddRow(
		id, "/data/uploads/x_a.mp4", "a.mp4", "x_a.mp4", "abc", int64(10),
		"video", "completed", 3, nil, now, &now,
	)
}

func TestMediaRepository_GetByID(t *testing.T) {
	id := uuid.New()
	now := time.Now()

	t.Run("found", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT .* FROM media_items WHERE id = \$1`).
			WithArgs(id).
			WillReturnRows(mediaRow(id, now))

		m, err := NewMediaRepository(mock).GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, domain.MediaTypeVideo, m.Type)
		assert.Equal(t, domain.MediaStatusCompleted, m.Status)
		assert.Equal(t, 3, m.FaceCount)
		assert.Empty(t, m.Error)
		require.NotNil(t, m.ProcessedAt)
	})

	t.Run("not found", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT .* FROM media_items WHERE id = \$1`).
			WithArgs(id).
			WillReturnError(pgx.ErrNoRows)

		_, err := NewMediaRepository(mock).GetByID(context.Background(), id)
		assert.ErrorIs(t, err, domain.ErrMediaNotFound)
	})
}

func TestMediaRepository_ContentHashLookup(t *testing.T) {
	const hash = "0123456789abcdef0123456789abcdef"

	t.Run("exists", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM media_items WHERE content_hash = \$1\)`).
			WithArgs(hash).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		exists, err := NewMediaRepository(mock).ExistsByContentHash(context.Background(), hash)
		require.NoError(t, err)
		assert.True(t, exists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get", func(t *testing.T) {
		mock := newMockPool(t)
		id := uuid.New()
		mock.ExpectQuery(`SELECT .* FROM media_items WHERE content_hash = \$1`).
			WithArgs(hash).
			WillReturnRows(mediaRow(id, time.Now()))

		m, err := NewMediaRepository(mock).GetByContentHash(context.Background(), hash)
		require.NoError(t, err)
		assert.Equal(t, id, m.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get not found", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT .* FROM media_items WHERE content_hash = \$1`).
			WithArgs(hash).
			WillReturnError(pgx.ErrNoRows)

		_, err := NewMediaRepository(mock).GetByContentHash(context.Background(), hash)
		assert.ErrorIs(t, err, domain.ErrMediaNotFound)
	})
}

func TestMediaRepository_List(t *testing.T) {
	mock := newMockPool(t)
	now := time.Now()
	id := uuid.New()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM media_items WHERE media_type = \$1 AND status = \$2`).
		WithArgs(domain.MediaTypeVideo, domain.MediaStatusCompleted).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery(`SELECT .* FROM media_items WHERE media_type = \$1 AND status = \$2 ORDER BY created_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs(domain.MediaTypeVideo, domain.MediaStatusCompleted, 50, 0).
		WillReturnRows(mediaRow(id, now))

	items, total, err := NewMediaRepository(mock).List(context.Background(), domain.MediaFilter{
		Type:   domain.MediaTypeVideo,
		Status: domain.MediaStatusCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMediaRepository_UpdateStatus(t *testing.T) {
	id := uuid.New()

	t.Run("mark failed", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE media_items`).
			WithArgs(id, domain.MediaStatusFailed, 0, "detector down").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := NewMediaRepository(mock).MarkFailed(context.Background(), id, "detector down")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing media", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE media_items`).
			WithArgs(id, domain.MediaStatusCompleted, 2, "").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := NewMediaRepository(mock).MarkCompleted(context.Background(), id, 2)
		assert.ErrorIs(t, err, domain.ErrMediaNotFound)
	})
}

// FaceRepository Tests

func TestFaceRepository_CreateBatch(t *testing.T) {
	mediaID := uuid.New()
	now := time.Now()

	newFaces := func() []*domain.FaceRecord {
		ts := 1.5
		return []*domain.FaceRecord{
			{MediaID: mediaID, Embedding: unitEmbedding(), Confidence: 0.9, QualityScore: 0.7},
			{MediaID: mediaID, Embedding: unitEmbedding(), Confidence: 0.8, QualityScore: 0.6, Timestamp: &ts,
				Pose: &domain.Pose{Yaw: 10}},
		}
	}

	t.Run("all faces in one transaction", func(t *testing.T) {
		mock := newMockPool(t)
		faces := newFaces()

		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO faces`).
			WithArgs(anyArgs(15)...).
			WillReturnRows(pgxmock.NewRows([]string{"seq", "created_at"}).AddRow(int64(1), now))
		mock.ExpectQuery(`INSERT INTO faces`).
			WithArgs(anyArgs(15)...).
			WillReturnRows(pgxmock.NewRows([]string{"seq", "created_at"}).AddRow(int64(2), now))
		mock.ExpectCommit()
		mock.ExpectRollback()

		err := NewFaceRepository(mock).CreateBatch(context.Background(), faces)
		require.NoError(t, err)
		assert.Equal(t, int64(1), faces[0].Seq)
		assert.Equal(t, int64(2), faces[1].Seq)
		assert.NotEqual(t, uuid.Nil, faces[1].ID)
	})

	t.Run("insert failure rolls back", func(t *testing.T) {
		mock := newMockPool(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO faces`).
			WithArgs(anyArgs(15)...).
			WillReturnRows(pgxmock.NewRows([]string{"seq", "created_at"}).AddRow(int64(1), now))
		mock.ExpectQuery(`INSERT INTO faces`).
			WithArgs(anyArgs(15)...).
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := NewFaceRepository(mock).CreateBatch(context.Background(), newFaces())
		require.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wrong dimension is rejected before any write", func(t *testing.T) {
		mock := newMockPool(t)
		faces := newFaces()
		faces[1].Embedding = []float32{1, 0, 0}

		err := NewFaceRepository(mock).CreateBatch(context.Background(), faces)
		assert.ErrorIs(t, err, domain.ErrInvalidEmbedding)
		assert.Equal(t, domain.KindValidation, domain.KindOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		mock := newMockPool(t)
		assert.NoError(t, NewFaceRepository(mock).CreateBatch(context.Background(), nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestFaceRepository_CorpusSince(t *testing.T) {
	mock := newMockPool(t)
	a, b := uuid.New(), uuid.New()
	mediaID := uuid.New()
	ts := 2.0

	rows := pgxmock.NewRows([]string{
		"id", "media_id", "seq", "embedding", "bbox_x", "bbox_y", "bbox_w", "bbox_h", "quality_score", "timestamp_sec",
	}).
		AddRow(a, mediaID, int64(4), pgvector.NewVector([]float32{1, 0}), 1, 2, 3, 4, 0.5, nil).
		AddRow(b, mediaID, int64(5), pgvector.NewVector([]float32{0, 1}), 5, 6, 7, 8, 0.9, &ts)

	mock.ExpectQuery(`SELECT .* FROM faces WHERE seq > \$1 ORDER BY seq`).
		WithArgs(int64(3)).
		WillReturnRows(rows)

	entries, err := NewFaceRepository(mock).CorpusSince(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, a, entries[0].FaceID)
	assert.Equal(t, []float32{1, 0}, entries[0].Embedding)
	assert.Equal(t, domain.BoundingBox{X: 1, Y: 2, Width: 3, Height: 4}, entries[0].BoundingBox)
	assert.Nil(t, entries[0].Timestamp)

	assert.Equal(t, int64(5), entries[1].Seq)
	require.NotNil(t, entries[1].Timestamp)
	assert.Equal(t, 2.0, *entries[1].Timestamp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFaceRepository_ListByMedia(t *testing.T) {
	mock := newMockPool(t)
	mediaID := uuid.New()
	faceID := uuid.New()
	now := time.Now()
	frame := 30

	rows := pgxmock.NewRows([]string{
		"id", "media_id", "seq", "bbox_x", "bbox_y", "bbox_w", "bbox_h", "confidence", "quality_score",
		"landmarks", "pose", "attributes", "frame_index", "timestamp_sec", "crop_path", "created_at",
	}).AddRow(
		faceID, mediaID, int64(1), 10, 20, 30, 40, 0.95, 0.8,
		[]byte(`[{"x":1,"y":2}]`), []byte(`{"yaw":5,"pitch":0,"roll":0}`), []byte(`{"gender":"female"}`),
		&frame, nil, nil, now,
	)

	mock.ExpectQuery(`SELECT .* FROM faces WHERE media_id = \$1 ORDER BY seq`).
		WithArgs(mediaID).
		WillReturnRows(rows)

	faces, err := NewFaceRepository(mock).ListByMedia(context.Background(), mediaID)
	require.NoError(t, err)
	require.Len(t, faces, 1)

	f := faces[0]
	assert.Equal(t, []domain.Point{{X: 1, Y: 2}}, f.Landmarks)
	require.NotNil(t, f.Pose)
	assert.Equal(t, 5.0, f.Pose.Yaw)
	assert.Equal(t, "female", f.Attributes.Gender)
	require.NotNil(t, f.FrameIndex)
	assert.Equal(t, 30, *f.FrameIndex)
	assert.Empty(t, f.CropPath)
}

// JobRepository Tests

func jobRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "kind", "target", "state", "current", "total", "message", "result",
		"error_code", "claimed_by", "created_at", "started_at", "finished_at", "updated_at",
	})
}

func TestJobRepository_Create(t *testing.T) {
	mock := newMockPool(t)
	now := time.Now()
	mediaID := uuid.New()

	job := &domain.Job{Kind: domain.JobKindMedia, Target: domain.MediaTarget(mediaID)}
	target, _ := json.Marshal(job.Target)

	mock.ExpectQuery(`INSERT INTO jobs`).
		WithArgs(pgxmock.AnyArg(), domain.JobKindMedia, target, domain.JobStatePending, 0, 0, "").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	require.NoError(t, NewJobRepository(mock).Create(context.Background(), job))
	assert.Equal(t, domain.JobStatePending, job.State)
	assert.NotEqual(t, uuid.Nil, job.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_Transition(t *testing.T) {
	id := uuid.New()
	now := time.Now()

	t.Run("applied", func(t *testing.T) {
		mock := newMockPool(t)
		result := json.RawMessage(`{"faces_found":2}`)

		mock.ExpectQuery(`UPDATE jobs SET state = \$3`).
			WithArgs(id, domain.JobStateProcessing, domain.JobStateSuccess, "done", []byte(result), "").
			WillReturnRows(jobRows().AddRow(
				id, "media", []byte(`{"media_id":"`+id.String()+`"}`), "SUCCESS", 1, 1, "done", []byte(result),
				nil, strPtr("worker-1"), now, &now, &now, now,
			))

		job, err := NewJobRepository(mock).Transition(context.Background(), id, domain.JobTransition{
			From:    domain.JobStateProcessing,
			To:      domain.JobStateSuccess,
			Message: "done",
			Result:  result,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.JobStateSuccess, job.State)
		assert.Equal(t, "worker-1", job.ClaimedBy)
		assert.JSONEq(t, string(result), string(job.Result))
		require.NotNil(t, job.Target.MediaID)
		assert.Equal(t, id, *job.Target.MediaID)
	})

	t.Run("state moved underneath", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`UPDATE jobs SET state = \$3`).
			WithArgs(id, domain.JobStatePending, domain.JobStateProcessing, "", []byte(nil), "").
			WillReturnError(pgx.ErrNoRows)

		_, err := NewJobRepository(mock).Transition(context.Background(), id, domain.JobTransition{
			From: domain.JobStatePending,
			To:   domain.JobStateProcessing,
		})
		assert.ErrorIs(t, err, domain.ErrStaleJobState)
	})
}

func TestJobRepository_UpdateProgress(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"processing job", 1, true},
		{"job in another state", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			mock.ExpectExec(`UPDATE jobs SET current = \$2, total = \$3, message = \$4`).
				WithArgs(id, 3, 10, "frame 90").
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))

			ok, err := NewJobRepository(mock).UpdateProgress(context.Background(), id, 3, 10, "frame 90")
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestJobRepository_ClaimNext(t *testing.T) {
	t.Run("claims oldest pending", func(t *testing.T) {
		mock := newMockPool(t)
		id := uuid.New()
		now := time.Now()

		mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
			WithArgs("worker-2").
			WillReturnRows(jobRows().AddRow(
				id, "media", []byte(`{}`), "PROCESSING", 0, 0, "", nil,
				nil, strPtr("worker-2"), now, &now, nil, now,
			))

		job, err := NewJobRepository(mock).ClaimNext(context.Background(), "worker-2")
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, domain.JobStateProcessing, job.State)
		assert.Nil(t, job.FinishedAt)
	})

	t.Run("empty queue", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
			WithArgs("worker-2").
			WillReturnError(pgx.ErrNoRows)

		job, err := NewJobRepository(mock).ClaimNext(context.Background(), "worker-2")
		require.NoError(t, err)
		assert.Nil(t, job)
	})
}

func TestJobRepository_ListStale(t *testing.T) {
	cutoff := time.Now().Add(-30 * time.Minute)

	t.Run("returns processing jobs started before cutoff", func(t *testing.T) {
		mock := newMockPool(t)
		a, b := uuid.New(), uuid.New()

		mock.ExpectQuery(`WHERE state = 'PROCESSING' AND started_at < \$1`).
			WithArgs(cutoff).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(a).AddRow(b))

		ids, err := NewJobRepository(mock).ListStale(context.Background(), cutoff)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{a, b}, ids)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`WHERE state = 'PROCESSING'`).
			WithArgs(cutoff).
			WillReturnError(errors.New("connection reset"))

		_, err := NewJobRepository(mock).ListStale(context.Background(), cutoff)
		assert.Error(t, err)
	})
}

// SearchLogRepository Tests

func TestSearchLogRepository_Create(t *testing.T) {
	mock := newMockPool(t)
	now := time.Now()

	log := &domain.SearchLog{QueryHash: "search:abc", Threshold: 0.6, TopK: 20, ResultsCount: 3, LatencyMs: 12}

	mock.ExpectQuery(`INSERT INTO search_logs`).
		WithArgs(pgxmock.AnyArg(), "search:abc", 0.6, 20, 3, false, int64(12)).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))

	require.NoError(t, NewSearchLogRepository(mock).Create(context.Background(), log))
	assert.Equal(t, now, log.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// StatsRepository Tests

func TestStatsRepository_Stats(t *testing.T) {
	mock := newMockPool(t)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM media_items GROUP BY status`).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("completed", int64(4)).
			AddRow("failed", int64(1)))
	mock.ExpectQuery(`SELECT media_type, COUNT\(\*\) FROM media_items GROUP BY media_type`).
		WillReturnRows(pgxmock.NewRows([]string{"media_type", "count"}).AddRow("image", int64(5)))
	mock.ExpectQuery(`SELECT state, COUNT\(\*\) FROM jobs GROUP BY state`).
		WillReturnRows(pgxmock.NewRows([]string{"state", "count"}).AddRow("SUCCESS", int64(5)))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM faces`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(11)))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM search_logs`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))

	stats, err := NewStatsRepository(mock).Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.MediaByStatus[domain.MediaStatusCompleted])
	assert.Equal(t, int64(5), stats.MediaByType[domain.MediaTypeImage])
	assert.Equal(t, int64(5), stats.JobsByState[domain.JobStateSuccess])
	assert.Equal(t, int64(11), stats.TotalFaces)
	assert.Equal(t, int64(7), stats.TotalSearches)
	assert.NoError(t, mock.ExpectationsWereMet())
}
