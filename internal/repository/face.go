package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

type FaceRepository struct {
	pool PgxPool
}

func NewFaceRepository(pool PgxPool) *FaceRepository {
	return &FaceRepository{pool: pool}
}

const insertFaceQuery = `
	INSERT INTO faces (
		id, media_id, embedding, bbox_x, bbox_y, bbox_w, bbox_h,
		confidence, quality_score, landmarks, pose, attributes,
		frame_index, timestamp_sec, crop_path, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW())
	RETURNING seq, created_at
`

// CreateBatch validates and inserts all faces of one media item in a single
// transaction. Either every record is written or none is.
func (r *FaceRepository) CreateBatch(ctx context.Context, faces []*domain.FaceRecord) error {
	if len(faces) == 0 {
		return nil
	}

	for _, f := range faces {
		if err := f.Validate(); err != nil {
			return err
		}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin face batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, f := range faces {
		if err := insertFace(ctx, tx, f); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit face batch: %w", err)
	}
	return nil
}

func insertFace(ctx context.Context, tx pgx.Tx, f *domain.FaceRecord) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}

	landmarks, err := marshalOptional(f.Landmarks, len(f.Landmarks) > 0)
	if err != nil {
		return fmt.Errorf("face %s landmarks: %w", f.ID, err)
	}
	pose, err := marshalOptional(f.Pose, f.Pose != nil)
	if err != nil {
		return fmt.Errorf("face %s pose: %w", f.ID, err)
	}
	attrs, err := marshalOptional(f.Attributes, true)
	if err != nil {
		return fmt.Errorf("face %s attributes: %w", f.ID, err)
	}

	var cropPath *string
	if f.CropPath != "" {
		cropPath = &f.CropPath
	}

	err = tx.QueryRow(ctx, insertFaceQuery,
		f.ID,
		f.MediaID,
		pgvector.NewVector(f.Embedding),
		f.BoundingBox.X,
		f.BoundingBox.Y,
		f.BoundingBox.Width,
		f.BoundingBox.Height,
		f.Confidence,
		f.QualityScore,
		landmarks,
		pose,
		attrs,
		f.FrameIndex,
		f.Timestamp,
		cropPath,
	).Scan(&f.Seq, &f.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert face %s: %w", f.ID, err)
	}
	return nil
}

// ListByMedia returns a media item's faces in insertion order.
func (r *FaceRepository) ListByMedia(ctx context.Context, mediaID uuid.UUID) ([]domain.FaceRecord, error) {
	query := `
		SELECT id, media_id, seq, bbox_x, bbox_y, bbox_w, bbox_h,
		       confidence, quality_score, landmarks, pose, attributes,
		       frame_index, timestamp_sec, crop_path, created_at
		FROM faces
		WHERE media_id = $1
		ORDER BY seq
	`

	rows, err := r.pool.Query(ctx, query, mediaID)
	if err != nil {
		return nil, fmt.Errorf("list faces: %w", err)
	}
	defer rows.Close()

	var faces []domain.FaceRecord
	for rows.Next() {
		var f domain.FaceRecord
		var landmarks, pose, attrs []byte
		var cropPath *string

		if err := rows.Scan(
			&f.ID,
			&f.MediaID,
			&f.Seq,
			&f.BoundingBox.X,
			&f.BoundingBox.Y,
			&f.BoundingBox.Width,
			&f.BoundingBox.Height,
			&f.Confidence,
			&f.QualityScore,
			&landmarks,
			&pose,
			&attrs,
			&f.FrameIndex,
			&f.Timestamp,
			&cropPath,
			&f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}

		if err := unmarshalOptional(landmarks, &f.Landmarks); err != nil {
			return nil, fmt.Errorf("face %s landmarks: %w", f.ID, err)
		}
		if len(pose) > 0 {
			f.Pose = &domain.Pose{}
			if err := unmarshalOptional(pose, f.Pose); err != nil {
				return nil, fmt.Errorf("face %s pose: %w", f.ID, err)
			}
		}
		if err := unmarshalOptional(attrs, &f.Attributes); err != nil {
			return nil, fmt.Errorf("face %s attributes: %w", f.ID, err)
		}
		if cropPath != nil {
			f.CropPath = *cropPath
		}

		faces = append(faces, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faces: %w", err)
	}
	return faces, nil
}

// CorpusSince streams every face with seq > afterSeq in insertion order.
// afterSeq = 0 returns the whole corpus.
func (r *FaceRepository) CorpusSince(ctx context.Context, afterSeq int64) ([]domain.CorpusEntry, error) {
	query := `
		SELECT id, media_id, seq, embedding, bbox_x, bbox_y, bbox_w, bbox_h,
		       quality_score, timestamp_sec
		FROM faces
		WHERE seq > $1
		ORDER BY seq
	`

	rows, err := r.pool.Query(ctx, query, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	defer rows.Close()

	var entries []domain.CorpusEntry
	for rows.Next() {
		var e domain.CorpusEntry
		var embedding pgvector.Vector

		if err := rows.Scan(
			&e.FaceID,
			&e.MediaID,
			&e.Seq,
			&embedding,
			&e.BoundingBox.X,
			&e.BoundingBox.Y,
			&e.BoundingBox.Width,
			&e.BoundingBox.Height,
			&e.QualityScore,
			&e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan corpus entry: %w", err)
		}
		e.Embedding = embedding.Slice()
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate corpus: %w", err)
	}
	return entries, nil
}

// Corpus returns the whole corpus in insertion order.
func (r *FaceRepository) Corpus(ctx context.Context) ([]domain.CorpusEntry, error) {
	return r.CorpusSince(ctx, 0)
}

func (r *FaceRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM faces`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count faces: %w", err)
	}
	return n, nil
}
