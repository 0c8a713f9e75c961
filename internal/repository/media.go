package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

const defaultMediaPageSize = 50

const mediaColumns = `id, storage_path, original_name, dedup_name, content_hash, size_bytes,
		       media_type, status, face_count, error_message, created_at, processed_at`

type MediaRepository struct {
	pool PgxPool
}

func NewMediaRepository(pool PgxPool) *MediaRepository {
	return &MediaRepository{pool: pool}
}

func (r *MediaRepository) Create(ctx context.Context, m *domain.MediaItem) error {
	if err := m.Validate(); err != nil {
		return domain.ErrValidationFailed.WithError(err)
	}

	query := `
		INSERT INTO media_items (
			id, storage_path, original_name, dedup_name, content_hash, size_bytes,
			media_type, status, face_count, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, NOW())
		RETURNING created_at
	`

	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Status == "" {
		m.Status = domain.MediaStatusPending
	}

	err := r.pool.QueryRow(ctx, query,
		m.ID,
		m.StoragePath,
		m.OriginalName,
		m.DedupName,
		m.ContentHash,
		m.SizeBytes,
		m.Type,
		m.Status,
	).Scan(&m.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrMediaExists
		}
		return fmt.Errorf("create media: %w", err)
	}

	return nil
}

func (r *MediaRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.MediaItem, error) {
	query := `SELECT ` + mediaColumns + ` FROM media_items WHERE id = $1`
	m, err := scanMedia(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrMediaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get media: %w", err)
	}
	return m, nil
}

// GetByContentHash finds the media item holding the given bytes, whatever
// filename they arrived under.
func (r *MediaRepository) GetByContentHash(ctx context.Context, hash string) (*domain.MediaItem, error) {
	query := `SELECT ` + mediaColumns + ` FROM media_items WHERE content_hash = $1`
	m, err := scanMedia(r.pool.QueryRow(ctx, query, hash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrMediaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get media by content hash: %w", err)
	}
	return m, nil
}

func (r *MediaRepository) ExistsByContentHash(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM media_items WHERE content_hash = $1)`, hash,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check media exists: %w", err)
	}
	return exists, nil
}

// List returns one page of media, newest first, and the total matching count.
func (r *MediaRepository) List(ctx context.Context, filter domain.MediaFilter) ([]domain.MediaItem, int64, error) {
	var where []string
	var args []any

	if filter.Type != "" {
		args = append(args, filter.Type)
		where = append(where, fmt.Sprintf("media_type = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM media_items`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count media: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultMediaPageSize
	}
	args = append(args, limit, max(filter.Offset, 0))
	query := fmt.Sprintf(`SELECT %s FROM media_items%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		mediaColumns, clause, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	var items []domain.MediaItem
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan media: %w", err)
		}
		items = append(items, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate media: %w", err)
	}

	return items, total, nil
}

func (r *MediaRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return r.updateStatus(ctx, id, domain.MediaStatusProcessing, 0, "")
}

func (r *MediaRepository) MarkCompleted(ctx context.Context, id uuid.UUID, faceCount int) error {
	return r.updateStatus(ctx, id, domain.MediaStatusCompleted, faceCount, "")
}

func (r *MediaRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return r.updateStatus(ctx, id, domain.MediaStatusFailed, 0, reason)
}

func (r *MediaRepository) updateStatus(ctx context.Context, id uuid.UUID, status domain.MediaStatus, faceCount int, reason string) error {
	query := `
		UPDATE media_items
		SET status = $2,
		    face_count = $3,
		    error_message = NULLIF($4, ''),
		    processed_at = CASE WHEN $2 IN ('completed', 'failed') THEN NOW() ELSE processed_at END
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, status, faceCount, reason)
	if err != nil {
		return fmt.Errorf("update media status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrMediaNotFound
	}
	return nil
}

func scanMedia(row pgx.Row) (*domain.MediaItem, error) {
	var m domain.MediaItem
	var errMsg *string

	err := row.Scan(
		&m.ID,
		&m.StoragePath,
		&m.OriginalName,
		&m.DedupName,
		&m.ContentHash,
		&m.SizeBytes,
		&m.Type,
		&m.Status,
		&m.FaceCount,
		&errMsg,
		&m.CreatedAt,
		&m.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	if errMsg != nil {
		m.Error = *errMsg
	}
	return &m, nil
}
