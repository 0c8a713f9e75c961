package service

import (
	"context"
	"crypto/md5" //nolint:gosec // content fingerprint, not a security boundary
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

type MediaCatalogInterface interface {
	Create(ctx context.Context, m *domain.MediaItem) error
	GetByContentHash(ctx context.Context, hash string) (*domain.MediaItem, error)
}

type JobCreator interface {
	Create(ctx context.Context, target domain.JobTarget) (*domain.Job, error)
}

// Notifier wakes the worker pool. Implementations must not block.
type Notifier interface {
	Notify()
}

type NotifierFunc func()

func (f NotifierFunc) Notify() { f() }

// Registration is the outcome of registering a file for ingestion. Job is nil
// when the content was already known.
type Registration struct {
	Media     *domain.MediaItem `json:"media"`
	Job       *domain.Job       `json:"job,omitempty"`
	Duplicate bool              `json:"duplicate"`
}

// Registrar stores incoming files under their dedup name and queues a media job
// for each new one. Content already registered under any filename is a duplicate.
type Registrar struct {
	catalog  MediaCatalogInterface
	jobs     JobCreator
	notifier Notifier
	dir      string
	logger   *slog.Logger
}

func NewRegistrar(catalog MediaCatalogInterface, jobs JobCreator, notifier Notifier, dir string, logger *slog.Logger) *Registrar {
	if notifier == nil {
		notifier = NotifierFunc(func() {})
	}
	return &Registrar{
		catalog:  catalog,
		jobs:     jobs,
		notifier: notifier,
		dir:      dir,
		logger:   logger.With("component", "registrar"),
	}
}

// Register copies r into the ingestion directory and queues a media job.
// Unsupported extensions are rejected before anything is written.
func (s *Registrar) Register(ctx context.Context, r io.Reader, filename string) (*Registration, error) {
	reg, err := s.store(ctx, r, filename)
	if err != nil || reg.Duplicate {
		return reg, err
	}

	j, err := s.jobs.Create(ctx, domain.MediaTarget(reg.Media.ID))
	if err != nil {
		return nil, fmt.Errorf("queue media %s: %w", reg.Media.ID, err)
	}
	s.notifier.Notify()
	reg.Job = j

	s.logger.InfoContext(ctx, "media registered",
		slog.String("media_id", reg.Media.ID.String()),
		slog.String("job_id", j.ID.String()),
		slog.String("dedup_name", reg.Media.DedupName),
		slog.String("type", string(reg.Media.Type)),
	)
	return reg, nil
}

// Import stores r and records its media item without queueing a job. The
// caller schedules the item itself, usually as part of a batch.
func (s *Registrar) Import(ctx context.Context, r io.Reader, filename string) (*Registration, error) {
	reg, err := s.store(ctx, r, filename)
	if err != nil {
		return nil, err
	}
	if !reg.Duplicate {
		s.logger.InfoContext(ctx, "media imported",
			slog.String("media_id", reg.Media.ID.String()),
			slog.String("dedup_name", reg.Media.DedupName),
		)
	}
	return reg, nil
}

func (s *Registrar) store(ctx context.Context, r io.Reader, filename string) (*Registration, error) {
	filename = filepath.Base(filename)
	mediaType, err := domain.MediaTypeFromPath(filename)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create ingestion dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".incoming-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck // gone after a successful rename

	h := md5.New() //nolint:gosec
	size, err := io.Copy(tmp, io.TeeReader(r, h))
	closeErr := tmp.Close()
	if err != nil {
		return nil, fmt.Errorf("copy %s: %w", filename, err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close temp file: %w", closeErr)
	}
	if size == 0 {
		return nil, domain.ErrValidationFailed.WithError(fmt.Errorf("%s is empty", filename))
	}

	hash := hex.EncodeToString(h.Sum(nil))
	dedupName := domain.DedupName(hash, filename)

	if existing, err := s.catalog.GetByContentHash(ctx, hash); err == nil {
		return &Registration{Media: existing, Duplicate: true}, nil
	} else if !errors.Is(err, domain.ErrMediaNotFound) {
		return nil, fmt.Errorf("check content hash: %w", err)
	}

	storagePath := filepath.Join(s.dir, dedupName)
	if err := os.Rename(tmpPath, storagePath); err != nil {
		return nil, fmt.Errorf("store %s: %w", dedupName, err)
	}

	item := &domain.MediaItem{
		StoragePath:  storagePath,
		OriginalName: filename,
		DedupName:    dedupName,
		ContentHash:  hash,
		SizeBytes:    size,
		Type:         mediaType,
		Status:       domain.MediaStatusPending,
	}
	if err := s.catalog.Create(ctx, item); err != nil {
		if errors.Is(err, domain.ErrMediaExists) {
			existing, getErr := s.catalog.GetByContentHash(ctx, hash)
			if getErr != nil {
				return nil, fmt.Errorf("load existing media: %w", getErr)
			}
			return &Registration{Media: existing, Duplicate: true}, nil
		}
		return nil, fmt.Errorf("register media: %w", err)
	}

	return &Registration{Media: item}, nil
}

// RegisterFile registers a file already on disk. The source is copied, not moved.
func (s *Registrar) RegisterFile(ctx context.Context, path string) (*Registration, error) {
	return s.fromFile(ctx, path, s.Register)
}

// ImportFile is Import for a file already on disk.
func (s *Registrar) ImportFile(ctx context.Context, path string) (*Registration, error) {
	return s.fromFile(ctx, path, s.Import)
}

func (s *Registrar) fromFile(ctx context.Context, path string, fn func(context.Context, io.Reader, string) (*Registration, error)) (*Registration, error) {
	if _, err := domain.MediaTypeFromPath(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	return fn(ctx, f, filepath.Base(path))
}

// ContentHashForFile returns the content hash of the file at path.
func ContentHashForFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	return domain.ContentHash(f)
}
