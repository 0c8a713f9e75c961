// Package watcher ingests media files dropped into a directory.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/service"
)

const (
	DefaultStabilityWindow = 2 * time.Second
	eventQueueSize         = 256
)

// Outcome is what happened to one candidate file.
type Outcome string

const (
	OutcomeAccepted    Outcome = "accepted"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeUnsupported Outcome = "unsupported"
	OutcomeUnstable    Outcome = "unstable"
	OutcomeInFlight    Outcome = "in_flight"
	OutcomeError       Outcome = "error"
)

type Registrar interface {
	RegisterFile(ctx context.Context, path string) (*service.Registration, error)
}

type DedupIndex interface {
	ExistsByContentHash(ctx context.Context, hash string) (bool, error)
}

type Observer interface {
	ObserveWatch(outcome Outcome)
}

type nopObserver struct{}

func (nopObserver) ObserveWatch(Outcome) {}

type Config struct {
	Dir             string
	StabilityWindow time.Duration
	// ProcessExisting also ingests files already present when Run starts.
	ProcessExisting bool
}

type Watcher struct {
	cfg       Config
	registrar Registrar
	index     DedupIndex
	observer  Observer
	logger    *slog.Logger

	mu       sync.Mutex
	queued   map[string]struct{}
	inFlight map[string]struct{}
}

func New(cfg Config, registrar Registrar, index DedupIndex, logger *slog.Logger) *Watcher {
	if cfg.StabilityWindow <= 0 {
		cfg.StabilityWindow = DefaultStabilityWindow
	}
	return &Watcher{
		cfg:       cfg,
		registrar: registrar,
		index:     index,
		observer:  nopObserver{},
		logger:    logger.With("component", "watcher", "dir", cfg.Dir),
		queued:    make(map[string]struct{}),
		inFlight:  make(map[string]struct{}),
	}
}

func (w *Watcher) WithObserver(o Observer) *Watcher {
	w.observer = o
	return w
}

// Run watches the directory until ctx is cancelled. Events are handled one
// at a time by a single goroutine; the stability wait blocks that goroutine.
// A path is claimed in-flight only after it proved stable, so writes seen
// during the wait queue it for another check.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.cfg.Dir, err)
	}

	queue := make(chan string, eventQueueSize)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for path := range queue {
			w.process(ctx, path)
		}
	}()
	defer func() {
		close(queue)
		wg.Wait()
	}()

	w.logger.Info("watching for media", slog.Bool("process_existing", w.cfg.ProcessExisting))

	if w.cfg.ProcessExisting {
		if err := w.enqueueExisting(ctx, queue); err != nil {
			w.logger.Error("failed to scan existing files", slog.String("error", err.Error()))
		}
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopped")
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			w.enqueue(ctx, queue, ev.Name)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("fs watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) enqueueExisting(ctx context.Context, queue chan<- string) error {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		w.enqueue(ctx, queue, filepath.Join(w.cfg.Dir, e.Name()))
	}
	return nil
}

// enqueue drops unsupported paths and coalesces events for a path that is
// already waiting in the queue.
func (w *Watcher) enqueue(ctx context.Context, queue chan<- string, path string) {
	if !domain.IsSupportedMedia(path) {
		return
	}

	w.mu.Lock()
	_, waiting := w.queued[path]
	w.queued[path] = struct{}{}
	w.mu.Unlock()
	if waiting {
		return
	}

	select {
	case queue <- path:
	case <-ctx.Done():
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	// Events arriving from now on queue the path again.
	w.mu.Lock()
	delete(w.queued, path)
	w.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	outcome, err := w.handle(ctx, path)
	w.observer.ObserveWatch(outcome)

	if err != nil {
		w.logger.Error("failed to ingest watched file", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	w.logger.Debug("watched file handled", slog.String("path", path), slog.String("outcome", string(outcome)))
}

// HandleFile runs the acceptance steps for one path outside of Run.
func (w *Watcher) HandleFile(ctx context.Context, path string) (Outcome, error) {
	if !domain.IsSupportedMedia(path) {
		return OutcomeUnsupported, nil
	}
	return w.handle(ctx, path)
}

func (w *Watcher) handle(ctx context.Context, path string) (Outcome, error) {
	stable, err := w.waitStable(ctx, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return OutcomeUnstable, nil
		}
		return OutcomeError, err
	}
	if !stable {
		w.logger.Debug("file still changing, skipped", slog.String("path", path))
		return OutcomeUnstable, nil
	}

	if !w.claim(path) {
		return OutcomeInFlight, nil
	}
	defer w.release(path)

	hash, err := service.ContentHashForFile(path)
	if err != nil {
		return OutcomeError, err
	}

	exists, err := w.index.ExistsByContentHash(ctx, hash)
	if err != nil {
		return OutcomeError, fmt.Errorf("check %s: %w", path, err)
	}
	if exists {
		w.logger.Info("duplicate media skipped", slog.String("path", path), slog.String("content_hash", hash))
		return OutcomeDuplicate, nil
	}

	reg, err := w.registrar.RegisterFile(ctx, path)
	if err != nil {
		return OutcomeError, err
	}
	if reg.Duplicate {
		return OutcomeDuplicate, nil
	}
	return OutcomeAccepted, nil
}

// waitStable reports whether the file is non-empty and kept the same size
// across the stability window.
func (w *Watcher) waitStable(ctx context.Context, path string) (bool, error) {
	before, err := os.Stat(path)
	if err != nil {
		return false, err
	}

	timer := time.NewTimer(w.cfg.StabilityWindow)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
	}

	after, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return after.Size() > 0 && after.Size() == before.Size(), nil
}

func (w *Watcher) claim(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.inFlight[path]; busy {
		return false
	}
	w.inFlight[path] = struct{}{}
	return true
}

func (w *Watcher) release(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inFlight, path)
}
