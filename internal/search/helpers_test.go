package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/cache"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// vecWithSimilarity returns a 2-d unit vector whose Similarity to (1,0) is sim.
func vecWithSimilarity(sim float64) []float32 {
	c := 2*sim - 1
	return []float32{float32(c), float32(math.Sqrt(1 - c*c))}
}

type memCorpus struct {
	mu      sync.Mutex
	entries []domain.CorpusEntry
	err     error
	calls   int
}

func (m *memCorpus) add(sim float64) domain.CorpusEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := domain.CorpusEntry{
		FaceID:       uuid.New(),
		MediaID:      uuid.New(),
		Embedding:    vecWithSimilarity(sim),
		BoundingBox:  domain.BoundingBox{X: 1, Y: 2, Width: 3, Height: 4},
		QualityScore: 0.5,
		Seq:          int64(len(m.entries) + 1),
	}
	m.entries = append(m.entries, e)
	return e
}

func (m *memCorpus) CorpusSince(_ context.Context, afterSeq int64) ([]domain.CorpusEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.CorpusEntry
	for _, e := range m.entries {
		if e.Seq > afterSeq {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeDetector struct {
	mu         sync.Mutex
	detections []domain.FaceDetection
	err        error
	calls      int
}

func (f *fakeDetector) DetectImage(context.Context, []byte) ([]domain.FaceDetection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.detections, f.err
}

func queryFace() domain.FaceDetection {
	return domain.FaceDetection{
		ID:           uuid.New(),
		BoundingBox:  domain.BoundingBox{X: 5, Y: 5, Width: 50, Height: 50},
		Confidence:   0.99,
		QualityScore: 0.8,
		Embedding:    []float32{1, 0},
	}
}

type mapBackend struct {
	mu      sync.Mutex
	entries map[string][]byte
	fail    bool
}

func newMapBackend() *mapBackend {
	return &mapBackend{entries: make(map[string][]byte)}
}

func (m *mapBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errors.New("cache offline")
	}
	v, ok := m.entries[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return v, nil
}

func (m *mapBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("cache offline")
	}
	m.entries[key] = value
	return nil
}

func (m *mapBackend) DeleteByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

func (m *mapBackend) Stats(context.Context, string) (cache.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cache.Stats{Backend: "map", Entries: int64(len(m.entries))}, nil
}

func (m *mapBackend) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

type recordingLogs struct {
	mu   sync.Mutex
	logs []domain.SearchLog
	err  error
}

func (r *recordingLogs) Create(_ context.Context, l *domain.SearchLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *l)
	return r.err
}
