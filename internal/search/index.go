package search

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

const (
	IndexBruteForce = "bruteforce"
	IndexHNSW       = "hnsw"
)

// Corpus loads stored faces in insertion order.
type Corpus interface {
	CorpusSince(ctx context.Context, afterSeq int64) ([]domain.CorpusEntry, error)
}

// Index produces the candidate set for a query. Candidates come back in
// corpus insertion order; scoring and ranking happen in the engine.
type Index interface {
	Candidates(ctx context.Context, query []float32, topK int) ([]domain.CorpusEntry, error)
}

// BruteForce offers the whole corpus as candidates.
type BruteForce struct {
	corpus Corpus
}

func NewBruteForce(corpus Corpus) *BruteForce {
	return &BruteForce{corpus: corpus}
}

func (b *BruteForce) Candidates(ctx context.Context, _ []float32, _ int) ([]domain.CorpusEntry, error) {
	entries, err := b.corpus.CorpusSince(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	return entries, nil
}

const (
	hnswMaxNeighbors = 16
	// hnswMinCandidates keeps recall reasonable for small topK.
	hnswMinCandidates = 64
	hnswOversample    = 4
)

// HNSWIndex keeps an in-memory HNSW graph over the corpus. Each query first
// pulls faces inserted since the last sync, so it never misses new records
// for longer than one query.
type HNSWIndex struct {
	corpus  Corpus
	mu      sync.RWMutex
	graph   *hnsw.Graph[int64]
	entries map[int64]domain.CorpusEntry
	lastSeq int64
}

func NewHNSWIndex(corpus Corpus) *HNSWIndex {
	g := hnsw.NewGraph[int64]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.Distance = hnsw.CosineDistance

	return &HNSWIndex{
		corpus:  corpus,
		graph:   g,
		entries: make(map[int64]domain.CorpusEntry),
	}
}

// Sync adds faces inserted since the previous sync.
func (h *HNSWIndex) Sync(ctx context.Context) error {
	h.mu.RLock()
	after := h.lastSeq
	h.mu.RUnlock()

	fresh, err := h.corpus.CorpusSince(ctx, after)
	if err != nil {
		return fmt.Errorf("sync hnsw index: %w", err)
	}
	if len(fresh) == 0 {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, e := range fresh {
		if _, ok := h.entries[e.Seq]; ok || len(e.Embedding) == 0 {
			continue
		}
		h.graph.Add(hnsw.MakeNode(e.Seq, e.Embedding))
		h.entries[e.Seq] = e
		if e.Seq > h.lastSeq {
			h.lastSeq = e.Seq
		}
	}
	return nil
}

func (h *HNSWIndex) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

func (h *HNSWIndex) Candidates(ctx context.Context, query []float32, topK int) ([]domain.CorpusEntry, error) {
	if err := h.Sync(ctx); err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.entries) == 0 {
		return nil, nil
	}

	neighbors := h.graph.Search(query, max(topK*hnswOversample, hnswMinCandidates))

	out := make([]domain.CorpusEntry, 0, len(neighbors))
	for _, n := range neighbors {
		if e, ok := h.entries[n.Key]; ok {
			out = append(out, e)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}
