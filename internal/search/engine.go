// Package search answers "which stored faces look like this one" with a
// cache-aside similarity scan over the face corpus.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/cache"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

const DefaultCacheTTL = time.Hour

// QueryDetector extracts scored detections from in-memory query media.
type QueryDetector interface {
	DetectImage(ctx context.Context, data []byte) ([]domain.FaceDetection, error)
}

// LogStore persists one row per executed search.
type LogStore interface {
	Create(ctx context.Context, log *domain.SearchLog) error
}

// Observer receives per-search measurements.
type Observer interface {
	ObserveSearch(cacheHit bool, duration time.Duration, results int)
}

type nopObserver struct{}

func (nopObserver) ObserveSearch(bool, time.Duration, int) {}

// Result is a serialized search response. Body is returned byte for byte on a cache hit.
type Result struct {
	Body     json.RawMessage
	CacheHit bool
	Key      string
}

// Decode parses Body back into a response.
func (r *Result) Decode() (*domain.SearchResponse, error) {
	var resp domain.SearchResponse
	if err := json.Unmarshal(r.Body, &resp); err != nil {
		return nil, fmt.Errorf("decode search result: %w", err)
	}
	return &resp, nil
}

type Engine struct {
	detector QueryDetector
	index    Index
	cache    *cache.Cache
	logs     LogStore
	observer Observer
	ttl      time.Duration
	logger   *slog.Logger
}

type Option func(*Engine)

func WithCacheTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.ttl = ttl }
}

func WithLogStore(logs LogStore) Option {
	return func(e *Engine) { e.logs = logs }
}

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

func NewEngine(detector QueryDetector, index Index, c *cache.Cache, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		detector: detector,
		index:    index,
		cache:    c,
		observer: nopObserver{},
		ttl:      DefaultCacheTTL,
		logger:   logger.With("component", "search"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search validates q, serves a cached response when one exists and otherwise
// computes, caches and returns a fresh one. Detection problems with the query
// media come back as an uncached error-shaped response; only validation and
// store failures are returned as errors.
func (e *Engine) Search(ctx context.Context, q domain.SearchQuery) (*Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	key, err := CacheKey(q.Media, q.Threshold, q.TopK)
	if err != nil {
		return nil, domain.ErrValidationFailed.WithError(err)
	}

	if body, err := e.cache.Get(ctx, key); err == nil {
		res := &Result{Body: body, CacheHit: true, Key: key}
		e.finish(ctx, q, res, countResults(body), start)
		return res, nil
	}

	resp, cacheable, err := e.compute(ctx, q)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode search result: %w", err)
	}

	if cacheable {
		e.cache.Set(ctx, key, body, e.ttl)
	}

	res := &Result{Body: body, Key: key}
	e.finish(ctx, q, res, resp.TotalResults, start)
	return res, nil
}

func (e *Engine) compute(ctx context.Context, q domain.SearchQuery) (domain.SearchResponse, bool, error) {
	detections, err := e.detector.DetectImage(ctx, q.Media)
	if err != nil {
		if domain.KindOf(err) == domain.KindDetection {
			e.logger.InfoContext(ctx, "query media rejected", slog.String("error", err.Error()))
			return domain.SearchFailure(err.Error()), false, nil
		}
		return domain.SearchResponse{}, false, fmt.Errorf("detect query face: %w", err)
	}
	if len(detections) == 0 {
		return domain.SearchFailure(domain.ErrNoFaceDetected.Message), false, nil
	}

	// The first detection in detector order is the query face.
	query := detections[0]

	candidates, err := e.index.Candidates(ctx, query.Embedding, q.TopK)
	if err != nil {
		return domain.SearchResponse{}, false, domain.ErrStoreUnavailable.WithError(err)
	}

	ranked := Rank(query.Embedding, candidates, q.Threshold, q.TopK)

	matches := make([]domain.SearchMatch, len(ranked))
	for i, s := range ranked {
		matches[i] = domain.SearchMatch{
			FaceID:       s.Entry.FaceID,
			Similarity:   s.Similarity,
			MediaID:      s.Entry.MediaID,
			BBox:         s.Entry.BoundingBox.Array(),
			QualityScore: s.Entry.QualityScore,
			Timestamp:    s.Entry.Timestamp,
		}
	}

	return domain.SearchResponse{
		Status: domain.SearchStatusSuccess,
		QueryFace: &domain.QueryFace{
			BBox:         query.BoundingBox.Array(),
			QualityScore: query.QualityScore,
		},
		Results:      matches,
		TotalResults: len(matches),
	}, true, nil
}

func (e *Engine) finish(ctx context.Context, q domain.SearchQuery, res *Result, results int, start time.Time) {
	elapsed := time.Since(start)
	e.observer.ObserveSearch(res.CacheHit, elapsed, results)

	e.logger.InfoContext(ctx, "search completed",
		slog.Bool("cache_hit", res.CacheHit),
		slog.Int("results", results),
		slog.Duration("duration", elapsed),
	)

	if e.logs == nil {
		return
	}
	entry := &domain.SearchLog{
		QueryHash:    res.Key,
		Threshold:    q.Threshold,
		TopK:         q.TopK,
		ResultsCount: results,
		CacheHit:     res.CacheHit,
		LatencyMs:    elapsed.Milliseconds(),
	}
	if err := e.logs.Create(ctx, entry); err != nil {
		e.logger.WarnContext(ctx, "search log not written", slog.String("error", err.Error()))
	}
}

// ClearCache drops every cached search result.
func (e *Engine) ClearCache(ctx context.Context) (int64, error) {
	return e.cache.DeleteByPattern(ctx, CachePattern)
}

func countResults(body []byte) int {
	var partial struct {
		TotalResults int `json:"totalResults"`
	}
	if err := json.Unmarshal(body, &partial); err != nil {
		return 0
	}
	return partial.TotalResults
}
