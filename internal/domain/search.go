package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultThreshold = 0.6
	DefaultTopK      = 20
	MaxTopK          = 100
)

const (
	SearchStatusSuccess = "success"
	SearchStatusError   = "error"
)

// SearchQuery is an ephemeral similarity query; it lives only as long as its cache entry
type SearchQuery struct {
	Media     []byte
	Threshold float64
	TopK      int
}

func (q SearchQuery) Validate() error {
	if len(q.Media) == 0 {
		return ErrValidationFailed.WithError(fmt.Errorf("query media is empty"))
	}
	// NaN fails every comparison, so it is rejected explicitly.
	if math.IsNaN(q.Threshold) || q.Threshold < 0 || q.Threshold > 1 {
		return ErrInvalidThreshold
	}
	if q.TopK < 1 || q.TopK > MaxTopK {
		return ErrInvalidTopK
	}
	return nil
}

// SearchMatch represents a face match result from similarity search
type SearchMatch struct {
	FaceID       uuid.UUID `json:"faceId"`
	Similarity   float64   `json:"similarity"`
	MediaID      uuid.UUID `json:"mediaId"`
	BBox         [4]int    `json:"bbox"`
	QualityScore float64   `json:"qualityScore"`
	Timestamp    *float64  `json:"timestamp,omitempty"`
}

// QueryFace describes the face taken from the query media
type QueryFace struct {
	BBox         [4]int  `json:"bbox"`
	QualityScore float64 `json:"qualityScore"`
}

// SearchResponse is the wire shape for both successful and failed searches.
// Results is never null on the wire.
type SearchResponse struct {
	Status       string        `json:"status"`
	QueryFace    *QueryFace    `json:"queryFace,omitempty"`
	Results      []SearchMatch `json:"results"`
	TotalResults int           `json:"totalResults"`
	Message      string        `json:"message,omitempty"`
}

// SearchFailure builds the error-shaped response for a query that produced no result.
func SearchFailure(message string) SearchResponse {
	return SearchResponse{
		Status:  SearchStatusError,
		Results: []SearchMatch{},
		Message: message,
	}
}

// SearchLog records one executed search
type SearchLog struct {
	ID           uuid.UUID `json:"id"`
	QueryHash    string    `json:"query_hash"`
	Threshold    float64   `json:"threshold"`
	TopK         int       `json:"top_k"`
	ResultsCount int       `json:"results_count"`
	CacheHit     bool      `json:"cache_hit"`
	LatencyMs    int64     `json:"latency_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// Stats is the corpus overview served by the stats endpoint
type Stats struct {
	MediaByStatus map[MediaStatus]int64 `json:"media_by_status"`
	MediaByType   map[MediaType]int64   `json:"media_by_type"`
	TotalFaces    int64                 `json:"total_faces"`
	JobsByState   map[JobState]int64    `json:"jobs_by_state"`
	TotalSearches int64                 `json:"total_searches"`
	CacheEntries  int64                 `json:"cache_entries"`
}
