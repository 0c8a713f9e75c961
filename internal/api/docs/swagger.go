package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Request validation failed"`
}

// MediaItem is one registered file
type MediaItem struct {
	ID           string `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	StoragePath  string `json:"storage_path" example:"uploads/3f2a9c1b7d4e_party.jpg"`
	OriginalName string `json:"original_name" example:"party.jpg"`
	DedupName    string `json:"dedup_name" example:"3f2a9c1b7d4e_party.jpg"`
	ContentHash  string `json:"content_hash" example:"3f2a9c1b7d4e8a6b5c4d3e2f1a0b9c8d"`
	SizeBytes    int64  `json:"size_bytes" example:"482113"`
	Type         string `json:"type" example:"image"`
	Status       string `json:"status" example:"pending"`
	FaceCount    int    `json:"face_count" example:"0"`
	Error        string `json:"error,omitempty" example:""`
	CreatedAt    string `json:"created_at" example:"2024-01-01T00:00:00Z"`
	ProcessedAt  string `json:"processed_at,omitempty" example:"2024-01-01T00:00:05Z"`
}

// UploadResponse is returned for new (202) and duplicate (409) uploads
type UploadResponse struct {
	Media     MediaItem `json:"media"`
	JobID     string    `json:"job_id,omitempty" example:"7c9e6679-7425-40de-944b-e07fc1f90ae7"`
	Duplicate bool      `json:"duplicate" example:"false"`
}

// MediaListResponse is one page of media
type MediaListResponse struct {
	Items    []MediaItem `json:"items"`
	Total    int64       `json:"total" example:"120"`
	Page     int         `json:"page" example:"1"`
	PageSize int         `json:"page_size" example:"50"`
}

// BoundingBox is in pixels of the source image or frame
type BoundingBox struct {
	X      int `json:"x" example:"120"`
	Y      int `json:"y" example:"64"`
	Width  int `json:"width" example:"96"`
	Height int `json:"height" example:"110"`
}

// FaceRecord is one stored face
type FaceRecord struct {
	ID           string      `json:"id" example:"9b2e4c7a-1f3d-4e5b-8a6c-7d8e9f0a1b2c"`
	MediaID      string      `json:"media_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	BBox         BoundingBox `json:"bbox"`
	Confidence   float64     `json:"confidence" example:"0.98"`
	QualityScore float64     `json:"quality_score" example:"0.74"`
	FrameIndex   int         `json:"frame_index,omitempty" example:"60"`
	Timestamp    float64     `json:"timestamp,omitempty" example:"2.0"`
	CropPath     string      `json:"crop_path,omitempty" example:"faces/9b2e4c7a.jpg"`
	CreatedAt    string      `json:"created_at" example:"2024-01-01T00:00:05Z"`
}

// MediaFacesResponse lists the faces of one media item
type MediaFacesResponse struct {
	MediaID string       `json:"media_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Faces   []FaceRecord `json:"faces"`
	Total   int          `json:"total" example:"3"`
}

// JobStatus is the polling view of a job
type JobStatus struct {
	ID      string `json:"id" example:"7c9e6679-7425-40de-944b-e07fc1f90ae7"`
	State   string `json:"state" example:"PROCESSING"`
	Current int    `json:"current" example:"40"`
	Total   int    `json:"total" example:"100"`
	Message string `json:"message" example:"frame 120/300, 4 faces"`
	Result  any    `json:"result,omitempty"`
}

// BatchRequest lists registered media to ingest together
type BatchRequest struct {
	MediaIDs  []string `json:"media_ids" example:"550e8400-e29b-41d4-a716-446655440000"`
	ChunkSize int      `json:"chunk_size,omitempty" example:"10"`
}

// Batch is the handle of a submitted batch
type Batch struct {
	ID        string   `json:"id" example:"1d4f8a2b-6c3e-4b7a-9f0d-2e5c8b1a7f3e"`
	Total     int      `json:"total" example:"25"`
	ChunkSize int      `json:"chunk_size" example:"10"`
	JobIDs    []string `json:"job_ids" example:"7c9e6679-7425-40de-944b-e07fc1f90ae7"`
}

// BatchStatus aggregates the chunk jobs of a batch
type BatchStatus struct {
	ID     string         `json:"id" example:"1d4f8a2b-6c3e-4b7a-9f0d-2e5c8b1a7f3e"`
	Chunks int            `json:"chunks" example:"3"`
	States map[string]int `json:"states"`
	Done   bool           `json:"done" example:"false"`
	Jobs   []JobStatus    `json:"jobs"`
}

// SearchMatch is one ranked result
type SearchMatch struct {
	FaceID       string  `json:"faceId" example:"9b2e4c7a-1f3d-4e5b-8a6c-7d8e9f0a1b2c"`
	Similarity   float64 `json:"similarity" example:"0.91"`
	MediaID      string  `json:"mediaId" example:"550e8400-e29b-41d4-a716-446655440000"`
	BBox         []int   `json:"bbox" example:"120,64,96,110"`
	QualityScore float64 `json:"qualityScore" example:"0.74"`
	Timestamp    float64 `json:"timestamp,omitempty" example:"2.0"`
}

// QueryFace describes the face used as the query
type QueryFace struct {
	BBox         []int   `json:"bbox" example:"10,12,80,92"`
	QualityScore float64 `json:"qualityScore" example:"0.81"`
}

// SearchResponse is returned for successful and rejected searches alike
type SearchResponse struct {
	Status       string        `json:"status" example:"success"`
	QueryFace    *QueryFace    `json:"queryFace,omitempty"`
	Results      []SearchMatch `json:"results"`
	TotalResults int           `json:"totalResults" example:"1"`
	Message      string        `json:"message,omitempty" example:""`
}

// SearchError is the envelope for a rejected search
type SearchError struct {
	Status  string        `json:"status" example:"error"`
	Results []SearchMatch `json:"results"`
	Message string        `json:"message" example:"Threshold must be between 0 and 1"`
}

// CacheStats describes the search cache
type CacheStats struct {
	Backend string `json:"backend" example:"postgres"`
	Entries int64  `json:"entries" example:"42"`
	Expired int64  `json:"expired" example:"3"`
}

// StatsResponse is the corpus overview
type StatsResponse struct {
	MediaByStatus map[string]int64 `json:"media_by_status"`
	MediaByType   map[string]int64 `json:"media_by_type"`
	TotalFaces    int64            `json:"total_faces" example:"1532"`
	JobsByState   map[string]int64 `json:"jobs_by_state"`
	TotalSearches int64            `json:"total_searches" example:"87"`
	CacheEntries  int64            `json:"cache_entries" example:"42"`
	Cache         *CacheStats      `json:"cache,omitempty"`
}

// ClearCacheResponse reports dropped cache entries
type ClearCacheResponse struct {
	Deleted int64 `json:"deleted" example:"42"`
}

var internalError = response.New(ErrorResponse{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}, "500", "Internal Server Error")

var rateLimited = response.New(ErrorResponse{Code: "RATE_LIMIT_EXCEEDED", Message: "Rate limit exceeded, please try again later"}, "429", "Too Many Requests")

var storeUnavailable = response.New(ErrorResponse{Code: "STORE_UNAVAILABLE", Message: "Persistent store unavailable"}, "503", "Service Unavailable")

// NewSwagger creates and configures the Swagger documentation
func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "facetrail API",
		Version:     "v1.0.0",
		Description: "Face ingestion and similarity search over images and videos",
		Host:        "localhost:8080",
		Path:        "/v1",
	})

	endpoints := []*endpoint.EndPoint{
		// POST /v1/media - Upload media
		endpoint.New(
			endpoint.POST,
			"/media",
			endpoint.WithTags("Media"),
			endpoint.WithSummary("Upload an image or video"),
			endpoint.WithDescription("Stores the multipart field \"file\" under its dedup name and queues a media job. Content that was already ingested returns 409 with the existing media."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(UploadResponse{}, "202", "Media queued for ingestion"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(UploadResponse{Duplicate: true}, "409", "Duplicate content"),
				response.New(ErrorResponse{Code: "MEDIA_TOO_LARGE", Message: "Media file exceeds the maximum allowed size"}, "413", "Payload Too Large"),
				response.New(ErrorResponse{Code: "UNSUPPORTED_MEDIA", Message: "Unsupported media type"}, "415", "Unsupported Media Type"),
				response.New(ErrorResponse{Code: "VALIDATION_FAILED", Message: "Request validation failed"}, "422", "Unprocessable Entity"),
				rateLimited,
				internalError,
			}),
		),

		// GET /v1/media - List media
		endpoint.New(
			endpoint.GET,
			"/media",
			endpoint.WithTags("Media"),
			endpoint.WithSummary("List media"),
			endpoint.WithDescription("Pages through registered media, newest first"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("type", parameter.Query, parameter.WithDescription("image or video")),
				parameter.StrParam("status", parameter.Query, parameter.WithDescription("pending, processing, completed or failed")),
				parameter.IntParam("page", parameter.Query, parameter.WithDescription("Page number starting at 1")),
				parameter.IntParam("page_size", parameter.Query, parameter.WithDescription("Items per page (default 50, max 200)")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(MediaListResponse{}, "200", "Media page"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "BAD_REQUEST", Message: "Invalid request"}, "400", "Bad Request"),
				internalError,
			}),
		),

		// GET /v1/media/{id}
		endpoint.New(
			endpoint.GET,
			"/media/{id}",
			endpoint.WithTags("Media"),
			endpoint.WithSummary("Get a media item"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Media id")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(MediaItem{}, "200", "Media item"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "MEDIA_NOT_FOUND", Message: "Media item not found"}, "404", "Not Found"),
				internalError,
			}),
		),

		// GET /v1/media/{id}/faces
		endpoint.New(
			endpoint.GET,
			"/media/{id}/faces",
			endpoint.WithTags("Media"),
			endpoint.WithSummary("List the faces found in a media item"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Media id")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(MediaFacesResponse{}, "200", "Faces in insertion order"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "MEDIA_NOT_FOUND", Message: "Media item not found"}, "404", "Not Found"),
				internalError,
			}),
		),

		// GET /v1/jobs/{id}
		endpoint.New(
			endpoint.GET,
			"/jobs/{id}",
			endpoint.WithTags("Jobs"),
			endpoint.WithSummary("Get job status"),
			endpoint.WithDescription("Returns state, progress and, once terminal, the result. Live updates are available on /v1/jobs/{id}/ws."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Job id")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(JobStatus{}, "200", "Job status"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "JOB_NOT_FOUND", Message: "Job not found"}, "404", "Not Found"),
				internalError,
			}),
		),

		// POST /v1/batches
		endpoint.New(
			endpoint.POST,
			"/batches",
			endpoint.WithTags("Batches"),
			endpoint.WithSummary("Ingest registered media as a batch"),
			endpoint.WithDescription("Splits media_ids into ordered chunks and queues one job per chunk"),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(BatchRequest{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(Batch{}, "202", "Batch queued"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "VALIDATION_FAILED", Message: "Request validation failed"}, "422", "Unprocessable Entity"),
				internalError,
			}),
		),

		// GET /v1/batches/{id}
		endpoint.New(
			endpoint.GET,
			"/batches/{id}",
			endpoint.WithTags("Batches"),
			endpoint.WithSummary("Get batch status"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Batch id")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(BatchStatus{}, "200", "Aggregated chunk states"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "NOT_FOUND", Message: "Resource not found"}, "404", "Not Found"),
				internalError,
			}),
		),

		// POST /v1/search
		endpoint.New(
			endpoint.POST,
			"/search",
			endpoint.WithTags("Search"),
			endpoint.WithSummary("Search for similar faces"),
			endpoint.WithDescription("Uses the first face found in the multipart field \"file\" as the query. Identical queries are served from cache until the TTL expires. Query media without a usable face returns status \"error\" with HTTP 200."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("threshold", parameter.Query, parameter.WithDescription("Minimum cosine similarity in [0,1], default 0.6 (form field)")),
				parameter.IntParam("top_k", parameter.Query, parameter.WithDescription("Maximum results in [1,100], default 20 (form field)")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SearchResponse{}, "200", "Search completed"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(SearchError{}, "415", "Unsupported Media Type"),
				response.New(SearchError{}, "422", "Invalid threshold, top_k or file"),
				rateLimited,
				storeUnavailable,
				internalError,
			}),
		),

		// DELETE /v1/cache/search
		endpoint.New(
			endpoint.DELETE,
			"/cache/search",
			endpoint.WithTags("Search"),
			endpoint.WithSummary("Clear the search cache"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ClearCacheResponse{}, "200", "Cache cleared"),
			}),
			endpoint.WithErrors([]response.Response{
				internalError,
			}),
		),

		// GET /v1/stats
		endpoint.New(
			endpoint.GET,
			"/stats",
			endpoint.WithTags("Stats"),
			endpoint.WithSummary("Corpus and cache totals"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(StatsResponse{}, "200", "Totals"),
			}),
			endpoint.WithErrors([]response.Response{
				storeUnavailable,
				internalError,
			}),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
