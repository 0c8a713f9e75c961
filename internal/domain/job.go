package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobState string

const (
	JobStatePending    JobState = "PENDING"
	JobStateProcessing JobState = "PROCESSING"
	JobStateSuccess    JobState = "SUCCESS"
	JobStateFailure    JobState = "FAILURE"
)

// IsTerminal reports whether no further transition is allowed.
func (s JobState) IsTerminal() bool {
	return s == JobStateSuccess || s == JobStateFailure
}

// CanTransition reports whether s -> to is a forward move of the state machine.
// PENDING -> PROCESSING -> {SUCCESS, FAILURE}; PENDING may also fail directly.
func (s JobState) CanTransition(to JobState) bool {
	switch s {
	case JobStatePending:
		return to == JobStateProcessing || to == JobStateFailure
	case JobStateProcessing:
		return to == JobStateSuccess || to == JobStateFailure
	default:
		return false
	}
}

type JobKind string

const (
	JobKindMedia      JobKind = "media"
	JobKindBatchChunk JobKind = "batch_chunk"
)

// JobTarget identifies the unit of work: one media item, or one chunk of a batch.
type JobTarget struct {
	MediaID    *uuid.UUID  `json:"media_id,omitempty"`
	BatchID    *uuid.UUID  `json:"batch_id,omitempty"`
	ChunkIndex int         `json:"chunk_index,omitempty"`
	MediaIDs   []uuid.UUID `json:"media_ids,omitempty"`
}

// MediaTarget targets a single media item.
func MediaTarget(mediaID uuid.UUID) JobTarget {
	return JobTarget{MediaID: &mediaID}
}

// ChunkTarget targets an ordered chunk of a batch.
func ChunkTarget(batchID uuid.UUID, index int, mediaIDs []uuid.UUID) JobTarget {
	return JobTarget{BatchID: &batchID, ChunkIndex: index, MediaIDs: mediaIDs}
}

type Job struct {
	ID         uuid.UUID       `json:"id"`
	Kind       JobKind         `json:"kind"`
	Target     JobTarget       `json:"target"`
	State      JobState        `json:"state"`
	Current    int             `json:"current"`
	Total      int             `json:"total"`
	Message    string          `json:"message"`
	Result     json.RawMessage `json:"result,omitempty"`
	ErrorCode  string          `json:"error_code,omitempty"`
	ClaimedBy  string          `json:"claimed_by,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// JobTransition is a compare-and-set state change. Stores apply it only
// while the job is still in From.
type JobTransition struct {
	From      JobState
	To        JobState
	Message   string
	Result    json.RawMessage
	ErrorCode string
}

// JobStatus is the polling view of a job
type JobStatus struct {
	ID      uuid.UUID       `json:"id"`
	State   JobState        `json:"state"`
	Current int             `json:"current"`
	Total   int             `json:"total"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result,omitempty"`
}

func (j *Job) Status() JobStatus {
	return JobStatus{
		ID:      j.ID,
		State:   j.State,
		Current: j.Current,
		Total:   j.Total,
		Message: j.Message,
		Result:  j.Result,
	}
}

// Progress is emitted by the media processor while it works through an item.
type Progress struct {
	Current         int     `json:"current"`
	Total           int     `json:"total"`
	Percent         float64 `json:"percent"`
	FramesProcessed int     `json:"frames_processed,omitempty"`
	FacesFound      int     `json:"faces_found"`
	Message         string  `json:"message,omitempty"`
}

type JobEventType string

const (
	JobEventState    JobEventType = "job.state"
	JobEventProgress JobEventType = "job.progress"
)

// JobEvent is published to job subscribers on every accepted change.
type JobEvent struct {
	JobID     uuid.UUID    `json:"job_id"`
	Type      JobEventType `json:"type"`
	State     JobState     `json:"state"`
	Current   int          `json:"current"`
	Total     int          `json:"total"`
	Message   string       `json:"message,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// ItemStatus is the outcome of one media item inside a chunk.
type ItemStatus string

const (
	ItemCompleted ItemStatus = "COMPLETED"
	ItemFailed    ItemStatus = "FAILED"
)

type ItemResult struct {
	MediaID uuid.UUID  `json:"media_id"`
	Status  ItemStatus `json:"status"`
	Faces   int        `json:"faces"`
	Error   string     `json:"error,omitempty"`
}

// ChunkResult is the result payload of a batch_chunk job.
type ChunkResult struct {
	BatchID    uuid.UUID    `json:"batch_id"`
	ChunkIndex int          `json:"chunk_index"`
	Processed  int          `json:"processed"`
	Failed     int          `json:"failed"`
	TotalFaces int          `json:"total_faces"`
	Items      []ItemResult `json:"items"`
}

// MediaResult is the result payload of a media job.
type MediaResult struct {
	MediaID       uuid.UUID `json:"media_id"`
	FacesFound    int       `json:"faces_found"`
	FramesSampled int       `json:"frames_sampled,omitempty"`
	Truncated     bool      `json:"truncated,omitempty"`
	DurationMs    int64     `json:"duration_ms"`
}
