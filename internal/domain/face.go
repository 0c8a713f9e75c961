package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EmbeddingDimension is the fixed length of every embedding in the corpus
const EmbeddingDimension = 512

// BoundingBox is a face region in pixel coordinates
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"w"`
	Height int `json:"h"`
}

func (b BoundingBox) Area() int {
	return b.Width * b.Height
}

// Array returns the box as [x, y, w, h].
func (b BoundingBox) Array() [4]int {
	return [4]int{b.X, b.Y, b.Width, b.Height}
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pose holds head orientation angles in degrees
type Pose struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

type FaceAttributes struct {
	Age     *int   `json:"age,omitempty"`
	Gender  string `json:"gender,omitempty"`
	Emotion string `json:"emotion,omitempty"`
}

// FaceDetection is a scored detection produced by the media processor
type FaceDetection struct {
	ID           uuid.UUID      `json:"id"`
	BoundingBox  BoundingBox    `json:"bbox"`
	Confidence   float64        `json:"confidence"`
	QualityScore float64        `json:"quality_score"`
	Embedding    []float32      `json:"-"`
	Landmarks    []Point        `json:"landmarks,omitempty"`
	Pose         *Pose          `json:"pose,omitempty"`
	Attributes   FaceAttributes `json:"attributes"`
	FrameIndex   *int           `json:"frame_index,omitempty"`
	Timestamp    *float64       `json:"timestamp,omitempty"`
	CropPath     string         `json:"crop_path,omitempty"`
}

// FaceRecord is a persisted detection. Immutable once written.
type FaceRecord struct {
	ID           uuid.UUID      `json:"id"`
	MediaID      uuid.UUID      `json:"media_id"`
	Embedding    []float32      `json:"-"`
	BoundingBox  BoundingBox    `json:"bbox"`
	Confidence   float64        `json:"confidence"`
	QualityScore float64        `json:"quality_score"`
	Landmarks    []Point        `json:"landmarks,omitempty"`
	Pose         *Pose          `json:"pose,omitempty"`
	Attributes   FaceAttributes `json:"attributes"`
	FrameIndex   *int           `json:"frame_index,omitempty"`
	Timestamp    *float64       `json:"timestamp,omitempty"`
	CropPath     string         `json:"crop_path,omitempty"`
	Seq          int64          `json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
}

// NewFaceRecord builds a record for mediaID from a processed detection,
// keeping the detection id when one was assigned.
func NewFaceRecord(mediaID uuid.UUID, d FaceDetection) *FaceRecord {
	id := d.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return &FaceRecord{
		ID:           id,
		MediaID:      mediaID,
		Embedding:    d.Embedding,
		BoundingBox:  d.BoundingBox,
		Confidence:   d.Confidence,
		QualityScore: d.QualityScore,
		Landmarks:    d.Landmarks,
		Pose:         d.Pose,
		Attributes:   d.Attributes,
		FrameIndex:   d.FrameIndex,
		Timestamp:    d.Timestamp,
		CropPath:     d.CropPath,
	}
}

// Validate rejects records that would corrupt the corpus.
func (f *FaceRecord) Validate() error {
	if len(f.Embedding) != EmbeddingDimension {
		return ErrInvalidEmbedding.WithError(
			fmt.Errorf("got %d dimensions, want %d", len(f.Embedding), EmbeddingDimension))
	}
	if f.MediaID == uuid.Nil {
		return ErrValidationFailed.WithError(fmt.Errorf("face %s has no media id", f.ID))
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return ErrValidationFailed.WithError(fmt.Errorf("confidence %.4f out of range", f.Confidence))
	}
	if f.QualityScore < 0 || f.QualityScore > 1 {
		return ErrValidationFailed.WithError(fmt.Errorf("quality score %.4f out of range", f.QualityScore))
	}
	return nil
}

// CorpusEntry is the slice of a FaceRecord the search engine scans.
type CorpusEntry struct {
	FaceID       uuid.UUID
	MediaID      uuid.UUID
	Embedding    []float32
	BoundingBox  BoundingBox
	QualityScore float64
	Timestamp    *float64
	Seq          int64
}
