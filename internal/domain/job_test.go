package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
)

func TestJobState_CanTransition(t *testing.T) {
	states := []JobState{JobStatePending, JobStateProcessing, JobStateSuccess, JobStateFailure}

	allowed := map[[2]JobState]bool{
		{JobStatePending, JobStateProcessing}: true,
		{JobStatePending, JobStateFailure}:    true,
		{JobStateProcessing, JobStateSuccess}: true,
		{JobStateProcessing, JobStateFailure}: true,
	}

	for _, from := range states {
		for _, to := range states {
			want := allowed[[2]JobState{from, to}]
			if got := from.CanTransition(to); got != want {
				t.Errorf("%s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestJobState_TerminalNeverRegresses(t *testing.T) {
	for _, terminal := range []JobState{JobStateSuccess, JobStateFailure} {
		if !terminal.IsTerminal() {
			t.Errorf("%s should be terminal", terminal)
		}
		for _, to := range []JobState{JobStatePending, JobStateProcessing, JobStateSuccess, JobStateFailure} {
			if terminal.CanTransition(to) {
				t.Errorf("terminal %s must not transition to %s", terminal, to)
			}
		}
	}
}

func TestJob_Status(t *testing.T) {
	job := &Job{
		ID:      uuid.New(),
		State:   JobStateProcessing,
		Current: 3,
		Total:   10,
		Message: "Processing frame 90",
	}

	status := job.Status()
	if status.State != JobStateProcessing || status.Current != 3 || status.Total != 10 {
		t.Errorf("unexpected status: %+v", status)
	}
	if status.Result != nil {
		t.Errorf("result should be empty while processing")
	}
}

func TestFaceRecord_Validate(t *testing.T) {
	mediaID := uuid.New()

	good := NewFaceRecord(mediaID, FaceDetection{
		Embedding:    make([]float32, EmbeddingDimension),
		Confidence:   0.9,
		QualityScore: 0.7,
	})
	if err := good.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	short := NewFaceRecord(mediaID, FaceDetection{Embedding: make([]float32, 128)})
	if err := short.Validate(); !errors.Is(err, ErrInvalidEmbedding) {
		t.Errorf("expected ErrInvalidEmbedding, got %v", err)
	}

	orphan := NewFaceRecord(uuid.Nil, FaceDetection{Embedding: make([]float32, EmbeddingDimension)})
	if err := orphan.Validate(); !errors.Is(err, ErrValidationFailed) {
		t.Errorf("expected ErrValidationFailed, got %v", err)
	}
}

func TestSearchQuery_Validate(t *testing.T) {
	tests := []struct {
		name  string
		query SearchQuery
		want  error
	}{
		{"defaults", SearchQuery{Media: []byte{1}, Threshold: DefaultThreshold, TopK: DefaultTopK}, nil},
		{"empty media", SearchQuery{Threshold: 0.5, TopK: 1}, ErrValidationFailed},
		{"threshold too high", SearchQuery{Media: []byte{1}, Threshold: 1.5, TopK: 1}, ErrInvalidThreshold},
		{"negative threshold", SearchQuery{Media: []byte{1}, Threshold: -0.1, TopK: 1}, ErrInvalidThreshold},
		{"NaN threshold", SearchQuery{Media: []byte{1}, Threshold: math.NaN(), TopK: 1}, ErrInvalidThreshold},
		{"infinite threshold", SearchQuery{Media: []byte{1}, Threshold: math.Inf(1), TopK: 1}, ErrInvalidThreshold},
		{"threshold bounds are inclusive", SearchQuery{Media: []byte{1}, Threshold: 1, TopK: MaxTopK}, nil},
		{"zero top_k", SearchQuery{Media: []byte{1}, Threshold: 0.5, TopK: 0}, ErrInvalidTopK},
		{"top_k too large", SearchQuery{Media: []byte{1}, Threshold: 0.5, TopK: MaxTopK + 1}, ErrInvalidTopK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}
