package provider

import (
	"context"
	"math"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

// Detector finds faces in an encoded image and returns one embedding per face.
// Results come back in the engine's native order.
type Detector interface {
	Detect(ctx context.Context, image []byte) ([]Detection, error)
}

// AttributeAnalyzer reports per-face attributes without embeddings.
type AttributeAnalyzer interface {
	Analyze(ctx context.Context, image []byte) ([]Detection, error)
}

// Detection is one face as reported by a detection engine. Bounding boxes are in pixels.
type Detection struct {
	BoundingBox domain.BoundingBox    `json:"bbox"`
	Confidence  float64               `json:"confidence"`
	Embedding   []float32             `json:"embedding,omitempty"`
	Landmarks   []domain.Point        `json:"landmarks,omitempty"`
	Pose        *domain.Pose          `json:"pose,omitempty"`
	Attributes  domain.FaceAttributes `json:"attributes"`
}

// NormalizeEmbedding scales v to unit length. Zero vectors are returned unchanged.
func NormalizeEmbedding(v []float64) []float32 {
	var norm float64
	for _, x := range v {
		norm += x * x
	}

	out := make([]float32, len(v))
	if norm == 0 {
		for i, x := range v {
			out[i] = float32(x)
		}
		return out
	}

	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out
}

// IoU is the intersection over union of two boxes.
func IoU(a, b domain.BoundingBox) float64 {
	x1 := max(a.X, b.X)
	y1 := max(a.Y, b.Y)
	x2 := min(a.X+a.Width, b.X+b.Width)
	y2 := min(a.Y+a.Height, b.Y+b.Height)

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	inter := float64((x2 - x1) * (y2 - y1))
	union := float64(a.Area()+b.Area()) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
