package deepface

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/provider"
)

// attributeMinIoU is how much an /analyze region must overlap a /represent
// region to be treated as the same face.
const attributeMinIoU = 0.5

// Provider implements provider.Detector using the DeepFace API
type Provider struct {
	client *Client
}

// NewProvider creates a new DeepFace provider
func NewProvider(config Config) *Provider {
	return &Provider{
		client: NewClient(config),
	}
}

// Detect runs /represent and, when actions are configured, /analyze for attributes.
func (p *Provider) Detect(ctx context.Context, image []byte) ([]provider.Detection, error) {
	img := dataURI(image)

	resp, err := p.client.Represent(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	detections := make([]provider.Detection, 0, len(resp.Results))
	for i, result := range resp.Results {
		if len(result.Embedding) != domain.EmbeddingDimension {
			return nil, fmt.Errorf("detect faces: face %d: %w: got %d, want %d",
				i, ErrDimensionMismatch, len(result.Embedding), domain.EmbeddingDimension)
		}

		detections = append(detections, provider.Detection{
			BoundingBox: toBox(result.FacialArea),
			Confidence:  result.FaceConfidence,
			Embedding:   provider.NormalizeEmbedding(result.Embedding),
			Landmarks:   eyes(result.FacialArea),
		})
	}

	if len(detections) == 0 || len(p.client.config.Actions) == 0 {
		return detections, nil
	}

	analysis, err := p.client.Analyze(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("analyze faces: %w", err)
	}
	mergeAttributes(detections, analysis.Results)

	return detections, nil
}

func mergeAttributes(detections []provider.Detection, results []AnalyzeResult) {
	for i := range detections {
		best, bestIoU := -1, attributeMinIoU
		for j, r := range results {
			if iou := provider.IoU(detections[i].BoundingBox, toBox(r.Region)); iou >= bestIoU {
				best, bestIoU = j, iou
			}
		}
		if best < 0 {
			continue
		}

		r := results[best]
		detections[i].Attributes = domain.FaceAttributes{
			Age:     r.Age,
			Gender:  normalizeGender(r.DominantGender),
			Emotion: r.DominantEmotion,
		}
	}
}

func toBox(a FacialArea) domain.BoundingBox {
	return domain.BoundingBox{X: a.X, Y: a.Y, Width: a.W, Height: a.H}
}

func eyes(a FacialArea) []domain.Point {
	var points []domain.Point
	for _, e := range []*[2]int{a.LeftEye, a.RightEye} {
		if e != nil {
			points = append(points, domain.Point{X: float64(e[0]), Y: float64(e[1])})
		}
	}
	return points
}

// DeepFace reports "Man"/"Woman".
func normalizeGender(g string) string {
	switch strings.ToLower(g) {
	case "man", "male":
		return "male"
	case "woman", "female":
		return "female"
	default:
		return ""
	}
}

func dataURI(image []byte) string {
	return "data:" + http.DetectContentType(image) + ";base64," + base64.StdEncoding.EncodeToString(image)
}

var _ provider.Detector = (*Provider)(nil)
