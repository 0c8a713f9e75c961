package rekognition

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/audit"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/provider"
)

const (
	// maxImageSize is the maximum image size supported by AWS Rekognition (5MB)
	maxImageSize = 5 * 1024 * 1024
	// minImageSize is the minimum image size for valid processing
	minImageSize = 100
)

// Analyzer implements provider.AttributeAnalyzer using AWS Rekognition DetectFaces.
// Rekognition does not expose embeddings, so it only contributes pose, landmarks
// and demographic attributes.
type Analyzer struct {
	client      *Client
	auditLogger audit.Logger
}

// AnalyzerOption defines optional configuration for Analyzer
type AnalyzerOption func(*Analyzer)

// WithAuditLogger sets the audit logger for the analyzer
func WithAuditLogger(logger audit.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		a.auditLogger = logger
	}
}

// NewAnalyzer creates a Rekognition-backed attribute analyzer
func NewAnalyzer(ctx context.Context, cfg Config, opts ...AnalyzerOption) (*Analyzer, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create rekognition client: %w", err)
	}
	return newAnalyzer(client, opts...), nil
}

func newAnalyzer(client *Client, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{client: client}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// validateImage checks if image data is valid for Rekognition processing
func validateImage(img []byte) (image.Config, error) {
	if len(img) < minImageSize {
		return image.Config{}, fmt.Errorf("%w: image too small (%d bytes, minimum %d)", ErrInvalidImage, len(img), minImageSize)
	}
	if len(img) > maxImageSize {
		return image.Config{}, fmt.Errorf("%w: image too large (%d bytes, maximum %d)", ErrInvalidImage, len(img), maxImageSize)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil || (format != "jpeg" && format != "png") {
		return image.Config{}, fmt.Errorf("%w: only jpeg and png are supported", ErrInvalidImage)
	}
	return cfg, nil
}

// Analyze returns one attribute-only detection per face, boxes in pixels.
func (a *Analyzer) Analyze(ctx context.Context, img []byte) ([]provider.Detection, error) {
	start := time.Now()

	cfg, err := validateImage(img)
	if err != nil {
		a.logAudit(ctx, start, 0, err, len(img))
		return nil, err
	}

	output, err := a.client.detectFaces(ctx, &rekognition.DetectFacesInput{
		Image:      &types.Image{Bytes: img},
		Attributes: []types.Attribute{types.AttributeAll},
	})
	if err != nil {
		a.logAudit(ctx, start, 0, err, len(img))
		return nil, err
	}

	detections := make([]provider.Detection, 0, len(output.FaceDetails))
	for _, detail := range output.FaceDetails {
		confidence := float64(deref(detail.Confidence)) / 100
		if confidence < a.client.config.MinConfidence || detail.BoundingBox == nil {
			continue
		}
		detections = append(detections, toDetection(detail, cfg.Width, cfg.Height))
	}

	a.logAudit(ctx, start, len(detections), nil, len(img))
	return detections, nil
}

func (a *Analyzer) logAudit(ctx context.Context, start time.Time, faces int, err error, size int) {
	event := audit.Event{
		EventType:  audit.EventAttributesAnalyzed,
		Provider:   "rekognition",
		Success:    err == nil,
		DurationMs: time.Since(start).Milliseconds(),
		Metadata: map[string]string{
			"faces_count": strconv.Itoa(faces),
			"image_size":  strconv.Itoa(size),
		},
	}
	if err != nil {
		event.Error = err.Error()
	}
	audit.Record(ctx, a.auditLogger, event)
}

func toDetection(d types.FaceDetail, width, height int) provider.Detection {
	w, h := float64(width), float64(height)
	box := d.BoundingBox

	det := provider.Detection{
		BoundingBox: domain.BoundingBox{
			X:      int(math.Round(float64(deref(box.Left)) * w)),
			Y:      int(math.Round(float64(deref(box.Top)) * h)),
			Width:  int(math.Round(float64(deref(box.Width)) * w)),
			Height: int(math.Round(float64(deref(box.Height)) * h)),
		},
		Confidence: float64(deref(d.Confidence)) / 100,
	}

	if d.Pose != nil {
		det.Pose = &domain.Pose{
			Yaw:   float64(deref(d.Pose.Yaw)),
			Pitch: float64(deref(d.Pose.Pitch)),
			Roll:  float64(deref(d.Pose.Roll)),
		}
	}

	for _, lm := range d.Landmarks {
		det.Landmarks = append(det.Landmarks, domain.Point{
			X: float64(deref(lm.X)) * w,
			Y: float64(deref(lm.Y)) * h,
		})
	}

	if d.AgeRange != nil && d.AgeRange.Low != nil && d.AgeRange.High != nil {
		age := int(*d.AgeRange.Low+*d.AgeRange.High) / 2
		det.Attributes.Age = &age
	}
	if d.Gender != nil {
		det.Attributes.Gender = strings.ToLower(string(d.Gender.Value))
	}
	det.Attributes.Emotion = dominantEmotion(d.Emotions)

	return det
}

func dominantEmotion(emotions []types.Emotion) string {
	var best string
	var bestConf float32 = -1
	for _, e := range emotions {
		if c := deref(e.Confidence); c > bestConf {
			best, bestConf = strings.ToLower(string(e.Type)), c
		}
	}
	return best
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

var _ provider.AttributeAnalyzer = (*Analyzer)(nil)
