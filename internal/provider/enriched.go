package provider

import (
	"context"
	"log/slog"
)

// enrichMinIoU is the overlap required to pair a detection with an analyzer face.
const enrichMinIoU = 0.5

// Enriched fills the gaps of a Detector with attributes from an AttributeAnalyzer.
// Attributes are optional: when the analyzer fails the plain detections are returned.
type Enriched struct {
	detector Detector
	analyzer AttributeAnalyzer
	logger   *slog.Logger
}

func NewEnriched(detector Detector, analyzer AttributeAnalyzer, logger *slog.Logger) *Enriched {
	return &Enriched{
		detector: detector,
		analyzer: analyzer,
		logger:   logger,
	}
}

func (e *Enriched) Detect(ctx context.Context, image []byte) ([]Detection, error) {
	detections, err := e.detector.Detect(ctx, image)
	if err != nil || len(detections) == 0 {
		return detections, err
	}

	extra, err := e.analyzer.Analyze(ctx, image)
	if err != nil {
		e.logger.WarnContext(ctx, "attribute analysis failed, keeping plain detections",
			"error", err,
			"faces", len(detections),
		)
		return detections, nil
	}

	for i := range detections {
		if match := bestMatch(detections[i], extra); match != nil {
			fill(&detections[i], match)
		}
	}
	return detections, nil
}

func bestMatch(d Detection, candidates []Detection) *Detection {
	var best *Detection
	bestIoU := enrichMinIoU
	for i := range candidates {
		if iou := IoU(d.BoundingBox, candidates[i].BoundingBox); iou >= bestIoU {
			best, bestIoU = &candidates[i], iou
		}
	}
	return best
}

// fill copies only what the detector left empty.
func fill(dst *Detection, src *Detection) {
	if dst.Pose == nil {
		dst.Pose = src.Pose
	}
	if len(dst.Landmarks) == 0 {
		dst.Landmarks = src.Landmarks
	}
	if dst.Attributes.Age == nil {
		dst.Attributes.Age = src.Attributes.Age
	}
	if dst.Attributes.Gender == "" {
		dst.Attributes.Gender = src.Attributes.Gender
	}
	if dst.Attributes.Emotion == "" {
		dst.Attributes.Emotion = src.Attributes.Emotion
	}
}

var _ Detector = (*Enriched)(nil)
