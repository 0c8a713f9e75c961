// Package media turns image and video files into scored face detections.
package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/provider"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/quality"
)

// DefaultFrameInterval samples one frame in 30, roughly one per second.
const DefaultFrameInterval = 30

// errStopped ends frame iteration when the caller asked for an early stop.
var errStopped = errors.New("sampling stopped")

// Result is the outcome of processing one media item.
type Result struct {
	Detections    []domain.FaceDetection
	FramesSampled int
	// Truncated is set when sampling was stopped before the end of a video.
	Truncated bool
}

// Processor runs the detector over an item and scores every detection.
type Processor struct {
	detector      provider.Detector
	frames        FrameSource
	frameInterval int
	crops         *CropWriter
	logger        *slog.Logger
}

type Option func(*Processor)

// WithFrameInterval overrides DefaultFrameInterval.
func WithFrameInterval(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.frameInterval = n
		}
	}
}

// WithCrops enables saving padded face crops.
func WithCrops(w *CropWriter) Option {
	return func(p *Processor) {
		p.crops = w
	}
}

func NewProcessor(detector provider.Detector, frames FrameSource, logger *slog.Logger, opts ...Option) *Processor {
	p := &Processor{
		detector:      detector,
		frames:        frames,
		frameInterval: DefaultFrameInterval,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process extracts detections from the item's file. Progress events are sent
// without blocking; a full channel drops them.
func (p *Processor) Process(ctx context.Context, item *domain.MediaItem, progress chan<- domain.Progress) (*Result, error) {
	return p.ProcessUntil(ctx, item, progress, nil)
}

// ProcessUntil is Process with an early stop: once stop is closed, video
// sampling ends and the detections gathered so far are returned as truncated.
// Any detection failure fails the whole call; no partial result is returned.
func (p *Processor) ProcessUntil(ctx context.Context, item *domain.MediaItem, progress chan<- domain.Progress, stop <-chan struct{}) (*Result, error) {
	switch item.Type {
	case domain.MediaTypeImage:
		data, err := os.ReadFile(item.StoragePath)
		if err != nil {
			return nil, domain.ErrDetectionFailed.WithError(fmt.Errorf("read %s: %w", item.StoragePath, err))
		}
		detections, err := p.processImage(ctx, data, progress, true)
		if err != nil {
			return nil, err
		}
		return &Result{Detections: detections}, nil

	case domain.MediaTypeVideo:
		return p.processVideo(ctx, item.StoragePath, progress, stop)

	default:
		return nil, domain.ErrUnsupportedMedia.WithError(fmt.Errorf("media type %q", item.Type))
	}
}

// DetectImage runs a single detection pass over in-memory image bytes. The
// faces are not persisted, so no crops are written.
func (p *Processor) DetectImage(ctx context.Context, data []byte) ([]domain.FaceDetection, error) {
	return p.processImage(ctx, data, nil, false)
}

func (p *Processor) processImage(ctx context.Context, data []byte, progress chan<- domain.Progress, saveCrops bool) ([]domain.FaceDetection, error) {
	img, encoded, err := decodeImage(data)
	if err != nil {
		return nil, err
	}

	detections, err := p.detect(ctx, img, encoded, nil, 0, saveCrops)
	if err != nil {
		return nil, err
	}

	total := len(detections)
	if total == 0 {
		send(progress, domain.Progress{Percent: 100, Message: "no faces found"})
		return detections, nil
	}
	for i := range detections {
		send(progress, domain.Progress{
			Current:    i + 1,
			Total:      total,
			Percent:    float64(i+1) / float64(total) * 100,
			FacesFound: i + 1,
		})
	}
	return detections, nil
}

func (p *Processor) processVideo(ctx context.Context, path string, progress chan<- domain.Progress, stop <-chan struct{}) (*Result, error) {
	info, err := p.frames.Probe(ctx, path)
	if err != nil {
		return nil, domain.ErrDetectionFailed.WithError(fmt.Errorf("probe video: %w", err))
	}

	result := &Result{Detections: []domain.FaceDetection{}}
	err = p.frames.Frames(ctx, path, p.frameInterval, func(f Frame) error {
		select {
		case <-stop:
			return errStopped
		default:
		}

		img, _, err := decodeImage(f.JPEG)
		if err != nil {
			return fmt.Errorf("frame %d: %w", f.Index, err)
		}

		var ts *float64
		if info.FPS > 0 {
			t := float64(f.Index) / info.FPS
			ts = &t
		}

		found, err := p.detect(ctx, img, f.JPEG, ts, f.Index, true)
		if err != nil {
			return fmt.Errorf("frame %d: %w", f.Index, err)
		}
		for i := range found {
			idx := f.Index
			found[i].FrameIndex = &idx
		}

		result.Detections = append(result.Detections, found...)
		result.FramesSampled++

		send(progress, domain.Progress{
			Current:         f.Index,
			Total:           info.TotalFrames,
			Percent:         percent(f.Index, info.TotalFrames),
			FramesProcessed: result.FramesSampled,
			FacesFound:      len(result.Detections),
		})
		return nil
	})

	switch {
	case errors.Is(err, errStopped):
		result.Truncated = true
		p.logger.WarnContext(ctx, "video sampling stopped early",
			"path", path,
			"frames_sampled", result.FramesSampled,
			"faces_found", len(result.Detections),
		)
	case err != nil:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var appErr *domain.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, domain.ErrDetectionFailed.WithError(err)
	default:
		send(progress, domain.Progress{
			Current:         info.TotalFrames,
			Total:           info.TotalFrames,
			Percent:         100,
			FramesProcessed: result.FramesSampled,
			FacesFound:      len(result.Detections),
		})
	}

	return result, nil
}

// detect calls the detector on one image and scores what it returns.
func (p *Processor) detect(ctx context.Context, img image.Image, encoded []byte, ts *float64, frame int, saveCrops bool) ([]domain.FaceDetection, error) {
	raw, err := p.detector.Detect(ctx, encoded)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var appErr *domain.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, domain.ErrDetectionFailed.WithError(err)
	}

	detections := make([]domain.FaceDetection, 0, len(raw))
	for _, d := range raw {
		fd := domain.FaceDetection{
			ID:          uuid.New(),
			BoundingBox: d.BoundingBox,
			Confidence:  clamp01(d.Confidence),
			Embedding:   d.Embedding,
			Landmarks:   d.Landmarks,
			Pose:        d.Pose,
			Attributes:  d.Attributes,
			Timestamp:   ts,
		}
		fd.QualityScore = quality.Score(quality.Input{
			Confidence: d.Confidence,
			Box:        d.BoundingBox,
			Image:      img,
			Pose:       d.Pose,
		})

		if saveCrops && p.crops != nil {
			path, err := p.crops.Save(img, d.BoundingBox, fd.ID.String())
			if err != nil {
				p.logger.WarnContext(ctx, "failed to save face crop",
					"face_id", fd.ID,
					"frame", frame,
					"error", err,
				)
			} else {
				fd.CropPath = path
			}
		}

		detections = append(detections, fd)
	}
	return detections, nil
}

func send(ch chan<- domain.Progress, p domain.Progress) {
	if ch == nil {
		return
	}
	select {
	case ch <- p:
	default:
	}
}

func percent(current, total int) float64 {
	if total <= 0 {
		return 0
	}
	pct := float64(current) / float64(total) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
