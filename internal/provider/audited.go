package provider

import (
	"context"
	"strconv"
	"time"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/audit"
)

// Audited records every detection call on an audit log.
type Audited struct {
	next     Detector
	provider string
	log      audit.Logger
}

func NewAudited(next Detector, providerName string, log audit.Logger) *Audited {
	return &Audited{next: next, provider: providerName, log: log}
}

func (a *Audited) Detect(ctx context.Context, image []byte) ([]Detection, error) {
	start := time.Now()
	detections, err := a.next.Detect(ctx, image)

	event := audit.Event{
		EventType:  audit.EventFacesDetected,
		Provider:   a.provider,
		Success:    err == nil,
		DurationMs: time.Since(start).Milliseconds(),
		Metadata: map[string]string{
			"faces_count": strconv.Itoa(len(detections)),
			"image_size":  strconv.Itoa(len(image)),
		},
	}
	if err != nil {
		event.Error = err.Error()
	}
	audit.Record(ctx, a.log, event)

	return detections, err
}

var _ Detector = (*Audited)(nil)
