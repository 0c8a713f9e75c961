// Package quality turns per-face detector signals into a single [0,1] score.
//
// The score is the unweighted mean of whichever sub-scores can be computed:
// detector confidence, relative face area, crop sharpness and pose frontality.
// It is a simple heuristic, not a tuned model. A sub-score that cannot be
// computed is left out of the mean instead of counting as zero.
package quality

import (
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

const (
	areaRatioScale   = 10.0
	sharpnessDivisor = 1000.0
	maxPoseDegrees   = 180.0
)

// Input carries everything known about one detected face.
type Input struct {
	Confidence float64
	Box        domain.BoundingBox
	// Image is the full decoded frame or photo. Nil disables area and sharpness.
	Image image.Image
	// Pose is nil when the detector does not report head orientation.
	Pose *domain.Pose
}

// Breakdown exposes the individual sub-scores; a nil field was not computable.
type Breakdown struct {
	Confidence *float64 `json:"confidence,omitempty"`
	AreaRatio  *float64 `json:"area_ratio,omitempty"`
	Sharpness  *float64 `json:"sharpness,omitempty"`
	Pose       *float64 `json:"pose,omitempty"`
}

// Mean averages the computed sub-scores. Zero when none are available.
func (b Breakdown) Mean() float64 {
	var sum float64
	var n int
	for _, v := range []*float64{b.Confidence, b.AreaRatio, b.Sharpness, b.Pose} {
		if v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return clamp01(sum / float64(n))
}

// Score returns the combined quality score in [0,1].
func Score(in Input) float64 {
	return Evaluate(in).Mean()
}

// Evaluate computes each sub-score independently.
func Evaluate(in Input) Breakdown {
	var b Breakdown

	conf := clamp01(in.Confidence)
	b.Confidence = &conf

	if in.Image != nil {
		if ratio, ok := AreaRatio(in.Box, in.Image.Bounds()); ok {
			b.AreaRatio = &ratio
		}
		if sharp, ok := Sharpness(in.Image, in.Box); ok {
			b.Sharpness = &sharp
		}
	}

	if in.Pose != nil {
		p := PoseFrontality(*in.Pose)
		b.Pose = &p
	}

	return b
}

// AreaRatio scores the face size relative to the whole image.
func AreaRatio(box domain.BoundingBox, bounds image.Rectangle) (float64, bool) {
	imageArea := bounds.Dx() * bounds.Dy()
	if imageArea <= 0 || box.Width <= 0 || box.Height <= 0 {
		return 0, false
	}
	ratio := float64(box.Area()) / float64(imageArea)
	return math.Min(ratio*areaRatioScale, 1.0), true
}

// PoseFrontality is 1 for a frontal face and falls linearly with yaw and pitch.
func PoseFrontality(p domain.Pose) float64 {
	return clamp01(1.0 - (math.Abs(p.Yaw)+math.Abs(p.Pitch))/maxPoseDegrees)
}

// Sharpness measures the variance of the Laplacian over the grayscale face crop.
// It reports false when the crop does not overlap the image.
func Sharpness(img image.Image, box domain.BoundingBox) (float64, bool) {
	crop := image.Rect(box.X, box.Y, box.X+box.Width, box.Y+box.Height).Intersect(img.Bounds())
	if crop.Empty() {
		return 0, false
	}

	gray := image.NewGray(image.Rect(0, 0, crop.Dx(), crop.Dy()))
	draw.Draw(gray, gray.Bounds(), img, crop.Min, draw.Src)

	v := laplacianVariance(gray)
	return math.Min(v/sharpnessDivisor, 1.0), true
}

// laplacianVariance applies the 4-neighbour Laplacian kernel with a
// reflect-101 border and returns the population variance of the response.
func laplacianVariance(g *image.Gray) float64 {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	n := float64(w * h)

	at := func(x, y int) float64 {
		return float64(g.Pix[reflect101(y, h)*g.Stride+reflect101(x, w)])
	}

	var sum, sumSq float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1) - 4*at(x, y)
			sum += v
			sumSq += v * v
		}
	}

	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		return 0
	}
	return variance
}

func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	if i < 0 {
		return -i
	}
	if i >= n {
		return 2*n - 2 - i
	}
	return i
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
