package mock

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

func encodePNG(t *testing.T, w, h int, shade uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = shade
	}
	img.SetGray(0, 0, color.Gray{Y: shade + 1})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProvider_Detect(t *testing.T) {
	p := New()
	ctx := context.Background()

	detections, err := p.Detect(ctx, encodePNG(t, 200, 100, 10))

	require.NoError(t, err)
	require.Len(t, detections, 1)
	assert.Equal(t, domain.BoundingBox{X: 20, Y: 10, Width: 160, Height: 80}, detections[0].BoundingBox)
	assert.Len(t, detections[0].Embedding, domain.EmbeddingDimension)
	assert.NotNil(t, detections[0].Pose)
}

func TestProvider_Detect_InvalidImage(t *testing.T) {
	_, err := New().Detect(context.Background(), []byte("not an image"))

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidImage)
}

func TestProvider_Detect_Deterministic(t *testing.T) {
	p := New()
	img := encodePNG(t, 64, 64, 80)

	a, err := p.Detect(context.Background(), img)
	require.NoError(t, err)
	b, err := p.Detect(context.Background(), img)
	require.NoError(t, err)

	assert.Equal(t, a[0].Embedding, b[0].Embedding)

	other, err := p.Detect(context.Background(), encodePNG(t, 64, 64, 81))
	require.NoError(t, err)
	assert.NotEqual(t, a[0].Embedding, other[0].Embedding)
}

func TestProvider_WithFaces(t *testing.T) {
	detections, err := New().WithFaces(3).Detect(context.Background(), encodePNG(t, 300, 100, 5))

	require.NoError(t, err)
	require.Len(t, detections, 3)
	assert.NotEqual(t, detections[0].Embedding, detections[1].Embedding)
	assert.Less(t, detections[0].BoundingBox.X, detections[1].BoundingBox.X)
	assert.Less(t, detections[1].BoundingBox.X, detections[2].BoundingBox.X)
}

func TestProvider_Detect_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Detect(ctx, encodePNG(t, 10, 10, 1))
	assert.ErrorIs(t, err, context.Canceled)
}
