package media

import (
	"bytes"
	"context"
	"image"
	"image/color/palette"
	"image/gif"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/provider"
)

type detectorFunc func(img []byte) ([]provider.Detection, error)

func (f detectorFunc) Detect(_ context.Context, img []byte) ([]provider.Detection, error) {
	return f(img)
}

func encodeGIF(t *testing.T) []byte {
	t.Helper()
	img := image.NewPaletted(image.Rect(0, 0, 20, 20), palette.Plan9)
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, img, nil))
	return buf.Bytes()
}
