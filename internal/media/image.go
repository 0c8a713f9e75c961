package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

const (
	cropPadding = 20
	jpegQuality = 95
)

// decodeImage decodes any supported still format. Formats detection engines
// commonly reject (gif, bmp, webp) are re-encoded as JPEG for the detector.
func decodeImage(data []byte) (image.Image, []byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, domain.ErrInvalidImage.WithError(fmt.Errorf("decode: %w", err))
	}

	if format == "jpeg" || format == "png" {
		return img, data, nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, nil, domain.ErrInvalidImage.WithError(fmt.Errorf("re-encode %s: %w", format, err))
	}
	return img, buf.Bytes(), nil
}

// CropWriter saves padded face crops under <dir>/<id[:2]>/<id>.jpg.
type CropWriter struct {
	dir string
}

func NewCropWriter(dir string) *CropWriter {
	return &CropWriter{dir: dir}
}

// Save writes the crop of box (padded and clipped to the image) and returns its path.
func (w *CropWriter) Save(img image.Image, box domain.BoundingBox, id string) (string, error) {
	rect := image.Rect(
		box.X-cropPadding, box.Y-cropPadding,
		box.X+box.Width+cropPadding, box.Y+box.Height+cropPadding,
	).Intersect(img.Bounds())
	if rect.Empty() {
		return "", fmt.Errorf("crop %s: box outside image", id)
	}

	crop := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(crop, crop.Bounds(), img, rect.Min, draw.Src)

	dir := filepath.Join(w.dir, id[:2])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("crop %s: %w", id, err)
	}

	path := filepath.Join(dir, id+".jpg")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("crop %s: %w", id, err)
	}
	defer f.Close()

	if err := jpeg.Encode(f, crop, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("crop %s: encode: %w", id, err)
	}
	return path, nil
}
