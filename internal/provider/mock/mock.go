// Package mock is a deterministic detector for development and tests.
package mock

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/provider"
)

// Provider reports a fixed number of faces per decodable image. Embeddings are
// derived from a hash of the image bytes, so identical input always matches itself.
type Provider struct {
	faces int
}

// New creates a mock detector that finds one face per image.
func New() *Provider {
	return &Provider{faces: 1}
}

// WithFaces returns a copy that reports n faces per image.
func (p *Provider) WithFaces(n int) *Provider {
	return &Provider{faces: n}
}

func (p *Provider) Detect(ctx context.Context, img []byte) ([]provider.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	hash := sha256.Sum256(img)
	detections := make([]provider.Detection, 0, p.faces)
	for i := 0; i < p.faces; i++ {
		detections = append(detections, provider.Detection{
			BoundingBox: slot(i, p.faces, cfg.Width, cfg.Height),
			Confidence:  0.99,
			Embedding:   generateEmbedding(hash, i),
			Pose:        &domain.Pose{},
		})
	}
	return detections, nil
}

// slot splits the image into n vertical bands and places a face in each.
func slot(i, n, width, height int) domain.BoundingBox {
	band := width / n
	return domain.BoundingBox{
		X:      i*band + band/10,
		Y:      height / 10,
		Width:  band * 8 / 10,
		Height: height * 8 / 10,
	}
}

// generateEmbedding expands the image hash into a unit vector. Face i gets its
// own stream so multi-face images yield distinct embeddings.
func generateEmbedding(hash [32]byte, i int) []float32 {
	seed := make([]byte, len(hash)+8)
	copy(seed, hash[:])
	binary.BigEndian.PutUint64(seed[len(hash):], uint64(i))

	embedding := make([]float64, domain.EmbeddingDimension)
	block := sha256.Sum256(seed)
	for j := range embedding {
		if j > 0 && j%len(block) == 0 {
			block = sha256.Sum256(block[:])
		}
		embedding[j] = (float64(block[j%len(block)])/255.0)*2 - 1
	}

	return provider.NormalizeEmbedding(embedding)
}

var _ provider.Detector = (*Provider)(nil)
