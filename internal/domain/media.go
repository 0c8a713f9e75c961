package domain

import (
	"crypto/md5" //nolint:gosec // content fingerprint, not a security boundary
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

type MediaStatus string

const (
	MediaStatusPending    MediaStatus = "pending"
	MediaStatusProcessing MediaStatus = "processing"
	MediaStatusCompleted  MediaStatus = "completed"
	MediaStatusFailed     MediaStatus = "failed"
)

// dedupHashLength is the number of hex chars of the content hash kept in a dedup name.
const dedupHashLength = 12

var (
	imageExtensions = map[string]bool{
		".png":  true,
		".jpg":  true,
		".jpeg": true,
		".gif":  true,
		".bmp":  true,
		".webp": true,
	}

	videoExtensions = map[string]bool{
		".mp4": true,
		".avi": true,
		".mov": true,
		".wmv": true,
		".flv": true,
		".mkv": true,
	}
)

// MediaItem is an uploaded or watched file registered for ingestion
type MediaItem struct {
	ID           uuid.UUID   `json:"id"`
	StoragePath  string      `json:"storage_path"`
	OriginalName string      `json:"original_name"`
	DedupName    string      `json:"dedup_name"`
	ContentHash  string      `json:"content_hash"`
	SizeBytes    int64       `json:"size_bytes"`
	Type         MediaType   `json:"type"`
	Status       MediaStatus `json:"status"`
	FaceCount    int         `json:"face_count"`
	Error        string      `json:"error,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	ProcessedAt  *time.Time  `json:"processed_at,omitempty"`
}

// MediaFilter narrows media listings. Zero values mean "any".
type MediaFilter struct {
	Type   MediaType
	Status MediaStatus
	Limit  int
	Offset int
}

// MediaTypeFromPath classifies a file by extension.
func MediaTypeFromPath(path string) (MediaType, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case imageExtensions[ext]:
		return MediaTypeImage, nil
	case videoExtensions[ext]:
		return MediaTypeVideo, nil
	default:
		return "", ErrUnsupportedMedia.WithError(fmt.Errorf("extension %q", ext))
	}
}

// IsSupportedMedia reports whether the path has an ingestible extension.
func IsSupportedMedia(path string) bool {
	_, err := MediaTypeFromPath(path)
	return err == nil
}

// ContentHash returns the hex md5 of everything read from r.
func ContentHash(r io.Reader) (string, error) {
	h := md5.New() //nolint:gosec
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DedupName builds the deduplicated storage name: truncated content hash + "_" + base filename.
func DedupName(contentHash, filename string) string {
	prefix := contentHash
	if len(prefix) > dedupHashLength {
		prefix = prefix[:dedupHashLength]
	}
	return prefix + "_" + filepath.Base(filename)
}

func (m *MediaItem) Validate() error {
	if m.StoragePath == "" {
		return errors.New("media storage path cannot be empty")
	}

	if m.Type != MediaTypeImage && m.Type != MediaTypeVideo {
		return fmt.Errorf("invalid media type %q", m.Type)
	}

	if m.DedupName == "" {
		return errors.New("media dedup name cannot be empty")
	}

	return nil
}
