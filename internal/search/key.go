package search

import (
	"crypto/md5" //nolint:gosec // content fingerprint, not a security boundary
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

const (
	// KeyPrefix namespaces search results in the shared cache.
	KeyPrefix = "search:"
	// CachePattern matches every cached search result.
	CachePattern = KeyPrefix + "*"
)

// keyParams is serialized with its fields in lexical order so equal
// queries always hash to the same key.
type keyParams struct {
	FileHash  string  `json:"file_hash"`
	Threshold float64 `json:"threshold"`
	TopK      int     `json:"top_k"`
}

// FileHash is the md5 hex of the query media.
func FileHash(media []byte) string {
	sum := md5.Sum(media) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// CacheKey derives the cache key of a query from its media bytes and
// parameters. Parameters JSON cannot encode, such as NaN, are an error.
func CacheKey(media []byte, threshold float64, topK int) (string, error) {
	raw, err := json.Marshal(keyParams{
		FileHash:  FileHash(media),
		Threshold: threshold,
		TopK:      topK,
	})
	if err != nil {
		return "", fmt.Errorf("encode cache key: %w", err)
	}
	sum := sha256.Sum256(raw)
	return KeyPrefix + hex.EncodeToString(sum[:]), nil
}
