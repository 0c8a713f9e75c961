package search

import (
	"math"
	"sort"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

// Similarity maps cosine similarity from [-1,1] onto [0,1] as (cos+1)/2.
// A zero vector has cosine 0 against anything. A vector against itself is
// exactly 1: sqrt of a correctly rounded square returns the original value.
func Similarity(a, b []float32) float64 {
	n := min(len(a), len(b))

	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}

	cos := 0.0
	if na > 0 && nb > 0 {
		norm := math.Sqrt(na * nb)
		if math.IsInf(norm, 0) || norm == 0 {
			norm = math.Sqrt(na) * math.Sqrt(nb)
		}
		cos = math.Max(-1, math.Min(1, dot/norm))
	}
	return math.Max(0, math.Min(1, (cos+1)/2))
}

// Scored is a corpus entry with its similarity to the query.
type Scored struct {
	Entry      domain.CorpusEntry
	Similarity float64
}

// Rank keeps entries with similarity >= threshold, sorts them by descending
// similarity and truncates to topK. Ties keep the order of entries, which
// callers pass in corpus insertion order.
func Rank(query []float32, entries []domain.CorpusEntry, threshold float64, topK int) []Scored {
	scored := make([]Scored, 0, len(entries))
	for _, e := range entries {
		sim := Similarity(query, e.Embedding)
		if sim >= threshold {
			scored = append(scored, Scored{Entry: e, Similarity: sim})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}
