package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHNSWIndex_MatchesBruteForce(t *testing.T) {
	corpus := &memCorpus{}
	for i := 0; i < 40; i++ {
		corpus.add(0.3 + float64(i)*0.0175)
	}

	ctx := context.Background()
	query := []float32{1, 0}

	brute, err := NewBruteForce(corpus).Candidates(ctx, query, 5)
	require.NoError(t, err)
	want := Rank(query, brute, 0.6, 5)

	hnswCandidates, err := NewHNSWIndex(corpus).Candidates(ctx, query, 5)
	require.NoError(t, err)
	got := Rank(query, hnswCandidates, 0.6, 5)

	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Entry.FaceID, got[i].Entry.FaceID)
	}
}

func TestHNSWIndex_SyncsIncrementally(t *testing.T) {
	corpus := &memCorpus{}
	corpus.add(0.9)

	idx := NewHNSWIndex(corpus)
	ctx := context.Background()

	_, err := idx.Candidates(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())

	late := corpus.add(0.99)
	got, err := idx.Candidates(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())

	require.Len(t, got, 2)
	assert.Equal(t, late.FaceID, got[1].FaceID, "candidates come back in insertion order")
}

func TestHNSWIndex_Empty(t *testing.T) {
	got, err := NewHNSWIndex(&memCorpus{}).Candidates(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}
