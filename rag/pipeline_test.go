package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidquest/core"
	"vidquest/storage"
)

// bagEmbedder is a deterministic text-dependent embedding: rune counts
// bucketed into a fixed-size vector. Identical text gives identical
// vectors, so cosine similarity of a chunk against its own text is 1.
type bagEmbedder struct{}

func (bagEmbedder) Model() string { return "bag-v1" }

func (bagEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 8)
	for _, r := range text {
		vec[int(r)%len(vec)]++
	}
	return vec, nil
}

func TestIndexThenSearchRoundTrip(t *testing.T) {
	ctx := context.Background()
	idx := storage.NewMemoryIndex()
	ix := storage.NewIndexer(bagEmbedder{}, idx, 0)

	const targetText = "convolution layers slide a kernel across the input image"
	target := core.TranscriptChunk{
		ID: core.ChunkID("lec1", 30), VideoID: "lec1",
		Start: 30, End: 60, Text: targetText,
	}
	distractor := core.TranscriptChunk{
		ID: core.ChunkID("lec1", 400), VideoID: "lec1",
		Start: 400, End: 420, Text: "course logistics and the grading policy",
	}

	report, err := ix.Index(ctx, []core.TranscriptChunk{target, distractor})
	require.NoError(t, err)
	require.Equal(t, 2, report.Indexed)

	vec, err := bagEmbedder{}.Embed(ctx, targetText)
	require.NoError(t, err)

	r := NewRetriever(idx, 3, 2.0, 0)
	results, err := r.Search(ctx, vec, 5, 0.3)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, target.ID, results[0].ChunkID, "exact text must retrieve its own chunk first")
	assert.Equal(t, 1, results[0].Rank)
	assert.GreaterOrEqual(t, results[0].Score, 0.3)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, targetText, results[0].Text)
	assert.Equal(t, 30.0, results[0].Start)
	assert.Equal(t, 60.0, results[0].End)
}
