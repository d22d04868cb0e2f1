package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	model string
	calls int
}

func (e *countingEmbedder) Model() string { return e.model }

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	return []float32{float32(e.calls)}, nil
}

func TestCachedEmbedderMemoizes(t *testing.T) {
	inner := &countingEmbedder{model: "model-a"}
	cached := NewCachedEmbedder(inner, time.Minute, time.Minute)

	first, err := cached.Embed(context.Background(), "what is convolution?")
	require.NoError(t, err)
	second, err := cached.Embed(context.Background(), "what is convolution?")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls, "repeat of the same text must hit the cache")

	_, err = cached.Embed(context.Background(), "what is pooling?")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestEmbedCacheKeyIncludesModel(t *testing.T) {
	a := embedCacheKey("model-a", "same text")
	b := embedCacheKey("model-b", "same text")
	assert.NotEqual(t, a, b)
}

func TestMemoryIndexSearchOrdersByCosine(t *testing.T) {
	idx := NewMemoryIndex()
	_, err := idx.Upsert(context.Background(), []ChunkRecord{
		{Chunk: chunk("close", "close"), Embedding: []float32{1, 0.1}, ModelID: "m"},
		{Chunk: chunk("far", "far"), Embedding: []float32{0.1, 1}, ModelID: "m"},
	})
	require.NoError(t, err)

	cands, err := idx.Search(context.Background(), []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, "close", cands[0].ChunkID)
	assert.Greater(t, cands[0].Score, cands[1].Score)
}
