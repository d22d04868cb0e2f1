package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidquest/core"
)

// fakeGenerator records prompts and returns a canned answer.
type fakeGenerator struct {
	answer  string
	err     error
	prompts []string
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

func result(rank int, start, end float64, text string) core.SearchResult {
	return core.SearchResult{
		ChunkID: core.ChunkID("v1", start), VideoID: "v1",
		Start: start, End: end, Text: text, Score: 0.9, Rank: rank,
	}
}

func TestComposeBuildsGroundedPrompt(t *testing.T) {
	gen := &fakeGenerator{answer: "Convolution is covered at 00:05."}
	c := NewComposer(gen, 0, 0)

	results := []core.SearchResult{
		result(1, 300, 330, "convolution layers slide over the input"),
		result(2, 600, 625, "pooling reduces spatial size"),
	}
	answer, err := c.Compose(context.Background(), "what is convolution?", results)
	require.NoError(t, err)
	assert.Equal(t, "Convolution is covered at 00:05.", answer)

	require.Len(t, gen.prompts, 1)
	prompt := gen.prompts[0]
	assert.Contains(t, prompt, "Segment 1 [05:00 - 05:30]: convolution layers slide over the input")
	assert.Contains(t, prompt, "Segment 2 [10:00 - 10:25]: pooling reduces spatial size")
	assert.Contains(t, prompt, "what is convolution?")
	assert.Contains(t, prompt, "ONLY the retrieved transcript segments")
}

func TestComposeEmptyResultsSkipsGenerator(t *testing.T) {
	gen := &fakeGenerator{answer: "should not be used"}
	c := NewComposer(gen, 0, 0)

	answer, err := c.Compose(context.Background(), "anything", nil)
	require.NoError(t, err)
	assert.Equal(t, InsufficientGroundingAnswer, answer)
	assert.Empty(t, gen.prompts, "generator must not be called without grounding")
}

func TestComposeTruncatesLowestRankedFirst(t *testing.T) {
	gen := &fakeGenerator{answer: "ok"}
	c := NewComposer(gen, 120, 0)

	long := strings.Repeat("x", 80)
	results := []core.SearchResult{
		result(1, 0, 10, long),
		result(2, 20, 30, long),
		result(3, 40, 50, long),
	}
	_, err := c.Compose(context.Background(), "q", results)
	require.NoError(t, err)

	require.Len(t, gen.prompts, 1)
	prompt := gen.prompts[0]
	assert.Contains(t, prompt, "Segment 1")
	assert.NotContains(t, prompt, "Segment 2")
	assert.NotContains(t, prompt, "Segment 3")
}

func TestComposeWrapsGenerationFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("upstream 500")}
	c := NewComposer(gen, 0, 0)

	_, err := c.Compose(context.Background(), "q", []core.SearchResult{result(1, 0, 10, "text")})
	var genErr *core.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.False(t, genErr.Timeout)
}

func TestComposeFlagsTimeout(t *testing.T) {
	gen := &fakeGenerator{err: context.DeadlineExceeded}
	c := NewComposer(gen, 0, 0)

	_, err := c.Compose(context.Background(), "q", []core.SearchResult{result(1, 0, 10, "text")})
	var genErr *core.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.True(t, genErr.Timeout)
}
