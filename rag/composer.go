package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vidquest/core"
	"vidquest/storage"
)

// InsufficientGroundingAnswer is returned when retrieval produced nothing
// usable. Deliberate policy: the generation function is not consulted
// without grounding material.
const InsufficientGroundingAnswer = "No relevant lecture segments were found for this question, so a grounded answer cannot be given."

// Composer turns ranked results into a grounded answer via the external
// generation function.
type Composer struct {
	gen             storage.Generator
	maxContextChars int
	timeout         time.Duration
}

func NewComposer(gen storage.Generator, maxContextChars int, timeout time.Duration) *Composer {
	if maxContextChars <= 0 {
		maxContextChars = 6000
	}
	return &Composer{gen: gen, maxContextChars: maxContextChars, timeout: timeout}
}

// Compose builds the grounding context in rank order and asks the model to
// answer strictly from it. Lowest-ranked results are dropped first when the
// context budget is exceeded.
func (c *Composer) Compose(ctx context.Context, query string, results []core.SearchResult) (string, error) {
	if len(results) == 0 {
		return InsufficientGroundingAnswer, nil
	}

	var blocks []string
	used := 0
	for i, r := range results {
		block := fmt.Sprintf("Segment %d [%s - %s]: %s",
			i+1, core.FormatTime(r.Start), core.FormatTime(r.End), r.Text)
		if used+len(block) > c.maxContextChars && len(blocks) > 0 {
			break
		}
		blocks = append(blocks, block)
		used += len(block)
	}
	contextStr := strings.Join(blocks, "\n\n")

	prompt := fmt.Sprintf(`You are a lecture video assistant. Answer the user's question using ONLY the retrieved transcript segments below. Cite the relevant time ranges in your answer. If the segments do not contain enough information to answer, say so explicitly instead of guessing.

Retrieved segments:
%s

Question: %s`, contextStr, query)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	answer, err := c.gen.Generate(ctx, prompt)
	if err != nil {
		return "", &core.GenerationError{
			Timeout: errors.Is(err, context.DeadlineExceeded),
			Err:     err,
		}
	}
	return answer, nil
}
