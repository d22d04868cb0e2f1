package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"vidquest/core"
	"vidquest/storage"
)

// Retriever ranks candidate chunks for a query vector: overfetch from the
// nearest-neighbor service, apply the similarity floor, deduplicate
// overlapping chunks per video, then cut to top-K.
type Retriever struct {
	index     storage.VectorIndex
	overfetch int
	mergeGap  float64
	timeout   time.Duration
}

func NewRetriever(index storage.VectorIndex, overfetch int, mergeGap float64, timeout time.Duration) *Retriever {
	if overfetch < 1 {
		overfetch = 1
	}
	return &Retriever{index: index, overfetch: overfetch, mergeGap: mergeGap, timeout: timeout}
}

// Search returns at most topK results scoring at least minScore. No
// candidate clearing the floor is an empty result, not an error. A search
// that exceeds the retrieval timeout returns core.ErrRetrievalTimeout.
func (r *Retriever) Search(ctx context.Context, vector []float32, topK int, minScore float64) ([]core.SearchResult, error) {
	if topK < 1 {
		return nil, &core.InvalidQueryError{Reason: fmt.Sprintf("top_k must be >= 1, got %d", topK)}
	}
	if minScore < 0 || minScore > 1 {
		return nil, &core.InvalidQueryError{Reason: fmt.Sprintf("min_score must be in [0,1], got %g", minScore)}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cands, err := r.index.Search(ctx, vector, topK*r.overfetch)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, core.ErrRetrievalTimeout
		}
		return nil, fmt.Errorf("vector search: %w", err)
	}

	// Similarity floor. Approximate backends can report cosine scores a
	// hair outside [0,1]; clamp before comparing.
	kept := cands[:0]
	for _, c := range cands {
		c.Score = clamp01(c.Score)
		if c.Score >= minScore {
			kept = append(kept, c)
		}
	}

	merged := dedupe(kept, r.mergeGap)

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].Start < merged[j].Start
	})
	if len(merged) > topK {
		merged = merged[:topK]
	}

	results := make([]core.SearchResult, 0, len(merged))
	for i, c := range merged {
		results = append(results, core.SearchResult{
			ChunkID:   c.ChunkID,
			VideoID:   c.VideoID,
			Start:     c.Start,
			End:       c.End,
			Text:      c.Text,
			FramePath: c.FramePath,
			Score:     c.Score,
			Rank:      i + 1,
		})
	}
	return results, nil
}

// dedupe groups candidates from the same video whose ranges overlap or sit
// closer than mergeGap. Each group keeps its highest-scoring member with the
// time range widened to the union of the group.
func dedupe(cands []storage.Candidate, mergeGap float64) []storage.Candidate {
	if len(cands) < 2 {
		return cands
	}

	sorted := make([]storage.Candidate, len(cands))
	copy(sorted, cands)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].VideoID != sorted[j].VideoID {
			return sorted[i].VideoID < sorted[j].VideoID
		}
		return sorted[i].Start < sorted[j].Start
	})

	var out []storage.Candidate
	group := sorted[0]
	groupEnd := sorted[0].End

	for _, c := range sorted[1:] {
		sameVideo := c.VideoID == group.VideoID
		if sameVideo && c.Start <= groupEnd+mergeGap {
			// Same group: widen the union, keep the best scorer.
			if c.End > groupEnd {
				groupEnd = c.End
			}
			if c.Score > group.Score {
				start := group.Start
				group = c
				group.Start = start
			}
			group.End = groupEnd
			continue
		}
		out = append(out, group)
		group = c
		groupEnd = c.End
	}
	out = append(out, group)
	return out
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
