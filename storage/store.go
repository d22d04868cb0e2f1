package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"vidquest/config"
	"vidquest/core"
)

// ChunkRecord is a chunk together with its embedding and the model that
// produced it.
type ChunkRecord struct {
	Chunk     core.TranscriptChunk
	Embedding []float32
	ModelID   string
}

// Candidate is a raw nearest-neighbor hit before filtering and dedup.
type Candidate struct {
	ChunkID   string
	VideoID   string
	Start     float64
	End       float64
	Text      string
	FramePath string
	Score     float64
}

// VectorIndex abstracts the nearest-neighbor backend. Upserts are keyed by
// chunk ID: re-indexing an unchanged chunk overwrites in place, and a
// changed embedding-model version replaces the prior vector so stale and
// fresh vectors never coexist for the same chunk.
type VectorIndex interface {
	Upsert(ctx context.Context, recs []ChunkRecord) (int, error)
	Search(ctx context.Context, vector []float32, k int) ([]Candidate, error)
	Close(ctx context.Context) error
}

// NewVectorIndex selects the backend from config.
func NewVectorIndex(ctx context.Context, cfg *config.Config) (VectorIndex, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Store)) {
	case "", "memory":
		return NewMemoryIndex(), nil
	case "pgvector":
		return NewPgVectorIndex(ctx, cfg.PostgresURL)
	case "milvus":
		return NewMilvusIndex(ctx)
	default:
		return nil, fmt.Errorf("unknown vector store %q", cfg.Store)
	}
}

// MemoryIndex is the in-process backend used as the test fake and as the
// zero-configuration fallback.
type MemoryIndex struct {
	mu   sync.RWMutex
	recs map[string]ChunkRecord
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{recs: make(map[string]ChunkRecord)}
}

func (m *MemoryIndex) Upsert(ctx context.Context, recs []ChunkRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range recs {
		m.recs[r.Chunk.ID] = r
	}
	return len(recs), nil
}

func (m *MemoryIndex) Search(ctx context.Context, vector []float32, k int) ([]Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cands := make([]Candidate, 0, len(m.recs))
	for _, r := range m.recs {
		score := cosine(vector, r.Embedding)
		cands = append(cands, Candidate{
			ChunkID:   r.Chunk.ID,
			VideoID:   r.Chunk.VideoID,
			Start:     r.Chunk.Start,
			End:       r.Chunk.End,
			Text:      r.Chunk.Text,
			FramePath: r.Chunk.FramePath,
			Score:     score,
		})
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].Score > cands[j].Score })
	if k > 0 && k < len(cands) {
		cands = cands[:k]
	}
	return cands, nil
}

func (m *MemoryIndex) Close(ctx context.Context) error { return nil }

// Len reports the number of stored records.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.recs)
}

// Get returns the stored record for a chunk ID.
func (m *MemoryIndex) Get(chunkID string) (ChunkRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.recs[chunkID]
	return r, ok
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
