package storage

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	"vidquest/core"
)

// Indexer embeds transcript chunks and upserts them into the vector index.
type Indexer struct {
	emb   Embedder
	index VectorIndex

	maxRetries      uint64
	initialInterval time.Duration
}

// ChunkFailure records one chunk that could not be embedded.
type ChunkFailure struct {
	ChunkID string `json:"chunk_id"`
	Error   string `json:"error"`
}

// IndexReport summarizes a batch: how many vectors were written and which
// chunks failed. A failed chunk never fails the batch.
type IndexReport struct {
	Indexed int            `json:"indexed"`
	Failed  []ChunkFailure `json:"failed,omitempty"`
}

func NewIndexer(emb Embedder, index VectorIndex, maxRetries int) *Indexer {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Indexer{
		emb:             emb,
		index:           index,
		maxRetries:      uint64(maxRetries),
		initialInterval: 500 * time.Millisecond,
	}
}

// Index embeds every chunk, retrying transient embedding failures with
// bounded exponential backoff, then writes the successful records. Upserts
// are idempotent per chunk ID and carry the current model version.
func (ix *Indexer) Index(ctx context.Context, chunks []core.TranscriptChunk) (IndexReport, error) {
	report := IndexReport{}
	if len(chunks) == 0 {
		return report, nil
	}

	model := ix.emb.Model()
	recs := make([]ChunkRecord, 0, len(chunks))
	for _, chunk := range chunks {
		vec, err := ix.embedWithRetry(ctx, chunk.Text)
		if err != nil {
			log.Printf("indexer: embedding failed for chunk %s: %v", chunk.ID, err)
			report.Failed = append(report.Failed, ChunkFailure{ChunkID: chunk.ID, Error: err.Error()})
			continue
		}
		recs = append(recs, ChunkRecord{Chunk: chunk, Embedding: vec, ModelID: model})
	}

	if len(recs) == 0 {
		return report, nil
	}

	n, err := ix.index.Upsert(ctx, recs)
	report.Indexed = n
	if err != nil {
		return report, err
	}
	return report, nil
}

func (ix *Indexer) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = ix.initialInterval

	var vec []float32
	op := func() error {
		v, err := ix.emb.Embed(ctx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, ix.maxRetries), ctx))
	if err != nil {
		return nil, err
	}
	return vec, nil
}
