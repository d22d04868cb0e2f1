package storage

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const embeddingDim = 1536

// PgVectorIndex stores chunk vectors in PostgreSQL with the pgvector
// extension.
type PgVectorIndex struct {
	pool *pgxpool.Pool
}

func NewPgVectorIndex(ctx context.Context, dbURL string) (*PgVectorIndex, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	idx := &PgVectorIndex{pool: pool}
	if err := idx.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return idx, nil
}

func (s *PgVectorIndex) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS transcript_chunks (
			id SERIAL PRIMARY KEY,
			chunk_id VARCHAR(255) UNIQUE NOT NULL,
			video_id VARCHAR(255) NOT NULL,
			start_time FLOAT NOT NULL,
			end_time FLOAT NOT NULL,
			text TEXT NOT NULL,
			frame_path VARCHAR(1024),
			model_id VARCHAR(255) NOT NULL,
			embedding vector(%d),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`, embeddingDim)
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create transcript_chunks table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_transcript_chunks_video ON transcript_chunks(video_id);",
		"CREATE INDEX IF NOT EXISTS idx_transcript_chunks_model ON transcript_chunks(model_id);",
		`CREATE INDEX IF NOT EXISTS idx_transcript_chunks_embedding
			ON transcript_chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);`,
	}
	for _, q := range indexes {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			log.Printf("Warning: failed to create index: %v", err)
		}
	}
	return nil
}

func (s *PgVectorIndex) Upsert(ctx context.Context, recs []ChunkRecord) (int, error) {
	count := 0
	for _, r := range recs {
		vec := pgvector.NewVector(r.Embedding)
		_, err := s.pool.Exec(ctx, `
			INSERT INTO transcript_chunks (chunk_id, video_id, start_time, end_time, text, frame_path, model_id, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (chunk_id)
			DO UPDATE SET
				video_id = EXCLUDED.video_id,
				start_time = EXCLUDED.start_time,
				end_time = EXCLUDED.end_time,
				text = EXCLUDED.text,
				frame_path = EXCLUDED.frame_path,
				model_id = EXCLUDED.model_id,
				embedding = EXCLUDED.embedding
		`, r.Chunk.ID, r.Chunk.VideoID, r.Chunk.Start, r.Chunk.End, r.Chunk.Text, r.Chunk.FramePath, r.ModelID, vec)
		if err != nil {
			return count, fmt.Errorf("upsert chunk %s: %w", r.Chunk.ID, err)
		}
		count++
	}
	return count, nil
}

func (s *PgVectorIndex) Search(ctx context.Context, vector []float32, k int) ([]Candidate, error) {
	if k <= 0 {
		k = 5
	}
	vec := pgvector.NewVector(vector)
	rows, err := s.pool.Query(ctx, `
		SELECT chunk_id, video_id, start_time, end_time, text, COALESCE(frame_path, ''),
		       1 - (embedding <=> $1) AS similarity
		FROM transcript_chunks
		ORDER BY embedding <=> $1
		LIMIT $2
	`, vec, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var cands []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ChunkID, &c.VideoID, &c.Start, &c.End, &c.Text, &c.FramePath, &c.Score); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		cands = append(cands, c)
	}
	return cands, rows.Err()
}

func (s *PgVectorIndex) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}
