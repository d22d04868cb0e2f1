package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// MilvusIndex stores chunk vectors in a Milvus collection keyed by chunk ID.
type MilvusIndex struct {
	mc   client.Client
	coll string
	dim  int
}

func NewMilvusIndex(ctx context.Context) (*MilvusIndex, error) {
	addr := os.Getenv("MILVUS_ADDR")
	if addr == "" {
		addr = "localhost:19530"
	}
	coll := os.Getenv("MILVUS_COLLECTION")
	if coll == "" {
		coll = "transcript_chunks"
	}

	mc, err := client.NewClient(ctx, client.Config{
		Address:  addr,
		Username: os.Getenv("MILVUS_USERNAME"),
		Password: os.Getenv("MILVUS_PASSWORD"),
		APIKey:   os.Getenv("MILVUS_API_KEY"),
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}

	s := &MilvusIndex{mc: mc, coll: coll, dim: embeddingDim}
	if err := s.ensureSchemaAndIndex(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MilvusIndex) ensureSchemaAndIndex(ctx context.Context) error {
	has, err := s.mc.HasCollection(ctx, s.coll)
	if err != nil {
		return err
	}
	if !has {
		schema := entity.NewSchema()
		schema.WithField(entity.NewField().WithName("chunk_id").WithIsPrimaryKey(true).WithDataType(entity.FieldTypeVarChar).WithMaxLength(255))
		schema.WithField(entity.NewField().WithName("video_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(255))
		schema.WithField(entity.NewField().WithName("start").WithDataType(entity.FieldTypeDouble))
		schema.WithField(entity.NewField().WithName("end").WithDataType(entity.FieldTypeDouble))
		schema.WithField(entity.NewField().WithName("text").WithDataType(entity.FieldTypeVarChar).WithMaxLength(4096))
		schema.WithField(entity.NewField().WithName("frame_path").WithDataType(entity.FieldTypeVarChar).WithMaxLength(1024))
		schema.WithField(entity.NewField().WithName("model_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(255))
		schema.WithField(entity.NewField().WithName("vector").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.dim)))

		if err := s.mc.CreateCollection(ctx, schema, int32(2)); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}

	idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
	if err != nil {
		return fmt.Errorf("new hnsw index: %w", err)
	}
	if err := s.mc.CreateIndex(ctx, s.coll, "vector", idx, false, client.WithIndexName("idx_vector")); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if err := s.mc.LoadCollection(ctx, s.coll, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return nil
}

// Upsert replaces any existing row per chunk ID, including its model_id, so
// vectors from an old embedding model cannot linger beside fresh ones.
func (s *MilvusIndex) Upsert(ctx context.Context, recs []ChunkRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	chunkIDs := make([]string, 0, len(recs))
	videoIDs := make([]string, 0, len(recs))
	starts := make([]float64, 0, len(recs))
	ends := make([]float64, 0, len(recs))
	texts := make([]string, 0, len(recs))
	frames := make([]string, 0, len(recs))
	models := make([]string, 0, len(recs))
	vectors := make([][]float32, 0, len(recs))

	for _, r := range recs {
		chunkIDs = append(chunkIDs, r.Chunk.ID)
		videoIDs = append(videoIDs, r.Chunk.VideoID)
		starts = append(starts, r.Chunk.Start)
		ends = append(ends, r.Chunk.End)
		texts = append(texts, r.Chunk.Text)
		frames = append(frames, r.Chunk.FramePath)
		models = append(models, r.ModelID)
		vectors = append(vectors, r.Embedding)
	}

	_, err := s.mc.Upsert(ctx, s.coll, "",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnVarChar("video_id", videoIDs),
		entity.NewColumnDouble("start", starts),
		entity.NewColumnDouble("end", ends),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnVarChar("frame_path", frames),
		entity.NewColumnVarChar("model_id", models),
		entity.NewColumnFloatVector("vector", s.dim, vectors),
	)
	if err != nil {
		return 0, fmt.Errorf("milvus upsert: %w", err)
	}
	return len(recs), nil
}

func (s *MilvusIndex) Search(ctx context.Context, vector []float32, k int) ([]Candidate, error) {
	if k <= 0 {
		k = 5
	}
	sp, _ := entity.NewIndexHNSWSearchParam(74)
	res, err := s.mc.Search(ctx, s.coll, []string{}, "",
		[]string{"chunk_id", "video_id", "start", "end", "text", "frame_path"},
		[]entity.Vector{entity.FloatVector(vector)},
		"vector", entity.COSINE, k, sp)
	if err != nil {
		return nil, fmt.Errorf("milvus search: %w", err)
	}

	var cands []Candidate
	for _, r := range res {
		cols := map[string]entity.Column{}
		for _, c := range r.Fields {
			cols[c.Name()] = c
		}
		for i := 0; i < r.ResultCount; i++ {
			c := Candidate{Score: float64(r.Scores[i])}
			c.ChunkID = varcharAt(cols["chunk_id"], i)
			c.VideoID = varcharAt(cols["video_id"], i)
			c.Start = doubleAt(cols["start"], i)
			c.End = doubleAt(cols["end"], i)
			c.Text = varcharAt(cols["text"], i)
			c.FramePath = varcharAt(cols["frame_path"], i)
			cands = append(cands, c)
		}
	}
	return cands, nil
}

func (s *MilvusIndex) Close(ctx context.Context) error {
	return s.mc.Close()
}

func varcharAt(col entity.Column, i int) string {
	if c, ok := col.(*entity.ColumnVarChar); ok {
		data := c.Data()
		if i < len(data) {
			return data[i]
		}
	}
	return ""
}

func doubleAt(col entity.Column, i int) float64 {
	if c, ok := col.(*entity.ColumnDouble); ok {
		data := c.Data()
		if i < len(data) {
			return data[i]
		}
	}
	return 0
}
