package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	openai "github.com/sashabaranov/go-openai"

	"vidquest/config"
)

// Embedder turns text into a fixed-length vector. Deterministic for a fixed
// model version; may fail transiently.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// Generator produces text from a prompt. Idempotent to call repeatedly.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// NewOpenAIClient builds a client against the configured OpenAI-compatible
// endpoint.
func NewOpenAIClient(cfg *config.Config) *openai.Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}

// OpenAIEmbedder calls the embeddings endpoint.
type OpenAIEmbedder struct {
	cli   *openai.Client
	model string
}

func NewOpenAIEmbedder(cli *openai.Client, model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{cli: cli, model: model}
}

func (e *OpenAIEmbedder) Model() string { return e.model }

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	}
	resp, err := e.cli.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("embedding API failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return resp.Data[0].Embedding, nil
}

// CachedEmbedder memoizes embeddings in a process-wide TTL cache. Keys
// include the model ID so a model change never serves stale vectors.
type CachedEmbedder struct {
	inner Embedder
	cache *gocache.Cache
}

func NewCachedEmbedder(inner Embedder, ttl, sweep time.Duration) *CachedEmbedder {
	return &CachedEmbedder{
		inner: inner,
		cache: gocache.New(ttl, sweep),
	}
}

func (e *CachedEmbedder) Model() string { return e.inner.Model() }

func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := embedCacheKey(e.inner.Model(), text)
	if v, ok := e.cache.Get(key); ok {
		return v.([]float32), nil
	}
	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(key, vec, gocache.DefaultExpiration)
	return vec, nil
}

func embedCacheKey(model, text string) string {
	sum := md5.Sum([]byte(text))
	return model + ":" + hex.EncodeToString(sum[:])
}

// OpenAIGenerator calls the chat completions endpoint.
type OpenAIGenerator struct {
	cli         *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

func NewOpenAIGenerator(cli *openai.Client, model string) *OpenAIGenerator {
	return &OpenAIGenerator{cli: cli, model: model, maxTokens: 1000, temperature: 0.3}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	}
	resp, err := g.cli.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
