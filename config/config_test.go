package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := defaultConfig()

	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, 30.0, cfg.MaxChunkSec)
	assert.Equal(t, 2.0, cfg.SilenceGapSec)
	assert.Equal(t, 3, cfg.OverfetchFactor)
	assert.Equal(t, 0.5, cfg.ClipSnapSec)
	assert.Equal(t, 10*time.Second, cfg.EmbedTimeout())
	assert.Equal(t, 30*time.Second, cfg.GenerateTimeout())
	assert.Equal(t, int64(2048)*1024*1024, cfg.ClipCacheMaxBytes())
	assert.Equal(t, 24*time.Hour, cfg.ClipCacheMaxAge())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STORE", "pgvector")
	t.Setenv("MAX_CHUNK_SEC", "45.5")
	t.Setenv("OVERFETCH_FACTOR", "5")
	t.Setenv("CLIP_CACHE_MAX_MB", "512")
	t.Setenv("PORT", "9090")

	cfg := defaultConfig()
	applyEnv(cfg)

	assert.Equal(t, "pgvector", cfg.Store)
	assert.Equal(t, 45.5, cfg.MaxChunkSec)
	assert.Equal(t, 5, cfg.OverfetchFactor)
	assert.Equal(t, int64(512), cfg.ClipCacheMaxMB)
	assert.Equal(t, "9090", cfg.Port)
}

func TestEnvIgnoresUnparsableValues(t *testing.T) {
	t.Setenv("MAX_CHUNK_SEC", "not-a-number")

	cfg := defaultConfig()
	applyEnv(cfg)
	assert.Equal(t, 30.0, cfg.MaxChunkSec)
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Store = "cassandra"
	assert.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.OverfetchFactor = 0
	assert.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.Store = "pgvector"
	cfg.APIKey = ""
	assert.Error(t, cfg.Validate(), "non-memory store needs API credentials")

	cfg.APIKey = "sk-test"
	assert.NoError(t, cfg.Validate())
}

func TestHasValidAPI(t *testing.T) {
	cfg := defaultConfig()
	assert.False(t, cfg.HasValidAPI())
	cfg.APIKey = "  "
	assert.False(t, cfg.HasValidAPI())
	cfg.APIKey = "sk-test"
	assert.True(t, cfg.HasValidAPI())
}
