package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Index.Backend)
	assert.Equal(t, 600, cfg.Ingest.ChunkSize)
	assert.Equal(t, 0, cfg.Ingest.ChunkOverlap)
	assert.Equal(t, 3, cfg.Retrieval.DefaultCount)
	assert.Equal(t, 0.5, cfg.Retrieval.MinScore)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.Empty(t, cfg.LLM.APIKey)
	assert.Empty(t, cfg.Index.APIKey)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr())
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout())
	assert.Equal(t, int64(50<<20), cfg.MaxUploadBytes())
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[index]
backend = "pinecone"
host_template = "https://{name}-abc.svc.pinecone.io"

[index.hosts]
biology = "https://bio.example"

[retrieval]
min_score = 0.6

[retrieval.sharded]
history = "history-ch"
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("RETRIEVAL_MIN_SCORE", "0.7")
	t.Setenv("LLM_API_KEY", "llm-key")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("APP_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "pinecone", cfg.Index.Backend)
	assert.Equal(t, "https://bio.example", cfg.Index.Hosts["biology"])
	assert.Equal(t, "history-ch", cfg.Retrieval.Sharded["history"])
	assert.Equal(t, 0.7, cfg.Retrieval.MinScore)
	assert.Equal(t, "llm-key", cfg.Embedding.APIKey)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 8080, cfg.App.Port)
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Index.Backend = "qdrant"
	assert.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.Index.Backend = "mysql"
	assert.Error(t, cfg.Validate())
	cfg.MySQL.Enabled = true
	assert.NoError(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.Ingest.ChunkOverlap = cfg.Ingest.ChunkSize
	assert.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.Retrieval.DefaultCount = 21
	assert.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.Retrieval.MinScore = 0
	assert.NoError(t, cfg.Validate())
	cfg.Retrieval.MinScore = 1.5
	assert.Error(t, cfg.Validate())
}

func TestZeroMinScoreFromEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "does-not-exist.toml")
	t.Setenv("RETRIEVAL_MIN_SCORE", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.Retrieval.MinScore)
}
