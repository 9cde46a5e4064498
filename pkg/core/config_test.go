package core_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	evermem "github.com/evermem/evermem-go/pkg/core"
)

// validConfig returns a configuration with exactly one provider per group.
func validConfig() *evermem.Config {
	return &evermem.Config{
		LLM: evermem.LLMConfig{
			OpenAI: &evermem.OpenAILLMConfig{APIKey: "sk-test"},
		},
		Embedding: evermem.EmbeddingConfig{
			OpenAI: &evermem.OpenAIEmbeddingConfig{APIKey: "sk-test", Dimensions: 1536},
		},
		Storage: evermem.StorageConfig{
			SQLite: &evermem.SQLiteConfig{DBPath: "./test.db"},
		},
		Vector: evermem.VectorConfig{
			Flat: &evermem.FlatVectorConfig{Dimension: 1536},
		},
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestConfigValidate_NoProviderInGroup(t *testing.T) {
	config := validConfig()
	config.LLM = evermem.LLMConfig{}

	err := config.Validate()
	assert.Error(t, err)
	assert.True(t, errors.Is(err, evermem.ErrInvalidConfig))
	assert.Contains(t, err.Error(), "llm group")
	assert.Contains(t, err.Error(), "0 provider choices")
}

func TestConfigValidate_TwoProvidersInGroup(t *testing.T) {
	config := validConfig()
	config.Embedding.Gemini = &evermem.GeminiEmbeddingConfig{APIKey: "g-test", Dimensions: 768}

	err := config.Validate()
	assert.Error(t, err)
	assert.True(t, errors.Is(err, evermem.ErrInvalidConfig))
	assert.Contains(t, err.Error(), "embedding group")
	assert.Contains(t, err.Error(), "2 provider choices")
}

func TestConfigValidate_EveryGroupChecked(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*evermem.Config)
		group  string
	}{
		{
			name:   "storage empty",
			mutate: func(c *evermem.Config) { c.Storage = evermem.StorageConfig{} },
			group:  "storage group",
		},
		{
			name:   "vector empty",
			mutate: func(c *evermem.Config) { c.Vector = evermem.VectorConfig{} },
			group:  "vector group",
		},
		{
			name: "storage double",
			mutate: func(c *evermem.Config) {
				c.Storage.Postgres = &evermem.PostgresConfig{Host: "localhost", Port: 5432}
			},
			group: "storage group",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(config)

			err := config.Validate()
			assert.Error(t, err)
			assert.True(t, errors.Is(err, evermem.ErrInvalidConfig))
			assert.Contains(t, err.Error(), tt.group)
		})
	}
}

func TestConfigValidate_DimensionMustBePositive(t *testing.T) {
	config := validConfig()
	config.Vector.Flat.Dimension = 0

	err := config.Validate()
	assert.Error(t, err)
	assert.True(t, errors.Is(err, evermem.ErrInvalidConfig))
	assert.Contains(t, err.Error(), "dimension")
}

// clearEnvDefaults pins every variable the loader reads to the empty string
// so values from a discovered .env file cannot leak into assertions.
func clearEnvDefaults(t *testing.T) {
	t.Helper()
	keys := []string{
		"EVERMEM_LLM_PROVIDER", "EVERMEM_LLM_API_KEY", "EVERMEM_LLM_MODEL", "EVERMEM_LLM_BASE_URL",
		"EVERMEM_EMBEDDING_PROVIDER", "EVERMEM_EMBEDDING_API_KEY", "EVERMEM_EMBEDDING_MODEL",
		"EVERMEM_EMBEDDING_BASE_URL", "EVERMEM_EMBEDDING_DIMENSIONS",
		"EVERMEM_STORAGE_PROVIDER", "EVERMEM_SQLITE_PATH",
		"EVERMEM_VECTOR_DIMENSION", "EVERMEM_VECTOR_INDEX_PATH", "EVERMEM_VECTOR_INDEX_TYPE",
		"EVERMEM_DEBUG",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	clearEnvDefaults(t)
	t.Setenv("EVERMEM_LLM_PROVIDER", "anthropic")
	t.Setenv("EVERMEM_LLM_API_KEY", "sk-ant-test")
	t.Setenv("EVERMEM_LLM_MODEL", "claude-3-5-sonnet-20240620")
	t.Setenv("EVERMEM_EMBEDDING_PROVIDER", "gemini")
	t.Setenv("EVERMEM_EMBEDDING_API_KEY", "g-test")
	t.Setenv("EVERMEM_STORAGE_PROVIDER", "sqlite")
	t.Setenv("EVERMEM_SQLITE_PATH", "./custom.db")
	t.Setenv("EVERMEM_DEBUG", "true")

	config, err := evermem.LoadConfigFromEnv()
	require.NoError(t, err)

	require.NotNil(t, config.LLM.Anthropic)
	assert.Equal(t, "sk-ant-test", config.LLM.Anthropic.APIKey)
	assert.Equal(t, "claude-3-5-sonnet-20240620", config.LLM.Anthropic.Model)

	require.NotNil(t, config.Embedding.Gemini)
	assert.Equal(t, 768, config.Embedding.Gemini.Dimensions)

	require.NotNil(t, config.Storage.SQLite)
	assert.Equal(t, "./custom.db", config.Storage.SQLite.DBPath)

	// The index dimension follows the embedding dimension by default.
	require.NotNil(t, config.Vector.Flat)
	assert.Equal(t, 768, config.Vector.Flat.Dimension)
	assert.Equal(t, "./memory_index", config.Vector.Flat.IndexPath)
	assert.Equal(t, "L2", config.Vector.Flat.IndexType)

	assert.True(t, config.Debug)
	assert.NoError(t, config.Validate())
}

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	clearEnvDefaults(t)

	config, err := evermem.LoadConfigFromEnv()
	require.NoError(t, err)

	require.NotNil(t, config.LLM.OpenAI)
	require.NotNil(t, config.Embedding.OpenAI)
	assert.Equal(t, 1536, config.Embedding.OpenAI.Dimensions)
	require.NotNil(t, config.Storage.SQLite)
	assert.Equal(t, "./evermem.db", config.Storage.SQLite.DBPath)
	require.NotNil(t, config.Vector.Flat)
	assert.Equal(t, 1536, config.Vector.Flat.Dimension)
}

func TestLoadConfigFromEnv_UnknownProvider(t *testing.T) {
	clearEnvDefaults(t)
	t.Setenv("EVERMEM_LLM_PROVIDER", "sorcery")

	_, err := evermem.LoadConfigFromEnv()
	assert.Error(t, err)
	assert.True(t, errors.Is(err, evermem.ErrInvalidConfig))
	assert.Contains(t, err.Error(), "sorcery")
}

func TestLoadConfigFromJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
  "llm": {"openai": {"api_key": "sk-test", "model": "gpt-4o-mini"}},
  "embedding": {"openai": {"api_key": "sk-test", "dimensions": 1536}},
  "storage": {"sqlite": {"db_path": "./from_json.db"}},
  "vector": {"flat": {"dimension": 1536, "index_type": "COSINE"}}
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	config, err := evermem.LoadConfigFromJSON(path)
	require.NoError(t, err)

	require.NotNil(t, config.LLM.OpenAI)
	assert.Equal(t, "gpt-4o-mini", config.LLM.OpenAI.Model)
	require.NotNil(t, config.Storage.SQLite)
	assert.Equal(t, "./from_json.db", config.Storage.SQLite.DBPath)
	require.NotNil(t, config.Vector.Flat)
	assert.Equal(t, "COSINE", config.Vector.Flat.IndexType)
	assert.NoError(t, config.Validate())
}

func TestLoadConfigFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `llm:
  ollama:
    model: llama3.1:70b
    base_url: http://localhost:11434
embedding:
  huggingface:
    api_key: hf-test
    dimensions: 384
storage:
  postgres:
    host: localhost
    port: 5432
    user: postgres
    db_name: evermem
vector:
  flat:
    dimension: 384
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	config, err := evermem.LoadConfigFromYAML(path)
	require.NoError(t, err)

	require.NotNil(t, config.LLM.Ollama)
	assert.Equal(t, "http://localhost:11434", config.LLM.Ollama.BaseURL)
	require.NotNil(t, config.Embedding.HuggingFace)
	assert.Equal(t, 384, config.Embedding.HuggingFace.Dimensions)
	require.NotNil(t, config.Storage.Postgres)
	assert.Equal(t, 5432, config.Storage.Postgres.Port)
	assert.NoError(t, config.Validate())
}

func TestLoadConfigFromJSON_MissingFile(t *testing.T) {
	_, err := evermem.LoadConfigFromJSON(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
