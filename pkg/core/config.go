// Package core provides the main EverMem client and the memory pipeline.
package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config contains the complete configuration for an EverMem client.
//
// Each of the four groups (LLM, Embedding, Storage, Vector) carries one
// optional pointer per supported provider; exactly one pointer per group
// must be set. Validate enforces this before any connection is opened.
//
// Example:
//
//	config := &core.Config{
//	    LLM: core.LLMConfig{
//	        OpenAI: &core.OpenAILLMConfig{APIKey: "sk-...", Model: "gpt-4o-mini"},
//	    },
//	    Embedding: core.EmbeddingConfig{
//	        OpenAI: &core.OpenAIEmbeddingConfig{APIKey: "sk-...", Dimensions: 1536},
//	    },
//	    Storage: core.StorageConfig{
//	        SQLite: &core.SQLiteConfig{DBPath: "./evermem.db"},
//	    },
//	    Vector: core.VectorConfig{
//	        Flat: &core.FlatVectorConfig{Dimension: 1536},
//	    },
//	}
type Config struct {
	// LLM selects and configures the LLM provider.
	LLM LLMConfig `json:"llm" yaml:"llm"`

	// Embedding selects and configures the embedding provider.
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding"`

	// Storage selects and configures the metadata store.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Vector selects and configures the vector index.
	Vector VectorConfig `json:"vector" yaml:"vector"`

	// Debug switches logging to the verbose development configuration.
	Debug bool `json:"debug,omitempty" yaml:"debug,omitempty"`
}

// LLMConfig selects the LLM provider. Exactly one field must be non-nil.
type LLMConfig struct {
	OpenAI    *OpenAILLMConfig    `json:"openai,omitempty" yaml:"openai,omitempty"`
	Gemini    *GeminiLLMConfig    `json:"gemini,omitempty" yaml:"gemini,omitempty"`
	Anthropic *AnthropicLLMConfig `json:"anthropic,omitempty" yaml:"anthropic,omitempty"`
	Ollama    *OllamaLLMConfig    `json:"ollama,omitempty" yaml:"ollama,omitempty"`
}

// OpenAILLMConfig configures the OpenAI chat-completions provider.
type OpenAILLMConfig struct {
	// APIKey is the OpenAI API key (required).
	APIKey string `json:"api_key" yaml:"api_key"`

	// Model is the model name (default: "gpt-4o-mini").
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// BaseURL overrides the API endpoint, e.g. for a compatible gateway.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// GeminiLLMConfig configures the Google Gemini provider.
type GeminiLLMConfig struct {
	// APIKey is the Google AI Studio API key (required).
	APIKey string `json:"api_key" yaml:"api_key"`

	// Model is the model name (default: "gemini-2.0-flash").
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// BaseURL overrides the API endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// AnthropicLLMConfig configures the Anthropic Messages API provider.
type AnthropicLLMConfig struct {
	// APIKey is the Anthropic API key (required).
	APIKey string `json:"api_key" yaml:"api_key"`

	// Model is the model name (default: "claude-3-5-sonnet-20240620").
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// BaseURL overrides the API endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// OllamaLLMConfig configures a local Ollama server.
type OllamaLLMConfig struct {
	// APIKey is an optional bearer token for proxied deployments.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Model is the model name (default: "llama3.1:70b").
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// BaseURL is the server address (default: "http://localhost:11434").
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// EmbeddingConfig selects the embedding provider. Exactly one field must
// be non-nil.
type EmbeddingConfig struct {
	OpenAI      *OpenAIEmbeddingConfig      `json:"openai,omitempty" yaml:"openai,omitempty"`
	Gemini      *GeminiEmbeddingConfig      `json:"gemini,omitempty" yaml:"gemini,omitempty"`
	HuggingFace *HuggingFaceEmbeddingConfig `json:"huggingface,omitempty" yaml:"huggingface,omitempty"`
}

// OpenAIEmbeddingConfig configures the OpenAI embeddings provider.
type OpenAIEmbeddingConfig struct {
	// APIKey is the OpenAI API key (required).
	APIKey string `json:"api_key" yaml:"api_key"`

	// Model is the embedding model name (default: "text-embedding-3-small").
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// BaseURL overrides the API endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Dimensions is the vector dimension (default: 1536).
	Dimensions int `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
}

// GeminiEmbeddingConfig configures the Google Gemini embeddings provider.
type GeminiEmbeddingConfig struct {
	// APIKey is the Google AI Studio API key (required).
	APIKey string `json:"api_key" yaml:"api_key"`

	// Model is the embedding model name (default: "text-embedding-004").
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// BaseURL overrides the API endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Dimensions is the vector dimension (default: 768).
	Dimensions int `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
}

// HuggingFaceEmbeddingConfig configures the HuggingFace Inference API
// feature-extraction provider.
type HuggingFaceEmbeddingConfig struct {
	// APIKey is the HuggingFace access token (required).
	APIKey string `json:"api_key" yaml:"api_key"`

	// Model is the model repository id
	// (default: "sentence-transformers/all-MiniLM-L6-v2").
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// BaseURL overrides the API endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Dimensions is the vector dimension (default: 384).
	Dimensions int `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
}

// StorageConfig selects the metadata store. Exactly one field must be
// non-nil.
type StorageConfig struct {
	SQLite   *SQLiteConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`
	Postgres *PostgresConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"`
	MySQL    *MySQLConfig    `json:"mysql,omitempty" yaml:"mysql,omitempty"`
}

// SQLiteConfig configures the SQLite metadata store.
type SQLiteConfig struct {
	// DBPath is the database file path (default: "./evermem.db").
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// PostgresConfig configures the PostgreSQL metadata store.
type PostgresConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"db_name" yaml:"db_name"`
	SSLMode  string `json:"ssl_mode,omitempty" yaml:"ssl_mode,omitempty"`
}

// MySQLConfig configures the MySQL metadata store. Works with
// MySQL-compatible databases such as MariaDB and OceanBase.
type MySQLConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"db_name" yaml:"db_name"`
}

// VectorConfig selects the vector index. Exactly one field must be
// non-nil.
type VectorConfig struct {
	Flat *FlatVectorConfig `json:"flat,omitempty" yaml:"flat,omitempty"`
}

// FlatVectorConfig configures the flat exact-scan vector index.
type FlatVectorConfig struct {
	// Dimension is the vector dimension D (required). It must match the
	// embedding provider's dimension.
	Dimension int `json:"dimension" yaml:"dimension"`

	// IndexPath is where the index blob and its payload side-table are
	// persisted (default: "./memory_index").
	IndexPath string `json:"index_path,omitempty" yaml:"index_path,omitempty"`

	// IndexType is the similarity metric: "L2", "IP" or "COSINE"
	// (default: "L2").
	IndexType string `json:"index_type,omitempty" yaml:"index_type,omitempty"`
}

// Validate validates the configuration.
//
// Each of the llm, embedding, storage and vector groups must carry
// exactly one provider choice, and the vector dimension must be positive.
//
// Returns an error naming the offending group, nil otherwise.
func (c *Config) Validate() error {
	if n := countSet(c.LLM.OpenAI != nil, c.LLM.Gemini != nil, c.LLM.Anthropic != nil, c.LLM.Ollama != nil); n != 1 {
		return NewMemoryError("Validate", fmt.Errorf("%w: llm group carries %d provider choices, want exactly 1", ErrInvalidConfig, n))
	}
	if n := countSet(c.Embedding.OpenAI != nil, c.Embedding.Gemini != nil, c.Embedding.HuggingFace != nil); n != 1 {
		return NewMemoryError("Validate", fmt.Errorf("%w: embedding group carries %d provider choices, want exactly 1", ErrInvalidConfig, n))
	}
	if n := countSet(c.Storage.SQLite != nil, c.Storage.Postgres != nil, c.Storage.MySQL != nil); n != 1 {
		return NewMemoryError("Validate", fmt.Errorf("%w: storage group carries %d provider choices, want exactly 1", ErrInvalidConfig, n))
	}
	if n := countSet(c.Vector.Flat != nil); n != 1 {
		return NewMemoryError("Validate", fmt.Errorf("%w: vector group carries %d provider choices, want exactly 1", ErrInvalidConfig, n))
	}
	if c.Vector.Flat.Dimension <= 0 {
		return NewMemoryError("Validate", fmt.Errorf("%w: vector dimension must be positive", ErrInvalidConfig))
	}
	return nil
}

// countSet counts how many of the given flags are true.
func countSet(flags ...bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables into a Config struct
//
// Supported environment variables:
//   - EVERMEM_LLM_PROVIDER (openai, gemini, anthropic, ollama)
//   - EVERMEM_LLM_API_KEY, EVERMEM_LLM_MODEL, EVERMEM_LLM_BASE_URL
//   - EVERMEM_EMBEDDING_PROVIDER (openai, gemini, huggingface)
//   - EVERMEM_EMBEDDING_API_KEY, EVERMEM_EMBEDDING_MODEL,
//     EVERMEM_EMBEDDING_BASE_URL, EVERMEM_EMBEDDING_DIMENSIONS
//   - EVERMEM_STORAGE_PROVIDER (sqlite, postgres, mysql)
//   - EVERMEM_SQLITE_PATH
//   - EVERMEM_POSTGRES_HOST, EVERMEM_POSTGRES_PORT, EVERMEM_POSTGRES_USER,
//     EVERMEM_POSTGRES_PASSWORD, EVERMEM_POSTGRES_DATABASE,
//     EVERMEM_POSTGRES_SSLMODE
//   - EVERMEM_MYSQL_HOST, EVERMEM_MYSQL_PORT, EVERMEM_MYSQL_USER,
//     EVERMEM_MYSQL_PASSWORD, EVERMEM_MYSQL_DATABASE
//   - EVERMEM_VECTOR_DIMENSION, EVERMEM_VECTOR_INDEX_PATH,
//     EVERMEM_VECTOR_INDEX_TYPE
//   - EVERMEM_DEBUG ("true" enables debug logging)
//
// Returns a Config instance, or an error if loading fails.
//
// Example:
//
//	config, err := core.LoadConfigFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
func LoadConfigFromEnv() (*Config, error) {
	// Use FindEnvFile to locate .env file (supports upward search)
	if envPath, found := FindEnvFile(); found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	config := &Config{
		Debug: os.Getenv("EVERMEM_DEBUG") == "true",
	}

	llmProvider := getEnvOrDefault("EVERMEM_LLM_PROVIDER", "openai")
	llmAPIKey := os.Getenv("EVERMEM_LLM_API_KEY")
	llmModel := os.Getenv("EVERMEM_LLM_MODEL")
	llmBaseURL := os.Getenv("EVERMEM_LLM_BASE_URL")

	switch llmProvider {
	case "openai":
		config.LLM.OpenAI = &OpenAILLMConfig{APIKey: llmAPIKey, Model: llmModel, BaseURL: llmBaseURL}
	case "gemini":
		config.LLM.Gemini = &GeminiLLMConfig{APIKey: llmAPIKey, Model: llmModel, BaseURL: llmBaseURL}
	case "anthropic":
		config.LLM.Anthropic = &AnthropicLLMConfig{APIKey: llmAPIKey, Model: llmModel, BaseURL: llmBaseURL}
	case "ollama":
		config.LLM.Ollama = &OllamaLLMConfig{APIKey: llmAPIKey, Model: llmModel, BaseURL: llmBaseURL}
	default:
		return nil, NewMemoryError("LoadConfigFromEnv", fmt.Errorf("%w: unknown llm provider %q", ErrInvalidConfig, llmProvider))
	}

	embeddingProvider := getEnvOrDefault("EVERMEM_EMBEDDING_PROVIDER", "openai")
	embeddingAPIKey := os.Getenv("EVERMEM_EMBEDDING_API_KEY")
	embeddingModel := os.Getenv("EVERMEM_EMBEDDING_MODEL")
	embeddingBaseURL := os.Getenv("EVERMEM_EMBEDDING_BASE_URL")
	dims, _ := strconv.Atoi(getEnvOrDefault("EVERMEM_EMBEDDING_DIMENSIONS", "0"))

	switch embeddingProvider {
	case "openai":
		if dims == 0 {
			dims = 1536
		}
		config.Embedding.OpenAI = &OpenAIEmbeddingConfig{APIKey: embeddingAPIKey, Model: embeddingModel, BaseURL: embeddingBaseURL, Dimensions: dims}
	case "gemini":
		if dims == 0 {
			dims = 768
		}
		config.Embedding.Gemini = &GeminiEmbeddingConfig{APIKey: embeddingAPIKey, Model: embeddingModel, BaseURL: embeddingBaseURL, Dimensions: dims}
	case "huggingface":
		if dims == 0 {
			dims = 384
		}
		config.Embedding.HuggingFace = &HuggingFaceEmbeddingConfig{APIKey: embeddingAPIKey, Model: embeddingModel, BaseURL: embeddingBaseURL, Dimensions: dims}
	default:
		return nil, NewMemoryError("LoadConfigFromEnv", fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, embeddingProvider))
	}

	storageProvider := getEnvOrDefault("EVERMEM_STORAGE_PROVIDER", "sqlite")
	switch storageProvider {
	case "sqlite":
		config.Storage.SQLite = &SQLiteConfig{
			DBPath: getEnvOrDefault("EVERMEM_SQLITE_PATH", "./evermem.db"),
		}
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("EVERMEM_POSTGRES_PORT", "5432"))
		config.Storage.Postgres = &PostgresConfig{
			Host:     getEnvOrDefault("EVERMEM_POSTGRES_HOST", "localhost"),
			Port:     port,
			User:     getEnvOrDefault("EVERMEM_POSTGRES_USER", "postgres"),
			Password: os.Getenv("EVERMEM_POSTGRES_PASSWORD"),
			DBName:   getEnvOrDefault("EVERMEM_POSTGRES_DATABASE", "evermem"),
			SSLMode:  getEnvOrDefault("EVERMEM_POSTGRES_SSLMODE", "disable"),
		}
	case "mysql":
		port, _ := strconv.Atoi(getEnvOrDefault("EVERMEM_MYSQL_PORT", "3306"))
		config.Storage.MySQL = &MySQLConfig{
			Host:     getEnvOrDefault("EVERMEM_MYSQL_HOST", "127.0.0.1"),
			Port:     port,
			User:     getEnvOrDefault("EVERMEM_MYSQL_USER", "root"),
			Password: os.Getenv("EVERMEM_MYSQL_PASSWORD"),
			DBName:   getEnvOrDefault("EVERMEM_MYSQL_DATABASE", "evermem"),
		}
	default:
		return nil, NewMemoryError("LoadConfigFromEnv", fmt.Errorf("%w: unknown storage provider %q", ErrInvalidConfig, storageProvider))
	}

	// The index dimension follows the embedding dimension unless set
	// explicitly.
	vecDim, _ := strconv.Atoi(getEnvOrDefault("EVERMEM_VECTOR_DIMENSION", strconv.Itoa(dims)))
	config.Vector.Flat = &FlatVectorConfig{
		Dimension: vecDim,
		IndexPath: getEnvOrDefault("EVERMEM_VECTOR_INDEX_PATH", "./memory_index"),
		IndexType: getEnvOrDefault("EVERMEM_VECTOR_INDEX_TYPE", "L2"),
	}

	return config, nil
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
//
// Parameters:
//   - envPath: Path to the .env file
//
// Returns a Config instance, or an error if loading fails.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, NewMemoryError("LoadConfigFromEnvFile", err)
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file.
//
// Parameters:
//   - path: Path to the JSON configuration file
//
// Returns a Config instance, or an error if loading or parsing fails.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}

	return &config, nil
}

// LoadConfigFromYAML loads configuration from a YAML file.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns a Config instance, or an error if loading or parsing fails.
func LoadConfigFromYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewMemoryError("LoadConfigFromYAML", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, NewMemoryError("LoadConfigFromYAML", err)
	}

	return &config, nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
//
// Returns:
//   - path: Path to the found file (empty if not found)
//   - found: True if a file was found, false otherwise
func FindEnvFile() (string, bool) {
	// First check the current directory
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	// Check project root directory (search upward)
	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
