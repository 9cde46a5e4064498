package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/evermem/evermem-go/pkg/embedder"
	geminiEmbedder "github.com/evermem/evermem-go/pkg/embedder/gemini"
	huggingfaceEmbedder "github.com/evermem/evermem-go/pkg/embedder/huggingface"
	openaiEmbedder "github.com/evermem/evermem-go/pkg/embedder/openai"
	"github.com/evermem/evermem-go/pkg/intelligence"
	"github.com/evermem/evermem-go/pkg/llm"
	anthropicLLM "github.com/evermem/evermem-go/pkg/llm/anthropic"
	geminiLLM "github.com/evermem/evermem-go/pkg/llm/gemini"
	ollamaLLM "github.com/evermem/evermem-go/pkg/llm/ollama"
	openaiLLM "github.com/evermem/evermem-go/pkg/llm/openai"
	"github.com/evermem/evermem-go/pkg/logging"
	"github.com/evermem/evermem-go/pkg/storage"
	mysqlStore "github.com/evermem/evermem-go/pkg/storage/mysql"
	postgresStore "github.com/evermem/evermem-go/pkg/storage/postgres"
	sqliteStore "github.com/evermem/evermem-go/pkg/storage/sqlite"
	"github.com/evermem/evermem-go/pkg/vector"
	"github.com/evermem/evermem-go/pkg/vector/flat"
)

// Client is the main EverMem client for long-term memory management.
//
// It owns the full write pipeline (extraction, embedding, neighbor search,
// reconciliation, dual-store execution) and the retrieval path (embedding,
// vector search, metadata hydration).
//
// The client is re-entrant: concurrent Write and Retrieve calls are
// expected. Mutations on the vector index are serialized by the index
// itself; the metadata store relies on its driver's connection pool.
//
// Example usage:
//
//	config, _ := core.LoadConfigFromEnv()
//	client, _ := core.NewClient(config)
//	defer client.Close()
//
//	memories, _ := client.Write(ctx, nil, "I'm vegetarian.", "Got it.",
//	    core.WithUserID("user_001"))
type Client struct {
	// config contains the client configuration.
	config *Config

	// metadata is the relational store holding the memory rows.
	metadata storage.MetadataStore

	// index is the vector index used for neighbor search and retrieval.
	index vector.Index

	// llm is the LLM provider backing extraction and reconciliation.
	llm llm.Provider

	// embedder is the embedding provider for vector generation.
	embedder embedder.Provider

	// extractor mines candidate memories from conversations.
	extractor *intelligence.Extractor

	// reconciler decides and executes ADD/UPDATE/DELETE/NOOP operations.
	reconciler *intelligence.Reconciler

	// node generates unique memory ids.
	node *snowflake.Node

	// dim is the configured vector dimension D.
	dim int

	logger *logging.Logger
}

// NewClient creates a new EverMem client.
//
// The client is initialized with:
//   - Metadata store (SQLite, PostgreSQL, or MySQL); schema is ensured and
//     the connection verified before the constructor returns
//   - Vector index (flat), reloaded from its persisted state
//   - LLM provider (OpenAI, Gemini, Anthropic, Ollama)
//   - Embedding provider (OpenAI, Gemini, HuggingFace)
//
// Configuration errors and unreachable backends are fatal here; no
// pipeline work starts on a half-connected client.
//
// Parameters:
//   - cfg: Configuration with exactly one choice per provider group
//
// Returns a new Client instance, or an error if initialization fails.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, NewMemoryError("NewClient", fmt.Errorf("%w: nil config", ErrInvalidConfig))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config: cfg,
		dim:    cfg.Vector.Flat.Dimension,
		logger: logging.New(cfg.Debug),
	}

	// Release everything already opened when a later step fails.
	ok := false
	defer func() {
		if !ok {
			_ = c.Close()
		}
	}()

	ctx := context.Background()

	store, err := newMetadataStore(&cfg.Storage)
	if err != nil {
		return nil, NewMemoryError("NewClient", fmt.Errorf("%w: %v", ErrConnectionFailed, err))
	}
	c.metadata = store
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, NewMemoryError("NewClient", fmt.Errorf("%w: %v", ErrConnectionFailed, err))
	}
	if err := store.Ping(ctx); err != nil {
		return nil, NewMemoryError("NewClient", fmt.Errorf("%w: %v", ErrConnectionFailed, err))
	}

	index, err := newVectorIndex(cfg.Vector.Flat)
	if err != nil {
		return nil, err
	}
	c.index = index
	if err := index.Ping(ctx); err != nil {
		return nil, NewMemoryError("NewClient", fmt.Errorf("%w: %v", ErrConnectionFailed, err))
	}

	llmProvider, err := newLLMProvider(&cfg.LLM)
	if err != nil {
		return nil, NewMemoryError("NewClient", fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}
	c.llm = llmProvider

	embedderProvider, err := newEmbeddingProvider(&cfg.Embedding)
	if err != nil {
		return nil, NewMemoryError("NewClient", fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}
	c.embedder = embedderProvider

	if d := embedderProvider.Dimensions(); d != c.dim {
		return nil, NewMemoryError("NewClient", fmt.Errorf("%w: embedding dimension %d does not match vector index dimension %d", ErrInvalidConfig, d, c.dim))
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, NewMemoryError("NewClient", err)
	}
	c.node = node

	c.extractor = intelligence.NewExtractor(llmProvider,
		intelligence.WithExtractorIDGenerator(func() string { return node.Generate().String() }),
		intelligence.WithExtractorLogger(c.logger),
	)
	c.reconciler = intelligence.NewReconciler(llmProvider, store, index,
		intelligence.WithReconcilerLogger(c.logger),
	)

	ok = true
	return c, nil
}

// Retrieve returns the memories most similar to the query.
//
// The method:
//  1. Embeds the query
//  2. Searches the vector index with the merged user/payload filter
//  3. Hydrates the hits from the metadata store
//  4. Re-sorts by vector score (descending, ties kept in search order)
//
// Hits whose row has vanished from the metadata store are dropped
// silently. At most topK memories are returned.
//
// Parameters:
//   - ctx: Context for cancellation
//   - query: Search query (text string)
//   - topK: Maximum number of results, must be positive
//   - opts: Optional parameters (UserID, Filter)
//
// Example:
//
//	results, err := client.Retrieve(ctx, "What does the user drink?", 10,
//	    core.WithUserIDForRetrieve("user_001"))
func (c *Client) Retrieve(ctx context.Context, query string, topK int, opts ...RetrieveOption) ([]*Memory, error) {
	if topK <= 0 {
		return nil, NewMemoryError("Retrieve", fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidInput, topK))
	}
	retrieveOpts := applyRetrieveOptions(opts)

	queryVec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, NewMemoryError("Retrieve", fmt.Errorf("%w: %v", ErrEmbeddingFailure, err))
	}
	if len(queryVec) != c.dim {
		return nil, NewMemoryError("Retrieve", fmt.Errorf("%w: query embedding has dimension %d, want %d", ErrEmbeddingFailure, len(queryVec), c.dim))
	}

	hits, err := c.index.Search(ctx, queryVec, topK, retrieveOpts.searchFilter())
	if err != nil {
		return nil, NewMemoryError("Retrieve", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	for i, hit := range hits {
		ids[i] = hit.ID
	}
	rows, err := c.metadata.GetByIDs(ctx, ids)
	if err != nil {
		return nil, NewMemoryError("Retrieve", err)
	}
	byID := make(map[string]*storage.Memory, len(rows))
	for _, row := range rows {
		byID[row.MemoryID] = row
	}

	type scoredMemory struct {
		memory *Memory
		score  float64
	}
	scored := make([]scoredMemory, 0, len(hits))
	for _, hit := range hits {
		row, found := byID[hit.ID]
		if !found {
			c.logger.Debug("dropping vector hit without metadata row", "memory_id", hit.ID)
			continue
		}
		scored = append(scored, scoredMemory{memory: fromStorageMemory(row), score: hit.Score})
	}

	// The stable sort keeps the index's result order for equal scores.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}

	memories := make([]*Memory, len(scored))
	for i, s := range scored {
		memories[i] = s.memory
	}
	return memories, nil
}

// ForgetUser removes every memory owned by the given user from both
// stores.
//
// Returns the number of rows the metadata store reported deleted, or an
// error if either store failed. A failure after the first deletion leaves
// the stores partially cleared; rerunning the call is safe.
//
// Example:
//
//	deleted, err := client.ForgetUser(ctx, "user_001")
func (c *Client) ForgetUser(ctx context.Context, userID string) (int, error) {
	count, err := c.metadata.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, NewMemoryError("ForgetUser", err)
	}
	vectors, err := c.index.DeleteAllForUser(ctx, userID)
	if err != nil {
		return count, NewMemoryError("ForgetUser", err)
	}
	c.logger.Debug("forgot user", "user_id", userID, "rows", count, "vectors", vectors)
	return count, nil
}

// LLM exposes the configured language model provider so callers can layer
// their own prompting on top of the memory service, as the evaluation
// harness and the chat example do.
func (c *Client) LLM() llm.Provider {
	return c.llm
}

// Ping verifies both backing stores with a trivial round-trip.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.metadata.Ping(ctx); err != nil {
		return NewMemoryError("Ping", fmt.Errorf("%w: %v", ErrConnectionFailed, err))
	}
	if err := c.index.Ping(ctx); err != nil {
		return NewMemoryError("Ping", fmt.Errorf("%w: %v", ErrConnectionFailed, err))
	}
	return nil
}

// Close closes the client and releases all resources.
//
// This method:
//   - Closes the metadata store connection
//   - Closes the vector index
//   - Closes the LLM and embedding providers
//
// Returns the first error encountered during cleanup, or nil if all
// resources were closed successfully.
//
// Example:
//
//	defer client.Close()
func (c *Client) Close() error {
	var errs []error

	if c.metadata != nil {
		if err := c.metadata.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.index != nil {
		if err := c.index.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.llm != nil {
		if err := c.llm.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.embedder != nil {
		if err := c.embedder.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.logger != nil {
		_ = c.logger.Sync()
	}

	if len(errs) > 0 {
		return errs[0] // Return the first error
	}

	return nil
}

// newMetadataStore initializes the metadata store backend.
func newMetadataStore(cfg *StorageConfig) (storage.MetadataStore, error) {
	switch {
	case cfg.SQLite != nil:
		dbPath := cfg.SQLite.DBPath
		if dbPath == "" {
			dbPath = "./evermem.db"
		}
		return sqliteStore.NewClient(&sqliteStore.Config{DBPath: dbPath})
	case cfg.Postgres != nil:
		return postgresStore.NewClient(&postgresStore.Config{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			DBName:   cfg.Postgres.DBName,
			SSLMode:  cfg.Postgres.SSLMode,
		})
	case cfg.MySQL != nil:
		return mysqlStore.NewClient(&mysqlStore.Config{
			Host:     cfg.MySQL.Host,
			Port:     cfg.MySQL.Port,
			User:     cfg.MySQL.User,
			Password: cfg.MySQL.Password,
			DBName:   cfg.MySQL.DBName,
		})
	default:
		return nil, ErrInvalidConfig
	}
}

// newVectorIndex initializes the vector index backend.
func newVectorIndex(cfg *FlatVectorConfig) (vector.Index, error) {
	metric, err := vector.ParseMetric(cfg.IndexType)
	if err != nil {
		return nil, NewMemoryError("NewClient", fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}
	index, err := flat.New(&flat.Config{
		Dimension: cfg.Dimension,
		IndexPath: cfg.IndexPath,
		Metric:    metric,
	})
	if err != nil {
		return nil, NewMemoryError("NewClient", fmt.Errorf("%w: %v", ErrConnectionFailed, err))
	}
	return index, nil
}

// newLLMProvider initializes the LLM provider.
func newLLMProvider(cfg *LLMConfig) (llm.Provider, error) {
	switch {
	case cfg.OpenAI != nil:
		return openaiLLM.NewClient(&openaiLLM.Config{
			APIKey:  cfg.OpenAI.APIKey,
			Model:   cfg.OpenAI.Model,
			BaseURL: cfg.OpenAI.BaseURL,
		})
	case cfg.Gemini != nil:
		return geminiLLM.NewClient(&geminiLLM.Config{
			APIKey:  cfg.Gemini.APIKey,
			Model:   cfg.Gemini.Model,
			BaseURL: cfg.Gemini.BaseURL,
		})
	case cfg.Anthropic != nil:
		return anthropicLLM.NewClient(&anthropicLLM.Config{
			APIKey:  cfg.Anthropic.APIKey,
			Model:   cfg.Anthropic.Model,
			BaseURL: cfg.Anthropic.BaseURL,
		})
	case cfg.Ollama != nil:
		return ollamaLLM.NewClient(&ollamaLLM.Config{
			APIKey:  cfg.Ollama.APIKey,
			Model:   cfg.Ollama.Model,
			BaseURL: cfg.Ollama.BaseURL,
		})
	default:
		return nil, ErrInvalidConfig
	}
}

// newEmbeddingProvider initializes the embedding provider.
func newEmbeddingProvider(cfg *EmbeddingConfig) (embedder.Provider, error) {
	switch {
	case cfg.OpenAI != nil:
		return openaiEmbedder.NewClient(&openaiEmbedder.Config{
			APIKey:     cfg.OpenAI.APIKey,
			Model:      cfg.OpenAI.Model,
			BaseURL:    cfg.OpenAI.BaseURL,
			Dimensions: cfg.OpenAI.Dimensions,
		})
	case cfg.Gemini != nil:
		return geminiEmbedder.NewClient(&geminiEmbedder.Config{
			APIKey:     cfg.Gemini.APIKey,
			Model:      cfg.Gemini.Model,
			BaseURL:    cfg.Gemini.BaseURL,
			Dimensions: cfg.Gemini.Dimensions,
		})
	case cfg.HuggingFace != nil:
		return huggingfaceEmbedder.NewClient(&huggingfaceEmbedder.Config{
			APIKey:     cfg.HuggingFace.APIKey,
			Model:      cfg.HuggingFace.Model,
			BaseURL:    cfg.HuggingFace.BaseURL,
			Dimensions: cfg.HuggingFace.Dimensions,
		})
	default:
		return nil, ErrInvalidConfig
	}
}
