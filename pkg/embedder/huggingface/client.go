// Package huggingface provides a HuggingFace Embedder implementation using the
// Inference API feature-extraction pipeline.
//
// It turns sentence-transformers checkpoints into embedding providers without
// running a model locally. This package implements the embedder.Provider
// interface.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client implements embedder.Provider using the HuggingFace Inference API.
type Client struct {
	// client is the HTTP client for API requests.
	client *http.Client

	// apiKey is the HuggingFace access token.
	apiKey string

	// model is the model repository id, e.g. "sentence-transformers/all-MiniLM-L6-v2".
	model string

	// baseURL is the base URL for the Inference API.
	baseURL string

	// dimensions is the dimension of embedding vectors.
	dimensions int
}

// Config contains configuration for creating a HuggingFace Embedder client.
type Config struct {
	// APIKey is the HuggingFace access token (required).
	APIKey string

	// Model is the model repository id (default: "sentence-transformers/all-MiniLM-L6-v2").
	Model string

	// BaseURL is the API base URL (default: official Inference API address).
	BaseURL string

	// Dimensions is the vector dimension (default: 384 for all-MiniLM-L6-v2).
	Dimensions int

	// HTTPClient is a custom HTTP client (uses default if nil).
	HTTPClient *http.Client
}

// NewClient creates a new HuggingFace Embedder client.
//
// Parameters:
//   - cfg: HuggingFace Embedder configuration containing APIKey, Model, Dimensions, etc.
//
// Returns:
//   - *Client: HuggingFace Embedder client instance
//   - error: Error if configuration is invalid (e.g., missing APIKey)
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api-inference.huggingface.co"
	}

	model := cfg.Model
	if model == "" {
		model = "sentence-transformers/all-MiniLM-L6-v2"
	}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = 384 // all-MiniLM-L6-v2 default dimension
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	return &Client{
		client:     client,
		apiKey:     cfg.APIKey,
		model:      model,
		baseURL:    baseURL,
		dimensions: dimensions,
	}, nil
}

// Embed converts a single text string into a vector embedding.
//
// Parameters:
//   - ctx: Context for controlling request lifecycle
//   - text: Text content to embed
//
// Returns:
//   - []float32: Vector representation of the text
//   - error: Error if embedding fails
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch converts multiple text strings into vector embeddings.
//
// The feature-extraction pipeline accepts a list of inputs and returns one
// vector per input, in order.
//
// Parameters:
//   - ctx: Context for controlling request lifecycle
//   - texts: List of texts to embed
//
// Returns:
//   - [][]float32: Vector representations for each text (order matches input texts)
//   - error: Error if embedding fails or number of results doesn't match input
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	// wait_for_model blocks instead of erroring while a cold model loads.
	reqBody := map[string]interface{}{
		"inputs": texts,
		"options": map[string]interface{}{
			"wait_for_model": true,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/pipeline/feature-extraction/%s", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var embeddings [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&embeddings); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding generation failed: unexpected number of results from HuggingFace API (got %d, expected %d)", len(embeddings), len(texts))
	}

	return embeddings, nil
}

// Dimensions returns the dimension of embedding vectors produced by this provider.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Close closes the client connection.
//
// HTTP clients do not need explicit closing, this method is retained for
// interface compatibility.
func (c *Client) Close() error {
	return nil
}
