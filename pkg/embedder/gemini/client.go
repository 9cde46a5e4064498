// Package gemini provides a Gemini Embedder implementation using the Google
// Generative Language API.
//
// Gemini Embedder converts text into vector embeddings for similarity search.
// This package implements the embedder.Provider interface.
package gemini

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

// Client implements embedder.Provider using the Gemini embedContent API.
type Client struct {
	// client is the HTTP client for API requests.
	client *http.Client

	// apiKey is the Google AI Studio API key.
	apiKey string

	// model is the Gemini embedding model name to use.
	model string

	// baseURL is the base URL for the Generative Language API.
	baseURL string

	// dimensions is the dimension of embedding vectors.
	dimensions int
}

// Config contains configuration for creating a Gemini Embedder client.
type Config struct {
	// APIKey is the Google AI Studio API key (required).
	APIKey string

	// Model is the model name to use (default: "text-embedding-004").
	Model string

	// BaseURL is the API base URL (default: official Google endpoint).
	BaseURL string

	// Dimensions is the vector dimension (default: 768 for text-embedding-004).
	Dimensions int

	// HTTPClient is a custom HTTP client (uses default if nil).
	HTTPClient *http.Client
}

// embedRequest is a single embedContent request body.
type embedRequest struct {
	Model                string       `json:"model"`
	Content              embedContent `json:"content"`
	OutputDimensionality int          `json:"outputDimensionality,omitempty"`
}

type embedContent struct {
	Parts []embedPart `json:"parts"`
}

type embedPart struct {
	Text string `json:"text"`
}

// NewClient creates a new Gemini Embedder client.
//
// Parameters:
//   - cfg: Gemini Embedder configuration containing APIKey, Model, BaseURL, Dimensions, etc.
//
// Returns:
//   - *Client: Gemini Embedder client instance
//   - error: Error if configuration is invalid (e.g., missing APIKey)
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-004"
	}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = 768 // text-embedding-004 default dimension
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
//   - []float32: Vector representation of the text (dimension determined by configuration)
//   - error: Error if embedding fails
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := embedRequest{
		Model:                "models/" + c.model,
		Content:              embedContent{Parts: []embedPart{{Text: text}}},
		OutputDimensionality: c.dimensions,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:embedContent?key=%s", c.baseURL, c.model, c.apiKey)
	body, err := c.post(ctx, url, jsonData)
	if err != nil {
		return nil, err
	}

	var response struct {
		Embedding struct {
			Values []float32 `json:"values"`
		} `json:"embedding"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(response.Embedding.Values) == 0 {
		return nil, errors.New("embedding generation failed: no values returned from Gemini API")
	}

	return response.Embedding.Values, nil
}

// EmbedBatch converts multiple text strings into vector embeddings in a single
// batchEmbedContents call.
//
// Parameters:
//   - ctx: Context for controlling request lifecycle
//   - texts: List of texts to embed
//
// Returns:
//   - [][]float32: Vector representations for each text (order matches input texts)
//   - error: Error if embedding fails or number of results doesn't match input
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	requests := make([]embedRequest, len(texts))
	for i, text := range texts {
		requests[i] = embedRequest{
			Model:                "models/" + c.model,
			Content:              embedContent{Parts: []embedPart{{Text: text}}},
			OutputDimensionality: c.dimensions,
		}
	}

	jsonData, err := json.Marshal(map[string]interface{}{"requests": requests})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:batchEmbedContents?key=%s", c.baseURL, c.model, c.apiKey)
	body, err := c.post(ctx, url, jsonData)
	if err != nil {
		return nil, err
	}

	var response struct {
		Embeddings []struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding generation failed: unexpected number of results from Gemini API (got %d, expected %d)", len(response.Embeddings), len(texts))
	}

	embeddings := make([][]float32, len(texts))
	for i, emb := range response.Embeddings {
		embeddings[i] = emb.Values
	}

	return embeddings, nil
}

// post sends a JSON request and returns the response body.
func (c *Client) post(ctx context.Context, url string, jsonData []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
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
