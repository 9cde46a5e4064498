package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/evermem/evermem-go/pkg/llm"
)

// defaultMaxTokens is used when the caller does not set a token limit. The
// Messages API rejects requests without max_tokens.
const defaultMaxTokens = 4096

// Client is an Anthropic LLM client.
// It implements the llm.Provider interface and provides text generation based
// on the Anthropic Messages API. System prompts are passed through the
// dedicated system field per the API specification.
type Client struct {
	client  *http.Client
	apiKey  string
	model   string
	baseURL string
}

// Config is the configuration for Anthropic LLM.
// APIKey: Anthropic API key (required)
// Model: Model name to use, defaults to "claude-3-5-sonnet-20240620"
// BaseURL: API base URL, defaults to "https://api.anthropic.com"
// HTTPClient: Custom HTTP client, if nil uses default client (120 seconds timeout)
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new Anthropic LLM client.
//
// Args:
//   - cfg: Anthropic configuration containing APIKey, Model, BaseURL, etc.
//
// Returns:
//   - *Client: Anthropic client instance
//   - error: Returns an error if the configuration is invalid (e.g., missing APIKey)
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	model := cfg.Model
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: 120 * time.Second,
		}
	}

	return &Client{
		client:  client,
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
	}, nil
}

// Complete generates text based on the prompt.
//
// Args:
//   - ctx: Context for controlling the request lifecycle
//   - prompt: User input prompt
//   - opts: Optional generation parameters (system, temperature, max_tokens, etc.)
//
// Returns:
//   - string: Generated text content
//   - error: Returns an error if generation fails
func (c *Client) Complete(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	options := llm.ApplyGenerateOptions(opts)

	maxTokens := defaultMaxTokens
	if options.MaxTokens != nil {
		maxTokens = *options.MaxTokens
	}

	// Build request body
	reqBody := map[string]interface{}{
		"model":      c.model,
		"max_tokens": maxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}

	if options.System != "" {
		reqBody["system"] = options.System
	}
	if options.Temperature != nil {
		reqBody["temperature"] = *options.Temperature
	}
	if options.TopP != nil {
		reqBody["top_p"] = *options.TopP
	}
	if len(options.Stop) > 0 {
		reqBody["stop_sequences"] = options.Stop
	}
	// The API has no top_k knob for chat use worth exposing; options.TopK is ignored.

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	// Create HTTP request
	url := fmt.Sprintf("%s/v1/messages", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	// Send request
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	// Parse response
	var response struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if len(response.Content) == 0 {
		return "", errors.New("llm generation failed: no content returned from Anthropic API")
	}

	return response.Content[0].Text, nil
}

// Close closes the client connection.
// HTTP client does not require explicit closing; this method is retained for
// interface compatibility.
func (c *Client) Close() error {
	return nil
}
