package ollama

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

// Client is an Ollama LLM client.
// It implements the llm.Provider interface and provides text generation based
// on an Ollama local or remote service. Ollama is a tool for running large
// language models locally, supporting both local deployment and remote access.
type Client struct {
	client  *http.Client
	apiKey  string
	model   string
	baseURL string
}

// Config is the configuration for Ollama LLM.
// APIKey: Ollama API key (optional, usually not required for local deployment)
// Model: Model name to use, defaults to "llama3.1:70b"
// BaseURL: Ollama service address, defaults to "http://localhost:11434"
// HTTPClient: Custom HTTP client, if nil uses default client (120 seconds timeout)
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new Ollama LLM client.
//
// Args:
//   - cfg: Ollama configuration containing Model, BaseURL, etc. (APIKey is optional)
//
// Returns:
//   - *Client: Ollama client instance
//   - error: Returns an error if initialization fails
func NewClient(cfg *Config) (*Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	model := cfg.Model
	if model == "" {
		model = "llama3.1:70b"
	}

	client := cfg.HTTPClient
	if client == nil {
		// Ollama may require longer timeout, especially for large models
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
// Ollama uses different parameter names (num_predict instead of max_tokens).
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

	var chatMessages []map[string]string
	if options.System != "" {
		chatMessages = append(chatMessages, map[string]string{
			"role":    "system",
			"content": options.System,
		})
	}
	chatMessages = append(chatMessages, map[string]string{
		"role":    "user",
		"content": prompt,
	})

	modelOptions := map[string]interface{}{}
	if options.Temperature != nil {
		modelOptions["temperature"] = *options.Temperature
	}
	if options.MaxTokens != nil {
		modelOptions["num_predict"] = *options.MaxTokens
	}
	if options.TopP != nil {
		modelOptions["top_p"] = *options.TopP
	}
	if options.TopK != nil {
		modelOptions["top_k"] = *options.TopK
	}
	if len(options.Stop) > 0 {
		modelOptions["stop"] = options.Stop
	}

	// Build request body. stream must be disabled: the default streaming mode
	// returns newline-delimited chunks instead of a single JSON object.
	reqBody := map[string]interface{}{
		"model":    c.model,
		"messages": chatMessages,
		"stream":   false,
	}
	if len(modelOptions) > 0 {
		reqBody["options"] = modelOptions
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	// Create HTTP request
	url := fmt.Sprintf("%s/api/chat", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}

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
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if response.Message.Content == "" {
		return "", errors.New("llm generation failed: empty response from Ollama API")
	}

	return response.Message.Content, nil
}

// Close closes the client connection.
// HTTP client does not require explicit closing; this method is retained for
// interface compatibility.
func (c *Client) Close() error {
	return nil
}
