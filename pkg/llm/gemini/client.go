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

	"github.com/evermem/evermem-go/pkg/llm"
)

// Client is a Google Gemini LLM client.
// It implements the llm.Provider interface on top of the Gemini REST API
// (generateContent). System prompts are passed through the separate
// systemInstruction field per the API specification.
type Client struct {
	client  *http.Client
	apiKey  string
	model   string
	baseURL string
}

// Config is the configuration for Gemini LLM.
// APIKey: Google AI Studio API key (required)
// Model: Model name to use, defaults to "gemini-2.0-flash"
// BaseURL: API base URL, defaults to "https://generativelanguage.googleapis.com"
// HTTPClient: Custom HTTP client, if nil uses default client (120 seconds timeout)
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new Gemini LLM client.
//
// Args:
//   - cfg: Gemini configuration containing APIKey, Model, BaseURL, etc.
//
// Returns:
//   - *Client: Gemini client instance
//   - error: Returns an error if the configuration is invalid (e.g., missing APIKey)
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
		model = "gemini-2.0-flash"
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

	// Build request body
	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"role":  "user",
				"parts": []map[string]string{{"text": prompt}},
			},
		},
	}

	if options.System != "" {
		reqBody["systemInstruction"] = map[string]interface{}{
			"parts": []map[string]string{{"text": options.System}},
		}
	}

	generationConfig := map[string]interface{}{}
	if options.Temperature != nil {
		generationConfig["temperature"] = *options.Temperature
	}
	if options.MaxTokens != nil {
		generationConfig["maxOutputTokens"] = *options.MaxTokens
	}
	if options.TopP != nil {
		generationConfig["topP"] = *options.TopP
	}
	if options.TopK != nil {
		generationConfig["topK"] = *options.TopK
	}
	if len(options.Stop) > 0 {
		generationConfig["stopSequences"] = options.Stop
	}
	if len(generationConfig) > 0 {
		reqBody["generationConfig"] = generationConfig
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	// Create HTTP request
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

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
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if len(response.Candidates) == 0 || len(response.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("llm generation failed: no candidates returned from Gemini API")
	}

	return response.Candidates[0].Content.Parts[0].Text, nil
}

// Close closes the client connection.
// HTTP client does not require explicit closing; this method is retained for
// interface compatibility.
func (c *Client) Close() error {
	return nil
}
