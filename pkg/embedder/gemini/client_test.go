package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evermem/evermem-go/pkg/embedder/gemini"
)

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := gemini.NewClient(&gemini.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key is required")
}

func TestDimensions_Default(t *testing.T) {
	client, err := gemini.NewClient(&gemini.Config{APIKey: "ai-test"})
	require.NoError(t, err)
	assert.Equal(t, 768, client.Dimensions())
}

func TestEmbed(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"embedding": {"values": [0.1, 0.2, 0.3]}}`))
	}))
	defer server.Close()

	client, err := gemini.NewClient(&gemini.Config{
		APIKey:     "ai-test",
		BaseURL:    server.URL,
		Dimensions: 3,
	})
	require.NoError(t, err)

	vec, err := client.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)

	assert.Equal(t, "/v1beta/models/text-embedding-004:embedContent", gotPath)
	assert.Equal(t, "ai-test", gotKey)
	assert.Equal(t, "models/text-embedding-004", gotBody["model"])
	assert.Equal(t, float64(3), gotBody["outputDimensionality"])

	content := gotBody["content"].(map[string]interface{})
	parts := content["parts"].([]interface{})
	require.Len(t, parts, 1)
	assert.Equal(t, "hello world", parts[0].(map[string]interface{})["text"])
}

func TestEmbed_NoValues(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding": {"values": []}}`))
	}))
	defer server.Close()

	client, err := gemini.NewClient(&gemini.Config{APIKey: "ai-test", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no values returned")
}

func TestEmbedBatch(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"embeddings": [{"values": [0.1, 0.2]}, {"values": [0.3, 0.4]}]}`))
	}))
	defer server.Close()

	client, err := gemini.NewClient(&gemini.Config{APIKey: "ai-test", BaseURL: server.URL})
	require.NoError(t, err)

	embeddings, err := client.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, embeddings, 2)
	assert.Equal(t, []float32{0.1, 0.2}, embeddings[0])
	assert.Equal(t, []float32{0.3, 0.4}, embeddings[1])

	assert.Equal(t, "/v1beta/models/text-embedding-004:batchEmbedContents", gotPath)
	requests := gotBody["requests"].([]interface{})
	require.Len(t, requests, 2)
	first := requests[0].(map[string]interface{})
	assert.Equal(t, "models/text-embedding-004", first["model"])
}

func TestEmbedBatch_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings": [{"values": [0.1, 0.2]}]}`))
	}))
	defer server.Close()

	client, err := gemini.NewClient(&gemini.Config{APIKey: "ai-test", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.EmbedBatch(context.Background(), []string{"first", "second"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got 1, expected 2")
}

func TestEmbed_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": {"status": "PERMISSION_DENIED"}}`))
	}))
	defer server.Close()

	client, err := gemini.NewClient(&gemini.Config{APIKey: "ai-test", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}
