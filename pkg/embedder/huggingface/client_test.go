package huggingface_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evermem/evermem-go/pkg/embedder/huggingface"
)

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := huggingface.NewClient(&huggingface.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key is required")
}

func TestDimensions_Default(t *testing.T) {
	client, err := huggingface.NewClient(&huggingface.Config{APIKey: "hf-test"})
	require.NoError(t, err)
	assert.Equal(t, 384, client.Dimensions())
}

func TestEmbedBatch(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`[[0.1, 0.2], [0.3, 0.4]]`))
	}))
	defer server.Close()

	client, err := huggingface.NewClient(&huggingface.Config{APIKey: "hf-test", BaseURL: server.URL})
	require.NoError(t, err)

	embeddings, err := client.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, embeddings, 2)
	assert.Equal(t, []float32{0.1, 0.2}, embeddings[0])
	assert.Equal(t, []float32{0.3, 0.4}, embeddings[1])

	assert.Equal(t, "/pipeline/feature-extraction/sentence-transformers/all-MiniLM-L6-v2", gotPath)
	assert.Equal(t, "Bearer hf-test", gotAuth)
	assert.Equal(t, []interface{}{"first", "second"}, gotBody["inputs"])

	options := gotBody["options"].(map[string]interface{})
	assert.Equal(t, true, options["wait_for_model"])
}

func TestEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[0.5, 0.6]]`))
	}))
	defer server.Close()

	client, err := huggingface.NewClient(&huggingface.Config{APIKey: "hf-test", BaseURL: server.URL})
	require.NoError(t, err)

	vec, err := client.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.6}, vec)
}

func TestEmbedBatch_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[0.1, 0.2]]`))
	}))
	defer server.Close()

	client, err := huggingface.NewClient(&huggingface.Config{APIKey: "hf-test", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.EmbedBatch(context.Background(), []string{"first", "second"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got 1, expected 2")
}

func TestEmbedBatch_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": "model is loading"}`))
	}))
	defer server.Close()

	client, err := huggingface.NewClient(&huggingface.Config{APIKey: "hf-test", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.EmbedBatch(context.Background(), []string{"first"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
	assert.Contains(t, err.Error(), "model is loading")
}
