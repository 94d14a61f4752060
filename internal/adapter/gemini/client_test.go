package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"docsearch/internal/adapter/gemini"
	"docsearch/internal/apperr"
)

func TestEmbedder_EmbedOne(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, ":embedContent"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"embedding": map[string]interface{}{
				"values": []float32{0.1, 0.2, 0.3},
			},
		})
	}))
	defer ts.Close()

	embedder, err := gemini.NewEmbedder(context.Background(), "test-key", "text-embedding-004", 0, option.WithEndpoint(ts.URL))
	require.NoError(t, err)
	defer embedder.Close()

	vec, err := embedder.EmbedOne(context.Background(), "hello world")
	assert.NoError(t, err)
	if assert.Len(t, vec, 3) {
		assert.Equal(t, float32(0.1), vec[0])
	}
}

func TestEmbedder_EmbedMany(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, ":batchEmbedContents"), r.URL.Path)
		calls++

		var req struct {
			Requests []json.RawMessage `json:"requests"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		embeddings := make([]map[string]interface{}, len(req.Requests))
		for i := range req.Requests {
			embeddings[i] = map[string]interface{}{"values": []float32{float32(calls), float32(i)}}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"embeddings": embeddings})
	}))
	defer ts.Close()

	embedder, err := gemini.NewEmbedder(context.Background(), "test-key", "text-embedding-004", 2, option.WithEndpoint(ts.URL))
	require.NoError(t, err)
	defer embedder.Close()

	vectors, err := embedder.EmbedMany(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, [][]float32{{1, 0}, {1, 1}, {2, 0}}, vectors)
}

func TestEmbedder_ProviderError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
	}))
	defer ts.Close()

	embedder, err := gemini.NewEmbedder(context.Background(), "bad-key", "text-embedding-004", 0, option.WithEndpoint(ts.URL))
	require.NoError(t, err)
	defer embedder.Close()

	_, err = embedder.EmbedMany(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindEmbedding, apperr.KindOf(err))
}

func TestEmbedder_NoInput(t *testing.T) {
	embedder, err := gemini.NewEmbedder(context.Background(), "test-key", "text-embedding-004", 0, option.WithEndpoint("http://127.0.0.1:1"))
	require.NoError(t, err)
	defer embedder.Close()

	_, err = embedder.EmbedMany(context.Background(), nil)
	assert.Equal(t, apperr.KindEmbedding, apperr.KindOf(err))
}
