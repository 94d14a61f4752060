package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsearch/internal/adapter/openai"
	"docsearch/internal/apperr"
)

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
}

// fakeOpenAI answers /v1/embeddings with vectors [len(input), position] and
// returns them in reverse order to exercise index-based reordering.
func fakeOpenAI(t *testing.T, requests *[]embeddingRequest) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		*requests = append(*requests, req)

		data := make([]map[string]interface{}, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]interface{}{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(len(req.Input[i])), float32(i)},
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func TestEmbedder_EmbedMany(t *testing.T) {
	var requests []embeddingRequest
	ts := fakeOpenAI(t, &requests)
	defer ts.Close()

	e := openai.NewEmbedder(openai.Config{
		APIKey:     "sk-test",
		BaseURL:    ts.URL + "/v1",
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		BatchSize:  2,
	})

	vectors, err := e.EmbedMany(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)

	// Order follows the input even though the server reversed it.
	assert.Equal(t, [][]float32{{1, 0}, {2, 1}, {3, 0}}, vectors)

	require.Len(t, requests, 2)
	assert.Equal(t, []string{"a", "bb"}, requests[0].Input)
	assert.Equal(t, []string{"ccc"}, requests[1].Input)
	assert.Equal(t, 1536, requests[0].Dimensions)
}

func TestEmbedder_EmbedOne(t *testing.T) {
	var requests []embeddingRequest
	ts := fakeOpenAI(t, &requests)
	defer ts.Close()

	e := openai.NewEmbedder(openai.Config{
		APIKey:     "sk-test",
		BaseURL:    ts.URL + "/v1",
		Model:      "text-embedding-ada-002",
		Dimensions: 1536,
	})

	vec, err := e.EmbedOne(context.Background(), "attention")
	require.NoError(t, err)
	assert.Equal(t, []float32{9, 0}, vec)

	// ada-002 does not accept a dimensions parameter.
	require.Len(t, requests, 1)
	assert.Zero(t, requests[0].Dimensions)
}

func TestEmbedder_ProviderError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`))
	}))
	defer ts.Close()

	e := openai.NewEmbedder(openai.Config{APIKey: "sk-test", BaseURL: ts.URL + "/v1", Model: "text-embedding-3-small"})

	_, err := e.EmbedMany(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindEmbedding, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "Rate limit reached")
}

func TestEmbedder_CountMismatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.1]}],"model":"m"}`))
	}))
	defer ts.Close()

	e := openai.NewEmbedder(openai.Config{APIKey: "sk-test", BaseURL: ts.URL + "/v1", Model: "m"})

	_, err := e.EmbedMany(context.Background(), []string{"x", "y"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindEmbedding, apperr.KindOf(err))
}

func TestEmbedder_NoInput(t *testing.T) {
	e := openai.NewEmbedder(openai.Config{APIKey: "sk-test", Model: "m"})

	_, err := e.EmbedMany(context.Background(), nil)
	assert.Equal(t, apperr.KindEmbedding, apperr.KindOf(err))
}
