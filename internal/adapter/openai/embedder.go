package openai

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"

	"docsearch/internal/apperr"
	"docsearch/internal/embedding"
)

type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	BatchSize  int
}

type Embedder struct {
	client     *openai.Client
	model      string
	dimensions int
	batchSize  int
}

func NewEmbedder(cfg Config) *Embedder {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	// Only the text-embedding-3 family accepts a dimensions parameter.
	dims := 0
	if strings.HasPrefix(cfg.Model, "text-embedding-3") {
		dims = cfg.Dimensions
	}

	return &Embedder{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      cfg.Model,
		dimensions: dims,
		batchSize:  cfg.BatchSize,
	}
}

var _ embedding.Embedder = (*Embedder)(nil)

func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, apperr.Errorf(apperr.KindEmbedding, "openai.EmbedMany", "no texts provided for embedding")
	}

	out := make([][]float32, 0, len(texts))
	for _, batch := range embedding.Batches(texts, e.batchSize) {
		vectors, err := e.embedBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	slog.DebugContext(ctx, "embedding batch", "model", e.model, "inputs", len(texts))

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dimensions,
	})
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "error", err)
		return nil, apperr.E(apperr.KindEmbedding, "openai.CreateEmbeddings", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, apperr.Errorf(apperr.KindEmbedding, "openai.CreateEmbeddings",
			"expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, d := range data {
		if len(d.Embedding) == 0 {
			return nil, apperr.E(apperr.KindEmbedding, "openai.CreateEmbeddings", fmt.Errorf("empty embedding at index %d", d.Index))
		}
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
