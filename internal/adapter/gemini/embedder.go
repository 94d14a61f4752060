package gemini

import (
	"context"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"docsearch/internal/apperr"
	"docsearch/internal/embedding"
)

// MaxBatchSize is the most inputs batchEmbedContents accepts per call.
const MaxBatchSize = 100

type Embedder struct {
	client    *genai.Client
	model     string
	batchSize int
}

func NewEmbedder(ctx context.Context, apiKey, model string, batchSize int, opts ...option.ClientOption) (*Embedder, error) {
	opts = append(opts, option.WithAPIKey(apiKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, apperr.E(apperr.KindEmbedding, "gemini.NewClient", err)
	}
	if batchSize <= 0 || batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	return &Embedder{client: client, model: model, batchSize: batchSize}, nil
}

var _ embedding.Embedder = (*Embedder)(nil)

func (e *Embedder) Close() error {
	return e.client.Close()
}

func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	slog.DebugContext(ctx, "embedding content", "model", e.model, "length", len(text))
	em := e.client.EmbeddingModel(e.model)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "error", err)
		return nil, apperr.E(apperr.KindEmbedding, "gemini.EmbedContent", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, apperr.Errorf(apperr.KindEmbedding, "gemini.EmbedContent", "empty embedding received")
	}
	return res.Embedding.Values, nil
}

func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, apperr.Errorf(apperr.KindEmbedding, "gemini.EmbedMany", "no texts provided for embedding")
	}

	em := e.client.EmbeddingModel(e.model)
	out := make([][]float32, 0, len(texts))
	for _, chunk := range embedding.Batches(texts, e.batchSize) {
		batch := em.NewBatch()
		for _, t := range chunk {
			batch.AddContent(genai.Text(t))
		}

		slog.DebugContext(ctx, "embedding batch", "model", e.model, "inputs", len(chunk))
		res, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			slog.ErrorContext(ctx, "batch embedding failed", "error", err)
			return nil, apperr.E(apperr.KindEmbedding, "gemini.BatchEmbedContents", err)
		}
		if len(res.Embeddings) != len(chunk) {
			return nil, apperr.Errorf(apperr.KindEmbedding, "gemini.BatchEmbedContents",
				"expected %d embeddings, got %d", len(chunk), len(res.Embeddings))
		}
		for _, emb := range res.Embeddings {
			if emb == nil || len(emb.Values) == 0 {
				return nil, apperr.Errorf(apperr.KindEmbedding, "gemini.BatchEmbedContents", "empty embedding received")
			}
			out = append(out, emb.Values)
		}
	}
	return out, nil
}
