// Package embedding defines the contract every embedding provider satisfies.
package embedding

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"docsearch/internal/apperr"
)

// Embedder turns text into fixed-length vectors. EmbedMany preserves input order.
type Embedder interface {
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Batches splits texts into consecutive slices of at most size elements.
func Batches(texts []string, size int) [][]string {
	if size <= 0 {
		size = len(texts)
	}
	var out [][]string
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		out = append(out, texts[start:end])
	}
	return out
}

// CheckDimension fails with KindEmbedding unless every vector has length dim.
func CheckDimension(vectors [][]float32, dim int) error {
	for i, v := range vectors {
		if len(v) != dim {
			return apperr.Errorf(apperr.KindEmbedding, "embedding.CheckDimension",
				"vector %d has dimension %d, collection expects %d", i, len(v), dim)
		}
	}
	return nil
}

// Limited throttles calls to the wrapped Embedder.
type Limited struct {
	next    Embedder
	limiter *rate.Limiter
}

// NewLimited wraps e with a limiter allowing rps calls per second. rps <= 0 returns e unchanged.
func NewLimited(e Embedder, rps float64) Embedder {
	if rps <= 0 {
		return e
	}
	return &Limited{next: e, limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

func (l *Limited) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.next.EmbedMany(ctx, texts)
}

func (l *Limited) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.next.EmbedOne(ctx, text)
}

func (l *Limited) wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return apperr.E(apperr.KindEmbedding, "embedding.Limited", fmt.Errorf("rate limiter: %w", err))
	}
	return nil
}
