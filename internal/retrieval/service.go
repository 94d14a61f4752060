// Package retrieval answers semantic queries against the vector store.
package retrieval

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"docsearch/internal/apperr"
	"docsearch/internal/embedding"
	"docsearch/internal/metrics"
	"docsearch/internal/vector"
)

const (
	DefaultLimit = 5
	MaxLimit     = 100
)

var ErrEmptyQuery = errors.New("query must not be empty")

type Result struct {
	ID      string         `json:"id"`
	Score   float32        `json:"score"`
	Payload vector.Payload `json:"payload"`
}

type Options struct {
	Limit      int
	DocumentID string
}

type Searcher interface {
	Search(ctx context.Context, collection string, req vector.SearchRequest) ([]vector.Match, error)
}

type Service struct {
	embedder     embedding.Embedder
	store        Searcher
	collection   string
	defaultLimit int
	logger       *QueryLogger
	metrics      *metrics.Recorder
}

// NewService builds a query service. defaultLimit <= 0 falls back to DefaultLimit.
// l and m may be nil.
func NewService(e embedding.Embedder, s Searcher, collection string, defaultLimit int, l *QueryLogger, m *metrics.Recorder) *Service {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	return &Service{
		embedder:     e,
		store:        s,
		collection:   collection,
		defaultLimit: defaultLimit,
		logger:       l,
		metrics:      m,
	}
}

// Search embeds query and returns at most Limit matches in non-increasing
// score order. Matches with equal scores keep the store's order.
func (s *Service) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	start := time.Now()

	if strings.TrimSpace(query) == "" {
		s.metrics.SearchServed("invalid")
		return nil, apperr.E(apperr.KindValidation, "retrieval.Search", ErrEmptyQuery)
	}
	limit, err := s.resolveLimit(opts.Limit)
	if err != nil {
		s.metrics.SearchServed("invalid")
		return nil, err
	}

	vec, err := s.embedder.EmbedOne(ctx, query)
	if err != nil {
		s.metrics.SearchServed("failed")
		return nil, apperr.E(apperr.KindEmbedding, "retrieval.Search", err)
	}

	matches, err := s.store.Search(ctx, s.collection, vector.SearchRequest{
		Vector: vec,
		Limit:  limit,
		Filter: vector.Filter{DocumentID: opts.DocumentID},
	})
	if err != nil {
		s.metrics.SearchServed("failed")
		return nil, apperr.E(apperr.KindStore, "retrieval.Search", err)
	}

	results := make([]Result, len(matches))
	for i, m := range matches {
		results[i] = Result{ID: m.ID, Score: m.Score, Payload: m.Payload}
	}
	slices.SortStableFunc(results, func(a, b Result) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(results) > limit {
		results = results[:limit]
	}

	s.metrics.SearchServed("ok")
	if s.logger != nil {
		entry := QueryLogEntry{
			Query:      query,
			Limit:      limit,
			DocumentID: opts.DocumentID,
			NumResults: len(results),
			Duration:   time.Since(start),
		}
		if len(results) > 0 {
			entry.TopScore = results[0].Score
		}
		s.logger.Log(ctx, entry)
	}
	return results, nil
}

func (s *Service) resolveLimit(limit int) (int, error) {
	switch {
	case limit == 0:
		return s.defaultLimit, nil
	case limit < 0 || limit > MaxLimit:
		return 0, apperr.Errorf(apperr.KindValidation, "retrieval.Search", "limit must be between 1 and %d", MaxLimit)
	default:
		return limit, nil
	}
}
