// Package ingest runs one uploaded document through load, embed and upsert.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"docsearch/internal/apperr"
	"docsearch/internal/embedding"
	"docsearch/internal/events"
	"docsearch/internal/loader"
	"docsearch/internal/logger"
	"docsearch/internal/metrics"
	"docsearch/internal/vector"
)

// Document registry statuses.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

type ChunkLoader interface {
	LoadAndChunk(ctx context.Context, path string) (*loader.Result, error)
}

type Upserter interface {
	Upsert(ctx context.Context, collection string, points []vector.Point, wait bool) (vector.OperationResult, error)
}

// Registry records document bookkeeping. Implementations must tolerate
// MarkFailed for a document whose MarkProcessing failed.
type Registry interface {
	MarkProcessing(ctx context.Context, src Source) error
	MarkCompleted(ctx context.Context, documentID string, pageCount, chunkCount int, operationStatus string) error
	MarkFailed(ctx context.Context, documentID, reason string) error
}

// Source identifies the document being ingested. An empty DocumentID is
// replaced with a fresh UUID.
type Source struct {
	DocumentID string
	Filename   string
	SHA256     string
}

type Result struct {
	DocumentID      string `json:"document_id"`
	PageCount       int    `json:"page_count"`
	ChunksUploaded  int    `json:"chunks_uploaded"`
	OperationStatus string `json:"operation_status"`
}

type Pipeline struct {
	loader     ChunkLoader
	embedder   embedding.Embedder
	store      Upserter
	collection string
	dimension  int

	registry Registry
	events   *events.Emitter
	metrics  *metrics.Recorder
}

type Option func(*Pipeline)

func WithRegistry(r Registry) Option {
	return func(p *Pipeline) { p.registry = r }
}

func WithEvents(e *events.Emitter) Option {
	return func(p *Pipeline) { p.events = e }
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func NewPipeline(l ChunkLoader, e embedding.Embedder, s Upserter, collection string, dimension int, opts ...Option) *Pipeline {
	p := &Pipeline{
		loader:     l,
		embedder:   e,
		store:      s,
		collection: collection,
		dimension:  dimension,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest loads the file at path, embeds every chunk in one call and upserts
// all points with wait=true. Any stage failure aborts the run. Points already
// written are not rolled back.
func (p *Pipeline) Ingest(ctx context.Context, path string, src Source) (*Result, error) {
	if src.DocumentID == "" {
		src.DocumentID = uuid.NewString()
	}
	ctx = logger.WithDocumentID(ctx, src.DocumentID)

	if p.registry != nil {
		if err := p.registry.MarkProcessing(ctx, src); err != nil {
			slog.WarnContext(ctx, "failed to record document", "error", err)
		}
	}

	res, err := p.run(ctx, path, src)
	if err != nil {
		slog.ErrorContext(ctx, "ingestion failed", "filename", src.Filename, "kind", apperr.KindOf(err).String(), "error", err)
		p.metrics.DocumentProcessed(StatusFailed, 0)
		if p.registry != nil {
			if rerr := p.registry.MarkFailed(ctx, src.DocumentID, err.Error()); rerr != nil {
				slog.WarnContext(ctx, "failed to mark document failed", "error", rerr)
			}
		}
		return nil, err
	}

	p.metrics.DocumentProcessed(StatusCompleted, res.ChunksUploaded)
	if p.registry != nil {
		if err := p.registry.MarkCompleted(ctx, src.DocumentID, res.PageCount, res.ChunksUploaded, res.OperationStatus); err != nil {
			slog.WarnContext(ctx, "failed to mark document completed", "error", err)
		}
	}
	p.events.DocumentIngested(ctx, events.DocumentIngested{
		DocumentID:      src.DocumentID,
		Filename:        src.Filename,
		Collection:      p.collection,
		PageCount:       res.PageCount,
		ChunksUploaded:  res.ChunksUploaded,
		OperationStatus: res.OperationStatus,
		IngestedAt:      time.Now().UTC(),
	})

	slog.InfoContext(ctx, "document ingested", "filename", src.Filename, "pages", res.PageCount, "chunks", res.ChunksUploaded, "status", res.OperationStatus)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, path string, src Source) (*Result, error) {
	start := time.Now()
	loaded, err := p.loader.LoadAndChunk(ctx, path)
	if err != nil {
		return nil, err
	}
	p.metrics.ObserveStage(metrics.StageLoad, time.Since(start))
	slog.DebugContext(ctx, "document chunked", "pages", loaded.PageCount, "chunks", len(loaded.Chunks))

	texts := make([]string, len(loaded.Chunks))
	for i, c := range loaded.Chunks {
		texts[i] = c.Text
	}

	start = time.Now()
	vectors, err := p.embedder.EmbedMany(ctx, texts)
	if err != nil {
		return nil, apperr.E(apperr.KindEmbedding, "ingest.Embed", err)
	}
	if len(vectors) != len(texts) {
		return nil, apperr.Errorf(apperr.KindEmbedding, "ingest.Embed", "got %d vectors for %d chunks", len(vectors), len(texts))
	}
	if err := embedding.CheckDimension(vectors, p.dimension); err != nil {
		return nil, err
	}
	p.metrics.ObserveStage(metrics.StageEmbed, time.Since(start))

	points := make([]vector.Point, len(loaded.Chunks))
	for i, c := range loaded.Chunks {
		points[i] = vector.Point{
			ID:     uuid.NewString(),
			Vector: vectors[i],
			Payload: vector.Payload{
				Text:       c.Text,
				Page:       c.Page,
				Source:     src.Filename,
				DocumentID: src.DocumentID,
				ChunkIndex: c.Index,
			},
		}
	}

	start = time.Now()
	op, err := p.store.Upsert(ctx, p.collection, points, true)
	if err != nil {
		return nil, apperr.E(apperr.KindStore, "ingest.Upsert", err)
	}
	p.metrics.ObserveStage(metrics.StageUpsert, time.Since(start))

	return &Result{
		DocumentID:      src.DocumentID,
		PageCount:       loaded.PageCount,
		ChunksUploaded:  len(points),
		OperationStatus: op.Status,
	}, nil
}
