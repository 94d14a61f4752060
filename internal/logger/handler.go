package logger

import (
	"context"
	"io"
	"log/slog"

	"docsearch/internal/middleware"
)

type documentKey struct{}

// ContextHandler stamps request-scoped identifiers onto every record.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ctx.Value(middleware.CorrelationKey).(string); ok && id != "" {
		r.AddAttrs(slog.String("correlation_id", id))
	}
	if id, ok := ctx.Value(documentKey{}).(string); ok && id != "" {
		r.AddAttrs(slog.String("document_id", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name)}
}

// WithDocumentID tags ctx so log lines emitted during ingestion carry the document id.
func WithDocumentID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, documentKey{}, id)
}

// New builds the process logger: JSON to w, wrapped in a ContextHandler.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(NewContextHandler(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
}
