package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"docsearch/internal/apperr"
	"docsearch/internal/events"
	"docsearch/internal/ingest"
	"docsearch/internal/logger"
	"docsearch/internal/middleware"
)

type Ingester interface {
	Ingest(ctx context.Context, path string, src ingest.Source) (*ingest.Result, error)
}

// IngestConsumer runs queued ingest requests through the pipeline.
type IngestConsumer struct {
	ingester Ingester
	timeout  time.Duration
}

func NewIngestConsumer(i Ingester, timeout time.Duration) *IngestConsumer {
	return &IngestConsumer{ingester: i, timeout: timeout}
}

func (h *IngestConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var req events.IngestRequest
	err := json.Unmarshal(m.Body, &req)

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	if err != nil {
		// Poison pill: don't retry
		slog.ErrorContext(ctx, "invalid ingest request", "error", err)
		return nil
	}
	if req.Path == "" {
		slog.ErrorContext(ctx, "ingest request without path, dropping")
		return nil
	}

	ctx = logger.WithDocumentID(ctx, req.DocumentID)
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	res, err := h.ingester.Ingest(ctx, req.Path, ingest.Source{
		DocumentID: req.DocumentID,
		Filename:   req.Filename,
		SHA256:     req.SHA256,
	})
	if err != nil {
		if !retryable(err) {
			slog.ErrorContext(ctx, "ingest request failed permanently", "error", err, "attempts", m.Attempts)
			return nil
		}
		slog.WarnContext(ctx, "ingest request failed, requeueing", "error", err, "attempts", m.Attempts)
		return err
	}

	slog.InfoContext(ctx, "ingest request completed", "chunks_uploaded", res.ChunksUploaded)
	return nil
}

// retryable reports whether a redelivery could succeed. Bad input stays bad.
func retryable(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindLoad, apperr.KindNotFound, apperr.KindTooLarge:
		return false
	}
	return true
}
