// Package events publishes document lifecycle notifications to NSQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"docsearch/internal/config"
	"docsearch/internal/middleware"
)

// Publisher is satisfied by *nsq.Producer.
type Publisher interface {
	Publish(topic string, body []byte) error
}

type DocumentIngested struct {
	DocumentID      string    `json:"document_id"`
	Filename        string    `json:"filename"`
	Collection      string    `json:"collection"`
	PageCount       int       `json:"page_count"`
	ChunksUploaded  int       `json:"chunks_uploaded"`
	OperationStatus string    `json:"operation_status"`
	IngestedAt      time.Time `json:"ingested_at"`
	CorrelationID   string    `json:"correlation_id"`
}

type DocumentDeleted struct {
	DocumentID    string    `json:"document_id"`
	Collection    string    `json:"collection"`
	DeletedAt     time.Time `json:"deleted_at"`
	CorrelationID string    `json:"correlation_id"`
}

// IngestRequest asks the background worker to ingest a file it can read
// at Path.
type IngestRequest struct {
	DocumentID    string `json:"document_id"`
	Path          string `json:"path"`
	Filename      string `json:"filename"`
	SHA256        string `json:"sha256,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// RequestIngest publishes req for the worker. Unlike lifecycle events the
// caller needs to know if the request was not queued.
func RequestIngest(ctx context.Context, pub Publisher, req IngestRequest) error {
	if req.CorrelationID == "" {
		req.CorrelationID = middleware.GetCorrelationID(ctx)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal ingest request: %w", err)
	}
	if err := pub.Publish(config.TopicDocumentIngest, body); err != nil {
		return fmt.Errorf("publish ingest request: %w", err)
	}
	slog.InfoContext(ctx, "ingest request queued", "document_id", req.DocumentID, "path", req.Path)
	return nil
}

// Emitter serializes events and hands them to a Publisher. A nil publisher
// turns every call into a no-op. Publish failures are logged and swallowed.
type Emitter struct {
	pub Publisher
}

func NewEmitter(pub Publisher) *Emitter {
	return &Emitter{pub: pub}
}

func NewProducer(addr string) (*nsq.Producer, error) {
	cfg := nsq.NewConfig()
	return nsq.NewProducer(addr, cfg)
}

func (e *Emitter) DocumentIngested(ctx context.Context, ev DocumentIngested) {
	ev.CorrelationID = middleware.GetCorrelationID(ctx)
	e.publish(ctx, config.TopicDocumentIngested, ev)
}

func (e *Emitter) DocumentDeleted(ctx context.Context, ev DocumentDeleted) {
	ev.CorrelationID = middleware.GetCorrelationID(ctx)
	e.publish(ctx, config.TopicDocumentDeleted, ev)
}

func (e *Emitter) publish(ctx context.Context, topic string, v any) {
	if e == nil || e.pub == nil {
		return
	}
	body, err := json.Marshal(v)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal event", "topic", topic, "error", err)
		return
	}
	if err := e.pub.Publish(topic, body); err != nil {
		slog.WarnContext(ctx, "failed to publish event", "topic", topic, "error", err)
		return
	}
	slog.DebugContext(ctx, "event published", "topic", topic)
}
