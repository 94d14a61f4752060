package document

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"docsearch/internal/apperr"
	"docsearch/internal/events"
	"docsearch/internal/ingest"
)

type Document struct {
	ID              string    `json:"id"`
	Filename        string    `json:"filename"`
	SHA256          string    `json:"sha256"`
	Status          string    `json:"status"`
	PageCount       int       `json:"page_count"`
	ChunkCount      int       `json:"chunk_count"`
	OperationStatus string    `json:"operation_status,omitempty"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Repository interface {
	List(ctx context.Context) ([]Document, error)
	Get(ctx context.Context, id string) (*Document, error)
	SoftDelete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type Ingester interface {
	Ingest(ctx context.Context, path string, src ingest.Source) (*ingest.Result, error)
}

type PointDeleter interface {
	DeleteByDocument(ctx context.Context, collection, documentID string) error
}

// Service fronts ingestion and, when a repository is configured, the
// document registry.
type Service struct {
	ingester   Ingester
	repo       Repository
	points     PointDeleter
	collection string
	events     *events.Emitter
}

func NewService(i Ingester, repo Repository, points PointDeleter, collection string, e *events.Emitter) *Service {
	return &Service{ingester: i, repo: repo, points: points, collection: collection, events: e}
}

func (s *Service) Ingest(ctx context.Context, path string, src ingest.Source) (*ingest.Result, error) {
	return s.ingester.Ingest(ctx, path, src)
}

func (s *Service) List(ctx context.Context) ([]Document, error) {
	docs, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperr.E(apperr.KindInternal, "document.List", err)
	}
	return docs, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Document, error) {
	doc, err := s.repo.Get(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Errorf(apperr.KindNotFound, "document.Get", "document %s not found", id)
	}
	if err != nil {
		return nil, apperr.E(apperr.KindInternal, "document.Get", err)
	}
	return doc, nil
}

// Delete removes the document's points from the vector store, then hides
// the registry row. A store failure leaves the row in place.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.points.DeleteByDocument(ctx, s.collection, id); err != nil {
		return apperr.E(apperr.KindStore, "document.Delete", err)
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return apperr.E(apperr.KindInternal, "document.Delete", err)
	}
	s.events.DocumentDeleted(ctx, events.DocumentDeleted{
		DocumentID: id,
		Collection: s.collection,
		DeletedAt:  time.Now().UTC(),
	})
	return nil
}
