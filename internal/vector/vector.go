// Package vector holds the store-agnostic point model and the collection
// bootstrap shared by every vector database adapter.
package vector

import (
	"context"
	"errors"
	"fmt"

	"docsearch/internal/apperr"
)

// Payload keys written with every point.
const (
	PayloadText       = "text"
	PayloadPage       = "page"
	PayloadSource     = "source"
	PayloadDocumentID = "document_id"
	PayloadChunkIndex = "chunk_index"
)

const (
	StatusCompleted    = "completed"
	StatusAcknowledged = "acknowledged"
)

type Metric string

const MetricCosine Metric = "cosine"

var ErrDimensionMismatch = errors.New("collection dimension does not match configured dimension")

type CollectionSpec struct {
	Name      string
	Dimension int
	Metric    Metric
}

// Point is the unit stored in a collection.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

type Payload struct {
	Text       string `json:"text"`
	Page       int    `json:"page"`
	Source     string `json:"source,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
	ChunkIndex int    `json:"chunk_index"`
}

// Match is a point returned by a similarity search.
type Match struct {
	ID      string
	Score   float32
	Payload Payload
}

// Filter narrows a search. The zero value matches everything.
type Filter struct {
	DocumentID string
}

type SearchRequest struct {
	Vector []float32
	Limit  int
	Filter Filter
}

type OperationResult struct {
	Status string `json:"status"`
}

// CollectionInfo describes an existing collection. Dimension is zero when
// the backend does not report it.
type CollectionInfo struct {
	Dimension int
}

// CollectionClient is the schema surface an adapter exposes to EnsureCollection.
type CollectionClient interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error)
	CreateCollection(ctx context.Context, spec CollectionSpec) error
}

// Store is the data surface used by ingestion, retrieval and document management.
type Store interface {
	CollectionClient
	Upsert(ctx context.Context, collection string, points []Point, wait bool) (OperationResult, error)
	Search(ctx context.Context, collection string, req SearchRequest) ([]Match, error)
	DeleteByDocument(ctx context.Context, collection, documentID string) error
	Count(ctx context.Context, collection string) (int, error)
}

// EnsureCollection creates the collection when it is absent. An existing
// collection is left untouched; a dimension mismatch is reported, never fixed.
func EnsureCollection(ctx context.Context, client CollectionClient, spec CollectionSpec) error {
	exists, err := client.CollectionExists(ctx, spec.Name)
	if err != nil {
		return storeErr("vector.EnsureCollection", err)
	}

	if !exists {
		if err := client.CreateCollection(ctx, spec); err != nil {
			return storeErr("vector.EnsureCollection", err)
		}
		return nil
	}

	info, err := client.CollectionInfo(ctx, spec.Name)
	if err != nil {
		return storeErr("vector.EnsureCollection", err)
	}
	if info != nil && info.Dimension != 0 && info.Dimension != spec.Dimension {
		return apperr.E(apperr.KindStore, "vector.EnsureCollection",
			fmt.Errorf("%w: %q has %d, want %d", ErrDimensionMismatch, spec.Name, info.Dimension, spec.Dimension))
	}
	return nil
}

func storeErr(op string, err error) error {
	if apperr.KindOf(err) == apperr.KindStore {
		return err
	}
	return apperr.E(apperr.KindStore, op, err)
}
