package weaviate

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"docsearch/internal/apperr"
	"docsearch/internal/vector"
)

func NewClient(host, scheme, apiKey string) (*weaviate.Client, error) {
	cfg := weaviate.Config{Host: host, Scheme: scheme}
	if apiKey != "" {
		cfg.AuthConfig = auth.ApiKey{Value: apiKey}
	}
	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, apperr.E(apperr.KindStore, "weaviate.NewClient", err)
	}
	return client, nil
}

// Store keeps points as objects of a class named after the collection.
// Weaviate does not report a class's vector length, so CollectionInfo
// always returns a zero Dimension.
type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

var _ vector.Store = (*Store)(nil)

var fields = []graphql.Field{
	{Name: vector.PayloadText},
	{Name: vector.PayloadPage},
	{Name: vector.PayloadSource},
	{Name: vector.PayloadDocumentID},
	{Name: vector.PayloadChunkIndex},
}

func (s *Store) CollectionExists(ctx context.Context, name string) (bool, error) {
	exists, err := s.client.Schema().ClassExistenceChecker().WithClassName(name).Do(ctx)
	if err != nil {
		return false, apperr.E(apperr.KindStore, "weaviate.CollectionExists", err)
	}
	return exists, nil
}

func (s *Store) CollectionInfo(ctx context.Context, name string) (*vector.CollectionInfo, error) {
	return &vector.CollectionInfo{}, nil
}

func (s *Store) CreateCollection(ctx context.Context, spec vector.CollectionSpec) error {
	class := &models.Class{
		Class:       spec.Name,
		Description: "A chunk of an uploaded PDF",
		Vectorizer:  "none",
		VectorIndexConfig: map[string]interface{}{
			"distance": "cosine",
		},
		Properties: []*models.Property{
			{Name: vector.PayloadText, DataType: []string{"text"}},
			{Name: vector.PayloadPage, DataType: []string{"int"}},
			{Name: vector.PayloadSource, DataType: []string{"text"}, Tokenization: "field"},
			{Name: vector.PayloadDocumentID, DataType: []string{"text"}, Tokenization: "field"},
			{Name: vector.PayloadChunkIndex, DataType: []string{"int"}},
		},
	}
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return apperr.E(apperr.KindStore, "weaviate.CreateCollection", err)
	}
	return nil
}

// Upsert writes points through the batch endpoint, which replaces objects
// with the same id. Batch writes are synchronous so the result is always
// completed.
func (s *Store) Upsert(ctx context.Context, collection string, points []vector.Point, _ bool) (vector.OperationResult, error) {
	objects := make([]*models.Object, len(points))
	for i, p := range points {
		objects[i] = &models.Object{
			Class: collection,
			ID:    strfmt.UUID(p.ID),
			Properties: map[string]interface{}{
				vector.PayloadText:       p.Payload.Text,
				vector.PayloadPage:       p.Payload.Page,
				vector.PayloadSource:     p.Payload.Source,
				vector.PayloadDocumentID: p.Payload.DocumentID,
				vector.PayloadChunkIndex: p.Payload.ChunkIndex,
			},
			Vector: p.Vector,
		}
	}

	res, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return vector.OperationResult{}, apperr.E(apperr.KindStore, "weaviate.Upsert", err)
	}
	for _, r := range res {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return vector.OperationResult{}, apperr.Errorf(apperr.KindStore, "weaviate.Upsert",
				"object %s: %s", r.ID, r.Result.Errors.Error[0].Message)
		}
	}
	return vector.OperationResult{Status: vector.StatusCompleted}, nil
}

func (s *Store) Search(ctx context.Context, collection string, req vector.SearchRequest) ([]vector.Match, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(req.Vector)

	query := s.client.GraphQL().Get().
		WithClassName(collection).
		WithNearVector(nearVector).
		WithLimit(req.Limit).
		WithFields(append(fields, graphql.Field{
			Name:   "_additional",
			Fields: []graphql.Field{{Name: "id"}, {Name: "distance"}},
		})...)
	if req.Filter.DocumentID != "" {
		query = query.WithWhere(documentWhere(req.Filter.DocumentID))
	}

	res, err := query.Do(ctx)
	if err != nil {
		return nil, apperr.E(apperr.KindStore, "weaviate.Search", err)
	}
	if len(res.Errors) > 0 {
		return nil, apperr.Errorf(apperr.KindStore, "weaviate.Search", "graphql error: %s", res.Errors[0].Message)
	}

	var matches []vector.Match
	data, _ := res.Data["Get"].(map[string]interface{})
	objects, _ := data[collection].([]interface{})
	for _, o := range objects {
		props, ok := o.(map[string]interface{})
		if !ok {
			continue
		}
		m := vector.Match{Payload: payloadFrom(props)}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			m.ID, _ = additional["id"].(string)
			// Cosine distance is 1 - similarity.
			m.Score = float32(1 - number(additional["distance"]))
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func (s *Store) DeleteByDocument(ctx context.Context, collection, documentID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(collection).
		WithOutput("minimal").
		WithWhere(documentWhere(documentID)).
		Do(ctx)
	if err != nil {
		return apperr.E(apperr.KindStore, "weaviate.DeleteByDocument", err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(collection).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, apperr.E(apperr.KindStore, "weaviate.Count", err)
	}
	if len(res.Errors) > 0 {
		return 0, apperr.Errorf(apperr.KindStore, "weaviate.Count", "graphql error: %s", res.Errors[0].Message)
	}

	agg, _ := res.Data["Aggregate"].(map[string]interface{})
	groups, _ := agg[collection].([]interface{})
	if len(groups) == 0 {
		return 0, nil
	}
	group, _ := groups[0].(map[string]interface{})
	meta, _ := group["meta"].(map[string]interface{})
	return int(number(meta["count"])), nil
}

func documentWhere(documentID string) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{vector.PayloadDocumentID}).
		WithOperator(filters.Equal).
		WithValueText(documentID)
}

func payloadFrom(props map[string]interface{}) vector.Payload {
	var p vector.Payload
	p.Text, _ = props[vector.PayloadText].(string)
	p.Source, _ = props[vector.PayloadSource].(string)
	p.DocumentID, _ = props[vector.PayloadDocumentID].(string)
	p.Page = int(number(props[vector.PayloadPage]))
	p.ChunkIndex = int(number(props[vector.PayloadChunkIndex]))
	return p
}

// number reads a JSON number that some Weaviate versions send as a string.
func number(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	case fmt.Stringer:
		f, _ := strconv.ParseFloat(n.String(), 64)
		return f
	default:
		return 0
	}
}
