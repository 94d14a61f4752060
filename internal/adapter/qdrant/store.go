package qdrant

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"docsearch/internal/apperr"
	"docsearch/internal/vector"
)

// Client is the subset of *qdrant.Client the store needs.
type Client interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
}

type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// NewClient dials Qdrant over gRPC.
func NewClient(cfg Config) (*qdrant.Client, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, apperr.E(apperr.KindStore, "qdrant.NewClient", err)
	}
	return client, nil
}

type Store struct {
	client Client
}

func NewStore(client Client) *Store {
	return &Store{client: client}
}

var _ vector.Store = (*Store)(nil)

func (s *Store) CollectionExists(ctx context.Context, name string) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return false, apperr.E(apperr.KindStore, "qdrant.CollectionExists", err)
	}
	return exists, nil
}

func (s *Store) CollectionInfo(ctx context.Context, name string) (*vector.CollectionInfo, error) {
	info, err := s.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return nil, apperr.E(apperr.KindStore, "qdrant.GetCollectionInfo", err)
	}
	size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	return &vector.CollectionInfo{Dimension: int(size)}, nil
}

func (s *Store) CreateCollection(ctx context.Context, spec vector.CollectionSpec) error {
	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: spec.Name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(spec.Dimension),
			Distance: distance(spec.Metric),
		}),
	})
	if err != nil {
		return apperr.E(apperr.KindStore, "qdrant.CreateCollection", err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, collection string, points []vector.Point, wait bool) (vector.OperationResult, error) {
	structs := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		structs[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: toPayload(p.Payload),
		}
	}

	res, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(wait),
		Points:         structs,
	})
	if err != nil {
		return vector.OperationResult{}, apperr.E(apperr.KindStore, "qdrant.Upsert", err)
	}
	return vector.OperationResult{Status: status(res.GetStatus())}, nil
}

func (s *Store) Search(ctx context.Context, collection string, req vector.SearchRequest) ([]vector.Match, error) {
	query := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(req.Vector...),
		Limit:          qdrant.PtrOf(uint64(req.Limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         toFilter(req.Filter),
	}

	points, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, apperr.E(apperr.KindStore, "qdrant.Query", err)
	}

	matches := make([]vector.Match, 0, len(points))
	for _, p := range points {
		matches = append(matches, vector.Match{
			ID:      pointID(p.GetId()),
			Score:   p.GetScore(),
			Payload: fromPayload(p.GetPayload()),
		})
	}
	return matches, nil
}

func (s *Store) DeleteByDocument(ctx context.Context, collection, documentID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(toFilter(vector.Filter{DocumentID: documentID})),
	})
	if err != nil {
		return apperr.E(apperr.KindStore, "qdrant.Delete", err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, apperr.E(apperr.KindStore, "qdrant.Count", err)
	}
	return int(n), nil
}

// distance maps a metric to Qdrant's enum. Cosine is the only metric the
// service creates collections with.
func distance(vector.Metric) qdrant.Distance {
	return qdrant.Distance_Cosine
}

func status(s qdrant.UpdateStatus) string {
	switch s {
	case qdrant.UpdateStatus_Completed:
		return vector.StatusCompleted
	case qdrant.UpdateStatus_Acknowledged:
		return vector.StatusAcknowledged
	default:
		return strings.ToLower(s.String())
	}
}

func toFilter(f vector.Filter) *qdrant.Filter {
	if f.DocumentID == "" {
		return nil
	}
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch(vector.PayloadDocumentID, f.DocumentID),
		},
	}
}

func toPayload(p vector.Payload) map[string]*qdrant.Value {
	return map[string]*qdrant.Value{
		vector.PayloadText:       qdrant.NewValueString(p.Text),
		vector.PayloadPage:       qdrant.NewValueInt(int64(p.Page)),
		vector.PayloadSource:     qdrant.NewValueString(p.Source),
		vector.PayloadDocumentID: qdrant.NewValueString(p.DocumentID),
		vector.PayloadChunkIndex: qdrant.NewValueInt(int64(p.ChunkIndex)),
	}
}

func fromPayload(m map[string]*qdrant.Value) vector.Payload {
	return vector.Payload{
		Text:       m[vector.PayloadText].GetStringValue(),
		Page:       intValue(m[vector.PayloadPage]),
		Source:     m[vector.PayloadSource].GetStringValue(),
		DocumentID: m[vector.PayloadDocumentID].GetStringValue(),
		ChunkIndex: intValue(m[vector.PayloadChunkIndex]),
	}
}

// intValue accepts both integer and double encodings; points written by
// other clients sometimes store page numbers as floats.
func intValue(v *qdrant.Value) int {
	if v == nil {
		return 0
	}
	if _, ok := v.GetKind().(*qdrant.Value_DoubleValue); ok {
		return int(v.GetDoubleValue())
	}
	return int(v.GetIntegerValue())
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}
