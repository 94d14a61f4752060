package stats

import (
	"context"
	"log/slog"
	"net/http"

	"docsearch/internal/apperr"
	"docsearch/internal/middleware"
)

type DocumentRepo interface {
	Count(ctx context.Context) (int, error)
}

type PointCounter interface {
	Count(ctx context.Context, collection string) (int, error)
}

type Handler struct {
	documents  DocumentRepo
	points     PointCounter
	collection string
}

// NewHandler builds the stats handler. documents may be nil when the
// registry is disabled.
func NewHandler(documents DocumentRepo, points PointCounter, collection string) *Handler {
	return &Handler{documents: documents, points: points, collection: collection}
}

type StatsResponse struct {
	Collection string `json:"collection"`
	Points     int    `json:"points"`
	Documents  *int   `json:"documents,omitempty"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slog.DebugContext(ctx, "getting stats")

	pCount, err := h.points.Count(ctx, h.collection)
	if err != nil {
		middleware.WriteError(ctx, w, apperr.E(apperr.KindStore, "stats.CountPoints", err))
		return
	}

	resp := StatsResponse{Collection: h.collection, Points: pCount}

	if h.documents != nil {
		dCount, err := h.documents.Count(ctx)
		if err != nil {
			middleware.WriteError(ctx, w, apperr.E(apperr.KindInternal, "stats.CountDocuments", err))
			return
		}
		resp.Documents = &dCount
	}

	middleware.WriteJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": resp})
}
