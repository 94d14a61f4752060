package search

import (
	"context"
	"net/http"
	"strconv"

	"docsearch/internal/apperr"
	"docsearch/internal/middleware"
	"docsearch/internal/retrieval"
)

type Searcher interface {
	Search(ctx context.Context, query string, opts retrieval.Options) ([]retrieval.Result, error)
}

type Handler struct {
	searcher Searcher
}

func NewHandler(s Searcher) *Handler {
	return &Handler{searcher: s}
}

// Search serves GET /search?query=&limit=&document_id= as a bare JSON array.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var opts retrieval.Options
	if l := q.Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil {
			middleware.WriteError(ctx, w, apperr.Errorf(apperr.KindValidation, "search.Search", "limit must be an integer"))
			return
		}
		opts.Limit = limit
	}
	opts.DocumentID = q.Get("document_id")

	results, err := h.searcher.Search(ctx, q.Get("query"), opts)
	if err != nil {
		middleware.WriteError(ctx, w, err)
		return
	}
	if results == nil {
		results = []retrieval.Result{}
	}
	middleware.WriteJSON(ctx, w, http.StatusOK, results)
}
