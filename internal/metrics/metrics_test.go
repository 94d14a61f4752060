package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsearch/internal/metrics"
)

func TestRecorder_DocumentProcessed(t *testing.T) {
	r := metrics.New()
	r.DocumentProcessed("completed", 6)
	r.DocumentProcessed("failed", 0)
	r.ObserveStage(metrics.StageEmbed, 20*time.Millisecond)

	expected := `
# HELP docsearch_ingest_chunks_total Chunks written to the vector store
# TYPE docsearch_ingest_chunks_total counter
docsearch_ingest_chunks_total 6
`
	err := testutil.GatherAndCompare(r.Registry(), strings.NewReader(expected), "docsearch_ingest_chunks_total")
	assert.NoError(t, err)

	n, err := testutil.GatherAndCount(r.Registry(), "docsearch_ingest_documents_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *metrics.Recorder
	assert.NotPanics(t, func() {
		r.DocumentProcessed("completed", 1)
		r.ObserveStage(metrics.StageLoad, time.Second)
		r.SearchServed("ok")
	})

	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {})
	assert.NotNil(t, r.Middleware("GET /", h))
}

func TestRecorder_MiddlewareAndHandler(t *testing.T) {
	r := metrics.New()
	h := r.Middleware("GET /search", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `docsearch_http_requests_total{route="GET /search",status="400"} 1`)
}
