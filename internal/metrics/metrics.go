// Package metrics exports ingestion, search and HTTP metrics in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docsearch"

// Ingestion stages.
const (
	StageLoad   = "load"
	StageEmbed  = "embed"
	StageUpsert = "upsert"
)

// Recorder owns a private registry. All methods are safe on a nil receiver
// so callers can run without metrics.
type Recorder struct {
	registry *prometheus.Registry

	documents     *prometheus.CounterVec
	chunks        prometheus.Counter
	stageDuration *prometheus.HistogramVec
	searches      *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
}

func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.documents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "documents_total",
		Help:      "Documents processed by outcome",
	}, []string{"outcome"})

	r.chunks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "chunks_total",
		Help:      "Chunks written to the vector store",
	})

	r.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "stage_duration_seconds",
		Help:      "Duration of each ingestion stage",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"stage"})

	r.searches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "search",
		Name:      "queries_total",
		Help:      "Search queries by outcome",
	}, []string{"outcome"})

	r.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status",
	}, []string{"route", "status"})

	r.httpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	r.registry.MustRegister(
		r.documents, r.chunks, r.stageDuration, r.searches, r.httpRequests, r.httpLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the exposition format for this recorder's registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) DocumentProcessed(outcome string, chunks int) {
	if r == nil {
		return
	}
	r.documents.WithLabelValues(outcome).Inc()
	r.chunks.Add(float64(chunks))
}

func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (r *Recorder) SearchServed(outcome string) {
	if r == nil {
		return
	}
	r.searches.WithLabelValues(outcome).Inc()
}

// Middleware records status and latency per route. route is the mux pattern
// so ids in paths do not explode label cardinality.
func (r *Recorder) Middleware(route string, next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, req)
		r.httpLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
		r.httpRequests.WithLabelValues(route, strconv.Itoa(sw.status)).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
