package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"docsearch/features/document"
	"docsearch/features/search"
	"docsearch/features/stats"
	"docsearch/internal/config"
	"docsearch/internal/events"
	"docsearch/internal/ingest"
	"docsearch/internal/loader"
	"docsearch/internal/metrics"
	"docsearch/internal/middleware"
	"docsearch/internal/retrieval"
	"docsearch/internal/text"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	Handler  http.Handler
	Pipeline *ingest.Pipeline
	Search   *retrieval.Service
	Metrics  *metrics.Recorder

	port    int
	closers []io.Closer
}

func New(cfg *config.Config, deps *Dependencies) (*App, error) {
	splitter, err := text.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	recorder := metrics.New()

	var emitter *events.Emitter
	if deps.NSQProducer != nil {
		emitter = events.NewEmitter(deps.NSQProducer)
	}

	opts := []ingest.Option{ingest.WithMetrics(recorder), ingest.WithEvents(emitter)}
	var docRepo *document.PostgresRepo
	if deps.DB != nil {
		docRepo = document.NewPostgresRepo(deps.DB)
		opts = append(opts, ingest.WithRegistry(docRepo))
	}

	pipeline := ingest.NewPipeline(
		loader.New(loader.PDFReader{}, splitter),
		deps.Embedder,
		deps.Store,
		cfg.CollectionName,
		cfg.VectorDimension,
		opts...,
	)

	a := &App{Pipeline: pipeline, Metrics: recorder, port: cfg.ServerPort}

	queryLogger, closer, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	} else {
		a.closers = append(a.closers, closer)
	}
	a.Search = retrieval.NewService(deps.Embedder, deps.Store, cfg.CollectionName, cfg.SearchTopK, queryLogger, recorder)

	// Feature: Document
	var repo document.Repository
	if docRepo != nil {
		repo = docRepo
	}
	documentService := document.NewService(pipeline, repo, deps.Store, cfg.CollectionName, emitter)
	documentHandler := document.NewHandler(documentService, cfg.UploadDir, cfg.MaxUploadSizeMB<<20)

	// Feature: Search
	searchHandler := search.NewHandler(a.Search)

	// Feature: Stats
	var statsRepo stats.DocumentRepo
	if docRepo != nil {
		statsRepo = docRepo
	}
	statsHandler := stats.NewHandler(statsRepo, deps.Store, cfg.CollectionName)

	// Routes
	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, recorder.Middleware(pattern, h))
	}

	route("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(r.Context(), w, http.StatusOK, map[string]string{"message": "Hello, Qdrant"})
	})
	route("POST /upload_pdf", documentHandler.Upload)
	route("GET /search", searchHandler.Search)
	route("GET /stats", statsHandler.GetStats)
	if docRepo != nil {
		route("GET /documents", documentHandler.List)
		route("GET /documents/{id}", documentHandler.Get)
		route("DELETE /documents/{id}", documentHandler.Delete)
	}
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("GET /metrics", recorder.Handler())

	a.Handler = middleware.CorrelationID(middleware.Recover(mux))
	return a, nil
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.port),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server starting", "port", a.port)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Close releases resources owned by the app itself, such as the query log.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
