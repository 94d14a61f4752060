package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"

	"docsearch/internal/adapter/gemini"
	"docsearch/internal/adapter/openai"
	qstore "docsearch/internal/adapter/qdrant"
	wstore "docsearch/internal/adapter/weaviate"
	"docsearch/internal/config"
	"docsearch/internal/embedding"
	"docsearch/internal/events"
	"docsearch/internal/vector"
)

type Dependencies struct {
	Store    vector.Store
	Embedder embedding.Embedder
	// DB is nil unless the document registry is enabled.
	DB *sql.DB
	// NSQProducer is nil unless NSQD_HOST is set.
	NSQProducer *nsq.Producer

	closers []func() error
}

// Close releases every client Bootstrap opened, in reverse order.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dependencies) onClose(fn func() error) {
	d.closers = append(d.closers, fn)
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{}
	fail := func(err error) (*Dependencies, error) {
		_ = deps.Close()
		return nil, err
	}
	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second

	// Vector store
	store, err := newStore(cfg, deps)
	if err != nil {
		return fail(err)
	}
	spec := vector.CollectionSpec{Name: cfg.CollectionName, Dimension: cfg.VectorDimension, Metric: vector.MetricCosine}
	if err := EnsureCollectionWithRetry(ctx, store, spec, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
		return fail(fmt.Errorf("vector collection error: %w", err))
	}
	deps.Store = store
	slog.InfoContext(ctx, "vector collection ready", "backend", cfg.VectorBackend, "collection", cfg.CollectionName, "dimension", cfg.VectorDimension)

	// Embeddings
	embedder, err := newEmbedder(ctx, cfg, deps)
	if err != nil {
		return fail(err)
	}
	deps.Embedder = embedding.NewLimited(embedder, cfg.EmbeddingRPS)

	// Document registry
	if cfg.RegistryEnabled {
		db, err := openDB(ctx, cfg, retryDelay)
		if err != nil {
			return fail(err)
		}
		deps.onClose(db.Close)
		if err := migrateUp(db, cfg.MigrationPath); err != nil {
			return fail(err)
		}
		deps.DB = db
	}

	// NSQ producer
	if cfg.NSQDHost != "" {
		producer, err := events.NewProducer(cfg.NSQDHost)
		if err != nil {
			return fail(fmt.Errorf("nsq producer error: %w", err))
		}
		deps.onClose(func() error { producer.Stop(); return nil })
		deps.NSQProducer = producer
	}

	return deps, nil
}

func newStore(cfg *config.Config, deps *Dependencies) (vector.Store, error) {
	switch cfg.VectorBackend {
	case config.BackendQdrant:
		host, useTLS, err := cfg.QdrantEndpoint()
		if err != nil {
			return nil, err
		}
		client, err := qstore.NewClient(qstore.Config{
			Host:   host,
			Port:   cfg.QdrantGRPCPort,
			APIKey: cfg.QdrantAPIKey,
			UseTLS: useTLS,
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant client error: %w", err)
		}
		deps.onClose(client.Close)
		return qstore.NewStore(client), nil
	case config.BackendWeaviate:
		client, err := wstore.NewClient(cfg.WeaviateHost, cfg.WeaviateScheme, cfg.WeaviateAPIKey)
		if err != nil {
			return nil, fmt.Errorf("weaviate client error: %w", err)
		}
		return wstore.NewStore(client), nil
	default:
		return nil, fmt.Errorf("%w: VECTOR_BACKEND %q", config.ErrInvalid, cfg.VectorBackend)
	}
}

func newEmbedder(ctx context.Context, cfg *config.Config, deps *Dependencies) (embedding.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case config.ProviderOpenAI:
		return openai.NewEmbedder(openai.Config{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.EmbeddingModel,
			Dimensions: cfg.VectorDimension,
			BatchSize:  cfg.EmbeddingBatchSize,
		}), nil
	case config.ProviderGemini:
		e, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel, cfg.EmbeddingBatchSize)
		if err != nil {
			return nil, fmt.Errorf("gemini client error: %w", err)
		}
		deps.onClose(e.Close)
		return e, nil
	default:
		return nil, fmt.Errorf("%w: EMBEDDING_PROVIDER %q", config.ErrInvalid, cfg.EmbeddingProvider)
	}
}

func openDB(ctx context.Context, cfg *config.Config, retryDelay time.Duration) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			return db, nil
		}
		slog.WarnContext(ctx, "failed to ping db, retrying...", "attempt", i+1, "error", err)
		if !sleep(ctx, retryDelay) {
			break
		}
	}
	if err == nil {
		err = db.PingContext(ctx)
	}
	_ = db.Close()
	return nil, fmt.Errorf("failed to ping db: %w", err)
}

func migrateUp(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up error: %w", err)
	}
	return nil
}

// EnsureCollectionWithRetry retries vector.EnsureCollection while the store
// is unreachable. A dimension mismatch is permanent and returned at once.
func EnsureCollectionWithRetry(ctx context.Context, client vector.CollectionClient, spec vector.CollectionSpec, attempts int, delay time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = vector.EnsureCollection(ctx, client, spec); err == nil {
			return nil
		}
		if errors.Is(err, vector.ErrDimensionMismatch) {
			return err
		}
		slog.WarnContext(ctx, "failed to ensure vector collection, retrying...", "attempt", i+1, "error", err)
		if i < attempts-1 && !sleep(ctx, delay) {
			return errors.Join(err, ctx.Err())
		}
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
