package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalid         = errors.New("invalid configuration")
)

const (
	BackendQdrant   = "qdrant"
	BackendWeaviate = "weaviate"

	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	// Vector store
	VectorBackend   string `envconfig:"VECTOR_BACKEND" default:"qdrant"`
	QdrantURL       string `envconfig:"QDRANT_URL" default:"http://localhost:6333"`
	QdrantGRPCPort  int    `envconfig:"QDRANT_GRPC_PORT" default:"6334"`
	QdrantAPIKey    string `envconfig:"QDRANT_API_KEY"`
	WeaviateHost    string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme  string `envconfig:"WEAVIATE_SCHEME" default:"http"`
	WeaviateAPIKey  string `envconfig:"WEAVIATE_API_KEY"`
	CollectionName  string `envconfig:"COLLECTION_NAME" default:"Attention_Qdrant"`
	VectorDimension int    `envconfig:"VECTOR_DIMENSION" default:"1536"`

	// Embeddings
	EmbeddingProvider  string  `envconfig:"EMBEDDING_PROVIDER" default:"openai"`
	OpenAIAPIKey       string  `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL      string  `envconfig:"OPENAI_BASE_URL"`
	GeminiAPIKey       string  `envconfig:"GEMINI_API_KEY"`
	EmbeddingModel     string  `envconfig:"EMBEDDING_MODEL"`
	EmbeddingBatchSize int     `envconfig:"EMBEDDING_BATCH_SIZE" default:"256"`
	EmbeddingRPS       float64 `envconfig:"EMBEDDING_REQUESTS_PER_SECOND" default:"0"`

	// Chunking & search
	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"500"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"50"`
	SearchTopK   int `envconfig:"SEARCH_TOP_K" default:"5"`

	// Server
	ServerPort      int    `envconfig:"SERVER_PORT" default:"8000"`
	MaxUploadSizeMB int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"50"`
	UploadDir       string `envconfig:"UPLOAD_DIR"`
	QueryLogPath    string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`

	// Document registry
	RegistryEnabled bool   `envconfig:"REGISTRY_ENABLED" default:"false"`
	DBHost          string `envconfig:"DB_HOST" default:"localhost"`
	DBPort          int    `envconfig:"DB_PORT" default:"5432"`
	DBUser          string `envconfig:"DB_USER" default:"docsearch"`
	DBPass          string `envconfig:"DB_PASS" default:"password"`
	DBName          string `envconfig:"DB_NAME" default:"docsearch"`
	MigrationPath   string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Events, empty disables publishing
	NSQDHost string `envconfig:"NSQD_HOST"`

	// Ingest worker
	WorkerMaxInFlight    int `envconfig:"WORKER_MAX_IN_FLIGHT" default:"1"`
	WorkerMaxAttempts    int `envconfig:"WORKER_MAX_ATTEMPTS" default:"5"`
	WorkerTimeoutSeconds int `envconfig:"WORKER_TIMEOUT_SECONDS" default:"600"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars set in the shell win over .env
	_ = godotenv.Load(".env")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if cfg.UploadDir == "" {
		cfg.UploadDir = os.TempDir()
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel(cfg.EmbeddingProvider)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DefaultEmbeddingModel returns the model used when EMBEDDING_MODEL is unset.
func DefaultEmbeddingModel(provider string) string {
	if provider == ProviderGemini {
		return "text-embedding-004"
	}
	return "text-embedding-3-small"
}

func (c *Config) Validate() error {
	switch c.VectorBackend {
	case BackendQdrant:
		if c.QdrantURL == "" {
			return fmt.Errorf("%w: QDRANT_URL", ErrMissingRequired)
		}
		if _, _, err := c.QdrantEndpoint(); err != nil {
			return err
		}
	case BackendWeaviate:
		if c.WeaviateHost == "" {
			return fmt.Errorf("%w: WEAVIATE_HOST", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: VECTOR_BACKEND %q", ErrInvalid, c.VectorBackend)
	}

	switch c.EmbeddingProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingRequired)
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: EMBEDDING_PROVIDER %q", ErrInvalid, c.EmbeddingProvider)
	}

	if c.CollectionName == "" {
		return fmt.Errorf("%w: COLLECTION_NAME", ErrMissingRequired)
	}
	if c.VectorDimension <= 0 {
		return fmt.Errorf("%w: VECTOR_DIMENSION must be positive", ErrInvalid)
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: CHUNK_OVERLAP must be in [0, CHUNK_SIZE)", ErrInvalid)
	}
	if c.EmbeddingBatchSize <= 0 {
		return fmt.Errorf("%w: EMBEDDING_BATCH_SIZE must be positive", ErrInvalid)
	}
	if c.SearchTopK <= 0 {
		return fmt.Errorf("%w: SEARCH_TOP_K must be positive", ErrInvalid)
	}

	if c.RegistryEnabled {
		if c.DBHost == "" {
			return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
		}
		if c.DBUser == "" {
			return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
		}
		if c.DBName == "" {
			return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
		}
	}
	return nil
}

// QdrantEndpoint splits QDRANT_URL into the gRPC host and whether TLS is required.
// The REST port in the URL is ignored; the client talks to QDRANT_GRPC_PORT.
func (c *Config) QdrantEndpoint() (host string, useTLS bool, err error) {
	raw := c.QdrantURL
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("%w: QDRANT_URL: %v", ErrInvalid, err)
	}
	if u.Hostname() == "" {
		return "", false, fmt.Errorf("%w: QDRANT_URL has no host", ErrInvalid)
	}
	return u.Hostname(), u.Scheme == "https", nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName)
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
