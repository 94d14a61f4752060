package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	qstore "docsearch/internal/adapter/qdrant"
	wstore "docsearch/internal/adapter/weaviate"
)

// IntegrationSuite starts the containers a test asks for and tears all of
// them down together. Callers skip under -short before touching it.
type IntegrationSuite struct {
	T        *testing.T
	DB       *sql.DB
	Qdrant   *qdrant.Client
	Weaviate *weaviate.Client

	containers []testcontainers.Container
}

func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	s := &IntegrationSuite{T: t}
	t.Cleanup(s.Teardown)
	return s
}

// StartPostgres runs postgres and applies the repository migrations.
func (s *IntegrationSuite) StartPostgres() *sql.DB {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("docsearch_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(s.T, err)
	s.containers = append(s.containers, pgContainer)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(s.T, err)

	s.DB, err = sql.Open("postgres", connStr)
	require.NoError(s.T, err)

	m, err := migrate.New(MigrationPath(), connStr)
	require.NoError(s.T, err)
	require.NoError(s.T, m.Up())

	return s.DB
}

// StartQdrant runs a qdrant node and returns a gRPC client for it.
func (s *IntegrationSuite) StartQdrant() *qdrant.Client {
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "qdrant/qdrant:v1.15.1",
			ExposedPorts: []string{"6333/tcp", "6334/tcp"},
			WaitingFor:   wait.ForHTTP("/readyz").WithPort("6333/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(s.T, err)
	s.containers = append(s.containers, c)

	host, err := c.Host(ctx)
	require.NoError(s.T, err)
	port, err := c.MappedPort(ctx, "6334")
	require.NoError(s.T, err)
	grpcPort, err := strconv.Atoi(port.Port())
	require.NoError(s.T, err)

	s.Qdrant, err = qstore.NewClient(qstore.Config{Host: host, Port: grpcPort})
	require.NoError(s.T, err)
	s.T.Cleanup(func() { s.Qdrant.Close() })

	return s.Qdrant
}

// StartWeaviate runs a weaviate node with vectorizers disabled.
func (s *IntegrationSuite) StartWeaviate() *weaviate.Client {
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "semitechnologies/weaviate:1.33.6",
			ExposedPorts: []string{"8080/tcp", "50051/tcp"},
			Env: map[string]string{
				"AUTHENTICATION_ANONYMOUS_ACCESS_ENABLED": "true",
				"DEFAULT_VECTORIZER_MODULE":               "none",
				"PERSISTENCE_DATA_PATH":                   "/var/lib/weaviate",
			},
			WaitingFor: wait.ForHTTP("/v1/meta").WithPort("8080/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(s.T, err)
	s.containers = append(s.containers, c)

	host, err := c.Host(ctx)
	require.NoError(s.T, err)
	port, err := c.MappedPort(ctx, "8080")
	require.NoError(s.T, err)

	s.Weaviate, err = wstore.NewClient(fmt.Sprintf("%s:%s", host, port.Port()), "http", "")
	require.NoError(s.T, err)

	return s.Weaviate
}

// StartNSQ runs nsqd and returns its TCP address.
func (s *IntegrationSuite) StartNSQ() string {
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nsqio/nsq:v1.3.0",
			ExposedPorts: []string{"4150/tcp", "4151/tcp"},
			Cmd:          []string{"/nsqd", "--broadcast-address=localhost"},
			WaitingFor:   wait.ForLog("TCP: listening on").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(s.T, err)
	s.containers = append(s.containers, c)

	host, err := c.Host(ctx)
	require.NoError(s.T, err)
	port, err := c.MappedPort(ctx, "4150")
	require.NoError(s.T, err)

	return fmt.Sprintf("%s:%s", host, port.Port())
}

func (s *IntegrationSuite) Teardown() {
	ctx := context.Background()
	if s.DB != nil {
		s.DB.Close()
	}
	for i := len(s.containers) - 1; i >= 0; i-- {
		if err := s.containers[i].Terminate(ctx); err != nil {
			s.T.Logf("failed to terminate container: %v", err)
		}
	}
	s.containers = nil
}

// MigrationPath is the file:// URL of the repository migrations directory.
func MigrationPath() string {
	_, b, _, _ := runtime.Caller(0)
	return fmt.Sprintf("file://%s", filepath.Join(filepath.Dir(b), "..", "..", "migrations"))
}
