// Package testutil spins up a real Postgres instance for integration
// tests via testcontainers-go, grounded on the teacher's own
// internal/testutil/containers.go.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/shyding/kura-spool/internal/pkg/logger"
	"github.com/shyding/kura-spool/internal/schema"
)

// PostgresContainer wraps a PostgreSQL testcontainer with the messages
// schema already applied.
type PostgresContainer struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
}

// NewPostgresContainer starts a Postgres container, connects to it, and
// runs schema.Manager.Start against it.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("kura_spool_test"),
		postgres.WithUsername("spool_test"),
		postgres.WithPassword("spool_test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to create connection pool: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	noopLogger, err := logger.New("error", "console")
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	if err := schema.NewManager(pool, noopLogger).Start(ctx); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}

	return &PostgresContainer{Container: container, Pool: pool}
}

// CleanTable truncates the messages table and restarts its identity
// sequence, for test isolation between cases sharing one container.
func (pc *PostgresContainer) CleanTable(ctx context.Context, t *testing.T) {
	t.Helper()
	if _, err := pc.Pool.Exec(ctx, "TRUNCATE messages RESTART IDENTITY"); err != nil {
		t.Fatalf("failed to truncate messages: %v", err)
	}
}
