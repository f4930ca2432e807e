// Package testhelpers starts throwaway PostgreSQL containers for
// integration tests
package testhelpers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ajitpratap0/stratforge/internal/db"
)

// PostgresContainer holds the testcontainer instance and connection details
type PostgresContainer struct {
	Container     *postgres.PostgresContainer
	ConnectionStr string
	DB            *db.DB
	t             *testing.T
}

// SetupTestDatabase starts a PostgreSQL container and connects a pool to it.
// The container is terminated when the test finishes.
func SetupTestDatabase(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("stratforge_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("testpassword"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to get connection string: %v", err)
	}

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to parse connection string: %v", err)
	}
	config.MaxConns = 5
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to create connection pool: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to ping database: %v", err)
	}

	tc := &PostgresContainer{
		Container:     container,
		ConnectionStr: connStr,
		DB:            db.NewFromPool(pool),
		t:             t,
	}
	t.Cleanup(tc.Cleanup)

	return tc
}

// ApplyMigrations runs the embedded schema migrations through the migrator
func (tc *PostgresContainer) ApplyMigrations() (int, error) {
	tc.t.Helper()

	sqlDB, err := db.OpenSQL(tc.ConnectionStr)
	if err != nil {
		return 0, err
	}
	defer sqlDB.Close()

	return db.NewMigrator(sqlDB, nil).Migrate(context.Background())
}

// Cleanup closes the pool and terminates the container
func (tc *PostgresContainer) Cleanup() {
	ctx := context.Background()

	if tc.DB != nil {
		tc.DB.Close()
	}

	if tc.Container != nil {
		if err := tc.Container.Terminate(ctx); err != nil {
			tc.t.Logf("Failed to terminate container: %v", err)
		}
	}
}

// TruncateAllTables clears every application table between subtests
func (tc *PostgresContainer) TruncateAllTables() error {
	ctx := context.Background()
	for _, table := range []string{"strategy_history", "strategies", "optimization_runs"} {
		if _, err := tc.DB.Pool().Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate %s: %w", table, err)
		}
	}
	return nil
}
