//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgresContainer(t *testing.T) *PostgresStorage {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("vistore_test"),
		postgres.WithUsername("vistore"),
		postgres.WithPassword("vistore"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute)),
	)
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Fatalf("failed to start PostgreSQL container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	store, err := NewPostgresStorage(connStr)
	if err != nil {
		t.Fatalf("failed to create PostgreSQL storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := initializeTestSchema(ctx, store); err != nil {
		t.Fatalf("failed to initialize test schema: %v", err)
	}
	return store
}

func TestPostgresIntegration_Suite(t *testing.T) {
	runInstanceSuite(t, setupPostgresContainer(t))
}

func TestPostgresIntegration_InitializeIsIdempotent(t *testing.T) {
	store := setupPostgresContainer(t)

	if err := initializeTestSchema(context.Background(), store); err != nil {
		t.Fatalf("second initializeTestSchema failed: %v", err)
	}
}
