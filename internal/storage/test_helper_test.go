package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/i2y/vistore/internal/migrations"
)

// schemaFS points at the migrations shipped with the module.
var schemaFS = os.DirFS("../../schema/db/migrations")

// initializeTestSchema applies the shipped migrations to s.
func initializeTestSchema(ctx context.Context, s Storage) error {
	_, err := migrations.NewMigrator(s.DB(), schemaFS, s.Driver().MigrationsDir()).Up(ctx)
	return err
}

func newTestSQLiteStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "vistore-test.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := initializeTestSchema(context.Background(), s); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}
	return s
}

func strPtr(s string) *string {
	return &s
}
