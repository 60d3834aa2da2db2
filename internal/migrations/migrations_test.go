package migrations

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate-test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrator_SQLite_Up(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, os.DirFS("../../schema/db/migrations"), "sqlite")
	applied, err := migrator.Up(ctx)
	if err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	if len(applied) != 1 || applied[0] != "20261017000000" {
		t.Fatalf("unexpected applied versions: %v", applied)
	}

	var count int
	err = db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
		"process_instances",
	).Scan(&count)
	if err != nil {
		t.Fatalf("failed to query for table: %v", err)
	}
	if count != 1 {
		t.Errorf("table process_instances should exist, but count=%d", count)
	}

	// Running again is a no-op.
	applied, err = migrator.Up(ctx)
	if err != nil {
		t.Fatalf("second Up failed: %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("expected no pending migrations, got %v", applied)
	}

	versions, err := migrator.Applied(ctx)
	if err != nil {
		t.Fatalf("Applied failed: %v", err)
	}
	if !versions["20261017000000"] {
		t.Errorf("expected version to be recorded, got %v", versions)
	}
}

func TestMigrator_MissingDirectory(t *testing.T) {
	db := openTestDB(t)

	migrator := NewMigrator(db, fstest.MapFS{}, "oracle")
	if _, err := migrator.Up(context.Background()); err == nil {
		t.Fatal("expected error for missing migrations directory")
	}
}

func TestMigrator_SkipsFilesWithoutUpSection(t *testing.T) {
	db := openTestDB(t)

	fsys := fstest.MapFS{
		"sqlite/001_empty.sql":  {Data: []byte("-- nothing here\n")},
		"sqlite/002_table.sql":  {Data: []byte("-- migrate:up\nCREATE TABLE t (id INTEGER);\n-- migrate:down\nDROP TABLE t;\n")},
		"sqlite/README.md":      {Data: []byte("ignored")},
		"postgresql/001_pg.sql": {Data: []byte("-- migrate:up\nSELECT 1;")},
	}

	applied, err := NewMigrator(db, fsys, "sqlite").Up(context.Background())
	if err != nil {
		t.Fatalf("Up failed: %v", err)
	}
	if len(applied) != 1 || applied[0] != "002" {
		t.Errorf("expected only 002 to be applied, got %v", applied)
	}
}

func TestExtractVersionFromFilename(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"20261017000000_process_instances.sql", "20261017000000"},
		{"001_init.sql", "001"},
		{"noversion.sql", "noversion"},
	}

	for _, tt := range tests {
		if got := ExtractVersionFromFilename(tt.filename); got != tt.want {
			t.Errorf("ExtractVersionFromFilename(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}

func TestParseMigrationFile(t *testing.T) {
	content := `-- migrate:up
CREATE TABLE a (id INTEGER);

-- migrate:down
DROP TABLE a;
`
	up, down := ParseMigrationFile(content)
	if up != "CREATE TABLE a (id INTEGER);" {
		t.Errorf("unexpected up section: %q", up)
	}
	if down != "DROP TABLE a;" {
		t.Errorf("unexpected down section: %q", down)
	}
}

func TestSplitStatements(t *testing.T) {
	content := `-- leading comment
CREATE TABLE a (id INTEGER);

-- comment between statements
CREATE INDEX idx_a ON a(id);
  ;
`
	stmts := SplitStatements(content)
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if stmts[0] != "CREATE TABLE a (id INTEGER)" {
		t.Errorf("unexpected first statement: %q", stmts[0])
	}
	if stmts[1] != "CREATE INDEX idx_a ON a(id)" {
		t.Errorf("unexpected second statement: %q", stmts[1])
	}
}
