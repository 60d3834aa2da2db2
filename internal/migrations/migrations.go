// Package migrations applies dbmate-compatible schema migrations.
//
// The migration system is compatible with dbmate:
//   - Uses the same `schema_migrations` table for tracking applied migrations
//   - Reads the same `-- migrate:up` / `-- migrate:down` SQL format
//   - Supports SQLite, PostgreSQL, and MySQL
package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strings"
)

var (
	versionRe = regexp.MustCompile(`^(\d+)_`)
	upRe      = regexp.MustCompile(`(?s)-- migrate:up\s*(.*?)(?:-- migrate:down|$)`)
	downRe    = regexp.MustCompile(`(?s)-- migrate:down\s*(.*)$`)
)

// Migrator applies the migrations of one dialect directory to a database.
type Migrator struct {
	db     *sql.DB
	dir    string
	fsys   fs.FS
	logger *slog.Logger
}

// NewMigrator returns a Migrator reading dir (e.g. "sqlite", "postgresql",
// "mysql") from fsys.
func NewMigrator(db *sql.DB, fsys fs.FS, dir string) *Migrator {
	return &Migrator{
		db:     db,
		dir:    dir,
		fsys:   fsys,
		logger: slog.Default(),
	}
}

// WithLogger replaces the logger used to report progress.
func (m *Migrator) WithLogger(l *slog.Logger) *Migrator {
	m.logger = l
	return m
}

// Up applies every pending migration in version order and returns the
// versions it applied. Migrations recorded by a concurrent worker are skipped.
func (m *Migrator) Up(ctx context.Context) ([]string, error) {
	entries, err := fs.ReadDir(m.fsys, m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory %q: %w", m.dir, err)
	}

	if err := m.ensureSchemaMigrationsTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	var appliedVersions []string
	for _, filename := range files {
		version := ExtractVersionFromFilename(filename)
		if applied[version] {
			m.logger.Debug("migration already applied, skipping", "version", version)
			continue
		}

		content, err := fs.ReadFile(m.fsys, path.Join(m.dir, filename))
		if err != nil {
			return appliedVersions, fmt.Errorf("failed to read migration file %s: %w", filename, err)
		}

		upSQL, _ := ParseMigrationFile(string(content))
		if upSQL == "" {
			m.logger.Warn("no '-- migrate:up' section found", "filename", filename)
			continue
		}

		m.logger.Info("applying migration", "filename", filename)
		if err := m.execStatements(ctx, upSQL); err != nil {
			return appliedVersions, fmt.Errorf("failed to apply migration %s: %w", version, err)
		}

		recorded, err := m.record(ctx, version)
		if err != nil {
			return appliedVersions, fmt.Errorf("failed to record migration %s: %w", version, err)
		}
		if !recorded {
			m.logger.Debug("migration was applied by another worker", "version", version)
			continue
		}
		appliedVersions = append(appliedVersions, version)
	}

	if len(appliedVersions) > 0 {
		m.logger.Info("applied migrations", "count", len(appliedVersions))
	}
	return appliedVersions, nil
}

// Applied returns the set of recorded migration versions.
func (m *Migrator) Applied(ctx context.Context) (map[string]bool, error) {
	applied := make(map[string]bool)

	rows, err := m.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		// Table might not exist yet
		return applied, nil
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (m *Migrator) ensureSchemaMigrationsTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY
		)
	`)
	if err != nil && isAlreadyExists(err) {
		return nil
	}
	return err
}

// record inserts version into schema_migrations. It returns false if another
// worker recorded it first.
func (m *Migrator) record(ctx context.Context, version string) (bool, error) {
	query := "INSERT INTO schema_migrations (version) VALUES (?)"
	if m.dir == "postgresql" {
		query = "INSERT INTO schema_migrations (version) VALUES ($1)"
	}

	if _, err := m.db.ExecContext(ctx, query, version); err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "unique") ||
			strings.Contains(msg, "duplicate") ||
			strings.Contains(msg, "constraint") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// execStatements runs each statement of a migration section, tolerating
// objects that already exist.
func (m *Migrator) execStatements(ctx context.Context, content string) error {
	for _, stmt := range SplitStatements(content) {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			if isAlreadyExists(err) {
				m.logger.Debug("object already exists, skipping", "error", err)
				continue
			}
			return fmt.Errorf("failed to execute SQL: %w", err)
		}
	}
	return nil
}

// ExtractVersionFromFilename extracts version from migration filename.
//
// dbmate uses format: YYYYMMDDHHMMSS_description.sql
// Example: "20261017000000_process_instances.sql" -> "20261017000000"
func ExtractVersionFromFilename(filename string) string {
	if match := versionRe.FindStringSubmatch(filename); len(match) > 1 {
		return match[1]
	}
	return strings.TrimSuffix(filename, ".sql")
}

// ParseMigrationFile parses dbmate migration file content.
func ParseMigrationFile(content string) (upSQL string, downSQL string) {
	if match := upRe.FindStringSubmatch(content); len(match) > 1 {
		upSQL = strings.TrimSpace(match[1])
	}
	if match := downRe.FindStringSubmatch(content); len(match) > 1 {
		downSQL = strings.TrimSpace(match[1])
	}
	return upSQL, downSQL
}

// SplitStatements splits SQL content on semicolons and strips comment-only
// lines. Semicolons inside string literals are not supported.
func SplitStatements(content string) []string {
	var result []string
	for _, part := range strings.Split(content, ";") {
		var lines []string
		for _, line := range strings.Split(part, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "--") {
				continue
			}
			lines = append(lines, line)
		}
		if stmt := strings.TrimSpace(strings.Join(lines, "\n")); stmt != "" {
			result = append(result, stmt)
		}
	}
	return result
}

func isAlreadyExists(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "42p07") // PostgreSQL: relation already exists
}
