// Package db provides the PostgreSQL pool, the migration runner and the
// strategy repository
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migrations returns the schema migrations bundled with the binary
func Migrations() fs.FS {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
	Filename    string
}

// MigrationStatus reports whether a migration has been applied
type MigrationStatus struct {
	Migration
	Applied   bool
	AppliedAt *time.Time
}

// Migrator applies versioned SQL files and records them in schema_version
type Migrator struct {
	db    *sql.DB
	files fs.FS
}

// NewMigrator creates a migration runner over files; nil uses the embedded set
func NewMigrator(db *sql.DB, files fs.FS) *Migrator {
	if files == nil {
		files = Migrations()
	}
	return &Migrator{db: db, files: files}
}

// OpenSQL opens a database/sql handle using the postgres driver
func OpenSQL(dsn string) (*sql.DB, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return sqlDB, nil
}

func (m *Migrator) ensureSchemaVersionTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW(),
			description TEXT
		);
	`
	_, err := m.db.ExecContext(ctx, query)
	return err
}

func (m *Migrator) getCurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// LoadMigrations reads every up migration in version order. Files must be
// named NNN_description.sql; NNN_description_down.sql files are skipped.
func LoadMigrations(files fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".sql" || strings.HasSuffix(name, "_down.sql") {
			continue
		}

		var version int
		var description string
		if _, err := fmt.Sscanf(name, "%d_%s", &version, &description); err != nil || version <= 0 {
			return nil, fmt.Errorf("invalid migration filename format: %s (expected: NNN_description.sql)", name)
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %d: %s and %s", version, other, name)
		}
		seen[version] = name

		content, err := fs.ReadFile(files, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", name, err)
		}

		description = strings.ReplaceAll(strings.TrimSuffix(description, ".sql"), "_", " ")
		migrations = append(migrations, Migration{
			Version:     version,
			Description: description,
			SQL:         string(content),
			Filename:    name,
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Migrate runs all pending migrations and returns how many were applied
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	if err := m.ensureSchemaVersionTable(ctx); err != nil {
		return 0, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	currentVersion, err := m.getCurrentVersion(ctx)
	if err != nil {
		return 0, err
	}

	migrations, err := LoadMigrations(m.files)
	if err != nil {
		return 0, err
	}

	var pending []Migration
	for _, migration := range migrations {
		if migration.Version > currentVersion {
			pending = append(pending, migration)
		}
	}

	if len(pending) == 0 {
		log.Info().Int("version", currentVersion).Msg("Database is up to date")
		return 0, nil
	}

	log.Info().
		Int("current_version", currentVersion).
		Int("pending", len(pending)).
		Msg("Applying migrations")

	for _, migration := range pending {
		if err := m.applyMigration(ctx, migration); err != nil {
			return 0, fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}

	log.Info().Int("version", pending[len(pending)-1].Version).Msg("Migration complete")
	return len(pending), nil
}

func (m *Migrator) applyMigration(ctx context.Context, migration Migration) error {
	log.Info().
		Int("version", migration.Version).
		Str("description", migration.Description).
		Msg("Applying migration")

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_version (version, description) VALUES ($1, $2) ON CONFLICT (version) DO NOTHING",
		migration.Version,
		migration.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to record migration version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Status lists every known migration with its applied state
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.ensureSchemaVersionTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, "SELECT version, applied_at FROM schema_version")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("failed to scan schema_version: %w", err)
		}
		applied[version] = at
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	migrations, err := LoadMigrations(m.files)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, len(migrations))
	for i, migration := range migrations {
		statuses[i] = MigrationStatus{Migration: migration}
		if at, ok := applied[migration.Version]; ok {
			statuses[i].Applied = true
			statuses[i].AppliedAt = &at
		}
	}
	return statuses, nil
}
