package db

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"

	"github.com/modcrafter77/hyperspot/pkg/logger"
)

// Migrator applies goose migrations against a module's database handle.
type Migrator struct {
	handle     *Handle
	migrations fs.FS
	dir        string
}

// NewMigrator creates a migrator over an embedded migrations filesystem.
func NewMigrator(handle *Handle, migrations fs.FS, dir string) *Migrator {
	return &Migrator{
		handle:     handle,
		migrations: migrations,
		dir:        dir,
	}
}

func (m *Migrator) dialect() string {
	switch m.handle.Dialect {
	case DialectSQLite:
		return "sqlite3"
	default:
		return "postgres"
	}
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	goose.SetBaseFS(m.migrations)

	if err := goose.SetDialect(m.dialect()); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, m.handle.SQL(), m.dir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Log.Info("Migrations applied successfully")
	return nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) error {
	goose.SetBaseFS(m.migrations)

	if err := goose.SetDialect(m.dialect()); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	if err := goose.DownContext(ctx, m.handle.SQL(), m.dir); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	logger.Log.Info("Migration rolled back successfully")
	return nil
}

// Status prints the migration status.
func (m *Migrator) Status(ctx context.Context) error {
	goose.SetBaseFS(m.migrations)

	if err := goose.SetDialect(m.dialect()); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	return goose.StatusContext(ctx, m.handle.SQL(), m.dir)
}
