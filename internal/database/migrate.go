package database

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies all pending schema migrations.
func (db *DB) Migrate(ctx context.Context) error {
	if err := RunMigrations(ctx, db.Pool); err != nil {
		return err
	}
	if db.logger != nil {
		logMigrationVersion(ctx, db.Pool, db.logger)
	}
	return nil
}

// RunMigrations applies the embedded goose migrations against pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	// goose needs a database/sql handle
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// logMigrationVersion reports the schema version after startup migrations.
func logMigrationVersion(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) {
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	version, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		logger.Warn("unable to read schema version", slog.Any("error", err))
		return
	}
	logger.Info("schema version", slog.Int64("version", version))
}
