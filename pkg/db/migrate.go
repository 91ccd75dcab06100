package db

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"github.com/yfschool/portal/pkg/db/migrations"
)

// Migrate applies pending migrations and returns the applied group, which
// is empty (ID 0) when the schema was already up to date.
func Migrate(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	migrator := migrate.NewMigrator(db, migrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to init migrations: %w", err)
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return group, nil
}

// Rollback reverts the last applied migration group.
func Rollback(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	migrator := migrate.NewMigrator(db, migrations.Migrations)
	group, err := migrator.Rollback(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to roll back: %w", err)
	}
	return group, nil
}
