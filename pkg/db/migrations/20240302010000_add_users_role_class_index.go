package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Print(" [up migration] ")

		stmts := []string{
			"ALTER TABLE portal.users ADD CONSTRAINT portal_users_role_check CHECK (role IN ('student', 'teacher'))",
			"CREATE INDEX IF NOT EXISTS portal_users_role_class_idx ON portal.users (role, class_name)",
		}

		for _, stmt := range stmts {
			if _, err := db.NewRaw(stmt).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Print(" [down migration] ")

		stmts := []string{
			"DROP INDEX IF EXISTS portal.portal_users_role_class_idx",
			"ALTER TABLE portal.users DROP CONSTRAINT IF EXISTS portal_users_role_check",
		}

		for _, stmt := range stmts {
			if _, err := db.NewRaw(stmt).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}
