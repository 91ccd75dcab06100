package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/yfschool/portal/pkg/db/models"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Print(" [up migration] ")

		_, err := db.NewRaw("CREATE SCHEMA IF NOT EXISTS portal").Exec(ctx)
		if err != nil {
			return err
		}

		_, err = db.NewCreateTable().
			Model((*models.User)(nil)).
			IfNotExists().
			Exec(ctx)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Print(" [down migration] ")

		_, err := db.NewDropTable().Model((*models.User)(nil)).IfExists().Exec(ctx)
		if err != nil {
			return err
		}

		_, err = db.NewRaw("DROP SCHEMA IF EXISTS portal").Exec(ctx)
		return err
	})
}
