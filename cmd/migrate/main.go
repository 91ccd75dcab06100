package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/uptrace/bun/migrate"
	"github.com/yfschool/portal/pkg/db"
	"github.com/yfschool/portal/pkg/plog"
)

// Usage: migrate [up|down]
func main() {
	logger := plog.NewDefault()

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found")
	} else {
		logger.Info("loaded .env file")
	}

	ctx := context.Background()

	cfg := db.Config{
		Host:     "localhost",
		Port:     5432,
		User:     "portal",
		Password: "password",
		Database: "portal",
		SSLMode:  "disable",
	}

	if err := envconfig.Process("DB", &cfg); err != nil {
		logger.Fatalf("failed to process env vars: %v", err)
	}

	database, err := db.New(ctx, cfg)
	if err != nil {
		logger.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close()

	direction := "up"
	if len(os.Args) > 1 {
		direction = os.Args[1]
	}

	var group *migrate.MigrationGroup
	switch direction {
	case "up":
		logger.Info("running migrations")
		group, err = db.Migrate(ctx, database)
	case "down":
		logger.Info("rolling back last migration group")
		group, err = db.Rollback(ctx, database)
	default:
		logger.Fatalf("unknown direction %q (want up or down)", direction)
	}
	if err != nil {
		logger.Fatal("migration failed", "error", err)
	}

	if group.IsZero() {
		logger.Info("database is up to date")
		return
	}
	logger.Info("migration group applied", "group", group.String(), "direction", direction)
}
