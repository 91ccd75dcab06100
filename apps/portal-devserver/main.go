package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yfschool/portal/pkg/db"
	"github.com/yfschool/portal/pkg/kv"
	"github.com/yfschool/portal/pkg/papi"
	"github.com/yfschool/portal/pkg/papi/config"
	"github.com/yfschool/portal/pkg/papi/services"
	"github.com/yfschool/portal/pkg/papi/services/users"
	"github.com/yfschool/portal/pkg/plog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.ValidateEnv()
	if err != nil {
		log.Fatalf("❌ %v\n", err)
	}

	cfg.Print(log.Printf)

	logger := plog.NewDefault()
	if cfg.Env().IsDev() {
		logger = plog.NewVerbose()
	}

	dir, closeDir, err := openDirectory(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open user directory", "error", err)
	}
	defer closeDir()

	seeds, err := users.ParseSeeds(cfg.SeedUsers)
	if err != nil {
		logger.Fatal("invalid SEED_USERS", "error", err)
	}
	if err := users.Provision(ctx, dir, seeds); err != nil {
		logger.Fatal("failed to seed users", "error", err)
	}

	kvStore, err := openKV(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open kv store", "error", err)
	}
	defer kvStore.Close()

	svcs := services.NewServices(cfg, dir, kvStore, logger.Logger)
	api := papi.New(svcs, logger.Logger)

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("🚀 Portal API starting on %s\n", addr)
	log.Printf("📚 OpenAPI docs: %s/docs\n", cfg.BaseURL)
	log.Printf("📄 OpenAPI spec: %s/openapi.json\n", cfg.BaseURL)
	log.Printf("🔐 Auth endpoints:\n")
	log.Printf("   - Login:   %s/api/login/", cfg.BaseURL)
	log.Printf("   - Refresh: %s/api/token/refresh/", cfg.BaseURL)
	log.Printf("   - Logout:  %s/api/logout/", cfg.BaseURL)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func openDirectory(ctx context.Context, cfg *config.EnvConfig) (users.Directory, func(), error) {
	if cfg.UserStore != config.UserStorePostgres {
		return users.NewMemoryDirectory(), func() {}, nil
	}

	database, err := db.New(ctx, db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if _, err := db.Migrate(ctx, database); err != nil {
		database.Close()
		return nil, nil, err
	}
	return users.NewBunDirectory(database), func() { database.Close() }, nil
}

func openKV(ctx context.Context, cfg *config.EnvConfig) (kv.Store, error) {
	if cfg.KVAddr == "" {
		return kv.NewMemoryStore(), nil
	}
	return kv.NewValkeyStore(ctx, kv.ValkeyConfig{
		Addr:     cfg.KVAddr,
		Password: cfg.KVPassword,
		DB:       cfg.KVDB,
	})
}
