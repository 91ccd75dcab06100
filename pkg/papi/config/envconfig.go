package config

import (
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/yfschool/portal/pkg/papi/utils"
)

// User directory backends selectable through USER_STORE.
const (
	UserStoreMemory   = "memory"
	UserStorePostgres = "postgres"
)

type EnvConfig struct {
	Port                string `envconfig:"PORT" default:"8000"`
	BaseURL             string `envconfig:"BASE_URL" default:"http://localhost:8000"`
	AuthSecret          string `envconfig:"AUTH_SECRET" required:"true"`
	Environment         string `envconfig:"ENVIRONMENT" default:"development"`
	AccessTokenTTL      int    `envconfig:"ACCESS_TOKEN_TTL" default:"300"`
	RefreshTokenTTL     int    `envconfig:"REFRESH_TOKEN_TTL" default:"86400"` // 1 day
	RotateRefreshTokens bool   `envconfig:"ROTATE_REFRESH_TOKENS" default:"false"`
	UserStore           string `envconfig:"USER_STORE" default:"memory"`
	SeedUsers           string `envconfig:"SEED_USERS"`
	KVAddr              string `envconfig:"KV_ADDR"`
	KVPassword          string `envconfig:"KV_PASSWORD"`
	KVDB                int    `envconfig:"KV_DB" default:"0"`
	DBHost              string `envconfig:"DB_HOST" default:"localhost"`
	DBPort              int    `envconfig:"DB_PORT" default:"5432"`
	DBUser              string `envconfig:"DB_USER" default:"portal"`
	DBPassword          string `envconfig:"DB_PASSWORD" default:"password"`
	DBName              string `envconfig:"DB_NAME" default:"portal"`
	DBSSLMode           string `envconfig:"DB_SSLMODE" default:"disable"`
}

func ValidateEnv() (*EnvConfig, error) {
	if utils.CurrentEnvironment().IsDev() {
		if err := godotenv.Load(); err != nil {
			log.Println("ℹ No .env file found")
		} else {
			log.Println("✓ Loaded .env file")
		}
	}

	var cfg EnvConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *EnvConfig) Validate() error {
	var errors []string

	if len(c.AuthSecret) < 32 {
		errors = append(errors, "  ❌ AUTH_SECRET must be at least 32 characters")
	}

	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		errors = append(errors, "  ❌ BASE_URL must be a valid URL")
	}

	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		errors = append(errors, "  ❌ ACCESS_TOKEN_TTL and REFRESH_TOKEN_TTL must be positive")
	}

	env, err := utils.ParseEnvironment(c.Environment)
	if err != nil {
		errors = append(errors, "  ❌ ENVIRONMENT must be development, staging or production")
	}

	if env.IsProd() && c.UserStore == UserStoreMemory {
		errors = append(errors, "  ❌ USER_STORE=memory is not allowed in production")
	}

	switch c.UserStore {
	case UserStoreMemory, UserStorePostgres:
	default:
		errors = append(errors, fmt.Sprintf("  ❌ USER_STORE must be %q or %q", UserStoreMemory, UserStorePostgres))
	}

	if len(errors) > 0 {
		return fmt.Errorf("environment validation failed:\n%s", strings.Join(errors, "\n"))
	}
	return nil
}

// Env returns the parsed ENVIRONMENT. Validate has already rejected
// unknown values.
func (c *EnvConfig) Env() utils.Environment {
	env, _ := utils.ParseEnvironment(c.Environment)
	return env
}

func MaskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

func (c *EnvConfig) Print(fmtr func(string, ...interface{})) {
	fmtr("📋 Configuration:\n")
	fmtr("  Environment: %s\n", c.Environment)
	fmtr("  Port: %s\n", c.Port)
	fmtr("  Base URL: %s\n", c.BaseURL)
	fmtr("  Auth Secret: %s\n", MaskSecret(c.AuthSecret))
	fmtr("  Access TTL: %ds\n", c.AccessTokenTTL)
	fmtr("  Refresh TTL: %ds\n", c.RefreshTokenTTL)

	if c.RotateRefreshTokens {
		fmtr("  Refresh rotation: ✓ Enabled\n")
	} else {
		fmtr("  Refresh rotation: ✗ Disabled\n")
	}

	if c.UserStore == UserStorePostgres {
		fmtr("  Users: postgres %s@%s:%d/%s (sslmode=%s)\n", c.DBUser, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
	} else {
		fmtr("  Users: in-memory\n")
	}

	if c.KVAddr != "" {
		fmtr("  KV: valkey %s (db %d, password %s)\n", c.KVAddr, c.KVDB, MaskSecret(c.KVPassword))
	} else {
		fmtr("  KV: in-memory\n")
	}
}
