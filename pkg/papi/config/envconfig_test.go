package config

import (
	"strings"
	"testing"
)

func validConfig() *EnvConfig {
	return &EnvConfig{
		BaseURL:         "http://localhost:8000",
		AuthSecret:      strings.Repeat("s", 32),
		AccessTokenTTL:  300,
		RefreshTokenTTL: 86400,
		UserStore:       UserStoreMemory,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*EnvConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*EnvConfig) {}},
		{name: "short secret", mutate: func(c *EnvConfig) { c.AuthSecret = "short" }, wantErr: "AUTH_SECRET"},
		{name: "bad base url", mutate: func(c *EnvConfig) { c.BaseURL = "not a url" }, wantErr: "BASE_URL"},
		{name: "zero ttl", mutate: func(c *EnvConfig) { c.AccessTokenTTL = 0 }, wantErr: "ACCESS_TOKEN_TTL"},
		{name: "unknown environment", mutate: func(c *EnvConfig) { c.Environment = "qa" }, wantErr: "ENVIRONMENT"},
		{name: "memory users in production", mutate: func(c *EnvConfig) { c.Environment = "prod" }, wantErr: "not allowed in production"},
		{name: "postgres users in production", mutate: func(c *EnvConfig) { c.Environment = "production"; c.UserStore = UserStorePostgres }},
		{name: "unknown store", mutate: func(c *EnvConfig) { c.UserStore = "ldap" }, wantErr: "USER_STORE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error mentioning %s, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestMaskSecret(t *testing.T) {
	if got := MaskSecret(""); got != "<not set>" {
		t.Errorf("got %q", got)
	}
	if got := MaskSecret("abc"); got != "***" {
		t.Errorf("got %q", got)
	}
	if got := MaskSecret("abcdefghijkl"); got != "abcd...ijkl" {
		t.Errorf("got %q", got)
	}
}
