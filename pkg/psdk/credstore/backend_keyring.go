package credstore

import (
	"context"
	"errors"
	"strings"

	"github.com/zalando/go-keyring"
)

const keyringService = "portal"

// KeyringBackend stores credentials in the OS keyring so a CLI session
// survives between invocations. Entries are scoped by the API base URL.
type KeyringBackend struct {
	service string
	scope   string
}

func NewKeyringBackend(baseURL string) *KeyringBackend {
	return &KeyringBackend{service: keyringService, scope: normalizeKey(baseURL)}
}

// normalizeKey trims trailing slashes and lowercases the base URL so
// https://portal.example/api/ and https://portal.example/api share entries.
func normalizeKey(baseURL string) string {
	s := strings.TrimSpace(baseURL)
	s = strings.TrimRight(s, "/")
	s = strings.ToLower(s)
	return s
}

func (b *KeyringBackend) account(key string) string {
	return b.scope + "#" + key
}

func (b *KeyringBackend) Get(_ context.Context, key string) (string, error) {
	v, err := keyring.Get(b.service, b.account(key))
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return v, err
}

func (b *KeyringBackend) Set(_ context.Context, key, value string) error {
	return keyring.Set(b.service, b.account(key), value)
}

func (b *KeyringBackend) Delete(_ context.Context, key string) error {
	err := keyring.Delete(b.service, b.account(key))
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

var _ Backend = (*KeyringBackend)(nil)
