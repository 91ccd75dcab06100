package credstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Credential is the server-issued token pair. Both values are opaque.
type Credential struct {
	AccessToken  string `json:"access"`
	RefreshToken string `json:"refresh"`
}

func (c Credential) IsZero() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// Store is the process-wide credential holder. Reads come from an in-memory
// copy; every write goes to the copy first and then to the backend, so the
// process never uses a credential other than the one it last wrote even when
// the backend is unavailable.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	cred    Credential
}

// Open loads any persisted credential from backend.
func Open(ctx context.Context, backend Backend) (*Store, error) {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	s := &Store{backend: backend}

	access, err := load(ctx, backend, KeyAccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := load(ctx, backend, KeyRefreshToken)
	if err != nil {
		return nil, err
	}
	s.cred = Credential{AccessToken: access, RefreshToken: refresh}
	return s, nil
}

func load(ctx context.Context, b Backend, key string) (string, error) {
	v, err := b.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) Credential() Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred
}

func (s *Store) AccessToken() string {
	return s.Credential().AccessToken
}

func (s *Store) RefreshToken() string {
	return s.Credential().RefreshToken
}

// Save replaces both credentials. An empty refresh token removes the stored one.
func (s *Store) Save(ctx context.Context, cred Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = cred
	return errors.Join(
		s.put(ctx, KeyAccessToken, cred.AccessToken),
		s.put(ctx, KeyRefreshToken, cred.RefreshToken),
	)
}

// Rotate replaces the access credential, and the refresh credential when a
// non-empty one is supplied.
func (s *Store) Rotate(ctx context.Context, access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred.AccessToken = access
	errs := []error{s.put(ctx, KeyAccessToken, access)}
	if refresh != "" {
		s.cred.RefreshToken = refresh
		errs = append(errs, s.put(ctx, KeyRefreshToken, refresh))
	}
	return errors.Join(errs...)
}

// Clear removes both credentials. Clearing an empty store is a no-op.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = Credential{}
	return errors.Join(
		s.backend.Delete(ctx, KeyAccessToken),
		s.backend.Delete(ctx, KeyRefreshToken),
	)
}

// put must be called with mu held.
func (s *Store) put(ctx context.Context, key, value string) error {
	if value == "" {
		return s.backend.Delete(ctx, key)
	}
	return s.backend.Set(ctx, key, value)
}
