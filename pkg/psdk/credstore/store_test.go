package credstore

import (
	"context"
	"errors"
	"testing"

	"github.com/yfschool/portal/pkg/kv"
)

type failingBackend struct {
	*MemoryBackend
	failSet bool
}

func (b *failingBackend) Set(ctx context.Context, key, value string) error {
	if b.failSet {
		return errors.New("keyring locked")
	}
	return b.MemoryBackend.Set(ctx, key, value)
}

func TestOpen_LoadsPersistedValues(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	_ = backend.Set(ctx, KeyAccessToken, "A1")
	_ = backend.Set(ctx, KeyRefreshToken, "R1")

	s, err := Open(ctx, backend)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := s.Credential(); got != (Credential{AccessToken: "A1", RefreshToken: "R1"}) {
		t.Fatalf("unexpected credential %+v", got)
	}
}

func TestOpen_EmptyBackend(t *testing.T) {
	s, err := Open(context.Background(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !s.Credential().IsZero() {
		t.Fatalf("expected empty credential, got %+v", s.Credential())
	}
}

func TestRotate_KeepsRefreshUnlessRotated(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	s, _ := Open(ctx, backend)
	_ = s.Save(ctx, Credential{AccessToken: "A1", RefreshToken: "R1"})

	if err := s.Rotate(ctx, "A2", ""); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if got := s.Credential(); got != (Credential{AccessToken: "A2", RefreshToken: "R1"}) {
		t.Fatalf("unexpected credential %+v", got)
	}

	_ = s.Rotate(ctx, "A3", "R2")
	if v, _ := backend.Get(ctx, KeyRefreshToken); v != "R2" {
		t.Fatalf("rotated refresh not persisted, got %q", v)
	}
}

func TestClear_Idempotent(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	s, _ := Open(ctx, backend)
	_ = s.Save(ctx, Credential{AccessToken: "A1", RefreshToken: "R1"})

	for i := 0; i < 2; i++ {
		if err := s.Clear(ctx); err != nil {
			t.Fatalf("Clear #%d: %v", i, err)
		}
	}
	if _, err := backend.Get(ctx, KeyAccessToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("access token should be gone, got %v", err)
	}
	if !s.Credential().IsZero() {
		t.Fatal("in-memory copy should be empty")
	}
}

func TestSave_BackendFailureStillUpdatesMemory(t *testing.T) {
	ctx := context.Background()
	backend := &failingBackend{MemoryBackend: NewMemoryBackend(), failSet: true}
	s, _ := Open(ctx, backend)

	err := s.Save(ctx, Credential{AccessToken: "A1", RefreshToken: "R1"})
	if err == nil {
		t.Fatal("expected backend error")
	}
	if s.AccessToken() != "A1" {
		t.Fatalf("in-memory copy should hold A1, got %q", s.AccessToken())
	}
}

func TestKVBackend_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	b := NewKVBackend(store, "portal:session:abc:", 0)

	if _, err := b.Get(ctx, KeyAccessToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_ = b.Set(ctx, KeyAccessToken, "A1")

	raw, err := store.Get(ctx, "portal:session:abc:accessToken")
	if err != nil || string(raw) != "A1" {
		t.Fatalf("expected prefixed key in kv, got %q %v", raw, err)
	}
	_ = b.Delete(ctx, KeyAccessToken)
	if _, err := b.Get(ctx, KeyAccessToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestNormalizeKey(t *testing.T) {
	if got := normalizeKey(" HTTP://Portal.Example/api/ "); got != "http://portal.example/api" {
		t.Fatalf("normalizeKey = %q", got)
	}
}
