package credstore

import (
	"context"
	"errors"
	"time"

	"github.com/yfschool/portal/pkg/kv"
)

// KVBackend persists credentials in a kv.Store (Valkey in production),
// under prefix+key, expiring after ttl (0 keeps them until cleared).
type KVBackend struct {
	store  kv.Store
	prefix string
	ttl    time.Duration
}

func NewKVBackend(store kv.Store, prefix string, ttl time.Duration) *KVBackend {
	return &KVBackend{store: store, prefix: prefix, ttl: ttl}
}

func (b *KVBackend) Get(ctx context.Context, key string) (string, error) {
	v, err := b.store.Get(ctx, b.prefix+key)
	if errors.Is(err, kv.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (b *KVBackend) Set(ctx context.Context, key, value string) error {
	return b.store.Set(ctx, b.prefix+key, []byte(value), b.ttl)
}

func (b *KVBackend) Delete(ctx context.Context, key string) error {
	return b.store.Delete(ctx, b.prefix+key)
}

var _ Backend = (*KVBackend)(nil)
