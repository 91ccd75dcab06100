// Package kv provides the key-value abstraction shared by the credential
// store's networked backend and the dev server's refresh-token registry.
package kv

import (
	"context"
	"time"
)

// Store defines a minimal key-value interface. Keys are strings, values are
// byte slices. All writes take a TTL; 0 means the key does not expire.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns ErrNotFound if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key. Returns nil if key doesn't exist.
	Delete(ctx context.Context, key string) error

	// SetNX sets a value only if the key doesn't exist (atomic).
	// Returns true if the key was set, false if it already existed.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// GetDel atomically reads and removes a key. Used for single-use
	// values such as rotated refresh tokens.
	GetDel(ctx context.Context, key string) ([]byte, error)

	Close() error
}
