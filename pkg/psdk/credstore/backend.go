// Package credstore holds the portal session's credential pair on top of a
// pluggable session-storage backend.
package credstore

import (
	"context"
	"errors"
)

// Storage keys. They match the keys the browser portal used in
// sessionStorage so a shared backend stays readable by both.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
)

// ErrNotFound is returned by Backend.Get when the key is absent.
var ErrNotFound = errors.New("credstore: key not found")

// Backend is the session storage the Store persists into.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Delete removes key; deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
