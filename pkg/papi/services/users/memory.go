package users

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: make(map[string]User)}
}

func (d *MemoryDirectory) Lookup(_ context.Context, userID string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (d *MemoryDirectory) Create(_ context.Context, u *User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[u.UserID]; ok {
		return ErrAlreadyExists
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	d.users[u.UserID] = *u
	return nil
}

func (d *MemoryDirectory) UpdateName(_ context.Context, userID, name string) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	u.Name = name
	d.users[userID] = u
	return &u, nil
}

var _ Directory = (*MemoryDirectory)(nil)
