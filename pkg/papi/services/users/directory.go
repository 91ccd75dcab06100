package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrAlreadyExists      = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("no active account found with the given credentials")
)

// User is a portal account as the directory stores it.
type User struct {
	ID           string
	UserID       string
	Name         string
	Role         string
	ClassName    string
	PasswordHash []byte
}

// Directory is where portal accounts live.
type Directory interface {
	Lookup(ctx context.Context, userID string) (*User, error)
	Create(ctx context.Context, u *User) error
	UpdateName(ctx context.Context, userID, name string) (*User, error)
}

var hashCost = bcrypt.DefaultCost

func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), hashCost)
}

// dummyHash is compared against when the account does not exist so that
// unknown and known user ids take about the same time to reject.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("portal-dummy-password"), bcrypt.DefaultCost)

// Authenticate checks a user id and password against d.
func Authenticate(ctx context.Context, d Directory, userID, password string) (*User, error) {
	u, err := d.Lookup(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Seed is an account created at startup.
type Seed struct {
	UserID    string
	Password  string
	Role      string
	Name      string
	ClassName string
}

// ParseSeeds reads SEED_USERS: entries separated by ";", each
// "user_id:password:role:name[:class_name]".
func ParseSeeds(raw string) ([]Seed, error) {
	var seeds []Seed
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 4 || len(parts) > 5 {
			return nil, fmt.Errorf("seed %q: want user_id:password:role:name[:class_name]", entry)
		}
		s := Seed{UserID: parts[0], Password: parts[1], Role: parts[2], Name: parts[3]}
		if len(parts) == 5 {
			s.ClassName = parts[4]
		}
		if s.UserID == "" || s.Password == "" {
			return nil, fmt.Errorf("seed %q: user_id and password are required", entry)
		}
		if s.Role != RoleStudent && s.Role != RoleTeacher {
			return nil, fmt.Errorf("seed %q: unknown role %q", entry, s.Role)
		}
		seeds = append(seeds, s)
	}
	return seeds, nil
}

// Provision creates the seeded accounts that do not exist yet.
func Provision(ctx context.Context, d Directory, seeds []Seed) error {
	for _, s := range seeds {
		if _, err := d.Lookup(ctx, s.UserID); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		hash, err := HashPassword(s.Password)
		if err != nil {
			return fmt.Errorf("hashing password for %s: %w", s.UserID, err)
		}
		err = d.Create(ctx, &User{
			UserID:       s.UserID,
			Name:         s.Name,
			Role:         s.Role,
			ClassName:    s.ClassName,
			PasswordHash: hash,
		})
		if err != nil && !errors.Is(err, ErrAlreadyExists) {
			return fmt.Errorf("creating %s: %w", s.UserID, err)
		}
	}
	return nil
}
