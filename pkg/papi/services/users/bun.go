package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/yfschool/portal/pkg/db/models"
)

// BunDirectory keeps accounts in the portal.users table.
type BunDirectory struct {
	db *bun.DB
}

func NewBunDirectory(db *bun.DB) *BunDirectory {
	return &BunDirectory{db: db}
}

func (d *BunDirectory) Lookup(ctx context.Context, userID string) (*User, error) {
	var row models.User
	err := d.db.NewSelect().
		Model(&row).
		Where("user_id = ?", userID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", userID, err)
	}
	return fromModel(&row), nil
}

func (d *BunDirectory) Create(ctx context.Context, u *User) error {
	row := models.User{
		UserID:       u.UserID,
		Name:         u.Name,
		Role:         u.Role,
		ClassName:    u.ClassName,
		PasswordHash: string(u.PasswordHash),
	}
	_, err := d.db.NewInsert().Model(&row).Returning("*").Exec(ctx)
	if err != nil {
		var pgErr pgdriver.Error
		if errors.As(err, &pgErr) && pgErr.IntegrityViolation() {
			return ErrAlreadyExists
		}
		return err
	}
	u.ID = row.ID.String()
	return nil
}

func (d *BunDirectory) UpdateName(ctx context.Context, userID, name string) (*User, error) {
	var row models.User
	res, err := d.db.NewUpdate().
		Model(&row).
		Set("name = ?", name).
		Set("updated_at = ?", time.Now()).
		Where("user_id = ?", userID).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return fromModel(&row), nil
}

func fromModel(m *models.User) *User {
	return &User{
		ID:           m.ID.String(),
		UserID:       m.UserID,
		Name:         m.Name,
		Role:         m.Role,
		ClassName:    m.ClassName,
		PasswordHash: []byte(m.PasswordHash),
	}
}

var _ Directory = (*BunDirectory)(nil)
