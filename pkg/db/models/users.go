package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is a portal account. UserID is the login name (a student or staff
// number); ID is the internal key.
type User struct {
	bun.BaseModel `bun:"table:portal.users,alias:u"`

	ID           uuid.UUID `bun:"type:uuid,default:gen_random_uuid(),pk"`
	UserID       string    `bun:",unique,notnull"`
	Name         string    `bun:",notnull"`
	Role         string    `bun:",notnull"`
	ClassName    string    `bun:",nullzero"`
	PasswordHash string    `bun:",notnull"`

	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

// Refresh tokens live in the kv store, not in the database.
