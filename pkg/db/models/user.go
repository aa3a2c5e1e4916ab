package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is a locally known account federated from Google.
// EncryptedAPIKey only ever holds a vcrypt envelope; nil means no key is set.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID              uuid.UUID `bun:"type:uuid,pk"`
	ExternalID      string    `bun:",unique,notnull"`
	Email           string    `bun:",unique,notnull"`
	Name            string    `bun:",nullzero"`
	AvatarURL       *string
	EncryptedAPIKey *string

	CreatedAt time.Time `bun:",nullzero,notnull"`
	UpdatedAt time.Time `bun:",nullzero,notnull"`
}

func (u *User) HasAPIKey() bool {
	return u.EncryptedAPIKey != nil && *u.EncryptedAPIKey != ""
}
