package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Conversation belongs to exactly one user. OwnerID and Title never change
// after creation.
type Conversation struct {
	bun.BaseModel `bun:"table:conversations,alias:c"`

	ID      int64     `bun:",pk,autoincrement"`
	OwnerID uuid.UUID `bun:"type:uuid,notnull"`
	TopicID *int64
	Title   string `bun:",notnull"`

	CreatedAt time.Time `bun:",nullzero,notnull"`
	UpdatedAt time.Time `bun:",nullzero,notnull"`
}

type Message struct {
	bun.BaseModel `bun:"table:messages,alias:m"`

	ID             int64     `bun:",pk,autoincrement"`
	ConversationID int64     `bun:",notnull"`
	Role           Role      `bun:",notnull"`
	Content        string    `bun:",notnull"`
	CreatedAt      time.Time `bun:",nullzero,notnull"`
}
