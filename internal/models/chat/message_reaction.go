package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageReaction is one (user, emoji) pair on a message. The unique index
// over the triple is what makes reaction adds idempotent at the storage
// level.
type MessageReaction struct {
	ID        string `gorm:"primaryKey;type:uuid"`
	MessageID string `gorm:"index:idx_reaction_identity,unique;not null"`
	UserID    string `gorm:"index:idx_reaction_identity,unique;not null"`
	Emoji     string `gorm:"index:idx_reaction_identity,unique;type:varchar(32);not null"`
	CreatedAt time.Time
}

func (r *MessageReaction) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

func (MessageReaction) TableName() string {
	return "chat_message_reactions"
}
