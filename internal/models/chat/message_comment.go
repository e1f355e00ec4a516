package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MessageComment struct {
	ID        string `gorm:"primaryKey;type:uuid"`
	MessageID string `gorm:"index;not null"`
	AuthorID  string `gorm:"index;not null"`
	Body      string `gorm:"type:text;not null"`
	CreatedAt time.Time
}

func (c *MessageComment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

func (MessageComment) TableName() string {
	return "chat_message_comments"
}
