package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageEdit is one entry of a message's edit lineage: the body as it was
// before the edit, who changed it and when.
type MessageEdit struct {
	ID           string `gorm:"primaryKey;type:uuid"`
	MessageID    string `gorm:"index;not null"`
	PreviousBody string `gorm:"type:text;not null"`
	EditedBy     string `gorm:"not null"`
	EditedAt     time.Time `gorm:"index"`
}

func (e *MessageEdit) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

func (MessageEdit) TableName() string {
	return "chat_message_edits"
}
