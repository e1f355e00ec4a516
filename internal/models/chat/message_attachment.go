package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MessageAttachment struct {
	ID         string `gorm:"primaryKey;type:uuid"`
	MessageID  string `gorm:"index;not null"`
	UploaderID string `gorm:"index"`
	FileName   string
	Extension  string
	MimeType   string
	SizeBytes  int64
	URL        string
	UploadedAt time.Time
}

func (a *MessageAttachment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

func (MessageAttachment) TableName() string {
	return "chat_message_attachments"
}
