package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageReadReceipt records that a user has read a message. Per-participant
// unread counts are derived from the absence of a receipt.
type MessageReadReceipt struct {
	ID        string `gorm:"primaryKey;type:uuid"`
	MessageID string `gorm:"index:idx_receipt_identity,unique;not null"`
	UserID    string `gorm:"index:idx_receipt_identity,unique;not null"`
	ReadAt    time.Time
}

func (r *MessageReadReceipt) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

func (MessageReadReceipt) TableName() string {
	return "chat_message_read_receipts"
}
