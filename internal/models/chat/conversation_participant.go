package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ConversationParticipant struct {
	ID             string `gorm:"primaryKey;type:uuid"`
	ConversationID string `gorm:"index:idx_participant_membership,unique;not null"`
	UserID         string `gorm:"index:idx_participant_membership,unique;not null"`
	Role           string `gorm:"default:'member'"` // owner, member
	JoinedAt       time.Time
	LastSeenAt     time.Time
	TypingUntil    *time.Time
	IsMuted        bool
}

func (p *ConversationParticipant) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

func (ConversationParticipant) TableName() string {
	return "chat_conversation_participants"
}
