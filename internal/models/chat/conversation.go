package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Conversation struct {
	ID            string      `gorm:"primaryKey;type:uuid"`
	Subject       SubjectRef  `gorm:"embedded"`
	Title         *string
	CreatorID     string      `gorm:"index;not null"`
	AssignedTo    *string     `gorm:"index"`
	Priority      Priority    `gorm:"type:varchar(10);default:'normal'"`
	Status        ConversationStatus `gorm:"type:varchar(10);default:'active';index:idx_conversations_subject"`
	IsInternal    bool        `gorm:"default:false"`
	LastMessageAt time.Time   `gorm:"index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

func (Conversation) TableName() string {
	return "chat_conversations"
}

// ParticipantIDs returns the deduplicated user ids of all participants.
func (c *Conversation) ParticipantIDs() []string {
	seen := make(map[string]bool, len(c.Participants))
	ids := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if !seen[p.UserID] {
			seen[p.UserID] = true
			ids = append(ids, p.UserID)
		}
	}
	return ids
}

// HasParticipant reports whether the given user belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}
