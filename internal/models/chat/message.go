package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Message struct {
	ID             string        `gorm:"primaryKey;type:uuid"`
	ConversationID string        `gorm:"index;not null"`
	SenderID       string        `gorm:"index;not null"`
	Type           MessageType   `gorm:"type:varchar(10);default:'text'"`
	Body           string        `gorm:"type:text"`
	Status         MessageStatus `gorm:"type:varchar(10);default:'sent'"`
	ReplyToID      *string       `gorm:"index"`
	IsInternalNote bool          `gorm:"default:false"`

	IsPinned bool       `gorm:"default:false;index"`
	PinnedAt *time.Time
	PinnedBy *string

	IsEdited     bool `gorm:"default:false"`
	OriginalBody string `gorm:"type:text"` // snapshot of the first-ever body, set on first edit
	EditedAt     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	ReplyTo     *Message            `gorm:"foreignKey:ReplyToID"`
	Attachments []MessageAttachment `gorm:"foreignKey:MessageID"`
	Reactions   []MessageReaction   `gorm:"foreignKey:MessageID"`
	Edits       []MessageEdit       `gorm:"foreignKey:MessageID"`
	Comments    []MessageComment    `gorm:"foreignKey:MessageID"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (Message) TableName() string {
	return "chat_messages"
}

// ReactionMap folds the reaction rows into emoji -> user-id set form.
func (m *Message) ReactionMap() map[string][]string {
	out := make(map[string][]string)
	for _, r := range m.Reactions {
		out[r.Emoji] = append(out[r.Emoji], r.UserID)
	}
	return out
}
