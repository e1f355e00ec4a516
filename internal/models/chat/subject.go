package chat

// SubjectType is the closed variant set of CRM entities a conversation can
// be about. A typed pair (SubjectType, SubjectID) replaces the source
// system's free-form (type-string, id) reference.
type SubjectType string

const (
	SubjectClient       SubjectType = "client"
	SubjectLead         SubjectType = "lead"
	SubjectGuestSession SubjectType = "guest_session"
	SubjectNone         SubjectType = "none"
)

// Valid reports whether t is a member of the variant set.
func (t SubjectType) Valid() bool {
	switch t {
	case SubjectClient, SubjectLead, SubjectGuestSession, SubjectNone:
		return true
	}
	return false
}

// SubjectRef is a tagged reference to the CRM entity a conversation is
// about. Type SubjectNone carries an empty ID (purely internal threads).
type SubjectRef struct {
	Type SubjectType `gorm:"column:subject_type;type:varchar(20);not null;default:'none';index:idx_conversations_subject"`
	ID   string      `gorm:"column:subject_id;index:idx_conversations_subject"`
}

// IsNone reports whether the reference points at nothing.
func (r SubjectRef) IsNone() bool {
	return r.Type == SubjectNone || r.Type == ""
}

type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationArchived ConversationStatus = "archived"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageFile   MessageType = "file"
	MessageImage  MessageType = "image"
	MessageVideo  MessageType = "video"
	MessageAudio  MessageType = "audio"
	MessageSystem MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageFile, MessageImage, MessageVideo, MessageAudio, MessageSystem:
		return true
	}
	return false
}

type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)
