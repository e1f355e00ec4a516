package dto

import (
	"time"
)

// --- Requests ---

type CreateConversationRequest struct {
	SubjectType    string   `json:"subject_type" validate:"omitempty,subject_type"`
	SubjectID      string   `json:"subject_id"`
	Title          *string  `json:"title,omitempty" validate:"omitempty,max=200"`
	Priority       string   `json:"priority,omitempty" validate:"omitempty,oneof=low normal high urgent"`
	IsInternal     bool     `json:"is_internal"`
	ParticipantIDs []string `json:"participant_ids"`
}

type FindOrCreateConversationRequest struct {
	SubjectType string `json:"subject_type" validate:"required,subject_type"`
	SubjectID   string `json:"subject_id" validate:"required"`
}

type SendMessageRequest struct {
	ConversationID string            `json:"conversation_id" validate:"required"`
	Type           string            `json:"type,omitempty" validate:"omitempty,oneof=text file image video audio"`
	Body           string            `json:"body" validate:"max=5000"`
	ReplyToID      *string           `json:"reply_to_id,omitempty"`
	IsInternalNote bool              `json:"is_internal_note"`
	Attachments    []AttachmentInput `json:"attachments,omitempty"`
}

type AttachmentInput struct {
	FileName  string `json:"filename" validate:"required"`
	MimeType  string `json:"mime_type" validate:"required"`
	SizeBytes int64  `json:"size_bytes" validate:"required,min=1"`
	URL       string `json:"url" validate:"required"`
}

type EditMessageRequest struct {
	Body string `json:"body" validate:"required,max=5000"`
}

type ReactionRequest struct {
	Emoji string `json:"emoji" validate:"required,emoji"`
}

type ReorderPinsRequest struct {
	MessageIDs []string `json:"message_ids" validate:"required,min=1,max=3"`
}

type AddCommentRequest struct {
	Body string `json:"body" validate:"required,max=2000"`
}

type AssignConversationRequest struct {
	AssigneeID *string `json:"assignee_id"`
}

type SetPriorityRequest struct {
	Priority string `json:"priority" validate:"required,oneof=low normal high urgent"`
}

type AddParticipantsRequest struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1"`
}

type SetTypingRequest struct {
	Typing bool `json:"typing"`
}

type ConversationCriteria struct {
	Status      string `form:"status" validate:"omitempty,oneof=active archived"`
	SubjectType string `form:"subject_type" validate:"omitempty,subject_type"`
	AssignedTo  string `form:"assigned_to"`
	Page        int    `form:"page"`
	PageSize    int    `form:"page_size"`
}

type MessageCriteria struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

// --- Responses ---

type ConversationResponse struct {
	ID            string                 `json:"id"`
	SubjectType   string                 `json:"subject_type"`
	SubjectID     string                 `json:"subject_id,omitempty"`
	Title         *string                `json:"title,omitempty"`
	CreatorID     string                 `json:"creator_id"`
	AssignedTo    *string                `json:"assigned_to,omitempty"`
	Priority      string                 `json:"priority"`
	Status        string                 `json:"status"`
	IsInternal    bool                   `json:"is_internal"`
	LastMessageAt time.Time              `json:"last_message_at"`
	UnreadCount   int64                  `json:"unread_count"`
	Participants  []*ParticipantResponse `json:"participants"`
	CreatedAt     time.Time              `json:"created_at"`
}

type ParticipantResponse struct {
	UserID     string    `json:"user_id"`
	Role       string    `json:"role"`
	JoinedAt   time.Time `json:"joined_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	IsTyping   bool      `json:"is_typing"`
}

type MessageResponse struct {
	ID             string                `json:"id"`
	ConversationID string                `json:"conversation_id"`
	SenderID       string                `json:"sender_id"`
	Type           string                `json:"type"`
	Body           string                `json:"body"`
	Status         string                `json:"status"`
	ReplyToID      *string               `json:"reply_to_id,omitempty"`
	IsInternalNote bool                  `json:"is_internal_note"`
	IsPinned       bool                  `json:"is_pinned"`
	PinnedAt       *time.Time            `json:"pinned_at,omitempty"`
	PinnedBy       *string               `json:"pinned_by,omitempty"`
	IsEdited       bool                  `json:"is_edited"`
	EditedAt       *time.Time            `json:"edited_at,omitempty"`
	Reactions      map[string][]string   `json:"reactions"`
	Attachments    []*AttachmentResponse `json:"attachments"`
	CreatedAt      time.Time             `json:"created_at"`
}

type AttachmentResponse struct {
	ID         string    `json:"id"`
	FileName   string    `json:"filename"`
	Extension  string    `json:"extension"`
	MimeType   string    `json:"mime_type"`
	SizeBytes  int64     `json:"size_bytes"`
	URL        string    `json:"url"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type MessageListResponse struct {
	Messages []*MessageResponse `json:"messages"`
	Total    int64              `json:"total"`
}

type EditHistoryEntry struct {
	PreviousBody string    `json:"previous_text"`
	EditedBy     string    `json:"edited_by"`
	EditorName   string    `json:"editor_name,omitempty"`
	EditedAt     time.Time `json:"edited_at"`
}

type EditHistoryResponse struct {
	MessageID string              `json:"message_id"`
	Original  string              `json:"original"`
	Current   string              `json:"current"`
	IsEdited  bool                `json:"is_edited"`
	EditedAt  *time.Time          `json:"edited_at,omitempty"`
	History   []*EditHistoryEntry `json:"history"`
}

type CommentResponse struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// BroadcastEvent is the payload published to the realtime channel after an
// accepted mutation.
type BroadcastEvent struct {
	Type           string      `json:"type"` // message.sent, message.edited, message.pinned, ...
	ConversationID string      `json:"conversation_id"`
	ActorID        string      `json:"actor_id"`
	Payload        interface{} `json:"payload"`
}
