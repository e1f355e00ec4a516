package repositories

import (
	"time"

	"crmdesk_backend/internal/models/chat"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChatRepository is the storage surface of the conversation core. Every
// method takes the *gorm.DB handle (pool or transaction) so the service
// layer controls transaction scope around check-then-act sequences.
type ChatRepository interface {
	// Conversation operations
	CreateConversation(db *gorm.DB, conversation *chat.Conversation) error
	FindConversationByID(db *gorm.DB, id string) (*chat.Conversation, error)
	LockConversation(db *gorm.DB, id string) error
	FindActiveConversationBySubject(db *gorm.DB, subject chat.SubjectRef) (*chat.Conversation, error)
	FindConversationsByUser(db *gorm.DB, userID string) ([]chat.Conversation, error)
	FindConversations(db *gorm.DB, criteria ConversationCriteria) ([]chat.Conversation, int64, error)
	UpdateConversation(db *gorm.DB, conversation *chat.Conversation) error
	UpdateConversationStatus(db *gorm.DB, conversationID string, status chat.ConversationStatus) error
	TouchLastMessageAt(db *gorm.DB, conversationID string, t time.Time) error

	// Participant operations
	AddParticipants(db *gorm.DB, participants []*chat.ConversationParticipant) error
	FindParticipant(db *gorm.DB, conversationID, userID string) (*chat.ConversationParticipant, error)
	FindParticipantsByConversation(db *gorm.DB, conversationID string) ([]chat.ConversationParticipant, error)
	RemoveParticipant(db *gorm.DB, conversationID, userID string) error
	IsUserInConversation(db *gorm.DB, conversationID, userID string) (bool, error)
	UpdateLastSeen(db *gorm.DB, conversationID, userID string, t time.Time) error
	SetTypingUntil(db *gorm.DB, conversationID, userID string, until *time.Time) error

	// Message operations
	CreateMessage(db *gorm.DB, message *chat.Message) error
	FindMessageByID(db *gorm.DB, id string) (*chat.Message, error)
	FindMessagesByConversation(db *gorm.DB, conversationID string, criteria MessageCriteria) ([]chat.Message, int64, error)
	UpdateMessage(db *gorm.DB, message *chat.Message) error
	MarkMessagesRead(db *gorm.DB, conversationID, readerID string) error
	FindUnreadMessages(db *gorm.DB, conversationID, userID string) ([]chat.Message, error)

	// Pin operations
	CountPinnedMessages(db *gorm.DB, conversationID string) (int64, error)
	FindPinnedMessages(db *gorm.DB, conversationID string, limit int) ([]chat.Message, error)
	SetPinnedAt(db *gorm.DB, messageID string, t time.Time) error

	// Reaction operations
	AddReaction(db *gorm.DB, reaction *chat.MessageReaction) error
	RemoveReaction(db *gorm.DB, messageID, userID, emoji string) error
	FindReactionsByMessage(db *gorm.DB, messageID string) ([]chat.MessageReaction, error)

	// Edit-history operations
	CreateMessageEdit(db *gorm.DB, edit *chat.MessageEdit) error
	FindEditsByMessage(db *gorm.DB, messageID string) ([]chat.MessageEdit, error)

	// Comment operations
	CreateComment(db *gorm.DB, comment *chat.MessageComment) error
	FindCommentByID(db *gorm.DB, id string) (*chat.MessageComment, error)
	FindCommentsByMessage(db *gorm.DB, messageID string) ([]chat.MessageComment, error)
	DeleteComment(db *gorm.DB, id string) error

	// Read receipts
	CreateReadReceipts(db *gorm.DB, receipts []*chat.MessageReadReceipt) error
	GetUnreadCount(db *gorm.DB, conversationID, userID string) (int64, error)
}

// ConversationCriteria filters staff-side conversation listings.
type ConversationCriteria struct {
	Status      chat.ConversationStatus
	SubjectType chat.SubjectType
	AssignedTo  string
	Page        int
	PageSize    int
}

// MessageCriteria pages a conversation's message history.
// IncludeInternal is false for subject-side actors: internal notes stay
// invisible to them. NewestFirst flips the sort so a limited read returns
// the most recent messages.
type MessageCriteria struct {
	Limit           int
	Offset          int
	IncludeInternal bool
	NewestFirst     bool
}

type ChatRepositoryImpl struct{}

func NewChatRepository() ChatRepository {
	return &ChatRepositoryImpl{}
}

// --- Conversation operations ---

func (r *ChatRepositoryImpl) CreateConversation(db *gorm.DB, conversation *chat.Conversation) error {
	return db.Create(conversation).Error
}

func (r *ChatRepositoryImpl) FindConversationByID(db *gorm.DB, id string) (*chat.Conversation, error) {
	var conversation chat.Conversation
	err := db.Preload("Participants").First(&conversation, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// LockConversation takes a FOR UPDATE row lock on the conversation so a
// check-then-act sequence inside the caller's transaction serializes against
// concurrent mutations. Dialects without row locks (SQLite) drop the clause.
func (r *ChatRepositoryImpl) LockConversation(db *gorm.DB, id string) error {
	var conversation chat.Conversation
	return db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		First(&conversation, "id = ?", id).Error
}

func (r *ChatRepositoryImpl) FindActiveConversationBySubject(db *gorm.DB, subject chat.SubjectRef) (*chat.Conversation, error) {
	var conversation chat.Conversation
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Participants").
		Where("subject_type = ? AND subject_id = ? AND status = ?",
			subject.Type, subject.ID, chat.ConversationActive).
		Order("created_at DESC").
		First(&conversation).Error
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

func (r *ChatRepositoryImpl) FindConversationsByUser(db *gorm.DB, userID string) ([]chat.Conversation, error) {
	var conversations []chat.Conversation
	err := db.
		Joins("JOIN chat_conversation_participants cp ON cp.conversation_id = chat_conversations.id").
		Where("cp.user_id = ?", userID).
		Preload("Participants").
		Order("chat_conversations.last_message_at DESC").
		Find(&conversations).Error
	return conversations, err
}

func (r *ChatRepositoryImpl) FindConversations(db *gorm.DB, criteria ConversationCriteria) ([]chat.Conversation, int64, error) {
	query := db.Model(&chat.Conversation{})

	if criteria.Status != "" {
		query = query.Where("status = ?", criteria.Status)
	}
	if criteria.SubjectType != "" {
		query = query.Where("subject_type = ?", criteria.SubjectType)
	}
	if criteria.AssignedTo != "" {
		query = query.Where("assigned_to = ?", criteria.AssignedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if criteria.PageSize > 0 {
		page := criteria.Page
		if page < 1 {
			page = 1
		}
		query = query.Offset((page - 1) * criteria.PageSize).Limit(criteria.PageSize)
	}

	var conversations []chat.Conversation
	err := query.Preload("Participants").Order("last_message_at DESC").Find(&conversations).Error
	return conversations, total, err
}

func (r *ChatRepositoryImpl) UpdateConversation(db *gorm.DB, conversation *chat.Conversation) error {
	return db.Omit(clause.Associations).Save(conversation).Error
}

func (r *ChatRepositoryImpl) UpdateConversationStatus(db *gorm.DB, conversationID string, status chat.ConversationStatus) error {
	return db.Model(&chat.Conversation{}).
		Where("id = ?", conversationID).
		Update("status", status).Error
}

func (r *ChatRepositoryImpl) TouchLastMessageAt(db *gorm.DB, conversationID string, t time.Time) error {
	// last_message_at is monotonically non-decreasing
	return db.Model(&chat.Conversation{}).
		Where("id = ? AND last_message_at < ?", conversationID, t).
		Update("last_message_at", t).Error
}

// --- Participant operations ---

func (r *ChatRepositoryImpl) AddParticipants(db *gorm.DB, participants []*chat.ConversationParticipant) error {
	if len(participants) == 0 {
		return nil
	}
	// ON CONFLICT DO NOTHING keeps the participant set duplicate-free under
	// concurrent joins.
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&participants).Error
}

func (r *ChatRepositoryImpl) FindParticipant(db *gorm.DB, conversationID, userID string) (*chat.ConversationParticipant, error) {
	var participant chat.ConversationParticipant
	err := db.Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(&participant).Error
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

func (r *ChatRepositoryImpl) FindParticipantsByConversation(db *gorm.DB, conversationID string) ([]chat.ConversationParticipant, error) {
	var participants []chat.ConversationParticipant
	err := db.Where("conversation_id = ?", conversationID).Find(&participants).Error
	return participants, err
}

func (r *ChatRepositoryImpl) RemoveParticipant(db *gorm.DB, conversationID, userID string) error {
	return db.Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Delete(&chat.ConversationParticipant{}).Error
}

func (r *ChatRepositoryImpl) IsUserInConversation(db *gorm.DB, conversationID, userID string) (bool, error) {
	var count int64
	err := db.Model(&chat.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *ChatRepositoryImpl) UpdateLastSeen(db *gorm.DB, conversationID, userID string, t time.Time) error {
	return db.Model(&chat.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("last_seen_at", t).Error
}

func (r *ChatRepositoryImpl) SetTypingUntil(db *gorm.DB, conversationID, userID string, until *time.Time) error {
	return db.Model(&chat.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("typing_until", until).Error
}

// --- Message operations ---

func (r *ChatRepositoryImpl) CreateMessage(db *gorm.DB, message *chat.Message) error {
	return db.Create(message).Error
}

func (r *ChatRepositoryImpl) FindMessageByID(db *gorm.DB, id string) (*chat.Message, error) {
	var message chat.Message
	err := db.
		Preload("Attachments").
		Preload("Reactions").
		First(&message, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *ChatRepositoryImpl) FindMessagesByConversation(db *gorm.DB, conversationID string, criteria MessageCriteria) ([]chat.Message, int64, error) {
	query := db.Model(&chat.Message{}).Where("conversation_id = ?", conversationID)
	if !criteria.IncludeInternal {
		query = query.Where("is_internal_note = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if criteria.Limit > 0 {
		query = query.Limit(criteria.Limit)
	}
	if criteria.Offset > 0 {
		query = query.Offset(criteria.Offset)
	}

	order := "created_at ASC"
	if criteria.NewestFirst {
		order = "created_at DESC"
	}

	var messages []chat.Message
	err := query.
		Preload("Attachments").
		Preload("Reactions").
		Order(order).
		Find(&messages).Error
	return messages, total, err
}

func (r *ChatRepositoryImpl) UpdateMessage(db *gorm.DB, message *chat.Message) error {
	// Preloaded associations are read-only here; saving them back would
	// re-insert reaction and attachment rows.
	return db.Omit(clause.Associations).Save(message).Error
}

func (r *ChatRepositoryImpl) MarkMessagesRead(db *gorm.DB, conversationID, readerID string) error {
	return db.Model(&chat.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND status <> ?",
			conversationID, readerID, chat.StatusRead).
		Update("status", chat.StatusRead).Error
}

func (r *ChatRepositoryImpl) FindUnreadMessages(db *gorm.DB, conversationID, userID string) ([]chat.Message, error) {
	var messages []chat.Message
	err := db.
		Where("conversation_id = ? AND sender_id <> ?", conversationID, userID).
		Where("NOT EXISTS (SELECT 1 FROM chat_message_read_receipts r WHERE r.message_id = chat_messages.id AND r.user_id = ?)", userID).
		Find(&messages).Error
	return messages, err
}

// --- Pin operations ---

func (r *ChatRepositoryImpl) CountPinnedMessages(db *gorm.DB, conversationID string) (int64, error) {
	var count int64
	err := db.Model(&chat.Message{}).
		Where("conversation_id = ? AND is_pinned = ?", conversationID, true).
		Count(&count).Error
	return count, err
}

func (r *ChatRepositoryImpl) FindPinnedMessages(db *gorm.DB, conversationID string, limit int) ([]chat.Message, error) {
	var messages []chat.Message
	query := db.
		Where("conversation_id = ? AND is_pinned = ?", conversationID, true).
		Preload("Attachments").
		Preload("Reactions").
		Order("pinned_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&messages).Error
	return messages, err
}

func (r *ChatRepositoryImpl) SetPinnedAt(db *gorm.DB, messageID string, t time.Time) error {
	return db.Model(&chat.Message{}).
		Where("id = ? AND is_pinned = ?", messageID, true).
		Update("pinned_at", t).Error
}

// --- Reaction operations ---

func (r *ChatRepositoryImpl) AddReaction(db *gorm.DB, reaction *chat.MessageReaction) error {
	// Idempotent: the second add of the same (message, user, emoji) triple
	// is a no-op, even when two adds race on the identity index.
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(reaction).Error
}

func (r *ChatRepositoryImpl) RemoveReaction(db *gorm.DB, messageID, userID, emoji string) error {
	return db.Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Delete(&chat.MessageReaction{}).Error
}

func (r *ChatRepositoryImpl) FindReactionsByMessage(db *gorm.DB, messageID string) ([]chat.MessageReaction, error) {
	var reactions []chat.MessageReaction
	err := db.Where("message_id = ?", messageID).Find(&reactions).Error
	return reactions, err
}

// --- Edit-history operations ---

func (r *ChatRepositoryImpl) CreateMessageEdit(db *gorm.DB, edit *chat.MessageEdit) error {
	return db.Create(edit).Error
}

func (r *ChatRepositoryImpl) FindEditsByMessage(db *gorm.DB, messageID string) ([]chat.MessageEdit, error) {
	var edits []chat.MessageEdit
	err := db.Where("message_id = ?", messageID).
		Order("edited_at ASC").
		Find(&edits).Error
	return edits, err
}

// --- Comment operations ---

func (r *ChatRepositoryImpl) CreateComment(db *gorm.DB, comment *chat.MessageComment) error {
	return db.Create(comment).Error
}

func (r *ChatRepositoryImpl) FindCommentByID(db *gorm.DB, id string) (*chat.MessageComment, error) {
	var comment chat.MessageComment
	err := db.First(&comment, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

func (r *ChatRepositoryImpl) FindCommentsByMessage(db *gorm.DB, messageID string) ([]chat.MessageComment, error) {
	var comments []chat.MessageComment
	err := db.Where("message_id = ?", messageID).
		Order("created_at ASC").
		Find(&comments).Error
	return comments, err
}

func (r *ChatRepositoryImpl) DeleteComment(db *gorm.DB, id string) error {
	return db.Where("id = ?", id).Delete(&chat.MessageComment{}).Error
}

// --- Read receipts ---

func (r *ChatRepositoryImpl) CreateReadReceipts(db *gorm.DB, receipts []*chat.MessageReadReceipt) error {
	if len(receipts) == 0 {
		return nil
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&receipts).Error
}

func (r *ChatRepositoryImpl) GetUnreadCount(db *gorm.DB, conversationID, userID string) (int64, error) {
	var count int64
	err := db.Model(&chat.Message{}).
		Where("conversation_id = ? AND sender_id <> ?", conversationID, userID).
		Where("NOT EXISTS (SELECT 1 FROM chat_message_read_receipts r WHERE r.message_id = chat_messages.id AND r.user_id = ?)", userID).
		Count(&count).Error
	return count, err
}
