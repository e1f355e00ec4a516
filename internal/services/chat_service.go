package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"crmdesk_backend/internal/config"
	"crmdesk_backend/internal/logger"
	"crmdesk_backend/internal/models"
	"crmdesk_backend/internal/models/chat"
	"crmdesk_backend/internal/repositories"
	"crmdesk_backend/internal/services/dto"
	"crmdesk_backend/pkg/apperrors"

	"gorm.io/gorm"
)

// Broadcaster fans an event out to the realtime connections of a
// conversation's participants. Implemented by the websocket manager.
type Broadcaster interface {
	Publish(conversationID string, event dto.BroadcastEvent, excludeUserID string)
}

// Notifier delivers per-participant notifications. Implemented by the
// notification service.
type Notifier interface {
	NotifyNewMessage(db *gorm.DB, recipientID, senderName, conversationID, messageID, preview string) error
	NotifyConversationAssigned(db *gorm.DB, assigneeID, conversationID string) error
	NotifyAddedToConversation(db *gorm.DB, userID, conversationID string) error
}

// ChatService is the conversation core: conversation and message lifecycle,
// pins, reactions, comments and read state, with access control enforced on
// every call. Side effects (broadcast, notifications, the auto-responder)
// run after commit and never fail the triggering operation.
type ChatService interface {
	CreateConversation(db *gorm.DB, actor models.Actor, req *dto.CreateConversationRequest) (*dto.ConversationResponse, error)
	FindOrCreateForSubject(db *gorm.DB, actor models.Actor, req *dto.FindOrCreateConversationRequest) (*dto.ConversationResponse, bool, error)
	GetConversation(db *gorm.DB, actor models.Actor, conversationID string) (*dto.ConversationResponse, error)
	ListConversations(db *gorm.DB, actor models.Actor, criteria dto.ConversationCriteria) ([]*dto.ConversationResponse, int64, error)
	ArchiveConversation(db *gorm.DB, actor models.Actor, conversationID string) error
	RestoreConversation(db *gorm.DB, actor models.Actor, conversationID string) error
	AssignConversation(db *gorm.DB, actor models.Actor, conversationID string, req *dto.AssignConversationRequest) error
	SetPriority(db *gorm.DB, actor models.Actor, conversationID string, req *dto.SetPriorityRequest) error
	AddParticipants(db *gorm.DB, actor models.Actor, conversationID string, req *dto.AddParticipantsRequest) error
	RemoveParticipant(db *gorm.DB, actor models.Actor, conversationID, userID string) error
	SetTyping(db *gorm.DB, actor models.Actor, conversationID string, typing bool) error
	MarkConversationRead(db *gorm.DB, actor models.Actor, conversationID string) error
	GetUnreadCount(db *gorm.DB, actor models.Actor, conversationID string) (int64, error)

	SendMessage(db *gorm.DB, actor models.Actor, req *dto.SendMessageRequest) (*dto.MessageResponse, error)
	EditMessage(db *gorm.DB, actor models.Actor, messageID string, req *dto.EditMessageRequest) (*dto.MessageResponse, error)
	GetMessages(db *gorm.DB, actor models.Actor, conversationID string, criteria dto.MessageCriteria) (*dto.MessageListResponse, error)
	GetEditHistory(db *gorm.DB, actor models.Actor, messageID string) (*dto.EditHistoryResponse, error)

	PinMessage(db *gorm.DB, actor models.Actor, messageID string) error
	UnpinMessage(db *gorm.DB, actor models.Actor, messageID string) error
	ReorderPinnedMessages(db *gorm.DB, actor models.Actor, conversationID string, req *dto.ReorderPinsRequest) error
	GetPinnedMessages(db *gorm.DB, actor models.Actor, conversationID string) ([]*dto.MessageResponse, error)

	AddReaction(db *gorm.DB, actor models.Actor, messageID string, req *dto.ReactionRequest) error
	RemoveReaction(db *gorm.DB, actor models.Actor, messageID, emoji string) error

	AddComment(db *gorm.DB, actor models.Actor, messageID string, req *dto.AddCommentRequest) (*dto.CommentResponse, error)
	GetComments(db *gorm.DB, actor models.Actor, messageID string) ([]*dto.CommentResponse, error)
	DeleteComment(db *gorm.DB, actor models.Actor, commentID string) error
}

type chatService struct {
	chatRepo    repositories.ChatRepository
	userRepo    repositories.UserRepository
	crmRepo     repositories.CRMRepository
	cfg         config.ChatConfig
	broadcaster Broadcaster
	notifier    Notifier
	responder   AutoResponder
	now         func() time.Time
}

// ChatOption tweaks service construction.
type ChatOption func(*chatService)

// WithClock overrides the service clock. Tests use this to control the edit
// window.
func WithClock(now func() time.Time) ChatOption {
	return func(s *chatService) { s.now = now }
}

func NewChatService(
	chatRepo repositories.ChatRepository,
	userRepo repositories.UserRepository,
	crmRepo repositories.CRMRepository,
	cfg config.ChatConfig,
	broadcaster Broadcaster,
	notifier Notifier,
	responder AutoResponder,
	opts ...ChatOption,
) ChatService {
	s := &chatService{
		chatRepo:    chatRepo,
		userRepo:    userRepo,
		crmRepo:     crmRepo,
		cfg:         cfg,
		broadcaster: broadcaster,
		notifier:    notifier,
		responder:   responder,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// --- Conversation lifecycle ---

func (s *chatService) CreateConversation(db *gorm.DB, actor models.Actor, req *dto.CreateConversationRequest) (*dto.ConversationResponse, error) {
	subject := chat.SubjectRef{Type: chat.SubjectType(req.SubjectType), ID: req.SubjectID}
	if subject.Type == "" {
		subject.Type = chat.SubjectNone
	}
	if !subject.Type.Valid() {
		return nil, apperrors.NewBadRequestError("Unknown subject type")
	}
	if !subject.IsNone() {
		exists, err := s.crmRepo.SubjectExists(db, subject)
		if err != nil {
			return nil, apperrors.InternalError(err)
		}
		if !exists {
			return nil, apperrors.ErrSubjectNotFound
		}
	}

	// Internal threads are a staff surface.
	if req.IsInternal && !actor.IsStaff() {
		return nil, apperrors.ErrInsufficientPermissions
	}

	priority := chat.Priority(req.Priority)
	if priority == "" {
		priority = chat.PriorityNormal
	}

	extra, err := s.resolveUsers(db, req.ParticipantIDs)
	if err != nil {
		return nil, err
	}

	now := s.now()
	conversation := &chat.Conversation{
		Subject:       subject,
		Title:         req.Title,
		CreatorID:     actor.ID,
		Priority:      priority,
		Status:        chat.ConversationActive,
		IsInternal:    req.IsInternal,
		LastMessageAt: now,
	}

	tx := db.Begin()
	if tx.Error != nil {
		return nil, apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	if err := s.chatRepo.CreateConversation(tx, conversation); err != nil {
		return nil, apperrors.InternalError(err)
	}

	participants := []*chat.ConversationParticipant{{
		ConversationID: conversation.ID,
		UserID:         actor.ID,
		Role:           "owner",
		JoinedAt:       now,
		LastSeenAt:     now,
	}}
	for _, u := range extra {
		if u.ID == actor.ID {
			continue
		}
		participants = append(participants, &chat.ConversationParticipant{
			ConversationID: conversation.ID,
			UserID:         u.ID,
			Role:           "member",
			JoinedAt:       now,
			LastSeenAt:     now,
		})
	}
	if err := s.chatRepo.AddParticipants(tx, participants); err != nil {
		return nil, apperrors.InternalError(err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.InternalError(err)
	}

	if s.notifier != nil {
		go func() {
			for _, p := range participants[1:] {
				err := s.notifier.NotifyAddedToConversation(db, p.UserID, conversation.ID)
				logger.EffectLog("notify_added", conversation.ID, err)
			}
		}()
	}

	created, err := s.chatRepo.FindConversationByID(db, conversation.ID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	return s.buildConversationResponse(db, created, actor), nil
}

// FindOrCreateForSubject returns the single active conversation about a CRM
// subject, creating it when none exists. The boolean reports whether a new
// conversation was created. The calling actor joins the conversation either
// way.
func (s *chatService) FindOrCreateForSubject(db *gorm.DB, actor models.Actor, req *dto.FindOrCreateConversationRequest) (*dto.ConversationResponse, bool, error) {
	subject := chat.SubjectRef{Type: chat.SubjectType(req.SubjectType), ID: req.SubjectID}
	if !subject.Type.Valid() || subject.IsNone() {
		return nil, false, apperrors.NewBadRequestError("A concrete subject is required")
	}
	exists, err := s.crmRepo.SubjectExists(db, subject)
	if err != nil {
		return nil, false, apperrors.InternalError(err)
	}
	if !exists {
		return nil, false, apperrors.ErrSubjectNotFound
	}

	now := s.now()

	tx := db.Begin()
	if tx.Error != nil {
		return nil, false, apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	conversation, err := s.chatRepo.FindActiveConversationBySubject(tx, subject)
	created := false
	switch {
	case err == nil:
		// Existing thread: just make sure the actor is in it.
		if err := s.chatRepo.AddParticipants(tx, []*chat.ConversationParticipant{{
			ConversationID: conversation.ID,
			UserID:         actor.ID,
			Role:           "member",
			JoinedAt:       now,
			LastSeenAt:     now,
		}}); err != nil {
			return nil, false, apperrors.InternalError(err)
		}

	case errors.Is(err, gorm.ErrRecordNotFound):
		created = true

		var title *string
		if name, nameErr := s.crmRepo.SubjectName(tx, subject); nameErr == nil && name != "" {
			title = &name
		}

		conversation = &chat.Conversation{
			Subject:       subject,
			Title:         title,
			CreatorID:     actor.ID,
			Priority:      chat.PriorityNormal,
			Status:        chat.ConversationActive,
			LastMessageAt: now,
		}
		if err := s.chatRepo.CreateConversation(tx, conversation); err != nil {
			return nil, false, apperrors.InternalError(err)
		}
		if err := s.chatRepo.AddParticipants(tx, []*chat.ConversationParticipant{{
			ConversationID: conversation.ID,
			UserID:         actor.ID,
			Role:           "owner",
			JoinedAt:       now,
			LastSeenAt:     now,
		}}); err != nil {
			return nil, false, apperrors.InternalError(err)
		}
		if err := s.chatRepo.CreateMessage(tx, &chat.Message{
			ConversationID: conversation.ID,
			SenderID:       actor.ID,
			Type:           chat.MessageSystem,
			Body:           "Conversation started",
			Status:         chat.StatusSent,
			CreatedAt:      now,
		}); err != nil {
			return nil, false, apperrors.InternalError(err)
		}

	default:
		return nil, false, apperrors.InternalError(err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, false, apperrors.InternalError(err)
	}

	conversation, err = s.chatRepo.FindConversationByID(db, conversation.ID)
	if err != nil {
		return nil, false, apperrors.InternalError(err)
	}
	return s.buildConversationResponse(db, conversation, actor), created, nil
}

func (s *chatService) GetConversation(db *gorm.DB, actor models.Actor, conversationID string) (*dto.ConversationResponse, error) {
	conversation, err := s.loadConversation(db, actor, conversationID)
	if err != nil {
		return nil, err
	}
	return s.buildConversationResponse(db, conversation, actor), nil
}

func (s *chatService) ListConversations(db *gorm.DB, actor models.Actor, criteria dto.ConversationCriteria) ([]*dto.ConversationResponse, int64, error) {
	if actor.IsStaff() {
		conversations, total, err := s.chatRepo.FindConversations(db, repositories.ConversationCriteria{
			Status:      chat.ConversationStatus(criteria.Status),
			SubjectType: chat.SubjectType(criteria.SubjectType),
			AssignedTo:  criteria.AssignedTo,
			Page:        criteria.Page,
			PageSize:    criteria.PageSize,
		})
		if err != nil {
			return nil, 0, apperrors.InternalError(err)
		}
		responses := make([]*dto.ConversationResponse, 0, len(conversations))
		for i := range conversations {
			responses = append(responses, s.buildConversationResponse(db, &conversations[i], actor))
		}
		return responses, total, nil
	}

	conversations, err := s.chatRepo.FindConversationsByUser(db, actor.ID)
	if err != nil {
		return nil, 0, apperrors.InternalError(err)
	}
	responses := make([]*dto.ConversationResponse, 0, len(conversations))
	for i := range conversations {
		if conversations[i].IsInternal {
			continue
		}
		responses = append(responses, s.buildConversationResponse(db, &conversations[i], actor))
	}
	return responses, int64(len(responses)), nil
}

func (s *chatService) ArchiveConversation(db *gorm.DB, actor models.Actor, conversationID string) error {
	conversation, err := s.loadConversation(db, actor, conversationID)
	if err != nil {
		return err
	}
	if !actor.IsStaff() && conversation.CreatorID != actor.ID {
		return apperrors.ErrInsufficientPermissions
	}
	if conversation.Status == chat.ConversationArchived {
		return nil
	}
	if err := s.chatRepo.UpdateConversationStatus(db, conversationID, chat.ConversationArchived); err != nil {
		return apperrors.InternalError(err)
	}
	s.publish(conversation.ID, "conversation.archived", actor.ID, nil)
	return nil
}

func (s *chatService) RestoreConversation(db *gorm.DB, actor models.Actor, conversationID string) error {
	conversation, err := s.loadConversation(db, actor, conversationID)
	if err != nil {
		return err
	}
	if !actor.IsStaff() && conversation.CreatorID != actor.ID {
		return apperrors.ErrInsufficientPermissions
	}
	if conversation.Status == chat.ConversationActive {
		return nil
	}
	if err := s.chatRepo.UpdateConversationStatus(db, conversationID, chat.ConversationActive); err != nil {
		return apperrors.InternalError(err)
	}
	s.publish(conversation.ID, "conversation.restored", actor.ID, nil)
	return nil
}

func (s *chatService) AssignConversation(db *gorm.DB, actor models.Actor, conversationID string, req *dto.AssignConversationRequest) error {
	if !actor.IsStaff() {
		return apperrors.ErrInsufficientPermissions
	}
	conversation, err := s.loadConversation(db, actor, conversationID)
	if err != nil {
		return err
	}
	if err := s.requireActive(conversation); err != nil {
		return err
	}

	if req.AssigneeID != nil {
		assignee, err := s.userRepo.FindByID(db, *req.AssigneeID)
		if err != nil {
			return apperrors.ErrNotFound(err)
		}
		if assignee.Role != models.UserRoleAdmin && assignee.Role != models.UserRoleAgent {
			return apperrors.NewBadRequestError("Conversations can only be assigned to staff")
		}
	}

	conversation.AssignedTo = req.AssigneeID
	if err := s.chatRepo.UpdateConversation(db, conversation); err != nil {
		return apperrors.InternalError(err)
	}

	if req.AssigneeID != nil && s.notifier != nil {
		assigneeID := *req.AssigneeID
		go func() {
			err := s.notifier.NotifyConversationAssigned(db, assigneeID, conversationID)
			logger.EffectLog("notify_assigned", conversationID, err)
		}()
	}
	s.publish(conversation.ID, "conversation.assigned", actor.ID, req)
	return nil
}

func (s *chatService) SetPriority(db *gorm.DB, actor models.Actor, conversationID string, req *dto.SetPriorityRequest) error {
	if !actor.IsStaff() {
		return apperrors.ErrInsufficientPermissions
	}
	conversation, err := s.loadConversation(db, actor, conversationID)
	if err != nil {
		return err
	}
	if err := s.requireActive(conversation); err != nil {
		return err
	}

	priority := chat.Priority(req.Priority)
	if !priority.Valid() {
		return apperrors.NewBadRequestError("Unknown priority")
	}
	if conversation.Priority == priority {
		return nil
	}

	conversation.Priority = priority
	if err := s.chatRepo.UpdateConversation(db, conversation); err != nil {
		return apperrors.InternalError(err)
	}

	s.publish(conversation.ID, "conversation.priority_changed", actor.ID, req)
	return nil
}

func (s *chatService) AddParticipants(db *gorm.DB, actor models.Actor, conversationID string, req *dto.AddParticipantsRequest) error {
	conversation, err := s.loadConversation(db, actor, conversationID)
	if err != nil {
		return err
	}
	if !actor.IsStaff() && conversation.CreatorID != actor.ID {
		return apperrors.ErrInsufficientPermissions
	}
	if err := s.requireActive(conversation); err != nil {
		return err
	}

	users, err := s.resolveUsers(db, req.UserIDs)
	if err != nil {
		return err
	}

	now := s.now()
	participants := make([]*chat.ConversationParticipant, 0, len(users))
	for _, u := range users {
		participants = append(participants, &chat.ConversationParticipant{
			ConversationID: conversationID,
			UserID:         u.ID,
			Role:           "member",
			JoinedAt:       now,
			LastSeenAt:     now,
		})
	}
	if err := s.chatRepo.AddParticipants(db, participants); err != nil {
		return apperrors.InternalError(err)
	}

	if s.notifier != nil {
		go func() {
			for _, p := range participants {
				err := s.notifier.NotifyAddedToConversation(db, p.UserID, conversationID)
				logger.EffectLog("notify_added", conversationID, err)
			}
		}()
	}
	s.publish(conversationID, "participants.added", actor.ID, req)
	return nil
}

func (s *chatService) RemoveParticipant(db *gorm.DB, actor models.Actor, conversationID, userID string) error {
	conversation, err := s.loadConversation(db, actor, conversationID)
	if err != nil {
		return err
	}
	// Anyone may leave; removing someone else is a staff action.
	if userID != actor.ID && !actor.IsStaff() {
		return apperrors.ErrInsufficientPermissions
	}
	// The creator anchors the participant set and can never be removed.
	if userID == conversation.CreatorID {
		return apperrors.ErrInvalidOperation("chat", "The conversation creator cannot be removed")
	}
	if err := s.chatRepo.RemoveParticipant(db, conversationID, userID); err != nil {
		return apperrors.InternalError(err)
	}
	s.publish(conversation.ID, "participant.removed", actor.ID, map[string]string{"user_id": userID})
	return nil
}

func (s *chatService) SetTyping(db *gorm.DB, actor models.Actor, conversationID string, typing bool) error {
	if _, err := s.loadConversation(db, actor, conversationID); err != nil {
		return err
	}

	var until *time.Time
	if typing {
		t := s.now().Add(5 * time.Second)
		until = &t
	}
	if err := s.chatRepo.SetTypingUntil(db, conversationID, actor.ID, until); err != nil {
		return apperrors.InternalError(err)
	}
	s.publish(conversationID, "typing", actor.ID, map[string]interface{}{"typing": typing})
	return nil
}

func (s *chatService) MarkConversationRead(db *gorm.DB, actor models.Actor, conversationID string) error {
	if _, err := s.loadConversation(db, actor, conversationID); err != nil {
		return err
	}

	now := s.now()

	tx := db.Begin()
	if tx.Error != nil {
		return apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	unread, err := s.chatRepo.FindUnreadMessages(tx, conversationID, actor.ID)
	if err != nil {
		return apperrors.InternalError(err)
	}
	receipts := make([]*chat.MessageReadReceipt, 0, len(unread))
	for _, m := range unread {
		receipts = append(receipts, &chat.MessageReadReceipt{
			MessageID: m.ID,
			UserID:    actor.ID,
			ReadAt:    now,
		})
	}
	if err := s.chatRepo.CreateReadReceipts(tx, receipts); err != nil {
		return apperrors.InternalError(err)
	}
	if err := s.chatRepo.MarkMessagesRead(tx, conversationID, actor.ID); err != nil {
		return apperrors.InternalError(err)
	}
	if err := s.chatRepo.UpdateLastSeen(tx, conversationID, actor.ID, now); err != nil {
		return apperrors.InternalError(err)
	}

	if err := tx.Commit().Error; err != nil {
		return apperrors.InternalError(err)
	}

	s.publish(conversationID, "conversation.read", actor.ID, nil)
	return nil
}

func (s *chatService) GetUnreadCount(db *gorm.DB, actor models.Actor, conversationID string) (int64, error) {
	if _, err := s.loadConversation(db, actor, conversationID); err != nil {
		return 0, err
	}
	count, err := s.chatRepo.GetUnreadCount(db, conversationID, actor.ID)
	if err != nil {
		return 0, apperrors.InternalError(err)
	}
	return count, nil
}

// --- Message lifecycle ---

func (s *chatService) SendMessage(db *gorm.DB, actor models.Actor, req *dto.SendMessageRequest) (*dto.MessageResponse, error) {
	msgType := chat.MessageType(req.Type)
	if msgType == "" {
		msgType = chat.MessageText
	}
	if msgType == chat.MessageSystem {
		return nil, apperrors.NewBadRequestError("System messages cannot be sent directly")
	}

	body := strings.TrimSpace(req.Body)
	if err := s.validateBody(body, msgType, len(req.Attachments)); err != nil {
		return nil, err
	}
	if len(req.Attachments) > s.cfg.MaxAttachments {
		return nil, apperrors.ErrTooManyAttachments
	}
	for _, a := range req.Attachments {
		if a.SizeBytes > s.cfg.MaxAttachmentSize {
			return nil, apperrors.ErrAttachmentTooLarge
		}
	}

	now := s.now()

	tx := db.Begin()
	if tx.Error != nil {
		return nil, apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	conversation, err := s.loadConversation(tx, actor, req.ConversationID)
	if err != nil {
		return nil, err
	}
	if err := s.requireActive(conversation); err != nil {
		return nil, err
	}
	// Internal notes are staff-only even inside an accessible conversation.
	if req.IsInternalNote && !actor.IsStaff() {
		return nil, apperrors.ErrInsufficientPermissions
	}

	if req.ReplyToID != nil {
		target, err := s.chatRepo.FindMessageByID(tx, *req.ReplyToID)
		if err != nil {
			return nil, s.mapMessageErr(err)
		}
		if target.ConversationID != conversation.ID {
			return nil, apperrors.ErrReplyCrossConversation
		}
	}

	message := &chat.Message{
		ConversationID: conversation.ID,
		SenderID:       actor.ID,
		Type:           msgType,
		Body:           body,
		Status:         chat.StatusSent,
		ReplyToID:      req.ReplyToID,
		IsInternalNote: req.IsInternalNote,
		CreatedAt:      now,
	}
	for _, a := range req.Attachments {
		message.Attachments = append(message.Attachments, chat.MessageAttachment{
			UploaderID: actor.ID,
			FileName:   a.FileName,
			Extension:  strings.TrimPrefix(filepath.Ext(a.FileName), "."),
			MimeType:   a.MimeType,
			SizeBytes:  a.SizeBytes,
			URL:        a.URL,
			UploadedAt: now,
		})
	}
	if err := s.chatRepo.CreateMessage(tx, message); err != nil {
		return nil, apperrors.InternalError(err)
	}
	if err := s.chatRepo.TouchLastMessageAt(tx, conversation.ID, now); err != nil {
		return nil, apperrors.InternalError(err)
	}
	// A first message from a staff member makes them a participant.
	if !conversation.HasParticipant(actor.ID) {
		if err := s.chatRepo.AddParticipants(tx, []*chat.ConversationParticipant{{
			ConversationID: conversation.ID,
			UserID:         actor.ID,
			Role:           "member",
			JoinedAt:       now,
			LastSeenAt:     now,
		}}); err != nil {
			return nil, apperrors.InternalError(err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.InternalError(err)
	}

	response := buildMessageResponse(message)
	s.dispatchMessageEffects(db, conversation, message, actor)
	return response, nil
}

func (s *chatService) EditMessage(db *gorm.DB, actor models.Actor, messageID string, req *dto.EditMessageRequest) (*dto.MessageResponse, error) {
	newBody := strings.TrimSpace(req.Body)
	if newBody == "" {
		return nil, apperrors.ErrEmptyMessageBody
	}
	if utf8.RuneCountInString(newBody) > s.cfg.MaxBodyLength {
		return nil, apperrors.ErrBodyTooLong
	}

	now := s.now()

	tx := db.Begin()
	if tx.Error != nil {
		return nil, apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	message, err := s.chatRepo.FindMessageByID(tx, messageID)
	if err != nil {
		return nil, s.mapMessageErr(err)
	}
	conversation, err := s.loadConversation(tx, actor, message.ConversationID)
	if err != nil {
		return nil, err
	}
	if err := s.requireActive(conversation); err != nil {
		return nil, err
	}
	if message.SenderID != actor.ID {
		return nil, apperrors.ErrNotMessageSender
	}
	if now.Sub(message.CreatedAt) > s.cfg.EditWindow() {
		return nil, apperrors.ErrEditWindowExpired
	}
	if newBody == message.Body {
		return nil, apperrors.ErrNoChange
	}

	if err := s.chatRepo.CreateMessageEdit(tx, &chat.MessageEdit{
		MessageID:    message.ID,
		PreviousBody: message.Body,
		EditedBy:     actor.ID,
		EditedAt:     now,
	}); err != nil {
		return nil, apperrors.InternalError(err)
	}

	if !message.IsEdited {
		message.OriginalBody = message.Body
		message.IsEdited = true
	}
	message.Body = newBody
	message.EditedAt = &now
	if err := s.chatRepo.UpdateMessage(tx, message); err != nil {
		return nil, apperrors.InternalError(err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.InternalError(err)
	}

	response := buildMessageResponse(message)
	s.publish(conversation.ID, "message.edited", actor.ID, response)
	return response, nil
}

func (s *chatService) GetMessages(db *gorm.DB, actor models.Actor, conversationID string, criteria dto.MessageCriteria) (*dto.MessageListResponse, error) {
	if _, err := s.loadConversation(db, actor, conversationID); err != nil {
		return nil, err
	}

	limit := criteria.Limit
	if limit <= 0 {
		limit = 50
	}
	messages, total, err := s.chatRepo.FindMessagesByConversation(db, conversationID, repositories.MessageCriteria{
		Limit:           limit,
		Offset:          criteria.Offset,
		IncludeInternal: actor.IsStaff(),
	})
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	responses := make([]*dto.MessageResponse, 0, len(messages))
	for i := range messages {
		responses = append(responses, buildMessageResponse(&messages[i]))
	}
	return &dto.MessageListResponse{Messages: responses, Total: total}, nil
}

func (s *chatService) GetEditHistory(db *gorm.DB, actor models.Actor, messageID string) (*dto.EditHistoryResponse, error) {
	message, _, err := s.loadMessage(db, actor, messageID)
	if err != nil {
		return nil, err
	}

	edits, err := s.chatRepo.FindEditsByMessage(db, messageID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	editorNames := s.userNames(db, editorIDs(edits))
	history := make([]*dto.EditHistoryEntry, 0, len(edits))
	for _, e := range edits {
		history = append(history, &dto.EditHistoryEntry{
			PreviousBody: e.PreviousBody,
			EditedBy:     e.EditedBy,
			EditorName:   editorNames[e.EditedBy],
			EditedAt:     e.EditedAt,
		})
	}

	original := message.Body
	if message.IsEdited {
		original = message.OriginalBody
	}
	return &dto.EditHistoryResponse{
		MessageID: message.ID,
		Original:  original,
		Current:   message.Body,
		IsEdited:  message.IsEdited,
		EditedAt:  message.EditedAt,
		History:   history,
	}, nil
}

// --- Pins ---

func (s *chatService) PinMessage(db *gorm.DB, actor models.Actor, messageID string) error {
	now := s.now()

	tx := db.Begin()
	if tx.Error != nil {
		return apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	message, err := s.chatRepo.FindMessageByID(tx, messageID)
	if err != nil {
		return s.mapMessageErr(err)
	}
	conversation, err := s.loadConversation(tx, actor, message.ConversationID)
	if err != nil {
		return err
	}
	if err := s.requireActive(conversation); err != nil {
		return err
	}

	// Pinning a pinned message is a no-op, not an error.
	if message.IsPinned {
		return tx.Commit().Error
	}

	// The conversation row lock serializes concurrent pins: without it two
	// transactions could both count under the cap and commit a 4th pin.
	if err := s.chatRepo.LockConversation(tx, conversation.ID); err != nil {
		return apperrors.InternalError(err)
	}
	count, err := s.chatRepo.CountPinnedMessages(tx, conversation.ID)
	if err != nil {
		return apperrors.InternalError(err)
	}
	if count >= int64(s.cfg.PinLimit) {
		return apperrors.ErrPinLimitExceeded
	}

	message.IsPinned = true
	message.PinnedAt = &now
	message.PinnedBy = &actor.ID
	if err := s.chatRepo.UpdateMessage(tx, message); err != nil {
		return apperrors.InternalError(err)
	}
	if err := tx.Commit().Error; err != nil {
		return apperrors.InternalError(err)
	}

	s.publish(conversation.ID, "message.pinned", actor.ID, map[string]string{"message_id": messageID})
	return nil
}

func (s *chatService) UnpinMessage(db *gorm.DB, actor models.Actor, messageID string) error {
	message, conversation, err := s.loadMessage(db, actor, messageID)
	if err != nil {
		return err
	}
	if err := s.requireActive(conversation); err != nil {
		return err
	}
	if !message.IsPinned {
		return nil
	}

	message.IsPinned = false
	message.PinnedAt = nil
	message.PinnedBy = nil
	if err := s.chatRepo.UpdateMessage(db, message); err != nil {
		return apperrors.InternalError(err)
	}

	s.publish(conversation.ID, "message.unpinned", actor.ID, map[string]string{"message_id": messageID})
	return nil
}

// ReorderPinnedMessages rewrites pin timestamps so the requested order wins:
// position i gets pinned_at = now - i seconds, and pins are listed newest
// first.
func (s *chatService) ReorderPinnedMessages(db *gorm.DB, actor models.Actor, conversationID string, req *dto.ReorderPinsRequest) error {
	seen := make(map[string]bool, len(req.MessageIDs))
	for _, id := range req.MessageIDs {
		if seen[id] {
			return apperrors.NewBadRequestError("Duplicate message id in pin order")
		}
		seen[id] = true
	}

	base := s.now()

	tx := db.Begin()
	if tx.Error != nil {
		return apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	conversation, err := s.loadConversation(tx, actor, conversationID)
	if err != nil {
		return err
	}
	if err := s.requireActive(conversation); err != nil {
		return err
	}
	if err := s.chatRepo.LockConversation(tx, conversation.ID); err != nil {
		return apperrors.InternalError(err)
	}

	for i, id := range req.MessageIDs {
		message, err := s.chatRepo.FindMessageByID(tx, id)
		if err != nil {
			return s.mapMessageErr(err)
		}
		if message.ConversationID != conversationID {
			return apperrors.ErrCrossConversationPin
		}
		if !message.IsPinned {
			return apperrors.ErrMessageNotPinned
		}
		if err := s.chatRepo.SetPinnedAt(tx, id, base.Add(-time.Duration(i)*time.Second)); err != nil {
			return apperrors.InternalError(err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return apperrors.InternalError(err)
	}

	s.publish(conversationID, "pins.reordered", actor.ID, req)
	return nil
}

func (s *chatService) GetPinnedMessages(db *gorm.DB, actor models.Actor, conversationID string) ([]*dto.MessageResponse, error) {
	if _, err := s.loadConversation(db, actor, conversationID); err != nil {
		return nil, err
	}
	messages, err := s.chatRepo.FindPinnedMessages(db, conversationID, s.cfg.PinLimit)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	responses := make([]*dto.MessageResponse, 0, len(messages))
	for i := range messages {
		if messages[i].IsInternalNote && !actor.IsStaff() {
			continue
		}
		responses = append(responses, buildMessageResponse(&messages[i]))
	}
	return responses, nil
}

// --- Reactions ---

func (s *chatService) AddReaction(db *gorm.DB, actor models.Actor, messageID string, req *dto.ReactionRequest) error {
	message, conversation, err := s.loadMessage(db, actor, messageID)
	if err != nil {
		return err
	}
	if err := s.requireActive(conversation); err != nil {
		return err
	}

	if err := s.chatRepo.AddReaction(db, &chat.MessageReaction{
		MessageID: message.ID,
		UserID:    actor.ID,
		Emoji:     req.Emoji,
	}); err != nil {
		return apperrors.InternalError(err)
	}

	s.publish(conversation.ID, "message.reaction_added", actor.ID, map[string]string{
		"message_id": messageID,
		"emoji":      req.Emoji,
	})
	return nil
}

func (s *chatService) RemoveReaction(db *gorm.DB, actor models.Actor, messageID, emoji string) error {
	message, conversation, err := s.loadMessage(db, actor, messageID)
	if err != nil {
		return err
	}
	if err := s.requireActive(conversation); err != nil {
		return err
	}

	if err := s.chatRepo.RemoveReaction(db, message.ID, actor.ID, emoji); err != nil {
		return apperrors.InternalError(err)
	}

	s.publish(conversation.ID, "message.reaction_removed", actor.ID, map[string]string{
		"message_id": messageID,
		"emoji":      emoji,
	})
	return nil
}

// --- Comments ---

func (s *chatService) AddComment(db *gorm.DB, actor models.Actor, messageID string, req *dto.AddCommentRequest) (*dto.CommentResponse, error) {
	message, conversation, err := s.loadMessage(db, actor, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.requireActive(conversation); err != nil {
		return nil, err
	}

	comment := &chat.MessageComment{
		MessageID: message.ID,
		AuthorID:  actor.ID,
		Body:      strings.TrimSpace(req.Body),
		CreatedAt: s.now(),
	}
	if comment.Body == "" {
		return nil, apperrors.ErrEmptyMessageBody
	}
	if err := s.chatRepo.CreateComment(db, comment); err != nil {
		return nil, apperrors.InternalError(err)
	}

	response := buildCommentResponse(comment)
	s.publish(conversation.ID, "comment.added", actor.ID, response)
	return response, nil
}

func (s *chatService) GetComments(db *gorm.DB, actor models.Actor, messageID string) ([]*dto.CommentResponse, error) {
	message, _, err := s.loadMessage(db, actor, messageID)
	if err != nil {
		return nil, err
	}
	comments, err := s.chatRepo.FindCommentsByMessage(db, message.ID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	responses := make([]*dto.CommentResponse, 0, len(comments))
	for i := range comments {
		responses = append(responses, buildCommentResponse(&comments[i]))
	}
	return responses, nil
}

func (s *chatService) DeleteComment(db *gorm.DB, actor models.Actor, commentID string) error {
	comment, err := s.chatRepo.FindCommentByID(db, commentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrCommentNotFound
		}
		return apperrors.InternalError(err)
	}
	message, conversation, err := s.loadMessage(db, actor, comment.MessageID)
	if err != nil {
		return err
	}
	if comment.AuthorID != actor.ID && !actor.IsAdmin() {
		return apperrors.ErrNotCommentAuthor
	}
	if err := s.chatRepo.DeleteComment(db, commentID); err != nil {
		return apperrors.InternalError(err)
	}

	s.publish(conversation.ID, "comment.deleted", actor.ID, map[string]string{
		"message_id": message.ID,
		"comment_id": commentID,
	})
	return nil
}

// --- Access control ---

// loadConversation fetches a conversation and enforces the visibility rule:
// staff see every conversation; everyone else only conversations they
// created or participate in, and never internal threads. Denied access and
// missing conversations are indistinguishable to the caller.
func (s *chatService) loadConversation(db *gorm.DB, actor models.Actor, conversationID string) (*chat.Conversation, error) {
	conversation, err := s.chatRepo.FindConversationByID(db, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrConversationNotFound
		}
		return nil, apperrors.InternalError(err)
	}
	if actor.IsStaff() {
		return conversation, nil
	}
	if conversation.IsInternal {
		return nil, apperrors.ErrConversationAccessDenied
	}
	if conversation.CreatorID == actor.ID || conversation.HasParticipant(actor.ID) {
		return conversation, nil
	}
	return nil, apperrors.ErrConversationAccessDenied
}

func (s *chatService) loadMessage(db *gorm.DB, actor models.Actor, messageID string) (*chat.Message, *chat.Conversation, error) {
	message, err := s.chatRepo.FindMessageByID(db, messageID)
	if err != nil {
		return nil, nil, s.mapMessageErr(err)
	}
	conversation, err := s.loadConversation(db, actor, message.ConversationID)
	if err != nil {
		return nil, nil, err
	}
	if message.IsInternalNote && !actor.IsStaff() {
		return nil, nil, apperrors.ErrMessageNotFound
	}
	return message, conversation, nil
}

func (s *chatService) requireActive(conversation *chat.Conversation) error {
	if conversation.Status == chat.ConversationArchived {
		return apperrors.ErrConversationArchived
	}
	return nil
}

func (s *chatService) mapMessageErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.ErrMessageNotFound
	}
	return apperrors.InternalError(err)
}

func (s *chatService) validateBody(body string, msgType chat.MessageType, attachments int) error {
	if body == "" {
		if attachments > 0 && msgType != chat.MessageText && s.cfg.AllowAttachmentOnly {
			return nil
		}
		return apperrors.ErrEmptyMessageBody
	}
	if utf8.RuneCountInString(body) > s.cfg.MaxBodyLength {
		return apperrors.ErrBodyTooLong
	}
	return nil
}

func (s *chatService) resolveUsers(db *gorm.DB, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	users, err := s.userRepo.FindByIDs(db, ids)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	if len(users) != len(uniqueStrings(ids)) {
		return nil, apperrors.NewBadRequestError("One or more users do not exist")
	}
	return users, nil
}

// --- Side effects ---

// publish fans a realtime event out without blocking the caller.
func (s *chatService) publish(conversationID, eventType, actorID string, payload interface{}) {
	if s.broadcaster == nil {
		return
	}
	event := dto.BroadcastEvent{
		Type:           eventType,
		ConversationID: conversationID,
		ActorID:        actorID,
		Payload:        payload,
	}
	go s.broadcaster.Publish(conversationID, event, actorID)
}

// dispatchMessageEffects runs the post-commit fan-out for an accepted
// message: realtime broadcast, per-participant notifications, and the
// auto-responder for guest conversations. Failures are logged and swallowed.
func (s *chatService) dispatchMessageEffects(db *gorm.DB, conversation *chat.Conversation, message *chat.Message, actor models.Actor) {
	s.publish(conversation.ID, "message.sent", actor.ID, buildMessageResponse(message))

	if s.notifier != nil && !message.IsInternalNote {
		go func() {
			senderName := message.SenderID
			if sender, err := s.userRepo.FindByID(db, message.SenderID); err == nil {
				senderName = sender.Name
			}
			preview := messagePreview(message)
			for _, participantID := range conversation.ParticipantIDs() {
				if participantID == message.SenderID {
					continue
				}
				err := s.notifier.NotifyNewMessage(db, participantID, senderName, conversation.ID, message.ID, preview)
				logger.EffectLog("notify_message", conversation.ID, err)
			}
		}()
	}

	if s.shouldAutoRespond(conversation, message, actor) {
		go s.runAutoResponder(db, conversation, message)
	}
}

// shouldAutoRespond gates the AI hook: guest-subject conversations only,
// triggered by the guest side, never by staff, internal notes, system
// messages or the bot itself.
func (s *chatService) shouldAutoRespond(conversation *chat.Conversation, message *chat.Message, actor models.Actor) bool {
	if s.responder == nil || !s.cfg.AIResponder.Enabled {
		return false
	}
	if conversation.Subject.Type != chat.SubjectGuestSession {
		return false
	}
	if actor.IsStaff() || message.IsInternalNote || message.Type == chat.MessageSystem {
		return false
	}
	return message.SenderID != s.cfg.AIResponder.BotUserID
}

func (s *chatService) runAutoResponder(db *gorm.DB, conversation *chat.Conversation, message *chat.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.AIResponder.TimeoutSeconds)*time.Second)
	defer cancel()

	history, err := s.buildResponderHistory(db, conversation)
	if err != nil {
		logger.EffectLog("ai_responder", conversation.ID, err)
		return
	}

	reply, err := s.responder.Reply(ctx, message.Body, history)
	if err != nil {
		logger.EffectLog("ai_responder", conversation.ID, err)
		return
	}
	if reply == nil || strings.TrimSpace(reply.Message) == "" {
		return
	}

	now := s.now()
	botMessage := &chat.Message{
		ConversationID: conversation.ID,
		SenderID:       s.cfg.AIResponder.BotUserID,
		Type:           chat.MessageText,
		Body:           reply.Message,
		Status:         chat.StatusSent,
		CreatedAt:      now,
	}

	tx := db.Begin()
	if tx.Error != nil {
		logger.EffectLog("ai_responder", conversation.ID, tx.Error)
		return
	}
	defer tx.Rollback()

	if err := s.chatRepo.CreateMessage(tx, botMessage); err != nil {
		logger.EffectLog("ai_responder", conversation.ID, err)
		return
	}
	if err := s.chatRepo.TouchLastMessageAt(tx, conversation.ID, now); err != nil {
		logger.EffectLog("ai_responder", conversation.ID, err)
		return
	}
	if err := tx.Commit().Error; err != nil {
		logger.EffectLog("ai_responder", conversation.ID, err)
		return
	}

	logger.EffectLog("ai_responder", conversation.ID, nil)
	s.publish(conversation.ID, "message.sent", botMessage.SenderID, buildMessageResponse(botMessage))
}

func (s *chatService) buildResponderHistory(db *gorm.DB, conversation *chat.Conversation) ([]HistoryEntry, error) {
	// Newest 20 turns, handed over in chronological order.
	messages, _, err := s.chatRepo.FindMessagesByConversation(db, conversation.ID, repositories.MessageCriteria{
		Limit:       20,
		NewestFirst: true,
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	staff := make(map[string]bool)
	senderIDs := make([]string, 0, len(messages))
	seen := make(map[string]bool)
	for _, m := range messages {
		if !seen[m.SenderID] {
			seen[m.SenderID] = true
			senderIDs = append(senderIDs, m.SenderID)
		}
	}
	if users, err := s.userRepo.FindByIDs(db, senderIDs); err == nil {
		for _, u := range users {
			if u.Role == models.UserRoleAdmin || u.Role == models.UserRoleAgent {
				staff[u.ID] = true
			}
		}
	}

	history := make([]HistoryEntry, 0, len(messages))
	for _, m := range messages {
		if m.Type == chat.MessageSystem {
			continue
		}
		role := HistoryRoleUser
		switch {
		case m.SenderID == s.cfg.AIResponder.BotUserID:
			role = HistoryRoleAI
		case staff[m.SenderID]:
			role = HistoryRoleAgent
		}
		history = append(history, HistoryEntry{
			Role:      role,
			Text:      m.Body,
			Timestamp: m.CreatedAt,
		})
	}
	return history, nil
}

// --- Response builders ---

func (s *chatService) buildConversationResponse(db *gorm.DB, conversation *chat.Conversation, actor models.Actor) *dto.ConversationResponse {
	unread, err := s.chatRepo.GetUnreadCount(db, conversation.ID, actor.ID)
	if err != nil {
		unread = 0
	}

	now := s.now()
	participants := make([]*dto.ParticipantResponse, 0, len(conversation.Participants))
	for _, p := range conversation.Participants {
		participants = append(participants, &dto.ParticipantResponse{
			UserID:     p.UserID,
			Role:       p.Role,
			JoinedAt:   p.JoinedAt,
			LastSeenAt: p.LastSeenAt,
			IsTyping:   p.TypingUntil != nil && p.TypingUntil.After(now),
		})
	}

	subjectID := conversation.Subject.ID
	if conversation.Subject.IsNone() {
		subjectID = ""
	}
	return &dto.ConversationResponse{
		ID:            conversation.ID,
		SubjectType:   string(conversation.Subject.Type),
		SubjectID:     subjectID,
		Title:         conversation.Title,
		CreatorID:     conversation.CreatorID,
		AssignedTo:    conversation.AssignedTo,
		Priority:      string(conversation.Priority),
		Status:        string(conversation.Status),
		IsInternal:    conversation.IsInternal,
		LastMessageAt: conversation.LastMessageAt,
		UnreadCount:   unread,
		Participants:  participants,
		CreatedAt:     conversation.CreatedAt,
	}
}

func buildMessageResponse(message *chat.Message) *dto.MessageResponse {
	attachments := make([]*dto.AttachmentResponse, 0, len(message.Attachments))
	for _, a := range message.Attachments {
		attachments = append(attachments, &dto.AttachmentResponse{
			ID:         a.ID,
			FileName:   a.FileName,
			Extension:  a.Extension,
			MimeType:   a.MimeType,
			SizeBytes:  a.SizeBytes,
			URL:        a.URL,
			UploadedAt: a.UploadedAt,
		})
	}
	return &dto.MessageResponse{
		ID:             message.ID,
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		Type:           string(message.Type),
		Body:           message.Body,
		Status:         string(message.Status),
		ReplyToID:      message.ReplyToID,
		IsInternalNote: message.IsInternalNote,
		IsPinned:       message.IsPinned,
		PinnedAt:       message.PinnedAt,
		PinnedBy:       message.PinnedBy,
		IsEdited:       message.IsEdited,
		EditedAt:       message.EditedAt,
		Reactions:      message.ReactionMap(),
		Attachments:    attachments,
		CreatedAt:      message.CreatedAt,
	}
}

func buildCommentResponse(comment *chat.MessageComment) *dto.CommentResponse {
	return &dto.CommentResponse{
		ID:        comment.ID,
		MessageID: comment.MessageID,
		AuthorID:  comment.AuthorID,
		Body:      comment.Body,
		CreatedAt: comment.CreatedAt,
	}
}

// --- Small helpers ---

func (s *chatService) userNames(db *gorm.DB, ids []string) map[string]string {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names
	}
	users, err := s.userRepo.FindByIDs(db, ids)
	if err != nil {
		return names
	}
	for _, u := range users {
		names[u.ID] = u.Name
	}
	return names
}

func editorIDs(edits []chat.MessageEdit) []string {
	seen := make(map[string]bool, len(edits))
	ids := make([]string, 0, len(edits))
	for _, e := range edits {
		if !seen[e.EditedBy] {
			seen[e.EditedBy] = true
			ids = append(ids, e.EditedBy)
		}
	}
	return ids
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func messagePreview(message *chat.Message) string {
	body := message.Body
	if body == "" && len(message.Attachments) > 0 {
		return "Sent an attachment"
	}
	const max = 120
	if utf8.RuneCountInString(body) <= max {
		return body
	}
	runes := []rune(body)
	return string(runes[:max]) + "…"
}
