package services

import (
	"encoding/json"
	"fmt"
	"time"

	"crmdesk_backend/internal/email"
	"crmdesk_backend/internal/logger"
	"crmdesk_backend/internal/models"
	"crmdesk_backend/internal/repositories"
	"crmdesk_backend/internal/services/dto"
	"crmdesk_backend/pkg/apperrors"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Presence reports whether a user currently holds a realtime connection.
// Implemented by the websocket manager.
type Presence interface {
	IsOnline(userID string) bool
}

type NotificationService interface {
	CreateNotification(db *gorm.DB, req *dto.CreateNotificationRequest) (*dto.NotificationResponse, error)
	GetUserNotifications(db *gorm.DB, userID string, criteria dto.NotificationCriteria) (*dto.NotificationListResponse, error)
	MarkAsRead(db *gorm.DB, userID, notificationID string) error
	MarkAllAsRead(db *gorm.DB, userID string) error
	GetUnreadCount(db *gorm.DB, userID string) (int64, error)

	// Factory methods used by the conversation core's notify effect.
	NotifyNewMessage(db *gorm.DB, recipientID, senderName, conversationID, messageID, preview string) error
	NotifyConversationAssigned(db *gorm.DB, assigneeID, conversationID string) error
	NotifyAddedToConversation(db *gorm.DB, userID, conversationID string) error
}

type notificationService struct {
	notificationRepo repositories.NotificationRepository
	userRepo         repositories.UserRepository
	emailProvider    email.Provider
	presence         Presence
}

func NewNotificationService(
	notificationRepo repositories.NotificationRepository,
	userRepo repositories.UserRepository,
	emailProvider email.Provider,
	presence Presence,
) NotificationService {
	return &notificationService{
		notificationRepo: notificationRepo,
		userRepo:         userRepo,
		emailProvider:    emailProvider,
		presence:         presence,
	}
}

func (s *notificationService) CreateNotification(db *gorm.DB, req *dto.CreateNotificationRequest) (*dto.NotificationResponse, error) {
	if _, err := s.userRepo.FindByID(db, req.UserID); err != nil {
		return nil, apperrors.ErrNotFound(err)
	}

	var dataJSON datatypes.JSON
	if req.Data != nil {
		jsonData, err := json.Marshal(req.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal notification data: %w", err)
		}
		dataJSON = datatypes.JSON(jsonData)
	}

	notification := &models.Notification{
		UserID:  req.UserID,
		Type:    req.Type,
		Title:   req.Title,
		Message: req.Message,
		Data:    dataJSON,
		IsRead:  false,
	}

	if err := s.notificationRepo.Create(db, notification); err != nil {
		return nil, apperrors.InternalError(err)
	}

	return buildNotificationResponse(notification), nil
}

func (s *notificationService) GetUserNotifications(db *gorm.DB, userID string, criteria dto.NotificationCriteria) (*dto.NotificationListResponse, error) {
	repoCriteria := repositories.NotificationCriteria{
		UnreadOnly: criteria.UnreadOnly,
		Page:       criteria.Page,
		PageSize:   criteria.PageSize,
	}
	if repoCriteria.PageSize == 0 {
		repoCriteria.PageSize = 20
	}

	notifications, total, err := s.notificationRepo.FindByUser(db, userID, repoCriteria)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	responses := make([]*dto.NotificationResponse, 0, len(notifications))
	for i := range notifications {
		responses = append(responses, buildNotificationResponse(&notifications[i]))
	}

	return &dto.NotificationListResponse{
		Notifications: responses,
		Total:         total,
	}, nil
}

func (s *notificationService) MarkAsRead(db *gorm.DB, userID, notificationID string) error {
	notification, err := s.notificationRepo.FindByID(db, notificationID)
	if err != nil {
		return apperrors.ErrNotFound(err)
	}
	if notification.UserID != userID {
		return apperrors.ErrInsufficientPermissions
	}
	return s.notificationRepo.MarkAsRead(db, notificationID, time.Now())
}

func (s *notificationService) MarkAllAsRead(db *gorm.DB, userID string) error {
	return s.notificationRepo.MarkAllAsRead(db, userID, time.Now())
}

func (s *notificationService) GetUnreadCount(db *gorm.DB, userID string) (int64, error) {
	return s.notificationRepo.GetUnreadCount(db, userID)
}

// --- Factory methods ---

func (s *notificationService) NotifyNewMessage(db *gorm.DB, recipientID, senderName, conversationID, messageID, preview string) error {
	if err := s.create(db, recipientID, "new_message",
		fmt.Sprintf("New message from %s", senderName),
		preview,
		map[string]interface{}{
			"conversation_id": conversationID,
			"message_id":      messageID,
		},
	); err != nil {
		return err
	}

	// Offline participants also get an email.
	if s.presence != nil && !s.presence.IsOnline(recipientID) {
		s.sendEmail(db, recipientID,
			fmt.Sprintf("New message from %s", senderName),
			fmt.Sprintf("%s\n\nOpen the conversation to reply.", preview))
	}
	return nil
}

func (s *notificationService) NotifyConversationAssigned(db *gorm.DB, assigneeID, conversationID string) error {
	return s.create(db, assigneeID, "conversation_assigned",
		"A conversation was assigned to you",
		"",
		map[string]interface{}{"conversation_id": conversationID},
	)
}

func (s *notificationService) NotifyAddedToConversation(db *gorm.DB, userID, conversationID string) error {
	return s.create(db, userID, "conversation_joined",
		"You were added to a conversation",
		"",
		map[string]interface{}{"conversation_id": conversationID},
	)
}

func (s *notificationService) create(db *gorm.DB, userID, notifType, title, message string, data map[string]interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return s.notificationRepo.Create(db, &models.Notification{
		UserID:  userID,
		Type:    notifType,
		Title:   title,
		Message: message,
		Data:    datatypes.JSON(jsonData),
	})
}

func (s *notificationService) sendEmail(db *gorm.DB, userID, subject, body string) {
	if s.emailProvider == nil {
		return
	}

	user, err := s.userRepo.FindByID(db, userID)
	if err != nil || user.Email == "" {
		return
	}

	if err := s.emailProvider.Send(&email.Email{
		To:      []string{user.Email},
		Subject: subject,
		Body:    body,
	}); err != nil {
		logger.Warn("notification email failed", "user_id", userID, "error", err)
	}
}

func buildNotificationResponse(n *models.Notification) *dto.NotificationResponse {
	var data map[string]interface{}
	if len(n.Data) > 0 {
		_ = json.Unmarshal(n.Data, &data)
	}

	return &dto.NotificationResponse{
		ID:        n.ID,
		UserID:    n.UserID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Data:      data,
		IsRead:    n.IsRead,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}
