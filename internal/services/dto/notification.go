package dto

import "time"

type CreateNotificationRequest struct {
	UserID  string                 `json:"user_id" validate:"required"`
	Type    string                 `json:"type" validate:"required"`
	Title   string                 `json:"title" validate:"required,max=200"`
	Message string                 `json:"message" validate:"max=1000"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

type NotificationCriteria struct {
	UnreadOnly bool `form:"unread_only"`
	Page       int  `form:"page"`
	PageSize   int  `form:"page_size"`
}

type NotificationResponse struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	IsRead    bool                   `json:"is_read"`
	ReadAt    *time.Time             `json:"read_at,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

type NotificationListResponse struct {
	Notifications []*NotificationResponse `json:"notifications"`
	Total         int64                   `json:"total"`
}
