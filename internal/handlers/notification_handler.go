package handlers

import (
	"crmdesk_backend/internal/services"
	"crmdesk_backend/internal/services/dto"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	BaseHandler
	notificationService services.NotificationService
}

func NewNotificationHandler(base BaseHandler, notificationService services.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		BaseHandler:         base,
		notificationService: notificationService,
	}
}

func (h *NotificationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	notifications := rg.Group("/notifications")
	{
		notifications.GET("", h.ListNotifications)
		notifications.GET("/unread-count", h.GetUnreadCount)
		notifications.POST("/:notificationID/read", h.MarkAsRead)
		notifications.POST("/read-all", h.MarkAllAsRead)
	}
}

func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	var criteria dto.NotificationCriteria
	if !h.BindAndValidateQuery(c, &criteria) {
		return
	}

	notifications, err := h.notificationService.GetUserNotifications(h.GetDB(c), actor.ID, criteria)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	h.OK(c, notifications)
}

func (h *NotificationHandler) GetUnreadCount(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	count, err := h.notificationService.GetUnreadCount(h.GetDB(c), actor.ID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	h.OK(c, gin.H{"unread_count": count})
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	if err := h.notificationService.MarkAsRead(h.GetDB(c), actor.ID, c.Param("notificationID")); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	h.NoContent(c)
}

func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	if err := h.notificationService.MarkAllAsRead(h.GetDB(c), actor.ID); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	h.NoContent(c)
}
