package handlers

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"crmdesk_backend/internal/middleware"
	"crmdesk_backend/internal/services"
	"crmdesk_backend/internal/services/dto"
	"crmdesk_backend/internal/storage"
	"crmdesk_backend/pkg/apperrors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ChatHandler exposes the conversation core over HTTP.
type ChatHandler struct {
	BaseHandler
	chatService services.ChatService
	storage     storage.Storage
}

func NewChatHandler(base BaseHandler, chatService services.ChatService, store storage.Storage) *ChatHandler {
	return &ChatHandler{
		BaseHandler: base,
		chatService: chatService,
		storage:     store,
	}
}

// RegisterRoutes mounts the chat surface under the given (authenticated)
// group.
func (h *ChatHandler) RegisterRoutes(rg *gin.RouterGroup) {
	conversations := rg.Group("/conversations")
	{
		conversations.POST("", h.CreateConversation)
		conversations.POST("/find-or-create", h.FindOrCreateConversation)
		conversations.GET("", h.ListConversations)
		conversations.GET("/:conversationID", h.GetConversation)
		conversations.POST("/:conversationID/archive", h.ArchiveConversation)
		conversations.POST("/:conversationID/restore", h.RestoreConversation)
		conversations.POST("/:conversationID/assign", middleware.RequireStaff(), h.AssignConversation)
		conversations.PUT("/:conversationID/priority", middleware.RequireStaff(), h.SetPriority)
		conversations.POST("/:conversationID/participants", h.AddParticipants)
		conversations.DELETE("/:conversationID/participants/:userID", h.RemoveParticipant)
		conversations.POST("/:conversationID/typing", h.SetTyping)
		conversations.POST("/:conversationID/read", h.MarkConversationRead)
		conversations.GET("/:conversationID/unread-count", h.GetUnreadCount)
		conversations.GET("/:conversationID/messages", h.GetMessages)
		conversations.GET("/:conversationID/pins", h.GetPinnedMessages)
		conversations.PUT("/:conversationID/pins/reorder", h.ReorderPinnedMessages)
	}

	messages := rg.Group("/messages")
	{
		messages.POST("", h.SendMessage)
		messages.PUT("/:messageID", h.EditMessage)
		messages.GET("/:messageID/history", h.GetEditHistory)
		messages.POST("/:messageID/pin", h.PinMessage)
		messages.DELETE("/:messageID/pin", h.UnpinMessage)
		messages.POST("/:messageID/reactions", h.AddReaction)
		messages.DELETE("/:messageID/reactions/:emoji", h.RemoveReaction)
		messages.POST("/:messageID/comments", h.AddComment)
		messages.GET("/:messageID/comments", h.GetComments)
	}

	rg.DELETE("/comments/:commentID", h.DeleteComment)
	rg.POST("/attachments/upload", h.UploadAttachment)
}

// --- Conversations ---

func (h *ChatHandler) CreateConversation(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	var req dto.CreateConversationRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}

	conversation, err := h.chatService.CreateConversation(h.GetDB(c), actor, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	h.Created(c, conversation)
}

func (h *ChatHandler) FindOrCreateConversation(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	var req dto.FindOrCreateConversationRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}

	conversation, created, err := h.chatService.FindOrCreateForSubject(h.GetDB(c), actor, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	if created {
		h.Created(c, conversation)
		return
	}
	h.OK(c, conversation)
}

func (h *ChatHandler) ListConversations(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	var criteria dto.ConversationCriteria
	if !h.BindAndValidateQuery(c, &criteria) {
		return
	}

	conversations, total, err := h.chatService.ListConversations(h.GetDB(c), actor, criteria)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	h.OK(c, gin.H{"conversations": conversations, "total": total})
}

func (h *ChatHandler) GetConversation(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	conversation, err := h.chatService.GetConversation(h.GetDB(c), actor, c.Param("conversationID"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	h.OK(c, conversation)
}

func (h *ChatHandler) ArchiveConversation(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	if err := h.chatService.ArchiveConversation(h.GetDB(c), actor, c.Param("conversationID")); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	h.NoContent(c)
}

func (h *ChatHandler) RestoreConversation(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	if err := h.chatService.RestoreConversation(h.GetDB(c), actor, c.Param("conversationID")); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	h.NoContent(c)
}

func (h *ChatHandler) AssignConversation(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	var req dto.AssignConversationRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}
	if err := h.chatService.AssignConversation(h.GetDB(c), actor, c.Param("conversationID"), &req); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	h.NoContent(c)
}

func (h *ChatHandler) SetPriority(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	var req dto.SetPriorityRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}
	if err := h.chatService.SetPriority(h.GetDB(c), actor, c.Param("conversationID"), &req); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	h.NoContent(c)
}

func (h *ChatHandler) AddParticipants(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	var req dto.AddParticipantsRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}
	if err := h.chatService.AddParticipants(h.GetDB(c), actor, c.Param("conversationID"), &req); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	h.NoContent(c)
}

func (h *ChatHandler) RemoveParticipant(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	if err := h.chatService.RemoveParticipant(h.GetDB(c), actor, c.Param("conversationID"), c.Param("userID")); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	h.NoContent(c)
}

func (h *ChatHandler) SetTyping(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	var req dto.SetTypingRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}
	if err := h.chatService.SetTyping(h.GetDB(c), actor, c.Param("conversationID"), req.Typing); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	h.NoContent(c)
}

func (h *ChatHandler) MarkConversationRead(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	if err := h.chatService.MarkConversationRead(h.GetDB(c), actor, c.Param("conversationID")); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	h.NoContent(c)
}

func (h *ChatHandler) GetUnreadCount(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	count, err := h.chatService.GetUnreadCount(h.GetDB(c), actor, c.Param("conversationID"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	h.OK(c, gin.H{"unread_count": count})
}

// --- Messages ---

func (h *ChatHandler) SendMessage(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	var req dto.SendMessageRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}

	message, err := h.chatService.SendMessage(h.GetDB(c), actor, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	h.Created(c, message)
}

func (h *ChatHandler) EditMessage(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	var req dto.EditMessageRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}

	message, err := h.chatService.EditMessage(h.GetDB(c), actor, c.Param("messageID"), &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	h.OK(c, message)
}

func (h *ChatHandler) GetMessages(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	var criteria dto.MessageCriteria
	if !h.BindAndValidateQuery(c, &criteria) {
		return
	}

	messages, err := h.chatService.GetMessages(h.GetDB(c), actor, c.Param("conversationID"), criteria)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	h.OK(c, messages)
}

func (h *ChatHandler) GetEditHistory(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	history, err := h.chatService.GetEditHistory(h.GetDB(c), actor, c.Param("messageID"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	h.OK(c, history)
}

// --- Pins ---

func (h *ChatHandler) PinMessage(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	if err := h.chatService.PinMessage(h.GetDB(c), actor, c.Param("messageID")); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	h.NoContent(c)
}

func (h *ChatHandler) UnpinMessage(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	if err := h.chatService.UnpinMessage(h.GetDB(c), actor, c.Param("messageID")); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	h.NoContent(c)
}

func (h *ChatHandler) ReorderPinnedMessages(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	var req dto.ReorderPinsRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}
	if err := h.chatService.ReorderPinnedMessages(h.GetDB(c), actor, c.Param("conversationID"), &req); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	h.NoContent(c)
}

func (h *ChatHandler) GetPinnedMessages(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	pins, err := h.chatService.GetPinnedMessages(h.GetDB(c), actor, c.Param("conversationID"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	h.OK(c, gin.H{"messages": pins})
}

// --- Reactions ---

func (h *ChatHandler) AddReaction(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	var req dto.ReactionRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}
	if err := h.chatService.AddReaction(h.GetDB(c), actor, c.Param("messageID"), &req); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	h.NoContent(c)
}

func (h *ChatHandler) RemoveReaction(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	if err := h.chatService.RemoveReaction(h.GetDB(c), actor, c.Param("messageID"), c.Param("emoji")); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	h.NoContent(c)
}

// --- Comments ---

func (h *ChatHandler) AddComment(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	var req dto.AddCommentRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}

	comment, err := h.chatService.AddComment(h.GetDB(c), actor, c.Param("messageID"), &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	h.Created(c, comment)
}

func (h *ChatHandler) GetComments(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	comments, err := h.chatService.GetComments(h.GetDB(c), actor, c.Param("messageID"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	h.OK(c, gin.H{"comments": comments})
}

func (h *ChatHandler) DeleteComment(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}
	if err := h.chatService.DeleteComment(h.GetDB(c), actor, c.Param("commentID")); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	h.NoContent(c)
}

// --- Attachments ---

// UploadAttachment stores a multipart file and returns the descriptor the
// client passes back in SendMessage.
func (h *ChatHandler) UploadAttachment(c *gin.Context) {
	actor, ok := h.GetActor(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.HandleServiceError(c, apperrors.NewBadRequestError("A 'file' form field is required").WithError(err))
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		h.HandleServiceError(c, apperrors.InternalError(err))
		return
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	key := fmt.Sprintf("chat/%s/%s/%s%s", time.Now().Format("2006/01"), actor.ID, uuid.New().String(), ext)
	contentType := fileHeader.Header.Get("Content-Type")

	url, err := h.storage.Upload(c.Request.Context(), key, f, contentType)
	if err != nil {
		h.HandleServiceError(c, apperrors.InternalError(err))
		return
	}

	h.Created(c, dto.AttachmentInput{
		FileName:  fileHeader.Filename,
		MimeType:  contentType,
		SizeBytes: fileHeader.Size,
		URL:       url,
	})
}
