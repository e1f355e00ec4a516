package handlers

import (
	"net/http"

	"crmdesk_backend/internal/middleware"
	"crmdesk_backend/internal/models"
	"crmdesk_backend/internal/validator"
	"crmdesk_backend/pkg/apperrors"
	"crmdesk_backend/pkg/contextkeys"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// BaseHandler bundles the pieces every handler needs: binding, validation,
// identity extraction and the error funnel.
type BaseHandler struct {
	Validator *validator.Validator
}

func NewBaseHandler(v *validator.Validator) BaseHandler {
	return BaseHandler{Validator: v}
}

// GetDB returns the request-scoped *gorm.DB put there by DBMiddleware.
func (h *BaseHandler) GetDB(c *gin.Context) *gorm.DB {
	return c.MustGet(string(contextkeys.DBContextKey)).(*gorm.DB)
}

// GetActor builds the authenticated Actor from the claims AuthMiddleware
// stored in the context.
func (h *BaseHandler) GetActor(c *gin.Context) (models.Actor, bool) {
	userID := c.GetString(middleware.ContextUserID)
	role := c.GetString(middleware.ContextRole)
	if userID == "" || role == "" {
		h.HandleServiceError(c, apperrors.NewUnauthorizedError("Authentication required"))
		return models.Actor{}, false
	}
	return models.Actor{ID: userID, Role: models.UserRole(role)}, true
}

// BindAndValidateJSON binds the request body and runs struct validation.
// On failure it writes the error response and returns false.
func (h *BaseHandler) BindAndValidateJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.HandleServiceError(c, apperrors.NewBadRequestError("Invalid request body").WithError(err))
		return false
	}
	return h.validate(c, obj)
}

// BindAndValidateQuery binds query parameters and runs struct validation.
func (h *BaseHandler) BindAndValidateQuery(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		h.HandleServiceError(c, apperrors.NewBadRequestError("Invalid query parameters").WithError(err))
		return false
	}
	return h.validate(c, obj)
}

func (h *BaseHandler) validate(c *gin.Context, obj interface{}) bool {
	if err := h.Validator.Validate(obj); err != nil {
		if verr, ok := err.(*validator.ValidationError); ok {
			h.HandleServiceError(c, apperrors.ValidationError(verr.Errors))
		} else {
			h.HandleServiceError(c, apperrors.InternalError(err))
		}
		return false
	}
	return true
}

// HandleServiceError funnels a service error into the gin error chain; the
// error handler middleware renders it.
func (h *BaseHandler) HandleServiceError(c *gin.Context, err error) {
	c.Error(err)
	c.Abort()
}

// OK writes a 200 with the given payload.
func (h *BaseHandler) OK(c *gin.Context, payload interface{}) {
	c.JSON(http.StatusOK, payload)
}

// Created writes a 201 with the given payload.
func (h *BaseHandler) Created(c *gin.Context, payload interface{}) {
	c.JSON(http.StatusCreated, payload)
}

// NoContent writes a 204.
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
