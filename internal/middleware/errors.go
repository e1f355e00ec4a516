package middleware

import (
	"crmdesk_backend/pkg/apperrors"

	"github.com/gin-gonic/gin"
)

// ErrorMiddleware renders the last error a handler attached to the context.
// Handlers and middleware report failures with c.Error; nothing writes error
// JSON directly.
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		apperrors.HandleError(c, c.Errors.Last().Err)
	}
}
