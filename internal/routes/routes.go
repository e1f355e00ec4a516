package routes

import (
	"crmdesk_backend/internal/handlers"
	"crmdesk_backend/internal/middleware"
	"crmdesk_backend/internal/ws"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth         *handlers.AuthHandler
	Chat         *handlers.ChatHandler
	Notification *handlers.NotificationHandler
	WSManager    *ws.Manager
}

// Setup builds the gin engine with middleware and all routes mounted.
func Setup(db *gorm.DB, h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.LoggingMiddleware(),
		middleware.CORSMiddleware(),
		middleware.ErrorMiddleware(),
		middleware.DBMiddleware(db),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")

	// Public surface
	h.Auth.RegisterRoutes(api)

	// Authenticated surface
	authed := api.Group("")
	authed.Use(middleware.AuthMiddleware())
	h.Chat.RegisterRoutes(authed)
	h.Notification.RegisterRoutes(authed)

	// Realtime: token auth happens inside the handshake.
	router.GET("/ws", ws.ServeWS(h.WSManager))

	return router
}
