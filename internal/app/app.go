package app

import (
	"fmt"
	"net/http"

	"crmdesk_backend/database"
	"crmdesk_backend/internal/config"
	"crmdesk_backend/internal/email"
	"crmdesk_backend/internal/handlers"
	"crmdesk_backend/internal/logger"
	"crmdesk_backend/internal/repositories"
	"crmdesk_backend/internal/routes"
	"crmdesk_backend/internal/services"
	"crmdesk_backend/internal/storage"
	"crmdesk_backend/internal/validator"
	"crmdesk_backend/internal/ws"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// App owns the wired application graph.
type App struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine

	wsManager *ws.Manager
}

// New loads config, connects the database, runs migrations and wires every
// layer together.
func New() (*App, error) {
	cfg := config.GetConfig()
	logger.Init(cfg.Server.Env)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Connect(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	// Repositories
	chatRepo := repositories.NewChatRepository()
	userRepo := repositories.NewUserRepository()
	crmRepo := repositories.NewCRMRepository()
	notificationRepo := repositories.NewNotificationRepository()

	// Realtime hub; participant lookup goes through the chat repository.
	wsManager := ws.NewManager(func(conversationID string) ([]string, error) {
		participants, err := chatRepo.FindParticipantsByConversation(db, conversationID)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(participants))
		for _, p := range participants {
			ids = append(ids, p.UserID)
		}
		return ids, nil
	})
	go wsManager.Run()

	// Email
	var emailProvider email.Provider
	if cfg.Email.Enabled {
		smtp := email.NewSMTPProvider(email.Config{
			SMTPHost:     cfg.Email.SMTPHost,
			SMTPPort:     cfg.Email.SMTPPort,
			SMTPUsername: cfg.Email.SMTPUsername,
			SMTPPassword: cfg.Email.SMTPPassword,
			FromEmail:    cfg.Email.FromEmail,
			FromName:     cfg.Email.FromName,
		})
		if err := smtp.Validate(); err != nil {
			return nil, fmt.Errorf("email config invalid: %w", err)
		}
		emailProvider = smtp
	} else {
		emailProvider = email.NewNoopProvider()
	}

	// Attachments
	store, err := storage.NewStorage(cfg)
	if err != nil {
		return nil, err
	}

	// AI responder
	var responder services.AutoResponder
	if cfg.Chat.AIResponder.Enabled && cfg.Chat.AIResponder.Endpoint != "" {
		responder = services.NewHTTPResponder(cfg.Chat)
	} else {
		responder = services.NewNoopResponder()
	}

	// Services
	notificationService := services.NewNotificationService(notificationRepo, userRepo, emailProvider, wsManager)
	chatService := services.NewChatService(
		chatRepo, userRepo, crmRepo,
		cfg.Chat,
		wsManager,
		notificationService,
		responder,
	)

	// Handlers
	base := handlers.NewBaseHandler(validator.New())
	router := routes.Setup(db, routes.Handlers{
		Auth:         handlers.NewAuthHandler(base, userRepo),
		Chat:         handlers.NewChatHandler(base, chatService, store),
		Notification: handlers.NewNotificationHandler(base, notificationService),
		WSManager:    wsManager,
	})

	return &App{
		Config:    cfg,
		DB:        db,
		Router:    router,
		wsManager: wsManager,
	}, nil
}

// Run starts the HTTP server and blocks.
func (a *App) Run() error {
	addr := fmt.Sprintf("%s:%d", a.Config.Server.Host, a.Config.Server.Port)
	logger.Info("server starting", "addr", addr, "env", a.Config.Server.Env)

	srv := &http.Server{
		Addr:    addr,
		Handler: a.Router,
	}
	return srv.ListenAndServe()
}
