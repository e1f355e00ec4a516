package main

import (
	"crmdesk_backend/internal/app"
	"crmdesk_backend/internal/logger"
)

func main() {
	application, err := app.New()
	if err != nil {
		logger.Fatal("failed to start application", "error", err.Error())
	}

	if err := application.Run(); err != nil {
		logger.Fatal("server stopped", "error", err.Error())
	}
}
