package storage

import (
	"context"
	"fmt"
	"io"

	"crmdesk_backend/internal/config"
)

// Storage abstracts where message attachments live. Upload returns the
// public URL the attachment row records.
type Storage interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// NewStorage builds the backend named in config.
func NewStorage(cfg *config.Config) (Storage, error) {
	switch cfg.Storage.Type {
	case "", "local":
		return NewLocalStorage(cfg.Storage.BasePath, cfg.Storage.BaseURL), nil
	case "cloudflare_r2":
		return NewR2Storage(cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}
}
