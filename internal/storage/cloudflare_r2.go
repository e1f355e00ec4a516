package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"crmdesk_backend/internal/config"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// R2Storage keeps attachments in a Cloudflare R2 bucket through the
// S3-compatible API.
type R2Storage struct {
	client   *s3.S3
	uploader *s3manager.Uploader
	bucket   string
	baseURL  string
}

func NewR2Storage(cfg *config.Config) (*R2Storage, error) {
	if cfg.Storage.Bucket == "" || cfg.Storage.Endpoint == "" {
		return nil, fmt.Errorf("r2 storage requires bucket and endpoint")
	}

	sess, err := session.NewSession(&aws.Config{
		// R2 ignores the region but the SDK requires one.
		Region:           aws.String("auto"),
		Endpoint:         aws.String(cfg.Storage.Endpoint),
		Credentials:      credentials.NewStaticCredentials(cfg.Storage.AccessKey, cfg.Storage.SecretKey, ""),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create r2 session: %w", err)
	}

	return &R2Storage{
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		bucket:   cfg.Storage.Bucket,
		baseURL:  strings.TrimSuffix(cfg.Storage.BaseURL, "/"),
	}, nil
}

func (s *R2Storage) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to r2: %w", err)
	}
	return s.baseURL + "/" + key, nil
}

func (s *R2Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from r2: %w", err)
	}
	return nil
}
