package email

import "crmdesk_backend/internal/logger"

// NoopProvider is used when outbound email is disabled; sends are logged
// and dropped.
type NoopProvider struct{}

func NewNoopProvider() *NoopProvider {
	return &NoopProvider{}
}

func (p *NoopProvider) Send(email *Email) error {
	logger.Debug("email sending disabled, dropping message",
		"to", email.To,
		"subject", email.Subject,
	)
	return nil
}

func (p *NoopProvider) Validate() error { return nil }

func (p *NoopProvider) Close() error { return nil }
