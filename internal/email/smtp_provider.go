package email

import (
	"errors"
	"fmt"

	"gopkg.in/gomail.v2"
)

type SMTPProvider struct {
	config Config
	dialer *gomail.Dialer
}

func NewSMTPProvider(cfg Config) *SMTPProvider {
	return &SMTPProvider{
		config: cfg,
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
	}
}

func (p *SMTPProvider) Send(email *Email) error {
	if len(email.To) == 0 {
		return errors.New("email has no recipients")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(p.config.FromEmail, p.config.FromName))
	m.SetHeader("To", email.To...)
	m.SetHeader("Subject", email.Subject)

	if email.HTML {
		m.SetBody("text/html", email.Body)
	} else {
		m.SetBody("text/plain", email.Body)
	}

	return p.dialer.DialAndSend(m)
}

func (p *SMTPProvider) Validate() error {
	if p.config.SMTPHost == "" {
		return errors.New("smtp host is not configured")
	}
	if p.config.FromEmail == "" {
		return errors.New("from email is not configured")
	}
	if p.config.SMTPPort == 0 {
		return fmt.Errorf("invalid smtp port: %d", p.config.SMTPPort)
	}
	return nil
}

func (p *SMTPProvider) Close() error {
	return nil
}
