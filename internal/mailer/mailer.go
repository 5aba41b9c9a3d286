// Package mailer delivers notification emails over SMTP.
package mailer

import (
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"

	"visitornotify/internal/config"
)

// Mailer sends one plain-text message.
type Mailer interface {
	Send(to, subject, body string) error
}

// SMTPMailer sends mail through the configured SMTP server.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	fromAddr string
	fromName string
	logger   *slog.Logger
}

// NewSMTPMailer builds a mailer from the app configuration. The From header
// carries the site name so inbox rules can match on it.
func NewSMTPMailer(cfg *config.Config, logger *slog.Logger) *SMTPMailer {
	return &SMTPMailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		fromAddr: cfg.AdminEmail,
		fromName: cfg.SiteName,
		logger:   logger,
	}
}

// Send delivers one message, dialing a fresh SMTP connection per send.
// Notification volume is low enough that connection reuse is not worth the
// stale-connection handling.
func (m *SMTPMailer) Send(to, subject, body string) error {
	if m.host == "" {
		return fmt.Errorf("smtp host not configured")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(m.fromAddr, m.fromName))
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	dialer := gomail.NewDialer(m.host, m.port, m.username, m.password)
	if err := dialer.DialAndSend(msg); err != nil {
		m.logger.Error("Failed to send email",
			slog.String("to", to),
			slog.String("subject", subject),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.logger.Debug("Email sent",
		slog.String("to", to),
		slog.String("subject", subject))
	return nil
}
