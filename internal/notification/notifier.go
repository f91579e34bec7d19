package notification

import (
	"fmt"
	"net/smtp"
	"strings"

	"ConnSpectra/internal/config"
	"ConnSpectra/internal/model"

	log "github.com/sirupsen/logrus"
)

// EmailNotifier implements the Notifier interface for sending emails.
type EmailNotifier struct {
	cfg  config.SMTPConfig
	auth smtp.Auth
}

// NewEmailNotifier creates a new EmailNotifier.
func NewEmailNotifier(cfg config.SMTPConfig) model.Notifier {
	// PlainAuth will not send credentials until the server identifies itself as a trusted one.
	auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	return &EmailNotifier{cfg: cfg, auth: auth}
}

// Send sends an email to the configured recipients.
func (n *EmailNotifier) Send(subject, body string) error {
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	recipients := splitRecipients(n.cfg.To)
	if len(recipients) == 0 {
		return fmt.Errorf("no email recipients configured")
	}

	err := smtp.SendMail(addr, n.auth, n.cfg.From, recipients, buildMessage(n.cfg.From, recipients, subject, body))
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

func splitRecipients(to string) []string {
	var recipients []string
	for _, r := range strings.Split(to, ",") {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}
	return recipients
}

func buildMessage(from string, to []string, subject, body string) []byte {
	return []byte("To: " + strings.Join(to, ", ") + "\r\n" +
		"From: " + from + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"Content-Type: text/html; charset=UTF-8\r\n" +
		"\r\n" +
		body)
}

// LogNotifier writes notifications to the log. It is used when no mail server is configured.
type LogNotifier struct{}

func (LogNotifier) Send(subject, body string) error {
	log.WithField("subject", subject).Warn(body)
	return nil
}

// New returns an EmailNotifier when an SMTP host is configured, and a LogNotifier otherwise.
func New(cfg config.SMTPConfig) model.Notifier {
	if cfg.Host == "" {
		return LogNotifier{}
	}
	return NewEmailNotifier(cfg)
}
