package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"catering-system/internal/config"
	"catering-system/internal/models"
)

// Transport delivers one notification to its recipient
type Transport interface {
	Send(ctx context.Context, n *models.Notification) error
}

// SMTPTransport delivers notifications as plain-text email
type SMTPTransport struct {
	cfg config.SMTPConfig
}

var _ Transport = (*SMTPTransport)(nil)

// NewSMTPTransport creates an email transport
func NewSMTPTransport(cfg config.SMTPConfig) *SMTPTransport {
	return &SMTPTransport{cfg: cfg}
}

// Send delivers the notification via SMTP
func (t *SMTPTransport) Send(_ context.Context, n *models.Notification) error {
	addr := fmt.Sprintf("%s:%d", t.cfg.Host, t.cfg.Port)

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", t.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", n.Recipient)
	fmt.Fprintf(&msg, "Subject: %s\r\n", n.Subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(n.Body)

	var auth smtp.Auth
	if t.cfg.User != "" {
		auth = smtp.PlainAuth("", t.cfg.User, t.cfg.Password, t.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, t.cfg.From, []string{n.Recipient}, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send to %s: %w", n.Recipient, err)
	}

	return nil
}
