// Package notify delivers transactional email to approvers and event creators.
package notify

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"strings"
)

// Email is a single outbound message. Text is the plain-text alternative
// sent when HTML is empty.
type Email struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

// Notifier sends email. Delivery failures must never block or fail the state
// change that triggered them; callers log and move on.
type Notifier interface {
	SendEmail(ctx context.Context, email Email) error
}

// SMTPConfig holds connection details for a plain-auth SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPNotifier sends over SMTP with PLAIN auth.
type SMTPNotifier struct {
	config SMTPConfig
}

// NewSMTPNotifier creates an SMTP-backed notifier.
func NewSMTPNotifier(config SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{config: config}
}

// SendEmail delivers the message through the configured relay.
func (n *SMTPNotifier) SendEmail(ctx context.Context, email Email) error {
	if len(email.To) == 0 {
		return fmt.Errorf("send email: no recipients")
	}

	body := email.Text
	contentType := "text/plain; charset=utf-8"
	if email.HTML != "" {
		body = email.HTML
		contentType = "text/html; charset=utf-8"
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", n.config.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(email.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", email.Subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: %s\r\n", contentType)
	fmt.Fprintf(&msg, "\r\n%s\r\n", body)

	addr := fmt.Sprintf("%s:%d", n.config.Host, n.config.Port)
	auth := smtp.PlainAuth("", n.config.Username, n.config.Password, n.config.Host)

	if err := smtp.SendMail(addr, auth, n.config.From, email.To, []byte(msg.String())); err != nil {
		return fmt.Errorf("sending email via %s: %w", addr, err)
	}
	return nil
}

// LogNotifier writes messages to the process log instead of sending them.
// Used when no SMTP relay is configured.
type LogNotifier struct{}

// SendEmail logs the message and succeeds.
func (n *LogNotifier) SendEmail(ctx context.Context, email Email) error {
	log.Printf("notify: would send %q to %s", email.Subject, strings.Join(email.To, ", "))
	return nil
}
