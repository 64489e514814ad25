// internal/app/system/mailer/mailer.go

// Package mailer builds and sends the draw engine's notification emails.
//
// Rendering and transport are separate: template builders produce an
// Email, and a Sender delivers it. Production uses SMTPSender; tests use
// in-memory fakes.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Email is one outbound message with both text and HTML bodies.
type Email struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Sender delivers an email. Implementations must be safe for concurrent
// use; the notification dispatcher calls Send from multiple workers.
type Sender interface {
	Send(ctx context.Context, email Email) error
}

// SMTPConfig holds transport settings for SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string // empty disables auth (e.g. Mailpit in dev)
	Pass     string
	From     string
	FromName string
}

// SMTPSender delivers mail over SMTP.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender creates a sender from transport config.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send delivers one email as a multipart/alternative message. The context
// deadline is honored only coarsely: net/smtp has no context support, so
// cancellation is checked before dialing.
func (s *SMTPSender) Send(ctx context.Context, email Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)
	}

	msg := s.buildMessage(email)
	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{email.To}, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", email.To, err)
	}
	return nil
}

const mimeBoundary = "gangmail-alt-boundary"

func (s *SMTPSender) buildMessage(email Email) []byte {
	var b strings.Builder

	from := s.cfg.From
	if s.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.From)
	}

	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", email.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", email.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n", mimeBoundary)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", mimeBoundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(email.TextBody)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", mimeBoundary)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(email.HTMLBody)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", mimeBoundary)

	return []byte(b.String())
}
