// Package email sends magic link sign-in emails over SMTP. Without SMTP
// configuration the mailer logs the link instead, which is the expected
// mode for local development.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"
)

// Sender delivers a magic link to an address. Implemented by Mailer.
type Sender interface {
	SendMagicLink(ctx context.Context, to, link string, ttl time.Duration) error
}

// Config holds SMTP settings. An empty Host disables delivery.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer sends sign-in emails.
type Mailer struct {
	cfg    Config
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	logger *slog.Logger
}

// NewMailer creates a Mailer.
func NewMailer(cfg Config, logger *slog.Logger) *Mailer {
	return &Mailer{
		cfg:    cfg,
		send:   smtp.SendMail,
		logger: logger.With("component", "email"),
	}
}

// Enabled reports whether SMTP delivery is configured.
func (m *Mailer) Enabled() bool {
	return m.cfg.Host != ""
}

// SendMagicLink emails a sign-in link. When SMTP is not configured the
// link is logged so the flow stays testable locally.
func (m *Mailer) SendMagicLink(ctx context.Context, to, link string, ttl time.Duration) error {
	if !m.Enabled() {
		m.logger.Info("smtp not configured, magic link not emailed",
			"to", to,
			"link", link,
		)
		return nil
	}

	msg := buildMessage(m.cfg.From, to, ttl, link)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	// smtp.SendMail has no context support; run it in a goroutine so the
	// caller's deadline still applies.
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.send(addr, auth, m.cfg.From, []string{to}, msg)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("send magic link email: %w", err)
		}
		m.logger.Info("magic link sent", "to", to)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send magic link email: %w", ctx.Err())
	}
}

func buildMessage(from, to string, ttl time.Duration, link string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	b.WriteString("Subject: Your sign-in link\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "Click the link below to sign in. It expires in %d minutes and can only be used once.\r\n\r\n", int(ttl.Minutes()))
	fmt.Fprintf(&b, "%s\r\n\r\n", link)
	b.WriteString("If you did not request this, you can ignore this email.\r\n")
	return []byte(b.String())
}
