package alerts

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
)

// Mailer delivers one envelope.
type Mailer interface {
	Send(ctx context.Context, env Envelope) error
}

// MailerConfig selects and configures a mail provider.
type MailerConfig struct {
	Provider string // smtp, plunk or log
	ReplyTo  string

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	PlunkAPIKey string
	PlunkFrom   string
	PlunkAPIURL string
}

func NewMailer(cfg MailerConfig, logger *slog.Logger) (Mailer, error) {
	switch cfg.Provider {
	case "smtp":
		if cfg.SMTPHost == "" || cfg.SMTPPort == "" || cfg.SMTPUsername == "" || cfg.SMTPPassword == "" || cfg.SMTPFrom == "" {
			return nil, fmt.Errorf("smtp not configured: set SMTP_HOST, SMTP_PORT, SMTP_USERNAME, SMTP_PASSWORD, SMTP_FROM")
		}
		return &SMTPMailer{cfg: cfg}, nil
	case "plunk":
		if cfg.PlunkAPIKey == "" {
			return nil, fmt.Errorf("plunk not configured: set PLUNK_API_KEY")
		}
		return NewPlunkMailer(cfg.PlunkAPIKey, cfg.PlunkFrom, cfg.PlunkAPIURL, cfg.ReplyTo, nil), nil
	case "log":
		return LogMailer{Logger: logger}, nil
	}
	return nil, fmt.Errorf("MAIL_PROVIDER %q is not supported", cfg.Provider)
}

// LogMailer writes envelopes to the log instead of sending them.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) Send(ctx context.Context, env Envelope) error {
	m.Logger.InfoContext(ctx, "email", "to", env.To, "subject", env.Subject)
	return nil
}

// SMTPMailer sends plain text mail over implicit TLS.
type SMTPMailer struct {
	cfg MailerConfig
}

func (m *SMTPMailer) Send(ctx context.Context, env Envelope) error {
	addr := net.JoinHostPort(m.cfg.SMTPHost, m.cfg.SMTPPort)
	dialer := &tls.Dialer{Config: &tls.Config{ServerName: m.cfg.SMTPHost}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, m.cfg.SMTPHost)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer c.Close()

	if err := c.Auth(smtp.PlainAuth("", m.cfg.SMTPUsername, m.cfg.SMTPPassword, m.cfg.SMTPHost)); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := c.Mail(m.cfg.SMTPFrom); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(env.To); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := wc.Write([]byte(m.message(env))); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	return c.Quit()
}

func (m *SMTPMailer) message(env Envelope) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.SMTPFrom)
	fmt.Fprintf(&b, "To: %s\r\n", env.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", env.Subject)
	if m.cfg.ReplyTo != "" {
		fmt.Fprintf(&b, "Reply-To: %s\r\n", m.cfg.ReplyTo)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n" + env.Body + "\r\n")
	return b.String()
}
