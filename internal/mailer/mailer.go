// Package mailer delivers account verification and recovery emails.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/speaklexi/backend/internal/config"
)

// Mailer sends the account lifecycle emails.
type Mailer interface {
	SendVerification(ctx context.Context, email, code string) error
	SendRecovery(ctx context.Context, email, token string) error
}

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// SendFunc delivers a message through an SMTP server; it has the shape of
// smtp.SendMail so tests can capture outgoing mail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// New returns the SMTP mailer when a host is configured and the log mailer
// otherwise.
func New(cfg config.MailConfig, logger *slog.Logger) Mailer {
	if cfg.SMTPHost == "" {
		return NewLogMailer(cfg, logger)
	}
	return NewSMTPMailer(cfg, logger, smtp.SendMail)
}

type smtpMailer struct {
	cfg    config.MailConfig
	logger *slog.Logger
	send   SendFunc
}

// NewSMTPMailer creates a mailer that delivers through cfg.SMTPHost.
func NewSMTPMailer(cfg config.MailConfig, logger *slog.Logger, send SendFunc) Mailer {
	return &smtpMailer{
		cfg:    cfg,
		logger: logger.With("component", "smtp_mailer"),
		send:   send,
	}
}

func (m *smtpMailer) SendVerification(ctx context.Context, email, code string) error {
	return m.deliver(ctx, VerificationMessage(m.cfg, email, code))
}

func (m *smtpMailer) SendRecovery(ctx context.Context, email, token string) error {
	return m.deliver(ctx, RecoveryMessage(m.cfg, email, token))
}

func (m *smtpMailer) deliver(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(m.cfg.SMTPHost, strconv.Itoa(m.cfg.SMTPPort))
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.SMTPHost)
	}

	start := time.Now()
	if err := m.send(addr, auth, envelopeFrom(m.cfg.From), []string{msg.To}, encode(m.cfg.From, msg)); err != nil {
		return fmt.Errorf("send %q: %w", msg.Subject, err)
	}
	m.logger.Info("mail sent", "subject", msg.Subject, "duration", time.Since(start))
	return nil
}

type logMailer struct {
	cfg    config.MailConfig
	logger *slog.Logger
}

// NewLogMailer creates a mailer that writes messages to the log. It is meant
// for local development where no SMTP server is available.
func NewLogMailer(cfg config.MailConfig, logger *slog.Logger) Mailer {
	return &logMailer{cfg: cfg, logger: logger.With("component", "log_mailer")}
}

func (m *logMailer) SendVerification(_ context.Context, email, code string) error {
	msg := VerificationMessage(m.cfg, email, code)
	m.logger.Info("mail not sent, no smtp host", "to", msg.To, "subject", msg.Subject, "body", msg.Body)
	return nil
}

func (m *logMailer) SendRecovery(_ context.Context, email, token string) error {
	msg := RecoveryMessage(m.cfg, email, token)
	m.logger.Info("mail not sent, no smtp host", "to", msg.To, "subject", msg.Subject, "body", msg.Body)
	return nil
}

// VerificationMessage builds the email carrying a verification code.
func VerificationMessage(cfg config.MailConfig, email, code string) Message {
	return Message{
		To:      email,
		Subject: "Verifica tu cuenta SpeakLexi",
		Body: fmt.Sprintf("Tu código de verificación es: %s\n\n"+
			"El código caduca en pocos minutos.\n\nGracias por registrarte en SpeakLexi.\n", code),
	}
}

// RecoveryMessage builds the email carrying a password reset link.
func RecoveryMessage(cfg config.MailConfig, email, token string) Message {
	var b strings.Builder
	b.WriteString("Recibimos una solicitud para restablecer tu contraseña.\n\n")
	fmt.Fprintf(&b, "Abre este enlace para elegir una nueva: %s\n\n", ResetLink(cfg, token))
	b.WriteString("El enlace caduca en una hora. Si no lo pediste, ignora este correo.\n")
	if cfg.SupportEmail != "" {
		fmt.Fprintf(&b, "\n¿Dudas? Escríbenos a %s\n", cfg.SupportEmail)
	}
	return Message{To: email, Subject: "Restablece tu contraseña de SpeakLexi", Body: b.String()}
}

// ResetLink returns the frontend URL that consumes a recovery token.
func ResetLink(cfg config.MailConfig, token string) string {
	base := strings.TrimRight(cfg.FrontendURL, "/")
	path := "/" + strings.TrimLeft(cfg.ResetPath, "/")
	return base + path + "?token=" + url.QueryEscape(token)
}

func envelopeFrom(from string) string {
	if i := strings.LastIndex(from, "<"); i >= 0 {
		return strings.TrimSuffix(from[i+1:], ">")
	}
	return from
}

func encode(from string, msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}
