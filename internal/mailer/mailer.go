// Package mailer delivers the weekly report.
package mailer

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/danielolaszy/jiradigest/internal/config"
	"github.com/danielolaszy/jiradigest/internal/logging"
)

// Message is a plain-text email.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender sends mail through an authenticated SMTP server, requiring
// STARTTLS. The sender address doubles as the login.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
}

// NewSMTPSender creates an SMTPSender from the email configuration.
func NewSMTPSender(cfg *config.Config) (*SMTPSender, error) {
	if err := config.ValidateEmailConfig(cfg); err != nil {
		return nil, err
	}
	return &SMTPSender{
		host:     cfg.Email.SMTPServer,
		port:     cfg.Email.SMTPPort,
		username: cfg.Email.Sender,
		password: cfg.Email.Password,
	}, nil
}

// Send delivers msg.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m, err := buildMessage(msg)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(s.host,
		mail.WithPort(s.port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.username),
		mail.WithPassword(s.password),
	)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to send email via %s:%d: %w", s.host, s.port, err)
	}

	logging.Info("email sent", "to", msg.To, "subject", msg.Subject)
	return nil
}

func buildMessage(msg Message) (*mail.Msg, error) {
	if len(msg.To) == 0 {
		return nil, fmt.Errorf("email has no recipients")
	}

	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", msg.From, err)
	}
	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("invalid recipients %v: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}

// WriterSender prints messages instead of sending them. Used for dry runs.
type WriterSender struct {
	W io.Writer
}

// Send writes msg to the underlying writer with its headers.
func (s WriterSender) Send(_ context.Context, msg Message) error {
	_, err := fmt.Fprintf(s.W, "From: %s\nTo: %s\nSubject: %s\n\n%s",
		msg.From, strings.Join(msg.To, ", "), msg.Subject, msg.Body)
	return err
}
