// Package mail delivers sign-in messages over SMTP, or to the log when no server is configured.
package mail

import (
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"

	"github.com/dtroode/identity-store/internal/model"
)

// SMTPConfig describes the outgoing mail server.
type SMTPConfig struct {
	Server   string
	Port     int
	Username string
	Password string
	// SSL uses implicit TLS; otherwise STARTTLS is attempted opportunistically.
	SSL  bool
	From string
}

type dialer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// SMTPSender sends mail through one SMTP server.
type SMTPSender struct {
	client dialer
	from   string
}

var _ model.Mailer = (*SMTPSender)(nil)

// NewSMTPSender builds a sender for cfg. No connection is made until the first Send.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Server == "" {
		return nil, fmt.Errorf("smtp server is required")
	}

	opts := []gomail.Option{gomail.WithPort(cfg.Port)}
	if cfg.SSL {
		opts = append(opts, gomail.WithSSL())
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Server, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	return &SMTPSender{client: client, from: cfg.From}, nil
}

// Send delivers m and blocks until the server accepted or rejected it.
func (s *SMTPSender) Send(ctx context.Context, m model.Mail) error {
	msg, err := buildMessage(s.from, m)
	if err != nil {
		return err
	}

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}

func buildMessage(from string, m model.Mail) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(m.To); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(m.Subject)
	msg.SetBodyString(gomail.TypeTextPlain, m.Text)
	if m.HTML != "" {
		msg.AddAlternativeString(gomail.TypeTextHTML, m.HTML)
	}
	return msg, nil
}
