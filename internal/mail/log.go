package mail

import (
	"context"

	"github.com/dtroode/identity-store/internal/logger"
	"github.com/dtroode/identity-store/internal/model"
)

// LogSender writes mail to the log instead of delivering it.
type LogSender struct {
	logger *logger.Logger
}

var _ model.Mailer = (*LogSender)(nil)

// NewLogSender creates a LogSender.
func NewLogSender(logger *logger.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the message and always succeeds.
func (s *LogSender) Send(_ context.Context, m model.Mail) error {
	s.logger.Info("Mail: not sent, no smtp server configured",
		"to", m.To,
		"subject", m.Subject,
		"body", m.Text)
	return nil
}
