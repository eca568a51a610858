package mail

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

type logMailer struct {
	log *zap.Logger
}

// NewLogMailer returns a Mailer that writes every message to log instead of delivering it.
// It lets local environments complete sign-up flows without an email provider.
func NewLogMailer(log *zap.Logger) Mailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &logMailer{log: log}
}

func (m *logMailer) Provider() string { return "log" }

func (m *logMailer) Send(_ context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return errors.New("at least one recipient is required")
	}
	m.log.Info("email not delivered, logged instead",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Text),
	)
	return nil
}
