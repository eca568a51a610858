package mail

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/resend/resend-go/v3"
)

// ResendSettings configure delivery through the Resend HTTP API.
type ResendSettings struct {
	APIKey  string
	From    string
	BaseURL string
}

type resendSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

type resendMailer struct {
	emails resendSender
	from   string
}

// NewResendMailer constructs a Mailer backed by the Resend API client.
func NewResendMailer(cfg ResendSettings) (Mailer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("resend: api key is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("resend: sender address is required")
	}

	client := resend.NewClient(cfg.APIKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		parsed, err := url.Parse(strings.TrimRight(base, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("resend: base url: %w", err)
		}
		client.BaseURL = parsed
	}

	return &resendMailer{emails: client.Emails, from: cfg.From}, nil
}

func (m *resendMailer) Provider() string { return "resend" }

func (m *resendMailer) Send(ctx context.Context, msg Message) error {
	from, recipients, err := prepareEnvelope(msg, m.from)
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	params := &resend.SendEmailRequest{
		From:    from,
		To:      recipients,
		Subject: escapeHeader(msg.Subject),
		Html:    msg.HTML,
		Text:    msg.Text,
	}

	if _, err := m.emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("resend: send email: %w", err)
	}
	return nil
}
