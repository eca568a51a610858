package app

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/charlesng35/launchpad/pkg/mail"
)

// Supported values of email.provider.
const (
	EmailProviderSMTP   = "smtp"
	EmailProviderResend = "resend"
	EmailProviderLog    = "log"
	EmailProviderNone   = "none"
)

// SMTPSettings converts EmailConfig to the mail package representation.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	return mail.SMTPSettings{
		Enabled:  true,
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.From,
		UseTLS:   c.SMTP.UseTLS,
		Timeout:  c.SMTP.Timeout,
	}
}

// ResendSettings converts EmailConfig to the Resend mailer parameters.
func (c EmailConfig) ResendSettings() mail.ResendSettings {
	return mail.ResendSettings{
		APIKey:  c.Resend.APIKey,
		From:    c.From,
		BaseURL: c.Resend.BaseURL,
	}
}

// NewMailer builds the mailer selected by email.provider. The "none" provider rejects every
// message, which makes registration fail; "log" is the choice for local development.
func (c EmailConfig) NewMailer(log *zap.Logger) (mail.Mailer, error) {
	switch strings.ToLower(strings.TrimSpace(c.Provider)) {
	case EmailProviderSMTP:
		return mail.NewSMTPMailer(c.SMTPSettings())
	case EmailProviderResend:
		return mail.NewResendMailer(c.ResendSettings())
	case EmailProviderLog, "":
		return mail.NewLogMailer(log), nil
	case EmailProviderNone:
		return mail.NewDisabledMailer(), nil
	default:
		return nil, fmt.Errorf("email: unsupported provider %q", c.Provider)
	}
}
