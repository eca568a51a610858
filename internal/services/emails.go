package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/launchpad/pkg/logger"
	"github.com/charlesng35/launchpad/pkg/mail"
	"github.com/charlesng35/launchpad/pkg/metrics"
)

// EmailKind names a transactional email.
type EmailKind string

const (
	EmailVerification           EmailKind = "verification"
	EmailPasswordReset          EmailKind = "password_reset"
	EmailNewsletterConfirmation EmailKind = "newsletter_confirmation"
)

// SiteSettings describe the public website that links in emails point to.
type SiteSettings struct {
	Name    string
	BaseURL string
}

// EmailData is the template input shared by every email.
type EmailData struct {
	SiteName  string
	Name      string
	Link      string
	ExpiresIn string
}

type emailTemplate struct {
	subject string
	path    string
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

const htmlLayout = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1.0"></head>
<body style="margin:0;padding:32px 0;background-color:#f4f4f5;font-family:Arial,Helvetica,sans-serif;">
  <table width="100%" cellpadding="0" cellspacing="0"><tr><td align="center">
    <table width="480" cellpadding="0" cellspacing="0" style="background-color:#ffffff;border-radius:8px;padding:32px;">
      <tr><td>
        <h1 style="font-size:20px;margin:0 0 16px 0;">{{.SiteName}}</h1>
        {{if .Name}}<p style="font-size:15px;margin:0 0 16px 0;">Hi {{.Name}},</p>{{end}}
        <p style="font-size:15px;line-height:1.6;margin:0 0 24px 0;">{{template "intro" .}}</p>
        <p style="margin:0 0 24px 0;"><a href="{{.Link}}" style="background-color:#4f46e5;color:#ffffff;text-decoration:none;padding:12px 28px;border-radius:6px;font-weight:600;">{{template "action" .}}</a></p>
        <p style="color:#71717a;font-size:13px;line-height:1.6;margin:0 0 12px 0;">This link expires in {{.ExpiresIn}}. If you did not request it, you can ignore this email.</p>
        <p style="color:#71717a;font-size:13px;line-height:1.6;margin:0;word-break:break-all;">If the button does not work, copy this link:<br><a href="{{.Link}}">{{.Link}}</a></p>
      </td></tr>
    </table>
  </td></tr></table>
</body>
</html>`

const textLayout = `{{if .Name}}Hi {{.Name}},

{{end}}{{template "intro" .}}

{{template "action" .}}: {{.Link}}

This link expires in {{.ExpiresIn}}. If you did not request it, you can ignore this email.

{{.SiteName}}
`

func newEmailTemplate(subject, path, intro, action string) emailTemplate {
	defs := `{{define "intro"}}` + intro + `{{end}}{{define "action"}}` + action + `{{end}}`
	return emailTemplate{
		subject: subject,
		path:    path,
		html:    htmltemplate.Must(htmltemplate.Must(htmltemplate.New("html").Parse(htmlLayout)).Parse(defs)),
		text:    texttemplate.Must(texttemplate.Must(texttemplate.New("text").Parse(textLayout)).Parse(defs)),
	}
}

var emailTemplates = map[EmailKind]emailTemplate{
	EmailVerification: newEmailTemplate(
		"Confirm your email address",
		"/verify-email",
		"Thanks for signing up to {{.SiteName}}. Please confirm your email address to activate your account.",
		"Confirm email",
	),
	EmailPasswordReset: newEmailTemplate(
		"Reset your password",
		"/reset-password",
		"We received a request to reset the password for your {{.SiteName}} account.",
		"Reset password",
	),
	EmailNewsletterConfirmation: newEmailTemplate(
		"Confirm your newsletter subscription",
		"/newsletter/confirm",
		"Please confirm that you want to receive the {{.SiteName}} newsletter.",
		"Confirm subscription",
	),
}

// EmailSender renders transactional emails and hands them to a mail.Mailer.
type EmailSender struct {
	mailer mail.Mailer
	site   SiteSettings
	log    *zap.Logger
}

// NewEmailSender constructs an EmailSender. A nil mailer disables delivery.
func NewEmailSender(mailer mail.Mailer, site SiteSettings) *EmailSender {
	if mailer == nil {
		mailer = mail.NewDisabledMailer()
	}
	if strings.TrimSpace(site.Name) == "" {
		site.Name = "Launchpad"
	}
	site.BaseURL = strings.TrimRight(strings.TrimSpace(site.BaseURL), "/")
	return &EmailSender{mailer: mailer, site: site, log: logger.WithModule("email")}
}

// Render builds the message for kind without sending it.
func (s *EmailSender) Render(kind EmailKind, to, name, token string, ttl time.Duration) (mail.Message, error) {
	tpl, ok := emailTemplates[kind]
	if !ok {
		return mail.Message{}, fmt.Errorf("email: unknown template %q", kind)
	}

	data := EmailData{
		SiteName:  s.site.Name,
		Name:      strings.TrimSpace(name),
		Link:      s.link(tpl.path, token),
		ExpiresIn: humanizeDuration(ttl),
	}

	var html, text bytes.Buffer
	if err := tpl.html.Execute(&html, data); err != nil {
		return mail.Message{}, fmt.Errorf("email: render html: %w", err)
	}
	if err := tpl.text.Execute(&text, data); err != nil {
		return mail.Message{}, fmt.Errorf("email: render text: %w", err)
	}

	return mail.Message{
		To:      []string{to},
		Subject: fmt.Sprintf("%s - %s", tpl.subject, s.site.Name),
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

// Send renders and delivers an email of kind.
func (s *EmailSender) Send(ctx context.Context, kind EmailKind, to, name, token string, ttl time.Duration) error {
	msg, err := s.Render(kind, to, name, token, ttl)
	if err != nil {
		return err
	}

	provider := mail.ProviderName(s.mailer)
	if err := s.mailer.Send(ctx, msg); err != nil {
		result := "failure"
		if errors.Is(err, mail.ErrDeliveryDisabled) {
			result = "disabled"
		}
		metrics.EmailsSent.WithLabelValues(provider, result).Inc()
		s.log.Warn("email delivery failed",
			zap.String("kind", string(kind)),
			zap.String("provider", provider),
			zap.Error(err),
		)
		return fmt.Errorf("email: send %s: %w", kind, err)
	}

	metrics.EmailsSent.WithLabelValues(provider, "success").Inc()
	return nil
}

func (s *EmailSender) link(path, token string) string {
	return fmt.Sprintf("%s%s?token=%s", s.site.BaseURL, path, url.QueryEscape(token))
}

func humanizeDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "a short while"
	case d%(24*time.Hour) == 0:
		return plural(int(d/(24*time.Hour)), "day")
	case d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	default:
		return plural(int((d+time.Minute-1)/time.Minute), "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
