package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/launchpad/internal/app"
	"github.com/charlesng35/launchpad/internal/models"
)

// CheckStatus captures the outcome of a security audit check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

// Check contains the result of a single audit verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
	Details     any         `json:"details,omitempty"`
}

// Result aggregates all checks with a simple status summary.
type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

// maxRecommendedSessionTTL bounds how long a stolen session cookie stays useful.
const maxRecommendedSessionTTL = 30 * 24 * time.Hour

// AuditService evaluates the deployment's security posture at startup.
type AuditService struct {
	db  *gorm.DB
	cfg *app.Config
	now func() time.Time
}

// NewAuditService constructs the audit service. Missing inputs degrade the
// affected checks to warnings.
func NewAuditService(db *gorm.DB, cfg *app.Config) *AuditService {
	return &AuditService{
		db:  db,
		cfg: cfg,
		now: time.Now,
	}
}

// WithClock overrides the clock used in results.
func (s *AuditService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Run executes all audit checks and returns their outcome.
func (s *AuditService) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	checks := []Check{
		s.checkSecureCookies(),
		s.checkSessionTTL(),
		s.checkEmailDelivery(),
		s.checkRateLimiting(),
		s.checkStaleUnverified(ctx),
	}

	summary := map[string]int{
		string(StatusPass): 0,
		string(StatusWarn): 0,
		string(StatusFail): 0,
	}
	for _, check := range checks {
		summary[string(check.Status)]++
	}

	return Result{
		CheckedAt: s.now().UTC(),
		Checks:    checks,
		Summary:   summary,
	}
}

// Report logs every check that did not pass.
func (r Result) Report(log *zap.Logger) {
	if log == nil {
		return
	}
	for _, check := range r.Checks {
		fields := []zap.Field{zap.String("check", check.ID), zap.String("remediation", check.Remediation)}
		switch check.Status {
		case StatusFail:
			log.Error(check.Message, fields...)
		case StatusWarn:
			log.Warn(check.Message, fields...)
		}
	}
}

func configMissing(id string) Check {
	return Check{
		ID:          id,
		Status:      StatusWarn,
		Message:     "Configuration not loaded; unable to evaluate.",
		Remediation: "Load configuration before running the security audit.",
	}
}

func (s *AuditService) checkSecureCookies() Check {
	const id = "secure_session_cookie"
	if s.cfg == nil {
		return configMissing(id)
	}

	https := strings.HasPrefix(strings.ToLower(strings.TrimSpace(s.cfg.Site.BaseURL)), "https://")
	switch {
	case https && !s.cfg.Server.SecureCookies:
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     "Site is served over HTTPS but session cookies are not marked Secure.",
			Remediation: "Set LAUNCHPAD_SERVER_SECURE_COOKIES=true.",
		}
	case !https && s.cfg.Server.SecureCookies:
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Session cookies are marked Secure but the site base URL is not HTTPS; browsers will drop them.",
			Remediation: "Serve the site over HTTPS or disable secure cookies for local development.",
		}
	case !https:
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Site base URL is not HTTPS; session cookies travel in clear text.",
			Remediation: "Terminate TLS in front of the server and update LAUNCHPAD_SITE_BASE_URL.",
		}
	}
	return Check{ID: id, Status: StatusPass, Message: "Session cookies are Secure."}
}

func (s *AuditService) checkSessionTTL() Check {
	const id = "session_lifetime"
	if s.cfg == nil {
		return configMissing(id)
	}

	ttl := s.cfg.Auth.SessionLifetime()
	if ttl > maxRecommendedSessionTTL {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Session lifetime (%s) exceeds recommended maximum (%s).", ttl, maxRecommendedSessionTTL),
			Remediation: "Reduce LAUNCHPAD_AUTH_SESSION_TTL to limit credential exposure.",
			Details:     map[string]any{"ttl": ttl.String()},
		}
	}
	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: fmt.Sprintf("Session lifetime is %s.", ttl),
		Details: map[string]any{"ttl": ttl.String()},
	}
}

func (s *AuditService) checkEmailDelivery() Check {
	const id = "email_delivery"
	if s.cfg == nil {
		return configMissing(id)
	}

	provider := strings.ToLower(strings.TrimSpace(s.cfg.Email.Provider))
	switch provider {
	case app.EmailProviderNone:
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     "Email delivery is disabled; registration and password resets cannot complete.",
			Remediation: "Configure LAUNCHPAD_EMAIL_PROVIDER as smtp or resend.",
		}
	case "", app.EmailProviderLog:
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Emails are written to the log instead of being delivered.",
			Remediation: "Configure LAUNCHPAD_EMAIL_PROVIDER as smtp or resend outside development.",
		}
	}
	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: fmt.Sprintf("Emails are delivered through %s.", provider),
	}
}

func (s *AuditService) checkRateLimiting() Check {
	const id = "rate_limiting"
	if s.cfg == nil {
		return configMissing(id)
	}

	if !s.cfg.RateLimit.AuthPolicy().Enabled() {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Authentication endpoints are not rate limited.",
			Remediation: "Enable LAUNCHPAD_RATELIMIT_ENABLED to slow down credential stuffing.",
		}
	}
	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: "Authentication endpoints are rate limited.",
		Details: map[string]any{"store": s.cfg.RateLimit.Store},
	}
}

func (s *AuditService) checkStaleUnverified(ctx context.Context) Check {
	const id = "stale_unverified_accounts"
	if s.db == nil {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Database unavailable; unable to count unverified accounts.",
			Remediation: "Ensure database connectivity before running the audit.",
		}
	}

	window := 24 * time.Hour
	if s.cfg != nil && s.cfg.Auth.VerificationTokenTTL > 0 {
		window = s.cfg.Auth.VerificationTokenTTL
	}
	cutoff := s.now().Add(-window)

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("email_verified_at IS NULL AND created_at < ?", cutoff).
		Count(&count).Error; err != nil {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Could not count unverified accounts: %v", err),
			Remediation: "Retry after resolving database errors.",
		}
	}

	if count > 0 {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("%d accounts never verified their email address.", count),
			Remediation: "Check email delivery; these addresses may be squatted by third parties.",
			Details:     map[string]any{"count": count},
		}
	}
	return Check{ID: id, Status: StatusPass, Message: "No stale unverified accounts."}
}
