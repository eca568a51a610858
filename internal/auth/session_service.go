package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/charlesng35/launchpad/internal/geo"
	"github.com/charlesng35/launchpad/internal/models"
	"github.com/charlesng35/launchpad/internal/repository"
	"github.com/charlesng35/launchpad/pkg/crypto"
	"github.com/charlesng35/launchpad/pkg/logger"
	"github.com/charlesng35/launchpad/pkg/metrics"
)

// DefaultSessionTTL is the absolute lifetime of a session created at sign-in.
const DefaultSessionTTL = 30 * 24 * time.Hour

const sessionTokenBytes = 32

var (
	// ErrSessionNotFound indicates that no session matches the provided token.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionExpired signals that the session has reached its expiry.
	ErrSessionExpired = errors.New("session: expired")
	// ErrSessionInvalidToken is returned when the supplied token is blank.
	ErrSessionInvalidToken = errors.New("session: invalid token")
)

// RequestMetadata is what the HTTP layer observed about the caller.
type RequestMetadata struct {
	UserAgent string
	IPAddress string
}

// SessionConfig describes tunable behaviour for the SessionService.
type SessionConfig struct {
	TTL     time.Duration
	Clock   func() time.Time
	Locator geo.Locator
	Logger  *zap.Logger
}

// SessionService owns session rows: it creates them at sign-in, keeps their device
// metadata current, and removes them on sign-out or expiry.
type SessionService struct {
	repo    repository.SessionRepository
	locator geo.Locator
	ttl     time.Duration
	now     func() time.Time
	log     *zap.Logger
}

// NewSessionService constructs a session manager backed by repo.
func NewSessionService(repo repository.SessionRepository, cfg SessionConfig) (*SessionService, error) {
	if repo == nil {
		return nil, errors.New("session service: repository is required")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}
	locator := cfg.Locator
	if locator == nil {
		locator = geo.NoopLocator{}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.WithModule("sessions")
	}

	return &SessionService{
		repo:    repo,
		locator: locator,
		ttl:     ttl,
		now:     clock,
		log:     log,
	}, nil
}

// TTL returns the lifetime applied to new sessions.
func (s *SessionService) TTL() time.Duration {
	return s.ttl
}

// NewSessionToken returns a fresh opaque session token.
func (s *SessionService) NewSessionToken() (string, error) {
	token, err := crypto.GenerateToken(sessionTokenBytes)
	if err != nil {
		return "", fmt.Errorf("session service: generate token: %w", err)
	}
	return token, nil
}

// UpdateSessionInfo refreshes the device metadata and last-activity time of an existing
// session. Unknown tokens are ignored and every failure is logged, never returned, so a
// heartbeat can never break the request that carries it.
func (s *SessionService) UpdateSessionInfo(ctx context.Context, sessionToken string, meta RequestMetadata) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.SessionHeartbeats.WithLabelValues("error").Inc()
			s.log.Error("session update panicked", zap.Any("panic", rec))
		}
	}()

	sessionToken = strings.TrimSpace(sessionToken)
	if sessionToken == "" {
		metrics.SessionHeartbeats.WithLabelValues("missing").Inc()
		s.log.Debug("session update skipped: empty token")
		return
	}

	existing, err := s.repo.FindByToken(ctx, sessionToken)
	if errors.Is(err, repository.ErrNotFound) {
		metrics.SessionHeartbeats.WithLabelValues("missing").Inc()
		s.log.Info("session update skipped: session not found")
		return
	}
	if err != nil {
		metrics.SessionHeartbeats.WithLabelValues("error").Inc()
		s.log.Warn("session update: lookup failed", zap.Error(err))
		return
	}

	existing.SessionToken = sessionToken
	s.applyMetadata(ctx, existing, meta)

	if err := s.repo.UpdateMetadata(ctx, existing); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			metrics.SessionHeartbeats.WithLabelValues("missing").Inc()
			s.log.Info("session update skipped: session removed concurrently")
			return
		}
		metrics.SessionHeartbeats.WithLabelValues("error").Inc()
		s.log.Warn("session update: persist failed", zap.String("user_id", existing.UserID), zap.Error(err))
		return
	}

	metrics.SessionHeartbeats.WithLabelValues("updated").Inc()
}

// CreateOrUpdateSessionInfo creates the session owned by userID, or refreshes the metadata
// of an existing one. The owner and expiry of an existing session are never changed.
func (s *SessionService) CreateOrUpdateSessionInfo(ctx context.Context, sessionToken, userID string, meta RequestMetadata) error {
	sessionToken = strings.TrimSpace(sessionToken)
	if sessionToken == "" {
		return ErrSessionInvalidToken
	}
	if strings.TrimSpace(userID) == "" {
		return errors.New("session service: user id is required")
	}

	session := &models.Session{
		SessionToken: sessionToken,
		UserID:       userID,
		ExpiresAt:    s.now().Add(s.ttl),
	}
	s.applyMetadata(ctx, session, meta)

	if err := s.repo.Upsert(ctx, session); err != nil {
		return fmt.Errorf("session service: %w", err)
	}
	return nil
}

// Lookup returns the live session for token.
func (s *SessionService) Lookup(ctx context.Context, sessionToken string) (*models.Session, error) {
	sessionToken = strings.TrimSpace(sessionToken)
	if sessionToken == "" {
		return nil, ErrSessionInvalidToken
	}

	session, err := s.repo.FindByToken(ctx, sessionToken)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session service: lookup: %w", err)
	}
	if session.ExpiredAt(s.now()) {
		return nil, ErrSessionExpired
	}
	return session, nil
}

// ListForUser returns the user's live sessions, most recently active first.
func (s *SessionService) ListForUser(ctx context.Context, userID string) ([]models.Session, error) {
	return s.repo.ListByUser(ctx, userID, s.now())
}

// Revoke deletes the session for token. Revoking an unknown token is not an error.
func (s *SessionService) Revoke(ctx context.Context, sessionToken string) error {
	sessionToken = strings.TrimSpace(sessionToken)
	if sessionToken == "" {
		return nil
	}
	return s.repo.DeleteByToken(ctx, sessionToken)
}

// RevokeUserSessions signs the user out everywhere.
func (s *SessionService) RevokeUserSessions(ctx context.Context, userID string) (int64, error) {
	return s.repo.DeleteByUser(ctx, userID)
}

// CleanupExpired removes sessions past their expiry.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}

func (s *SessionService) applyMetadata(ctx context.Context, session *models.Session, meta RequestMetadata) {
	info := ParseUserAgent(meta.UserAgent)
	ip := strings.TrimSpace(meta.IPAddress)

	location, label, err := geo.Describe(ctx, s.locator, ip)
	if err != nil {
		s.log.Debug("geolocation failed", zap.String("ip", ip), zap.Error(err))
	}

	session.IPAddress = ip
	session.UserAgent = truncate(meta.UserAgent, 512)
	session.DeviceType = info.DeviceType
	session.Browser = info.Browser
	session.OS = info.OS
	session.Location = label
	session.Geo = datatypes.JSONMap(location.Fields())
	session.LastActive = s.now()
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
