package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/launchpad/internal/cache"
	"github.com/charlesng35/launchpad/internal/models"
	"github.com/charlesng35/launchpad/internal/repository"
	"github.com/charlesng35/launchpad/pkg/crypto"
	"github.com/charlesng35/launchpad/pkg/logger"
	"github.com/charlesng35/launchpad/pkg/metrics"
)

const (
	// TokenBytes is the number of random bytes behind every issued token.
	TokenBytes = 32

	defaultTombstoneTTL = 24 * time.Hour
)

// DefaultTokenTTLs maps each token kind to its lifetime.
var DefaultTokenTTLs = map[models.TokenKind]time.Duration{
	models.TokenKindEmailVerification:      24 * time.Hour,
	models.TokenKindPasswordReset:          time.Hour,
	models.TokenKindNewsletterConfirmation: 24 * time.Hour,
}

var (
	// ErrTokenNotFound indicates no stored token matches the presented value.
	ErrTokenNotFound = errors.New("token: not found")
	// ErrTokenExpired indicates the token existed but its lifetime has passed.
	ErrTokenExpired = errors.New("token: expired")
	// ErrTokenMalformed indicates the presented value cannot be a token we issued.
	ErrTokenMalformed = errors.New("token: malformed")
)

// TokenFailure classifies a failed verification.
type TokenFailure string

const (
	TokenInvalid TokenFailure = "invalid"
	TokenExpired TokenFailure = "expired"
)

// IssuedToken carries the raw token value. It is only ever available at issue time.
type IssuedToken struct {
	Token      string
	Identifier string
	Kind       models.TokenKind
	ExpiresAt  time.Time
}

// TokenVerification is the outcome of checking a presented token.
type TokenVerification struct {
	Valid      bool
	Identifier string
	Kind       models.TokenKind
	ExpiresAt  time.Time
	Failure    TokenFailure
	Err        error
}

// IsExpiredOrInvalid reports whether the token must be rejected.
func (v *TokenVerification) IsExpiredOrInvalid() bool {
	return v == nil || !v.Valid
}

// TokenOption customises the TokenService.
type TokenOption func(*TokenService)

// WithTokenClock injects a custom time source.
func WithTokenClock(clock func() time.Time) TokenOption {
	return func(s *TokenService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithTokenRandom replaces crypto/rand as the entropy source.
func WithTokenRandom(source io.Reader) TokenOption {
	return func(s *TokenService) {
		if source != nil {
			s.random = source
		}
	}
}

// WithTokenTTL overrides the lifetime of one token kind.
func WithTokenTTL(kind models.TokenKind, ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 && kind.Valid() {
			s.ttls[kind] = ttl
		}
	}
}

// WithTokenTombstones keeps a record of expired tokens in store so repeated checks of an
// expired link keep reporting expiry after the row has been purged.
func WithTokenTombstones(store cache.Store, ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		s.tombstones = store
		if ttl > 0 {
			s.tombstoneTTL = ttl
		}
	}
}

// WithTokenLogger sets the logger used for non-fatal failures.
func WithTokenLogger(log *zap.Logger) TokenOption {
	return func(s *TokenService) {
		if log != nil {
			s.log = log
		}
	}
}

// TokenService issues, verifies and revokes single-use email tokens.
type TokenService struct {
	repo         repository.TokenRepository
	tombstones   cache.Store
	tombstoneTTL time.Duration
	ttls         map[models.TokenKind]time.Duration
	random       io.Reader
	now          func() time.Time
	log          *zap.Logger
}

// NewTokenService constructs a TokenService.
func NewTokenService(repo repository.TokenRepository, opts ...TokenOption) (*TokenService, error) {
	if repo == nil {
		return nil, errors.New("token service: repository is required")
	}

	ttls := make(map[models.TokenKind]time.Duration, len(DefaultTokenTTLs))
	for kind, ttl := range DefaultTokenTTLs {
		ttls[kind] = ttl
	}

	service := &TokenService{
		repo:         repo,
		ttls:         ttls,
		tombstoneTTL: defaultTombstoneTTL,
		now:          time.Now,
		log:          logger.WithModule("tokens"),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// TTL returns the lifetime applied to tokens of kind.
func (s *TokenService) TTL(kind models.TokenKind) time.Duration {
	return s.ttls[kind]
}

// GenerateToken issues a token for identifier, replacing any active token of the same kind.
// Storage failures are returned unchanged in meaning: the caller must not proceed.
func (s *TokenService) GenerateToken(ctx context.Context, identifier string, kind models.TokenKind) (*IssuedToken, error) {
	identifier = models.NormalizeEmail(identifier)
	if identifier == "" {
		return nil, errors.New("token service: identifier is required")
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("token service: unknown kind %q", kind)
	}

	raw, err := crypto.GenerateTokenFrom(s.random, TokenBytes)
	if err != nil {
		return nil, fmt.Errorf("token service: generate token: %w", err)
	}

	expires := s.now().Add(s.ttls[kind]).UTC()
	record := &models.Token{
		Kind:       kind,
		Identifier: identifier,
		TokenHash:  crypto.HashToken(raw),
		ExpiresAt:  expires,
	}
	if err := s.repo.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("token service: store token: %w", err)
	}

	metrics.TokensIssued.WithLabelValues(string(kind)).Inc()
	return &IssuedToken{Token: raw, Identifier: identifier, Kind: kind, ExpiresAt: expires}, nil
}

// VerifyToken checks token without consuming it. Only storage failures are returned as
// errors; every rejection is described by the verification result.
func (s *TokenService) VerifyToken(ctx context.Context, token string) (*TokenVerification, error) {
	token = strings.TrimSpace(token)
	if !wellFormedToken(token) {
		return s.reject("", TokenInvalid, ErrTokenMalformed), nil
	}

	hash := crypto.HashToken(token)
	record, err := s.repo.FindByHash(ctx, hash)
	if errors.Is(err, repository.ErrNotFound) {
		if tomb, ok := s.tombstone(ctx, hash); ok {
			result := s.reject(tomb.Kind, TokenExpired, ErrTokenExpired)
			result.Identifier = tomb.Identifier
			result.ExpiresAt = tomb.ExpiresAt
			return result, nil
		}
		return s.reject("", TokenInvalid, ErrTokenNotFound), nil
	}
	if err != nil {
		return nil, fmt.Errorf("token service: lookup token: %w", err)
	}

	if record.ExpiredAt(s.now()) {
		s.expire(ctx, hash, record)
		result := s.reject(record.Kind, TokenExpired, ErrTokenExpired)
		result.Identifier = record.Identifier
		result.ExpiresAt = record.ExpiresAt
		return result, nil
	}

	metrics.TokenVerifications.WithLabelValues(string(record.Kind), "valid").Inc()
	return &TokenVerification{
		Valid:      true,
		Identifier: record.Identifier,
		Kind:       record.Kind,
		ExpiresAt:  record.ExpiresAt,
	}, nil
}

// VerifyTokenFor verifies token and additionally requires it to have been issued for kind.
func (s *TokenService) VerifyTokenFor(ctx context.Context, token string, kind models.TokenKind) (*TokenVerification, error) {
	result, err := s.VerifyToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if result.Kind != "" && result.Kind != kind {
		return &TokenVerification{Failure: TokenInvalid, Err: ErrTokenNotFound}, nil
	}
	return result, nil
}

// RevokeToken deletes token. Revoking an unknown token is not an error.
func (s *TokenService) RevokeToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	if err := s.repo.DeleteByHash(ctx, crypto.HashToken(token)); err != nil {
		return fmt.Errorf("token service: revoke token: %w", err)
	}
	return nil
}

// CleanupExpired purges every expired token.
func (s *TokenService) CleanupExpired(ctx context.Context) (int64, error) {
	removed, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("token service: cleanup: %w", err)
	}
	return removed, nil
}

func (s *TokenService) reject(kind models.TokenKind, failure TokenFailure, cause error) *TokenVerification {
	label := string(kind)
	if label == "" {
		label = "unknown"
	}
	metrics.TokenVerifications.WithLabelValues(label, string(failure)).Inc()
	return &TokenVerification{Kind: kind, Failure: failure, Err: cause}
}

type tokenTombstone struct {
	Identifier string           `json:"identifier"`
	Kind       models.TokenKind `json:"kind"`
	ExpiresAt  time.Time        `json:"expires_at"`
}

func tombstoneKey(hash string) string {
	return cache.Key("token", "expired", hash)
}

// expire removes an expired row and leaves a tombstone behind. Both steps are best effort.
func (s *TokenService) expire(ctx context.Context, hash string, record *models.Token) {
	if s.tombstones != nil {
		payload, err := json.Marshal(tokenTombstone{
			Identifier: record.Identifier,
			Kind:       record.Kind,
			ExpiresAt:  record.ExpiresAt,
		})
		if err == nil {
			err = s.tombstones.Set(ctx, tombstoneKey(hash), payload, s.tombstoneTTL)
		}
		if err != nil {
			s.log.Warn("token tombstone not written", zap.String("kind", string(record.Kind)), zap.Error(err))
		}
	}

	if err := s.repo.DeleteByHash(ctx, hash); err != nil {
		s.log.Warn("expired token not deleted", zap.String("kind", string(record.Kind)), zap.Error(err))
	}
}

func (s *TokenService) tombstone(ctx context.Context, hash string) (tokenTombstone, bool) {
	if s.tombstones == nil {
		return tokenTombstone{}, false
	}
	payload, ok, err := s.tombstones.Get(ctx, tombstoneKey(hash))
	if err != nil {
		s.log.Warn("token tombstone lookup failed", zap.Error(err))
		return tokenTombstone{}, false
	}
	if !ok {
		return tokenTombstone{}, false
	}
	var tomb tokenTombstone
	if err := json.Unmarshal(payload, &tomb); err != nil {
		return tokenTombstone{}, false
	}
	return tomb, true
}

func wellFormedToken(token string) bool {
	if token == "" {
		return false
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	return err == nil && len(decoded) >= crypto.MinTokenBytes
}
