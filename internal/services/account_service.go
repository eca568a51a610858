package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/launchpad/internal/auth"
	"github.com/charlesng35/launchpad/internal/auth/providers"
	"github.com/charlesng35/launchpad/internal/models"
	"github.com/charlesng35/launchpad/internal/repository"
	"github.com/charlesng35/launchpad/pkg/crypto"
	appErrors "github.com/charlesng35/launchpad/pkg/errors"
	"github.com/charlesng35/launchpad/pkg/logger"
	"github.com/charlesng35/launchpad/pkg/metrics"
	"github.com/charlesng35/launchpad/pkg/validator"
)

// RegisterInput carries the fields of a local sign-up.
type RegisterInput struct {
	Name     string `json:"name" validate:"max=120"`
	Email    string `json:"email" validate:"required,email,max=320"`
	Password string `json:"password" validate:"required,password"`
}

// SignInResult is returned once a session has been established.
type SignInResult struct {
	User         *models.User
	SessionToken string
	ExpiresAt    time.Time
}

// AccountOption customises the AccountService.
type AccountOption func(*AccountService)

// WithAccountClock injects a custom time source.
func WithAccountClock(clock func() time.Time) AccountOption {
	return func(s *AccountService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithAccountLogger overrides the module logger.
func WithAccountLogger(log *zap.Logger) AccountOption {
	return func(s *AccountService) {
		if log != nil {
			s.log = log
		}
	}
}

// AccountService implements registration, email confirmation, password reset and
// sign-in on top of the token and session services.
type AccountService struct {
	users    repository.UserRepository
	tokens   *TokenService
	sessions *auth.SessionService
	emails   *EmailSender
	now      func() time.Time
	log      *zap.Logger
}

// NewAccountService wires the account flows.
func NewAccountService(users repository.UserRepository, tokens *TokenService, sessions *auth.SessionService, emails *EmailSender, opts ...AccountOption) (*AccountService, error) {
	if users == nil {
		return nil, errors.New("account service: user repository is required")
	}
	if tokens == nil {
		return nil, errors.New("account service: token service is required")
	}
	if sessions == nil {
		return nil, errors.New("account service: session service is required")
	}
	if emails == nil {
		return nil, errors.New("account service: email sender is required")
	}

	service := &AccountService{
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		emails:   emails,
		now:      time.Now,
		log:      logger.WithModule("accounts"),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// registrationRollback undoes the records a failed registration created. Compensation is
// best effort: failures are logged and never replace the error that triggered it.
type registrationRollback struct {
	users        repository.UserRepository
	tokens       *TokenService
	log          *zap.Logger
	createdUser  *models.User
	createdToken *IssuedToken
}

func (r *registrationRollback) rollback(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	var errs error
	if r.createdToken != nil {
		errs = multierr.Append(errs, r.tokens.RevokeToken(ctx, r.createdToken.Token))
	}
	if r.createdUser != nil {
		errs = multierr.Append(errs, r.users.Delete(ctx, r.createdUser.ID))
	}
	if errs == nil {
		return
	}

	fields := []zap.Field{zap.Error(errs)}
	if r.createdUser != nil {
		fields = append(fields, zap.String("user_id", r.createdUser.ID))
	}
	r.log.Error("registration rollback incomplete", fields...)
}

// Register creates an unverified local account and emails a confirmation link. When the
// email cannot be delivered the account and its token are removed again.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := models.NormalizeEmail(in.Email)
	if email == "" {
		return nil, appErrors.NewBadRequest("Email is required")
	}
	if !validator.IsStrongPassword(in.Password) {
		return nil, ErrWeakPassword
	}

	hash, err := crypto.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("account service: hash password: %w", err)
	}

	user := &models.User{
		Name:     strings.TrimSpace(in.Name),
		Email:    email,
		Password: hash,
		Provider: models.ProviderLocal,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("account service: create user: %w", err)
	}

	rb := &registrationRollback{users: s.users, tokens: s.tokens, log: s.log, createdUser: user}

	issued, err := s.tokens.GenerateToken(ctx, email, models.TokenKindEmailVerification)
	if err != nil {
		rb.rollback(ctx)
		return nil, fmt.Errorf("account service: %w", err)
	}
	rb.createdToken = issued

	if err := s.emails.Send(ctx, EmailVerification, email, user.Name, issued.Token, s.tokens.TTL(issued.Kind)); err != nil {
		rb.rollback(ctx)
		return nil, ErrEmailDeliveryFailed.WithInternal(err)
	}

	s.log.Info("account registered", zap.String("user_id", user.ID))
	return user, nil
}

// ResendVerification issues a fresh confirmation link. Unknown and already verified
// addresses succeed silently so the endpoint cannot be used to probe for accounts.
func (s *AccountService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("account service: find user: %w", err)
	}
	if user.IsEmailVerified() {
		return nil
	}

	issued, err := s.tokens.GenerateToken(ctx, user.Email, models.TokenKindEmailVerification)
	if err != nil {
		return fmt.Errorf("account service: %w", err)
	}
	if err := s.emails.Send(ctx, EmailVerification, user.Email, user.Name, issued.Token, s.tokens.TTL(issued.Kind)); err != nil {
		return ErrEmailDeliveryFailed.WithInternal(err)
	}
	return nil
}

// ConfirmEmail marks the account bound to token as verified, then revokes the token.
func (s *AccountService) ConfirmEmail(ctx context.Context, token string) (*models.User, error) {
	user, err := s.userForToken(ctx, token, models.TokenKindEmailVerification)
	if err != nil {
		return nil, err
	}

	if !user.IsEmailVerified() {
		now := s.now().UTC()
		if err := s.users.MarkEmailVerified(ctx, user.ID, now); err != nil {
			return nil, fmt.Errorf("account service: mark verified: %w", err)
		}
		user.EmailVerifiedAt = &now
	}

	s.revoke(ctx, token, models.TokenKindEmailVerification)
	return user, nil
}

// RequestPasswordReset emails a reset link. Unknown addresses succeed silently. When the
// email fails the token is kept so a retry can reuse the same flow.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.Debug("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("account service: find user: %w", err)
	}

	issued, err := s.tokens.GenerateToken(ctx, user.Email, models.TokenKindPasswordReset)
	if err != nil {
		return fmt.Errorf("account service: %w", err)
	}
	if err := s.emails.Send(ctx, EmailPasswordReset, user.Email, user.Name, issued.Token, s.tokens.TTL(issued.Kind)); err != nil {
		return ErrEmailDeliveryFailed.WithInternal(err)
	}
	return nil
}

// ValidatePasswordResetToken checks a reset link without consuming it.
func (s *AccountService) ValidatePasswordResetToken(ctx context.Context, token string) (*TokenVerification, error) {
	result, err := s.tokens.VerifyTokenFor(ctx, token, models.TokenKindPasswordReset)
	if err != nil {
		return nil, fmt.Errorf("account service: %w", err)
	}
	if result.IsExpiredOrInvalid() {
		return nil, tokenFailureError(result)
	}
	return result, nil
}

// ResetPassword sets a new password for the account bound to token. The token is revoked
// only after the password change is stored, and every session of the user is ended.
func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if !validator.IsStrongPassword(newPassword) {
		return ErrWeakPassword
	}

	user, err := s.userForToken(ctx, token, models.TokenKindPasswordReset)
	if err != nil {
		return err
	}

	hash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("account service: hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("account service: update password: %w", err)
	}

	s.revoke(ctx, token, models.TokenKindPasswordReset)

	if removed, err := s.sessions.RevokeUserSessions(ctx, user.ID); err != nil {
		s.log.Error("sessions not revoked after password reset", zap.String("user_id", user.ID), zap.Error(err))
	} else if removed > 0 {
		s.log.Info("sessions revoked after password reset", zap.String("user_id", user.ID), zap.Int64("count", removed))
	}
	return nil
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// compareDummyHash spends the same bcrypt work as a real check so unknown emails cannot be
// told apart by response time.
func compareDummyHash(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = crypto.HashPassword("launchpad-timing-equaliser")
	})
	crypto.VerifyPassword(dummyHash, password)
}

// SignIn checks credentials and opens a new session.
func (s *AccountService) SignIn(ctx context.Context, email, password string, meta auth.RequestMetadata) (*SignInResult, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		compareDummyHash(password)
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, appErrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("account service: find user: %w", err)
	}

	if user.Password == "" || !crypto.VerifyPassword(user.Password, password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, appErrors.ErrInvalidCredentials
	}
	if !user.IsEmailVerified() {
		metrics.AuthAttempts.WithLabelValues("unverified").Inc()
		return nil, ErrEmailNotVerified
	}

	return s.startSession(ctx, user, meta)
}

// SignInWithIdentity signs in the account matching an identity returned by an OpenID
// Connect provider, creating it on first use.
func (s *AccountService) SignInWithIdentity(ctx context.Context, identity *providers.Identity, meta auth.RequestMetadata) (*SignInResult, error) {
	if identity == nil || models.NormalizeEmail(identity.Email) == "" {
		return nil, appErrors.ErrUnauthorized.WithMessage("The identity provider did not return an email address")
	}

	now := s.now().UTC()
	user, err := s.users.FindByEmail(ctx, identity.Email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		if !identity.EmailVerified {
			return nil, ErrEmailNotVerified
		}
		user = &models.User{
			Name:            strings.TrimSpace(identity.Name),
			Email:           models.NormalizeEmail(identity.Email),
			Provider:        models.ProviderOIDC,
			ExternalID:      identity.Subject,
			EmailVerifiedAt: &now,
		}
		if err := s.users.Create(ctx, user); err != nil {
			if isUniqueConstraintError(err) {
				return nil, ErrEmailTaken
			}
			return nil, fmt.Errorf("account service: create user: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("account service: find user: %w", err)
	case !user.IsEmailVerified():
		if !identity.EmailVerified {
			return nil, ErrEmailNotVerified
		}
		if err := s.users.MarkEmailVerified(ctx, user.ID, now); err != nil {
			return nil, fmt.Errorf("account service: mark verified: %w", err)
		}
		user.EmailVerifiedAt = &now
	}

	return s.startSession(ctx, user, meta)
}

// SignOut ends the session identified by sessionToken.
func (s *AccountService) SignOut(ctx context.Context, sessionToken string) error {
	if err := s.sessions.Revoke(ctx, sessionToken); err != nil {
		return fmt.Errorf("account service: sign out: %w", err)
	}
	return nil
}

// CurrentUser resolves the user owning a live session.
func (s *AccountService) CurrentUser(ctx context.Context, sessionToken string) (*models.User, *models.Session, error) {
	session, err := s.sessions.Lookup(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, auth.ErrSessionNotFound) || errors.Is(err, auth.ErrSessionExpired) || errors.Is(err, auth.ErrSessionInvalidToken) {
			return nil, nil, appErrors.ErrUnauthorized
		}
		return nil, nil, err
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if err != nil {
		return nil, nil, fmt.Errorf("account service: find user: %w", err)
	}
	return user, session, nil
}

func (s *AccountService) startSession(ctx context.Context, user *models.User, meta auth.RequestMetadata) (*SignInResult, error) {
	token, err := s.sessions.NewSessionToken()
	if err != nil {
		return nil, err
	}
	if err := s.sessions.CreateOrUpdateSessionInfo(ctx, token, user.ID, meta); err != nil {
		return nil, fmt.Errorf("account service: %w", err)
	}

	now := s.now().UTC()
	if err := s.users.RecordLogin(ctx, user.ID, now); err != nil {
		s.log.Warn("last login not recorded", zap.String("user_id", user.ID), zap.Error(err))
	} else {
		user.LastLoginAt = &now
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return &SignInResult{User: user, SessionToken: token, ExpiresAt: now.Add(s.sessions.TTL())}, nil
}

func (s *AccountService) userForToken(ctx context.Context, token string, kind models.TokenKind) (*models.User, error) {
	result, err := s.tokens.VerifyTokenFor(ctx, token, kind)
	if err != nil {
		return nil, fmt.Errorf("account service: %w", err)
	}
	if result.IsExpiredOrInvalid() {
		return nil, tokenFailureError(result)
	}

	user, err := s.users.FindByEmail(ctx, result.Identifier)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAuthTokenInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("account service: find user: %w", err)
	}
	return user, nil
}

// revoke consumes a token after its action has been committed. A failure leaves a link that
// can only repeat an already applied action, so it is logged rather than returned.
func (s *AccountService) revoke(ctx context.Context, token string, kind models.TokenKind) {
	if err := s.tokens.RevokeToken(ctx, token); err != nil {
		s.log.Error("token not revoked", zap.String("kind", string(kind)), zap.Error(err))
	}
}
