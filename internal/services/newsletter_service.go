package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/launchpad/internal/models"
	"github.com/charlesng35/launchpad/internal/repository"
	appErrors "github.com/charlesng35/launchpad/pkg/errors"
	"github.com/charlesng35/launchpad/pkg/logger"
)

// NewsletterService runs the double opt-in newsletter subscription.
type NewsletterService struct {
	subscribers repository.NewsletterRepository
	tokens      *TokenService
	emails      *EmailSender
	now         func() time.Time
	log         *zap.Logger
}

// NewNewsletterService constructs a NewsletterService.
func NewNewsletterService(subscribers repository.NewsletterRepository, tokens *TokenService, emails *EmailSender) (*NewsletterService, error) {
	if subscribers == nil {
		return nil, errors.New("newsletter service: repository is required")
	}
	if tokens == nil || emails == nil {
		return nil, errors.New("newsletter service: token service and email sender are required")
	}
	return &NewsletterService{
		subscribers: subscribers,
		tokens:      tokens,
		emails:      emails,
		now:         time.Now,
		log:         logger.WithModule("newsletter"),
	}, nil
}

// Subscribe records an unconfirmed subscriber and emails a confirmation link. Subscribing
// again before confirming sends a fresh link.
func (s *NewsletterService) Subscribe(ctx context.Context, email string) error {
	email = models.NormalizeEmail(email)
	if email == "" {
		return appErrors.NewBadRequest("Email is required")
	}

	subscriber := &models.NewsletterSubscriber{Email: email}
	if err := s.subscribers.Create(ctx, subscriber); err != nil {
		if !isUniqueConstraintError(err) {
			return fmt.Errorf("newsletter service: create subscriber: %w", err)
		}
		existing, findErr := s.subscribers.FindByEmail(ctx, email)
		if findErr != nil {
			return fmt.Errorf("newsletter service: find subscriber: %w", findErr)
		}
		subscriber = existing
	}

	if subscriber.IsConfirmed() {
		return ErrAlreadySubscribed
	}

	issued, err := s.tokens.GenerateToken(ctx, email, models.TokenKindNewsletterConfirmation)
	if err != nil {
		return fmt.Errorf("newsletter service: %w", err)
	}
	if err := s.emails.Send(ctx, EmailNewsletterConfirmation, email, "", issued.Token, s.tokens.TTL(issued.Kind)); err != nil {
		return ErrEmailDeliveryFailed.WithInternal(err)
	}
	return nil
}

// Confirm marks the subscriber bound to token as confirmed and revokes the token.
func (s *NewsletterService) Confirm(ctx context.Context, token string) (*models.NewsletterSubscriber, error) {
	result, err := s.tokens.VerifyTokenFor(ctx, token, models.TokenKindNewsletterConfirmation)
	if err != nil {
		return nil, fmt.Errorf("newsletter service: %w", err)
	}
	if result.IsExpiredOrInvalid() {
		return nil, tokenFailureError(result)
	}

	subscriber, err := s.subscribers.FindByEmail(ctx, result.Identifier)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAuthTokenInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("newsletter service: find subscriber: %w", err)
	}

	if !subscriber.IsConfirmed() {
		now := s.now().UTC()
		if err := s.subscribers.MarkConfirmed(ctx, subscriber.Email, now); err != nil {
			return nil, fmt.Errorf("newsletter service: confirm: %w", err)
		}
		subscriber.ConfirmedAt = &now
	}

	if err := s.tokens.RevokeToken(ctx, token); err != nil {
		s.log.Error("newsletter token not revoked", zap.Error(err))
	}
	return subscriber, nil
}
