package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/launchpad/internal/models"
)

// NewsletterRepository persists newsletter subscribers.
type NewsletterRepository interface {
	Create(ctx context.Context, subscriber *models.NewsletterSubscriber) error
	FindByEmail(ctx context.Context, email string) (*models.NewsletterSubscriber, error)
	MarkConfirmed(ctx context.Context, email string, at time.Time) error
}

type gormNewsletterRepository struct {
	db *gorm.DB
}

// NewNewsletterRepository returns a NewsletterRepository backed by db.
func NewNewsletterRepository(db *gorm.DB) NewsletterRepository {
	return &gormNewsletterRepository{db: db}
}

// Create returns the raw driver error so callers can detect unique violations.
func (r *gormNewsletterRepository) Create(ctx context.Context, subscriber *models.NewsletterSubscriber) error {
	return withContext(ctx, r.db).Create(subscriber).Error
}

func (r *gormNewsletterRepository) FindByEmail(ctx context.Context, email string) (*models.NewsletterSubscriber, error) {
	var sub models.NewsletterSubscriber
	if err := withContext(ctx, r.db).Take(&sub, "email = ?", models.NormalizeEmail(email)).Error; err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (r *gormNewsletterRepository) MarkConfirmed(ctx context.Context, email string, at time.Time) error {
	res := withContext(ctx, r.db).
		Model(&models.NewsletterSubscriber{}).
		Where("email = ?", models.NormalizeEmail(email)).
		Update("confirmed_at", at)
	if res.Error != nil {
		return fmt.Errorf("newsletter repository: confirm: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
