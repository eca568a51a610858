package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/launchpad/internal/models"
)

// UserRepository persists user accounts.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, id, hash string) error
	MarkEmailVerified(ctx context.Context, id string, at time.Time) error
	RecordLogin(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

type gormUserRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a UserRepository backed by db.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

// Create returns the raw driver error so callers can detect unique violations.
func (r *gormUserRepository) Create(ctx context.Context, user *models.User) error {
	return withContext(ctx, r.db).Create(user).Error
}

func (r *gormUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := withContext(ctx, r.db).Take(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *gormUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := withContext(ctx, r.db).Take(&user, "email = ?", models.NormalizeEmail(email)).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *gormUserRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	return r.update(ctx, id, map[string]any{"password": hash})
}

func (r *gormUserRepository) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, map[string]any{"email_verified_at": at})
}

func (r *gormUserRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, map[string]any{"last_login_at": at})
}

func (r *gormUserRepository) Delete(ctx context.Context, id string) error {
	if err := withContext(ctx, r.db).Where("id = ?", id).Delete(&models.User{}).Error; err != nil {
		return fmt.Errorf("user repository: delete: %w", err)
	}
	return nil
}

func (r *gormUserRepository) update(ctx context.Context, id string, fields map[string]any) error {
	res := withContext(ctx, r.db).Model(&models.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("user repository: update: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
