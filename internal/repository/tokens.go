package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/launchpad/internal/models"
)

// TokenRepository persists single-use tokens of every kind.
type TokenRepository interface {
	// Upsert stores token, replacing any token with the same identifier and kind.
	Upsert(ctx context.Context, token *models.Token) error
	FindByHash(ctx context.Context, hash string) (*models.Token, error)
	DeleteByHash(ctx context.Context, hash string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type gormTokenRepository struct {
	db *gorm.DB
}

// NewTokenRepository returns a TokenRepository backed by db.
func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &gormTokenRepository{db: db}
}

func (r *gormTokenRepository) Upsert(ctx context.Context, token *models.Token) error {
	err := withContext(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "identifier"}, {Name: "kind"}},
			DoUpdates: clause.AssignmentColumns([]string{"token_hash", "expires_at", "updated_at"}),
		}).
		Create(token).Error
	if err != nil {
		return fmt.Errorf("token repository: upsert: %w", err)
	}
	return nil
}

func (r *gormTokenRepository) FindByHash(ctx context.Context, hash string) (*models.Token, error) {
	var token models.Token
	if err := withContext(ctx, r.db).Take(&token, "token_hash = ?", hash).Error; err != nil {
		return nil, notFound(err)
	}
	return &token, nil
}

func (r *gormTokenRepository) DeleteByHash(ctx context.Context, hash string) error {
	if err := withContext(ctx, r.db).Where("token_hash = ?", hash).Delete(&models.Token{}).Error; err != nil {
		return fmt.Errorf("token repository: delete: %w", err)
	}
	return nil
}

func (r *gormTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := withContext(ctx, r.db).Where("expires_at <= ?", now).Delete(&models.Token{})
	if res.Error != nil {
		return 0, fmt.Errorf("token repository: delete expired: %w", res.Error)
	}
	return res.RowsAffected, nil
}
