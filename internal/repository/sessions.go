package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/launchpad/internal/models"
)

// SessionMetadataColumns are the only columns the reconciler may change on an existing session.
var SessionMetadataColumns = []string{
	"ip_address", "user_agent", "device_type", "browser", "os", "location", "geo", "last_active", "updated_at",
}

// SessionRepository persists browser sessions.
type SessionRepository interface {
	FindByToken(ctx context.Context, token string) (*models.Session, error)
	// UpdateMetadata writes the metadata columns of an existing session. It never inserts and
	// returns ErrNotFound when no session matches.
	UpdateMetadata(ctx context.Context, session *models.Session) error
	// Upsert inserts session, or on a session_token conflict updates only the metadata columns.
	Upsert(ctx context.Context, session *models.Session) error
	ListByUser(ctx context.Context, userID string, now time.Time) ([]models.Session, error)
	DeleteByToken(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type gormSessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository returns a SessionRepository backed by db.
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &gormSessionRepository{db: db}
}

func (r *gormSessionRepository) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	var session models.Session
	if err := withContext(ctx, r.db).Take(&session, "session_token = ?", token).Error; err != nil {
		return nil, notFound(err)
	}
	return &session, nil
}

func (r *gormSessionRepository) UpdateMetadata(ctx context.Context, session *models.Session) error {
	res := withContext(ctx, r.db).
		Model(&models.Session{}).
		Where("session_token = ?", session.SessionToken).
		Updates(map[string]any{
			"ip_address":  session.IPAddress,
			"user_agent":  session.UserAgent,
			"device_type": session.DeviceType,
			"browser":     session.Browser,
			"os":          session.OS,
			"location":    session.Location,
			"geo":         session.Geo,
			"last_active": session.LastActive,
		})
	if res.Error != nil {
		return fmt.Errorf("session repository: update metadata: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormSessionRepository) Upsert(ctx context.Context, session *models.Session) error {
	err := withContext(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_token"}},
			DoUpdates: clause.AssignmentColumns(SessionMetadataColumns),
		}).
		Create(session).Error
	if err != nil {
		return fmt.Errorf("session repository: upsert: %w", err)
	}
	return nil
}

func (r *gormSessionRepository) ListByUser(ctx context.Context, userID string, now time.Time) ([]models.Session, error) {
	var sessions []models.Session
	err := withContext(ctx, r.db).
		Where("user_id = ? AND expires_at > ?", userID, now).
		Order("last_active DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("session repository: list: %w", err)
	}
	return sessions, nil
}

func (r *gormSessionRepository) DeleteByToken(ctx context.Context, token string) error {
	if err := withContext(ctx, r.db).Where("session_token = ?", token).Delete(&models.Session{}).Error; err != nil {
		return fmt.Errorf("session repository: delete: %w", err)
	}
	return nil
}

func (r *gormSessionRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res := withContext(ctx, r.db).Where("user_id = ?", userID).Delete(&models.Session{})
	if res.Error != nil {
		return 0, fmt.Errorf("session repository: delete for user: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *gormSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := withContext(ctx, r.db).Where("expires_at <= ?", now).Delete(&models.Session{})
	if res.Error != nil {
		return 0, fmt.Errorf("session repository: delete expired: %w", res.Error)
	}
	return res.RowsAffected, nil
}
