package models

import (
	"strings"
	"time"
)

// Authentication providers a user account can originate from.
const (
	ProviderLocal = "local"
	ProviderOIDC  = "oidc"
)

// User is a website account. Local accounts must verify their email before signing in.
type User struct {
	BaseModel

	Name     string `gorm:"size:120" json:"name"`
	Email    string `gorm:"uniqueIndex;size:320;not null" json:"email"`
	Password string `json:"-"`

	Provider   string `gorm:"size:32;not null;default:local" json:"provider"`
	ExternalID string `gorm:"size:255;index" json:"-"`

	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	LastLoginAt     *time.Time `json:"last_login_at"`
}

// IsEmailVerified reports whether the account's email address has been confirmed.
func (u *User) IsEmailVerified() bool {
	return u != nil && u.EmailVerifiedAt != nil
}

// NormalizeEmail lower-cases and trims an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
