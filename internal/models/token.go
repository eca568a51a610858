package models

import "time"

// TokenKind names the purpose a single-use token was issued for.
type TokenKind string

const (
	TokenKindEmailVerification      TokenKind = "EMAIL_VERIFICATION"
	TokenKindPasswordReset          TokenKind = "PASSWORD_RESET"
	TokenKindNewsletterConfirmation TokenKind = "NEWSLETTER_CONFIRMATION"
)

// Valid reports whether k is one of the known token kinds.
func (k TokenKind) Valid() bool {
	switch k {
	case TokenKindEmailVerification, TokenKindPasswordReset, TokenKindNewsletterConfirmation:
		return true
	default:
		return false
	}
}

// Token is a single-use, expiring secret bound to an identifier (an email address).
// Only the SHA-256 digest of the raw token is stored. Identifier and Kind together are
// unique so a new token for the same purpose replaces the previous one.
type Token struct {
	BaseModel

	Kind       TokenKind `gorm:"size:32;not null;uniqueIndex:idx_tokens_identifier_kind,priority:2" json:"kind"`
	Identifier string    `gorm:"size:320;not null;uniqueIndex:idx_tokens_identifier_kind,priority:1" json:"identifier"`
	TokenHash  string    `gorm:"size:64;not null;uniqueIndex" json:"-"`
	ExpiresAt  time.Time `gorm:"index;not null" json:"expires_at"`
}

// ExpiredAt reports whether the token is no longer valid at now.
func (t *Token) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
