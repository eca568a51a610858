package models

import (
	"testing"
	"time"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID == "" {
		t.Fatal("expected base model ID to be generated")
	}
}

func TestBaseModelBeforeCreateKeepsExistingID(t *testing.T) {
	base := BaseModel{ID: "fixed"}
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID != "fixed" {
		t.Fatalf("expected ID to be preserved, got %q", base.ID)
	}
}

func TestTokenKindValid(t *testing.T) {
	for _, kind := range []TokenKind{TokenKindEmailVerification, TokenKindPasswordReset, TokenKindNewsletterConfirmation} {
		if !kind.Valid() {
			t.Fatalf("expected %s to be valid", kind)
		}
	}
	if TokenKind("LOGIN").Valid() {
		t.Fatal("expected unknown kind to be invalid")
	}
}

func TestExpiryBoundaryIsInclusive(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	token := Token{ExpiresAt: now}
	if !token.ExpiredAt(now) {
		t.Fatal("token must be expired at its expiry instant")
	}
	if token.ExpiredAt(now.Add(-time.Nanosecond)) {
		t.Fatal("token must be valid just before expiry")
	}

	session := Session{ExpiresAt: now}
	if !session.ExpiredAt(now) {
		t.Fatal("session must be expired at its expiry instant")
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Alice@Example.COM "); got != "alice@example.com" {
		t.Fatalf("unexpected normalised email %q", got)
	}
}

func TestVerificationHelpers(t *testing.T) {
	var user *User
	if user.IsEmailVerified() {
		t.Fatal("nil user must not be verified")
	}
	now := time.Now()
	user = &User{EmailVerifiedAt: &now}
	if !user.IsEmailVerified() {
		t.Fatal("expected verified user")
	}

	sub := &NewsletterSubscriber{}
	if sub.IsConfirmed() {
		t.Fatal("expected unconfirmed subscriber")
	}
}
