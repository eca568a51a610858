package models

import "time"

// NewsletterSubscriber is an email address that signed up for the newsletter.
type NewsletterSubscriber struct {
	BaseModel

	Email       string     `gorm:"uniqueIndex;size:320;not null" json:"email"`
	ConfirmedAt *time.Time `json:"confirmed_at"`
}

// IsConfirmed reports whether the double opt-in has been completed.
func (s *NewsletterSubscriber) IsConfirmed() bool {
	return s != nil && s.ConfirmedAt != nil
}
