package models

import (
	"time"

	"gorm.io/datatypes"
)

// Device classifications stored on sessions.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
)

// Session is a signed-in browser session together with the device metadata observed on it.
type Session struct {
	BaseModel

	SessionToken string `gorm:"uniqueIndex;size:128;not null" json:"-"`
	UserID       string `gorm:"type:uuid;not null;index" json:"user_id"`
	User         *User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`

	IPAddress  string            `gorm:"size:64" json:"ip_address"`
	UserAgent  string            `gorm:"size:512" json:"user_agent"`
	DeviceType string            `gorm:"size:16" json:"device_type"`
	Browser    string            `gorm:"size:32" json:"browser"`
	OS         string            `gorm:"column:os;size:32" json:"os"`
	Location   string            `gorm:"size:255" json:"location"`
	Geo        datatypes.JSONMap `json:"geo,omitempty"`

	LastActive time.Time `gorm:"index" json:"last_active"`
	ExpiresAt  time.Time `gorm:"index;not null" json:"expires_at"`
}

// ExpiredAt reports whether the session is no longer usable at now.
func (s *Session) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
