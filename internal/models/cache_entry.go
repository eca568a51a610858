package models

import "time"

// CacheEntry is a key/value row used when no Redis server is configured.
type CacheEntry struct {
	Key       string    `gorm:"primaryKey;size:256"`
	Value     []byte    `gorm:"type:blob"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName keeps the table name stable across renames of the struct.
func (CacheEntry) TableName() string { return "cache_entries" }
