package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrStoreNotInitialised is returned when a nil store is used.
var ErrStoreNotInitialised = errors.New("cache: store not initialised")

// Store represents a shared cache interface used across the application.
type Store interface {
	// IncrementWithTTL bumps a fixed-window counter. The window starts on the first
	// increment and is not extended by later ones.
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// Key joins non-empty parts with ':' to build a namespaced cache key.
func Key(parts ...string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(strings.TrimSpace(part), ":")
		if part != "" {
			filtered = append(filtered, part)
		}
	}
	return strings.Join(filtered, ":")
}
