package app

import (
	"strings"
	"time"

	"github.com/charlesng35/launchpad/internal/auth"
	"github.com/charlesng35/launchpad/internal/cache"
	"github.com/charlesng35/launchpad/internal/geo"
	"github.com/charlesng35/launchpad/internal/ratelimit"
)

// Supported values of ratelimit.store.
const (
	RateLimitStoreMemory   = "memory"
	RateLimitStoreRedis    = "redis"
	RateLimitStoreDatabase = "database"
)

// RedisClientConfig converts the application cache configuration into the cache package representation.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	addrs := make([]string, 0, len(c.Redis.Addresses))
	for _, addr := range c.Redis.Addresses {
		if addr = strings.TrimSpace(addr); addr != "" {
			addrs = append(addrs, addr)
		}
	}
	return cache.RedisConfig{
		Addresses: addrs,
		Username:  strings.TrimSpace(c.Redis.Username),
		Password:  c.Redis.Password,
		DB:        c.Redis.DB,
		TLS:       c.Redis.TLS,
		Timeout:   c.Redis.Timeout,
	}
}

// KeyPrefix returns the namespace for Redis keys.
func (c CacheConfig) KeyPrefix() string {
	if prefix := strings.TrimSpace(c.Redis.KeyPrefix); prefix != "" {
		return prefix
	}
	return cache.DefaultKeyPrefix
}

// AuthPolicy returns the budget applied to the auth routes.
func (c RateLimitConfig) AuthPolicy() ratelimit.Policy {
	return c.policy(c.Auth)
}

// NewsletterPolicy returns the budget applied to the newsletter routes.
func (c RateLimitConfig) NewsletterPolicy() ratelimit.Policy {
	return c.policy(c.Newsletter)
}

func (c RateLimitConfig) policy(rule RateLimitRule) ratelimit.Policy {
	if !c.Enabled {
		return ratelimit.Policy{}
	}
	return ratelimit.Policy{Limit: rule.Limit, Window: rule.Window}
}

// HTTPConfig converts GeoConfig into the locator parameters.
func (c GeoConfig) HTTPConfig() geo.HTTPConfig {
	return geo.HTTPConfig{
		Endpoint: c.Endpoint,
		Timeout:  c.Timeout,
		CacheTTL: c.CacheTTL,
	}
}

// SessionLifetime returns the configured session lifetime or the package default.
func (c AuthConfig) SessionLifetime() time.Duration {
	if c.SessionTTL <= 0 {
		return auth.DefaultSessionTTL
	}
	return c.SessionTTL
}
