package ratelimit

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/charlesng35/launchpad/internal/cache"
)

// RedisLimiter is a fixed-window limiter shared by every instance pointing at the same Redis.
type RedisLimiter struct {
	client redis.UniversalClient
	policy Policy
	prefix string
}

// NewRedisLimiter builds a limiter on client. Keys are stored under prefix.
func NewRedisLimiter(client redis.UniversalClient, policy Policy, prefix string) Limiter {
	if client == nil || !policy.Enabled() {
		return Noop()
	}
	if prefix == "" {
		prefix = cache.DefaultKeyPrefix + "ratelimit:"
	}
	return &RedisLimiter{client: client, policy: policy, prefix: prefix}
}

// Allow increments the counter for key in the current window.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	count, ttl, err := cache.IncrementWindow(ctx, l.client, l.prefix+key, l.policy.Window)
	if err != nil {
		return Decision{Allowed: true, Limit: l.policy.Limit, Remaining: l.policy.Limit}, err
	}
	return decide(l.policy, count, ttl), nil
}
