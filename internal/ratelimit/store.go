package ratelimit

import (
	"context"

	"github.com/charlesng35/launchpad/internal/cache"
)

// StoreLimiter applies a fixed window on any cache.Store, typically the database store
// when Redis is not available but several instances share one database.
type StoreLimiter struct {
	store  cache.Store
	policy Policy
}

// NewStoreLimiter builds a limiter backed by store.
func NewStoreLimiter(store cache.Store, policy Policy) Limiter {
	if store == nil || !policy.Enabled() {
		return Noop()
	}
	return &StoreLimiter{store: store, policy: policy}
}

// Allow increments the counter for key in the current window.
func (l *StoreLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	count, ttl, err := l.store.IncrementWithTTL(ctx, cache.Key("ratelimit", key), l.policy.Window)
	if err != nil {
		return Decision{Allowed: true, Limit: l.policy.Limit, Remaining: l.policy.Limit}, err
	}
	return decide(l.policy, count, ttl), nil
}
