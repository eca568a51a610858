package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultIdleTTL = 10 * time.Minute

// MemoryLimiter keeps one token bucket per key in process memory. The bucket holds Limit
// tokens and refills at Limit per Window.
type MemoryLimiter struct {
	policy  Policy
	every   rate.Limit
	idleTTL time.Duration
	now     func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryOption customises a MemoryLimiter.
type MemoryOption func(*MemoryLimiter)

// WithMemoryClock overrides the clock used for refills and eviction.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithIdleTTL controls how long an unused bucket is kept.
func WithIdleTTL(ttl time.Duration) MemoryOption {
	return func(l *MemoryLimiter) {
		if ttl > 0 {
			l.idleTTL = ttl
		}
	}
}

// NewMemoryLimiter builds an in-process limiter for single-instance deployments.
func NewMemoryLimiter(policy Policy, opts ...MemoryOption) Limiter {
	if !policy.Enabled() {
		return Noop()
	}
	l := &MemoryLimiter{
		policy:  policy,
		every:   rate.Every(policy.Window / time.Duration(policy.Limit)),
		idleTTL: defaultIdleTTL,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.idleTTL < policy.Window {
		l.idleTTL = policy.Window
	}
	return l
}

// Allow takes one token from the bucket for key.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.every, l.policy.Limit)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)

	remaining := int(math.Floor(tokens))
	if remaining < 0 {
		remaining = 0
	}

	var resetAfter time.Duration
	if tokens < 1 {
		missing := 1 - tokens
		resetAfter = time.Duration(missing / float64(l.every) * float64(time.Second))
	}

	return Decision{
		Allowed:    allowed,
		Limit:      l.policy.Limit,
		Remaining:  remaining,
		ResetAfter: resetAfter,
	}, nil
}

// Len returns the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *MemoryLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.idleTTL {
		return
	}
	l.lastSweep = now
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.idleTTL {
			delete(l.buckets, key)
		}
	}
}
