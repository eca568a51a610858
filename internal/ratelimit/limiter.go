// Package ratelimit provides request limiters that are constructed explicitly and injected
// into the HTTP layer. Every limiter reports its decision together with the numbers needed
// for X-RateLimit-* headers.
package ratelimit

import (
	"context"
	"time"
)

// Policy describes how many requests a key may make per window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Enabled reports whether the policy limits anything.
func (p Policy) Enabled() bool {
	return p.Limit > 0 && p.Window > 0
}

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter time.Duration
}

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

type noopLimiter struct{}

// Noop returns a Limiter that admits every request. It is used when no backend is configured.
func Noop() Limiter { return noopLimiter{} }

func (noopLimiter) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true, Limit: 0, Remaining: 0}, nil
}

func decide(policy Policy, count int64, resetAfter time.Duration) Decision {
	remaining := policy.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	if resetAfter < 0 {
		resetAfter = 0
	}
	return Decision{
		Allowed:    count <= int64(policy.Limit),
		Limit:      policy.Limit,
		Remaining:  remaining,
		ResetAfter: resetAfter,
	}
}
