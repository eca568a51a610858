package middleware

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/launchpad/internal/cache"
	"github.com/charlesng35/launchpad/internal/ratelimit"
	appErrors "github.com/charlesng35/launchpad/pkg/errors"
	"github.com/charlesng35/launchpad/pkg/logger"
	"github.com/charlesng35/launchpad/pkg/metrics"
	"github.com/charlesng35/launchpad/pkg/response"
)

// KeyFunc derives the rate limit bucket for a request.
type KeyFunc func(c *gin.Context) string

// ClientIPKey buckets requests by client IP.
func ClientIPKey(c *gin.Context) string {
	return c.ClientIP()
}

// RateLimit admits requests according to limiter. The bucket key is route plus keyFn's
// result. Limiter failures are logged and the request is let through.
func RateLimit(limiter ratelimit.Limiter, route string, keyFn KeyFunc) gin.HandlerFunc {
	if limiter == nil {
		limiter = ratelimit.Noop()
	}
	if keyFn == nil {
		keyFn = ClientIPKey
	}
	log := logger.WithModule("ratelimit")

	return func(c *gin.Context) {
		decision, err := limiter.Allow(c.Request.Context(), cache.Key(route, keyFn(c)))
		if err != nil {
			log.Warn("rate limiter unavailable", zap.String("route", route), zap.Error(err))
			c.Next()
			return
		}

		if decision.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			c.Header("X-RateLimit-Reset", strconv.Itoa(int(math.Ceil(decision.ResetAfter.Seconds()))))
		}

		if !decision.Allowed {
			metrics.RateLimited.WithLabelValues(route).Inc()
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(decision.ResetAfter.Seconds()))))
			response.Abort(c, appErrors.ErrRateLimit)
			return
		}

		c.Next()
	}
}
