package checks

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/charlesng35/launchpad/internal/monitoring"
)

// Redis returns a readiness probe for the shared Redis client. A nil client means Redis is
// not configured, which is reported as up.
func Redis(client redis.UniversalClient, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("redis", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if client == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "redis disabled"}
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout))
		defer cancel()

		result := monitoring.ResultFromError("redis", client.Ping(probeCtx).Err(), time.Since(start))
		if result.Status == monitoring.StatusDown {
			// Rate limiting and caching fail open, so a lost Redis only degrades service.
			result.Status = monitoring.StatusDegraded
		}
		return result
	})
}
