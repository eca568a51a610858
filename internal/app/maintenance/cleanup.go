package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/launchpad/internal/monitoring"
	"github.com/charlesng35/launchpad/pkg/logger"
)

// Job names as reported in logs, metrics and health probes.
const (
	JobSessions = "sessions"
	JobTokens   = "tokens"
	JobCache    = "cache"
)

const (
	defaultSessionSpec = "@hourly"
	defaultTokenSpec   = "@daily"
	defaultCacheSpec   = "@daily"
	defaultJobTimeout  = 5 * time.Minute
)

// Purger removes expired rows and reports how many were deleted.
type Purger interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// CachePurger removes expired entries from a persistent cache.
type CachePurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Dependencies are the stores the Cleaner maintains. Any nil entry disables its job.
type Dependencies struct {
	Sessions Purger
	Tokens   Purger
	Cache    CachePurger
}

type job struct {
	name     string
	schedule string
	run      func(ctx context.Context) (int64, error)
}

// Cleaner coordinates background maintenance tasks such as purging expired sessions,
// removing expired tokens, and evicting stale cache entries.
type Cleaner struct {
	jobs    []job
	cron    *cron.Cron
	tracker *monitoring.JobTracker
	timeout time.Duration
	log     *zap.Logger

	sessionSchedule string
	tokenSchedule   string
	cacheSchedule   string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithTracker records every run in tracker.
func WithTracker(tracker *monitoring.JobTracker) Option {
	return func(cleaner *Cleaner) {
		cleaner.tracker = tracker
	}
}

// WithJobTimeout bounds a single job run.
func WithJobTimeout(timeout time.Duration) Option {
	return func(cleaner *Cleaner) {
		if timeout > 0 {
			cleaner.timeout = timeout
		}
	}
}

// WithSessionSchedule overrides the cron specification for session cleanup.
func WithSessionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sessionSchedule = spec
		}
	}
}

// WithTokenSchedule overrides the cron specification for token cleanup.
func WithTokenSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.tokenSchedule = spec
		}
	}
}

// WithCacheSchedule overrides the cron specification for cache eviction.
func WithCacheSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.cacheSchedule = spec
		}
	}
}

// WithLogger overrides the module logger.
func WithLogger(log *zap.Logger) Option {
	return func(cleaner *Cleaner) {
		if log != nil {
			cleaner.log = log
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults.
func NewCleaner(deps Dependencies, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		timeout:         defaultJobTimeout,
		sessionSchedule: defaultSessionSpec,
		tokenSchedule:   defaultTokenSpec,
		cacheSchedule:   defaultCacheSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	if deps.Sessions != nil {
		cleaner.jobs = append(cleaner.jobs, job{name: JobSessions, schedule: cleaner.sessionSchedule, run: deps.Sessions.CleanupExpired})
	}
	if deps.Tokens != nil {
		cleaner.jobs = append(cleaner.jobs, job{name: JobTokens, schedule: cleaner.tokenSchedule, run: deps.Tokens.CleanupExpired})
	}
	if deps.Cache != nil {
		cleaner.jobs = append(cleaner.jobs, job{name: JobCache, schedule: cleaner.cacheSchedule, run: deps.Cache.PurgeExpired})
	}
	if cleaner.tracker != nil {
		for _, j := range cleaner.jobs {
			cleaner.tracker.Register(j.name)
		}
	}

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one cleanup is enabled.
func (c *Cleaner) Start() error {
	if len(c.jobs) == 0 {
		return nil
	}

	for _, j := range c.jobs {
		j := j
		if _, err := c.cron.AddFunc(j.schedule, func() {
			_ = c.execute(context.Background(), j)
		}); err != nil {
			return fmt.Errorf("maintenance: schedule %s cleanup %q: %w", j.name, j.schedule, err)
		}
	}

	c.cron.Start()
	c.log.Info("maintenance scheduled", zap.Int("jobs", len(c.jobs)))
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Primarily used in tests
// and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, j := range c.jobs {
		errs = multierr.Append(errs, c.execute(ctx, j))
	}
	return errs
}

func (c *Cleaner) execute(ctx context.Context, j job) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	removed, err := j.run(ctx)
	duration := time.Since(start)

	if c.tracker != nil {
		c.tracker.Record(j.name, err, duration)
	}
	if err != nil {
		c.log.Warn("cleanup failed", zap.String("job", j.name), zap.Error(err))
		return fmt.Errorf("maintenance: %s cleanup: %w", j.name, err)
	}
	c.log.Debug("cleanup finished", zap.String("job", j.name), zap.Int64("removed", removed), zap.Duration("duration", duration))
	return nil
}
