package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/launchpad/internal/api"
	"github.com/charlesng35/launchpad/internal/app"
	"github.com/charlesng35/launchpad/internal/app/maintenance"
	iauth "github.com/charlesng35/launchpad/internal/auth"
	"github.com/charlesng35/launchpad/internal/auth/providers"
	"github.com/charlesng35/launchpad/internal/cache"
	"github.com/charlesng35/launchpad/internal/database"
	"github.com/charlesng35/launchpad/internal/geo"
	"github.com/charlesng35/launchpad/internal/handlers"
	"github.com/charlesng35/launchpad/internal/models"
	"github.com/charlesng35/launchpad/internal/monitoring"
	"github.com/charlesng35/launchpad/internal/monitoring/checks"
	"github.com/charlesng35/launchpad/internal/ratelimit"
	"github.com/charlesng35/launchpad/internal/repository"
	"github.com/charlesng35/launchpad/internal/security"
	"github.com/charlesng35/launchpad/internal/services"
	"github.com/charlesng35/launchpad/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Redis      redis.UniversalClient
	Cache      cache.Store
	Sessions   *iauth.SessionService
	Tokens     *services.TokenService
	Accounts   *services.AccountService
	Newsletter *services.NewsletterService
	Health     *monitoring.HealthManager
	Jobs       *monitoring.JobTracker
	Cleaner    *maintenance.Cleaner
	Router     *gin.Engine
}

// bootstrapRuntime initialises databases, caches, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)
	stack.Cache = dbStore

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisClient(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed operations", zap.Error(err))
			stack.Redis = nil
		} else {
			stack.Cache = cache.NewRedisStore(stack.Redis, cfg.Cache.KeyPrefix())
			log.Info("redis connected", zap.Strings("addresses", cfg.Cache.Redis.Addresses))
		}
	}

	var locator geo.Locator = geo.NoopLocator{}
	if cfg.Geo.Enabled {
		locator = geo.NewHTTPLocator(cfg.Geo.HTTPConfig(), geo.WithCache(stack.Cache))
	}

	stack.Sessions, err = iauth.NewSessionService(repository.NewSessionRepository(stack.DB), iauth.SessionConfig{
		TTL:     cfg.Auth.SessionLifetime(),
		Locator: locator,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	stack.Tokens, err = services.NewTokenService(repository.NewTokenRepository(stack.DB),
		services.WithTokenTTL(models.TokenKindEmailVerification, cfg.Auth.VerificationTokenTTL),
		services.WithTokenTTL(models.TokenKindPasswordReset, cfg.Auth.PasswordResetTTL),
		services.WithTokenTTL(models.TokenKindNewsletterConfirmation, cfg.Auth.NewsletterTokenTTL),
		services.WithTokenTombstones(stack.Cache, cfg.Auth.ExpiredTokenMemory),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise token service: %w", err)
	}

	mailer, err := cfg.Email.NewMailer(logger.WithModule("mail"))
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}
	emails := services.NewEmailSender(mailer, services.SiteSettings{Name: cfg.Site.Name, BaseURL: cfg.Site.BaseURL})
	log.Info("email delivery configured", zap.String("provider", cfg.Email.Provider))

	stack.Accounts, err = services.NewAccountService(repository.NewUserRepository(stack.DB), stack.Tokens, stack.Sessions, emails)
	if err != nil {
		return nil, fmt.Errorf("initialise account service: %w", err)
	}

	stack.Newsletter, err = services.NewNewsletterService(repository.NewNewsletterRepository(stack.DB), stack.Tokens, emails)
	if err != nil {
		return nil, fmt.Errorf("initialise newsletter service: %w", err)
	}

	stack.Jobs = monitoring.NewJobTracker()
	if cfg.Maintenance.Enabled {
		deps := maintenance.Dependencies{Sessions: stack.Sessions, Tokens: stack.Tokens, Cache: dbStore}
		stack.Cleaner = maintenance.NewCleaner(deps,
			maintenance.WithTracker(stack.Jobs),
			maintenance.WithSessionSchedule(cfg.Maintenance.SessionSchedule),
			maintenance.WithTokenSchedule(cfg.Maintenance.TokenSchedule),
			maintenance.WithCacheSchedule(cfg.Maintenance.CacheSchedule),
		)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	stack.Health = monitoring.NewHealthManager(cfg.Monitoring.ProbeTimeout)
	stack.Health.RegisterLiveness(monitoring.NewCheck("process", func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))
	stack.Health.RegisterReadiness(checks.Database(stack.DB, cfg.Monitoring.ProbeTimeout))
	switch {
	case stack.Redis != nil:
		stack.Health.RegisterReadiness(checks.Redis(stack.Redis, cfg.Monitoring.ProbeTimeout))
	case cfg.Cache.Redis.Enabled:
		stack.Health.RegisterReadiness(monitoring.NewCheck("redis", func(context.Context) monitoring.ProbeResult {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "unavailable at startup; using database cache"}
		}))
	}
	if stack.Cleaner != nil {
		stack.Health.RegisterReadiness(checks.Maintenance(stack.Jobs, 0))
	}

	deps := api.Dependencies{
		Accounts:          stack.Accounts,
		Sessions:          stack.Sessions,
		Newsletter:        stack.Newsletter,
		Health:            stack.Health,
		Cache:             stack.Cache,
		AuthLimiter:       buildLimiter(cfg, stack, dbStore, cfg.RateLimit.AuthPolicy(), log),
		NewsletterLimiter: buildLimiter(cfg, stack, dbStore, cfg.RateLimit.NewsletterPolicy(), log),
		Cookies:           handlers.CookieSettings{Secure: cfg.Server.SecureCookies, Domain: cfg.Server.CookieDomain},
		AllowedOrigins:    cfg.Site.AllowedOrigins,
		HSTS:              strings.HasPrefix(strings.ToLower(cfg.Site.BaseURL), "https://"),
	}

	if cfg.OIDC.Enabled {
		provider, err := providers.NewOIDCProvider(ctx, providers.OIDCConfig{
			Issuer:       cfg.OIDC.Issuer,
			ClientID:     cfg.OIDC.ClientID,
			ClientSecret: cfg.OIDC.ClientSecret,
			RedirectURL:  cfg.OIDC.RedirectURL,
			Scopes:       cfg.OIDC.Scopes,
		}, providers.OIDCOptions{Timeout: cfg.OIDC.Timeout})
		if err != nil {
			return nil, fmt.Errorf("initialise oidc provider: %w", err)
		}
		deps.OIDC = provider
		deps.OIDCRedirects = handlers.OIDCRedirects{Success: cfg.OIDC.SuccessRedirect, Failure: cfg.OIDC.FailureRedirect}
		log.Info("oidc sign-in enabled", zap.String("issuer", cfg.OIDC.Issuer))
	}

	stack.Router, err = api.NewRouter(deps)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}
	if err := stack.Router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("configure trusted proxies: %w", err)
	}

	security.NewAuditService(stack.DB, cfg).Run(ctx).Report(logger.WithModule("security"))

	success = true
	return stack, nil
}

// buildLimiter picks the rate limit backend named by ratelimit.store. A missing Redis
// connection degrades to in-process counters.
func buildLimiter(cfg *app.Config, stack *runtimeStack, dbStore *cache.DatabaseStore, policy ratelimit.Policy, log *zap.Logger) ratelimit.Limiter {
	if !policy.Enabled() {
		return ratelimit.Noop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.RateLimit.Store)) {
	case app.RateLimitStoreRedis:
		if stack.Redis != nil {
			return ratelimit.NewRedisLimiter(stack.Redis, policy, cfg.Cache.KeyPrefix()+"ratelimit:")
		}
		log.Warn("rate limit store is redis but redis is unavailable; using memory")
	case app.RateLimitStoreDatabase:
		return ratelimit.NewStoreLimiter(dbStore, policy)
	}
	return ratelimit.NewMemoryLimiter(policy, ratelimit.WithIdleTTL(cfg.RateLimit.IdleTTL))
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		<-s.Cleaner.Stop().Done()
		runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := s.Cleaner.RunOnce(runCtx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
		cancel()
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		if err := database.Close(s.DB); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver:          strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:            strings.TrimSpace(cfg.Database.Path),
		DSN:             strings.TrimSpace(cfg.Database.DSN),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        cfg.Database.LogLevel,
	}

	switch dbCfg.Driver {
	case "", "sqlite", "sqlite3":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql", "mysql", "mariadb":
		dbCfg.Host = strings.TrimSpace(cfg.Database.Host)
		dbCfg.Port = cfg.Database.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Name)
		dbCfg.User = strings.TrimSpace(cfg.Database.Username)
		dbCfg.Password = cfg.Database.Password
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}
