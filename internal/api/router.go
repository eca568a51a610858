package api

import (
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	iauth "github.com/charlesng35/launchpad/internal/auth"
	"github.com/charlesng35/launchpad/internal/cache"
	"github.com/charlesng35/launchpad/internal/handlers"
	"github.com/charlesng35/launchpad/internal/middleware"
	"github.com/charlesng35/launchpad/internal/monitoring"
	"github.com/charlesng35/launchpad/internal/ratelimit"
	"github.com/charlesng35/launchpad/internal/services"
)

// Dependencies carries everything the HTTP layer needs. Optional fields may be left nil:
// limiters fall back to ratelimit.Noop and the OIDC routes are only mounted when OIDC is set.
type Dependencies struct {
	Accounts   *services.AccountService
	Sessions   *iauth.SessionService
	Newsletter *services.NewsletterService
	Health     *monitoring.HealthManager
	Cache      cache.Store

	OIDC          handlers.OIDCFlow
	OIDCRedirects handlers.OIDCRedirects

	AuthLimiter       ratelimit.Limiter
	NewsletterLimiter ratelimit.Limiter

	Cookies        handlers.CookieSettings
	AllowedOrigins []string
	HSTS           bool
}

func (d Dependencies) validate() error {
	if d.Accounts == nil {
		return fmt.Errorf("account service must be provided")
	}
	if d.Sessions == nil {
		return fmt.Errorf("session service must be provided")
	}
	if d.Newsletter == nil {
		return fmt.Errorf("newsletter service must be provided")
	}
	if d.OIDC != nil && d.Cache == nil {
		return fmt.Errorf("cache store must be provided when oidc is enabled")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	authLimiter := deps.AuthLimiter
	if authLimiter == nil {
		authLimiter = ratelimit.Noop()
	}
	newsletterLimiter := deps.NewsletterLimiter
	if newsletterLimiter == nil {
		newsletterLimiter = ratelimit.Noop()
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger("/health", "/health/live", "/health/ready", "/metrics"))
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders(deps.HSTS))
	if len(deps.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     deps.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type", "Authorization", "Accept", "Origin", "X-Requested-With"},
			ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	healthHandler := handlers.NewHealthHandler(deps.Health)
	r.GET("/health", healthHandler.Summary)
	r.GET("/health/live", healthHandler.Live)
	r.GET("/health/ready", healthHandler.Ready)

	requireSession := middleware.Auth(deps.Sessions)
	authHandler := handlers.NewAuthHandler(deps.Accounts, deps.Cookies)

	// Public auth routes
	auth := r.Group("/api/auth")
	{
		limited := auth.Group("", middleware.RateLimit(authLimiter, "auth", middleware.ClientIPKey))
		limited.POST("/register", authHandler.Register)
		limited.POST("/verify/resend", authHandler.ResendVerification)
		limited.GET("/verify", authHandler.VerifyEmail)
		limited.POST("/password/forgot", authHandler.ForgotPassword)
		limited.GET("/password/reset", authHandler.ValidateResetToken)
		limited.POST("/password/reset", authHandler.ResetPassword)
		limited.POST("/signin", authHandler.SignIn)

		auth.POST("/signout", requireSession, authHandler.SignOut)
		auth.GET("/me", requireSession, authHandler.Me)

		if deps.OIDC != nil {
			oidcHandler := handlers.NewOIDCHandler(deps.OIDC, deps.Accounts, deps.Cache, deps.Cookies, deps.OIDCRedirects)
			limited.GET("/oidc/login", oidcHandler.Login)
			limited.GET("/oidc/callback", oidcHandler.Callback)
		}
	}

	// Sessions
	sessionHandler := handlers.NewSessionHandler(deps.Sessions)
	api := r.Group("/api")
	api.POST("/session/update", requireSession, sessionHandler.Update)
	api.GET("/sessions", requireSession, sessionHandler.List)

	// Newsletter
	newsletterHandler := handlers.NewNewsletterHandler(deps.Newsletter)
	newsletter := api.Group("/newsletter", middleware.RateLimit(newsletterLimiter, "newsletter", middleware.ClientIPKey))
	{
		newsletter.POST("/subscribe", newsletterHandler.Subscribe)
		newsletter.GET("/confirm", newsletterHandler.Confirm)
	}

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
