package app

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment override, e.g. LAUNCHPAD_SERVER_PORT.
const EnvPrefix = "LAUNCHPAD"

// Config represents the runtime configuration for the Launchpad backend.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Site        SiteConfig        `mapstructure:"site"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Email       EmailConfig       `mapstructure:"email"`
	Auth        AuthConfig        `mapstructure:"auth"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
	Geo         GeoConfig         `mapstructure:"geo"`
	OIDC        OIDCConfig        `mapstructure:"oidc"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	SecureCookies   bool          `mapstructure:"secure_cookies"`
	CookieDomain    string        `mapstructure:"cookie_domain"`
}

// SiteConfig describes the public website the API serves.
type SiteConfig struct {
	Name           string   `mapstructure:"name"`
	BaseURL        string   `mapstructure:"base_url"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
}

// CacheConfig describes cache backends.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Addresses []string      `mapstructure:"addresses"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	TLS       bool          `mapstructure:"tls"`
	Timeout   time.Duration `mapstructure:"timeout"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	Provider string       `mapstructure:"provider"`
	From     string       `mapstructure:"from"`
	SMTP     SMTPConfig   `mapstructure:"smtp"`
	Resend   ResendConfig `mapstructure:"resend"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ResendConfig configures the Resend HTTP API.
type ResendConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// AuthConfig captures token and session lifetimes.
type AuthConfig struct {
	SessionTTL           time.Duration `mapstructure:"session_ttl"`
	VerificationTokenTTL time.Duration `mapstructure:"verification_token_ttl"`
	PasswordResetTTL     time.Duration `mapstructure:"password_reset_ttl"`
	NewsletterTokenTTL   time.Duration `mapstructure:"newsletter_token_ttl"`
	ExpiredTokenMemory   time.Duration `mapstructure:"expired_token_memory"`
}

// RateLimitConfig sets per-IP budgets for the public endpoints.
type RateLimitConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Store      string        `mapstructure:"store"` // memory, redis or database
	Auth       RateLimitRule `mapstructure:"auth"`
	Newsletter RateLimitRule `mapstructure:"newsletter"`
	IdleTTL    time.Duration `mapstructure:"idle_ttl"`
}

// RateLimitRule is a request budget per window.
type RateLimitRule struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// GeoConfig configures IP geolocation of sessions.
type GeoConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// OIDCConfig configures single sign-on through an OpenID Connect provider.
type OIDCConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Issuer          string        `mapstructure:"issuer"`
	ClientID        string        `mapstructure:"client_id"`
	ClientSecret    string        `mapstructure:"client_secret"`
	RedirectURL     string        `mapstructure:"redirect_url"`
	Scopes          []string      `mapstructure:"scopes"`
	Timeout         time.Duration `mapstructure:"timeout"`
	SuccessRedirect string        `mapstructure:"success_redirect"`
	FailureRedirect string        `mapstructure:"failure_redirect"`
}

// MonitoringConfig tunes health probes.
type MonitoringConfig struct {
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// MaintenanceConfig schedules background cleanup.
type MaintenanceConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	SessionSchedule string `mapstructure:"session_schedule"`
	TokenSchedule   string `mapstructure:"token_schedule"`
	CacheSchedule   string `mapstructure:"cache_schedule"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
// A .env file in the working directory is loaded first; variables already present in the
// environment win.
func LoadConfig(paths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if strings.TrimSpace(c.Site.BaseURL) == "" {
		return errors.New("config: site.base_url is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.Email.Provider)) {
	case EmailProviderSMTP, EmailProviderResend, EmailProviderLog, EmailProviderNone, "":
	default:
		return fmt.Errorf("config: unsupported email.provider %q", c.Email.Provider)
	}
	switch strings.ToLower(strings.TrimSpace(c.RateLimit.Store)) {
	case RateLimitStoreMemory, RateLimitStoreRedis, RateLimitStoreDatabase, "":
	default:
		return fmt.Errorf("config: unsupported ratelimit.store %q", c.RateLimit.Store)
	}
	if c.OIDC.Enabled {
		if strings.TrimSpace(c.OIDC.Issuer) == "" || strings.TrimSpace(c.OIDC.ClientID) == "" || strings.TrimSpace(c.OIDC.RedirectURL) == "" {
			return errors.New("config: oidc.issuer, oidc.client_id and oidc.redirect_url are required when oidc is enabled")
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "20s")
	v.SetDefault("server.secure_cookies", true)

	v.SetDefault("site.name", "Launchpad")
	v.SetDefault("site.base_url", "http://localhost:3000")
	v.SetDefault("site.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/launchpad.sqlite")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.log_level", "silent")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.addresses", []string{"127.0.0.1:6379"})
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")
	v.SetDefault("cache.redis.key_prefix", "launchpad:")

	v.SetDefault("email.provider", EmailProviderLog)
	v.SetDefault("email.from", "Launchpad <no-reply@localhost>")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.smtp.timeout", "10s")

	v.SetDefault("auth.session_ttl", "720h") // 30 days
	v.SetDefault("auth.verification_token_ttl", "24h")
	v.SetDefault("auth.password_reset_ttl", "1h")
	v.SetDefault("auth.newsletter_token_ttl", "24h")
	v.SetDefault("auth.expired_token_memory", "168h")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.store", RateLimitStoreMemory)
	v.SetDefault("ratelimit.auth.limit", 10)
	v.SetDefault("ratelimit.auth.window", "1m")
	v.SetDefault("ratelimit.newsletter.limit", 5)
	v.SetDefault("ratelimit.newsletter.window", "1m")
	v.SetDefault("ratelimit.idle_ttl", "10m")

	v.SetDefault("geo.enabled", false)
	v.SetDefault("geo.endpoint", "http://ip-api.com/json")
	v.SetDefault("geo.timeout", "3s")
	v.SetDefault("geo.cache_ttl", "24h")

	v.SetDefault("oidc.enabled", false)
	v.SetDefault("oidc.scopes", []string{"openid", "email", "profile"})
	v.SetDefault("oidc.timeout", "10s")
	v.SetDefault("oidc.success_redirect", "/dashboard")
	v.SetDefault("oidc.failure_redirect", "/signin")

	v.SetDefault("monitoring.probe_timeout", "2s")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.session_schedule", "@hourly")
	v.SetDefault("maintenance.token_schedule", "@daily")
	v.SetDefault("maintenance.cache_schedule", "@daily")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
