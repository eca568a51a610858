package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/launchpad/internal/cache"
	"github.com/charlesng35/launchpad/pkg/logger"
)

const (
	defaultEndpoint = "http://ip-api.com"
	defaultTimeout  = 2 * time.Second
	defaultCacheTTL = 24 * time.Hour
	lookupFields    = "status,message,country,regionName,city,lat,lon"
)

// ErrInvalidIP is returned for input that is not an IP address.
var ErrInvalidIP = errors.New("geo: invalid ip address")

// HTTPConfig configures the ip-api compatible locator.
type HTTPConfig struct {
	Endpoint string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// HTTPLocator queries an ip-api compatible JSON endpoint and caches answers.
type HTTPLocator struct {
	endpoint string
	client   *http.Client
	cache    cache.Store
	cacheTTL time.Duration
	log      *zap.Logger
}

// HTTPOption customises an HTTPLocator.
type HTTPOption func(*HTTPLocator)

// WithHTTPClient overrides the HTTP client used for lookups.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(l *HTTPLocator) {
		if client != nil {
			l.client = client
		}
	}
}

// WithCache stores successful answers in store.
func WithCache(store cache.Store) HTTPOption {
	return func(l *HTTPLocator) {
		l.cache = store
	}
}

// NewHTTPLocator builds a locator for cfg.
func NewHTTPLocator(cfg HTTPConfig, opts ...HTTPOption) *HTTPLocator {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	l := &HTTPLocator{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		cacheTTL: ttl,
		log:      logger.WithModule("geo"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type lookupResponse struct {
	Status     string  `json:"status"`
	Message    string  `json:"message"`
	Country    string  `json:"country"`
	RegionName string  `json:"regionName"`
	City       string  `json:"city"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
}

// Locate resolves ip, consulting the cache first.
func (l *HTTPLocator) Locate(ctx context.Context, ip string) (Location, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return Location{}, fmt.Errorf("%w: %q", ErrInvalidIP, ip)
	}
	if IsPrivate(addr.String()) {
		return Location{Local: true}, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key := cache.Key("geo", addr.String())
	if l.cache != nil {
		if raw, ok, err := l.cache.Get(ctx, key); err != nil {
			l.log.Debug("geo cache read failed", zap.String("ip", addr.String()), zap.Error(err))
		} else if ok {
			var cached Location
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
	}

	loc, err := l.fetch(ctx, addr.String())
	if err != nil {
		return Location{}, err
	}

	if l.cache != nil {
		if raw, err := json.Marshal(loc); err == nil {
			if err := l.cache.Set(ctx, key, raw, l.cacheTTL); err != nil {
				l.log.Debug("geo cache write failed", zap.String("ip", addr.String()), zap.Error(err))
			}
		}
	}
	return loc, nil
}

func (l *HTTPLocator) fetch(ctx context.Context, ip string) (Location, error) {
	target := fmt.Sprintf("%s/json/%s?fields=%s", l.endpoint, url.PathEscape(ip), lookupFields)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Location{}, fmt.Errorf("geo: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("geo: lookup %s: %w", ip, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("geo: lookup %s: unexpected status %d", ip, resp.StatusCode)
	}

	var payload lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Location{}, fmt.Errorf("geo: decode response: %w", err)
	}
	if !strings.EqualFold(payload.Status, "success") {
		return Location{}, fmt.Errorf("geo: lookup %s failed: %s", ip, payload.Message)
	}

	return Location{
		City:      payload.City,
		Region:    payload.RegionName,
		Country:   payload.Country,
		Latitude:  payload.Lat,
		Longitude: payload.Lon,
	}, nil
}
