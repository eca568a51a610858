// Package geo resolves client IP addresses to a coarse, human readable location.
package geo

import (
	"context"
	"net/netip"
	"strings"
)

// Placeholder strings stored on sessions when no real location is available.
const (
	UnknownLocation = "Unknown Location"
	LocalNetwork    = "Local Network"
)

// Location is the subset of a geolocation answer the application keeps.
type Location struct {
	City      string  `json:"city,omitempty"`
	Region    string  `json:"region,omitempty"`
	Country   string  `json:"country,omitempty"`
	Latitude  float64 `json:"lat,omitempty"`
	Longitude float64 `json:"lon,omitempty"`
	Local     bool    `json:"local,omitempty"`
}

// String renders "City, Region, Country", skipping empty parts.
func (l Location) String() string {
	if l.Local {
		return LocalNetwork
	}
	parts := make([]string, 0, 3)
	for _, part := range []string{l.City, l.Region, l.Country} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return UnknownLocation
	}
	return strings.Join(parts, ", ")
}

// Fields returns the location as a JSON-friendly map for storage.
func (l Location) Fields() map[string]any {
	fields := map[string]any{}
	if l.City != "" {
		fields["city"] = l.City
	}
	if l.Region != "" {
		fields["region"] = l.Region
	}
	if l.Country != "" {
		fields["country"] = l.Country
	}
	if l.Latitude != 0 || l.Longitude != 0 {
		fields["lat"] = l.Latitude
		fields["lon"] = l.Longitude
	}
	if l.Local {
		fields["local"] = true
	}
	return fields
}

// Locator resolves an IP address to a Location.
type Locator interface {
	Locate(ctx context.Context, ip string) (Location, error)
}

// NoopLocator never performs a lookup. Private addresses still resolve to LocalNetwork.
type NoopLocator struct{}

// Locate implements Locator.
func (NoopLocator) Locate(_ context.Context, ip string) (Location, error) {
	if IsPrivate(ip) {
		return Location{Local: true}, nil
	}
	return Location{}, nil
}

// IsPrivate reports whether ip is loopback, private, link-local or unspecified.
// Unparseable input is treated as not private.
func IsPrivate(ip string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsUnspecified()
}

// Describe resolves ip with locator and never fails: errors yield UnknownLocation.
func Describe(ctx context.Context, locator Locator, ip string) (Location, string, error) {
	if locator == nil {
		locator = NoopLocator{}
	}
	loc, err := locator.Locate(ctx, ip)
	if err != nil {
		return Location{}, UnknownLocation, err
	}
	return loc, loc.String(), nil
}
