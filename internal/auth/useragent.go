package auth

import (
	"strings"

	"github.com/charlesng35/launchpad/internal/models"
)

// Labels produced by ParseUserAgent.
const (
	BrowserChrome  = "Chrome"
	BrowserFirefox = "Firefox"
	BrowserSafari  = "Safari"
	BrowserEdge    = "Edge"
	BrowserOpera   = "Opera"

	OSWindows = "Windows"
	OSMac     = "macOS"
	OSLinux   = "Linux"
	OSAndroid = "Android"
	OSIOS     = "iOS"

	Unknown = "Unknown"
)

// DeviceInfo is the coarse classification derived from a user agent string.
type DeviceInfo struct {
	DeviceType string `json:"device_type"`
	Browser    string `json:"browser"`
	OS         string `json:"os"`
}

type uaRule struct {
	label   string
	match   []string
	exclude []string
}

func (r uaRule) matches(ua string) bool {
	return containsAny(ua, r.match...) && !containsAny(ua, r.exclude...)
}

// Rules are evaluated in order and the first match wins.
var (
	mobilePatterns = []string{"mobile", "android", "iphone", "ipad", "phone"}
	tabletPatterns = []string{"ipad", "tablet"}

	browserRules = []uaRule{
		{label: BrowserChrome, match: []string{"chrome"}, exclude: []string{"edg"}},
		{label: BrowserFirefox, match: []string{"firefox"}},
		{label: BrowserSafari, match: []string{"safari"}, exclude: []string{"chrome"}},
		{label: BrowserEdge, match: []string{"edg"}},
		{label: BrowserOpera, match: []string{"opera"}},
	}

	// iOS and Android agents also advertise "Mac OS X" and "Linux", so those two rules
	// step aside for them.
	osRules = []uaRule{
		{label: OSWindows, match: []string{"windows"}},
		{label: OSMac, match: []string{"mac"}, exclude: []string{"iphone", "ipad"}},
		{label: OSLinux, match: []string{"linux"}, exclude: []string{"android"}},
		{label: OSAndroid, match: []string{"android"}},
		{label: OSIOS, match: []string{"ios", "iphone", "ipad"}},
	}
)

// ParseUserAgent classifies a raw user agent with case-insensitive substring rules.
// Anything unrecognised degrades to desktop/Unknown.
func ParseUserAgent(userAgent string) DeviceInfo {
	ua := strings.ToLower(userAgent)

	info := DeviceInfo{
		DeviceType: models.DeviceDesktop,
		Browser:    firstMatch(ua, browserRules),
		OS:         firstMatch(ua, osRules),
	}

	if containsAny(ua, mobilePatterns...) {
		info.DeviceType = models.DeviceMobile
		if containsAny(ua, tabletPatterns...) {
			info.DeviceType = models.DeviceTablet
		}
	}

	return info
}

func firstMatch(ua string, rules []uaRule) string {
	for _, rule := range rules {
		if rule.matches(ua) {
			return rule.label
		}
	}
	return Unknown
}

func containsAny(value string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(value, needle) {
			return true
		}
	}
	return false
}
