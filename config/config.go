package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Portal    PortalConfig
	Selectors Selectors
	Session   SessionConfig
	Download  DownloadConfig
	Store     StoreConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: true

	// DisableGPU turns off GPU compositing.
	DisableGPU bool // default: true

	// WindowWidth and WindowHeight fix the viewport size.
	WindowWidth  int // default: 1920
	WindowHeight int // default: 1080

	// DefaultProxy is the proxy URL used for all browser traffic.
	DefaultProxy string

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Stealth injects navigator.webdriver masking into the session tab.
	Stealth bool // default: false

	// BlockedResourceTypes are not loaded by the session tab.
	// Valid values: "Image", "Font", "Media", "Stylesheet".
	BlockedResourceTypes []string // default: ["Font", "Media"]

	// BlockTrackers drops requests to known analytics hosts.
	BlockTrackers bool // default: true
}

// PortalConfig describes the target case-status portal.
type PortalConfig struct {
	// Origin is the scheme+host that relative links are resolved against.
	Origin string // default: "https://delhihighcourt.nic.in"

	// SearchPath is the path of the case-status search form.
	SearchPath string // default: "/app/get-case-type-status"

	// OrdersLinkText is the exact anchor text leading to the orders listing.
	OrdersLinkText string // default: "Orders"

	// LinkKeywords are the case-insensitive href substrings that mark an
	// anchor as a downloadable order.
	LinkKeywords []string // default: ["pdf", "order"]

	// CaseTypesTTL, when positive, serves a non-empty case-type list from
	// memory for that long. Zero reads the live selector on every request.
	CaseTypesTTL time.Duration // default: 0
}

// SearchURL returns the absolute URL of the search form.
func (p PortalConfig) SearchURL() string {
	return strings.TrimRight(p.Origin, "/") + "/" + strings.TrimLeft(p.SearchPath, "/")
}

// SessionConfig controls settle intervals and handle recycling.
type SessionConfig struct {
	// StartSettle is the wait after the first navigation of a new handle.
	StartSettle time.Duration // default: 3s

	// SubmitSettle is the wait after clicking the search button.
	SubmitSettle time.Duration // default: 5s

	// OrdersSettle is the wait after navigating to the orders listing.
	OrdersSettle time.Duration // default: 3s

	// RefreshSettle is the wait after clicking the captcha refresh control.
	RefreshSettle time.Duration // default: 1s

	// ReloadSettle is the wait after a full page reload.
	ReloadSettle time.Duration // default: 3s

	// ElementWait bounds every wait for an element to appear.
	ElementWait time.Duration // default: 10s

	// NavigationTimeout bounds a single page navigation.
	NavigationTimeout time.Duration // default: 30s

	// MaxUses and MaxAge retire a handle at the next captcha read.
	MaxUses int           // default: 200
	MaxAge  time.Duration // default: 2h
}

// DownloadConfig controls the bulk order downloader.
type DownloadConfig struct {
	// Timeout is the per-document fetch deadline.
	Timeout time.Duration // default: 30s

	// MaxBodyBytes caps a single document body.
	MaxBodyBytes int64 // default: 50 MB

	// TempDir is the parent for archive scratch directories ("" = os.TempDir()).
	TempDir string

	// Proxy routes document downloads through an HTTP proxy.
	Proxy string
}

// StoreConfig controls the request log database.
type StoreConfig struct {
	Path string // default: "case_data.db"
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys. Empty means open access.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 2

	// Burst is the maximum burst size per API key.
	Burst int // default: 5

	// BrowserRequestsPerSecond and BrowserBurst form a second, stricter
	// bucket for the routes that drive the shared browser. Zero disables it.
	BrowserRequestsPerSecond float64 // default: 0.5
	BrowserBurst             int     // default: 3
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults,
// then overlays the selector file named by COURTFETCH_SELECTORS_FILE.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: envOr("COURTFETCH_HOST", "0.0.0.0"),
			Port: envIntOr("COURTFETCH_PORT", 8080),
			Mode: envOr("COURTFETCH_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:             envBoolOr("COURTFETCH_HEADLESS", true),
			NoSandbox:            envBoolOr("COURTFETCH_NO_SANDBOX", true),
			DisableGPU:           envBoolOr("COURTFETCH_DISABLE_GPU", true),
			WindowWidth:          envIntOr("COURTFETCH_WINDOW_WIDTH", 1920),
			WindowHeight:         envIntOr("COURTFETCH_WINDOW_HEIGHT", 1080),
			DefaultProxy:         os.Getenv("COURTFETCH_PROXY"),
			BrowserBin:           os.Getenv("COURTFETCH_BROWSER_BIN"),
			Stealth:              envBoolOr("COURTFETCH_STEALTH", false),
			BlockedResourceTypes: envSliceOr("COURTFETCH_BLOCKED_RESOURCES", []string{"Font", "Media"}),
			BlockTrackers:        envBoolOr("COURTFETCH_BLOCK_TRACKERS", true),
		},
		Portal: PortalConfig{
			Origin:         envOr("COURTFETCH_PORTAL_ORIGIN", "https://delhihighcourt.nic.in"),
			SearchPath:     envOr("COURTFETCH_SEARCH_PATH", "/app/get-case-type-status"),
			OrdersLinkText: envOr("COURTFETCH_ORDERS_LINK_TEXT", "Orders"),
			LinkKeywords:   envSliceOr("COURTFETCH_LINK_KEYWORDS", []string{"pdf", "order"}),
			CaseTypesTTL:   envDurationOr("COURTFETCH_CASE_TYPES_TTL", 0),
		},
		Selectors: loadSelectors(),
		Session: SessionConfig{
			StartSettle:       envDurationOr("COURTFETCH_START_SETTLE", 3*time.Second),
			SubmitSettle:      envDurationOr("COURTFETCH_SUBMIT_SETTLE", 5*time.Second),
			OrdersSettle:      envDurationOr("COURTFETCH_ORDERS_SETTLE", 3*time.Second),
			RefreshSettle:     envDurationOr("COURTFETCH_REFRESH_SETTLE", 1*time.Second),
			ReloadSettle:      envDurationOr("COURTFETCH_RELOAD_SETTLE", 3*time.Second),
			ElementWait:       envDurationOr("COURTFETCH_ELEMENT_WAIT", 10*time.Second),
			NavigationTimeout: envDurationOr("COURTFETCH_NAV_TIMEOUT", 30*time.Second),
			MaxUses:           envIntOr("COURTFETCH_SESSION_MAX_USES", 200),
			MaxAge:            envDurationOr("COURTFETCH_SESSION_MAX_AGE", 2*time.Hour),
		},
		Download: DownloadConfig{
			Timeout:      envDurationOr("COURTFETCH_DOWNLOAD_TIMEOUT", 30*time.Second),
			MaxBodyBytes: int64(envIntOr("COURTFETCH_DOWNLOAD_MAX_BYTES", 50<<20)),
			TempDir:      os.Getenv("COURTFETCH_TEMP_DIR"),
			Proxy:        os.Getenv("COURTFETCH_DOWNLOAD_PROXY"),
		},
		Store: StoreConfig{
			Path: envOr("COURTFETCH_DB_PATH", "case_data.db"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("COURTFETCH_AUTH_ENABLED", true),
			APIKeys: envSliceOr("COURTFETCH_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("COURTFETCH_RATE_RPS", 2.0),
			Burst:             envIntOr("COURTFETCH_RATE_BURST", 5),

			BrowserRequestsPerSecond: envFloatOr("COURTFETCH_BROWSER_RATE_RPS", 0.5),
			BrowserBurst:             envIntOr("COURTFETCH_BROWSER_RATE_BURST", 3),
		},
		Log: LogConfig{
			Level:  envOr("COURTFETCH_LOG_LEVEL", "info"),
			Format: envOr("COURTFETCH_LOG_FORMAT", "json"),
		},
	}

	if path := os.Getenv("COURTFETCH_SELECTORS_FILE"); path != "" {
		if err := cfg.Selectors.MergeFile(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Validate reports configuration that would only fail later at request
// time: a relative portal origin or an unusable element selector.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Portal.Origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("config: portal origin %q must be an absolute http(s) URL", c.Portal.Origin))
	}
	if strings.TrimSpace(c.Portal.OrdersLinkText) == "" {
		errs = append(errs, errors.New("config: orders link text must not be empty"))
	}
	if len(c.Portal.LinkKeywords) == 0 {
		errs = append(errs, errors.New("config: at least one link keyword is required"))
	}

	for _, s := range c.Selectors.named() {
		if strings.TrimSpace(s.value) == "" {
			errs = append(errs, fmt.Errorf("config: selector %s is empty", s.name))
			continue
		}
		if _, err := cascadia.Parse(s.value); err != nil {
			errs = append(errs, fmt.Errorf("config: selector %s %q: %w", s.name, s.value, err))
		}
	}

	if c.Session.ElementWait <= 0 {
		errs = append(errs, errors.New("config: element wait must be positive"))
	}
	if c.Download.Timeout <= 0 {
		errs = append(errs, errors.New("config: download timeout must be positive"))
	}
	return errors.Join(errs...)
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
