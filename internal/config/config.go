package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/maltedev/retail-session-scraper/internal/browser"
	"github.com/maltedev/retail-session-scraper/internal/session"
)

// requestTimeoutMargin is kept between the request deadline and the
// connection write deadline so a handler cut short can still write its body.
const requestTimeoutMargin = 10 * time.Second

type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Session   SessionConfig
	Site      SiteConfig
	Scraper   ScraperConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExecutablePath string
	Stealth        bool
}

type SessionConfig struct {
	Policy                string
	FreshnessWindow       time.Duration
	SettleDelay           time.Duration
	NavigationTimeout     time.Duration
	RenderDelay           time.Duration
	InterstitialSelectors []string
	ExtraBlockTitles      []string
}

type SiteConfig struct {
	BaseURL string
}

type ScraperConfig struct {
	RateLimitMin  time.Duration
	RateLimitMax  time.Duration
	BatchMaxItems int
}

// RedisConfig enables the product stream when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 20*time.Minute),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"*"}),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", browser.DefaultOptions().UserAgent),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "de-DE,de;q=0.9,en;q=0.8"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Europe/Berlin"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "de-DE"),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
			ExecutablePath: getEnvOrDefault("BROWSER_EXECUTABLE_PATH", ""),
			Stealth:        getBoolOrDefault("BROWSER_STEALTH", true),
		},
		Session: SessionConfig{
			Policy:                getEnvOrDefault("SESSION_POLICY", string(session.PolicyPersistent)),
			FreshnessWindow:       getDurationOrDefault("SESSION_FRESHNESS_WINDOW", 10*time.Minute),
			SettleDelay:           getDurationOrDefault("SESSION_SETTLE_DELAY", 5*time.Second),
			NavigationTimeout:     getDurationOrDefault("SESSION_NAVIGATION_TIMEOUT", 90*time.Second),
			RenderDelay:           getDurationOrDefault("SESSION_RENDER_DELAY", 2*time.Second),
			InterstitialSelectors: getStringSliceOrDefault("SESSION_INTERSTITIAL_SELECTORS", defaultInterstitialSelectors()),
			ExtraBlockTitles:      getStringSliceOrDefault("SESSION_BLOCK_TITLES", []string{}),
		},
		Site: SiteConfig{
			BaseURL: getEnvOrDefault("SITE_BASE_URL", "https://www.amazon.de"),
		},
		Scraper: ScraperConfig{
			RateLimitMin:  getDurationOrDefault("SCRAPER_RATE_LIMIT_MIN", 2*time.Second),
			RateLimitMax:  getDurationOrDefault("SCRAPER_RATE_LIMIT_MAX", 5*time.Second),
			BatchMaxItems: getIntOrDefault("SCRAPER_BATCH_MAX_ITEMS", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", ""),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "stream:retail:products"),
			MaxLen:   int64(getIntOrDefault("REDIS_STREAM_MAXLEN", 10000)),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getIntOrDefault("API_RATE_LIMIT_RPM", 30),
			Burst:             getIntOrDefault("API_RATE_LIMIT_BURST", 5),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if _, ok := session.ParsePolicy(c.Session.Policy); !ok {
		return fmt.Errorf("SESSION_POLICY must be %q or %q, got %q", session.PolicyPersistent, session.PolicyPerOperation, c.Session.Policy)
	}

	if c.Session.NavigationTimeout <= 0 {
		return fmt.Errorf("SESSION_NAVIGATION_TIMEOUT must be positive")
	}

	if c.Session.FreshnessWindow < 0 || c.Session.SettleDelay < 0 || c.Session.RenderDelay < 0 {
		return fmt.Errorf("session delays cannot be negative")
	}

	if c.Scraper.RateLimitMin > c.Scraper.RateLimitMax {
		return fmt.Errorf("SCRAPER_RATE_LIMIT_MIN cannot be greater than SCRAPER_RATE_LIMIT_MAX")
	}

	if c.Scraper.BatchMaxItems < 1 {
		return fmt.Errorf("SCRAPER_BATCH_MAX_ITEMS must be at least 1")
	}

	if c.Server.WriteTimeout <= requestTimeoutMargin {
		return fmt.Errorf("SERVER_WRITE_TIMEOUT must be longer than %s", requestTimeoutMargin)
	}

	if worst := time.Duration(c.Scraper.BatchMaxItems) * c.batchItemBudget(); worst > c.RequestTimeout() {
		return fmt.Errorf("SCRAPER_BATCH_MAX_ITEMS=%d can take up to %s, more than the %s request timeout; lower it or raise SERVER_WRITE_TIMEOUT",
			c.Scraper.BatchMaxItems, worst, c.RequestTimeout())
	}

	if !strings.HasPrefix(c.Site.BaseURL, "http://") && !strings.HasPrefix(c.Site.BaseURL, "https://") {
		return fmt.Errorf("SITE_BASE_URL must be an http(s) URL, got %q", c.Site.BaseURL)
	}

	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport must be positive")
	}

	if c.RateLimit.RequestsPerMinute < 1 || c.RateLimit.Burst < 1 {
		return fmt.Errorf("API_RATE_LIMIT_RPM and API_RATE_LIMIT_BURST must be at least 1")
	}

	return nil
}

// RequestTimeout bounds one API request. It ends before the server's write
// deadline so that a batch cut short still delivers its entries.
func (c *Config) RequestTimeout() time.Duration {
	return c.Server.WriteTimeout - requestTimeoutMargin
}

// batchItemBudget is the longest one batch item may take: a bounded
// navigation, the render wait and the widest pacing pause.
func (c *Config) batchItemBudget() time.Duration {
	return c.Session.NavigationTimeout + c.Session.RenderDelay + c.Scraper.RateLimitMax
}

// BrowserOptions converts the browser section for the launcher.
func (c *Config) BrowserOptions() *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = c.Browser.Headless
	opts.Timeout = c.Browser.Timeout
	opts.UserAgent = c.Browser.UserAgent
	opts.ViewportWidth = c.Browser.ViewportWidth
	opts.ViewportHeight = c.Browser.ViewportHeight
	opts.AcceptLanguage = c.Browser.AcceptLanguage
	opts.TimezoneID = c.Browser.TimezoneID
	opts.Locale = c.Browser.Locale
	opts.ProxyServer = c.Browser.ProxyServer
	opts.ExecutablePath = c.Browser.ExecutablePath
	opts.Stealth = c.Browser.Stealth
	return opts
}

// SessionConfig converts the session section for the controller. warmupURL
// is the shop's home page.
func (c *Config) SessionConfig(warmupURL string) session.Config {
	policy, _ := session.ParsePolicy(c.Session.Policy)

	cfg := session.DefaultConfig()
	cfg.Policy = policy
	cfg.WarmupURL = warmupURL
	cfg.FreshnessWindow = c.Session.FreshnessWindow
	cfg.SettleDelay = c.Session.SettleDelay
	cfg.NavigationTimeout = c.Session.NavigationTimeout
	cfg.RenderDelay = c.Session.RenderDelay
	cfg.InterstitialSelectors = c.Session.InterstitialSelectors
	cfg.Signatures.Titles = append(cfg.Signatures.Titles, c.Session.ExtraBlockTitles...)
	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

func defaultInterstitialSelectors() []string {
	return []string{
		`button[type="submit"].a-button-text`,
		`input[type="submit"][value*="Weiter"]`,
		`a:has-text("Continue shopping")`,
		`button:has-text("Weiter einkaufen")`,
	}
}
