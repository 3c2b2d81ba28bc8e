// Package config loads service configuration from an optional JSON file and the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/profile-sync/internal/browser"
	"github.com/jonathan/profile-sync/internal/scraper"
	"github.com/jonathan/profile-sync/internal/telemetry"
)

// Duration is a time.Duration that reads "90s"-style strings or seconds from JSON.
type Duration time.Duration

// UnmarshalJSON accepts either a Go duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var seconds float64
	if err := json.Unmarshal(data, &seconds); err != nil {
		return fmt.Errorf("duration must be a string or number of seconds: %s", data)
	}
	*d = Duration(time.Duration(seconds * float64(time.Second)))
	return nil
}

// MarshalJSON writes the duration as a Go duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Config is the service configuration. File values are overridden by the environment.
type Config struct {
	// Scraper
	LoginURL        string   `json:"login_url,omitempty" validate:"required,url"`
	TimeBudget      Duration `json:"time_budget,omitempty" validate:"gt=0"`
	LoginPollBudget Duration `json:"login_poll_budget,omitempty" validate:"gt=0"`
	RetryPollBudget Duration `json:"retry_poll_budget,omitempty" validate:"gt=0"`
	SessionTTL      Duration `json:"session_ttl,omitempty" validate:"gt=0"`
	SweepInterval   Duration `json:"sweep_interval,omitempty" validate:"gte=0"`

	// Browser
	MaxConcurrentBrowsers int      `json:"max_concurrent_browsers,omitempty" validate:"min=1,max=64"`
	Headless              bool     `json:"headless"`
	UserAgent             string   `json:"user_agent,omitempty" validate:"required"`
	WindowWidth           int      `json:"window_width,omitempty" validate:"min=320"`
	WindowHeight          int      `json:"window_height,omitempty" validate:"min=240"`
	BrowserOpTimeout      Duration `json:"browser_op_timeout,omitempty" validate:"gt=0"`
	ChromePath            string   `json:"chrome_path,omitempty"`

	// Service
	Port        int    `json:"port,omitempty" validate:"min=1,max=65535"`
	DatabaseURL string `json:"database_url,omitempty"`

	// Tracing
	OTLPTracesGRPCEndpoint string            `json:"otlp_traces_grpc_endpoint,omitempty" validate:"omitempty,url"`
	OTLPTracesHTTPEndpoint string            `json:"otlp_traces_http_endpoint,omitempty" validate:"omitempty,url"`
	OTLPTracesHeaders      map[string]string `json:"otlp_traces_headers,omitempty"`

	// Secrets are only read from the environment.
	EncryptionKey string `json:"-"`
	GeminiAPIKey  string `json:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LoginURL:              scraper.DefaultLoginURL,
		TimeBudget:            Duration(scraper.DefaultTimeBudget),
		LoginPollBudget:       Duration(scraper.DefaultLoginPollBudget),
		RetryPollBudget:       Duration(scraper.DefaultRetryPollBudget),
		SessionTTL:            Duration(scraper.DefaultSessionTTL),
		SweepInterval:         Duration(30 * time.Second),
		MaxConcurrentBrowsers: 4,
		Headless:              true,
		UserAgent:             browser.DefaultUserAgent,
		WindowWidth:           browser.DefaultWindowWidth,
		WindowHeight:          browser.DefaultWindowHeight,
		BrowserOpTimeout:      Duration(browser.DefaultOpTimeout),
		Port:                  8080,
	}
}

// Load builds the configuration: defaults, then the JSON file at path (if any), then
// environment variables. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from environment variables that are set.
func (c *Config) ApplyEnv() {
	c.LoginURL = getEnvString("LOGIN_URL", c.LoginURL)
	c.TimeBudget = Duration(getEnvDuration("SCRAPE_TIME_BUDGET", time.Duration(c.TimeBudget)))
	c.LoginPollBudget = Duration(getEnvDuration("LOGIN_POLL_BUDGET", time.Duration(c.LoginPollBudget)))
	c.RetryPollBudget = Duration(getEnvDuration("RETRY_POLL_BUDGET", time.Duration(c.RetryPollBudget)))
	c.SessionTTL = Duration(getEnvDuration("SESSION_TTL", time.Duration(c.SessionTTL)))
	c.SweepInterval = Duration(getEnvDuration("SESSION_SWEEP_INTERVAL", time.Duration(c.SweepInterval)))

	c.MaxConcurrentBrowsers = getEnvInt("MAX_CONCURRENT_BROWSERS", c.MaxConcurrentBrowsers)
	c.Headless = getEnvBool("CHROME_HEADLESS", c.Headless)
	c.UserAgent = getEnvString("CHROME_USER_AGENT", c.UserAgent)
	c.WindowWidth = getEnvInt("CHROME_WINDOW_WIDTH", c.WindowWidth)
	c.WindowHeight = getEnvInt("CHROME_WINDOW_HEIGHT", c.WindowHeight)
	c.BrowserOpTimeout = Duration(getEnvDuration("BROWSER_OP_TIMEOUT", time.Duration(c.BrowserOpTimeout)))
	c.ChromePath = getEnvString("CHROME_PATH", c.ChromePath)

	c.Port = getEnvInt("PORT", c.Port)
	c.DatabaseURL = getEnvString("DATABASE_URL", c.DatabaseURL)
	c.EncryptionKey = getEnvString("ENCRYPTION_KEY", c.EncryptionKey)
	c.GeminiAPIKey = getEnvString("GEMINI_API_KEY", c.GeminiAPIKey)

	c.OTLPTracesGRPCEndpoint = getEnvString("OTLP_TRACES_GRPC_ENDPOINT", c.OTLPTracesGRPCEndpoint)
	c.OTLPTracesHTTPEndpoint = getEnvString("OTLP_TRACES_HTTP_ENDPOINT", c.OTLPTracesHTTPEndpoint)
	if headers := os.Getenv("OTLP_TRACES_HEADERS"); headers != "" {
		c.OTLPTracesHeaders = telemetry.ParseHeaders(headers)
	}
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

// Scraper returns the scraper settings.
func (c *Config) Scraper() scraper.Config {
	return scraper.Config{
		LoginURL:        c.LoginURL,
		TimeBudget:      time.Duration(c.TimeBudget),
		LoginPollBudget: time.Duration(c.LoginPollBudget),
		RetryPollBudget: time.Duration(c.RetryPollBudget),
	}
}

// Telemetry returns the trace exporter settings.
func (c *Config) Telemetry() telemetry.Config {
	return telemetry.Config{
		GRPCEndpoint: c.OTLPTracesGRPCEndpoint,
		HTTPEndpoint: c.OTLPTracesHTTPEndpoint,
		Headers:      c.OTLPTracesHeaders,
	}
}

// Launch returns the browser launch options.
func (c *Config) Launch() browser.LaunchOptions {
	return browser.LaunchOptions{
		Headless:     c.Headless,
		WindowWidth:  c.WindowWidth,
		WindowHeight: c.WindowHeight,
		UserAgent:    c.UserAgent,
		OpTimeout:    time.Duration(c.BrowserOpTimeout),
		ExecPath:     c.ChromePath,
	}
}

func getEnvString(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("45s") or plain seconds ("45").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
