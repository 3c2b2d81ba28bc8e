package ratelimit

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EndpointConfig is the limit for one method and path pattern.
type EndpointConfig struct {
	Path   string        // exact path, or a prefix when it ends with "/"
	Method string        // HTTP method
	Limit  int           // requests per window
	Window time.Duration // refill window
	Burst  int           // bucket capacity, defaults to Limit
}

// LoadConfig reads rate limiting settings from the environment.
func LoadConfig() *Config {
	if !getEnvBool("RATE_LIMIT_ENABLED", true) {
		return &Config{Enabled: false}
	}

	return &Config{
		Enabled:         true,
		DefaultLimit:    getEnvInt("RATE_LIMIT_DEFAULT_LIMIT", 300),
		DefaultWindow:   getEnvDuration("RATE_LIMIT_DEFAULT_WINDOW", time.Minute),
		CleanupInterval: getEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		Whitelist:       parseIPList(getEnvString("RATE_LIMIT_WHITELIST", "")),
		Blacklist:       parseIPList(getEnvString("RATE_LIMIT_BLACKLIST", "")),
		EndpointConfigs: DefaultEndpointConfigs(getEnvInt("RATE_LIMIT_SCRAPES_PER_HOUR", 10)),
	}
}

// DefaultEndpointConfigs returns the per-endpoint tiers. scrapesPerHour bounds fresh
// browser logins per client.
func DefaultEndpointConfigs(scrapesPerHour int) []EndpointConfig {
	if scrapesPerHour < 1 {
		scrapesPerHour = 1
	}
	return []EndpointConfig{
		// Tier 1: each call launches a browser and signs in
		{Path: "/linkedin/scrape", Method: "POST", Limit: scrapesPerHour, Window: time.Hour, Burst: 2},
		{Path: "/linkedin/sync", Method: "POST", Limit: scrapesPerHour, Window: time.Hour, Burst: 2},

		// Tier 2: resumes reuse a parked browser but still poll for up to a minute
		{Path: "/linkedin/scrape/retry", Method: "POST", Limit: 30, Window: time.Hour, Burst: 5},

		// Tier 3: writes
		{Path: "/linkedin/credentials", Method: "PUT", Limit: 20, Window: time.Hour, Burst: 5},
		{Path: "/linkedin/credentials", Method: "DELETE", Limit: 20, Window: time.Hour, Burst: 5},
		{Path: "/linkedin/session", Method: "DELETE", Limit: 60, Window: time.Minute, Burst: 10},

		// Status polling and health use the default limit or are unlimited (see MatchEndpoint)
	}
}

func getEnvString(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// parseIPList parses a comma-separated list of client IPs.
func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			result[ip] = true
		}
	}
	return result
}
