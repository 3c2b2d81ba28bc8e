package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(t *testing.T, cfg *Config) (*Limiter, *manualClock) {
	t.Helper()
	cfg.CleanupInterval = 0
	l := NewLimiter(cfg)
	t.Cleanup(l.Stop)
	clock := &manualClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	l.now = clock.Now
	return l, clock
}

func TestLimiter_ScrapeTier(t *testing.T) {
	l, clock := newTestLimiter(t, &Config{
		Enabled:         true,
		DefaultLimit:    100,
		DefaultWindow:   time.Minute,
		EndpointConfigs: DefaultEndpointConfigs(10),
	})

	for i := 0; i < 2; i++ {
		allowed, info := l.Allow("10.0.0.1", "/linkedin/scrape", "POST")
		require.True(t, allowed, "request %d within burst", i+1)
		assert.Equal(t, 10, info.Limit)
	}

	allowed, info := l.Allow("10.0.0.1", "/linkedin/scrape", "POST")
	assert.False(t, allowed)
	assert.InDelta(t, 360, info.RetryAfter.Seconds(), 0.01, "10/hour refills one token every 6 minutes")

	// other clients and endpoints have their own buckets
	allowed, _ = l.Allow("10.0.0.2", "/linkedin/scrape", "POST")
	assert.True(t, allowed)
	allowed, _ = l.Allow("10.0.0.1", "/linkedin/scrape/retry", "POST")
	assert.True(t, allowed)

	clock.Advance(6*time.Minute + time.Second)
	allowed, _ = l.Allow("10.0.0.1", "/linkedin/scrape", "POST")
	assert.True(t, allowed)
}

func TestLimiter_DefaultLimitSharedAcrossPaths(t *testing.T) {
	l, _ := newTestLimiter(t, &Config{Enabled: true, DefaultLimit: 2, DefaultWindow: time.Minute})

	allowed, _ := l.Allow("c", "/linkedin/sync/a", "GET")
	assert.True(t, allowed)
	allowed, _ = l.Allow("c", "/linkedin/sync/b", "GET")
	assert.True(t, allowed)
	allowed, info := l.Allow("c", "/linkedin/sync/c", "GET")
	assert.False(t, allowed)
	assert.Equal(t, 0, info.Remaining)
}

func TestLimiter_BypassRules(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		client  string
		path    string
		allowed bool
	}{
		{name: "disabled", cfg: &Config{Enabled: false}, client: "c", path: "/linkedin/scrape", allowed: true},
		{name: "whitelisted", cfg: &Config{Enabled: true, DefaultLimit: 0, Whitelist: map[string]bool{"c": true}}, client: "c", path: "/linkedin/scrape", allowed: true},
		{name: "blacklisted", cfg: &Config{Enabled: true, DefaultLimit: 100, DefaultWindow: time.Minute, Blacklist: map[string]bool{"c": true}}, client: "c", path: "/health", allowed: false},
		{name: "health unlimited", cfg: &Config{Enabled: true, DefaultLimit: 0, DefaultWindow: time.Minute}, client: "c", path: "/health", allowed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newTestLimiter(t, tt.cfg)
			for i := 0; i < 5; i++ {
				method := "POST"
				if tt.path == "/health" {
					method = "GET"
				}
				allowed, _ := l.Allow(tt.client, tt.path, method)
				assert.Equal(t, tt.allowed, allowed)
			}
		})
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	l, _ := newTestLimiter(t, &Config{Enabled: true, DefaultLimit: 50, DefaultWindow: time.Hour})

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowedCount := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow("c", "/linkedin/sync/x", "GET"); ok {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowedCount)
}

func TestLimiter_CleanupIdleBuckets(t *testing.T) {
	l, clock := newTestLimiter(t, &Config{Enabled: true, DefaultLimit: 10, DefaultWindow: time.Minute})

	l.Allow("old", "/x", "GET")
	clock.Advance(30 * time.Minute)
	l.Allow("recent", "/x", "GET")
	clock.Advance(31 * time.Minute)

	assert.Equal(t, 1, l.cleanupBuckets())
	assert.Len(t, l.buckets, 1)
}

func TestMatchEndpoint(t *testing.T) {
	configs := append(DefaultEndpointConfigs(10),
		EndpointConfig{Path: "/linkedin/", Method: "GET", Limit: 100, Window: time.Minute},
		EndpointConfig{Path: "/linkedin/sync/", Method: "GET", Limit: 600, Window: time.Minute},
	)

	tests := []struct {
		path, method string
		wantPath     string
	}{
		{"/linkedin/scrape", "POST", "/linkedin/scrape"},
		{"/linkedin/scrape/retry", "POST", "/linkedin/scrape/retry"},
		{"/linkedin/sync/123", "GET", "/linkedin/sync/"},
		{"/linkedin/other", "GET", "/linkedin/"},
		{"/health", "GET", "/health"},
		{"/linkedin/scrape", "GET", "/linkedin/"},
		{"/linkedin/credentials", "DELETE", "/linkedin/credentials"},
		{"/linkedin/unknown", "POST", ""},
		{"/other", "GET", ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			got := MatchEndpoint(tt.path, tt.method, configs)
			if tt.wantPath == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantPath, got.Path)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "true")
	t.Setenv("RATE_LIMIT_SCRAPES_PER_HOUR", "3")
	t.Setenv("RATE_LIMIT_WHITELIST", "127.0.0.1, ::1")

	cfg := LoadConfig()
	assert.True(t, cfg.Enabled)
	assert.True(t, cfg.Whitelist["::1"])
	match := MatchEndpoint("/linkedin/scrape", "POST", cfg.EndpointConfigs)
	require.NotNil(t, match)
	assert.Equal(t, 3, match.Limit)

	t.Setenv("RATE_LIMIT_ENABLED", "false")
	assert.False(t, LoadConfig().Enabled)
}
