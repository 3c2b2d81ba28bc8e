package browser

import (
	"time"

	"github.com/chromedp/chromedp"
)

// DefaultUserAgent is a desktop Chrome user agent; the headless default advertises "HeadlessChrome".
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const (
	DefaultWindowWidth  = 1920
	DefaultWindowHeight = 1080
	// DefaultOpTimeout bounds a single browser operation, including page loads.
	DefaultOpTimeout = 30 * time.Second
)

// LaunchOptions configures a fresh Chrome instance.
type LaunchOptions struct {
	Headless     bool
	WindowWidth  int
	WindowHeight int
	UserAgent    string
	OpTimeout    time.Duration
	// ExecPath overrides Chrome discovery. Empty uses chromedp's lookup.
	ExecPath string
}

// DefaultLaunchOptions returns the hardened configuration used for every scrape.
func DefaultLaunchOptions() LaunchOptions {
	return LaunchOptions{
		Headless:     true,
		WindowWidth:  DefaultWindowWidth,
		WindowHeight: DefaultWindowHeight,
		UserAgent:    DefaultUserAgent,
		OpTimeout:    DefaultOpTimeout,
	}
}

func (o LaunchOptions) withDefaults() LaunchOptions {
	if o.WindowWidth <= 0 {
		o.WindowWidth = DefaultWindowWidth
	}
	if o.WindowHeight <= 0 {
		o.WindowHeight = DefaultWindowHeight
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = DefaultOpTimeout
	}
	return o
}

// AllocatorOptions builds the chromedp allocator flags for opts.
func AllocatorOptions(opts LaunchOptions) []chromedp.ExecAllocatorOption {
	opts = opts.withDefaults()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", false),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("password-store", "basic"),
		chromedp.Flag("use-mock-keychain", true),
		chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight),
		chromedp.UserAgent(opts.UserAgent),
	)
	if opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", "new"))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	return allocOpts
}
