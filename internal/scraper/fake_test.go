package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonathan/profile-sync/internal/browser"
)

// fakeClock advances virtual time on Sleep.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type fakeElement struct {
	id       string
	href     string
	dismiss  bool
	clickErr error
	clicks   int
	keys     []string
	removed  bool
}

func (e *fakeElement) ID() string { return e.id }

func (e *fakeElement) Click(context.Context) error {
	if e.clickErr != nil {
		return e.clickErr
	}
	e.clicks++
	if e.dismiss {
		e.removed = true
	}
	return nil
}

func (e *fakeElement) SendKeys(_ context.Context, text string) error {
	e.keys = append(e.keys, text)
	return nil
}

func (e *fakeElement) ScrollIntoView(context.Context) error { return nil }

func (e *fakeElement) Property(_ context.Context, name string) (string, error) {
	if name == "href" {
		return e.href, nil
	}
	return "", nil
}

type fakePage struct {
	html     string
	body     string
	height   func(scrolls int) int
	elements map[string][]*fakeElement
}

type loginStep struct {
	url  string
	body string
}

// fakeDriver scripts a browser. While on the login URL, CurrentURL reports the current
// login step and every body-sample read moves to the next step; the last step repeats.
type fakeDriver struct {
	mu sync.Mutex

	loginURL string
	steps    []loginStep
	step     int
	pages    map[string]*fakePage
	navErrs  map[string]error
	urlErr   error

	current     string
	scrolls     int
	scrollY     int
	navigations []string
	calls       int
	quits       int
}

func newFakeDriver(steps ...loginStep) *fakeDriver {
	d := &fakeDriver{
		loginURL: DefaultLoginURL,
		steps:    steps,
		pages:    make(map[string]*fakePage),
		navErrs:  make(map[string]error),
	}
	d.pages[DefaultLoginURL] = &fakePage{
		html: `<html><body><main><form>Sign in</form></main></body></html>`,
		elements: map[string][]*fakeElement{
			usernameSelector:    {{id: "username"}},
			passwordSelector:    {{id: "password"}},
			submitLoginSelector: {{id: "submit"}},
		},
	}
	return d
}

func (d *fakeDriver) page() *fakePage {
	if p, ok := d.pages[d.current]; ok {
		return p
	}
	return &fakePage{html: "<html><body></body></html>"}
}

func (d *fakeDriver) loginStep() loginStep {
	if len(d.steps) == 0 {
		return loginStep{url: d.loginURL}
	}
	if d.step >= len(d.steps) {
		return d.steps[len(d.steps)-1]
	}
	return d.steps[d.step]
}

func (d *fakeDriver) Navigate(_ context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.navigations = append(d.navigations, url)
	if err := d.navErrs[url]; err != nil {
		return err
	}
	d.current = url
	d.scrolls = 0
	d.scrollY = 0
	return nil
}

func (d *fakeDriver) FindElements(_ context.Context, selector string) ([]browser.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	p := d.page()
	if selector == mainSelector && strings.Contains(p.html, "<main") {
		return []browser.Element{&fakeElement{id: "main"}}, nil
	}
	var out []browser.Element
	for _, e := range p.elements[selector] {
		if !e.removed {
			out = append(out, e)
		}
	}
	return out, nil
}

func (d *fakeDriver) Evaluate(_ context.Context, script string, res any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	p := d.page()

	switch {
	case script == scriptScrollHeight:
		height := 800
		if p.height != nil {
			height = p.height(d.scrolls)
		}
		*res.(*int) = height
	case script == scriptScrollTop:
		d.scrollY = 0
	case strings.HasPrefix(script, scrollToPrefix):
		if _, err := fmt.Sscanf(script, scrollToPrefix+"%d", &d.scrollY); err != nil {
			return err
		}
		d.scrolls++
	case script == scriptBodySample:
		if d.current == d.loginURL {
			*res.(*string) = d.loginStep().body
			d.step++
			return nil
		}
		*res.(*string) = p.body
	case script == scriptOuterHTML:
		*res.(*string) = p.html
	default:
		return fmt.Errorf("unexpected script %q", script)
	}
	return nil
}

func (d *fakeDriver) CurrentURL(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.urlErr != nil {
		return "", d.urlErr
	}
	if d.current == d.loginURL {
		return d.loginStep().url, nil
	}
	return d.current, nil
}

func (d *fakeDriver) Quit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.quits++
	return nil
}

func (d *fakeDriver) Quits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.quits
}

func (d *fakeDriver) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *fakeDriver) Navigations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.navigations...)
}

var errDriverGone = errors.New("chrome not reachable")

// launcherFor returns a Launcher handing out drivers in order.
func launcherFor(drivers ...*fakeDriver) (Launcher, *int) {
	launched := 0
	return func(context.Context) (browser.Driver, error) {
		if launched >= len(drivers) {
			return nil, errors.New("no more browsers")
		}
		d := drivers[launched]
		launched++
		return d, nil
	}, &launched
}
