package scraper

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/profile-sync/internal/browser"
)

// ScrollOptions tunes ProgressiveScroll.
type ScrollOptions struct {
	Step  int
	Pause time.Duration
	Max   int
}

var (
	profileScroll = ScrollOptions{Step: 800, Pause: time.Second, Max: 12}
	detailScroll  = ScrollOptions{Step: 800, Pause: 800 * time.Millisecond, Max: 8}
)

const (
	dismissPause       = 500 * time.Millisecond
	scrollTopPause     = 500 * time.Millisecond
	seeMoreFocusPause  = 200 * time.Millisecond
	seeMoreClickPause  = 300 * time.Millisecond
	showAllFocusPause  = 300 * time.Millisecond
	showAllClickPause  = 1500 * time.Millisecond
	elementPollPause   = 500 * time.Millisecond
	bodySampleMaxChars = 500
)

// Page wraps a live driver with the best-effort interaction primitives. Individual
// failures are logged and skipped; only context cancellation is returned.
type Page struct {
	drv   browser.Driver
	clock Clock
	log   *zap.Logger
}

func newPage(drv browser.Driver, clock Clock, log *zap.Logger) *Page {
	return &Page{drv: drv, clock: clock, log: log}
}

// DismissOverlays clicks every visible dismissal button once and returns how many it clicked.
func (p *Page) DismissOverlays(ctx context.Context) (int, error) {
	dismissed := 0
	for _, selector := range dismissSelectors {
		elems, err := p.drv.FindElements(ctx, selector)
		if err != nil {
			if ctx.Err() != nil {
				return dismissed, ctx.Err()
			}
			continue
		}
		for _, elem := range elems {
			if err := elem.Click(ctx); err != nil {
				continue
			}
			dismissed++
			if err := p.clock.Sleep(ctx, dismissPause); err != nil {
				return dismissed, err
			}
		}
	}
	if dismissed > 0 {
		p.log.Debug("dismissed overlays", zap.Int("count", dismissed))
	}
	return dismissed, nil
}

// ProgressiveScroll scrolls down in fixed steps so lazy sections load. It stops once the
// scroll position has reached a page height that did not change since the previous step,
// or after opts.Max steps, then returns to the top. It returns the number of steps taken.
func (p *Page) ProgressiveScroll(ctx context.Context, opts ScrollOptions) (int, error) {
	lastHeight, err := p.scrollHeight(ctx)
	if err != nil {
		p.log.Debug("could not read page height", zap.Error(err))
	}

	position, steps := 0, 0
	for steps < opts.Max {
		position += opts.Step
		if err := p.drv.Evaluate(ctx, scriptScrollTo(position), nil); err != nil {
			p.log.Debug("scroll failed", zap.Int("position", position), zap.Error(err))
			break
		}
		steps++
		if err := p.clock.Sleep(ctx, opts.Pause); err != nil {
			return steps, err
		}

		height, err := p.scrollHeight(ctx)
		if err != nil {
			break
		}
		if position >= height && height == lastHeight {
			break
		}
		lastHeight = height
	}

	if err := p.drv.Evaluate(ctx, scriptScrollTop, nil); err != nil {
		p.log.Debug("scroll to top failed", zap.Error(err))
	}
	return steps, p.clock.Sleep(ctx, scrollTopPause)
}

func (p *Page) scrollHeight(ctx context.Context) (int, error) {
	var height int
	err := p.drv.Evaluate(ctx, scriptScrollHeight, &height)
	return height, err
}

// ExpandSeeMore clicks every "see more" style button found by any selector strategy.
func (p *Page) ExpandSeeMore(ctx context.Context) (int, error) {
	seen := make(map[string]bool)
	clicked := 0
	for _, selector := range seeMoreSelectors {
		elems, err := p.drv.FindElements(ctx, selector)
		if err != nil {
			if ctx.Err() != nil {
				return clicked, ctx.Err()
			}
			continue
		}
		for _, elem := range elems {
			if seen[elem.ID()] {
				continue
			}
			seen[elem.ID()] = true

			if err := elem.ScrollIntoView(ctx); err != nil {
				continue
			}
			if err := p.clock.Sleep(ctx, seeMoreFocusPause); err != nil {
				return clicked, err
			}
			if err := elem.Click(ctx); err != nil {
				continue
			}
			clicked++
			if err := p.clock.Sleep(ctx, seeMoreClickPause); err != nil {
				return clicked, err
			}
		}
	}
	if clicked > 0 {
		p.log.Debug("expanded see-more buttons", zap.Int("count", clicked))
	}
	return clicked, nil
}

// WaitForElement polls for selector until it appears or timeout elapses.
func (p *Page) WaitForElement(ctx context.Context, selector string, timeout time.Duration) (browser.Element, bool, error) {
	deadline := p.clock.Now().Add(timeout)
	for {
		elems, err := p.drv.FindElements(ctx, selector)
		if err == nil && len(elems) > 0 {
			return elems[0], true, nil
		}
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		if !p.clock.Now().Before(deadline) {
			return nil, false, nil
		}
		if err := p.clock.Sleep(ctx, elementPollPause); err != nil {
			return nil, false, err
		}
	}
}

// BodySample returns the first characters of the page's visible body text.
func (p *Page) BodySample(ctx context.Context) (string, error) {
	var sample string
	if err := p.drv.Evaluate(ctx, scriptBodySample, &sample); err != nil {
		return "", err
	}
	return truncateRunes(sample, bodySampleMaxChars), nil
}

// Snapshot returns the rendered HTML of the current document.
func (p *Page) Snapshot(ctx context.Context) (string, error) {
	var html string
	err := p.drv.Evaluate(ctx, scriptOuterHTML, &html)
	return html, err
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func containsAny(s string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
