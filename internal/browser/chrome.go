package browser

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

// ChromeDriver drives one headless Chrome tab through chromedp.
//
// The browser lives on its own background context rather than the caller's:
// a parked session must outlive the request that launched it.
type ChromeDriver struct {
	tabCtx      context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	opTimeout   time.Duration
	quitOnce    sync.Once
	quitErr     error
}

// Launch starts Chrome with opts and opens a blank tab.
func Launch(ctx context.Context, opts LaunchOptions) (*ChromeDriver, error) {
	opts = opts.withDefaults()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), AllocatorOptions(opts)...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	d := &ChromeDriver{
		tabCtx:      tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		opTimeout:   opts.OpTimeout,
	}

	// The first Run on a fresh context starts the browser process.
	if err := d.run(ctx, chromedp.Navigate("about:blank")); err != nil {
		_ = d.Quit()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return d, nil
}

// run executes actions on the tab, bounded by ctx and the per-operation timeout.
// Actions run in a goroutine so that giving up never cancels the tab context itself.
func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(d.tabCtx, actions...)
	}()

	timer := time.NewTimer(d.opTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("browser operation timed out after %s", d.opTimeout)
	}
}

// Navigate loads url and waits for the body to be ready.
func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	if err := d.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// FindElements matches selector with DOM.performSearch, which accepts CSS and XPath.
func (d *ChromeDriver) FindElements(ctx context.Context, selector string) ([]Element, error) {
	var nodes []*cdp.Node
	if err := d.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("find %q: %w", selector, err)
	}

	elements := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, &chromeElement{driver: d, node: n})
	}
	return elements, nil
}

// Evaluate runs script in the page.
func (d *ChromeDriver) Evaluate(ctx context.Context, script string, res any) error {
	return d.run(ctx, chromedp.Evaluate(script, res))
}

// CurrentURL doubles as the liveness probe for parked sessions.
func (d *ChromeDriver) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := d.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// Quit closes the browser gracefully, then releases the allocator.
func (d *ChromeDriver) Quit() error {
	d.quitOnce.Do(func() {
		closeCtx, cancel := context.WithTimeout(d.tabCtx, 10*time.Second)
		defer cancel()
		d.quitErr = chromedp.Cancel(closeCtx)
		d.cancelTab()
		d.cancelAlloc()
	})
	return d.quitErr
}

type chromeElement struct {
	driver *ChromeDriver
	node   *cdp.Node
}

func (e *chromeElement) ids() []cdp.NodeID {
	return []cdp.NodeID{e.node.NodeID}
}

func (e *chromeElement) ID() string {
	return strconv.FormatInt(int64(e.node.BackendNodeID), 10)
}

func (e *chromeElement) Click(ctx context.Context) error {
	return e.driver.run(ctx, chromedp.Click(e.ids(), chromedp.ByNodeID))
}

func (e *chromeElement) SendKeys(ctx context.Context, text string) error {
	return e.driver.run(ctx, chromedp.SendKeys(e.ids(), text, chromedp.ByNodeID))
}

func (e *chromeElement) ScrollIntoView(ctx context.Context) error {
	return e.driver.run(ctx, chromedp.ScrollIntoView(e.ids(), chromedp.ByNodeID))
}

func (e *chromeElement) Property(ctx context.Context, name string) (string, error) {
	var value any
	if err := e.driver.run(ctx, chromedp.JavascriptAttribute(e.ids(), name, &value, chromedp.ByNodeID)); err != nil {
		return "", err
	}
	if value == nil {
		return "", nil
	}
	return fmt.Sprint(value), nil
}

var _ Driver = (*ChromeDriver)(nil)
