// Package browser defines the minimal browser-automation capability the scraper needs
// and provides a headless Chrome implementation built on chromedp.
package browser

import "context"

// Driver is a live browser page. Implementations are not safe for concurrent use;
// a Driver is owned by exactly one caller at a time.
type Driver interface {
	// Navigate loads url in the current tab and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error
	// FindElements returns every element matching selector (CSS or XPath).
	// No match is not an error.
	FindElements(ctx context.Context, selector string) ([]Element, error)
	// Evaluate runs a JavaScript expression and decodes its result into res.
	// A nil res discards the result.
	Evaluate(ctx context.Context, script string, res any) error
	// CurrentURL returns the URL of the loaded document.
	CurrentURL(ctx context.Context) (string, error)
	// Quit shuts the browser down. Safe to call more than once.
	Quit() error
}

// Element is a handle to a DOM node obtained from FindElements.
type Element interface {
	// ID identifies the node within its document, for deduplication.
	ID() string
	Click(ctx context.Context) error
	SendKeys(ctx context.Context, text string) error
	ScrollIntoView(ctx context.Context) error
	// Property reads a live JavaScript property (e.g. the absolute "href").
	Property(ctx context.Context, name string) (string, error)
}
