// Package browser wraps a headless Chrome behind small interfaces so
// JS-rendered sources can be scraped and tested without a real browser.
package browser

import (
	"context"
	"time"
)

// Launcher starts a browser instance. Each instance is owned by one caller,
// which must Close it.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// Browser is a running browser process.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single tab. Pages must be closed independently of their browser.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// WaitVisible blocks until selector matches a visible node or timeout
	// elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Evaluate runs script in the page and JSON-decodes its result into out.
	Evaluate(ctx context.Context, script string, out any) error
	Close() error
}
