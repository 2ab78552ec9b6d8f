// Package browser defines the Browser Session contract and its chromedp
// implementation: render a URL through a real JS-capable engine, surface
// the status code observed on the wire, and let a caller enumerate and
// click SPA-only elements that never become an <a href>.
package browser

import (
	"context"
	"net/http"
)

// NavigationResult is what a render produces, whether from an initial
// Navigate or from Activate-ing a clickable element.
type NavigationResult struct {
	FinalURL   string
	StatusCode int
	HTML       string
	Headers    http.Header
	UsedSPA    bool
}

// ClickableHandle references one interactive element on the current page,
// addressed by XPath so it survives being handed back across a call
// boundary (a raw DOM node reference would not).
type ClickableHandle struct {
	XPath string
	Text  string
}

// Session is one browser tab bound to a single Worker for the worker's
// entire run, reused across claimed URLs and only recycled when an
// outcome suggests the tab itself is in a bad state, within a bounded
// restart budget.
type Session interface {
	// Navigate loads url and waits for the page to reach a ready state.
	Navigate(ctx context.Context, url string) (NavigationResult, error)
	// EnumerateClickables lists candidate SPA-navigation elements on the
	// currently loaded page (links with no href, nav list items and menu
	// items, non-submit buttons, elements with router-style data
	// attributes).
	EnumerateClickables(ctx context.Context) ([]ClickableHandle, error)
	// Activate clicks handle, waits a fixed 300ms (bounded by the
	// navigation timeout), then returns the resulting page state. It does
	// not watch for network idle or for DOM mutations to stop.
	Activate(ctx context.Context, handle ClickableHandle) (NavigationResult, error)
	// Close releases the underlying tab.
	Close(ctx context.Context) error
}

// Factory creates Sessions. A Worker acquires one when it starts and
// again whenever it recycles a session within its restart budget,
// closing the previous one first.
type Factory interface {
	NewSession(ctx context.Context) (Session, error)
	// Shutdown releases the shared allocator/browser process.
	Shutdown(ctx context.Context) error
}
