package browser

import (
	"context"
	"regexp"
	"time"
)

// DiagFunc receives console/network diagnostics observed on a page.
// Diagnostics are informational only and never affect control flow.
type DiagFunc func(kind, message string)

// PageOptions configures one isolated browsing context.
type PageOptions struct {
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	Diag           DiagFunc
}

// Frame is the slice of the automation capability needed to scan a single
// document (top document or nested iframe) for dismissable UI.
type Frame interface {
	// HasVisible reports whether at least one element matching the CSS
	// selector is currently visible in this frame.
	HasVisible(ctx context.Context, selector string) (bool, error)

	// Click clicks the first element matching the selector, waiting up to
	// timeout for it to become actionable.
	Click(ctx context.Context, selector string, timeout time.Duration) error

	// ClickByText clicks the first visible interactive element (button,
	// link, role=button, submit input) whose accessible text matches the
	// pattern. Returns true iff a click happened.
	ClickByText(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) (bool, error)
}

// Page is the full automation capability one run owns. The top document
// doubles as a Frame so overlay scans treat it uniformly with iframes.
type Page interface {
	Frame

	Navigate(ctx context.Context, url string, timeout time.Duration) error
	Reload(ctx context.Context) error
	URL() string

	// HTML returns the full markup of the current document.
	HTML(ctx context.Context) (string, error)
	// Text returns the visible body text of the current document.
	Text(ctx context.Context) (string, error)

	// Frames enumerates all documents in the page, top frame first.
	Frames(ctx context.Context) ([]Frame, error)

	Fill(ctx context.Context, selector, value string, timeout time.Duration) error
	SelectOption(ctx context.Context, selector, value string, timeout time.Duration) error
	Check(ctx context.Context, selector string, timeout time.Duration) error
	ScrollIntoView(ctx context.Context, selector string, timeout time.Duration) error

	// WaitSettled waits for the document to reach a settled load state:
	// dom-ready, a short network-idle allowance, then a fixed settle delay.
	WaitSettled(ctx context.Context, timeout time.Duration) error

	// Screenshot captures a full-page PNG.
	Screenshot(ctx context.Context) ([]byte, error)

	// Low-risk humanized input used while waiting out challenges. These
	// never target specific elements and never fail the caller.
	MouseMove(ctx context.Context, x, y float64) error
	Wheel(ctx context.Context, deltaY float64) error
	PressKey(ctx context.Context, key string) error

	Close(ctx context.Context) error
}

// Launcher owns a browser process and hands out isolated pages.
type Launcher interface {
	NewPage(ctx context.Context, opts PageOptions) (Page, error)
	Close(ctx context.Context) error
}
