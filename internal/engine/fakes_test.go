package engine

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/unsubkit/unsubkit/internal/browser"
	"github.com/unsubkit/unsubkit/internal/oracle"
)

// fakeClock drives injectable now/sleep so grace windows run instantly.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakePage implements browser.Page in memory. Behaviors default to success
// and can be overridden per test via the hook funcs.
type fakePage struct {
	url  string
	text string
	html string

	visible map[string]bool // selector -> visible (shared by page and frames)

	onClick       func(selector string) error
	onClickByText func(pattern *regexp.Regexp) (bool, error)
	onNavigate    func(url string) error

	extraFrames []browser.Frame

	clicks      []string
	textClicks  int
	fills       map[string]string
	selects     map[string]string
	checks      []string
	scrolls     []string
	reloads     int
	navigations []string
	mouseMoves  int
	wheels      int
	keyPresses  int
	screenshots int
	closed      bool

	screenshotData []byte
	screenshotErr  error
}

func newFakePage() *fakePage {
	return &fakePage{
		url:            "https://example.com/unsubscribe",
		visible:        map[string]bool{},
		fills:          map[string]string{},
		selects:        map[string]string{},
		screenshotData: []byte("png-bytes"),
	}
}

func (p *fakePage) HasVisible(ctx context.Context, selector string) (bool, error) {
	return p.visible[selector], nil
}

func (p *fakePage) Click(ctx context.Context, selector string, timeout time.Duration) error {
	if p.onClick != nil {
		if err := p.onClick(selector); err != nil {
			return err
		}
	}
	p.clicks = append(p.clicks, selector)
	return nil
}

func (p *fakePage) ClickByText(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) (bool, error) {
	if p.onClickByText != nil {
		ok, err := p.onClickByText(pattern)
		if ok {
			p.textClicks++
		}
		return ok, err
	}
	return false, nil
}

func (p *fakePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if p.onNavigate != nil {
		if err := p.onNavigate(url); err != nil {
			return err
		}
	}
	p.navigations = append(p.navigations, url)
	p.url = url
	return nil
}

func (p *fakePage) Reload(ctx context.Context) error {
	p.reloads++
	return nil
}

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) HTML(ctx context.Context) (string, error) { return p.html, nil }
func (p *fakePage) Text(ctx context.Context) (string, error) { return p.text, nil }

func (p *fakePage) Frames(ctx context.Context) ([]browser.Frame, error) {
	frames := []browser.Frame{p}
	return append(frames, p.extraFrames...), nil
}

func (p *fakePage) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	p.fills[selector] = value
	return nil
}

func (p *fakePage) SelectOption(ctx context.Context, selector, value string, timeout time.Duration) error {
	p.selects[selector] = value
	return nil
}

func (p *fakePage) Check(ctx context.Context, selector string, timeout time.Duration) error {
	p.checks = append(p.checks, selector)
	return nil
}

func (p *fakePage) ScrollIntoView(ctx context.Context, selector string, timeout time.Duration) error {
	p.scrolls = append(p.scrolls, selector)
	return nil
}

func (p *fakePage) WaitSettled(ctx context.Context, timeout time.Duration) error { return nil }

func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error) {
	p.screenshots++
	if p.screenshotErr != nil {
		return nil, p.screenshotErr
	}
	return p.screenshotData, nil
}

func (p *fakePage) MouseMove(ctx context.Context, x, y float64) error {
	p.mouseMoves++
	return nil
}

func (p *fakePage) Wheel(ctx context.Context, deltaY float64) error {
	p.wheels++
	return nil
}

func (p *fakePage) PressKey(ctx context.Context, key string) error {
	p.keyPresses++
	return nil
}

func (p *fakePage) Close(ctx context.Context) error {
	p.closed = true
	return nil
}

// fakeFrame is a standalone nested-iframe double for consent scans.
type fakeFrame struct {
	visible map[string]bool
	clicks  []string
}

func (f *fakeFrame) HasVisible(ctx context.Context, selector string) (bool, error) {
	return f.visible[selector], nil
}

func (f *fakeFrame) Click(ctx context.Context, selector string, timeout time.Duration) error {
	f.clicks = append(f.clicks, selector)
	// A clicked banner goes away.
	f.visible[selector] = false
	return nil
}

func (f *fakeFrame) ClickByText(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) (bool, error) {
	return false, nil
}

// fakeLauncher hands out a prepared page, or fails if the run should never
// touch the browser.
type fakeLauncher struct {
	page     *fakePage
	pages    int
	lastOpts browser.PageOptions
}

func (l *fakeLauncher) NewPage(ctx context.Context, opts browser.PageOptions) (browser.Page, error) {
	l.pages++
	l.lastOpts = opts
	return l.page, nil
}

func (l *fakeLauncher) Close(ctx context.Context) error { return nil }

// fakePlanner returns canned plans in order, repeating the last one.
type fakePlanner struct {
	plans []*oracle.Plan
	err   error
	calls int
}

func (p *fakePlanner) NextPlan(ctx context.Context, pc oracle.PageContext) (*oracle.Plan, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	if len(p.plans) == 0 {
		return &oracle.Plan{}, nil
	}
	idx := p.calls - 1
	if idx >= len(p.plans) {
		idx = len(p.plans) - 1
	}
	return p.plans[idx], nil
}
