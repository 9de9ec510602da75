package browser

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// ChromedpLauncher is the fallback capability backend for environments
// without the Playwright driver. It speaks CDP directly. Limitation: frame
// enumeration reports only the top document, so overlay scans inside
// cross-origin iframes degrade to the main frame.
type ChromedpLauncher struct {
	headless bool
}

func NewChromedpLauncher(headless bool) *ChromedpLauncher {
	return &ChromedpLauncher{headless: headless}
}

func (l *ChromedpLauncher) NewPage(ctx context.Context, opts PageOptions) (Page, error) {
	allocOpts := append([]chromedp.ExecAllocatorOption{},
		chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.Flag("headless", l.headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		allocOpts = append(allocOpts, chromedp.WindowSize(opts.ViewportWidth, opts.ViewportHeight))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	pageCtx, cancelPage := chromedp.NewContext(allocCtx)

	if opts.Diag != nil {
		diag := opts.Diag
		chromedp.ListenTarget(pageCtx, func(ev interface{}) {
			switch e := ev.(type) {
			case *runtime.EventConsoleAPICalled:
				if e.Type == runtime.APITypeError {
					var parts []string
					for _, arg := range e.Args {
						if arg.Description != "" {
							parts = append(parts, arg.Description)
						} else if len(arg.Value) > 0 {
							parts = append(parts, string(arg.Value))
						}
					}
					diag("console", strings.Join(parts, " "))
				}
			case *network.EventResponseReceived:
				if e.Response != nil && e.Response.Status >= 400 {
					diag("network", fmt.Sprintf("%d %s", e.Response.Status, e.Response.URL))
				}
			}
		})
	}

	// Start the browser process and enable network events up front.
	if err := chromedp.Run(pageCtx, network.Enable()); err != nil {
		cancelPage()
		cancelAlloc()
		return nil, fmt.Errorf("start chrome failed: %w", err)
	}

	return &cdpPage{
		ctx:        pageCtx,
		cancelPage: cancelPage,
		cancelExec: cancelAlloc,
	}, nil
}

func (l *ChromedpLauncher) Close(ctx context.Context) error {
	// Each page owns its own chrome process; nothing shared to release.
	return nil
}

type cdpPage struct {
	ctx        context.Context
	cancelPage context.CancelFunc
	cancelExec context.CancelFunc
}

func (p *cdpPage) run(timeout time.Duration, actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	return chromedp.Run(ctx, actions...)
}

func (p *cdpPage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	return p.run(timeout, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

func (p *cdpPage) Reload(ctx context.Context) error {
	return p.run(30*time.Second, chromedp.Reload())
}

func (p *cdpPage) URL() string {
	var u string
	_ = p.run(5*time.Second, chromedp.Location(&u))
	return u
}

func (p *cdpPage) HTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(10*time.Second, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (p *cdpPage) Text(ctx context.Context) (string, error) {
	var text string
	err := p.run(10*time.Second, chromedp.Text("body", &text, chromedp.ByQuery))
	return text, err
}

func (p *cdpPage) Frames(ctx context.Context) ([]Frame, error) {
	// Top document only; see ChromedpLauncher doc.
	return []Frame{p}, nil
}

const visibleJS = `(() => {
	const els = document.querySelectorAll(%q);
	for (const el of els) {
		const r = el.getBoundingClientRect();
		const st = window.getComputedStyle(el);
		if (r.width > 0 && r.height > 0 &&
			st.visibility !== 'hidden' && st.display !== 'none') {
			return true;
		}
	}
	return false;
})()`

func (p *cdpPage) HasVisible(ctx context.Context, selector string) (bool, error) {
	var found bool
	err := p.run(5*time.Second, chromedp.Evaluate(fmt.Sprintf(visibleJS, selector), &found))
	return found, err
}

func (p *cdpPage) Click(ctx context.Context, selector string, timeout time.Duration) error {
	return p.run(timeout, chromedp.Click(selector, chromedp.ByQuery))
}

const clickByTextJS = `(() => {
	const re = new RegExp(%q, 'i');
	const els = document.querySelectorAll(%q);
	for (const el of els) {
		const txt = (el.innerText || el.value || el.getAttribute('aria-label') || '').trim();
		if (!re.test(txt)) continue;
		const r = el.getBoundingClientRect();
		const st = window.getComputedStyle(el);
		if (r.width > 0 && r.height > 0 &&
			st.visibility !== 'hidden' && st.display !== 'none') {
			el.click();
			return true;
		}
	}
	return false;
})()`

func (p *cdpPage) ClickByText(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) (bool, error) {
	// JS regexes take the flag separately, not Go's inline (?i).
	expr := strings.TrimPrefix(pattern.String(), "(?i)")
	var clicked bool
	err := p.run(timeout, chromedp.Evaluate(
		fmt.Sprintf(clickByTextJS, expr, interactiveSelector), &clicked))
	return clicked, err
}

func (p *cdpPage) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	return p.run(timeout, chromedp.SetValue(selector, value, chromedp.ByQuery))
}

const selectOptionJS = `(() => {
	const el = document.querySelector(%q);
	if (!el) return false;
	el.value = %q;
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})()`

func (p *cdpPage) SelectOption(ctx context.Context, selector, value string, timeout time.Duration) error {
	var ok bool
	if err := p.run(timeout, chromedp.Evaluate(
		fmt.Sprintf(selectOptionJS, selector, value), &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("select %q: element not found", selector)
	}
	return nil
}

const checkJS = `(() => {
	const el = document.querySelector(%q);
	if (!el) return false;
	el.checked = true;
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})()`

func (p *cdpPage) Check(ctx context.Context, selector string, timeout time.Duration) error {
	var ok bool
	if err := p.run(timeout, chromedp.Evaluate(
		fmt.Sprintf(checkJS, selector), &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("check %q: element not found", selector)
	}
	return nil
}

func (p *cdpPage) ScrollIntoView(ctx context.Context, selector string, timeout time.Duration) error {
	return p.run(timeout, chromedp.ScrollIntoView(selector, chromedp.ByQuery))
}

func (p *cdpPage) WaitSettled(ctx context.Context, timeout time.Duration) error {
	if err := p.run(timeout, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return err
	}
	time.Sleep(settleDelay)
	return nil
}

func (p *cdpPage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := p.run(15*time.Second, chromedp.FullScreenshot(&buf, 90))
	return buf, err
}

func (p *cdpPage) MouseMove(ctx context.Context, x, y float64) error {
	return p.run(5*time.Second, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx)
	}))
}

func (p *cdpPage) Wheel(ctx context.Context, deltaY float64) error {
	return p.run(5*time.Second, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseWheel, 200, 200).
			WithDeltaX(0).
			WithDeltaY(deltaY).
			Do(ctx)
	}))
}

func (p *cdpPage) PressKey(ctx context.Context, key string) error {
	return p.run(5*time.Second, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := input.DispatchKeyEvent(input.KeyRawDown).WithKey(key).Do(ctx); err != nil {
			return err
		}
		return input.DispatchKeyEvent(input.KeyUp).WithKey(key).Do(ctx)
	}))
}

func (p *cdpPage) Close(ctx context.Context) error {
	p.cancelPage()
	p.cancelExec()
	return nil
}
