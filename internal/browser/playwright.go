package browser

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Load states understood by the settle wait.
const (
	LoadStateLoad             = "load"
	LoadStateDomcontentloaded = "domcontentloaded"
	LoadStateNetworkidle      = "networkidle"
)

const settleDelay = 500 * time.Millisecond

// consent/challenge scans click through this set of interactive elements
const interactiveSelector = "button, a, [role='button'], input[type='button'], input[type='submit']"

// PlaywrightLauncher runs a single Chromium process and hands out one
// isolated browser context per run.
type PlaywrightLauncher struct {
	pw       *playwright.Playwright
	browser  playwright.Browser
	headless bool
}

func NewPlaywrightLauncher(headless bool) (*PlaywrightLauncher, error) {
	if err := playwright.Install(); err != nil {
		return nil, fmt.Errorf("install pw failed: %w", err)
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start pw failed: %w", err)
	}

	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
		},
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium failed: %w", err)
	}

	return &PlaywrightLauncher{pw: pw, browser: b, headless: headless}, nil
}

func (l *PlaywrightLauncher) NewPage(ctx context.Context, opts PageOptions) (Page, error) {
	ctxOpts := playwright.BrowserNewContextOptions{}
	if opts.UserAgent != "" {
		ctxOpts.UserAgent = playwright.String(opts.UserAgent)
	}
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		ctxOpts.Viewport = &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		}
	}

	bctx, err := l.browser.NewContext(ctxOpts)
	if err != nil {
		return nil, fmt.Errorf("new browser context failed: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("new page failed: %w", err)
	}

	if opts.Diag != nil {
		diag := opts.Diag
		page.OnConsole(func(msg playwright.ConsoleMessage) {
			if msg.Type() == "error" {
				diag("console", msg.Text())
			}
		})
		page.OnResponse(func(resp playwright.Response) {
			if resp.Status() >= 400 {
				diag("network", fmt.Sprintf("%d %s", resp.Status(), resp.URL()))
			}
		})
	}

	return &pwPage{bctx: bctx, page: page}, nil
}

func (l *PlaywrightLauncher) Close(ctx context.Context) error {
	if l.browser != nil {
		_ = l.browser.Close()
	}
	if l.pw != nil {
		_ = l.pw.Stop()
	}
	return nil
}

type pwPage struct {
	bctx playwright.BrowserContext
	page playwright.Page
}

func (p *pwPage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	return err
}

func (p *pwPage) Reload(ctx context.Context) error {
	_, err := p.page.Reload()
	return err
}

func (p *pwPage) URL() string {
	return p.page.URL()
}

func (p *pwPage) HTML(ctx context.Context) (string, error) {
	return p.page.Content()
}

func (p *pwPage) Text(ctx context.Context) (string, error) {
	return p.page.Locator("body").InnerText(playwright.LocatorInnerTextOptions{
		Timeout: playwright.Float(5000),
	})
}

func (p *pwPage) Frames(ctx context.Context) ([]Frame, error) {
	pwFrames := p.page.Frames()
	frames := make([]Frame, 0, len(pwFrames))
	for _, f := range pwFrames {
		frames = append(frames, &pwFrame{frame: f})
	}
	return frames, nil
}

func (p *pwPage) HasVisible(ctx context.Context, selector string) (bool, error) {
	return (&pwFrame{frame: p.page.MainFrame()}).HasVisible(ctx, selector)
}

func (p *pwPage) Click(ctx context.Context, selector string, timeout time.Duration) error {
	return p.page.Click(selector, playwright.PageClickOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}

func (p *pwPage) ClickByText(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) (bool, error) {
	return (&pwFrame{frame: p.page.MainFrame()}).ClickByText(ctx, pattern, timeout)
}

func (p *pwPage) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	return p.page.Fill(selector, value, playwright.PageFillOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}

func (p *pwPage) SelectOption(ctx context.Context, selector, value string, timeout time.Duration) error {
	_, err := p.page.SelectOption(selector, playwright.SelectOptionValues{
		ValuesOrLabels: &[]string{value},
	}, playwright.PageSelectOptionOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	return err
}

func (p *pwPage) Check(ctx context.Context, selector string, timeout time.Duration) error {
	return p.page.Check(selector, playwright.PageCheckOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}

func (p *pwPage) ScrollIntoView(ctx context.Context, selector string, timeout time.Duration) error {
	return p.page.Locator(selector).First().ScrollIntoViewIfNeeded(
		playwright.LocatorScrollIntoViewIfNeededOptions{
			Timeout: playwright.Float(float64(timeout.Milliseconds())),
		})
}

func (p *pwPage) WaitSettled(ctx context.Context, timeout time.Duration) error {
	ms := float64(timeout.Milliseconds())

	state := playwright.LoadState(LoadStateDomcontentloaded)
	if err := p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   &state,
		Timeout: playwright.Float(ms),
	}); err != nil {
		return err
	}

	// Network idle is an allowance, not a requirement; busy pages never
	// reach it.
	idle := playwright.LoadState(LoadStateNetworkidle)
	_ = p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   &idle,
		Timeout: playwright.Float(ms / 2),
	})

	time.Sleep(settleDelay)
	return nil
}

func (p *pwPage) Screenshot(ctx context.Context) ([]byte, error) {
	return p.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Type:     playwright.ScreenshotTypePng,
	})
}

func (p *pwPage) MouseMove(ctx context.Context, x, y float64) error {
	return p.page.Mouse().Move(x, y)
}

func (p *pwPage) Wheel(ctx context.Context, deltaY float64) error {
	return p.page.Mouse().Wheel(0, deltaY)
}

func (p *pwPage) PressKey(ctx context.Context, key string) error {
	return p.page.Keyboard().Press(key)
}

func (p *pwPage) Close(ctx context.Context) error {
	if p.bctx != nil {
		return p.bctx.Close()
	}
	return nil
}

type pwFrame struct {
	frame playwright.Frame
}

func (f *pwFrame) HasVisible(ctx context.Context, selector string) (bool, error) {
	loc := f.frame.Locator(selector).First()
	count, err := loc.Count()
	if err != nil || count == 0 {
		return false, err
	}
	return loc.IsVisible()
}

func (f *pwFrame) Click(ctx context.Context, selector string, timeout time.Duration) error {
	return f.frame.Click(selector, playwright.FrameClickOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}

func (f *pwFrame) ClickByText(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) (bool, error) {
	loc := f.frame.Locator(interactiveSelector, playwright.FrameLocatorOptions{
		HasText: pattern,
	}).First()

	count, err := loc.Count()
	if err != nil || count == 0 {
		return false, err
	}
	visible, err := loc.IsVisible()
	if err != nil || !visible {
		return false, err
	}
	if err := loc.Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	}); err != nil {
		return false, err
	}
	return true, nil
}
