package engine

import (
	"context"
	"regexp"
	"time"

	"github.com/unsubkit/unsubkit/internal/browser"
)

// providerSelector is one known consent-management-platform accept button.
// Order in the table is priority order.
type providerSelector struct {
	Provider string
	Selector string
}

var consentProviderSelectors = []providerSelector{
	{"onetrust", "#onetrust-accept-btn-handler"},
	{"cookiebot", "#CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll"},
	{"cookiebot", "#CybotCookiebotDialogBodyButtonAccept"},
	{"quantcast", "#qc-cmp2-ui button[mode='primary']"},
	{"trustarc", "#truste-consent-button"},
	{"didomi", "#didomi-notice-agree-button"},
	{"complianz", ".cmplz-accept"},
	{"osano", ".osano-cm-accept-all"},
	{"cookie-law-info", "#cookie_action_close_header"},
	{"cookieyes", ".cky-btn-accept"},
	{"google", "button#L2AGLb"},
}

// Generic fallback: interactive elements whose accessible text is an
// accept-style phrase. Anchored so "Accept" matches but "Accept terms and
// subscribe" does not.
var consentTextPattern = regexp.MustCompile(`(?i)^\s*(accept( all)?( cookies)?|i agree|agree|allow( all)?( cookies)?|continue|ok(ay)?|got it|yes)\s*$`)

// Markers whose visibility means some consent UI is still up. Used to decide
// whether a click-less round can end the scan early.
var consentMarkers = []string{
	"#onetrust-banner-sdk",
	"#CybotCookiebotDialog",
	".qc-cmp2-container",
	"#truste-consent-track",
	"#didomi-host",
	".cmplz-cookiebanner",
	".osano-cm-window",
	".cky-consent-container",
	"[id*='cookie-banner']",
	"[class*='cookie-consent']",
	"[class*='cookie-notice']",
}

const (
	consentClickTimeout = 3 * time.Second
	consentSettleBudget = 5 * time.Second
	consentPollDelay    = 750 * time.Millisecond
)

// consentHandler clears cookie/consent overlays across the page and its
// nested frames. Best-effort by contract: budget exhaustion returns partial
// progress, never an error.
type consentHandler struct {
	sleep func(time.Duration)
	now   func() time.Time
}

func newConsentHandler(sleep func(time.Duration), now func() time.Time) *consentHandler {
	return &consentHandler{sleep: sleep, now: now}
}

// firstProviderMatch walks frames in order and provider selectors in
// priority order, returning the first position where visible() reports a
// hit. Pure over the visibility predicate so the matching logic is testable
// without a browser.
func firstProviderMatch(frameCount int, visible func(frameIdx int, selector string) bool) (int, providerSelector, bool) {
	for i := 0; i < frameCount; i++ {
		for _, prov := range consentProviderSelectors {
			if visible(i, prov.Selector) {
				return i, prov, true
			}
		}
	}
	return 0, providerSelector{}, false
}

// Dismiss scans all frames each round, clicking provider accept buttons
// first and accept-style text matches second, waiting for the page to settle
// after every successful click. Returns true iff at least one dismissal
// click occurred.
func (h *consentHandler) Dismiss(ctx context.Context, page browser.Page, budget time.Duration, rl *RunLog) bool {
	deadline := h.now().Add(budget)
	clicked := false

	for h.now().Before(deadline) {
		frames, err := page.Frames(ctx)
		if err != nil || len(frames) == 0 {
			return clicked
		}

		if h.clickRound(ctx, page, frames, rl) {
			clicked = true
			continue
		}

		// No click this round: if no consent UI marker is visible
		// anywhere, the page is clear.
		if !h.anyMarkerVisible(ctx, frames) {
			return clicked
		}

		h.sleep(consentPollDelay)
	}

	rl.Debug("consent scan budget elapsed", map[string]any{"clicked": clicked})
	return clicked
}

func (h *consentHandler) clickRound(ctx context.Context, page browser.Page, frames []browser.Frame, rl *RunLog) bool {
	frameIdx, prov, found := firstProviderMatch(len(frames), func(i int, sel string) bool {
		ok, err := frames[i].HasVisible(ctx, sel)
		return err == nil && ok
	})
	if found {
		if err := frames[frameIdx].Click(ctx, prov.Selector, consentClickTimeout); err == nil {
			rl.Info("consent banner dismissed", map[string]any{
				"provider": prov.Provider,
				"selector": prov.Selector,
				"frame":    frameIdx,
			})
			_ = page.WaitSettled(ctx, consentSettleBudget)
			return true
		}
	}

	for i, f := range frames {
		ok, err := f.ClickByText(ctx, consentTextPattern, consentClickTimeout)
		if err != nil || !ok {
			continue
		}
		rl.Info("consent banner dismissed via text match", map[string]any{"frame": i})
		_ = page.WaitSettled(ctx, consentSettleBudget)
		return true
	}

	return false
}

func (h *consentHandler) anyMarkerVisible(ctx context.Context, frames []browser.Frame) bool {
	for _, f := range frames {
		for _, marker := range consentMarkers {
			if ok, err := f.HasVisible(ctx, marker); err == nil && ok {
				return true
			}
		}
	}
	return false
}
