package engine

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/unsubkit/unsubkit/internal/browser"
)

// Phrases that identify an anti-automation verification screen in visible
// body text. Matching is case-insensitive; any single phrase suffices.
var challengePhrases = []string{
	"captcha",
	"hcaptcha",
	"recaptcha",
	"verify you are human",
	"prove you are human",
	"are you a robot",
	"security check",
	"checking if the site connection is secure",
	"checking your browser",
	"complete the following challenge",
	"unusual traffic",
}

// Selector patterns for challenge containers and iframes. Any visible match
// suffices.
var challengeSelectors = []string{
	"iframe[src*='recaptcha']",
	"iframe[src*='hcaptcha']",
	"iframe[src*='turnstile']",
	"iframe[src*='challenge']",
	".g-recaptcha",
	".h-captcha",
	".cf-turnstile",
	"#challenge-form",
	"#cf-challenge-running",
	"#px-captcha",
}

// Branding widget shown by challenge providers even when the widget itself
// is off-screen.
const challengeBadgeSelector = ".grecaptcha-badge"

// challengeMonitor detects anti-automation challenges and waits them out
// within a hard grace ceiling. Challenges are often transient or resolve
// once background scripts finish, so a bounded wait avoids both false
// failure and infinite hang.
type challengeMonitor struct {
	interval time.Duration
	grace    time.Duration
	sleep    func(time.Duration)
	rng      *rand.Rand
	now      func() time.Time
}

func newChallengeMonitor(interval, grace time.Duration, sleep func(time.Duration), rng *rand.Rand, now func() time.Time) *challengeMonitor {
	return &challengeMonitor{
		interval: interval,
		grace:    grace,
		sleep:    sleep,
		rng:      rng,
		now:      now,
	}
}

// IsChallengePresent checks all detection signals on the current page. The
// check is read-only: two calls on an unchanged page agree.
func (m *challengeMonitor) IsChallengePresent(ctx context.Context, page browser.Page) bool {
	if text, err := page.Text(ctx); err == nil {
		haystack := strings.ToLower(text)
		for _, phrase := range challengePhrases {
			if strings.Contains(haystack, phrase) {
				return true
			}
		}
	}

	for _, sel := range challengeSelectors {
		if ok, err := page.HasVisible(ctx, sel); err == nil && ok {
			return true
		}
	}

	if ok, err := page.HasVisible(ctx, challengeBadgeSelector); err == nil && ok {
		return true
	}

	return false
}

// AwaitClearance returns true once the challenge is gone, false if it
// persisted for the whole grace window. Between polls it performs low-risk
// simulated human input and reloads the page on every third attempt.
func (m *challengeMonitor) AwaitClearance(ctx context.Context, page browser.Page, rl *RunLog) bool {
	if !m.IsChallengePresent(ctx, page) {
		return true
	}

	rl.Warn("challenge detected, waiting for clearance", map[string]any{
		"grace": m.grace.String(),
	})

	deadline := m.now().Add(m.grace)
	attempt := 0

	for {
		attempt++

		if attempt%3 == 0 {
			if err := page.Reload(ctx); err != nil {
				rl.Warn("challenge wait: reload failed", map[string]any{"error": err.Error()})
			} else {
				rl.Debug("challenge wait: page reloaded", map[string]any{"attempt": attempt})
			}
		}

		m.nudge(ctx, page)

		jitter := time.Duration(m.rng.Int63n(int64(1500 * time.Millisecond)))
		m.sleep(m.interval + jitter)

		if !m.IsChallengePresent(ctx, page) {
			rl.Info("challenge cleared", map[string]any{"attempt": attempt})
			return true
		}

		if !m.now().Before(deadline) {
			rl.Warn("challenge persisted past grace window", map[string]any{
				"attempts": attempt,
			})
			return false
		}
	}
}

// nudge performs harmless humanized input: a mouse glide, a scroll-wheel
// tick, a bare modifier tap. Never targets elements, never fails the caller.
func (m *challengeMonitor) nudge(ctx context.Context, page browser.Page) {
	x := 100 + m.rng.Float64()*700
	y := 100 + m.rng.Float64()*400
	_ = page.MouseMove(ctx, x, y)

	delta := float64(40 + m.rng.Intn(120))
	if m.rng.Intn(2) == 0 {
		delta = -delta
	}
	_ = page.Wheel(ctx, delta)

	if m.rng.Intn(3) == 0 {
		_ = page.PressKey(ctx, "Shift")
	}
}
