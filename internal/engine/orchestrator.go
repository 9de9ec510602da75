package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unsubkit/unsubkit/internal/browser"
	"github.com/unsubkit/unsubkit/internal/oracle"
)

// Engine drives the per-link unsubscribe state machine:
//
//	Init → Navigating → ConsentGate → ChallengeGate →
//	loop { Planning → Executing → Reclassifying } → Done | Failed
//
// One Run call produces exactly one UnsubscribeResult; every terminal path
// carries the step history, the full log, its JSONL export and the run id.
type Engine struct {
	launcher browser.Launcher
	planner  oracle.Planner
	zlog     *zap.Logger
	settings Settings

	sleep             func(time.Duration)
	now               func() time.Time
	rng               *rand.Rand
	overlaySignatures []string
	newRunID          func() string
}

type EngineOption func(*Engine)

// WithSleep replaces the delay function so grace windows and backoff are
// deterministic under test.
func WithSleep(f func(time.Duration)) EngineOption {
	return func(e *Engine) { e.sleep = f }
}

// WithClock replaces the time source.
func WithClock(f func() time.Time) EngineOption {
	return func(e *Engine) { e.now = f }
}

// WithRand seeds jitter and identity selection.
func WithRand(r *rand.Rand) EngineOption {
	return func(e *Engine) { e.rng = r }
}

// WithOverlaySignatures overrides the executor's overlay-failure policy
// table.
func WithOverlaySignatures(sigs []string) EngineOption {
	return func(e *Engine) { e.overlaySignatures = sigs }
}

// WithRunIDFunc replaces run id generation (tests want stable ids).
func WithRunIDFunc(f func() string) EngineOption {
	return func(e *Engine) { e.newRunID = f }
}

func New(launcher browser.Launcher, planner oracle.Planner, zlog *zap.Logger, settings Settings, opts ...EngineOption) *Engine {
	if zlog == nil {
		zlog = zap.NewNop()
	}
	if settings.MaxSteps <= 0 {
		settings = DefaultSettings()
	}
	e := &Engine{
		launcher: launcher,
		planner:  planner,
		zlog:     zlog,
		settings: settings,
		sleep:    time.Sleep,
		now:      time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run bundles the per-run state the terminal paths need.
type run struct {
	link  Link
	rl    *RunLog
	page  browser.Page
	steps []StepRecord
}

// finalize snapshots the mutable run state into a result. Steps and logs
// are copied so the returned object never aliases live buffers.
func (r *run) finalize(res *UnsubscribeResult) *UnsubscribeResult {
	res.RunID = r.rl.RunID()
	res.Steps = make([]StepRecord, len(r.steps))
	copy(res.Steps, r.steps)
	res.Logs = r.rl.Entries()
	res.JSONLLogs = r.rl.JSONL()
	return res
}

// screenshot captures the full page as base64, best-effort.
func (r *run) screenshot(ctx context.Context) string {
	if r.page == nil {
		return ""
	}
	buf, err := r.page.Screenshot(ctx)
	if err != nil {
		r.rl.Warn("screenshot failed", map[string]any{"error": err.Error()})
		return ""
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// Run processes one unsubscribe link end to end.
func (e *Engine) Run(ctx context.Context, link Link) *UnsubscribeResult {
	runID := e.newRunID()
	rl := NewRunLog(runID, e.zlog)
	r := &run{link: link, rl: rl}

	rl.Info("run started", map[string]any{
		"url":    link.URL,
		"method": string(link.Method),
	})

	// Deferred email action: nothing for a browser to do.
	if link.Method == MethodMailto {
		rl.Info("mailto link, deferring to email", nil)
		return r.finalize(&UnsubscribeResult{
			Success: true,
			Method:  MethodMailto,
			Details: "Send email to " + link.URL,
		})
	}

	consent := newConsentHandler(e.sleep, e.now)
	challenge := newChallengeMonitor(e.settings.ChallengeInterval, e.settings.ChallengeGrace, e.sleep, e.rng, e.now)
	executor := newActionExecutor(e.settings.ActionTimeout, consent, e.overlaySignatures, e.sleep, e.now)

	identity := browser.PickIdentity(e.rng)
	page, err := e.launcher.NewPage(ctx, browser.PageOptions{
		UserAgent:      identity.UserAgent,
		ViewportWidth:  identity.ViewportWidth,
		ViewportHeight: identity.ViewportHeight,
		Diag: func(kind, message string) {
			rl.Debug("page diagnostic", map[string]any{"kind": kind, "message": message})
		},
	})
	if err != nil {
		rl.Error("browser context failed", map[string]any{"error": err.Error()})
		return r.finalize(&UnsubscribeResult{
			Success: false,
			Method:  MethodError,
			Error:   fmt.Sprintf("failed to open browser context: %v", err),
		})
	}
	r.page = page
	defer func() {
		// Release the context on every exit path; errors swallowed.
		_ = page.Close(context.Background())
	}()

	// Navigating. Failure here is fatal to the run.
	if err := page.Navigate(ctx, link.URL, e.settings.NavigationTimeout); err != nil {
		rl.Error("navigation failed", map[string]any{"url": link.URL, "error": err.Error()})
		return r.finalize(&UnsubscribeResult{
			Success:    false,
			Method:     MethodError,
			Error:      fmt.Sprintf("navigation failed: %v", err),
			Screenshot: r.screenshot(ctx),
		})
	}
	rl.Info("page loaded", map[string]any{"url": page.URL()})

	// ConsentGate before the first challenge check.
	consent.Dismiss(ctx, page, e.settings.ConsentBudget, rl)

	// ChallengeGate. A persistent challenge is a normal terminal outcome.
	if !challenge.AwaitClearance(ctx, page, rl) {
		return r.finalize(&UnsubscribeResult{
			Success:        false,
			Method:         link.Method,
			CaptchaBlocked: true,
			Details:        "anti-automation challenge persisted past the grace window",
			Screenshot:     r.screenshot(ctx),
		})
	}

	prior := "first visit; no actions executed yet"

	for step := 1; step <= e.settings.MaxSteps; step++ {
		rl.Info("planning", map[string]any{"step": step})

		html, err := page.HTML(ctx)
		if err != nil {
			rl.Warn("could not read page markup", map[string]any{"error": err.Error()})
		}

		plan, err := e.planner.NextPlan(ctx, oracle.PageContext{
			HTML:         html,
			URL:          page.URL(),
			PriorOutcome: prior,
		})
		if err != nil {
			// No parseable plan means no way to make progress.
			rl.Error("plan request failed", map[string]any{"error": err.Error()})
			return r.finalize(&UnsubscribeResult{
				Success:    false,
				Method:     MethodError,
				Error:      fmt.Sprintf("plan request failed: %v", err),
				Screenshot: r.screenshot(ctx),
			})
		}

		executed := 0
		failed := 0
		for _, action := range plan.Actions {
			rec := executor.Execute(ctx, page, action, rl)
			r.steps = append(r.steps, rec)
			executed++
			if rec.Error != "" {
				failed++
				rl.Warn("step failed", map[string]any{
					"action":   rec.Action,
					"selector": rec.Selector,
					"error":    rec.Error,
				})
			} else {
				rl.Info("step executed", map[string]any{
					"action":   rec.Action,
					"selector": rec.Selector,
				})
			}
		}

		_ = page.WaitSettled(ctx, consentSettleBudget)

		// Overlays and challenges can appear mid-flow.
		consent.Dismiss(ctx, page, retryConsentBudget, rl)
		if !challenge.AwaitClearance(ctx, page, rl) {
			return r.finalize(&UnsubscribeResult{
				Success:        false,
				Method:         link.Method,
				CaptchaBlocked: true,
				Details:        "anti-automation challenge appeared mid-flow and persisted",
				Screenshot:     r.screenshot(ctx),
			})
		}

		text, err := page.Text(ctx)
		if err != nil {
			rl.Warn("could not read page text", map[string]any{"error": err.Error()})
		}
		outcome := Classify(text)

		if plan.Finish || outcome.Success {
			rl.Info("run succeeded", map[string]any{
				"step":         step,
				"via":          successVia(plan.Finish, outcome.Success),
				"failed_steps": failed,
			})
			return r.finalize(&UnsubscribeResult{
				Success:    true,
				Method:     link.Method,
				Details:    "unsubscribe flow completed",
				Screenshot: r.screenshot(ctx),
			})
		}

		if outcome.Failure {
			rl.Warn("page reported failure", map[string]any{"step": step})
			return r.finalize(&UnsubscribeResult{
				Success:    false,
				Method:     link.Method,
				Error:      "page reported the unsubscribe attempt failed",
				Screenshot: r.screenshot(ctx),
			})
		}

		prior = fmt.Sprintf("round %d: executed %d actions (%d failed); no success or failure phrase on the page yet",
			step, executed, failed)
	}

	// Step budget exhausted without a terminal signal: explicit
	// indeterminate, neither success nor hard failure.
	rl.Warn("step budget exhausted", map[string]any{"max_steps": e.settings.MaxSteps})
	return r.finalize(&UnsubscribeResult{
		Success:    false,
		Method:     link.Method,
		Details:    fmt.Sprintf("step budget (%d) exhausted before a terminal signal; final status unknown", e.settings.MaxSteps),
		Screenshot: r.screenshot(ctx),
	})
}

func successVia(finish, phrase bool) string {
	switch {
	case finish && phrase:
		return "plan finish + success phrase"
	case finish:
		return "plan finish"
	default:
		return "success phrase"
	}
}
