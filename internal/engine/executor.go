package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/unsubkit/unsubkit/internal/browser"
	"github.com/unsubkit/unsubkit/internal/oracle"
)

// DefaultOverlaySignatures are error-text fragments that usually mean an
// overlay is covering the target rather than the target being wrong. The
// table is a tunable policy, not hard-coded logic: automation backends with
// different error phrasing can override it per engine instance.
var DefaultOverlaySignatures = []string{
	"not visible",
	"hidden",
	"intercepts pointer events",
	"element is not attached",
	"detached",
	"outside of the viewport",
	"timeout",
	"waiting for selector",
	"waiting for locator",
}

const (
	retryConsentBudget = 4 * time.Second
	clickNavAllowance  = 3 * time.Second
	defaultWaitValue   = time.Second
)

// actionExecutor performs exactly one typed action per call and returns an
// immutable StepRecord. Failures never propagate as errors: the run
// continues to the next action.
type actionExecutor struct {
	timeout           time.Duration
	consent           *consentHandler
	overlaySignatures []string
	sleep             func(time.Duration)
	now               func() time.Time
}

func newActionExecutor(timeout time.Duration, consent *consentHandler, signatures []string, sleep func(time.Duration), now func() time.Time) *actionExecutor {
	if len(signatures) == 0 {
		signatures = DefaultOverlaySignatures
	}
	return &actionExecutor{
		timeout:           timeout,
		consent:           consent,
		overlaySignatures: signatures,
		sleep:             sleep,
		now:               now,
	}
}

// Execute runs one plan action against the page. On a failure that looks
// overlay-caused it clears consent once with a short budget and retries the
// action exactly once.
func (e *actionExecutor) Execute(ctx context.Context, page browser.Page, action oracle.PlanAction, rl *RunLog) StepRecord {
	rec := StepRecord{
		Action:      action.Action,
		Selector:    action.Selector,
		Value:       action.Value,
		Description: action.Description,
		StartedAt:   e.now(),
	}

	kind, ok := ParseActionKind(action.Action)
	if !ok {
		rl.Error("unknown action kind", map[string]any{"action": action.Action})
		return e.finish(rec, fmt.Errorf("unknown action kind %q", action.Action))
	}

	err := e.perform(ctx, page, kind, action)
	if err != nil && e.looksOverlayCaused(err) {
		rl.Warn("action failed with overlay signature, clearing consent and retrying", map[string]any{
			"action":   action.Action,
			"selector": action.Selector,
			"error":    err.Error(),
		})
		e.consent.Dismiss(ctx, page, retryConsentBudget, rl)
		_ = page.WaitSettled(ctx, consentSettleBudget)
		err = e.perform(ctx, page, kind, action)
	}

	return e.finish(rec, err)
}

func (e *actionExecutor) finish(rec StepRecord, err error) StepRecord {
	rec.FinishedAt = e.now()
	rec.DurationMS = rec.FinishedAt.Sub(rec.StartedAt).Milliseconds()
	if err != nil {
		rec.Error = err.Error()
	} else {
		rec.Result = "success"
	}
	return rec
}

func (e *actionExecutor) perform(ctx context.Context, page browser.Page, kind ActionKind, action oracle.PlanAction) error {
	switch kind {
	case ActionClick:
		if err := page.Click(ctx, action.Selector, e.timeout); err != nil {
			return err
		}
		// Clicks may trigger full-page navigation; give it a short
		// allowance so the next action does not race the load.
		_ = page.WaitSettled(ctx, clickNavAllowance)
		return nil

	case ActionType:
		return page.Fill(ctx, action.Selector, action.Value, e.timeout)

	case ActionSelect:
		return page.SelectOption(ctx, action.Selector, action.Value, e.timeout)

	case ActionCheck:
		return page.Check(ctx, action.Selector, e.timeout)

	case ActionScroll:
		return page.ScrollIntoView(ctx, action.Selector, e.timeout)

	case ActionWait:
		e.sleep(parseWaitValue(action.Value))
		return nil

	default:
		return fmt.Errorf("unknown action kind %q", kind)
	}
}

func (e *actionExecutor) looksOverlayCaused(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, sig := range e.overlaySignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// parseWaitValue accepts milliseconds ("1500") or a Go duration ("2s").
func parseWaitValue(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return defaultWaitValue
	}
	if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	return defaultWaitValue
}
