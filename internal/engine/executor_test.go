package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unsubkit/unsubkit/internal/oracle"
)

func newTestExecutor(clock *fakeClock) *actionExecutor {
	consent := newConsentHandler(clock.Sleep, clock.Now)
	return newActionExecutor(10*time.Second, consent, nil, clock.Sleep, clock.Now)
}

func TestExecuteClickSuccess(t *testing.T) {
	clock := newFakeClock()
	e := newTestExecutor(clock)
	page := newFakePage()

	rec := e.Execute(context.Background(), page, oracle.PlanAction{
		Action:      "click",
		Selector:    "#confirm",
		Description: "confirm unsubscription",
	}, NewRunLog("r", nil))

	assert.Equal(t, "success", rec.Result)
	assert.Empty(t, rec.Error)
	assert.Equal(t, []string{"#confirm"}, page.clicks)
	assert.False(t, rec.StartedAt.After(rec.FinishedAt))
	assert.Equal(t, rec.FinishedAt.Sub(rec.StartedAt).Milliseconds(), rec.DurationMS)
}

func TestExecuteAllKinds(t *testing.T) {
	clock := newFakeClock()
	e := newTestExecutor(clock)
	page := newFakePage()
	rl := NewRunLog("r", nil)
	ctx := context.Background()

	kinds := []oracle.PlanAction{
		{Action: "type", Selector: "#email", Value: "me@example.com"},
		{Action: "select", Selector: "#reason", Value: "too-many-emails"},
		{Action: "check", Selector: "#confirm-box"},
		{Action: "scroll", Selector: "#footer"},
		{Action: "wait", Value: "250"},
	}
	for _, a := range kinds {
		rec := e.Execute(ctx, page, a, rl)
		assert.Equal(t, "success", rec.Result, "action %s", a.Action)
	}

	assert.Equal(t, "me@example.com", page.fills["#email"])
	assert.Equal(t, "too-many-emails", page.selects["#reason"])
	assert.Equal(t, []string{"#confirm-box"}, page.checks)
	assert.Equal(t, []string{"#footer"}, page.scrolls)
}

func TestExecuteUnknownKind(t *testing.T) {
	clock := newFakeClock()
	e := newTestExecutor(clock)
	page := newFakePage()

	rec := e.Execute(context.Background(), page, oracle.PlanAction{
		Action:   "teleport",
		Selector: "#x",
	}, NewRunLog("r", nil))

	assert.Empty(t, rec.Result)
	assert.Contains(t, rec.Error, "unknown action kind")
	assert.Empty(t, page.clicks, "no action performed")
}

func TestExecuteOverlayRetryOnce(t *testing.T) {
	clock := newFakeClock()
	e := newTestExecutor(clock)
	page := newFakePage()
	page.visible["#onetrust-accept-btn-handler"] = true

	attempts := 0
	page.onClick = func(sel string) error {
		if sel == "#onetrust-accept-btn-handler" {
			page.visible[sel] = false
			return nil
		}
		attempts++
		if attempts == 1 {
			return errors.New("element is not visible: intercepts pointer events")
		}
		return nil
	}

	rec := e.Execute(context.Background(), page, oracle.PlanAction{
		Action:   "click",
		Selector: "#unsub",
	}, NewRunLog("r", nil))

	assert.Equal(t, "success", rec.Result)
	assert.Equal(t, 2, attempts, "retried exactly once")
	assert.Contains(t, page.clicks, "#onetrust-accept-btn-handler", "consent cleared between attempts")
}

func TestExecuteOverlayRetryOnlyOnce(t *testing.T) {
	clock := newFakeClock()
	e := newTestExecutor(clock)
	page := newFakePage()

	attempts := 0
	page.onClick = func(sel string) error {
		attempts++
		return errors.New("timeout 10000ms exceeded waiting for selector")
	}

	rec := e.Execute(context.Background(), page, oracle.PlanAction{
		Action:   "click",
		Selector: "#unsub",
	}, NewRunLog("r", nil))

	require.NotEmpty(t, rec.Error)
	assert.Equal(t, 2, attempts, "one retry, then the step fails")
}

func TestExecuteNonOverlayErrorNoRetry(t *testing.T) {
	clock := newFakeClock()
	e := newTestExecutor(clock)
	page := newFakePage()

	attempts := 0
	page.onClick = func(sel string) error {
		attempts++
		return errors.New("net::ERR_CONNECTION_REFUSED")
	}

	rec := e.Execute(context.Background(), page, oracle.PlanAction{
		Action:   "click",
		Selector: "#unsub",
	}, NewRunLog("r", nil))

	assert.NotEmpty(t, rec.Error)
	assert.Equal(t, 1, attempts, "non-overlay failures are not retried")
}

func TestParseWaitValue(t *testing.T) {
	assert.Equal(t, 250*time.Millisecond, parseWaitValue("250"))
	assert.Equal(t, 2*time.Second, parseWaitValue("2s"))
	assert.Equal(t, defaultWaitValue, parseWaitValue(""))
	assert.Equal(t, defaultWaitValue, parseWaitValue("soon"))
	assert.Equal(t, defaultWaitValue, parseWaitValue("-5"))
}
