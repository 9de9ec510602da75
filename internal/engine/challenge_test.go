package engine

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestMonitor(clock *fakeClock) *challengeMonitor {
	return newChallengeMonitor(
		4*time.Second,
		45*time.Second,
		clock.Sleep,
		rand.New(rand.NewSource(42)),
		clock.Now,
	)
}

func TestIsChallengePresentByPhrase(t *testing.T) {
	clock := newFakeClock()
	m := newTestMonitor(clock)
	page := newFakePage()
	page.text = "Please verify you are human to continue."

	assert.True(t, m.IsChallengePresent(context.Background(), page))
}

func TestIsChallengePresentBySelector(t *testing.T) {
	clock := newFakeClock()
	m := newTestMonitor(clock)
	page := newFakePage()
	page.text = "Welcome"
	page.visible["iframe[src*='recaptcha']"] = true

	assert.True(t, m.IsChallengePresent(context.Background(), page))
}

func TestIsChallengePresentIdempotent(t *testing.T) {
	clock := newFakeClock()
	m := newTestMonitor(clock)
	page := newFakePage()
	page.text = "Checking your browser before accessing the site."

	first := m.IsChallengePresent(context.Background(), page)
	second := m.IsChallengePresent(context.Background(), page)
	assert.Equal(t, first, second)

	page.text = "All done."
	first = m.IsChallengePresent(context.Background(), page)
	second = m.IsChallengePresent(context.Background(), page)
	assert.Equal(t, first, second)
	assert.False(t, first)
}

func TestAwaitClearanceImmediateWhenAbsent(t *testing.T) {
	clock := newFakeClock()
	m := newTestMonitor(clock)
	page := newFakePage()
	page.text = "Unsubscribe preferences"

	start := clock.Now()
	assert.True(t, m.AwaitClearance(context.Background(), page, NewRunLog("r", nil)))
	assert.Equal(t, start, clock.Now(), "no waiting when no challenge")
	assert.Zero(t, page.mouseMoves)
}

func TestAwaitClearancePersistedChallenge(t *testing.T) {
	clock := newFakeClock()
	m := newTestMonitor(clock)
	page := newFakePage()
	page.text = "Prove you are human"

	start := clock.Now()
	cleared := m.AwaitClearance(context.Background(), page, NewRunLog("r", nil))

	assert.False(t, cleared)
	elapsed := clock.Now().Sub(start)
	assert.GreaterOrEqual(t, elapsed, 45*time.Second, "waits the full grace window")
	assert.Less(t, elapsed, 60*time.Second, "does not wait far past the ceiling")
	assert.GreaterOrEqual(t, page.reloads, 2, "reloads on every third attempt")
	assert.Greater(t, page.mouseMoves, 0, "nudges between polls")
	assert.Greater(t, page.wheels, 0)
}

func TestAwaitClearanceChallengeClearsMidway(t *testing.T) {
	clock := newFakeClock()
	m := newTestMonitor(clock)
	page := newFakePage()
	page.text = "Security check"

	// The challenge resolves after ~10 simulated seconds.
	deadline := clock.Now().Add(10 * time.Second)
	m.sleep = func(d time.Duration) {
		clock.Sleep(d)
		if clock.Now().After(deadline) {
			page.text = "You have been unsubscribed"
		}
	}

	cleared := m.AwaitClearance(context.Background(), page, NewRunLog("r", nil))
	assert.True(t, cleared)
	assert.Less(t, clock.Now().Sub(deadline), 20*time.Second)
}
