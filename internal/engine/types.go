package engine

import (
	"strings"
	"time"
)

// Method is how an unsubscribe link wants to be exercised. MAILTO links are
// deferred actions handled outside the browser; ERROR marks results of runs
// that aborted before reaching a terminal page state.
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodMailto Method = "MAILTO"
	MethodError  Method = "ERROR"
)

// Link is one unsubscribe candidate extracted from an email. Immutable; one
// per run.
type Link struct {
	URL    string `json:"url"`
	Text   string `json:"text"`
	Method Method `json:"method"`
}

// ActionKind is the closed set of browser actions the executor understands.
type ActionKind string

const (
	ActionClick  ActionKind = "click"
	ActionType   ActionKind = "type"
	ActionSelect ActionKind = "select"
	ActionCheck  ActionKind = "check"
	ActionScroll ActionKind = "scroll"
	ActionWait   ActionKind = "wait"
)

// ParseActionKind normalizes an oracle-proposed action name. Unknown kinds
// are a per-step terminal error, never a crash of the run.
func ParseActionKind(s string) (ActionKind, bool) {
	k := ActionKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case ActionClick, ActionType, ActionSelect, ActionCheck, ActionScroll, ActionWait:
		return k, true
	}
	return "", false
}

// StepRecord is the immutable outcome of one executed action. The executor
// returns it by value and the orchestrator appends it to the run history;
// nothing mutates a record after it is finished.
type StepRecord struct {
	Action      string    `json:"action"`
	Selector    string    `json:"selector"`
	Value       string    `json:"value,omitempty"`
	Description string    `json:"description,omitempty"`
	Result      string    `json:"result,omitempty"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	DurationMS  int64     `json:"durationMs"`
}

// UnsubscribeResult is the single terminal output of one run. Every exit
// path returns the same shape; only Success/CaptchaBlocked/Error differ.
type UnsubscribeResult struct {
	Success        bool         `json:"success"`
	Method         Method       `json:"method"`
	Error          string       `json:"error,omitempty"`
	Details        string       `json:"details,omitempty"`
	CaptchaBlocked bool         `json:"captchaBlocked,omitempty"`
	Steps          []StepRecord `json:"steps"`
	Screenshot     string       `json:"screenshot,omitempty"`
	Logs           []LogEntry   `json:"logs"`
	RunID          string       `json:"runId"`
	JSONLLogs      string       `json:"jsonlLogs,omitempty"`
}

// Settings carries the timing discipline of one engine instance.
type Settings struct {
	MaxSteps          int
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration
	ConsentBudget     time.Duration
	ChallengeGrace    time.Duration
	ChallengeInterval time.Duration
}

// DefaultSettings matches the production configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		MaxSteps:          8,
		NavigationTimeout: 30 * time.Second,
		ActionTimeout:     10 * time.Second,
		ConsentBudget:     12 * time.Second,
		ChallengeGrace:    45 * time.Second,
		ChallengeInterval: 4 * time.Second,
	}
}
