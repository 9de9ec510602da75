package oracle

import "context"

// PlanAction is one proposed browser action. Action is validated by the
// executor, not here; the oracle is free-form and occasionally wrong.
type PlanAction struct {
	Action      string `json:"action"`
	Selector    string `json:"selector"`
	Value       string `json:"value,omitempty"`
	Description string `json:"description,omitempty"`
}

// Plan is the oracle's proposal for the next loop iteration.
type Plan struct {
	Actions []PlanAction `json:"actions"`
	Finish  bool         `json:"finish"`
}

// PageContext is everything the oracle needs per call. The oracle is
// stateless: each request is independent.
type PageContext struct {
	HTML         string
	URL          string
	PriorOutcome string
}

// Planner is the narrow contract the engine consumes. A test double can
// return canned plans.
type Planner interface {
	NextPlan(ctx context.Context, pc PageContext) (*Plan, error)
}
