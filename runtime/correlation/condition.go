package correlation

import (
	"time"
)

// Type selects the join semantics of a wait condition.
type Type string

const (
	// TypeAll resolves once every expected child has reported.
	TypeAll Type = "all"
	// TypeAny resolves on the first accepted completion.
	TypeAny Type = "any"
)

// Completion is the notification a child flow emits when it finishes.
type Completion struct {
	FlowID              string      `json:"flowID"`
	ParentCorrelationID string      `json:"parentCorrelationID,omitempty"`
	Success             bool        `json:"success"`
	Error               string      `json:"error,omitempty"`
	Result              interface{} `json:"result,omitempty"`
}

// Condition represents a join point: a parent flow suspended until some or
// all of its spawned children report completion, or a timeout elapses. A
// correlation id identifies one join and is single-use until the condition
// is removed; one flow may open several joins over its life.
type Condition struct {
	CorrelationID  string        `json:"correlationID"`
	Type           Type          `json:"type"`
	ExpectedCount  int           `json:"expectedCount"`
	CompletedCount int           `json:"completedCount"`
	Timeout        time.Duration `json:"timeout,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`

	// parent flow identity and resume point
	FlowID   string `json:"flowID"`
	FlowType string `json:"flowType,omitempty"`
	Step     int    `json:"step"`

	CancelOthers bool          `json:"cancelOthers,omitempty"`
	ChildFlowIDs []string      `json:"childFlowIDs,omitempty"`
	Results      []*Completion `json:"results,omitempty"`

	// ScheduleID identifies the pending timeout timer, when any.
	ScheduleID string `json:"scheduleID,omitempty"`
}

// HasResult reports whether a completion for the given child flow id has
// already been accepted.
func (c *Condition) HasResult(flowID string) bool {
	for _, r := range c.Results {
		if r.FlowID == flowID {
			return true
		}
	}
	return false
}

// PendingChildren returns the spawned child ids that have not reported yet.
func (c *Condition) PendingChildren() []string {
	var out []string
	for _, id := range c.ChildFlowIDs {
		if !c.HasResult(id) {
			out = append(out, id)
		}
	}
	return out
}

// Clone creates a deep copy so callers can inspect a condition without
// racing the coordinator.
func (c *Condition) Clone() *Condition {
	if c == nil {
		return nil
	}
	clone := *c
	if len(c.ChildFlowIDs) > 0 {
		clone.ChildFlowIDs = append([]string(nil), c.ChildFlowIDs...)
	}
	if len(c.Results) > 0 {
		clone.Results = make([]*Completion, len(c.Results))
		for i, r := range c.Results {
			cr := *r
			clone.Results[i] = &cr
		}
	}
	return &clone
}

// Outcome distinguishes how a wait condition resolved.
type Outcome string

const (
	// OutcomeCompleted is the normal resolution.
	OutcomeCompleted Outcome = "completed"
	// OutcomeTimedOut carries whatever results were collected before the
	// deadline; waiting flows branch on it distinctly from completion.
	OutcomeTimedOut Outcome = "timedOut"
)

// Resolution is what a suspended parent receives when its join resolves.
type Resolution struct {
	Outcome Outcome
	Results []*Completion
}

// TimedOut reports whether the join resolved by deadline.
func (r Resolution) TimedOut() bool { return r.Outcome == OutcomeTimedOut }

// AllSucceeded reports whether every collected completion succeeded.
func (r Resolution) AllSucceeded() bool {
	for _, c := range r.Results {
		if !c.Success {
			return false
		}
	}
	return true
}
