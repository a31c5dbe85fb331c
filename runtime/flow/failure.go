package flow

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// StepFailure is the structured failure a flow body raises to abort the
// flow: the failing step's name, a message and the step count at which it
// occurred.
type StepFailure struct {
	Step      string
	Message   string
	StepCount int
}

func (e *StepFailure) Error() string {
	return fmt.Sprintf("step %q failed after %d step(s): %s", e.Step, e.StepCount, e.Message)
}

// NewStepFailure builds a StepFailure for the given step.
func NewStepFailure(step, message string, stepCount int) *StepFailure {
	return &StepFailure{Step: step, Message: message, StepCount: stepCount}
}

// CompensationFailure records one failed compensating command during
// rollback. Failures are journaled, never escalated: the remaining
// compensations still run and the flow's overall outcome keeps the original
// cause.
type CompensationFailure struct {
	ID         string    `json:"id"`
	FlowID     string    `json:"flowID"`
	Step       int       `json:"step"`
	Command    string    `json:"command"`
	Error      string    `json:"error"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Outcome is what callers of Run always receive: a committed value or a
// rolled-back failure, never a raised fault (programming errors excepted).
type Outcome struct {
	FlowID        string
	CorrelationID int64
	Committed     bool
	Output        interface{}
	Err           error

	// Cancelled marks a rollback triggered by cooperative cancellation.
	Cancelled bool

	// CompensationFailures lists compensations that failed during rollback.
	CompensationFailures []*CompensationFailure
}

// Failed reports whether the flow rolled back.
func (o *Outcome) Failed() bool { return !o.Committed }

// Message renders the failure cause, empty on success.
func (o *Outcome) Message() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// IsCancellation reports whether err is rooted in context cancellation.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
