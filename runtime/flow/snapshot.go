package flow

import (
	"time"

	"github.com/flowmesh/sagaflow/internal/clock"
	"github.com/flowmesh/sagaflow/model"
	"github.com/flowmesh/sagaflow/model/state"
	"github.com/flowmesh/sagaflow/runtime/correlation"
)

// Snapshot is the durable, versioned checkpoint of one flow instance. The
// store owns the live snapshot exclusively; the coordinator only ever holds
// transient copies, so a snapshot obtained from a store can be mutated and
// written back without racing other flows.
type Snapshot struct {
	FlowID      string      `json:"flowID"`
	State       state.State `json:"state"`
	CurrentStep int            `json:"currentStep"`
	Position    model.Position `json:"position,omitempty"`
	Status      model.Status `json:"status"`
	Error       string       `json:"error,omitempty"`

	// WaitCondition is present while the flow is suspended on a join.
	WaitCondition *correlation.Condition `json:"waitCondition,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Version backs optimistic concurrency: a store rejects an update whose
	// Version does not match the stored one and increments it on success.
	Version int `json:"version"`
}

// NewSnapshot creates a running snapshot for the given flow and state.
func NewSnapshot(flowID string, st state.State) *Snapshot {
	now := clock.Now()
	if st != nil && st.FlowID() == "" {
		st.SetFlowID(flowID)
	}
	return &Snapshot{
		FlowID:    flowID,
		State:     st,
		Status:    model.StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone copies the snapshot record. The State reference is carried over
// as-is; stores deep-copy the payload through the snapshot codec before
// handing a snapshot across the store boundary.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	clone := *s
	clone.WaitCondition = s.WaitCondition.Clone()
	return &clone
}

// WithStatus returns a copy carrying the new status and error message.
func (s *Snapshot) WithStatus(status model.Status, errMsg string) *Snapshot {
	clone := s.Clone()
	clone.Status = status
	clone.Error = errMsg
	clone.UpdatedAt = clock.Now()
	return clone
}
