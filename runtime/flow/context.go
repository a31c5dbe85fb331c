package flow

import (
	"context"
	"sync"

	"github.com/flowmesh/sagaflow/internal/clock"
	"github.com/flowmesh/sagaflow/model"
	"github.com/flowmesh/sagaflow/model/state"
	"github.com/flowmesh/sagaflow/runtime/correlation"
	"github.com/flowmesh/sagaflow/service/dispatch"
	"github.com/flowmesh/sagaflow/tracing"
)

// Phase is the execution phase of one flow instance. Transitions are
// monotonic: Created -> Running -> Committed or RolledBack; the terminal
// phases never change.
type Phase int

const (
	PhaseCreated Phase = iota
	PhaseRunning
	PhaseCommitted
	PhaseRolledBack
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseRunning:
		return "running"
	case PhaseCommitted:
		return "committed"
	case PhaseRolledBack:
		return "rolledBack"
	}
	return "unknown"
}

// compensation is one entry of the undo stack: the command to dispatch on
// rollback and the step count at which it was registered.
type compensation struct {
	step    int
	command *dispatch.Command
}

// Flow is the live execution context of one flow instance. It is handed to
// the body run by Coordinator.Run and is not safe for use after the body
// returns; all of its mutable state is private to the owning goroutine and
// the coordinator.
type Flow struct {
	name          string
	flowID        string
	correlationID int64
	coordinator   *Coordinator

	mu            sync.Mutex
	phase         Phase
	stepCount     int
	position      model.Position
	state         state.State
	snapshot      *Snapshot
	compensations []compensation
	closeOnce     sync.Once
}

// Name returns the flow type name.
func (f *Flow) Name() string { return f.name }

// ID returns the unique flow instance id.
func (f *Flow) ID() string { return f.flowID }

// CorrelationID returns the strictly positive instance correlation id.
func (f *Flow) CorrelationID() int64 { return f.correlationID }

// Phase returns the current execution phase.
func (f *Flow) Phase() Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase
}

// StepCount returns how many step executions were attempted so far.
func (f *Flow) StepCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stepCount
}

// State returns the flow's business state, nil when none was supplied.
func (f *Flow) State() state.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Position returns the flow's current position in its step tree.
func (f *Flow) Position() model.Position {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position
}

// SetPosition moves the flow to a new position; the next checkpoint
// persists it.
func (f *Flow) SetPosition(position model.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = position
}

// Execute dispatches one step command through the bus. The step count
// increments whether or not the dispatch succeeds, and pending cancellation
// is observed before the command runs. Business failures come back inside
// the Result; an error means the command never reached a handler. A failed
// Result does not abort the flow by itself: the body decides whether to
// return it as fatal or carry on.
func (f *Flow) Execute(ctx context.Context, command *dispatch.Command) (*dispatch.Result, error) {
	f.mu.Lock()
	f.stepCount++
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := ""
	if command != nil {
		name = command.Name
	}
	ctx, span := tracing.StartSpan(ctx, "flow.execute", "internal")
	span.WithAttributes(map[string]string{"flow.id": f.flowID, "command": name})
	result, err := f.coordinator.dispatcher.Dispatch(ctx, command)
	tracing.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	f.checkpoint(ctx)
	return result, nil
}

// RegisterCompensation pushes an undo command onto the compensation stack.
// On rollback the stack unwinds in reverse registration order and each
// entry is dispatched exactly once.
func (f *Flow) RegisterCompensation(command *dispatch.Command) {
	if command == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compensations = append(f.compensations, compensation{step: f.stepCount, command: command})
}

// Fail builds the structured error a body returns to abort the flow at the
// named step.
func (f *Flow) Fail(step, message string) error {
	return NewStepFailure(step, message, f.StepCount())
}

// Spawn starts a child flow reporting to the given join id when it
// finishes. It returns the child's flow id immediately; prefer
// AwaitChildren, which registers the join before any child can report.
func (f *Flow) Spawn(ctx context.Context, joinID, name string, body Body) string {
	return f.coordinator.RunChild(ctx, joinID, name, body)
}

// Child declares a child flow for AwaitChildren.
type Child struct {
	Name string
	Body Body
}

// AwaitChildren spawns the given children and suspends until the join
// resolves or ctx is done. The condition's expected count and child ids are
// filled in, the join is registered before the first child starts so no
// completion can outrun it, and the wait condition is checkpointed so a
// snapshot reader can see what the flow is suspended on. The resolution's
// outcome distinguishes completion from timeout; timed-out joins carry the
// partial results collected before the deadline.
func (f *Flow) AwaitChildren(ctx context.Context, condition *correlation.Condition, children ...Child) (correlation.Resolution, error) {
	c := f.coordinator
	if condition == nil {
		condition = &correlation.Condition{}
	}
	if condition.CorrelationID == "" {
		condition.CorrelationID = newJoinID()
	}
	if condition.Type == "" {
		condition.Type = correlation.TypeAll
	}
	condition.FlowID = f.flowID
	condition.FlowType = f.name
	condition.Step = f.StepCount()

	childIDs := make([]string, len(children))
	for i := range children {
		childIDs[i] = newFlowID()
	}
	condition.ChildFlowIDs = append(condition.ChildFlowIDs, childIDs...)
	if condition.ExpectedCount == 0 {
		condition.ExpectedCount = len(condition.ChildFlowIDs)
	}

	if err := c.waits.Register(ctx, condition); err != nil {
		return correlation.Resolution{}, err
	}
	f.setWaitCondition(ctx, condition)

	// every sibling's cancel func is in place before the first child runs,
	// so an any-join winner can always reach the others
	childCtxs := make([]context.Context, len(children))
	for i := range children {
		childCtxs[i] = c.registerCancel(ctx, childIDs[i])
	}
	for i, child := range children {
		c.startChild(ctx, childCtxs[i], childIDs[i], condition.CorrelationID, child.Name, child.Body)
	}

	ctx, span := tracing.StartSpan(ctx, "flow.await", "internal")
	span.WithAttributes(map[string]string{"flow.id": f.flowID, "correlation.id": condition.CorrelationID})
	resolution, err := c.waits.Wait(ctx, condition.CorrelationID)
	tracing.EndSpan(span, err)

	f.setWaitCondition(ctx, nil)
	if err != nil {
		return correlation.Resolution{}, err
	}
	_ = c.waits.Remove(ctx, condition.CorrelationID)
	return resolution, nil
}

// Close releases the flow from the coordinator's active table. Safe to call
// more than once; only the first call has effect.
func (f *Flow) Close() {
	f.closeOnce.Do(func() {
		if f.coordinator != nil {
			f.coordinator.release(f.flowID)
		}
	})
}

// transition advances the phase under the flow lock.
func (f *Flow) transition(phase Phase) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.phase == PhaseCommitted || f.phase == PhaseRolledBack {
		return
	}
	f.phase = phase
}

// checkpoint persists the snapshot after a successful step and, when the
// write lands, clears the state's dirty mask so the next checkpoint only
// carries fresh changes. Checkpointing is best effort: a stale or failed
// write never fails the step.
func (f *Flow) checkpoint(ctx context.Context) {
	store := f.coordinator.store
	if store == nil {
		return
	}
	f.mu.Lock()
	snapshot := f.snapshot
	if snapshot == nil {
		f.mu.Unlock()
		return
	}
	snapshot.CurrentStep = f.stepCount
	snapshot.Position = f.position
	snapshot.UpdatedAt = clock.Now()
	st := f.state
	f.mu.Unlock()

	ok, err := store.Update(ctx, snapshot)
	if err == nil && ok && st != nil {
		st.ClearChanges()
	}
}

// setWaitCondition records (or clears) the join the flow is suspended on
// and checkpoints it.
func (f *Flow) setWaitCondition(ctx context.Context, condition *correlation.Condition) {
	f.mu.Lock()
	if f.snapshot != nil {
		f.snapshot.WaitCondition = condition.Clone()
	}
	f.mu.Unlock()
	f.checkpoint(ctx)
}

// drainCompensations pops the whole undo stack in reverse registration
// order, leaving it empty so a second rollback attempt has nothing to redo.
func (f *Flow) drainCompensations() []compensation {
	f.mu.Lock()
	defer f.mu.Unlock()
	stack := f.compensations
	f.compensations = nil
	out := make([]compensation, 0, len(stack))
	for i := len(stack) - 1; i >= 0; i-- {
		out = append(out, stack[i])
	}
	return out
}
