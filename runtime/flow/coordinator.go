// Package flow implements the flow execution coordinator: the saga-style
// run loop that executes step commands through the dispatch bus, checkpoints
// snapshots, and unwinds registered compensations when a flow fails.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/flowmesh/sagaflow/internal/clock"
	"github.com/flowmesh/sagaflow/internal/idgen"
	"github.com/flowmesh/sagaflow/model"
	"github.com/flowmesh/sagaflow/model/state"
	"github.com/flowmesh/sagaflow/runtime/correlation"
	"github.com/flowmesh/sagaflow/service/dao"
	"github.com/flowmesh/sagaflow/service/dao/store"
	"github.com/flowmesh/sagaflow/service/dispatch"
	"github.com/flowmesh/sagaflow/service/scheduler"
	"github.com/flowmesh/sagaflow/tracing"
)

// Body is the function a flow runs: it receives the live flow context and
// returns the committed output or the error that triggers rollback.
type Body func(ctx context.Context, f *Flow) (interface{}, error)

// CompletionSink receives the completion a finished child flow reports.
// The default sink feeds the wait-condition coordinator directly; the root
// service swaps in an event publisher.
type CompletionSink func(ctx context.Context, completion *correlation.Completion) error

func newFlowID() string { return idgen.New() }

func newJoinID() string { return idgen.New() }

// Coordinator owns flow execution: it begins flows, runs their bodies,
// checkpoints snapshots through the store, resolves joins through the
// wait-condition coordinator, and journals compensation failures.
type Coordinator struct {
	dispatcher  dispatch.Service
	store       Store
	waits       *correlation.Coordinator
	journal     dao.Service[string, CompensationFailure]
	completions CompletionSink

	mu      sync.Mutex
	active  map[string]*Flow
	cancels map[string]context.CancelFunc
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithStore sets the snapshot store backing checkpoints.
func WithStore(s Store) Option {
	return func(c *Coordinator) { c.store = s }
}

// WithWaitCoordinator sets the join coordinator; when absent one is built
// over an in-memory DAO and the default scheduler.
func WithWaitCoordinator(w *correlation.Coordinator) Option {
	return func(c *Coordinator) { c.waits = w }
}

// WithJournal sets the compensation-failure journal.
func WithJournal(j dao.Service[string, CompensationFailure]) Option {
	return func(c *Coordinator) { c.journal = j }
}

// WithCompletionSink sets where child flows report their completions.
func WithCompletionSink(sink CompletionSink) Option {
	return func(c *Coordinator) { c.completions = sink }
}

// New creates a flow coordinator dispatching steps through dispatcher.
func New(dispatcher dispatch.Service, opts ...Option) *Coordinator {
	c := &Coordinator{
		dispatcher: dispatcher,
		active:     make(map[string]*Flow),
		cancels:    make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.waits == nil {
		c.waits = correlation.New(correlation.NewMemoryDAO(), scheduler.Default(),
			correlation.WithCancelChildFunc(func(ctx context.Context, childFlowID string) {
				c.CancelFlow(ctx, childFlowID)
			}))
	}
	if c.journal == nil {
		c.journal = store.NewMemoryStore[string, CompensationFailure](func(f *CompensationFailure) string { return f.ID })
	}
	if c.completions == nil {
		c.completions = func(ctx context.Context, completion *correlation.Completion) error {
			return c.waits.HandleCompletion(ctx, completion)
		}
	}
	return c
}

// Waits exposes the join coordinator, for wiring completion listeners.
func (c *Coordinator) Waits() *correlation.Coordinator { return c.waits }

// beginOptions collects per-flow settings.
type beginOptions struct {
	flowID        string
	correlationID int64
	state         state.State
	position      model.Position
}

// BeginOption customises one flow instance.
type BeginOption func(*beginOptions)

// WithFlowID pins the flow instance id instead of generating one.
func WithFlowID(id string) BeginOption {
	return func(o *beginOptions) { o.flowID = id }
}

// WithCorrelationID pins the instance correlation id; it must be strictly
// positive.
func WithCorrelationID(id int64) BeginOption {
	return func(o *beginOptions) { o.correlationID = id }
}

// WithState attaches the flow's business state.
func WithState(s state.State) BeginOption {
	return func(o *beginOptions) { o.state = s }
}

// WithPosition sets the flow's starting position.
func WithPosition(p model.Position) BeginOption {
	return func(o *beginOptions) { o.position = p }
}

// Begin creates a new flow instance in the Created phase, registers it in
// the active table and persists its initial snapshot. Each instance gets a
// fresh id and a strictly positive correlation id unless the caller pins
// them; its step count starts at zero with an empty compensation stack.
// Release the instance with Close.
func (c *Coordinator) Begin(ctx context.Context, name string, opts ...BeginOption) (*Flow, error) {
	var o beginOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.flowID == "" {
		o.flowID = newFlowID()
	}
	if o.correlationID == 0 {
		o.correlationID = idgen.CorrelationID()
	}
	if o.correlationID <= 0 {
		return nil, fmt.Errorf("flow: correlation id must be strictly positive, had %v", o.correlationID)
	}

	f := &Flow{
		name:          name,
		flowID:        o.flowID,
		correlationID: o.correlationID,
		coordinator:   c,
		phase:         PhaseCreated,
		position:      o.position,
		state:         o.state,
	}

	c.mu.Lock()
	if _, ok := c.active[f.flowID]; ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("flow: id %v is already active", f.flowID)
	}
	c.active[f.flowID] = f
	c.mu.Unlock()

	if c.store != nil {
		snapshot := NewSnapshot(f.flowID, f.state)
		snapshot.Position = f.position
		ok, err := c.store.Create(ctx, snapshot)
		if err != nil {
			c.release(f.flowID)
			return nil, err
		}
		if !ok {
			c.release(f.flowID)
			return nil, fmt.Errorf("flow: snapshot for %v already exists", f.flowID)
		}
		f.mu.Lock()
		f.snapshot = snapshot
		f.mu.Unlock()
	}
	return f, nil
}

// Flow returns the active flow instance for id, nil when none.
func (c *Coordinator) Flow(flowID string) *Flow {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active[flowID]
}

// Run executes a flow body as a saga. On success the compensation stack is
// discarded and the outcome commits with the body's output. On any failure,
// cancellation included, the stack unwinds top-down with every compensation
// dispatched exactly once; compensation failures are journaled and attached
// to the outcome but never replace the original cause. Run returns an
// outcome in every case, it does not raise.
func (c *Coordinator) Run(ctx context.Context, name string, body Body, opts ...BeginOption) *Outcome {
	f, err := c.Begin(ctx, name, opts...)
	if err != nil {
		return &Outcome{Err: err}
	}
	defer f.Close()

	outcome := &Outcome{FlowID: f.ID(), CorrelationID: f.CorrelationID()}

	ctx, span := tracing.StartSpan(ctx, "flow.run", "internal")
	span.WithAttributes(map[string]string{"flow.name": name, "flow.id": f.ID()})
	defer func() { tracing.EndSpan(span, outcome.Err) }()

	f.transition(PhaseRunning)

	var output interface{}
	if err = ctx.Err(); err == nil {
		output, err = body(ctx, f)
	}
	if err == nil {
		f.transition(PhaseCommitted)
		c.finish(ctx, f, model.StatusCompleted, "")
		outcome.Committed = true
		outcome.Output = output
		return outcome
	}

	outcome.Err = err
	outcome.Cancelled = IsCancellation(err) || ctx.Err() != nil
	outcome.CompensationFailures = c.rollback(ctx, f)
	f.transition(PhaseRolledBack)
	status := model.StatusFailed
	if outcome.Cancelled {
		status = model.StatusCancelled
	}
	c.finish(ctx, f, status, err.Error())
	return outcome
}

// RunChild starts a child flow in its own goroutine and returns its flow id
// immediately. When the child finishes it reports a completion carrying the
// join id through the completion sink; the child is independently
// cancellable through CancelFlow until then.
func (c *Coordinator) RunChild(ctx context.Context, joinID, name string, body Body) string {
	childID := newFlowID()
	childCtx := c.registerCancel(ctx, childID)
	c.startChild(ctx, childCtx, childID, joinID, name, body)
	return childID
}

// registerCancel derives the child's cancellable context and registers its
// cancel func, so CancelFlow can reach the child before it even started.
func (c *Coordinator) registerCancel(ctx context.Context, childID string) context.Context {
	childCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancels[childID] = cancel
	c.mu.Unlock()
	return childCtx
}

func (c *Coordinator) startChild(ctx, childCtx context.Context, childID, joinID, name string, body Body) {
	go func() {
		defer func() {
			c.mu.Lock()
			cancel := c.cancels[childID]
			delete(c.cancels, childID)
			c.mu.Unlock()
			if cancel != nil {
				cancel()
			}
		}()
		outcome := c.Run(childCtx, name, body, WithFlowID(childID))
		completion := &correlation.Completion{
			FlowID:              childID,
			ParentCorrelationID: joinID,
			Success:             outcome.Committed,
			Error:               outcome.Message(),
			Result:              outcome.Output,
		}
		// report over a detached context: the child may have been
		// cancelled precisely because the join already resolved
		err := c.completions(context.WithoutCancel(ctx), completion)
		if err != nil && !errors.Is(err, correlation.ErrNotFound) {
			log.Printf("flow: completion for %v dropped: %v", childID, err)
		}
	}()
}

// CancelFlow cancels a running child flow cooperatively. It reports whether
// a cancellable flow was found.
func (c *Coordinator) CancelFlow(_ context.Context, flowID string) bool {
	c.mu.Lock()
	cancel, ok := c.cancels[flowID]
	c.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// CompensationFailures returns the journaled compensation failures for a
// flow, oldest first.
func (c *Coordinator) CompensationFailures(ctx context.Context, flowID string) ([]*CompensationFailure, error) {
	records, err := c.journal.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*CompensationFailure
	for _, record := range records {
		if record.FlowID == flowID {
			out = append(out, record)
		}
	}
	return out, nil
}

// rollback unwinds the flow's compensation stack in reverse registration
// order over a detached context, so compensations still run when the flow
// failed by cancellation. Each entry is dispatched exactly once; failures
// are journaled and returned, never escalated.
func (c *Coordinator) rollback(ctx context.Context, f *Flow) []*CompensationFailure {
	stack := f.drainCompensations()
	if len(stack) == 0 {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracing.StartSpan(ctx, "flow.rollback", "internal")
	defer tracing.EndSpan(span, nil)

	var failures []*CompensationFailure
	for _, entry := range stack {
		result, err := c.dispatcher.Dispatch(ctx, entry.command)
		message := ""
		switch {
		case err != nil:
			message = err.Error()
		case result != nil && !result.Success:
			message = result.Error
		default:
			continue
		}
		failure := &CompensationFailure{
			ID:         idgen.New(),
			FlowID:     f.ID(),
			Step:       entry.step,
			Command:    entry.command.Name,
			Error:      message,
			OccurredAt: clock.Now(),
		}
		failures = append(failures, failure)
		if err := c.journal.Save(ctx, failure); err != nil {
			log.Printf("flow: journaling compensation failure for %v: %v", f.ID(), err)
		}
	}
	return failures
}

// finish writes the terminal snapshot status, best effort.
func (c *Coordinator) finish(ctx context.Context, f *Flow, status model.Status, message string) {
	if c.store == nil {
		return
	}
	f.mu.Lock()
	snapshot := f.snapshot
	if snapshot == nil {
		f.mu.Unlock()
		return
	}
	snapshot.Status = status
	snapshot.Error = message
	snapshot.CurrentStep = f.stepCount
	snapshot.UpdatedAt = clock.Now()
	f.mu.Unlock()
	if _, err := c.store.Update(context.WithoutCancel(ctx), snapshot); err != nil {
		log.Printf("flow: terminal checkpoint for %v: %v", f.ID(), err)
	}
}

func (c *Coordinator) release(flowID string) {
	c.mu.Lock()
	delete(c.active, flowID)
	c.mu.Unlock()
}
