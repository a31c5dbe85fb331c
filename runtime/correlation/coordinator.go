// Package correlation implements the wait-condition coordinator: the
// fan-out/fan-in join registry parent flows suspend on while their spawned
// children run.
package correlation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/flowmesh/sagaflow/internal/clock"
	"github.com/flowmesh/sagaflow/service/scheduler"
)

// ErrNotFound is returned when no condition is registered for an id.
var ErrNotFound = errors.New("correlation: condition not found")

// CancelChildFunc receives cancellation signals emitted for unreported
// children when an any-join with CancelOthers resolves.
type CancelChildFunc func(ctx context.Context, childFlowID string)

// entry is the coordinator's private in-memory view of one registered join.
// Its mutex serialises the resolution algorithm per correlation id; entries
// for different ids never contend.
type entry struct {
	mu         sync.Mutex
	resolved   bool
	resolution Resolution
	done       chan struct{}
}

// Coordinator owns the registered wait conditions: it applies completion
// events atomically per correlation id, fires timeouts through the
// scheduler, and wakes suspended parents with a Resolution.
type Coordinator struct {
	dao       DAO
	scheduler *scheduler.Service
	cancel    CancelChildFunc

	mu      sync.Mutex
	entries map[string]*entry
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithCancelChildFunc sets the sink for CancelOthers signals.
func WithCancelChildFunc(fn CancelChildFunc) Option {
	return func(c *Coordinator) { c.cancel = fn }
}

// New creates a coordinator persisting through dao and timing out through
// sched.
func New(dao DAO, sched *scheduler.Service, opts ...Option) *Coordinator {
	c := &Coordinator{
		dao:       dao,
		scheduler: sched,
		entries:   make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register stores a new wait condition and arms its timeout. It fails with
// ErrAlreadyExists when the correlation id is still in use.
func (c *Coordinator) Register(ctx context.Context, condition *Condition) error {
	if condition == nil || condition.CorrelationID == "" {
		return fmt.Errorf("correlation: condition id is required")
	}
	if condition.CreatedAt.IsZero() {
		condition.CreatedAt = clock.Now()
	}
	if err := c.dao.Set(ctx, condition); err != nil {
		return err
	}

	e := &entry{done: make(chan struct{})}
	c.mu.Lock()
	c.entries[condition.CorrelationID] = e
	c.mu.Unlock()

	if condition.Timeout > 0 && c.scheduler != nil {
		return c.armTimeout(ctx, e, condition)
	}
	return nil
}

// armTimeout schedules the deadline for a registered condition and persists
// the schedule id. It holds the entry lock throughout and re-reads the
// stored condition before writing: a completion slipping in after the entry
// became visible must not have its results overwritten.
func (c *Coordinator) armTimeout(ctx context.Context, e *entry, condition *Condition) error {
	id := condition.CorrelationID
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.resolved {
		return nil
	}
	scheduleID := c.scheduler.Schedule(condition.Timeout, func() {
		c.handleTimeout(context.Background(), id)
	})
	condition.ScheduleID = scheduleID
	stored, err := c.dao.Get(ctx, id)
	if err != nil {
		return err
	}
	if stored == nil {
		return nil
	}
	stored.ScheduleID = scheduleID
	return c.dao.Update(ctx, stored)
}

// Condition returns a copy of the stored condition for inspection.
func (c *Coordinator) Condition(ctx context.Context, correlationID string) (*Condition, error) {
	condition, err := c.dao.Get(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	if condition == nil {
		return nil, nil
	}
	e := c.entry(correlationID)
	if e == nil {
		return condition.Clone(), nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return condition.Clone(), nil
}

// HandleCompletion applies one child completion event. Per correlation id
// the algorithm is atomic: duplicate events for a child flow are discarded,
// accepted events append to Results and bump CompletedCount, and the join
// resolves according to its type. Events for resolved or unknown joins are
// dropped.
func (c *Coordinator) HandleCompletion(ctx context.Context, completion *Completion) error {
	if completion == nil || completion.ParentCorrelationID == "" {
		return fmt.Errorf("correlation: completion requires a parent correlation id")
	}
	id := completion.ParentCorrelationID
	e := c.entry(id)
	if e == nil {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.resolved {
		// late event, the join already resolved (possibly by timeout)
		return nil
	}
	condition, err := c.dao.Get(ctx, id)
	if err != nil {
		return err
	}
	if condition == nil {
		return ErrNotFound
	}
	if condition.HasResult(completion.FlowID) {
		// idempotent de-duplication, no double counting
		return nil
	}

	condition.Results = append(condition.Results, completion)
	condition.CompletedCount++

	resolved := false
	switch condition.Type {
	case TypeAny:
		resolved = true
	default:
		resolved = condition.CompletedCount >= condition.ExpectedCount
	}
	if err := c.dao.Update(ctx, condition); err != nil {
		return err
	}
	if !resolved {
		return nil
	}

	if condition.ScheduleID != "" && c.scheduler != nil {
		c.scheduler.Cancel(condition.ScheduleID)
	}
	if condition.Type == TypeAny && condition.CancelOthers && c.cancel != nil {
		for _, child := range condition.PendingChildren() {
			c.cancel(ctx, child)
		}
	}
	e.resolution = Resolution{Outcome: OutcomeCompleted, Results: condition.Clone().Results}
	e.resolved = true
	close(e.done)
	return nil
}

// handleTimeout resolves a join by deadline, carrying whatever results were
// collected so far. A completion that acquired the entry lock first wins the
// race; the timeout then observes resolved and backs off.
func (c *Coordinator) handleTimeout(ctx context.Context, correlationID string) {
	e := c.entry(correlationID)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.resolved {
		return
	}
	condition, err := c.dao.Get(ctx, correlationID)
	if err != nil || condition == nil {
		return
	}
	e.resolution = Resolution{Outcome: OutcomeTimedOut, Results: condition.Clone().Results}
	e.resolved = true
	close(e.done)
}

// Wait suspends until the join resolves or ctx is done.
func (c *Coordinator) Wait(ctx context.Context, correlationID string) (Resolution, error) {
	e := c.entry(correlationID)
	if e == nil {
		return Resolution{}, ErrNotFound
	}
	select {
	case <-e.done:
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.resolution, nil
	case <-ctx.Done():
		return Resolution{}, ctx.Err()
	}
}

// Remove discards a resolved (or abandoned) join, releasing its correlation
// id for reuse.
func (c *Coordinator) Remove(ctx context.Context, correlationID string) error {
	c.mu.Lock()
	delete(c.entries, correlationID)
	c.mu.Unlock()
	return c.dao.Delete(ctx, correlationID)
}

// Recover rebuilds the in-memory entries from the DAO after a restart.
// Conditions with a timeout are re-armed with their full duration.
func (c *Coordinator) Recover(ctx context.Context) (int, error) {
	conditions, err := c.dao.List(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, condition := range conditions {
		id := condition.CorrelationID
		e := &entry{done: make(chan struct{})}
		c.mu.Lock()
		_, known := c.entries[id]
		if !known {
			c.entries[id] = e
		}
		c.mu.Unlock()
		if known {
			continue
		}
		if condition.Timeout > 0 && c.scheduler != nil {
			if err := c.armTimeout(ctx, e, condition); err != nil {
				return count, err
			}
		}
		count++
	}
	return count, nil
}

func (c *Coordinator) entry(correlationID string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[correlationID]
}
