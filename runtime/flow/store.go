package flow

import (
	"context"
	"errors"
	"reflect"
)

// ErrTypeMismatch is returned by Store.Get when the stored state's concrete
// type differs from the requested one.
var ErrTypeMismatch = errors.New("flow: snapshot state type mismatch")

// Store is the persistence boundary a snapshot backend must implement.
// Absent keys are reported through false/nil results rather than errors so
// callers branch without error handling for routine misses; at most one live
// snapshot exists per flow id.
type Store interface {
	// Create inserts a new snapshot. It returns false when the flow id is
	// already present and never overwrites.
	Create(ctx context.Context, snapshot *Snapshot) (bool, error)

	// Get returns a copy of the stored snapshot, or (nil, nil) when absent.
	// A non-nil stateType asserts the concrete type of the stored state;
	// a mismatch fails with ErrTypeMismatch.
	Get(ctx context.Context, flowID string, stateType reflect.Type) (*Snapshot, error)

	// Update persists a mutated snapshot. A stale Version is rejected with
	// false; on success the stored Version increments and the passed
	// snapshot's Version is refreshed to match.
	Update(ctx context.Context, snapshot *Snapshot) (bool, error)

	// Delete removes the snapshot, returning false when the id is absent.
	// Idempotent.
	Delete(ctx context.Context, flowID string) (bool, error)
}
