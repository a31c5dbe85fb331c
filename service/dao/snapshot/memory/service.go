// Package memory provides the reference in-memory snapshot store with
// optimistic concurrency control.
package memory

import (
	"context"
	"reflect"
	"sync"

	"github.com/flowmesh/sagaflow/internal/clock"
	"github.com/flowmesh/sagaflow/runtime/flow"
	"github.com/flowmesh/sagaflow/service/dao"
	daosnapshot "github.com/flowmesh/sagaflow/service/dao/snapshot"
)

// Service keeps one live snapshot per flow id. Writers race through
// versions: an update carrying a stale version is rejected rather than
// applied, so the last reader to act on an old snapshot loses. Snapshots
// cross the store boundary by value: state is deep-copied through the
// codec, so callers never alias the stored payload.
type Service struct {
	mu        sync.RWMutex
	snapshots map[string]*flow.Snapshot
	codec     *daosnapshot.Codec
}

// Option customises a Service.
type Option func(*Service)

// WithCodec sets the state codec, typically one sharing the engine's type
// registry.
func WithCodec(codec *daosnapshot.Codec) Option {
	return func(s *Service) { s.codec = codec }
}

// New creates an empty store.
func New(opts ...Option) *Service {
	ret := &Service{snapshots: make(map[string]*flow.Snapshot)}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.codec == nil {
		ret.codec = daosnapshot.NewCodec(nil)
	}
	return ret
}

// clone copies the snapshot record together with its state payload.
func (s *Service) clone(src *flow.Snapshot) (*flow.Snapshot, error) {
	ret := src.Clone()
	st, err := s.codec.CloneState(src.State)
	if err != nil {
		return nil, err
	}
	ret.State = st
	return ret, nil
}

// Create inserts a snapshot, refusing to overwrite a live one. A zero
// version is initialised to 1 and the caller's snapshot is updated to
// match.
func (s *Service) Create(_ context.Context, snapshot *flow.Snapshot) (bool, error) {
	if snapshot == nil {
		return false, dao.ErrNilEntity
	}
	if snapshot.FlowID == "" {
		return false, dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snapshots[snapshot.FlowID]; ok {
		return false, nil
	}
	now := clock.Now()
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = now
	}
	snapshot.UpdatedAt = now
	if snapshot.Version == 0 {
		snapshot.Version = 1
	}
	stored, err := s.clone(snapshot)
	if err != nil {
		return false, err
	}
	s.snapshots[snapshot.FlowID] = stored
	return true, nil
}

// Get returns a copy of the stored snapshot, (nil, nil) when absent. When
// stateType is non-nil the stored state's concrete type must match, the
// guard against two flow types colliding on one id.
func (s *Service) Get(_ context.Context, flowID string, stateType reflect.Type) (*flow.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.snapshots[flowID]
	if !ok {
		return nil, nil
	}
	if stateType != nil && stored.State != nil && reflect.TypeOf(stored.State) != stateType {
		return nil, flow.ErrTypeMismatch
	}
	return s.clone(stored)
}

// Update applies a mutated snapshot when its version still matches the
// stored one, incrementing the version on success and refreshing the
// caller's copy. A stale version returns false with the snapshot untouched.
func (s *Service) Update(_ context.Context, snapshot *flow.Snapshot) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.snapshots[snapshot.FlowID]
	if !ok || stored.Version != snapshot.Version {
		return false, nil
	}
	snapshot.Version++
	snapshot.UpdatedAt = clock.Now()
	clone, err := s.clone(snapshot)
	if err != nil {
		snapshot.Version--
		return false, err
	}
	s.snapshots[snapshot.FlowID] = clone
	return true, nil
}

// Delete removes a snapshot, reporting whether one was present. Idempotent.
func (s *Service) Delete(_ context.Context, flowID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.snapshots[flowID]
	delete(s.snapshots, flowID)
	return ok, nil
}
