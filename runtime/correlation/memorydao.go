package correlation

import (
	"context"
	"sync"
)

// MemoryDAO stores wait conditions purely in memory; useful for unit tests
// and single-instance deployments.
type MemoryDAO struct {
	mu         sync.RWMutex
	conditions map[string]*Condition
}

func NewMemoryDAO() *MemoryDAO {
	return &MemoryDAO{conditions: make(map[string]*Condition)}
}

// Set registers a new condition, rejecting an id that is already in use.
func (d *MemoryDAO) Set(_ context.Context, condition *Condition) error {
	if condition == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.conditions[condition.CorrelationID]; ok {
		return ErrAlreadyExists
	}
	d.conditions[condition.CorrelationID] = condition
	return nil
}

func (d *MemoryDAO) Get(_ context.Context, correlationID string) (*Condition, error) {
	d.mu.RLock()
	c := d.conditions[correlationID]
	d.mu.RUnlock()
	return c, nil
}

// Update persists a mutated condition. Updating an unknown id stores it,
// which keeps restart recovery simple.
func (d *MemoryDAO) Update(_ context.Context, condition *Condition) error {
	if condition == nil {
		return nil
	}
	d.mu.Lock()
	d.conditions[condition.CorrelationID] = condition
	d.mu.Unlock()
	return nil
}

func (d *MemoryDAO) Delete(_ context.Context, correlationID string) error {
	d.mu.Lock()
	delete(d.conditions, correlationID)
	d.mu.Unlock()
	return nil
}

func (d *MemoryDAO) List(_ context.Context) ([]*Condition, error) {
	d.mu.RLock()
	out := make([]*Condition, 0, len(d.conditions))
	for _, c := range d.conditions {
		out = append(out, c)
	}
	d.mu.RUnlock()
	return out, nil
}

var _ DAO = (*MemoryDAO)(nil)
