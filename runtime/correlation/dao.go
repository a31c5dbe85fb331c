package correlation

import (
	"context"
	"errors"
)

// ErrAlreadyExists is returned by Set when a condition is already registered
// under the same correlation id.
var ErrAlreadyExists = errors.New("correlation: condition already exists")

// DAO abstracts persistence of wait conditions so the coordinator can
// recover its in-memory state after a restart. Get returns (nil, nil) for an
// unknown id: routine misses are not errors.
type DAO interface {
	Set(ctx context.Context, condition *Condition) error
	Get(ctx context.Context, correlationID string) (*Condition, error)
	Update(ctx context.Context, condition *Condition) error
	Delete(ctx context.Context, correlationID string) error
	List(ctx context.Context) ([]*Condition, error)
}
