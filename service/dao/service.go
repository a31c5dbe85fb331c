package dao

import (
	"context"
)

// Service abstracts persistence of engine records keyed by a comparable id.
// Reference implementations are in-memory; a durable backend only has to
// satisfy this surface.
type Service[K comparable, T any] interface {
	Save(ctx context.Context, t *T) error

	Load(ctx context.Context, id K) (*T, error)

	Delete(ctx context.Context, id K) error

	List(ctx context.Context) ([]*T, error)
}
