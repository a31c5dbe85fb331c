package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/sagaflow/service/dao"
)

type record struct {
	ID    string
	Value int
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore[string, record](func(r *record) string { return r.ID })
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &record{ID: "a", Value: 1}))
	require.NoError(t, s.Save(ctx, &record{ID: "b", Value: 2}))
	require.NoError(t, s.Save(ctx, &record{ID: "a", Value: 3}), "save overwrites")

	loaded, err := s.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Value)

	_, err = s.Load(ctx, "missing")
	assert.ErrorIs(t, err, dao.ErrNotFound)

	assert.ErrorIs(t, s.Save(ctx, nil), dao.ErrNilEntity)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.Load(ctx, "a")
	assert.ErrorIs(t, err, dao.ErrNotFound)
}
