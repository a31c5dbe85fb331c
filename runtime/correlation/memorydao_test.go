package correlation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryDAO(t *testing.T) {
	dao := NewMemoryDAO()
	ctx := context.Background()

	c := &Condition{CorrelationID: "c1", Type: TypeAll, ExpectedCount: 2}
	assert.NoError(t, dao.Set(ctx, c))
	assert.ErrorIs(t, dao.Set(ctx, &Condition{CorrelationID: "c1"}), ErrAlreadyExists)

	loaded, _ := dao.Get(ctx, "c1")
	assert.Equal(t, c, loaded)

	list, _ := dao.List(ctx)
	assert.Len(t, list, 1)

	assert.NoError(t, dao.Delete(ctx, "c1"))
	loaded, _ = dao.Get(ctx, "c1")
	assert.Nil(t, loaded)

	// the id is reusable after deletion
	assert.NoError(t, dao.Set(ctx, &Condition{CorrelationID: "c1"}))
}
