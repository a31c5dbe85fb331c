package fs

import (
	"context"
	"errors"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
)

type testPayload struct {
	FlowID string
}

func newTestQueue(t *testing.T) *Queue[testPayload] {
	t.Helper()
	config := DefaultConfig()
	config.BaseURL = path.Join(t.TempDir(), "queue")
	config.MaxRetries = 1
	queue, err := NewQueue[testPayload](afs.New(), config)
	require.NoError(t, err)
	return queue
}

func TestQueue_RoundTrip(t *testing.T) {
	queue := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, queue.Publish(ctx, &testPayload{FlowID: "flow-1"}))
	require.NoError(t, queue.Publish(ctx, &testPayload{FlowID: "flow-2"}))

	msg, err := queue.Consume(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "flow-1", msg.T().FlowID, "oldest message first")
	require.NoError(t, msg.Ack())

	msg, err = queue.Consume(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "flow-2", msg.T().FlowID)
	require.NoError(t, msg.Ack())

	msg, err = queue.Consume(ctx)
	require.NoError(t, err)
	assert.Nil(t, msg, "drained queue returns nil")
}

func TestQueue_NackRequeuesThenDeadLetters(t *testing.T) {
	queue := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, queue.Publish(ctx, &testPayload{FlowID: "flow-3"}))

	msg, err := queue.Consume(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.NoError(t, msg.Nack(errors.New("first failure")))

	// retried once
	msg, err = queue.Consume(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.NoError(t, msg.Nack(errors.New("second failure")))

	// retry budget exhausted, message went to the dead directory
	msg, err = queue.Consume(ctx)
	require.NoError(t, err)
	assert.Nil(t, msg)

	objects, err := afs.New().List(ctx, queue.deadDir)
	require.NoError(t, err)
	var files int
	for _, obj := range objects {
		if !obj.IsDir() {
			files++
		}
	}
	assert.Equal(t, 1, files)
}
