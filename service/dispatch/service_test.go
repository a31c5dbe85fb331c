package dispatch

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chargeInput struct {
	OrderID string  `json:"orderID"`
	Amount  float64 `json:"amount"`
}

func TestRegistry_DispatchTyped(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register("payment.charge", reflect.TypeOf(chargeInput{}), func(_ context.Context, input interface{}) (interface{}, error) {
		in, ok := input.(*chargeInput)
		require.True(t, ok)
		return in.OrderID, nil
	})

	// raw map input is coerced into the registered type
	result, err := registry.Dispatch(context.Background(), &Command{
		Name:  "payment.charge",
		Input: map[string]interface{}{"orderID": "o-1", "amount": 12.5},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "o-1", result.Output)

	// already-typed input passes through unconverted
	result, err = registry.Dispatch(context.Background(), &Command{
		Name:  "payment.charge",
		Input: &chargeInput{OrderID: "o-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "o-2", result.Output)
}

func TestRegistry_HandlerFailureIsResult(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register("payment.refund", nil, func(context.Context, interface{}) (interface{}, error) {
		return nil, errors.New("gateway unavailable")
	})

	result, err := registry.Dispatch(context.Background(), &Command{Name: "payment.refund"})
	require.NoError(t, err, "handler failures are results, not errors")
	assert.False(t, result.Success)
	assert.Equal(t, "gateway unavailable", result.Error)
}

func TestRegistry_ContractViolations(t *testing.T) {
	registry := NewRegistry(nil)

	_, err := registry.Dispatch(context.Background(), nil)
	assert.Error(t, err)

	_, err = registry.Dispatch(context.Background(), &Command{Name: "unknown"})
	assert.Error(t, err)
}

func TestRecorder(t *testing.T) {
	recorder := NewRecorder(nil)
	_, err := recorder.Dispatch(context.Background(), &Command{Name: "a"})
	require.NoError(t, err)
	_, err = recorder.Dispatch(context.Background(), &Command{Name: "b"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, recorder.Names())
	recorder.Reset()
	assert.Empty(t, recorder.Commands())
}
