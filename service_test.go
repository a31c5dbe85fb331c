package sagaflow_test

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/sagaflow"
	"github.com/flowmesh/sagaflow/model"
	"github.com/flowmesh/sagaflow/model/state"
	"github.com/flowmesh/sagaflow/runtime/correlation"
	"github.com/flowmesh/sagaflow/runtime/flow"
	"github.com/flowmesh/sagaflow/service/dispatch"
	"github.com/flowmesh/sagaflow/service/event"
	"github.com/flowmesh/sagaflow/service/messaging"
	"github.com/flowmesh/sagaflow/service/messaging/fs"
)

type transfer struct {
	Account string `json:"account"`
	Amount  int    `json:"amount"`
}

type transferState struct {
	state.Record
	Debited  bool
	Credited bool
}

func (s *transferState) FieldNames() []string { return []string{"Debited", "Credited"} }

// ledger is a tiny account store the handlers mutate, so the tests can
// observe whether compensation really restored balances.
type ledger struct {
	mu       sync.Mutex
	balances map[string]int
}

func newLedger() *ledger {
	return &ledger{balances: map[string]int{"alice": 100, "bob": 100}}
}

func (l *ledger) apply(account string, delta int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.balances[account] + delta
	if next < 0 {
		return fmt.Errorf("insufficient funds on %v", account)
	}
	l.balances[account] = next
	return nil
}

func (l *ledger) balance(account string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account]
}

func newTransferService(t *testing.T, l *ledger) *sagaflow.Service {
	t.Helper()
	srv, err := sagaflow.New()
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)

	srv.RegisterHandler("debit", reflect.TypeOf(transfer{}), func(ctx context.Context, input interface{}) (interface{}, error) {
		in := input.(*transfer)
		return nil, l.apply(in.Account, -in.Amount)
	})
	srv.RegisterHandler("credit", reflect.TypeOf(transfer{}), func(ctx context.Context, input interface{}) (interface{}, error) {
		in := input.(*transfer)
		return nil, l.apply(in.Account, in.Amount)
	})
	return srv
}

func transferBody(l *ledger, from, to string, amount int) flow.Body {
	return func(ctx context.Context, f *flow.Flow) (interface{}, error) {
		st, _ := f.State().(*transferState)

		result, err := f.Execute(ctx, &dispatch.Command{Name: "debit", Input: &transfer{Account: from, Amount: amount}})
		if err != nil {
			return nil, err
		}
		if !result.Success {
			return nil, f.Fail("debit", result.Error)
		}
		f.RegisterCompensation(&dispatch.Command{Name: "credit", Input: &transfer{Account: from, Amount: amount}})
		if st != nil {
			st.Debited = true
			st.MarkChanged(0)
		}

		result, err = f.Execute(ctx, &dispatch.Command{Name: "credit", Input: &transfer{Account: to, Amount: amount}})
		if err != nil {
			return nil, err
		}
		if !result.Success {
			return nil, f.Fail("credit", result.Error)
		}
		f.RegisterCompensation(&dispatch.Command{Name: "debit", Input: &transfer{Account: to, Amount: amount}})
		if st != nil {
			st.Credited = true
			st.MarkChanged(1)
		}
		return amount, nil
	}
}

func TestService_TransferCommits(t *testing.T) {
	l := newLedger()
	srv := newTransferService(t, l)

	st := &transferState{}
	outcome := srv.Run(context.Background(), "transfer", transferBody(l, "alice", "bob", 30), flow.WithState(st))

	require.True(t, outcome.Committed)
	assert.Equal(t, 30, outcome.Output)
	assert.Equal(t, 70, l.balance("alice"))
	assert.Equal(t, 130, l.balance("bob"))

	snapshot, err := srv.Store().Get(context.Background(), outcome.FlowID, reflect.TypeOf(&transferState{}))
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, model.StatusCompleted, snapshot.Status)
	assert.True(t, snapshot.State.(*transferState).Credited)
}

func TestService_TransferRollsBack(t *testing.T) {
	l := newLedger()
	srv := newTransferService(t, l)

	// raw map input exercises the coercion path end to end
	outcome := srv.Run(context.Background(), "transfer", func(ctx context.Context, f *flow.Flow) (interface{}, error) {
		result, err := f.Execute(ctx, &dispatch.Command{Name: "debit",
			Input: map[string]interface{}{"account": "alice", "amount": 40}})
		if err != nil || !result.Success {
			return nil, f.Fail("debit", result.Error)
		}
		f.RegisterCompensation(&dispatch.Command{Name: "credit", Input: &transfer{Account: "alice", Amount: 40}})

		result, err = f.Execute(ctx, &dispatch.Command{Name: "debit",
			Input: &transfer{Account: "bob", Amount: 500}})
		if err != nil {
			return nil, err
		}
		if !result.Success {
			return nil, f.Fail("debit", result.Error)
		}
		return nil, nil
	})

	require.True(t, outcome.Failed())
	assert.Empty(t, outcome.CompensationFailures)
	assert.Equal(t, 100, l.balance("alice"), "compensation restored the debit")
	assert.Equal(t, 100, l.balance("bob"))

	snapshot, err := srv.Store().Get(context.Background(), outcome.FlowID, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, snapshot.Status)
	assert.Contains(t, snapshot.Error, "insufficient funds")
}

func TestService_FanOutFanIn(t *testing.T) {
	l := newLedger()
	srv := newTransferService(t, l)

	outcome := srv.Run(context.Background(), "payout", func(ctx context.Context, f *flow.Flow) (interface{}, error) {
		resolution, err := f.AwaitChildren(ctx,
			&correlation.Condition{Type: correlation.TypeAll, Timeout: 5 * time.Second},
			flow.Child{Name: "leg", Body: transferBody(l, "alice", "bob", 10)},
			flow.Child{Name: "leg", Body: transferBody(l, "alice", "bob", 20)},
		)
		if err != nil {
			return nil, err
		}
		if resolution.TimedOut() || !resolution.AllSucceeded() {
			return nil, f.Fail("payout", "a leg failed")
		}
		total := 0
		for _, completion := range resolution.Results {
			total += completion.Result.(int)
		}
		return total, nil
	})

	require.True(t, outcome.Committed)
	assert.Equal(t, 30, outcome.Output)
	assert.Equal(t, 70, l.balance("alice"))
	assert.Equal(t, 130, l.balance("bob"))
}

func TestService_FanOutChildFailureReported(t *testing.T) {
	l := newLedger()
	srv := newTransferService(t, l)

	outcome := srv.Run(context.Background(), "payout", func(ctx context.Context, f *flow.Flow) (interface{}, error) {
		resolution, err := f.AwaitChildren(ctx,
			&correlation.Condition{Type: correlation.TypeAll, Timeout: 5 * time.Second},
			flow.Child{Name: "leg", Body: transferBody(l, "alice", "bob", 10)},
			flow.Child{Name: "leg", Body: transferBody(l, "alice", "bob", 5000)},
		)
		if err != nil {
			return nil, err
		}
		if !resolution.AllSucceeded() {
			return nil, f.Fail("payout", "a leg failed")
		}
		return nil, nil
	})

	require.True(t, outcome.Failed())
	// the failing leg compensated itself, the healthy leg committed
	assert.Equal(t, 90, l.balance("alice"))
	assert.Equal(t, 110, l.balance("bob"))
}

func TestParseConfig(t *testing.T) {
	cfg, err := sagaflow.ParseConfig([]byte(`
queue:
  vendor: memory
scheduler:
  tick: 5ms
  wheelSize: 256
tracing:
  enabled: false
`))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Queue.Vendor)
	assert.Equal(t, sagaflow.Duration(5*time.Millisecond), cfg.Scheduler.Tick)
	assert.Equal(t, int64(256), cfg.Scheduler.WheelSize)

	srv, err := sagaflow.NewFromConfig(cfg)
	require.NoError(t, err)
	defer srv.Shutdown()
	assert.NotNil(t, srv.Flows())

	_, err = sagaflow.ParseConfig([]byte("queue: ["))
	assert.Error(t, err)
}

func TestNew_UnknownQueueVendor(t *testing.T) {
	_, err := sagaflow.New(sagaflow.WithQueueVendor("carrier-pigeon"))
	assert.Error(t, err)
}

func TestService_RehydrateState(t *testing.T) {
	srv, err := sagaflow.New()
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)

	srv.RegisterStateType(reflect.TypeOf(transferState{}))
	st, err := srv.RehydrateState("transferState", map[string]interface{}{
		"Debited": true,
	})
	require.NoError(t, err)
	require.IsType(t, &transferState{}, st)
	assert.True(t, st.(*transferState).Debited)
	assert.False(t, st.(*transferState).Credited)

	_, err = srv.RehydrateState("unregistered", map[string]interface{}{})
	assert.Error(t, err)
}

func TestService_StateDetachedFromStore(t *testing.T) {
	l := newLedger()
	srv := newTransferService(t, l)

	st := &transferState{}
	outcome := srv.Run(context.Background(), "transfer", transferBody(l, "alice", "bob", 10), flow.WithState(st))
	require.True(t, outcome.Committed)

	// mutating the live state after the run must not bleed into what the
	// store already persisted
	st.Credited = false
	snapshot, err := srv.Store().Get(context.Background(), outcome.FlowID, reflect.TypeOf(&transferState{}))
	require.NoError(t, err)
	assert.True(t, snapshot.State.(*transferState).Credited)
}

func TestNew_FailedPublisherSetupReleasesResources(t *testing.T) {
	// an invalid queue config makes publisher setup fail after the owned
	// scheduler is already running; New must clean up before reporting
	_, err := sagaflow.New(
		sagaflow.WithQueueVendor(messaging.VendorFS),
		sagaflow.WithEventOptions(event.WithNewFsQueueConfig(func(string) fs.Config { return fs.Config{} })),
	)
	assert.Error(t, err)
}
