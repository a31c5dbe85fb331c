package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type orderState struct {
	Record
	OrderID  string
	Amount   float64
	Approved bool
}

const (
	fieldOrderID = iota
	fieldAmount
	fieldApproved
)

func (s *orderState) FieldNames() []string {
	return []string{"OrderID", "Amount", "Approved"}
}

func (s *orderState) SetAmount(v float64) {
	s.Amount = v
	s.MarkChanged(fieldAmount)
}

func TestMask_MarkAndClear(t *testing.T) {
	s := &orderState{}
	assert.False(t, s.HasChanges())

	s.MarkChanged(fieldOrderID)
	s.MarkChanged(fieldAmount)
	assert.True(t, s.HasChanges())
	assert.True(t, s.IsFieldChanged(fieldOrderID))
	assert.True(t, s.IsFieldChanged(fieldAmount))
	assert.False(t, s.IsFieldChanged(fieldApproved))
	assert.Equal(t, uint64(3), s.ChangedMask())

	s.ClearChanges()
	assert.False(t, s.HasChanges())
	for i := 0; i < 3; i++ {
		assert.False(t, s.IsFieldChanged(i))
	}
	assert.Equal(t, uint64(0), s.ChangedMask())
}

func TestMask_Idempotent(t *testing.T) {
	var m Mask
	m.MarkChanged(5)
	m.MarkChanged(5)
	m.MarkChanged(5)
	assert.Equal(t, uint64(1<<5), m.ChangedMask())
}

func TestMask_WideFieldSet(t *testing.T) {
	var m Mask
	m.MarkChanged(0)
	m.MarkChanged(64)
	m.MarkChanged(130)
	assert.True(t, m.IsFieldChanged(0))
	assert.True(t, m.IsFieldChanged(64))
	assert.True(t, m.IsFieldChanged(130))
	assert.False(t, m.IsFieldChanged(63))
	assert.False(t, m.IsFieldChanged(129))
	// word 0 only exposes indices 0-63
	assert.Equal(t, uint64(1), m.ChangedMask())

	m.ClearChanges()
	assert.False(t, m.HasChanges())
}

func TestChangedFieldNames_Order(t *testing.T) {
	s := &orderState{}
	s.MarkChanged(fieldApproved)
	s.MarkChanged(fieldOrderID)

	var names []string
	for name := range ChangedFieldNames(s) {
		names = append(names, name)
	}
	assert.Equal(t, []string{"OrderID", "Approved"}, names)

	// the sequence is restartable
	var again []string
	for name := range ChangedFieldNames(s) {
		again = append(again, name)
	}
	assert.Equal(t, names, again)
}

func TestChangedFieldNames_EarlyStop(t *testing.T) {
	s := &orderState{}
	s.MarkChanged(fieldOrderID)
	s.MarkChanged(fieldAmount)

	for range ChangedFieldNames(s) {
		break
	}
	// breaking out of iteration must not panic or corrupt the mask
	assert.True(t, s.IsFieldChanged(fieldAmount))
}

func TestState_FlowID(t *testing.T) {
	s := &orderState{}
	assert.Empty(t, s.FlowID())
	s.SetFlowID("flow-1")
	assert.Equal(t, "flow-1", s.FlowID())
	// assigning the id never touches the dirty mask
	assert.False(t, s.HasChanges())
}
