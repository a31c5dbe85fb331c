// Package state provides change-tracked flow state: per-instance business
// data whose writable fields carry a dirty bit, letting the persistence
// layer act on "what changed" without computing a full diff.
package state

import "iter"

// Tracked is the capability set every change-tracked state type implements.
// Field indices are assigned by the state author, one per writable field,
// starting at zero. Indices 0-63 occupy the first mask word; wider field
// sets spill into additional words transparently.
type Tracked interface {
	// HasChanges returns true when at least one field is marked changed.
	HasChanges() bool
	// ChangedMask returns the first 64 bits of the dirty mask, bit i set
	// when field i changed.
	ChangedMask() uint64
	// IsFieldChanged returns whether the field at index is marked changed.
	IsFieldChanged(index int) bool
	// ClearChanges resets all dirty bookkeeping. Field values are untouched.
	ClearChanges()
	// MarkChanged marks the field at index as changed. Idempotent.
	MarkChanged(index int)
}

// State is the mutable business payload of one flow instance. Concrete state
// types embed Mask and list their field names in ascending index order.
// A State belongs to exactly one flow execution and is not safe for
// concurrent mutation; the engine never shares it between sibling flows.
type State interface {
	Tracked
	FlowID() string
	SetFlowID(id string)
	FieldNames() []string
}

const wordBits = 64

// Mask is a growable bitset of changed-field indices, intended for
// embedding into state types. The zero value is ready to use.
//
// Mutating a field and assigning the same value again still marks the field
// dirty: there is no diffing against the prior value, simplicity wins over
// precision.
type Mask struct {
	words []uint64
}

// MarkChanged sets the dirty bit for index, growing the mask as needed.
// Repeated calls for the same index leave the mask unchanged beyond the
// first set. A negative index is a programming error.
func (m *Mask) MarkChanged(index int) {
	if index < 0 {
		panic("state: negative field index")
	}
	word := index / wordBits
	for len(m.words) <= word {
		m.words = append(m.words, 0)
	}
	m.words[word] |= 1 << (index % wordBits)
}

// IsFieldChanged returns whether the dirty bit for index is set.
func (m *Mask) IsFieldChanged(index int) bool {
	if index < 0 {
		return false
	}
	word := index / wordBits
	if word >= len(m.words) {
		return false
	}
	return m.words[word]&(1<<(index%wordBits)) != 0
}

// HasChanges returns true when any dirty bit is set.
func (m *Mask) HasChanges() bool {
	for _, w := range m.words {
		if w != 0 {
			return true
		}
	}
	return false
}

// ChangedMask returns the first word of the mask, covering indices 0-63.
func (m *Mask) ChangedMask() uint64 {
	if len(m.words) == 0 {
		return 0
	}
	return m.words[0]
}

// ClearChanges resets every dirty bit. It is the only way to reset dirty
// state.
func (m *Mask) ClearChanges() {
	for i := range m.words {
		m.words[i] = 0
	}
}

// ChangedFields returns a lazy, restartable sequence of the names of the
// changed fields in ascending index order. Indices beyond len(names) are
// skipped.
func (m *Mask) ChangedFields(names []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for i, name := range names {
			if m.IsFieldChanged(i) && !yield(name) {
				return
			}
		}
	}
}

// Base supplies the flow id bookkeeping shared by concrete state types.
// Embed it alongside Mask, or embed Record which combines both.
type Base struct {
	id string
}

func (b *Base) FlowID() string      { return b.id }
func (b *Base) SetFlowID(id string) { b.id = id }

// Record combines Mask and Base so that a state type only has to add its
// domain fields and FieldNames.
type Record struct {
	Mask
	Base
}

// ChangedFieldNames returns the lazy name sequence for any State.
func ChangedFieldNames(s State) iter.Seq[string] {
	if t, ok := s.(interface {
		ChangedFields(names []string) iter.Seq[string]
	}); ok {
		return t.ChangedFields(s.FieldNames())
	}
	names := s.FieldNames()
	return func(yield func(string) bool) {
		for i, name := range names {
			if s.IsFieldChanged(i) && !yield(name) {
				return
			}
		}
	}
}
