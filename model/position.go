package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Position addresses a location within a flow's possibly nested control-flow
// tree as an ordered sequence of indices. It is used for resumption and
// replay: two executions of the same flow that reach the same position refer
// to the same step regardless of wall-clock interleaving.
//
// A Position is immutable once constructed.
type Position struct {
	path []int
}

// NewPosition builds a position from the supplied indices. The input slice is
// copied so later mutation by the caller cannot corrupt the position.
func NewPosition(path ...int) Position {
	if len(path) == 0 {
		return Position{}
	}
	return Position{path: append([]int(nil), path...)}
}

// Child returns a new position extending this one with the given index.
func (p Position) Child(index int) Position {
	child := make([]int, len(p.path)+1)
	copy(child, p.path)
	child[len(p.path)] = index
	return Position{path: child}
}

// Path returns a copy of the index sequence.
func (p Position) Path() []int {
	return append([]int(nil), p.path...)
}

// Depth returns the number of indices in the position.
func (p Position) Depth() int { return len(p.path) }

// Equal reports structural equality: same length, same indices in order.
func (p Position) Equal(other Position) bool {
	if len(p.path) != len(other.path) {
		return false
	}
	for i := range p.path {
		if p.path[i] != other.path[i] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the position as its index array.
func (p Position) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.path)
}

// UnmarshalJSON decodes an index array.
func (p *Position) UnmarshalJSON(data []byte) error {
	var path []int
	if err := json.Unmarshal(data, &path); err != nil {
		return err
	}
	p.path = path
	return nil
}

// String renders the position as a slash separated path, e.g. "0/2/1".
func (p Position) String() string {
	if len(p.path) == 0 {
		return ""
	}
	parts := make([]string, len(p.path))
	for i, idx := range p.path {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, "/")
}
