package dispatch

import (
	"context"
	"sync"
)

// Recorder wraps a Service and keeps an ordered log of every dispatched
// command. It backs the engine's rollback observability and doubles as a
// test spy for saga behaviour.
type Recorder struct {
	next     Service
	mu       sync.Mutex
	commands []*Command
}

// NewRecorder records commands flowing into next. A nil next succeeds every
// command without side effects.
func NewRecorder(next Service) *Recorder {
	return &Recorder{next: next}
}

func (r *Recorder) Dispatch(ctx context.Context, command *Command) (*Result, error) {
	r.mu.Lock()
	r.commands = append(r.commands, command)
	r.mu.Unlock()
	if r.next == nil {
		return OK(nil), nil
	}
	return r.next.Dispatch(ctx, command)
}

// Commands returns a copy of the dispatched command log.
func (r *Recorder) Commands() []*Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Command(nil), r.commands...)
}

// Names returns the dispatched command names in order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.commands))
	for i, cmd := range r.commands {
		out[i] = cmd.Name
	}
	return out
}

// Reset clears the log.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.commands = nil
	r.mu.Unlock()
}

var _ Service = (*Recorder)(nil)
