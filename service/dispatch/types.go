package dispatch

import (
	"context"
	"fmt"
)

// Command is a request routed to a named handler through the bus. Input may
// be a typed value or a raw map; the registry coerces it to the handler's
// registered input type before invocation.
type Command struct {
	Name  string      `json:"name"`
	Input interface{} `json:"input,omitempty"`
}

// Result carries the outcome of a dispatched command. Handler failures are
// reported here rather than raised, so callers branch on Success without
// error handling for routine business failures.
type Result struct {
	Success bool        `json:"success"`
	Output  interface{} `json:"output,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// OK builds a successful result.
func OK(output interface{}) *Result {
	return &Result{Success: true, Output: output}
}

// Fail builds a failed result.
func Fail(format string, args ...interface{}) *Result {
	return &Result{Error: fmt.Sprintf(format, args...)}
}

// Handler is the unit of work behind a command name.
type Handler func(ctx context.Context, input interface{}) (interface{}, error)

// Service is the command bus the flow coordinator dispatches steps and
// compensations through. Only contract violations (nil command, unknown
// handler) surface as errors.
type Service interface {
	Dispatch(ctx context.Context, command *Command) (*Result, error)
}

func NewHandlerNotFoundError(name string) error {
	return fmt.Errorf("handler %v not found", name)
}

func NewInvalidInputError(in interface{}) error {
	return fmt.Errorf("invalid input %T", in)
}
