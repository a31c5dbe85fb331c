// Package dispatch implements the command bus: named handlers registered
// with typed inputs, invoked by the flow coordinator for both forward steps
// and compensations.
package dispatch

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/viant/structology/conv"
	"github.com/viant/x"

	"github.com/flowmesh/sagaflow/extension"
)

type registration struct {
	handler Handler
	input   reflect.Type
}

// Registry is the default Service implementation: a concurrent map of named
// handlers plus a converter that coerces raw inputs (maps, loosely typed
// values) into each handler's registered input type.
type Registry struct {
	types     *extension.Types
	handlers  map[string]*registration
	converter *conv.Converter
	mux       sync.RWMutex
}

// NewRegistry creates a registry sharing the supplied type registry.
func NewRegistry(types *extension.Types) *Registry {
	if types == nil {
		types = extension.NewTypes()
	}
	options := conv.DefaultOptions()
	options.ClonePointerData = true
	options.IgnoreUnmapped = true
	options.AccessUnexported = true
	return &Registry{
		types:     types,
		handlers:  make(map[string]*registration),
		converter: conv.NewConverter(options),
	}
}

// Types exposes the shared type registry.
func (r *Registry) Types() *extension.Types {
	return r.types
}

// Register binds a handler to a command name. A non-nil inputType is added
// to the type registry and every dispatched input is converted to it.
// Registering the same name twice overwrites the previous handler.
func (r *Registry) Register(name string, inputType reflect.Type, handler Handler) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if inputType != nil {
		r.types.Register(x.NewType(inputType))
	}
	r.handlers[name] = &registration{handler: handler, input: inputType}
}

// Dispatch routes the command to its handler. A missing handler or nil
// command is a contract violation and returns an error; a handler failure is
// reported inside the Result.
func (r *Registry) Dispatch(ctx context.Context, command *Command) (*Result, error) {
	if command == nil || command.Name == "" {
		return nil, fmt.Errorf("dispatch: command name is required")
	}
	r.mux.RLock()
	reg, ok := r.handlers[command.Name]
	r.mux.RUnlock()
	if !ok {
		return nil, NewHandlerNotFoundError(command.Name)
	}

	input := command.Input
	if reg.input != nil && input != nil {
		rType := reflect.TypeOf(input)
		if rType != reg.input && rType != reflect.PtrTo(reg.input) {
			typed, err := r.typedValue(reg.input, input)
			if err != nil {
				return nil, NewInvalidInputError(command.Input)
			}
			input = typed
		}
	}

	output, err := reg.handler(ctx, input)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}
	return &Result{Success: true, Output: output}, nil
}

// typedValue converts a value into a freshly allocated *T for registered
// input type T; handlers therefore always observe a pointer input.
func (r *Registry) typedValue(aType reflect.Type, value interface{}) (interface{}, error) {
	if aType.Kind() == reflect.Ptr {
		aType = aType.Elem()
	}
	instance := reflect.New(aType).Interface()
	if err := r.converter.Convert(value, instance); err != nil {
		return nil, err
	}
	return instance, nil
}

var _ Service = (*Registry)(nil)
