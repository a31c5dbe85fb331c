// Package snapshot provides the state codec shared by snapshot store
// implementations: deep copies of change-tracked state, and rehydration of
// raw serialized payloads into state types resolved through the shared
// registry.
package snapshot

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/viant/structology/conv"

	"github.com/flowmesh/sagaflow/extension"
	"github.com/flowmesh/sagaflow/model/state"
)

// Codec converts between live state values, their deep copies, and raw map
// payloads. Named state types are resolved against the type registry.
type Codec struct {
	types     *extension.Types
	converter *conv.Converter
}

// NewCodec creates a codec over the supplied type registry.
func NewCodec(types *extension.Types) *Codec {
	if types == nil {
		types = extension.NewTypes()
	}
	options := conv.DefaultOptions()
	options.ClonePointerData = true
	options.IgnoreUnmapped = true
	options.AccessUnexported = true
	return &Codec{types: types, converter: conv.NewConverter(options)}
}

// Types exposes the registry named state types resolve against.
func (c *Codec) Types() *extension.Types {
	return c.types
}

// CloneState returns a deep copy of st with the same concrete type and flow
// id. The copy travels through its serialized form, so nothing aliases the
// source and the copy carries no dirty bookkeeping: a stored checkpoint has
// no pending changes.
func (c *Codec) CloneState(st state.State) (state.State, error) {
	if st == nil {
		return nil, nil
	}
	rType := reflect.TypeOf(st)
	for rType.Kind() == reflect.Ptr {
		rType = rType.Elem()
	}
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encoding %v state: %w", rType, err)
	}
	instance := reflect.New(rType).Interface()
	if err = json.Unmarshal(data, instance); err != nil {
		return nil, fmt.Errorf("snapshot: decoding %v state: %w", rType, err)
	}
	clone, ok := instance.(state.State)
	if !ok {
		return nil, fmt.Errorf("snapshot: %v does not implement state.State", rType)
	}
	clone.SetFlowID(st.FlowID())
	return clone, nil
}

// Rehydrate converts a raw payload, typically a decoded map, into the state
// type registered under name.
func (c *Codec) Rehydrate(name string, raw interface{}) (state.State, error) {
	rType := c.types.LookupReflect(name)
	if rType == nil {
		return nil, fmt.Errorf("snapshot: state type %q is not registered", name)
	}
	return c.RehydrateType(rType, raw)
}

// RehydrateType converts a raw payload into the given state type, bypassing
// the registry lookup.
func (c *Codec) RehydrateType(rType reflect.Type, raw interface{}) (state.State, error) {
	if rType == nil {
		return nil, fmt.Errorf("snapshot: state type is required")
	}
	for rType.Kind() == reflect.Ptr {
		rType = rType.Elem()
	}
	instance := reflect.New(rType).Interface()
	if err := c.converter.Convert(raw, instance); err != nil {
		return nil, err
	}
	st, ok := instance.(state.State)
	if !ok {
		return nil, fmt.Errorf("snapshot: %v does not implement state.State", rType)
	}
	return st, nil
}
