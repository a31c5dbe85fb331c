// Package extension holds the registries an embedding application uses to
// teach the engine about its own types: flow state shapes for snapshot
// rehydration and command input shapes for the dispatch bus.
package extension

import (
	"reflect"
	"sync"

	"github.com/viant/x"
)

// Types is a registry of user-defined Go types. Registered types resolve
// both by their package-qualified key and by bare type name.
type Types struct {
	x.Registry
	mux   sync.RWMutex
	named map[string]*x.Type
}

// Register adds a data type to the registry.
func (t *Types) Register(dataType *x.Type) {
	t.Registry.Register(dataType)
	t.mux.Lock()
	t.named[dataType.Name] = dataType
	t.mux.Unlock()
}

// Lookup returns a registered type by package-qualified key or bare name,
// nil when unknown.
func (t *Types) Lookup(name string) *x.Type {
	if ret := t.Registry.Lookup(name); ret != nil {
		return ret
	}
	t.mux.RLock()
	defer t.mux.RUnlock()
	return t.named[name]
}

// LookupReflect returns the reflect.Type registered under name.
func (t *Types) LookupReflect(name string) reflect.Type {
	if ret := t.Lookup(name); ret != nil {
		return ret.Type
	}
	return nil
}

// NewTypes creates a new type registry.
func NewTypes(options ...x.RegistryOption) *Types {
	return &Types{
		Registry: *x.NewRegistry(options...),
		named:    make(map[string]*x.Type),
	}
}
