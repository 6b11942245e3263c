// Package host implements the embedder-facing contract for providing
// native functions to linked modules: a named collection of callbacks,
// each given a declared Wasm signature, that the linker adopts as
// ordinary function addresses at import-resolution time.
package host

import (
	"fmt"

	"github.com/wasmforge/wasmcore/store"
	"github.com/wasmforge/wasmcore/wasm"
)

// Func is one host-provided function: its declared signature (stored
// on its function instance, where call_indirect checks it) and its Go
// implementation.
type Func struct {
	Type wasm.FuncType
	Impl store.HostFunc
}

// Module is a named group of host functions and values an embedder
// registers before linking any Wasm module that imports them, mirroring
// the "env" style module most embedders use for syscall-like imports.
type Module struct {
	Name      string
	Funcs     map[string]Func
	Globals   map[string]*store.GlobalInstance
}

// NewModule returns an empty host module under name.
func NewModule(name string) *Module {
	return &Module{Name: name, Funcs: map[string]Func{}, Globals: map[string]*store.GlobalInstance{}}
}

// AddFunc registers a host function implementation under field name.
func (m *Module) AddFunc(name string, sig wasm.FuncType, impl store.HostFunc) {
	m.Funcs[name] = Func{Type: sig, Impl: impl}
}

// AddGlobal registers a host-owned global under field name.
func (m *Module) AddGlobal(name string, value uint64, typ wasm.ValueType, mutable bool) {
	m.Globals[name] = &store.GlobalInstance{Value: value, Type: typ, Mutable: mutable}
}

// Registry resolves (module, field) import pairs to Store addresses,
// allocating each host function/global into the Store the first time
// it is referenced so repeated imports of the same host export share
// one instance.
type Registry struct {
	Store   *store.Store
	modules map[string]*Module

	funcAddrs   map[string]store.FuncAddr
	globalAddrs map[string]store.GlobalAddr
}

// NewRegistry returns a Registry that allocates into s.
func NewRegistry(s *store.Store) *Registry {
	return &Registry{
		Store:       s,
		modules:     map[string]*Module{},
		funcAddrs:   map[string]store.FuncAddr{},
		globalAddrs: map[string]store.GlobalAddr{},
	}
}

// Register makes m's functions and globals importable under m.Name.
func (r *Registry) Register(m *Module) {
	r.modules[m.Name] = m
}

// LookupModule returns a previously registered host module by name,
// so callers can add to it incrementally (RegisterHostFunction uses
// this to accumulate single-function registrations into one module).
func (r *Registry) LookupModule(name string) (*Module, bool) {
	m, ok := r.modules[name]
	return m, ok
}

// ResolveFunc looks up a registered host function by (module, field),
// allocating its Store entry on first use.
func (r *Registry) ResolveFunc(module, field string) (store.FuncAddr, error) {
	key := module + "." + field
	if addr, ok := r.funcAddrs[key]; ok {
		return addr, nil
	}
	m, ok := r.modules[module]
	if !ok {
		return 0, fmt.Errorf("host: no module %q registered", module)
	}
	fn, ok := m.Funcs[field]
	if !ok {
		return 0, fmt.Errorf("host: module %q has no function %q", module, field)
	}
	addr := r.Store.AllocateFunc(store.FuncInstance{Type: fn.Type, IsHost: true, Host: fn.Impl, Name: key})
	r.funcAddrs[key] = addr
	return addr, nil
}

// ResolveGlobal looks up a registered host global by (module, field),
// allocating its Store entry on first use.
func (r *Registry) ResolveGlobal(module, field string) (store.GlobalAddr, error) {
	key := module + "." + field
	if addr, ok := r.globalAddrs[key]; ok {
		return addr, nil
	}
	m, ok := r.modules[module]
	if !ok {
		return 0, fmt.Errorf("host: no module %q registered", module)
	}
	g, ok := m.Globals[field]
	if !ok {
		return 0, fmt.Errorf("host: module %q has no global %q", module, field)
	}
	r.Store.Globals = append(r.Store.Globals, g)
	addr := store.GlobalAddr(len(r.Store.Globals) - 1)
	r.globalAddrs[key] = addr
	return addr, nil
}
