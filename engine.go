// Package wasmcore is the embedder-facing facade over the engine: it
// ties together the binary decoder, the linker, the Store and the
// instruction executor behind the narrow surface described in the
// core's external interface (add a module, get a function handle,
// invoke it, read/write globals and memory, register host functions).
package wasmcore

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/wasmforge/wasmcore/gas"
	"github.com/wasmforge/wasmcore/host"
	"github.com/wasmforge/wasmcore/link"
	"github.com/wasmforge/wasmcore/store"
	"github.com/wasmforge/wasmcore/trap"
	"github.com/wasmforge/wasmcore/vm"
	"github.com/wasmforge/wasmcore/wasm"
)

// Engine is one program: a Store, its executor, and the set of
// modules linked into it so far, addressable by the name they were
// added under.
type Engine struct {
	Store  *store.Store
	VM     *vm.VM
	Linker *link.Linker
	Hosts  *host.Registry

	modules map[string]*store.ModuleInstance
}

// Options configures an Engine at construction time.
type Options struct {
	CallDepthLimit int
	GasPolicy      gas.Policy
	GasBudget      *gas.Gas
	Log            *logrus.Entry
}

// NewEngine returns an empty Engine ready to have host modules
// registered and Wasm modules added.
func NewEngine(opts Options) *Engine {
	s := store.New()
	var vmOpts []vm.Option
	if opts.CallDepthLimit > 0 {
		vmOpts = append(vmOpts, vm.WithCallDepthLimit(opts.CallDepthLimit))
	}
	if opts.GasPolicy != nil {
		budget := opts.GasBudget
		if budget == nil {
			budget = &gas.Gas{}
		}
		vmOpts = append(vmOpts, vm.WithGas(opts.GasPolicy, budget))
	}
	if opts.Log != nil {
		vmOpts = append(vmOpts, vm.WithLogger(opts.Log))
	}
	v := vm.New(s, vmOpts...)
	return &Engine{
		Store:   s,
		VM:      v,
		Linker:  link.New(v),
		Hosts:   host.NewRegistry(s),
		modules: map[string]*store.ModuleInstance{},
	}
}

// RegisterHostModule makes m's functions and globals importable by
// modules added afterward.
func (e *Engine) RegisterHostModule(m *host.Module) {
	e.Hosts.Register(m)
}

// AddModule decodes a binary Wasm module, resolves its imports
// against previously registered host modules and previously added
// Wasm modules (by declaration order: module name then field name),
// links it into the Store, runs its start function if any, and makes
// it addressable as name.
func (e *Engine) AddModule(ctx context.Context, name string, binary []byte) error {
	m, err := wasm.DecodeModule(binary)
	if err != nil {
		return fmt.Errorf("wasmcore: decoding %q: %w", name, err)
	}
	return e.AddModuleDecoded(ctx, name, m)
}

// AddModuleDecoded links an already-decoded module (produced by the
// binary decoder or a text front end such as frontend/text) into the
// engine, the same way AddModule does for raw binary input.
func (e *Engine) AddModuleDecoded(ctx context.Context, name string, m *wasm.Module) error {
	imports := make([]link.Import, len(m.Imports))
	for i, imp := range m.Imports {
		switch imp.Kind {
		case wasm.ExternalFunc:
			addr, err := e.resolveFunc(imp.Module, imp.Name)
			if err != nil {
				return err
			}
			imports[i].Func = addr
		case wasm.ExternalTable:
			addr, err := e.resolveTable(imp.Module, imp.Name)
			if err != nil {
				return err
			}
			imports[i].Table = addr
		case wasm.ExternalMem:
			addr, err := e.resolveMem(imp.Module, imp.Name)
			if err != nil {
				return err
			}
			imports[i].Mem = addr
		case wasm.ExternalGlobal:
			addr, err := e.resolveGlobal(imp.Module, imp.Name)
			if err != nil {
				return err
			}
			imports[i].Global = addr
		}
	}

	mi, err := link.Instantiate(ctx, e.Linker, m, imports, name)
	if err != nil {
		return fmt.Errorf("wasmcore: linking %q: %w", name, err)
	}
	e.modules[name] = mi
	return nil
}

func (e *Engine) resolveFunc(module, field string) (store.FuncAddr, error) {
	if mi, ok := e.modules[module]; ok {
		exp, ok := mi.Export(field)
		if !ok || exp.Kind != wasm.ExternalFunc {
			return 0, fmt.Errorf("wasmcore: %q has no exported function %q", module, field)
		}
		return mi.FuncAddrs[exp.Idx], nil
	}
	return e.Hosts.ResolveFunc(module, field)
}

func (e *Engine) resolveTable(module, field string) (store.TableAddr, error) {
	mi, ok := e.modules[module]
	if !ok {
		return 0, fmt.Errorf("wasmcore: no module %q for table import", module)
	}
	exp, ok := mi.Export(field)
	if !ok || exp.Kind != wasm.ExternalTable {
		return 0, fmt.Errorf("wasmcore: %q has no exported table %q", module, field)
	}
	return mi.TableAddrs[exp.Idx], nil
}

func (e *Engine) resolveMem(module, field string) (store.MemAddr, error) {
	mi, ok := e.modules[module]
	if !ok {
		return 0, fmt.Errorf("wasmcore: no module %q for memory import", module)
	}
	exp, ok := mi.Export(field)
	if !ok || exp.Kind != wasm.ExternalMem {
		return 0, fmt.Errorf("wasmcore: %q has no exported memory %q", module, field)
	}
	return mi.MemAddrs[exp.Idx], nil
}

func (e *Engine) resolveGlobal(module, field string) (store.GlobalAddr, error) {
	if mi, ok := e.modules[module]; ok {
		exp, ok := mi.Export(field)
		if !ok || exp.Kind != wasm.ExternalGlobal {
			return 0, fmt.Errorf("wasmcore: %q has no exported global %q", module, field)
		}
		return mi.GlobalAddrs[exp.Idx], nil
	}
	return e.Hosts.ResolveGlobal(module, field)
}

// Func is a handle to one exported function, bound to its owning
// module instance and Store address so it can be invoked repeatedly
// without re-resolving the export.
type Func struct {
	engine *Engine
	addr   store.FuncAddr
	typ    wasm.FuncType
}

// GetFunction resolves an exported function by module and export
// name.
func (e *Engine) GetFunction(module, name string) (*Func, error) {
	mi, ok := e.modules[module]
	if !ok {
		return nil, fmt.Errorf("wasmcore: no module %q", module)
	}
	exp, ok := mi.Export(name)
	if !ok || exp.Kind != wasm.ExternalFunc {
		return nil, fmt.Errorf("wasmcore: %q has no exported function %q", module, name)
	}
	addr := mi.FuncAddrs[exp.Idx]
	return &Func{engine: e, addr: addr, typ: e.Store.Funcs[addr].Type}, nil
}

// Invoke calls the function with args (raw bit patterns, one per
// declared parameter) and returns its results or a trap.
func (f *Func) Invoke(ctx context.Context, args ...uint64) ([]uint64, error) {
	if len(args) != len(f.typ.Params) {
		return nil, fmt.Errorf("wasmcore: function expects %d arguments, got %d", len(f.typ.Params), len(args))
	}
	return f.engine.VM.Invoke(ctx, f.addr, args...)
}

// Type returns the function's declared signature.
func (f *Func) Type() wasm.FuncType { return f.typ }

// GetGlobal reads the current value of an exported global.
func (e *Engine) GetGlobal(module, name string) (uint64, error) {
	mi, ok := e.modules[module]
	if !ok {
		return 0, fmt.Errorf("wasmcore: no module %q", module)
	}
	exp, ok := mi.Export(name)
	if !ok || exp.Kind != wasm.ExternalGlobal {
		return 0, fmt.Errorf("wasmcore: %q has no exported global %q", module, name)
	}
	return e.Store.Globals[mi.GlobalAddrs[exp.Idx]].Value, nil
}

// SetGlobal writes a new value to an exported mutable global,
// returning a trap-shaped error if it is immutable.
func (e *Engine) SetGlobal(module, name string, value uint64) error {
	mi, ok := e.modules[module]
	if !ok {
		return fmt.Errorf("wasmcore: no module %q", module)
	}
	exp, ok := mi.Export(name)
	if !ok || exp.Kind != wasm.ExternalGlobal {
		return fmt.Errorf("wasmcore: %q has no exported global %q", module, name)
	}
	g := e.Store.Globals[mi.GlobalAddrs[exp.Idx]]
	if !g.Mutable {
		return trap.New(trap.TypeMismatch)
	}
	g.Value = value
	return nil
}

// ReadMemory copies length bytes starting at offset from an exported
// memory, failing with an out-of-bounds trap rather than panicking.
func (e *Engine) ReadMemory(module, name string, offset, length uint32) ([]byte, error) {
	mem, err := e.exportedMem(module, name)
	if err != nil {
		return nil, err
	}
	end := uint64(offset) + uint64(length)
	if end > uint64(len(mem.Data)) {
		return nil, trap.New(trap.OutOfBoundsMemoryAccess)
	}
	out := make([]byte, length)
	copy(out, mem.Data[offset:end])
	return out, nil
}

// WriteMemory writes data into an exported memory starting at offset.
func (e *Engine) WriteMemory(module, name string, offset uint32, data []byte) error {
	mem, err := e.exportedMem(module, name)
	if err != nil {
		return err
	}
	end := uint64(offset) + uint64(len(data))
	if end > uint64(len(mem.Data)) {
		return trap.New(trap.OutOfBoundsMemoryAccess)
	}
	copy(mem.Data[offset:end], data)
	return nil
}

func (e *Engine) exportedMem(module, name string) (*store.MemInstance, error) {
	mi, ok := e.modules[module]
	if !ok {
		return nil, fmt.Errorf("wasmcore: no module %q", module)
	}
	exp, ok := mi.Export(name)
	if !ok || exp.Kind != wasm.ExternalMem {
		return nil, fmt.Errorf("wasmcore: %q has no exported memory %q", module, name)
	}
	return e.Store.Mems[mi.MemAddrs[exp.Idx]], nil
}

// RegisterHostFunction is a convenience for registering a single host
// function without building a whole host.Module, under the implicit
// module name "env".
func (e *Engine) RegisterHostFunction(name string, sig wasm.FuncType, impl store.HostFunc) {
	m := host.NewModule("env")
	if existing, ok := e.Hosts.LookupModule("env"); ok {
		m = existing
	}
	m.AddFunc(name, sig, impl)
	e.Hosts.Register(m)
}
