// Package link implements the allocation and import-resolution
// protocol that turns a decoded, validated wasm.Module plus its
// resolved imports into a live store.ModuleInstance: adopting
// imported addresses, allocating the module's own definitions,
// applying element and data segments, and running the start function.
package link

import (
	"context"
	"fmt"

	"github.com/wasmforge/wasmcore/store"
	"github.com/wasmforge/wasmcore/trap"
	"github.com/wasmforge/wasmcore/vm"
	"github.com/wasmforge/wasmcore/wasm"
)

// Import is one resolved import: the host or previously-linked-module
// address to adopt for one of the module's import-section entries, in
// declaration order.
type Import struct {
	Func   store.FuncAddr
	Table  store.TableAddr
	Mem    store.MemAddr
	Global store.GlobalAddr
}

// Linker drives allocation against the Store owned by a VM, and uses
// that same VM to run each module's start function.
type Linker struct {
	VM *vm.VM
}

// New returns a Linker over an existing VM (and, through it, its Store).
func New(v *vm.VM) *Linker {
	return &Linker{VM: v}
}

// LinkError reports a failure to resolve or allocate a module during
// linking, independent of a runtime trap (which can still occur while
// running the start function, wrapped separately).
type LinkError struct {
	Reason string
}

func (e *LinkError) Error() string { return "link: " + e.Reason }

// Instantiate runs the full allocation protocol from spec §4.6:
// imports are adopted first (so the module's own index spaces start
// after them, exactly as the binary format's indices assume), then
// its own functions/tables/memories/globals are allocated, element
// and data segments are applied, and the start function (if any) is
// invoked. A trap during the start function aborts instantiation.
func Instantiate(ctx context.Context, l *Linker, m *wasm.Module, imports []Import, name string) (*store.ModuleInstance, error) {
	if len(imports) != len(m.Imports) {
		return nil, &LinkError{Reason: fmt.Sprintf("expected %d imports, got %d", len(m.Imports), len(imports))}
	}

	mi := &store.ModuleInstance{Module: m, Types: m.Types, Name: name}

	var importedGlobals []wasm.ImportedGlobal
	for i, imp := range m.Imports {
		res := imports[i]
		switch imp.Kind {
		case wasm.ExternalFunc:
			mi.FuncAddrs = append(mi.FuncAddrs, res.Func)
		case wasm.ExternalTable:
			mi.TableAddrs = append(mi.TableAddrs, res.Table)
		case wasm.ExternalMem:
			mi.MemAddrs = append(mi.MemAddrs, res.Mem)
		case wasm.ExternalGlobal:
			mi.GlobalAddrs = append(mi.GlobalAddrs, res.Global)
			g := l.VM.Store.Globals[res.Global]
			importedGlobals = append(importedGlobals, wasm.ImportedGlobal{Value: g.Value, Type: g.Type, Mutable: g.Mutable})
		}
	}

	// Pre-allocate function addresses for every function this module
	// defines before any body executes, closing the cycle between a
	// function instance (which holds a pointer to this module
	// instance) and this module instance (which references function
	// addresses back).
	for i := range m.Functions {
		addr := l.VM.Store.AllocateFunc(store.FuncInstance{
			Type:       m.Functions[i].Type,
			ModuleInst: mi,
			FuncIdx:    i,
		})
		mi.FuncAddrs = append(mi.FuncAddrs, addr)
	}

	for _, t := range m.Tables {
		mi.TableAddrs = append(mi.TableAddrs, l.VM.Store.AllocateTable(t))
	}
	for _, mt := range m.Mems {
		mi.MemAddrs = append(mi.MemAddrs, l.VM.Store.AllocateMemory(mt))
	}
	for _, g := range m.Globals {
		val, _, err := wasm.EvalConstExpr(g.Init, importedGlobals)
		if err != nil {
			return nil, &LinkError{Reason: "global initializer: " + err.Error()}
		}
		mi.GlobalAddrs = append(mi.GlobalAddrs, l.VM.Store.AllocateGlobal(g.Type, val))
	}

	if err := applyElements(l, m, mi, importedGlobals); err != nil {
		return nil, err
	}
	if err := applyData(l, m, mi, importedGlobals); err != nil {
		return nil, err
	}

	if m.HasStart {
		startAddr := mi.FuncAddrs[m.StartFuncIdx]
		if _, err := l.VM.Invoke(ctx, startAddr); err != nil {
			return nil, &LinkError{Reason: "start function trapped: " + err.Error()}
		}
	}

	return mi, nil
}

func applyElements(l *Linker, m *wasm.Module, mi *store.ModuleInstance, importedGlobals []wasm.ImportedGlobal) error {
	for _, elem := range m.Elements {
		offset64, _, err := wasm.EvalConstExpr(elem.OffsetExpr, importedGlobals)
		if err != nil {
			return &LinkError{Reason: "element offset: " + err.Error()}
		}
		offset := uint32(offset64)
		table := l.VM.Store.Tables[mi.TableAddrs[elem.TableIdx]]
		if uint64(offset)+uint64(len(elem.FuncIdxs)) > uint64(table.Size()) {
			return trapLinkError(trap.OutOfBoundsTableAccess, "element segment overflows table")
		}
		for i, fidx := range elem.FuncIdxs {
			table.Set(offset+uint32(i), mi.FuncAddrs[fidx])
		}
	}
	return nil
}

func applyData(l *Linker, m *wasm.Module, mi *store.ModuleInstance, importedGlobals []wasm.ImportedGlobal) error {
	for _, d := range m.Datas {
		offset64, _, err := wasm.EvalConstExpr(d.OffsetExpr, importedGlobals)
		if err != nil {
			return &LinkError{Reason: "data offset: " + err.Error()}
		}
		offset := uint32(offset64)
		mem := l.VM.Store.Mems[mi.MemAddrs[d.MemIdx]]
		if uint64(offset)+uint64(len(d.Init)) > uint64(len(mem.Data)) {
			return trapLinkError(trap.OutOfBoundsMemoryAccess, "data segment overflows memory")
		}
		copy(mem.Data[offset:], d.Init)
	}
	return nil
}

func trapLinkError(kind trap.Kind, msg string) error {
	return &LinkError{Reason: string(kind) + ": " + msg}
}
