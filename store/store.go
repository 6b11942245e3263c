// Package store implements the Store: the process-wide container of
// every allocated function, table, memory and global instance,
// addressed by stable opaque indices into its parallel arrays. Module
// instances are not kept in the Store; callers hold them directly.
package store

import "github.com/wasmforge/wasmcore/wasm"

// FuncAddr, TableAddr, MemAddr and GlobalAddr are opaque, stable
// indices into the Store's parallel instance arrays.
type FuncAddr int
type TableAddr int
type MemAddr int
type GlobalAddr int

// Caller gives a host function read/write access to the memory and
// globals of the module instance that is calling it, the same access
// a Wasm function itself would have, scoped to that one call.
type Caller interface {
	ReadMemory(offset, length uint32) ([]byte, error)
	WriteMemory(offset uint32, data []byte) error
	GetGlobal(idx uint32) (uint64, error)
	SetGlobal(idx uint32, value uint64) error
}

// HostFunc is the signature a host-provided function implementation
// must have: given a handle onto the calling module instance and the
// raw argument values (bit patterns, per the engine's value
// representation) it returns raw result values or traps by returning
// a non-nil error.
type HostFunc func(caller Caller, args []uint64) ([]uint64, error)

// FuncInstance is either a Wasm-defined function (ModuleInst/FuncIdx
// locate its body; the instance holds a direct pointer to its module
// instance, which in turn holds the function's address, so the two
// reference each other) or a host function.
type FuncInstance struct {
	Type wasm.FuncType

	// Wasm-defined function fields.
	ModuleInst *ModuleInstance
	FuncIdx    int // index into ModuleInst.Module.Functions

	// Host function fields.
	IsHost bool
	Host   HostFunc
	Name   string // diagnostic name, e.g. "env.print_i32"
}

// TableInstance is a fixed-capacity vector of optional function
// addresses (funcrefs). A nil entry is an uninitialized ("empty")
// slot.
type TableInstance struct {
	Elems  []*FuncAddr
	Max    uint32
	HasMax bool
}

// Size returns the table's current number of slots. Tables do not grow
// after instantiation; only element segments populate them.
func (t *TableInstance) Size() int { return len(t.Elems) }

// Get returns the function address at index i, or (nil, true) if the
// slot exists but is uninitialized, or (nil, false) if i is out of
// range.
func (t *TableInstance) Get(i uint32) (addr *FuncAddr, inRange bool) {
	if i >= uint32(len(t.Elems)) {
		return nil, false
	}
	return t.Elems[i], true
}

// Set writes fn into slot i. The caller must have already checked i is
// within the table's current size; Set never grows the table (MVP
// tables only grow via element-segment initialization at link time).
func (t *TableInstance) Set(i uint32, fn FuncAddr) {
	f := fn
	t.Elems[i] = &f
}

// MemInstance is linear memory: a byte buffer sized in whole 64KiB
// pages, growable up to Max pages (or wasm.MaxPages if HasMax is
// false).
type MemInstance struct {
	Data   []byte
	Max    uint32
	HasMax bool
}

// Pages returns the current size of the memory in pages.
func (m *MemInstance) Pages() uint32 {
	return uint32(len(m.Data) / wasm.PageSize)
}

// maxPages returns the effective maximum, defaulting to the 2^16-page
// hard cap when the memory type declared no explicit maximum.
func (m *MemInstance) maxPages() uint32 {
	if m.HasMax {
		return m.Max
	}
	return wasm.MaxPages
}

// Grow attempts to add delta pages, returning the previous size in
// pages on success or -1 on failure (exceeding the maximum). Newly
// added pages are zeroed, per Go slice-growth zero-value semantics.
func (m *MemInstance) Grow(delta uint32) int32 {
	current := m.Pages()
	if uint64(current)+uint64(delta) > uint64(m.maxPages()) {
		return -1
	}
	prev := current
	m.Data = append(m.Data, make([]byte, uint64(delta)*wasm.PageSize)...)
	return int32(prev)
}

// GlobalInstance is a mutable cell holding one value and its declared
// type/mutability.
type GlobalInstance struct {
	Value   uint64
	Type    wasm.ValueType
	Mutable bool
}

// ModuleInstance is the resolved runtime form of one linked module:
// address-space indices (covering both its imports, at the low
// indices, and its own definitions) plus its export table.
type ModuleInstance struct {
	Module *wasm.Module

	Types       []wasm.FuncType
	FuncAddrs   []FuncAddr
	TableAddrs  []TableAddr
	MemAddrs    []MemAddr
	GlobalAddrs []GlobalAddr

	Name string
}

// Export resolves an export name to an address within this module
// instance's index spaces.
func (mi *ModuleInstance) Export(name string) (wasm.Export, bool) {
	e, ok := mi.Module.ExportMap[name]
	return e, ok
}

// Store owns every instance ever allocated. Addresses are stable for
// the Store's lifetime; it is never compacted.
type Store struct {
	Funcs   []FuncInstance
	Tables  []*TableInstance
	Mems    []*MemInstance
	Globals []*GlobalInstance
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

// AllocateFunc appends a new function instance and returns its address.
func (s *Store) AllocateFunc(fi FuncInstance) FuncAddr {
	s.Funcs = append(s.Funcs, fi)
	return FuncAddr(len(s.Funcs) - 1)
}

// AllocateTable appends a new table instance sized to its minimum and
// returns its address.
func (s *Store) AllocateTable(t wasm.TableType) TableAddr {
	s.Tables = append(s.Tables, &TableInstance{
		Elems:  make([]*FuncAddr, t.Limits.Min),
		Max:    t.Limits.Max,
		HasMax: t.Limits.HasMax,
	})
	return TableAddr(len(s.Tables) - 1)
}

// AllocateMemory appends a new memory instance sized to its minimum
// and returns its address.
func (s *Store) AllocateMemory(t wasm.MemType) MemAddr {
	s.Mems = append(s.Mems, &MemInstance{
		Data:   make([]byte, uint64(t.Limits.Min)*wasm.PageSize),
		Max:    t.Limits.Max,
		HasMax: t.Limits.HasMax,
	})
	return MemAddr(len(s.Mems) - 1)
}

// AllocateGlobal appends a new global instance and returns its address.
func (s *Store) AllocateGlobal(t wasm.GlobalType, value uint64) GlobalAddr {
	s.Globals = append(s.Globals, &GlobalInstance{Value: value, Type: t.ValType, Mutable: t.Mutable})
	return GlobalAddr(len(s.Globals) - 1)
}
