package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmforge/wasmcore/wasm"
)

func TestMemInstance_GrowWithinMax(t *testing.T) {
	m := &MemInstance{Data: make([]byte, wasm.PageSize), Max: 2, HasMax: true}
	prev := m.Grow(1)
	assert.Equal(t, int32(1), prev)
	assert.Equal(t, uint32(2), m.Pages())
}

func TestMemInstance_GrowBeyondMaxFails(t *testing.T) {
	m := &MemInstance{Data: make([]byte, wasm.PageSize), Max: 1, HasMax: true}
	prev := m.Grow(1)
	assert.Equal(t, int32(-1), prev)
	assert.Equal(t, uint32(1), m.Pages())
}

func TestMemInstance_GrowNoDeclaredMaxUsesHardCap(t *testing.T) {
	m := &MemInstance{Data: make([]byte, wasm.PageSize)}
	prev := m.Grow(1)
	assert.Equal(t, int32(1), prev)
}

func TestMemInstance_NewPagesAreZeroed(t *testing.T) {
	m := &MemInstance{Data: make([]byte, wasm.PageSize)}
	m.Data[0] = 0xff
	m.Grow(1)
	assert.Equal(t, byte(0xff), m.Data[0])
	assert.Equal(t, byte(0), m.Data[wasm.PageSize])
}

func TestTableInstance_GetSet(t *testing.T) {
	tbl := &TableInstance{Elems: make([]*FuncAddr, 3)}
	_, inRange := tbl.Get(5)
	assert.False(t, inRange)

	addr, inRange := tbl.Get(0)
	require.True(t, inRange)
	assert.Nil(t, addr)

	tbl.Set(1, FuncAddr(7))
	addr, inRange = tbl.Get(1)
	require.True(t, inRange)
	require.NotNil(t, addr)
	assert.Equal(t, FuncAddr(7), *addr)
}

func TestStore_AllocateFunc(t *testing.T) {
	s := New()
	a1 := s.AllocateFunc(FuncInstance{Name: "f1"})
	a2 := s.AllocateFunc(FuncInstance{Name: "f2"})
	assert.Equal(t, FuncAddr(0), a1)
	assert.Equal(t, FuncAddr(1), a2)
	assert.Equal(t, "f2", s.Funcs[a2].Name)
}

func TestStore_AllocateGlobal(t *testing.T) {
	s := New()
	addr := s.AllocateGlobal(wasm.GlobalType{ValType: wasm.I32, Mutable: true}, 42)
	assert.Equal(t, uint64(42), s.Globals[addr].Value)
	assert.True(t, s.Globals[addr].Mutable)
}

func TestModuleInstance_Export(t *testing.T) {
	mod := &wasm.Module{ExportMap: map[string]wasm.Export{
		"add": {Name: "add", Kind: wasm.ExternalFunc, Idx: 0},
	}}
	mi := &ModuleInstance{Module: mod}
	exp, ok := mi.Export("add")
	require.True(t, ok)
	assert.Equal(t, wasm.ExternalFunc, exp.Kind)

	_, ok = mi.Export("missing")
	assert.False(t, ok)
}
