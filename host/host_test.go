package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmforge/wasmcore/store"
	"github.com/wasmforge/wasmcore/wasm"
)

func TestRegistry_ResolveFunc(t *testing.T) {
	s := store.New()
	r := NewRegistry(s)

	m := NewModule("env")
	m.AddFunc("double", wasm.FuncType{Params: []wasm.ValueType{wasm.I32}, Results: []wasm.ValueType{wasm.I32}},
		func(caller store.Caller, args []uint64) ([]uint64, error) {
			return []uint64{args[0] * 2}, nil
		})
	r.Register(m)

	addr, err := r.ResolveFunc("env", "double")
	require.NoError(t, err)

	fi := s.Funcs[addr]
	assert.True(t, fi.IsHost)
	results, err := fi.Host(nil, []uint64{21})
	require.NoError(t, err)
	assert.Equal(t, []uint64{42}, results)
}

func TestRegistry_ResolveFuncSharesAddress(t *testing.T) {
	s := store.New()
	r := NewRegistry(s)
	m := NewModule("env")
	m.AddFunc("noop", wasm.FuncType{}, func(caller store.Caller, args []uint64) ([]uint64, error) { return nil, nil })
	r.Register(m)

	a1, err := r.ResolveFunc("env", "noop")
	require.NoError(t, err)
	a2, err := r.ResolveFunc("env", "noop")
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	assert.Len(t, s.Funcs, 1)
}

func TestRegistry_ResolveFunc_UnknownModule(t *testing.T) {
	r := NewRegistry(store.New())
	_, err := r.ResolveFunc("missing", "f")
	require.Error(t, err)
}

func TestRegistry_ResolveFunc_UnknownField(t *testing.T) {
	s := store.New()
	r := NewRegistry(s)
	r.Register(NewModule("env"))
	_, err := r.ResolveFunc("env", "missing")
	require.Error(t, err)
}

func TestRegistry_ResolveGlobal(t *testing.T) {
	s := store.New()
	r := NewRegistry(s)
	m := NewModule("env")
	m.AddGlobal("counter", 7, wasm.I32, true)
	r.Register(m)

	addr, err := r.ResolveGlobal("env", "counter")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), s.Globals[addr].Value)
}

func TestLookupModule(t *testing.T) {
	r := NewRegistry(store.New())
	_, ok := r.LookupModule("env")
	assert.False(t, ok)

	m := NewModule("env")
	r.Register(m)
	found, ok := r.LookupModule("env")
	require.True(t, ok)
	assert.Same(t, m, found)
}
