package vm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmforge/wasmcore/frontend/text"
	"github.com/wasmforge/wasmcore/link"
	"github.com/wasmforge/wasmcore/store"
	"github.com/wasmforge/wasmcore/trap"
	"github.com/wasmforge/wasmcore/vm"
	"github.com/wasmforge/wasmcore/wasm"
	"github.com/wasmforge/wasmcore/wasm/opcode"
)

func instantiate(t *testing.T, src string) (*vm.VM, *store.ModuleInstance) {
	t.Helper()
	mod, err := text.Parse([]byte(src))
	require.NoError(t, err)

	s := store.New()
	v := vm.New(s)
	l := link.New(v)
	mi, err := link.Instantiate(context.Background(), l, mod, nil, "m")
	require.NoError(t, err)
	return v, mi
}

func TestDivisionByZeroTraps(t *testing.T) {
	v, mi := instantiate(t, `(module
	  (func $divz (param i32 i32) (result i32)
	    local.get 0
	    local.get 1
	    i32.div_s)
	  (export "divz" (func $divz)))`)

	exp, ok := mi.Export("divz")
	require.True(t, ok)
	_, err := v.Invoke(context.Background(), mi.FuncAddrs[exp.Idx], 10, 0)
	require.Error(t, err)
	assert.True(t, trap.Is(err, trap.IntegerDivideByZero))
}

func TestIntegerOverflowTraps(t *testing.T) {
	v, mi := instantiate(t, `(module
	  (func $divz (param i32 i32) (result i32)
	    local.get 0
	    local.get 1
	    i32.div_s)
	  (export "divz" (func $divz)))`)

	exp, ok := mi.Export("divz")
	require.True(t, ok)
	// Arguments are raw bit patterns: INT32_MIN and -1 as i32.
	_, err := v.Invoke(context.Background(), mi.FuncAddrs[exp.Idx], 0x80000000, 0xffffffff)
	require.Error(t, err)
	assert.True(t, trap.Is(err, trap.IntegerOverflow))
}

func TestMemoryOutOfBoundsTraps(t *testing.T) {
	v, mi := instantiate(t, `(module
	  (memory 1)
	  (func $load (param i32) (result i32)
	    local.get 0
	    i32.load)
	  (export "load" (func $load)))`)

	exp, ok := mi.Export("load")
	require.True(t, ok)

	// One page is 65536 bytes; reading an i32 at the very last valid
	// byte offset overruns the memory.
	_, err := v.Invoke(context.Background(), mi.FuncAddrs[exp.Idx], 65536-1)
	require.Error(t, err)
	assert.True(t, trap.Is(err, trap.OutOfBoundsMemoryAccess))
}

func TestMemoryLoadStoreRoundTrip(t *testing.T) {
	v, mi := instantiate(t, `(module
	  (memory 1)
	  (func $store (param i32 i32)
	    local.get 0
	    local.get 1
	    i32.store)
	  (func $load (param i32) (result i32)
	    local.get 0
	    i32.load)
	  (export "store" (func $store))
	  (export "load" (func $load)))`)

	storeExp, _ := mi.Export("store")
	loadExp, _ := mi.Export("load")

	_, err := v.Invoke(context.Background(), mi.FuncAddrs[storeExp.Idx], 8, 1234)
	require.NoError(t, err)

	results, err := v.Invoke(context.Background(), mi.FuncAddrs[loadExp.Idx], 8)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(1234), results[0])
}

func TestBrTableDefaultBranch(t *testing.T) {
	// br_table with two explicit targets and a default; an index beyond
	// the explicit targets must fall through to the default.
	v, mi := instantiate(t, `(module
	  (func $pick (param i32) (result i32)
	    block
	      block
	        block
	          local.get 0
	          br_table 2 0 1 2
	        end
	        i32.const 100
	        return
	      end
	      i32.const 200
	      return
	    end
	    i32.const 999)
	  (export "pick" (func $pick)))`)

	exp, ok := mi.Export("pick")
	require.True(t, ok)

	results, err := v.Invoke(context.Background(), mi.FuncAddrs[exp.Idx], 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(999), results[0])

	results, err = v.Invoke(context.Background(), mi.FuncAddrs[exp.Idx], 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), results[0])
}

// TestIndirectCallTypeMismatchTraps builds its module by hand rather
// than through the text front end: frontend/text has no element
// segment support (see its package doc), and call_indirect needs a
// populated table.
func TestIndirectCallTypeMismatchTraps(t *testing.T) {
	i32ToI32 := wasm.FuncType{Params: []wasm.ValueType{wasm.I32}, Results: []wasm.ValueType{wasm.I32}}
	noArgsToI32 := wasm.FuncType{Results: []wasm.ValueType{wasm.I32}}

	m := &wasm.Module{
		Types:     []wasm.FuncType{i32ToI32, noArgsToI32},
		Tables:    []wasm.TableType{{Limits: wasm.Limits{Min: 1, Max: 1, HasMax: true}}},
		ExportMap: map[string]wasm.Export{},
	}
	// Function 0: the callee, signature () -> i32, placed in the table.
	m.Functions = append(m.Functions, wasm.Function{
		Type: noArgsToI32,
		Name: "callee",
		Body: wasm.Func{Code: []byte{byte(mustOpcode("i32.const")), 0x07, byte(mustOpcode("end"))}},
	})
	// Function 1: the caller, declares call_indirect against type index
	// 0 (i32 -> i32) but the table slot it invokes actually holds a ()
	// -> i32 function — a deliberate mismatch.
	callerBody := []byte{
		byte(mustOpcode("i32.const")), 0x00, // table index to invoke
		byte(mustOpcode("call_indirect")), 0x00, 0x00, // type idx 0, reserved byte
		byte(mustOpcode("end")),
	}
	m.Functions = append(m.Functions, wasm.Function{Type: i32ToI32, Name: "caller", Body: wasm.Func{Code: callerBody}})

	addExport(m, "caller", wasm.ExternalFunc, 1)
	m.Elements = append(m.Elements, wasm.Element{
		TableIdx:   0,
		OffsetExpr: []byte{byte(mustOpcode("i32.const")), 0x00, byte(mustOpcode("end"))},
		FuncIdxs:   []uint32{0},
	})

	s := store.New()
	v := vm.New(s)
	l := link.New(v)
	mi, err := link.Instantiate(context.Background(), l, m, nil, "m")
	require.NoError(t, err)

	exp, ok := mi.Export("caller")
	require.True(t, ok)
	_, err = v.Invoke(context.Background(), mi.FuncAddrs[exp.Idx], 0)
	require.Error(t, err)
	assert.True(t, trap.Is(err, trap.IndirectCallTypeMismatch))
}

func addExport(m *wasm.Module, name string, kind wasm.ExternalKind, idx uint32) {
	exp := wasm.Export{Name: name, Kind: kind, Idx: idx}
	m.Exports = append(m.Exports, exp)
	m.ExportMap[name] = exp
}

func mustOpcode(name string) byte {
	op, ok := opcode.ByName(name)
	if !ok {
		panic("unknown opcode " + name)
	}
	return byte(op)
}
