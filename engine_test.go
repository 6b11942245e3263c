package wasmcore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmforge/wasmcore/frontend/text"
	"github.com/wasmforge/wasmcore/store"
	"github.com/wasmforge/wasmcore/wasm"
	"github.com/wasmforge/wasmcore/wasm/opcode"
)

func TestEngine_AddModuleDecodedAndInvoke(t *testing.T) {
	mod, err := text.Parse([]byte(`(module
	  (func $add (param i32 i32) (result i32)
	    local.get 0
	    local.get 1
	    i32.add)
	  (export "add" (func $add)))`))
	require.NoError(t, err)

	e := NewEngine(Options{})
	ctx := context.Background()
	require.NoError(t, e.AddModuleDecoded(ctx, "m", mod))

	fn, err := e.GetFunction("m", "add")
	require.NoError(t, err)

	results, err := fn.Invoke(ctx, 2, 40)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(42), results[0])
}

func TestEngine_GlobalsAndMemory(t *testing.T) {
	mod, err := text.Parse([]byte(`(module
	  (memory 1)
	  (global $g (mut i32) i32.const 5)
	  (export "g" (global $g)))`))
	require.NoError(t, err)

	e := NewEngine(Options{})
	ctx := context.Background()
	require.NoError(t, e.AddModuleDecoded(ctx, "m", mod))

	v, err := e.GetGlobal("m", "g")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), v)

	require.NoError(t, e.SetGlobal("m", "g", 9))
	v, err = e.GetGlobal("m", "g")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), v)
}

func TestEngine_RegisterHostFunction(t *testing.T) {
	e := NewEngine(Options{})
	e.RegisterHostFunction("double", wasm.FuncType{Params: []wasm.ValueType{wasm.I32}, Results: []wasm.ValueType{wasm.I32}},
		func(caller store.Caller, args []uint64) ([]uint64, error) {
			return []uint64{args[0] * 2}, nil
		})

	addr, err := e.resolveFunc("env", "double")
	require.NoError(t, err)
	results, err := e.VM.Invoke(context.Background(), addr, 21)
	require.NoError(t, err)
	assert.Equal(t, []uint64{42}, results)
}

// TestEngine_HostFunctionAccessesCallerMemory registers a host
// function that reads a buffer out of the calling module's own
// memory, exercising store.Caller end to end: a Wasm function stores a
// value then calls the host import, which must see it through the
// caller handle rather than any memory of its own. Built by hand
// rather than through frontend/text, which has no import support (see
// its package doc).
func TestEngine_HostFunctionAccessesCallerMemory(t *testing.T) {
	readSig := wasm.FuncType{Params: []wasm.ValueType{wasm.I32}}
	storeSig := wasm.FuncType{Params: []wasm.ValueType{wasm.I32, wasm.I32}}

	m := &wasm.Module{
		Types:     []wasm.FuncType{readSig, storeSig},
		Mems:      []wasm.MemType{{Limits: wasm.Limits{Min: 1}}},
		Imports:   []wasm.Import{{Module: "env", Name: "read4", Kind: wasm.ExternalFunc, FuncTypeIdx: 0}},
		ExportMap: map[string]wasm.Export{},
	}
	body := []byte{
		byte(mustOp("local.get")), 0x00,
		byte(mustOp("local.get")), 0x01,
		byte(mustOp("i32.store")), 0x00, 0x00, // align, offset
		byte(mustOp("local.get")), 0x00,
		byte(mustOp("call")), 0x00, // import index 0: env.read4
		byte(mustOp("end")),
	}
	m.Functions = append(m.Functions, wasm.Function{Type: storeSig, Name: "storeAndRead", Body: wasm.Func{Code: body}})
	m.Exports = append(m.Exports, wasm.Export{Name: "storeAndRead", Kind: wasm.ExternalFunc, Idx: 1})
	m.ExportMap["storeAndRead"] = m.Exports[0]

	e := NewEngine(Options{})
	var seen []byte
	e.RegisterHostFunction("read4", readSig,
		func(caller store.Caller, args []uint64) ([]uint64, error) {
			b, err := caller.ReadMemory(uint32(args[0]), 4)
			if err != nil {
				return nil, err
			}
			seen = b
			return nil, nil
		})

	ctx := context.Background()
	require.NoError(t, e.AddModuleDecoded(ctx, "m", m))

	fn, err := e.GetFunction("m", "storeAndRead")
	require.NoError(t, err)
	_, err = fn.Invoke(ctx, 0, 1234)
	require.NoError(t, err)
	require.Len(t, seen, 4)
	assert.Equal(t, uint32(1234), uint32(seen[0])|uint32(seen[1])<<8|uint32(seen[2])<<16|uint32(seen[3])<<24)
}

func mustOp(name string) byte {
	op, ok := opcode.ByName(name)
	if !ok {
		panic("unknown opcode " + name)
	}
	return byte(op)
}
