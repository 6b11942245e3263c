package text

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmforge/wasmcore/link"
	"github.com/wasmforge/wasmcore/store"
	"github.com/wasmforge/wasmcore/vm"
)

func run(t *testing.T, src string, export string, args ...uint64) []uint64 {
	t.Helper()
	mod, err := Parse([]byte(src))
	require.NoError(t, err)

	ctx := context.Background()
	s := store.New()
	v := vm.New(s)
	l := link.New(v)
	mi, err := link.Instantiate(ctx, l, mod, nil, "m")
	require.NoError(t, err)

	exp, ok := mi.Export(export)
	require.True(t, ok)
	addr := mi.FuncAddrs[exp.Idx]

	results, err := v.Invoke(ctx, addr, args...)
	require.NoError(t, err)
	return results
}

func TestParse_Add(t *testing.T) {
	src := `(module
	  (func $add (param i32 i32) (result i32)
	    local.get 0
	    local.get 1
	    i32.add)
	  (export "add" (func $add)))`

	results := run(t, src, "add", 2, 40)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(42), results[0])
}

func TestParse_LoopCounter(t *testing.T) {
	src := `(module
	  (func $count (param i32) (result i32)
	    (local i32)
	    i32.const 0
	    local.set 1
	    block
	      loop
	        local.get 1
	        local.get 0
	        i32.lt_u
	        i32.eqz
	        br_if 1
	        local.get 1
	        i32.const 1
	        i32.add
	        local.set 1
	        br 0
	      end
	    end
	    local.get 1)
	  (export "count" (func $count)))`

	results := run(t, src, "count", 50000)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(50000), results[0])
}

func TestParse_GlobalExport(t *testing.T) {
	src := `(module
	  (global $g (mut i32) i32.const 7)
	  (export "g" (global $g)))`

	mod, err := Parse([]byte(src))
	require.NoError(t, err)
	require.Len(t, mod.Globals, 1)
	exp, ok := mod.ExportMap["g"]
	require.True(t, ok)
	assert.Equal(t, uint32(0), exp.Idx)
}
