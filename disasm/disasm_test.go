package disasm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmforge/wasmcore/wasm"
	"github.com/wasmforge/wasmcore/wasm/opcode"
)

func fn(body ...byte) *wasm.Function {
	return &wasm.Function{Body: wasm.Func{Code: body}}
}

func TestDecodeAll_SimpleAdd(t *testing.T) {
	f := fn(
		byte(opcode.LocalGet), 0x00,
		byte(opcode.LocalGet), 0x01,
		byte(opcode.I32Add),
		byte(opcode.End),
	)

	instrs, err := DecodeAll(f)
	require.NoError(t, err)
	require.Len(t, instrs, 4)

	assert.Equal(t, opcode.LocalGet, instrs[0].Opcode)
	assert.Equal(t, "0", instrs[0].Operands)
	assert.Equal(t, uint32(0), instrs[0].Offset)

	assert.Equal(t, opcode.LocalGet, instrs[1].Opcode)
	assert.Equal(t, uint32(2), instrs[1].Offset)

	assert.Equal(t, opcode.I32Add, instrs[2].Opcode)
	assert.Equal(t, "i32.add", instrs[2].String())

	assert.Equal(t, opcode.End, instrs[3].Opcode)
}

func TestDecodeAll_ConstAndCall(t *testing.T) {
	f := fn(
		byte(opcode.I32Const), 0x2A, // 42
		byte(opcode.Call), 0x03,
		byte(opcode.End),
	)

	instrs, err := DecodeAll(f)
	require.NoError(t, err)
	require.Len(t, instrs, 3)
	assert.Equal(t, "i32.const 42", instrs[0].String())
	assert.Equal(t, "call $func3", instrs[1].String())
}

func TestDecodeAll_BrTable(t *testing.T) {
	f := fn(
		byte(opcode.BrTable), 0x02, 0x00, 0x01, 0x02,
		byte(opcode.End),
	)

	instrs, err := DecodeAll(f)
	require.NoError(t, err)
	require.Len(t, instrs, 2)
	assert.Equal(t, "br_table [0 1] 2", instrs[0].String())
}

func TestDecodeAll_MemoryLoadStore(t *testing.T) {
	f := fn(
		byte(opcode.I32Load), 0x02, 0x04, // align=2 offset=4
		byte(opcode.Drop),
		byte(opcode.End),
	)

	instrs, err := DecodeAll(f)
	require.NoError(t, err)
	assert.Equal(t, "i32.load offset=4 align=2", instrs[0].String())
}

func TestDecodeAll_BlockWithResultType(t *testing.T) {
	f := fn(
		byte(opcode.Block), 0x7F, // (result i32)
		byte(opcode.I32Const), 0x01,
		byte(opcode.End),
		byte(opcode.End),
	)

	instrs, err := DecodeAll(f)
	require.NoError(t, err)
	assert.Equal(t, "block (result i32)", instrs[0].String())
}

func TestAtOffset_ReturnsWindowAroundTarget(t *testing.T) {
	f := fn(
		byte(opcode.I32Const), 0x01, // offset 0
		byte(opcode.I32Const), 0x00, // offset 2
		byte(opcode.I32DivS), // offset 4, traps here
		byte(opcode.End),     // offset 5
	)

	snip, err := AtOffset(f, 4, 1)
	require.NoError(t, err)
	require.Len(t, snip.Instructions, 3)
	assert.Equal(t, 1, snip.TargetIndex)
	assert.Equal(t, opcode.I32DivS, snip.Instructions[snip.TargetIndex].Opcode)

	rendered := snip.Format()
	assert.True(t, strings.Contains(rendered, "> 0x0004: i32.div_s"))
}

func TestAtOffset_EmptyBody(t *testing.T) {
	f := fn(byte(opcode.End))
	snip, err := AtOffset(f, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, snip.TargetIndex)
}
