package opcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	assert.Equal(t, "i32.add", I32Add.String())
	assert.Equal(t, "call_indirect", CallIndirect.String())
	assert.Equal(t, "unknown", Opcode(0xFF).String())
}

func TestByName(t *testing.T) {
	op, ok := ByName("i32.add")
	assert.True(t, ok)
	assert.Equal(t, I32Add, op)

	_, ok = ByName("not.a.real.op")
	assert.False(t, ok)
}

func TestByName_IsInverseOfString(t *testing.T) {
	for op, name := range names {
		got, ok := ByName(name)
		assert.True(t, ok, "mnemonic %q should resolve", name)
		assert.Equal(t, op, got, "round trip for %q", name)
	}
}

func TestIsConst(t *testing.T) {
	assert.True(t, I32Const.IsConst())
	assert.True(t, F64Const.IsConst())
	assert.False(t, I32Add.IsConst())
}
