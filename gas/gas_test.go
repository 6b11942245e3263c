package gas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmforge/wasmcore/trap"
	"github.com/wasmforge/wasmcore/wasm/opcode"
)

func TestGas_ChargeWithinLimit(t *testing.T) {
	g := &Gas{Limit: 100}
	require.Nil(t, g.Charge(40))
	require.Nil(t, g.Charge(40))
	assert.Equal(t, uint64(80), g.Used)
}

func TestGas_ChargeExceedsLimit(t *testing.T) {
	g := &Gas{Limit: 10}
	tr := g.Charge(11)
	require.NotNil(t, tr)
	assert.True(t, trap.Is(tr, trap.HostTrap))
	assert.Equal(t, uint64(10), g.Used)
}

func TestGas_ZeroLimitIsUnmetered(t *testing.T) {
	g := &Gas{}
	require.Nil(t, g.Charge(1<<40))
}

func TestFreePolicy(t *testing.T) {
	var p FreePolicy
	assert.Equal(t, uint64(0), p.CostForOp(opcode.I32Add))
	assert.Equal(t, uint64(0), p.CostForGrow(5))
}

func TestFlatPolicy(t *testing.T) {
	p := FlatPolicy{}
	assert.Equal(t, uint64(1), p.CostForOp(opcode.I32Add))
	assert.Equal(t, uint64(5), p.CostForGrow(5))

	withPage := FlatPolicy{PerPage: 1024}
	assert.Equal(t, uint64(5*1024), withPage.CostForGrow(5))
}
