package trap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_MessageIsKindDescription(t *testing.T) {
	tr := New(IntegerDivideByZero)
	assert.Equal(t, IntegerDivideByZero, tr.Kind)
	assert.Equal(t, "integer divide by zero", tr.Error())
}

func TestNewf_FormatsMessage(t *testing.T) {
	tr := Newf(OutOfBoundsMemoryAccess, "address %d out of bounds (size %d)", 100, 10)
	assert.Equal(t, OutOfBoundsMemoryAccess, tr.Kind)
	assert.Equal(t, "address 100 out of bounds (size 10)", tr.Error())
}

func TestIs(t *testing.T) {
	var err error = New(CallStackExhausted)
	assert.True(t, Is(err, CallStackExhausted))
	assert.False(t, Is(err, HostTrap))
	assert.False(t, Is(nil, HostTrap))
}
