package number

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmforge/wasmcore/trap"
)

func TestFloatTruncate_InRange(t *testing.T) {
	bits := math.Float64bits(3.9)
	got, tr := FloatTruncate(F64, I32, bits)
	require.Nil(t, tr)
	assert.Equal(t, int32(3), int32(uint32(got)))
}

func TestFloatTruncate_NegativeInRange(t *testing.T) {
	bits := math.Float64bits(-3.9)
	got, tr := FloatTruncate(F64, I32, bits)
	require.Nil(t, tr)
	assert.Equal(t, int32(-3), int32(uint32(got)))
}

func TestFloatTruncate_NaNTraps(t *testing.T) {
	bits := math.Float64bits(math.NaN())
	_, tr := FloatTruncate(F64, I32, bits)
	require.NotNil(t, tr)
	assert.True(t, trap.Is(tr, trap.InvalidConversionToInt))
}

func TestFloatTruncate_OutOfRangeTraps(t *testing.T) {
	bits := math.Float64bits(1e20)
	_, tr := FloatTruncate(F64, I32, bits)
	require.NotNil(t, tr)
	assert.True(t, trap.Is(tr, trap.InvalidConversionToInt))
}

func TestFloatTruncate_F32Source(t *testing.T) {
	bits := uint64(math.Float32bits(42.7))
	got, tr := FloatTruncate(F32, I64, bits)
	require.Nil(t, tr)
	assert.Equal(t, int64(42), int64(got))
}

func TestConvertToFloat_SignedAndUnsigned(t *testing.T) {
	got := ConvertToFloat(I32, F64, uint64(uint32(int32(-5))))
	assert.Equal(t, float64(-5), math.Float64frombits(got))

	got = ConvertToFloat(U32, F64, uint64(uint32(0xffffffff)))
	assert.Equal(t, float64(4294967295), math.Float64frombits(got))
}

func TestConvertToFloat_I64ToF32(t *testing.T) {
	got := ConvertToFloat(I64, F32, uint64(int64(100)))
	assert.Equal(t, float32(100), math.Float32frombits(uint32(got)))
}
