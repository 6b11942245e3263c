package number

import (
	"math"

	"github.com/wasmforge/wasmcore/trap"
)

// Type names the integer (signed or unsigned) or float interpretation
// of a raw value for FloatTruncate and ConvertToFloat.
type Type int

const (
	I32 Type = iota
	U32
	I64
	U64
	F32
	F64
)

// canTruncate reports whether the float value v is within the range
// that truncates into an in-range integer of type to (the saturating
// i32.trunc_sat_f32_s-style instructions are not in the MVP set; every
// out-of-range truncation here traps).
func canTruncate(to Type, v float64) bool {
	switch to {
	case I32:
		return v >= math.MinInt32 && v < math.MaxInt32+1
	case U32:
		return v > -1 && v < math.MaxUint32+1
	case I64:
		// 2^63 is not exactly representable in float64; comparing
		// against it directly (rather than MaxInt64) avoids rounding
		// the bound down to a value trunc could wrongly accept.
		return v >= -9223372036854775808.0 && v < 9223372036854775808.0
	case U64:
		return v > -1 && v < 18446744073709551616.0
	}
	panic("number: canTruncate of non-integer type")
}

// FloatTruncate implements the trunc_f32/trunc_f64 instruction family:
// truncate the float given by floatBits (interpreted per from) toward
// zero into the integer type to, trapping on NaN or out-of-range input
// per the Wasm MVP (there is no saturating variant).
func FloatTruncate(from Type, to Type, floatBits uint64) (uint64, *trap.Trap) {
	var f float64
	switch from {
	case F32:
		f32 := math.Float32frombits(uint32(floatBits))
		if math.IsNaN(float64(f32)) {
			return 0, trap.New(trap.InvalidConversionToInt)
		}
		f = float64(f32)
	case F64:
		f = math.Float64frombits(floatBits)
		if math.IsNaN(f) {
			return 0, trap.New(trap.InvalidConversionToInt)
		}
	default:
		panic("number: FloatTruncate from must be a float type")
	}

	if !canTruncate(to, f) {
		return 0, trap.New(trap.InvalidConversionToInt)
	}

	switch to {
	case I32:
		return uint64(uint32(int32(f))), nil
	case I64:
		return uint64(int64(f)), nil
	case U32:
		return uint64(uint32(f)), nil
	case U64:
		return uint64(f), nil
	}
	panic("number: FloatTruncate to must be an integer type")
}

// ConvertToFloat implements the convert_i32/convert_i64 instruction
// family: widen the integer given by bits (interpreted per from) into
// a float of type to. Unlike truncation this never traps.
func ConvertToFloat(from Type, to Type, bits uint64) uint64 {
	var f float64
	switch from {
	case I32:
		f = float64(int32(uint32(bits)))
	case U32:
		f = float64(uint32(bits))
	case I64:
		f = float64(int64(bits))
	case U64:
		f = float64(bits)
	default:
		panic("number: ConvertToFloat from must be an integer type")
	}
	switch to {
	case F32:
		return uint64(math.Float32bits(float32(f)))
	case F64:
		return math.Float64bits(f)
	}
	panic("number: ConvertToFloat to must be a float type")
}
