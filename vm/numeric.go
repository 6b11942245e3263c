package vm

import (
	"math"
	"math/bits"

	"github.com/chewxy/math32"
	"github.com/wasmforge/wasmcore/trap"
)

func b2u64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// --- i32 ---

func i32DivS(a, b int32) (int32, *trap.Trap) {
	if b == 0 {
		return 0, trap.New(trap.IntegerDivideByZero)
	}
	if a == math.MinInt32 && b == -1 {
		return 0, trap.New(trap.IntegerOverflow)
	}
	return a / b, nil
}

func i32RemS(a, b int32) (int32, *trap.Trap) {
	if b == 0 {
		return 0, trap.New(trap.IntegerDivideByZero)
	}
	if a == math.MinInt32 && b == -1 {
		return 0, nil
	}
	return a % b, nil
}

func i32DivU(a, b uint32) (uint32, *trap.Trap) {
	if b == 0 {
		return 0, trap.New(trap.IntegerDivideByZero)
	}
	return a / b, nil
}

func i32RemU(a, b uint32) (uint32, *trap.Trap) {
	if b == 0 {
		return 0, trap.New(trap.IntegerDivideByZero)
	}
	return a % b, nil
}

// --- i64 ---

func i64DivS(a, b int64) (int64, *trap.Trap) {
	if b == 0 {
		return 0, trap.New(trap.IntegerDivideByZero)
	}
	if a == math.MinInt64 && b == -1 {
		return 0, trap.New(trap.IntegerOverflow)
	}
	return a / b, nil
}

func i64RemS(a, b int64) (int64, *trap.Trap) {
	if b == 0 {
		return 0, trap.New(trap.IntegerDivideByZero)
	}
	if a == math.MinInt64 && b == -1 {
		return 0, nil
	}
	return a % b, nil
}

func i64DivU(a, b uint64) (uint64, *trap.Trap) {
	if b == 0 {
		return 0, trap.New(trap.IntegerDivideByZero)
	}
	return a / b, nil
}

func i64RemU(a, b uint64) (uint64, *trap.Trap) {
	if b == 0 {
		return 0, trap.New(trap.IntegerDivideByZero)
	}
	return a % b, nil
}

func rotl32(x uint32, n uint32) uint32 { return bits.RotateLeft32(x, int(n&31)) }
func rotr32(x uint32, n uint32) uint32 { return bits.RotateLeft32(x, -int(n&31)) }
func rotl64(x uint64, n uint64) uint64 { return bits.RotateLeft64(x, int(n&63)) }
func rotr64(x uint64, n uint64) uint64 { return bits.RotateLeft64(x, -int(n&63)) }

// --- f32 ---
// math32 is used instead of converting through float64, so results
// round exactly as single-precision hardware would rather than
// picking up extra precision from a float64 round-trip.

func f32Min(a, b float32) float32 {
	if math32.IsNaN(a) {
		return a
	}
	if math32.IsNaN(b) {
		return b
	}
	if a == 0 && b == 0 {
		if math32.Signbit(a) {
			return a
		}
		return b
	}
	if a < b {
		return a
	}
	return b
}

func f32Max(a, b float32) float32 {
	if math32.IsNaN(a) {
		return a
	}
	if math32.IsNaN(b) {
		return b
	}
	if a == 0 && b == 0 {
		if !math32.Signbit(a) {
			return a
		}
		return b
	}
	if a > b {
		return a
	}
	return b
}

func f32Copysign(a, b float32) float32 { return math32.Copysign(a, b) }

// --- f64 ---

func f64Min(a, b float64) float64 {
	if math.IsNaN(a) {
		return a
	}
	if math.IsNaN(b) {
		return b
	}
	if a == 0 && b == 0 {
		if math.Signbit(a) {
			return a
		}
		return b
	}
	if a < b {
		return a
	}
	return b
}

func f64Max(a, b float64) float64 {
	if math.IsNaN(a) {
		return a
	}
	if math.IsNaN(b) {
		return b
	}
	if a == 0 && b == 0 {
		if !math.Signbit(a) {
			return a
		}
		return b
	}
	if a > b {
		return a
	}
	return b
}
