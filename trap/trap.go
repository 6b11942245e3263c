// Package trap defines the engine's single runtime-error type. Every
// failure raised while executing a Wasm function is a Trap: an
// unrecoverable, uniformly reported failure of one invocation.
package trap

import "fmt"

// Kind enumerates the fixed trap kinds the engine can raise. The set is
// closed: it matches the Wasm MVP trap taxonomy plus the two engine-only
// additions (type_mismatch and host_trap) called out by the spec's error
// handling design.
type Kind string

const (
	Unreachable               Kind = "unreachable"
	IntegerDivideByZero       Kind = "integer divide by zero"
	IntegerOverflow           Kind = "integer overflow"
	InvalidConversionToInt    Kind = "invalid conversion to integer"
	OutOfBoundsMemoryAccess   Kind = "out of bounds memory access"
	OutOfBoundsTableAccess    Kind = "out of bounds table access"
	UninitializedElement      Kind = "uninitialized element"
	IndirectCallTypeMismatch  Kind = "indirect call type mismatch"
	CallStackExhausted        Kind = "call stack exhausted"
	TypeMismatch              Kind = "type mismatch"
	HostTrap                  Kind = "host trap"
)

// Trap is the single error type the engine surfaces to an embedder. It
// terminates one invocation; the Store and any mutations it already
// performed are left exactly as they were (Wasm has no transactional
// rollback).
type Trap struct {
	Kind    Kind
	Message string
}

// New builds a Trap whose message is exactly the kind's description.
func New(kind Kind) *Trap {
	return &Trap{Kind: kind, Message: string(kind)}
}

// Newf builds a Trap with a kind and a formatted, more specific message.
func Newf(kind Kind, format string, args ...interface{}) *Trap {
	return &Trap{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (t *Trap) Error() string {
	return t.Message
}

// Is reports whether err is a Trap of the given kind, so callers can
// branch on trap taxonomy with errors.Is-style matching.
func Is(err error, kind Kind) bool {
	t, ok := err.(*Trap)
	return ok && t.Kind == kind
}
