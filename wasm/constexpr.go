package wasm

import (
	"github.com/wasmforge/wasmcore/bytereader"
	"github.com/wasmforge/wasmcore/leb128"
	"github.com/wasmforge/wasmcore/wasm/opcode"
)

// ImportedGlobal is the minimal view of an imported global a constant
// expression is allowed to reference: its current value and whether it
// is mutable (only immutable imported globals are legal in a constant
// expression, per the Wasm MVP).
type ImportedGlobal struct {
	Value   uint64
	Type    ValueType
	Mutable bool
}

// EvalConstExpr evaluates a constant initializer expression (used for
// global initializers, element-segment offsets, and data-segment
// offsets). Per spec, only *.const and global.get of an immutable
// imported global are legal; evaluation starts with an empty operand
// stack and must leave exactly one value.
func EvalConstExpr(expr []byte, importedGlobals []ImportedGlobal) (uint64, ValueType, error) {
	br := bytereader.New(expr)
	var (
		haveValue bool
		value     uint64
		valType   ValueType
	)
	for {
		b, err := br.ReadOne()
		if err != nil {
			return 0, 0, errConstExpr("truncated constant expression")
		}
		op := opcode.Opcode(b)
		if op == opcode.End {
			break
		}
		if haveValue {
			return 0, 0, errConstExpr("constant expression produced more than one value")
		}
		switch op {
		case opcode.I32Const:
			v, err := leb128.ReadInt32(br)
			if err != nil {
				return 0, 0, err
			}
			value, valType, haveValue = uint64(uint32(v)), I32, true
		case opcode.I64Const:
			v, err := leb128.ReadInt64(br)
			if err != nil {
				return 0, 0, err
			}
			value, valType, haveValue = uint64(v), I64, true
		case opcode.F32Const:
			buf, err := br.Read(4)
			if err != nil {
				return 0, 0, err
			}
			bits := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
			value, valType, haveValue = uint64(bits), F32, true
		case opcode.F64Const:
			buf, err := br.Read(8)
			if err != nil {
				return 0, 0, err
			}
			var bits uint64
			for i := 0; i < 8; i++ {
				bits |= uint64(buf[i]) << (8 * i)
			}
			value, valType, haveValue = bits, F64, true
		case opcode.GlobalGet:
			idx, err := leb128.ReadUint32(br)
			if err != nil {
				return 0, 0, err
			}
			if int(idx) >= len(importedGlobals) {
				return 0, 0, errConstExpr("global.get in constant expression must reference an import")
			}
			g := importedGlobals[idx]
			if g.Mutable {
				return 0, 0, errConstExpr("global.get in constant expression must reference an immutable global")
			}
			value, valType, haveValue = g.Value, g.Type, true
		default:
			return 0, 0, errConstExpr("illegal instruction in constant expression")
		}
	}
	if !haveValue {
		return 0, 0, errConstExpr("constant expression produced no value")
	}
	return value, valType, nil
}

type constExprError struct{ reason string }

func (e *constExprError) Error() string { return "wasm: " + e.reason }

func errConstExpr(reason string) error { return &constExprError{reason} }
