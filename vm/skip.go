package vm

import (
	"fmt"

	"github.com/wasmforge/wasmcore/bytereader"
	"github.com/wasmforge/wasmcore/leb128"
	"github.com/wasmforge/wasmcore/wasm/opcode"
)

// readBlockType reads the MVP block type immediate: either the empty
// marker 0x40 (arity 0) or a value type byte (arity 1).
func readBlockType(br *bytereader.Reader) (arity int, err error) {
	b, err := br.ReadOne()
	if err != nil {
		return 0, err
	}
	if b == 0x40 {
		return 0, nil
	}
	switch b {
	case byte(0x7F), byte(0x7E), byte(0x7D), byte(0x7C):
		return 1, nil
	}
	return 0, fmt.Errorf("vm: invalid block type byte 0x%x", b)
}

// skipImmediate advances br past the immediate bytes of the
// instruction whose opcode was just read, discarding their values.
// Used to walk past nested block bodies when locating a matching
// `else`/`end` without executing anything, and when an operation
// elsewhere in the body is statically unreachable (skipped `else`
// arm, dead `if` branch).
func skipImmediate(br *bytereader.Reader, op opcode.Opcode) error {
	switch op {
	case opcode.Block, opcode.Loop, opcode.If:
		_, err := readBlockType(br)
		return err
	case opcode.Br, opcode.BrIf, opcode.Call, opcode.LocalGet, opcode.LocalSet, opcode.LocalTee,
		opcode.GlobalGet, opcode.GlobalSet:
		_, err := leb128.ReadUint32(br)
		return err
	case opcode.BrTable:
		n, err := leb128.ReadUint32(br)
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			if _, err := leb128.ReadUint32(br); err != nil {
				return err
			}
		}
		_, err = leb128.ReadUint32(br)
		return err
	case opcode.CallIndirect:
		if _, err := leb128.ReadUint32(br); err != nil {
			return err
		}
		_, err := br.ReadOne()
		return err
	case opcode.MemorySize, opcode.MemoryGrow:
		_, err := br.ReadOne()
		return err
	case opcode.I32Const:
		_, err := leb128.ReadInt32(br)
		return err
	case opcode.I64Const:
		_, err := leb128.ReadInt64(br)
		return err
	case opcode.F32Const:
		_, err := br.Read(4)
		return err
	case opcode.F64Const:
		_, err := br.Read(8)
		return err
	default:
		if isLoadStore(op) {
			if _, err := leb128.ReadUint32(br); err != nil {
				return err
			}
			_, err := leb128.ReadUint32(br)
			return err
		}
		// Every other opcode (control no-immediate, numeric,
		// comparison, parametric, else, end, unreachable, nop,
		// return) carries no immediate.
		return nil
	}
}

func isLoadStore(op opcode.Opcode) bool {
	return op >= opcode.I32Load && op <= opcode.I64Store32
}

// skipTo scans forward from br's current position (just past a
// block/loop/if header) to the matching `end`, tracking nested
// block/loop/if depth, and opportunistically records the position
// just after a depth-0 `else` (this if's own else, not a nested one)
// along the way.
func skipTo(br *bytereader.Reader) (endPos uint32, elsePos uint32, hasElse bool, err error) {
	depth := 0
	for {
		b, err := br.ReadOne()
		if err != nil {
			return 0, 0, false, err
		}
		op := opcode.Opcode(b)
		switch op {
		case opcode.Block, opcode.Loop, opcode.If:
			depth++
		case opcode.Else:
			if depth == 0 {
				elsePos = br.Pos()
				hasElse = true
			}
		case opcode.End:
			if depth == 0 {
				return br.Pos(), elsePos, hasElse, nil
			}
			depth--
			continue
		}
		if err := skipImmediate(br, op); err != nil {
			return 0, 0, false, err
		}
	}
}
