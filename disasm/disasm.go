// Package disasm renders a decoded function body back into readable
// WAT-style text. It exists for diagnostics: when a trap fires partway
// through a function, the caller can show the offending instruction (and
// a few neighbors) in a form a human can read, instead of a bare byte
// offset.
package disasm

import (
	"fmt"
	"strings"

	"github.com/wasmforge/wasmcore/bytereader"
	"github.com/wasmforge/wasmcore/leb128"
	"github.com/wasmforge/wasmcore/wasm"
	"github.com/wasmforge/wasmcore/wasm/opcode"
)

// Instruction is one decoded instruction within a function body.
type Instruction struct {
	// Offset is the byte offset of the opcode within the function's
	// code bytes (not the whole module).
	Offset   uint32
	Opcode   opcode.Opcode
	Operands string
}

// String formats the instruction in WAT style, e.g. "i32.const 42" or
// "br_table [0 1] 2".
func (inst Instruction) String() string {
	if inst.Operands != "" {
		return fmt.Sprintf("%s %s", inst.Opcode.String(), inst.Operands)
	}
	return inst.Opcode.String()
}

// Snippet is a window of decoded instructions around a target offset,
// used to show a few lines of context around a trapping instruction.
type Snippet struct {
	Instructions []Instruction
	TargetOffset uint32
	TargetIndex  int
}

// Format renders the snippet with an arrow marking the target
// instruction.
func (s Snippet) Format() string {
	if len(s.Instructions) == 0 {
		return "  <no instructions decoded>"
	}
	var b strings.Builder
	for i, inst := range s.Instructions {
		marker := "  "
		if i == s.TargetIndex {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s0x%04x: %s\n", marker, inst.Offset, inst.String())
	}
	return b.String()
}

// Format renders every instruction in fn's body, one mnemonic (plus
// operands) per line, prefixed with its byte offset. Used by the CLI's
// disasm subcommand.
func Format(fn *wasm.Function) string {
	instrs, err := DecodeAll(fn)
	var b strings.Builder
	for _, inst := range instrs {
		fmt.Fprintf(&b, "0x%04x: %s\n", inst.Offset, inst.String())
	}
	if err != nil {
		fmt.Fprintf(&b, "(truncated: %v)\n", err)
	}
	return b.String()
}

// DecodeAll decodes every instruction in a function's body.
func DecodeAll(fn *wasm.Function) ([]Instruction, error) {
	br := bytereader.New(fn.Body.Code)
	var out []Instruction
	for br.Len() > 0 {
		inst, err := decodeOne(br)
		if err != nil {
			return out, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// AtOffset decodes fn's body and returns a Snippet of contextLines
// instructions before and after the one at (or immediately preceding)
// targetOffset.
func AtOffset(fn *wasm.Function, targetOffset uint32, contextLines int) (Snippet, error) {
	instrs, err := DecodeAll(fn)
	if err != nil && len(instrs) == 0 {
		return Snippet{}, err
	}
	if len(instrs) == 0 {
		return Snippet{TargetOffset: targetOffset, TargetIndex: -1}, nil
	}

	targetIdx := 0
	for i, inst := range instrs {
		if inst.Offset == targetOffset {
			targetIdx = i
			break
		}
		if inst.Offset <= targetOffset && (i+1 >= len(instrs) || instrs[i+1].Offset > targetOffset) {
			targetIdx = i
			break
		}
	}

	start := targetIdx - contextLines
	if start < 0 {
		start = 0
	}
	end := targetIdx + contextLines + 1
	if end > len(instrs) {
		end = len(instrs)
	}

	return Snippet{
		Instructions: instrs[start:end],
		TargetOffset: targetOffset,
		TargetIndex:  targetIdx - start,
	}, nil
}

// decodeOne reads one instruction at br's current position, advancing
// br past it, and renders its operands the same way skipImmediate in
// the executor parses them — this package never executes anything, it
// only describes.
func decodeOne(br *bytereader.Reader) (Instruction, error) {
	offset := br.Pos()
	b, err := br.ReadOne()
	if err != nil {
		return Instruction{}, err
	}
	op := opcode.Opcode(b)

	operands, err := decodeOperands(br, op)
	if err != nil {
		return Instruction{Offset: offset, Opcode: op}, err
	}
	return Instruction{Offset: offset, Opcode: op, Operands: operands}, nil
}

func decodeOperands(br *bytereader.Reader, op opcode.Opcode) (string, error) {
	switch op {
	case opcode.Block, opcode.Loop, opcode.If:
		b, err := br.ReadOne()
		if err != nil {
			return "", err
		}
		switch b {
		case 0x40:
			return "", nil
		case 0x7F:
			return "(result i32)", nil
		case 0x7E:
			return "(result i64)", nil
		case 0x7D:
			return "(result f32)", nil
		case 0x7C:
			return "(result f64)", nil
		default:
			return "(type ?)", nil
		}
	case opcode.Br, opcode.BrIf:
		n, err := leb128.ReadUint32(br)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d", n), nil
	case opcode.BrTable:
		count, err := leb128.ReadUint32(br)
		if err != nil {
			return "", err
		}
		targets := make([]string, 0, count)
		for i := uint32(0); i < count; i++ {
			t, err := leb128.ReadUint32(br)
			if err != nil {
				return "", err
			}
			targets = append(targets, fmt.Sprintf("%d", t))
		}
		def, err := leb128.ReadUint32(br)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("[%s] %d", strings.Join(targets, " "), def), nil
	case opcode.Call:
		n, err := leb128.ReadUint32(br)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("$func%d", n), nil
	case opcode.CallIndirect:
		typeIdx, err := leb128.ReadUint32(br)
		if err != nil {
			return "", err
		}
		if _, err := br.ReadOne(); err != nil {
			return "", err
		}
		return fmt.Sprintf("(type %d)", typeIdx), nil
	case opcode.LocalGet, opcode.LocalSet, opcode.LocalTee, opcode.GlobalGet, opcode.GlobalSet:
		n, err := leb128.ReadUint32(br)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d", n), nil
	case opcode.MemorySize, opcode.MemoryGrow:
		if _, err := br.ReadOne(); err != nil {
			return "", err
		}
		return "", nil
	case opcode.I32Const:
		n, err := leb128.ReadInt32(br)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d", n), nil
	case opcode.I64Const:
		n, err := leb128.ReadInt64(br)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d", n), nil
	case opcode.F32Const:
		bits, err := br.Read(4)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("0x%08x", le32(bits)), nil
	case opcode.F64Const:
		bits, err := br.Read(8)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("0x%016x", le64(bits)), nil
	default:
		if isLoadStore(op) {
			align, err := leb128.ReadUint32(br)
			if err != nil {
				return "", err
			}
			offset, err := leb128.ReadUint32(br)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("offset=%d align=%d", offset, align), nil
		}
		return "", nil
	}
}

func isLoadStore(op opcode.Opcode) bool {
	return op >= opcode.I32Load && op <= opcode.I64Store32
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func le64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
