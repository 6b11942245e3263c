package vm

import (
	"github.com/wasmforge/wasmcore/bytereader"
	"github.com/wasmforge/wasmcore/store"
)

// label is one entry of the control-flow label stack: the information
// needed to unwind the operand stack and resume execution when a
// branch targets it.
type label struct {
	arity        int    // 0 or 1, the block type's result count
	stackHeight  int    // operand stack height when the label was pushed
	isLoop       bool   // loop labels branch back to their header, not past their end
	continuation uint32 // ip to resume at: loop header, or the position after the matching end
}

// frame is one activation: the locals and instruction cursor of a
// single Wasm function invocation, plus the label stack scoped to it.
// A frame never outlives the Invoke call that created it; frames are
// linked only through the VM's frame stack, never through each other,
// so nothing here references the calling frame.
type frame struct {
	code      *bytereader.Reader
	locals    []uint64
	modInst   *store.ModuleInstance
	labels    []label
	resultArity int // 0 or 1, the function's own result arity
	baseHeight  int // operand stack height at function entry
}

func newFrame(modInst *store.ModuleInstance, code []byte, locals []uint64, resultArity int, baseHeight int) *frame {
	return &frame{
		code:        bytereader.New(code),
		locals:      locals,
		modInst:     modInst,
		resultArity: resultArity,
		baseHeight:  baseHeight,
	}
}

func (f *frame) pushLabel(l label) {
	f.labels = append(f.labels, l)
}

func (f *frame) popLabel() label {
	l := f.labels[len(f.labels)-1]
	f.labels = f.labels[:len(f.labels)-1]
	return l
}

// labelAt returns the label `depth` entries from the top (0 = innermost).
func (f *frame) labelAt(depth uint32) (label, bool) {
	idx := len(f.labels) - 1 - int(depth)
	if idx < 0 {
		return label{}, false
	}
	return f.labels[idx], true
}
