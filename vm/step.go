package vm

import (
	"context"
	"math"
	"math/bits"

	"github.com/chewxy/math32"
	"github.com/wasmforge/wasmcore/bytereader"
	"github.com/wasmforge/wasmcore/leb128"
	"github.com/wasmforge/wasmcore/number"
	"github.com/wasmforge/wasmcore/store"
	"github.com/wasmforge/wasmcore/trap"
	"github.com/wasmforge/wasmcore/wasm/opcode"
)

// scanner returns a throwaway Reader positioned where f.code currently
// is, so a block/if can look ahead to its matching end/else without
// disturbing the frame's own cursor.
func scanner(f *frame) *bytereader.Reader {
	tmp := bytereader.New(f.code.Bytes())
	tmp.Seek(f.code.Pos())
	return tmp
}

func mustU32(v uint32, err error) uint32 {
	if err != nil {
		panic(trap.Newf(trap.TypeMismatch, "malformed immediate: %s", err))
	}
	return v
}

// branch implements the shared unwinding logic of br/br_if/br_table:
// pop to the label's saved height (preserving its arity worth of
// results), drop every label down to and including the target, and
// resume at its continuation. A loop label is re-pushed so further
// iterations can branch to it again.
func (v *VM) branch(f *frame, depth uint32) {
	lbl, ok := f.labelAt(depth)
	if !ok {
		panic(trap.Newf(trap.TypeMismatch, "branch to invalid label depth %d", depth))
	}
	saved := append([]uint64(nil), v.stack[v.height()-lbl.arity:]...)
	v.truncateTo(lbl.stackHeight)
	for _, s := range saved {
		v.push(s)
	}
	for i := uint32(0); i <= depth; i++ {
		f.popLabel()
	}
	if lbl.isLoop {
		f.pushLabel(lbl)
	}
	f.code.Seek(lbl.continuation)
}

// step executes one instruction of the current frame. It returns true
// when the frame has finished (an explicit `return`); falling off the
// end of the body is instead detected by the caller's loop.
func (v *VM) step(ctx context.Context, f *frame, op opcode.Opcode) bool {
	switch op {

	case opcode.Unreachable:
		panic(trap.New(trap.Unreachable))
	case opcode.Nop:

	case opcode.Block:
		arity := mustU32FromInt(readBlockType(f.code))
		endPos, _, _, err := skipTo(scanner(f))
		if err != nil {
			panic(trap.Newf(trap.TypeMismatch, "malformed block: %s", err))
		}
		f.pushLabel(label{arity: arity, stackHeight: v.height(), continuation: endPos})

	case opcode.Loop:
		arity := mustU32FromInt(readBlockType(f.code))
		f.pushLabel(label{arity: arity, stackHeight: v.height(), isLoop: true, continuation: f.code.Pos()})

	case opcode.If:
		arity := mustU32FromInt(readBlockType(f.code))
		cond := v.popI32()
		endPos, elsePos, hasElse, err := skipTo(scanner(f))
		if err != nil {
			panic(trap.Newf(trap.TypeMismatch, "malformed if: %s", err))
		}
		f.pushLabel(label{arity: arity, stackHeight: v.height(), continuation: endPos})
		if cond == 0 {
			if hasElse {
				f.code.Seek(elsePos)
			} else {
				f.code.Seek(endPos)
				f.popLabel()
			}
		}

	case opcode.Else:
		// Reached by falling through the "then" arm: the else arm (and
		// the if's own end token) must be skipped, closing the label
		// exactly as an explicit `end` would.
		endPos, _, _, err := skipTo(scanner(f))
		if err != nil {
			panic(trap.Newf(trap.TypeMismatch, "malformed if/else: %s", err))
		}
		f.code.Seek(endPos)
		f.popLabel()

	case opcode.End:
		f.popLabel()

	case opcode.Br:
		depth := mustU32(leb128.ReadUint32(f.code))
		v.branch(f, depth)

	case opcode.BrIf:
		depth := mustU32(leb128.ReadUint32(f.code))
		if v.popI32() != 0 {
			v.branch(f, depth)
		}

	case opcode.BrTable:
		n := mustU32(leb128.ReadUint32(f.code))
		targets := make([]uint32, n)
		for i := range targets {
			targets[i] = mustU32(leb128.ReadUint32(f.code))
		}
		def := mustU32(leb128.ReadUint32(f.code))
		i := v.popI32()
		if i < uint32(len(targets)) {
			v.branch(f, targets[i])
		} else {
			v.branch(f, def)
		}

	case opcode.Return:
		v.unwindReturn(f)
		return true

	case opcode.Call:
		idx := mustU32(leb128.ReadUint32(f.code))
		addr := f.modInst.FuncAddrs[idx]
		v.dispatchCall(ctx, addr)

	case opcode.CallIndirect:
		typeIdx := mustU32(leb128.ReadUint32(f.code))
		if _, err := f.code.ReadOne(); err != nil { // reserved table index byte
			panic(trap.Newf(trap.TypeMismatch, "malformed call_indirect: %s", err))
		}
		elemIdx := v.popI32()
		table := v.Store.Tables[f.modInst.TableAddrs[0]]
		addrPtr, inRange := table.Get(elemIdx)
		if !inRange {
			panic(trap.New(trap.OutOfBoundsTableAccess))
		}
		if addrPtr == nil {
			panic(trap.New(trap.UninitializedElement))
		}
		fi := &v.Store.Funcs[*addrPtr]
		want := f.modInst.Types[typeIdx]
		if !fi.Type.Equal(want) {
			panic(trap.New(trap.IndirectCallTypeMismatch))
		}
		v.dispatchCall(ctx, *addrPtr)

	case opcode.Drop:
		v.pop()

	case opcode.Select:
		c := v.popI32()
		b2 := v.pop()
		a1 := v.pop()
		if c != 0 {
			v.push(a1)
		} else {
			v.push(b2)
		}

	case opcode.LocalGet:
		idx := mustU32(leb128.ReadUint32(f.code))
		v.push(f.locals[idx])
	case opcode.LocalSet:
		idx := mustU32(leb128.ReadUint32(f.code))
		f.locals[idx] = v.pop()
	case opcode.LocalTee:
		idx := mustU32(leb128.ReadUint32(f.code))
		f.locals[idx] = v.peek()

	case opcode.GlobalGet:
		idx := mustU32(leb128.ReadUint32(f.code))
		g := v.Store.Globals[f.modInst.GlobalAddrs[idx]]
		v.push(g.Value)
	case opcode.GlobalSet:
		idx := mustU32(leb128.ReadUint32(f.code))
		g := v.Store.Globals[f.modInst.GlobalAddrs[idx]]
		if !g.Mutable {
			panic(trap.New(trap.TypeMismatch))
		}
		g.Value = v.pop()

	case opcode.I32Load:
		v.execLoad(f, 4, false, false)
	case opcode.I64Load:
		v.execLoad(f, 8, false, true)
	case opcode.F32Load:
		v.execLoad(f, 4, false, false)
	case opcode.F64Load:
		v.execLoad(f, 8, false, true)
	case opcode.I32Load8S:
		v.execNarrowLoad(f, 1, true, false)
	case opcode.I32Load8U:
		v.execNarrowLoad(f, 1, false, false)
	case opcode.I32Load16S:
		v.execNarrowLoad(f, 2, true, false)
	case opcode.I32Load16U:
		v.execNarrowLoad(f, 2, false, false)
	case opcode.I64Load8S:
		v.execNarrowLoad(f, 1, true, true)
	case opcode.I64Load8U:
		v.execNarrowLoad(f, 1, false, true)
	case opcode.I64Load16S:
		v.execNarrowLoad(f, 2, true, true)
	case opcode.I64Load16U:
		v.execNarrowLoad(f, 2, false, true)
	case opcode.I64Load32S:
		v.execNarrowLoad(f, 4, true, true)
	case opcode.I64Load32U:
		v.execNarrowLoad(f, 4, false, true)

	case opcode.I32Store, opcode.F32Store:
		v.execStore(f, 4)
	case opcode.I64Store, opcode.F64Store:
		v.execStore(f, 8)
	case opcode.I32Store8, opcode.I64Store8:
		v.execNarrowStore(f, 1)
	case opcode.I32Store16, opcode.I64Store16:
		v.execNarrowStore(f, 2)
	case opcode.I64Store32:
		v.execNarrowStore(f, 4)

	case opcode.MemorySize:
		f.code.ReadOne() // reserved
		mem := v.mem(f)
		v.pushI32(mem.Pages())
	case opcode.MemoryGrow:
		f.code.ReadOne() // reserved
		mem := v.mem(f)
		delta := v.popI32()
		if v.GasPolicy != nil && v.Gas != nil {
			if t := v.Gas.Charge(v.GasPolicy.CostForGrow(delta)); t != nil {
				panic(t)
			}
		}
		v.pushI32(uint32(int32(mem.Grow(delta))))

	case opcode.I32Const:
		n := mustI32(leb128.ReadInt32(f.code))
		v.pushI32(uint32(n))
	case opcode.I64Const:
		n := mustI64(leb128.ReadInt64(f.code))
		v.pushI64(uint64(n))
	case opcode.F32Const:
		b, err := f.code.Read(4)
		if err != nil {
			panic(trap.Newf(trap.TypeMismatch, "malformed f32.const: %s", err))
		}
		v.pushI32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
	case opcode.F64Const:
		b, err := f.code.Read(8)
		if err != nil {
			panic(trap.Newf(trap.TypeMismatch, "malformed f64.const: %s", err))
		}
		var bits64 uint64
		for i := 0; i < 8; i++ {
			bits64 |= uint64(b[i]) << (8 * i)
		}
		v.pushI64(bits64)

	default:
		v.stepNumeric(op)
	}
	return false
}

func mustU32FromInt(arity int, err error) int {
	if err != nil {
		panic(trap.Newf(trap.TypeMismatch, "malformed block type: %s", err))
	}
	return arity
}

func mustI32(n int32, err error) int32 {
	if err != nil {
		panic(trap.Newf(trap.TypeMismatch, "malformed immediate: %s", err))
	}
	return n
}

func mustI64(n int64, err error) int64 {
	if err != nil {
		panic(trap.Newf(trap.TypeMismatch, "malformed immediate: %s", err))
	}
	return n
}

// dispatchCall pops the callee's declared parameter count off the
// operand stack (in argument order) and recurses into it.
func (v *VM) dispatchCall(ctx context.Context, addr store.FuncAddr) {
	fi := &v.Store.Funcs[addr]
	args := make([]uint64, len(fi.Type.Params))
	for i := len(args) - 1; i >= 0; i-- {
		args[i] = v.pop()
	}
	v.callAddr(ctx, addr, args)
}

func (v *VM) mem(f *frame) *store.MemInstance {
	return v.Store.Mems[f.modInst.MemAddrs[0]]
}

func (v *VM) execLoad(f *frame, size int, _ bool, is64 bool) {
	mustU32(leb128.ReadUint32(f.code)) // align
	offset := mustU32(leb128.ReadUint32(f.code))
	base := v.popI32()
	mem := v.mem(f)
	if size == 4 {
		x, t := loadU32(mem, base, offset)
		if t != nil {
			panic(t)
		}
		if is64 {
			v.pushI64(uint64(x))
		} else {
			v.pushI32(x)
		}
	} else {
		x, t := loadU64(mem, base, offset)
		if t != nil {
			panic(t)
		}
		v.pushI64(x)
	}
}

func (v *VM) execNarrowLoad(f *frame, size int, signed bool, is64 bool) {
	mustU32(leb128.ReadUint32(f.code)) // align
	offset := mustU32(leb128.ReadUint32(f.code))
	base := v.popI32()
	mem := v.mem(f)
	var raw uint64
	var bitsN uint
	var t *trap.Trap
	switch size {
	case 1:
		var x uint8
		x, t = loadU8(mem, base, offset)
		raw, bitsN = uint64(x), 8
	case 2:
		var x uint16
		x, t = loadU16(mem, base, offset)
		raw, bitsN = uint64(x), 16
	case 4:
		var x uint32
		x, t = loadU32(mem, base, offset)
		raw, bitsN = uint64(x), 32
	}
	if t != nil {
		panic(t)
	}
	if signed {
		shift := 64 - bitsN
		raw = uint64(int64(raw<<shift) >> shift)
	}
	if is64 {
		v.pushI64(raw)
	} else {
		v.pushI32(uint32(raw))
	}
}

func (v *VM) execStore(f *frame, size int) {
	mustU32(leb128.ReadUint32(f.code)) // align
	offset := mustU32(leb128.ReadUint32(f.code))
	val := v.pop()
	base := v.popI32()
	mem := v.mem(f)
	var t *trap.Trap
	if size == 4 {
		t = storeU32(mem, base, offset, uint32(val))
	} else {
		t = storeU64(mem, base, offset, val)
	}
	if t != nil {
		panic(t)
	}
}

func (v *VM) execNarrowStore(f *frame, size int) {
	mustU32(leb128.ReadUint32(f.code)) // align
	offset := mustU32(leb128.ReadUint32(f.code))
	val := v.pop()
	base := v.popI32()
	mem := v.mem(f)
	var t *trap.Trap
	switch size {
	case 1:
		t = storeU8(mem, base, offset, uint8(val))
	case 2:
		t = storeU16(mem, base, offset, uint16(val))
	case 4:
		t = storeU32(mem, base, offset, uint32(val))
	}
	if t != nil {
		panic(t)
	}
}

// stepNumeric handles every opcode with no control/memory/variable
// meaning: numeric arithmetic, comparison and conversion instructions.
func (v *VM) stepNumeric(op opcode.Opcode) {
	switch op {

	// --- i32 ---
	case opcode.I32Eqz:
		v.pushI32(uint32(b2u64(v.popI32() == 0)))
	case opcode.I32Eq:
		b, a := v.popI32(), v.popI32()
		v.pushI32(uint32(b2u64(a == b)))
	case opcode.I32Ne:
		b, a := v.popI32(), v.popI32()
		v.pushI32(uint32(b2u64(a != b)))
	case opcode.I32LtS:
		b, a := int32(v.popI32()), int32(v.popI32())
		v.pushI32(uint32(b2u64(a < b)))
	case opcode.I32LtU:
		b, a := v.popI32(), v.popI32()
		v.pushI32(uint32(b2u64(a < b)))
	case opcode.I32GtS:
		b, a := int32(v.popI32()), int32(v.popI32())
		v.pushI32(uint32(b2u64(a > b)))
	case opcode.I32GtU:
		b, a := v.popI32(), v.popI32()
		v.pushI32(uint32(b2u64(a > b)))
	case opcode.I32LeS:
		b, a := int32(v.popI32()), int32(v.popI32())
		v.pushI32(uint32(b2u64(a <= b)))
	case opcode.I32LeU:
		b, a := v.popI32(), v.popI32()
		v.pushI32(uint32(b2u64(a <= b)))
	case opcode.I32GeS:
		b, a := int32(v.popI32()), int32(v.popI32())
		v.pushI32(uint32(b2u64(a >= b)))
	case opcode.I32GeU:
		b, a := v.popI32(), v.popI32()
		v.pushI32(uint32(b2u64(a >= b)))

	case opcode.I32Clz:
		v.pushI32(uint32(bits.LeadingZeros32(v.popI32())))
	case opcode.I32Ctz:
		v.pushI32(uint32(bits.TrailingZeros32(v.popI32())))
	case opcode.I32Popcnt:
		v.pushI32(uint32(bits.OnesCount32(v.popI32())))
	case opcode.I32Add:
		b, a := v.popI32(), v.popI32()
		v.pushI32(a + b)
	case opcode.I32Sub:
		b, a := v.popI32(), v.popI32()
		v.pushI32(a - b)
	case opcode.I32Mul:
		b, a := v.popI32(), v.popI32()
		v.pushI32(a * b)
	case opcode.I32DivS:
		b, a := int32(v.popI32()), int32(v.popI32())
		r, t := i32DivS(a, b)
		if t != nil {
			panic(t)
		}
		v.pushI32(uint32(r))
	case opcode.I32DivU:
		b, a := v.popI32(), v.popI32()
		r, t := i32DivU(a, b)
		if t != nil {
			panic(t)
		}
		v.pushI32(r)
	case opcode.I32RemS:
		b, a := int32(v.popI32()), int32(v.popI32())
		r, t := i32RemS(a, b)
		if t != nil {
			panic(t)
		}
		v.pushI32(uint32(r))
	case opcode.I32RemU:
		b, a := v.popI32(), v.popI32()
		r, t := i32RemU(a, b)
		if t != nil {
			panic(t)
		}
		v.pushI32(r)
	case opcode.I32And:
		b, a := v.popI32(), v.popI32()
		v.pushI32(a & b)
	case opcode.I32Or:
		b, a := v.popI32(), v.popI32()
		v.pushI32(a | b)
	case opcode.I32Xor:
		b, a := v.popI32(), v.popI32()
		v.pushI32(a ^ b)
	case opcode.I32Shl:
		b, a := v.popI32(), v.popI32()
		v.pushI32(a << (b & 31))
	case opcode.I32ShrS:
		b, a := v.popI32(), int32(v.popI32())
		v.pushI32(uint32(a >> (b & 31)))
	case opcode.I32ShrU:
		b, a := v.popI32(), v.popI32()
		v.pushI32(a >> (b & 31))
	case opcode.I32Rotl:
		b, a := v.popI32(), v.popI32()
		v.pushI32(rotl32(a, b))
	case opcode.I32Rotr:
		b, a := v.popI32(), v.popI32()
		v.pushI32(rotr32(a, b))

	// --- i64 ---
	case opcode.I64Eqz:
		v.pushI32(uint32(b2u64(v.popI64() == 0)))
	case opcode.I64Eq:
		b, a := v.popI64(), v.popI64()
		v.pushI32(uint32(b2u64(a == b)))
	case opcode.I64Ne:
		b, a := v.popI64(), v.popI64()
		v.pushI32(uint32(b2u64(a != b)))
	case opcode.I64LtS:
		b, a := int64(v.popI64()), int64(v.popI64())
		v.pushI32(uint32(b2u64(a < b)))
	case opcode.I64LtU:
		b, a := v.popI64(), v.popI64()
		v.pushI32(uint32(b2u64(a < b)))
	case opcode.I64GtS:
		b, a := int64(v.popI64()), int64(v.popI64())
		v.pushI32(uint32(b2u64(a > b)))
	case opcode.I64GtU:
		b, a := v.popI64(), v.popI64()
		v.pushI32(uint32(b2u64(a > b)))
	case opcode.I64LeS:
		b, a := int64(v.popI64()), int64(v.popI64())
		v.pushI32(uint32(b2u64(a <= b)))
	case opcode.I64LeU:
		b, a := v.popI64(), v.popI64()
		v.pushI32(uint32(b2u64(a <= b)))
	case opcode.I64GeS:
		b, a := int64(v.popI64()), int64(v.popI64())
		v.pushI32(uint32(b2u64(a >= b)))
	case opcode.I64GeU:
		b, a := v.popI64(), v.popI64()
		v.pushI32(uint32(b2u64(a >= b)))

	case opcode.I64Clz:
		v.pushI64(uint64(bits.LeadingZeros64(v.popI64())))
	case opcode.I64Ctz:
		v.pushI64(uint64(bits.TrailingZeros64(v.popI64())))
	case opcode.I64Popcnt:
		v.pushI64(uint64(bits.OnesCount64(v.popI64())))
	case opcode.I64Add:
		b, a := v.popI64(), v.popI64()
		v.pushI64(a + b)
	case opcode.I64Sub:
		b, a := v.popI64(), v.popI64()
		v.pushI64(a - b)
	case opcode.I64Mul:
		b, a := v.popI64(), v.popI64()
		v.pushI64(a * b)
	case opcode.I64DivS:
		b, a := int64(v.popI64()), int64(v.popI64())
		r, t := i64DivS(a, b)
		if t != nil {
			panic(t)
		}
		v.pushI64(uint64(r))
	case opcode.I64DivU:
		b, a := v.popI64(), v.popI64()
		r, t := i64DivU(a, b)
		if t != nil {
			panic(t)
		}
		v.pushI64(r)
	case opcode.I64RemS:
		b, a := int64(v.popI64()), int64(v.popI64())
		r, t := i64RemS(a, b)
		if t != nil {
			panic(t)
		}
		v.pushI64(uint64(r))
	case opcode.I64RemU:
		b, a := v.popI64(), v.popI64()
		r, t := i64RemU(a, b)
		if t != nil {
			panic(t)
		}
		v.pushI64(r)
	case opcode.I64And:
		b, a := v.popI64(), v.popI64()
		v.pushI64(a & b)
	case opcode.I64Or:
		b, a := v.popI64(), v.popI64()
		v.pushI64(a | b)
	case opcode.I64Xor:
		b, a := v.popI64(), v.popI64()
		v.pushI64(a ^ b)
	case opcode.I64Shl:
		b, a := v.popI64(), v.popI64()
		v.pushI64(a << (b & 63))
	case opcode.I64ShrS:
		b, a := v.popI64(), int64(v.popI64())
		v.pushI64(uint64(a >> (b & 63)))
	case opcode.I64ShrU:
		b, a := v.popI64(), v.popI64()
		v.pushI64(a >> (b & 63))
	case opcode.I64Rotl:
		b, a := v.popI64(), v.popI64()
		v.pushI64(rotl64(a, b))
	case opcode.I64Rotr:
		b, a := v.popI64(), v.popI64()
		v.pushI64(rotr64(a, b))

	// --- f32 ---
	case opcode.F32Abs:
		v.pushI32(v.popI32() &^ (1 << 31))
	case opcode.F32Neg:
		v.pushI32(v.popI32() ^ (1 << 31))
	case opcode.F32Ceil:
		v.pushF32(math32.Ceil(v.popF32()))
	case opcode.F32Floor:
		v.pushF32(math32.Floor(v.popF32()))
	case opcode.F32Trunc:
		v.pushF32(math32.Trunc(v.popF32()))
	case opcode.F32Nearest:
		v.pushF32(math32.RoundToEven(v.popF32()))
	case opcode.F32Sqrt:
		v.pushF32(math32.Sqrt(v.popF32()))
	case opcode.F32Add:
		b, a := v.popF32(), v.popF32()
		v.pushF32(a + b)
	case opcode.F32Sub:
		b, a := v.popF32(), v.popF32()
		v.pushF32(a - b)
	case opcode.F32Mul:
		b, a := v.popF32(), v.popF32()
		v.pushF32(a * b)
	case opcode.F32Div:
		b, a := v.popF32(), v.popF32()
		v.pushF32(a / b)
	case opcode.F32Min:
		b, a := v.popF32(), v.popF32()
		v.pushF32(f32Min(a, b))
	case opcode.F32Max:
		b, a := v.popF32(), v.popF32()
		v.pushF32(f32Max(a, b))
	case opcode.F32Copysign:
		b, a := v.popF32(), v.popF32()
		v.pushF32(f32Copysign(a, b))
	case opcode.F32Eq:
		b, a := v.popF32(), v.popF32()
		v.pushI32(uint32(b2u64(a == b)))
	case opcode.F32Ne:
		b, a := v.popF32(), v.popF32()
		v.pushI32(uint32(b2u64(a != b)))
	case opcode.F32Lt:
		b, a := v.popF32(), v.popF32()
		v.pushI32(uint32(b2u64(a < b)))
	case opcode.F32Gt:
		b, a := v.popF32(), v.popF32()
		v.pushI32(uint32(b2u64(a > b)))
	case opcode.F32Le:
		b, a := v.popF32(), v.popF32()
		v.pushI32(uint32(b2u64(a <= b)))
	case opcode.F32Ge:
		b, a := v.popF32(), v.popF32()
		v.pushI32(uint32(b2u64(a >= b)))

	// --- f64 ---
	case opcode.F64Abs:
		v.pushI64(v.popI64() &^ (uint64(1) << 63))
	case opcode.F64Neg:
		v.pushI64(v.popI64() ^ (uint64(1) << 63))
	case opcode.F64Ceil:
		v.pushF64(math.Ceil(v.popF64()))
	case opcode.F64Floor:
		v.pushF64(math.Floor(v.popF64()))
	case opcode.F64Trunc:
		v.pushF64(math.Trunc(v.popF64()))
	case opcode.F64Nearest:
		v.pushF64(math.RoundToEven(v.popF64()))
	case opcode.F64Sqrt:
		v.pushF64(math.Sqrt(v.popF64()))
	case opcode.F64Add:
		b, a := v.popF64(), v.popF64()
		v.pushF64(a + b)
	case opcode.F64Sub:
		b, a := v.popF64(), v.popF64()
		v.pushF64(a - b)
	case opcode.F64Mul:
		b, a := v.popF64(), v.popF64()
		v.pushF64(a * b)
	case opcode.F64Div:
		b, a := v.popF64(), v.popF64()
		v.pushF64(a / b)
	case opcode.F64Min:
		b, a := v.popF64(), v.popF64()
		v.pushF64(f64Min(a, b))
	case opcode.F64Max:
		b, a := v.popF64(), v.popF64()
		v.pushF64(f64Max(a, b))
	case opcode.F64Copysign:
		b, a := v.popF64(), v.popF64()
		v.pushF64(math.Copysign(a, b))
	case opcode.F64Eq:
		b, a := v.popF64(), v.popF64()
		v.pushI32(uint32(b2u64(a == b)))
	case opcode.F64Ne:
		b, a := v.popF64(), v.popF64()
		v.pushI32(uint32(b2u64(a != b)))
	case opcode.F64Lt:
		b, a := v.popF64(), v.popF64()
		v.pushI32(uint32(b2u64(a < b)))
	case opcode.F64Gt:
		b, a := v.popF64(), v.popF64()
		v.pushI32(uint32(b2u64(a > b)))
	case opcode.F64Le:
		b, a := v.popF64(), v.popF64()
		v.pushI32(uint32(b2u64(a <= b)))
	case opcode.F64Ge:
		b, a := v.popF64(), v.popF64()
		v.pushI32(uint32(b2u64(a >= b)))

	// --- conversions ---
	case opcode.I32WrapI64:
		v.pushI32(uint32(v.popI64()))
	case opcode.I64ExtendI32S:
		v.pushI64(uint64(int64(int32(v.popI32()))))
	case opcode.I64ExtendI32U:
		v.pushI64(uint64(v.popI32()))
	case opcode.I32ReinterpretF32:
		v.pushI32(v.popI32())
	case opcode.I64ReinterpretF64:
		v.pushI64(v.popI64())
	case opcode.F32ReinterpretI32:
		v.pushI32(v.popI32())
	case opcode.F64ReinterpretI64:
		v.pushI64(v.popI64())
	case opcode.F32DemoteF64:
		v.pushF32(float32(v.popF64()))
	case opcode.F64PromoteF32:
		v.pushF64(float64(v.popF32()))

	case opcode.I32TruncF32S:
		r, t := number.FloatTruncate(number.F32, number.I32, uint64(v.popI32()))
		v.mustTrunc(t)
		v.pushI32(uint32(r))
	case opcode.I32TruncF32U:
		r, t := number.FloatTruncate(number.F32, number.U32, uint64(v.popI32()))
		v.mustTrunc(t)
		v.pushI32(uint32(r))
	case opcode.I32TruncF64S:
		r, t := number.FloatTruncate(number.F64, number.I32, v.popI64())
		v.mustTrunc(t)
		v.pushI32(uint32(r))
	case opcode.I32TruncF64U:
		r, t := number.FloatTruncate(number.F64, number.U32, v.popI64())
		v.mustTrunc(t)
		v.pushI32(uint32(r))
	case opcode.I64TruncF32S:
		r, t := number.FloatTruncate(number.F32, number.I64, uint64(v.popI32()))
		v.mustTrunc(t)
		v.pushI64(r)
	case opcode.I64TruncF32U:
		r, t := number.FloatTruncate(number.F32, number.U64, uint64(v.popI32()))
		v.mustTrunc(t)
		v.pushI64(r)
	case opcode.I64TruncF64S:
		r, t := number.FloatTruncate(number.F64, number.I64, v.popI64())
		v.mustTrunc(t)
		v.pushI64(r)
	case opcode.I64TruncF64U:
		r, t := number.FloatTruncate(number.F64, number.U64, v.popI64())
		v.mustTrunc(t)
		v.pushI64(r)

	case opcode.F32ConvertI32S:
		v.pushI32(uint32(number.ConvertToFloat(number.I32, number.F32, uint64(v.popI32()))))
	case opcode.F32ConvertI32U:
		v.pushI32(uint32(number.ConvertToFloat(number.U32, number.F32, uint64(v.popI32()))))
	case opcode.F32ConvertI64S:
		v.pushI32(uint32(number.ConvertToFloat(number.I64, number.F32, v.popI64())))
	case opcode.F32ConvertI64U:
		v.pushI32(uint32(number.ConvertToFloat(number.U64, number.F32, v.popI64())))
	case opcode.F64ConvertI32S:
		v.pushI64(number.ConvertToFloat(number.I32, number.F64, uint64(v.popI32())))
	case opcode.F64ConvertI32U:
		v.pushI64(number.ConvertToFloat(number.U32, number.F64, uint64(v.popI32())))
	case opcode.F64ConvertI64S:
		v.pushI64(number.ConvertToFloat(number.I64, number.F64, v.popI64()))
	case opcode.F64ConvertI64U:
		v.pushI64(number.ConvertToFloat(number.U64, number.F64, v.popI64()))

	default:
		panic(trap.Newf(trap.TypeMismatch, "unknown opcode 0x%x", byte(op)))
	}
}

func (v *VM) mustTrunc(t *trap.Trap) {
	if t != nil {
		panic(t)
	}
}

func (v *VM) pushF32(f float32) { v.pushI32(math32.Float32bits(f)) }
func (v *VM) popF32() float32   { return math32.Float32frombits(v.popI32()) }
func (v *VM) pushF64(f float64) { v.pushI64(math.Float64bits(f)) }
func (v *VM) popF64() float64   { return math.Float64frombits(v.popI64()) }
