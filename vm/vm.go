// Package vm is the instruction executor: a single-threaded,
// iterative stack machine that runs one Wasm invocation at a time
// against a Store. Looping is implemented by repositioning an
// instruction cursor, never by native recursion, so a 50,000-iteration
// loop costs no Go stack depth; native recursion is used only at
// call/call_indirect boundaries, where the Wasm call-depth limit
// applies.
package vm

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/wasmforge/wasmcore/gas"
	"github.com/wasmforge/wasmcore/store"
	"github.com/wasmforge/wasmcore/trap"
	"github.com/wasmforge/wasmcore/wasm/opcode"
)

// DefaultCallDepthLimit bounds recursion at call/call_indirect
// boundaries so a runaway or adversarial module traps instead of
// exhausting the Go goroutine stack.
const DefaultCallDepthLimit = 10000

// cancelCheckInterval is how many executed instructions pass between
// checks of the caller's context, so cancellation does not add
// overhead to the hot dispatch loop of every single instruction.
const cancelCheckInterval = 4096

// VM runs invocations against a Store. One VM is not safe for
// concurrent use; the Store it wraps permits at most one executing
// frame stack at a time (see the engine's single-threaded model).
type VM struct {
	Store          *store.Store
	CallDepthLimit int
	GasPolicy      gas.Policy
	Gas            *gas.Gas
	Log            *logrus.Entry

	stack  []uint64
	frames []*frame
	instrs uint64
}

// Option configures a VM at construction time.
type Option func(*VM)

// WithCallDepthLimit overrides DefaultCallDepthLimit.
func WithCallDepthLimit(n int) Option {
	return func(v *VM) { v.CallDepthLimit = n }
}

// WithGas attaches a metering policy and budget; omitted, execution is
// unmetered.
func WithGas(policy gas.Policy, budget *gas.Gas) Option {
	return func(v *VM) { v.GasPolicy = policy; v.Gas = budget }
}

// WithLogger attaches a structured logger for frame enter/exit
// tracing (Debug level) and, when the caller also enables Trace,
// per-instruction stepping. Omitted, the VM logs nothing.
func WithLogger(log *logrus.Entry) Option {
	return func(v *VM) { v.Log = log }
}

// New builds a VM over s.
func New(s *store.Store, opts ...Option) *VM {
	v := &VM{Store: s, CallDepthLimit: DefaultCallDepthLimit}
	for _, o := range opts {
		o(v)
	}
	return v
}

func (v *VM) push(x uint64)  { v.stack = append(v.stack, x) }
func (v *VM) pop() uint64 {
	x := v.stack[len(v.stack)-1]
	v.stack = v.stack[:len(v.stack)-1]
	return x
}
func (v *VM) peek() uint64       { return v.stack[len(v.stack)-1] }
func (v *VM) height() int        { return len(v.stack) }
func (v *VM) truncateTo(h int)   { v.stack = v.stack[:h] }

func (v *VM) pushI32(x uint32)    { v.push(uint64(x)) }
func (v *VM) pushI64(x uint64)    { v.push(x) }
func (v *VM) popI32() uint32      { return uint32(v.pop()) }
func (v *VM) popI64() uint64      { return v.pop() }

// Invoke calls the function at addr with args (raw bit patterns, one
// per declared parameter) and returns its results (raw bit patterns,
// 0 or 1 per the MVP's result arity) or a trap. ctx is polled
// periodically so a caller can cancel a long-running, non-terminating
// invocation (e.g. an infinite loop) from outside.
func (v *VM) Invoke(ctx context.Context, addr store.FuncAddr, args ...uint64) (results []uint64, err error) {
	base := v.height()
	depth := len(v.frames)
	defer func() {
		if r := recover(); r != nil {
			if t, ok := r.(*trap.Trap); ok {
				// A trap ends the whole invocation: drop the frames and
				// operands it left behind.
				v.frames = v.frames[:depth]
				if v.height() > base {
					v.truncateTo(base)
				}
				err = t
				return
			}
			panic(r)
		}
	}()
	v.callAddr(ctx, addr, args)
	out := append([]uint64(nil), v.stack[base:]...)
	v.truncateTo(base)
	return out, nil
}

// callAddr is the recursive call boundary: it pushes a new activation
// (for a Wasm function) or invokes the host callback directly (for a
// host function), leaving results on the shared operand stack.
func (v *VM) callAddr(ctx context.Context, addr store.FuncAddr, args []uint64) {
	if int(addr) >= len(v.Store.Funcs) {
		panic(trap.Newf(trap.TypeMismatch, "call to invalid function address %d", addr))
	}
	fi := &v.Store.Funcs[addr]

	if fi.IsHost {
		var caller *callerHandle
		if len(v.frames) > 0 {
			caller = &callerHandle{v: v, modInst: v.frames[len(v.frames)-1].modInst}
		} else {
			caller = &callerHandle{v: v}
		}
		results, herr := fi.Host(caller, args)
		if herr != nil {
			panic(trap.Newf(trap.HostTrap, "%s: %s", fi.Name, herr.Error()))
		}
		for _, r := range results {
			v.push(r)
		}
		return
	}

	if len(v.frames) >= v.CallDepthLimit {
		panic(trap.New(trap.CallStackExhausted))
	}

	fn := &fi.ModuleInst.Module.Functions[fi.FuncIdx]
	locals := make([]uint64, len(fn.Type.Params)+fn.NumLocals())
	copy(locals, args)

	base := v.height()
	f := newFrame(fi.ModuleInst, fn.Body.Code, locals, len(fn.Type.Results), base)
	v.frames = append(v.frames, f)
	if v.Log != nil {
		v.Log.WithFields(logrus.Fields{"func": fn.Name, "depth": len(v.frames)}).Debug("frame enter")
	}
	v.run(ctx)
	if v.Log != nil {
		v.Log.WithFields(logrus.Fields{"func": fn.Name, "depth": len(v.frames)}).Debug("frame exit")
	}
	v.frames = v.frames[:len(v.frames)-1]
}

// run drives the current (topmost) frame's instruction cursor until it
// returns or falls off the end of its body, at which point the
// frame's results (the top resultArity operand-stack values) are left
// in place and callAddr pops the frame.
func (v *VM) run(ctx context.Context) {
	f := v.frames[len(v.frames)-1]
	for {
		if f.code.Len() == 0 {
			// Falling off the end behaves like an implicit `end` for
			// every still-open label, then an implicit `return`.
			v.unwindReturn(f)
			return
		}
		op, err := f.code.ReadOne()
		if err != nil {
			panic(trap.Newf(trap.TypeMismatch, "truncated function body: %s", err))
		}
		v.instrs++
		if v.Log != nil && v.Log.Logger.IsLevelEnabled(logrus.TraceLevel) {
			v.Log.WithField("op", opcode.Opcode(op).String()).Trace("step")
		}
		if v.instrs%cancelCheckInterval == 0 && ctx != nil {
			select {
			case <-ctx.Done():
				panic(trap.Newf(trap.HostTrap, "execution cancelled: %s", ctx.Err()))
			default:
			}
		}
		if v.GasPolicy != nil && v.Gas != nil {
			if t := v.Gas.Charge(v.GasPolicy.CostForOp(opcode.Opcode(op))); t != nil {
				panic(t)
			}
		}
		if done := v.step(ctx, f, opcode.Opcode(op)); done {
			return
		}
	}
}

// unwindReturn implements falling off the end of a function body or
// an explicit `return`: drop every still-open label, keep exactly the
// function's declared result arity of values on top of the operand
// stack, discarding everything below down to the frame's entry
// height.
func (v *VM) unwindReturn(f *frame) {
	results := append([]uint64(nil), v.stack[v.height()-f.resultArity:]...)
	v.truncateTo(f.baseHeight)
	for _, r := range results {
		v.push(r)
	}
}
