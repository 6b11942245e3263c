// Package testsuite adapts the teacher's JSON spec-suite harness
// (wasm_spec_test.go, driven by wast2json output) into a
// dependency-free command runner: the same Command/Action/ValueInfo
// shape, but driven by commands built in Go or decoded from
// pre-rendered JSON fixtures, never by invoking wat2wasm/wast2json at
// test time.
package testsuite

import (
	"context"
	"fmt"
	"strconv"

	"github.com/wasmforge/wasmcore/frontend/text"
	"github.com/wasmforge/wasmcore/link"
	"github.com/wasmforge/wasmcore/store"
	"github.com/wasmforge/wasmcore/vm"
	"github.com/wasmforge/wasmcore/wasm"
)

// ValueInfo is one typed argument or expected result, matching the
// wast2json JSON command format's {"type": "i32", "value": "42"} shape.
type ValueInfo struct {
	Type  string
	Value string
}

// Action is an invoke or a global get against the currently loaded
// module.
type Action struct {
	Type  string // "invoke" or "get"
	Field string
	Args  []ValueInfo
}

// Command is one line of a spec-suite script: either loading a new
// module, invoking/asserting against the current one, or asserting a
// trap.
type Command struct {
	Type     string // "module", "assert_return", "assert_trap"
	Line     int
	Module   []byte // for Type == "module": module source (binary or text)
	Action   Action
	Expected []ValueInfo
	TrapText string // for Type == "assert_trap": the expected trap kind string
}

// Runner drives a sequence of Commands against one VM/Store, swapping
// in a new module instance each time a "module" command runs, mirroring
// how the teacher's harness keeps a single *VM alive across a whole
// .wast script.
type Runner struct {
	s   *store.Store
	v   *vm.VM
	l   *link.Linker
	mi  *store.ModuleInstance
	ctx context.Context
}

// NewRunner returns a Runner with a fresh Store and VM.
func NewRunner() *Runner {
	s := store.New()
	v := vm.New(s)
	return &Runner{s: s, v: v, l: link.New(v), ctx: context.Background()}
}

// Run executes cmds in order, reporting each unexpected result or
// error through fail and going on with the next command. decodeAny
// picks the binary decoder or the text front end by sniffing the
// module's magic number, the same rule the CLI uses.
func (r *Runner) Run(fail func(format string, args ...interface{}), cmds []Command) {
	for _, cmd := range cmds {
		switch cmd.Type {
		case "module":
			mod, err := decodeAny(cmd.Module)
			if err != nil {
				fail("line %d: decoding module: %s", cmd.Line, err)
				continue
			}
			mi, err := link.Instantiate(r.ctx, r.l, mod, nil, "current")
			if err != nil {
				fail("line %d: instantiating module: %s", cmd.Line, err)
				continue
			}
			r.mi = mi

		case "assert_return":
			r.runInvoke(fail, cmd, true)

		case "assert_trap":
			r.runInvoke(fail, cmd, false)

		default:
			fail("line %d: unknown command type %q", cmd.Line, cmd.Type)
		}
	}
}

func (r *Runner) runInvoke(fail func(format string, args ...interface{}), cmd Command, expectReturn bool) {
	switch cmd.Action.Type {
	case "invoke":
		exp, ok := r.mi.Export(cmd.Action.Field)
		if !ok {
			fail("line %d: no export %q", cmd.Line, cmd.Action.Field)
			return
		}
		args, err := parseArgs(cmd.Action.Args)
		if err != nil {
			fail("line %d: %s", cmd.Line, err)
			return
		}
		results, err := r.v.Invoke(r.ctx, r.mi.FuncAddrs[exp.Idx], args...)
		if expectReturn {
			if err != nil {
				fail("line %d: %s: unexpected trap: %s", cmd.Line, cmd.Action.Field, err)
				return
			}
			if mismatch := compareResults(results, cmd.Expected); mismatch != "" {
				fail("line %d: %s: %s", cmd.Line, cmd.Action.Field, mismatch)
			}
		} else {
			if err == nil {
				fail("line %d: %s: expected trap %q, got results %v", cmd.Line, cmd.Action.Field, cmd.TrapText, results)
				return
			}
			if cmd.TrapText != "" && err.Error() != cmd.TrapText {
				fail("line %d: %s: expected trap %q, got %q", cmd.Line, cmd.Action.Field, cmd.TrapText, err.Error())
			}
		}

	case "get":
		exp, ok := r.mi.Export(cmd.Action.Field)
		if !ok {
			fail("line %d: no export %q", cmd.Line, cmd.Action.Field)
			return
		}
		got := r.s.Globals[r.mi.GlobalAddrs[exp.Idx]].Value
		if mismatch := compareResults([]uint64{got}, cmd.Expected); mismatch != "" {
			fail("line %d: get %s: %s", cmd.Line, cmd.Action.Field, mismatch)
		}

	default:
		fail("line %d: unknown action type %q", cmd.Line, cmd.Action.Type)
	}
}

func decodeAny(data []byte) (*wasm.Module, error) {
	if len(data) >= 4 && data[0] == 0x00 && data[1] == 0x61 && data[2] == 0x73 && data[3] == 0x6d {
		return wasm.DecodeModule(data)
	}
	return text.Parse(data)
}

func parseArgs(vals []ValueInfo) ([]uint64, error) {
	out := make([]uint64, len(vals))
	for i, v := range vals {
		n, err := strconv.ParseUint(v.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
		out[i] = n
	}
	return out, nil
}

// compareResults checks actual results against the expected
// type/value pairs, narrowing to 32 bits for i32/f32 expectations the
// same way the teacher's harness does before comparing.
func compareResults(got []uint64, want []ValueInfo) string {
	if len(want) == 0 {
		return ""
	}
	if len(got) != len(want) {
		return fmt.Sprintf("expected %d result(s), got %d", len(want), len(got))
	}
	for i, w := range want {
		expBits, err := strconv.ParseUint(w.Value, 10, 64)
		if err != nil {
			return fmt.Sprintf("result %d: invalid expected value %q", i, w.Value)
		}
		actual := got[i]
		if w.Type == "i32" || w.Type == "f32" {
			actual = uint64(uint32(actual))
			expBits = uint64(uint32(expBits))
		}
		if actual != expBits {
			return fmt.Sprintf("result %d: expected %d, got %d", i, expBits, actual)
		}
	}
	return ""
}
