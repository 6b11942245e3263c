package testsuite

import (
	"fmt"
	"testing"
)

// arithmeticModule mirrors the shape of a single-module .wast script:
// one module load followed by a run of assert_return/assert_trap
// commands, hand-built here rather than decoded from a wast2json
// fixture (see the package doc).
var arithmeticModule = []byte(`(module
  (func $add (param i32 i32) (result i32)
    local.get 0
    local.get 1
    i32.add)
  (func $div (param i32 i32) (result i32)
    local.get 0
    local.get 1
    i32.div_s)
  (global $g (mut i32) i32.const 10)
  (export "add" (func $add))
  (export "div" (func $div))
  (export "g" (global $g)))`)

func TestRunner_ArithmeticSuite(t *testing.T) {
	cmds := []Command{
		{Type: "module", Line: 1, Module: arithmeticModule},
		{
			Type: "assert_return", Line: 2,
			Action:   Action{Type: "invoke", Field: "add", Args: []ValueInfo{{Type: "i32", Value: "2"}, {Type: "i32", Value: "40"}}},
			Expected: []ValueInfo{{Type: "i32", Value: "42"}},
		},
		{
			Type: "assert_return", Line: 3,
			Action:   Action{Type: "get", Field: "g"},
			Expected: []ValueInfo{{Type: "i32", Value: "10"}},
		},
		{
			Type: "assert_trap", Line: 4,
			Action:   Action{Type: "invoke", Field: "div", Args: []ValueInfo{{Type: "i32", Value: "1"}, {Type: "i32", Value: "0"}}},
			TrapText: "integer divide by zero",
		},
		{
			// INT32_MIN / -1, both given as their i32 bit patterns.
			Type: "assert_trap", Line: 5,
			Action:   Action{Type: "invoke", Field: "div", Args: []ValueInfo{{Type: "i32", Value: "2147483648"}, {Type: "i32", Value: "4294967295"}}},
			TrapText: "integer overflow",
		},
	}

	r := NewRunner()
	r.Run(t.Errorf, cmds)
}

func TestRunner_UnknownExportFails(t *testing.T) {
	cmds := []Command{
		{Type: "module", Line: 1, Module: arithmeticModule},
		{Type: "assert_return", Line: 2, Action: Action{Type: "invoke", Field: "missing"}},
	}

	var failures []string
	r := NewRunner()
	r.Run(func(format string, args ...interface{}) {
		failures = append(failures, fmt.Sprintf(format, args...))
	}, cmds)
	if len(failures) != 1 {
		t.Fatalf("expected exactly one recorded failure for a missing export, got %d: %v", len(failures), failures)
	}
}
