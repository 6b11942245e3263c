package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wasmforge/wasmcore"
	"github.com/wasmforge/wasmcore/frontend/text"
	"github.com/wasmforge/wasmcore/store"
	"github.com/wasmforge/wasmcore/wasm"
)

var runCmd = &cobra.Command{
	Use:   "run <file.wasm> <export> [args...]",
	Short: "Instantiate a module and invoke one of its exports",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runModule(args[0], args[1], args[2:])
	},
}

func runModule(path, export string, rawArgs []string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	e := wasmcore.NewEngine(wasmcore.Options{Log: newLogger()})
	registerDemoHostModule(e)

	ctx := context.Background()
	mod, err := decodeAny(data)
	if err != nil {
		return err
	}
	if err := e.AddModuleDecoded(ctx, "main", mod); err != nil {
		return fmt.Errorf("loading module: %w", err)
	}

	fn, err := e.GetFunction("main", export)
	if err != nil {
		return err
	}

	callArgs, err := encodeArgs(fn.Type(), rawArgs)
	if err != nil {
		return err
	}

	results, err := fn.Invoke(ctx, callArgs...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "trap: %v\n", err)
		os.Exit(1)
	}
	for i, r := range results {
		typ := wasm.I32
		if i < len(fn.Type().Results) {
			typ = fn.Type().Results[i]
		}
		fmt.Println(formatResult(typ, r))
	}
	return nil
}

// decodeAny sniffs the Wasm magic number to pick binary vs. text
// decoding, matching how embedding libraries typically dispatch on
// source shape rather than requiring the caller to say which it is.
func decodeAny(data []byte) (*wasm.Module, error) {
	if len(data) >= 4 && data[0] == 0x00 && data[1] == 0x61 && data[2] == 0x73 && data[3] == 0x6d {
		return wasm.DecodeModule(data)
	}
	return text.Parse(data)
}

func encodeArgs(sig wasm.FuncType, raw []string) ([]uint64, error) {
	if len(raw) != len(sig.Params) {
		return nil, fmt.Errorf("export expects %d argument(s), got %d", len(sig.Params), len(raw))
	}
	out := make([]uint64, len(raw))
	for i, s := range raw {
		switch sig.Params[i] {
		case wasm.I32:
			n, err := strconv.ParseInt(s, 10, 32)
			if err != nil {
				return nil, err
			}
			out[i] = uint64(uint32(n))
		case wasm.I64:
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, err
			}
			out[i] = uint64(n)
		case wasm.F32:
			f, err := strconv.ParseFloat(s, 32)
			if err != nil {
				return nil, err
			}
			out[i] = uint64(math.Float32bits(float32(f)))
		case wasm.F64:
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, err
			}
			out[i] = math.Float64bits(f)
		}
	}
	return out, nil
}

func formatResult(typ wasm.ValueType, bits uint64) string {
	switch typ {
	case wasm.I32:
		return strconv.FormatInt(int64(int32(uint32(bits))), 10)
	case wasm.I64:
		return strconv.FormatInt(int64(bits), 10)
	case wasm.F32:
		return strconv.FormatFloat(float64(math.Float32frombits(uint32(bits))), 'g', -1, 32)
	case wasm.F64:
		return strconv.FormatFloat(math.Float64frombits(bits), 'g', -1, 64)
	default:
		return fmt.Sprintf("0x%x", bits)
	}
}

// registerDemoHostModule registers env.print_i32 and env.print, so
// `wasmcore run` works without extra setup against modules that
// import them.
func registerDemoHostModule(e *wasmcore.Engine) {
	e.RegisterHostFunction("print_i32", wasm.FuncType{Params: []wasm.ValueType{wasm.I32}}, func(caller store.Caller, args []uint64) ([]uint64, error) {
		fmt.Println(int32(uint32(args[0])))
		return nil, nil
	})
	e.RegisterHostFunction("print", wasm.FuncType{}, func(caller store.Caller, args []uint64) ([]uint64, error) {
		fmt.Println()
		return nil, nil
	})
}
