package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wasmforge/wasmcore/disasm"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm <file.wasm> <func-index>",
	Short: "Print the decoded instruction stream of one function",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		mod, err := decodeAny(data)
		if err != nil {
			return err
		}
		var idx int
		if _, err := fmt.Sscanf(args[1], "%d", &idx); err != nil {
			return fmt.Errorf("invalid function index %q", args[1])
		}
		if idx < 0 || idx >= len(mod.Functions) {
			return fmt.Errorf("function index %d out of range (module defines %d functions)", idx, len(mod.Functions))
		}
		fn := &mod.Functions[idx]
		fmt.Print(disasm.Format(fn))
		return nil
	},
}
