// Command wasmcore loads a Wasm module, invokes one of its exports,
// and prints the results or the trap that stopped it. It replaces the
// teacher's hardcoded demo main.go with a general command usable
// against any module.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	trace   bool
)

var rootCmd = &cobra.Command{
	Use:   "wasmcore",
	Short: "Run and inspect WebAssembly MVP modules",
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging (frame enter/exit)")
	rootCmd.PersistentFlags().BoolVar(&trace, "trace", false, "enable per-instruction trace logging (expensive)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(disasmCmd)
}

func newLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	switch {
	case trace:
		log.SetLevel(logrus.TraceLevel)
	case verbose:
		log.SetLevel(logrus.DebugLevel)
	default:
		log.SetLevel(logrus.WarnLevel)
	}
	return logrus.NewEntry(log)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
