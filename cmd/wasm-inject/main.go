// Command wasm-inject decodes a Wasm module, rewrites the init expression
// of one chosen global to a new i32 constant, and re-encodes it, grounded
// on original_source/examples/inject.rs's section-rewrite-then-serialize
// shape (that example patches Code section bodies and adds an import; this
// one patches a Global section entry instead).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kjx98/wasmrt"
)

var (
	outPath    string
	globalIdx  uint32
	globalI32  int32
)

func main() {
	root := &cobra.Command{
		Use:   "wasm-inject <in.wasm>",
		Short: "Rewrite a global's init constant and re-encode the module",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}
	root.Flags().StringVarP(&outPath, "out", "o", "", "output file (required)")
	root.Flags().Uint32Var(&globalIdx, "global", 0, "index of the global to rewrite")
	root.Flags().Int32Var(&globalI32, "value", 0, "new i32 constant value")
	root.MarkFlagRequired("out")
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "wasm-inject:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	in, err := os.Open(args[0])
	if err != nil {
		return err
	}
	m, err := wasmrt.Decode(in)
	in.Close()
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	if int(globalIdx) >= len(m.Globals) {
		return fmt.Errorf("global index %d out of range (module defines %d)", globalIdx, len(m.Globals))
	}
	if err := m.SetGlobalInitI32(globalIdx, globalI32); err != nil {
		return fmt.Errorf("rewrite global %d: %w", globalIdx, err)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()
	if err := wasmrt.Encode(out, &m); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}
