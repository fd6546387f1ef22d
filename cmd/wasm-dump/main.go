// Command wasm-dump decodes a Wasm module and prints its section/export
// summary, ported from the teacher's cmd/wasm-dump to the cobra-based CLI
// shape used across the rest of this module's demos.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kjx98/wasmrt"
)

func main() {
	root := &cobra.Command{
		Use:   "wasm-dump <file.wasm>",
		Short: "Decode a Wasm module and print its section/export summary",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "wasm-dump:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	m, err := wasmrt.Decode(f)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	fmt.Printf("types:    %d\n", len(m.Types))
	fmt.Printf("imports:  %d\n", len(m.Imports))
	fmt.Printf("funcs:    %d\n", len(m.Funcs))
	fmt.Printf("tables:   %d\n", len(m.Tables))
	fmt.Printf("memories: %d\n", len(m.Memories))
	fmt.Printf("globals:  %d\n", len(m.Globals))
	fmt.Printf("elems:    %d\n", len(m.Elems))
	fmt.Printf("data:     %d\n", len(m.Data))
	if m.HasStart {
		fmt.Printf("start:    %d\n", m.Start)
	}
	fmt.Printf("exports:  %d\n", len(m.Exports))
	for _, ee := range m.Exports {
		fmt.Printf("  %-20s %-6s @%d\n", ee.Field, ee.Kind, ee.Index)
	}
	return nil
}
