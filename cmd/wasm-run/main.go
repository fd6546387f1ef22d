// Command wasm-run decodes, validates, instantiates, and executes a single
// export of a Wasm module against the default "env" environment, grounded
// on original_source/examples/interpret.rs's load-add_module-execute_export
// shape ("_call" exported with a single i32 argument).
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kjx98/wasmrt"
)

func main() {
	root := &cobra.Command{
		Use:   "wasm-run <in.wasm> <export> [args...]",
		Short: "Instantiate a module and execute one of its exports",
		Args:  cobra.MinimumNArgs(2),
		RunE:  run,
	}
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "wasm-run:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	m, err := wasmrt.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	prog, err := wasmrt.NewProgram()
	if err != nil {
		return fmt.Errorf("new program: %w", err)
	}

	ctx := context.Background()
	mi, err := prog.AddModule(ctx, "main", &m, wasmrt.Externals{})
	if err != nil {
		return fmt.Errorf("add module: %w", err)
	}

	export := args[1]
	callArgs, err := parseArgs(args[2:])
	if err != nil {
		return err
	}

	result, err := mi.ExecuteExport(ctx, export, callArgs)
	if err != nil {
		return fmt.Errorf("execute %s: %w", export, err)
	}
	if result == nil {
		fmt.Println("result: (none)")
		return nil
	}
	fmt.Printf("result: %s\n", formatValue(*result))
	return nil
}

// parseArgs treats every CLI argument as an i32, the shape interpret.rs
// demonstrates ("_call" with a single i32 argument); wider signatures are
// left to a caller driving ModuleInstance.ExecuteExport directly.
func parseArgs(raw []string) ([]wasmrt.Value, error) {
	out := make([]wasmrt.Value, 0, len(raw))
	for _, s := range raw {
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("argument %q: integer required: %w", s, err)
		}
		out = append(out, wasmrt.I32(int32(n)))
	}
	return out, nil
}

func formatValue(v wasmrt.Value) string {
	switch v.Type {
	case wasmrt.ValueTypeI32:
		return strconv.FormatInt(int64(v.I32()), 10)
	case wasmrt.ValueTypeI64:
		return strconv.FormatInt(v.I64(), 10)
	case wasmrt.ValueTypeF32:
		return strconv.FormatFloat(float64(v.F32()), 'g', -1, 32)
	case wasmrt.ValueTypeF64:
		return strconv.FormatFloat(v.F64(), 'g', -1, 64)
	default:
		return "?"
	}
}
