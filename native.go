package wasmrt

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Native function/global index bases, grounded on
// original_source/src/interpreter/env_native.rs's NATIVE_INDEX_FUNC_MIN and
// NATIVE_INDEX_GLOBAL_MIN: indices assigned by the native-module adapter
// start here so they never collide with a wrapped module's own indices,
// which always live below these bases.
const (
	nativeFuncIndexBase   uint32 = 10001
	nativeGlobalIndexBase uint32 = 20001
)

// NativeFunctionKind distinguishes a statically-described host function
// from one allocated per adapter instance (env_native.rs's Static/Heap
// UserFunctionDescriptor variants); both dispatch the same way, the
// distinction only matters to callers constructing descriptor tables.
type NativeFunctionKind int8

const (
	NativeFunctionStatic NativeFunctionKind = iota
	NativeFunctionHeap
)

// NativeFunctionDescriptor names one host-provided function: its exported
// name, parameter types, and optional single result.
type NativeFunctionDescriptor struct {
	Name   string
	Params []ValueType
	Result BlockType
	Kind   NativeFunctionKind
}

// NativeExecutor runs a native-range function call by name, given the
// caller's context and arguments.
type NativeExecutor interface {
	Execute(ctx context.Context, name string, args []Value) (*Value, error)
}

// NativeExecutorFunc adapts a plain function to NativeExecutor.
type NativeExecutorFunc func(ctx context.Context, name string, args []Value) (*Value, error)

func (f NativeExecutorFunc) Execute(ctx context.Context, name string, args []Value) (*Value, error) {
	return f(ctx, name, args)
}

// UserDefinedElements bundles a host environment: globals, function
// descriptors, and the executor that runs them, per spec.md §4.6.
type UserDefinedElements struct {
	Globals   map[string]*VariableInstance
	Functions []NativeFunctionDescriptor
	Executor  NativeExecutor
}

// NativeModule builds a ModuleInstance exposing elems as if they were
// defined in wrapped (which may be nil for a from-scratch native
// environment like the default "env" module). export_entry semantics are
// native-first-then-delegate: this instance's own Exports map is seeded
// from elems, then filled in with wrapped's exports for anything elems
// doesn't already provide.
func NativeModule(name string, wrapped *ModuleInstance, elems UserDefinedElements, log *zap.Logger) *ModuleInstance {
	if log == nil {
		log = zap.NewNop()
	}
	mi := &ModuleInstance{
		name:          name,
		Exports:       make(map[string]ExportEntry),
		nativeFuncs:   make(map[uint32]*FuncInstance),
		nativeGlobals: make(map[uint32]*VariableInstance),
		log:           log,
	}
	if wrapped != nil {
		mi.Funcs = wrapped.Funcs
		mi.Tables = wrapped.Tables
		mi.Memories = wrapped.Memories
		mi.Globals = wrapped.Globals
		mi.Types = wrapped.Types
	}

	// The executor is invoked re-entrantly (a native call can itself cause
	// further Wasm execution that calls back in), so interior mutability
	// is mediated by a single mutex rather than relying on single-threaded
	// access, per spec.md §5.
	var execMu sync.Mutex

	for i, desc := range elems.Functions {
		idx := nativeFuncIndexBase + uint32(i)
		fnName := desc.Name
		var results []ValueType
		if desc.Result.HasValue {
			results = []ValueType{desc.Result.Value}
		}
		fn := &FuncInstance{
			Type: FuncType{Params: desc.Params, Results: results},
			Host: func(ctx context.Context, args []Value) (*Value, error) {
				execMu.Lock()
				defer execMu.Unlock()
				return elems.Executor.Execute(ctx, fnName, args)
			},
		}
		mi.nativeFuncs[idx] = fn
		mi.Exports[fnName] = ExportEntry{Field: fnName, Kind: ExternalFunction, Index: idx}
	}

	i := uint32(0)
	for name, g := range elems.Globals {
		idx := nativeGlobalIndexBase + i
		mi.nativeGlobals[idx] = g
		mi.Exports[name] = ExportEntry{Field: name, Kind: ExternalGlobal, Index: idx}
		i++
	}

	if wrapped != nil {
		for field, ee := range wrapped.Exports {
			if _, exists := mi.Exports[field]; !exists {
				mi.Exports[field] = ee
			}
		}
	}
	return mi
}

// defaultEnvModule builds the stock "env" module NewProgram constructs:
// two i32 globals, STACKTOP (0) and STACK_MAX (one page), (shape only — not a
// reimplementation of the Emscripten shim named in spec.md's Out-of-scope
// list), a 1-page growable memory, and an empty function table.
func defaultEnvModule(p *Program, cfg Config) (*ModuleInstance, error) {
	mem := NewMemoryInstance(1, cfg.MemoryPageLimit, true, cfg.AllowMemoryGrowth)
	table := NewTableInstance(0, 0, false)

	elems := UserDefinedElements{
		Globals: map[string]*VariableInstance{
			"STACKTOP":  NewVariableInstance(ValueTypeI32, false, I32(0)),
			"STACK_MAX": NewVariableInstance(ValueTypeI32, false, I32(int32(PageSize))),
		},
		Functions: nil,
		Executor:  NativeExecutorFunc(func(ctx context.Context, name string, args []Value) (*Value, error) { return nil, nil }),
	}

	mi := NativeModule("env", nil, elems, p.log)
	mi.Memories = []*MemoryInstance{mem}
	mi.Tables = []*TableInstance{table}
	mi.Exports["memory"] = ExportEntry{Field: "memory", Kind: ExternalMemory, Index: 0}
	mi.Exports["table"] = ExportEntry{Field: "table", Kind: ExternalTable, Index: 0}
	return mi, nil
}
