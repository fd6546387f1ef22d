package wasmrt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// providerModule exports a "value" function type i32 for importerModule
// below to pull in.
func providerModule() *Module {
	m := NewModule()
	ft := m.AddFuncType(NewFuncType(nil, []ValueType{ValueTypeI32}))
	fnIdx := m.AddFunction(ft, FunctionBody{
		Code: []Instruction{
			{Op: OpI32Const, I32: 99},
			{Op: OpEnd},
		},
	})
	m.AddExport(ExportEntry{Field: "value", Kind: ExternalFunction, Index: fnIdx})
	return m
}

// importerModule imports "provider.value" and re-exports a "_call" that
// invokes it, exercising AddModule's cross-module import resolution.
func importerModule() *Module {
	m := NewModule()
	ft := m.AddFuncType(NewFuncType(nil, []ValueType{ValueTypeI32}))
	importIdx := m.AddImport(ImportEntry{Module: "provider", Field: "value", Kind: ExternalFunction, FuncTypeIndex: ft})

	callerIdx := m.AddFunction(ft, FunctionBody{
		Code: []Instruction{
			{Op: OpCall, Index: importIdx},
			{Op: OpEnd},
		},
	})
	m.AddExport(ExportEntry{Field: "_call", Kind: ExternalFunction, Index: callerIdx})
	return m
}

func TestProgramAddModuleResolvesCrossModuleImport(t *testing.T) {
	ctx := context.Background()
	prog, err := NewProgram()
	require.NoError(t, err)

	_, err = prog.AddModule(ctx, "provider", providerModule(), Externals{})
	require.NoError(t, err)

	mi, err := prog.AddModule(ctx, "importer", importerModule(), Externals{})
	require.NoError(t, err)

	result, err := mi.ExecuteExport(ctx, "_call", nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, int32(99), result.I32())
}

func TestProgramAddModuleRejectsDuplicateName(t *testing.T) {
	ctx := context.Background()
	prog, err := NewProgram()
	require.NoError(t, err)

	_, err = prog.AddModule(ctx, "provider", providerModule(), Externals{})
	require.NoError(t, err)

	_, err = prog.AddModule(ctx, "provider", providerModule(), Externals{})
	require.Error(t, err)
}

// startModule declares a mutable global left at 0 and a start function that
// bumps it to 5, checked via an exported reader function.
func startModule() *Module {
	m := NewModule()
	gIdx := m.AddGlobal(GlobalEntry{Type: GlobalType{ContentType: ValueTypeI32, Mutable: true}, Init: ConstI32(0)})

	readFt := m.AddFuncType(NewFuncType(nil, []ValueType{ValueTypeI32}))
	readIdx := m.AddFunction(readFt, FunctionBody{
		Code: []Instruction{
			{Op: OpGetGlobal, Index: gIdx},
			{Op: OpEnd},
		},
	})
	m.AddExport(ExportEntry{Field: "read", Kind: ExternalFunction, Index: readIdx})

	startFt := m.AddFuncType(NewFuncType(nil, nil))
	startIdx := m.AddFunction(startFt, FunctionBody{
		Code: []Instruction{
			{Op: OpI32Const, I32: 5},
			{Op: OpSetGlobal, Index: gIdx},
			{Op: OpEnd},
		},
	})
	m.SetStart(startIdx)
	return m
}

func TestProgramAddModuleRunsStartFunction(t *testing.T) {
	ctx := context.Background()
	prog, err := NewProgram()
	require.NoError(t, err)

	mi, err := prog.AddModule(ctx, "starter", startModule(), Externals{})
	require.NoError(t, err)

	result, err := mi.ExecuteExport(ctx, "read", nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, int32(5), result.I32())
}

func TestProgramLookup(t *testing.T) {
	prog, err := NewProgram()
	require.NoError(t, err)

	_, ok := prog.Lookup("nonexistent")
	assert.False(t, ok)

	env, ok := prog.Lookup("env")
	require.True(t, ok)
	assert.Equal(t, "env", env.Name())
}
