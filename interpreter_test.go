package wasmrt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjx98/wasmrt/wasmerr"
)

// addModule builds a module exporting "_call(a, b i32) i32" that returns
// a+b, exercising a full decode-free Program/AddModule/ExecuteExport path.
func addModule() *Module {
	m := NewModule()
	ft := m.AddFuncType(NewFuncType([]ValueType{ValueTypeI32, ValueTypeI32}, []ValueType{ValueTypeI32}))
	body := FunctionBody{
		Code: []Instruction{
			{Op: OpGetLocal, Index: 0},
			{Op: OpGetLocal, Index: 1},
			{Op: OpI32Add},
			{Op: OpEnd},
		},
	}
	fnIdx := m.AddFunction(ft, body)
	m.AddExport(ExportEntry{Field: "_call", Kind: ExternalFunction, Index: fnIdx})
	return m
}

func TestExecuteExportSimpleCall(t *testing.T) {
	ctx := context.Background()
	prog, err := NewProgram()
	require.NoError(t, err)

	mi, err := prog.AddModule(ctx, "main", addModule(), Externals{})
	require.NoError(t, err)

	result, err := mi.ExecuteExport(ctx, "_call", []Value{I32(19), I32(23)})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, int32(42), result.I32())
}

// indirectMismatchModule declares two function types, a table holding one
// function of the "wrong" type at index 0, and an exported "_call" that
// performs a call_indirect against the other type.
func indirectMismatchModule() *Module {
	m := NewModule()
	typeNoArgsI32Result := m.AddFuncType(NewFuncType(nil, []ValueType{ValueTypeI32}))
	typeOneArg := m.AddFuncType(NewFuncType([]ValueType{ValueTypeI32}, []ValueType{ValueTypeI32}))

	identityIdx := m.AddFunction(typeOneArg, FunctionBody{
		Code: []Instruction{
			{Op: OpGetLocal, Index: 0},
			{Op: OpEnd},
		},
	})

	tblIdx := m.AddTable(TableType{ElemType: ElemTypeAnyFunc, Limits: Limits{Min: 1, Max: 1, HasMax: true}})
	m.AddElemSegment(ElemSegment{TableIndex: tblIdx, Offset: ConstI32(0), Funcs: []uint32{identityIdx}})

	callerIdx := m.AddFunction(typeNoArgsI32Result, FunctionBody{
		Code: []Instruction{
			{Op: OpI32Const, I32: 0},
			{Op: OpCallIndirect, Index: typeNoArgsI32Result},
			{Op: OpEnd},
		},
	})
	m.AddExport(ExportEntry{Field: "_call", Kind: ExternalFunction, Index: callerIdx})
	return m
}

func TestExecuteIndirectCallSignatureMismatch(t *testing.T) {
	ctx := context.Background()
	prog, err := NewProgram()
	require.NoError(t, err)

	mi, err := prog.AddModule(ctx, "main", indirectMismatchModule(), Externals{})
	require.NoError(t, err)

	_, err = mi.ExecuteExport(ctx, "_call", nil)
	require.Error(t, err)
	kind, ok := wasmerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, wasmerr.KindSignatureMismatch, kind)
}

// oobMemoryModule declares a single-page memory (no growth beyond it) and
// an exported "_call" that loads an i32 from just past its end.
func oobMemoryModule() *Module {
	m := NewModule()
	ft := m.AddFuncType(NewFuncType(nil, []ValueType{ValueTypeI32}))
	m.AddMemory(MemoryType{Limits: Limits{Min: 1, Max: 1, HasMax: true}})
	fnIdx := m.AddFunction(ft, FunctionBody{
		Code: []Instruction{
			{Op: OpI32Const, I32: PageSize - 2},
			{Op: OpI32Load, Align: 2, Offset: 0},
			{Op: OpEnd},
		},
	})
	m.AddExport(ExportEntry{Field: "_call", Kind: ExternalFunction, Index: fnIdx})
	return m
}

func TestExecuteMemoryOutOfBounds(t *testing.T) {
	ctx := context.Background()
	prog, err := NewProgram(WithAllowMemoryGrowth(false))
	require.NoError(t, err)

	mi, err := prog.AddModule(ctx, "main", oobMemoryModule(), Externals{})
	require.NoError(t, err)

	_, err = mi.ExecuteExport(ctx, "_call", nil)
	require.Error(t, err)
	kind, ok := wasmerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, wasmerr.KindMemoryOutOfBounds, kind)
}
