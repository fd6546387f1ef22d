package wasmrt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNativeModuleExportsAndDispatch(t *testing.T) {
	doubler := NativeExecutorFunc(func(ctx context.Context, name string, args []Value) (*Value, error) {
		v := I32(args[0].I32() * 2)
		return &v, nil
	})
	elems := UserDefinedElements{
		Functions: []NativeFunctionDescriptor{
			{Name: "double", Params: []ValueType{ValueTypeI32}, Result: BlockValue(ValueTypeI32)},
		},
		Globals: map[string]*VariableInstance{
			"seed": NewVariableInstance(ValueTypeI32, false, I32(7)),
		},
		Executor: doubler,
	}

	mi := NativeModule("math", nil, elems, nil)

	ee, ok := mi.Exports["double"]
	require.True(t, ok)
	assert.Equal(t, ExternalFunction, ee.Kind)
	assert.GreaterOrEqual(t, ee.Index, nativeFuncIndexBase)

	fn, err := mi.resolveFuncInstance(ee.Index)
	require.NoError(t, err)
	result, err := Call(context.Background(), fn, []Value{I32(21)})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, int32(42), result.I32())

	gee, ok := mi.Exports["seed"]
	require.True(t, ok)
	g, err := mi.globalAt(gee.Index)
	require.NoError(t, err)
	assert.Equal(t, int32(7), g.Get().I32())
}

// TestNativeModuleWrappedDelegation checks that a native module built over
// a wrapped instance exposes the wrapped module's own exports for any name
// its native function/global set doesn't already provide, without
// overriding names the native set does provide.
func TestNativeModuleWrappedDelegation(t *testing.T) {
	wrapped := &ModuleInstance{
		name: "inner",
		Exports: map[string]ExportEntry{
			"helper": {Field: "helper", Kind: ExternalFunction, Index: 0},
			"double": {Field: "double", Kind: ExternalFunction, Index: 1}, // shadowed by the native set below
		},
	}

	elems := UserDefinedElements{
		Functions: []NativeFunctionDescriptor{
			{Name: "double", Params: []ValueType{ValueTypeI32}, Result: BlockValue(ValueTypeI32)},
		},
		Executor: NativeExecutorFunc(func(ctx context.Context, name string, args []Value) (*Value, error) { return nil, nil }),
	}

	mi := NativeModule("outer", wrapped, elems, nil)

	helperEE, ok := mi.Exports["helper"]
	require.True(t, ok)
	assert.Equal(t, uint32(0), helperEE.Index)

	doubleEE, ok := mi.Exports["double"]
	require.True(t, ok)
	assert.GreaterOrEqual(t, doubleEE.Index, nativeFuncIndexBase, "native export must win over the wrapped module's same-named export")
}

func TestDefaultEnvModuleShape(t *testing.T) {
	p := &Program{modules: map[string]*ModuleInstance{}, log: nil}
	cfg := defaultConfig()

	env, err := defaultEnvModule(p, cfg)
	require.NoError(t, err)

	for _, field := range []string{"memory", "table", "STACKTOP", "STACK_MAX"} {
		_, ok := env.Exports[field]
		assert.True(t, ok, "env module should export %q", field)
	}
	require.Len(t, env.Memories, 1)
	assert.EqualValues(t, 1, env.Memories[0].PageCount())
}
