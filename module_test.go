package wasmrt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjx98/wasmrt/wasmerr"
)

func TestInstantiateRejectsSignatureMismatchedImport(t *testing.T) {
	ctx := context.Background()
	m := NewModule()
	ft := m.AddFuncType(NewFuncType([]ValueType{ValueTypeI32}, []ValueType{ValueTypeI32}))
	m.AddImport(ImportEntry{Module: "host", Field: "fn", Kind: ExternalFunction, FuncTypeIndex: ft})

	// The externally supplied function has a different signature (no params).
	badFn := &FuncInstance{
		Type: FuncType{Params: nil, Results: []ValueType{ValueTypeI32}},
		Host: func(ctx context.Context, args []Value) (*Value, error) {
			v := I32(0)
			return &v, nil
		},
	}

	_, err := Instantiate(ctx, "m", m, nil, Externals{Funcs: map[string]*FuncInstance{"host.fn": badFn}}, defaultConfig(), nil)
	require.Error(t, err)
	kind, ok := wasmerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, wasmerr.KindImportTypeMismatch, kind)
}

func TestInstantiateRejectsUnresolvedImport(t *testing.T) {
	ctx := context.Background()
	m := NewModule()
	ft := m.AddFuncType(NewFuncType(nil, nil))
	m.AddImport(ImportEntry{Module: "host", Field: "missing", Kind: ExternalFunction, FuncTypeIndex: ft})

	_, err := Instantiate(ctx, "m", m, nil, Externals{}, defaultConfig(), nil)
	require.Error(t, err)
	kind, ok := wasmerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, wasmerr.KindUnresolvedImport, kind)
}

// TestInstantiateAppliesMemoryPageLimit checks that a declared memory
// without an explicit maximum is clamped to the Config's page ceiling.
func TestInstantiateAppliesMemoryPageLimit(t *testing.T) {
	ctx := context.Background()
	m := NewModule()
	m.AddMemory(MemoryType{Limits: Limits{Min: 1}})

	cfg := defaultConfig()
	cfg.MemoryPageLimit = 2
	cfg.AllowMemoryGrowth = true

	mi, err := Instantiate(ctx, "m", m, nil, Externals{}, cfg, nil)
	require.NoError(t, err)
	require.Len(t, mi.Memories, 1)

	// Growing by 5 pages exceeds the clamped max of 2, so it must fail.
	assert.Equal(t, int32(-1), mi.Memories[0].Grow(5))
	// Growing by 1 page stays within the clamped max and must succeed.
	assert.Equal(t, int32(1), mi.Memories[0].Grow(1))
}

func TestExecuteExportMissingFunction(t *testing.T) {
	ctx := context.Background()
	mi, err := Instantiate(ctx, "m", NewModule(), nil, Externals{}, defaultConfig(), nil)
	require.NoError(t, err)

	_, err = mi.ExecuteExport(ctx, "nope", nil)
	require.Error(t, err)
	kind, ok := wasmerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, wasmerr.KindMissingFunction, kind)
}

func TestExecuteIndexRejectsArgumentCountMismatch(t *testing.T) {
	ctx := context.Background()
	m := identityModule()
	mi, err := Instantiate(ctx, "m", m, nil, Externals{}, defaultConfig(), nil)
	require.NoError(t, err)

	_, err = mi.ExecuteExport(ctx, "_call", nil)
	require.Error(t, err)
	kind, ok := wasmerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, wasmerr.KindTypeMismatch, kind)
}
