package wasmrt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjx98/wasmrt/wasmerr"
)

func TestValidateFunctionIdentity(t *testing.T) {
	m := NewModule()
	sig := NewFuncType([]ValueType{ValueTypeI32}, []ValueType{ValueTypeI32})
	body := []Instruction{
		{Op: OpGetLocal, Index: 0},
		{Op: OpEnd},
	}
	labels, err := ValidateFunction(m, sig, []ValueType{ValueTypeI32}, body)
	require.NoError(t, err)
	assert.Equal(t, 1, labels.Ends[-1]) // function frame's BeginPos is -1
}

func TestValidateFunctionRejectsTypeMismatch(t *testing.T) {
	m := NewModule()
	sig := NewFuncType(nil, []ValueType{ValueTypeI32})
	body := []Instruction{
		{Op: OpI64Const, I64: 1},
		{Op: OpEnd},
	}
	_, err := ValidateFunction(m, sig, nil, body)
	require.Error(t, err)
	kind, ok := wasmerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, wasmerr.KindTypeMismatch, kind)
}

func TestValidateFunctionIfElse(t *testing.T) {
	m := NewModule()
	sig := NewFuncType([]ValueType{ValueTypeI32}, []ValueType{ValueTypeI32})
	body := []Instruction{
		{Op: OpGetLocal, Index: 0},
		{Op: OpIf, BlockType: BlockValue(ValueTypeI32)},
		{Op: OpI32Const, I32: 1},
		{Op: OpElse},
		{Op: OpI32Const, I32: 0},
		{Op: OpEnd},
		{Op: OpEnd},
	}
	labels, err := ValidateFunction(m, sig, []ValueType{ValueTypeI32}, body)
	require.NoError(t, err)
	// If begins at index 1; Else at index 3; matching End at index 5.
	assert.Equal(t, 3, labels.Elses[1])
	assert.Equal(t, 5, labels.Ends[1])
}

// TestValidateFunctionParentFrameAccess exercises the "reach into an
// enclosing frame's operands" violation: a nested block that tries to
// consume a value pushed before it started.
func TestValidateFunctionParentFrameAccess(t *testing.T) {
	m := NewModule()
	sig := NewFuncType(nil, nil)
	body := []Instruction{
		{Op: OpI32Const, I32: 1},
		{Op: OpBlock, BlockType: NoResult},
		{Op: OpDrop}, // nothing pushed inside this block: illegal reach outward
		{Op: OpEnd},
		{Op: OpDrop},
		{Op: OpEnd},
	}
	_, err := ValidateFunction(m, sig, nil, body)
	require.Error(t, err)
	kind, _ := wasmerr.KindOf(err)
	assert.Equal(t, wasmerr.KindParentFrameAccess, kind)
}

func TestValidateFunctionRejectsEmptyBody(t *testing.T) {
	m := NewModule()
	sig := NewFuncType(nil, nil)
	_, err := ValidateFunction(m, sig, nil, nil)
	require.Error(t, err)
	kind, _ := wasmerr.KindOf(err)
	assert.Equal(t, wasmerr.KindEmptyFunctionBody, kind)
}

func TestValidateModuleAggregatesErrors(t *testing.T) {
	m := NewModule()
	badSig := NewFuncType(nil, []ValueType{ValueTypeI32})
	m.AddFuncType(badSig)
	m.Funcs = append(m.Funcs, 0)
	m.Code = append(m.Code, FunctionBody{Code: []Instruction{{Op: OpEnd}}}) // no value produced: mismatch

	results, err := ValidateModule(m, nil)
	require.Error(t, err)
	assert.Empty(t, results)
}
