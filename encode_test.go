package wasmrt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstructionRoundTrip(t *testing.T) {
	cases := []Instruction{
		{Op: OpNop},
		{Op: OpBlock, BlockType: BlockValue(ValueTypeI32)},
		{Op: OpLoop, BlockType: NoResult},
		{Op: OpBr, Index: 2},
		{Op: OpBrIf, Index: 1},
		{Op: OpBrTable, BrTargets: []uint32{0, 1, 2}, BrDefault: 3},
		{Op: OpCall, Index: 7},
		{Op: OpCallIndirect, Index: 3, Reserved: 0},
		{Op: OpI32Load, Align: 2, Offset: 4},
		{Op: OpI64Store, Align: 3, Offset: 0},
		{Op: OpI32Const, I32: -2147483648},
		{Op: OpI64Const, I64: -9223372036854775808},
		{Op: OpEnd},
	}
	for _, instr := range cases {
		buf := encodeInstruction(nil, instr)
		got, err := decodeInstruction(bytes.NewReader(buf))
		require.NoError(t, err)
		assert.Equal(t, instr, got)
	}
}

func TestEncodeFuncTypeSection(t *testing.T) {
	types := []FuncType{
		NewFuncType(nil, nil),
		NewFuncType([]ValueType{ValueTypeI32, ValueTypeI64}, []ValueType{ValueTypeF64}),
	}
	buf := encodeTypeSection(types)
	r := bytes.NewReader(buf)
	n, err := ReadVarUint32(r)
	require.NoError(t, err)
	require.EqualValues(t, len(types), n)

	got := make([]FuncType, n)
	for i := range got {
		got[i], err = decodeFuncType(r)
		require.NoError(t, err)
	}
	assert.Equal(t, types, got)
}
