package wasmrt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// identityModule builds a module exporting a single i32->i32 function
// "_call" that returns its argument unchanged.
func identityModule() *Module {
	m := NewModule()
	typeIdx := m.AddFuncType(NewFuncType([]ValueType{ValueTypeI32}, []ValueType{ValueTypeI32}))
	body := FunctionBody{
		Code: []Instruction{
			{Op: OpGetLocal, Index: 0},
			{Op: OpEnd},
		},
	}
	fnIdx := m.AddFunction(typeIdx, body)
	m.AddExport(ExportEntry{Field: "_call", Kind: ExternalFunction, Index: fnIdx})
	return m
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	m := identityModule()

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, m))

	decoded, err := Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	assert.Equal(t, m.Types, decoded.Types)
	assert.Equal(t, m.Funcs, decoded.Funcs)
	assert.Equal(t, m.Code, decoded.Code)
	assert.Equal(t, m.Exports, decoded.Exports)

	var buf2 bytes.Buffer
	require.NoError(t, Encode(&buf2, &decoded))
	assert.Equal(t, buf.Bytes(), buf2.Bytes(), "re-encoding a decoded module must reproduce the same bytes")
}

// TestDecodeDataSectionRoundTrip exercises a module whose only section is a
// data segment, checking that decode->encode->decode reproduces the
// segment's offset expression and payload bytes exactly.
func TestDecodeDataSectionRoundTrip(t *testing.T) {
	m := NewModule()
	m.AddMemory(MemoryType{Limits: Limits{Min: 1}})
	m.AddDataSegment(DataSegment{
		MemoryIndex: 0,
		Offset:      ConstI32(16),
		Data:        []byte("hello, wasm"),
	})

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, m))

	decoded, err := Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, decoded.Data, 1)
	assert.Equal(t, int32(16), decoded.Data[0].Offset.Instr.I32)
	assert.Equal(t, []byte("hello, wasm"), decoded.Data[0].Data)

	var buf2 bytes.Buffer
	require.NoError(t, Encode(&buf2, &decoded))
	assert.Equal(t, buf.Bytes(), buf2.Bytes())
}

// TestDecodeEmptyInitExprDataSegment exercises the literal empty-offset
// data segment: a single segment at memory 0 whose init expression is the
// bare "[End]" sequence (no constant instruction), with 16 zero bytes of
// payload. The section body this produces is exactly
// [0x01, 0x00, 0x0b, 0x10, 0x00x16] (count, memidx, End, data length,
// data), 20 bytes, which is why the section itself is framed with size
// 0x14.
func TestDecodeEmptyInitExprDataSegment(t *testing.T) {
	m := NewModule()
	m.AddMemory(MemoryType{Limits: Limits{Min: 1}})
	m.AddDataSegment(DataSegment{
		MemoryIndex: 0,
		Offset:      ConstExpr{},
		Data:        make([]byte, 16),
	})

	body := encodeDataSection(m.Data)
	expected := append([]byte{0x01, 0x00, 0x0b, 0x10}, make([]byte, 16)...)
	assert.Equal(t, expected, body)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, m))

	decoded, err := Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, decoded.Data, 1)
	assert.False(t, decoded.Data[0].Offset.HasInstr, "bare [End] init expression must decode with no instruction")
	assert.Equal(t, make([]byte, 16), decoded.Data[0].Data)

	var buf2 bytes.Buffer
	require.NoError(t, Encode(&buf2, &decoded))
	assert.Equal(t, buf.Bytes(), buf2.Bytes())
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte{0x00, 0x61, 0x73, 0x00, 0x01, 0x00, 0x00, 0x00}))
	require.Error(t, err)
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	buf := append([]byte{}, MagicNumber[:]...)
	buf = PutUint32(buf, 2)
	_, err := Decode(bytes.NewReader(buf))
	require.Error(t, err)
}
