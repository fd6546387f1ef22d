package wasmrt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjx98/wasmrt/wasmerr"
)

func TestVarInt32RoundTrip(t *testing.T) {
	values := []int32{0, 1, -1, 63, -64, 64, -65, 1 << 20, -(1 << 20), 2147483647, -2147483648}
	for _, v := range values {
		buf := PutVarInt32(nil, v)
		got, err := ReadVarInt32(bytes.NewReader(buf))
		require.NoError(t, err)
		assert.Equal(t, v, got, "value %d", v)
	}
}

func TestVarUint32RoundTrip(t *testing.T) {
	values := []uint32{0, 1, 127, 128, 16384, 1<<32 - 1}
	for _, v := range values {
		buf := PutVarUint32(nil, v)
		got, err := ReadVarUint32(bytes.NewReader(buf))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestVarInt64RoundTrip(t *testing.T) {
	values := []int64{0, -1, 1 << 40, -(1 << 40), 9223372036854775807, -9223372036854775808}
	for _, v := range values {
		buf := PutVarInt64(nil, v)
		got, err := ReadVarInt64(bytes.NewReader(buf))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

// TestVarInt32Overflow checks that a 32-bit signed LEB128 spanning more than
// five bytes is rejected rather than silently wrapping.
func TestVarInt32Overflow(t *testing.T) {
	buf := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}
	_, err := ReadVarInt32(bytes.NewReader(buf))
	require.Error(t, err)
	kind, ok := wasmerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, wasmerr.KindInvalidVarInt32, kind)
}

// TestCountedListOfVarInt7 decodes a counted list of five VarInt7 entries
// whose second element is -3, exercising the count-prefixed list idiom used
// throughout the binary format for type lists, import/export lists, etc.
func TestCountedListOfVarInt7(t *testing.T) {
	var buf []byte
	buf = PutVarUint32(buf, 5)
	values := []int32{1, -3, 2, -1, 0}
	for _, v := range values {
		buf = PutVarInt7(buf, v)
	}

	r := bytes.NewReader(buf)
	count, err := ReadVarUint32(r)
	require.NoError(t, err)
	require.EqualValues(t, 5, count)

	got := make([]int32, count)
	for i := range got {
		v, err := ReadVarInt7(r)
		require.NoError(t, err)
		got[i] = v
	}
	assert.Equal(t, values, got)
	assert.EqualValues(t, -3, got[1])
}

func TestReadStringRejectsInvalidUTF8(t *testing.T) {
	var buf []byte
	buf = PutVarUint32(buf, 2)
	buf = append(buf, 0xff, 0xfe)
	_, err := ReadString(bytes.NewReader(buf))
	require.Error(t, err)
	kind, _ := wasmerr.KindOf(err)
	assert.Equal(t, wasmerr.KindNonUTF8String, kind)
}

func TestCountedWriter(t *testing.T) {
	var cw CountedWriter
	_, _ = cw.Write([]byte("abc"))
	done := cw.Done()

	n, err := ReadVarUint32(bytes.NewReader(done))
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}
