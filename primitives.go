package wasmrt

import (
	"encoding/binary"
	"io"
	"unicode/utf8"

	"github.com/kjx98/wasmrt/wasmerr"
)

// order is the byte order used by every fixed-width field in the module
// binary format, grounded on the teacher's decoder.go var order.
var order = binary.LittleEndian

// ReadVarUint32 reads an unsigned LEB128 value into a uint32, stopping at the
// first byte whose continuation bit is clear. It fails with
// wasmerr.KindInvalidVarInt32 if more than 5 bytes are consumed.
func ReadVarUint32(r io.Reader) (uint32, error) {
	v, _, err := readUvarint(r, 32)
	return uint32(v), err
}

// ReadVarUint64 is the 64-bit counterpart of ReadVarUint32; overflow after
// 10 bytes fails with wasmerr.KindInvalidVarInt64.
func ReadVarUint64(r io.Reader) (uint64, error) {
	v, _, err := readUvarint(r, 64)
	return v, err
}

// ReadVarUint7 reads a single-byte (at most) unsigned LEB128 value, used for
// section ids; value-type tags are read with ReadVarInt7.
func ReadVarUint7(r io.Reader) (uint32, error) {
	v, n, err := readUvarint(r, 32)
	if err != nil {
		return 0, err
	}
	if n != 1 {
		return 0, wasmerr.Decode(wasmerr.KindInvalidVarInt32, "varuint7 spans %d bytes", n)
	}
	return uint32(v), nil
}

// ReadVarUint1 reads a one-byte boolean; any value other than 0 or 1 fails
// with wasmerr.KindInvalidVarUint1.
func ReadVarUint1(r io.Reader) (bool, error) {
	v, n, err := readUvarint(r, 32)
	if err != nil {
		return false, err
	}
	if n != 1 || v > 1 {
		return false, wasmerr.Decode(wasmerr.KindInvalidVarUint1, "invalid VarUint1 byte")
	}
	return v == 1, nil
}

func readUvarint(r io.Reader, width int) (uint64, int, error) {
	var result uint64
	var shift uint
	var buf [1]byte
	maxBytes := 5
	if width == 64 {
		maxBytes = 10
	}
	for n := 0; ; n++ {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return 0, n, wasmerr.Decode(wasmerr.KindUnexpectedEOF, "eof reading varuint%d", width)
			}
			return 0, n, err
		}
		b := buf[0]
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, n + 1, nil
		}
		shift += 7
		if n+1 >= maxBytes {
			kind := wasmerr.KindInvalidVarInt32
			if width == 64 {
				kind = wasmerr.KindInvalidVarInt64
			}
			return 0, n + 1, wasmerr.Decode(kind, "varuint%d exceeds %d bytes", width, maxBytes)
		}
	}
}

// ReadVarInt7 reads a signed 7-bit LEB128 value (used for value-type tags),
// sign-extending as described in spec.md §4.1.
func ReadVarInt7(r io.Reader) (int32, error) {
	v, n, err := readVarint(r, 7)
	if err != nil {
		return 0, err
	}
	if n != 1 {
		return 0, wasmerr.Decode(wasmerr.KindInvalidVarInt32, "varint7 spans %d bytes", n)
	}
	if v&0x40 != 0 {
		v |= -1 << 7
	}
	return int32(v), nil
}

// ReadVarInt32 reads a signed 32-bit LEB128 value.
func ReadVarInt32(r io.Reader) (int32, error) {
	v, _, err := readVarint(r, 32)
	return int32(v), err
}

// ReadVarInt64 reads a signed 64-bit LEB128 value.
func ReadVarInt64(r io.Reader) (int64, error) {
	v, _, err := readVarint(r, 64)
	return v, err
}

func readVarint(r io.Reader, width int) (int64, int, error) {
	var result int64
	var shift uint
	var buf [1]byte
	maxBytes := 5
	if width == 64 {
		maxBytes = 10
	}
	if width == 7 {
		maxBytes = 1
	}
	var b byte
	n := 0
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return 0, n, wasmerr.Decode(wasmerr.KindUnexpectedEOF, "eof reading varint%d", width)
			}
			return 0, n, err
		}
		b = buf[0]
		n++
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if n >= maxBytes {
			kind := wasmerr.KindInvalidVarInt32
			if width == 64 {
				kind = wasmerr.KindInvalidVarInt64
			}
			return 0, n, wasmerr.Decode(kind, "varint%d exceeds %d bytes", width, maxBytes)
		}
	}
	if shift < uint(width) && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, n, nil
}

// ReadString reads a VarUint32 length-prefixed, UTF-8-validated string.
func ReadString(r io.Reader) (string, error) {
	n, err := ReadVarUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", wasmerr.Decode(wasmerr.KindUnexpectedEOF, "eof reading string of length %d", n)
	}
	if !utf8.Valid(buf) {
		return "", wasmerr.Decode(wasmerr.KindNonUTF8String, "string is not valid utf-8")
	}
	return string(buf), nil
}

// ReadUint32 reads a little-endian fixed-width uint32.
func ReadUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, wasmerr.Decode(wasmerr.KindUnexpectedEOF, "eof reading fixed uint32")
	}
	return order.Uint32(buf[:]), nil
}

// ReadUint64 reads a little-endian fixed-width uint64.
func ReadUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, wasmerr.Decode(wasmerr.KindUnexpectedEOF, "eof reading fixed uint64")
	}
	return order.Uint64(buf[:]), nil
}

// --- Encoding side ---

// PutVarUint32 appends the minimal unsigned LEB128 encoding of v to buf.
func PutVarUint32(buf []byte, v uint32) []byte {
	return putUvarint(buf, uint64(v))
}

// PutVarUint64 appends the minimal unsigned LEB128 encoding of v to buf.
func PutVarUint64(buf []byte, v uint64) []byte {
	return putUvarint(buf, v)
}

func putUvarint(buf []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			buf = append(buf, b|0x80)
		} else {
			buf = append(buf, b)
			return buf
		}
	}
}

// PutVarInt32 appends the minimal signed LEB128 encoding of v to buf.
func PutVarInt32(buf []byte, v int32) []byte {
	return putVarint(buf, int64(v))
}

// PutVarInt64 appends the minimal signed LEB128 encoding of v to buf.
func PutVarInt64(buf []byte, v int64) []byte {
	return putVarint(buf, v)
}

// PutVarInt7 appends a single-byte signed LEB128 encoding of v to buf.
func PutVarInt7(buf []byte, v int32) []byte {
	return append(buf, byte(v)&0x7f)
}

func putVarint(buf []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBit := b&0x40 != 0
		if (v == 0 && !signBit) || (v == -1 && signBit) {
			buf = append(buf, b)
			return buf
		}
		buf = append(buf, b|0x80)
	}
}

// PutVarUint1 appends a single boolean byte.
func PutVarUint1(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

// PutString appends a VarUint32 length-prefixed UTF-8 string.
func PutString(buf []byte, s string) []byte {
	buf = PutVarUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// PutUint32 appends a little-endian fixed-width uint32.
func PutUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	order.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

// PutUint64 appends a little-endian fixed-width uint64.
func PutUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	order.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

// CountedWriter buffers a payload and prefixes its byte length as a
// VarUint32 once Done is called. Encode frames section bodies itself in
// writeSection and uses a CountedWriter only to assemble custom-section
// bodies, through Bytes.
type CountedWriter struct {
	buf []byte
}

func (c *CountedWriter) Write(p []byte) (int, error) {
	c.buf = append(c.buf, p...)
	return len(p), nil
}

// Bytes returns the accumulated payload without a length prefix.
func (c *CountedWriter) Bytes() []byte { return c.buf }

// Done returns the length-prefixed payload: VarUint32(len) followed by the
// buffered bytes.
func (c *CountedWriter) Done() []byte {
	out := PutVarUint32(nil, uint32(len(c.buf)))
	return append(out, c.buf...)
}
