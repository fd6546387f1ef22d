package wasmrt

import "math"

// ValueType is one of the four Wasm MVP numeric types, encoded in the
// binary format as a negative VarInt7 per spec.md §3.
type ValueType int8

const (
	ValueTypeI32 ValueType = -0x01
	ValueTypeI64 ValueType = -0x02
	ValueTypeF32 ValueType = -0x03
	ValueTypeF64 ValueType = -0x04

	// ElemTypeAnyFunc is the only element kind in the MVP table model.
	ElemTypeAnyFunc ValueType = -0x10
	// typeFunc tags a function-type constructor byte (0x60 -> -0x20).
	typeFunc ValueType = -0x20
	// typeBlockEmpty tags the pseudo type used by an empty block_type.
	typeBlockEmpty ValueType = -0x40
)

func (v ValueType) String() string {
	switch v {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ElemTypeAnyFunc:
		return "anyfunc"
	case typeFunc:
		return "func"
	case typeBlockEmpty:
		return "block_type"
	default:
		return "unknown"
	}
}

// BlockType is the declared result shape of a structured control region.
type BlockType struct {
	HasValue bool
	Value    ValueType
}

// NoResult is the zero BlockType: a block/loop/if/function with no result.
var NoResult = BlockType{}

// BlockValue constructs a BlockType carrying a single result value.
func BlockValue(v ValueType) BlockType { return BlockType{HasValue: true, Value: v} }

// Value is the boundary type crossed by execute-by-name/execute-by-index
// calls; floats cross as bit patterns so NaN payloads survive intact.
type Value struct {
	Type ValueType
	bits uint64
}

func I32(v int32) Value  { return Value{Type: ValueTypeI32, bits: uint64(uint32(v))} }
func I64(v int64) Value  { return Value{Type: ValueTypeI64, bits: uint64(v)} }
func F32(v float32) Value { return Value{Type: ValueTypeF32, bits: uint64(math.Float32bits(v))} }
func F64(v float64) Value { return Value{Type: ValueTypeF64, bits: math.Float64bits(v)} }

func (v Value) I32() int32    { return int32(uint32(v.bits)) }
func (v Value) I64() int64    { return int64(v.bits) }
func (v Value) F32() float32  { return math.Float32frombits(uint32(v.bits)) }
func (v Value) F64() float64  { return math.Float64frombits(v.bits) }
func (v Value) Bits() uint64  { return v.bits }

// ValueFromBits constructs a Value of the given type from its raw bit
// pattern, used by the interpreter's internal operand stack.
func ValueFromBits(t ValueType, bits uint64) Value { return Value{Type: t, bits: bits} }
