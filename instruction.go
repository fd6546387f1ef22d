package wasmrt

import (
	"io"

	"github.com/kjx98/wasmrt/wasmerr"
)

// decodeInstruction reads one opcode and its immediates. Instruction uses a
// flat struct (spec.md §3/§4.1) so this is a single big switch rather than
// one decoder per opcode type, mirroring the teacher's decoder.go dispatch
// on the first byte.
func decodeInstruction(r io.Reader) (Instruction, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Instruction{}, wasmerr.Decode(wasmerr.KindUnexpectedEOF, "eof reading opcode")
	}
	instr := Instruction{Op: Op(buf[0])}
	var err error

	switch instr.Op {
	case OpBlock, OpLoop, OpIf:
		instr.BlockType, err = decodeBlockType(r)
	case OpBr, OpBrIf:
		instr.Index, err = ReadVarUint32(r)
	case OpBrTable:
		var n uint32
		if n, err = ReadVarUint32(r); err != nil {
			break
		}
		instr.BrTargets = make([]uint32, n)
		for i := range instr.BrTargets {
			if instr.BrTargets[i], err = ReadVarUint32(r); err != nil {
				break
			}
		}
		if err == nil {
			instr.BrDefault, err = ReadVarUint32(r)
		}
	case OpCall:
		instr.Index, err = ReadVarUint32(r)
	case OpCallIndirect:
		if instr.Index, err = ReadVarUint32(r); err != nil {
			break
		}
		var b [1]byte
		if _, rerr := io.ReadFull(r, b[:]); rerr != nil {
			err = wasmerr.Decode(wasmerr.KindUnexpectedEOF, "eof reading call_indirect reserved byte")
			break
		}
		instr.Reserved = b[0]
	case OpGetLocal, OpSetLocal, OpTeeLocal, OpGetGlobal, OpSetGlobal:
		instr.Index, err = ReadVarUint32(r)
	case OpI32Load, OpI64Load, OpF32Load, OpF64Load,
		OpI32Load8S, OpI32Load8U, OpI32Load16S, OpI32Load16U,
		OpI64Load8S, OpI64Load8U, OpI64Load16S, OpI64Load16U, OpI64Load32S, OpI64Load32U,
		OpI32Store, OpI64Store, OpF32Store, OpF64Store,
		OpI32Store8, OpI32Store16, OpI64Store8, OpI64Store16, OpI64Store32:
		if instr.Align, err = ReadVarUint32(r); err != nil {
			break
		}
		instr.Offset, err = ReadVarUint32(r)
	case OpCurrentMemory, OpGrowMemory:
		var flags uint32
		if flags, err = ReadVarUint32(r); err != nil {
			break
		}
		if flags != 0 {
			err = wasmerr.Decode(wasmerr.KindUnknownSection, "reserved memory flags byte must be 0, got %d", flags)
		}
	case OpI32Const:
		var v int32
		v, err = ReadVarInt32(r)
		instr.I32 = v
	case OpI64Const:
		var v int64
		v, err = ReadVarInt64(r)
		instr.I64 = v
	case OpF32Const:
		var v uint32
		v, err = ReadUint32(r)
		instr.F32 = v
	case OpF64Const:
		var v uint64
		v, err = ReadUint64(r)
		instr.F64 = v
	default:
		// All remaining opcodes (control flow terminators, numeric/compare
		// ops, conversions) carry no immediates.
	}
	if err != nil {
		return instr, err
	}
	return instr, nil
}

func decodeBlockType(r io.Reader) (BlockType, error) {
	v, err := ReadVarInt7(r)
	if err != nil {
		return BlockType{}, err
	}
	if v == blockTypeEmpty {
		return NoResult, nil
	}
	return BlockValue(ValueType(v)), nil
}

// encodeInstruction appends the wire encoding of instr to buf, the inverse
// of decodeInstruction.
func encodeInstruction(buf []byte, instr Instruction) []byte {
	buf = append(buf, byte(instr.Op))
	switch instr.Op {
	case OpBlock, OpLoop, OpIf:
		buf = encodeBlockType(buf, instr.BlockType)
	case OpBr, OpBrIf:
		buf = PutVarUint32(buf, instr.Index)
	case OpBrTable:
		buf = PutVarUint32(buf, uint32(len(instr.BrTargets)))
		for _, t := range instr.BrTargets {
			buf = PutVarUint32(buf, t)
		}
		buf = PutVarUint32(buf, instr.BrDefault)
	case OpCall:
		buf = PutVarUint32(buf, instr.Index)
	case OpCallIndirect:
		buf = PutVarUint32(buf, instr.Index)
		buf = append(buf, instr.Reserved)
	case OpGetLocal, OpSetLocal, OpTeeLocal, OpGetGlobal, OpSetGlobal:
		buf = PutVarUint32(buf, instr.Index)
	case OpI32Load, OpI64Load, OpF32Load, OpF64Load,
		OpI32Load8S, OpI32Load8U, OpI32Load16S, OpI32Load16U,
		OpI64Load8S, OpI64Load8U, OpI64Load16S, OpI64Load16U, OpI64Load32S, OpI64Load32U,
		OpI32Store, OpI64Store, OpF32Store, OpF64Store,
		OpI32Store8, OpI32Store16, OpI64Store8, OpI64Store16, OpI64Store32:
		buf = PutVarUint32(buf, instr.Align)
		buf = PutVarUint32(buf, instr.Offset)
	case OpCurrentMemory, OpGrowMemory:
		buf = PutVarUint32(buf, 0)
	case OpI32Const:
		buf = PutVarInt32(buf, instr.I32)
	case OpI64Const:
		buf = PutVarInt64(buf, instr.I64)
	case OpF32Const:
		buf = PutUint32(buf, instr.F32)
	case OpF64Const:
		buf = PutUint64(buf, instr.F64)
	}
	return buf
}

func encodeBlockType(buf []byte, bt BlockType) []byte {
	if !bt.HasValue {
		return PutVarInt7(buf, blockTypeEmpty)
	}
	return PutVarInt7(buf, int32(bt.Value))
}
