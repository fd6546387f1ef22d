package wasmrt

import (
	"bytes"
	"io"

	"github.com/kjx98/wasmrt/wasmerr"
)

// Decode parses the Wasm binary format into a Module, grounded on the
// teacher's decoder.go (same per-section method breakdown, generalized to
// the full MVP section/instruction set and given proper returned errors
// instead of a sticky decoder.err field).
func Decode(r io.Reader) (Module, error) {
	var m Module

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return m, wasmerr.Decode(wasmerr.KindUnexpectedEOF, "eof reading module header")
	}
	if magic != MagicNumber {
		return m, wasmerr.Decode(wasmerr.KindInvalidMagic, "bad magic number %x", magic)
	}
	version, err := ReadUint32(r)
	if err != nil {
		return m, err
	}
	if version != Version {
		return m, wasmerr.Decode(wasmerr.KindUnsupportedVer, "unsupported version %d", version)
	}

	for {
		id, err := ReadVarUint7(r)
		if err != nil {
			if e, ok := err.(*wasmerr.Error); ok && e.Kind == wasmerr.KindUnexpectedEOF {
				return m, nil
			}
			return m, err
		}
		size, err := ReadVarUint32(r)
		if err != nil {
			return m, err
		}
		body := &io.LimitedReader{R: r, N: int64(size)}
		if err := decodeSection(&m, SectionID(id), body); err != nil {
			return m, err
		}
		if body.N != 0 {
			return m, wasmerr.Decode(wasmerr.KindUnknownSection, "section %d: %d trailing bytes", id, body.N)
		}
	}
}

func decodeSection(m *Module, id SectionID, r io.Reader) error {
	switch id {
	case SectionCustom:
		name, err := ReadString(r)
		if err != nil {
			return err
		}
		payload, err := io.ReadAll(r)
		if err != nil {
			return wasmerr.Decode(wasmerr.KindUnexpectedEOF, "eof reading custom section %q", name)
		}
		m.Customs = append(m.Customs, CustomSection{Name: name, Payload: payload})
		m.order = append(m.order, sectionSlot{id: id, customIdx: len(m.Customs) - 1})
		return nil
	case SectionType:
		n, err := ReadVarUint32(r)
		if err != nil {
			return err
		}
		m.Types = make([]FuncType, n)
		for i := range m.Types {
			if m.Types[i], err = decodeFuncType(r); err != nil {
				return err
			}
		}
	case SectionImport:
		n, err := ReadVarUint32(r)
		if err != nil {
			return err
		}
		m.Imports = make([]ImportEntry, n)
		for i := range m.Imports {
			if m.Imports[i], err = decodeImportEntry(r); err != nil {
				return err
			}
		}
	case SectionFunc:
		n, err := ReadVarUint32(r)
		if err != nil {
			return err
		}
		m.Funcs = make([]uint32, n)
		for i := range m.Funcs {
			if m.Funcs[i], err = ReadVarUint32(r); err != nil {
				return err
			}
		}
	case SectionTable:
		n, err := ReadVarUint32(r)
		if err != nil {
			return err
		}
		m.Tables = make([]TableType, n)
		for i := range m.Tables {
			if m.Tables[i], err = decodeTableType(r); err != nil {
				return err
			}
		}
	case SectionMemory:
		n, err := ReadVarUint32(r)
		if err != nil {
			return err
		}
		m.Memories = make([]MemoryType, n)
		for i := range m.Memories {
			if m.Memories[i], err = decodeMemoryType(r); err != nil {
				return err
			}
		}
	case SectionGlobal:
		n, err := ReadVarUint32(r)
		if err != nil {
			return err
		}
		m.Globals = make([]GlobalEntry, n)
		for i := range m.Globals {
			if m.Globals[i], err = decodeGlobalEntry(r); err != nil {
				return err
			}
		}
	case SectionExport:
		n, err := ReadVarUint32(r)
		if err != nil {
			return err
		}
		m.Exports = make([]ExportEntry, n)
		for i := range m.Exports {
			if m.Exports[i], err = decodeExportEntry(r); err != nil {
				return err
			}
		}
	case SectionStart:
		idx, err := ReadVarUint32(r)
		if err != nil {
			return err
		}
		m.HasStart = true
		m.Start = idx
	case SectionElem:
		n, err := ReadVarUint32(r)
		if err != nil {
			return err
		}
		m.Elems = make([]ElemSegment, n)
		for i := range m.Elems {
			if m.Elems[i], err = decodeElemSegment(r); err != nil {
				return err
			}
		}
	case SectionCode:
		n, err := ReadVarUint32(r)
		if err != nil {
			return err
		}
		m.Code = make([]FunctionBody, n)
		for i := range m.Code {
			if m.Code[i], err = decodeFunctionBody(r); err != nil {
				return err
			}
		}
	case SectionData:
		n, err := ReadVarUint32(r)
		if err != nil {
			return err
		}
		m.Data = make([]DataSegment, n)
		for i := range m.Data {
			if m.Data[i], err = decodeDataSegment(r); err != nil {
				return err
			}
		}
	default:
		return wasmerr.Decode(wasmerr.KindUnknownSection, "unknown section id %d", id)
	}
	m.order = append(m.order, sectionSlot{id: id})
	return nil
}

func decodeValueType(r io.Reader) (ValueType, error) {
	v, err := ReadVarInt7(r)
	return ValueType(v), err
}

func decodeFuncType(r io.Reader) (FuncType, error) {
	var ft FuncType
	form, err := ReadVarInt7(r)
	if err != nil {
		return ft, err
	}
	if ValueType(form) != typeFunc {
		return ft, wasmerr.Decode(wasmerr.KindUnknownSection, "func type form byte 0x%x", byte(form))
	}
	nParams, err := ReadVarUint32(r)
	if err != nil {
		return ft, err
	}
	if nParams > 0 {
		ft.Params = make([]ValueType, nParams)
	}
	for i := range ft.Params {
		if ft.Params[i], err = decodeValueType(r); err != nil {
			return ft, err
		}
	}
	nResults, err := ReadVarUint32(r)
	if err != nil {
		return ft, err
	}
	if nResults > 0 {
		ft.Results = make([]ValueType, nResults)
	}
	for i := range ft.Results {
		if ft.Results[i], err = decodeValueType(r); err != nil {
			return ft, err
		}
	}
	return ft, nil
}

func decodeExternalKind(r io.Reader) (ExternalKind, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, wasmerr.Decode(wasmerr.KindUnexpectedEOF, "eof reading external kind")
	}
	return ExternalKind(b[0]), nil
}

func decodeLimits(r io.Reader) (Limits, error) {
	var l Limits
	flags, err := ReadVarUint32(r)
	if err != nil {
		return l, err
	}
	if l.Min, err = ReadVarUint32(r); err != nil {
		return l, err
	}
	if flags&0x1 != 0 {
		l.HasMax = true
		if l.Max, err = ReadVarUint32(r); err != nil {
			return l, err
		}
	}
	return l, nil
}

func decodeTableType(r io.Reader) (TableType, error) {
	var t TableType
	v, err := ReadVarInt7(r)
	if err != nil {
		return t, err
	}
	t.ElemType = ValueType(v)
	t.Limits, err = decodeLimits(r)
	return t, err
}

func decodeMemoryType(r io.Reader) (MemoryType, error) {
	var t MemoryType
	var err error
	t.Limits, err = decodeLimits(r)
	return t, err
}

func decodeGlobalType(r io.Reader) (GlobalType, error) {
	var g GlobalType
	vt, err := decodeValueType(r)
	if err != nil {
		return g, err
	}
	mut, err := ReadVarUint1(r)
	if err != nil {
		return g, err
	}
	g.ContentType = vt
	g.Mutable = mut
	return g, nil
}

func decodeImportEntry(r io.Reader) (ImportEntry, error) {
	var ie ImportEntry
	var err error
	if ie.Module, err = ReadString(r); err != nil {
		return ie, err
	}
	if ie.Field, err = ReadString(r); err != nil {
		return ie, err
	}
	if ie.Kind, err = decodeExternalKind(r); err != nil {
		return ie, err
	}
	switch ie.Kind {
	case ExternalFunction:
		ie.FuncTypeIndex, err = ReadVarUint32(r)
	case ExternalTable:
		ie.Table, err = decodeTableType(r)
	case ExternalMemory:
		ie.Memory, err = decodeMemoryType(r)
	case ExternalGlobal:
		ie.Global, err = decodeGlobalType(r)
	default:
		return ie, wasmerr.Decode(wasmerr.KindUnknownSection, "invalid external kind %d", ie.Kind)
	}
	return ie, err
}

func decodeExportEntry(r io.Reader) (ExportEntry, error) {
	var ee ExportEntry
	var err error
	if ee.Field, err = ReadString(r); err != nil {
		return ee, err
	}
	if ee.Kind, err = decodeExternalKind(r); err != nil {
		return ee, err
	}
	ee.Index, err = ReadVarUint32(r)
	return ee, err
}

// decodeConstExpr reads a constant opcode sequence terminated by End, per
// spec.md §3 ("a constant opcode sequence terminated by End"). A bare
// "[End]" sequence (no leading constant instruction) is the empty init
// expression case and decodes to a zero-value ConstExpr.
func decodeConstExpr(r io.Reader) (ConstExpr, error) {
	var ce ConstExpr
	instr, err := decodeInstruction(r)
	if err != nil {
		return ce, err
	}
	if instr.Op == OpEnd {
		return ce, nil
	}
	switch instr.Op {
	case OpI32Const, OpI64Const, OpF32Const, OpF64Const, OpGetGlobal:
	default:
		return ce, wasmerr.Decode(wasmerr.KindUnknownSection, "non-constant init expression opcode 0x%x", byte(instr.Op))
	}
	ce.HasInstr = true
	ce.Instr = instr
	end, err := decodeInstruction(r)
	if err != nil {
		return ce, err
	}
	if end.Op != OpEnd {
		return ce, wasmerr.Decode(wasmerr.KindUnknownSection, "init expression missing terminating end")
	}
	return ce, nil
}

func decodeGlobalEntry(r io.Reader) (GlobalEntry, error) {
	var ge GlobalEntry
	var err error
	if ge.Type, err = decodeGlobalType(r); err != nil {
		return ge, err
	}
	ge.Init, err = decodeConstExpr(r)
	return ge, err
}

func decodeElemSegment(r io.Reader) (ElemSegment, error) {
	var es ElemSegment
	var err error
	if es.TableIndex, err = ReadVarUint32(r); err != nil {
		return es, err
	}
	if es.Offset, err = decodeConstExpr(r); err != nil {
		return es, err
	}
	n, err := ReadVarUint32(r)
	if err != nil {
		return es, err
	}
	es.Funcs = make([]uint32, n)
	for i := range es.Funcs {
		if es.Funcs[i], err = ReadVarUint32(r); err != nil {
			return es, err
		}
	}
	return es, nil
}

func decodeDataSegment(r io.Reader) (DataSegment, error) {
	var ds DataSegment
	var err error
	if ds.MemoryIndex, err = ReadVarUint32(r); err != nil {
		return ds, err
	}
	if ds.Offset, err = decodeConstExpr(r); err != nil {
		return ds, err
	}
	n, err := ReadVarUint32(r)
	if err != nil {
		return ds, err
	}
	ds.Data = make([]byte, n)
	if _, err := io.ReadFull(r, ds.Data); err != nil {
		return ds, wasmerr.Decode(wasmerr.KindUnexpectedEOF, "eof reading data segment payload")
	}
	return ds, nil
}

func decodeFunctionBody(r io.Reader) (FunctionBody, error) {
	var fb FunctionBody
	bodySize, err := ReadVarUint32(r)
	if err != nil {
		return fb, err
	}
	body := &io.LimitedReader{R: r, N: int64(bodySize)}
	nLocals, err := ReadVarUint32(body)
	if err != nil {
		return fb, err
	}
	if nLocals > 0 {
		fb.Locals = make([]LocalEntry, nLocals)
	}
	for i := range fb.Locals {
		count, err := ReadVarUint32(body)
		if err != nil {
			return fb, err
		}
		vt, err := decodeValueType(body)
		if err != nil {
			return fb, err
		}
		fb.Locals[i] = LocalEntry{Count: count, Type: vt}
	}
	if body.N == 0 {
		return fb, wasmerr.Validate(wasmerr.KindEmptyFunctionBody, "non-empty function body expected")
	}
	code, err := io.ReadAll(body)
	if err != nil {
		return fb, wasmerr.Decode(wasmerr.KindUnexpectedEOF, "eof reading function code")
	}
	cr := bytes.NewReader(code)
	for cr.Len() > 0 {
		instr, err := decodeInstruction(cr)
		if err != nil {
			return fb, err
		}
		fb.Code = append(fb.Code, instr)
	}
	return fb, nil
}
