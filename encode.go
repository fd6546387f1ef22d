package wasmrt

import "io"

// Encode writes m to w in the Wasm binary format, reproducing the original
// on-wire section order recorded in m.order so Decode(Encode(m)) round-trips
// byte for byte (spec.md §4.1's round-trip contract).
func Encode(w io.Writer, m *Module) error {
	header := PutUint32(append([]byte{}, MagicNumber[:]...), Version)
	if _, err := w.Write(header); err != nil {
		return err
	}

	for _, slot := range m.order {
		var body []byte
		switch slot.id {
		case SectionCustom:
			c := m.Customs[slot.customIdx]
			var cw CountedWriter
			buf := PutString(nil, c.Name)
			buf = append(buf, c.Payload...)
			cw.Write(buf)
			body = cw.Bytes()
		case SectionType:
			body = encodeTypeSection(m.Types)
		case SectionImport:
			body = encodeImportSection(m.Imports)
		case SectionFunc:
			body = encodeFuncSection(m.Funcs)
		case SectionTable:
			body = encodeTableSection(m.Tables)
		case SectionMemory:
			body = encodeMemorySection(m.Memories)
		case SectionGlobal:
			body = encodeGlobalSection(m.Globals)
		case SectionExport:
			body = encodeExportSection(m.Exports)
		case SectionStart:
			body = PutVarUint32(nil, m.Start)
		case SectionElem:
			body = encodeElemSection(m.Elems)
		case SectionCode:
			body = encodeCodeSection(m.Code)
		case SectionData:
			body = encodeDataSection(m.Data)
		}
		if err := writeSection(w, slot.id, body); err != nil {
			return err
		}
	}
	return nil
}

func writeSection(w io.Writer, id SectionID, body []byte) error {
	if _, err := w.Write([]byte{byte(id)}); err != nil {
		return err
	}
	framed := PutVarUint32(nil, uint32(len(body)))
	framed = append(framed, body...)
	_, err := w.Write(framed)
	return err
}

func encodeValueType(buf []byte, v ValueType) []byte {
	return PutVarInt7(buf, int32(v))
}

func encodeFuncType(buf []byte, ft FuncType) []byte {
	buf = PutVarInt7(buf, int32(typeFunc))
	buf = PutVarUint32(buf, uint32(len(ft.Params)))
	for _, p := range ft.Params {
		buf = encodeValueType(buf, p)
	}
	buf = PutVarUint32(buf, uint32(len(ft.Results)))
	for _, rt := range ft.Results {
		buf = encodeValueType(buf, rt)
	}
	return buf
}

func encodeTypeSection(types []FuncType) []byte {
	buf := PutVarUint32(nil, uint32(len(types)))
	for _, ft := range types {
		buf = encodeFuncType(buf, ft)
	}
	return buf
}

func encodeLimits(buf []byte, l Limits) []byte {
	flags := uint32(0)
	if l.HasMax {
		flags = 1
	}
	buf = PutVarUint32(buf, flags)
	buf = PutVarUint32(buf, l.Min)
	if l.HasMax {
		buf = PutVarUint32(buf, l.Max)
	}
	return buf
}

func encodeTableType(buf []byte, t TableType) []byte {
	buf = PutVarInt7(buf, int32(t.ElemType))
	return encodeLimits(buf, t.Limits)
}

func encodeMemoryType(buf []byte, t MemoryType) []byte {
	return encodeLimits(buf, t.Limits)
}

func encodeGlobalType(buf []byte, g GlobalType) []byte {
	buf = encodeValueType(buf, g.ContentType)
	return PutVarUint1(buf, g.Mutable)
}

func encodeImportEntry(buf []byte, ie ImportEntry) []byte {
	buf = PutString(buf, ie.Module)
	buf = PutString(buf, ie.Field)
	buf = append(buf, byte(ie.Kind))
	switch ie.Kind {
	case ExternalFunction:
		buf = PutVarUint32(buf, ie.FuncTypeIndex)
	case ExternalTable:
		buf = encodeTableType(buf, ie.Table)
	case ExternalMemory:
		buf = encodeMemoryType(buf, ie.Memory)
	case ExternalGlobal:
		buf = encodeGlobalType(buf, ie.Global)
	}
	return buf
}

func encodeImportSection(imports []ImportEntry) []byte {
	buf := PutVarUint32(nil, uint32(len(imports)))
	for _, ie := range imports {
		buf = encodeImportEntry(buf, ie)
	}
	return buf
}

func encodeFuncSection(funcs []uint32) []byte {
	buf := PutVarUint32(nil, uint32(len(funcs)))
	for _, idx := range funcs {
		buf = PutVarUint32(buf, idx)
	}
	return buf
}

func encodeTableSection(tables []TableType) []byte {
	buf := PutVarUint32(nil, uint32(len(tables)))
	for _, t := range tables {
		buf = encodeTableType(buf, t)
	}
	return buf
}

func encodeMemorySection(mems []MemoryType) []byte {
	buf := PutVarUint32(nil, uint32(len(mems)))
	for _, m := range mems {
		buf = encodeMemoryType(buf, m)
	}
	return buf
}

func encodeConstExpr(buf []byte, ce ConstExpr) []byte {
	if !ce.HasInstr {
		return encodeInstruction(buf, Instruction{Op: OpEnd})
	}
	buf = encodeInstruction(buf, ce.Instr)
	return encodeInstruction(buf, Instruction{Op: OpEnd})
}

func encodeGlobalSection(globals []GlobalEntry) []byte {
	buf := PutVarUint32(nil, uint32(len(globals)))
	for _, ge := range globals {
		buf = encodeGlobalType(buf, ge.Type)
		buf = encodeConstExpr(buf, ge.Init)
	}
	return buf
}

func encodeExportSection(exports []ExportEntry) []byte {
	buf := PutVarUint32(nil, uint32(len(exports)))
	for _, ee := range exports {
		buf = PutString(buf, ee.Field)
		buf = append(buf, byte(ee.Kind))
		buf = PutVarUint32(buf, ee.Index)
	}
	return buf
}

func encodeElemSection(elems []ElemSegment) []byte {
	buf := PutVarUint32(nil, uint32(len(elems)))
	for _, es := range elems {
		buf = PutVarUint32(buf, es.TableIndex)
		buf = encodeConstExpr(buf, es.Offset)
		buf = PutVarUint32(buf, uint32(len(es.Funcs)))
		for _, fi := range es.Funcs {
			buf = PutVarUint32(buf, fi)
		}
	}
	return buf
}

func encodeDataSection(data []DataSegment) []byte {
	buf := PutVarUint32(nil, uint32(len(data)))
	for _, ds := range data {
		buf = PutVarUint32(buf, ds.MemoryIndex)
		buf = encodeConstExpr(buf, ds.Offset)
		buf = PutVarUint32(buf, uint32(len(ds.Data)))
		buf = append(buf, ds.Data...)
	}
	return buf
}

func encodeFunctionBody(fb FunctionBody) []byte {
	var inner []byte
	inner = PutVarUint32(inner, uint32(len(fb.Locals)))
	for _, le := range fb.Locals {
		inner = PutVarUint32(inner, le.Count)
		inner = encodeValueType(inner, le.Type)
	}
	for _, instr := range fb.Code {
		inner = encodeInstruction(inner, instr)
	}
	buf := PutVarUint32(nil, uint32(len(inner)))
	return append(buf, inner...)
}

func encodeCodeSection(code []FunctionBody) []byte {
	buf := PutVarUint32(nil, uint32(len(code)))
	for _, fb := range code {
		buf = append(buf, encodeFunctionBody(fb)...)
	}
	return buf
}
