package wasmrt

// NewModule returns an empty Module whose section-order ledger starts empty
// and is filled in by the append-style helpers below. This is
// validation-free structural assembly only, used by the CLI demos and
// tests to build modules in-process rather than always round-tripping
// through a decoded file.
func NewModule() *Module {
	return &Module{Exports: nil}
}

// NewFuncType builds a FuncType from parameter and result lists; the MVP
// allows at most one result, but this helper does not enforce it — that is
// the validator's job.
func NewFuncType(params, results []ValueType) FuncType {
	return FuncType{Params: params, Results: results}
}

// AddFuncType appends a type and records its index in the type section,
// returning the new type's index.
func (m *Module) AddFuncType(ft FuncType) uint32 {
	m.touchSection(SectionType)
	m.Types = append(m.Types, ft)
	return uint32(len(m.Types) - 1)
}

// AddImport appends an import entry, returning its index within its kind's
// portion of the corresponding index space.
func (m *Module) AddImport(im ImportEntry) uint32 {
	m.touchSection(SectionImport)
	m.Imports = append(m.Imports, im)
	return m.ImportCount(im.Kind) - 1
}

// AddFunction declares a locally-defined function with the given type
// index and body, returning its function-index-space position.
func (m *Module) AddFunction(typeIdx uint32, body FunctionBody) uint32 {
	m.touchSection(SectionFunc)
	m.Funcs = append(m.Funcs, typeIdx)
	m.touchSection(SectionCode)
	m.Code = append(m.Code, body)
	return m.ImportCount(ExternalFunction) + uint32(len(m.Funcs)-1)
}

// AddTable appends a table declaration, returning its table-index-space
// position.
func (m *Module) AddTable(tt TableType) uint32 {
	m.touchSection(SectionTable)
	m.Tables = append(m.Tables, tt)
	return m.ImportCount(ExternalTable) + uint32(len(m.Tables)-1)
}

// AddMemory appends a memory declaration, returning its memory-index-space
// position.
func (m *Module) AddMemory(mt MemoryType) uint32 {
	m.touchSection(SectionMemory)
	m.Memories = append(m.Memories, mt)
	return m.ImportCount(ExternalMemory) + uint32(len(m.Memories)-1)
}

// AddGlobal appends a global declaration, returning its global-index-space
// position.
func (m *Module) AddGlobal(ge GlobalEntry) uint32 {
	m.touchSection(SectionGlobal)
	m.Globals = append(m.Globals, ge)
	return m.ImportCount(ExternalGlobal) + uint32(len(m.Globals)-1)
}

// AddExport appends an export entry.
func (m *Module) AddExport(ee ExportEntry) {
	m.touchSection(SectionExport)
	m.Exports = append(m.Exports, ee)
}

// SetStart declares the start function index.
func (m *Module) SetStart(idx uint32) {
	m.touchSection(SectionStart)
	m.HasStart = true
	m.Start = idx
}

// AddElemSegment appends a table element segment.
func (m *Module) AddElemSegment(es ElemSegment) {
	m.touchSection(SectionElem)
	m.Elems = append(m.Elems, es)
}

// AddDataSegment appends a memory data segment.
func (m *Module) AddDataSegment(ds DataSegment) {
	m.touchSection(SectionData)
	m.Data = append(m.Data, ds)
}

// ConstI32 builds the i32.const initializer expression used by globals and
// element/data segment offsets.
func ConstI32(v int32) ConstExpr {
	return ConstExpr{HasInstr: true, Instr: Instruction{Op: OpI32Const, I32: v}}
}

// touchSection records id's first appearance in the on-wire section order,
// inserting it before the first non-custom section with a larger id, so
// Encode emits the sections of modules assembled via these helpers in
// ascending id order whatever order the helpers were called in.
func (m *Module) touchSection(id SectionID) {
	n := len(m.order)
	pos := n
	for i, s := range m.order {
		if s.id == id {
			return
		}
		if pos == n && s.id != SectionCustom && s.id > id {
			pos = i
		}
	}
	m.order = append(m.order, sectionSlot{})
	copy(m.order[pos+1:], m.order[pos:])
	m.order[pos] = sectionSlot{id: id}
}
