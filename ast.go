package wasmrt

import "fmt"

// SectionID identifies the kind of a module section, grounded on the
// teacher's SectionID usage in decoder.go/vmodule.go.
type SectionID byte

const (
	SectionCustom SectionID = 0
	SectionType   SectionID = 1
	SectionImport SectionID = 2
	SectionFunc   SectionID = 3
	SectionTable  SectionID = 4
	SectionMemory SectionID = 5
	SectionGlobal SectionID = 6
	SectionExport SectionID = 7
	SectionStart  SectionID = 8
	SectionElem   SectionID = 9
	SectionCode   SectionID = 10
	SectionData   SectionID = 11
)

// MagicNumber and Version are the 8 required header bytes (spec.md §4.1).
var MagicNumber = [4]byte{0x00, 0x61, 0x73, 0x6d}

const Version uint32 = 1

// FuncType is a function signature: ordered parameters and at most one
// result, per spec.md §3.
type FuncType struct {
	Params  []ValueType
	Results []ValueType // len 0 or 1 in the MVP
}

func (f FuncType) Result() (ValueType, bool) {
	if len(f.Results) == 0 {
		return 0, false
	}
	return f.Results[0], true
}

// Equal reports structural signature equality, used by CallIndirect's
// "pointer-style equality over the structural signature" check (spec §4.4).
func (f FuncType) Equal(o FuncType) bool {
	if len(f.Params) != len(o.Params) || len(f.Results) != len(o.Results) {
		return false
	}
	for i := range f.Params {
		if f.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range f.Results {
		if f.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

// ExternalKind tags the kind of an import or export entry.
type ExternalKind byte

const (
	ExternalFunction ExternalKind = 0
	ExternalTable    ExternalKind = 1
	ExternalMemory   ExternalKind = 2
	ExternalGlobal   ExternalKind = 3
)

func (k ExternalKind) String() string {
	switch k {
	case ExternalFunction:
		return "func"
	case ExternalTable:
		return "table"
	case ExternalMemory:
		return "memory"
	case ExternalGlobal:
		return "global"
	default:
		return "unknown"
	}
}

// Limits is the (min, optional max) pair shared by table and memory types.
type Limits struct {
	Min     uint32
	Max     uint32
	HasMax  bool
}

// TableType describes a table; only ElemTypeAnyFunc exists in the MVP.
type TableType struct {
	ElemType ValueType
	Limits   Limits
}

// MemoryType describes a memory, sized in 64 KiB pages.
type MemoryType struct {
	Limits Limits
}

// GlobalType describes a global variable's content type and mutability.
type GlobalType struct {
	ContentType ValueType
	Mutable     bool
}

// ImportEntry names a (module, field) pair and the external kind/type
// being imported.
type ImportEntry struct {
	Module string
	Field  string
	Kind   ExternalKind

	FuncTypeIndex uint32 // valid when Kind == ExternalFunction
	Table         TableType
	Memory        MemoryType
	Global        GlobalType
}

// ExportEntry names an internal index under a public field name.
type ExportEntry struct {
	Field string
	Kind  ExternalKind
	Index uint32
}

// ConstExpr is a constant-opcode sequence terminated by End, used by
// global initializers and element/data segment offsets (spec.md §3). The
// sequence is at most one constant-producing instruction before the End:
// HasInstr is false for the bare "[End]" expression (evaluates to a zero
// value), true when Instr carries that one instruction.
type ConstExpr struct {
	HasInstr bool
	Instr    Instruction
}

// GlobalEntry is a global's declared type plus its init expression.
type GlobalEntry struct {
	Type GlobalType
	Init ConstExpr
}

// ElemSegment initializes a table region with function indices.
type ElemSegment struct {
	TableIndex uint32
	Offset     ConstExpr
	Funcs      []uint32
}

// DataSegment initializes a memory region with raw bytes.
type DataSegment struct {
	MemoryIndex uint32
	Offset      ConstExpr
	Data        []byte
}

// LocalEntry is a run-length-encoded group of same-typed locals.
type LocalEntry struct {
	Count uint32
	Type  ValueType
}

// FunctionBody is one function's local declarations and instruction
// sequence (terminated by an explicit End instruction in Code).
type FunctionBody struct {
	Locals []LocalEntry
	Code   []Instruction
}

// NameEntry is a custom "name" section function-name record.
type NameEntry struct {
	Index uint32
	Name  string
}

// Module is the decoded Wasm module: an ordered sequence of typed
// sections plus any number of custom sections preserved verbatim.
type Module struct {
	// Known sections, at most one each.
	Types    []FuncType
	Imports  []ImportEntry
	Funcs    []uint32 // function-index -> type-index, for locally defined functions
	Tables   []TableType
	Memories []MemoryType
	Globals  []GlobalEntry
	Exports  []ExportEntry
	HasStart bool
	Start    uint32
	Elems    []ElemSegment
	Code     []FunctionBody
	Data     []DataSegment

	// Custom sections, preserved verbatim in original order (may repeat).
	Customs []CustomSection

	// order records the sequence of section ids as they appeared on the
	// wire (including repeated Custom ids), so Encode can reproduce
	// section ordering for the round-trip contract in spec.md §4.1.
	order []sectionSlot
}

// CustomSection is a custom (id 0) section, preserved verbatim. Sections
// with ids above 11 are not kept: Decode rejects them with
// KindUnknownSection.
type CustomSection struct {
	Name    string
	Payload []byte
}

type sectionSlot struct {
	id         SectionID
	customIdx  int // index into Module.Customs, only meaningful for SectionCustom
}

// FuncTypeIndex returns the declared type index of the function at
// function-index-space position idx (imports occupy the low indices,
// per spec.md §4.4's "imports first, then locally defined functions").
func (m *Module) FuncTypeIndex(idx uint32) (uint32, bool) {
	nImportFuncs := uint32(0)
	for _, im := range m.Imports {
		if im.Kind == ExternalFunction {
			if idx == nImportFuncs {
				return im.FuncTypeIndex, true
			}
			nImportFuncs++
		}
	}
	local := idx - nImportFuncs
	if int(local) >= len(m.Funcs) {
		return 0, false
	}
	return m.Funcs[local], true
}

// SetGlobalInitI32 rewrites the declared global at idx to an i32.const
// initializer, used by the wasm-inject demo to patch a constant without
// touching the rest of the module.
func (m *Module) SetGlobalInitI32(idx uint32, v int32) error {
	if int(idx) >= len(m.Globals) {
		return fmt.Errorf("global index %d out of range", idx)
	}
	if m.Globals[idx].Type.ContentType != ValueTypeI32 {
		return fmt.Errorf("global %d is not i32", idx)
	}
	m.Globals[idx].Init = ConstExpr{HasInstr: true, Instr: Instruction{Op: OpI32Const, I32: v}}
	return nil
}

// ImportCount returns the number of imports of the given kind, used to
// compute index-space offsets for locally defined tables/memories/globals.
func (m *Module) ImportCount(kind ExternalKind) uint32 {
	var n uint32
	for _, im := range m.Imports {
		if im.Kind == kind {
			n++
		}
	}
	return n
}
