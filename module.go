package wasmrt

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kjx98/wasmrt/wasmerr"
)

// ModuleInstance is a fully validated, instantiated module: resolved
// function/table/memory/global index spaces plus its declared exports.
// Grounded on spec.md §4.4's "caller context carries references to... the
// current module instance" and §9's ownership note ("module instances own
// locally-defined resources; imported resources shared by reference").
type ModuleInstance struct {
	name    string
	module  *Module
	program *Program // back-pointer to the owning program, set by Instantiate

	Types    []FuncType
	Funcs    []*FuncInstance
	Tables   []*TableInstance
	Memories []*MemoryInstance
	Globals  []*VariableInstance
	Exports  map[string]ExportEntry

	// nativeFuncs/nativeGlobals hold entries assigned by the native-module
	// adapter (native.go) at their fixed index bases (10001/20001), kept
	// sparse rather than padding Funcs/Globals out to those indices.
	nativeFuncs   map[uint32]*FuncInstance
	nativeGlobals map[uint32]*VariableInstance

	valueStackLimit int
	frameStackLimit int

	log *zap.Logger
}

// Externals supplies the concrete instances an import resolves to, keyed
// by "module.field"; AddModule builds this from the program registry plus
// any caller-supplied native modules before instantiating.
type Externals struct {
	Funcs    map[string]*FuncInstance
	Tables   map[string]*TableInstance
	Memories map[string]*MemoryInstance
	Globals  map[string]*VariableInstance
}

func importKey(moduleName, field string) string { return moduleName + "." + field }

// Instantiate builds a ModuleInstance from a decoded+validated Module:
// resolves imports against externals, allocates locally defined resources,
// applies element/data segments, and (if declared) runs the start function.
func Instantiate(ctx context.Context, name string, m *Module, prog *Program, externals Externals, cfg Config, log *zap.Logger) (*ModuleInstance, error) {
	if log == nil {
		log = zap.NewNop()
	}
	mi := &ModuleInstance{
		name:            name,
		module:          m,
		program:         prog,
		Types:           m.Types,
		Exports:         make(map[string]ExportEntry, len(m.Exports)),
		valueStackLimit: cfg.ValueStackLimit,
		frameStackLimit: cfg.FrameStackLimit,
		log:             log,
	}

	if err := mi.resolveImports(m, externals); err != nil {
		return nil, err
	}
	mi.allocateLocalResources(m, cfg)
	if err := mi.buildLocalFunctions(m); err != nil {
		return nil, err
	}
	for _, ee := range m.Exports {
		mi.Exports[ee.Field] = ee
	}
	if err := mi.applyElemSegments(m); err != nil {
		return nil, err
	}
	if err := mi.applyDataSegments(m); err != nil {
		return nil, err
	}

	if m.HasStart {
		if _, err := mi.ExecuteIndex(ctx, m.Start, nil); err != nil {
			return nil, wasmerr.Instantiate(wasmerr.KindStartFunctionTrap, "start function trapped: %v", err)
		}
	}
	return mi, nil
}

func (mi *ModuleInstance) resolveImports(m *Module, ext Externals) error {
	for _, im := range m.Imports {
		key := importKey(im.Module, im.Field)
		switch im.Kind {
		case ExternalFunction:
			fn, ok := ext.Funcs[key]
			if !ok {
				return wasmerr.Instantiate(wasmerr.KindUnresolvedImport, "unresolved function import %s", key)
			}
			if int(im.FuncTypeIndex) >= len(m.Types) || !fn.Type.Equal(m.Types[im.FuncTypeIndex]) {
				return wasmerr.Instantiate(wasmerr.KindImportTypeMismatch, "function import %s signature mismatch", key)
			}
			mi.Funcs = append(mi.Funcs, fn)
		case ExternalTable:
			t, ok := ext.Tables[key]
			if !ok {
				return wasmerr.Instantiate(wasmerr.KindUnresolvedImport, "unresolved table import %s", key)
			}
			mi.Tables = append(mi.Tables, t)
		case ExternalMemory:
			mem, ok := ext.Memories[key]
			if !ok {
				return wasmerr.Instantiate(wasmerr.KindUnresolvedImport, "unresolved memory import %s", key)
			}
			mi.Memories = append(mi.Memories, mem)
		case ExternalGlobal:
			g, ok := ext.Globals[key]
			if !ok {
				return wasmerr.Instantiate(wasmerr.KindUnresolvedImport, "unresolved global import %s", key)
			}
			if g.Type() != im.Global.ContentType {
				return wasmerr.Instantiate(wasmerr.KindImportTypeMismatch, "global import %s type mismatch", key)
			}
			mi.Globals = append(mi.Globals, g)
		default:
			return wasmerr.Instantiate(wasmerr.KindImportKindMismatch, "unknown import kind for %s", key)
		}
	}
	return nil
}

func (mi *ModuleInstance) allocateLocalResources(m *Module, cfg Config) {
	for _, t := range m.Tables {
		mi.Tables = append(mi.Tables, NewTableInstance(t.Limits.Min, t.Limits.Max, t.Limits.HasMax))
	}
	for _, mt := range m.Memories {
		max, hasMax := mt.Limits.Max, mt.Limits.HasMax
		if cfg.MemoryPageLimit > 0 && (!hasMax || max > cfg.MemoryPageLimit) {
			max, hasMax = cfg.MemoryPageLimit, true
		}
		mi.Memories = append(mi.Memories, NewMemoryInstance(mt.Limits.Min, max, hasMax, cfg.AllowMemoryGrowth))
	}
	for _, ge := range m.Globals {
		init := evalConstExpr(mi, ge.Init)
		mi.Globals = append(mi.Globals, NewVariableInstance(ge.Type.ContentType, ge.Type.Mutable, init))
	}
}

func (mi *ModuleInstance) buildLocalFunctions(m *Module) error {
	for i, body := range m.Code {
		if i >= len(m.Funcs) {
			return wasmerr.Validate(wasmerr.KindMissingFunction, "code entry %d has no matching function declaration", i)
		}
		typeIdx := m.Funcs[i]
		if int(typeIdx) >= len(m.Types) {
			return wasmerr.Validate(wasmerr.KindMissingFunction, "function %d: type index out of range", i)
		}
		sig := m.Types[typeIdx]
		locals := make([]ValueType, 0, len(sig.Params))
		locals = append(locals, sig.Params...)
		for _, le := range body.Locals {
			for n := uint32(0); n < le.Count; n++ {
				locals = append(locals, le.Type)
			}
		}
		labels, err := ValidateFunction(m, sig, locals, body.Code)
		if err != nil {
			return err
		}
		mi.Funcs = append(mi.Funcs, &FuncInstance{
			Type:   sig,
			Owner:  mi,
			Locals: locals,
			Code:   body.Code,
			Labels: labels,
		})
	}
	return nil
}

func (mi *ModuleInstance) applyElemSegments(m *Module) error {
	for _, es := range m.Elems {
		if int(es.TableIndex) >= len(mi.Tables) {
			return wasmerr.Instantiate(wasmerr.KindSegmentOutOfBounds, "element segment references missing table %d", es.TableIndex)
		}
		offsetVal := evalConstExpr(mi, es.Offset)
		base := uint32(offsetVal.I32())
		for i, fi := range es.Funcs {
			if err := mi.Tables[es.TableIndex].Set(base+uint32(i), fi); err != nil {
				return err
			}
		}
	}
	return nil
}

func (mi *ModuleInstance) applyDataSegments(m *Module) error {
	for _, ds := range m.Data {
		if int(ds.MemoryIndex) >= len(mi.Memories) {
			return wasmerr.Instantiate(wasmerr.KindSegmentOutOfBounds, "data segment references missing memory %d", ds.MemoryIndex)
		}
		offsetVal := evalConstExpr(mi, ds.Offset)
		if err := mi.Memories[ds.MemoryIndex].InitData(uint32(offsetVal.I32()), ds.Data); err != nil {
			return wasmerr.Instantiate(wasmerr.KindSegmentOutOfBounds, "data segment out of bounds: %v", err)
		}
	}
	return nil
}

// evalConstExpr evaluates a global/element/data offset's constant
// expression (spec.md §3), which by construction is one of
// i32/i64/f32/f64.const or get_global of an already-resolved global.
func evalConstExpr(mi *ModuleInstance, ce ConstExpr) Value {
	if !ce.HasInstr {
		return I32(0)
	}
	switch ce.Instr.Op {
	case OpI32Const:
		return I32(ce.Instr.I32)
	case OpI64Const:
		return I64(ce.Instr.I64)
	case OpF32Const:
		return ValueFromBits(ValueTypeF32, uint64(ce.Instr.F32))
	case OpF64Const:
		return ValueFromBits(ValueTypeF64, ce.Instr.F64)
	case OpGetGlobal:
		return mi.Globals[ce.Instr.Index].Get()
	default:
		return I32(0)
	}
}

func (mi *ModuleInstance) resolveFuncInstance(idx uint32) (*FuncInstance, error) {
	if idx >= nativeFuncIndexBase {
		if fn, ok := mi.nativeFuncs[idx]; ok {
			return fn, nil
		}
		return nil, wasmerr.Execute(wasmerr.KindMissingFunction, "native function index %d not found", idx)
	}
	if int(idx) >= len(mi.Funcs) {
		return nil, wasmerr.Execute(wasmerr.KindMissingFunction, "function index %d out of range", idx)
	}
	return mi.Funcs[idx], nil
}

// globalAt resolves a global by index honoring the native-module adapter's
// separate index base, used wherever a global is addressed by its
// export/import index rather than by a running function's own instr.Index
// (which always refers to that function's locally-appended Globals slice).
func (mi *ModuleInstance) globalAt(idx uint32) (*VariableInstance, error) {
	if idx >= nativeGlobalIndexBase {
		if g, ok := mi.nativeGlobals[idx]; ok {
			return g, nil
		}
		return nil, wasmerr.Execute(wasmerr.KindMissingGlobal, "native global index %d not found", idx)
	}
	if int(idx) >= len(mi.Globals) {
		return nil, wasmerr.Execute(wasmerr.KindMissingGlobal, "global index %d out of range", idx)
	}
	return mi.Globals[idx], nil
}

// ExecuteExport calls the function exported under name with args.
func (mi *ModuleInstance) ExecuteExport(ctx context.Context, name string, args []Value) (*Value, error) {
	ee, ok := mi.Exports[name]
	if !ok || ee.Kind != ExternalFunction {
		return nil, wasmerr.Execute(wasmerr.KindMissingFunction, "no exported function %q", name)
	}
	return mi.ExecuteIndex(ctx, ee.Index, args)
}

// ExecuteIndex calls the function at function-index-space position idx.
func (mi *ModuleInstance) ExecuteIndex(ctx context.Context, idx uint32, args []Value) (*Value, error) {
	fn, err := mi.resolveFuncInstance(idx)
	if err != nil {
		return nil, err
	}
	if len(args) != len(fn.Type.Params) {
		return nil, wasmerr.Execute(wasmerr.KindTypeMismatch, "function %d expects %d arguments, got %d", idx, len(fn.Type.Params), len(args))
	}
	mi.log.Debug("execute", zap.Uint32("func_index", idx))
	result, err := Call(ctx, fn, args)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", mi.name, err)
	}
	return result, nil
}

// Name returns the registered name of this instance in its program.
func (mi *ModuleInstance) Name() string { return mi.name }
