package wasmrt

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/kjx98/wasmrt/wasmerr"
)

// StackValueType is the validator's three-case operand-stack entry,
// grounded on sophon-wasm's StackValueType and original_source's
// validator.rs push_value/pop_value/pop_any_value family: a concrete type,
// a single wildcard that unifies with any concrete type, or the
// "everything below here is unreachable" marker left by a polymorphic exit.
type StackValueType struct {
	kind stackValueKind
	typ  ValueType
}

type stackValueKind int8

const (
	svSpecific stackValueKind = iota
	svAny
	svAnyUnlimited
)

func svtSpecific(t ValueType) StackValueType { return StackValueType{kind: svSpecific, typ: t} }

var svtAny = StackValueType{kind: svAny}
var svtAnyUnlimited = StackValueType{kind: svAnyUnlimited}

// compatible reports whether want (the frame/opcode's expected type) accepts
// got (the value found on the stack); Any/AnyUnlimited unify with anything.
func (got StackValueType) compatible(want StackValueType) bool {
	if got.kind != svSpecific || want.kind != svSpecific {
		return true
	}
	return got.typ == want.typ
}

func (s StackValueType) String() string {
	switch s.kind {
	case svAny:
		return "any"
	case svAnyUnlimited:
		return "any*"
	default:
		return s.typ.String()
	}
}

// blockFrameKind enumerates the control-frame kinds tracked during
// validation, per spec.md §4.3.
type blockFrameKind int8

const (
	frameFunction blockFrameKind = iota
	frameBlock
	frameLoop
	frameIfTrue
	frameIfFalse
)

// BlockFrame is one entry of the validator's control-frame stack.
type BlockFrame struct {
	Kind          blockFrameKind
	BlockType     BlockType
	BeginPos      int
	ValueStackLen int // operand-stack height when this frame was pushed
}

// FunctionValidationContext validates a single function body against the
// enclosing module's declarations, grounded on
// original_source/src/interpreter/validator.rs.
type FunctionValidationContext struct {
	module *Module
	locals []ValueType // params followed by declared locals

	values *StackWithLimit[StackValueType]
	frames *StackWithLimit[BlockFrame]

	// labels maps a block/loop/if BeginPos to the instruction index where
	// its matching End lives (for Loop too);
	// filled in as frames close and handed to the interpreter for O(1)
	// branch-target dispatch.
	labels map[int]int
	// elses maps an If's BeginPos to its Else instruction's position, for
	// If frames that have one; lets the interpreter jump straight past the
	// Then branch without scanning.
	elses map[int]int

	pos int // index into the function body's instruction stream
}

// LabelMap is the validator's O(1) branch-target table for one function
// body, handed to the interpreter after a successful validation pass.
type LabelMap struct {
	Ends  map[int]int // Block/Loop/If begin position -> matching End position
	Elses map[int]int // If begin position -> Else position, if present
}

const (
	defaultValueStackLimit = 1 << 16
	defaultFrameStackLimit = 1 << 12
)

func newFunctionValidationContext(m *Module, locals []ValueType, retType BlockType) *FunctionValidationContext {
	ctx := &FunctionValidationContext{
		module: m,
		locals: locals,
		values: NewStackWithLimit[StackValueType](defaultValueStackLimit),
		frames: NewStackWithLimit[BlockFrame](defaultFrameStackLimit),
		labels: make(map[int]int),
		elses:  make(map[int]int),
	}
	ctx.frames.Push(BlockFrame{Kind: frameFunction, BlockType: retType, BeginPos: -1})
	return ctx
}

func (c *FunctionValidationContext) pushValue(t StackValueType) error { return c.values.Push(t) }

func (c *FunctionValidationContext) popValue(want StackValueType) error {
	top, err := c.frames.Top()
	if err != nil {
		return err
	}
	if c.values.Len() == top.ValueStackLen {
		// At the frame's base high-water mark: either the frame has gone
		// polymorphic (Unreachable/Br/etc. already truncated the stack and
		// left no real values to check) or this is an illegal reach into
		// an enclosing frame's operands.
		return wasmerr.Validate(wasmerr.KindParentFrameAccess, "popping past frame base at position %d", c.pos)
	}
	got, err := c.values.Pop()
	if err != nil {
		return err
	}
	if !got.compatible(want) {
		return wasmerr.Validate(wasmerr.KindTypeMismatch, "expected %s, got %s at position %d", want, got, c.pos)
	}
	return nil
}

// popAnyValue pops one value of any type, used by Drop and polymorphic
// control-flow operand consumption.
func (c *FunctionValidationContext) popAnyValue() (StackValueType, error) {
	top, err := c.frames.Top()
	if err != nil {
		return StackValueType{}, err
	}
	if c.values.Len() == top.ValueStackLen {
		return StackValueType{}, wasmerr.Validate(wasmerr.KindParentFrameAccess, "popping past frame base at position %d", c.pos)
	}
	return c.values.Pop()
}

// teeValue pops then immediately re-pushes a value of the given type,
// leaving the stack depth unchanged (used by TeeLocal).
func (c *FunctionValidationContext) teeValue(want StackValueType) error {
	if err := c.popValue(want); err != nil {
		return err
	}
	return c.pushValue(want)
}

// unreachable truncates the operand stack back to the current frame's base
// and leaves a single AnyUnlimited marker, modeling "this code is dead,
// anything type-checks from here to the frame's End" (spec.md §4.3).
func (c *FunctionValidationContext) unreachable() error {
	top, err := c.frames.Top()
	if err != nil {
		return err
	}
	c.values.Resize(top.ValueStackLen)
	return c.pushValue(svtAnyUnlimited)
}

func (c *FunctionValidationContext) pushLabel(kind blockFrameKind, bt BlockType) error {
	return c.frames.Push(BlockFrame{Kind: kind, BlockType: bt, BeginPos: c.pos, ValueStackLen: c.values.Len()})
}

// popLabel closes the current frame: the operand stack at this point must
// match the frame's declared block type, then the frame's End position is
// recorded in the label map and the stack is trimmed to the frame's base
// plus the block's result (if any).
func (c *FunctionValidationContext) popLabel() error {
	top, err := c.frames.Top()
	if err != nil {
		return err
	}
	if top.Kind == frameIfTrue && top.BlockType.HasValue {
		return wasmerr.Validate(wasmerr.KindMisplacedElseEnd, "if without else producing a value at position %d", c.pos)
	}
	if top.BlockType.HasValue {
		if err := c.popValue(svtSpecific(top.BlockType.Value)); err != nil {
			return err
		}
	}
	if c.values.Len() != top.ValueStackLen {
		return wasmerr.Validate(wasmerr.KindTypeMismatch, "operand stack not empty at end of block, position %d", c.pos)
	}
	frame, err := c.frames.Pop()
	if err != nil {
		return err
	}
	c.labels[frame.BeginPos] = c.pos
	if frame.BlockType.HasValue {
		return c.pushValue(svtSpecific(frame.BlockType.Value))
	}
	return nil
}

// requireLabel returns the frame depth+1-th frame from the top (0 = current
// innermost), used by Br/BrIf/BrTable to validate and type-check a target.
func (c *FunctionValidationContext) requireLabel(depth uint32) (BlockFrame, error) {
	f, err := c.frames.Get(int(depth))
	if err != nil {
		return BlockFrame{}, wasmerr.Validate(wasmerr.KindMissingFunction, "branch depth %d exceeds frame stack", depth)
	}
	return f, nil
}

// branchTargetType returns the type a branch to this frame must carry: a
// Loop's "continuation" has no value (branching restarts the loop), every
// other frame's target type is its declared block type.
func branchTargetType(f BlockFrame) BlockType {
	if f.Kind == frameLoop {
		return NoResult
	}
	return f.BlockType
}

func (c *FunctionValidationContext) requireLocal(idx uint32) (ValueType, error) {
	if int(idx) >= len(c.locals) {
		return 0, wasmerr.Validate(wasmerr.KindMissingFunction, "local index %d out of range", idx)
	}
	return c.locals[idx], nil
}

func (c *FunctionValidationContext) requireGlobal(idx uint32) (GlobalType, error) {
	n := uint32(0)
	for _, im := range c.module.Imports {
		if im.Kind == ExternalGlobal {
			if idx == n {
				return im.Global, nil
			}
			n++
		}
	}
	local := idx - n
	if int(local) >= len(c.module.Globals) {
		return GlobalType{}, wasmerr.Validate(wasmerr.KindMissingGlobal, "global index %d out of range", idx)
	}
	return c.module.Globals[local].Type, nil
}

func (c *FunctionValidationContext) requireMemory(idx uint32) error {
	if idx != 0 || (len(c.module.Memories)+int(c.module.ImportCount(ExternalMemory))) == 0 {
		return wasmerr.Validate(wasmerr.KindMissingMemory, "no memory at index %d", idx)
	}
	return nil
}

func (c *FunctionValidationContext) requireTable(idx uint32) error {
	if idx != 0 || (len(c.module.Tables)+int(c.module.ImportCount(ExternalTable))) == 0 {
		return wasmerr.Validate(wasmerr.KindMissingTable, "no table at index %d", idx)
	}
	return nil
}

func (c *FunctionValidationContext) requireFunction(idx uint32) (FuncType, error) {
	typeIdx, ok := c.module.FuncTypeIndex(idx)
	if !ok {
		return FuncType{}, wasmerr.Validate(wasmerr.KindMissingFunction, "function index %d out of range", idx)
	}
	return c.requireFunctionType(typeIdx)
}

func (c *FunctionValidationContext) requireFunctionType(idx uint32) (FuncType, error) {
	if int(idx) >= len(c.module.Types) {
		return FuncType{}, wasmerr.Validate(wasmerr.KindMissingFunction, "type index %d out of range", idx)
	}
	return c.module.Types[idx], nil
}

func alignmentOK(align uint32, naturalWidth uint32) bool {
	if align == NaturalAlignment {
		return true
	}
	return uint32(1)<<align <= naturalWidth
}

// ValidateFunction runs the full per-opcode validation algorithm over a
// single function body, returning the label map (begin position -> end
// position) for the interpreter's O(1) branch dispatch.
func ValidateFunction(m *Module, sig FuncType, locals []ValueType, body []Instruction) (*LabelMap, error) {
	if len(body) == 0 {
		return nil, wasmerr.Validate(wasmerr.KindEmptyFunctionBody, "function body must not be empty")
	}
	retType := NoResult
	if v, ok := sig.Result(); ok {
		retType = BlockValue(v)
	}
	ctx := newFunctionValidationContext(m, locals, retType)

	for ctx.pos = 0; ctx.pos < len(body); ctx.pos++ {
		instr := body[ctx.pos]
		if err := ctx.validateOne(instr); err != nil {
			return nil, wasmerr.New(wasmerr.PhaseValidate, mustKind(err)).Path(fmt.Sprintf("opcode %d", ctx.pos)).Cause(err).Build()
		}
	}
	if ctx.frames.Len() != 0 {
		return nil, wasmerr.Validate(wasmerr.KindMisplacedElseEnd, "function body ends with unterminated blocks")
	}
	return &LabelMap{Ends: ctx.labels, Elses: ctx.elses}, nil
}

func mustKind(err error) wasmerr.Kind {
	if k, ok := wasmerr.KindOf(err); ok {
		return k
	}
	return wasmerr.KindTypeMismatch
}

func (c *FunctionValidationContext) validateOne(instr Instruction) error {
	switch instr.Op {
	case OpUnreachable:
		return c.unreachable()
	case OpNop:
		return nil

	case OpBlock:
		return c.pushLabel(frameBlock, instr.BlockType)
	case OpLoop:
		return c.pushLabel(frameLoop, instr.BlockType)
	case OpIf:
		if err := c.popValue(svtSpecific(ValueTypeI32)); err != nil {
			return err
		}
		return c.pushLabel(frameIfTrue, instr.BlockType)
	case OpElse:
		top, err := c.frames.Top()
		if err != nil {
			return err
		}
		if top.Kind != frameIfTrue {
			return wasmerr.Validate(wasmerr.KindMisplacedElseEnd, "else without matching if")
		}
		if top.BlockType.HasValue {
			if err := c.popValue(svtSpecific(top.BlockType.Value)); err != nil {
				return err
			}
		}
		if c.values.Len() != top.ValueStackLen {
			return wasmerr.Validate(wasmerr.KindTypeMismatch, "operand stack not empty before else")
		}
		frame, err := c.frames.Pop()
		if err != nil {
			return err
		}
		c.elses[frame.BeginPos] = c.pos
		frame.Kind = frameIfFalse
		return c.frames.Push(frame)
	case OpEnd:
		return c.popLabel()

	case OpBr:
		return c.validateBranch(instr.Index)
	case OpBrIf:
		if err := c.popValue(svtSpecific(ValueTypeI32)); err != nil {
			return err
		}
		f, err := c.requireLabel(instr.Index)
		if err != nil {
			return err
		}
		target := branchTargetType(f)
		if target.HasValue {
			return c.teeValue(svtSpecific(target.Value))
		}
		return nil
	case OpBrTable:
		if err := c.popValue(svtSpecific(ValueTypeI32)); err != nil {
			return err
		}
		def, err := c.requireLabel(instr.BrDefault)
		if err != nil {
			return err
		}
		want := branchTargetType(def)
		for _, t := range instr.BrTargets {
			f, err := c.requireLabel(t)
			if err != nil {
				return err
			}
			got := branchTargetType(f)
			if got.HasValue != want.HasValue || (got.HasValue && got.Value != want.Value) {
				return wasmerr.Validate(wasmerr.KindBrTableMismatch, "br_table target type mismatch")
			}
		}
		if want.HasValue {
			if err := c.popValue(svtSpecific(want.Value)); err != nil {
				return err
			}
		}
		return c.unreachable()
	case OpReturn:
		top, err := c.frames.Get(c.frames.Len() - 1)
		if err != nil {
			return err
		}
		if top.BlockType.HasValue {
			if err := c.popValue(svtSpecific(top.BlockType.Value)); err != nil {
				return err
			}
		}
		return c.unreachable()

	case OpCall:
		ft, err := c.requireFunction(instr.Index)
		if err != nil {
			return err
		}
		return c.validateCallSignature(ft)
	case OpCallIndirect:
		if instr.Reserved != 0 {
			return wasmerr.Validate(wasmerr.KindUnknownSection, "call_indirect reserved byte must be 0")
		}
		if err := c.requireTable(0); err != nil {
			return err
		}
		if err := c.popValue(svtSpecific(ValueTypeI32)); err != nil {
			return err
		}
		ft, err := c.requireFunctionType(instr.Index)
		if err != nil {
			return err
		}
		return c.validateCallSignature(ft)

	case OpDrop:
		_, err := c.popAnyValue()
		return err
	case OpSelect:
		if err := c.popValue(svtSpecific(ValueTypeI32)); err != nil {
			return err
		}
		b, err := c.popAnyValue()
		if err != nil {
			return err
		}
		if err := c.popValue(b); err != nil {
			return err
		}
		return c.pushValue(b)

	case OpGetLocal:
		t, err := c.requireLocal(instr.Index)
		if err != nil {
			return err
		}
		return c.pushValue(svtSpecific(t))
	case OpSetLocal:
		t, err := c.requireLocal(instr.Index)
		if err != nil {
			return err
		}
		return c.popValue(svtSpecific(t))
	case OpTeeLocal:
		t, err := c.requireLocal(instr.Index)
		if err != nil {
			return err
		}
		return c.teeValue(svtSpecific(t))
	case OpGetGlobal:
		g, err := c.requireGlobal(instr.Index)
		if err != nil {
			return err
		}
		return c.pushValue(svtSpecific(g.ContentType))
	case OpSetGlobal:
		g, err := c.requireGlobal(instr.Index)
		if err != nil {
			return err
		}
		if !g.Mutable {
			return wasmerr.Validate(wasmerr.KindImmutableGlobal, "write to immutable global %d", instr.Index)
		}
		return c.popValue(svtSpecific(g.ContentType))

	case OpI32Load, OpI32Load8S, OpI32Load8U, OpI32Load16S, OpI32Load16U:
		return c.validateLoad(instr, ValueTypeI32)
	case OpI64Load, OpI64Load8S, OpI64Load8U, OpI64Load16S, OpI64Load16U, OpI64Load32S, OpI64Load32U:
		return c.validateLoad(instr, ValueTypeI64)
	case OpF32Load:
		return c.validateLoad(instr, ValueTypeF32)
	case OpF64Load:
		return c.validateLoad(instr, ValueTypeF64)
	case OpI32Store, OpI32Store8, OpI32Store16:
		return c.validateStore(instr, ValueTypeI32)
	case OpI64Store, OpI64Store8, OpI64Store16, OpI64Store32:
		return c.validateStore(instr, ValueTypeI64)
	case OpF32Store:
		return c.validateStore(instr, ValueTypeF32)
	case OpF64Store:
		return c.validateStore(instr, ValueTypeF64)

	case OpCurrentMemory:
		if err := c.requireMemory(0); err != nil {
			return err
		}
		return c.pushValue(svtSpecific(ValueTypeI32))
	case OpGrowMemory:
		if err := c.requireMemory(0); err != nil {
			return err
		}
		if err := c.popValue(svtSpecific(ValueTypeI32)); err != nil {
			return err
		}
		return c.pushValue(svtSpecific(ValueTypeI32))

	case OpI32Const:
		return c.pushValue(svtSpecific(ValueTypeI32))
	case OpI64Const:
		return c.pushValue(svtSpecific(ValueTypeI64))
	case OpF32Const:
		return c.pushValue(svtSpecific(ValueTypeF32))
	case OpF64Const:
		return c.pushValue(svtSpecific(ValueTypeF64))

	default:
		return c.validateNumeric(instr.Op)
	}
}

func (c *FunctionValidationContext) validateBranch(depth uint32) error {
	f, err := c.requireLabel(depth)
	if err != nil {
		return err
	}
	target := branchTargetType(f)
	if target.HasValue {
		if err := c.popValue(svtSpecific(target.Value)); err != nil {
			return err
		}
	}
	return c.unreachable()
}

func (c *FunctionValidationContext) validateCallSignature(ft FuncType) error {
	for i := len(ft.Params) - 1; i >= 0; i-- {
		if err := c.popValue(svtSpecific(ft.Params[i])); err != nil {
			return err
		}
	}
	if v, ok := ft.Result(); ok {
		return c.pushValue(svtSpecific(v))
	}
	return nil
}

func (c *FunctionValidationContext) validateLoad(instr Instruction, result ValueType) error {
	if err := c.requireMemory(0); err != nil {
		return err
	}
	if !alignmentOK(instr.Align, naturalWidth(instr.Op)) {
		return wasmerr.Validate(wasmerr.KindAlignmentTooLarge, "alignment 2^%d exceeds natural width", instr.Align)
	}
	if err := c.popValue(svtSpecific(ValueTypeI32)); err != nil {
		return err
	}
	return c.pushValue(svtSpecific(result))
}

func (c *FunctionValidationContext) validateStore(instr Instruction, operand ValueType) error {
	if err := c.requireMemory(0); err != nil {
		return err
	}
	if !alignmentOK(instr.Align, naturalWidth(instr.Op)) {
		return wasmerr.Validate(wasmerr.KindAlignmentTooLarge, "alignment 2^%d exceeds natural width", instr.Align)
	}
	if err := c.popValue(svtSpecific(operand)); err != nil {
		return err
	}
	return c.popValue(svtSpecific(ValueTypeI32))
}

// naturalWidth returns the access width in bytes for alignment checking.
func naturalWidth(op Op) uint32 {
	switch op {
	case OpI32Load8S, OpI32Load8U, OpI32Store8, OpI64Load8S, OpI64Load8U, OpI64Store8:
		return 1
	case OpI32Load16S, OpI32Load16U, OpI32Store16, OpI64Load16S, OpI64Load16U, OpI64Store16:
		return 2
	case OpI32Load, OpI32Store, OpF32Load, OpF32Store, OpI64Load32S, OpI64Load32U, OpI64Store32:
		return 4
	default:
		return 8
	}
}

// validateNumeric handles every remaining unary/binary numeric, comparison,
// and conversion opcode: pop the declared argument type(s), push the result.
func (c *FunctionValidationContext) validateNumeric(op Op) error {
	unary := func(t ValueType) error { return c.popValue(svtSpecific(t)) }
	binary := func(t ValueType) error {
		if err := c.popValue(svtSpecific(t)); err != nil {
			return err
		}
		return c.popValue(svtSpecific(t))
	}
	push := func(t ValueType) error { return c.pushValue(svtSpecific(t)) }

	switch op {
	case OpI32Eqz:
		if err := unary(ValueTypeI32); err != nil {
			return err
		}
		return push(ValueTypeI32)
	case OpI32Eq, OpI32Ne, OpI32LtS, OpI32LtU, OpI32GtS, OpI32GtU, OpI32LeS, OpI32LeU, OpI32GeS, OpI32GeU:
		if err := binary(ValueTypeI32); err != nil {
			return err
		}
		return push(ValueTypeI32)
	case OpI64Eqz:
		if err := unary(ValueTypeI64); err != nil {
			return err
		}
		return push(ValueTypeI32)
	case OpI64Eq, OpI64Ne, OpI64LtS, OpI64LtU, OpI64GtS, OpI64GtU, OpI64LeS, OpI64LeU, OpI64GeS, OpI64GeU:
		if err := binary(ValueTypeI64); err != nil {
			return err
		}
		return push(ValueTypeI32)
	case OpF32Eq, OpF32Ne, OpF32Lt, OpF32Gt, OpF32Le, OpF32Ge:
		if err := binary(ValueTypeF32); err != nil {
			return err
		}
		return push(ValueTypeI32)
	case OpF64Eq, OpF64Ne, OpF64Lt, OpF64Gt, OpF64Le, OpF64Ge:
		if err := binary(ValueTypeF64); err != nil {
			return err
		}
		return push(ValueTypeI32)

	case OpI32Clz, OpI32Ctz, OpI32Popcnt:
		if err := unary(ValueTypeI32); err != nil {
			return err
		}
		return push(ValueTypeI32)
	case OpI32Add, OpI32Sub, OpI32Mul, OpI32DivS, OpI32DivU, OpI32RemS, OpI32RemU,
		OpI32And, OpI32Or, OpI32Xor, OpI32Shl, OpI32ShrS, OpI32ShrU, OpI32Rotl, OpI32Rotr:
		if err := binary(ValueTypeI32); err != nil {
			return err
		}
		return push(ValueTypeI32)

	case OpI64Clz, OpI64Ctz, OpI64Popcnt:
		if err := unary(ValueTypeI64); err != nil {
			return err
		}
		return push(ValueTypeI64)
	case OpI64Add, OpI64Sub, OpI64Mul, OpI64DivS, OpI64DivU, OpI64RemS, OpI64RemU,
		OpI64And, OpI64Or, OpI64Xor, OpI64Shl, OpI64ShrS, OpI64ShrU, OpI64Rotl, OpI64Rotr:
		if err := binary(ValueTypeI64); err != nil {
			return err
		}
		return push(ValueTypeI64)

	case OpF32Abs, OpF32Neg, OpF32Ceil, OpF32Floor, OpF32Trunc, OpF32Nearest, OpF32Sqrt:
		if err := unary(ValueTypeF32); err != nil {
			return err
		}
		return push(ValueTypeF32)
	case OpF32Add, OpF32Sub, OpF32Mul, OpF32Div, OpF32Min, OpF32Max, OpF32Copysign:
		if err := binary(ValueTypeF32); err != nil {
			return err
		}
		return push(ValueTypeF32)

	case OpF64Abs, OpF64Neg, OpF64Ceil, OpF64Floor, OpF64Trunc, OpF64Nearest, OpF64Sqrt:
		if err := unary(ValueTypeF64); err != nil {
			return err
		}
		return push(ValueTypeF64)
	case OpF64Add, OpF64Sub, OpF64Mul, OpF64Div, OpF64Min, OpF64Max, OpF64Copysign:
		if err := binary(ValueTypeF64); err != nil {
			return err
		}
		return push(ValueTypeF64)

	case OpI32WrapI64:
		return convert(c, ValueTypeI64, ValueTypeI32)
	case OpI32TruncSF32, OpI32TruncUF32:
		return convert(c, ValueTypeF32, ValueTypeI32)
	case OpI32TruncSF64, OpI32TruncUF64:
		return convert(c, ValueTypeF64, ValueTypeI32)
	case OpI64ExtendSI32, OpI64ExtendUI32:
		return convert(c, ValueTypeI32, ValueTypeI64)
	case OpI64TruncSF32, OpI64TruncUF32:
		return convert(c, ValueTypeF32, ValueTypeI64)
	case OpI64TruncSF64, OpI64TruncUF64:
		return convert(c, ValueTypeF64, ValueTypeI64)
	case OpF32ConvertSI32, OpF32ConvertUI32:
		return convert(c, ValueTypeI32, ValueTypeF32)
	case OpF32ConvertSI64, OpF32ConvertUI64:
		return convert(c, ValueTypeI64, ValueTypeF32)
	case OpF32DemoteF64:
		return convert(c, ValueTypeF64, ValueTypeF32)
	case OpF64ConvertSI32, OpF64ConvertUI32:
		return convert(c, ValueTypeI32, ValueTypeF64)
	case OpF64ConvertSI64, OpF64ConvertUI64:
		return convert(c, ValueTypeI64, ValueTypeF64)
	case OpF64PromoteF32:
		return convert(c, ValueTypeF32, ValueTypeF64)

	case OpI32ReinterpretF32:
		return convert(c, ValueTypeF32, ValueTypeI32)
	case OpI64ReinterpretF64:
		return convert(c, ValueTypeF64, ValueTypeI64)
	case OpF32ReinterpretI32:
		return convert(c, ValueTypeI32, ValueTypeF32)
	case OpF64ReinterpretI64:
		return convert(c, ValueTypeI64, ValueTypeF64)

	default:
		return wasmerr.Validate(wasmerr.KindUnknownSection, "unrecognized opcode 0x%x", byte(op))
	}
}

func convert(c *FunctionValidationContext, from, to ValueType) error {
	if err := c.popValue(svtSpecific(from)); err != nil {
		return err
	}
	return c.pushValue(svtSpecific(to))
}

// FuncValidationResult is one function's outcome from ValidateModule.
type FuncValidationResult struct {
	FuncIndex uint32
	Labels    *LabelMap
}

// ImportResolver resolves an import entry to its concrete type during
// module-level validation (spec.md §4.3's "after resolving imports against
// env"); AddModule supplies one backed by the program's registry.
type ImportResolver interface {
	ResolveFuncType(moduleName, field string) (FuncType, bool)
	ResolveGlobalType(moduleName, field string) (GlobalType, bool)
}

// ValidateModule runs §4.3's per-function algorithm over every locally
// defined function body, plus the module-level structural checks: export
// index ranges and the constant shape of element/data offset expressions.
// Element/data table and memory indices are not checked here (Instantiate
// checks them), global initializers are not checked, and env is not
// consulted.
// Per-function errors are aggregated with multierr instead of stopping at
// the first bad function, so AddModule can report every defect at once.
func ValidateModule(m *Module, env ImportResolver) ([]FuncValidationResult, error) {
	var errs error
	results := make([]FuncValidationResult, 0, len(m.Code))

	if len(m.Funcs) != len(m.Code) {
		errs = multierr.Append(errs, wasmerr.Validate(wasmerr.KindMissingFunction,
			"function section declares %d entries but code section has %d", len(m.Funcs), len(m.Code)))
	}

	nImportFuncs := m.ImportCount(ExternalFunction)
	for i, body := range m.Code {
		if i >= len(m.Funcs) {
			break
		}
		typeIdx := m.Funcs[i]
		if int(typeIdx) >= len(m.Types) {
			errs = multierr.Append(errs, wasmerr.Validate(wasmerr.KindMissingFunction, "function %d: type index %d out of range", i, typeIdx))
			continue
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
			errs = multierr.Append(errs, fmt.Errorf("function %d: %w", int(nImportFuncs)+i, err))
			continue
		}
		results = append(results, FuncValidationResult{FuncIndex: nImportFuncs + uint32(i), Labels: labels})
	}

	for _, ee := range m.Exports {
		if err := validateExportEntry(m, ee); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	for i, es := range m.Elems {
		if err := validateConstExpr(es.Offset, env); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("element segment %d: %w", i, err))
		}
	}
	for i, ds := range m.Data {
		if err := validateConstExpr(ds.Offset, env); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("data segment %d: %w", i, err))
		}
	}
	return results, errs
}

func validateExportEntry(m *Module, ee ExportEntry) error {
	switch ee.Kind {
	case ExternalFunction:
		if _, ok := m.FuncTypeIndex(ee.Index); !ok {
			return wasmerr.Validate(wasmerr.KindMissingFunction, "export %q: function index %d out of range", ee.Field, ee.Index)
		}
	case ExternalTable:
		if ee.Index >= m.ImportCount(ExternalTable)+uint32(len(m.Tables)) {
			return wasmerr.Validate(wasmerr.KindMissingTable, "export %q: table index %d out of range", ee.Field, ee.Index)
		}
	case ExternalMemory:
		if ee.Index >= m.ImportCount(ExternalMemory)+uint32(len(m.Memories)) {
			return wasmerr.Validate(wasmerr.KindMissingMemory, "export %q: memory index %d out of range", ee.Field, ee.Index)
		}
	case ExternalGlobal:
		if ee.Index >= m.ImportCount(ExternalGlobal)+uint32(len(m.Globals)) {
			return wasmerr.Validate(wasmerr.KindMissingGlobal, "export %q: global index %d out of range", ee.Field, ee.Index)
		}
	}
	return nil
}

// validateConstExpr enforces spec.md §7's "constant-expression required in
// init expr": i32.const/i64.const/f32.const/f64.const, or get_global. The
// get_global index is not checked; it is accepted whether or not it names
// an imported immutable global.
func validateConstExpr(ce ConstExpr, env ImportResolver) error {
	if !ce.HasInstr {
		return nil
	}
	switch ce.Instr.Op {
	case OpI32Const, OpI64Const, OpF32Const, OpF64Const:
		return nil
	case OpGetGlobal:
		return nil
	default:
		return wasmerr.Validate(wasmerr.KindNonConstantInit, "init expression opcode 0x%x is not constant", byte(ce.Instr.Op))
	}
}
