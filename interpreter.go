package wasmrt

import (
	"context"
	"math"
	"math/bits"

	"github.com/kjx98/wasmrt/wasmerr"
)

const (
	defaultInterpValueLimit = 1 << 16
	defaultInterpLabelLimit = 1 << 12
)

// FuncInstance is a callable function: either a body of instructions
// belonging to some ModuleInstance, or a host-provided callback (the native
// adapter in native.go, or an imported function resolved to another
// module's FuncInstance). Grounded on spec.md §4.4's "caller context
// carries references to both stacks and the current module instance."
type FuncInstance struct {
	Type FuncType

	// Wasm-defined function.
	Owner  *ModuleInstance
	Locals []ValueType // params followed by declared locals
	Code   []Instruction
	Labels *LabelMap

	// Host function (native adapter or other host binding).
	Host func(ctx context.Context, args []Value) (*Value, error)
}

func (f *FuncInstance) isHost() bool { return f.Host != nil }

// label is one entry of the interpreter's control-flow stack, mirroring the
// validator's BlockFrame but carrying a resolved continuation instruction
// index instead of a begin position.
type label struct {
	kind       blockFrameKind
	blockType  BlockType
	contPos    int // instruction index to resume at on branch
	valueBase  int // operand-stack height when this label was pushed
}

// callFrame holds one invocation's interpreter state: operand stack, label
// stack, and locals array (spec.md §4.4).
type callFrame struct {
	values *StackWithLimit[Value]
	labels *StackWithLimit[label]
	locals []Value
	fn     *FuncInstance
	pos    int
}

// Call invokes fn with args already validated against fn.Type by the
// caller (ExecuteExport/ExecuteIndex/direct-call dispatch), returning at
// most one result per the MVP's single-return-value rule.
func Call(ctx context.Context, fn *FuncInstance, args []Value) (*Value, error) {
	if fn.isHost() {
		return fn.Host(ctx, args)
	}

	valueLimit, labelLimit := defaultInterpValueLimit, defaultInterpLabelLimit
	if fn.Owner != nil {
		if fn.Owner.valueStackLimit > 0 {
			valueLimit = fn.Owner.valueStackLimit
		}
		if fn.Owner.frameStackLimit > 0 {
			labelLimit = fn.Owner.frameStackLimit
		}
	}
	frame := &callFrame{
		values: NewStackWithLimit[Value](valueLimit),
		labels: NewStackWithLimit[label](labelLimit),
		locals: make([]Value, len(fn.Locals)),
		fn:     fn,
	}
	for i, t := range fn.Locals {
		if i < len(args) {
			frame.locals[i] = args[i]
		} else {
			frame.locals[i] = zeroValue(t)
		}
	}
	retType := NoResult
	if v, ok := fn.Type.Result(); ok {
		retType = BlockValue(v)
	}
	frame.labels.Push(label{kind: frameFunction, blockType: retType, contPos: len(fn.Code), valueBase: 0})

	frame.pos = 0
	for frame.pos < len(fn.Code) {
		if err := ctxCanceled(ctx); err != nil {
			return nil, err
		}
		action, err := frame.step(ctx, fn.Code[frame.pos])
		if err != nil {
			return nil, err
		}
		switch action {
		case stepReturn:
			return frame.finalResult(retType)
		case stepJump:
			// frame.pos was already set to the exact resume target.
		default:
			frame.pos++
		}
	}
	return frame.finalResult(retType)
}

func ctxCanceled(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return wasmerr.Execute(wasmerr.KindCanceled, "execution canceled: %v", ctx.Err())
	default:
		return nil
	}
}

func zeroValue(t ValueType) Value {
	switch t {
	case ValueTypeI32:
		return I32(0)
	case ValueTypeI64:
		return I64(0)
	case ValueTypeF32:
		return F32(0)
	default:
		return F64(0)
	}
}

func (f *callFrame) finalResult(retType BlockType) (*Value, error) {
	if !retType.HasValue {
		return nil, nil
	}
	v, err := f.values.Pop()
	if err != nil {
		return nil, wasmerr.Execute(wasmerr.KindStackUnderflow, "missing return value")
	}
	return &v, nil
}

type stepAction int

const (
	stepNext stepAction = iota
	stepJump
	stepReturn
)

// step executes a single instruction, mirroring the validator's opcode
// dispatch but against real values instead of stack types (spec.md §4.4).
func (f *callFrame) step(ctx context.Context, instr Instruction) (stepAction, error) {
	switch instr.Op {
	case OpUnreachable:
		return stepNext, wasmerr.Execute(wasmerr.KindUnreachableExecuted, "unreachable instruction executed")
	case OpNop:
		return stepNext, nil

	case OpBlock:
		f.labels.Push(label{kind: frameBlock, blockType: instr.BlockType, contPos: f.matchingEnd(f.pos), valueBase: f.values.Len()})
		return stepNext, nil
	case OpLoop:
		f.labels.Push(label{kind: frameLoop, blockType: instr.BlockType, contPos: f.pos, valueBase: f.values.Len()})
		return stepNext, nil
	case OpIf:
		cond, err := f.popI32()
		if err != nil {
			return stepNext, err
		}
		end := f.matchingEnd(f.pos)
		if cond != 0 {
			f.labels.Push(label{kind: frameIfTrue, blockType: instr.BlockType, contPos: end, valueBase: f.values.Len()})
			return stepNext, nil
		}
		if elsePos, ok := f.fn.Labels.Elses[f.pos]; ok {
			// Enter the else body directly, skipping the Else opcode
			// itself (which only matters when reached by falling off the
			// end of the Then branch, below).
			f.labels.Push(label{kind: frameIfFalse, blockType: instr.BlockType, contPos: end, valueBase: f.values.Len()})
			f.pos = elsePos + 1
			return stepJump, nil
		}
		f.labels.Push(label{kind: frameIfFalse, blockType: instr.BlockType, contPos: end, valueBase: f.values.Len()})
		f.pos = end
		return stepJump, nil
	case OpElse:
		// Reached by falling off the end of the Then branch: skip the
		// Else body entirely and resume at this frame's End.
		top, err := f.labels.Top()
		if err != nil {
			return stepNext, err
		}
		f.pos = top.contPos
		return stepJump, nil
	case OpEnd:
		if _, err := f.labels.Pop(); err != nil {
			return stepNext, err
		}
		return stepNext, nil

	case OpBr:
		return f.branch(instr.Index)
	case OpBrIf:
		cond, err := f.popI32()
		if err != nil {
			return stepNext, err
		}
		if cond == 0 {
			return stepNext, nil
		}
		return f.branch(instr.Index)
	case OpBrTable:
		idx, err := f.popI32()
		if err != nil {
			return stepNext, err
		}
		target := instr.BrDefault
		if idx >= 0 && int(idx) < len(instr.BrTargets) {
			target = instr.BrTargets[idx]
		}
		return f.branch(target)
	case OpReturn:
		return stepReturn, nil

	case OpCall:
		return stepNext, f.call(ctx, instr.Index, nil)
	case OpCallIndirect:
		return stepNext, f.callIndirect(ctx, instr.Index)

	case OpDrop:
		_, err := f.values.Pop()
		return stepNext, err
	case OpSelect:
		cond, err := f.popI32()
		if err != nil {
			return stepNext, err
		}
		b, err := f.values.Pop()
		if err != nil {
			return stepNext, err
		}
		a, err := f.values.Pop()
		if err != nil {
			return stepNext, err
		}
		if cond != 0 {
			return stepNext, f.values.Push(a)
		}
		return stepNext, f.values.Push(b)

	case OpGetLocal:
		return stepNext, f.values.Push(f.locals[instr.Index])
	case OpSetLocal:
		v, err := f.values.Pop()
		if err != nil {
			return stepNext, err
		}
		f.locals[instr.Index] = v
		return stepNext, nil
	case OpTeeLocal:
		v, err := f.values.Top()
		if err != nil {
			return stepNext, err
		}
		f.locals[instr.Index] = v
		return stepNext, nil
	case OpGetGlobal:
		return stepNext, f.values.Push(f.fn.Owner.Globals[instr.Index].Get())
	case OpSetGlobal:
		v, err := f.values.Pop()
		if err != nil {
			return stepNext, err
		}
		return stepNext, f.fn.Owner.Globals[instr.Index].Set(v)

	case OpI32Load, OpI32Load8S, OpI32Load8U, OpI32Load16S, OpI32Load16U:
		return stepNext, f.load32(instr)
	case OpI64Load, OpI64Load8S, OpI64Load8U, OpI64Load16S, OpI64Load16U, OpI64Load32S, OpI64Load32U:
		return stepNext, f.load64(instr)
	case OpF32Load:
		return stepNext, f.loadFloat32(instr)
	case OpF64Load:
		return stepNext, f.loadFloat64(instr)
	case OpI32Store, OpI32Store8, OpI32Store16:
		return stepNext, f.store32(instr)
	case OpI64Store, OpI64Store8, OpI64Store16, OpI64Store32:
		return stepNext, f.store64(instr)
	case OpF32Store:
		return stepNext, f.storeFloat32(instr)
	case OpF64Store:
		return stepNext, f.storeFloat64(instr)

	case OpCurrentMemory:
		return stepNext, f.values.Push(I32(int32(f.fn.Owner.Memories[0].PageCount())))
	case OpGrowMemory:
		n, err := f.popI32()
		if err != nil {
			return stepNext, err
		}
		old := f.fn.Owner.Memories[0].Grow(uint32(n))
		return stepNext, f.values.Push(I32(old))

	case OpI32Const:
		return stepNext, f.values.Push(I32(instr.I32))
	case OpI64Const:
		return stepNext, f.values.Push(I64(instr.I64))
	case OpF32Const:
		return stepNext, f.values.Push(ValueFromBits(ValueTypeF32, uint64(instr.F32)))
	case OpF64Const:
		return stepNext, f.values.Push(ValueFromBits(ValueTypeF64, instr.F64))

	default:
		return stepNext, f.numeric(instr.Op)
	}
}

// matchingEnd returns the instruction index of the End matching a
// Block/If begun at beginPos, using the validator's label map (Ends maps
// begin->end; If->Else positions live in the separate Elses map).
func (f *callFrame) matchingEnd(beginPos int) int {
	return f.fn.Labels.Ends[beginPos]
}

func (f *callFrame) popI32() (int32, error) {
	v, err := f.values.Pop()
	if err != nil {
		return 0, err
	}
	return v.I32(), nil
}

// branch pops depth+1 labels, preserves the top-of-stack value if the
// target's type calls for one, and resumes at the target's continuation
// (spec.md §4.4's Br/BrIf/BrTable rule).
func (f *callFrame) branch(depth uint32) (stepAction, error) {
	var target label
	for i := uint32(0); i <= depth; i++ {
		l, err := f.labels.Pop()
		if err != nil {
			return stepNext, err
		}
		target = l
	}
	bt := branchTargetType(blockFrameFromLabel(target))
	var carry *Value
	if bt.HasValue {
		v, err := f.values.Pop()
		if err != nil {
			return stepNext, err
		}
		carry = &v
	}
	f.values.Resize(target.valueBase)
	if carry != nil {
		f.values.Push(*carry)
	}
	f.pos = target.contPos
	if target.kind != frameLoop {
		// Landing exactly on the matching End, which expects this frame
		// still on the label stack so it can pop and type-check it. A
		// Loop branch instead re-executes the Loop opcode itself, which
		// pushes a fresh iteration's label.
		f.labels.Push(target)
	}
	return stepJump, nil
}

func blockFrameFromLabel(l label) BlockFrame {
	return BlockFrame{Kind: l.kind, BlockType: l.blockType}
}

func (f *callFrame) call(ctx context.Context, funcIndex uint32, explicitArgs []Value) error {
	owner := f.fn.Owner
	target, err := owner.resolveFuncInstance(funcIndex)
	if err != nil {
		return err
	}
	args := explicitArgs
	if args == nil {
		args = make([]Value, len(target.Type.Params))
		for i := len(args) - 1; i >= 0; i-- {
			v, err := f.values.Pop()
			if err != nil {
				return err
			}
			args[i] = v
		}
	}
	result, err := Call(ctx, target, args)
	if err != nil {
		return err
	}
	if result != nil {
		return f.values.Push(*result)
	}
	return nil
}

func (f *callFrame) callIndirect(ctx context.Context, typeIdx uint32) error {
	owner := f.fn.Owner
	elemIdx, err := f.popI32()
	if err != nil {
		return err
	}
	funcIndex, err := owner.Tables[0].Get(uint32(elemIdx))
	if err != nil {
		return err
	}
	target, err := owner.resolveFuncInstance(funcIndex)
	if err != nil {
		return err
	}
	wantType := owner.Types[typeIdx]
	if !target.Type.Equal(wantType) {
		return wasmerr.Execute(wasmerr.KindSignatureMismatch, "indirect call signature mismatch")
	}
	args := make([]Value, len(target.Type.Params))
	for i := len(args) - 1; i >= 0; i-- {
		v, err := f.values.Pop()
		if err != nil {
			return err
		}
		args[i] = v
	}
	result, err := Call(ctx, target, args)
	if err != nil {
		return err
	}
	if result != nil {
		return f.values.Push(*result)
	}
	return nil
}

// --- Memory access ---

func (f *callFrame) load32(instr Instruction) error {
	addr, err := f.popI32()
	if err != nil {
		return err
	}
	var raw []byte
	var signExtendBits int
	switch instr.Op {
	case OpI32Load:
		raw, err = f.fn.Owner.Memories[0].Read(uint32(addr), instr.Offset, 4)
	case OpI32Load8S, OpI32Load8U:
		raw, err = f.fn.Owner.Memories[0].Read(uint32(addr), instr.Offset, 1)
		signExtendBits = 8
	case OpI32Load16S, OpI32Load16U:
		raw, err = f.fn.Owner.Memories[0].Read(uint32(addr), instr.Offset, 2)
		signExtendBits = 16
	}
	if err != nil {
		return err
	}
	var v uint32
	for i, b := range raw {
		v |= uint32(b) << (8 * i)
	}
	switch instr.Op {
	case OpI32Load8S:
		v = uint32(int32(int8(v)))
	case OpI32Load16S:
		v = uint32(int32(int16(v)))
	}
	_ = signExtendBits
	return f.values.Push(I32(int32(v)))
}

func (f *callFrame) load64(instr Instruction) error {
	addr, err := f.popI32()
	if err != nil {
		return err
	}
	var raw []byte
	switch instr.Op {
	case OpI64Load:
		raw, err = f.fn.Owner.Memories[0].Read(uint32(addr), instr.Offset, 8)
	case OpI64Load8S, OpI64Load8U:
		raw, err = f.fn.Owner.Memories[0].Read(uint32(addr), instr.Offset, 1)
	case OpI64Load16S, OpI64Load16U:
		raw, err = f.fn.Owner.Memories[0].Read(uint32(addr), instr.Offset, 2)
	case OpI64Load32S, OpI64Load32U:
		raw, err = f.fn.Owner.Memories[0].Read(uint32(addr), instr.Offset, 4)
	}
	if err != nil {
		return err
	}
	var v uint64
	for i, b := range raw {
		v |= uint64(b) << (8 * i)
	}
	switch instr.Op {
	case OpI64Load8S:
		v = uint64(int64(int8(v)))
	case OpI64Load16S:
		v = uint64(int64(int16(v)))
	case OpI64Load32S:
		v = uint64(int64(int32(v)))
	}
	return f.values.Push(I64(int64(v)))
}

func (f *callFrame) loadFloat32(instr Instruction) error {
	addr, err := f.popI32()
	if err != nil {
		return err
	}
	raw, err := f.fn.Owner.Memories[0].Read(uint32(addr), instr.Offset, 4)
	if err != nil {
		return err
	}
	var v uint32
	for i, b := range raw {
		v |= uint32(b) << (8 * i)
	}
	return f.values.Push(ValueFromBits(ValueTypeF32, uint64(v)))
}

func (f *callFrame) loadFloat64(instr Instruction) error {
	addr, err := f.popI32()
	if err != nil {
		return err
	}
	raw, err := f.fn.Owner.Memories[0].Read(uint32(addr), instr.Offset, 8)
	if err != nil {
		return err
	}
	var v uint64
	for i, b := range raw {
		v |= uint64(b) << (8 * i)
	}
	return f.values.Push(ValueFromBits(ValueTypeF64, v))
}

func (f *callFrame) store32(instr Instruction) error {
	v, err := f.values.Pop()
	if err != nil {
		return err
	}
	addr, err := f.popI32()
	if err != nil {
		return err
	}
	n := uint32(v.I32())
	var width int
	switch instr.Op {
	case OpI32Store:
		width = 4
	case OpI32Store16:
		width = 2
	case OpI32Store8:
		width = 1
	}
	buf := make([]byte, width)
	for i := range buf {
		buf[i] = byte(n >> (8 * i))
	}
	return f.fn.Owner.Memories[0].Write(uint32(addr), instr.Offset, buf)
}

func (f *callFrame) store64(instr Instruction) error {
	v, err := f.values.Pop()
	if err != nil {
		return err
	}
	addr, err := f.popI32()
	if err != nil {
		return err
	}
	n := uint64(v.I64())
	var width int
	switch instr.Op {
	case OpI64Store:
		width = 8
	case OpI64Store32:
		width = 4
	case OpI64Store16:
		width = 2
	case OpI64Store8:
		width = 1
	}
	buf := make([]byte, width)
	for i := range buf {
		buf[i] = byte(n >> (8 * i))
	}
	return f.fn.Owner.Memories[0].Write(uint32(addr), instr.Offset, buf)
}

func (f *callFrame) storeFloat32(instr Instruction) error {
	v, err := f.values.Pop()
	if err != nil {
		return err
	}
	addr, err := f.popI32()
	if err != nil {
		return err
	}
	n := uint32(v.Bits())
	buf := make([]byte, 4)
	for i := range buf {
		buf[i] = byte(n >> (8 * i))
	}
	return f.fn.Owner.Memories[0].Write(uint32(addr), instr.Offset, buf)
}

func (f *callFrame) storeFloat64(instr Instruction) error {
	v, err := f.values.Pop()
	if err != nil {
		return err
	}
	addr, err := f.popI32()
	if err != nil {
		return err
	}
	n := v.Bits()
	buf := make([]byte, 8)
	for i := range buf {
		buf[i] = byte(n >> (8 * i))
	}
	return f.fn.Owner.Memories[0].Write(uint32(addr), instr.Offset, buf)
}

// --- Numeric ops ---

func (f *callFrame) numeric(op Op) error {
	switch op {
	case OpI32Eqz:
		v, err := f.popI32()
		if err != nil {
			return err
		}
		return f.pushBool(v == 0)
	case OpI32Eq, OpI32Ne, OpI32LtS, OpI32LtU, OpI32GtS, OpI32GtU, OpI32LeS, OpI32LeU, OpI32GeS, OpI32GeU:
		return f.i32Compare(op)
	case OpI64Eqz:
		v, err := f.values.Pop()
		if err != nil {
			return err
		}
		return f.pushBool(v.I64() == 0)
	case OpI64Eq, OpI64Ne, OpI64LtS, OpI64LtU, OpI64GtS, OpI64GtU, OpI64LeS, OpI64LeU, OpI64GeS, OpI64GeU:
		return f.i64Compare(op)
	case OpF32Eq, OpF32Ne, OpF32Lt, OpF32Gt, OpF32Le, OpF32Ge:
		return f.f32Compare(op)
	case OpF64Eq, OpF64Ne, OpF64Lt, OpF64Gt, OpF64Le, OpF64Ge:
		return f.f64Compare(op)

	case OpI32Clz, OpI32Ctz, OpI32Popcnt:
		return f.i32Unary(op)
	case OpI32Add, OpI32Sub, OpI32Mul, OpI32DivS, OpI32DivU, OpI32RemS, OpI32RemU,
		OpI32And, OpI32Or, OpI32Xor, OpI32Shl, OpI32ShrS, OpI32ShrU, OpI32Rotl, OpI32Rotr:
		return f.i32Binary(op)

	case OpI64Clz, OpI64Ctz, OpI64Popcnt:
		return f.i64Unary(op)
	case OpI64Add, OpI64Sub, OpI64Mul, OpI64DivS, OpI64DivU, OpI64RemS, OpI64RemU,
		OpI64And, OpI64Or, OpI64Xor, OpI64Shl, OpI64ShrS, OpI64ShrU, OpI64Rotl, OpI64Rotr:
		return f.i64Binary(op)

	case OpF32Abs, OpF32Neg, OpF32Ceil, OpF32Floor, OpF32Trunc, OpF32Nearest, OpF32Sqrt:
		return f.f32Unary(op)
	case OpF32Add, OpF32Sub, OpF32Mul, OpF32Div, OpF32Min, OpF32Max, OpF32Copysign:
		return f.f32Binary(op)

	case OpF64Abs, OpF64Neg, OpF64Ceil, OpF64Floor, OpF64Trunc, OpF64Nearest, OpF64Sqrt:
		return f.f64Unary(op)
	case OpF64Add, OpF64Sub, OpF64Mul, OpF64Div, OpF64Min, OpF64Max, OpF64Copysign:
		return f.f64Binary(op)

	case OpI32WrapI64:
		v, err := f.values.Pop()
		if err != nil {
			return err
		}
		return f.values.Push(I32(int32(v.I64())))
	case OpI32TruncSF32:
		return f.truncToI32(false, true)
	case OpI32TruncUF32:
		return f.truncToI32(false, false)
	case OpI32TruncSF64:
		return f.truncToI32(true, true)
	case OpI32TruncUF64:
		return f.truncToI32(true, false)
	case OpI64ExtendSI32:
		v, err := f.popI32()
		if err != nil {
			return err
		}
		return f.values.Push(I64(int64(v)))
	case OpI64ExtendUI32:
		v, err := f.popI32()
		if err != nil {
			return err
		}
		return f.values.Push(I64(int64(uint32(v))))
	case OpI64TruncSF32:
		return f.truncToI64(false, true)
	case OpI64TruncUF32:
		return f.truncToI64(false, false)
	case OpI64TruncSF64:
		return f.truncToI64(true, true)
	case OpI64TruncUF64:
		return f.truncToI64(true, false)
	case OpF32ConvertSI32:
		v, err := f.popI32()
		if err != nil {
			return err
		}
		return f.values.Push(F32(float32(v)))
	case OpF32ConvertUI32:
		v, err := f.popI32()
		if err != nil {
			return err
		}
		return f.values.Push(F32(float32(uint32(v))))
	case OpF32ConvertSI64:
		v, err := f.values.Pop()
		if err != nil {
			return err
		}
		return f.values.Push(F32(float32(v.I64())))
	case OpF32ConvertUI64:
		v, err := f.values.Pop()
		if err != nil {
			return err
		}
		return f.values.Push(F32(float32(uint64(v.I64()))))
	case OpF32DemoteF64:
		v, err := f.values.Pop()
		if err != nil {
			return err
		}
		return f.values.Push(F32(float32(v.F64())))
	case OpF64ConvertSI32:
		v, err := f.popI32()
		if err != nil {
			return err
		}
		return f.values.Push(F64(float64(v)))
	case OpF64ConvertUI32:
		v, err := f.popI32()
		if err != nil {
			return err
		}
		return f.values.Push(F64(float64(uint32(v))))
	case OpF64ConvertSI64:
		v, err := f.values.Pop()
		if err != nil {
			return err
		}
		return f.values.Push(F64(float64(v.I64())))
	case OpF64ConvertUI64:
		v, err := f.values.Pop()
		if err != nil {
			return err
		}
		return f.values.Push(F64(float64(uint64(v.I64()))))
	case OpF64PromoteF32:
		v, err := f.values.Pop()
		if err != nil {
			return err
		}
		return f.values.Push(F64(float64(v.F32())))

	case OpI32ReinterpretF32:
		v, err := f.values.Pop()
		if err != nil {
			return err
		}
		return f.values.Push(I32(int32(uint32(v.Bits()))))
	case OpI64ReinterpretF64:
		v, err := f.values.Pop()
		if err != nil {
			return err
		}
		return f.values.Push(I64(int64(v.Bits())))
	case OpF32ReinterpretI32:
		v, err := f.popI32()
		if err != nil {
			return err
		}
		return f.values.Push(ValueFromBits(ValueTypeF32, uint64(uint32(v))))
	case OpF64ReinterpretI64:
		v, err := f.values.Pop()
		if err != nil {
			return err
		}
		return f.values.Push(ValueFromBits(ValueTypeF64, uint64(v.I64())))

	default:
		return wasmerr.Execute(wasmerr.KindUnreachableExecuted, "unhandled opcode 0x%x", byte(op))
	}
}

func (f *callFrame) pushBool(b bool) error {
	if b {
		return f.values.Push(I32(1))
	}
	return f.values.Push(I32(0))
}

func (f *callFrame) i32Compare(op Op) error {
	b, err := f.popI32()
	if err != nil {
		return err
	}
	a, err := f.popI32()
	if err != nil {
		return err
	}
	switch op {
	case OpI32Eq:
		return f.pushBool(a == b)
	case OpI32Ne:
		return f.pushBool(a != b)
	case OpI32LtS:
		return f.pushBool(a < b)
	case OpI32LtU:
		return f.pushBool(uint32(a) < uint32(b))
	case OpI32GtS:
		return f.pushBool(a > b)
	case OpI32GtU:
		return f.pushBool(uint32(a) > uint32(b))
	case OpI32LeS:
		return f.pushBool(a <= b)
	case OpI32LeU:
		return f.pushBool(uint32(a) <= uint32(b))
	case OpI32GeS:
		return f.pushBool(a >= b)
	default: // OpI32GeU
		return f.pushBool(uint32(a) >= uint32(b))
	}
}

func (f *callFrame) i64Compare(op Op) error {
	bv, err := f.values.Pop()
	if err != nil {
		return err
	}
	av, err := f.values.Pop()
	if err != nil {
		return err
	}
	a, b := av.I64(), bv.I64()
	switch op {
	case OpI64Eq:
		return f.pushBool(a == b)
	case OpI64Ne:
		return f.pushBool(a != b)
	case OpI64LtS:
		return f.pushBool(a < b)
	case OpI64LtU:
		return f.pushBool(uint64(a) < uint64(b))
	case OpI64GtS:
		return f.pushBool(a > b)
	case OpI64GtU:
		return f.pushBool(uint64(a) > uint64(b))
	case OpI64LeS:
		return f.pushBool(a <= b)
	case OpI64LeU:
		return f.pushBool(uint64(a) <= uint64(b))
	case OpI64GeS:
		return f.pushBool(a >= b)
	default: // OpI64GeU
		return f.pushBool(uint64(a) >= uint64(b))
	}
}

func (f *callFrame) f32Compare(op Op) error {
	bv, err := f.values.Pop()
	if err != nil {
		return err
	}
	av, err := f.values.Pop()
	if err != nil {
		return err
	}
	a, b := av.F32(), bv.F32()
	switch op {
	case OpF32Eq:
		return f.pushBool(a == b)
	case OpF32Ne:
		return f.pushBool(a != b)
	case OpF32Lt:
		return f.pushBool(a < b)
	case OpF32Gt:
		return f.pushBool(a > b)
	case OpF32Le:
		return f.pushBool(a <= b)
	default: // OpF32Ge
		return f.pushBool(a >= b)
	}
}

func (f *callFrame) f64Compare(op Op) error {
	bv, err := f.values.Pop()
	if err != nil {
		return err
	}
	av, err := f.values.Pop()
	if err != nil {
		return err
	}
	a, b := av.F64(), bv.F64()
	switch op {
	case OpF64Eq:
		return f.pushBool(a == b)
	case OpF64Ne:
		return f.pushBool(a != b)
	case OpF64Lt:
		return f.pushBool(a < b)
	case OpF64Gt:
		return f.pushBool(a > b)
	case OpF64Le:
		return f.pushBool(a <= b)
	default: // OpF64Ge
		return f.pushBool(a >= b)
	}
}

func (f *callFrame) i32Unary(op Op) error {
	v, err := f.popI32()
	if err != nil {
		return err
	}
	switch op {
	case OpI32Clz:
		return f.values.Push(I32(int32(bits.LeadingZeros32(uint32(v)))))
	case OpI32Ctz:
		return f.values.Push(I32(int32(bits.TrailingZeros32(uint32(v)))))
	default: // OpI32Popcnt
		return f.values.Push(I32(int32(bits.OnesCount32(uint32(v)))))
	}
}

func (f *callFrame) i32Binary(op Op) error {
	b, err := f.popI32()
	if err != nil {
		return err
	}
	a, err := f.popI32()
	if err != nil {
		return err
	}
	switch op {
	case OpI32Add:
		return f.values.Push(I32(a + b))
	case OpI32Sub:
		return f.values.Push(I32(a - b))
	case OpI32Mul:
		return f.values.Push(I32(a * b))
	case OpI32DivS:
		if b == 0 {
			return wasmerr.Execute(wasmerr.KindDivideByZero, "i32.div_s by zero")
		}
		if a == math.MinInt32 && b == -1 {
			return wasmerr.Execute(wasmerr.KindSignedOverflow, "i32.div_s overflow")
		}
		return f.values.Push(I32(a / b))
	case OpI32DivU:
		if b == 0 {
			return wasmerr.Execute(wasmerr.KindDivideByZero, "i32.div_u by zero")
		}
		return f.values.Push(I32(int32(uint32(a) / uint32(b))))
	case OpI32RemS:
		if b == 0 {
			return wasmerr.Execute(wasmerr.KindDivideByZero, "i32.rem_s by zero")
		}
		if a == math.MinInt32 && b == -1 {
			return f.values.Push(I32(0))
		}
		return f.values.Push(I32(a % b))
	case OpI32RemU:
		if b == 0 {
			return wasmerr.Execute(wasmerr.KindDivideByZero, "i32.rem_u by zero")
		}
		return f.values.Push(I32(int32(uint32(a) % uint32(b))))
	case OpI32And:
		return f.values.Push(I32(a & b))
	case OpI32Or:
		return f.values.Push(I32(a | b))
	case OpI32Xor:
		return f.values.Push(I32(a ^ b))
	case OpI32Shl:
		return f.values.Push(I32(a << (uint32(b) % 32)))
	case OpI32ShrS:
		return f.values.Push(I32(a >> (uint32(b) % 32)))
	case OpI32ShrU:
		return f.values.Push(I32(int32(uint32(a) >> (uint32(b) % 32))))
	case OpI32Rotl:
		return f.values.Push(I32(int32(bits.RotateLeft32(uint32(a), int(b%32)))))
	default: // OpI32Rotr
		return f.values.Push(I32(int32(bits.RotateLeft32(uint32(a), -int(b%32)))))
	}
}

func (f *callFrame) i64Unary(op Op) error {
	v, err := f.values.Pop()
	if err != nil {
		return err
	}
	u := uint64(v.I64())
	switch op {
	case OpI64Clz:
		return f.values.Push(I64(int64(bits.LeadingZeros64(u))))
	case OpI64Ctz:
		return f.values.Push(I64(int64(bits.TrailingZeros64(u))))
	default: // OpI64Popcnt
		return f.values.Push(I64(int64(bits.OnesCount64(u))))
	}
}

func (f *callFrame) i64Binary(op Op) error {
	bv, err := f.values.Pop()
	if err != nil {
		return err
	}
	av, err := f.values.Pop()
	if err != nil {
		return err
	}
	a, b := av.I64(), bv.I64()
	switch op {
	case OpI64Add:
		return f.values.Push(I64(a + b))
	case OpI64Sub:
		return f.values.Push(I64(a - b))
	case OpI64Mul:
		return f.values.Push(I64(a * b))
	case OpI64DivS:
		if b == 0 {
			return wasmerr.Execute(wasmerr.KindDivideByZero, "i64.div_s by zero")
		}
		if a == math.MinInt64 && b == -1 {
			return wasmerr.Execute(wasmerr.KindSignedOverflow, "i64.div_s overflow")
		}
		return f.values.Push(I64(a / b))
	case OpI64DivU:
		if b == 0 {
			return wasmerr.Execute(wasmerr.KindDivideByZero, "i64.div_u by zero")
		}
		return f.values.Push(I64(int64(uint64(a) / uint64(b))))
	case OpI64RemS:
		if b == 0 {
			return wasmerr.Execute(wasmerr.KindDivideByZero, "i64.rem_s by zero")
		}
		if a == math.MinInt64 && b == -1 {
			return f.values.Push(I64(0))
		}
		return f.values.Push(I64(a % b))
	case OpI64RemU:
		if b == 0 {
			return wasmerr.Execute(wasmerr.KindDivideByZero, "i64.rem_u by zero")
		}
		return f.values.Push(I64(int64(uint64(a) % uint64(b))))
	case OpI64And:
		return f.values.Push(I64(a & b))
	case OpI64Or:
		return f.values.Push(I64(a | b))
	case OpI64Xor:
		return f.values.Push(I64(a ^ b))
	case OpI64Shl:
		return f.values.Push(I64(a << (uint64(b) % 64)))
	case OpI64ShrS:
		return f.values.Push(I64(a >> (uint64(b) % 64)))
	case OpI64ShrU:
		return f.values.Push(I64(int64(uint64(a) >> (uint64(b) % 64))))
	case OpI64Rotl:
		return f.values.Push(I64(int64(bits.RotateLeft64(uint64(a), int(b%64)))))
	default: // OpI64Rotr
		return f.values.Push(I64(int64(bits.RotateLeft64(uint64(a), -int(b%64)))))
	}
}

func (f *callFrame) f32Unary(op Op) error {
	v, err := f.values.Pop()
	if err != nil {
		return err
	}
	x := v.F32()
	switch op {
	case OpF32Abs:
		return f.values.Push(F32(float32(math.Abs(float64(x)))))
	case OpF32Neg:
		return f.values.Push(F32(-x))
	case OpF32Ceil:
		return f.values.Push(F32(float32(math.Ceil(float64(x)))))
	case OpF32Floor:
		return f.values.Push(F32(float32(math.Floor(float64(x)))))
	case OpF32Trunc:
		return f.values.Push(F32(float32(math.Trunc(float64(x)))))
	case OpF32Nearest:
		return f.values.Push(F32(float32(math.RoundToEven(float64(x)))))
	default: // OpF32Sqrt
		return f.values.Push(F32(float32(math.Sqrt(float64(x)))))
	}
}

func (f *callFrame) f32Binary(op Op) error {
	bv, err := f.values.Pop()
	if err != nil {
		return err
	}
	av, err := f.values.Pop()
	if err != nil {
		return err
	}
	a, b := av.F32(), bv.F32()
	switch op {
	case OpF32Add:
		return f.values.Push(F32(a + b))
	case OpF32Sub:
		return f.values.Push(F32(a - b))
	case OpF32Mul:
		return f.values.Push(F32(a * b))
	case OpF32Div:
		return f.values.Push(F32(a / b))
	case OpF32Min:
		return f.values.Push(F32(float32(math.Min(float64(a), float64(b)))))
	case OpF32Max:
		return f.values.Push(F32(float32(math.Max(float64(a), float64(b)))))
	default: // OpF32Copysign
		return f.values.Push(F32(float32(math.Copysign(float64(a), float64(b)))))
	}
}

func (f *callFrame) f64Unary(op Op) error {
	v, err := f.values.Pop()
	if err != nil {
		return err
	}
	x := v.F64()
	switch op {
	case OpF64Abs:
		return f.values.Push(F64(math.Abs(x)))
	case OpF64Neg:
		return f.values.Push(F64(-x))
	case OpF64Ceil:
		return f.values.Push(F64(math.Ceil(x)))
	case OpF64Floor:
		return f.values.Push(F64(math.Floor(x)))
	case OpF64Trunc:
		return f.values.Push(F64(math.Trunc(x)))
	case OpF64Nearest:
		return f.values.Push(F64(math.RoundToEven(x)))
	default: // OpF64Sqrt
		return f.values.Push(F64(math.Sqrt(x)))
	}
}

func (f *callFrame) f64Binary(op Op) error {
	bv, err := f.values.Pop()
	if err != nil {
		return err
	}
	av, err := f.values.Pop()
	if err != nil {
		return err
	}
	a, b := av.F64(), bv.F64()
	switch op {
	case OpF64Add:
		return f.values.Push(F64(a + b))
	case OpF64Sub:
		return f.values.Push(F64(a - b))
	case OpF64Mul:
		return f.values.Push(F64(a * b))
	case OpF64Div:
		return f.values.Push(F64(a / b))
	case OpF64Min:
		return f.values.Push(F64(math.Min(a, b)))
	case OpF64Max:
		return f.values.Push(F64(math.Max(a, b)))
	default: // OpF64Copysign
		return f.values.Push(F64(math.Copysign(a, b)))
	}
}

// truncToI32 pops a float (f64 if wide, else f32) and truncates toward zero
// into an i32, trapping on NaN or out-of-range per spec.md §4.4.
func (f *callFrame) truncToI32(wide bool, signed bool) error {
	v, err := f.values.Pop()
	if err != nil {
		return err
	}
	x := float64(v.F32())
	if wide {
		x = v.F64()
	}
	if math.IsNaN(x) {
		return wasmerr.Execute(wasmerr.KindInvalidConversion, "truncation of NaN to i32")
	}
	t := math.Trunc(x)
	if signed {
		if t < math.MinInt32 || t > math.MaxInt32 {
			return wasmerr.Execute(wasmerr.KindInvalidConversion, "i32 truncation out of range: %v", t)
		}
		return f.values.Push(I32(int32(t)))
	}
	if t < 0 || t > math.MaxUint32 {
		return wasmerr.Execute(wasmerr.KindInvalidConversion, "u32 truncation out of range: %v", t)
	}
	return f.values.Push(I32(int32(uint32(t))))
}

func (f *callFrame) truncToI64(wide bool, signed bool) error {
	v, err := f.values.Pop()
	if err != nil {
		return err
	}
	x := float64(v.F32())
	if wide {
		x = v.F64()
	}
	if math.IsNaN(x) {
		return wasmerr.Execute(wasmerr.KindInvalidConversion, "truncation of NaN to i64")
	}
	t := math.Trunc(x)
	if signed {
		if t < math.MinInt64 || t >= math.MaxInt64 {
			return wasmerr.Execute(wasmerr.KindInvalidConversion, "i64 truncation out of range: %v", t)
		}
		return f.values.Push(I64(int64(t)))
	}
	if t < 0 || t >= math.MaxUint64 {
		return wasmerr.Execute(wasmerr.KindInvalidConversion, "u64 truncation out of range: %v", t)
	}
	return f.values.Push(I64(int64(uint64(t))))
}
