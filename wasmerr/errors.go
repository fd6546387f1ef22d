// Package wasmerr provides the structured error taxonomy used across the
// decoder, validator, and interpreter layers.
//
// Errors are categorized by Phase (where in the pipeline the error occurred)
// and Kind (the specific failure). Construct them with New/Build, or the
// convenience constructors below; all satisfy errors.Is/errors.As against
// their Kind.
package wasmerr

import (
	"errors"
	"fmt"
)

// Phase names the pipeline stage that produced the error.
type Phase string

const (
	PhaseDecode      Phase = "decode"
	PhaseValidate    Phase = "validate"
	PhaseInstantiate Phase = "instantiate"
	PhaseExecute     Phase = "execute"
	PhaseHost        Phase = "host"
)

// Kind categorizes the error within its phase.
type Kind string

const (
	// Decode kinds.
	KindUnexpectedEOF   Kind = "unexpected_eof"
	KindInvalidMagic    Kind = "invalid_magic"
	KindUnsupportedVer  Kind = "unsupported_version"
	KindInvalidVarInt32 Kind = "invalid_varint32"
	KindInvalidVarInt64 Kind = "invalid_varint64"
	KindInvalidVarUint1 Kind = "invalid_varuint1"
	KindNonUTF8String   Kind = "non_utf8_string"
	KindUnknownSection  Kind = "unknown_section_structure"

	// Validate kinds.
	KindTypeMismatch      Kind = "type_mismatch"
	KindStackUnderflow    Kind = "stack_underflow"
	KindMisplacedElseEnd  Kind = "misplaced_else_end"
	KindMissingMemory     Kind = "missing_memory"
	KindMissingTable      Kind = "missing_table"
	KindMissingGlobal     Kind = "missing_global"
	KindMissingFunction   Kind = "missing_function"
	KindBrTableMismatch   Kind = "br_table_type_mismatch"
	KindAlignmentTooLarge Kind = "alignment_too_large"
	KindImmutableGlobal   Kind = "immutable_global_write"
	KindEmptyFunctionBody Kind = "empty_function_body"
	KindParentFrameAccess Kind = "parent_frame_access"
	KindStackLimit        Kind = "stack_limit_exceeded"

	// Instantiate kinds.
	KindUnresolvedImport   Kind = "unresolved_import"
	KindImportKindMismatch Kind = "import_kind_mismatch"
	KindImportTypeMismatch Kind = "import_type_mismatch"
	KindNonConstantInit    Kind = "non_constant_init_expr"
	KindSegmentOutOfBounds Kind = "segment_out_of_bounds"
	KindStartFunctionTrap  Kind = "start_function_trap"

	// Execute (trap) kinds.
	KindDivideByZero         Kind = "divide_by_zero"
	KindSignedOverflow       Kind = "signed_division_overflow"
	KindInvalidConversion    Kind = "invalid_conversion_to_integer"
	KindMemoryOutOfBounds    Kind = "memory_out_of_bounds"
	KindTableOutOfBounds     Kind = "table_out_of_bounds"
	KindSignatureMismatch    Kind = "indirect_call_signature_mismatch"
	KindStackOverflow        Kind = "stack_overflow"
	KindUnreachableExecuted  Kind = "unreachable_executed"
	KindCanceled             Kind = "canceled"

	// Host kind.
	KindHostFunctionError Kind = "host_function_error"
)

// Error is the structured error value returned by every layer of wasmrt.
type Error struct {
	Phase Phase
	Kind  Kind
	// Path is a breadcrumb: section name, function index, opcode position.
	Path  string
	Msg   string
	cause error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s/%s at %s: %s", e.Phase, e.Kind, e.Path, e.Msg)
	}
	return fmt.Sprintf("%s/%s: %s", e.Phase, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, &wasmerr.Error{Kind: wasmerr.KindMemoryOutOfBounds})
// to match any error of that Kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// Trap is the subtype of Error returned from Execute*; it is always phase
// Execute or Host.
type Trap = Error

// Builder constructs an Error fluently.
type Builder struct{ e Error }

func New(phase Phase, kind Kind) *Builder {
	return &Builder{e: Error{Phase: phase, Kind: kind}}
}

func (b *Builder) Path(path string) *Builder {
	b.e.Path = path
	return b
}

func (b *Builder) Detail(format string, args ...any) *Builder {
	b.e.Msg = fmt.Sprintf(format, args...)
	return b
}

func (b *Builder) Cause(err error) *Builder {
	b.e.cause = err
	return b
}

func (b *Builder) Build() *Error {
	e := b.e
	return &e
}

// Convenience constructors for the hot paths (decoder, validator inner loop).

func Decode(kind Kind, format string, args ...any) *Error {
	return New(PhaseDecode, kind).Detail(format, args...).Build()
}

func Validate(kind Kind, format string, args ...any) *Error {
	return New(PhaseValidate, kind).Detail(format, args...).Build()
}

func Instantiate(kind Kind, format string, args ...any) *Error {
	return New(PhaseInstantiate, kind).Detail(format, args...).Build()
}

func Execute(kind Kind, format string, args ...any) *Trap {
	return New(PhaseExecute, kind).Detail(format, args...).Build()
}

func Host(cause error, format string, args ...any) *Trap {
	return New(PhaseHost, KindHostFunctionError).Cause(cause).Detail(format, args...).Build()
}

// KindOf extracts the Kind from an error, if it is (or wraps) a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
