package wasmrt

import "github.com/kjx98/wasmrt/wasmerr"

// VariableInstance is a typed, optionally-mutable cell, grounded on
// spec.md §4.5: "Encapsulates a typed cell. set fails if the cell is
// immutable or if the new value's type differs from the declared type.
// Used uniformly for locals, Wasm globals, and host-provided native
// globals."
type VariableInstance struct {
	typ     ValueType
	mutable bool
	value   Value
}

// NewVariableInstance constructs a cell of the given type and mutability,
// initialized to init.
func NewVariableInstance(typ ValueType, mutable bool, init Value) *VariableInstance {
	return &VariableInstance{typ: typ, mutable: mutable, value: init}
}

func (v *VariableInstance) Type() ValueType { return v.typ }
func (v *VariableInstance) Mutable() bool   { return v.mutable }
func (v *VariableInstance) Get() Value      { return v.value }

// Set overwrites the cell's value, failing if the cell is immutable or the
// new value's type does not match the declared type.
func (v *VariableInstance) Set(nv Value) error {
	if !v.mutable {
		return wasmerr.Validate(wasmerr.KindImmutableGlobal, "write to immutable variable")
	}
	if nv.Type != v.typ {
		return wasmerr.Execute(wasmerr.KindTypeMismatch, "expected %s, got %s", v.typ, nv.Type)
	}
	v.value = nv
	return nil
}
