package wasmrt

import "github.com/kjx98/wasmrt/wasmerr"

// TableInstance is a bounds-checked vector of optional function references,
// grounded on spec.md §4.5's TableInstance ("Vector of optional callable
// references... missing entries cause a CallIndirect trap"). The MVP only
// has AnyFunc tables, so elements are function-index-space indices with a
// present flag.
type TableInstance struct {
	elems    []tableElem
	maxSize  uint32
	hasMax   bool
}

type tableElem struct {
	funcIndex uint32
	present   bool
}

// NewTableInstance allocates a table with minSize entries, all empty.
func NewTableInstance(minSize uint32, maxSize uint32, hasMax bool) *TableInstance {
	return &TableInstance{elems: make([]tableElem, minSize), maxSize: maxSize, hasMax: hasMax}
}

func (t *TableInstance) Size() uint32 { return uint32(len(t.elems)) }

// Set assigns funcIndex to the element at position idx, used when applying
// an element segment during instantiation.
func (t *TableInstance) Set(idx uint32, funcIndex uint32) error {
	if int(idx) >= len(t.elems) {
		return wasmerr.Instantiate(wasmerr.KindSegmentOutOfBounds, "table index %d out of range (size %d)", idx, len(t.elems))
	}
	t.elems[idx] = tableElem{funcIndex: funcIndex, present: true}
	return nil
}

// Get returns the function index stored at idx, for CallIndirect dispatch.
func (t *TableInstance) Get(idx uint32) (uint32, error) {
	if int(idx) >= len(t.elems) {
		return 0, wasmerr.Execute(wasmerr.KindTableOutOfBounds, "table index %d out of range (size %d)", idx, len(t.elems))
	}
	e := t.elems[idx]
	if !e.present {
		return 0, wasmerr.Execute(wasmerr.KindTableOutOfBounds, "table index %d is empty", idx)
	}
	return e.funcIndex, nil
}
