package wasmrt

import "github.com/kjx98/wasmrt/wasmerr"

// PageSize is the Wasm MVP linear-memory page granularity (64 KiB).
const PageSize = 64 * 1024

// MemoryInstance is a growable, page-granular linear memory, grounded on
// spec.md §4.5's MemoryInstance: "Backed by a byte vector rounded to page
// multiples... grow by N pages... bounds-checked per access."
type MemoryInstance struct {
	data        []byte
	maxPages    uint32
	hasMax      bool
	allowGrowth bool
}

// NewMemoryInstance allocates a memory with minPages pages committed. max
// is the declared maximum (ignored if hasMax is false); allowGrowth gates
// GrowMemory per the host policy described in spec.md §9's Open Question
// resolution (return old page count on success, -1 on failure).
func NewMemoryInstance(minPages uint32, maxPages uint32, hasMax bool, allowGrowth bool) *MemoryInstance {
	return &MemoryInstance{
		data:        make([]byte, int(minPages)*PageSize),
		maxPages:    maxPages,
		hasMax:      hasMax,
		allowGrowth: allowGrowth,
	}
}

// PageCount returns the number of committed 64 KiB pages.
func (m *MemoryInstance) PageCount() uint32 { return uint32(len(m.data) / PageSize) }

// Grow adds n pages, returning the previous page count on success or -1 if
// the growth would exceed the declared maximum or the host forbids growth.
func (m *MemoryInstance) Grow(n uint32) int32 {
	if !m.allowGrowth {
		return -1
	}
	old := m.PageCount()
	if m.hasMax && uint64(old)+uint64(n) > uint64(m.maxPages) {
		return -1
	}
	m.data = append(m.data, make([]byte, int(n)*PageSize)...)
	return int32(old)
}

// bounds computes the [start, start+length) byte range for a dynamic
// address plus static offset, wrapping per spec.md §4.4 ("unchecked
// wrapping for the address arithmetic") and trapping only if the final
// range exceeds the current memory size.
func (m *MemoryInstance) bounds(addr uint32, offset uint32, length uint32) (uint64, uint64, error) {
	start := uint64(addr) + uint64(offset)
	end := start + uint64(length)
	if end > uint64(len(m.data)) {
		return 0, 0, wasmerr.Execute(wasmerr.KindMemoryOutOfBounds, "memory access [%d, %d) exceeds size %d", start, end, len(m.data))
	}
	return start, end, nil
}

// Read copies length bytes starting at addr+offset.
func (m *MemoryInstance) Read(addr, offset, length uint32) ([]byte, error) {
	start, end, err := m.bounds(addr, offset, length)
	if err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, m.data[start:end])
	return out, nil
}

// Write copies p into memory starting at addr+offset.
func (m *MemoryInstance) Write(addr, offset uint32, p []byte) error {
	start, end, err := m.bounds(addr, offset, uint32(len(p)))
	if err != nil {
		return err
	}
	copy(m.data[start:end], p)
	return nil
}

// InitData writes a data segment's bytes at a constant offset during
// instantiation (bounds checked the same way as a runtime store).
func (m *MemoryInstance) InitData(offset uint32, data []byte) error {
	return m.Write(offset, 0, data)
}
