package wasmrt

import "github.com/kjx98/wasmrt/wasmerr"

// StackWithLimit is a fixed-capacity stack, grounded on
// original_source/src/common/stack.rs's StackWithLimit<T>: a Vec
// pre-allocated to a declared limit, where push fails once that limit is
// reached rather than growing unbounded. Go generics (go.mod requires
// go 1.22) let this serve both the validator's operand/label stacks and the
// interpreter's value/call stacks without per-type duplication.
type StackWithLimit[T any] struct {
	items []T
	limit int
}

// NewStackWithLimit returns an empty stack that rejects pushes once it holds
// limit items.
func NewStackWithLimit[T any](limit int) *StackWithLimit[T] {
	return &StackWithLimit[T]{limit: limit}
}

func (s *StackWithLimit[T]) Len() int { return len(s.items) }

func (s *StackWithLimit[T]) Empty() bool { return len(s.items) == 0 }

// Push appends v, failing with wasmerr.KindStackLimit if the stack is at
// capacity.
func (s *StackWithLimit[T]) Push(v T) error {
	if len(s.items) >= s.limit {
		return wasmerr.Validate(wasmerr.KindStackLimit, "stack limit %d exceeded", s.limit)
	}
	s.items = append(s.items, v)
	return nil
}

// Pop removes and returns the top item, failing with KindStackUnderflow if
// the stack is empty.
func (s *StackWithLimit[T]) Pop() (T, error) {
	var zero T
	if len(s.items) == 0 {
		return zero, wasmerr.Validate(wasmerr.KindStackUnderflow, "pop from empty stack")
	}
	n := len(s.items) - 1
	v := s.items[n]
	s.items = s.items[:n]
	return v, nil
}

// Top returns the item at the top of the stack without removing it.
func (s *StackWithLimit[T]) Top() (T, error) {
	var zero T
	if len(s.items) == 0 {
		return zero, wasmerr.Validate(wasmerr.KindStackUnderflow, "top of empty stack")
	}
	return s.items[len(s.items)-1], nil
}

// Get returns the item at position idx counted from the top (0 is the top),
// used by the validator/interpreter to inspect frames below the current one
// without popping them.
func (s *StackWithLimit[T]) Get(idx int) (T, error) {
	var zero T
	pos := len(s.items) - 1 - idx
	if pos < 0 || pos >= len(s.items) {
		return zero, wasmerr.Validate(wasmerr.KindStackUnderflow, "index %d out of range", idx)
	}
	return s.items[pos], nil
}

// Resize truncates (or is a no-op if newLen >= current length) the stack to
// newLen items, used when unwinding the operand stack to a label's starting
// height after a structured jump.
func (s *StackWithLimit[T]) Resize(newLen int) {
	if newLen < len(s.items) {
		s.items = s.items[:newLen]
	}
}

// PushPenultimate inserts v just below the current top item, ported from
// stack.rs's push_penultimate as a general-purpose stack primitive (the
// validator's own tee handling pops and re-pushes instead; see teeValue).
func (s *StackWithLimit[T]) PushPenultimate(v T) error {
	if len(s.items) == 0 {
		return s.Push(v)
	}
	if err := s.Push(v); err != nil {
		return err
	}
	n := len(s.items)
	s.items[n-2], s.items[n-1] = s.items[n-1], s.items[n-2]
	return nil
}
