package wasmrt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjx98/wasmrt/wasmerr"
)

func TestStackWithLimitPushPop(t *testing.T) {
	s := NewStackWithLimit[int](4)
	require.NoError(t, s.Push(1))
	require.NoError(t, s.Push(2))
	require.NoError(t, s.Push(3))
	assert.Equal(t, 3, s.Len())

	top, err := s.Top()
	require.NoError(t, err)
	assert.Equal(t, 3, top)

	v, err := s.Pop()
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Equal(t, 2, s.Len())
}

func TestStackWithLimitOverflow(t *testing.T) {
	s := NewStackWithLimit[int](2)
	require.NoError(t, s.Push(1))
	require.NoError(t, s.Push(2))
	err := s.Push(3)
	require.Error(t, err)
	kind, ok := wasmerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, wasmerr.KindStackLimit, kind)
}

func TestStackWithLimitUnderflow(t *testing.T) {
	s := NewStackWithLimit[int](2)
	_, err := s.Pop()
	require.Error(t, err)
	kind, _ := wasmerr.KindOf(err)
	assert.Equal(t, wasmerr.KindStackUnderflow, kind)
}

func TestStackWithLimitGetAndResize(t *testing.T) {
	s := NewStackWithLimit[int](4)
	require.NoError(t, s.Push(10))
	require.NoError(t, s.Push(20))
	require.NoError(t, s.Push(30))

	v, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 20, v)

	s.Resize(1)
	assert.Equal(t, 1, s.Len())
	top, err := s.Top()
	require.NoError(t, err)
	assert.Equal(t, 10, top)
}

func TestStackWithLimitPushPenultimate(t *testing.T) {
	s := NewStackWithLimit[int](4)
	require.NoError(t, s.Push(1))
	require.NoError(t, s.Push(2))
	require.NoError(t, s.PushPenultimate(99))

	top, err := s.Top()
	require.NoError(t, err)
	assert.Equal(t, 2, top)

	second, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 99, second)
}
