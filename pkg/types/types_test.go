package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMangleDeterministicAndInjective(t *testing.T) {
	maybe1 := Enum("Maybe", I32())
	maybe2 := Enum("Maybe", I32())
	assert.Equal(t, Mangle(maybe1), Mangle(maybe2), "structurally equal types mangle identically")

	distinct := []*Type{
		Unit(), Bool(), I8(), I32(), U32(), F64(), Str(), PtrPrim(),
		Pointer(I32(), true), Pointer(I32(), false), Pointer(I64(), true),
		Array(I32(), 4), Array(I32(), 8), Slice(I32()),
		Tuple(I32(), Bool()), Tuple(Bool(), I32()),
		Struct("Point"), Struct("Point", I32()), Enum("Maybe", I32()), Enum("Maybe", I64()),
		Function([]*Type{I32()}, Bool()),
	}
	seen := map[string]*Type{}
	for _, ty := range distinct {
		m := Mangle(ty)
		prev, dup := seen[m]
		require.False(t, dup, "mangle collision: %v and %v both mangle to %q", prev, ty, m)
		seen[m] = ty
	}
}

func TestInternerDedupes(t *testing.T) {
	in := NewInterner()
	a := in.Intern(Enum("Maybe", I32()))
	b := in.Intern(Enum("Maybe", I32()))
	assert.Same(t, a, b)
	assert.Equal(t, 1, in.Len())

	c := in.Intern(Enum("Maybe", I64()))
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, in.Len())
}

func TestEqualFollowsMangle(t *testing.T) {
	cases := []struct {
		a, b *Type
		want bool
	}{
		{I32(), I32(), true},
		{I32(), U32(), false},
		{Pointer(I32(), true), Pointer(I32(), true), true},
		{Pointer(I32(), true), Pointer(I32(), false), false},
		{Tuple(I32(), Bool()), Tuple(I32(), Bool()), true},
		{Struct("A", I32()), Struct("A", I32()), true},
		{Struct("A", I32()), Struct("A", I64()), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Equal(tc.a, tc.b))
		assert.Equal(t, tc.want, Mangle(tc.a) == Mangle(tc.b), "Equal and Mangle must agree")
	}
}

func TestIntegerProperties(t *testing.T) {
	assert.True(t, I8().IsInteger())
	assert.True(t, I8().IsSigned())
	assert.False(t, U64().IsSigned())
	assert.False(t, F32().IsInteger())
	assert.True(t, F32().IsFloat())

	assert.Equal(t, 8, I8().BitWidth())
	assert.Equal(t, 128, U128().BitWidth())

	min, max := I8().Bounds()
	assert.EqualValues(t, -128, min)
	assert.EqualValues(t, 127, max)

	min, max = U16().Bounds()
	assert.EqualValues(t, 0, min)
	assert.EqualValues(t, 65535, max)
}

func TestAlignment(t *testing.T) {
	for _, tc := range []struct {
		t    *Type
		want int
	}{
		{Bool(), 1},
		{I16(), 2},
		{F32(), 4},
		{I64(), 8},
		{I128(), 16},
		{Pointer(I32(), false), 8},
		{Array(I16(), 10), 2},
		{Struct("S", I8()), 8}, // aggregates get the 8-byte back-end floor
	} {
		assert.Equal(t, tc.want, AlignOf(tc.t, 8), "align of %s", tc.t)
	}
}

func TestSizeOf(t *testing.T) {
	assert.Equal(t, 0, SizeOf(Unit(), 8))
	assert.Equal(t, 4, SizeOf(I32(), 8))
	assert.Equal(t, 16, SizeOf(Slice(I32()), 8))
	assert.Equal(t, 40, SizeOf(Array(I64(), 5), 8))
	// Tuple padding: {i8, i64} pads to 16.
	assert.Equal(t, 16, SizeOf(Tuple(I8(), I64()), 8))
}
