package optimizer

import (
	"testing"

	"github.com/lumen-lang/lumenc/pkg/mir"
	"github.com/lumen-lang/lumenc/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkedGeps(fn *mir.Function) (checked, eliminated int) {
	for _, b := range fn.Blocks() {
		for _, rec := range b.Instructions() {
			gep, ok := rec.Inst.(*mir.GetElementPtrInst)
			if !ok || !gep.Bounds.Checked {
				continue
			}
			if gep.Bounds.Eliminated {
				eliminated++
			} else {
				checked++
			}
		}
	}
	return checked, eliminated
}

func TestBCEEliminatesLoopIndexedAccess(t *testing.T) {
	fn, mod := sumLoop(0, 8, 8)
	p := &BoundsCheckElim{}
	require.True(t, p.Run(fn, mod))

	checked, eliminated := checkedGeps(fn)
	assert.Zero(t, checked, "no live check may remain in the loop body")
	assert.Equal(t, 1, eliminated)

	stats := p.LastStats().(*BCEStats)
	assert.Equal(t, 1, stats.Eliminated)
	assert.Equal(t, 1, stats.ByLoop, "the loop induction range justifies the elimination")
	assert.Len(t, stats.AssumePredicates, 1)
	require.Empty(t, mir.Verify(fn))

	// Idempotence: nothing left to eliminate.
	assert.False(t, (&BoundsCheckElim{}).Run(fn, mod))
}

func TestBCEKeepsOutOfRangeAccess(t *testing.T) {
	// Loop runs to 16 over an 8-element array; the check must stay.
	fn, mod := sumLoop(0, 16, 8)
	assert.False(t, (&BoundsCheckElim{}).Run(fn, mod))
	checked, eliminated := checkedGeps(fn)
	assert.Equal(t, 1, checked)
	assert.Zero(t, eliminated)
}

func TestBCEConstantIndex(t *testing.T) {
	mod := mir.NewModule("test")
	i64 := types.I64()
	arrT := types.Array(i64, 4)
	b := newFb("const_idx", i64)
	arr := b.fn.BindParam("arr", arrT)
	idx := b.constInt(2, i64)
	gep := b.emit(&mir.GetElementPtrInst{
		Base: arr.Value, Indices: []mir.Value{idx}, Bounds: mir.BoundsInfo{Checked: true},
	}, types.Pointer(i64, false))
	v := b.emit(&mir.LoadInst{Ptr: gep}, i64)
	b.ret(v)
	mod.AddFunction(b.fn)

	p := &BoundsCheckElim{}
	require.True(t, p.Run(b.fn, mod))
	assert.Equal(t, 1, p.LastStats().(*BCEStats).ByConstant)
}

// buildGuardedAccess: if i < 4 { load arr[i] } else { 0 } with the index
// typed idxT.
func buildGuardedAccess(idxT *types.Type) (*mir.Function, *mir.Module) {
	mod := mir.NewModule("test")
	i64 := types.I64()
	arrT := types.Array(i64, 4)
	b := newFb("guarded", i64)
	arr := b.fn.BindParam("arr", arrT)
	i := b.fn.BindParam("i", idxT)

	guarded := b.fn.NewBlock("guarded")
	fallback := b.fn.NewBlock("fallback")

	four := b.constInt(4, idxT)
	inRange := b.emit(&mir.BinaryInst{Op: mir.OpLt, L: i.Value, R: four}, types.Bool())
	b.condBr(inRange, guarded, fallback)

	b.at(guarded)
	gep := b.emit(&mir.GetElementPtrInst{
		Base: arr.Value, Indices: []mir.Value{i.Value}, Bounds: mir.BoundsInfo{Checked: true},
	}, types.Pointer(i64, false))
	v := b.emit(&mir.LoadInst{Ptr: gep}, i64)
	b.ret(v)

	b.at(fallback)
	fz := b.constInt(0, i64)
	b.ret(fz)
	mod.AddFunction(b.fn)
	return b.fn, mod
}

func TestBCEDominatingCheckUnsignedIndex(t *testing.T) {
	// An unsigned index under a dominating `i < 4` is fully proven.
	fn, mod := buildGuardedAccess(types.U64())
	p := &BoundsCheckElim{}
	require.True(t, p.Run(fn, mod))
	stats := p.LastStats().(*BCEStats)
	assert.Equal(t, 1, stats.Eliminated)
	assert.Equal(t, 1, stats.ByDominating)
}

func TestBCESignedIndexLowerBoundUnproven(t *testing.T) {
	// A signed index could be negative; `i < 4` alone must not eliminate.
	fn, mod := buildGuardedAccess(types.I64())
	assert.False(t, (&BoundsCheckElim{}).Run(fn, mod))
	checked, eliminated := checkedGeps(fn)
	assert.Equal(t, 1, checked)
	assert.Zero(t, eliminated)
}

func TestRangeArithmetic(t *testing.T) {
	r := Range{0, 7}.add(Range{1, 1})
	assert.Equal(t, Range{1, 8}, r)
	assert.Equal(t, Range{2, 4}, Range{0, 4}.intersect(Range{2, 9}))
	assert.Equal(t, Range{0, 9}, Range{0, 4}.join(Range{2, 9}))
	assert.Equal(t, maxI64, satAdd(maxI64, 1))
}
