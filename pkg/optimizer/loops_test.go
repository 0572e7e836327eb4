package optimizer

import (
	"testing"

	"github.com/lumen-lang/lumenc/pkg/mir"
	"github.com/lumen-lang/lumenc/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindLoopsDetectsCountedLoop(t *testing.T) {
	fn, _ := sumLoop(0, 8, 8)
	loops := FindLoops(fn)
	require.Len(t, loops, 1)
	l := loops[0]
	assert.True(t, l.HasBounds())
	assert.True(t, l.StartOK)
	assert.EqualValues(t, 0, l.Start)
	assert.True(t, l.EndOK)
	assert.EqualValues(t, 8, l.EndConst)
	assert.EqualValues(t, 1, l.Step)
	assert.Zero(t, l.Depth)

	trip, ok := l.TripCount()
	require.True(t, ok)
	assert.EqualValues(t, 8, trip)
}

func TestFindLoopsNesting(t *testing.T) {
	// Hand-built two-level nest: outer(header,latch) wrapping inner.
	mod := mir.NewModule("test")
	i64 := types.I64()
	b := newFb("nest", types.Unit())
	fn := b.fn

	oHeader := fn.NewBlock("oheader")
	iHeader := fn.NewBlock("iheader")
	iLatch := fn.NewBlock("ilatch")
	oLatch := fn.NewBlock("olatch")
	exit := fn.NewBlock("exit")

	c := b.emit(&mir.ConstBoolInst{Value: true}, types.Bool())
	b.br(oHeader)
	b.at(oHeader)
	b.condBr(c, iHeader, exit)
	b.at(iHeader)
	b.condBr(c, iLatch, oLatch)
	b.at(iLatch)
	b.br(iHeader)
	b.at(oLatch)
	b.br(oHeader)
	b.at(exit)
	b.cur.SetTerminator(&mir.ReturnTerm{})
	mod.AddFunction(fn)
	_ = i64

	loops := FindLoops(fn)
	require.Len(t, loops, 2)
	var outer, inner *LoopInfo
	for _, l := range loops {
		if l.Header == oHeader.ID {
			outer = l
		} else {
			inner = l
		}
	}
	require.NotNil(t, outer)
	require.NotNil(t, inner)
	assert.Equal(t, outer, inner.Parent)
	assert.Equal(t, 1, inner.Depth)
	assert.Contains(t, outer.Children, inner)
}

func TestSimpleLoopOptsHoistsInvariant(t *testing.T) {
	// The loop body recomputes 3*4 every iteration; LICM hoists it.
	mod := mir.NewModule("test")
	i64 := types.I64()
	fn, _ := sumLoop(0, 8, 8)
	loops := FindLoops(fn)
	require.Len(t, loops, 1)
	latch := fn.Block(loops[0].Latch)
	three := mir.NewValue(fn.NewValueID(), i64)
	four := mir.NewValue(fn.NewValueID(), i64)
	prod := mir.NewValue(fn.NewValueID(), i64)
	latch.SetInstructions(append(latch.Instructions(),
		mir.InstructionRecord{Inst: &mir.ConstIntInst{Value: 3, Bits: 64, Signed: true}, Result: three, Type: i64},
		mir.InstructionRecord{Inst: &mir.ConstIntInst{Value: 4, Bits: 64, Signed: true}, Result: four, Type: i64},
		mir.InstructionRecord{Inst: &mir.BinaryInst{Op: mir.OpMul, L: three, R: four}, Result: prod, Type: i64},
	))

	p := &SimpleLoopOpts{}
	require.True(t, p.Run(fn, mod))
	// The planted product plus whatever loop constants were already
	// invariant.
	assert.GreaterOrEqual(t, p.LastStats().(*LoopOptStats).Hoisted, 3)
	// Hoisted instructions now live outside the loop body.
	inLoop := 0
	for _, rec := range fn.Block(loops[0].Latch).Instructions() {
		if rec.Result.Valid() && (rec.Result.Equal(three) || rec.Result.Equal(four) || rec.Result.Equal(prod)) {
			inLoop++
		}
	}
	assert.Zero(t, inLoop)
	require.Empty(t, mir.Verify(fn))
}

func TestVectorizeSumLoop(t *testing.T) {
	fn, mod := sumLoop(0, 8, 8)
	// BCE first so the checked GEP does not block lane cloning semantics.
	(&BoundsCheckElim{}).Run(fn, mod)

	p := &Vectorize{}
	require.True(t, p.Run(fn, mod))
	assert.Equal(t, 1, p.LastStats().(*VectorizeStats).VectorizedLoops)

	// The widened loop steps by the vector width and carries one load per
	// lane.
	loops := FindLoops(fn)
	require.Len(t, loops, 1)
	assert.EqualValues(t, VectorWidth, loops[0].Step)
	latch := fn.Block(loops[0].Latch)
	loadCount := 0
	for _, rec := range latch.Instructions() {
		if _, ok := rec.Inst.(*mir.LoadInst); ok {
			loadCount++
		}
	}
	assert.Equal(t, VectorWidth, loadCount)
	require.Empty(t, mir.Verify(fn))
}

func TestVectorizeSkipsShortLoop(t *testing.T) {
	fn, mod := sumLoop(0, 3, 8)
	(&BoundsCheckElim{}).Run(fn, mod)
	assert.False(t, (&Vectorize{}).Run(fn, mod))
}

func TestAdvancedLoopOptsTiling(t *testing.T) {
	fn, mod := sumLoop(0, 128, 128)
	p := &AdvancedLoopOpts{}
	require.True(t, p.Run(fn, mod))
	assert.Equal(t, 1, p.LastStats().(*LoopOptStats).Tiled)

	// The tile loop nests around the original: two loops now, the inner at
	// depth 1.
	loops := FindLoops(fn)
	require.Len(t, loops, 2)
	depths := map[int]int{}
	for _, l := range loops {
		depths[l.Depth]++
	}
	assert.Equal(t, 1, depths[0])
	assert.Equal(t, 1, depths[1])
	require.Empty(t, mir.Verify(fn))
}
