package optimizer

import (
	"testing"

	"github.com/lumen-lang/lumenc/pkg/mir"
	"github.com/lumen-lang/lumenc/pkg/pass"
	"github.com/lumen-lang/lumenc/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstFoldBinary(t *testing.T) {
	mod := mir.NewModule("test")
	i64 := types.I64()
	b := newFb("f", i64)
	l := b.constInt(6, i64)
	r := b.constInt(7, i64)
	prod := b.emit(&mir.BinaryInst{Op: mir.OpMul, L: l, R: r}, i64)
	b.ret(prod)
	mod.AddFunction(b.fn)

	p := &ConstFold{}
	require.True(t, p.Run(b.fn, mod))
	rec := b.fn.Entry().Instructions()[2]
	c, ok := rec.Inst.(*mir.ConstIntInst)
	require.True(t, ok)
	assert.EqualValues(t, 42, c.Value)

	// Idempotence.
	assert.False(t, (&ConstFold{}).Run(b.fn, mod))
}

func TestDCERemovesDeadCode(t *testing.T) {
	mod := mir.NewModule("test")
	i64 := types.I64()
	b := newFb("f", i64)
	live := b.constInt(1, i64)
	b.constInt(99, i64) // dead
	dead := b.fn.NewBlock("island")
	dead.SetTerminator(&mir.ReturnTerm{})
	b.at(b.fn.Entry())
	b.ret(live)
	mod.AddFunction(b.fn)

	p := &DCE{}
	require.True(t, p.Run(b.fn, mod))
	assert.Len(t, b.fn.Blocks(), 1)
	assert.Len(t, b.fn.Entry().Instructions(), 1)
	assert.False(t, (&DCE{}).Run(b.fn, mod))
}

func TestCSEMergesAcrossDominators(t *testing.T) {
	mod := mir.NewModule("test")
	i64 := types.I64()
	b := newFb("f", i64)
	x := b.fn.BindParam("x", i64)
	a1 := b.emit(&mir.BinaryInst{Op: mir.OpAdd, L: x.Value, R: x.Value}, i64)
	next := b.fn.NewBlock("next")
	b.br(next)
	b.at(next)
	a2 := b.emit(&mir.BinaryInst{Op: mir.OpAdd, L: x.Value, R: x.Value}, i64)
	sum := b.emit(&mir.BinaryInst{Op: mir.OpMul, L: a1, R: a2}, i64)
	b.ret(sum)
	mod.AddFunction(b.fn)

	require.True(t, (&CSE{}).Run(b.fn, mod))
	// The duplicate add collapsed; the multiply reads a1 twice.
	mul := next.Instructions()[len(next.Instructions())-1].Inst.(*mir.BinaryInst)
	assert.True(t, mul.L.Equal(a1))
	assert.True(t, mul.R.Equal(a1))
	assert.False(t, a2.Equal(a1))
	require.Empty(t, mir.Verify(b.fn))
	assert.False(t, (&CSE{}).Run(b.fn, mod))
}

func TestInlinerSmallCallee(t *testing.T) {
	mod := mir.NewModule("test")
	i64 := types.I64()

	callee := newFb("twice", i64)
	x := callee.fn.BindParam("x", i64)
	d := callee.emit(&mir.BinaryInst{Op: mir.OpAdd, L: x.Value, R: x.Value}, i64)
	callee.ret(d)
	mod.AddFunction(callee.fn)

	caller := newFb("main", i64)
	five := caller.constInt(5, i64)
	r := caller.emit(&mir.CallInst{FuncName: "twice", Args: []mir.Value{five}}, i64)
	caller.ret(r)
	mod.AddFunction(caller.fn)

	inl := &Inliner{}
	require.True(t, inl.Run(mod))
	assert.Equal(t, 1, inl.LastStats().(*InlineStats).Inlined)
	assert.Zero(t, countInsts(caller.fn, func(inst mir.Instruction) bool {
		call, ok := inst.(*mir.CallInst)
		return ok && call.FuncName == "twice"
	}))
	require.Empty(t, mir.Verify(caller.fn))
}

func TestInlinerSkipsRecursive(t *testing.T) {
	mod := mir.NewModule("test")
	i64 := types.I64()
	rec := newFb("again", i64)
	r := rec.emit(&mir.CallInst{FuncName: "again"}, i64)
	rec.ret(r)
	mod.AddFunction(rec.fn)

	caller := newFb("main", i64)
	v := caller.emit(&mir.CallInst{FuncName: "again"}, i64)
	caller.ret(v)
	mod.AddFunction(caller.fn)

	assert.False(t, (&Inliner{}).Run(mod))
}

func TestBlockLayoutSinksColdBlocks(t *testing.T) {
	mod := mir.NewModule("test")
	i64 := types.I64()
	b := newFb("f", i64)
	cold := b.fn.NewBlock("trap")
	hot := b.fn.NewBlock("ok")

	c := b.emit(&mir.ConstBoolInst{Value: true}, types.Bool())
	b.condBr(c, cold, hot)

	b.at(cold)
	b.emitVoid(&mir.CallInst{FuncName: "panic"})
	b.cur.SetTerminator(&mir.UnreachableTerm{})

	b.at(hot)
	v := b.constInt(1, i64)
	b.ret(v)
	mod.AddFunction(b.fn)

	p := &BlockLayout{}
	require.True(t, p.Run(b.fn, mod))
	blocks := b.fn.Blocks()
	assert.Equal(t, "entry", blocks[0].Name)
	assert.Equal(t, "trap", blocks[len(blocks)-1].Name, "cold block sunk to the end")
}

func TestPipelineLevels(t *testing.T) {
	for _, level := range []pass.OptLevel{pass.O0, pass.O1, pass.O2, pass.O3} {
		mod := mir.NewModule("test")
		b := newFb("f", types.I64())
		v := b.constInt(7, types.I64())
		b.ret(v)
		mod.AddFunction(b.fn)

		mgr := BuildPipeline(level, nil)
		mgr.Run(mod)
		assert.False(t, mgr.HasErrors(), "level %s", level)
		require.Empty(t, mir.Verify(mod.Functions[0]), "level %s", level)
	}
}

func TestPipelineEmptyModuleNoop(t *testing.T) {
	mod := mir.NewModule("empty")
	mgr := BuildPipeline(pass.O3, nil)
	mgr.Run(mod)
	assert.False(t, mgr.HasErrors())
	assert.Empty(t, mod.Functions)
}

func TestProfileHotness(t *testing.T) {
	p := &Profile{FuncCounts: map[string]uint64{"hot": 5000, "cold": 2}}
	assert.True(t, p.IsHot("hot"))
	assert.False(t, p.IsHot("cold"))
	var nilProf *Profile
	assert.False(t, nilProf.IsHot("hot"))
}
