package optimizer

import (
	"testing"

	"github.com/lumen-lang/lumenc/pkg/mir"
	"github.com/lumen-lang/lumenc/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildMakePair constructs a 16-byte Pair into one local and returns it
// from two different return sites, the canonical NRVO shape.
func buildMakePair() (*mir.Function, *mir.Module) {
	mod := mir.NewModule("test")
	i64 := types.I64()
	pairT := types.Struct("Pair")
	mod.AddStruct("Pair", &mir.StructDef{Name: "Pair", Fields: []mir.FieldDef{
		{Name: "a", Type: i64}, {Name: "b", Type: i64},
	}})

	b := newFb("make_pair", pairT)
	cond := b.fn.BindParam("flip", types.Bool())
	slot := b.emit(&mir.AllocaInst{AllocType: pairT, Name: "out"}, types.Pointer(pairT, true))

	thenB := b.fn.NewBlock("then")
	elseB := b.fn.NewBlock("else")
	b.condBr(cond.Value, thenB, elseB)

	fill := func(blk *mir.BasicBlock, a, bv int64) {
		b.at(blk)
		av := b.constInt(a, i64)
		bb := b.constInt(bv, i64)
		p := b.emit(&mir.StructInitInst{StructName: "Pair", Fields: []mir.Value{av, bb}}, pairT)
		b.emitVoid(&mir.StoreInst{Ptr: slot, Val: p})
		loaded := b.emit(&mir.LoadInst{Ptr: slot}, pairT)
		b.ret(loaded)
	}
	fill(thenB, 1, 2)
	fill(elseB, 2, 1)

	mod.AddFunction(b.fn)
	return b.fn, mod
}

func TestRvoDetectsNamedReturnSlot(t *testing.T) {
	fn, mod := buildMakePair()
	require.True(t, (&Rvo{}).Run(fn, mod))
	assert.True(t, fn.HasAttribute("nrvo"))
}

func TestRvoRejectsMixedReturns(t *testing.T) {
	mod := mir.NewModule("test")
	i64 := types.I64()
	b := newFb("mixed", i64)
	p := b.fn.BindParam("x", i64)

	thenB := b.fn.NewBlock("then")
	elseB := b.fn.NewBlock("else")
	c := b.emit(&mir.ConstBoolInst{Value: true}, types.Bool())
	b.condBr(c, thenB, elseB)
	b.at(thenB)
	b.ret(p.Value) // a parameter never qualifies
	b.at(elseB)
	v := b.constInt(7, i64)
	b.ret(v)
	mod.AddFunction(b.fn)

	assert.False(t, (&Rvo{}).Run(b.fn, mod))
}

func TestSretConversion(t *testing.T) {
	fn, mod := buildMakePair()
	require.True(t, (&ModuleRvo{}).Run(mod))

	// A caller whose result feeds a field read.
	i64 := types.I64()
	pairT := types.Struct("Pair")
	cb := newFb("caller", i64)
	flag := cb.emit(&mir.ConstBoolInst{Value: true}, types.Bool())
	pair := cb.emit(&mir.CallInst{FuncName: "make_pair", Args: []mir.Value{flag}}, pairT)
	first := cb.emit(&mir.ExtractValueInst{Agg: pair, Indices: []int{0}}, i64)
	cb.ret(first)
	mod.AddFunction(cb.fn)

	p := &SretConversion{}
	require.True(t, p.Run(mod))

	// Post-conversion contract: sret flag set, first param is a pointer,
	// return type is unit, original return type preserved.
	assert.True(t, fn.Flags.UsesSret)
	require.NotEmpty(t, fn.Params)
	assert.Equal(t, types.KindPointer, fn.Params[0].Type.Kind())
	assert.Equal(t, types.KindUnit, fn.ReturnType.Kind())
	require.NotNil(t, fn.OriginalReturnType)
	assert.Equal(t, "Pair", fn.OriginalReturnType.Name())

	// Every return site is now bare.
	for _, blk := range fn.Blocks() {
		if ret, ok := blk.Terminator().(*mir.ReturnTerm); ok {
			assert.False(t, ret.Value.Valid(), "sret function returns no value")
		}
	}

	// The call site now allocates a buffer and passes it first.
	stats := p.LastStats().(*SretStats)
	assert.Equal(t, 1, stats.Converted)
	assert.Equal(t, 1, stats.CallsRewritten)
	var rewritten *mir.CallInst
	for _, blk := range cb.fn.Blocks() {
		for _, rec := range blk.Instructions() {
			if call, ok := rec.Inst.(*mir.CallInst); ok && call.FuncName == "make_pair" {
				rewritten = call
			}
		}
	}
	require.NotNil(t, rewritten)
	assert.Len(t, rewritten.Args, 2, "hidden return pointer prepended")

	// Idempotence: converted functions are not converted again.
	assert.False(t, (&SretConversion{}).Run(mod))
}
