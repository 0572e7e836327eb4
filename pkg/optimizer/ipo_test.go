package optimizer

import (
	"testing"

	"github.com/lumen-lang/lumenc/pkg/mir"
	"github.com/lumen-lang/lumenc/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildScaleModule: scale(x, k) = x * k, called twice with k = 3.
func buildScaleModule() *mir.Module {
	mod := mir.NewModule("test")
	i64 := types.I64()

	s := newFb("scale", i64)
	x := s.fn.BindParam("x", i64)
	k := s.fn.BindParam("k", i64)
	prod := s.emit(&mir.BinaryInst{Op: mir.OpMul, L: x.Value, R: k.Value}, i64)
	s.ret(prod)
	mod.AddFunction(s.fn)

	for _, name := range []string{"c1", "c2"} {
		c := newFb(name, i64)
		arg := c.fn.BindParam("v", i64)
		three := c.constInt(3, i64)
		r := c.emit(&mir.CallInst{FuncName: "scale", Args: []mir.Value{arg.Value, three}}, i64)
		c.ret(r)
		mod.AddFunction(c.fn)
	}
	return mod
}

func TestIpcpSpecializesUniformConstant(t *testing.T) {
	mod := buildScaleModule()
	p := &Ipcp{}
	require.True(t, p.Run(mod))
	assert.Equal(t, 1, p.LastStats().(*IpoStats).Specialized)

	// The callee's multiply now reads a materialized constant, not the
	// parameter.
	scale := mod.Function("scale")
	entry := scale.Entry()
	first := entry.Instructions()[0]
	c, ok := first.Inst.(*mir.ConstIntInst)
	require.True(t, ok)
	assert.EqualValues(t, 3, c.Value)
	require.Empty(t, mir.Verify(scale))

	// Idempotence: the parameter has no remaining uses to specialize
	// differently; a second run still sees uniform constants but the
	// substitution is already in place.
	assert.True(t, scale.HasAttribute("specialized.k=3"))
}

func TestIpcpSkipsMixedConstants(t *testing.T) {
	mod := buildScaleModule()
	// Disturb one call site to pass 5 instead of 3.
	c2 := mod.Function("c2")
	for _, b := range c2.Blocks() {
		for _, rec := range b.Instructions() {
			if ci, ok := rec.Inst.(*mir.ConstIntInst); ok {
				ci.Value = 5
			}
		}
	}
	p := &Ipcp{}
	assert.False(t, p.Run(mod))
}

func TestArgPromotionSmallPointerParam(t *testing.T) {
	mod := mir.NewModule("test")
	i64 := types.I64()
	ptrT := types.Pointer(i64, false)

	callee := newFb("reader", i64)
	p := callee.fn.BindParam("p", ptrT)
	v := callee.emit(&mir.LoadInst{Ptr: p.Value}, i64)
	callee.ret(v)
	mod.AddFunction(callee.fn)

	caller := newFb("caller", i64)
	slot := caller.emit(&mir.AllocaInst{AllocType: i64, Name: "x"}, types.Pointer(i64, true))
	ten := caller.constInt(10, i64)
	caller.emitVoid(&mir.StoreInst{Ptr: slot, Val: ten})
	r := caller.emit(&mir.CallInst{FuncName: "reader", Args: []mir.Value{slot}}, i64)
	caller.ret(r)
	mod.AddFunction(caller.fn)

	promo := &ArgPromotion{}
	require.True(t, promo.Run(mod))
	assert.Equal(t, 1, promo.LastStats().(*IpoStats).Promoted)

	// The parameter is by-value now; the body load is gone.
	assert.Equal(t, types.KindI64, callee.fn.Params[0].Type.Kind())
	assert.Zero(t, countInsts(callee.fn, func(inst mir.Instruction) bool {
		_, ok := inst.(*mir.LoadInst)
		return ok
	}))
	// The call site loads the pointee and passes the value.
	assert.Equal(t, 2, countInsts(caller.fn, func(inst mir.Instruction) bool {
		_, ok := inst.(*mir.StoreInst)
		return ok
	})+countInsts(caller.fn, func(inst mir.Instruction) bool {
		_, ok := inst.(*mir.LoadInst)
		return ok
	}))
	require.Empty(t, mir.Verify(callee.fn))
	require.Empty(t, mir.Verify(caller.fn))
}

func TestAttrInference(t *testing.T) {
	mod := mir.NewModule("test")
	i64 := types.I64()

	pure := newFb("square", i64)
	x := pure.fn.BindParam("x", i64)
	sq := pure.emit(&mir.BinaryInst{Op: mir.OpMul, L: x.Value, R: x.Value}, i64)
	pure.ret(sq)
	mod.AddFunction(pure.fn)

	writer := newFb("bump", types.Unit())
	ptr := writer.fn.BindParam("p", types.Pointer(i64, true))
	one := writer.constInt(1, i64)
	writer.emitVoid(&mir.StoreInst{Ptr: ptr.Value, Val: one})
	writer.cur.SetTerminator(&mir.ReturnTerm{})
	mod.AddFunction(writer.fn)

	panicky := newFb("check", types.Unit())
	panicky.emitVoid(&mir.CallInst{FuncName: "panic"})
	panicky.cur.SetTerminator(&mir.ReturnTerm{})
	mod.AddFunction(panicky.fn)

	require.True(t, (&AttrInference{}).Run(mod))

	assert.True(t, pure.fn.HasAttribute("pure"))
	assert.True(t, pure.fn.HasAttribute("readonly"))
	assert.True(t, pure.fn.HasAttribute("nothrow"))
	assert.True(t, pure.fn.HasAttribute("willreturn"))
	assert.True(t, pure.fn.HasAttribute("speculatable"))

	assert.False(t, writer.fn.HasAttribute("readonly"))
	assert.False(t, writer.fn.HasAttribute("pure"))
	assert.True(t, writer.fn.HasAttribute("nothrow"))

	assert.False(t, panicky.fn.HasAttribute("nothrow"))
}

func TestAttrInferenceRecursionConservative(t *testing.T) {
	mod := mir.NewModule("test")
	i64 := types.I64()
	rec := newFb("loopy", i64)
	r := rec.emit(&mir.CallInst{FuncName: "loopy"}, i64)
	rec.ret(r)
	mod.AddFunction(rec.fn)

	(&AttrInference{}).Run(mod)
	assert.False(t, rec.fn.HasAttribute("norecurse"))
	assert.False(t, rec.fn.HasAttribute("willreturn"))
}
