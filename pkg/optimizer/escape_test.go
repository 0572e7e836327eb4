package optimizer

import (
	"testing"

	"github.com/lumen-lang/lumenc/pkg/mir"
	"github.com/lumen-lang/lumenc/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildAllocFn constructs:
//
//	%p = call Point_new()        ; 16-byte struct behind a pointer
//	%f = gep %p, [0]
//	store 42, %f
//	%v = load %f
//	ret %v   (or: ret %p when returnPtr)
func buildAllocFn(returnPtr bool) (*mir.Function, *mir.Module) {
	mod := mir.NewModule("test")
	i64 := types.I64()
	pointT := types.Struct("Point")
	mod.AddStruct("Point", &mir.StructDef{Name: "Point", Fields: []mir.FieldDef{
		{Name: "x", Type: i64}, {Name: "y", Type: i64},
	}})

	ret := i64
	if returnPtr {
		ret = types.Pointer(pointT, true)
	}
	b := newFb("use_point", ret)
	p := b.emit(&mir.CallInst{FuncName: "Point_new"}, types.Pointer(pointT, true))
	zero := b.constInt(0, i64)
	f := b.emit(&mir.GetElementPtrInst{Base: p, Indices: []mir.Value{zero}}, types.Pointer(i64, true))
	v42 := b.constInt(42, i64)
	b.emitVoid(&mir.StoreInst{Ptr: f, Val: v42})
	v := b.emit(&mir.LoadInst{Ptr: f}, i64)
	if returnPtr {
		b.ret(p)
	} else {
		b.ret(v)
	}
	mod.AddFunction(b.fn)
	return b.fn, mod
}

func TestEscapeAnalysisNoEscape(t *testing.T) {
	fn, mod := buildAllocFn(false)
	res := AnalyzeEscapes(fn, mod)
	require.Len(t, res.States, 1)
	for _, state := range res.States {
		assert.Equal(t, NoEscape, state)
	}
}

func TestEscapeAnalysisReturnEscape(t *testing.T) {
	fn, mod := buildAllocFn(true)
	res := AnalyzeEscapes(fn, mod)
	require.Len(t, res.States, 1)
	for _, state := range res.States {
		assert.Equal(t, ReturnEscape, state)
	}
}

func TestStackPromotionRewritesAllocation(t *testing.T) {
	fn, mod := buildAllocFn(false)
	p := &StackPromotion{}
	require.True(t, p.Run(fn, mod))

	isAllocCall := func(inst mir.Instruction) bool {
		call, ok := inst.(*mir.CallInst)
		return ok && isHeapAlloc(call.FuncName)
	}
	isAlloca := func(inst mir.Instruction) bool {
		_, ok := inst.(*mir.AllocaInst)
		return ok
	}
	assert.Zero(t, countInsts(fn, isAllocCall), "no allocation call may remain")
	assert.Equal(t, 1, countInsts(fn, isAlloca), "an alloca of the promoted layout is present")
	require.Empty(t, mir.Verify(fn))

	// Idempotence: a second run reports no change.
	assert.False(t, (&StackPromotion{}).Run(fn, mod))
}

func TestStackPromotionSkipsEscaping(t *testing.T) {
	fn, mod := buildAllocFn(true)
	assert.False(t, (&StackPromotion{}).Run(fn, mod))
	assert.Equal(t, 1, countInsts(fn, func(inst mir.Instruction) bool {
		call, ok := inst.(*mir.CallInst)
		return ok && isHeapAlloc(call.FuncName)
	}))
}

func TestEscapeArgEscapeUnlessPure(t *testing.T) {
	mod := mir.NewModule("test")
	pointT := types.Struct("Point")

	pure := mir.NewFunction("inspect", types.I64())
	pure.AddAttribute("pure")
	pure.NewBlock("entry").SetTerminator(&mir.ReturnTerm{})
	mod.AddFunction(pure)

	b := newFb("caller", types.Unit())
	p := b.emit(&mir.CallInst{FuncName: "Point_new"}, types.Pointer(pointT, true))
	b.emit(&mir.CallInst{FuncName: "inspect", Args: []mir.Value{p}}, types.I64())
	b.cur.SetTerminator(&mir.ReturnTerm{})
	mod.AddFunction(b.fn)

	res := AnalyzeEscapes(b.fn, mod)
	assert.Equal(t, NoEscape, res.StateOf(p.ID()), "args to pure callees do not escape")

	// The same call to an unknown callee escapes.
	b2 := newFb("caller2", types.Unit())
	p2 := b2.emit(&mir.CallInst{FuncName: "Point_new"}, types.Pointer(pointT, true))
	b2.emit(&mir.CallInst{FuncName: "opaque", Args: []mir.Value{p2}}, types.I64())
	b2.cur.SetTerminator(&mir.ReturnTerm{})
	mod.AddFunction(b2.fn)
	res2 := AnalyzeEscapes(b2.fn, mod)
	assert.Equal(t, ArgEscape, res2.StateOf(p2.ID()))
}
