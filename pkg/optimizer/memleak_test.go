package optimizer

import (
	"testing"

	"github.com/lumen-lang/lumenc/pkg/diag"
	"github.com/lumen-lang/lumenc/pkg/mir"
	"github.com/lumen-lang/lumenc/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leakFn(fix func(b *fb, p mir.Value)) (*mir.Function, *mir.Module) {
	mod := mir.NewModule("test")
	b := newFb("leaky", types.Unit())
	size := b.constInt(64, types.U64())
	p := b.emit(&mir.CallInst{FuncName: "alloc", Args: []mir.Value{size}}, types.PtrPrim())
	if fix != nil {
		fix(b, p)
	}
	b.cur.SetTerminator(&mir.ReturnTerm{})
	mod.AddFunction(b.fn)
	return b.fn, mod
}

func TestMemLeakDetected(t *testing.T) {
	fn, mod := leakFn(nil)
	p := &MemLeakCheck{}
	p.Run(fn, mod)
	require.True(t, p.HasErrors())
	ds := p.Diagnostics()
	require.Len(t, ds, 1, "exactly one diagnostic per unreached allocation")
	assert.Equal(t, diag.SeverityError, ds[0].Severity)
	assert.Equal(t, "leaky", ds[0].Function)
	assert.Equal(t, "entry", ds[0].Block)
	assert.Contains(t, ds[0].Message, "alloc")
}

func TestMemLeakFreedIsClean(t *testing.T) {
	fn, mod := leakFn(func(b *fb, p mir.Value) {
		b.emitVoid(&mir.CallInst{FuncName: "free", Args: []mir.Value{p}})
	})
	chk := &MemLeakCheck{}
	chk.Run(fn, mod)
	assert.False(t, chk.HasErrors())
}

func TestMemLeakReturnedIsClean(t *testing.T) {
	mod := mir.NewModule("test")
	b := newFb("producer", types.PtrPrim())
	size := b.constInt(64, types.U64())
	p := b.emit(&mir.CallInst{FuncName: "alloc", Args: []mir.Value{size}}, types.PtrPrim())
	b.ret(p)
	mod.AddFunction(b.fn)

	chk := &MemLeakCheck{}
	chk.Run(b.fn, mod)
	assert.False(t, chk.HasErrors())
}

func TestMemLeakConsumedIsClean(t *testing.T) {
	fn, mod := leakFn(func(b *fb, p mir.Value) {
		b.emitVoid(&mir.CallInst{FuncName: "list_push", Args: []mir.Value{p}})
	})
	chk := &MemLeakCheck{}
	chk.Run(fn, mod)
	assert.False(t, chk.HasErrors())
}

func TestMemLeakStoredIsClean(t *testing.T) {
	fn, mod := leakFn(func(b *fb, p mir.Value) {
		slot := b.emit(&mir.AllocaInst{AllocType: types.PtrPrim(), Name: "slot"}, types.Pointer(types.PtrPrim(), true))
		b.emitVoid(&mir.StoreInst{Ptr: slot, Val: p})
	})
	chk := &MemLeakCheck{}
	chk.Run(fn, mod)
	assert.False(t, chk.HasErrors())
}

func TestMemLeakArenaExcluded(t *testing.T) {
	mod := mir.NewModule("test")
	b := newFb("scratch", types.Unit())
	size := b.constInt(64, types.U64())
	b.emit(&mir.CallInst{FuncName: "arena_alloc", Args: []mir.Value{size}}, types.PtrPrim())
	b.cur.SetTerminator(&mir.ReturnTerm{})
	mod.AddFunction(b.fn)

	chk := &MemLeakCheck{}
	chk.Run(b.fn, mod)
	assert.False(t, chk.HasErrors(), "arena-scoped allocations are reclaimed in bulk")
}

func TestMemLeakAliasThroughCast(t *testing.T) {
	// Freeing through a cast alias still counts.
	fn, mod := leakFn(func(b *fb, p mir.Value) {
		cast := b.emit(&mir.CastInst{Kind: mir.CastBitcast, Operand: p, Target: types.PtrPrim()}, types.PtrPrim())
		b.emitVoid(&mir.CallInst{FuncName: "free", Args: []mir.Value{cast}})
	})
	chk := &MemLeakCheck{}
	chk.Run(fn, mod)
	assert.False(t, chk.HasErrors())
}

func TestInfiniteLoopDetected(t *testing.T) {
	mod := mir.NewModule("test")
	b := newFb("spin", types.Unit())
	loop := b.fn.NewBlock("loop")
	b.br(loop)
	b.at(loop)
	b.br(loop)
	mod.AddFunction(b.fn)

	chk := &InfLoopCheck{}
	chk.Run(b.fn, mod)
	require.True(t, chk.HasErrors())
	assert.Contains(t, chk.Diagnostics()[0].Message, "infinite loop")
	assert.Equal(t, "spin", chk.Diagnostics()[0].Function)
}

func TestLoopWithExitNotFlagged(t *testing.T) {
	fn, mod := sumLoop(0, 8, 8)
	chk := &InfLoopCheck{}
	chk.Run(fn, mod)
	assert.False(t, chk.HasErrors())
}
