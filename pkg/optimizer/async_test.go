package optimizer

import (
	"testing"

	"github.com/lumen-lang/lumenc/pkg/mir"
	"github.com/lumen-lang/lumenc/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTwoAwaitFn is the canonical two-suspension async body:
//
//	a = await fa()
//	b = await fb()
//	return a + b
func buildTwoAwaitFn() (*mir.Function, *mir.Module) {
	mod := mir.NewModule("test")
	i64 := types.I64()
	pollT := types.Enum("Poll", i64)

	b := newFb("add_async", i64)
	b.fn.Flags.IsAsync = true

	fa := b.emit(&mir.CallInst{FuncName: "fa"}, pollT)
	a := b.emit(&mir.AwaitInst{PollValue: fa, SuspensionID: 0}, i64)
	fb_ := b.emit(&mir.CallInst{FuncName: "fb"}, pollT)
	bv := b.emit(&mir.AwaitInst{PollValue: fb_, SuspensionID: 1}, i64)
	sum := b.emit(&mir.BinaryInst{Op: mir.OpAdd, L: a, R: bv}, i64)
	b.ret(sum)

	mod.AddFunction(b.fn)
	return b.fn, mod
}

func TestAsyncLoweringShape(t *testing.T) {
	fn, mod := buildTwoAwaitFn()
	p := &AsyncLowering{}
	require.True(t, p.Run(fn, mod))

	// The poll function takes the state pointer first and returns Poll[T].
	require.NotEmpty(t, fn.Params)
	assert.Equal(t, "state", fn.Params[0].Name)
	assert.Equal(t, types.KindPointer, fn.Params[0].Type.Kind())
	assert.Equal(t, types.KindEnum, fn.ReturnType.Kind())
	assert.Equal(t, "Poll", fn.ReturnType.Name())
	require.NotNil(t, fn.OriginalReturnType)
	assert.Equal(t, types.KindI64, fn.OriginalReturnType.Kind())
	assert.True(t, fn.HasAttribute("poll"))

	// No Await instruction survives lowering.
	assert.Zero(t, countInsts(fn, func(inst mir.Instruction) bool {
		_, ok := inst.(*mir.AwaitInst)
		return ok
	}))

	// The entry dispatches over the state discriminant: state 0 plus one
	// case per suspension point.
	entry := fn.Entry()
	sw, ok := entry.Terminator().(*mir.SwitchTerm)
	require.True(t, ok, "poll entry ends in a state switch")
	assert.Len(t, sw.Cases, 3)

	// The synthesized state struct carries the state field plus saved
	// values.
	def := mod.Structs[types.Mangle(types.Struct("add_async.state"))]
	require.NotNil(t, def)
	require.NotEmpty(t, def.Fields)
	assert.Equal(t, "state", def.Fields[0].Name)
	assert.Greater(t, len(def.Fields), 1, "live values are saved in the state struct")

	// The Poll enum is registered with Pending and Ready variants.
	pollDef := mod.Enums[types.Mangle(types.Enum("Poll", types.I64()))]
	require.NotNil(t, pollDef)
	require.Len(t, pollDef.Variants, 2)
	assert.Equal(t, "Pending", pollDef.Variants[0].Name)
	assert.Equal(t, "Ready", pollDef.Variants[1].Name)

	// Idempotence: an already-lowered poll function is left alone.
	assert.False(t, (&AsyncLowering{}).Run(fn, mod))

	stats := p.LastStats().(*AsyncStats)
	assert.Equal(t, 1, stats.Lowered)
	assert.Equal(t, 2, stats.Awaits)
}

func TestAsyncLoweringPendingPathsReturnEarly(t *testing.T) {
	fn, mod := buildTwoAwaitFn()
	require.True(t, (&AsyncLowering{}).Run(fn, mod))

	// Every pending block returns an EnumInit of the Pending variant; a
	// poll blocked at the first await therefore never reaches the second
	// await's resume path.
	pendingReturns := 0
	for _, b := range fn.Blocks() {
		ret, ok := b.Terminator().(*mir.ReturnTerm)
		if !ok || !ret.Value.Valid() {
			continue
		}
		for _, rec := range b.Instructions() {
			if ei, ok := rec.Inst.(*mir.EnumInitInst); ok &&
				rec.Result.Equal(ret.Value) && ei.VariantIndex == pollPending {
				pendingReturns++
			}
		}
	}
	assert.Equal(t, 2, pendingReturns, "one pending exit per suspension point")
}

func TestAsyncLoweringSkipsSyncFunctions(t *testing.T) {
	mod := mir.NewModule("test")
	b := newFb("plain", types.I64())
	v := b.constInt(1, types.I64())
	b.ret(v)
	mod.AddFunction(b.fn)
	assert.False(t, (&AsyncLowering{}).Run(b.fn, mod))
}
