package optimizer

import (
	"github.com/lumen-lang/lumenc/pkg/mir"
	"github.com/lumen-lang/lumenc/pkg/types"
)

// fb is a minimal function-construction helper for pass tests: it tracks a
// current block and allocates result values, mirroring how the real builder
// drives the IR model.
type fb struct {
	fn  *mir.Function
	cur *mir.BasicBlock
}

func newFb(name string, ret *types.Type) *fb {
	fn := mir.NewFunction(name, ret)
	return &fb{fn: fn, cur: fn.NewBlock("entry")}
}

func (b *fb) block(name string) *mir.BasicBlock {
	blk := b.fn.NewBlock(name)
	b.cur = blk
	return blk
}

func (b *fb) at(blk *mir.BasicBlock) { b.cur = blk }

func (b *fb) emit(inst mir.Instruction, t *types.Type) mir.Value {
	res := mir.InvalidValue
	if t != nil && t.Kind() != types.KindUnit {
		res = mir.NewValue(b.fn.NewValueID(), t)
	}
	b.cur.Append(mir.InstructionRecord{Inst: inst, Result: res, Type: t})
	return res
}

func (b *fb) emitVoid(inst mir.Instruction) {
	b.cur.Append(mir.InstructionRecord{Inst: inst})
}

func (b *fb) constInt(v int64, t *types.Type) mir.Value {
	return b.emit(&mir.ConstIntInst{Value: v, Bits: t.BitWidth(), Signed: t.IsSigned()}, t)
}

func (b *fb) ret(v mir.Value) {
	b.cur.SetTerminator(&mir.ReturnTerm{Value: v})
}

func (b *fb) br(target *mir.BasicBlock) {
	b.cur.SetTerminator(&mir.BranchTerm{Target: target.ID})
}

func (b *fb) condBr(cond mir.Value, t, f *mir.BasicBlock) {
	b.cur.SetTerminator(&mir.CondBranchTerm{Cond: cond, TrueBlk: t.ID, FalseBlk: f.ID})
}

// countInsts counts instructions matching pred across the function.
func countInsts(fn *mir.Function, pred func(mir.Instruction) bool) int {
	n := 0
	for _, b := range fn.Blocks() {
		for _, rec := range b.Instructions() {
			if pred(rec.Inst) {
				n++
			}
		}
	}
	return n
}

// sumLoop builds the canonical counted loop
//
//	for i in start..end { acc += arr[i] }
//
// over an i64 array parameter-like alloca'd array, returning the function.
// Used by the BCE, loop, and vectorize tests.
func sumLoop(start, end int64, arrSize int64) (*mir.Function, *mir.Module) {
	mod := mir.NewModule("test")
	i64 := types.I64()
	arrT := types.Array(i64, arrSize)

	b := newFb("sum", i64)
	fn := b.fn
	arr := fn.BindParam("arr", arrT)

	entry := b.cur
	header := fn.NewBlock("header")
	latch := fn.NewBlock("latch")
	exit := fn.NewBlock("exit")

	startC := b.constInt(start, i64)
	zeroC := b.constInt(0, i64)
	b.br(header)

	// header: i = phi(start, i'); acc = phi(0, acc'); if i < end
	b.at(header)
	iPhi := mir.NewValue(fn.NewValueID(), i64)
	accPhi := mir.NewValue(fn.NewValueID(), i64)
	endC := b.constInt(end, i64)
	cond := b.emit(&mir.BinaryInst{Op: mir.OpLt, L: iPhi, R: endC}, types.Bool())
	b.condBr(cond, latch, exit)

	// latch: load arr[i]; acc' = acc + load; i' = i + 1
	b.at(latch)
	gep := b.emit(&mir.GetElementPtrInst{
		Base: arr.Value, Indices: []mir.Value{iPhi}, Bounds: mir.BoundsInfo{Checked: true},
	}, types.Pointer(i64, false))
	load := b.emit(&mir.LoadInst{Ptr: gep}, i64)
	accNext := b.emit(&mir.BinaryInst{Op: mir.OpAdd, L: accPhi, R: load}, i64)
	oneC := b.constInt(1, i64)
	iNext := b.emit(&mir.BinaryInst{Op: mir.OpAdd, L: iPhi, R: oneC}, i64)
	b.br(header)

	b.at(exit)
	b.ret(accPhi)

	// Patch the header phis now that both edges exist.
	headerInsts := []mir.InstructionRecord{
		{Inst: &mir.PhiInst{Incoming: []mir.PhiIncoming{
			{Value: startC, Block: entry.ID}, {Value: iNext, Block: latch.ID},
		}}, Result: iPhi, Type: i64},
		{Inst: &mir.PhiInst{Incoming: []mir.PhiIncoming{
			{Value: zeroC, Block: entry.ID}, {Value: accNext, Block: latch.ID},
		}}, Result: accPhi, Type: i64},
	}
	header.SetInstructions(append(headerInsts, header.Instructions()...))

	mod.AddFunction(fn)
	return fn, mod
}
