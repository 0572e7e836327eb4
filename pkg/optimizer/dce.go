package optimizer

import "github.com/lumen-lang/lumenc/pkg/mir"

// DCE removes unreachable blocks and side-effect-free instructions whose
// result is never used. Unreachable-block removal walks successors from
// the entry;
// instruction-level DCE first collects every value used anywhere in the
// function, then drops each side-effect-free instruction whose result is
// not in that set. The use set is not recomputed within a run, so an
// instruction whose only user is removed in the same run stays until the
// next run.
type DCE struct {
	removedBlocks int
	removedInsts  int
}

func (p *DCE) Name() string { return "dce" }

func (p *DCE) Run(fn *mir.Function, mod *mir.Module) bool {
	p.removedBlocks, p.removedInsts = 0, 0
	changed := p.pruneUnreachable(fn)
	changed = p.pruneDeadInsts(fn) || changed
	return changed
}

func (p *DCE) pruneUnreachable(fn *mir.Function) bool {
	rpo := fn.ReversePostOrder()
	if len(rpo) == len(fn.Blocks()) {
		return false
	}
	reachable := make(map[mir.BlockID]bool, len(rpo))
	for _, id := range rpo {
		reachable[id] = true
	}
	kept := make([]*mir.BasicBlock, 0, len(rpo))
	for _, b := range fn.Blocks() {
		if reachable[b.ID] {
			kept = append(kept, b)
		} else {
			p.removedBlocks++
		}
	}
	fn.SetBlocks(kept)
	return p.removedBlocks > 0
}

// hasSideEffect reports whether inst must be kept even with an unused
// result (or no result at all): calls, stores, atomics, and await all have
// observable effects beyond their SSA result.
func hasSideEffect(inst mir.Instruction) bool {
	switch inst.(type) {
	case *mir.CallInst, *mir.MethodCallInst, *mir.StoreInst,
		*mir.AtomicStoreInst, *mir.AtomicRMWInst, *mir.CmpXchgInst,
		*mir.FenceInst, *mir.AwaitInst, *mir.ClosureInitInst:
		return true
	}
	return false
}

func (p *DCE) pruneDeadInsts(fn *mir.Function) bool {
	used := map[uint32]bool{}
	for _, b := range fn.Blocks() {
		for _, rec := range b.Instructions() {
			for _, v := range instOperands(rec.Inst) {
				if v.Valid() {
					used[v.ID()] = true
				}
			}
		}
		for _, v := range termOperands(b.Terminator()) {
			if v.Valid() {
				used[v.ID()] = true
			}
		}
	}

	changed := false
	for _, b := range fn.Blocks() {
		insts := b.Instructions()
		kept := insts[:0]
		for _, rec := range insts {
			if rec.Result.Valid() && !used[rec.Result.ID()] && !hasSideEffect(rec.Inst) {
				p.removedInsts++
				changed = true
				continue
			}
			kept = append(kept, rec)
		}
		b.SetInstructions(kept)
	}
	return changed
}

func instOperands(inst mir.Instruction) []mir.Value {
	switch i := inst.(type) {
	case *mir.BinaryInst:
		return []mir.Value{i.L, i.R}
	case *mir.UnaryInst:
		return []mir.Value{i.Operand}
	case *mir.LoadInst:
		return []mir.Value{i.Ptr}
	case *mir.StoreInst:
		return []mir.Value{i.Ptr, i.Val}
	case *mir.GetElementPtrInst:
		return append([]mir.Value{i.Base}, i.Indices...)
	case *mir.ExtractValueInst:
		return []mir.Value{i.Agg}
	case *mir.InsertValueInst:
		return []mir.Value{i.Agg, i.Val}
	case *mir.StructInitInst:
		return i.Fields
	case *mir.TupleInitInst:
		return i.Elems
	case *mir.ArrayInitInst:
		return i.Elems
	case *mir.EnumInitInst:
		return i.Payload
	case *mir.CallInst:
		if i.FuncName == "" {
			return append([]mir.Value{i.Callee}, i.Args...)
		}
		return i.Args
	case *mir.MethodCallInst:
		return append([]mir.Value{i.Receiver}, i.Args...)
	case *mir.SelectInst:
		return []mir.Value{i.Cond, i.True, i.False}
	case *mir.CastInst:
		return []mir.Value{i.Operand}
	case *mir.PhiInst:
		vals := make([]mir.Value, len(i.Incoming))
		for j, in := range i.Incoming {
			vals[j] = in.Value
		}
		return vals
	case *mir.AtomicLoadInst:
		return []mir.Value{i.Ptr}
	case *mir.AtomicStoreInst:
		return []mir.Value{i.Ptr, i.Val}
	case *mir.AtomicRMWInst:
		return []mir.Value{i.Ptr, i.Val}
	case *mir.CmpXchgInst:
		return []mir.Value{i.Ptr, i.Expected, i.New}
	case *mir.AwaitInst:
		return []mir.Value{i.PollValue}
	case *mir.ClosureInitInst:
		return i.Captures
	default:
		return nil
	}
}

func termOperands(t mir.Terminator) []mir.Value {
	switch v := t.(type) {
	case *mir.ReturnTerm:
		return []mir.Value{v.Value}
	case *mir.CondBranchTerm:
		return []mir.Value{v.Cond}
	case *mir.SwitchTerm:
		return []mir.Value{v.Disc}
	default:
		return nil
	}
}
