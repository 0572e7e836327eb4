package optimizer

import (
	"fmt"

	"github.com/lumen-lang/lumenc/pkg/mir"
	"github.com/lumen-lang/lumenc/pkg/pass"
)

// Inlining thresholds, in callee instruction count. Aggressive is the O3
// setting; profile-hot call sites get the aggressive budget even at O2.
const (
	InlineThresholdSimple     = 12
	InlineThresholdAggressive = 48
)

// InlineStats reports inlining activity.
type InlineStats struct {
	Inlined int
}

func (s *InlineStats) Summary() string {
	return fmt.Sprintf("inlined %d call site(s)", s.Inlined)
}

// Inliner replaces direct calls to small functions with the callee's body,
// remapping values and joining the callee's returns at a continuation block.
// Async functions, sret-converted functions, and recursive callees are never
// inlined.
type Inliner struct {
	Aggressive bool
	Profile    *Profile
	stats      InlineStats
}

func (p *Inliner) Name() string          { return "inline" }
func (p *Inliner) LastStats() pass.Stats { return &p.stats }

func (p *Inliner) Run(mod *mir.Module) bool {
	p.stats = InlineStats{}
	changed := false
	for _, fn := range mod.Functions {
		if p.inlineInto(fn, mod) {
			changed = true
		}
	}
	return changed
}

func (p *Inliner) threshold(callee string) int {
	if p.Aggressive {
		return InlineThresholdAggressive
	}
	if p.Profile != nil && p.Profile.IsHot(callee) {
		return InlineThresholdAggressive
	}
	return InlineThresholdSimple
}

func (p *Inliner) inlineInto(caller *mir.Function, mod *mir.Module) bool {
	changed := false
	// Snapshot the block list: inlining appends blocks, and newly inlined
	// bodies are not re-scanned in the same run (the fixed-point rerun
	// handles transitive inlining).
	blocks := append([]*mir.BasicBlock(nil), caller.Blocks()...)
	for _, b := range blocks {
		for i := 0; i < len(b.Instructions()); i++ {
			rec := b.Instructions()[i]
			call, ok := rec.Inst.(*mir.CallInst)
			if !ok || call.FuncName == "" || call.FuncName == caller.Name {
				continue
			}
			callee := mod.Function(call.FuncName)
			if callee == nil || !inlinable(callee) {
				continue
			}
			if instructionCount(callee) > p.threshold(callee.Name) {
				continue
			}
			p.inlineCall(caller, b, i, rec, call, callee)
			p.stats.Inlined++
			changed = true
			// The containing block was split; move on to the next block.
			break
		}
	}
	if changed {
		caller.Touch()
	}
	return changed
}

func inlinable(callee *mir.Function) bool {
	if callee.Flags.IsAsync || callee.Flags.UsesSret || isRecursive(callee) {
		return false
	}
	if len(callee.Blocks()) == 0 {
		return false
	}
	for _, b := range callee.Blocks() {
		if !b.Sealed() {
			return false
		}
	}
	return true
}

func instructionCount(fn *mir.Function) int {
	n := 0
	for _, b := range fn.Blocks() {
		n += len(b.Instructions())
	}
	return n
}

// inlineCall splits b at instruction index i, clones the callee between the
// halves, and joins returned values with a phi in the continuation block.
func (p *Inliner) inlineCall(caller *mir.Function, b *mir.BasicBlock, i int, rec mir.InstructionRecord, call *mir.CallInst, callee *mir.Function) {
	insts := b.Instructions()
	before := append([]mir.InstructionRecord(nil), insts[:i]...)
	after := append([]mir.InstructionRecord(nil), insts[i+1:]...)
	origTerm := b.Terminator()

	// Value remap: callee params -> call args, callee locals -> fresh ids.
	remap := map[uint32]mir.Value{}
	for pi, param := range callee.Params {
		if pi < len(call.Args) {
			remap[param.Value.ID()] = call.Args[pi]
		}
	}
	mapVal := func(v mir.Value) mir.Value {
		if !v.Valid() {
			return v
		}
		if nv, ok := remap[v.ID()]; ok {
			return nv
		}
		return v
	}

	// Block remap: one fresh block per callee block.
	blockMap := map[mir.BlockID]*mir.BasicBlock{}
	for _, cb := range callee.Blocks() {
		blockMap[cb.ID] = caller.NewBlock(fmt.Sprintf("inl.%s.%s", callee.Name, cb.Name))
	}
	cont := caller.NewBlock(fmt.Sprintf("inl.%s.cont", callee.Name))

	// First pass allocates fresh result ids so forward references resolve.
	for _, cb := range callee.Blocks() {
		for _, crec := range cb.Instructions() {
			if crec.Result.Valid() {
				remap[crec.Result.ID()] = mir.NewValue(caller.NewValueID(), crec.Result.Type())
			}
		}
	}

	var retIncoming []mir.PhiIncoming
	for _, cb := range callee.Blocks() {
		nb := blockMap[cb.ID]
		for _, crec := range cb.Instructions() {
			cloned := cloneInst(crec.Inst)
			rewriteOperands(cloned, mapVal)
			remapPhiBlocks(cloned, blockMap)
			nb.Append(mir.InstructionRecord{
				Inst:   cloned,
				Result: mapVal(crec.Result),
				Type:   crec.Type,
				Span:   crec.Span,
			})
		}
		switch t := cb.Terminator().(type) {
		case *mir.ReturnTerm:
			if t.Value.Valid() {
				retIncoming = append(retIncoming, mir.PhiIncoming{Value: mapVal(t.Value), Block: nb.ID})
			}
			nb.SetTerminator(&mir.BranchTerm{Target: cont.ID})
		case *mir.BranchTerm:
			nb.SetTerminator(&mir.BranchTerm{Target: blockMap[t.Target].ID})
		case *mir.CondBranchTerm:
			nb.SetTerminator(&mir.CondBranchTerm{
				Cond: mapVal(t.Cond), TrueBlk: blockMap[t.TrueBlk].ID, FalseBlk: blockMap[t.FalseBlk].ID,
			})
		case *mir.SwitchTerm:
			cases := make([]mir.SwitchCase, len(t.Cases))
			for ci, c := range t.Cases {
				cases[ci] = mir.SwitchCase{Value: c.Value, Block: blockMap[c.Block].ID}
			}
			nb.SetTerminator(&mir.SwitchTerm{Disc: mapVal(t.Disc), Cases: cases, Default: blockMap[t.Default].ID})
		case *mir.UnreachableTerm:
			nb.SetTerminator(&mir.UnreachableTerm{})
		}
	}

	// Continuation: the original call result becomes a phi over the inlined
	// returns (or a direct alias when there is a single return site).
	if rec.Result.Valid() && len(retIncoming) > 0 {
		if len(retIncoming) == 1 {
			replaceUses(caller, rec.Result, retIncoming[0].Value)
			replaceTermUses(origTerm, rec.Result, retIncoming[0].Value)
			rewriteRecs(after, rec.Result, retIncoming[0].Value)
		} else {
			cont.Append(mir.InstructionRecord{
				Inst:   &mir.PhiInst{Incoming: retIncoming},
				Result: rec.Result,
				Type:   rec.Type,
			})
		}
	}
	for _, arec := range after {
		cont.Append(arec)
	}
	cont.SetTerminator(origTerm)

	b.SetInstructions(before)
	b.ReplaceTerminator(&mir.BranchTerm{Target: blockMap[callee.Entry().ID].ID})
}

func replaceTermUses(t mir.Terminator, old, new mir.Value) {
	rewriteTermOperands(t, func(v mir.Value) mir.Value {
		if v.ID() == old.ID() {
			return new
		}
		return v
	})
}

func rewriteRecs(recs []mir.InstructionRecord, old, new mir.Value) {
	for _, r := range recs {
		rewriteOperands(r.Inst, func(v mir.Value) mir.Value {
			if v.ID() == old.ID() {
				return new
			}
			return v
		})
	}
}

// remapPhiBlocks rewrites a cloned phi's incoming block ids into the inlined
// copies.
func remapPhiBlocks(inst mir.Instruction, blockMap map[mir.BlockID]*mir.BasicBlock) {
	phi, ok := inst.(*mir.PhiInst)
	if !ok {
		return
	}
	for i := range phi.Incoming {
		if nb, ok := blockMap[phi.Incoming[i].Block]; ok {
			phi.Incoming[i].Block = nb.ID
		}
	}
}

// cloneInst deep-copies an instruction so the inlined copy can be rewritten
// without mutating the callee.
func cloneInst(inst mir.Instruction) mir.Instruction {
	switch i := inst.(type) {
	case *mir.BinaryInst:
		c := *i
		return &c
	case *mir.UnaryInst:
		c := *i
		return &c
	case *mir.AllocaInst:
		c := *i
		return &c
	case *mir.LoadInst:
		c := *i
		return &c
	case *mir.StoreInst:
		c := *i
		return &c
	case *mir.GetElementPtrInst:
		c := *i
		c.Indices = append([]mir.Value(nil), i.Indices...)
		return &c
	case *mir.ExtractValueInst:
		c := *i
		c.Indices = append([]int(nil), i.Indices...)
		return &c
	case *mir.InsertValueInst:
		c := *i
		c.Indices = append([]int(nil), i.Indices...)
		return &c
	case *mir.StructInitInst:
		c := *i
		c.Fields = append([]mir.Value(nil), i.Fields...)
		return &c
	case *mir.TupleInitInst:
		c := *i
		c.Elems = append([]mir.Value(nil), i.Elems...)
		return &c
	case *mir.ArrayInitInst:
		c := *i
		c.Elems = append([]mir.Value(nil), i.Elems...)
		return &c
	case *mir.EnumInitInst:
		c := *i
		c.Payload = append([]mir.Value(nil), i.Payload...)
		return &c
	case *mir.CallInst:
		c := *i
		c.Args = append([]mir.Value(nil), i.Args...)
		return &c
	case *mir.MethodCallInst:
		c := *i
		c.Args = append([]mir.Value(nil), i.Args...)
		return &c
	case *mir.SelectInst:
		c := *i
		return &c
	case *mir.CastInst:
		c := *i
		return &c
	case *mir.PhiInst:
		c := *i
		c.Incoming = append([]mir.PhiIncoming(nil), i.Incoming...)
		return &c
	case *mir.ConstIntInst:
		c := *i
		return &c
	case *mir.ConstFloatInst:
		c := *i
		return &c
	case *mir.ConstBoolInst:
		c := *i
		return &c
	case *mir.ConstStringInst:
		c := *i
		return &c
	case *mir.ConstUnitInst:
		return &mir.ConstUnitInst{}
	case *mir.AtomicLoadInst:
		c := *i
		return &c
	case *mir.AtomicStoreInst:
		c := *i
		return &c
	case *mir.AtomicRMWInst:
		c := *i
		return &c
	case *mir.CmpXchgInst:
		c := *i
		return &c
	case *mir.FenceInst:
		c := *i
		return &c
	case *mir.AwaitInst:
		c := *i
		return &c
	case *mir.ClosureInitInst:
		c := *i
		c.Captures = append([]mir.Value(nil), i.Captures...)
		return &c
	default:
		return inst
	}
}
