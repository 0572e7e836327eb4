package optimizer

import (
	"fmt"

	"github.com/lumen-lang/lumenc/pkg/mir"
	"github.com/lumen-lang/lumenc/pkg/pass"
)

// VectorWidth is the lane count vectorized loops are widened by. The MIR
// keeps scalar opcodes (the instruction set of §3.3 is closed); a vectorized
// loop becomes a stride-width iteration whose body is an isomorphic lane
// group the LLVM back-end folds into vector registers.
const VectorWidth = 4

// VectorizeStats reports vectorization decisions.
type VectorizeStats struct {
	VectorizedLoops int
	SlpBundles      int
}

func (s *VectorizeStats) Summary() string {
	return fmt.Sprintf("vectorized %d loop(s), formed %d SLP bundle(s)", s.VectorizedLoops, s.SlpBundles)
}

// Vectorize performs loop vectorization over counted loops with lane-safe
// bodies and SLP bundling over straight-line isomorphic stores.
type Vectorize struct {
	stats VectorizeStats
}

func (p *Vectorize) Name() string          { return "vectorize" }
func (p *Vectorize) LastStats() pass.Stats { return &p.stats }

func (p *Vectorize) Run(fn *mir.Function, mod *mir.Module) bool {
	p.stats = VectorizeStats{}
	changed := false
	for _, l := range FindLoops(fn) {
		if p.tryLoopVectorize(fn, l) {
			p.stats.VectorizedLoops++
			changed = true
			break // CFG changed; one loop per run, other loops wait for a later run
		}
	}
	if n := p.findSlpBundles(fn); n > 0 {
		p.stats.SlpBundles = n
		attr := fmt.Sprintf("slp-bundles=%d", n)
		if !fn.HasAttribute(attr) {
			fn.AddAttribute(attr)
			changed = true
		}
	}
	if changed {
		fn.Touch()
	}
	return changed
}

// tryLoopVectorize widens a simple counted loop by VectorWidth: the body is
// cloned per lane with the induction offset by the lane index and
// loop-carried values chained through the lanes, the step becomes the
// width. Only loops whose trip count is an exact multiple of VectorWidth
// are widened; no scalar remainder tail is generated, so other loops stay
// scalar.
func (p *Vectorize) tryLoopVectorize(fn *mir.Function, l *LoopInfo) bool {
	header, latch, ok := simpleLoopShape(fn, l)
	if !ok || !l.StartOK || !l.EndOK || l.Step != 1 {
		return false
	}
	trip := l.EndConst - l.Start
	if trip < VectorWidth {
		return false
	}
	if !laneSafeBody(fn, l, latch) {
		return false
	}
	rem := trip % VectorWidth
	if rem != 0 {
		// A remainder tail would need the original scalar body cloned
		// after the widened loop; only exact multiples are widened here
		// and the tail case is left scalar entirely.
		return false
	}

	defs := functionDefs(fn)
	t := l.Induction.Type()

	// Split the latch into body and step.
	var body []mir.InstructionRecord
	var stepRec mir.InstructionRecord
	for _, rec := range latch.Instructions() {
		if isInductionStep(defs, rec, l) {
			stepRec = rec
			continue
		}
		body = append(body, rec)
	}
	if stepRec.Inst == nil {
		return false
	}

	// Loop-carried phis other than the induction chain across lanes.
	carried := map[uint32]mir.Value{} // phi result -> its latch incoming
	for _, rec := range header.Instructions() {
		phi, ok := rec.Inst.(*mir.PhiInst)
		if !ok || rec.Result.ID() == l.Induction.ID() {
			continue
		}
		for _, in := range phi.Incoming {
			if in.Block == l.Latch {
				carried[rec.Result.ID()] = in.Value
			}
		}
	}

	out := make([]mir.InstructionRecord, 0, len(body)*VectorWidth+VectorWidth+1)
	// Lane 0 keeps the original instructions and ids.
	out = append(out, body...)
	laneCarry := map[uint32]mir.Value{}
	for phiID, next := range carried {
		laneCarry[phiID] = next
	}

	prevInd := l.Induction
	for lane := 1; lane < VectorWidth; lane++ {
		oneC := mir.NewValue(fn.NewValueID(), t)
		laneInd := mir.NewValue(fn.NewValueID(), t)
		out = append(out,
			mir.InstructionRecord{Inst: &mir.ConstIntInst{Value: 1, Bits: t.BitWidth(), Signed: t.IsSigned()}, Result: oneC, Type: t},
			mir.InstructionRecord{Inst: &mir.BinaryInst{Op: mir.OpAdd, L: prevInd, R: oneC}, Result: laneInd, Type: t},
		)
		prevInd = laneInd

		remap := map[uint32]mir.Value{l.Induction.ID(): laneInd}
		for phiID, carry := range laneCarry {
			remap[phiID] = carry
		}
		nextCarry := map[uint32]mir.Value{}
		for _, rec := range body {
			cloned := cloneInst(rec.Inst)
			rewriteOperands(cloned, func(v mir.Value) mir.Value {
				if nv, ok := remap[v.ID()]; ok {
					return nv
				}
				return v
			})
			res := mir.InvalidValue
			if rec.Result.Valid() {
				res = mir.NewValue(fn.NewValueID(), rec.Result.Type())
				remap[rec.Result.ID()] = res
				for phiID, carry := range carried {
					if carry.ID() == rec.Result.ID() {
						nextCarry[phiID] = res
					}
				}
			}
			out = append(out, mir.InstructionRecord{Inst: cloned, Result: res, Type: rec.Type, Span: rec.Span})
		}
		for phiID, nc := range nextCarry {
			laneCarry[phiID] = nc
		}
	}

	// Step by the vector width.
	widthC := mir.NewValue(fn.NewValueID(), t)
	out = append(out,
		mir.InstructionRecord{Inst: &mir.ConstIntInst{Value: VectorWidth, Bits: t.BitWidth(), Signed: t.IsSigned()}, Result: widthC, Type: t},
	)
	step := stepRec.Inst.(*mir.BinaryInst)
	step.R = widthC
	out = append(out, stepRec)
	latch.SetInstructions(out)

	// The last lane's carry feeds the header phi.
	for _, rec := range header.Instructions() {
		phi, ok := rec.Inst.(*mir.PhiInst)
		if !ok {
			continue
		}
		if final, carriedPhi := laneCarry[rec.Result.ID()]; carriedPhi {
			for i := range phi.Incoming {
				if phi.Incoming[i].Block == l.Latch {
					phi.Incoming[i].Value = final
				}
			}
		}
	}
	return true
}

// laneSafeBody gates vectorization: every instruction is a lane-replicable
// kind, every memory access is a GEP addressed by the induction variable,
// and no base is both written and read (write-read crossings between lanes
// would reorder).
func laneSafeBody(fn *mir.Function, l *LoopInfo, latch *mir.BasicBlock) bool {
	defs := functionDefs(fn)
	reads, writes := map[uint32]bool{}, map[uint32]bool{}
	for _, rec := range latch.Instructions() {
		switch inst := rec.Inst.(type) {
		case *mir.BinaryInst, *mir.UnaryInst, *mir.CastInst, *mir.ConstIntInst,
			*mir.ConstFloatInst, *mir.ConstBoolInst, *mir.SelectInst:
		case *mir.GetElementPtrInst:
			if len(inst.Indices) == 0 {
				return false
			}
			if !indexedByInduction(defs, inst.Indices[len(inst.Indices)-1], l) {
				return false
			}
		case *mir.LoadInst:
			if inst.Volatile {
				return false
			}
			reads[memRoot(defs, inst.Ptr)] = true
		case *mir.StoreInst:
			if inst.Volatile {
				return false
			}
			writes[memRoot(defs, inst.Ptr)] = true
		default:
			return false
		}
	}
	for w := range writes {
		if reads[w] {
			return false
		}
	}
	return true
}

// indexedByInduction: the index is the induction variable or a
// constant-offset expression over it (contiguous access).
func indexedByInduction(defs map[uint32]mir.InstructionRecord, idx mir.Value, l *LoopInfo) bool {
	if idx.ID() == l.Induction.ID() {
		return true
	}
	rec, ok := defs[idx.ID()]
	if !ok {
		return false
	}
	bin, ok := rec.Inst.(*mir.BinaryInst)
	if !ok || bin.Op != mir.OpAdd {
		return false
	}
	if bin.L.ID() != l.Induction.ID() {
		return false
	}
	_, isConst := constIntValue(defs, bin.R)
	return isConst
}

// slpRef is one store in a candidate straight-line bundle.
type slpRef struct {
	base  uint32
	index int64
	op    mir.Opcode
	opOK  bool
}

// findSlpBundles counts straight-line bundles: runs of isomorphic binary
// operations whose results store to adjacent constant indices of the same
// base. The scalar group is left intact and recorded for the back-end's
// vector formation; adjacency and uniform opcode are both checked so the
// bundle carries no legality hazard.
func (p *Vectorize) findSlpBundles(fn *mir.Function) int {
	defs := functionDefs(fn)
	bundles := 0
	for _, b := range fn.Blocks() {
		var run []slpRef
		flush := func() {
			if len(run) >= 2 && adjacentUniform(run) {
				bundles++
			}
			run = nil
		}
		for _, rec := range b.Instructions() {
			store, ok := rec.Inst.(*mir.StoreInst)
			if !ok {
				continue
			}
			gepRec, ok := defs[store.Ptr.ID()]
			if !ok {
				flush()
				continue
			}
			gep, ok := gepRec.Inst.(*mir.GetElementPtrInst)
			if !ok || len(gep.Indices) == 0 {
				flush()
				continue
			}
			idx, ok := constIntValue(defs, gep.Indices[len(gep.Indices)-1])
			if !ok {
				flush()
				continue
			}
			ref := slpRef{base: memRoot(defs, gep.Base), index: idx}
			if vrec, ok := defs[store.Val.ID()]; ok {
				if bin, ok := vrec.Inst.(*mir.BinaryInst); ok {
					ref.op, ref.opOK = bin.Op, true
				}
			}
			run = append(run, ref)
		}
		flush()
	}
	return bundles
}

func adjacentUniform(run []slpRef) bool {
	for i := 1; i < len(run); i++ {
		if run[i].base != run[0].base || run[i].index != run[i-1].index+1 {
			return false
		}
		if !run[i].opOK || !run[0].opOK || run[i].op != run[0].op {
			return false
		}
	}
	return true
}
