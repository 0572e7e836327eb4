package optimizer

import (
	"fmt"

	"github.com/lumen-lang/lumenc/pkg/mir"
	"github.com/lumen-lang/lumenc/pkg/pass"
	"github.com/lumen-lang/lumenc/pkg/types"
)

// DefaultTileSize is the iteration-space tile edge for loop tiling.
const DefaultTileSize = 32

// LoopOptStats reports what the loop family did.
type LoopOptStats struct {
	Hoisted     int
	Interchanged int
	Tiled       int
	Fused       int
	Distributed int
}

func (s *LoopOptStats) Summary() string {
	return fmt.Sprintf("hoisted %d, interchanged %d, tiled %d, fused %d, distributed %d",
		s.Hoisted, s.Interchanged, s.Tiled, s.Fused, s.Distributed)
}

// memRefs classifies a block set's memory accesses by the root value their
// addresses chase back to. The dependence tests below are deliberately
// conservative name-level checks: two refs conflict if one writes a root the
// other touches. No GCD or Banerjei-style test; the name-level check is
// deliberately conservative.
type memRefs struct {
	reads  map[uint32]bool
	writes map[uint32]bool
}

func collectMemRefs(fn *mir.Function, blocks map[mir.BlockID]bool) memRefs {
	defs := functionDefs(fn)
	refs := memRefs{reads: map[uint32]bool{}, writes: map[uint32]bool{}}
	for _, b := range fn.Blocks() {
		if !blocks[b.ID] {
			continue
		}
		for _, rec := range b.Instructions() {
			switch inst := rec.Inst.(type) {
			case *mir.LoadInst:
				refs.reads[memRoot(defs, inst.Ptr)] = true
			case *mir.StoreInst:
				refs.writes[memRoot(defs, inst.Ptr)] = true
			case *mir.CallInst, *mir.MethodCallInst:
				// An opaque call may touch anything; poison both sets.
				refs.reads[0] = true
				refs.writes[0] = true
			}
		}
	}
	return refs
}

// memRoot chases GEP/cast chains back to the address's base value.
func memRoot(defs map[uint32]mir.InstructionRecord, ptr mir.Value) uint32 {
	for i := 0; i < 64; i++ {
		rec, ok := defs[ptr.ID()]
		if !ok {
			return ptr.ID()
		}
		switch inst := rec.Inst.(type) {
		case *mir.GetElementPtrInst:
			ptr = inst.Base
		case *mir.CastInst:
			ptr = inst.Operand
		default:
			return ptr.ID()
		}
	}
	return ptr.ID()
}

func (a memRefs) independentOf(b memRefs) bool {
	if a.writes[0] || b.writes[0] || a.reads[0] || b.reads[0] {
		return false
	}
	for w := range a.writes {
		if b.reads[w] || b.writes[w] {
			return false
		}
	}
	for w := range b.writes {
		if a.reads[w] || a.writes[w] {
			return false
		}
	}
	return true
}

// SimpleLoopOpts is the O2 member of the family: loop-invariant code motion
// into the preheader.
type SimpleLoopOpts struct {
	stats LoopOptStats
}

func (p *SimpleLoopOpts) Name() string          { return "loop-simplify" }
func (p *SimpleLoopOpts) LastStats() pass.Stats { return &p.stats }

func (p *SimpleLoopOpts) Run(fn *mir.Function, mod *mir.Module) bool {
	p.stats = LoopOptStats{}
	changed := false
	for _, l := range FindLoops(fn) {
		pre := preheaderOf(fn, l)
		if pre == nil {
			continue
		}
		inLoop := definedIn(fn, l.Blocks)
		for _, b := range fn.Blocks() {
			if !l.Contains(b.ID) {
				continue
			}
			insts := b.Instructions()
			kept := insts[:0]
			for _, rec := range insts {
				if p.invariant(rec, inLoop) {
					pre.SetInstructions(append(pre.Instructions(), rec))
					delete(inLoop, rec.Result.ID())
					p.stats.Hoisted++
					changed = true
					continue
				}
				kept = append(kept, rec)
			}
			b.SetInstructions(kept)
		}
	}
	return changed
}

// invariant: a speculatable instruction none of whose operands are defined
// inside the loop.
func (p *SimpleLoopOpts) invariant(rec mir.InstructionRecord, inLoop map[uint32]bool) bool {
	if !rec.Result.Valid() {
		return false
	}
	if _, ok := cseKey(rec.Inst); !ok {
		return false
	}
	if _, isPhi := rec.Inst.(*mir.PhiInst); isPhi {
		return false
	}
	for _, v := range instOperands(rec.Inst) {
		if inLoop[v.ID()] {
			return false
		}
	}
	return true
}

func definedIn(fn *mir.Function, blocks map[mir.BlockID]bool) map[uint32]bool {
	out := map[uint32]bool{}
	for _, b := range fn.Blocks() {
		if !blocks[b.ID] {
			continue
		}
		for _, rec := range b.Instructions() {
			if rec.Result.Valid() {
				out[rec.Result.ID()] = true
			}
		}
	}
	return out
}

// preheaderOf returns the single out-of-loop predecessor of the header when
// it unconditionally branches into the loop.
func preheaderOf(fn *mir.Function, l *LoopInfo) *mir.BasicBlock {
	var pre *mir.BasicBlock
	for _, pid := range fn.Predecessors(l.Header) {
		if l.Contains(pid) {
			continue
		}
		if pre != nil {
			return nil
		}
		pre = fn.Block(pid)
	}
	if pre == nil {
		return nil
	}
	if _, ok := pre.Terminator().(*mir.BranchTerm); !ok {
		return nil
	}
	return pre
}

// AdvancedLoopOpts is the O3 family: interchange, tiling, fusion, and
// distribution, each gated by the conservative dependence test. Nests are
// visited bottom-up through LoopInfo's parent/child links.
type AdvancedLoopOpts struct {
	TileSize int
	stats    LoopOptStats
}

func (p *AdvancedLoopOpts) Name() string          { return "loop-advanced" }
func (p *AdvancedLoopOpts) LastStats() pass.Stats { return &p.stats }

func (p *AdvancedLoopOpts) Run(fn *mir.Function, mod *mir.Module) bool {
	p.stats = LoopOptStats{}
	tile := p.TileSize
	if tile == 0 {
		tile = DefaultTileSize
	}
	changed := false

	loops := FindLoops(fn)
	for _, l := range loops {
		if inner, ok := perfectNestChild(fn, l); ok && p.tryInterchange(fn, l, inner) {
			p.stats.Interchanged++
			changed = true
		}
	}
	if fused := p.tryFusion(fn); fused > 0 {
		p.stats.Fused += fused
		changed = true
	}
	if dist := p.tryDistribution(fn); dist > 0 {
		p.stats.Distributed += dist
		changed = true
	}
	// Tiling last: it restructures the CFG most aggressively, and the
	// other transforms' shape requirements would no longer match.
	for _, l := range FindLoops(fn) {
		if p.tryTiling(fn, mod, l, int64(tile)) {
			p.stats.Tiled++
			changed = true
		}
	}
	if changed {
		fn.Touch()
	}
	return changed
}

// perfectNestChild returns l's sole child when l's body consists of nothing
// but that child's blocks plus l's own header and latch.
func perfectNestChild(fn *mir.Function, l *LoopInfo) (*LoopInfo, bool) {
	if len(l.Children) != 1 {
		return nil, false
	}
	inner := l.Children[0]
	for id := range l.Blocks {
		if id == l.Header || id == l.Latch || inner.Contains(id) {
			continue
		}
		// Allow empty glue blocks between the two levels.
		b := fn.Block(id)
		if b == nil || len(b.Instructions()) > 0 {
			return nil, false
		}
	}
	return inner, true
}

// tryInterchange swaps the iteration bounds of a perfectly nested pair of
// rectangular counted loops. Legality: the nest's memory accesses must be
// free of cross-iteration conflicts under the conservative test (all bases
// written at most once, no opaque calls).
func (p *AdvancedLoopOpts) tryInterchange(fn *mir.Function, outer, inner *LoopInfo) bool {
	if !outer.HasBounds() || !inner.HasBounds() || !outer.EndOK || !inner.EndOK {
		return false
	}
	if outer.Step != 1 || inner.Step != 1 {
		return false
	}
	refs := collectMemRefs(fn, inner.Blocks)
	if refs.writes[0] || refs.reads[0] {
		return false
	}
	for w := range refs.writes {
		if refs.reads[w] {
			// A base both read and written across the nest can carry a
			// negative-distance dependence; keep the original order.
			return false
		}
	}

	defs := functionDefs(fn)
	oInit, oBound, ok := inductionSites(fn, defs, outer)
	if !ok {
		return false
	}
	iInit, iBound, ok := inductionSites(fn, defs, inner)
	if !ok {
		return false
	}
	// Shared (CSE'd) constant instructions would make the in-place swap
	// bleed into unrelated uses.
	if oInit == iInit || oInit == oBound || oInit == iBound ||
		iInit == oBound || iInit == iBound || oBound == iBound {
		return false
	}
	oInit.Value, iInit.Value = iInit.Value, oInit.Value
	oBound.Value, iBound.Value = iBound.Value, oBound.Value
	return true
}

// inductionSites resolves a counted loop's start and end ConstIntInst
// payloads for in-place bound swapping.
func inductionSites(fn *mir.Function, defs map[uint32]mir.InstructionRecord, l *LoopInfo) (init, bound *mir.ConstIntInst, ok bool) {
	header := fn.Block(l.Header)
	if header == nil {
		return nil, nil, false
	}
	var initVal mir.Value
	for _, rec := range header.Instructions() {
		phi, isPhi := rec.Inst.(*mir.PhiInst)
		if !isPhi || rec.Result.ID() != l.Induction.ID() {
			continue
		}
		for _, in := range phi.Incoming {
			if in.Block != l.Latch {
				initVal = in.Value
			}
		}
	}
	irec, iok := defs[initVal.ID()]
	brec, bok := defs[l.End.ID()]
	if !iok || !bok {
		return nil, nil, false
	}
	ci, iok := irec.Inst.(*mir.ConstIntInst)
	cb, bok := brec.Inst.(*mir.ConstIntInst)
	if !iok || !bok {
		return nil, nil, false
	}
	return ci, cb, true
}

// simpleLoopShape: a counted loop whose blocks are exactly {header, latch}
// with the latch holding the body and increment. The builder's while/for
// lowering produces this shape for single-statement bodies, which is what
// fusion and distribution target.
func simpleLoopShape(fn *mir.Function, l *LoopInfo) (header, latch *mir.BasicBlock, ok bool) {
	if len(l.Blocks) != 2 || !l.HasBounds() {
		return nil, nil, false
	}
	header, latch = fn.Block(l.Header), fn.Block(l.Latch)
	if header == nil || latch == nil || l.Header == l.Latch {
		return nil, nil, false
	}
	if _, isBr := latch.Terminator().(*mir.BranchTerm); !isBr {
		return nil, nil, false
	}
	return header, latch, true
}

// tryFusion merges adjacent counted loops with identical constant bounds
// when the second loop is independent of the first's writes.
func (p *AdvancedLoopOpts) tryFusion(fn *mir.Function) int {
	loops := FindLoops(fn)
	fused := 0
	for _, l1 := range loops {
		for _, l2 := range loops {
			if l1 == l2 || !adjacentLoops(fn, l1, l2) {
				continue
			}
			if !sameConstBounds(l1, l2) {
				continue
			}
			h1, latch1, ok1 := simpleLoopShape(fn, l1)
			_, latch2, ok2 := simpleLoopShape(fn, l2)
			if !ok1 || !ok2 {
				continue
			}
			refs1 := collectMemRefs(fn, l1.Blocks)
			refs2 := collectMemRefs(fn, l2.Blocks)
			if !refs1.independentOf(refs2) {
				continue
			}
			p.fuse(fn, l1, l2, h1, latch1, latch2)
			fused++
			return fused // CFG changed; re-detect before fusing more
		}
	}
	return fused
}

// adjacentLoops: l1's exit reaches l2's header through nothing but empty
// unconditional blocks.
func adjacentLoops(fn *mir.Function, l1, l2 *LoopInfo) bool {
	id := l1.Exit
	for i := 0; i < 4; i++ {
		if id == l2.Header {
			return true
		}
		b := fn.Block(id)
		if b == nil || len(b.Instructions()) > 0 {
			return false
		}
		br, ok := b.Terminator().(*mir.BranchTerm)
		if !ok {
			return false
		}
		id = br.Target
	}
	return false
}

func sameConstBounds(a, b *LoopInfo) bool {
	return a.StartOK && b.StartOK && a.EndOK && b.EndOK &&
		a.Start == b.Start && a.EndConst == b.EndConst && a.Step == b.Step
}

// fuse splices l2's body into l1's latch ahead of the increment, rebinds
// l2's induction variable to l1's, and routes l1's exit to l2's exit.
func (p *AdvancedLoopOpts) fuse(fn *mir.Function, l1, l2 *LoopInfo, h1, latch1, latch2 *mir.BasicBlock) {
	// l2's body minus its own induction increment.
	defs := functionDefs(fn)
	var body2 []mir.InstructionRecord
	for _, rec := range latch2.Instructions() {
		if isInductionStep(defs, rec, l2) {
			continue
		}
		body2 = append(body2, rec)
	}
	sub := func(v mir.Value) mir.Value {
		if v.ID() == l2.Induction.ID() {
			return l1.Induction
		}
		return v
	}
	for _, rec := range body2 {
		rewriteOperands(rec.Inst, sub)
	}

	// Insert before l1's increment.
	insts1 := latch1.Instructions()
	split := len(insts1)
	for i, rec := range insts1 {
		if isInductionStep(defs, rec, l1) {
			split = i
			break
		}
	}
	merged := append([]mir.InstructionRecord(nil), insts1[:split]...)
	merged = append(merged, body2...)
	merged = append(merged, insts1[split:]...)
	latch1.SetInstructions(merged)

	// Retarget l1's exit past the dead second loop.
	cond := h1.Terminator().(*mir.CondBranchTerm)
	newCond := *cond
	if newCond.TrueBlk == l1.Exit {
		newCond.TrueBlk = l2.Exit
	} else {
		newCond.FalseBlk = l2.Exit
	}
	h1.ReplaceTerminator(&newCond)

	// Drop l2's now-unreachable header and latch.
	kept := make([]*mir.BasicBlock, 0, len(fn.Blocks()))
	for _, b := range fn.Blocks() {
		if b.ID == l2.Header || b.ID == l2.Latch {
			continue
		}
		kept = append(kept, b)
	}
	fn.SetBlocks(kept)
}

func isInductionStep(defs map[uint32]mir.InstructionRecord, rec mir.InstructionRecord, l *LoopInfo) bool {
	bin, ok := rec.Inst.(*mir.BinaryInst)
	if !ok || (bin.Op != mir.OpAdd && bin.Op != mir.OpSub) {
		return false
	}
	return bin.L.ID() == l.Induction.ID()
}

// tryDistribution splits a simple loop whose body separates into two
// independent statement groups into two sequential loops, splitting on
// connected components of the body dependence graph.
func (p *AdvancedLoopOpts) tryDistribution(fn *mir.Function) int {
	for _, l := range FindLoops(fn) {
		header, latch, ok := simpleLoopShape(fn, l)
		if !ok || !l.StartOK || !l.EndOK {
			continue
		}
		groups := splitBodyGroups(fn, l, latch)
		if groups == nil {
			continue
		}
		p.distribute(fn, l, header, latch, groups)
		return 1
	}
	return 0
}

// bodyGroups is a partition of the latch body into the retained group and
// the group moved to the cloned loop.
type bodyGroups struct {
	keep, move []mir.InstructionRecord
	step       mir.InstructionRecord
}

// splitBodyGroups finds two connected components over value and memory
// dependence. The moved group must be self-contained: only stores and their
// address/value computations, no results used outside the group.
func splitBodyGroups(fn *mir.Function, l *LoopInfo, latch *mir.BasicBlock) *bodyGroups {
	defs := functionDefs(fn)
	insts := latch.Instructions()

	var step mir.InstructionRecord
	var body []mir.InstructionRecord
	for _, rec := range insts {
		if isInductionStep(defs, rec, l) {
			step = rec
			continue
		}
		body = append(body, rec)
	}
	if step.Inst == nil || len(body) < 2 {
		return nil
	}

	// Union the body by shared values and shared memory roots.
	parent := make([]int, len(body))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) { parent[find(a)] = find(b) }

	defIdx := map[uint32]int{}
	for i, rec := range body {
		if rec.Result.Valid() {
			defIdx[rec.Result.ID()] = i
		}
	}
	rootTouch := map[uint32]int{}
	for i, rec := range body {
		for _, v := range instOperands(rec.Inst) {
			if j, ok := defIdx[v.ID()]; ok {
				union(i, j)
			}
		}
		var root uint32
		switch inst := rec.Inst.(type) {
		case *mir.LoadInst:
			root = memRoot(defs, inst.Ptr)
		case *mir.StoreInst:
			root = memRoot(defs, inst.Ptr)
		case *mir.CallInst, *mir.MethodCallInst:
			return nil // opaque effects pin the body together
		default:
			continue
		}
		if j, ok := rootTouch[root]; ok {
			union(i, j)
		} else {
			rootTouch[root] = i
		}
	}

	first := find(0)
	var keep, move []mir.InstructionRecord
	for i, rec := range body {
		if find(i) == first {
			keep = append(keep, rec)
		} else {
			move = append(move, rec)
		}
	}
	if len(move) == 0 {
		return nil
	}
	// Moved results must not leak outside the moved group.
	movedDefs := map[uint32]bool{}
	for _, rec := range move {
		if rec.Result.Valid() {
			movedDefs[rec.Result.ID()] = true
		}
	}
	for _, b := range fn.Blocks() {
		for _, rec := range b.Instructions() {
			if containsRec(move, rec) {
				continue
			}
			for _, v := range instOperands(rec.Inst) {
				if movedDefs[v.ID()] {
					return nil
				}
			}
		}
	}
	return &bodyGroups{keep: keep, move: move, step: step}
}

func containsRec(recs []mir.InstructionRecord, rec mir.InstructionRecord) bool {
	for _, r := range recs {
		if r.Inst == rec.Inst {
			return true
		}
	}
	return false
}

// distribute keeps group one in the original loop and runs group two in a
// cloned loop that executes after it.
func (p *AdvancedLoopOpts) distribute(fn *mir.Function, l *LoopInfo, header, latch *mir.BasicBlock, g *bodyGroups) {
	latch.SetInstructions(append(append([]mir.InstructionRecord(nil), g.keep...), g.step))

	// Clone the loop control for the second group.
	t := l.Induction.Type()
	h2 := fn.NewBlock(header.Name + ".dist")
	l2 := fn.NewBlock(latch.Name + ".dist")

	startC := mir.NewValue(fn.NewValueID(), t)
	// Materialize the start constant in the preheader position: the second
	// header's phi references it from the edge out of the first loop's exit
	// path, so it lives in h2's predecessor — the original header's exit is
	// retargeted below, making that predecessor the original header.
	ind2 := mir.NewValue(fn.NewValueID(), t)
	stepped2 := mir.NewValue(fn.NewValueID(), t)
	bound2 := mir.NewValue(fn.NewValueID(), t)
	condV := mir.NewValue(fn.NewValueID(), types.Bool())

	cond := header.Terminator().(*mir.CondBranchTerm)
	exit := l.Exit

	// Original loop now exits into the cloned header.
	newCond := *cond
	if newCond.TrueBlk == exit {
		newCond.TrueBlk = h2.ID
	} else {
		newCond.FalseBlk = h2.ID
	}
	header.ReplaceTerminator(&newCond)
	// The start constant and bound are defined in the original header,
	// which dominates both loops.
	header.SetInstructions(append(header.Instructions(),
		mir.InstructionRecord{Inst: &mir.ConstIntInst{Value: l.Start, Bits: t.BitWidth(), Signed: t.IsSigned()}, Result: startC, Type: t},
		mir.InstructionRecord{Inst: &mir.ConstIntInst{Value: l.EndConst, Bits: t.BitWidth(), Signed: t.IsSigned()}, Result: bound2, Type: t},
	))

	h2.Append(mir.InstructionRecord{
		Inst: &mir.PhiInst{Incoming: []mir.PhiIncoming{
			{Value: startC, Block: header.ID},
			{Value: stepped2, Block: l2.ID},
		}},
		Result: ind2, Type: t,
	})
	h2.Append(mir.InstructionRecord{
		Inst: &mir.BinaryInst{Op: mir.OpLt, L: ind2, R: bound2}, Result: condV, Type: types.Bool(),
	})
	h2.SetTerminator(&mir.CondBranchTerm{Cond: condV, TrueBlk: l2.ID, FalseBlk: exit})

	sub := func(v mir.Value) mir.Value {
		if v.ID() == l.Induction.ID() {
			return ind2
		}
		return v
	}
	for _, rec := range g.move {
		rewriteOperands(rec.Inst, sub)
		l2.Append(rec)
	}
	stepC := mir.NewValue(fn.NewValueID(), t)
	l2.Append(mir.InstructionRecord{
		Inst: &mir.ConstIntInst{Value: l.Step, Bits: t.BitWidth(), Signed: t.IsSigned()}, Result: stepC, Type: t,
	})
	l2.Append(mir.InstructionRecord{
		Inst: &mir.BinaryInst{Op: mir.OpAdd, L: ind2, R: stepC}, Result: stepped2, Type: t,
	})
	l2.SetTerminator(&mir.BranchTerm{Target: h2.ID})
}

// tryTiling rewrites a constant-bound unit-step loop whose trip count is an
// exact multiple of the tile size into a tile loop over an inner bounded
// loop.
func (p *AdvancedLoopOpts) tryTiling(fn *mir.Function, mod *mir.Module, l *LoopInfo, tile int64) bool {
	if !l.HasBounds() || !l.StartOK || !l.EndOK || l.Step != 1 {
		return false
	}
	trip := l.EndConst - l.Start
	if trip < 2*tile || trip%tile != 0 {
		return false
	}
	header := fn.Block(l.Header)
	pre := preheaderOf(fn, l)
	if header == nil || pre == nil {
		return false
	}
	cond, ok := header.Terminator().(*mir.CondBranchTerm)
	if !ok {
		return false
	}
	defs := functionDefs(fn)
	cmpRec, ok := defs[cond.Cond.ID()]
	if !ok {
		return false
	}
	cmp, ok := cmpRec.Inst.(*mir.BinaryInst)
	if !ok || cmp.L.ID() != l.Induction.ID() {
		return false
	}

	t := l.Induction.Type()
	theader := fn.NewBlock(header.Name + ".tile")
	tlatch := fn.NewBlock(header.Name + ".tile.next")

	tstart := mir.NewValue(fn.NewValueID(), t)
	tind := mir.NewValue(fn.NewValueID(), t)
	tstepped := mir.NewValue(fn.NewValueID(), t)
	tbound := mir.NewValue(fn.NewValueID(), t)
	tcond := mir.NewValue(fn.NewValueID(), types.Bool())
	tend := mir.NewValue(fn.NewValueID(), t)
	tileC := mir.NewValue(fn.NewValueID(), t)

	ci := func(v int64, res mir.Value) mir.InstructionRecord {
		return mir.InstructionRecord{
			Inst: &mir.ConstIntInst{Value: v, Bits: t.BitWidth(), Signed: t.IsSigned()}, Result: res, Type: t,
		}
	}

	// Preheader now feeds the tile loop.
	pre.SetInstructions(append(pre.Instructions(), ci(l.Start, tstart), ci(l.EndConst, tbound)))
	pre.ReplaceTerminator(&mir.BranchTerm{Target: theader.ID})

	theader.Append(mir.InstructionRecord{
		Inst: &mir.PhiInst{Incoming: []mir.PhiIncoming{
			{Value: tstart, Block: pre.ID},
			{Value: tstepped, Block: tlatch.ID},
		}},
		Result: tind, Type: t,
	})
	theader.Append(mir.InstructionRecord{
		Inst: &mir.BinaryInst{Op: mir.OpLt, L: tind, R: tbound}, Result: tcond, Type: types.Bool(),
	})
	theader.Append(ci(tile, tileC))
	theader.Append(mir.InstructionRecord{
		Inst: &mir.BinaryInst{Op: mir.OpAdd, L: tind, R: tileC}, Result: tend, Type: t,
	})
	theader.SetTerminator(&mir.CondBranchTerm{Cond: tcond, TrueBlk: header.ID, FalseBlk: l.Exit})

	tlatch.Append(mir.InstructionRecord{
		Inst: &mir.BinaryInst{Op: mir.OpAdd, L: tind, R: tileC}, Result: tstepped, Type: t,
	})
	tlatch.SetTerminator(&mir.BranchTerm{Target: theader.ID})

	// Inner loop: initial value comes from the tile counter, the bound
	// becomes the tile end, and the exit steps the tile loop instead.
	for _, rec := range header.Instructions() {
		phi, ok := rec.Inst.(*mir.PhiInst)
		if !ok || rec.Result.ID() != l.Induction.ID() {
			continue
		}
		for i := range phi.Incoming {
			if phi.Incoming[i].Block != l.Latch {
				phi.Incoming[i] = mir.PhiIncoming{Value: tind, Block: theader.ID}
			}
		}
	}
	cmp.R = tend
	newCond := *cond
	if newCond.TrueBlk == l.Exit {
		newCond.TrueBlk = tlatch.ID
	} else {
		newCond.FalseBlk = tlatch.ID
	}
	header.ReplaceTerminator(&newCond)
	return true
}
