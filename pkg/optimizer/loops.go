package optimizer

import "github.com/lumen-lang/lumenc/pkg/mir"

// LoopInfo describes one natural loop: its header and latch
// blocks, the set of body blocks, the induction variable when the loop is in
// the canonical counted form, and its position in the loop nest.
type LoopInfo struct {
	Header mir.BlockID
	Latch  mir.BlockID
	Blocks map[mir.BlockID]bool

	// Canonical counted-loop shape: Induction is a phi in the header,
	// stepping by Step from Start, compared against End (value or constant)
	// in the header's conditional branch. HasBounds is false when the loop
	// is not in that shape.
	Induction mir.Value
	Start     int64
	StartOK   bool
	End       mir.Value
	EndConst  int64
	EndOK     bool
	Step      int64
	StepOK    bool

	// Exit is the header's out-of-loop successor for counted loops.
	Exit mir.BlockID

	Depth    int
	Parent   *LoopInfo
	Children []*LoopInfo
}

// HasBounds reports whether the loop carries the full canonical induction
// shape the counted-loop transforms require.
func (l *LoopInfo) HasBounds() bool { return l.Induction.Valid() && l.StartOK && l.StepOK }

// Contains reports whether id is in the loop (header included).
func (l *LoopInfo) Contains(id mir.BlockID) bool { return l.Blocks[id] }

// FindLoops detects every natural loop in fn via back edges (an edge b→h
// where h dominates b) and builds the nest from block-set containment.
// Loops sharing a header are merged. The result is ordered outermost-first
// in header insertion order, so repeated runs see the same nest.
func FindLoops(fn *mir.Function) []*LoopInfo {
	dom := fn.Dominators()
	byHeader := map[mir.BlockID]*LoopInfo{}
	var order []mir.BlockID

	for _, b := range fn.Blocks() {
		for _, succ := range b.Successors() {
			if !dom.Dominates(succ, b.ID) {
				continue
			}
			loop, ok := byHeader[succ]
			if !ok {
				loop = &LoopInfo{Header: succ, Latch: b.ID, Blocks: map[mir.BlockID]bool{succ: true}}
				byHeader[succ] = loop
				order = append(order, succ)
			}
			loop.Latch = b.ID
			collectLoopBody(fn, loop, b.ID)
		}
	}

	loops := make([]*LoopInfo, 0, len(order))
	for _, h := range order {
		loop := byHeader[h]
		detectInduction(fn, loop)
		loops = append(loops, loop)
	}

	// Nesting: the innermost enclosing loop with a strictly larger block set
	// is the parent.
	for _, inner := range loops {
		for _, outer := range loops {
			if inner == outer || len(outer.Blocks) <= len(inner.Blocks) {
				continue
			}
			if !outer.Contains(inner.Header) {
				continue
			}
			if inner.Parent == nil || len(outer.Blocks) < len(inner.Parent.Blocks) {
				inner.Parent = outer
			}
		}
	}
	for _, l := range loops {
		if l.Parent != nil {
			l.Parent.Children = append(l.Parent.Children, l)
		}
		for p := l.Parent; p != nil; p = p.Parent {
			l.Depth++
		}
	}
	return loops
}

// collectLoopBody adds every block that reaches the latch without passing
// through the header (the standard natural-loop body walk, backward over
// predecessors).
func collectLoopBody(fn *mir.Function, loop *LoopInfo, latch mir.BlockID) {
	stack := []mir.BlockID{latch}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if loop.Blocks[id] {
			continue
		}
		loop.Blocks[id] = true
		for _, p := range fn.Predecessors(id) {
			stack = append(stack, p)
		}
	}
}

// detectInduction recognizes the canonical counted shape produced by the
// builder's while/for lowering: a header phi with a constant initial value
// on the preheader edge and a same-phi-plus-constant value on the latch
// edge, compared in the header's conditional branch.
func detectInduction(fn *mir.Function, loop *LoopInfo) {
	header := fn.Block(loop.Header)
	if header == nil {
		return
	}
	cond, ok := header.Terminator().(*mir.CondBranchTerm)
	if !ok {
		return
	}
	if loop.Contains(cond.TrueBlk) && !loop.Contains(cond.FalseBlk) {
		loop.Exit = cond.FalseBlk
	} else if loop.Contains(cond.FalseBlk) && !loop.Contains(cond.TrueBlk) {
		loop.Exit = cond.TrueBlk
	} else {
		return
	}

	defs := functionDefs(fn)
	for _, rec := range header.Instructions() {
		phi, ok := rec.Inst.(*mir.PhiInst)
		if !ok || len(phi.Incoming) != 2 {
			continue
		}
		var initVal, latchVal mir.Value
		for _, in := range phi.Incoming {
			if in.Block == loop.Latch {
				latchVal = in.Value
			} else {
				initVal = in.Value
			}
		}
		step, ok := stepOf(defs, latchVal, rec.Result)
		if !ok {
			continue
		}
		loop.Induction = rec.Result
		loop.Step, loop.StepOK = step, true
		if start, ok := constIntValue(defs, initVal); ok {
			loop.Start, loop.StartOK = start, true
		}
		// Bound from the header compare: ind < end or ind <= end.
		if cmp, ok := defs[cond.Cond.ID()]; ok {
			if bin, ok := cmp.Inst.(*mir.BinaryInst); ok && bin.L.ID() == rec.Result.ID() {
				switch bin.Op {
				case mir.OpLt, mir.OpLe, mir.OpNe:
					loop.End = bin.R
					if end, ok := constIntValue(defs, bin.R); ok {
						loop.EndConst, loop.EndOK = end, true
						if bin.Op == mir.OpLe {
							loop.EndConst++
						}
					}
				}
			}
		}
		return
	}
}

// stepOf matches latchVal = add(phi, const) / sub(phi, const).
func stepOf(defs map[uint32]mir.InstructionRecord, latchVal, phi mir.Value) (int64, bool) {
	rec, ok := defs[latchVal.ID()]
	if !ok {
		return 0, false
	}
	bin, ok := rec.Inst.(*mir.BinaryInst)
	if !ok || bin.L.ID() != phi.ID() {
		return 0, false
	}
	c, ok := constIntValue(defs, bin.R)
	if !ok {
		return 0, false
	}
	switch bin.Op {
	case mir.OpAdd:
		return c, true
	case mir.OpSub:
		return -c, true
	}
	return 0, false
}

// TripCount returns the loop's constant iteration count, when the bounds are
// fully constant and the step divides the distance evenly enough to compute.
func (l *LoopInfo) TripCount() (int64, bool) {
	if !l.HasBounds() || !l.StartOK || !l.EndOK || l.Step == 0 {
		return 0, false
	}
	dist := l.EndConst - l.Start
	if l.Step > 0 && dist > 0 {
		return (dist + l.Step - 1) / l.Step, true
	}
	if l.Step < 0 && dist < 0 {
		return (-dist + (-l.Step) - 1) / (-l.Step), true
	}
	return 0, true
}
