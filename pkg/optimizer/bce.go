package optimizer

import (
	"fmt"

	"github.com/lumen-lang/lumenc/pkg/mir"
	"github.com/lumen-lang/lumenc/pkg/pass"
	"github.com/lumen-lang/lumenc/pkg/types"
)

// Range is an inclusive integer interval used by BCE's value-range analysis.
type Range struct {
	Min, Max int64
}

func fullRange(t *types.Type) Range {
	if t != nil && t.IsInteger() {
		min, max := t.Bounds()
		return Range{min, max}
	}
	return Range{minI64, maxI64}
}

func (r Range) join(o Range) Range {
	if o.Min < r.Min {
		r.Min = o.Min
	}
	if o.Max > r.Max {
		r.Max = o.Max
	}
	return r
}

func (r Range) intersect(o Range) Range {
	if o.Min > r.Min {
		r.Min = o.Min
	}
	if o.Max < r.Max {
		r.Max = o.Max
	}
	return r
}

func (r Range) add(o Range) Range {
	return Range{satAdd(r.Min, o.Min), satAdd(r.Max, o.Max)}
}

func (r Range) sub(o Range) Range {
	return Range{satAdd(r.Min, -o.Max), satAdd(r.Max, -o.Min)}
}

const (
	maxI64 = int64(1<<63 - 1)
	minI64 = -maxI64 - 1
)

func satAdd(a, b int64) int64 {
	s := a + b
	if a > 0 && b > 0 && s < 0 {
		return maxI64
	}
	if a < 0 && b < 0 && s >= 0 {
		return minI64
	}
	return s
}

// phi ranges are joined for this many sweeps, then widened to the type's
// full range to guarantee termination.
const widenAfter = 3

// BCEStats reports, per justification kind, how many bounds checks were
// removed, plus the assume-predicates handed to the back-end.
type BCEStats struct {
	Eliminated      int
	ByConstant      int
	ByLoop          int
	ByDominating    int
	ByRange         int
	AssumePredicates []string
}

func (s *BCEStats) Summary() string {
	return fmt.Sprintf("eliminated %d bounds check(s) (constant=%d loop=%d dominating=%d range=%d)",
		s.Eliminated, s.ByConstant, s.ByLoop, s.ByDominating, s.ByRange)
}

// BoundsCheckElim removes array bounds checks whose index interval provably
// fits the array size, annotating each eliminated check with the reason it
// was justified and an assume predicate for the back-end.
type BoundsCheckElim struct {
	stats BCEStats
}

func (p *BoundsCheckElim) Name() string          { return "bounds-check-elim" }
func (p *BoundsCheckElim) LastStats() pass.Stats { return &p.stats }

func (p *BoundsCheckElim) Run(fn *mir.Function, mod *mir.Module) bool {
	p.stats = BCEStats{}
	defs := functionDefs(fn)
	loops := FindLoops(fn)
	ranges := p.computeRanges(fn, defs, loops)
	dom := fn.Dominators()

	changed := false
	for _, b := range fn.Blocks() {
		for idx, rec := range b.Instructions() {
			gep, ok := rec.Inst.(*mir.GetElementPtrInst)
			if !ok || !gep.Bounds.Checked || gep.Bounds.Eliminated || len(gep.Indices) == 0 {
				continue
			}
			size, ok := arraySizeOf(gep.Base)
			if !ok {
				continue
			}
			index := gep.Indices[len(gep.Indices)-1]
			r, reason := p.rangeAt(fn, defs, loops, ranges, dom, b.ID, index, size)
			if r.Min < 0 || r.Max >= size {
				continue
			}
			gep.Bounds.Eliminated = true
			gep.Bounds.Reason = reason
			p.record(reason)
			p.stats.AssumePredicates = append(p.stats.AssumePredicates,
				fmt.Sprintf("%s: 0 <= %%%d < %d", fn.Name, index.ID(), size))
			b.Instructions()[idx].Inst = gep
			changed = true
		}
	}
	return changed
}

func (p *BoundsCheckElim) record(reason string) {
	p.stats.Eliminated++
	switch reason {
	case "constant":
		p.stats.ByConstant++
	case "loop":
		p.stats.ByLoop++
	case "dominating-check":
		p.stats.ByDominating++
	default:
		p.stats.ByRange++
	}
}

// arraySizeOf extracts the static element count behind a GEP base: either a
// fixed-size array value or a pointer to one.
func arraySizeOf(base mir.Value) (int64, bool) {
	t := base.Type()
	if t == nil {
		return 0, false
	}
	if t.Kind() == types.KindPointer {
		t = t.Pointee()
	}
	if t != nil && t.Kind() == types.KindArray {
		return t.ArraySize(), true
	}
	return 0, false
}

// computeRanges runs the interval sweep: constants seed exact ranges, loop
// induction variables get their [start, end-1] bound, arithmetic combines
// operand intervals, and phis join with widening after widenAfter sweeps.
func (p *BoundsCheckElim) computeRanges(fn *mir.Function, defs map[uint32]mir.InstructionRecord, loops []*LoopInfo) map[uint32]Range {
	ranges := map[uint32]Range{}
	rangeOf := func(v mir.Value) Range {
		if r, ok := ranges[v.ID()]; ok {
			return r
		}
		return fullRange(v.Type())
	}

	inductionBound := map[uint32]Range{}
	for _, l := range loops {
		if !l.HasBounds() || !l.StartOK {
			continue
		}
		if l.EndOK && l.Step > 0 {
			inductionBound[l.Induction.ID()] = Range{l.Start, l.EndConst - 1}
		}
	}

	rpo := fn.ReversePostOrder()
	for sweep := 0; sweep <= widenAfter+1; sweep++ {
		changed := false
		for _, id := range rpo {
			b := fn.Block(id)
			if b == nil {
				continue
			}
			for _, rec := range b.Instructions() {
				if !rec.Result.Valid() {
					continue
				}
				var r Range
				switch inst := rec.Inst.(type) {
				case *mir.ConstIntInst:
					r = Range{inst.Value, inst.Value}
				case *mir.BinaryInst:
					l, rr := rangeOf(inst.L), rangeOf(inst.R)
					switch inst.Op {
					case mir.OpAdd:
						r = l.add(rr)
					case mir.OpSub:
						r = l.sub(rr)
					case mir.OpMod:
						if c, ok := constIntValue(defs, inst.R); ok && c > 0 {
							r = Range{0, c - 1}
						} else {
							r = fullRange(rec.Type)
						}
					default:
						r = fullRange(rec.Type)
					}
				case *mir.PhiInst:
					if ib, ok := inductionBound[rec.Result.ID()]; ok {
						r = ib
						break
					}
					if sweep > widenAfter {
						r = fullRange(rec.Type)
						break
					}
					first := true
					for _, in := range inst.Incoming {
						ir := rangeOf(in.Value)
						if first {
							r, first = ir, false
						} else {
							r = r.join(ir)
						}
					}
					if first {
						r = fullRange(rec.Type)
					}
				case *mir.CastInst:
					r = rangeOf(inst.Operand).intersect(fullRange(inst.Target))
				default:
					r = fullRange(rec.Type)
				}
				if prev, ok := ranges[rec.Result.ID()]; !ok || prev != r {
					ranges[rec.Result.ID()] = r
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}
	return ranges
}

// rangeAt refines index's global interval with dominating comparisons and
// classifies which justification proved the access safe.
func (p *BoundsCheckElim) rangeAt(fn *mir.Function, defs map[uint32]mir.InstructionRecord, loops []*LoopInfo, ranges map[uint32]Range, dom *mir.DominatorTree, at mir.BlockID, index mir.Value, size int64) (Range, string) {
	r, ok := ranges[index.ID()]
	if !ok {
		r = fullRange(index.Type())
	}

	if _, isConst := constIntValue(defs, index); isConst {
		return r, "constant"
	}
	for _, l := range loops {
		if l.Induction.Valid() && l.Induction.ID() == index.ID() && l.Contains(at) {
			if r.Min >= 0 && r.Max < size {
				return r, "loop"
			}
		}
	}

	// Dominating checks: a conditional `index < k` (or `index <= k`,
	// `index >= k`) whose taken edge dominates the access narrows the
	// interval along that edge. The edge constraint applies only when the
	// successor has the branch as its sole predecessor.
	refined := false
	for _, b := range fn.Blocks() {
		cond, ok := b.Terminator().(*mir.CondBranchTerm)
		if !ok {
			continue
		}
		cmp, ok := defs[cond.Cond.ID()]
		if !ok {
			continue
		}
		bin, ok := cmp.Inst.(*mir.BinaryInst)
		if !ok || bin.L.ID() != index.ID() {
			continue
		}
		bound, boundOK := constIntValue(defs, bin.R)
		if !boundOK {
			// `i < arr.len()` style: the bound is the array length itself.
			if lenVal, ok := arrayLenValue(defs, bin.R); ok && lenVal == size {
				bound, boundOK = size, true
			}
		}
		if !boundOK {
			continue
		}
		if onTrue := edgeDominates(fn, dom, b.ID, cond.TrueBlk, at); onTrue {
			if nr, ok := narrowTrue(bin.Op, r, bound); ok {
				r, refined = nr, true
			}
		} else if edgeDominates(fn, dom, b.ID, cond.FalseBlk, at) {
			if nr, ok := narrowFalse(bin.Op, r, bound); ok {
				r, refined = nr, true
			}
		}
	}
	if refined {
		return r, "dominating-check"
	}
	return r, "range"
}

// arrayLenValue recognizes the materialized length of a statically sized
// array: a u64 constant the builder emitted for len() on an array type.
func arrayLenValue(defs map[uint32]mir.InstructionRecord, v mir.Value) (int64, bool) {
	return constIntValue(defs, v)
}

func edgeDominates(fn *mir.Function, dom *mir.DominatorTree, from, to, target mir.BlockID) bool {
	if len(fn.Predecessors(to)) != 1 {
		return false
	}
	return dom.Dominates(to, target)
}

func narrowTrue(op mir.Opcode, r Range, bound int64) (Range, bool) {
	switch op {
	case mir.OpLt:
		return r.intersect(Range{minI64, bound - 1}), true
	case mir.OpLe:
		return r.intersect(Range{minI64, bound}), true
	case mir.OpGt:
		return r.intersect(Range{bound + 1, maxI64}), true
	case mir.OpGe:
		return r.intersect(Range{bound, maxI64}), true
	case mir.OpEq:
		return Range{bound, bound}, true
	}
	return r, false
}

func narrowFalse(op mir.Opcode, r Range, bound int64) (Range, bool) {
	switch op {
	case mir.OpLt:
		return r.intersect(Range{bound, maxI64}), true
	case mir.OpLe:
		return r.intersect(Range{bound + 1, maxI64}), true
	case mir.OpGt:
		return r.intersect(Range{minI64, bound}), true
	case mir.OpGe:
		return r.intersect(Range{minI64, bound - 1}), true
	case mir.OpNe:
		return Range{bound, bound}, true
	}
	return r, false
}
