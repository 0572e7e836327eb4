package mir

// DominatorTree is the immediate-dominator relation over a function's blocks,
// computed with the iterative Cooper/Harvey/Kennedy algorithm and cached on
// Function until the next Touch(). Bounds-check range analysis, loop
// detection, CSE and async lowering walk this tree.
type DominatorTree struct {
	idom  map[BlockID]BlockID
	order map[BlockID]int // reverse postorder index, for the "processed" test
	entry BlockID
}

// computeDominators builds the tree for f. Unreachable blocks (absent from
// the entry's reverse postorder) have no entry in idom and are treated as
// dominating nothing and being dominated by nothing.
func computeDominators(f *Function) *DominatorTree {
	rpo := f.ReversePostOrder()
	dt := &DominatorTree{idom: map[BlockID]BlockID{}, order: map[BlockID]int{}}
	if len(rpo) == 0 {
		return dt
	}
	dt.entry = rpo[0]
	for i, id := range rpo {
		dt.order[id] = i
	}
	dt.idom[dt.entry] = dt.entry

	changed := true
	for changed {
		changed = false
		for _, id := range rpo[1:] {
			preds := f.Predecessors(id)
			var newIdom BlockID
			found := false
			for _, p := range preds {
				if _, ok := dt.idom[p]; !ok {
					continue
				}
				if !found {
					newIdom = p
					found = true
					continue
				}
				newIdom = dt.intersect(newIdom, p)
			}
			if !found {
				continue
			}
			if cur, ok := dt.idom[id]; !ok || cur != newIdom {
				dt.idom[id] = newIdom
				changed = true
			}
		}
	}
	return dt
}

func (dt *DominatorTree) intersect(a, b BlockID) BlockID {
	for a != b {
		for dt.order[a] > dt.order[b] {
			a = dt.idom[a]
		}
		for dt.order[b] > dt.order[a] {
			b = dt.idom[b]
		}
	}
	return a
}

// IDom returns the immediate dominator of id, or (0, false) if id is the
// entry block or unreachable.
func (dt *DominatorTree) IDom(id BlockID) (BlockID, bool) {
	if id == dt.entry {
		return 0, false
	}
	d, ok := dt.idom[id]
	return d, ok
}

// Dominates reports whether a dominates b (every path from the entry to b
// passes through a), including the reflexive case a == b.
func (dt *DominatorTree) Dominates(a, b BlockID) bool {
	if _, ok := dt.order[b]; !ok {
		return false
	}
	for {
		if a == b {
			return true
		}
		if b == dt.entry {
			return a == dt.entry
		}
		next, ok := dt.idom[b]
		if !ok {
			return false
		}
		b = next
	}
}

// StrictlyDominates reports a dominates b and a != b.
func (dt *DominatorTree) StrictlyDominates(a, b BlockID) bool {
	return a != b && dt.Dominates(a, b)
}
