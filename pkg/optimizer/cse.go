package optimizer

import (
	"fmt"
	"strings"

	"github.com/lumen-lang/lumenc/pkg/mir"
)

// CSE eliminates common subexpressions with a dominator-tree-scoped value
// table: an instruction whose key matches an earlier instruction in a
// dominating block is deleted and its uses redirected.
// Only speculatable instruction kinds participate; loads, calls, and
// anything with side effects never merge.
type CSE struct {
	eliminated int
}

func (p *CSE) Name() string  { return "cse" }
func (p *CSE) Fixpoint() bool { return true }

func (p *CSE) Run(fn *mir.Function, mod *mir.Module) bool {
	p.eliminated = 0
	if fn.Entry() == nil {
		return false
	}
	dom := fn.Dominators()

	// Children of each block in the dominator tree, insertion-ordered.
	children := map[mir.BlockID][]mir.BlockID{}
	for _, b := range fn.Blocks() {
		if idom, ok := dom.IDom(b.ID); ok {
			children[idom] = append(children[idom], b.ID)
		}
	}

	changed := false
	var walk func(id mir.BlockID, table map[string]mir.Value)
	walk = func(id mir.BlockID, table map[string]mir.Value) {
		b := fn.Block(id)
		if b == nil {
			return
		}
		insts := b.Instructions()
		kept := insts[:0]
		for _, rec := range insts {
			key, ok := cseKey(rec.Inst)
			if !ok || !rec.Result.Valid() {
				kept = append(kept, rec)
				continue
			}
			if prior, seen := table[key]; seen {
				replaceUses(fn, rec.Result, prior)
				p.eliminated++
				changed = true
				continue
			}
			table[key] = rec.Result
			kept = append(kept, rec)
		}
		b.SetInstructions(kept)
		for _, c := range children[id] {
			// Each child scopes its own copy so siblings don't see each
			// other's expressions.
			scoped := make(map[string]mir.Value, len(table))
			for k, v := range table {
				scoped[k] = v
			}
			walk(c, scoped)
		}
	}
	walk(fn.Entry().ID, map[string]mir.Value{})
	return changed
}

// cseKey produces a structural key for instructions that are safe to merge:
// pure arithmetic, casts, aggregate reads, and constants.
func cseKey(inst mir.Instruction) (string, bool) {
	switch i := inst.(type) {
	case *mir.BinaryInst:
		return fmt.Sprintf("bin/%d/%d/%d", i.Op, i.L.ID(), i.R.ID()), true
	case *mir.UnaryInst:
		return fmt.Sprintf("un/%d/%d", i.Op, i.Operand.ID()), true
	case *mir.CastInst:
		return fmt.Sprintf("cast/%d/%d/%s", i.Kind, i.Operand.ID(), i.Target.String()), true
	case *mir.ExtractValueInst:
		return fmt.Sprintf("ext/%d/%v", i.Agg.ID(), i.Indices), true
	case *mir.ConstIntInst:
		return fmt.Sprintf("ci/%d/%d/%t", i.Value, i.Bits, i.Signed), true
	case *mir.ConstBoolInst:
		return fmt.Sprintf("cb/%t", i.Value), true
	case *mir.ConstFloatInst:
		return fmt.Sprintf("cf/%g/%t", i.Value, i.Is64Bit), true
	case *mir.ConstStringInst:
		return "cs/" + i.Value, true
	case *mir.GetElementPtrInst:
		if i.Bounds.Checked && !i.Bounds.Eliminated {
			// A still-checked GEP carries the bounds trap; merging would
			// drop one of the checks.
			return "", false
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "gep/%d", i.Base.ID())
		for _, v := range i.Indices {
			fmt.Fprintf(&sb, "/%d", v.ID())
		}
		return sb.String(), true
	}
	return "", false
}
