package optimizer

import (
	"fmt"

	"github.com/lumen-lang/lumenc/pkg/diag"
	"github.com/lumen-lang/lumenc/pkg/mir"
)

// InfLoopCheck flags loops reachable from entry with no exit: no block in
// the loop returns or branches out, and the header condition (if any) is
// statically true-only. Findings are error severity and
// fail the build.
type InfLoopCheck struct {
	diags []diag.Diagnostic
}

func (p *InfLoopCheck) Name() string                  { return "infinite-loop-check" }
func (p *InfLoopCheck) Diagnostics() []diag.Diagnostic { return p.diags }
func (p *InfLoopCheck) HasErrors() bool               { return len(p.diags) > 0 }

func (p *InfLoopCheck) Run(fn *mir.Function, mod *mir.Module) bool {
	reachable := map[mir.BlockID]bool{}
	for _, id := range fn.ReversePostOrder() {
		reachable[id] = true
	}
	defs := functionDefs(fn)

	for _, l := range FindLoops(fn) {
		if !reachable[l.Header] {
			continue
		}
		if loopHasExit(fn, l) {
			continue
		}
		if !headerAlwaysTaken(fn, l, defs) {
			continue
		}
		header := fn.Block(l.Header)
		name := ""
		if header != nil {
			name = header.Name
		}
		p.diags = append(p.diags, diag.Diagnostic{
			Severity: diag.SeverityError,
			Pass:     p.Name(),
			Function: fn.Name,
			Block:    name,
			Message:  fmt.Sprintf("infinite loop in function %q: loop at block %q has no exit", fn.Name, name),
			Reason:   "the loop body contains no return or break and the header condition is always true",
		})
	}
	return false
}

// headerAlwaysTaken reports whether control entering the header can never
// leave the loop: an unconditional branch back in, or a conditional on a
// constant-true value.
func headerAlwaysTaken(fn *mir.Function, l *LoopInfo, defs map[uint32]mir.InstructionRecord) bool {
	header := fn.Block(l.Header)
	if header == nil {
		return false
	}
	switch t := header.Terminator().(type) {
	case *mir.BranchTerm:
		return l.Contains(t.Target)
	case *mir.CondBranchTerm:
		rec, ok := defs[t.Cond.ID()]
		if !ok {
			return false
		}
		c, ok := rec.Inst.(*mir.ConstBoolInst)
		if !ok {
			return false
		}
		if c.Value {
			return l.Contains(t.TrueBlk)
		}
		return l.Contains(t.FalseBlk)
	}
	return false
}
