package optimizer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lumen-lang/lumenc/pkg/diag"
	"github.com/lumen-lang/lumenc/pkg/mir"
)

// consumePattern matches callee names that take ownership of an argument.
var consumePattern = regexp.MustCompile(`push|add|insert|set_|store|take|consume`)

func isFreeCall(name string) bool {
	switch name {
	case "free", "destroy", "drop":
		return true
	}
	return strings.HasSuffix(name, "_free") || strings.HasSuffix(name, "_destroy") ||
		strings.HasSuffix(name, "_drop") || strings.HasSuffix(name, "::drop")
}

// isArenaAlloc recognizes arena-scoped allocations, which are reclaimed in
// bulk and never individually freed.
func isArenaAlloc(name string) bool {
	return strings.Contains(name, "arena")
}

func isLeakTrackedAlloc(name string) bool {
	if isArenaAlloc(name) {
		return false
	}
	return isHeapAlloc(name) || strings.HasSuffix(name, "_create") || strings.HasSuffix(name, "::create")
}

// MemLeakCheck is a pure analysis: every heap-producing
// call result must be freed, returned, stored into a field, or passed to an
// ownership-consuming callee along some path. Each unreached allocation
// produces one error-severity diagnostic, fatal to the build.
type MemLeakCheck struct {
	diags []diag.Diagnostic
}

func (p *MemLeakCheck) Name() string                  { return "memory-leak-check" }
func (p *MemLeakCheck) Diagnostics() []diag.Diagnostic { return p.diags }

// HasErrors reports whether any leak was found during the last Run.
func (p *MemLeakCheck) HasErrors() bool { return len(p.diags) > 0 }

func (p *MemLeakCheck) Run(fn *mir.Function, mod *mir.Module) bool {
	type allocSite struct {
		value mir.Value
		block *mir.BasicBlock
		call  *mir.CallInst
		span  mir.Span
	}
	var allocs []allocSite
	for _, b := range fn.Blocks() {
		for _, rec := range b.Instructions() {
			call, ok := rec.Inst.(*mir.CallInst)
			if !ok || !rec.Result.Valid() || !isLeakTrackedAlloc(call.FuncName) {
				continue
			}
			allocs = append(allocs, allocSite{rec.Result, b, call, rec.Span})
		}
	}
	if len(allocs) == 0 {
		return false
	}

	// Aliases: a value derived through cast/select/phi/gep carries the
	// allocation with it for ownership-transfer purposes.
	aliases := map[uint32]map[uint32]bool{}
	for _, a := range allocs {
		aliases[a.value.ID()] = map[uint32]bool{a.value.ID(): true}
	}
	for changed := true; changed; {
		changed = false
		for _, b := range fn.Blocks() {
			for _, rec := range b.Instructions() {
				if !rec.Result.Valid() {
					continue
				}
				var srcs []mir.Value
				switch inst := rec.Inst.(type) {
				case *mir.CastInst:
					srcs = []mir.Value{inst.Operand}
				case *mir.SelectInst:
					srcs = []mir.Value{inst.True, inst.False}
				case *mir.GetElementPtrInst:
					srcs = []mir.Value{inst.Base}
				case *mir.PhiInst:
					for _, in := range inst.Incoming {
						srcs = append(srcs, in.Value)
					}
				}
				for _, src := range srcs {
					for root := range aliasRoots(aliases, src.ID()) {
						set := aliases[root]
						if !set[rec.Result.ID()] {
							set[rec.Result.ID()] = true
							changed = true
						}
					}
				}
			}
		}
	}

	reached := map[uint32]string{} // alloc value id -> how ownership left
	mark := func(v mir.Value, how string) {
		for root := range aliasRoots(aliases, v.ID()) {
			if _, ok := reached[root]; !ok {
				reached[root] = how
			}
		}
	}

	for _, b := range fn.Blocks() {
		for _, rec := range b.Instructions() {
			switch inst := rec.Inst.(type) {
			case *mir.CallInst:
				if isFreeCall(inst.FuncName) {
					for _, a := range inst.Args {
						mark(a, "freed")
					}
					continue
				}
				if consumePattern.MatchString(inst.FuncName) {
					for _, a := range inst.Args {
						mark(a, "consumed")
					}
				}
			case *mir.MethodCallInst:
				if isFreeCall(inst.Method) {
					mark(inst.Receiver, "freed")
					continue
				}
				if consumePattern.MatchString(inst.Method) {
					for _, a := range inst.Args {
						mark(a, "consumed")
					}
				}
			case *mir.StoreInst:
				mark(inst.Val, "stored")
			case *mir.InsertValueInst:
				mark(inst.Val, "stored")
			case *mir.StructInitInst:
				for _, f := range inst.Fields {
					mark(f, "stored")
				}
			case *mir.EnumInitInst:
				for _, v := range inst.Payload {
					mark(v, "stored")
				}
			case *mir.TupleInitInst:
				for _, v := range inst.Elems {
					mark(v, "stored")
				}
			case *mir.ClosureInitInst:
				for _, v := range inst.Captures {
					mark(v, "captured")
				}
			}
		}
		if ret, ok := b.Terminator().(*mir.ReturnTerm); ok && ret.Value.Valid() {
			mark(ret.Value, "returned")
		}
	}

	for _, a := range allocs {
		if _, ok := reached[a.value.ID()]; ok {
			continue
		}
		p.diags = append(p.diags, diag.Diagnostic{
			Severity: diag.SeverityError,
			Pass:     p.Name(),
			Function: fn.Name,
			Block:    a.block.Name,
			Message: fmt.Sprintf("allocation from %q in function %q is never freed, returned, stored, or passed on",
				a.call.FuncName, fn.Name),
			Reason: "the result of the call leaves scope with no reachable free, ownership transfer, or return",
			File:   a.span.File,
			Line:   a.span.Line,
			Col:    a.span.Col,
		})
	}
	return false
}

// aliasRoots returns the allocation roots whose alias set contains id.
func aliasRoots(aliases map[uint32]map[uint32]bool, id uint32) map[uint32]bool {
	roots := map[uint32]bool{}
	for root, set := range aliases {
		if set[id] {
			roots[root] = true
		}
	}
	return roots
}
