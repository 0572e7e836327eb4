package optimizer

import (
	"fmt"
	"strings"

	"github.com/lumen-lang/lumenc/pkg/mir"
	"github.com/lumen-lang/lumenc/pkg/pass"
	"github.com/lumen-lang/lumenc/pkg/types"
)

// DefaultPromotionThreshold is the pointee-size limit, in bytes, below which
// a by-reference parameter is promoted to by-value.
const DefaultPromotionThreshold = 16

// IpoStats aggregates the three interprocedural sub-passes.
type IpoStats struct {
	Specialized int
	Promoted    int
	Attributed  int
}

func (s *IpoStats) Summary() string {
	return fmt.Sprintf("specialized %d param(s), promoted %d arg(s), inferred attributes on %d function(s)",
		s.Specialized, s.Promoted, s.Attributed)
}

// callSite is one direct call to a named function.
type callSite struct {
	caller *mir.Function
	block  *mir.BasicBlock
	index  int
	call   *mir.CallInst
}

// collectCallSites gathers every direct call in the module, keyed by callee
// name, in deterministic function/block/instruction order.
func collectCallSites(mod *mir.Module) map[string][]callSite {
	sites := map[string][]callSite{}
	for _, fn := range mod.Functions {
		for _, b := range fn.Blocks() {
			for i, rec := range b.Instructions() {
				if call, ok := rec.Inst.(*mir.CallInst); ok && call.FuncName != "" {
					sites[call.FuncName] = append(sites[call.FuncName], callSite{fn, b, i, call})
				}
			}
		}
	}
	return sites
}

// Ipcp is interprocedural constant propagation: when every call site passes
// the same constant for a parameter, the parameter is specialized to that
// constant inside the callee. Recursive edges are not
// specialized on; recursion keeps the conservative answer.
type Ipcp struct {
	stats IpoStats
}

func (p *Ipcp) Name() string          { return "ipcp" }
func (p *Ipcp) LastStats() pass.Stats { return &p.stats }

func (p *Ipcp) Run(mod *mir.Module) bool {
	p.stats = IpoStats{}
	sites := collectCallSites(mod)
	changed := false
	for _, fn := range mod.Functions {
		calls := sites[fn.Name]
		if len(calls) == 0 || isRecursive(fn) {
			continue
		}
		for pi, param := range fn.Params {
			c, ok := commonConstArg(calls, pi)
			if !ok || !param.Type.IsInteger() {
				continue
			}
			p.specialize(fn, pi, c)
			p.stats.Specialized++
			changed = true
		}
	}
	return changed
}

// commonConstArg returns the constant every site passes at index pi, if one
// exists.
func commonConstArg(calls []callSite, pi int) (int64, bool) {
	var common int64
	for i, site := range calls {
		if pi >= len(site.call.Args) {
			return 0, false
		}
		defs := functionDefs(site.caller)
		c, ok := constIntValue(defs, site.call.Args[pi])
		if !ok {
			return 0, false
		}
		if i == 0 {
			common = c
		} else if c != common {
			return 0, false
		}
	}
	return common, true
}

// specialize materializes the constant at the top of the entry block and
// redirects every use of the parameter to it. The signature is unchanged;
// callers keep passing the (now ignored) argument.
func (p *Ipcp) specialize(fn *mir.Function, pi int, c int64) {
	param := fn.Params[pi]
	entry := fn.Entry()
	if entry == nil {
		return
	}
	t := param.Type
	cv := mir.NewValue(fn.NewValueID(), t)
	rec := mir.InstructionRecord{
		Inst:   &mir.ConstIntInst{Value: c, Bits: t.BitWidth(), Signed: t.IsSigned()},
		Result: cv,
		Type:   t,
	}
	entry.SetInstructions(append([]mir.InstructionRecord{rec}, entry.Instructions()...))
	replaceUses(fn, param.Value, cv)
	fn.AddAttribute(fmt.Sprintf("specialized.%s=%d", param.Name, c))
}

func isRecursive(fn *mir.Function) bool {
	for _, b := range fn.Blocks() {
		for _, rec := range b.Instructions() {
			if call, ok := rec.Inst.(*mir.CallInst); ok && call.FuncName == fn.Name {
				return true
			}
		}
	}
	return false
}

// ArgPromotion converts small by-reference parameters that do not escape
// into by-value parameters, rewriting every call site.
type ArgPromotion struct {
	Threshold int
	stats     IpoStats
}

func (p *ArgPromotion) Name() string          { return "arg-promotion" }
func (p *ArgPromotion) LastStats() pass.Stats { return &p.stats }

func (p *ArgPromotion) Run(mod *mir.Module) bool {
	threshold := p.Threshold
	if threshold == 0 {
		threshold = DefaultPromotionThreshold
	}
	p.stats = IpoStats{}
	sites := collectCallSites(mod)
	changed := false
	for _, fn := range mod.Functions {
		for pi := range fn.Params {
			if !p.promotable(fn, pi, threshold) {
				continue
			}
			p.promote(fn, pi, sites[fn.Name], mod)
			p.stats.Promoted++
			changed = true
		}
	}
	return changed
}

// promotable: the parameter is a pointer to a small type, used only as the
// address of loads inside the body (no store through it, no escape).
func (p *ArgPromotion) promotable(fn *mir.Function, pi, threshold int) bool {
	param := fn.Params[pi]
	t := param.Type
	if t.Kind() != types.KindPointer || t.Pointee() == nil {
		return false
	}
	if types.SizeOf(t.Pointee(), 8) > threshold {
		return false
	}
	id := param.Value.ID()
	for _, b := range fn.Blocks() {
		for _, rec := range b.Instructions() {
			usesParam := false
			for _, v := range instOperands(rec.Inst) {
				if v.ID() == id {
					usesParam = true
				}
			}
			if !usesParam {
				continue
			}
			load, ok := rec.Inst.(*mir.LoadInst)
			if !ok || load.Ptr.ID() != id || load.Volatile {
				return false
			}
		}
		for _, v := range termOperands(b.Terminator()) {
			if v.ID() == id {
				return false
			}
		}
	}
	return true
}

// promote rewrites the parameter to by-value: body loads of the pointer
// become the parameter itself, and each call site passes a load of its
// pointer argument instead of the pointer.
func (p *ArgPromotion) promote(fn *mir.Function, pi int, calls []callSite, mod *mir.Module) {
	param := fn.Params[pi]
	pointee := param.Type.Pointee()
	newParam := mir.NewValue(fn.NewValueID(), pointee)
	fn.Params[pi] = mir.Param{Name: param.Name, Type: pointee, Value: newParam}

	for _, b := range fn.Blocks() {
		insts := b.Instructions()
		kept := insts[:0]
		for _, rec := range insts {
			if load, ok := rec.Inst.(*mir.LoadInst); ok && load.Ptr.ID() == param.Value.ID() {
				replaceUses(fn, rec.Result, newParam)
				continue
			}
			kept = append(kept, rec)
		}
		b.SetInstructions(kept)
	}

	for _, site := range calls {
		if pi >= len(site.call.Args) {
			continue
		}
		ptrArg := site.call.Args[pi]
		loaded := mir.NewValue(site.caller.NewValueID(), pointee)
		loadRec := mir.InstructionRecord{
			Inst:   &mir.LoadInst{Ptr: ptrArg},
			Result: loaded,
			Type:   pointee,
		}
		insts := site.block.Instructions()
		// Insert the load immediately before the call; the call is located
		// by identity, since an earlier insertion in the same block shifts
		// the cached index.
		idx := indexOfCall(insts, site.call)
		if idx < 0 {
			continue
		}
		out := append(insts[:idx:idx], loadRec)
		out = append(out, insts[idx:]...)
		site.block.SetInstructions(out)
		site.call.Args[pi] = loaded
	}
}

func indexOfCall(insts []mir.InstructionRecord, call *mir.CallInst) int {
	for i, rec := range insts {
		if rec.Inst == mir.Instruction(call) {
			return i
		}
	}
	return -1
}

// isPanicCall reports callees that abort; calling one forfeits nothrow.
func isPanicCall(name string) bool {
	return name == "panic" || name == "abort" || strings.HasPrefix(name, "panic_")
}

// AttrInference deduces {pure, nothrow, readonly, norecurse, willreturn,
// speculatable} per function from its body, iterating over the call graph
// until stable. Mutually-recursive cycles settle on the conservative answer.
type AttrInference struct {
	stats IpoStats
}

func (p *AttrInference) Name() string          { return "attr-inference" }
func (p *AttrInference) LastStats() pass.Stats { return &p.stats }

func (p *AttrInference) Run(mod *mir.Module) bool {
	p.stats = IpoStats{}
	changed := false
	for iter := 0; iter < maxAttrIterations; iter++ {
		iterChanged := false
		for _, fn := range mod.Functions {
			if p.inferOne(fn, mod) {
				iterChanged = true
				changed = true
			}
		}
		if !iterChanged {
			break
		}
	}
	for _, fn := range mod.Functions {
		if fn.HasAttribute("pure") || fn.HasAttribute("readonly") || fn.HasAttribute("nothrow") {
			p.stats.Attributed++
		}
	}
	return changed
}

const maxAttrIterations = 8

func (p *AttrInference) inferOne(fn *mir.Function, mod *mir.Module) bool {
	readonly, nothrow, speculatable := true, true, true
	callsOnlyPure := true

	for _, b := range fn.Blocks() {
		for _, rec := range b.Instructions() {
			switch inst := rec.Inst.(type) {
			case *mir.StoreInst, *mir.AtomicStoreInst, *mir.AtomicRMWInst, *mir.CmpXchgInst:
				readonly = false
				speculatable = false
			case *mir.LoadInst:
				if inst.Volatile {
					readonly = false
					speculatable = false
				}
			case *mir.AtomicLoadInst, *mir.FenceInst, *mir.AwaitInst:
				speculatable = false
			case *mir.CallInst:
				callee := mod.Function(inst.FuncName)
				if isPanicCall(inst.FuncName) {
					nothrow = false
				}
				if callee == nil || !callee.HasAttribute("pure") {
					callsOnlyPure = false
					speculatable = false
				}
				if callee == nil || !callee.HasAttribute("readonly") {
					if callee == nil || !callee.HasAttribute("pure") {
						readonly = false
					}
				}
				if callee != nil && !callee.HasAttribute("nothrow") {
					nothrow = false
				}
			case *mir.MethodCallInst:
				callsOnlyPure = false
				readonly = false
				speculatable = false
			}
		}
	}

	norecurse := !isRecursive(fn)
	willreturn := norecurse && !hasUnboundedLoop(fn)
	pure := readonly && callsOnlyPure

	changed := false
	set := func(name string, val bool) {
		if val && !fn.HasAttribute(name) {
			fn.AddAttribute(name)
			changed = true
		}
	}
	set("readonly", readonly)
	set("pure", pure)
	set("nothrow", nothrow)
	set("norecurse", norecurse)
	set("willreturn", willreturn)
	set("speculatable", speculatable && pure && nothrow)
	return changed
}

// hasUnboundedLoop reports whether any natural loop lacks a conditional exit
// out of the loop and contains no return.
func hasUnboundedLoop(fn *mir.Function) bool {
	for _, l := range FindLoops(fn) {
		if loopHasExit(fn, l) {
			continue
		}
		return true
	}
	return false
}

func loopHasExit(fn *mir.Function, l *LoopInfo) bool {
	for id := range l.Blocks {
		b := fn.Block(id)
		if b == nil {
			continue
		}
		if _, ok := b.Terminator().(*mir.ReturnTerm); ok {
			return true
		}
		for _, succ := range b.Successors() {
			if !l.Contains(succ) {
				return true
			}
		}
	}
	return false
}

// Ipo composes the three interprocedural sub-passes in dependency order:
// attributes first (escape analysis consults them), then
// constant propagation, then argument promotion.
type Ipo struct {
	attrs AttrInference
	ipcp  Ipcp
	promo ArgPromotion
	stats IpoStats
}

func (p *Ipo) Name() string          { return "ipo" }
func (p *Ipo) LastStats() pass.Stats { return &p.stats }

func (p *Ipo) Run(mod *mir.Module) bool {
	changed := p.attrs.Run(mod)
	changed = p.ipcp.Run(mod) || changed
	changed = p.promo.Run(mod) || changed
	p.stats = IpoStats{
		Specialized: p.ipcp.stats.Specialized,
		Promoted:    p.promo.stats.Promoted,
		Attributed:  p.attrs.stats.Attributed,
	}
	return changed
}
