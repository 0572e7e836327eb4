package optimizer

import (
	"fmt"

	"github.com/lumen-lang/lumenc/pkg/mir"
	"github.com/lumen-lang/lumenc/pkg/pass"
	"github.com/lumen-lang/lumenc/pkg/types"
)

// DefaultSretThreshold is the return-type size, in bytes, at which a function
// is converted to the sret calling convention.
const DefaultSretThreshold = 16

// RvoStats reports NRVO detection results.
type RvoStats struct {
	Earmarked int
}

func (s *RvoStats) Summary() string {
	return fmt.Sprintf("earmarked %d function(s) for named return slot", s.Earmarked)
}

// Rvo detects the named-return-value pattern: every return site returns the
// same local (not a parameter). Detected functions are earmarked with the
// "nrvo" attribute so the later sret conversion can redirect stores of that
// local straight into the caller-provided return buffer.
type Rvo struct {
	stats RvoStats
}

func (p *Rvo) Name() string          { return "rvo" }
func (p *Rvo) LastStats() pass.Stats { return &p.stats }

func (p *Rvo) Run(fn *mir.Function, mod *mir.Module) bool {
	if fn.HasAttribute("nrvo") {
		return false
	}
	if _, ok := namedReturnSlot(fn); !ok {
		return false
	}
	fn.AddAttribute("nrvo")
	p.stats.Earmarked++
	return true
}

// namedReturnSlot returns the Alloca whose loads feed every return site, or
// the single SSA value every site returns, when either pattern holds.
func namedReturnSlot(fn *mir.Function) (mir.Value, bool) {
	defs := functionDefs(fn)
	params := map[uint32]bool{}
	for _, p := range fn.Params {
		params[p.Value.ID()] = true
	}

	var slot mir.Value
	sites := 0
	for _, b := range fn.Blocks() {
		ret, ok := b.Terminator().(*mir.ReturnTerm)
		if !ok || !ret.Value.Valid() {
			continue
		}
		sites++
		v := ret.Value
		// Returning `load slot` counts as returning the slot itself.
		if rec, ok := defs[v.ID()]; ok {
			if load, ok := rec.Inst.(*mir.LoadInst); ok {
				if srec, ok := defs[load.Ptr.ID()]; ok {
					if _, isAlloca := srec.Inst.(*mir.AllocaInst); isAlloca {
						v = load.Ptr
					}
				}
			}
		}
		if params[v.ID()] {
			return mir.InvalidValue, false
		}
		if !slot.Valid() {
			slot = v
		} else if slot.ID() != v.ID() {
			return mir.InvalidValue, false
		}
	}
	if sites == 0 || !slot.Valid() {
		return mir.InvalidValue, false
	}
	return slot, true
}

// ModuleRvo runs NRVO detection across the whole module and marks every
// function whose return type meets the sret size threshold as a conversion
// candidate. Splitting the decision (here) from the rewrite
// (SretConversion) lets inlining run in between, since inlined-away
// functions never need the convention.
type ModuleRvo struct {
	Threshold int
	stats     RvoStats
}

func (p *ModuleRvo) Name() string          { return "module-rvo" }
func (p *ModuleRvo) LastStats() pass.Stats { return &p.stats }

func (p *ModuleRvo) Run(mod *mir.Module) bool {
	threshold := p.Threshold
	if threshold == 0 {
		threshold = DefaultSretThreshold
	}
	rvo := &Rvo{}
	changed := false
	for _, fn := range mod.Functions {
		if rvo.Run(fn, mod) {
			changed = true
		}
		if fn.ReturnType != nil && !fn.Flags.UsesSret &&
			isAggregate(fn.ReturnType) && aggregateSize(mod, fn.ReturnType) >= threshold {
			if !fn.HasAttribute("sret-candidate") {
				fn.AddAttribute("sret-candidate")
				changed = true
			}
		}
	}
	p.stats = rvo.stats
	return changed
}

// aggregateSize resolves a type's byte size using the module's struct/enum
// layouts where types.SizeOf alone would only see the nominal shell.
func aggregateSize(mod *mir.Module, t *types.Type) int {
	switch t.Kind() {
	case types.KindStruct:
		if def, ok := mod.Structs[types.Mangle(t)]; ok {
			total := 0
			for _, f := range def.Fields {
				total += aggregateSize(mod, f.Type)
			}
			return total
		}
	case types.KindEnum:
		if def, ok := mod.Enums[types.Mangle(t)]; ok {
			widest := 0
			for _, v := range def.Variants {
				sz := 0
				for _, pt := range v.Payload {
					sz += aggregateSize(mod, pt)
				}
				if sz > widest {
					widest = sz
				}
			}
			return 8 + widest
		}
	}
	return types.SizeOf(t, 8)
}

func isAggregate(t *types.Type) bool {
	switch t.Kind() {
	case types.KindStruct, types.KindEnum, types.KindTuple, types.KindArray:
		return true
	}
	return false
}

// SretStats reports sret conversions.
type SretStats struct {
	Converted    int
	CallsRewritten int
}

func (s *SretStats) Summary() string {
	return fmt.Sprintf("converted %d function(s) to sret, rewrote %d call site(s)", s.Converted, s.CallsRewritten)
}

// SretConversion rewrites every sret-candidate function to take a hidden
// first-parameter return pointer and return unit, then rewrites every call
// site to allocate the buffer and load the result. Runs strictly after all
// inlining; the original return type is preserved on the
// function record (OriginalReturnType), where call-site rewriting reads it.
type SretConversion struct {
	Threshold int
	stats     SretStats
}

func (p *SretConversion) Name() string          { return "sret-conversion" }
func (p *SretConversion) LastStats() pass.Stats { return &p.stats }

func (p *SretConversion) Run(mod *mir.Module) bool {
	p.stats = SretStats{}
	threshold := p.Threshold
	if threshold == 0 {
		threshold = DefaultSretThreshold
	}
	converted := map[string]*mir.Function{}
	for _, fn := range mod.Functions {
		if fn.Flags.UsesSret {
			continue
		}
		// Marked candidates from ModuleRvo, plus the size rule directly so
		// sret conversion stays essential at O0 where ModuleRvo never ran.
		eligible := fn.HasAttribute("sret-candidate") ||
			(fn.ReturnType != nil && isAggregate(fn.ReturnType) && aggregateSize(mod, fn.ReturnType) >= threshold)
		if !eligible {
			continue
		}
		p.convertFunction(fn, mod)
		converted[fn.Name] = fn
		p.stats.Converted++
	}
	if len(converted) == 0 {
		return false
	}
	for _, fn := range mod.Functions {
		p.rewriteCallSites(fn, converted, mod)
	}
	return true
}

func (p *SretConversion) convertFunction(fn *mir.Function, mod *mir.Module) {
	ret := fn.ReturnType
	sretType := mod.Interner().Intern(types.Pointer(ret, true))
	sretParam := mir.NewValue(fn.NewValueID(), sretType)
	fn.Params = append([]mir.Param{{Name: "sret.out", Type: sretType, Value: sretParam}}, fn.Params...)
	fn.OriginalReturnType = ret
	fn.ReturnType = types.Unit()
	fn.Flags.UsesSret = true

	// NRVO-earmarked slot: the named local's alloca becomes an alias of the
	// return buffer, so every store to it lands directly in the caller's
	// storage.
	if fn.HasAttribute("nrvo") {
		if slot, ok := namedReturnSlot(fn); ok {
			defs := functionDefs(fn)
			if rec, ok := defs[slot.ID()]; ok {
				if _, isAlloca := rec.Inst.(*mir.AllocaInst); isAlloca {
					replaceUses(fn, slot, sretParam)
					removeDef(fn, slot)
				}
			}
		}
	}

	defs := functionDefs(fn)
	for _, b := range fn.Blocks() {
		retTerm, ok := b.Terminator().(*mir.ReturnTerm)
		if !ok {
			continue
		}
		if retTerm.Value.Valid() {
			storeNeeded := true
			if rec, ok := defs[retTerm.Value.ID()]; ok {
				if load, ok := rec.Inst.(*mir.LoadInst); ok && load.Ptr.ID() == sretParam.ID() {
					// The value already lives in the return buffer.
					storeNeeded = false
				}
			}
			if storeNeeded {
				b.SetInstructions(append(b.Instructions(), mir.InstructionRecord{
					Inst: &mir.StoreInst{Ptr: sretParam, Val: retTerm.Value},
				}))
			}
		}
		b.ReplaceTerminator(&mir.ReturnTerm{})
	}
	fn.Touch()
}

func (p *SretConversion) rewriteCallSites(fn *mir.Function, converted map[string]*mir.Function, mod *mir.Module) {
	for _, b := range fn.Blocks() {
		insts := b.Instructions()
		var out []mir.InstructionRecord
		changed := false
		for _, rec := range insts {
			call, ok := rec.Inst.(*mir.CallInst)
			callee := (*mir.Function)(nil)
			if ok {
				callee = converted[call.FuncName]
			}
			if callee == nil {
				out = append(out, rec)
				continue
			}
			retType := callee.OriginalReturnType
			ptrType := mod.Interner().Intern(types.Pointer(retType, true))
			buf := mir.NewValue(fn.NewValueID(), ptrType)
			out = append(out,
				mir.InstructionRecord{
					Inst:   &mir.AllocaInst{AllocType: retType, Name: "sret.tmp"},
					Result: buf,
					Type:   ptrType,
				},
				mir.InstructionRecord{
					Inst: &mir.CallInst{FuncName: call.FuncName, Args: append([]mir.Value{buf}, call.Args...)},
					Span: rec.Span,
				},
			)
			if rec.Result.Valid() {
				// The load keeps the original result value so downstream
				// uses stay bound without rewriting.
				out = append(out, mir.InstructionRecord{
					Inst:   &mir.LoadInst{Ptr: buf},
					Result: rec.Result,
					Type:   retType,
				})
			}
			p.stats.CallsRewritten++
			changed = true
		}
		if changed {
			b.SetInstructions(out)
		}
	}
}

// removeDef deletes the instruction record defining v.
func removeDef(fn *mir.Function, v mir.Value) {
	for _, b := range fn.Blocks() {
		insts := b.Instructions()
		for i, rec := range insts {
			if rec.Result.Valid() && rec.Result.ID() == v.ID() {
				b.SetInstructions(append(insts[:i:i], insts[i+1:]...))
				return
			}
		}
	}
}
