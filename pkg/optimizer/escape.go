package optimizer

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/lumen-lang/lumenc/pkg/mir"
	"github.com/lumen-lang/lumenc/pkg/pass"
	"github.com/lumen-lang/lumenc/pkg/types"
)

// EscapeState is the per-allocation escape lattice, ordered so
// that the join of two states is their max.
type EscapeState int

const (
	NoEscape EscapeState = iota
	ArgEscape
	ReturnEscape
	GlobalEscape
	EscapeUnknown
)

func (s EscapeState) String() string {
	switch s {
	case NoEscape:
		return "no-escape"
	case ArgEscape:
		return "arg-escape"
	case ReturnEscape:
		return "return-escape"
	case GlobalEscape:
		return "global-escape"
	default:
		return "unknown"
	}
}

func joinEscape(a, b EscapeState) EscapeState {
	if b > a {
		return b
	}
	return a
}

// isHeapAlloc recognizes an allocation-producing call by name: the runtime
// allocator entry points plus the Type_new / Type::new constructor
// convention.
func isHeapAlloc(name string) bool {
	switch name {
	case "malloc", "alloc", "calloc", "gc_alloc":
		return true
	}
	return strings.HasSuffix(name, "_new") || strings.HasSuffix(name, "::new")
}

// isConstructorCall reports whether the callee follows the Type_new /
// Type::new constructor convention. Escape tracking treats constructor
// results like any other allocation; stack promotion names the alloca after
// the constructed type and can take that type's struct as the layout.
func isConstructorCall(name string) bool {
	return strings.HasSuffix(name, "_new") || strings.HasSuffix(name, "::new")
}

// constructorTypeName extracts the type a constructor call produces.
func constructorTypeName(name string) string {
	if t, ok := strings.CutSuffix(name, "::new"); ok {
		return t
	}
	if t, ok := strings.CutSuffix(name, "_new"); ok {
		return t
	}
	return ""
}

// EscapeResult is the computed per-value escape state for one function's
// allocation sites and everything derived from them.
type EscapeResult struct {
	States map[uint32]EscapeState
	// roots maps a derived value back to the allocation sites it may alias.
	roots map[uint32][]uint32
}

// StateOf returns the escape state of value id, or EscapeUnknown for values
// the analysis never tracked.
func (r *EscapeResult) StateOf(id uint32) EscapeState {
	if s, ok := r.States[id]; ok {
		return s
	}
	return EscapeUnknown
}

// AnalyzeEscapes runs the fixed-point escape propagation over one
// function. Only allocation-producing call results (and values
// derived from them via GEP/Cast/Select/Phi) are tracked.
func AnalyzeEscapes(fn *mir.Function, mod *mir.Module) *EscapeResult {
	res := &EscapeResult{States: map[uint32]EscapeState{}, roots: map[uint32][]uint32{}}

	for _, b := range fn.Blocks() {
		for _, rec := range b.Instructions() {
			call, ok := rec.Inst.(*mir.CallInst)
			if !ok || !rec.Result.Valid() || !isHeapAlloc(call.FuncName) {
				continue
			}
			id := rec.Result.ID()
			res.States[id] = NoEscape
			res.roots[id] = []uint32{id}
		}
	}
	if len(res.States) == 0 {
		return res
	}

	escalate := func(v mir.Value, s EscapeState) bool {
		changed := false
		for _, root := range res.roots[v.ID()] {
			if next := joinEscape(res.States[root], s); next != res.States[root] {
				res.States[root] = next
				changed = true
			}
		}
		return changed
	}

	calleeIsPure := func(name string) bool {
		callee := mod.Function(name)
		return callee != nil && (callee.HasAttribute("pure") || callee.HasAttribute("readonly"))
	}

	for changed := true; changed; {
		changed = false
		for _, b := range fn.Blocks() {
			for _, rec := range b.Instructions() {
				switch inst := rec.Inst.(type) {
				case *mir.GetElementPtrInst:
					changed = propagateRoots(res, rec.Result, inst.Base) || changed
				case *mir.CastInst:
					changed = propagateRoots(res, rec.Result, inst.Operand) || changed
				case *mir.SelectInst:
					changed = propagateRoots(res, rec.Result, inst.True, inst.False) || changed
				case *mir.PhiInst:
					for _, in := range inst.Incoming {
						changed = propagateRoots(res, rec.Result, in.Value) || changed
					}
				case *mir.StoreInst:
					// Storing a tracked pointer through a pointer we cannot
					// prove local means it may reach a global.
					if len(res.roots[inst.Val.ID()]) > 0 && len(res.roots[inst.Ptr.ID()]) == 0 {
						changed = escalate(inst.Val, GlobalEscape) || changed
					}
				case *mir.CallInst:
					if isHeapAlloc(inst.FuncName) {
						continue
					}
					if calleeIsPure(inst.FuncName) {
						continue
					}
					for _, a := range inst.Args {
						changed = escalate(a, ArgEscape) || changed
					}
				case *mir.MethodCallInst:
					// A method call may leak `this` unless the method body was
					// analysed pure; constructor-tracked receivers stay local
					// through pure methods.
					if !calleeIsPure(inst.Method) {
						changed = escalate(inst.Receiver, ArgEscape) || changed
					}
					for _, a := range inst.Args {
						changed = escalate(a, ArgEscape) || changed
					}
				}
			}
			if ret, ok := b.Terminator().(*mir.ReturnTerm); ok && ret.Value.Valid() {
				changed = escalate(ret.Value, ReturnEscape) || changed
			}
		}
	}
	return res
}

func propagateRoots(res *EscapeResult, result mir.Value, srcs ...mir.Value) bool {
	if !result.Valid() {
		return false
	}
	changed := false
	have := map[uint32]bool{}
	for _, r := range res.roots[result.ID()] {
		have[r] = true
	}
	for _, src := range srcs {
		for _, root := range res.roots[src.ID()] {
			if !have[root] {
				res.roots[result.ID()] = append(res.roots[result.ID()], root)
				have[root] = true
				changed = true
			}
		}
	}
	return changed
}

// StackPromotionStats reports what stack promotion did to one function.
type StackPromotionStats struct {
	Promoted   int
	BytesSaved int
}

func (s *StackPromotionStats) Summary() string {
	if s.Promoted == 0 {
		return "no promotable allocations"
	}
	return fmt.Sprintf("promoted %d heap allocation(s) to stack, %s saved",
		s.Promoted, humanize.Bytes(uint64(s.BytesSaved)))
}

// StackPromotion rewrites heap allocation calls whose results provably do
// not escape into Alloca of the equivalent layout.
type StackPromotion struct {
	stats StackPromotionStats
}

func (p *StackPromotion) Name() string         { return "stack-promotion" }
func (p *StackPromotion) LastStats() pass.Stats { return &p.stats }

func (p *StackPromotion) Run(fn *mir.Function, mod *mir.Module) bool {
	p.stats = StackPromotionStats{}
	esc := AnalyzeEscapes(fn, mod)
	if len(esc.States) == 0 {
		return false
	}

	defs := functionDefs(fn)
	changed := false
	for _, b := range fn.Blocks() {
		insts := b.Instructions()
		for i, rec := range insts {
			call, ok := rec.Inst.(*mir.CallInst)
			if !ok || !rec.Result.Valid() || !isHeapAlloc(call.FuncName) {
				continue
			}
			if esc.States[rec.Result.ID()] != NoEscape {
				continue
			}
			allocType := promotedLayout(rec, call, mod, defs)
			if allocType == nil {
				continue
			}
			name := call.FuncName
			if isConstructorCall(name) {
				name = constructorTypeName(name)
			}
			insts[i].Inst = &mir.AllocaInst{AllocType: allocType, Name: name}
			p.stats.Promoted++
			p.stats.BytesSaved += types.SizeOf(allocType, 8)
			changed = true
		}
	}
	return changed
}

// promotedLayout picks the Alloca's allocated type: the pointee of a typed
// allocation result, the constructed type for a constructor call, or a byte
// array sized by a constant allocator argument.
func promotedLayout(rec mir.InstructionRecord, call *mir.CallInst, mod *mir.Module, defs map[uint32]mir.InstructionRecord) *types.Type {
	if rec.Type != nil && rec.Type.Kind() == types.KindPointer {
		return rec.Type.Pointee()
	}
	if isConstructorCall(call.FuncName) {
		name := constructorTypeName(call.FuncName)
		if _, ok := mod.Structs[name]; ok {
			return types.Struct(name)
		}
	}
	if len(call.Args) == 1 {
		// Untyped alloc(size): only a constant size can become a fixed
		// byte array; a dynamic size stays on the heap.
		if size, ok := constIntValue(defs, call.Args[0]); ok && size > 0 {
			return types.Array(types.U8(), size)
		}
	}
	return nil
}
