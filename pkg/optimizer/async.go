package optimizer

import (
	"fmt"
	"sort"

	"github.com/lumen-lang/lumenc/pkg/mir"
	"github.com/lumen-lang/lumenc/pkg/pass"
	"github.com/lumen-lang/lumenc/pkg/types"
)

// Poll enum variant indices, matching the standard Poll[T] sum type.
const (
	pollPending = 0
	pollReady   = 1
)

// AsyncStats reports async lowering activity.
type AsyncStats struct {
	Lowered int
	Awaits  int
}

func (s *AsyncStats) Summary() string {
	return fmt.Sprintf("lowered %d async function(s), %d suspension point(s)", s.Lowered, s.Awaits)
}

// AsyncLowering rewrites async functions into poll-form state machines:
// a synthesized state struct carries the state index and
// every value live across an await; each Await saves its lives, records its
// state, and returns Pending until the awaited value is ready; a dispatch
// switch at entry resumes at the recorded state. Runs late so prior
// optimizations see the pre-transformed form.
type AsyncLowering struct {
	stats AsyncStats
}

func (p *AsyncLowering) Name() string          { return "async-lowering" }
func (p *AsyncLowering) LastStats() pass.Stats { return &p.stats }

func (p *AsyncLowering) Run(fn *mir.Function, mod *mir.Module) bool {
	if !fn.Flags.IsAsync && !containsAwait(fn) {
		return false
	}
	if fn.HasAttribute("poll") {
		return false
	}
	lower := &asyncLowerer{fn: fn, mod: mod, slots: map[uint32]int{}}
	if !lower.run() {
		return false
	}
	p.stats.Lowered++
	p.stats.Awaits += lower.states
	return true
}

func containsAwait(fn *mir.Function) bool {
	for _, b := range fn.Blocks() {
		for _, rec := range b.Instructions() {
			if _, ok := rec.Inst.(*mir.AwaitInst); ok {
				return true
			}
		}
	}
	return false
}

type asyncLowerer struct {
	fn  *mir.Function
	mod *mir.Module

	stateType *types.Type
	stateDef  *mir.StructDef
	statePtr  mir.Value
	slots     map[uint32]int // saved value id -> state struct field index
	fields    []mir.FieldDef

	resume map[int]mir.BlockID // state index -> dispatch target
	states int
}

func (l *asyncLowerer) run() bool {
	fn := l.fn
	if countAwaits(fn) == 0 && !fn.Flags.IsAsync {
		return false
	}

	l.buildStateStruct()
	l.resume = map[int]mir.BlockID{}

	// Rewrite normal returns to Ready(v) first, so await splitting only ever
	// sees the poll-form returns it leaves behind.
	l.wrapReturns()

	// Lower awaits one at a time; each split invalidates positions, so the
	// list is re-collected per iteration.
	for k := 1; ; k++ {
		site, ok := firstAwait(fn)
		if !ok {
			break
		}
		l.lowerAwait(site, k)
		l.states = k
	}

	l.buildDispatch()

	fn.OriginalReturnType = fn.ReturnType
	fn.ReturnType = l.pollType()
	fn.Flags.IsAsync = true
	fn.AddAttribute("poll")
	fn.Touch()
	return true
}

type awaitSite struct {
	block *mir.BasicBlock
	index int
	inst  *mir.AwaitInst
	rec   mir.InstructionRecord
}

func collectAwaits(fn *mir.Function) []awaitSite {
	var out []awaitSite
	for _, b := range fn.Blocks() {
		for i, rec := range b.Instructions() {
			if aw, ok := rec.Inst.(*mir.AwaitInst); ok {
				out = append(out, awaitSite{b, i, aw, rec})
			}
		}
	}
	return out
}

func firstAwait(fn *mir.Function) (awaitSite, bool) {
	sites := collectAwaits(fn)
	if len(sites) == 0 {
		return awaitSite{}, false
	}
	return sites[0], true
}

// buildStateStruct registers the synthesized {state: i32, ...} struct and
// threads the state pointer in as the hidden first parameter. Saved-value
// slots are appended as each await is lowered (ensureSlot), which keeps the
// field order deterministic: dispatch field first, then lowering order.
func (l *asyncLowerer) buildStateStruct() {
	fn, mod := l.fn, l.mod
	i32 := mod.Interner().Intern(types.I32())
	l.fields = []mir.FieldDef{{Name: "state", Type: i32}}

	structName := fn.Name + ".state"
	l.stateType = mod.Interner().Intern(types.Struct(structName))
	l.stateDef = &mir.StructDef{Name: structName, Fields: l.fields}
	mod.AddStruct(types.Mangle(l.stateType), l.stateDef)

	ptrType := mod.Interner().Intern(types.Pointer(l.stateType, true))
	l.statePtr = mir.NewValue(fn.NewValueID(), ptrType)
	fn.Params = append([]mir.Param{{Name: "state", Type: ptrType, Value: l.statePtr}}, fn.Params...)
}

// ensureSlot returns v's state-struct field index, appending a new field on
// first sight.
func (l *asyncLowerer) ensureSlot(v mir.Value) int {
	if idx, ok := l.slots[v.ID()]; ok {
		return idx
	}
	idx := len(l.fields)
	l.fields = append(l.fields, mir.FieldDef{Name: fmt.Sprintf("v%d", v.ID()), Type: v.Type()})
	l.stateDef.Fields = l.fields
	l.slots[v.ID()] = idx
	return idx
}

// liveAcross approximates the values live over one await: anything defined
// at or before the await's position (block insertion order, then instruction
// index) and used strictly after it. Parameters are always live.
func liveAcross(fn *mir.Function, site awaitSite) []mir.Value {
	type pos struct{ block, inst int }
	blockPos := map[mir.BlockID]int{}
	for i, b := range fn.Blocks() {
		blockPos[b.ID] = i
	}
	at := pos{blockPos[site.block.ID], site.index}
	after := func(p pos) bool {
		return p.block > at.block || (p.block == at.block && p.inst > at.inst)
	}
	atOrBefore := func(p pos) bool { return !after(p) }

	defPos := map[uint32]pos{}
	defVal := map[uint32]mir.Value{}
	for bi, b := range fn.Blocks() {
		for ii, rec := range b.Instructions() {
			if rec.Result.Valid() {
				defPos[rec.Result.ID()] = pos{bi, ii}
				defVal[rec.Result.ID()] = rec.Result
			}
		}
	}

	liveIDs := map[uint32]bool{}
	consider := func(v mir.Value, useAt pos) {
		if !v.Valid() || !after(useAt) {
			return
		}
		dp, ok := defPos[v.ID()]
		if !ok || v.ID() == site.rec.Result.ID() {
			return // parameter (rebound separately) or the await's own result
		}
		if atOrBefore(dp) {
			liveIDs[v.ID()] = true
		}
	}
	for bi, b := range fn.Blocks() {
		for ii, rec := range b.Instructions() {
			for _, v := range instOperands(rec.Inst) {
				consider(v, pos{bi, ii})
			}
		}
		for _, v := range termOperands(b.Terminator()) {
			consider(v, pos{bi, len(b.Instructions())})
		}
	}

	out := make([]mir.Value, 0, len(liveIDs))
	ids := make([]uint32, 0, len(liveIDs))
	for id := range liveIDs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		out = append(out, defVal[id])
	}
	return out
}

func (l *asyncLowerer) pollType() *types.Type {
	fn, mod := l.fn, l.mod
	ret := fn.ReturnType
	if fn.OriginalReturnType != nil {
		ret = fn.OriginalReturnType
	}
	t := mod.Interner().Intern(types.Enum("Poll", ret))
	key := types.Mangle(t)
	if _, ok := mod.Enums[key]; !ok {
		mod.AddEnum(key, &mir.EnumDef{
			Name:     "Poll",
			TypeArgs: []*types.Type{ret},
			Variants: []mir.VariantDef{
				{Name: "Pending"},
				{Name: "Ready", Payload: []*types.Type{ret}},
			},
		})
	}
	return t
}

// appendRec adds a record to a block whether or not it is already sealed;
// the lowering appends save/state stores to blocks whose terminator was
// rewritten in place.
func appendRec(b *mir.BasicBlock, rec mir.InstructionRecord) {
	if b.Sealed() {
		b.SetInstructions(append(b.Instructions(), rec))
		return
	}
	b.Append(rec)
}

// emit appends a record with a fresh result id.
func (l *asyncLowerer) emit(b *mir.BasicBlock, inst mir.Instruction, t *types.Type) mir.Value {
	res := mir.InvalidValue
	if t != nil && t.Kind() != types.KindUnit {
		res = mir.NewValue(l.fn.NewValueID(), t)
	}
	appendRec(b, mir.InstructionRecord{Inst: inst, Result: res, Type: t})
	return res
}

func (l *asyncLowerer) constI32(b *mir.BasicBlock, v int64) mir.Value {
	return l.emit(b, &mir.ConstIntInst{Value: v, Bits: 32, Signed: true}, types.I32())
}

func (l *asyncLowerer) slotPtr(b *mir.BasicBlock, fieldIdx int) mir.Value {
	idx := l.constI32(b, int64(fieldIdx))
	fieldType := l.fields[fieldIdx].Type
	ptrT := l.mod.Interner().Intern(types.Pointer(fieldType, true))
	return l.emit(b, &mir.GetElementPtrInst{Base: l.statePtr, Indices: []mir.Value{idx}}, ptrT)
}

func (l *asyncLowerer) saveSlot(b *mir.BasicBlock, v mir.Value) {
	ptr := l.slotPtr(b, l.ensureSlot(v))
	appendRec(b, mir.InstructionRecord{Inst: &mir.StoreInst{Ptr: ptr, Val: v}})
}

func (l *asyncLowerer) setState(b *mir.BasicBlock, k int) {
	ptr := l.slotPtr(b, 0)
	val := l.constI32(b, int64(k))
	appendRec(b, mir.InstructionRecord{Inst: &mir.StoreInst{Ptr: ptr, Val: val}})
}

func (l *asyncLowerer) returnPending(b *mir.BasicBlock) {
	pt := l.pollType()
	v := l.emit(b, &mir.EnumInitInst{EnumName: "Poll", VariantIndex: pollPending}, pt)
	b.SetTerminator(&mir.ReturnTerm{Value: v})
}

// wrapReturns turns every `return v` into `state = done; return Ready(v)`.
func (l *asyncLowerer) wrapReturns() {
	fn := l.fn
	pt := l.pollType()
	doneState := countAwaits(fn) + 1
	for _, b := range fn.Blocks() {
		ret, ok := b.Terminator().(*mir.ReturnTerm)
		if !ok {
			continue
		}
		insts := b.Instructions()
		// State slot write, then the Ready wrapper.
		idx := mir.NewValue(fn.NewValueID(), types.I32())
		insts = append(insts, mir.InstructionRecord{
			Inst: &mir.ConstIntInst{Value: int64(doneState), Bits: 32, Signed: true}, Result: idx, Type: types.I32(),
		})
		ptrT := l.mod.Interner().Intern(types.Pointer(types.I32(), true))
		fieldIdx := mir.NewValue(fn.NewValueID(), types.I32())
		insts = append(insts, mir.InstructionRecord{
			Inst: &mir.ConstIntInst{Value: 0, Bits: 32, Signed: true}, Result: fieldIdx, Type: types.I32(),
		})
		slot := mir.NewValue(fn.NewValueID(), ptrT)
		insts = append(insts, mir.InstructionRecord{
			Inst: &mir.GetElementPtrInst{Base: l.statePtr, Indices: []mir.Value{fieldIdx}}, Result: slot, Type: ptrT,
		})
		insts = append(insts, mir.InstructionRecord{Inst: &mir.StoreInst{Ptr: slot, Val: idx}})

		var payload []mir.Value
		if ret.Value.Valid() {
			payload = []mir.Value{ret.Value}
		}
		ready := mir.NewValue(fn.NewValueID(), pt)
		insts = append(insts, mir.InstructionRecord{
			Inst: &mir.EnumInitInst{EnumName: "Poll", VariantIndex: pollReady, Payload: payload}, Result: ready, Type: pt,
		})
		b.SetInstructions(insts)
		b.ReplaceTerminator(&mir.ReturnTerm{Value: ready})
	}
}

func countAwaits(fn *mir.Function) int {
	n := 0
	for _, b := range fn.Blocks() {
		for _, rec := range b.Instructions() {
			if _, ok := rec.Inst.(*mir.AwaitInst); ok {
				n++
			}
		}
	}
	return n
}

// lowerAwait splits the await's block into save / check / pending / ready
// and registers the check block as the dispatch target for state k.
func (l *asyncLowerer) lowerAwait(site awaitSite, k int) {
	fn := l.fn
	b := site.block
	insts := b.Instructions()
	pre := append([]mir.InstructionRecord(nil), insts[:site.index]...)
	suffix := append([]mir.InstructionRecord(nil), insts[site.index+1:]...)
	origTerm := b.Terminator()

	lives := liveAcross(fn, site)

	check := fn.NewBlock(fmt.Sprintf("resume%d", k))
	pend := fn.NewBlock(fmt.Sprintf("pending%d", k))
	ready := fn.NewBlock(fmt.Sprintf("ready%d", k))

	// Prefix: original instructions, then save lives and the poll handle,
	// record the state, and fall into the readiness check.
	b.SetInstructions(pre)
	b.ReplaceTerminator(&mir.BranchTerm{Target: check.ID})
	for _, v := range lives {
		l.saveSlot(b, v)
	}
	l.saveSlot(b, site.inst.PollValue)
	l.setState(b, k)

	// Check: reload the saved poll handle and branch on its discriminant.
	// Entered both by fallthrough from the prefix and by dispatch on a
	// later poll.
	handlePtr := l.slotPtr(check, l.ensureSlot(site.inst.PollValue))
	handle := l.emit(check, &mir.LoadInst{Ptr: handlePtr}, site.inst.PollValue.Type())
	disc := l.emit(check, &mir.ExtractValueInst{Agg: handle, Indices: []int{0}}, types.I64())
	zero := l.emit(check, &mir.ConstIntInst{Value: pollPending, Bits: 64, Signed: true}, types.I64())
	isPending := l.emit(check, &mir.BinaryInst{Op: mir.OpEq, L: disc, R: zero}, types.Bool())
	check.SetTerminator(&mir.CondBranchTerm{Cond: isPending, TrueBlk: pend.ID, FalseBlk: ready.ID})

	l.returnPending(pend)

	// Ready: rebind lives from their slots, extract the awaited payload,
	// then run the suffix with rebound values.
	rebind := map[uint32]mir.Value{}
	for _, v := range lives {
		ptr := l.slotPtr(ready, l.ensureSlot(v))
		rebind[v.ID()] = l.emit(ready, &mir.LoadInst{Ptr: ptr}, v.Type())
	}
	if site.rec.Result.Valid() {
		payload := l.emit(ready, &mir.ExtractValueInst{Agg: handle, Indices: []int{1}}, site.rec.Type)
		rebind[site.rec.Result.ID()] = payload
	}

	sub := func(v mir.Value) mir.Value {
		if nv, ok := rebind[v.ID()]; ok {
			return nv
		}
		return v
	}
	for _, rec := range suffix {
		rewriteOperands(rec.Inst, sub)
		ready.Append(rec)
	}
	rewriteTermOperands(origTerm, sub)
	ready.SetTerminator(origTerm)

	// Rebind downstream blocks that can only execute after this await.
	fn.Touch()
	dom := fn.Dominators()
	for _, db := range fn.Blocks() {
		if db.ID == ready.ID || !dom.StrictlyDominates(ready.ID, db.ID) {
			continue
		}
		for _, rec := range db.Instructions() {
			rewriteOperands(rec.Inst, sub)
		}
		if db.Sealed() {
			rewriteTermOperands(db.Terminator(), sub)
		}
	}

	l.resume[k] = check.ID
}

// buildDispatch prepends the poll entry: load state.state and switch to the
// recorded resume block, state 0 being the original entry.
func (l *asyncLowerer) buildDispatch() {
	fn := l.fn
	origEntry := fn.Entry()
	if origEntry == nil {
		return
	}

	dispatch := fn.NewBlock("poll.entry")
	trap := fn.NewBlock("poll.badstate")
	trap.SetTerminator(&mir.UnreachableTerm{})

	statePtr := l.slotPtr(dispatch, 0)
	state := l.emit(dispatch, &mir.LoadInst{Ptr: statePtr}, types.I32())

	keys := make([]int, 0, len(l.resume))
	for k := range l.resume {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	cases := []mir.SwitchCase{{Value: 0, Block: origEntry.ID}}
	for _, k := range keys {
		cases = append(cases, mir.SwitchCase{Value: int64(k), Block: l.resume[k]})
	}
	dispatch.SetTerminator(&mir.SwitchTerm{Disc: state, Cases: cases, Default: trap.ID})

	// The dispatch block becomes the entry (index 0).
	blocks := fn.Blocks()
	reordered := make([]*mir.BasicBlock, 0, len(blocks))
	reordered = append(reordered, dispatch)
	for _, b := range blocks {
		if b != dispatch {
			reordered = append(reordered, b)
		}
	}
	fn.SetBlocks(reordered)
}
