package optimizer

import "github.com/lumen-lang/lumenc/pkg/mir"

// rewriteOperands applies f to every Value operand an instruction reads,
// in place. It is the mutation counterpart of instOperands and must cover
// the same variants.
func rewriteOperands(inst mir.Instruction, f func(mir.Value) mir.Value) {
	mapAll := func(vs []mir.Value) {
		for i := range vs {
			vs[i] = f(vs[i])
		}
	}
	switch i := inst.(type) {
	case *mir.BinaryInst:
		i.L, i.R = f(i.L), f(i.R)
	case *mir.UnaryInst:
		i.Operand = f(i.Operand)
	case *mir.LoadInst:
		i.Ptr = f(i.Ptr)
	case *mir.StoreInst:
		i.Ptr, i.Val = f(i.Ptr), f(i.Val)
	case *mir.GetElementPtrInst:
		i.Base = f(i.Base)
		mapAll(i.Indices)
	case *mir.ExtractValueInst:
		i.Agg = f(i.Agg)
	case *mir.InsertValueInst:
		i.Agg, i.Val = f(i.Agg), f(i.Val)
	case *mir.StructInitInst:
		mapAll(i.Fields)
	case *mir.TupleInitInst:
		mapAll(i.Elems)
	case *mir.ArrayInitInst:
		mapAll(i.Elems)
	case *mir.EnumInitInst:
		mapAll(i.Payload)
	case *mir.CallInst:
		if i.FuncName == "" {
			i.Callee = f(i.Callee)
		}
		mapAll(i.Args)
	case *mir.MethodCallInst:
		i.Receiver = f(i.Receiver)
		mapAll(i.Args)
	case *mir.SelectInst:
		i.Cond, i.True, i.False = f(i.Cond), f(i.True), f(i.False)
	case *mir.CastInst:
		i.Operand = f(i.Operand)
	case *mir.PhiInst:
		for j := range i.Incoming {
			i.Incoming[j].Value = f(i.Incoming[j].Value)
		}
	case *mir.AtomicLoadInst:
		i.Ptr = f(i.Ptr)
	case *mir.AtomicStoreInst:
		i.Ptr, i.Val = f(i.Ptr), f(i.Val)
	case *mir.AtomicRMWInst:
		i.Ptr, i.Val = f(i.Ptr), f(i.Val)
	case *mir.CmpXchgInst:
		i.Ptr, i.Expected, i.New = f(i.Ptr), f(i.Expected), f(i.New)
	case *mir.AwaitInst:
		i.PollValue = f(i.PollValue)
	case *mir.ClosureInitInst:
		mapAll(i.Captures)
	}
}

// rewriteTermOperands applies f to a terminator's value operands in place.
func rewriteTermOperands(t mir.Terminator, f func(mir.Value) mir.Value) {
	switch v := t.(type) {
	case *mir.ReturnTerm:
		if v.Value.Valid() {
			v.Value = f(v.Value)
		}
	case *mir.CondBranchTerm:
		v.Cond = f(v.Cond)
	case *mir.SwitchTerm:
		v.Disc = f(v.Disc)
	}
}

// replaceUses rewrites every use of old (by value id) to new across fn,
// including terminator operands. Definitions are untouched.
func replaceUses(fn *mir.Function, old, new mir.Value) {
	sub := func(v mir.Value) mir.Value {
		if v.ID() == old.ID() {
			return new
		}
		return v
	}
	for _, b := range fn.Blocks() {
		for _, rec := range b.Instructions() {
			rewriteOperands(rec.Inst, sub)
		}
		if b.Sealed() {
			rewriteTermOperands(b.Terminator(), sub)
		}
	}
}

// functionDefs indexes every instruction record in fn by result value id.
func functionDefs(fn *mir.Function) map[uint32]mir.InstructionRecord {
	m := map[uint32]mir.InstructionRecord{}
	for _, b := range fn.Blocks() {
		for _, rec := range b.Instructions() {
			if rec.Result.Valid() {
				m[rec.Result.ID()] = rec
			}
		}
	}
	return m
}

// defBlocks maps each defined value id to the block defining it.
func defBlocks(fn *mir.Function) map[uint32]mir.BlockID {
	m := map[uint32]mir.BlockID{}
	for _, b := range fn.Blocks() {
		for _, rec := range b.Instructions() {
			if rec.Result.Valid() {
				m[rec.Result.ID()] = b.ID
			}
		}
	}
	return m
}

// constIntValue resolves v to a constant integer through fn's definitions.
func constIntValue(defs map[uint32]mir.InstructionRecord, v mir.Value) (int64, bool) {
	rec, ok := defs[v.ID()]
	if !ok {
		return 0, false
	}
	c, ok := rec.Inst.(*mir.ConstIntInst)
	if !ok {
		return 0, false
	}
	return c.Value, true
}
