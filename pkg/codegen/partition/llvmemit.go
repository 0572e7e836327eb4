package partition

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	lltypes "github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/lumen-lang/lumenc/pkg/mir"
	"github.com/lumen-lang/lumenc/pkg/types"
)

// emitUnitIR renders one CGU as LLVM IR text: full definitions for the
// unit's functions, external declarations for every other module function,
// shared struct/enum type definitions, and string-literal globals. Each
// call builds an independent ir.Module, which is
// what makes concurrent back-end compilation of units safe.
func emitUnitIR(mod *mir.Module, fns []*mir.Function) (string, error) {
	e := &emitter{
		mod:      mod,
		llmod:    ir.NewModule(),
		funcs:    map[string]*ir.Func{},
		typeDefs: map[string]lltypes.Type{},
		strings:  map[string]*ir.Global{},
	}
	e.llmod.SourceFilename = mod.Name + ".lum"

	e.declareAggregates()

	inUnit := map[string]bool{}
	for _, fn := range fns {
		inUnit[fn.Name] = true
	}
	// Declare every module function first so cross-unit calls resolve; the
	// unit's own functions get bodies below.
	for _, fn := range mod.Functions {
		e.declareFunction(fn)
	}
	for _, fn := range mod.Functions {
		if inUnit[fn.Name] {
			if err := e.defineFunction(fn); err != nil {
				return "", err
			}
		}
	}
	return e.llmod.String(), nil
}

type emitter struct {
	mod      *mir.Module
	llmod    *ir.Module
	funcs    map[string]*ir.Func
	typeDefs map[string]lltypes.Type
	strings  map[string]*ir.Global

	// per-function state
	fn     *mir.Function
	values map[uint32]value.Value
	blocks map[mir.BlockID]*ir.Block
	llfn   *ir.Func
	phis   []pendingPhi
}

type pendingPhi struct {
	phi  *ir.InstPhi
	inst *mir.PhiInst
}

// declareAggregates emits named struct/enum typedefs, insertion order keyed
// by the module's registration maps sorted for deterministic output.
func (e *emitter) declareAggregates() {
	for _, name := range sortedKeys(e.mod.Structs) {
		def := e.mod.Structs[name]
		fields := make([]lltypes.Type, len(def.Fields))
		for i, f := range def.Fields {
			fields[i] = e.llType(f.Type)
		}
		st := lltypes.NewStruct(fields...)
		e.typeDefs[name] = e.llmod.NewTypeDef(name, st)
	}
	for _, name := range sortedKeys(e.mod.Enums) {
		def := e.mod.Enums[name]
		st := lltypes.NewStruct(lltypes.I64, lltypes.NewArray(uint64(enumPayloadBytes(def)), lltypes.I8))
		e.typeDefs[name] = e.llmod.NewTypeDef(name, st)
	}
}

// enumPayloadBytes sizes the byte-array payload area as the widest variant.
func enumPayloadBytes(def *mir.EnumDef) int {
	widest := 0
	for _, v := range def.Variants {
		total := 0
		for _, t := range v.Payload {
			total += types.SizeOf(t, 8)
		}
		if total > widest {
			widest = total
		}
	}
	if widest == 0 {
		widest = 8
	}
	return widest
}

func (e *emitter) llType(t *types.Type) lltypes.Type {
	if t == nil {
		return lltypes.Void
	}
	switch t.Kind() {
	case types.KindUnit:
		return lltypes.NewStruct()
	case types.KindBool:
		return lltypes.I1
	case types.KindI8, types.KindU8:
		return lltypes.I8
	case types.KindI16, types.KindU16:
		return lltypes.I16
	case types.KindI32, types.KindU32:
		return lltypes.I32
	case types.KindI64, types.KindU64:
		return lltypes.I64
	case types.KindI128, types.KindU128:
		return lltypes.I128
	case types.KindF32:
		return lltypes.Float
	case types.KindF64:
		return lltypes.Double
	case types.KindPtrPrim:
		return lltypes.NewPointer(lltypes.I8)
	case types.KindStr, types.KindSlice:
		// {ptr, len} pair.
		return lltypes.NewStruct(lltypes.NewPointer(lltypes.I8), lltypes.I64)
	case types.KindPointer:
		return lltypes.NewPointer(e.llType(t.Pointee()))
	case types.KindArray:
		return lltypes.NewArray(uint64(t.ArraySize()), e.llType(t.Elem()))
	case types.KindTuple:
		elems := make([]lltypes.Type, len(t.Elems()))
		for i, el := range t.Elems() {
			elems[i] = e.llType(el)
		}
		return lltypes.NewStruct(elems...)
	case types.KindStruct, types.KindEnum:
		if td, ok := e.typeDefs[types.Mangle(t)]; ok {
			return td
		}
		// An unregistered nominal type degrades to an opaque byte pointer.
		return lltypes.NewPointer(lltypes.I8)
	case types.KindFunction:
		params := make([]lltypes.Type, len(t.Params()))
		for i, pt := range t.Params() {
			params[i] = e.llType(pt)
		}
		return lltypes.NewPointer(lltypes.NewFunc(e.llType(t.Ret()), params...))
	}
	return lltypes.NewPointer(lltypes.I8)
}

func (e *emitter) declareFunction(fn *mir.Function) {
	params := make([]*ir.Param, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = ir.NewParam(p.Name, e.llType(p.Type))
	}
	ret := e.llType(fn.ReturnType)
	if fn.ReturnType != nil && fn.ReturnType.Kind() == types.KindUnit {
		ret = lltypes.Void
	}
	f := e.llmod.NewFunc(fn.Name, ret, params...)
	if fn.Flags.UsesSret && len(params) > 0 {
		// The hidden return buffer is the first parameter; mark it sret.
		params[0].Attrs = append(params[0].Attrs, ir.AttrString("sret"))
	}
	for _, a := range fn.Attributes {
		switch a {
		case "readonly", "nothrow", "norecurse", "willreturn", "speculatable", "hot":
			f.FuncAttrs = append(f.FuncAttrs, ir.AttrString(a))
		}
	}
	e.funcs[fn.Name] = f
}

func (e *emitter) defineFunction(fn *mir.Function) error {
	e.fn = fn
	e.llfn = e.funcs[fn.Name]
	e.values = map[uint32]value.Value{}
	e.blocks = map[mir.BlockID]*ir.Block{}
	e.phis = nil

	for i, p := range fn.Params {
		e.values[p.Value.ID()] = e.llfn.Params[i]
	}
	for _, b := range fn.Blocks() {
		e.blocks[b.ID] = e.llfn.NewBlock(fmt.Sprintf("%s.%d", b.Name, b.ID))
	}
	for _, b := range fn.Blocks() {
		if err := e.emitBlock(b); err != nil {
			return fmt.Errorf("%s: %w", fn.Name, err)
		}
	}
	// Phi incomings resolve after every block's values exist.
	for _, pp := range e.phis {
		for _, in := range pp.inst.Incoming {
			pp.phi.Incs = append(pp.phi.Incs, ir.NewIncoming(e.valueOf(in.Value), e.blocks[in.Block]))
		}
	}
	return nil
}

func (e *emitter) valueOf(v mir.Value) value.Value {
	if lv, ok := e.values[v.ID()]; ok {
		return lv
	}
	// A reference to a value this emitter never materialized is a builder
	// contract violation surfaced late; emit a typed zero so the textual IR
	// stays parseable for diagnosis.
	return constant.NewZeroInitializer(e.llType(v.Type()))
}

func (e *emitter) emitBlock(b *mir.BasicBlock) error {
	bb := e.blocks[b.ID]
	for _, rec := range b.Instructions() {
		lv, err := e.emitInst(bb, rec)
		if err != nil {
			return fmt.Errorf("block %s: %w", b.Name, err)
		}
		if rec.Result.Valid() && lv != nil {
			e.values[rec.Result.ID()] = lv
		}
	}
	return e.emitTerm(bb, b.Terminator())
}

func (e *emitter) emitInst(bb *ir.Block, rec mir.InstructionRecord) (value.Value, error) {
	switch inst := rec.Inst.(type) {
	case *mir.BinaryInst:
		return e.emitBinary(bb, inst)
	case *mir.UnaryInst:
		return e.emitUnary(bb, inst)
	case *mir.AllocaInst:
		return bb.NewAlloca(e.llType(inst.AllocType)), nil
	case *mir.LoadInst:
		elem := pointeeType(e, inst.Ptr)
		load := bb.NewLoad(elem, e.valueOf(inst.Ptr))
		if inst.Volatile {
			load.Volatile = true
		}
		return load, nil
	case *mir.StoreInst:
		store := bb.NewStore(e.valueOf(inst.Val), e.valueOf(inst.Ptr))
		if inst.Volatile {
			store.Volatile = true
		}
		return nil, nil
	case *mir.GetElementPtrInst:
		return e.emitGEP(bb, inst)
	case *mir.ExtractValueInst:
		return bb.NewExtractValue(e.valueOf(inst.Agg), toU64(inst.Indices)...), nil
	case *mir.InsertValueInst:
		return bb.NewInsertValue(e.valueOf(inst.Agg), e.valueOf(inst.Val), toU64(inst.Indices)...), nil
	case *mir.StructInitInst:
		return e.emitAggregateInit(bb, e.typeDefs[inst.StructName], inst.Fields), nil
	case *mir.TupleInitInst:
		return e.emitAggregateInit(bb, e.llTupleType(inst.Elems), inst.Elems), nil
	case *mir.ArrayInitInst:
		arrType := lltypes.NewArray(uint64(len(inst.Elems)), e.llType(inst.ElemType))
		return e.emitAggregateInit(bb, arrType, inst.Elems), nil
	case *mir.EnumInitInst:
		return e.emitEnumInit(bb, rec, inst)
	case *mir.CallInst:
		return e.emitCall(bb, rec, inst)
	case *mir.MethodCallInst:
		return e.emitMethodCall(bb, rec, inst)
	case *mir.SelectInst:
		return bb.NewSelect(e.valueOf(inst.Cond), e.valueOf(inst.True), e.valueOf(inst.False)), nil
	case *mir.CastInst:
		return e.emitCast(bb, inst)
	case *mir.PhiInst:
		phi := &ir.InstPhi{Typ: e.llType(rec.Type)}
		bb.Insts = append(bb.Insts, phi)
		e.phis = append(e.phis, pendingPhi{phi: phi, inst: inst})
		return phi, nil
	case *mir.ConstIntInst:
		return constant.NewInt(intType(inst.Bits), inst.Value), nil
	case *mir.ConstFloatInst:
		if inst.Is64Bit {
			return constant.NewFloat(lltypes.Double, inst.Value), nil
		}
		return constant.NewFloat(lltypes.Float, inst.Value), nil
	case *mir.ConstBoolInst:
		if inst.Value {
			return constant.NewInt(lltypes.I1, 1), nil
		}
		return constant.NewInt(lltypes.I1, 0), nil
	case *mir.ConstStringInst:
		return e.emitString(bb, inst.Value), nil
	case *mir.ConstUnitInst:
		return constant.NewStruct(lltypes.NewStruct()), nil
	case *mir.AtomicLoadInst:
		elem := pointeeType(e, inst.Ptr)
		load := bb.NewLoad(elem, e.valueOf(inst.Ptr))
		load.Atomic = true
		load.Ordering = atomicOrdering(inst.Ordering)
		return load, nil
	case *mir.AtomicStoreInst:
		store := bb.NewStore(e.valueOf(inst.Val), e.valueOf(inst.Ptr))
		store.Atomic = true
		store.Ordering = atomicOrdering(inst.Ordering)
		return nil, nil
	case *mir.AtomicRMWInst:
		return bb.NewAtomicRMW(rmwOp(inst.Op), e.valueOf(inst.Ptr), e.valueOf(inst.Val), atomicOrdering(inst.Ordering)), nil
	case *mir.CmpXchgInst:
		cx := bb.NewCmpXchg(e.valueOf(inst.Ptr), e.valueOf(inst.Expected), e.valueOf(inst.New),
			atomicOrdering(inst.SuccessOrdering), atomicOrdering(inst.FailureOrdering))
		return bb.NewExtractValue(cx, 0), nil
	case *mir.FenceInst:
		bb.NewFence(atomicOrdering(inst.Ordering))
		return nil, nil
	case *mir.ClosureInitInst:
		return e.emitClosureInit(bb, rec, inst)
	case *mir.AwaitInst:
		return nil, fmt.Errorf("await instruction survived async lowering")
	}
	return nil, fmt.Errorf("unhandled instruction %T", rec.Inst)
}

func (e *emitter) emitBinary(bb *ir.Block, inst *mir.BinaryInst) (value.Value, error) {
	l, r := e.valueOf(inst.L), e.valueOf(inst.R)
	t := inst.L.Type()
	isFloat := t != nil && t.IsFloat()
	signed := t == nil || !t.IsInteger() || t.IsSigned()

	switch inst.Op {
	case mir.OpAdd:
		if isFloat {
			return bb.NewFAdd(l, r), nil
		}
		return bb.NewAdd(l, r), nil
	case mir.OpSub:
		if isFloat {
			return bb.NewFSub(l, r), nil
		}
		return bb.NewSub(l, r), nil
	case mir.OpMul:
		if isFloat {
			return bb.NewFMul(l, r), nil
		}
		return bb.NewMul(l, r), nil
	case mir.OpDiv:
		if isFloat {
			return bb.NewFDiv(l, r), nil
		}
		if signed {
			return bb.NewSDiv(l, r), nil
		}
		return bb.NewUDiv(l, r), nil
	case mir.OpMod:
		if isFloat {
			return bb.NewFRem(l, r), nil
		}
		if signed {
			return bb.NewSRem(l, r), nil
		}
		return bb.NewURem(l, r), nil
	case mir.OpEq, mir.OpNe, mir.OpLt, mir.OpLe, mir.OpGt, mir.OpGe:
		if isFloat {
			return bb.NewFCmp(fpred(inst.Op), l, r), nil
		}
		return bb.NewICmp(ipred(inst.Op, signed), l, r), nil
	case mir.OpAnd, mir.OpBitAnd:
		return bb.NewAnd(l, r), nil
	case mir.OpOr, mir.OpBitOr:
		return bb.NewOr(l, r), nil
	case mir.OpBitXor:
		return bb.NewXor(l, r), nil
	case mir.OpShl:
		return bb.NewShl(l, r), nil
	case mir.OpShr:
		if signed {
			return bb.NewAShr(l, r), nil
		}
		return bb.NewLShr(l, r), nil
	}
	return nil, fmt.Errorf("unhandled binary opcode %d", inst.Op)
}

func (e *emitter) emitUnary(bb *ir.Block, inst *mir.UnaryInst) (value.Value, error) {
	v := e.valueOf(inst.Operand)
	t := inst.Operand.Type()
	switch inst.Op {
	case mir.OpNeg:
		if t != nil && t.IsFloat() {
			return bb.NewFNeg(v), nil
		}
		zero := constant.NewInt(intType(intBits(t)), 0)
		return bb.NewSub(zero, v), nil
	case mir.OpNot:
		return bb.NewXor(v, constant.NewInt(lltypes.I1, 1)), nil
	case mir.OpBitNot:
		return bb.NewXor(v, constant.NewInt(intType(intBits(t)), -1)), nil
	}
	return nil, fmt.Errorf("unhandled unary opcode %d", inst.Op)
}

// emitGEP lowers an indexed address. An aggregate (non-pointer) base is
// spilled to a stack slot first — MIR GEPs address SSA arrays directly, LLVM
// ones need memory.
func (e *emitter) emitGEP(bb *ir.Block, inst *mir.GetElementPtrInst) (value.Value, error) {
	base := e.valueOf(inst.Base)
	bt := inst.Base.Type()
	if bt != nil && bt.Kind() != types.KindPointer && bt.Kind() != types.KindPtrPrim {
		slot := bb.NewAlloca(e.llType(bt))
		bb.NewStore(base, slot)
		base = slot
		bt = types.Pointer(bt, false)
	}
	var elem lltypes.Type = lltypes.I8
	if bt != nil && bt.Kind() == types.KindPointer {
		elem = e.llType(bt.Pointee())
	}
	indices := make([]value.Value, 0, len(inst.Indices)+1)
	indices = append(indices, constant.NewInt(lltypes.I64, 0))
	for _, idx := range inst.Indices {
		indices = append(indices, e.valueOf(idx))
	}
	return bb.NewGetElementPtr(elem, base, indices...), nil
}

func (e *emitter) emitAggregateInit(bb *ir.Block, t lltypes.Type, fields []mir.Value) value.Value {
	if t == nil {
		t = lltypes.NewStruct()
	}
	var agg value.Value = constant.NewZeroInitializer(t)
	for i, f := range fields {
		agg = bb.NewInsertValue(agg, e.valueOf(f), uint64(i))
	}
	return agg
}

// emitEnumInit builds {disc, payload bytes}: the discriminant is inserted
// directly; payload fields are stored through a recast pointer into the
// byte area.
func (e *emitter) emitEnumInit(bb *ir.Block, rec mir.InstructionRecord, inst *mir.EnumInitInst) (value.Value, error) {
	t := e.llType(rec.Type)
	slot := bb.NewAlloca(t)
	discPtr := bb.NewGetElementPtr(t, slot, constant.NewInt(lltypes.I64, 0), constant.NewInt(lltypes.I32, 0))
	bb.NewStore(constant.NewInt(lltypes.I64, int64(inst.VariantIndex)), discPtr)
	if len(inst.Payload) > 0 {
		payloadTypes := make([]lltypes.Type, len(inst.Payload))
		for i, pv := range inst.Payload {
			payloadTypes[i] = e.llType(pv.Type())
		}
		payloadStruct := lltypes.NewStruct(payloadTypes...)
		areaPtr := bb.NewGetElementPtr(t, slot, constant.NewInt(lltypes.I64, 0), constant.NewInt(lltypes.I32, 1))
		cast := bb.NewBitCast(areaPtr, lltypes.NewPointer(payloadStruct))
		for i, pv := range inst.Payload {
			fp := bb.NewGetElementPtr(payloadStruct, cast,
				constant.NewInt(lltypes.I64, 0), constant.NewInt(lltypes.I32, int64(i)))
			bb.NewStore(e.valueOf(pv), fp)
		}
	}
	return bb.NewLoad(t, slot), nil
}

func (e *emitter) emitCall(bb *ir.Block, rec mir.InstructionRecord, inst *mir.CallInst) (value.Value, error) {
	args := make([]value.Value, len(inst.Args))
	for i, a := range inst.Args {
		args[i] = e.valueOf(a)
	}
	if inst.FuncName == "" {
		return bb.NewCall(e.valueOf(inst.Callee), args...), nil
	}
	callee := e.funcs[inst.FuncName]
	if callee == nil {
		callee = e.declareExtern(inst.FuncName, rec, inst.Args)
	}
	call := bb.NewCall(callee, args...)
	if rec.Result.Valid() {
		return call, nil
	}
	return nil, nil
}

// declareExtern synthesizes a declaration for a runtime function (malloc,
// free, panic handlers) from its first observed call shape.
func (e *emitter) declareExtern(name string, rec mir.InstructionRecord, args []mir.Value) *ir.Func {
	params := make([]*ir.Param, len(args))
	for i, a := range args {
		params[i] = ir.NewParam(fmt.Sprintf("a%d", i), e.llType(a.Type()))
	}
	ret := e.llType(rec.Type)
	if rec.Type == nil || rec.Type.Kind() == types.KindUnit || !rec.Result.Valid() {
		ret = lltypes.Void
	}
	f := e.llmod.NewFunc(name, ret, params...)
	e.funcs[name] = f
	return f
}

func (e *emitter) emitMethodCall(bb *ir.Block, rec mir.InstructionRecord, inst *mir.MethodCallInst) (value.Value, error) {
	// Method calls arrive with concrete receiver types; the
	// direct symbol is <mangled receiver>_<method>.
	name := types.Mangle(inst.Receiver.Type()) + "_" + inst.Method
	call := &mir.CallInst{FuncName: name, Args: append([]mir.Value{inst.Receiver}, inst.Args...)}
	return e.emitCall(bb, rec, call)
}

func (e *emitter) emitCast(bb *ir.Block, inst *mir.CastInst) (value.Value, error) {
	v := e.valueOf(inst.Operand)
	t := e.llType(inst.Target)
	switch inst.Kind {
	case mir.CastIntTrunc:
		return bb.NewTrunc(v, t), nil
	case mir.CastIntExtendSigned:
		return bb.NewSExt(v, t), nil
	case mir.CastIntExtendUnsigned:
		return bb.NewZExt(v, t), nil
	case mir.CastIntToFloat:
		if inst.Operand.Type() != nil && inst.Operand.Type().IsInteger() && !inst.Operand.Type().IsSigned() {
			return bb.NewUIToFP(v, t), nil
		}
		return bb.NewSIToFP(v, t), nil
	case mir.CastFloatToInt:
		if inst.Target.IsInteger() && !inst.Target.IsSigned() {
			return bb.NewFPToUI(v, t), nil
		}
		return bb.NewFPToSI(v, t), nil
	case mir.CastFloatTrunc:
		return bb.NewFPTrunc(v, t), nil
	case mir.CastFloatExtend:
		return bb.NewFPExt(v, t), nil
	case mir.CastBitcast:
		return bb.NewBitCast(v, t), nil
	case mir.CastPtrToInt:
		return bb.NewPtrToInt(v, t), nil
	case mir.CastIntToPtr:
		return bb.NewIntToPtr(v, t), nil
	}
	return nil, fmt.Errorf("unhandled cast kind %d", inst.Kind)
}

func (e *emitter) emitClosureInit(bb *ir.Block, rec mir.InstructionRecord, inst *mir.ClosureInitInst) (value.Value, error) {
	fnPtr := e.funcs[inst.FuncName]
	captureTypes := make([]lltypes.Type, 0, len(inst.Captures)+1)
	captureTypes = append(captureTypes, lltypes.NewPointer(lltypes.I8))
	for _, c := range inst.Captures {
		captureTypes = append(captureTypes, e.llType(c.Type()))
	}
	closType := lltypes.NewStruct(captureTypes...)
	var agg value.Value = constant.NewZeroInitializer(closType)
	if fnPtr != nil {
		cast := bb.NewBitCast(fnPtr, lltypes.NewPointer(lltypes.I8))
		agg = bb.NewInsertValue(agg, cast, 0)
	}
	for i, c := range inst.Captures {
		agg = bb.NewInsertValue(agg, e.valueOf(c), uint64(i+1))
	}
	return agg, nil
}

// emitString interns a NUL-terminated global per distinct literal and
// yields its first-byte address.
func (e *emitter) emitString(bb *ir.Block, s string) value.Value {
	g, ok := e.strings[s]
	if !ok {
		arr := constant.NewCharArrayFromString(s + "\x00")
		g = e.llmod.NewGlobalDef(fmt.Sprintf(".str.%d", len(e.strings)), arr)
		g.Immutable = true
		e.strings[s] = g
	}
	zero := constant.NewInt(lltypes.I64, 0)
	return bb.NewGetElementPtr(g.ContentType, g, zero, zero)
}

func (e *emitter) emitTerm(bb *ir.Block, t mir.Terminator) error {
	switch term := t.(type) {
	case nil:
		return fmt.Errorf("unterminated block reached emission")
	case *mir.ReturnTerm:
		if !term.Value.Valid() || e.llfn.Sig.RetType.Equal(lltypes.Void) {
			bb.NewRet(nil)
			return nil
		}
		bb.NewRet(e.valueOf(term.Value))
		return nil
	case *mir.BranchTerm:
		bb.NewBr(e.blocks[term.Target])
		return nil
	case *mir.CondBranchTerm:
		bb.NewCondBr(e.valueOf(term.Cond), e.blocks[term.TrueBlk], e.blocks[term.FalseBlk])
		return nil
	case *mir.SwitchTerm:
		disc := e.valueOf(term.Disc)
		caseType := lltypes.I64
		if it, ok := disc.Type().(*lltypes.IntType); ok {
			caseType = it
		}
		cases := make([]*ir.Case, len(term.Cases))
		for i, c := range term.Cases {
			cases[i] = ir.NewCase(constant.NewInt(caseType, c.Value), e.blocks[c.Block])
		}
		bb.NewSwitch(disc, e.blocks[term.Default], cases...)
		return nil
	case *mir.UnreachableTerm:
		bb.NewUnreachable()
		return nil
	}
	return fmt.Errorf("unhandled terminator %T", t)
}

// --- small helpers ---

func (e *emitter) llTupleType(elems []mir.Value) lltypes.Type {
	ts := make([]lltypes.Type, len(elems))
	for i, v := range elems {
		ts[i] = e.llType(v.Type())
	}
	return lltypes.NewStruct(ts...)
}

func pointeeType(e *emitter, ptr mir.Value) lltypes.Type {
	t := ptr.Type()
	if t != nil && t.Kind() == types.KindPointer {
		return e.llType(t.Pointee())
	}
	return lltypes.I8
}

func intType(bits int) *lltypes.IntType {
	switch bits {
	case 1:
		return lltypes.I1
	case 8:
		return lltypes.I8
	case 16:
		return lltypes.I16
	case 32:
		return lltypes.I32
	case 128:
		return lltypes.I128
	default:
		return lltypes.I64
	}
}

func intBits(t *types.Type) int {
	if t != nil && t.IsInteger() {
		return t.BitWidth()
	}
	return 64
}

func toU64(indices []int) []uint64 {
	out := make([]uint64, len(indices))
	for i, v := range indices {
		out[i] = uint64(v)
	}
	return out
}

func fpred(op mir.Opcode) enum.FPred {
	switch op {
	case mir.OpEq:
		return enum.FPredOEQ
	case mir.OpNe:
		return enum.FPredONE
	case mir.OpLt:
		return enum.FPredOLT
	case mir.OpLe:
		return enum.FPredOLE
	case mir.OpGt:
		return enum.FPredOGT
	default:
		return enum.FPredOGE
	}
}

func ipred(op mir.Opcode, signed bool) enum.IPred {
	switch op {
	case mir.OpEq:
		return enum.IPredEQ
	case mir.OpNe:
		return enum.IPredNE
	case mir.OpLt:
		if signed {
			return enum.IPredSLT
		}
		return enum.IPredULT
	case mir.OpLe:
		if signed {
			return enum.IPredSLE
		}
		return enum.IPredULE
	case mir.OpGt:
		if signed {
			return enum.IPredSGT
		}
		return enum.IPredUGT
	default:
		if signed {
			return enum.IPredSGE
		}
		return enum.IPredUGE
	}
}

func atomicOrdering(o mir.AtomicOrdering) enum.AtomicOrdering {
	switch o {
	case mir.OrderingMonotonic:
		return enum.AtomicOrderingMonotonic
	case mir.OrderingAcquire:
		return enum.AtomicOrderingAcquire
	case mir.OrderingRelease:
		return enum.AtomicOrderingRelease
	case mir.OrderingAcqRel:
		return enum.AtomicOrderingAcquireRelease
	default:
		return enum.AtomicOrderingSequentiallyConsistent
	}
}

func rmwOp(op mir.AtomicRMWOp) enum.AtomicOp {
	switch op {
	case mir.RMWXchg:
		return enum.AtomicOpXChg
	case mir.RMWAdd:
		return enum.AtomicOpAdd
	case mir.RMWSub:
		return enum.AtomicOpSub
	case mir.RMWAnd:
		return enum.AtomicOpAnd
	case mir.RMWNand:
		return enum.AtomicOpNAnd
	case mir.RMWOr:
		return enum.AtomicOpOr
	case mir.RMWXor:
		return enum.AtomicOpXor
	case mir.RMWMax:
		return enum.AtomicOpMax
	case mir.RMWMin:
		return enum.AtomicOpMin
	case mir.RMWUMax:
		return enum.AtomicOpUMax
	default:
		return enum.AtomicOpUMin
	}
}
