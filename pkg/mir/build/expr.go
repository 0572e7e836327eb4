package build

import (
	"github.com/lumen-lang/lumenc/pkg/frontend"
	"github.com/lumen-lang/lumenc/pkg/mir"
	"github.com/lumen-lang/lumenc/pkg/types"
)

func (b *Builder) boolT() *types.Type { return b.intern(types.Bool()) }
func (b *Builder) u64() *types.Type   { return b.intern(types.U64()) }
func (b *Builder) ptrTo(elem *types.Type) *types.Type {
	return b.intern(types.Pointer(elem, true))
}
func (b *Builder) intern_ptr(elem *types.Type) *types.Type { return b.ptrTo(elem) }

func (b *Builder) structDefOf(t *types.Type) *mir.StructDef {
	if t == nil || t.Kind() != types.KindStruct {
		return nil
	}
	return b.module.Structs[types.Mangle(t)]
}

func (b *Builder) enumDefOf(t *types.Type) *mir.EnumDef {
	if t == nil || t.Kind() != types.KindEnum {
		return nil
	}
	return b.module.Enums[types.Mangle(t)]
}

// arrayLength returns the element count of a fixed-size array as a u64
// constant, or for a slice, loads its stored length field (slices are
// lowered as {ptr, len} pairs, field index 1).
func (b *Builder) arrayLength(v mir.Value) mir.Value {
	if v.Type().Kind() == types.KindArray {
		return b.emit(&mir.ConstIntInst{Value: int64(v.Type().ArraySize()), Bits: 64, Signed: false}, b.u64())
	}
	return b.emit(&mir.ExtractValueInst{Agg: v, Indices: []int{1}}, b.u64())
}

func (b *Builder) buildExpr(expr frontend.Expr) mir.Value {
	switch e := expr.(type) {
	case *frontend.Num:
		return b.emit(&mir.ConstIntInst{Value: e.Value, Bits: 64, Signed: true}, b.intern(types.I64()))

	case *frontend.Bool:
		return b.emit(&mir.ConstBoolInst{Value: e.Value}, b.boolT())

	case *frontend.Name:
		if v, ok := b.env[e.Id]; ok {
			return v
		}
		b.fail("undefined variable %q", e.Id)
		return mir.InvalidValue

	case *frontend.BinOp:
		l := b.buildExpr(e.Left)
		r := b.buildExpr(e.Right)
		return b.emit(&mir.BinaryInst{Op: binOpcode(e.Op), L: l, R: r}, l.Type())

	case *frontend.UnaryOp:
		v := b.buildExpr(e.Expr)
		op := mir.OpNeg
		if e.Op == frontend.Not {
			op = mir.OpNot
		}
		return b.emit(&mir.UnaryInst{Op: op, Operand: v}, v.Type())

	case *frontend.Compare:
		l := b.buildExpr(e.Left)
		r := b.buildExpr(e.Right)
		return b.emit(&mir.BinaryInst{Op: compareOpcode(e.Op), L: l, R: r}, b.boolT())

	case *frontend.BoolOp:
		return b.buildShortCircuit(e)

	case *frontend.Call:
		return b.buildCall(e)

	case *frontend.MethodCall:
		recv := b.buildExpr(e.Receiver)
		args := make([]mir.Value, len(e.Args))
		for i, a := range e.Args {
			args[i] = b.buildExpr(a)
		}
		return b.emit(&mir.MethodCallInst{Receiver: recv, Method: e.Method, Args: args}, recv.Type())

	case *frontend.Attribute:
		recv := b.buildExpr(e.Value)
		def := b.structDefOf(recv.Type())
		if def == nil {
			b.fail("attribute access on non-struct type %s", recv.Type().String())
			return mir.InvalidValue
		}
		idx := def.FieldIndex(e.Attr)
		if idx < 0 {
			b.fail("unknown field %q on %s", e.Attr, recv.Type().String())
			return mir.InvalidValue
		}
		return b.emit(&mir.ExtractValueInst{Agg: recv, Indices: []int{idx}}, def.Fields[idx].Type)

	case *frontend.Subscript:
		base := b.buildExpr(e.Value)
		idx := b.buildExpr(e.Index)
		elemType := base.Type().Elem()
		ptr := b.emit(&mir.GetElementPtrInst{Base: base, Indices: []mir.Value{idx}, Bounds: mir.BoundsInfo{Checked: true}}, b.ptrTo(elemType))
		return b.emit(&mir.LoadInst{Ptr: ptr}, elemType)

	case *frontend.TupleLit:
		elems := make([]mir.Value, len(e.Elems))
		types_ := make([]*types.Type, len(e.Elems))
		for i, el := range e.Elems {
			elems[i] = b.buildExpr(el)
			types_[i] = elems[i].Type()
		}
		return b.emit(&mir.TupleInitInst{Elems: elems}, b.intern(types.Tuple(types_...)))

	case *frontend.ArrayLit:
		elems := make([]mir.Value, len(e.Elems))
		var elemType *types.Type
		for i, el := range e.Elems {
			elems[i] = b.buildExpr(el)
			elemType = elems[i].Type()
		}
		return b.emit(&mir.ArrayInitInst{ElemType: elemType, Elems: elems}, b.intern(types.Array(elemType, int64(len(elems)))))

	case *frontend.StructLit:
		def := b.module.Structs[e.Name]
		vals := make([]mir.Value, len(e.Fields))
		for i, f := range e.Fields {
			vals[i] = b.buildExpr(f.Value)
		}
		var t *types.Type
		if def != nil {
			typeArgs := make([]*types.Type, len(def.TypeArgs))
			copy(typeArgs, def.TypeArgs)
			t = b.intern(types.Struct(e.Name, typeArgs...))
		} else {
			t = b.intern(types.Struct(e.Name))
		}
		sv := b.emit(&mir.StructInitInst{StructName: e.Name, Fields: vals}, t)
		b.trackOwned(sv)
		return sv

	case *frontend.EnumLit:
		def := b.module.Enums[e.EnumName]
		payload := make([]mir.Value, len(e.Payload))
		for i, p := range e.Payload {
			payload[i] = b.buildExpr(p)
		}
		idx := 0
		if def != nil {
			idx = def.VariantIndex(e.Variant)
		}
		t := b.intern(types.Enum(e.EnumName))
		ev := b.emit(&mir.EnumInitInst{EnumName: e.EnumName, VariantIndex: idx, Payload: payload}, t)
		b.trackOwned(ev)
		return ev

	case *frontend.Await:
		poll := b.buildExpr(e.Value)
		b.fn.Flags.IsAsync = true
		sid := len(b.asyncPoints)
		b.asyncPoints = append(b.asyncPoints, sid)
		return b.emit(&mir.AwaitInst{PollValue: poll, SuspensionID: sid}, poll.Type())

	default:
		b.fail("unsupported expression %T", expr)
		return mir.InvalidValue
	}
}

// buildShortCircuit lowers `&&`/`||` with control flow: the right operand
// only evaluates when the left one did not already decide the result. The
// merge block's phi takes the literal short-circuit value on the skip edge
// and the computed rhs on the other.
func (b *Builder) buildShortCircuit(e *frontend.BoolOp) mir.Value {
	lhs := b.buildExpr(e.Left)
	// The literal the skipped edge contributes: false for &&, true for ||.
	shortVal := b.emit(&mir.ConstBoolInst{Value: e.Op == frontend.Or}, b.boolT())

	lhsEnd := b.block
	rhsBlock := b.newBlock("rhs")
	merge := b.newBlock("bool_merge")

	// && falls through to rhs on true; || on false.
	if e.Op == frontend.And {
		lhsEnd.SetTerminator(&mir.CondBranchTerm{Cond: lhs, TrueBlk: rhsBlock.ID, FalseBlk: merge.ID})
	} else {
		lhsEnd.SetTerminator(&mir.CondBranchTerm{Cond: lhs, TrueBlk: merge.ID, FalseBlk: rhsBlock.ID})
	}

	b.block = rhsBlock
	rhs := b.buildExpr(e.Right)
	rhsEnd := b.block
	rhsEnd.SetTerminator(&mir.BranchTerm{Target: merge.ID})

	phi := b.newValue(b.boolT())
	merge.Append(mir.InstructionRecord{
		Inst: &mir.PhiInst{Incoming: []mir.PhiIncoming{
			{Value: shortVal, Block: lhsEnd.ID},
			{Value: rhs, Block: rhsEnd.ID},
		}},
		Result: phi, Type: b.boolT(),
	})

	b.block = merge
	return phi
}

func binOpcode(op frontend.Operator) mir.Opcode {
	switch op {
	case frontend.Add:
		return mir.OpAdd
	case frontend.Sub:
		return mir.OpSub
	case frontend.Mul:
		return mir.OpMul
	case frontend.Div:
		return mir.OpDiv
	case frontend.Mod:
		return mir.OpMod
	default:
		return mir.OpAdd
	}
}

func compareOpcode(op frontend.CompareOp) mir.Opcode {
	switch op {
	case frontend.Eq:
		return mir.OpEq
	case frontend.Ne:
		return mir.OpNe
	case frontend.Lt:
		return mir.OpLt
	case frontend.Le:
		return mir.OpLe
	case frontend.Gt:
		return mir.OpGt
	case frontend.Ge:
		return mir.OpGe
	default:
		return mir.OpEq
	}
}
