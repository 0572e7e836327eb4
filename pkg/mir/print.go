package mir

import (
	"fmt"
	"strings"
)

// Print renders a function as textual MIR for debug output and golden-file
// tests. The format is not a parseable IR language — it exists for humans
// reading emit-mir dumps and diffing optimizer output.
func Print(f *Function) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "fn %s(", f.Name)
	for i, p := range f.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%%%d: %s", p.Value.ID(), p.Type.String())
	}
	sb.WriteString(")")
	if f.ReturnType != nil {
		fmt.Fprintf(&sb, " -> %s", f.ReturnType.String())
	}
	sb.WriteString(" {\n")

	for _, b := range f.Blocks() {
		fmt.Fprintf(&sb, "%s:\n", blockLabel(b))
		for _, rec := range b.Instructions() {
			sb.WriteString("    ")
			if rec.Result.Valid() {
				fmt.Fprintf(&sb, "%%%d = ", rec.Result.ID())
			}
			sb.WriteString(printInst(rec.Inst))
			sb.WriteString("\n")
		}
		sb.WriteString("    ")
		sb.WriteString(printTerm(b.Terminator()))
		sb.WriteString("\n")
	}
	sb.WriteString("}\n")
	return sb.String()
}

func blockLabel(b *BasicBlock) string {
	if b.Name != "" {
		return fmt.Sprintf("%s.%d", b.Name, b.ID)
	}
	return fmt.Sprintf("bb%d", b.ID)
}

func printTerm(t Terminator) string {
	switch v := t.(type) {
	case nil:
		return "<unsealed>"
	case *ReturnTerm:
		if v.Value.Valid() {
			return fmt.Sprintf("ret %%%d", v.Value.ID())
		}
		return "ret"
	case *BranchTerm:
		return fmt.Sprintf("br bb%d", v.Target)
	case *CondBranchTerm:
		return fmt.Sprintf("br %%%d, bb%d, bb%d", v.Cond.ID(), v.TrueBlk, v.FalseBlk)
	case *SwitchTerm:
		arms := make([]string, len(v.Cases))
		for i, c := range v.Cases {
			arms[i] = fmt.Sprintf("%d: bb%d", c.Value, c.Block)
		}
		return fmt.Sprintf("switch %%%d [%s] default bb%d", v.Disc.ID(), strings.Join(arms, ", "), v.Default)
	case *UnreachableTerm:
		return "unreachable"
	default:
		return "<?term>"
	}
}

func printInst(inst Instruction) string {
	switch i := inst.(type) {
	case *BinaryInst:
		return fmt.Sprintf("%s %%%d, %%%d", opName(i.Op), i.L.ID(), i.R.ID())
	case *UnaryInst:
		return fmt.Sprintf("%s %%%d", opName(i.Op), i.Operand.ID())
	case *AllocaInst:
		return fmt.Sprintf("alloca %s", i.AllocType.String())
	case *LoadInst:
		return fmt.Sprintf("load %%%d", i.Ptr.ID())
	case *StoreInst:
		return fmt.Sprintf("store %%%d, %%%d", i.Val.ID(), i.Ptr.ID())
	case *GetElementPtrInst:
		idx := make([]string, len(i.Indices))
		for j, v := range i.Indices {
			idx[j] = fmt.Sprintf("%%%d", v.ID())
		}
		checked := ""
		if i.Bounds.Checked && !i.Bounds.Eliminated {
			checked = " [checked]"
		}
		return fmt.Sprintf("gep %%%d, [%s]%s", i.Base.ID(), strings.Join(idx, ", "), checked)
	case *CallInst:
		args := make([]string, len(i.Args))
		for j, v := range i.Args {
			args[j] = fmt.Sprintf("%%%d", v.ID())
		}
		callee := i.FuncName
		if callee == "" {
			callee = fmt.Sprintf("%%%d", i.Callee.ID())
		}
		return fmt.Sprintf("call %s(%s)", callee, strings.Join(args, ", "))
	case *PhiInst:
		parts := make([]string, len(i.Incoming))
		for j, in := range i.Incoming {
			parts[j] = fmt.Sprintf("[%%%d, bb%d]", in.Value.ID(), in.Block)
		}
		return fmt.Sprintf("phi %s", strings.Join(parts, ", "))
	case *ConstIntInst:
		return fmt.Sprintf("const.i%d %d", i.Bits, i.Value)
	case *ConstFloatInst:
		return fmt.Sprintf("const.f %g", i.Value)
	case *ConstBoolInst:
		return fmt.Sprintf("const.bool %t", i.Value)
	case *ConstStringInst:
		return fmt.Sprintf("const.str %q", i.Value)
	case *ConstUnitInst:
		return "const.unit"
	case *SelectInst:
		return fmt.Sprintf("select %%%d, %%%d, %%%d", i.Cond.ID(), i.True.ID(), i.False.ID())
	case *CastInst:
		return fmt.Sprintf("cast %%%d -> %s", i.Operand.ID(), i.Target.String())
	case *AwaitInst:
		return fmt.Sprintf("await %%%d [suspend %d]", i.PollValue.ID(), i.SuspensionID)
	default:
		return fmt.Sprintf("%T", inst)
	}
}

func opName(op Opcode) string {
	names := map[Opcode]string{
		OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpMod: "mod",
		OpEq: "eq", OpNe: "ne", OpLt: "lt", OpLe: "le", OpGt: "gt", OpGe: "ge",
		OpAnd: "and", OpOr: "or", OpBitAnd: "band", OpBitOr: "bor", OpBitXor: "bxor",
		OpShl: "shl", OpShr: "shr", OpNeg: "neg", OpNot: "not", OpBitNot: "bnot",
	}
	if n, ok := names[op]; ok {
		return n
	}
	return fmt.Sprintf("op%d", op)
}
