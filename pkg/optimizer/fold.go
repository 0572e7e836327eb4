// Package optimizer implements every concrete MIR analysis and transform
// pass, composed into the O0-O3 pipelines by
// pkg/pass.Manager.
package optimizer

import "github.com/lumen-lang/lumenc/pkg/mir"

// ConstFold folds binary operations over two constant operands into a
// single materialized constant, the simplest of the O1 utility passes.
// Unary operations are not folded.
type ConstFold struct {
	folded int
}

func (p *ConstFold) Name() string  { return "const-fold" }
func (p *ConstFold) Fixpoint() bool { return true }

func (p *ConstFold) Run(fn *mir.Function, mod *mir.Module) bool {
	p.folded = 0
	changed := false
	for _, b := range fn.Blocks() {
		insts := b.Instructions()
		defs := defMap(insts)
		for i, rec := range insts {
			folded, ok := foldInst(rec, defs)
			if !ok {
				continue
			}
			insts[i] = folded
			defs[rec.Result.ID()] = folded
			p.folded++
			changed = true
		}
	}
	return changed
}

// defMap indexes a block's instruction records by result value id, for
// single-block constant lookups. Constant folding only looks within the
// defining block's prior instructions; cross-block propagation is IPCP's
// and SCCP-shaped passes' job, not this pass's; each pass stays narrowly
// scoped.
func defMap(insts []mir.InstructionRecord) map[uint32]mir.InstructionRecord {
	m := make(map[uint32]mir.InstructionRecord, len(insts))
	for _, r := range insts {
		if r.Result.Valid() {
			m[r.Result.ID()] = r
		}
	}
	return m
}

func constInt(defs map[uint32]mir.InstructionRecord, v mir.Value) (int64, bool) {
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

func foldInst(rec mir.InstructionRecord, defs map[uint32]mir.InstructionRecord) (mir.InstructionRecord, bool) {
	bin, ok := rec.Inst.(*mir.BinaryInst)
	if !ok {
		return rec, false
	}
	l, lok := constInt(defs, bin.L)
	r, rok := constInt(defs, bin.R)
	if !lok || !rok {
		return rec, false
	}
	bits, signed := 64, true
	if lrec, ok := defs[bin.L.ID()]; ok {
		if c, ok := lrec.Inst.(*mir.ConstIntInst); ok {
			bits, signed = c.Bits, c.Signed
		}
	}
	val, isBool, ok := evalIntOp(bin.Op, l, r)
	if !ok {
		return rec, false
	}
	if isBool {
		rec.Inst = &mir.ConstBoolInst{Value: val != 0}
	} else {
		rec.Inst = &mir.ConstIntInst{Value: val, Bits: bits, Signed: signed}
	}
	return rec, true
}

func evalIntOp(op mir.Opcode, l, r int64) (result int64, isBool bool, ok bool) {
	switch op {
	case mir.OpAdd:
		return l + r, false, true
	case mir.OpSub:
		return l - r, false, true
	case mir.OpMul:
		return l * r, false, true
	case mir.OpDiv:
		if r == 0 {
			return 0, false, false
		}
		return l / r, false, true
	case mir.OpMod:
		if r == 0 {
			return 0, false, false
		}
		return l % r, false, true
	case mir.OpBitAnd:
		return l & r, false, true
	case mir.OpBitOr:
		return l | r, false, true
	case mir.OpBitXor:
		return l ^ r, false, true
	case mir.OpShl:
		return l << uint(r), false, true
	case mir.OpShr:
		return l >> uint(r), false, true
	case mir.OpEq:
		return b2i(l == r), true, true
	case mir.OpNe:
		return b2i(l != r), true, true
	case mir.OpLt:
		return b2i(l < r), true, true
	case mir.OpLe:
		return b2i(l <= r), true, true
	case mir.OpGt:
		return b2i(l > r), true, true
	case mir.OpGe:
		return b2i(l >= r), true, true
	default:
		return 0, false, false
	}
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
