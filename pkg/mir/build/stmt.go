package build

import (
	"github.com/lumen-lang/lumenc/pkg/frontend"
	"github.com/lumen-lang/lumenc/pkg/mir"
)

func (b *Builder) buildStmt(stmt frontend.Stmt) {
	if b.block == nil || b.block.Sealed() {
		return
	}
	switch s := stmt.(type) {
	case *frontend.Return:
		// Drops for every enclosing scope run before the transfer; the
		// returned value itself is moved out and not dropped.
		if s.Value == nil {
			b.emitDropsFrom(0, mir.InvalidValue)
			b.block.SetTerminator(&mir.ReturnTerm{})
			b.block = nil
			return
		}
		v := b.buildExpr(s.Value)
		b.emitDropsFrom(0, v)
		b.block.SetTerminator(&mir.ReturnTerm{Value: v})
		b.block = nil

	case *frontend.Assign:
		v := b.buildExpr(s.Value)
		b.env[s.Target] = v

	case *frontend.FieldAssign:
		recv := b.buildExpr(s.Target)
		val := b.buildExpr(s.Value)
		def := b.structDefOf(recv.Type())
		idx := -1
		if def != nil {
			idx = def.FieldIndex(s.Field)
		}
		if idx < 0 {
			b.fail("unknown field %q on %s", s.Field, recv.Type().String())
			return
		}
		b.emit(&mir.InsertValueInst{Agg: recv, Val: val, Indices: []int{idx}}, recv.Type())

	case *frontend.IndexAssign:
		target := b.buildExpr(s.Target)
		idx := b.buildExpr(s.Index)
		val := b.buildExpr(s.Value)
		elemType := val.Type()
		ptr := b.emit(&mir.GetElementPtrInst{Base: target, Indices: []mir.Value{idx}, Bounds: mir.BoundsInfo{Checked: true}}, b.intern_ptr(elemType))
		b.emitVoid(&mir.StoreInst{Ptr: ptr, Val: val})

	case *frontend.If:
		b.buildIf(s)

	case *frontend.While:
		b.buildWhile(s)

	case *frontend.For:
		b.buildFor(s)

	case *frontend.Break:
		if len(b.loopStack) == 0 {
			b.fail("break outside loop")
			return
		}
		ctx := b.loopStack[len(b.loopStack)-1]
		// Unwind the scopes opened since loop entry before leaving.
		b.emitDropsFrom(ctx.scopeDepth, mir.InvalidValue)
		b.block.SetTerminator(&mir.BranchTerm{Target: ctx.breakBlock.ID})
		b.block = nil

	case *frontend.Continue:
		if len(b.loopStack) == 0 {
			b.fail("continue outside loop")
			return
		}
		ctx := b.loopStack[len(b.loopStack)-1]
		b.emitDropsFrom(ctx.scopeDepth, mir.InvalidValue)
		b.block.SetTerminator(&mir.BranchTerm{Target: ctx.continueBlock.ID})
		b.block = nil

	case *frontend.Pass:
		// no-op

	case *frontend.ExprStmt:
		b.buildExpr(s.X)

	case *frontend.Match:
		b.buildMatch(s)

	default:
		// Expression statement (side effect only, e.g. a bare call).
		if e, ok := stmt.(frontend.Expr); ok {
			b.buildExpr(e)
			return
		}
		b.fail("unsupported statement %T", stmt)
	}
}

// buildIf lowers an if/elif/else chain, evaluating each branch against an
// independent copy of the variable environment and reconciling them with
// phis at the merge block wherever the branches disagree on a binding.
func (b *Builder) buildIf(s *frontend.If) {
	chain := append([]frontend.ElifClause{{Cond: s.Cond, Body: s.Then}}, s.Elif...)
	b.buildCondChain(chain, s.Else)
}

func (b *Builder) buildCondChain(chain []frontend.ElifClause, els []frontend.Stmt) {
	if len(chain) == 0 {
		for _, stmt := range els {
			if b.block == nil {
				return
			}
			b.buildStmt(stmt)
		}
		return
	}

	head := chain[0]
	cond := b.buildExpr(head.Cond)

	entryBlock := b.block
	entryEnv := cloneEnv(b.env)

	thenBlock := b.newBlock("then")
	elseBlock := b.newBlock("else")
	entryBlock.SetTerminator(&mir.CondBranchTerm{Cond: cond, TrueBlk: thenBlock.ID, FalseBlk: elseBlock.ID})

	b.block = thenBlock
	b.env = cloneEnv(entryEnv)
	for _, stmt := range head.Body {
		if b.block == nil {
			break
		}
		b.buildStmt(stmt)
	}
	thenEnd, thenEnv := b.block, b.env

	b.block = elseBlock
	b.env = cloneEnv(entryEnv)
	b.buildCondChain(chain[1:], els)
	elseEnd, elseEnv := b.block, b.env

	b.mergeBranches(thenEnd, thenEnv, elseEnd, elseEnv)
}

// mergeBranches joins two branch outcomes (either may have already
// terminated via return/break/continue, in which case it contributes no
// incoming edge) into a fresh merge block with phis for every binding the
// two live environments disagree on.
func (b *Builder) mergeBranches(aEnd *mir.BasicBlock, aEnv map[string]mir.Value, bEnd *mir.BasicBlock, bEnv map[string]mir.Value) {
	live := []*mir.BasicBlock{}
	envs := []map[string]mir.Value{}
	if aEnd != nil {
		live = append(live, aEnd)
		envs = append(envs, aEnv)
	}
	if bEnd != nil {
		live = append(live, bEnd)
		envs = append(envs, bEnv)
	}

	if len(live) == 0 {
		b.block = nil
		return
	}
	if len(live) == 1 {
		b.block = live[0]
		b.env = envs[0]
		return
	}

	merge := b.newBlock("merge")
	for _, blk := range live {
		blk.SetTerminator(&mir.BranchTerm{Target: merge.ID})
	}

	merged := map[string]mir.Value{}
	names := map[string]bool{}
	for _, e := range envs {
		for k := range e {
			names[k] = true
		}
	}
	for name := range names {
		first := envs[0][name]
		same := true
		for _, e := range envs[1:] {
			if e[name].ID() != first.ID() {
				same = false
				break
			}
		}
		if same {
			merged[name] = first
			continue
		}
		var typ = first.Type()
		incoming := make([]mir.PhiIncoming, len(live))
		for i, blk := range live {
			incoming[i] = mir.PhiIncoming{Value: envs[i][name], Block: blk.ID}
		}
		phiVal := mir.NewValue(b.fn.NewValueID(), typ)
		merge.Append(mir.InstructionRecord{Inst: &mir.PhiInst{Incoming: incoming}, Result: phiVal, Type: typ})
		merged[name] = phiVal
	}

	b.block = merge
	b.env = merged
}

// buildWhile lowers a while loop. Variables assigned anywhere in the body are
// pre-scanned so the header block can carry a phi for each one before the
// body (which may reference the loop-carried value) is built.
func (b *Builder) buildWhile(s *frontend.While) {
	carried := assignedVars(s.Body)
	preHeaderEnv := cloneEnv(b.env)

	header := b.newBlock("loop_header")
	b.block.SetTerminator(&mir.BranchTerm{Target: header.ID})

	b.block = header
	headerPhis := map[string]mir.Value{}
	for name := range carried {
		if _, ok := preHeaderEnv[name]; !ok {
			continue
		}
		phiVal := mir.NewValue(b.fn.NewValueID(), preHeaderEnv[name].Type())
		header.Append(mir.InstructionRecord{Inst: &mir.PhiInst{}, Result: phiVal, Type: preHeaderEnv[name].Type()})
		headerPhis[name] = phiVal
		b.env[name] = phiVal
	}

	cond := b.buildExpr(s.Cond)
	body := b.newBlock("loop_body")
	exit := b.newBlock("loop_exit")
	header.SetTerminator(&mir.CondBranchTerm{Cond: cond, TrueBlk: body.ID, FalseBlk: exit.ID})

	b.block = body
	b.env = cloneEnv(b.env)
	b.loopStack = append(b.loopStack, loopCtx{breakBlock: exit, continueBlock: header, scopeDepth: b.dropDepth()})
	b.pushDropScope()
	for _, stmt := range s.Body {
		if b.block == nil {
			break
		}
		b.buildStmt(stmt)
	}
	b.loopStack = b.loopStack[:len(b.loopStack)-1]

	if b.block != nil {
		bodyEnv := b.env
		b.emitScopeDrops()
		b.block.SetTerminator(&mir.BranchTerm{Target: header.ID})
		b.patchHeaderPhis(header, headerPhis, preHeaderEnv, b.block.ID, bodyEnv)
	}
	b.popDropScope()

	b.block = exit
	b.env = preHeaderEnv
	for name, phi := range headerPhis {
		b.env[name] = phi
	}
}

// patchHeaderPhis rebuilds the incoming edges of each header phi from the
// header's current predecessors: the edge from the latch carries the latch
// environment's value, every other edge the pre-header environment's value.
func (b *Builder) patchHeaderPhis(header *mir.BasicBlock, headerPhis map[string]mir.Value, preHeaderEnv map[string]mir.Value, latch mir.BlockID, latchEnv map[string]mir.Value) {
	for _, rec := range header.Instructions() {
		phi, ok := rec.Inst.(*mir.PhiInst)
		if !ok {
			continue
		}
		for name, v := range headerPhis {
			if v.ID() != rec.Result.ID() {
				continue
			}
			phi.Incoming = []mir.PhiIncoming{}
			for _, pred := range b.fn.Predecessors(header.ID) {
				if pred == latch {
					phi.Incoming = append(phi.Incoming, mir.PhiIncoming{Value: latchEnv[name], Block: latch})
				} else {
					phi.Incoming = append(phi.Incoming, mir.PhiIncoming{Value: preHeaderEnv[name], Block: pred})
				}
			}
		}
	}
}

// buildFor lowers `for target in iterable { body }` over an array/slice
// value by rewriting it to index-based iteration: an induction variable
// running [0, len) feeding an element load, using the same header-phi
// technique as buildWhile. Range-over-iterator protocols need a runtime
// library and stay out of scope.
func (b *Builder) buildFor(s *frontend.For) {
	iterVal := b.buildExpr(s.Iter)
	elemType := iterVal.Type().Elem()

	zero := b.emit(&mir.ConstIntInst{Value: 0, Bits: 64, Signed: false}, b.u64())
	length := b.arrayLength(iterVal)

	preHeaderEnv := cloneEnv(b.env)
	header := b.newBlock("for_header")
	b.block.SetTerminator(&mir.BranchTerm{Target: header.ID})

	b.block = header
	idxPhi := mir.NewValue(b.fn.NewValueID(), b.u64())
	header.Append(mir.InstructionRecord{Inst: &mir.PhiInst{}, Result: idxPhi, Type: b.u64()})

	// Variables the body reassigns carry through header phis, same as
	// buildWhile.
	carried := assignedVars(s.Body)
	headerPhis := map[string]mir.Value{}
	for name := range carried {
		if _, ok := preHeaderEnv[name]; !ok {
			continue
		}
		phiVal := mir.NewValue(b.fn.NewValueID(), preHeaderEnv[name].Type())
		header.Append(mir.InstructionRecord{Inst: &mir.PhiInst{}, Result: phiVal, Type: preHeaderEnv[name].Type()})
		headerPhis[name] = phiVal
	}

	cond := b.emit(&mir.BinaryInst{Op: mir.OpLt, L: idxPhi, R: length}, b.boolT())
	body := b.newBlock("for_body")
	exit := b.newBlock("for_exit")
	header.SetTerminator(&mir.CondBranchTerm{Cond: cond, TrueBlk: body.ID, FalseBlk: exit.ID})

	b.block = body
	b.env = cloneEnv(preHeaderEnv)
	for name, phi := range headerPhis {
		b.env[name] = phi
	}
	elemPtr := b.emit(&mir.GetElementPtrInst{Base: iterVal, Indices: []mir.Value{idxPhi}, Bounds: mir.BoundsInfo{Checked: true, Reason: "loop"}}, b.ptrTo(elemType))
	elemVal := b.emit(&mir.LoadInst{Ptr: elemPtr}, elemType)
	b.env[s.Target] = elemVal

	b.loopStack = append(b.loopStack, loopCtx{breakBlock: exit, continueBlock: header, scopeDepth: b.dropDepth()})
	b.pushDropScope()
	for _, stmt := range s.Body {
		if b.block == nil {
			break
		}
		b.buildStmt(stmt)
	}
	b.loopStack = b.loopStack[:len(b.loopStack)-1]

	if b.block != nil {
		bodyEnv := b.env
		b.emitScopeDrops()
		one := b.emit(&mir.ConstIntInst{Value: 1, Bits: 64, Signed: false}, b.u64())
		nextIdx := b.emit(&mir.BinaryInst{Op: mir.OpAdd, L: idxPhi, R: one}, b.u64())
		latch := b.block
		latch.SetTerminator(&mir.BranchTerm{Target: header.ID})
		for _, rec := range header.Instructions() {
			if phi, ok := rec.Inst.(*mir.PhiInst); ok && rec.Result.ID() == idxPhi.ID() {
				for _, pred := range b.fn.Predecessors(header.ID) {
					if pred == latch.ID {
						phi.Incoming = append(phi.Incoming, mir.PhiIncoming{Value: nextIdx, Block: pred})
					} else {
						phi.Incoming = append(phi.Incoming, mir.PhiIncoming{Value: zero, Block: pred})
					}
				}
			}
		}
		b.patchHeaderPhis(header, headerPhis, preHeaderEnv, latch.ID, bodyEnv)
	}
	b.popDropScope()

	b.block = exit
	b.env = preHeaderEnv
	for name, phi := range headerPhis {
		b.env[name] = phi
	}
}

// assignedVars returns the set of variable names directly assigned anywhere
// within stmts, recursing into nested control flow so a loop header knows
// every binding it must carry as a phi.
func assignedVars(stmts []frontend.Stmt) map[string]bool {
	out := map[string]bool{}
	var walk func([]frontend.Stmt)
	walk = func(ss []frontend.Stmt) {
		for _, s := range ss {
			switch v := s.(type) {
			case *frontend.Assign:
				out[v.Target] = true
			case *frontend.If:
				walk(v.Then)
				for _, ec := range v.Elif {
					walk(ec.Body)
				}
				walk(v.Else)
			case *frontend.While:
				walk(v.Body)
			case *frontend.For:
				walk(v.Body)
				out[v.Target] = true
			}
		}
	}
	walk(stmts)
	return out
}
