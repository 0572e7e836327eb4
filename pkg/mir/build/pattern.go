package build

import (
	"github.com/lumen-lang/lumenc/pkg/frontend"
	"github.com/lumen-lang/lumenc/pkg/mir"
)

// buildMatch lowers a match statement. When the subject is an enum and
// every case (but an optional trailing wildcard) is a ClassPattern naming a
// variant, it compiles to a single Switch terminator on the discriminant
// (field index 0); otherwise it falls back to a sequential chain of
// equality/destructure tests, one cond-branch per case, which always
// terminates because the final branch carries the match's implicit default.
func (b *Builder) buildMatch(s *frontend.Match) {
	subject := b.buildExpr(s.Subject)
	def := b.enumDefOf(subject.Type())
	if def != nil && allClassPatterns(s.Cases) {
		b.buildEnumSwitch(subject, def, s.Cases)
		return
	}
	b.buildPatternChain(subject, s.Cases)
}

func allClassPatterns(cases []frontend.MatchCase) bool {
	for i, c := range cases {
		if _, ok := c.Pattern.(*frontend.ClassPattern); ok {
			continue
		}
		if _, ok := c.Pattern.(*frontend.CapturePattern); ok && i == len(cases)-1 {
			continue // trailing wildcard/binding default is fine
		}
		return false
	}
	return true
}

func (b *Builder) buildEnumSwitch(subject mir.Value, def *mir.EnumDef, cases []frontend.MatchCase) {
	tag := b.emit(&mir.ExtractValueInst{Agg: subject, Indices: []int{0}}, b.u64())

	preEnv := cloneEnv(b.env)
	dispatchBlock := b.block

	var swCases []mir.SwitchCase
	var ends []*mir.BasicBlock
	var envs []map[string]mir.Value
	var defaultBlock *mir.BasicBlock

	for _, c := range cases {
		caseBlock := b.newBlock("case")
		b.block = caseBlock
		b.env = cloneEnv(preEnv)

		cp, isClass := c.Pattern.(*frontend.ClassPattern)
		if isClass {
			vi := def.VariantIndex(cp.Class)
			swCases = append(swCases, mir.SwitchCase{Value: int64(vi), Block: caseBlock.ID})
			if vi >= 0 && vi < len(def.Variants) {
				for pi, sub := range cp.Args {
					if cap, ok := sub.(*frontend.CapturePattern); ok && pi < len(def.Variants[vi].Payload) {
						val := b.emit(&mir.ExtractValueInst{Agg: subject, Indices: []int{1, pi}}, def.Variants[vi].Payload[pi])
						b.env[cap.Name] = val
					}
				}
			}
		} else if cap, ok := c.Pattern.(*frontend.CapturePattern); ok {
			b.env[cap.Name] = subject
			defaultBlock = caseBlock
		}

		for _, stmt := range c.Body {
			if b.block == nil {
				break
			}
			b.buildStmt(stmt)
		}
		ends = append(ends, b.block)
		envs = append(envs, b.env)
	}

	if defaultBlock == nil {
		defaultBlock = b.newBlock("case_unreachable")
		defaultBlock.SetTerminator(&mir.UnreachableTerm{})
	}
	dispatchBlock.SetTerminator(&mir.SwitchTerm{Disc: tag, Cases: swCases, Default: defaultBlock.ID})

	b.mergeAll(ends, envs)
}

// buildPatternChain lowers cases as a sequential chain of tests: literal
// patterns compare by equality, a capture pattern always matches and binds,
// and an or-pattern matches if any alternative does. This covers patterns
// that don't fit the single-discriminant switch fast path above.
func (b *Builder) buildPatternChain(subject mir.Value, cases []frontend.MatchCase) {
	preEnv := cloneEnv(b.env)
	var ends []*mir.BasicBlock
	var envs []map[string]mir.Value

	var emitCase func(idx int)
	emitCase = func(idx int) {
		if idx >= len(cases) {
			b.block.SetTerminator(&mir.UnreachableTerm{})
			return
		}
		c := cases[idx]
		matched := b.testPattern(subject, c.Pattern)
		bodyBlock := b.newBlock("case")
		nextBlock := b.newBlock("case_next")
		dispatch := b.block
		dispatch.SetTerminator(&mir.CondBranchTerm{Cond: matched, TrueBlk: bodyBlock.ID, FalseBlk: nextBlock.ID})

		bodyEnv := cloneEnv(b.env)
		b.block = bodyBlock
		b.env = bodyEnv
		b.bindPattern(subject, c.Pattern)
		for _, stmt := range c.Body {
			if b.block == nil {
				break
			}
			b.buildStmt(stmt)
		}
		ends = append(ends, b.block)
		envs = append(envs, b.env)

		b.block = nextBlock
		b.env = cloneEnv(preEnv)
		emitCase(idx + 1)
	}
	emitCase(0)

	b.mergeAll(ends, envs)
}

func (b *Builder) testPattern(subject mir.Value, pat frontend.Pattern) mir.Value {
	switch p := pat.(type) {
	case *frontend.CapturePattern:
		return b.emit(&mir.ConstBoolInst{Value: true}, b.boolT())
	case *frontend.LiteralPattern:
		lit := b.buildExpr(p.Value)
		return b.emit(&mir.BinaryInst{Op: mir.OpEq, L: subject, R: lit}, b.boolT())
	case *frontend.OrPattern:
		var acc mir.Value
		for i, alt := range p.Patterns {
			t := b.testPattern(subject, alt)
			if i == 0 {
				acc = t
				continue
			}
			acc = b.emit(&mir.BinaryInst{Op: mir.OpOr, L: acc, R: t}, b.boolT())
		}
		return acc
	default:
		return b.emit(&mir.ConstBoolInst{Value: false}, b.boolT())
	}
}

func (b *Builder) bindPattern(subject mir.Value, pat frontend.Pattern) {
	if cap, ok := pat.(*frontend.CapturePattern); ok && cap.Name != "_" {
		b.env[cap.Name] = subject
	}
}

// mergeAll folds N branch outcomes into one merge block via repeated
// pairwise mergeBranches, matching buildIf's reconciliation approach.
func (b *Builder) mergeAll(ends []*mir.BasicBlock, envs []map[string]mir.Value) {
	if len(ends) == 0 {
		b.block = nil
		return
	}
	curEnd, curEnv := ends[0], envs[0]
	for i := 1; i < len(ends); i++ {
		b.mergeBranches(curEnd, curEnv, ends[i], envs[i])
		curEnd, curEnv = b.block, b.env
	}
	b.block, b.env = curEnd, curEnv
}
