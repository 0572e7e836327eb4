// Package build lowers the front-end AST directly into SSA-form MIR: phis
// are inserted in place at control-flow merges as each function is walked,
// rather than constructing a non-SSA form and converting it afterward.
package build

import (
	"fmt"

	"github.com/lumen-lang/lumenc/pkg/frontend"
	"github.com/lumen-lang/lumenc/pkg/logger"
	"github.com/lumen-lang/lumenc/pkg/mir"
	"github.com/lumen-lang/lumenc/pkg/types"
)

// Builder lowers one frontend.Module into one mir.Module. It is not
// reentrant across modules: construct a fresh Builder per compilation unit.
type Builder struct {
	module *mir.Module

	fn    *mir.Function
	block *mir.BasicBlock
	env   map[string]mir.Value

	loopStack  []loopCtx
	blockNames map[string]int // per-function disambiguation counter

	knownEnums map[string]bool // names resolved as enums without a registered EnumDef: the builtin sum types

	asyncPoints []int // suspension ids allocated by Await lowering, one per function
	dropScopes  []*dropScope

	errs []error
}

type loopCtx struct {
	breakBlock    *mir.BasicBlock
	continueBlock *mir.BasicBlock
	// scopeDepth is the drop-scope height at loop entry; break/continue
	// unwind everything above it.
	scopeDepth int
}

// New constructs a Builder targeting a fresh module named name.
func New(name string) *Builder {
	return &Builder{
		module:     mir.NewModule(name),
		knownEnums: map[string]bool{"Maybe": true, "Ordering": true, "Poll": true},
	}
}

// Build lowers every FunctionDef (and struct/enum ClassDef) in mod into the
// builder's module, returning it once every function is successfully built.
func (b *Builder) Build(mod *frontend.Module) (*mir.Module, error) {
	logger.Debug("building MIR", "statements", len(mod.Body))

	// Type declarations first so function bodies resolve struct layouts and
	// method receivers regardless of source order.
	for _, stmt := range mod.Body {
		if cls, ok := stmt.(*frontend.ClassDef); ok {
			b.registerClass(cls)
		}
	}

	for _, stmt := range mod.Body {
		switch s := stmt.(type) {
		case *frontend.FunctionDef:
			if err := b.buildFunction(s); err != nil {
				logger.Error("failed to build function", "name", s.Name, "error", err)
				return nil, fmt.Errorf("build %s: %w", s.Name, err)
			}
		case *frontend.ClassDef:
			for _, m := range s.Methods {
				lowered := *m
				lowered.Name = s.Name + "_" + m.Name
				if err := b.buildFunction(&lowered); err != nil {
					logger.Error("failed to build method", "name", lowered.Name, "error", err)
					return nil, fmt.Errorf("build %s: %w", lowered.Name, err)
				}
			}
		}
	}

	if len(b.errs) > 0 {
		return nil, fmt.Errorf("build: %d error(s), first: %w", len(b.errs), b.errs[0])
	}
	logger.Info("MIR build complete", "functions", len(b.module.Functions))
	return b.module, nil
}

// registerClass records a class declaration as a struct layout. Field types
// come from the class-level assignments' literal initializers (the parser
// carries no field annotations); methods lower separately as
// `Class_method` functions.
func (b *Builder) registerClass(cls *frontend.ClassDef) {
	def := &mir.StructDef{Name: cls.Name}
	for _, attr := range cls.Attrs {
		def.Fields = append(def.Fields, mir.FieldDef{
			Name: attr.Target,
			Type: b.literalType(attr.Value),
		})
	}
	b.module.AddStruct(cls.Name, def)
}

// literalType infers a field's MIR type from its initializer literal.
func (b *Builder) literalType(e frontend.Expr) *types.Type {
	switch e.(type) {
	case *frontend.Bool:
		return b.intern(types.Bool())
	default:
		return b.intern(types.I64())
	}
}

func (b *Builder) fail(format string, args ...any) {
	b.errs = append(b.errs, fmt.Errorf(format, args...))
}

func (b *Builder) buildFunction(fn *frontend.FunctionDef) error {
	retType := b.resolveType(fn.Return)
	mfn := mir.NewFunction(fn.Name, retType)
	mfn.Flags.IsPublic = true
	mfn.Flags.IsAsync = fn.IsAsync

	b.fn = mfn
	b.env = map[string]mir.Value{}
	b.loopStack = nil
	b.blockNames = map[string]int{}
	b.asyncPoints = nil
	b.dropScopes = nil

	for _, p := range fn.Params {
		pt := b.resolveType(p.Type)
		param := mfn.BindParam(p.Name, pt)
		b.env[p.Name] = param.Value
	}

	b.block = mfn.NewBlock("entry")
	b.pushDropScope()

	for _, stmt := range fn.Body {
		if b.block == nil {
			break // unreachable code after an exhaustive terminator
		}
		b.buildStmt(stmt)
	}

	if b.block != nil && !b.block.Sealed() {
		if retType.Kind() == types.KindUnit {
			b.emitScopeDrops()
			b.block.SetTerminator(&mir.ReturnTerm{})
		} else {
			b.fail("function %q falls off the end without returning a value", fn.Name)
		}
	}
	b.popDropScope()

	b.module.AddFunction(mfn)
	logger.LogSSAGeneration(fn.Name, len(mfn.Blocks()))
	return nil
}

func (b *Builder) newBlock(prefix string) *mir.BasicBlock {
	n := b.blockNames[prefix]
	b.blockNames[prefix] = n + 1
	return b.fn.NewBlock(fmt.Sprintf("%s%d", prefix, n))
}

func (b *Builder) newValue(t *types.Type) mir.Value {
	return mir.NewValue(b.fn.NewValueID(), t)
}

// emit appends rec to the current block. The caller must have checked the
// block is non-nil and unsealed; emit panics via BasicBlock.Append otherwise,
// which is the intended "programmer contract" failure mode.
func (b *Builder) emit(inst mir.Instruction, t *types.Type) mir.Value {
	res := mir.InvalidValue
	if t != nil && t.Kind() != types.KindUnit {
		res = b.newValue(t)
	}
	b.block.Append(mir.InstructionRecord{Inst: inst, Result: res, Type: t})
	return res
}

// emitVoid appends a side-effecting instruction with no result.
func (b *Builder) emitVoid(inst mir.Instruction) {
	b.block.Append(mir.InstructionRecord{Inst: inst})
}

func cloneEnv(env map[string]mir.Value) map[string]mir.Value {
	out := make(map[string]mir.Value, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}
