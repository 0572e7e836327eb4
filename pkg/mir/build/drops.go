package build

import (
	"github.com/lumen-lang/lumenc/pkg/mir"
	"github.com/lumen-lang/lumenc/pkg/types"
)

// dropScope tracks the locals bound within one lexical scope that own a
// struct/enum value and therefore need a destructor call when control
// leaves the scope, in reverse declaration order.
type dropScope struct {
	owned []mir.Value
}

func (b *Builder) pushDropScope() {
	b.dropScopes = append(b.dropScopes, &dropScope{})
}

func (b *Builder) popDropScope() {
	b.dropScopes = b.dropScopes[:len(b.dropScopes)-1]
}

// dropDepth is the current scope-stack height; loop contexts snapshot it so
// break/continue know how far to unwind.
func (b *Builder) dropDepth() int { return len(b.dropScopes) }

// trackOwned registers v as needing a drop call when its scope exits, if its
// type is a struct or enum (the only kinds this compiler treats as
// potentially resource-owning).
func (b *Builder) trackOwned(v mir.Value) {
	if len(b.dropScopes) == 0 || !v.Valid() || v.Type() == nil {
		return
	}
	switch v.Type().Kind() {
	case types.KindStruct, types.KindEnum:
		top := b.dropScopes[len(b.dropScopes)-1]
		top.owned = append(top.owned, v)
	}
}

// emitDropsFrom emits drop calls for every scope at or above depth, LIFO,
// without popping: the scopes stay registered because the other control
// paths out of them still need their own drops. A value equal to skip is
// being moved out (returned) and is not dropped.
func (b *Builder) emitDropsFrom(depth int, skip mir.Value) {
	if b.block == nil {
		return
	}
	for i := len(b.dropScopes) - 1; i >= depth; i-- {
		s := b.dropScopes[i]
		for j := len(s.owned) - 1; j >= 0; j-- {
			v := s.owned[j]
			if skip.Valid() && v.ID() == skip.ID() {
				continue
			}
			b.emitVoid(&mir.MethodCallInst{Receiver: v, Method: "drop"})
		}
	}
}

// emitScopeDrops emits the current innermost scope's drops, for a normal
// (fallthrough) scope exit; the caller pops the scope afterward.
func (b *Builder) emitScopeDrops() {
	if len(b.dropScopes) == 0 {
		return
	}
	b.emitDropsFrom(len(b.dropScopes)-1, mir.InvalidValue)
}
