// Package mir implements the SSA mid-level intermediate representation: values,
// instructions, terminators, basic blocks, functions, and modules, plus the
// structural invariants and dominance queries every pass relies on.
//
// Design: arena-style, integer-handle identity. A Value is an (id, type) pair,
// never a pointer into another structure; cross-block references resolve
// through block IDs stored in terminators rather than object cycles, matching
// an arena-plus-integer-handles representation.
package mir

import "github.com/lumen-lang/lumenc/pkg/types"

// Value is an SSA value: a unique id within its defining function paired with
// its static type. id 0 is reserved as "invalid"; a Value with
// ID() == 0 denotes the absence of a value, e.g. a bare `return` with no
// operand is modeled by Return.Value == InvalidValue, not by a nil pointer.
type Value struct {
	id  uint32
	typ *types.Type
}

// InvalidValue is the zero Value: id 0, nil type.
var InvalidValue = Value{}

// NewValue constructs a Value with the given id and type. Functions should
// obtain ids from Function.NewValueID to preserve the creation-order /
// uniqueness invariant; this constructor exists for building parameter and
// constant values whose id is assigned by the same counter.
func NewValue(id uint32, t *types.Type) Value {
	return Value{id: id, typ: t}
}

func (v Value) ID() uint32      { return v.id }
func (v Value) Type() *types.Type { return v.typ }
func (v Value) Valid() bool     { return v.id != 0 }

func (v Value) Equal(o Value) bool { return v.id == o.id }
