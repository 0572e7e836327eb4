package build

import (
	"github.com/lumen-lang/lumenc/pkg/frontend"
	"github.com/lumen-lang/lumenc/pkg/types"
)

// resolveType turns a front-end type annotation into an interned MIR type.
// Struct/enum names resolve against the module's registered definitions;
// the builtin sum types (Maybe, Ordering, Poll) always resolve as enums, and
// any other annotation naming a type the module has not declared is assumed
// to be a not-yet-lowered struct and interned as a zero-field struct reference —
// the builder fills in StructDef/EnumDef bodies from the type declarations
// it visits before function bodies (see Build).
func (b *Builder) resolveType(ann frontend.TypeAnnotation) *types.Type {
	if ann.IsArray {
		elem := b.resolveType(*ann.ArrayElem)
		if ann.ArraySize > 0 {
			return b.intern(types.Array(elem, int64(ann.ArraySize)))
		}
		return b.intern(types.Slice(elem))
	}
	if ann.IsPointer {
		return b.intern(types.Pointer(b.resolveType(*ann.PointerTo), ann.IsMut))
	}
	if ann.IsTuple {
		elems := make([]*types.Type, len(ann.TupleElems))
		for i, e := range ann.TupleElems {
			elems[i] = b.resolveType(e)
		}
		return b.intern(types.Tuple(elems...))
	}
	if ann.IsFunction {
		params := make([]*types.Type, len(ann.Params))
		for i, p := range ann.Params {
			params[i] = b.resolveType(p)
		}
		ret := types.Unit()
		if ann.Ret != nil {
			ret = b.resolveType(*ann.Ret)
		}
		return b.intern(types.Function(params, ret))
	}

	switch ann.Name {
	case "", "unit", "void":
		return b.intern(types.Unit())
	case "bool":
		return b.intern(types.Bool())
	case "i8":
		return b.intern(types.I8())
	case "i16":
		return b.intern(types.I16())
	case "int", "i32":
		return b.intern(types.I32())
	case "i64":
		return b.intern(types.I64())
	case "i128":
		return b.intern(types.I128())
	case "u8":
		return b.intern(types.U8())
	case "u16":
		return b.intern(types.U16())
	case "u32":
		return b.intern(types.U32())
	case "u64":
		return b.intern(types.U64())
	case "u128":
		return b.intern(types.U128())
	case "f32":
		return b.intern(types.F32())
	case "f64", "float":
		return b.intern(types.F64())
	case "ptr":
		return b.intern(types.PtrPrim())
	case "str":
		return b.intern(types.Str())
	default:
		typeArgs := make([]*types.Type, len(ann.TypeArgs))
		for i, a := range ann.TypeArgs {
			typeArgs[i] = b.resolveType(a)
		}
		if b.module.Enums[ann.Name] != nil || b.knownEnums[ann.Name] {
			return b.intern(types.Enum(ann.Name, typeArgs...))
		}
		return b.intern(types.Struct(ann.Name, typeArgs...))
	}
}

func (b *Builder) intern(t *types.Type) *types.Type {
	return b.module.Interner().Intern(t)
}
