package types

// Equal reports whether a and b are structurally identical types. Interned
// types from the same Interner can additionally be compared with ==, but
// Equal is always correct regardless of interning.
func Equal(a, b *Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindPointer:
		return a.isMut == b.isMut && Equal(a.pointee, b.pointee)
	case KindArray:
		return a.size == b.size && Equal(a.elem, b.elem)
	case KindSlice:
		return Equal(a.elem, b.elem)
	case KindTuple:
		return equalList(a.elems, b.elems)
	case KindStruct, KindEnum:
		return a.name == b.name && equalList(a.typeArgs, b.typeArgs)
	case KindFunction:
		return Equal(a.ret, b.ret) && equalList(a.params, b.params)
	default:
		return true // primitives: kind equality is sufficient
	}
}

func equalList(a, b []*Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
