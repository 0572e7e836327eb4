package types

import "strings"

// Mangle produces a stable identifier for t, suitable as an LLVM symbol
// fragment. Mangling is injective on structurally distinct types: two types
// mangle identically iff Equal(t1, t2). Struct and enum names are mangled by
// appending "__" and each type argument's mangled name,
// so Maybe[I32] and a second, independently constructed Maybe[I32] mangle
// identically without requiring pointer identity.
func Mangle(t *Type) string {
	var b strings.Builder
	mangleInto(&b, t)
	return b.String()
}

func mangleInto(b *strings.Builder, t *Type) {
	switch t.kind {
	case KindUnit:
		b.WriteString("unit")
	case KindBool:
		b.WriteString("bool")
	case KindI8, KindI16, KindI32, KindI64, KindI128,
		KindU8, KindU16, KindU32, KindU64, KindU128,
		KindF32, KindF64:
		b.WriteString(strings.ToLower(t.kind.String()))
	case KindPtrPrim:
		b.WriteString("ptr")
	case KindStr:
		b.WriteString("str")
	case KindPointer:
		if t.isMut {
			b.WriteString("pmut_")
		} else {
			b.WriteString("pconst_")
		}
		mangleInto(b, t.pointee)
	case KindArray:
		b.WriteString("arr")
		b.WriteByte('_')
		writeInt64(b, t.size)
		b.WriteByte('_')
		mangleInto(b, t.elem)
	case KindSlice:
		b.WriteString("slice_")
		mangleInto(b, t.elem)
	case KindTuple:
		b.WriteString("tuple")
		for _, e := range t.elems {
			b.WriteByte('_')
			mangleInto(b, e)
		}
	case KindStruct, KindEnum:
		b.WriteString(t.name)
		for _, arg := range t.typeArgs {
			b.WriteString("__")
			mangleInto(b, arg)
		}
	case KindFunction:
		b.WriteString("fn")
		for _, p := range t.params {
			b.WriteByte('_')
			mangleInto(b, p)
		}
		b.WriteString("_to_")
		mangleInto(b, t.ret)
	default:
		b.WriteString("?")
	}
}

func writeInt64(b *strings.Builder, v int64) {
	if v == 0 {
		b.WriteByte('0')
		return
	}
	if v < 0 {
		b.WriteByte('n')
		v = -v
	}
	var digits [20]byte
	i := len(digits)
	for v > 0 {
		i--
		digits[i] = byte('0' + v%10)
		v /= 10
	}
	b.Write(digits[i:])
}
