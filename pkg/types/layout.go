package types

// AlignOf returns the alignment in bytes of t for the given target pointer
// width (8 on 64-bit targets). Composite types take the max alignment of
// their constituents; the back-end's minimum alignment requirement of 8
// bytes is honored for aggregates.
func AlignOf(t *Type, ptrWidth int) int {
	switch t.kind {
	case KindUnit:
		return 1
	case KindBool, KindI8, KindU8:
		return 1
	case KindI16, KindU16:
		return 2
	case KindI32, KindU32, KindF32:
		return 4
	case KindI64, KindU64, KindF64:
		return 8
	case KindI128, KindU128:
		return 16
	case KindPtrPrim, KindPointer:
		return ptrWidth
	case KindStr, KindSlice:
		return ptrWidth // {ptr, len} pair; alignment of the widest field
	case KindArray:
		return AlignOf(t.elem, ptrWidth)
	case KindTuple:
		return maxAlign(t.elems, ptrWidth)
	case KindStruct:
		a := maxAlign(t.typeArgs, ptrWidth)
		if a < 8 {
			a = 8
		}
		return a
	case KindEnum:
		// discriminant (8 bytes, i64) plus widest payload alignment.
		a := maxAlign(t.typeArgs, ptrWidth)
		if a < 8 {
			a = 8
		}
		return a
	case KindFunction:
		return ptrWidth
	}
	return ptrWidth
}

func maxAlign(ts []*Type, ptrWidth int) int {
	best := 1
	for _, t := range ts {
		if a := AlignOf(t, ptrWidth); a > best {
			best = a
		}
	}
	return best
}

// SizeOf returns the size in bytes of t for the given target pointer width.
// Struct/enum sizes here are a conservative estimate over the type's own
// structure (field layout is supplied separately by the owning Module's
// struct/enum definitions for precise codegen; SizeOf is used by passes that
// only need an estimate, such as RVO's sret-threshold check).
func SizeOf(t *Type, ptrWidth int) int {
	switch t.kind {
	case KindUnit:
		return 0
	case KindBool, KindI8, KindU8:
		return 1
	case KindI16, KindU16:
		return 2
	case KindI32, KindU32, KindF32:
		return 4
	case KindI64, KindU64, KindF64:
		return 8
	case KindI128, KindU128:
		return 16
	case KindPtrPrim, KindPointer, KindFunction:
		return ptrWidth
	case KindStr, KindSlice:
		return ptrWidth * 2
	case KindArray:
		return int(t.size) * SizeOf(t.elem, ptrWidth)
	case KindTuple:
		return sumPadded(t.elems, ptrWidth)
	case KindStruct:
		return 8 + sumPadded(t.typeArgs, ptrWidth) // conservative: treat type args as field-sized
	case KindEnum:
		return 8 + maxSize(t.typeArgs, ptrWidth) // discriminant + widest payload
	}
	return ptrWidth
}

func sumPadded(ts []*Type, ptrWidth int) int {
	total := 0
	for _, t := range ts {
		a := AlignOf(t, ptrWidth)
		if total%a != 0 {
			total += a - total%a
		}
		total += SizeOf(t, ptrWidth)
	}
	return total
}

func maxSize(ts []*Type, ptrWidth int) int {
	best := 0
	for _, t := range ts {
		if s := SizeOf(t, ptrWidth); s > best {
			best = s
		}
	}
	return best
}
