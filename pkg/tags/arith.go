package tags

import "github.com/nandor-llir/llir/pkg/ir"

// Zero is the MaskedType join-friendly representation of "known to be
// exactly 0", used by the xor/PtrInt row of the arithmetic table.
var Zero = FullyKnown(0)

// BinaryOp computes the forward result of a binary instruction kind
// given its two input types, per the selected-rows table of spec.md
// §4.6.4 generalized to every combination the table implies through
// symmetry (e.g. "add Int Heap" mirrors "add Heap Int").
func BinaryOp(kind ir.Opcode, a, b TaggedType) TaggedType {
	if a.Kind == Unknown || b.Kind == Unknown {
		return Of(Unknown)
	}
	switch kind {
	case ir.OpAdd:
		return add(a, b)
	case ir.OpSub:
		return sub(a, b)
	case ir.OpMul, ir.OpUDiv, ir.OpSDiv, ir.OpURem, ir.OpSRem:
		return arithDefault(a, b)
	case ir.OpAnd:
		return and(a, b)
	case ir.OpOr:
		return or(a, b)
	case ir.OpXor:
		return xor(a, b)
	case ir.OpShl, ir.OpLShr, ir.OpAShr, ir.OpRotl, ir.OpRotr:
		return shift(kind, a, b)
	default:
		return Of(Unknown)
	}
}

func bothInt(a, b TaggedType) (MaskedType, MaskedType, bool) {
	if a.Kind == IntKind && b.Kind == IntKind {
		return a.Mask, b.Mask, true
	}
	return MaskedType{}, MaskedType{}, false
}

// add implements the "add" rows of spec.md §4.6.4.
func add(a, b TaggedType) TaggedType {
	if ma, mb, ok := bothInt(a, b); ok {
		return Int(addMask(ma, mb))
	}
	switch {
	case a.Kind == Val && b.Kind == IntKind, b.Kind == Val && a.Kind == IntKind:
		return Of(PtrInt)
	case a.Kind == Heap && b.Kind == IntKind, b.Kind == Heap && a.Kind == IntKind:
		return Of(Ptr)
	case a.Kind == Young, b.Kind == Young:
		return Of(Heap)
	case a.Kind == Ptr && b.Kind == IntKind, b.Kind == Ptr && a.Kind == IntKind:
		return Of(Ptr)
	case a.Kind == PtrInt, b.Kind == PtrInt:
		return Of(PtrInt)
	}
	return Join(a, b)
}

// sub implements the "sub" rows of spec.md §4.6.4.
func sub(a, b TaggedType) TaggedType {
	if ma, mb, ok := bothInt(a, b); ok {
		return Int(subMask(ma, mb))
	}
	switch {
	case a.Kind == Val && b.Kind == Val:
		return Of(PtrInt)
	case a.Kind == Ptr && b.Kind == Ptr:
		return Of(IntKind)
	case a.Kind == Ptr && b.Kind == IntKind:
		return Of(Ptr)
	}
	return Join(a, b)
}

// and implements the "and" rows of spec.md §4.6.4.
func and(a, b TaggedType) TaggedType {
	if ma, mb, ok := bothInt(a, b); ok {
		return Int(andMask(ma, mb))
	}
	switch {
	case a.Kind == IntKind && b.Kind == Val:
		if clearsPage(a.Mask) {
			return Of(IntKind)
		}
		return Of(PtrInt)
	case b.Kind == IntKind && a.Kind == Val:
		if clearsPage(b.Mask) {
			return Of(IntKind)
		}
		return Of(PtrInt)
	case a.Kind == PtrInt && b.Kind == IntKind:
		if clearsPage(b.Mask) {
			return Of(IntKind)
		}
		return Of(PtrInt)
	case b.Kind == PtrInt && a.Kind == IntKind:
		if clearsPage(a.Mask) {
			return Of(IntKind)
		}
		return Of(PtrInt)
	}
	return Join(a, b)
}

// or implements the "or" rows of spec.md §4.6.4.
func or(a, b TaggedType) TaggedType {
	if ma, mb, ok := bothInt(a, b); ok {
		return Int(orMask(ma, mb))
	}
	switch {
	case a.Kind == Heap && b.Kind == IntKind && clearsPage(b.Mask):
		return Of(PtrInt)
	case b.Kind == Heap && a.Kind == IntKind && clearsPage(a.Mask):
		return Of(PtrInt)
	}
	return Join(a, b)
}

// xor implements the "xor" row of spec.md §4.6.4 (PtrInt xor a known
// zero stays PtrInt).
func xor(a, b TaggedType) TaggedType {
	if ma, mb, ok := bothInt(a, b); ok {
		return Int(xorMask(ma, mb))
	}
	switch {
	case a.Kind == PtrInt && b.Kind == IntKind && b.Mask == Zero:
		return Of(PtrInt)
	case b.Kind == PtrInt && a.Kind == IntKind && a.Mask == Zero:
		return Of(PtrInt)
	}
	return Join(a, b)
}

// shift implements the "shl" row of spec.md §4.6.4: shifting by a
// known integer amount demotes any pointer-kind operand to Int.
func shift(kind ir.Opcode, a, b TaggedType) TaggedType {
	if ma, mb, ok := bothInt(a, b); ok {
		switch kind {
		case ir.OpShl:
			return Int(MaskedType{Value: ma.Value << mb.Value, Known: 0})
		default:
			return Of(IntKind)
		}
	}
	if b.Kind == IntKind {
		return Of(IntKind)
	}
	return Join(a, b)
}

// arithDefault covers the table's ops with no named pointer-kind
// interaction (mul/div/rem): the result is always IntKind with no
// known bits, whether or not both inputs were themselves IntKind —
// a tighter per-bit rule for these ops is not specified.
func arithDefault(a, b TaggedType) TaggedType {
	return Of(IntKind)
}
