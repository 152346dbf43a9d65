package tags

import (
	"github.com/nandor-llir/llir/pkg/ir"
	"github.com/nandor-llir/llir/pkg/types"
	"github.com/nandor-llir/llir/pkg/target"
)

// seed computes the initial TaggedType for one instruction value,
// independent of any operand's analysis state (spec.md §4.6.3,
// "Seeding"). Instructions not named there are seeded Unknown and
// refined entirely by the forward step once their operands converge.
func seed(inst *ir.Inst, fn *ir.Func, tgt *target.Target) TaggedType {
	ty := inst.ReturnType(0)
	switch inst.Kind() {
	case ir.OpArg:
		return seedArg(inst, fn, ty, tgt)
	case ir.OpFrame, ir.OpAlloca:
		return Of(Ptr)
	case ir.OpUndef:
		return Of(Undef)
	case ir.OpLoad:
		return generalForMachineType(ty, tgt)
	case ir.OpCmp:
		return Int(MaskedType{Value: 0, Known: ^uint64(0) &^ 1})
	case ir.OpMov:
		return Of(Unknown)
	default:
		return Of(Unknown)
	}
}

// seedArg seeds a function parameter. Caml-convention parameters 0
// and 1 carry the fixed Ptr/Young roles of the runtime's calling
// convention; everything else, including every parameter of an
// externally reachable (non-Local) function, starts at the most
// general type for its machine type since callers are unconstrained
// (spec.md §4.6.3).
func seedArg(inst *ir.Inst, fn *ir.Func, ty types.Type, tgt *target.Target) TaggedType {
	idx := inst.ArgIndex()
	if fn.CallingConv() == types.CC_Caml {
		switch idx {
		case 0:
			return Of(Ptr)
		case 1:
			return Of(Young)
		}
	}
	return generalForMachineType(ty, tgt)
}

// generalForMachineType is the most general TaggedType a value of
// machine type ty can hold: unconstrained bits for an integer type,
// Val for the tagged v64 word, and an all-unknown MaskedType is used
// as the integer default rather than IntKind with a zero-known mask
// collapsing to something more specific than warranted.
func generalForMachineType(ty types.Type, tgt *target.Target) TaggedType {
	if ty == types.V64 {
		return Of(Val)
	}
	if ty.IsInteger() {
		return Int(MaskedType{})
	}
	return Of(Unknown)
}
