package bitcode

import (
	"github.com/nandor-llir/llir/pkg/ir"
	"github.com/nandor-llir/llir/pkg/types"
)

// newUnaryByOpcode dispatches to the right pkg/ir constructor for one
// of the unary opcodes; the codec only needs this indirection because
// the opcode discriminant is read as data, not known at compile time.
func newUnaryByOpcode(op ir.Opcode, arg ir.Operand, ty types.Type) *ir.Inst {
	switch op {
	case ir.OpNeg:
		return ir.NewNeg(arg, ty)
	case ir.OpNot:
		return ir.NewNot(arg, ty)
	case ir.OpSExt:
		return ir.NewSExt(arg, ty)
	case ir.OpZExt:
		return ir.NewZExt(arg, ty)
	case ir.OpFExt:
		return ir.NewFExt(arg, ty)
	case ir.OpTrunc:
		return ir.NewTrunc(arg, ty)
	case ir.OpFTrunc:
		return ir.NewFTrunc(arg, ty)
	case ir.OpBitCast:
		return ir.NewBitCast(arg, ty)
	case ir.OpByteSwap:
		return ir.NewByteSwap(arg, ty)
	case ir.OpPopCount:
		return ir.NewPopCount(arg, ty)
	case ir.OpCLZ:
		return ir.NewCLZ(arg, ty)
	case ir.OpCTZ:
		return ir.NewCTZ(arg, ty)
	default:
		return nil
	}
}

// newBinaryByOpcode dispatches to the right pkg/ir constructor for one
// of the binary opcodes (Cmp excluded, handled separately since it
// carries a condition code instead of a result type).
func newBinaryByOpcode(op ir.Opcode, lhs, rhs ir.Operand, ty types.Type) *ir.Inst {
	switch op {
	case ir.OpAdd:
		return ir.NewAdd(lhs, rhs, ty)
	case ir.OpSub:
		return ir.NewSub(lhs, rhs, ty)
	case ir.OpMul:
		return ir.NewMul(lhs, rhs, ty)
	case ir.OpUDiv:
		return ir.NewUDiv(lhs, rhs, ty)
	case ir.OpSDiv:
		return ir.NewSDiv(lhs, rhs, ty)
	case ir.OpURem:
		return ir.NewURem(lhs, rhs, ty)
	case ir.OpSRem:
		return ir.NewSRem(lhs, rhs, ty)
	case ir.OpAnd:
		return ir.NewAnd(lhs, rhs, ty)
	case ir.OpOr:
		return ir.NewOr(lhs, rhs, ty)
	case ir.OpXor:
		return ir.NewXor(lhs, rhs, ty)
	case ir.OpShl:
		return ir.NewShl(lhs, rhs, ty)
	case ir.OpLShr:
		return ir.NewLShr(lhs, rhs, ty)
	case ir.OpAShr:
		return ir.NewAShr(lhs, rhs, ty)
	case ir.OpRotl:
		return ir.NewRotl(lhs, rhs, ty)
	case ir.OpRotr:
		return ir.NewRotr(lhs, rhs, ty)
	case ir.OpFAdd:
		return ir.NewFAdd(lhs, rhs, ty)
	case ir.OpFSub:
		return ir.NewFSub(lhs, rhs, ty)
	case ir.OpFMul:
		return ir.NewFMul(lhs, rhs, ty)
	case ir.OpFDiv:
		return ir.NewFDiv(lhs, rhs, ty)
	default:
		return nil
	}
}
