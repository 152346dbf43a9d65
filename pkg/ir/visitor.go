package ir

// Visitor dispatches on an instruction's Kind. Back-ends (external to
// this core per spec.md §1) implement Visitor to lower the IR; inside
// the tree, pkg/backend is its only user (the debug printer and
// pkg/tags switch on Kind directly). Every method has a default
// implementation via BaseVisitor so a partial visitor compiles;
// Dispatch sends every instruction it does not classify more
// specifically to VisitInst.
type Visitor interface {
	VisitInst(i *Inst)
	VisitTerminator(i *Inst)
	VisitCallSite(i *Inst)
	VisitPhi(i *Inst)
	VisitUnary(i *Inst)
	VisitBinary(i *Inst)
	VisitMemory(i *Inst)
}

// BaseVisitor implements Visitor with every method calling Default,
// if set, and doing nothing otherwise; embedding it lets a concrete
// visitor implement only the methods it cares about. A method the
// embedder does not override does not reach the embedder's own
// VisitInst.
type BaseVisitor struct {
	Default func(i *Inst)
}

func (b BaseVisitor) fallback(i *Inst) {
	if b.Default != nil {
		b.Default(i)
	}
}

func (b BaseVisitor) VisitInst(i *Inst)      { b.fallback(i) }
func (b BaseVisitor) VisitTerminator(i *Inst) { b.fallback(i) }
func (b BaseVisitor) VisitCallSite(i *Inst)  { b.fallback(i) }
func (b BaseVisitor) VisitPhi(i *Inst)       { b.fallback(i) }
func (b BaseVisitor) VisitUnary(i *Inst)     { b.fallback(i) }
func (b BaseVisitor) VisitBinary(i *Inst)    { b.fallback(i) }
func (b BaseVisitor) VisitMemory(i *Inst)    { b.fallback(i) }

// Dispatch calls the most specific method of v applicable to i's
// kind, falling back to VisitInst for everything else. This is the
// "exhaustive match over a tagged enum" idiom the Design Notes (§9)
// call for, expressed as a dispatch helper so visitors do not each
// reimplement the switch.
func Dispatch(v Visitor, i *Inst) {
	switch {
	case i.IsPhi():
		v.VisitPhi(i)
	case i.IsTerminator():
		v.VisitTerminator(i)
	case i.IsCallSite():
		v.VisitCallSite(i)
	case i.kind == OpLoad, i.kind == OpStore:
		v.VisitMemory(i)
	case isUnary(i.kind):
		v.VisitUnary(i)
	case isBinary(i.kind):
		v.VisitBinary(i)
	default:
		v.VisitInst(i)
	}
}

func isUnary(k Opcode) bool {
	switch k {
	case OpNeg, OpNot, OpSExt, OpZExt, OpFExt, OpTrunc, OpFTrunc, OpBitCast, OpByteSwap, OpPopCount, OpCLZ, OpCTZ:
		return true
	default:
		return false
	}
}

func isBinary(k Opcode) bool {
	switch k {
	case OpAdd, OpSub, OpMul, OpUDiv, OpSDiv, OpURem, OpSRem, OpAnd, OpOr, OpXor,
		OpShl, OpLShr, OpAShr, OpRotl, OpRotr, OpFAdd, OpFSub, OpFMul, OpFDiv, OpCmp:
		return true
	default:
		return false
	}
}
