package tags

import (
	"github.com/nandor-llir/llir/pkg/ir"
	"github.com/nandor-llir/llir/pkg/types"
)

// backwardRefine runs the per-function split-point pass of spec.md
// §4.6.3, "Backward refinement": the three named examples (an odd
// bit-test, an equality compare, and a store of a tagged value). Each
// narrows an operand's type within the dominated region where the
// refinement is known to hold, recorded as a refinement rather than
// mutated into the value's global type (spec.md §4.6.1's convergence
// invariant is about the global type; a refinement is local to the
// dominated region and does not have to dominate the definition).
func (a *Analysis) backwardRefine(fn *ir.Func) {
	for _, b := range fn.Blocks() {
		term := b.GetTerminator()
		if term == nil {
			continue
		}
		switch term.Kind() {
		case ir.OpJcc:
			a.refineJcc(term)
		}
	}
	for _, b := range fn.Blocks() {
		for _, inst := range b.Insts() {
			if inst.Kind() == ir.OpStore {
				a.refineStore(inst)
			}
		}
	}
}

// refineJcc handles two examples: a branch on "and x 1" (x is odd on
// the taken edge) and a branch on "cmp.eq x y" (x and y share their
// narrower type on the success edge).
func (a *Analysis) refineJcc(jcc *ir.Inst) {
	ifTrue, _ := jcc.Branches()
	arg, ok := jcc.Operands()[0].(ir.InstRef)
	if !ok {
		return
	}
	cond := arg.Def

	switch cond.Kind() {
	case ir.OpAnd:
		a.refineOddTest(cond, ifTrue)
	case ir.OpCmp:
		a.refineEqTest(cond, ifTrue)
	}
}

// refineOddTest implements "after jcc (and x 1): on the taken edge, x
// is odd" (spec.md §4.6.3).
func (a *Analysis) refineOddTest(and *ir.Inst, ifTrue *ir.Block) {
	rhs, ok := and.RHS().(ir.ConstRef)
	if !ok {
		return
	}
	ic, ok := rhs.Const.(ir.IntConst)
	if !ok || ic.Value != 1 {
		return
	}
	x, ok := and.LHS().(ir.InstRef)
	if !ok {
		return
	}
	a.addRefinement(x, ifTrue, Int(MaskedType{Value: 1, Known: 1}))
}

// refineEqTest implements "after cmp.eq x y success: x and y have the
// same refined type" (spec.md §4.6.3): each side adopts the meet of
// both sides' known bits, since equality means whatever is known
// about one is now known about the other too.
func (a *Analysis) refineEqTest(cmp *ir.Inst, ifTrue *ir.Block) {
	if cmp.Cond() != types.CondEQ {
		return
	}
	lx, lok := cmp.LHS().(ir.InstRef)
	rx, rok := cmp.RHS().(ir.InstRef)
	if !lok || !rok {
		return
	}
	lt, rt := a.getType(lx), a.getType(rx)
	shared := Join(lt, rt)
	if lt.Kind == IntKind && rt.Kind == IntKind {
		shared = Int(meetMask(lt.Mask, rt.Mask))
	}
	a.addRefinement(lx, ifTrue, shared)
	a.addRefinement(rx, ifTrue, shared)
}

// refineStore implements "after a store *p = v where v : Val: the
// address p is refined to Ptr" (spec.md §4.6.3).
func (a *Analysis) refineStore(store *ir.Inst) {
	ops := store.Operands()
	addr, ok := ops[0].(ir.InstRef)
	if !ok {
		return
	}
	val := a.getType(ops[1])
	if val.Kind != Val {
		return
	}
	a.addRefinement(addr, store.Parent(), Of(Ptr))
}

// addRefinement records that ref's type narrows to typ within every
// block dominated by at, skipping a refinement that would not
// actually be more specific than what's already known there.
func (a *Analysis) addRefinement(ref ir.InstRef, at *ir.Block, typ TaggedType) {
	if !Less(typ, a.TypeAt(ref.Def, ref.Slot, at)) {
		return
	}
	v := value{Def: ref.Def, Slot: ref.Slot}
	a.refinements[v] = append(a.refinements[v], refinement{at: at, typ: typ})
}

// meetMask combines two MaskedTypes assuming they describe the same
// underlying value (as an eq-compare guarantees): known bits from
// either side are trusted, since both operands are now the same
// value by construction.
func meetMask(a, b MaskedType) MaskedType {
	known := a.Known | b.Known
	value := (a.Value & a.Known) | (b.Value & b.Known &^ a.Known)
	return MaskedType{Value: value, Known: known}
}
