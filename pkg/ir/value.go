package ir

// Operand is the tagged operand a use refers to: an SSA value defined
// by another instruction (InstRef), the address of a Global
// (GlobalRef), a symbol+offset expression (ExprRef), or an immediate
// (ConstRef). This is exactly the INST/GLOBAL/EXPR/CONST tagging the
// bitcode codec serializes in spec.md §4.4.
type Operand interface {
	implOperand()
}

// InstRef refers to return slot Slot of the value(s) defined by Def.
// An instruction with N return values participates in use-chains as N
// distinct values, one per slot.
type InstRef struct {
	Def  *Inst
	Slot int
}

func (InstRef) implOperand() {}

// GlobalRef refers to the address of a Global (Func, Extern, Atom, or
// Block).
type GlobalRef struct {
	Global Global
}

func (GlobalRef) implOperand() {}

// ExprRef refers to a symbol+offset expression.
type ExprRef struct {
	Expr *SymExpr
}

func (ExprRef) implOperand() {}

// ConstRef refers to an immediate constant.
type ConstRef struct {
	Const Constant
}

func (ConstRef) implOperand() {}

// Use records one (referent, user, slot) edge: the instruction User
// reads the value at operand index Slot, and that operand currently
// points at some referent (an InstRef's Def/Slot, or a Global).
// Use-chains are doubly linked in the source; here they are
// represented as a slice owned by the referent (the defining
// instruction's per-return-slot use list, or the Global's use list),
// which is equivalent for an in-memory, non-concurrent graph and is
// the representation the Design Notes (§9, "Cyclic graphs") call for.
type Use struct {
	User *Inst
	Slot int
}

// operandUseSlot returns the use-list slot that Operand op, if it is an
// InstRef or GlobalRef, should be registered in. Constants and
// expressions carry no identity and are not tracked.
func operandUseSlot(op Operand) (*[]Use, bool) {
	switch o := op.(type) {
	case InstRef:
		return o.Def.useSlot(o.Slot), true
	case GlobalRef:
		return o.Global.usesSlot(), true
	default:
		return nil, false
	}
}

// SetOperand atomically de-registers the use currently at operand
// index idx and registers the new one, per spec.md §4.1.
func (i *Inst) SetOperand(idx int, op Operand) {
	old := i.operands[idx]
	if list, ok := operandUseSlot(old); ok {
		removeUse(list, i, idx)
	}
	i.operands[idx] = op
	if list, ok := operandUseSlot(op); ok {
		*list = append(*list, Use{User: i, Slot: idx})
	}
}

// AddOperand appends a new operand, registering its use if any.
func (i *Inst) AddOperand(op Operand) {
	idx := len(i.operands)
	i.operands = append(i.operands, nil)
	i.SetOperand(idx, op)
}

// replaceAllUsesWith rewrites every use currently pointing at referent
// (identified by the use-list pointer) to instead read newOperand.
// The set of users must not be mutated by anything other than this
// routine while it is iterating, per spec.md §4.1.
func replaceAllUsesWith(list *[]Use, newOperand Operand) {
	uses := *list
	*list = nil
	for _, u := range uses {
		u.User.SetOperand(u.Slot, newOperand)
	}
}

// ReplaceAllUsesWith rewrites every use of return slot idx of i to
// read newOperand instead.
func (i *Inst) ReplaceAllUsesWith(idx int, newOperand Operand) {
	replaceAllUsesWith(i.useSlot(idx), newOperand)
}

func removeUse(list *[]Use, user *Inst, slot int) {
	uses := *list
	for k, u := range uses {
		if u.User == user && u.Slot == slot {
			*list = append(uses[:k], uses[k+1:]...)
			return
		}
	}
}

// NumUses reports the number of uses of return slot idx of i.
func (i *Inst) NumUses(idx int) int {
	return len(*i.useSlot(idx))
}

// Uses returns the use-chain of return slot idx of i.
func (i *Inst) Uses(idx int) []Use {
	return append([]Use(nil), *i.useSlot(idx)...)
}
