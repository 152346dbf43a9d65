package ir

import (
	"testing"

	"github.com/nandor-llir/llir/pkg/types"
)

func TestSetOperandUpdatesUseChain(t *testing.T) {
	a := NewAdd(ConstRef{Const: IntConst{Ty: types.I32, Value: 1}}, ConstRef{Const: IntConst{Ty: types.I32, Value: 2}}, types.I32)
	b := NewNeg(InstRef{Def: a, Slot: 0}, types.I32)

	if got := a.NumUses(0); got != 1 {
		t.Fatalf("NumUses = %d, want 1", got)
	}

	c := NewNeg(ConstRef{Const: IntConst{Ty: types.I32, Value: 9}}, types.I32)
	b.SetOperand(0, InstRef{Def: c, Slot: 0})

	if got := a.NumUses(0); got != 0 {
		t.Fatalf("NumUses after SetOperand = %d, want 0", got)
	}
	if got := c.NumUses(0); got != 1 {
		t.Fatalf("NumUses on new referent = %d, want 1", got)
	}
}

func TestReplaceAllUsesWith(t *testing.T) {
	a := NewUndef(types.I32)
	b := NewNeg(InstRef{Def: a, Slot: 0}, types.I32)
	c := NewNot(InstRef{Def: a, Slot: 0}, types.I32)

	if got := a.NumUses(0); got != 2 {
		t.Fatalf("NumUses = %d, want 2", got)
	}

	repl := NewMov(ConstRef{Const: IntConst{Ty: types.I32, Value: 0}}, types.I32)
	a.ReplaceAllUsesWith(0, InstRef{Def: repl, Slot: 0})

	if got := a.NumUses(0); got != 0 {
		t.Fatalf("old referent NumUses = %d, want 0", got)
	}
	if b.Arg().(InstRef).Def != repl {
		t.Errorf("b's operand was not rewritten to repl")
	}
	if c.Arg().(InstRef).Def != repl {
		t.Errorf("c's operand was not rewritten to repl")
	}
}

func TestAddOperandRegistersUse(t *testing.T) {
	phi := NewPhi(types.I64)
	v := NewUndef(types.I64)
	blk := NewBlock("entry", types.Local)
	phi.AddIncoming(blk, InstRef{Def: v, Slot: 0})

	if got := v.NumUses(0); got != 1 {
		t.Fatalf("NumUses = %d, want 1", got)
	}
	inc := phi.Incoming()
	if len(inc) != 1 || inc[0].Block != blk {
		t.Fatalf("Incoming() = %+v, want one pair on blk", inc)
	}
}

func TestRemoveIncomingClearsUse(t *testing.T) {
	phi := NewPhi(types.I32)
	v := NewUndef(types.I32)
	blk := NewBlock("bb", types.Local)
	phi.AddIncoming(blk, InstRef{Def: v, Slot: 0})
	phi.RemoveIncoming(blk)

	if got := v.NumUses(0); got != 0 {
		t.Fatalf("NumUses after RemoveIncoming = %d, want 0", got)
	}
	if len(phi.Incoming()) != 0 {
		t.Fatalf("Incoming() not empty after RemoveIncoming")
	}
}

func TestConstRefNotTrackedAsUse(t *testing.T) {
	// Constants carry no identity; operandUseSlot must reject them.
	_, ok := operandUseSlot(ConstRef{Const: IntConst{Ty: types.I8, Value: 5}})
	if ok {
		t.Fatalf("ConstRef should not register a use slot")
	}
}
