package tags

import (
	"testing"

	"github.com/nandor-llir/llir/pkg/ir"
	"github.com/nandor-llir/llir/pkg/target"
	"github.com/nandor-llir/llir/pkg/types"
)

func mustTarget(t *testing.T) *target.Target {
	t.Helper()
	tgt, err := target.Parse("x86_64-unknown-linux-gnu")
	if err != nil {
		t.Fatalf("target.Parse() error = %v", err)
	}
	return tgt
}

// TestReturnTypePropagationThroughTailCall exercises spec.md §8
// scenario 3: a Caml-convention func that tail-calls another simply
// forwards its own two incoming parameters, which the calling
// convention seeds as (Ptr, Young); the aggregated return vector must
// converge to that pair through the tail-call chain.
func TestReturnTypePropagationThroughTailCall(t *testing.T) {
	prog := ir.NewProgram("p")

	callee := ir.NewFunc("callee", types.GlobalDefault)
	callee.SetCallingConv(types.CC_Caml)
	calleeArg0 := ir.NewArg(0, ir.ArgNone, types.V64)
	calleeArg1 := ir.NewArg(1, ir.ArgNone, types.V64)
	calleeEntry := ir.NewBlock("entry", types.Local)
	calleeEntry.AddInst(calleeArg0, nil)
	calleeEntry.AddInst(calleeArg1, nil)
	calleeEntry.AddInst(ir.NewRet(
		ir.InstRef{Def: calleeArg0, Slot: 0},
		ir.InstRef{Def: calleeArg1, Slot: 0},
	), nil)
	callee.AddBlock(calleeEntry, nil)
	if err := prog.AddFunc(callee, nil); err != nil {
		t.Fatalf("AddFunc(callee) error = %v", err)
	}

	caller := ir.NewFunc("caller", types.GlobalDefault)
	caller.SetCallingConv(types.CC_Caml)
	callerArg0 := ir.NewArg(0, ir.ArgNone, types.V64)
	callerArg1 := ir.NewArg(1, ir.ArgNone, types.V64)
	callerEntry := ir.NewBlock("entry", types.Local)
	callerEntry.AddInst(callerArg0, nil)
	callerEntry.AddInst(callerArg1, nil)
	fixed := 0
	tailCall := ir.NewTailCall(
		ir.GlobalRef{Global: callee},
		[]ir.Operand{ir.InstRef{Def: callerArg0, Slot: 0}, ir.InstRef{Def: callerArg1, Slot: 0}},
		types.CC_Caml, &fixed, nil,
	)
	callerEntry.AddInst(tailCall, nil)
	caller.AddBlock(callerEntry, nil)
	if err := prog.AddFunc(caller, nil); err != nil {
		t.Fatalf("AddFunc(caller) error = %v", err)
	}

	a, err := Run(prog, mustTarget(t))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	rets := a.ReturnTypes(caller)
	if len(rets) != 2 {
		t.Fatalf("ReturnTypes(caller) = %+v, want 2 entries", rets)
	}
	if rets[0].Kind != Ptr {
		t.Errorf("ReturnTypes(caller)[0] = %v, want Ptr", rets[0])
	}
	if rets[1].Kind != Young {
		t.Errorf("ReturnTypes(caller)[1] = %v, want Young", rets[1])
	}
}

// TestPhiConvergenceJoinsDisagreeingConstants exercises spec.md §8
// scenario 4: a phi whose incoming values are constants 0 and 1
// converges to an Int whose bit 0 is unknown and every other bit
// known zero, rather than widening all the way to Unknown.
func TestPhiConvergenceJoinsDisagreeingConstants(t *testing.T) {
	prog := ir.NewProgram("p")
	fn := ir.NewFunc("f", types.GlobalDefault)

	entry := ir.NewBlock("entry", types.Local)
	left := ir.NewBlock("left", types.Local)
	right := ir.NewBlock("right", types.Local)
	join := ir.NewBlock("join", types.Local)

	entry.AddInst(ir.NewJcc(types.CondEQ, ir.ConstRef{Const: ir.IntConst{Ty: types.I32, Value: 1}}, left, right), nil)
	left.AddInst(ir.NewJmp(join), nil)
	right.AddInst(ir.NewJmp(join), nil)

	phi := ir.NewPhi(types.I32)
	phi.AddIncoming(left, ir.ConstRef{Const: ir.IntConst{Ty: types.I32, Value: 0}})
	phi.AddIncoming(right, ir.ConstRef{Const: ir.IntConst{Ty: types.I32, Value: 1}})
	join.AddInst(phi, nil)
	join.AddInst(ir.NewRet(ir.InstRef{Def: phi, Slot: 0}), nil)

	fn.AddBlock(entry, nil)
	fn.AddBlock(left, nil)
	fn.AddBlock(right, nil)
	fn.AddBlock(join, nil)
	if err := prog.AddFunc(fn, nil); err != nil {
		t.Fatalf("AddFunc() error = %v", err)
	}

	a, err := Run(prog, mustTarget(t))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := a.TypeOf(phi, 0)
	if got.Kind != IntKind {
		t.Fatalf("TypeOf(phi) = %v, want IntKind", got)
	}
	if got.Mask.Known&1 != 0 {
		t.Errorf("TypeOf(phi).Mask.Known = %#x, bit 0 should be unknown (inputs disagree)", got.Mask.Known)
	}
	if got.Mask.Known&^uint64(1) != ^uint64(1) {
		t.Errorf("TypeOf(phi).Mask.Known = %#x, every bit above 0 should stay known (inputs agree)", got.Mask.Known)
	}
}

// TestBackwardRefinementNarrowsOddBranch exercises spec.md §4.6.3's
// named odd-bit-test example: on the taken edge of "jcc (and x 1)", x
// is known odd, but only within the dominated block — the value's
// global type is untouched.
func TestBackwardRefinementNarrowsOddBranch(t *testing.T) {
	prog := ir.NewProgram("p")
	fn := ir.NewFunc("f", types.GlobalDefault)

	entry := ir.NewBlock("entry", types.Local)
	x := ir.NewArg(0, ir.ArgNone, types.I32)
	entry.AddInst(x, nil)
	and := ir.NewAnd(ir.InstRef{Def: x, Slot: 0}, ir.ConstRef{Const: ir.IntConst{Ty: types.I32, Value: 1}}, types.I32)
	entry.AddInst(and, nil)

	taken := ir.NewBlock("taken", types.Local)
	notTaken := ir.NewBlock("not_taken", types.Local)
	entry.AddInst(ir.NewJcc(types.CondNE, ir.InstRef{Def: and, Slot: 0}, taken, notTaken), nil)

	taken.AddInst(ir.NewRet(), nil)
	notTaken.AddInst(ir.NewRet(), nil)

	fn.AddBlock(entry, nil)
	fn.AddBlock(taken, nil)
	fn.AddBlock(notTaken, nil)
	if err := prog.AddFunc(fn, nil); err != nil {
		t.Fatalf("AddFunc() error = %v", err)
	}

	a, err := Run(prog, mustTarget(t))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Global type: unconstrained, since refinement never mutates it.
	global := a.TypeOf(x, 0)
	if global.Kind == IntKind && global.Mask.Known&1 != 0 {
		t.Errorf("global TypeOf(x) = %v, should not carry the branch-local refinement", global)
	}

	narrowed := a.TypeAt(x, 0, taken)
	if narrowed.Kind != IntKind {
		t.Fatalf("TypeAt(x, taken) = %v, want IntKind", narrowed)
	}
	if narrowed.Mask.Known&1 == 0 || narrowed.Mask.Value&1 == 0 {
		t.Errorf("TypeAt(x, taken) = %v, want bit 0 known-1 (x is odd)", narrowed)
	}

	unrefined := a.TypeAt(x, 0, notTaken)
	if unrefined != global {
		t.Errorf("TypeAt(x, not_taken) = %v, want the unrefined global type %v", unrefined, global)
	}
}
