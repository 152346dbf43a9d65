package ir

import (
	"testing"

	"github.com/nandor-llir/llir/pkg/llerr"
	"github.com/nandor-llir/llir/pkg/types"
)

func TestAddFuncRegistersGlobal(t *testing.T) {
	prog := NewProgram("test")
	fn := NewFunc("main", types.GlobalDefault)
	if err := prog.AddFunc(fn, nil); err != nil {
		t.Fatalf("AddFunc: %v", err)
	}
	g, ok := prog.GetGlobal("main")
	if !ok || g != Global(fn) {
		t.Fatalf("GetGlobal(main) = (%v, %v), want (fn, true)", g, ok)
	}
}

func TestDuplicateStrongSymbolFails(t *testing.T) {
	prog := NewProgram("test")
	f1 := NewFunc("dup", types.GlobalDefault)
	f2 := NewFunc("dup", types.GlobalDefault)
	if err := prog.AddFunc(f1, nil); err != nil {
		t.Fatalf("first AddFunc: %v", err)
	}
	err := prog.AddFunc(f2, nil)
	if err == nil {
		t.Fatal("expected duplicate symbol error")
	}
	llErr, ok := err.(*llerr.Error)
	if !ok || llErr.Kind != llerr.DuplicateSymbol {
		t.Fatalf("err = %v, want *llerr.Error{Kind: DuplicateSymbol}", err)
	}
}

func TestExternReplacedByDefinition(t *testing.T) {
	prog := NewProgram("test")
	ext := NewExtern("f")
	if err := prog.AddExtern(ext, nil); err != nil {
		t.Fatalf("AddExtern: %v", err)
	}

	// A caller referencing the extern.
	caller := NewCall(GlobalRef{Global: ext}, nil, types.CC_C, nil, nil)

	fn := NewFunc("f", types.GlobalDefault)
	if err := prog.AddFunc(fn, nil); err != nil {
		t.Fatalf("AddFunc: %v", err)
	}

	g, ok := prog.GetGlobal("f")
	if !ok || g != Global(fn) {
		t.Fatalf("GetGlobal(f) after definition = (%v, %v), want (fn, true)", g, ok)
	}
	if ref, ok := caller.Callee().(GlobalRef); !ok || ref.Global != Global(fn) {
		t.Fatalf("caller's callee not redirected to fn: %v", caller.Callee())
	}
	if len(prog.Externs()) != 0 {
		t.Fatalf("extern should have been removed, got %d remaining", len(prog.Externs()))
	}
}

func TestWeakWeakKeepsExisting(t *testing.T) {
	prog := NewProgram("test")
	f1 := NewFunc("w", types.WeakDefault)
	f2 := NewFunc("w", types.WeakDefault)
	if err := prog.AddFunc(f1, nil); err != nil {
		t.Fatalf("first AddFunc: %v", err)
	}
	if err := prog.AddFunc(f2, nil); err != nil {
		t.Fatalf("second weak AddFunc should not error: %v", err)
	}
	g, _ := prog.GetGlobal("w")
	if g != Global(f1) {
		t.Fatalf("existing weak definition should be kept, got %v", g)
	}
}

func TestLocalVsExportedRenamed(t *testing.T) {
	prog := NewProgram("test")
	local := NewFunc("x", types.Local)
	exported := NewFunc("x", types.GlobalDefault)
	if err := prog.AddFunc(local, nil); err != nil {
		t.Fatalf("AddFunc local: %v", err)
	}
	if err := prog.AddFunc(exported, nil); err != nil {
		t.Fatalf("AddFunc exported: %v", err)
	}

	if local.Name() == "x" {
		t.Errorf("local global should have been renamed away from %q, got %q", "x", local.Name())
	}
	g, ok := prog.GetGlobal("x")
	if !ok || g != Global(exported) {
		t.Fatalf("GetGlobal(x) = (%v, %v), want (exported, true)", g, ok)
	}
	if _, ok := prog.GetGlobal(local.Name()); !ok {
		t.Fatalf("renamed local %q not registered", local.Name())
	}
}

func TestGetGlobalOrExternCreatesExtern(t *testing.T) {
	prog := NewProgram("test")
	g := prog.GetGlobalOrExtern("undeclared")
	ext, ok := g.(*Extern)
	if !ok {
		t.Fatalf("GetGlobalOrExtern did not create an Extern, got %T", g)
	}
	if ext.Name() != "undeclared" {
		t.Errorf("Extern.Name() = %q, want %q", ext.Name(), "undeclared")
	}
	// Calling again must return the same extern, not create a second one.
	g2 := prog.GetGlobalOrExtern("undeclared")
	if g2 != g {
		t.Fatalf("second GetGlobalOrExtern call created a distinct global")
	}
	if len(prog.Externs()) != 1 {
		t.Fatalf("expected exactly one extern, got %d", len(prog.Externs()))
	}
}

func TestGetOrCreateDataIsIdempotent(t *testing.T) {
	prog := NewProgram("test")
	d1 := prog.GetOrCreateData(".data")
	d2 := prog.GetOrCreateData(".data")
	if d1 != d2 {
		t.Fatal("GetOrCreateData should return the same segment on repeated calls")
	}
}

func TestBlockSuccessorsJmp(t *testing.T) {
	fn := NewFunc("f", types.GlobalDefault)
	entry := NewBlock("entry", types.Local)
	exit := NewBlock("exit", types.Local)
	fn.AddBlock(entry, nil)
	fn.AddBlock(exit, nil)
	entry.AddInst(NewJmp(exit), nil)
	exit.AddInst(NewRet(), nil)

	succs := entry.Successors()
	if len(succs) != 1 || succs[0] != exit {
		t.Fatalf("Successors() = %v, want [exit]", succs)
	}
	preds := exit.Predecessors()
	if len(preds) != 1 || preds[0] != entry {
		t.Fatalf("Predecessors() = %v, want [entry]", preds)
	}
}

func TestEraseInstRejectsLiveUses(t *testing.T) {
	fn := NewFunc("f", types.GlobalDefault)
	b := NewBlock("entry", types.Local)
	fn.AddBlock(b, nil)

	v := NewUndef(types.I32)
	b.AddInst(v, nil)
	use := NewNeg(InstRef{Def: v, Slot: 0}, types.I32)
	b.AddInst(use, nil)
	b.AddInst(NewRet(), nil)

	if err := b.EraseInst(v); err == nil {
		t.Fatal("expected EraseInst to reject a still-used instruction")
	}

	v.ReplaceAllUsesWith(0, ConstRef{Const: IntConst{Ty: types.I32, Value: 0}})
	if err := b.EraseInst(v); err != nil {
		t.Fatalf("EraseInst after clearing uses: %v", err)
	}
	if len(b.Insts()) != 2 {
		t.Fatalf("expected 2 remaining instructions, got %d", len(b.Insts()))
	}
}

func TestReversePostOrder(t *testing.T) {
	fn := NewFunc("f", types.GlobalDefault)
	entry := NewBlock("entry", types.Local)
	mid := NewBlock("mid", types.Local)
	exit := NewBlock("exit", types.Local)
	fn.AddBlock(entry, nil)
	fn.AddBlock(mid, nil)
	fn.AddBlock(exit, nil)
	entry.AddInst(NewJmp(mid), nil)
	mid.AddInst(NewJmp(exit), nil)
	exit.AddInst(NewRet(), nil)

	rpo := fn.ReversePostOrder()
	if len(rpo) != 3 || rpo[0] != entry || rpo[1] != mid || rpo[2] != exit {
		t.Fatalf("ReversePostOrder() = %v, want [entry mid exit]", rpo)
	}
}
