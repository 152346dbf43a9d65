package linker

import (
	"errors"
	"testing"

	"github.com/nandor-llir/llir/pkg/bitcode"
	"github.com/nandor-llir/llir/pkg/ir"
	"github.com/nandor-llir/llir/pkg/llerr"
	"github.com/nandor-llir/llir/pkg/types"
)

// moduleWithEntryCalling builds a single-module program defining
// "_start" as a func that calls calleeName and returns. The callee is
// an Extern when calleeVisibility is nil, and otherwise a Func with
// that visibility defined in the same module.
func moduleWithEntryCalling(t *testing.T, name, calleeName string, calleeVisibility *types.Visibility) *ir.Program {
	t.Helper()
	prog := ir.NewProgram(name)

	entry := ir.NewFunc("_start", types.GlobalDefault)
	block := ir.NewBlock("entry", types.Local)

	var calleeOperand ir.Operand
	if calleeVisibility == nil {
		ext := ir.NewExtern(calleeName)
		if err := prog.AddExtern(ext, nil); err != nil {
			t.Fatalf("AddExtern() error = %v", err)
		}
		calleeOperand = ir.GlobalRef{Global: ext}
	} else {
		callee := ir.NewFunc(calleeName, *calleeVisibility)
		calleeEntry := ir.NewBlock("entry", types.Local)
		calleeEntry.AddInst(ir.NewRet(ir.ConstRef{Const: ir.IntConst{Ty: types.I32, Value: 0}}), nil)
		callee.AddBlock(calleeEntry, nil)
		if err := prog.AddFunc(callee, nil); err != nil {
			t.Fatalf("AddFunc(callee) error = %v", err)
		}
		calleeOperand = ir.GlobalRef{Global: callee}
	}

	fixed := 0
	call := ir.NewCall(calleeOperand, nil, types.CC_C, &fixed, nil)
	block.AddInst(call, nil)
	block.AddInst(ir.NewRet(), nil)
	entry.AddBlock(block, nil)
	if err := prog.AddFunc(entry, nil); err != nil {
		t.Fatalf("AddFunc(entry) error = %v", err)
	}
	return prog
}

func encode(t *testing.T, prog *ir.Program) []byte {
	t.Helper()
	buf, err := bitcode.Write(prog)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return buf
}

func TestLinkOverridesExternWithRealDefinition(t *testing.T) {
	// Module "main" calls an extern "helper"; module "lib" defines it.
	// spec.md §8 scenario 5: the transferred call must point at the
	// real definition, and the extern placeholder must not survive.
	main := moduleWithEntryCalling(t, "main", "helper", nil)

	lib := ir.NewProgram("lib")
	helper := ir.NewFunc("helper", types.GlobalDefault)
	helperEntry := ir.NewBlock("entry", types.Local)
	helperEntry.AddInst(ir.NewRet(ir.ConstRef{Const: ir.IntConst{Ty: types.I32, Value: 1}}), nil)
	helper.AddBlock(helperEntry, nil)
	if err := lib.AddFunc(helper, nil); err != nil {
		t.Fatalf("AddFunc(helper) error = %v", err)
	}

	l := New(Options{})
	out, err := l.Link([]Input{
		{Name: "main.o", Data: encode(t, main)},
		{Name: "lib.o", Data: encode(t, lib)},
	})
	if err != nil {
		t.Fatalf("Link() error = %v", err)
	}

	var gotHelper *ir.Func
	for _, fn := range out.Funcs() {
		if fn.Name() == "helper" {
			gotHelper = fn
		}
	}
	if gotHelper == nil {
		t.Fatal("expected \"helper\" to be transferred as a real definition")
	}
	if len(out.Externs()) != 0 {
		t.Errorf("Externs() = %+v, want none (extern resolved to real def)", out.Externs())
	}

	start := out.Funcs()[0]
	for _, fn := range out.Funcs() {
		if fn.Name() == "_start" {
			start = fn
		}
	}
	call := start.Entry().Insts()[0]
	ref, ok := call.Callee().(ir.GlobalRef)
	if !ok || ref.Global != ir.Global(gotHelper) {
		t.Errorf("Callee() = %+v, want GlobalRef to the transferred \"helper\" func", call.Callee())
	}
}

func TestLinkCarriesUnresolvedExternThrough(t *testing.T) {
	// No module defines "helper": the extern placeholder itself must
	// transfer so a system linker can resolve it later.
	main := moduleWithEntryCalling(t, "main", "helper", nil)

	l := New(Options{})
	out, err := l.Link([]Input{{Name: "main.o", Data: encode(t, main)}})
	if err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if len(out.Externs()) != 1 || out.Externs()[0].Name() != "helper" {
		t.Errorf("Externs() = %+v, want a single unresolved \"helper\"", out.Externs())
	}
}

func TestLinkIsIdempotentUnderSymbolOverride(t *testing.T) {
	main := moduleWithEntryCalling(t, "main", "helper", nil)
	lib := ir.NewProgram("lib")
	helper := ir.NewFunc("helper", types.GlobalDefault)
	helperEntry := ir.NewBlock("entry", types.Local)
	helperEntry.AddInst(ir.NewRet(ir.ConstRef{Const: ir.IntConst{Ty: types.I32, Value: 1}}), nil)
	helper.AddBlock(helperEntry, nil)
	if err := lib.AddFunc(helper, nil); err != nil {
		t.Fatalf("AddFunc(helper) error = %v", err)
	}

	inputs := []Input{
		{Name: "main.o", Data: encode(t, main)},
		{Name: "lib.o", Data: encode(t, lib)},
	}

	l := New(Options{})
	first, err := l.Link(inputs)
	if err != nil {
		t.Fatalf("first Link() error = %v", err)
	}
	firstBuf, err := bitcode.Write(first)
	if err != nil {
		t.Fatalf("Write(first) error = %v", err)
	}

	l2 := New(Options{})
	second, err := l2.Link([]Input{{Name: "a.out", Data: firstBuf}})
	if err != nil {
		t.Fatalf("second Link() error = %v", err)
	}
	secondBuf, err := bitcode.Write(second)
	if err != nil {
		t.Fatalf("Write(second) error = %v", err)
	}
	if len(firstBuf) != len(secondBuf) {
		t.Errorf("re-link produced a differently sized program: %d vs %d", len(firstBuf), len(secondBuf))
	}
}

func TestLinkRejectsDuplicateNonWeakSymbol(t *testing.T) {
	a := ir.NewProgram("a")
	fa := ir.NewFunc("thing", types.GlobalDefault)
	fa.AddBlock(ir.NewBlock("entry", types.Local), nil)
	if err := a.AddFunc(fa, nil); err != nil {
		t.Fatalf("AddFunc() error = %v", err)
	}

	b := ir.NewProgram("b")
	fb := ir.NewFunc("thing", types.GlobalDefault)
	fb.AddBlock(ir.NewBlock("entry", types.Local), nil)
	if err := b.AddFunc(fb, nil); err != nil {
		t.Fatalf("AddFunc() error = %v", err)
	}

	l := New(Options{})
	_, err := l.Link([]Input{
		{Name: "a.o", Data: encode(t, a)},
		{Name: "b.o", Data: encode(t, b)},
	})
	if err == nil {
		t.Fatal("expected Link() to fail on two non-weak definitions of \"thing\"")
	}
	var llErr *llerr.Error
	if !errors.As(err, &llErr) || llErr.Kind != llerr.DuplicateSymbol {
		t.Errorf("error = %v, want a DuplicateSymbol llerr.Error", err)
	}
}

func TestLinkWeakYieldsToStrongDefinition(t *testing.T) {
	weakVis := types.WeakDefault
	main := moduleWithEntryCalling(t, "main", "helper", &weakVis)

	lib := ir.NewProgram("lib")
	helper := ir.NewFunc("helper", types.GlobalDefault)
	helperEntry := ir.NewBlock("entry", types.Local)
	helperEntry.AddInst(ir.NewRet(ir.ConstRef{Const: ir.IntConst{Ty: types.I32, Value: 9}}), nil)
	helper.AddBlock(helperEntry, nil)
	if err := lib.AddFunc(helper, nil); err != nil {
		t.Fatalf("AddFunc(helper) error = %v", err)
	}

	l := New(Options{})
	out, err := l.Link([]Input{
		{Name: "main.o", Data: encode(t, main)},
		{Name: "lib.o", Data: encode(t, lib)},
	})
	if err != nil {
		t.Fatalf("Link() error = %v", err)
	}

	var kept *ir.Func
	for _, fn := range out.Funcs() {
		if fn.Name() == "helper" {
			kept = fn
		}
	}
	if kept == nil {
		t.Fatal("expected exactly one surviving \"helper\" definition")
	}
	body := kept.Entry().Insts()[0]
	ret, ok := body.Operands()[0].(ir.ConstRef)
	if !ok {
		t.Fatalf("helper body operand = %T, want ir.ConstRef", body.Operands()[0])
	}
	iv, ok := ret.Const.(ir.IntConst)
	if !ok || iv.Value != 9 {
		t.Errorf("surviving \"helper\" returns %+v, want the strong definition's value 9", ret.Const)
	}
}

func TestLinkRejectsMissingEntry(t *testing.T) {
	prog := ir.NewProgram("p")
	ext := ir.NewExtern("nothing")
	if err := prog.AddExtern(ext, nil); err != nil {
		t.Fatalf("AddExtern() error = %v", err)
	}

	l := New(Options{})
	_, err := l.Link([]Input{{Name: "p.o", Data: encode(t, prog)}})
	if err == nil {
		t.Fatal("expected Link() to fail when no module defines the entry point")
	}
	var llErr *llerr.Error
	if !errors.As(err, &llErr) || llErr.Kind != llerr.MissingEntry {
		t.Errorf("error = %v, want a MissingEntry llerr.Error", err)
	}
}

func TestLinkLoadsArchiveMembers(t *testing.T) {
	lib := ir.NewProgram("lib")
	helper := ir.NewFunc("helper", types.GlobalDefault)
	helperEntry := ir.NewBlock("entry", types.Local)
	helperEntry.AddInst(ir.NewRet(ir.ConstRef{Const: ir.IntConst{Ty: types.I32, Value: 1}}), nil)
	helper.AddBlock(helperEntry, nil)
	if err := lib.AddFunc(helper, nil); err != nil {
		t.Fatalf("AddFunc(helper) error = %v", err)
	}
	archive := bitcode.WriteArchive([][]byte{encode(t, lib)})

	main := moduleWithEntryCalling(t, "main", "helper", nil)

	l := New(Options{})
	out, err := l.Link([]Input{
		{Name: "main.o", Data: encode(t, main)},
		{Name: "libs.a", Data: archive},
	})
	if err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	found := false
	for _, fn := range out.Funcs() {
		if fn.Name() == "helper" {
			found = true
		}
	}
	if !found {
		t.Error("expected \"helper\" from the archive member to be transferred")
	}
}

func TestLinkDefersUnrecognizedInputToSystemLinker(t *testing.T) {
	main := moduleWithEntryCalling(t, "main", "helper", nil)

	l := New(Options{})
	modules, unresolved, err := l.Load([]Input{
		{Name: "main.o", Data: encode(t, main)},
		{Name: "libc.so", Data: []byte("\x7fELF...")},
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(modules) != 1 {
		t.Fatalf("len(modules) = %d, want 1", len(modules))
	}
	if len(unresolved) != 1 || unresolved[0] != "libc.so" {
		t.Errorf("unresolved = %+v, want [\"libc.so\"]", unresolved)
	}
}

func TestLinkCarriesOverXtorForTransferredFunc(t *testing.T) {
	main := moduleWithEntryCalling(t, "main", "init_fn", nil)

	lib := ir.NewProgram("lib")
	initFn := ir.NewFunc("init_fn", types.GlobalDefault)
	initEntry := ir.NewBlock("entry", types.Local)
	initEntry.AddInst(ir.NewRet(), nil)
	initFn.AddBlock(initEntry, nil)
	if err := lib.AddFunc(initFn, nil); err != nil {
		t.Fatalf("AddFunc(init_fn) error = %v", err)
	}
	lib.AddXtor(ir.NewXtor(65535, types.Ctor, initFn), nil)

	l := New(Options{})
	out, err := l.Link([]Input{
		{Name: "main.o", Data: encode(t, main)},
		{Name: "lib.o", Data: encode(t, lib)},
	})
	if err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if len(out.Xtor()) != 1 {
		t.Fatalf("len(Xtor()) = %d, want 1", len(out.Xtor()))
	}
	if out.Xtor()[0].Func().Name() != "init_fn" {
		t.Errorf("Xtor()[0].Func().Name() = %q, want %q", out.Xtor()[0].Func().Name(), "init_fn")
	}
}

func TestSetVisibilitiesHidesEverythingButEntry(t *testing.T) {
	prog := ir.NewProgram("p")
	entry := ir.NewFunc("_start", types.Local)
	entry.AddBlock(ir.NewBlock("entry", types.Local), nil)
	other := ir.NewFunc("helper", types.Local)
	other.AddBlock(ir.NewBlock("entry", types.Local), nil)
	if err := prog.AddFunc(entry, nil); err != nil {
		t.Fatalf("AddFunc(entry) error = %v", err)
	}
	if err := prog.AddFunc(other, nil); err != nil {
		t.Fatalf("AddFunc(other) error = %v", err)
	}

	l := New(Options{})
	l.SetVisibilities(prog, entry)

	if entry.Visibility() != types.GlobalDefault {
		t.Errorf("entry Visibility() = %v, want GlobalDefault", entry.Visibility())
	}
	if other.Visibility() != types.GlobalHidden {
		t.Errorf("other Visibility() = %v, want GlobalHidden", other.Visibility())
	}
}
