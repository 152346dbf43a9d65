package ir

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nandor-llir/llir/pkg/types"
)

func TestPrinterProgramHeader(t *testing.T) {
	prog := NewProgram("demo")

	var buf bytes.Buffer
	NewPrinter(&buf).PrintProgram(prog)

	if !strings.Contains(buf.String(), `program "demo"`) {
		t.Errorf("expected program header, got: %s", buf.String())
	}
}

func TestPrinterFuncAndBlocks(t *testing.T) {
	fn := NewFunc("main", types.GlobalDefault)
	entry := NewBlock("entry", types.Local)
	fn.AddBlock(entry, nil)
	entry.AddInst(NewRet(), nil)

	var buf bytes.Buffer
	NewPrinter(&buf).PrintFunc(fn)

	out := buf.String()
	if !strings.Contains(out, `func "main"`) {
		t.Errorf("expected func header, got: %s", out)
	}
	if !strings.Contains(out, "entry:") {
		t.Errorf("expected block label, got: %s", out)
	}
	if !strings.Contains(out, "ret") {
		t.Errorf("expected ret instruction, got: %s", out)
	}
}

func TestPrinterJmpTarget(t *testing.T) {
	fn := NewFunc("f", types.GlobalDefault)
	entry := NewBlock("entry", types.Local)
	exit := NewBlock("exit", types.Local)
	fn.AddBlock(entry, nil)
	fn.AddBlock(exit, nil)
	entry.AddInst(NewJmp(exit), nil)
	exit.AddInst(NewRet(), nil)

	var buf bytes.Buffer
	NewPrinter(&buf).PrintFunc(fn)

	if !strings.Contains(buf.String(), "jmp exit") {
		t.Errorf("expected jmp to exit, got: %s", buf.String())
	}
}

func TestPrinterExternsAndData(t *testing.T) {
	prog := NewProgram("demo")
	_ = prog.AddExtern(NewExtern("malloc"), nil)
	d := prog.GetOrCreateData(".rodata")
	obj := &Object{}
	d.AddObject(obj, nil)
	atom := NewAtom("msg", types.Local)
	atom.AddItem(ItemString{Value: "hi"})
	_ = obj.AddAtom(atom, nil)

	var buf bytes.Buffer
	NewPrinter(&buf).PrintProgram(prog)
	out := buf.String()

	if !strings.Contains(out, `extern "malloc"`) {
		t.Errorf("expected extern entry, got: %s", out)
	}
	if !strings.Contains(out, `data ".rodata"`) {
		t.Errorf("expected data segment, got: %s", out)
	}
	if !strings.Contains(out, `string "hi"`) {
		t.Errorf("expected string item, got: %s", out)
	}
}
