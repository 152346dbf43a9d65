package ir

import (
	"fmt"
	"io"
)

// Printer writes a human-readable textual dump of a Program. The
// format is not machine-readable; it exists only to carry symbol
// names, block names, and instruction kinds in program order for
// diagnostics (spec.md §6.5).
type Printer struct {
	w      io.Writer
	names  map[*Inst]string
	nextID int
}

// NewPrinter creates a new Program printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, names: make(map[*Inst]string)}
}

// PrintProgram prints a complete program: its externs, data segments,
// constructors/destructors, and functions, in that order.
func (p *Printer) PrintProgram(prog *Program) {
	fmt.Fprintf(p.w, "program %q\n", prog.Name())

	for _, e := range prog.Externs() {
		fmt.Fprintf(p.w, "extern %q %s\n", e.Name(), e.Visibility())
	}
	if len(prog.Externs()) > 0 {
		fmt.Fprintln(p.w)
	}

	for _, d := range prog.Data() {
		p.printData(d)
	}

	for _, x := range prog.Xtor() {
		fn := "<nil>"
		if x.Func() != nil {
			fn = x.Func().Name()
		}
		fmt.Fprintf(p.w, "xtor %s priority=%d func=%q\n", x.Kind(), x.Priority(), fn)
	}

	for i, fn := range prog.Funcs() {
		p.PrintFunc(fn)
		if i < len(prog.Funcs())-1 {
			fmt.Fprintln(p.w)
		}
	}
}

func (p *Printer) printData(d *Data) {
	tl := ""
	if d.ThreadLocal() {
		tl = " tls"
	}
	fmt.Fprintf(p.w, "data %q%s {\n", d.Name(), tl)
	for _, obj := range d.Objects() {
		fmt.Fprintln(p.w, "  object {")
		for _, a := range obj.Atoms() {
			fmt.Fprintf(p.w, "    atom %q %s\n", a.Name(), a.Visibility())
			for _, it := range a.Items() {
				fmt.Fprint(p.w, "      ")
				p.printItem(it)
			}
		}
		fmt.Fprintln(p.w, "  }")
	}
	fmt.Fprintln(p.w, "}")
}

func (p *Printer) printItem(it Item) {
	switch v := it.(type) {
	case ItemInt8:
		fmt.Fprintf(p.w, "i8 %d\n", v.Value)
	case ItemInt16:
		fmt.Fprintf(p.w, "i16 %d\n", v.Value)
	case ItemInt32:
		fmt.Fprintf(p.w, "i32 %d\n", v.Value)
	case ItemInt64:
		fmt.Fprintf(p.w, "i64 %d\n", v.Value)
	case ItemFloat64:
		fmt.Fprintf(p.w, "f64 %v\n", v.Value)
	case ItemAlign:
		fmt.Fprintf(p.w, "align %d\n", v.Value)
	case ItemSpace:
		fmt.Fprintf(p.w, "space %d\n", v.Size)
	case ItemString:
		fmt.Fprintf(p.w, "string %q\n", v.Value)
	case ItemExpr:
		name := "<nil>"
		if v.Expr.Symbol != nil {
			name = v.Expr.Symbol.Name()
		}
		fmt.Fprintf(p.w, "expr %q+%d\n", name, v.Expr.Offset)
	default:
		fmt.Fprintf(p.w, "??? (%T)\n", it)
	}
}

// PrintFunc prints one function: its header, parameters, stack
// objects, and blocks in insertion order.
func (p *Printer) PrintFunc(fn *Func) {
	p.nextID = 0
	for _, b := range fn.Blocks() {
		for i, inst := range b.Insts() {
			for slot := 0; slot < inst.NumReturns(); slot++ {
				p.names[inst] = fmt.Sprintf("%%%d", p.nextID)
				p.nextID++
			}
			_ = i
		}
	}

	varArg := ""
	if fn.VarArg() {
		varArg = " vararg"
	}
	fmt.Fprintf(p.w, "func %q %s %s%s {\n", fn.Name(), fn.Visibility(), fn.CallingConv(), varArg)

	for i, param := range fn.Params() {
		fmt.Fprintf(p.w, "  ; param %d: %s\n", i, param.Type)
	}
	for _, obj := range fn.StackObjects() {
		fmt.Fprintf(p.w, "  ; stack %d: size=%d align=%d\n", obj.Index, obj.Size, obj.Align)
	}

	for _, b := range fn.Blocks() {
		p.printBlock(b)
	}
	fmt.Fprintln(p.w, "}")
}

func (p *Printer) printBlock(b *Block) {
	fmt.Fprintf(p.w, "%s:\n", b.Name())
	for _, inst := range b.Insts() {
		p.printInst(inst)
	}
}

func (p *Printer) valueName(inst *Inst) string {
	if n, ok := p.names[inst]; ok {
		return n
	}
	return "%?"
}

func (p *Printer) printOperand(op Operand) {
	switch o := op.(type) {
	case InstRef:
		fmt.Fprint(p.w, p.valueName(o.Def))
	case GlobalRef:
		fmt.Fprintf(p.w, "@%q", o.Global.Name())
	case ExprRef:
		name := "<nil>"
		if o.Expr.Symbol != nil {
			name = o.Expr.Symbol.Name()
		}
		fmt.Fprintf(p.w, "@%q+%d", name, o.Expr.Offset)
	case ConstRef:
		p.printConstant(o.Const)
	default:
		fmt.Fprintf(p.w, "?op(%T)", op)
	}
}

func (p *Printer) printConstant(c Constant) {
	switch v := c.(type) {
	case IntConst:
		fmt.Fprintf(p.w, "%d", v.Value)
	case FloatConst:
		fmt.Fprintf(p.w, "%v", v.Value)
	case RegConst:
		fmt.Fprintf(p.w, "reg(%d)", v.Kind)
	default:
		fmt.Fprintf(p.w, "?const(%T)", c)
	}
}

func (p *Printer) printOperands(ops []Operand) {
	for i, op := range ops {
		if i > 0 {
			fmt.Fprint(p.w, ", ")
		}
		p.printOperand(op)
	}
}

func (p *Printer) printDest(inst *Inst) {
	if inst.NumReturns() == 0 {
		return
	}
	for slot := 0; slot < inst.NumReturns(); slot++ {
		if slot > 0 {
			fmt.Fprint(p.w, ", ")
		}
		fmt.Fprint(p.w, p.valueName(inst))
	}
	fmt.Fprint(p.w, " = ")
}

func (p *Printer) printInst(inst *Inst) {
	fmt.Fprint(p.w, "  ")
	p.printDest(inst)
	fmt.Fprint(p.w, inst.Kind())

	switch inst.Kind() {
	case OpJmp:
		fmt.Fprintf(p.w, " %s\n", inst.Target().Name())
	case OpJcc:
		t, f := inst.Branches()
		fmt.Fprint(p.w, " ")
		p.printOperand(inst.Operands()[0])
		fmt.Fprintf(p.w, ", %s, %s\n", t.Name(), f.Name())
	case OpSwitch:
		cases, deflt := inst.SwitchCases()
		fmt.Fprint(p.w, " ")
		p.printOperand(inst.Operands()[0])
		for _, c := range cases {
			fmt.Fprintf(p.w, " [%d -> %s]", c.Value, c.Target.Name())
		}
		fmt.Fprintf(p.w, " default %s\n", deflt.Name())
	case OpCall, OpTailCall, OpInvoke:
		fmt.Fprint(p.w, " ")
		p.printOperand(inst.Callee())
		fmt.Fprint(p.w, "(")
		p.printOperands(inst.Args())
		fmt.Fprint(p.w, ")")
		if inst.Kind() == OpInvoke {
			fmt.Fprintf(p.w, " to %s unwind %s", inst.Continuation().Name(), inst.LandingPad().Name())
		}
		fmt.Fprintln(p.w)
	case OpPhi:
		fmt.Fprint(p.w, " ")
		for i, inc := range inst.Incoming() {
			if i > 0 {
				fmt.Fprint(p.w, ", ")
			}
			fmt.Fprintf(p.w, "[%s: ", inc.Block.Name())
			p.printOperand(inc.Value)
			fmt.Fprint(p.w, "]")
		}
		fmt.Fprintln(p.w)
	case OpCmp:
		fmt.Fprintf(p.w, " %s ", inst.Cond())
		p.printOperands(inst.Operands())
		fmt.Fprintln(p.w)
	case OpArchIntrinsic:
		fmt.Fprintf(p.w, " %q(", inst.Mnemonic())
		p.printOperands(inst.Operands())
		fmt.Fprintln(p.w, ")")
	default:
		if len(inst.Operands()) > 0 {
			fmt.Fprint(p.w, " ")
			p.printOperands(inst.Operands())
		}
		fmt.Fprintln(p.w)
	}
}
