package bitcode

import (
	"github.com/nandor-llir/llir/pkg/ir"
	"github.com/nandor-llir/llir/pkg/llerr"
)

// globalTable assigns each written symbol (extern, atom, func) a
// monotonic zero-based identifier in encoding order. Optional
// references (a func's personality, an extern's alias) are written
// 1-based through ref1, 0 meaning none; operand, item-expression and
// xtor function references are written 0-based through ref0.
type globalTable struct {
	index map[ir.Global]uint32
}

func newGlobalTable() *globalTable { return &globalTable{index: make(map[ir.Global]uint32)} }

func (t *globalTable) add(g ir.Global) { t.index[g] = uint32(len(t.index)) }

// ref1 returns the 1-based reference for g, or 0 if g is nil.
func (t *globalTable) ref1(g ir.Global) uint32 {
	if g == nil {
		return 0
	}
	id, ok := t.index[g]
	if !ok {
		return 0
	}
	return id + 1
}

// ref0 returns the 0-based global-table index for g.
func (t *globalTable) ref0(g ir.Global) uint32 { return t.index[g] }

// valueTable assigns each instruction return slot a monotonic
// zero-based identifier in traversal order, forming the
// "function-local instruction table" of spec.md §4.4.
type valueTable struct {
	index map[[2]any]uint32
}

func newValueTable() *valueTable { return &valueTable{index: make(map[[2]any]uint32)} }

func (t *valueTable) add(inst *ir.Inst) {
	for slot := 0; slot < inst.NumReturns(); slot++ {
		t.index[[2]any{inst, slot}] = uint32(len(t.index))
	}
}

func (t *valueTable) ref(inst *ir.Inst, slot int) uint32 { return t.index[[2]any{inst, slot}] }

// Write encodes prog into the bitcode format of spec.md §4.4.
func Write(prog *ir.Program) ([]byte, error) {
	w := &writer{}
	w.u32(kLLIRMagic)
	w.str(prog.Name())

	gt := newGlobalTable()
	externs := prog.Externs()
	for _, e := range externs {
		gt.add(e)
	}
	datas := prog.Data()
	for _, d := range datas {
		for _, obj := range d.Objects() {
			for _, a := range obj.Atoms() {
				gt.add(a)
			}
		}
	}
	funcs := prog.Funcs()
	for _, f := range funcs {
		gt.add(f)
	}

	w.u32(uint32(len(externs)))
	for _, e := range externs {
		w.str(e.Name())
	}

	w.u32(uint32(len(datas)))
	for _, d := range datas {
		w.str(d.Name())
		objs := d.Objects()
		w.u32(uint32(len(objs)))
		for _, obj := range objs {
			atoms := obj.Atoms()
			w.u32(uint32(len(atoms)))
			for _, a := range atoms {
				w.str(a.Name())
			}
		}
	}

	w.u32(uint32(len(funcs)))
	for _, f := range funcs {
		w.str(f.Name())
		blocks := f.Blocks()
		w.u32(uint32(len(blocks)))
		for _, b := range blocks {
			w.str(b.Name())
			w.u8(uint8(b.Visibility()))
		}
	}

	// Step 6: atom bodies, in the same order as step 4.
	for _, d := range datas {
		for _, obj := range d.Objects() {
			for _, a := range obj.Atoms() {
				writeAtomBody(w, gt, a)
			}
		}
	}

	// Step 7: function bodies, in the same order as step 5.
	for _, f := range funcs {
		if err := writeFuncBody(w, gt, f); err != nil {
			return nil, err
		}
	}

	// Step 8: extern bodies, in the same order as step 3.
	for _, e := range externs {
		w.u8(uint8(e.Visibility()))
		w.u32(gt.ref1(e.Alias()))
		if section, ok := e.Section(); ok {
			w.boolByte(true)
			w.str(section)
		} else {
			w.boolByte(false)
		}
	}

	// Step 9: xtors.
	xtors := prog.Xtor()
	w.u32(uint32(len(xtors)))
	for _, x := range xtors {
		w.u8(uint8(x.Kind()))
		w.i32(x.Priority())
		w.u32(gt.ref0(x.Func()))
	}

	return w.bytes(), nil
}

func writeAtomBody(w *writer, gt *globalTable, a *ir.Atom) {
	align, has := a.Alignment()
	w.alignment(align, has)
	w.u8(uint8(a.Visibility()))
	items := a.Items()
	w.u32(uint32(len(items)))
	for _, it := range items {
		writeItem(w, gt, it)
	}
}

func writeItem(w *writer, gt *globalTable, it ir.Item) {
	switch v := it.(type) {
	case ir.ItemInt8:
		w.u8(uint8(itemInt8))
		w.u8(uint8(v.Value))
	case ir.ItemInt16:
		w.u8(uint8(itemInt16))
		w.u16(uint16(v.Value))
	case ir.ItemInt32:
		w.u8(uint8(itemInt32))
		w.u32(uint32(v.Value))
	case ir.ItemInt64:
		w.u8(uint8(itemInt64))
		w.i64(v.Value)
	case ir.ItemFloat64:
		w.u8(uint8(itemFloat64))
		w.f64(v.Value)
	case ir.ItemAlign:
		w.u8(uint8(itemAlign))
		w.u32(v.Value)
	case ir.ItemSpace:
		w.u8(uint8(itemSpace))
		w.u32(v.Size)
	case ir.ItemString:
		w.u8(uint8(itemString))
		w.str(v.Value)
	case ir.ItemExpr:
		w.u8(uint8(itemExpr))
		w.u32(gt.ref0(v.Expr.Symbol))
		w.i64(v.Expr.Offset)
	}
}

func writeFuncBody(w *writer, gt *globalTable, f *ir.Func) error {
	align, has := f.Alignment()
	w.alignment(align, has)
	w.u8(uint8(f.Visibility()))
	w.u8(uint8(f.CallingConv()))
	w.boolByte(f.VarArg())
	w.boolByte(f.NoInline())
	w.str(f.CPU())
	w.str(f.TuneCPU())
	w.str(f.Features())
	w.u32(gt.ref1(f.Personality()))

	stack := f.StackObjects()
	w.u16(uint16(len(stack)))
	for _, s := range stack {
		w.u16(uint16(s.Index))
		w.u32(s.Size)
		w.u8(s.Align)
	}

	params := f.Params()
	w.u16(uint16(len(params)))
	for _, p := range params {
		w.u8(uint8(p.Type))
		w.u8(uint8(p.Flag))
	}

	blocks := f.Blocks()
	blockIdx := make(map[*ir.Block]uint16, len(blocks))
	for i, b := range blocks {
		blockIdx[b] = uint16(i)
	}
	vt := newValueTable()
	for _, b := range blocks {
		for _, inst := range b.Insts() {
			vt.add(inst)
		}
	}

	for _, b := range blocks {
		insts := b.Insts()
		w.u32(uint32(len(insts)))
		for _, inst := range insts {
			if err := writeInst(w, gt, vt, blockIdx, inst); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeOperand(w *writer, gt *globalTable, vt *valueTable, op ir.Operand) {
	switch o := op.(type) {
	case ir.InstRef:
		w.u8(uint8(refInst))
		w.u32(vt.ref(o.Def, o.Slot))
	case ir.GlobalRef:
		w.u8(uint8(refGlobal))
		w.u32(gt.ref0(o.Global))
	case ir.ExprRef:
		w.u8(uint8(refExpr))
		w.u32(gt.ref0(o.Expr.Symbol))
		w.i64(o.Expr.Offset)
	case ir.ConstRef:
		w.u8(uint8(refConst))
		writeConst(w, o.Const)
	}
}

func writeConst(w *writer, c ir.Constant) {
	switch v := c.(type) {
	case ir.IntConst:
		w.u8(uint8(constInt))
		w.u8(uint8(v.Ty))
		w.i64(v.Value)
	case ir.FloatConst:
		w.u8(uint8(constFloat))
		w.u8(uint8(v.Ty))
		w.f64(v.Value)
	case ir.RegConst:
		w.u8(uint8(constReg))
		w.u8(uint8(v.Ty))
		w.u8(uint8(v.Kind))
	}
}

func writeAnnots(w *writer, inst *ir.Inst) {
	annots := inst.Annot().All()
	w.u8(uint8(len(annots)))
	for _, a := range annots {
		switch v := a.(type) {
		case ir.CamlFrame:
			w.u8(uint8(ir.AnnotCamlFrame))
			w.u16(uint16(len(v.AllocOffsets)))
			for _, off := range v.AllocOffsets {
				w.i64(off)
			}
			w.u16(uint16(len(v.DebugChain)))
			for _, d := range v.DebugChain {
				w.str(d.Location)
				w.str(d.File)
				w.str(d.Defn)
			}
		case ir.Probability:
			w.u8(uint8(ir.AnnotProbability))
			w.u32(v.N)
			w.u32(v.D)
		}
	}
}

func writeReturnTypes(w *writer, inst *ir.Inst) {
	rets := inst.ReturnTypes()
	w.u8(uint8(len(rets)))
	for _, t := range rets {
		w.u8(uint8(t))
	}
}

func writeInst(w *writer, gt *globalTable, vt *valueTable, blockIdx map[*ir.Block]uint16, inst *ir.Inst) error {
	writeAnnots(w, inst)
	w.u8(uint8(inst.Kind()))

	op := func(o ir.Operand) { writeOperand(w, gt, vt, o) }

	switch inst.Kind() {
	case ir.OpJmp:
		w.u16(blockIdx[inst.Target()])
	case ir.OpJcc:
		w.u8(uint8(inst.Cond()))
		op(inst.Operands()[0])
		t, f := inst.Branches()
		w.u16(blockIdx[t])
		w.u16(blockIdx[f])
	case ir.OpSwitch:
		op(inst.Operands()[0])
		cases, deflt := inst.SwitchCases()
		w.u16(uint16(len(cases)))
		for _, c := range cases {
			w.i64(c.Value)
			w.u16(blockIdx[c.Target])
		}
		w.u16(blockIdx[deflt])
	case ir.OpRet:
		ops := inst.Operands()
		w.u8(uint8(len(ops)))
		for _, o := range ops {
			op(o)
		}
	case ir.OpTrap, ir.OpLandingPad:
		// no payload
	case ir.OpRaise:
		op(inst.Operands()[0])
	case ir.OpCall, ir.OpTailCall, ir.OpInvoke:
		w.u8(uint8(inst.CallingConv()))
		if n, ok := inst.FixedArgs(); ok {
			w.boolByte(true)
			w.u32(uint32(n))
		} else {
			w.boolByte(false)
		}
		writeReturnTypes(w, inst)
		ops := inst.Operands()
		w.u16(uint16(len(ops)))
		for _, o := range ops {
			op(o)
		}
		if inst.Kind() == ir.OpInvoke {
			w.u16(blockIdx[inst.Continuation()])
			w.u16(blockIdx[inst.LandingPad()])
		}
	case ir.OpPhi:
		w.u8(uint8(inst.ReturnType(0)))
		incoming := inst.Incoming()
		w.u16(uint16(len(incoming)))
		for _, pair := range incoming {
			w.u16(blockIdx[pair.Block])
			op(pair.Value)
		}
	case ir.OpLoad:
		w.u8(uint8(inst.ReturnType(0)))
		op(inst.Operands()[0])
	case ir.OpStore:
		ops := inst.Operands()
		op(ops[0])
		op(ops[1])
	case ir.OpFrame:
		w.u8(uint8(inst.ReturnType(0)))
		w.u16(uint16(inst.ObjectIndex()))
		w.i64(inst.FrameOffset())
	case ir.OpAlloca:
		w.u8(uint8(inst.ReturnType(0)))
		w.u8(uint8(inst.Align()))
		op(inst.Operands()[0])
	case ir.OpArg:
		w.u8(uint8(inst.ReturnType(0)))
		w.u16(uint16(inst.ArgIndex()))
		w.u8(uint8(inst.ArgFlagValue()))
	case ir.OpMov:
		w.u8(uint8(inst.ReturnType(0)))
		op(inst.Arg())
	case ir.OpSelect:
		w.u8(uint8(inst.ReturnType(0)))
		for _, o := range inst.Operands() {
			op(o)
		}
	case ir.OpUndef:
		w.u8(uint8(inst.ReturnType(0)))
	case ir.OpCmp:
		w.u8(uint8(inst.Cond()))
		op(inst.LHS())
		op(inst.RHS())
	case ir.OpSyscall:
		writeReturnTypes(w, inst)
		ops := inst.Operands()
		w.u8(uint8(len(ops)))
		for _, o := range ops {
			op(o)
		}
	case ir.OpSetJmp:
		op(inst.Arg())
	case ir.OpLongJmp:
		ops := inst.Operands()
		op(ops[0])
		op(ops[1])
	case ir.OpClone:
		w.u8(uint8(inst.ReturnType(0)))
		ops := inst.Operands()
		w.u8(uint8(len(ops)))
		for _, o := range ops {
			op(o)
		}
	case ir.OpCamlAlloc:
		op(inst.Arg())
	case ir.OpCamlCheckBound:
		ops := inst.Operands()
		op(ops[0])
		op(ops[1])
	case ir.OpArchIntrinsic:
		w.str(inst.Mnemonic())
		writeReturnTypes(w, inst)
		ops := inst.Operands()
		w.u8(uint8(len(ops)))
		for _, o := range ops {
			op(o)
		}
	case ir.OpVAStart:
		op(inst.Arg())
	default:
		if isUnaryOp(inst.Kind()) {
			w.u8(uint8(inst.ReturnType(0)))
			op(inst.Arg())
			break
		}
		if isBinaryOp(inst.Kind()) {
			w.u8(uint8(inst.ReturnType(0)))
			op(inst.LHS())
			op(inst.RHS())
			break
		}
		return llerr.New(llerr.InternalInvariant, "no bitcode schema registered for opcode %s", inst.Kind())
	}
	return nil
}

func isUnaryOp(k ir.Opcode) bool {
	switch k {
	case ir.OpNeg, ir.OpNot, ir.OpSExt, ir.OpZExt, ir.OpFExt, ir.OpTrunc, ir.OpFTrunc,
		ir.OpBitCast, ir.OpByteSwap, ir.OpPopCount, ir.OpCLZ, ir.OpCTZ:
		return true
	default:
		return false
	}
}

func isBinaryOp(k ir.Opcode) bool {
	switch k {
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpUDiv, ir.OpSDiv, ir.OpURem, ir.OpSRem,
		ir.OpAnd, ir.OpOr, ir.OpXor, ir.OpShl, ir.OpLShr, ir.OpAShr, ir.OpRotl, ir.OpRotr,
		ir.OpFAdd, ir.OpFSub, ir.OpFMul, ir.OpFDiv:
		return true
	default:
		return false
	}
}
