package bitcode

import (
	"github.com/nandor-llir/llir/pkg/ir"
	"github.com/nandor-llir/llir/pkg/llerr"
	"github.com/nandor-llir/llir/pkg/types"
)

// valRef names one entry of a function's value table: the instruction
// that produced it and which of its return slots.
type valRef struct {
	Def  *ir.Inst
	Slot int
}

// fixup records an operand that was decoded before its InstRef target
// existed in the value table (a forward reference, e.g. a loop-header
// phi reading a value defined later in the loop body). It is resolved
// once the whole function has been decoded.
type fixup struct {
	inst  *ir.Inst
	slot  int
	index uint32
}

// Read decodes a single-program bitcode buffer per spec.md §4.4.
func Read(buf []byte) (*ir.Program, error) {
	r := newReader(buf)
	magic, err := r.u32()
	if err != nil {
		return nil, err
	}
	if magic != kLLIRMagic {
		return nil, llerr.New(llerr.InvalidBitcode, "bad magic %#x, want %#x", magic, kLLIRMagic)
	}
	name, err := r.str()
	if err != nil {
		return nil, err
	}
	prog := ir.NewProgram(name)

	// Step 3: extern headers.
	nExterns, err := r.u32()
	if err != nil {
		return nil, err
	}
	externs := make([]*ir.Extern, nExterns)
	for i := range externs {
		eName, err := r.str()
		if err != nil {
			return nil, err
		}
		externs[i] = ir.NewExtern(eName)
	}

	// Step 4: data headers.
	nData, err := r.u32()
	if err != nil {
		return nil, err
	}
	type atomHandle struct {
		atom *ir.Atom
		obj  *ir.Object
	}
	var atomOrder []atomHandle
	datas := make([]*ir.Data, nData)
	for i := range datas {
		dName, err := r.str()
		if err != nil {
			return nil, err
		}
		d := prog.GetOrCreateData(dName)
		datas[i] = d
		nObj, err := r.u32()
		if err != nil {
			return nil, err
		}
		for j := uint32(0); j < nObj; j++ {
			obj := &ir.Object{}
			d.AddObject(obj, nil)
			nAtoms, err := r.u32()
			if err != nil {
				return nil, err
			}
			for k := uint32(0); k < nAtoms; k++ {
				aName, err := r.str()
				if err != nil {
					return nil, err
				}
				a := ir.NewAtom(aName, types.Local)
				atomOrder = append(atomOrder, atomHandle{atom: a, obj: obj})
			}
		}
	}

	// Step 5: function headers.
	nFuncs, err := r.u32()
	if err != nil {
		return nil, err
	}
	funcs := make([]*ir.Func, nFuncs)
	for i := range funcs {
		fName, err := r.str()
		if err != nil {
			return nil, err
		}
		f := ir.NewFunc(fName, types.GlobalDefault)
		nBlocks, err := r.u32()
		if err != nil {
			return nil, err
		}
		for j := uint32(0); j < nBlocks; j++ {
			bName, err := r.str()
			if err != nil {
				return nil, err
			}
			vis, err := r.u8()
			if err != nil {
				return nil, err
			}
			b := ir.NewBlock(bName, types.Visibility(vis))
			f.AddBlock(b, nil)
		}
		funcs[i] = f
	}

	// Global table, 0-based, in encoding order: externs, atoms, funcs.
	globals := make([]ir.Global, 0, len(externs)+len(atomOrder)+len(funcs))
	for _, e := range externs {
		globals = append(globals, e)
	}
	for _, h := range atomOrder {
		globals = append(globals, h.atom)
	}
	for _, f := range funcs {
		globals = append(globals, f)
	}
	global0 := func(idx uint32) (ir.Global, error) {
		if int(idx) >= len(globals) {
			return nil, llerr.New(llerr.InvalidBitcode, "global index %d out of range (have %d globals)", idx, len(globals))
		}
		return globals[idx], nil
	}
	global1 := func(idx uint32) (ir.Global, error) {
		if idx == 0 {
			return nil, nil
		}
		return global0(idx - 1)
	}

	// Step 6: atom bodies.
	for _, h := range atomOrder {
		if err := readAtomBody(r, h.atom, global0); err != nil {
			return nil, err
		}
	}

	// Step 7: function bodies.
	for _, f := range funcs {
		if err := readFuncBody(r, f, global0); err != nil {
			return nil, err
		}
	}

	// Step 8: extern bodies.
	for _, e := range externs {
		vis, err := r.u8()
		if err != nil {
			return nil, err
		}
		e.SetVisibility(types.Visibility(vis))
		aliasIdx, err := r.u32()
		if err != nil {
			return nil, err
		}
		alias, err := global1(aliasIdx)
		if err != nil {
			return nil, err
		}
		if alias != nil {
			e.SetAlias(alias)
		}
		hasSection, err := r.boolByte()
		if err != nil {
			return nil, err
		}
		if hasSection {
			section, err := r.str()
			if err != nil {
				return nil, err
			}
			e.SetSection(section)
		}
	}

	// Step 9: xtors.
	nXtors, err := r.u32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < nXtors; i++ {
		kind, err := r.u8()
		if err != nil {
			return nil, err
		}
		priority, err := r.i32()
		if err != nil {
			return nil, err
		}
		fnIdx, err := r.u32()
		if err != nil {
			return nil, err
		}
		g, err := global0(fnIdx)
		if err != nil {
			return nil, err
		}
		fn, ok := g.(*ir.Func)
		if !ok {
			return nil, llerr.New(llerr.InvalidBitcode, "xtor function index %d does not refer to a function", fnIdx)
		}
		prog.AddXtor(ir.NewXtor(priority, types.XtorKind(kind), fn), nil)
	}

	for _, h := range atomOrder {
		if err := h.obj.AddAtom(h.atom, nil); err != nil {
			return nil, err
		}
	}
	for _, e := range externs {
		if err := prog.AddExtern(e, nil); err != nil {
			return nil, err
		}
	}
	for _, f := range funcs {
		if err := prog.AddFunc(f, nil); err != nil {
			return nil, err
		}
	}

	return prog, nil
}

func readAtomBody(r *reader, a *ir.Atom, global0 func(uint32) (ir.Global, error)) error {
	align, has, err := r.alignment()
	if err != nil {
		return err
	}
	if has {
		a.SetAlignment(align)
	}
	vis, err := r.u8()
	if err != nil {
		return err
	}
	a.SetVisibility(types.Visibility(vis))
	nItems, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < nItems; i++ {
		it, err := readItem(r, global0)
		if err != nil {
			return err
		}
		a.AddItem(it)
	}
	return nil
}

func readItem(r *reader, global0 func(uint32) (ir.Global, error)) (ir.Item, error) {
	kind, err := r.u8()
	if err != nil {
		return nil, err
	}
	switch itemKind(kind) {
	case itemInt8:
		v, err := r.u8()
		return ir.ItemInt8{Value: int8(v)}, err
	case itemInt16:
		v, err := r.u16()
		return ir.ItemInt16{Value: int16(v)}, err
	case itemInt32:
		v, err := r.u32()
		return ir.ItemInt32{Value: int32(v)}, err
	case itemInt64:
		v, err := r.i64()
		return ir.ItemInt64{Value: v}, err
	case itemFloat64:
		v, err := r.f64()
		return ir.ItemFloat64{Value: v}, err
	case itemAlign:
		v, err := r.u32()
		return ir.ItemAlign{Value: v}, err
	case itemSpace:
		v, err := r.u32()
		return ir.ItemSpace{Size: v}, err
	case itemString:
		v, err := r.str()
		return ir.ItemString{Value: v}, err
	case itemExpr:
		symIdx, err := r.u32()
		if err != nil {
			return nil, err
		}
		offset, err := r.i64()
		if err != nil {
			return nil, err
		}
		sym, err := global0(symIdx)
		if err != nil {
			return nil, err
		}
		return ir.ItemExpr{Expr: &ir.SymExpr{Symbol: sym, Offset: offset}}, nil
	default:
		return nil, llerr.New(llerr.InvalidBitcode, "unknown item kind %d", kind)
	}
}

func readFuncBody(r *reader, f *ir.Func, global0 func(uint32) (ir.Global, error)) error {
	align, has, err := r.alignment()
	if err != nil {
		return err
	}
	if has {
		f.SetAlignment(align)
	}
	vis, err := r.u8()
	if err != nil {
		return err
	}
	f.SetVisibility(types.Visibility(vis))
	cc, err := r.u8()
	if err != nil {
		return err
	}
	f.SetCallingConv(types.CallingConv(cc))
	varArg, err := r.boolByte()
	if err != nil {
		return err
	}
	f.SetVarArg(varArg)
	noInline, err := r.boolByte()
	if err != nil {
		return err
	}
	f.SetNoInline(noInline)
	cpu, err := r.str()
	if err != nil {
		return err
	}
	f.SetCPU(cpu)
	tuneCPU, err := r.str()
	if err != nil {
		return err
	}
	f.SetTuneCPU(tuneCPU)
	features, err := r.str()
	if err != nil {
		return err
	}
	f.SetFeatures(features)
	personalityIdx, err := r.u32()
	if err != nil {
		return err
	}
	p, err := global0FromRef1(personalityIdx, global0)
	if err != nil {
		return err
	}
	if p != nil {
		f.SetPersonality(p)
	}

	nStack, err := r.u16()
	if err != nil {
		return err
	}
	for i := uint16(0); i < nStack; i++ {
		idx, err := r.u16()
		if err != nil {
			return err
		}
		size, err := r.u32()
		if err != nil {
			return err
		}
		align, err := r.u8()
		if err != nil {
			return err
		}
		f.AddStackObject(size, align)
		_ = idx
	}

	nParams, err := r.u16()
	if err != nil {
		return err
	}
	params := make([]ir.Param, nParams)
	for i := range params {
		ty, err := r.u8()
		if err != nil {
			return err
		}
		flag, err := r.u8()
		if err != nil {
			return err
		}
		params[i] = ir.Param{Type: types.Type(ty), Flag: ir.ArgFlag(flag)}
	}
	f.SetParams(params)

	blocks := f.Blocks()

	var values []valRef
	var fixups []fixup

	for _, b := range blocks {
		nInsts, err := r.u32()
		if err != nil {
			return err
		}
		for i := uint32(0); i < nInsts; i++ {
			inst, err := readInst(r, global0, blocks, &values, &fixups)
			if err != nil {
				return err
			}
			if inst != nil {
				b.AddInst(inst, nil)
				for slot := 0; slot < inst.NumReturns(); slot++ {
					values = append(values, valRef{Def: inst, Slot: slot})
				}
			}
		}
	}

	for _, fx := range fixups {
		if int(fx.index) >= len(values) {
			return llerr.In(llerr.InvalidBitcode, f.Name(), "", "forward reference to out-of-range value index %d", fx.index)
		}
		target := values[fx.index]
		fx.inst.SetOperand(fx.slot, ir.InstRef{Def: target.Def, Slot: target.Slot})
	}
	return nil
}

// global0FromRef1 converts a 1-based reference (0 = none) using the
// same global0 0-based lookup used elsewhere in this package.
func global0FromRef1(ref1 uint32, global0 func(uint32) (ir.Global, error)) (ir.Global, error) {
	if ref1 == 0 {
		return nil, nil
	}
	return global0(ref1 - 1)
}

func readAnnots(r *reader) (*ir.AnnotSet, error) {
	set := &ir.AnnotSet{}
	n, err := r.u8()
	if err != nil {
		return nil, err
	}
	for i := uint8(0); i < n; i++ {
		kind, err := r.u8()
		if err != nil {
			return nil, err
		}
		switch ir.AnnotKind(kind) {
		case ir.AnnotCamlFrame:
			nOff, err := r.u16()
			if err != nil {
				return nil, err
			}
			offsets := make([]int64, nOff)
			for j := range offsets {
				offsets[j], err = r.i64()
				if err != nil {
					return nil, err
				}
			}
			nChain, err := r.u16()
			if err != nil {
				return nil, err
			}
			chain := make([]ir.DebugLoc, nChain)
			for j := range chain {
				loc, err := r.str()
				if err != nil {
					return nil, err
				}
				file, err := r.str()
				if err != nil {
					return nil, err
				}
				defn, err := r.str()
				if err != nil {
					return nil, err
				}
				chain[j] = ir.DebugLoc{Location: loc, File: file, Defn: defn}
			}
			set.Set(ir.CamlFrame{AllocOffsets: offsets, DebugChain: chain})
		case ir.AnnotProbability:
			nn, err := r.u32()
			if err != nil {
				return nil, err
			}
			dd, err := r.u32()
			if err != nil {
				return nil, err
			}
			set.Set(ir.Probability{N: nn, D: dd})
		default:
			return nil, llerr.New(llerr.InvalidBitcode, "unknown annotation kind %d", kind)
		}
	}
	return set, nil
}

func readReturnTypes(r *reader) ([]types.Type, error) {
	n, err := r.u8()
	if err != nil {
		return nil, err
	}
	rets := make([]types.Type, n)
	for i := range rets {
		v, err := r.u8()
		if err != nil {
			return nil, err
		}
		rets[i] = types.Type(v)
	}
	return rets, nil
}

// readOperand decodes one tagged operand. If it is a forward InstRef
// (an index not yet present in values), it returns a placeholder
// operand pointing at a detached Undef instruction and records a
// fixup to patch consumer/slot once the real value is known.
func readOperand(r *reader, global0 func(uint32) (ir.Global, error), values *[]valRef, fixups *[]fixup, consumer *ir.Inst, slot int) (ir.Operand, error) {
	kind, err := r.u8()
	if err != nil {
		return nil, err
	}
	switch refKind(kind) {
	case refInst:
		idx, err := r.u32()
		if err != nil {
			return nil, err
		}
		if int(idx) < len(*values) {
			v := (*values)[idx]
			return ir.InstRef{Def: v.Def, Slot: v.Slot}, nil
		}
		placeholder := ir.NewUndef(types.I64)
		*fixups = append(*fixups, fixup{inst: consumer, slot: slot, index: idx})
		return ir.InstRef{Def: placeholder, Slot: 0}, nil
	case refGlobal:
		idx, err := r.u32()
		if err != nil {
			return nil, err
		}
		g, err := global0(idx)
		if err != nil {
			return nil, err
		}
		return ir.GlobalRef{Global: g}, nil
	case refExpr:
		idx, err := r.u32()
		if err != nil {
			return nil, err
		}
		offset, err := r.i64()
		if err != nil {
			return nil, err
		}
		sym, err := global0(idx)
		if err != nil {
			return nil, err
		}
		return ir.ExprRef{Expr: &ir.SymExpr{Symbol: sym, Offset: offset}}, nil
	case refConst:
		c, err := readConst(r)
		if err != nil {
			return nil, err
		}
		return ir.ConstRef{Const: c}, nil
	default:
		return nil, llerr.New(llerr.InvalidBitcode, "unknown value reference tag %d", kind)
	}
}

func readConst(r *reader) (ir.Constant, error) {
	kind, err := r.u8()
	if err != nil {
		return nil, err
	}
	ty, err := r.u8()
	if err != nil {
		return nil, err
	}
	switch constKind(kind) {
	case constInt:
		v, err := r.i64()
		return ir.IntConst{Ty: types.Type(ty), Value: v}, err
	case constFloat:
		v, err := r.f64()
		return ir.FloatConst{Ty: types.Type(ty), Value: v}, err
	case constReg:
		regKind, err := r.u8()
		return ir.RegConst{Ty: types.Type(ty), Kind: ir.RegKind(regKind)}, err
	default:
		return nil, llerr.New(llerr.InvalidBitcode, "unknown constant kind %d", kind)
	}
}

func readInst(r *reader, global0 func(uint32) (ir.Global, error), blocks []*ir.Block, values *[]valRef, fixups *[]fixup) (*ir.Inst, error) {
	annots, err := readAnnots(r)
	if err != nil {
		return nil, err
	}
	opcode, err := r.u8()
	if err != nil {
		return nil, err
	}
	op := ir.Opcode(opcode)

	blockAt := func(idx uint16) *ir.Block {
		if int(idx) >= len(blocks) {
			return nil
		}
		return blocks[idx]
	}

	var inst *ir.Inst
	switch op {
	case ir.OpJmp:
		idx, err := r.u16()
		if err != nil {
			return nil, err
		}
		inst = ir.NewJmp(blockAt(idx))
	case ir.OpJcc:
		cond, err := r.u8()
		if err != nil {
			return nil, err
		}
		arg, err := readOperand(r, global0, values, fixups, nil, 0)
		if err != nil {
			return nil, err
		}
		tIdx, err := r.u16()
		if err != nil {
			return nil, err
		}
		fIdx, err := r.u16()
		if err != nil {
			return nil, err
		}
		inst = ir.NewJcc(types.ConditionCode(cond), arg, blockAt(tIdx), blockAt(fIdx))
		rebindFixups(fixups, inst)
	case ir.OpSwitch:
		arg, err := readOperand(r, global0, values, fixups, nil, 0)
		if err != nil {
			return nil, err
		}
		nCases, err := r.u16()
		if err != nil {
			return nil, err
		}
		cases := make([]ir.SwitchCase, nCases)
		for i := range cases {
			val, err := r.i64()
			if err != nil {
				return nil, err
			}
			tIdx, err := r.u16()
			if err != nil {
				return nil, err
			}
			cases[i] = ir.SwitchCase{Value: val, Target: blockAt(tIdx)}
		}
		dIdx, err := r.u16()
		if err != nil {
			return nil, err
		}
		inst = ir.NewSwitch(arg, cases, blockAt(dIdx))
		rebindFixups(fixups, inst)
	case ir.OpRet:
		n, err := r.u8()
		if err != nil {
			return nil, err
		}
		inst = ir.NewRet()
		for i := uint8(0); i < n; i++ {
			v, err := readOperand(r, global0, values, fixups, inst, int(i))
			if err != nil {
				return nil, err
			}
			inst.AddOperand(v)
		}
	case ir.OpTrap:
		inst = ir.NewTrap()
	case ir.OpLandingPad:
		inst = ir.NewLandingPad()
	case ir.OpRaise:
		inst = ir.NewRaise(nil)
		arg, err := readOperand(r, global0, values, fixups, inst, 0)
		if err != nil {
			return nil, err
		}
		inst.SetOperand(0, arg)
	case ir.OpCall, ir.OpTailCall, ir.OpInvoke:
		cc, err := r.u8()
		if err != nil {
			return nil, err
		}
		hasFixed, err := r.boolByte()
		if err != nil {
			return nil, err
		}
		var fixedArgs *int
		if hasFixed {
			n, err := r.u32()
			if err != nil {
				return nil, err
			}
			v := int(n)
			fixedArgs = &v
		}
		rets, err := readReturnTypes(r)
		if err != nil {
			return nil, err
		}
		nOps, err := r.u16()
		if err != nil {
			return nil, err
		}
		ops := make([]ir.Operand, nOps)
		for i := range ops {
			ops[i], err = readOperand(r, global0, values, fixups, nil, i)
			if err != nil {
				return nil, err
			}
		}
		var callee ir.Operand
		var args []ir.Operand
		if len(ops) > 0 {
			callee = ops[0]
			args = ops[1:]
		}
		switch op {
		case ir.OpCall:
			inst = ir.NewCall(callee, args, types.CallingConv(cc), fixedArgs, rets)
		case ir.OpTailCall:
			inst = ir.NewTailCall(callee, args, types.CallingConv(cc), fixedArgs, rets)
		case ir.OpInvoke:
			contIdx, err := r.u16()
			if err != nil {
				return nil, err
			}
			landIdx, err := r.u16()
			if err != nil {
				return nil, err
			}
			inst = ir.NewInvoke(callee, args, types.CallingConv(cc), fixedArgs, rets, blockAt(contIdx), blockAt(landIdx))
		}
		// Re-point forward-ref fixups recorded against the ops slice
		// (consumer was nil at decode time) onto the real instruction.
		rebindFixups(fixups, inst)
	case ir.OpPhi:
		ty, err := r.u8()
		if err != nil {
			return nil, err
		}
		inst = ir.NewPhi(types.Type(ty))
		nPairs, err := r.u16()
		if err != nil {
			return nil, err
		}
		for i := uint16(0); i < nPairs; i++ {
			bIdx, err := r.u16()
			if err != nil {
				return nil, err
			}
			v, err := readOperand(r, global0, values, fixups, inst, int(i))
			if err != nil {
				return nil, err
			}
			inst.AddIncoming(blockAt(bIdx), v)
		}
	case ir.OpLoad:
		ty, err := r.u8()
		if err != nil {
			return nil, err
		}
		addr, err := readOperand(r, global0, values, fixups, nil, 0)
		if err != nil {
			return nil, err
		}
		inst = ir.NewLoad(addr, types.Type(ty))
		rebindFixups(fixups, inst)
	case ir.OpStore:
		addr, err := readOperand(r, global0, values, fixups, nil, 0)
		if err != nil {
			return nil, err
		}
		val, err := readOperand(r, global0, values, fixups, nil, 1)
		if err != nil {
			return nil, err
		}
		inst = ir.NewStore(addr, val)
		rebindFixups(fixups, inst)
	case ir.OpFrame:
		ty, err := r.u8()
		if err != nil {
			return nil, err
		}
		objIdx, err := r.u16()
		if err != nil {
			return nil, err
		}
		offset, err := r.i64()
		if err != nil {
			return nil, err
		}
		inst = ir.NewFrame(int(objIdx), offset, types.Type(ty))
	case ir.OpAlloca:
		ty, err := r.u8()
		if err != nil {
			return nil, err
		}
		align, err := r.u8()
		if err != nil {
			return nil, err
		}
		size, err := readOperand(r, global0, values, fixups, nil, 0)
		if err != nil {
			return nil, err
		}
		inst = ir.NewAlloca(size, int(align), types.Type(ty))
		rebindFixups(fixups, inst)
	case ir.OpArg:
		ty, err := r.u8()
		if err != nil {
			return nil, err
		}
		idx, err := r.u16()
		if err != nil {
			return nil, err
		}
		flag, err := r.u8()
		if err != nil {
			return nil, err
		}
		inst = ir.NewArg(int(idx), ir.ArgFlag(flag), types.Type(ty))
	case ir.OpMov:
		ty, err := r.u8()
		if err != nil {
			return nil, err
		}
		arg, err := readOperand(r, global0, values, fixups, nil, 0)
		if err != nil {
			return nil, err
		}
		inst = ir.NewMov(arg, types.Type(ty))
		rebindFixups(fixups, inst)
	case ir.OpSelect:
		ty, err := r.u8()
		if err != nil {
			return nil, err
		}
		cond, err := readOperand(r, global0, values, fixups, nil, 0)
		if err != nil {
			return nil, err
		}
		ifTrue, err := readOperand(r, global0, values, fixups, nil, 1)
		if err != nil {
			return nil, err
		}
		ifFalse, err := readOperand(r, global0, values, fixups, nil, 2)
		if err != nil {
			return nil, err
		}
		inst = ir.NewSelect(cond, ifTrue, ifFalse, types.Type(ty))
		rebindFixups(fixups, inst)
	case ir.OpUndef:
		ty, err := r.u8()
		if err != nil {
			return nil, err
		}
		inst = ir.NewUndef(types.Type(ty))
	case ir.OpCmp:
		cond, err := r.u8()
		if err != nil {
			return nil, err
		}
		lhs, err := readOperand(r, global0, values, fixups, nil, 0)
		if err != nil {
			return nil, err
		}
		rhs, err := readOperand(r, global0, values, fixups, nil, 1)
		if err != nil {
			return nil, err
		}
		inst = ir.NewCmp(types.ConditionCode(cond), lhs, rhs)
		rebindFixups(fixups, inst)
	case ir.OpSyscall:
		rets, err := readReturnTypes(r)
		if err != nil {
			return nil, err
		}
		n, err := r.u8()
		if err != nil {
			return nil, err
		}
		args := make([]ir.Operand, n)
		for i := range args {
			args[i], err = readOperand(r, global0, values, fixups, nil, i)
			if err != nil {
				return nil, err
			}
		}
		inst = ir.NewSyscall(args, rets)
		rebindFixups(fixups, inst)
	case ir.OpSetJmp:
		buf, err := readOperand(r, global0, values, fixups, nil, 0)
		if err != nil {
			return nil, err
		}
		inst = ir.NewSetJmp(buf)
		rebindFixups(fixups, inst)
	case ir.OpLongJmp:
		buf, err := readOperand(r, global0, values, fixups, nil, 0)
		if err != nil {
			return nil, err
		}
		val, err := readOperand(r, global0, values, fixups, nil, 1)
		if err != nil {
			return nil, err
		}
		inst = ir.NewLongJmp(buf, val)
		rebindFixups(fixups, inst)
	case ir.OpClone:
		ty, err := r.u8()
		if err != nil {
			return nil, err
		}
		n, err := r.u8()
		if err != nil {
			return nil, err
		}
		args := make([]ir.Operand, n)
		for i := range args {
			args[i], err = readOperand(r, global0, values, fixups, nil, i)
			if err != nil {
				return nil, err
			}
		}
		inst = ir.NewClone(args, types.Type(ty))
		rebindFixups(fixups, inst)
	case ir.OpCamlAlloc:
		size, err := readOperand(r, global0, values, fixups, nil, 0)
		if err != nil {
			return nil, err
		}
		inst = ir.NewCamlAlloc(size)
		rebindFixups(fixups, inst)
	case ir.OpCamlCheckBound:
		ptr, err := readOperand(r, global0, values, fixups, nil, 0)
		if err != nil {
			return nil, err
		}
		idx, err := readOperand(r, global0, values, fixups, nil, 1)
		if err != nil {
			return nil, err
		}
		inst = ir.NewCamlCheckBound(ptr, idx)
		rebindFixups(fixups, inst)
	case ir.OpArchIntrinsic:
		mnemonic, err := r.str()
		if err != nil {
			return nil, err
		}
		rets, err := readReturnTypes(r)
		if err != nil {
			return nil, err
		}
		n, err := r.u8()
		if err != nil {
			return nil, err
		}
		args := make([]ir.Operand, n)
		for i := range args {
			args[i], err = readOperand(r, global0, values, fixups, nil, i)
			if err != nil {
				return nil, err
			}
		}
		inst = ir.NewArchIntrinsic(mnemonic, args, rets)
		rebindFixups(fixups, inst)
	case ir.OpVAStart:
		addr, err := readOperand(r, global0, values, fixups, nil, 0)
		if err != nil {
			return nil, err
		}
		inst = ir.NewVAStart(addr)
		rebindFixups(fixups, inst)
	default:
		if isUnaryOp(op) {
			ty, err := r.u8()
			if err != nil {
				return nil, err
			}
			arg, err := readOperand(r, global0, values, fixups, nil, 0)
			if err != nil {
				return nil, err
			}
			inst = newUnaryByOpcode(op, arg, types.Type(ty))
			rebindFixups(fixups, inst)
			break
		}
		if isBinaryOp(op) {
			ty, err := r.u8()
			if err != nil {
				return nil, err
			}
			lhs, err := readOperand(r, global0, values, fixups, nil, 0)
			if err != nil {
				return nil, err
			}
			rhs, err := readOperand(r, global0, values, fixups, nil, 1)
			if err != nil {
				return nil, err
			}
			inst = newBinaryByOpcode(op, lhs, rhs, types.Type(ty))
			rebindFixups(fixups, inst)
			break
		}
		return nil, llerr.New(llerr.InvalidBitcode, "unknown opcode discriminant %d", opcode)
	}

	for _, a := range annots.All() {
		inst.Annot().Set(a)
	}
	return inst, nil
}

// rebindFixups re-points any fixup entries whose inst field is still
// nil (recorded while the consumer instruction had not been
// constructed yet) onto the now-constructed instruction.
func rebindFixups(fixups *[]fixup, inst *ir.Inst) {
	for i := range *fixups {
		if (*fixups)[i].inst == nil {
			(*fixups)[i].inst = inst
		}
	}
}

