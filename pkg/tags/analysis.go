package tags

import (
	"go.uber.org/zap"

	"github.com/nandor-llir/llir/pkg/ir"
	"github.com/nandor-llir/llir/pkg/llerr"
	"github.com/nandor-llir/llir/pkg/target"
	"github.com/nandor-llir/llir/pkg/types"
)

// value identifies one SSA value: a (defining instruction, return
// slot) pair, exactly ir.InstRef's shape.
type value = ir.InstRef

// refinement narrows value's type within every block dominated by at
// (inclusive), the "split point" placement of spec.md §4.6.3.
type refinement struct {
	at  *ir.Block
	typ TaggedType
}

// Analysis holds the converged (or converging) state of the type/tag
// fixed point over a Program: one TaggedType per SSA value, one
// aggregated return-type vector per function, and the backward
// refinements narrowing values along dominated edges.
type Analysis struct {
	target *target.Target

	values      map[value]TaggedType
	returns     map[*ir.Func][]TaggedType
	refinements map[value][]refinement
	doms        map[*ir.Func]*domInfo

	instQueue []*ir.Inst
	inInstQ   map[*ir.Inst]bool
	phiQueue  []*ir.Inst
	inPhiQ    map[*ir.Inst]bool

	rounds int
}

// Run computes the fixed point over every function in prog and
// returns the resulting Analysis (spec.md §4.6.3).
func Run(prog *ir.Program, tgt *target.Target) (*Analysis, error) {
	a := &Analysis{
		target:      tgt,
		values:      make(map[value]TaggedType),
		returns:     make(map[*ir.Func][]TaggedType),
		refinements: make(map[value][]refinement),
		doms:        make(map[*ir.Func]*domInfo),
		inInstQ:     make(map[*ir.Inst]bool),
		inPhiQ:      make(map[*ir.Inst]bool),
	}

	for _, fn := range prog.Funcs() {
		a.doms[fn] = buildDomInfo(fn)
		for _, b := range fn.Blocks() {
			for _, inst := range b.Insts() {
				if inst.NumReturns() > 0 {
					a.values[value{Def: inst, Slot: 0}] = seed(inst, fn, tgt)
				}
				// Every phi gets at least one initial step regardless of
				// hasForwardStep: unlike other instructions, a phi whose
				// incoming values are all constants has no producer whose
				// own update would ever re-enqueue it via usesOf.
				if hasForwardStep(inst.Kind()) || inst.Kind() == ir.OpPhi {
					a.enqueueInst(inst)
				}
			}
		}
	}

	if err := a.drainForward(); err != nil {
		return nil, err
	}

	for _, fn := range prog.Funcs() {
		a.backwardRefine(fn)
	}

	Logger().Debug("type/tag analysis converged", zap.Int("rounds", a.rounds))
	return a, nil
}

// TypeOf returns the converged global type of an SSA value.
func (a *Analysis) TypeOf(def *ir.Inst, slot int) TaggedType {
	return a.values[value{Def: def, Slot: slot}]
}

// TypeAt returns value's type as known within block, applying the
// most specific backward refinement whose split point dominates
// block, if any (spec.md §4.6.3, "Backward refinement").
func (a *Analysis) TypeAt(def *ir.Inst, slot int, block *ir.Block) TaggedType {
	v := value{Def: def, Slot: slot}
	base := a.values[v]
	fn := def.Parent().Parent()
	d := a.doms[fn]
	best := base
	for _, r := range a.refinements[v] {
		if d.dominates(r.at, block) && Less(r.typ, best) {
			best = r.typ
		}
	}
	return best
}

// ReturnTypes returns fn's aggregated return-type vector.
func (a *Analysis) ReturnTypes(fn *ir.Func) []TaggedType {
	return append([]TaggedType(nil), a.returns[fn]...)
}

func hasForwardStep(k ir.Opcode) bool {
	switch k {
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpUDiv, ir.OpSDiv, ir.OpURem, ir.OpSRem,
		ir.OpAnd, ir.OpOr, ir.OpXor, ir.OpShl, ir.OpLShr, ir.OpAShr, ir.OpRotl, ir.OpRotr,
		ir.OpNeg, ir.OpNot, ir.OpSExt, ir.OpZExt, ir.OpFExt, ir.OpTrunc, ir.OpFTrunc,
		ir.OpBitCast, ir.OpByteSwap, ir.OpPopCount, ir.OpCLZ, ir.OpCTZ,
		ir.OpSelect, ir.OpMov, ir.OpCall, ir.OpTailCall, ir.OpRet:
		return true
	default:
		return false
	}
}

func (a *Analysis) enqueueInst(inst *ir.Inst) {
	if inst.Kind() == ir.OpPhi {
		if !a.inPhiQ[inst] {
			a.inPhiQ[inst] = true
			a.phiQueue = append(a.phiQueue, inst)
		}
		return
	}
	if !a.inInstQ[inst] {
		a.inInstQ[inst] = true
		a.instQueue = append(a.instQueue, inst)
	}
}

// drainForward runs the main instruction queue to exhaustion, then
// drains the phi queue once the main queue is empty, per spec.md
// §4.6.3's "phis are drained only after the main queue empties".
func (a *Analysis) drainForward() error {
	for len(a.instQueue) > 0 || len(a.phiQueue) > 0 {
		for len(a.instQueue) > 0 {
			inst := a.instQueue[0]
			a.instQueue = a.instQueue[1:]
			a.inInstQ[inst] = false
			if err := a.stepInst(inst); err != nil {
				return err
			}
		}
		if len(a.phiQueue) > 0 {
			phi := a.phiQueue[0]
			a.phiQueue = a.phiQueue[1:]
			a.inPhiQ[phi] = false
			if err := a.stepPhi(phi); err != nil {
				return err
			}
		}
		a.rounds++
	}
	return nil
}

// getType resolves an Operand to its current TaggedType.
func (a *Analysis) getType(op ir.Operand) TaggedType {
	switch o := op.(type) {
	case ir.InstRef:
		return a.values[value{Def: o.Def, Slot: o.Slot}]
	case ir.ConstRef:
		if ic, ok := o.Const.(ir.IntConst); ok {
			return Int(FullyKnown(uint64(ic.Value)))
		}
		return Of(Unknown)
	case ir.ExprRef:
		return Of(Addr)
	default:
		return Of(Unknown)
	}
}

// update records a new type for inst's return slot, enqueuing every
// use if the type changed. The convergence invariant of spec.md
// §4.6.1 requires the new type be strictly greater than the old; a
// step that would violate it is a fatal ConvergenceError.
func (a *Analysis) update(inst *ir.Inst, slot int, ty types.Type, newType TaggedType) error {
	v := value{Def: inst, Slot: slot}
	old := a.values[v]
	newType = ClampToMachine(newType, ty == types.V64)
	if newType == old {
		return nil
	}
	if !Less(old, newType) {
		return llerr.In(llerr.ConvergenceError, inst.Parent().Parent().Name(), inst.Parent().Name(),
			"value did not strictly increase: %s -> %s", old, newType)
	}
	a.values[v] = newType
	for _, u := range usesOf(inst, slot) {
		a.enqueueInst(u.User)
	}
	return nil
}

// usesOf returns every (user, slot) use of (def, slot) by scanning
// every instruction in the owning function, rather than reading the
// per-return-slot use list pkg/ir keeps (Inst.Uses).
func usesOf(def *ir.Inst, slot int) []ir.Use {
	fn := def.Parent().Parent()
	var out []ir.Use
	for _, b := range fn.Blocks() {
		for _, inst := range b.Insts() {
			for idx, op := range inst.Operands() {
				if ref, ok := op.(ir.InstRef); ok && ref.Def == def && ref.Slot == slot {
					out = append(out, ir.Use{User: inst, Slot: idx})
				}
			}
		}
	}
	return out
}

func (a *Analysis) stepPhi(phi *ir.Inst) error {
	result := Of(Unknown)
	for _, pair := range phi.Incoming() {
		result = Join(result, a.getType(pair.Value))
	}
	return a.update(phi, 0, phi.ReturnType(0), result)
}

func (a *Analysis) stepInst(inst *ir.Inst) error {
	switch inst.Kind() {
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpUDiv, ir.OpSDiv, ir.OpURem, ir.OpSRem,
		ir.OpAnd, ir.OpOr, ir.OpXor, ir.OpShl, ir.OpLShr, ir.OpAShr, ir.OpRotl, ir.OpRotr:
		lhs, rhs := a.getType(inst.LHS()), a.getType(inst.RHS())
		return a.update(inst, 0, inst.ReturnType(0), BinaryOp(inst.Kind(), lhs, rhs))
	case ir.OpNeg:
		arg := a.getType(inst.Arg())
		if arg.Kind == IntKind {
			return a.update(inst, 0, inst.ReturnType(0), Int(subMask(FullyKnown(0), arg.Mask)))
		}
		return a.update(inst, 0, inst.ReturnType(0), Of(Unknown))
	case ir.OpNot:
		arg := a.getType(inst.Arg())
		if arg.Kind == IntKind {
			return a.update(inst, 0, inst.ReturnType(0), Int(notMask(arg.Mask)))
		}
		return a.update(inst, 0, inst.ReturnType(0), Of(Unknown))
	case ir.OpSExt, ir.OpZExt, ir.OpFExt:
		return a.update(inst, 0, inst.ReturnType(0), a.getType(inst.Arg()))
	case ir.OpTrunc, ir.OpFTrunc:
		return a.update(inst, 0, inst.ReturnType(0), a.stepTrunc(inst))
	case ir.OpBitCast:
		return a.update(inst, 0, inst.ReturnType(0), a.getType(inst.Arg()))
	case ir.OpByteSwap:
		arg := a.getType(inst.Arg())
		if arg.Kind == IntKind {
			return a.update(inst, 0, inst.ReturnType(0), Int(MaskedType{}))
		}
		return a.update(inst, 0, inst.ReturnType(0), Of(IntKind))
	case ir.OpPopCount, ir.OpCLZ, ir.OpCTZ:
		return a.update(inst, 0, inst.ReturnType(0), Int(MaskedType{}))
	case ir.OpSelect:
		ops := inst.Operands()
		return a.update(inst, 0, inst.ReturnType(0), Join(a.getType(ops[1]), a.getType(ops[2])))
	case ir.OpMov:
		return a.update(inst, 0, inst.ReturnType(0), a.getType(inst.Arg()))
	case ir.OpCall:
		return a.stepCall(inst)
	case ir.OpTailCall:
		return a.stepTailCall(inst)
	case ir.OpRet:
		argTypes := make([]TaggedType, len(inst.Operands()))
		for i, op := range inst.Operands() {
			argTypes[i] = a.getType(op)
		}
		return a.contributeReturn(inst.Parent().Parent(), argTypes)
	}
	return nil
}

// stepTrunc implements spec.md §4.6.3's "truncation to less than
// pointer width clamps pointer-kind inputs to Int".
func (a *Analysis) stepTrunc(inst *ir.Inst) TaggedType {
	arg := a.getType(inst.Arg())
	destWidth := machineBits(inst.ReturnType(0))
	if destWidth < a.target.PointerWidth && arg.Kind != IntKind && arg.Kind != Unknown && arg.Kind != Undef {
		return Of(IntKind)
	}
	if arg.Kind == IntKind {
		widthMask := uint64(1)<<uint(destWidth) - 1
		if destWidth >= 64 {
			widthMask = ^uint64(0)
		}
		return Int(MaskedType{Value: arg.Mask.Value & widthMask, Known: arg.Mask.Known & widthMask})
	}
	return arg
}

func machineBits(ty types.Type) int {
	switch ty {
	case types.I8:
		return 8
	case types.I16:
		return 16
	case types.I32:
		return 32
	case types.I64, types.V64:
		return 64
	case types.I128:
		return 128
	default:
		return 64
	}
}

// calleeOf resolves a call's callee operand to a *ir.Func, or nil
// when the callee isn't statically known (an indirect call, or an
// unresolved Extern).
func calleeOf(inst *ir.Inst) *ir.Func {
	ref, ok := inst.Callee().(ir.GlobalRef)
	if !ok {
		return nil
	}
	fn, _ := ref.Global.(*ir.Func)
	return fn
}

// stepCall implements spec.md §4.6.3's Call rule: propagate argument
// types into the callee's parameters, and bring the callee's
// aggregated return vector back as this call's own per-slot type.
func (a *Analysis) stepCall(inst *ir.Inst) error {
	callee := calleeOf(inst)
	if callee == nil {
		for slot := 0; slot < inst.NumReturns(); slot++ {
			if err := a.update(inst, slot, inst.ReturnType(slot), Of(Unknown)); err != nil {
				return err
			}
		}
		return nil
	}
	a.propagateArgs(inst, callee)
	rets := a.returns[callee]
	for slot := 0; slot < inst.NumReturns(); slot++ {
		result := Of(Unknown)
		if slot < len(rets) {
			result = rets[slot]
		}
		if callee.CallingConv() == types.CC_Caml {
			switch slot {
			case 0:
				result = Of(Ptr)
			case 1:
				result = Of(Young)
			}
		}
		if err := a.update(inst, slot, inst.ReturnType(slot), result); err != nil {
			return err
		}
	}
	return nil
}

// stepTailCall implements the tail-call extension of spec.md §4.6.3:
// the callee's return vector becomes the caller's own, re-enqueuing
// every call site of the caller in turn.
func (a *Analysis) stepTailCall(inst *ir.Inst) error {
	callee := calleeOf(inst)
	if callee == nil {
		return nil
	}
	a.propagateArgs(inst, callee)
	caller := inst.Parent().Parent()
	return a.contributeReturn(caller, a.returns[callee])
}

func (a *Analysis) propagateArgs(inst *ir.Inst, callee *ir.Func) {
	args := inst.Args()
	for _, b := range callee.Blocks() {
		for _, p := range b.Insts() {
			if p.Kind() != ir.OpArg {
				continue
			}
			idx := p.ArgIndex()
			if idx >= len(args) {
				continue
			}
			argTy := a.getType(args[idx])
			v := value{Def: p, Slot: 0}
			joined := Join(a.values[v], argTy)
			if joined != a.values[v] {
				a.values[v] = joined
				for _, u := range usesOf(p, 0) {
					a.enqueueInst(u.User)
				}
			}
		}
	}
}

// contributeReturn joins argTypes into fn's aggregated return vector
// (grown as needed) and, on any change, re-enqueues every call site
// found among fn's Uses (spec.md §4.6.3, "Return propagation").
func (a *Analysis) contributeReturn(fn *ir.Func, argTypes []TaggedType) error {
	cur := a.returns[fn]
	changed := false
	for i, t := range argTypes {
		if i >= len(cur) {
			cur = append(cur, Of(Unknown))
		}
		joined := Join(cur[i], t)
		if joined != cur[i] {
			cur[i] = joined
			changed = true
		}
	}
	a.returns[fn] = cur
	if !changed {
		return nil
	}
	for _, use := range fn.Uses() {
		if use.User.Kind() == ir.OpCall || use.User.Kind() == ir.OpTailCall {
			a.enqueueInst(use.User)
		}
	}
	return nil
}
