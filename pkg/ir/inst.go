package ir

import "github.com/nandor-llir/llir/pkg/types"

// Opcode discriminates an instruction's kind. The full instruction set
// spans roughly ninety opcodes grouped as terminator, unary, binary,
// memory, call-site, control, architecture-specific, phi, mov, arg,
// frame, and select (spec.md §3.4); the families below are
// representative of each group rather than an exhaustive enumeration
// of every machine-specific intrinsic, which OpArchIntrinsic covers
// generically (see its doc comment).
type Opcode uint8

const (
	// --- Terminators ---
	OpJmp Opcode = iota
	OpJcc
	OpSwitch
	OpRet
	OpTrap
	OpTailCall
	OpInvoke

	// --- Phi (appears only at block head) ---
	OpPhi

	// --- Memory ---
	OpLoad
	OpStore

	// --- Call-site (non-terminator) ---
	OpCall

	// --- Control (Raise is a terminator; LandingPad and VAStart are not) ---
	OpRaise
	OpLandingPad
	OpVAStart

	// --- Frame / stack / misc values ---
	OpFrame
	OpAlloca
	OpArg
	OpMov
	OpSelect
	OpUndef

	// --- Unary ---
	OpNeg
	OpNot
	OpSExt
	OpZExt
	OpFExt
	OpTrunc
	OpFTrunc
	OpBitCast
	OpByteSwap
	OpPopCount
	OpCLZ
	OpCTZ

	// --- Binary ---
	OpAdd
	OpSub
	OpMul
	OpUDiv
	OpSDiv
	OpURem
	OpSRem
	OpAnd
	OpOr
	OpXor
	OpShl
	OpLShr
	OpAShr
	OpRotl
	OpRotr
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv
	OpCmp

	// --- Runtime / calling-convention helpers ---
	OpSyscall
	OpSetJmp
	OpLongJmp
	OpClone
	OpCamlAlloc
	OpCamlCheckBound

	// OpArchIntrinsic is the architecture-specific escape hatch: a
	// named machine intrinsic (e.g. x86 RDTSC, ARM DMB, PowerPC SYNC,
	// RISC-V FENCE) that takes and returns ordinary operands but has
	// no portable semantics the core needs to model. Real
	// instruction selection, which is out of scope (spec.md §1),
	// lowers generic ops to these; the core only needs to carry them
	// through unchanged.
	OpArchIntrinsic
)

func (k Opcode) String() string {
	names := [...]string{
		"jmp", "jcc", "switch", "ret", "trap", "tailcall", "invoke",
		"phi",
		"load", "store",
		"call",
		"raise", "landingpad", "vastart",
		"frame", "alloca", "arg", "mov", "select", "undef",
		"neg", "not", "sext", "zext", "fext", "trunc", "ftrunc", "bitcast", "byteswap", "popcount", "clz", "ctz",
		"add", "sub", "mul", "udiv", "sdiv", "urem", "srem", "and", "or", "xor", "shl", "lshr", "ashr", "rotl", "rotr",
		"fadd", "fsub", "fmul", "fdiv", "cmp",
		"syscall", "setjmp", "longjmp", "clone", "caml_alloc", "caml_checkbound",
		"arch",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "<invalid-opcode>"
}

// phiPayload holds a Phi's CFG predecessors; the block at index k of
// blocks pairs with the operand at the same index in Inst.operands.
type phiPayload struct {
	blocks []*Block
}

type callPayload struct {
	cc         types.CallingConv
	fixedArgs  *int // nil if not a var-arg boundary
	numArgs    int  // operands[1:1+numArgs] are arguments
	cont       *Block
	land       *Block
}

// SwitchCase pairs one scrutinee value with its target block.
type SwitchCase struct {
	Value  int64
	Target *Block
}

type switchPayload struct {
	cases   []SwitchCase
	deflt   *Block
}

type jccPayload struct {
	cond                    types.ConditionCode
	trueTarget, falseTarget *Block
}

type jmpPayload struct {
	target *Block
}

type framePayload struct {
	objectIndex int
	offset      int64
}

type argPayload struct {
	index int
	flag  ArgFlag
}

// ArgFlag marks extra ABI information about a parameter (sign/zero
// extension requirements, byval, etc.), paired with its Type in
// Func.Params per spec.md §3.3.
type ArgFlag uint8

const (
	ArgNone ArgFlag = iota
	ArgSExt
	ArgZExt
	ArgByVal
)

type cmpPayload struct {
	cond types.ConditionCode
}

type archPayload struct {
	mnemonic string
}

// Inst is a single instruction: a kind, its parent Block, an ordered
// operand list, zero or more return types, and an annotation set
// (spec.md §3.4). Opcode-specific non-operand data (calling
// convention, condition code, branch targets, ...) is held in an
// internal payload selected by kind; accessor methods below assert
// into it so callers never need to know the representation.
type Inst struct {
	kind        Opcode
	parent      *Block
	operands    []Operand
	returnTypes []types.Type
	uses        [][]Use // one use-chain per return slot
	annots      AnnotSet
	payload     any
}

func newInst(kind Opcode, rets []types.Type) *Inst {
	return &Inst{
		kind:        kind,
		returnTypes: rets,
		uses:        make([][]Use, len(rets)),
	}
}

// Kind returns the instruction's opcode.
func (i *Inst) Kind() Opcode { return i.kind }

// Parent returns the Block the instruction belongs to.
func (i *Inst) Parent() *Block { return i.parent }

// NumReturns is the instruction's return arity.
func (i *Inst) NumReturns() int { return len(i.returnTypes) }

// ReturnType returns the type of return slot idx.
func (i *Inst) ReturnType(idx int) types.Type { return i.returnTypes[idx] }

// ReturnTypes returns all return types, in slot order.
func (i *Inst) ReturnTypes() []types.Type { return append([]types.Type(nil), i.returnTypes...) }

// SetReturnTypes replaces the return-type vector, used by pkg/tags
// return propagation (spec.md §4.6.3) when a tail call's return
// vector is discovered to widen the caller's own.
func (i *Inst) SetReturnTypes(rets []types.Type) {
	i.returnTypes = rets
	for len(i.uses) < len(rets) {
		i.uses = append(i.uses, nil)
	}
}

// Operands returns the instruction's operand list.
func (i *Inst) Operands() []Operand { return append([]Operand(nil), i.operands...) }

// OperandValues returns only the InstRef operands, i.e. the operands
// that refer to values produced by other instructions in this
// function (as opposed to constants, globals, or expressions).
func (i *Inst) OperandValues() []InstRef {
	var out []InstRef
	for _, op := range i.operands {
		if r, ok := op.(InstRef); ok {
			out = append(out, r)
		}
	}
	return out
}

func (i *Inst) useSlot(slot int) *[]Use { return &i.uses[slot] }

// Annot returns the instruction's annotation set.
func (i *Inst) Annot() *AnnotSet { return &i.annots }

// IsTerminator reports whether the instruction ends a Block.
func (i *Inst) IsTerminator() bool {
	switch i.kind {
	case OpJmp, OpJcc, OpSwitch, OpRet, OpTrap, OpTailCall, OpInvoke, OpRaise:
		return true
	default:
		return false
	}
}

// IsCallSite reports whether the instruction is Call, TailCall, or
// Invoke, which share the operand contract of spec.md §3.4.
func (i *Inst) IsCallSite() bool {
	switch i.kind {
	case OpCall, OpTailCall, OpInvoke:
		return true
	default:
		return false
	}
}

// HasSideEffects reports whether the instruction may not be freely
// deleted even with no uses: stores, calls, traps, and terminators
// all have observable effects beyond their return value.
func (i *Inst) HasSideEffects() bool {
	if i.IsTerminator() || i.IsCallSite() {
		return true
	}
	switch i.kind {
	case OpStore, OpTrap, OpSyscall, OpSetJmp, OpLongJmp, OpClone, OpVAStart, OpCamlAlloc, OpCamlCheckBound:
		return true
	default:
		return false
	}
}

// IsPhi reports whether this is a Phi instruction.
func (i *Inst) IsPhi() bool { return i.kind == OpPhi }

// --- Phi ---

// NewPhi creates an empty Phi of the given type; incoming edges are
// added with AddIncoming.
func NewPhi(ty types.Type) *Inst {
	i := newInst(OpPhi, []types.Type{ty})
	i.payload = &phiPayload{}
	return i
}

// AddIncoming appends one (predecessor, value) pair. Per the Phi
// invariant (spec.md §3.4), callers must ensure the final incoming
// list is a bijection with the block's predecessors.
func (i *Inst) AddIncoming(block *Block, value Operand) {
	p := i.payload.(*phiPayload)
	p.blocks = append(p.blocks, block)
	i.AddOperand(value)
}

// Incoming returns the Phi's (predecessor, value) pairs.
func (i *Inst) Incoming() []struct {
	Block *Block
	Value Operand
} {
	p := i.payload.(*phiPayload)
	out := make([]struct {
		Block *Block
		Value Operand
	}, len(p.blocks))
	for k := range p.blocks {
		out[k].Block = p.blocks[k]
		out[k].Value = i.operands[k]
	}
	return out
}

// RemoveIncoming drops the incoming pair for the given predecessor
// block, used when a predecessor edge is removed from the CFG.
func (i *Inst) RemoveIncoming(block *Block) {
	p := i.payload.(*phiPayload)
	for k, b := range p.blocks {
		if b == block {
			old := i.operands[k]
			if list, ok := operandUseSlot(old); ok {
				removeUse(list, i, k)
			}
			p.blocks = append(p.blocks[:k], p.blocks[k+1:]...)
			i.operands = append(i.operands[:k], i.operands[k+1:]...)
			return
		}
	}
}

// --- Terminators ---

// NewJmp creates an unconditional branch to target.
func NewJmp(target *Block) *Inst {
	i := newInst(OpJmp, nil)
	i.payload = &jmpPayload{target: target}
	return i
}

// Target returns a Jmp's successor block.
func (i *Inst) Target() *Block { return i.payload.(*jmpPayload).target }

// NewJcc creates a conditional branch on the value in operand 0.
func NewJcc(cond types.ConditionCode, arg Operand, ifTrue, ifFalse *Block) *Inst {
	i := newInst(OpJcc, nil)
	i.payload = &jccPayload{cond: cond, trueTarget: ifTrue, falseTarget: ifFalse}
	i.AddOperand(arg)
	return i
}

// Cond returns the condition code of a Cmp or Jcc instruction.
func (i *Inst) Cond() types.ConditionCode {
	switch p := i.payload.(type) {
	case *cmpPayload:
		return p.cond
	case *jccPayload:
		return p.cond
	default:
		panic("ir: Cond() called on an instruction with neither a Cmp nor a Jcc payload")
	}
}

// Branches returns a Jcc's (true, false) successor blocks.
func (i *Inst) Branches() (ifTrue, ifFalse *Block) {
	p := i.payload.(*jccPayload)
	return p.trueTarget, p.falseTarget
}

// NewSwitch creates a multi-way branch on the value in operand 0.
func NewSwitch(arg Operand, cases []SwitchCase, deflt *Block) *Inst {
	i := newInst(OpSwitch, nil)
	i.payload = &switchPayload{cases: cases, deflt: deflt}
	i.AddOperand(arg)
	return i
}

// SwitchCases returns a Switch's (value, target) table and default.
func (i *Inst) SwitchCases() (cases []SwitchCase, deflt *Block) {
	p := i.payload.(*switchPayload)
	return append([]SwitchCase(nil), p.cases...), p.deflt
}

// NewRet creates a return with the given argument values.
func NewRet(args ...Operand) *Inst {
	i := newInst(OpRet, nil)
	for _, a := range args {
		i.AddOperand(a)
	}
	return i
}

// NewTrap creates an unreachable-terminator trap.
func NewTrap() *Inst { return newInst(OpTrap, nil) }

// NewRaise creates a Raise terminator (non-local exit).
func NewRaise(arg Operand) *Inst {
	i := newInst(OpRaise, nil)
	i.AddOperand(arg)
	return i
}

// --- Call sites ---

// NewCall creates a non-terminator call: operand 0 is the callee,
// the rest are arguments.
func NewCall(callee Operand, args []Operand, cc types.CallingConv, fixedArgs *int, rets []types.Type) *Inst {
	return newCallSite(OpCall, callee, args, cc, fixedArgs, rets, nil, nil)
}

// NewTailCall creates a tail call: a terminator returning no value in
// its own block. rets describes what the callee returns, which
// contributes to the caller's own return-type propagation
// (spec.md §4.6.3).
func NewTailCall(callee Operand, args []Operand, cc types.CallingConv, fixedArgs *int, rets []types.Type) *Inst {
	return newCallSite(OpTailCall, callee, args, cc, fixedArgs, rets, nil, nil)
}

// NewInvoke creates an invoke: a terminator call with a normal
// continuation and a landing-pad successor for unwinding.
func NewInvoke(callee Operand, args []Operand, cc types.CallingConv, fixedArgs *int, rets []types.Type, cont, land *Block) *Inst {
	return newCallSite(OpInvoke, callee, args, cc, fixedArgs, rets, cont, land)
}

func newCallSite(kind Opcode, callee Operand, args []Operand, cc types.CallingConv, fixedArgs *int, rets []types.Type, cont, land *Block) *Inst {
	i := newInst(kind, rets)
	i.payload = &callPayload{cc: cc, fixedArgs: fixedArgs, numArgs: len(args), cont: cont, land: land}
	i.AddOperand(callee)
	for _, a := range args {
		i.AddOperand(a)
	}
	return i
}

// Callee returns operand 0 of a call site.
func (i *Inst) Callee() Operand { return i.operands[0] }

// Args returns the argument operands of a call site (operands[1:1+n]).
func (i *Inst) Args() []Operand {
	p := i.payload.(*callPayload)
	return append([]Operand(nil), i.operands[1:1+p.numArgs]...)
}

// CallingConv returns a call site's calling convention.
func (i *Inst) CallingConv() types.CallingConv { return i.payload.(*callPayload).cc }

// FixedArgs returns the fixed (non-var-arg) argument count, if the
// call site crosses a var-arg boundary.
func (i *Inst) FixedArgs() (n int, ok bool) {
	p := i.payload.(*callPayload)
	if p.fixedArgs == nil {
		return 0, false
	}
	return *p.fixedArgs, true
}

// Continuation returns an Invoke's normal-return successor, or a
// Call's explicit continuation block if one was recorded (calls in a
// single-successor block have none and return nil).
func (i *Inst) Continuation() *Block { return i.payload.(*callPayload).cont }

// LandingPad returns an Invoke's unwind successor.
func (i *Inst) LandingPad() *Block { return i.payload.(*callPayload).land }

// --- Memory ---

// NewLoad creates a memory load from the address operand.
func NewLoad(addr Operand, ty types.Type) *Inst {
	i := newInst(OpLoad, []types.Type{ty})
	i.AddOperand(addr)
	return i
}

// NewStore creates a memory store of val to addr.
func NewStore(addr, val Operand) *Inst {
	i := newInst(OpStore, nil)
	i.AddOperand(addr)
	i.AddOperand(val)
	return i
}

// --- Frame / stack / misc ---

// NewFrame creates a reference to the address of stack object idx at
// the given byte offset within it.
func NewFrame(objectIndex int, offset int64, ty types.Type) *Inst {
	i := newInst(OpFrame, []types.Type{ty})
	i.payload = &framePayload{objectIndex: objectIndex, offset: offset}
	return i
}

// ObjectIndex returns a Frame instruction's stack object index.
func (i *Inst) ObjectIndex() int { return i.payload.(*framePayload).objectIndex }

// FrameOffset returns a Frame instruction's byte offset.
func (i *Inst) FrameOffset() int64 { return i.payload.(*framePayload).offset }

// NewAlloca creates a dynamic stack allocation of the given size and
// alignment.
func NewAlloca(size Operand, align int, ty types.Type) *Inst {
	i := newInst(OpAlloca, []types.Type{ty})
	i.payload = &framePayload{offset: int64(align)}
	i.AddOperand(size)
	return i
}

// Align returns an Alloca's alignment.
func (i *Inst) Align() int { return int(i.payload.(*framePayload).offset) }

// NewArg creates a reference to incoming parameter index idx.
func NewArg(index int, flag ArgFlag, ty types.Type) *Inst {
	i := newInst(OpArg, []types.Type{ty})
	i.payload = &argPayload{index: index, flag: flag}
	return i
}

// ArgIndex returns an Arg instruction's parameter index.
func (i *Inst) ArgIndex() int { return i.payload.(*argPayload).index }

// ArgFlagValue returns an Arg instruction's ABI flag.
func (i *Inst) ArgFlagValue() ArgFlag { return i.payload.(*argPayload).flag }

// NewMov creates a value-forwarding instruction: the result is the
// argument's value, clamped to ty by the tag analysis (spec.md
// §4.6.3, "Mov: forwards the argument's type, clamped to the result
// machine type").
func NewMov(arg Operand, ty types.Type) *Inst {
	i := newInst(OpMov, []types.Type{ty})
	i.AddOperand(arg)
	return i
}

// NewSelect creates a ternary select between two values based on a
// condition.
func NewSelect(cond, ifTrue, ifFalse Operand, ty types.Type) *Inst {
	i := newInst(OpSelect, []types.Type{ty})
	i.AddOperand(cond)
	i.AddOperand(ifTrue)
	i.AddOperand(ifFalse)
	return i
}

// NewUndef creates an undefined value of the given type, used as the
// required replacement target before erasing a still-used
// instruction (spec.md §4.1).
func NewUndef(ty types.Type) *Inst { return newInst(OpUndef, []types.Type{ty}) }

// --- Unary ---

func newUnary(kind Opcode, arg Operand, ty types.Type) *Inst {
	i := newInst(kind, []types.Type{ty})
	i.AddOperand(arg)
	return i
}

func NewNeg(arg Operand, ty types.Type) *Inst      { return newUnary(OpNeg, arg, ty) }
func NewNot(arg Operand, ty types.Type) *Inst      { return newUnary(OpNot, arg, ty) }
func NewSExt(arg Operand, ty types.Type) *Inst     { return newUnary(OpSExt, arg, ty) }
func NewZExt(arg Operand, ty types.Type) *Inst     { return newUnary(OpZExt, arg, ty) }
func NewFExt(arg Operand, ty types.Type) *Inst     { return newUnary(OpFExt, arg, ty) }
func NewTrunc(arg Operand, ty types.Type) *Inst    { return newUnary(OpTrunc, arg, ty) }
func NewFTrunc(arg Operand, ty types.Type) *Inst   { return newUnary(OpFTrunc, arg, ty) }
func NewBitCast(arg Operand, ty types.Type) *Inst  { return newUnary(OpBitCast, arg, ty) }
func NewByteSwap(arg Operand, ty types.Type) *Inst { return newUnary(OpByteSwap, arg, ty) }
func NewPopCount(arg Operand, ty types.Type) *Inst { return newUnary(OpPopCount, arg, ty) }
func NewCLZ(arg Operand, ty types.Type) *Inst      { return newUnary(OpCLZ, arg, ty) }
func NewCTZ(arg Operand, ty types.Type) *Inst      { return newUnary(OpCTZ, arg, ty) }

// Arg returns a unary or Mov instruction's single operand.
func (i *Inst) Arg() Operand { return i.operands[0] }

// --- Binary ---

func newBinary(kind Opcode, lhs, rhs Operand, ty types.Type) *Inst {
	i := newInst(kind, []types.Type{ty})
	i.AddOperand(lhs)
	i.AddOperand(rhs)
	return i
}

func NewAdd(lhs, rhs Operand, ty types.Type) *Inst  { return newBinary(OpAdd, lhs, rhs, ty) }
func NewSub(lhs, rhs Operand, ty types.Type) *Inst  { return newBinary(OpSub, lhs, rhs, ty) }
func NewMul(lhs, rhs Operand, ty types.Type) *Inst  { return newBinary(OpMul, lhs, rhs, ty) }
func NewUDiv(lhs, rhs Operand, ty types.Type) *Inst { return newBinary(OpUDiv, lhs, rhs, ty) }
func NewSDiv(lhs, rhs Operand, ty types.Type) *Inst { return newBinary(OpSDiv, lhs, rhs, ty) }
func NewURem(lhs, rhs Operand, ty types.Type) *Inst { return newBinary(OpURem, lhs, rhs, ty) }
func NewSRem(lhs, rhs Operand, ty types.Type) *Inst { return newBinary(OpSRem, lhs, rhs, ty) }
func NewAnd(lhs, rhs Operand, ty types.Type) *Inst  { return newBinary(OpAnd, lhs, rhs, ty) }
func NewOr(lhs, rhs Operand, ty types.Type) *Inst   { return newBinary(OpOr, lhs, rhs, ty) }
func NewXor(lhs, rhs Operand, ty types.Type) *Inst  { return newBinary(OpXor, lhs, rhs, ty) }
func NewShl(lhs, rhs Operand, ty types.Type) *Inst  { return newBinary(OpShl, lhs, rhs, ty) }
func NewLShr(lhs, rhs Operand, ty types.Type) *Inst { return newBinary(OpLShr, lhs, rhs, ty) }
func NewAShr(lhs, rhs Operand, ty types.Type) *Inst { return newBinary(OpAShr, lhs, rhs, ty) }
func NewRotl(lhs, rhs Operand, ty types.Type) *Inst { return newBinary(OpRotl, lhs, rhs, ty) }
func NewRotr(lhs, rhs Operand, ty types.Type) *Inst { return newBinary(OpRotr, lhs, rhs, ty) }
func NewFAdd(lhs, rhs Operand, ty types.Type) *Inst { return newBinary(OpFAdd, lhs, rhs, ty) }
func NewFSub(lhs, rhs Operand, ty types.Type) *Inst { return newBinary(OpFSub, lhs, rhs, ty) }
func NewFMul(lhs, rhs Operand, ty types.Type) *Inst { return newBinary(OpFMul, lhs, rhs, ty) }
func NewFDiv(lhs, rhs Operand, ty types.Type) *Inst { return newBinary(OpFDiv, lhs, rhs, ty) }

// NewCmp creates a comparison yielding an i8 0/1 boolean.
func NewCmp(cond types.ConditionCode, lhs, rhs Operand) *Inst {
	i := newBinary(OpCmp, lhs, rhs, types.I8)
	i.payload = &cmpPayload{cond: cond}
	return i
}

// LHS and RHS return a binary instruction's two operands.
func (i *Inst) LHS() Operand { return i.operands[0] }
func (i *Inst) RHS() Operand { return i.operands[1] }

// --- Misc runtime / calling-convention helpers ---

func NewSyscall(args []Operand, rets []types.Type) *Inst {
	i := newInst(OpSyscall, rets)
	for _, a := range args {
		i.AddOperand(a)
	}
	return i
}

func NewSetJmp(buf Operand) *Inst {
	i := newInst(OpSetJmp, []types.Type{types.I32})
	i.AddOperand(buf)
	return i
}

func NewLongJmp(buf, val Operand) *Inst {
	i := newInst(OpLongJmp, nil)
	i.AddOperand(buf)
	i.AddOperand(val)
	return i
}

func NewClone(args []Operand, ty types.Type) *Inst {
	i := newInst(OpClone, []types.Type{ty})
	for _, a := range args {
		i.AddOperand(a)
	}
	return i
}

// NewCamlAlloc allocates size bytes on the OCaml minor heap, yielding
// a Young pointer.
func NewCamlAlloc(size Operand) *Inst {
	i := newInst(OpCamlAlloc, []types.Type{types.V64})
	i.AddOperand(size)
	return i
}

// NewCamlCheckBound emits a bounds check against an OCaml array/string
// header.
func NewCamlCheckBound(ptr, idx Operand) *Inst {
	i := newInst(OpCamlCheckBound, nil)
	i.AddOperand(ptr)
	i.AddOperand(idx)
	return i
}

// NewArchIntrinsic creates an architecture-specific intrinsic call
// identified by mnemonic (e.g. "x86.rdtsc", "arm64.dmb", "ppc.sync",
// "riscv.fence").
func NewArchIntrinsic(mnemonic string, args []Operand, rets []types.Type) *Inst {
	i := newInst(OpArchIntrinsic, rets)
	i.payload = &archPayload{mnemonic: mnemonic}
	for _, a := range args {
		i.AddOperand(a)
	}
	return i
}

// Mnemonic returns an ArchIntrinsic's mnemonic.
func (i *Inst) Mnemonic() string { return i.payload.(*archPayload).mnemonic }

// NewLandingPad marks the start of an exception landing-pad block.
func NewLandingPad() *Inst { return newInst(OpLandingPad, nil) }

// NewVAStart initializes a va_list at the given address.
func NewVAStart(addr Operand) *Inst {
	i := newInst(OpVAStart, nil)
	i.AddOperand(addr)
	return i
}
