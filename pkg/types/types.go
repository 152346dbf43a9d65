// Package types defines the scalar machine types, calling conventions,
// visibilities, and condition codes shared across the IR, the bitcode
// codec, the linker, and the type/tag analysis.
package types

// Type is a scalar machine type. Pointer width is resolved separately
// from a target triple (see pkg/target) rather than being its own Type.
type Type uint8

const (
	I8 Type = iota
	I16
	I32
	I64
	I128
	// V64 is a tagged 64-bit word whose dynamic value is a
	// garbage-collected OCaml value.
	V64
	F32
	F64
	F80
	F128
)

func (t Type) String() string {
	switch t {
	case I8:
		return "i8"
	case I16:
		return "i16"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case I128:
		return "i128"
	case V64:
		return "v64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case F80:
		return "f80"
	case F128:
		return "f128"
	default:
		return "<invalid-type>"
	}
}

// IsInteger reports whether t is one of the integer scalar types,
// including v64 (which carries either a tagged integer or a pointer).
func (t Type) IsInteger() bool {
	switch t {
	case I8, I16, I32, I64, I128, V64:
		return true
	default:
		return false
	}
}

// IsFloat reports whether t is one of the floating-point scalar types.
func (t Type) IsFloat() bool {
	switch t {
	case F32, F64, F80, F128:
		return true
	default:
		return false
	}
}

// SizeInBits returns the storage size of t, independent of target
// pointer width (v64 is always a 64-bit word regardless of target).
func (t Type) SizeInBits() int {
	switch t {
	case I8:
		return 8
	case I16:
		return 16
	case I32, F32:
		return 32
	case I64, V64, F64:
		return 64
	case F80:
		return 80
	case I128, F128:
		return 128
	default:
		return 0
	}
}

// Visibility controls whether a Global's definition may be overridden
// or merged by the linker, and whether it is exported from the final
// program.
type Visibility uint8

const (
	Local Visibility = iota
	GlobalDefault
	GlobalHidden
	WeakDefault
	WeakHidden
)

func (v Visibility) String() string {
	switch v {
	case Local:
		return "local"
	case GlobalDefault:
		return "global"
	case GlobalHidden:
		return "hidden"
	case WeakDefault:
		return "weak"
	case WeakHidden:
		return "weak hidden"
	default:
		return "<invalid-visibility>"
	}
}

// IsWeak reports whether v is one of the two weak visibilities.
func (v Visibility) IsWeak() bool {
	return v == WeakDefault || v == WeakHidden
}

// IsLocal reports whether v restricts a Global to the defining module.
func (v Visibility) IsLocal() bool {
	return v == Local
}

// IsExported reports whether v is visible outside the defining module.
func (v Visibility) IsExported() bool {
	return v == GlobalDefault || v == GlobalHidden || v == WeakDefault || v == WeakHidden
}

// CallingConv identifies the argument/return/callee-save contract a
// Func or call-site instruction follows.
type CallingConv uint8

const (
	// CC_C is the platform C calling convention.
	CC_C CallingConv = iota
	// CC_Caml is OCaml's native calling convention: the first two
	// integer parameters are reserved for the exception handler
	// pointer and the young (minor-heap allocation) pointer.
	CC_Caml
	// CC_CamlAlloc marks allocation-helper stubs within the Caml
	// runtime, which additionally clobber no caller-saved registers.
	CC_CamlAlloc
	// CC_CamlGC marks GC entry points, called with every live root
	// spilled to the stack per the frame descriptor.
	CC_CamlGC
	// CC_Setjmp follows the setjmp/longjmp register-preservation
	// contract.
	CC_Setjmp
)

func (c CallingConv) String() string {
	switch c {
	case CC_C:
		return "c"
	case CC_Caml:
		return "caml"
	case CC_CamlAlloc:
		return "caml_alloc"
	case CC_CamlGC:
		return "caml_gc"
	case CC_Setjmp:
		return "setjmp"
	default:
		return "<invalid-callingconv>"
	}
}

// IsCaml reports whether c is one of the OCaml-runtime calling
// conventions. pkg/tags seeds parameters 0 and 1 specially only for
// CC_Caml itself.
func (c CallingConv) IsCaml() bool {
	switch c {
	case CC_Caml, CC_CamlAlloc, CC_CamlGC:
		return true
	default:
		return false
	}
}

// ConditionCode is the comparison predicate carried by Cmp and
// conditional-branch instructions.
type ConditionCode uint8

const (
	CondEQ ConditionCode = iota
	CondNE
	CondLT
	CondLE
	CondGT
	CondGE
	CondULT
	CondULE
	CondUGT
	CondUGE
	CondO  // overflow
	CondNO // no overflow
)

func (c ConditionCode) String() string {
	switch c {
	case CondEQ:
		return "eq"
	case CondNE:
		return "ne"
	case CondLT:
		return "lt"
	case CondLE:
		return "le"
	case CondGT:
		return "gt"
	case CondGE:
		return "ge"
	case CondULT:
		return "ult"
	case CondULE:
		return "ule"
	case CondUGT:
		return "ugt"
	case CondUGE:
		return "uge"
	case CondO:
		return "o"
	case CondNO:
		return "no"
	default:
		return "<invalid-cond>"
	}
}

// Negate returns the condition code that is true exactly when c is
// false.
func (c ConditionCode) Negate() ConditionCode {
	switch c {
	case CondEQ:
		return CondNE
	case CondNE:
		return CondEQ
	case CondLT:
		return CondGE
	case CondLE:
		return CondGT
	case CondGT:
		return CondLE
	case CondGE:
		return CondLT
	case CondULT:
		return CondUGE
	case CondULE:
		return CondUGT
	case CondUGT:
		return CondULE
	case CondUGE:
		return CondULT
	case CondO:
		return CondNO
	case CondNO:
		return CondO
	default:
		return c
	}
}

// XtorKind distinguishes a constructor from a destructor record.
type XtorKind uint8

const (
	Ctor XtorKind = iota
	Dtor
)

func (k XtorKind) String() string {
	if k == Ctor {
		return "ctor"
	}
	return "dtor"
}
