package ir

import "github.com/nandor-llir/llir/pkg/types"

// Constant is an immediate operand: an integer, a float, or a named
// physical register (used to pin a value to e.g. the stack pointer
// register in architecture-specific sequences). Constants never
// appear in a use-chain: they carry no identity beyond their value.
type Constant interface {
	implConstant()
	// Type is the scalar type the constant is materialized as.
	Type() types.Type
}

// IntConst is a sign-agnostic integer immediate.
type IntConst struct {
	Ty    types.Type
	Value int64
}

func (IntConst) implConstant()        {}
func (c IntConst) Type() types.Type   { return c.Ty }

// FloatConst is a floating-point immediate, always stored at f64
// precision and narrowed by the consumer; the analysis in pkg/tags
// never folds floating-point constants (spec.md Non-goals).
type FloatConst struct {
	Ty    types.Type
	Value float64
}

func (FloatConst) implConstant()      {}
func (c FloatConst) Type() types.Type { return c.Ty }

// RegKind names a fixed physical register a RegConst pins an operand
// to, independent of the target architecture's own register file
// (e.g. the frame-pointer-relative "current exception handler"
// register in the Caml calling convention).
type RegKind uint8

const (
	RegSP RegKind = iota
	RegFP
	RegReturnAddr
	RegCamlExnHandler
	RegCamlYoung
)

// RegConst pins an operand to a fixed physical register by role
// rather than by value; used for prologue/epilogue and calling
// convention sequences.
type RegConst struct {
	Kind RegKind
	Ty   types.Type
}

func (RegConst) implConstant()        {}
func (c RegConst) Type() types.Type   { return c.Ty }

// SymExpr is a symbol-offset expression: the address of a Global plus
// a constant byte offset. It is its own operand kind (EXPR in the
// bitcode tagging of spec.md §4.4), distinct from a bare GlobalRef,
// because the offset must round-trip precisely.
type SymExpr struct {
	Symbol Global
	Offset int64
}
