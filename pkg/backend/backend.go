// Package backend is an example external consumer of the read-only
// visitor interface spec.md §6.4 grants back-ends: it profiles the
// opcode mix of a function instead of lowering it to machine code,
// the step a real instruction-selection back-end takes before picking
// a lowering strategy. It touches pkg/ir only through Func/Block/Inst
// getters and the Visitor/Dispatch machinery, never through an
// unexported field.
package backend

import (
	"fmt"
	"io"

	"github.com/nandor-llir/llir/pkg/ir"
)

// Profile is a per-function histogram of the dispatch categories
// ir.Dispatch recognizes. A real back-end would branch on the same
// categories to choose a lowering for each instruction; this one
// just counts them.
type Profile struct {
	Terminators int
	CallSites   int
	Phis        int
	Memory      int
	Unary       int
	Binary      int
	Other       int
}

// Total returns the number of instructions the profile was built
// from.
func (p Profile) Total() int {
	return p.Terminators + p.CallSites + p.Phis + p.Memory + p.Unary + p.Binary + p.Other
}

// profiler implements ir.Visitor by embedding BaseVisitor and
// overriding every method that has its own counter; VisitInst is the
// generic fallback for everything ir.Dispatch doesn't classify more
// specifically (spec.md §4.2's "default case propagates to a generic
// visit(Inst) hook").
type profiler struct {
	ir.BaseVisitor
	profile *Profile
}

func (v *profiler) VisitTerminator(i *ir.Inst) { v.profile.Terminators++ }
func (v *profiler) VisitCallSite(i *ir.Inst)   { v.profile.CallSites++ }
func (v *profiler) VisitPhi(i *ir.Inst)        { v.profile.Phis++ }
func (v *profiler) VisitMemory(i *ir.Inst)     { v.profile.Memory++ }
func (v *profiler) VisitUnary(i *ir.Inst)      { v.profile.Unary++ }
func (v *profiler) VisitBinary(i *ir.Inst)     { v.profile.Binary++ }
func (v *profiler) VisitInst(i *ir.Inst)       { v.profile.Other++ }

// ProfileFunc walks every instruction of fn through the Visitor
// interface via ir.Dispatch and returns its opcode histogram.
func ProfileFunc(fn *ir.Func) Profile {
	var p Profile
	v := &profiler{profile: &p}
	for _, b := range fn.Blocks() {
		for _, inst := range b.Insts() {
			ir.Dispatch(v, inst)
		}
	}
	return p
}

// ProfileProgram profiles every function of prog, keyed by name.
func ProfileProgram(prog *ir.Program) map[string]Profile {
	out := make(map[string]Profile, len(prog.Funcs()))
	for _, fn := range prog.Funcs() {
		out[fn.Name()] = ProfileFunc(fn)
	}
	return out
}

// Printer writes one profile line per function, the same
// PrintProgram/PrintFunc-per-container-level shape ir.Printer uses
// for the textual dump, reporting an opcode mix instead.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a new profile printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintProgram writes one profile line per function of prog, in
// program order.
func (p *Printer) PrintProgram(prog *ir.Program) {
	for _, fn := range prog.Funcs() {
		p.PrintFunc(fn)
	}
}

// PrintFunc writes fn's profile as a single line.
func (p *Printer) PrintFunc(fn *ir.Func) {
	prof := ProfileFunc(fn)
	fmt.Fprintf(p.w, "%s: %d insts (term=%d call=%d phi=%d mem=%d unary=%d binary=%d other=%d)\n",
		fn.Name(), prof.Total(),
		prof.Terminators, prof.CallSites, prof.Phis, prof.Memory, prof.Unary, prof.Binary, prof.Other)
}
