package ir

import (
	"github.com/nandor-llir/llir/pkg/llerr"
)

// Verify checks a Program against the structural invariants of
// spec.md §8 ("Invariants (universal)") and returns every violation
// found rather than aborting on the first one, so a caller (llir
// verify) can report them all in one pass.
func Verify(prog *Program) []*llerr.Error {
	var errs []*llerr.Error

	errs = append(errs, verifyUniqueNames(prog)...)

	defs := make(map[*Inst]bool)
	for _, fn := range prog.Funcs() {
		for _, b := range fn.Blocks() {
			for _, inst := range b.Insts() {
				defs[inst] = true
			}
		}
	}
	globals := make(map[Global]bool)
	for _, g := range prog.Globals() {
		globals[g] = true
	}

	for _, fn := range prog.Funcs() {
		errs = append(errs, verifyNoDangling(fn, defs, globals)...)
		errs = append(errs, verifyOperandDominance(fn)...)
		errs = append(errs, verifyPhiPredecessorBijection(fn)...)
	}
	return errs
}

func verifyUniqueNames(prog *Program) []*llerr.Error {
	var errs []*llerr.Error
	seen := make(map[string]int)
	for _, g := range prog.Globals() {
		seen[g.Name()]++
	}
	for name, count := range seen {
		if count > 1 {
			errs = append(errs, llerr.New(llerr.InternalInvariant,
				"global name %q is used by %d globals, want exactly one", name, count))
		}
	}
	return errs
}

func verifyNoDangling(fn *Func, defs map[*Inst]bool, globals map[Global]bool) []*llerr.Error {
	var errs []*llerr.Error
	for _, b := range fn.Blocks() {
		for _, inst := range b.Insts() {
			for idx, op := range inst.Operands() {
				switch o := op.(type) {
				case InstRef:
					if !defs[o.Def] {
						errs = append(errs, llerr.In(llerr.InternalInvariant, fn.Name(), b.Name(),
							"operand %d of %s refers to a definition not present in the program", idx, inst.Kind()))
					}
				case GlobalRef:
					if !globals[o.Global] {
						errs = append(errs, llerr.In(llerr.InternalInvariant, fn.Name(), b.Name(),
							"operand %d of %s refers to a global not present in the program", idx, inst.Kind()))
					}
				case ExprRef:
					if !globals[o.Expr.Symbol] {
						errs = append(errs, llerr.In(llerr.InternalInvariant, fn.Name(), b.Name(),
							"operand %d of %s refers to an expression over a global not present in the program", idx, inst.Kind()))
					}
				}
			}
		}
	}
	return errs
}

// verifyOperandDominance checks that for every non-phi instruction i,
// every InstRef operand's Def either lives in a block dominating i's
// block, or lives in the same block strictly before i.
func verifyOperandDominance(fn *Func) []*llerr.Error {
	var errs []*llerr.Error
	idom := computeIdom(fn)
	index := blockInstIndex(fn)

	for _, b := range fn.Blocks() {
		for instIdx, inst := range b.Insts() {
			if inst.IsPhi() {
				continue
			}
			for idx, op := range inst.Operands() {
				ref, ok := op.(InstRef)
				if !ok {
					continue
				}
				defBlock := ref.Def.Parent()
				if defBlock == b {
					if index[ref.Def] >= instIdx {
						errs = append(errs, llerr.In(llerr.InternalInvariant, fn.Name(), b.Name(),
							"operand %d of %s does not precede its use in the same block", idx, inst.Kind()))
					}
					continue
				}
				if !dominates(idom, defBlock, b) {
					errs = append(errs, llerr.In(llerr.InternalInvariant, fn.Name(), b.Name(),
						"operand %d of %s is defined in a block that does not dominate the use", idx, inst.Kind()))
				}
			}
		}
	}
	return errs
}

func verifyPhiPredecessorBijection(fn *Func) []*llerr.Error {
	var errs []*llerr.Error
	for _, b := range fn.Blocks() {
		preds := make(map[*Block]int)
		for _, p := range b.Predecessors() {
			preds[p]++
		}
		for _, inst := range b.Insts() {
			if !inst.IsPhi() {
				continue
			}
			incoming := make(map[*Block]int)
			for _, pair := range inst.Incoming() {
				incoming[pair.Block]++
			}
			if len(incoming) != len(preds) {
				errs = append(errs, llerr.In(llerr.InternalInvariant, fn.Name(), b.Name(),
					"phi incoming pairs do not form a bijection with the block's predecessors"))
				continue
			}
			for p, n := range preds {
				if incoming[p] != n {
					errs = append(errs, llerr.In(llerr.InternalInvariant, fn.Name(), b.Name(),
						"phi incoming pairs do not form a bijection with the block's predecessors"))
					break
				}
			}
		}
	}
	return errs
}

func blockInstIndex(fn *Func) map[*Inst]int {
	index := make(map[*Inst]int)
	for _, b := range fn.Blocks() {
		for i, inst := range b.Insts() {
			index[inst] = i
		}
	}
	return index
}

// computeIdom runs the standard iterative dominator algorithm over
// fn's existing reverse-post-order, the same Cooper/Harvey/Kennedy
// idiom pkg/tags's dom.go uses for its own (unexported, analysis-
// internal) dominator tree; this copy is scoped to forward dominance
// only, which is all the structural invariant below needs.
func computeIdom(fn *Func) map[*Block]*Block {
	rpo := fn.ReversePostOrder()
	if len(rpo) == 0 {
		return map[*Block]*Block{}
	}
	idx := make(map[*Block]int, len(rpo))
	for i, b := range rpo {
		idx[b] = i
	}
	idom := make(map[*Block]*Block, len(rpo))
	entry := rpo[0]
	idom[entry] = entry
	changed := true
	for changed {
		changed = false
		for _, b := range rpo[1:] {
			var newIdom *Block
			for _, p := range b.Predecessors() {
				if idom[p] == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
					continue
				}
				newIdom = intersectIdom(newIdom, p, idx, idom)
			}
			if newIdom != nil && idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}
	return idom
}

func intersectIdom(a, b *Block, idx map[*Block]int, idom map[*Block]*Block) *Block {
	for a != b {
		for idx[a] > idx[b] {
			a = idom[a]
		}
		for idx[b] > idx[a] {
			b = idom[b]
		}
	}
	return a
}

func dominates(idom map[*Block]*Block, a, b *Block) bool {
	for cur := b; cur != nil; cur = idom[cur] {
		if cur == a {
			return true
		}
		if idom[cur] == cur {
			break
		}
	}
	return a == b
}
