package tags

import "github.com/nandor-llir/llir/pkg/ir"

// domInfo holds a function's dominator and post-dominator trees, used
// by backward refinement to place split points (spec.md §4.6.3,
// "Backward refinement").
type domInfo struct {
	rpo       []*ir.Block
	rpoIndex  map[*ir.Block]int
	idom      map[*ir.Block]*ir.Block
	postIdom  map[*ir.Block]*ir.Block
}

// buildDomInfo computes both trees with the standard iterative
// Cooper/Harvey/Kennedy algorithm over Func's existing
// ReversePostOrder, grounded on the same "iterate to a fixed point
// over a worklist" idiom the forward/backward analysis queues use.
func buildDomInfo(fn *ir.Func) *domInfo {
	rpo := fn.ReversePostOrder()
	idx := make(map[*ir.Block]int, len(rpo))
	for i, b := range rpo {
		idx[b] = i
	}
	d := &domInfo{rpo: rpo, rpoIndex: idx}
	d.idom = computeIdom(rpo, idx, func(b *ir.Block) []*ir.Block { return b.Predecessors() })

	// Post-dominance runs the same fixed point over the reversed CFG,
	// seeded from every block with no successor (the function's exits)
	// treated as a single virtual root ordered first.
	var exits []*ir.Block
	for _, b := range rpo {
		if len(b.Successors()) == 0 {
			exits = append(exits, b)
		}
	}
	revOrder := reversePostOrderFromExits(exits, func(b *ir.Block) []*ir.Block { return b.Predecessors() })
	revIdx := make(map[*ir.Block]int, len(revOrder))
	for i, b := range revOrder {
		revIdx[b] = i
	}
	d.postIdom = computeIdomMultiRoot(revOrder, revIdx, func(b *ir.Block) []*ir.Block { return b.Successors() }, exits)
	return d
}

// reversePostOrderFromExits computes a reverse-post-order walk of the
// CFG starting from a set of root blocks and following pred (the
// "successors" function relative to the desired walk direction).
func reversePostOrderFromExits(roots []*ir.Block, succ func(*ir.Block) []*ir.Block) []*ir.Block {
	visited := make(map[*ir.Block]bool)
	var order []*ir.Block
	var visit func(*ir.Block)
	visit = func(b *ir.Block) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range succ(b) {
			visit(s)
		}
		order = append(order, b)
	}
	for _, r := range roots {
		visit(r)
	}
	// Reverse post-order: flip the post-order walk above.
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// computeIdom runs the standard single-root iterative dominator
// algorithm: rpo[0] is the entry and its own dominator.
func computeIdom(rpo []*ir.Block, idx map[*ir.Block]int, preds func(*ir.Block) []*ir.Block) map[*ir.Block]*ir.Block {
	if len(rpo) == 0 {
		return map[*ir.Block]*ir.Block{}
	}
	idom := make(map[*ir.Block]*ir.Block, len(rpo))
	entry := rpo[0]
	idom[entry] = entry
	changed := true
	for changed {
		changed = false
		for _, b := range rpo[1:] {
			var newIdom *ir.Block
			for _, p := range preds(b) {
				if idom[p] == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
					continue
				}
				newIdom = intersect(newIdom, p, idx, idom)
			}
			if newIdom != nil && idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}
	return idom
}

// computeIdomMultiRoot is computeIdom generalized to several roots
// (the function's exit blocks, for the post-dominator tree), which
// all act as their own dominator. A block whose reverse-CFG
// predecessors lie under different roots has no common dominator but
// the virtual root and becomes a root of its own.
func computeIdomMultiRoot(order []*ir.Block, idx map[*ir.Block]int, preds func(*ir.Block) []*ir.Block, roots []*ir.Block) map[*ir.Block]*ir.Block {
	idom := make(map[*ir.Block]*ir.Block, len(order))
	for _, r := range roots {
		idom[r] = r
	}
	changed := true
	for changed {
		changed = false
		for _, b := range order {
			if idom[b] == b {
				continue
			}
			var newIdom *ir.Block
			for _, p := range preds(b) {
				if idom[p] == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
					continue
				}
				ra, rp := newIdom, p
				for idom[ra] != ra {
					ra = idom[ra]
				}
				for idom[rp] != rp {
					rp = idom[rp]
				}
				if ra != rp {
					// Only the virtual root is common to both: b hangs
					// directly off it, like an exit.
					newIdom = b
					break
				}
				newIdom = intersect(newIdom, p, idx, idom)
			}
			if newIdom != nil && idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}
	return idom
}

func intersect(a, b *ir.Block, idx map[*ir.Block]int, idom map[*ir.Block]*ir.Block) *ir.Block {
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

// dominates reports whether a dominates b (inclusive of a == b).
func (d *domInfo) dominates(a, b *ir.Block) bool {
	for cur := b; cur != nil; cur = d.idom[cur] {
		if cur == a {
			return true
		}
		if d.idom[cur] == cur {
			break
		}
	}
	return a == b
}

// postDominates reports whether a post-dominates b (inclusive of
// a == b): every path from b to a function exit passes through a.
func (d *domInfo) postDominates(a, b *ir.Block) bool {
	for cur := b; cur != nil; cur = d.postIdom[cur] {
		if cur == a {
			return true
		}
		if d.postIdom[cur] == cur {
			break
		}
	}
	return a == b
}
