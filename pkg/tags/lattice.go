// Package tags implements the type-and-tag abstract-interpretation
// analysis of spec.md §4.6: a lattice distinguishing plain integers
// from OCaml-tagged values, heap pointers, and raw addresses, computed
// to a fixed point over a Program's instructions.
package tags

import "fmt"

// Kind names one state of the TaggedType lattice (spec.md §4.6.1).
type Kind uint8

const (
	// Unknown is the lattice bottom: no information yet.
	Unknown Kind = iota
	// Undef marks a value fed by an Undef instruction.
	Undef
	// IntKind holds a MaskedType payload describing known/unknown bits.
	IntKind
	// Val is an OCaml tagged value: either an odd immediate or a heap
	// pointer, indistinguishable without further refinement.
	Val
	// Heap is any pointer into the managed heap.
	Heap
	// Young is a pointer into the minor heap (a Heap refinement).
	Young
	// HeapOff is a Heap pointer offset by a statically unknown amount.
	HeapOff
	// Ptr is a non-GC raw pointer.
	Ptr
	// PtrInt is a value that may be a Ptr or a plain integer.
	PtrInt
	// PtrNull is a Ptr that may additionally be null.
	PtrNull
	// Addr is a raw address narrower than Ptr's guarantees.
	Addr
	// AddrInt is an Addr that may additionally be a plain integer.
	AddrInt
	// AddrNull is an Addr that may additionally be null.
	AddrNull
)

func (k Kind) String() string {
	switch k {
	case Unknown:
		return "unknown"
	case Undef:
		return "undef"
	case IntKind:
		return "int"
	case Val:
		return "val"
	case Heap:
		return "heap"
	case Young:
		return "young"
	case HeapOff:
		return "heap_off"
	case Ptr:
		return "ptr"
	case PtrInt:
		return "ptr_int"
	case PtrNull:
		return "ptr_null"
	case Addr:
		return "addr"
	case AddrInt:
		return "addr_int"
	case AddrNull:
		return "addr_null"
	default:
		return "<invalid-kind>"
	}
}

// TaggedType is one lattice element: a Kind, plus a MaskedType payload
// when Kind is IntKind.
type TaggedType struct {
	Kind Kind
	Mask MaskedType
}

func (t TaggedType) String() string {
	if t.Kind == IntKind {
		return fmt.Sprintf("int(%s)", t.Mask)
	}
	return t.Kind.String()
}

// Int builds an IntKind TaggedType carrying m.
func Int(m MaskedType) TaggedType { return TaggedType{Kind: IntKind, Mask: m} }

// Of builds a non-Int TaggedType from a bare Kind.
func Of(k Kind) TaggedType { return TaggedType{Kind: k} }

// edges is the explicit "strictly more general than" DAG from
// spec.md §4.6.1; a < b when b is reachable from a.
var edges = map[Kind][]Kind{
	Heap: {Val, HeapOff, Ptr, PtrNull, PtrInt, Addr, AddrNull, AddrInt},
	Young: {Heap, Val, Ptr, PtrInt},
	Ptr:   {PtrInt, PtrNull},
	Addr:  {Ptr, PtrInt, AddrInt},
}

// reachable returns every Kind strictly above k in the DAG (not
// including k itself), memoized per process since the DAG is static.
var reachableCache = map[Kind]map[Kind]bool{}

func reachable(k Kind) map[Kind]bool {
	if r, ok := reachableCache[k]; ok {
		return r
	}
	seen := make(map[Kind]bool)
	var visit func(Kind)
	visit = func(cur Kind) {
		for _, next := range edges[cur] {
			if !seen[next] {
				seen[next] = true
				visit(next)
			}
		}
	}
	visit(k)
	reachableCache[k] = seen
	return seen
}

// Less reports whether a is strictly more specific ("less general")
// than b in the partial order of spec.md §4.6.1.
func Less(a, b TaggedType) bool {
	if a.Kind == Unknown && b.Kind != Unknown {
		return true
	}
	if a.Kind == b.Kind {
		if a.Kind == IntKind {
			return maskLess(a.Mask, b.Mask)
		}
		return false
	}
	return reachable(a.Kind)[b.Kind]
}

// maskLess reports whether m1 is strictly more precise than m2: m2's
// known bits are a subset of m1's and they agree on shared bits, and
// m1 != m2 (spec.md §4.6.1, "Int(m1) < Int(m2)").
func maskLess(m1, m2 MaskedType) bool {
	if m1 == m2 {
		return false
	}
	if m2.Known&^m1.Known != 0 {
		return false
	}
	shared := m1.Known & m2.Known
	return m1.Value&shared == m2.Value&shared
}

// Join computes the least upper bound of a and b. When neither
// dominates the other and no common ancestor is named by the DAG, the
// join falls back to PtrInt when either side carries integer
// information and to Val otherwise — a deliberate widening rather
// than an attempt to enumerate every unnamed pairwise case in
// spec.md's "selected rows" table.
func Join(a, b TaggedType) TaggedType {
	if a.Kind == Unknown {
		return b
	}
	if b.Kind == Unknown {
		return a
	}
	if a.Kind == b.Kind {
		if a.Kind == IntKind {
			return Int(joinMask(a.Mask, b.Mask))
		}
		return a
	}
	if Less(a, b) {
		return b
	}
	if Less(b, a) {
		return a
	}
	if a.Kind == IntKind || b.Kind == IntKind {
		return Of(PtrInt)
	}
	return Of(Val)
}

// valDomain holds every Kind a v64-typed (OCaml-tagged) value can
// coherently hold: an odd immediate or a managed heap pointer and its
// refinements. Anything outside it (raw addresses, pointer-or-int
// ambiguity) is meaningless for a boxed word and gets folded to Val.
var valDomain = map[Kind]bool{
	Unknown: true, Undef: true, IntKind: true, Val: true, Heap: true, Young: true,
}

// ClampToMachine applies spec.md §4.6.1's rule that every v64-typed
// value is cast to Val or below at each assignment: a computed type
// outside the domain a boxed word can hold is narrowed to Val when
// the destination's machine type is v64.
func ClampToMachine(t TaggedType, isV64 bool) TaggedType {
	if !isV64 || valDomain[t.Kind] {
		return t
	}
	return Of(Val)
}
