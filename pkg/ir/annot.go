package ir

// AnnotKind discriminates the two annotation kinds an instruction may
// carry (spec.md §3.4).
type AnnotKind uint8

const (
	AnnotCamlFrame AnnotKind = iota
	AnnotProbability
)

// DebugLoc is one link in a CamlFrame's inlined-call chain: the
// source location, file, and definition name at one inlining level.
type DebugLoc struct {
	Location string
	File     string
	Defn     string
}

// CamlFrame is a GC stack-frame descriptor: the byte offsets (from
// the frame base) of live allocation-site roots, plus the chain of
// debug-info locations the allocation was inlined through.
type CamlFrame struct {
	AllocOffsets []int64
	DebugChain   []DebugLoc
}

func (CamlFrame) implAnnot() {}
func (CamlFrame) Kind() AnnotKind { return AnnotCamlFrame }

// Probability is a branch-weight annotation expressed as a rational
// n/d, attached to terminators with more than one successor.
type Probability struct {
	N, D uint32
}

func (Probability) implAnnot() {}
func (Probability) Kind() AnnotKind { return AnnotProbability }

// Annot is the common interface of the two annotation kinds.
type Annot interface {
	implAnnot()
	Kind() AnnotKind
}

// AnnotSet is the unordered set of annotations an instruction carries;
// at most one of each kind, per the bitcode encoding of spec.md §4.4
// ("u8 annotation count, then each annotation").
type AnnotSet struct {
	entries []Annot
}

// Get returns the annotation of the given kind, if present.
func (s *AnnotSet) Get(kind AnnotKind) (Annot, bool) {
	for _, a := range s.entries {
		if a.Kind() == kind {
			return a, true
		}
	}
	return nil, false
}

// Set installs or replaces the annotation of a's kind.
func (s *AnnotSet) Set(a Annot) {
	for i, e := range s.entries {
		if e.Kind() == a.Kind() {
			s.entries[i] = a
			return
		}
	}
	s.entries = append(s.entries, a)
}

// Clear removes the annotation of the given kind, if present.
func (s *AnnotSet) Clear(kind AnnotKind) {
	for i, e := range s.entries {
		if e.Kind() == kind {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return
		}
	}
}

// All returns the annotations in insertion order, used by the
// bitcode writer to emit a deterministic sequence.
func (s *AnnotSet) All() []Annot {
	return append([]Annot(nil), s.entries...)
}
