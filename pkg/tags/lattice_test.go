package tags

import "testing"

func TestLessOrdering(t *testing.T) {
	tests := []struct {
		name string
		a, b TaggedType
		want bool
	}{
		{"unknown below everything", Of(Unknown), Of(Ptr), true},
		{"heap below val", Of(Heap), Of(Val), true},
		{"heap below ptr", Of(Heap), Of(Ptr), true},
		{"young below heap", Of(Young), Of(Heap), true},
		{"ptr below ptrint", Of(Ptr), Of(PtrInt), true},
		{"addr below addrint", Of(Addr), Of(AddrInt), true},
		{"addr below ptr", Of(Addr), Of(Ptr), true},
		{"ptr not below addr", Of(Ptr), Of(Addr), false},
		{"val not below heap", Of(Val), Of(Heap), false},
		{"equal kinds not less", Of(Ptr), Of(Ptr), false},
		{
			"narrower int mask below wider",
			Int(MaskedType{Value: 1, Known: 0xFF}),
			Int(MaskedType{Value: 0, Known: 0}),
			true,
		},
		{
			"wider int mask not below narrower",
			Int(MaskedType{Value: 0, Known: 0}),
			Int(MaskedType{Value: 1, Known: 0xFF}),
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Less(tt.a, tt.b); got != tt.want {
				t.Errorf("Less(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestJoinIntMasks(t *testing.T) {
	// spec.md §4.6 scenario 4: two phi inputs Int({0},{0xFF}) and
	// Int({1},{0xFF}) converge to Int({?},{0xFE}) — every bit but the
	// low one stays known, and the low bit becomes unknown since the
	// two inputs disagree on it.
	a := Int(MaskedType{Value: 0, Known: 0xFF})
	b := Int(MaskedType{Value: 1, Known: 0xFF})
	got := Join(a, b)
	if got.Kind != IntKind {
		t.Fatalf("Join kind = %v, want IntKind", got.Kind)
	}
	if got.Mask.Known != 0xFE {
		t.Errorf("Join(...).Mask.Known = %#x, want 0xFE", got.Mask.Known)
	}
}

func TestJoinAcrossDAG(t *testing.T) {
	// Join of two kinds ordered by the DAG returns the more general
	// one.
	got := Join(Of(Heap), Of(Young))
	if got.Kind != Heap {
		t.Errorf("Join(Heap, Young) = %v, want Heap (Young < Heap)", got.Kind)
	}

	got = Join(Of(Ptr), Of(Addr))
	if got.Kind != Ptr {
		t.Errorf("Join(Ptr, Addr) = %v, want Ptr (Addr < Ptr)", got.Kind)
	}
}

func TestJoinUnknownIsIdentity(t *testing.T) {
	if got := Join(Of(Unknown), Of(Ptr)); got.Kind != Ptr {
		t.Errorf("Join(Unknown, Ptr) = %v, want Ptr", got.Kind)
	}
}

func TestClampToMachineForcesValOutsideValDomain(t *testing.T) {
	// A v64 destination can never legally hold a raw-pointer kind;
	// clamping folds it down to Val, the tagged-word ceiling.
	got := ClampToMachine(Of(Ptr), true)
	if got.Kind != Val {
		t.Errorf("ClampToMachine(Ptr, true) = %v, want Val", got.Kind)
	}
	// Within the Val domain nothing changes, even for a v64 destination.
	if got := ClampToMachine(Of(Heap), true); got.Kind != Heap {
		t.Errorf("ClampToMachine(Heap, true) = %v, want Heap unchanged", got.Kind)
	}
	// A non-v64 destination is never clamped, regardless of kind.
	if got := ClampToMachine(Of(Ptr), false); got.Kind != Ptr {
		t.Errorf("ClampToMachine(Ptr, false) = %v, want Ptr unchanged", got.Kind)
	}
}

func TestMaskArithmetic(t *testing.T) {
	// add: trailing known bits propagate only as far as the first
	// unknown bit in either operand.
	sum := addMask(MaskedType{Value: 0, Known: 0b11}, MaskedType{Value: 0, Known: 0b1})
	if sum.Known&0b1 == 0 {
		t.Errorf("addMask known low bit lost: %+v", sum)
	}

	and := andMask(MaskedType{Value: 0b10, Known: 0b11}, MaskedType{Value: 0b11, Known: 0b11})
	if and.Value != 0b10 || and.Known != 0b11 {
		t.Errorf("andMask = %+v, want {Value:0b10 Known:0b11}", and)
	}
}

func TestClearsPage(t *testing.T) {
	upper := MaskedType{Value: 0, Known: ^uint64(1<<12 - 1)}
	if !clearsPage(upper) {
		t.Errorf("clearsPage(%+v) = false, want true (upper 52 bits known zero)", upper)
	}
	if clearsPage(MaskedType{}) {
		t.Error("clearsPage(all-unknown) = true, want false")
	}
}
