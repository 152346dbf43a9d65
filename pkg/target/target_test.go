package target

import "testing"

func TestParseKnownArchitectures(t *testing.T) {
	cases := []struct {
		triple string
		kind   Kind
	}{
		{"x86_64-unknown-linux-gnu", X86_64},
		{"aarch64-unknown-linux-gnu", AArch64},
		{"powerpc64le-unknown-linux-gnu", PowerPC},
		{"riscv64-unknown-linux-gnu", RISCV},
	}
	for _, c := range cases {
		tgt, err := Parse(c.triple)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.triple, err)
		}
		if tgt.Kind != c.kind {
			t.Errorf("Parse(%q).Kind = %s, want %s", c.triple, tgt.Kind, c.kind)
		}
		if tgt.PointerWidth != 64 {
			t.Errorf("Parse(%q).PointerWidth = %d, want 64", c.triple, tgt.PointerWidth)
		}
	}
}

func TestParseUnknownArchitecture(t *testing.T) {
	if _, err := Parse("sparc64-unknown-linux-gnu"); err == nil {
		t.Fatal("expected error for unsupported architecture")
	}
}

func TestAllowsUnalignedStores(t *testing.T) {
	x86, _ := Parse("x86_64-unknown-linux-gnu")
	if !x86.AllowsUnalignedStores() {
		t.Error("x86-64 should allow unaligned stores")
	}
	arm, _ := Parse("aarch64-unknown-linux-gnu")
	if arm.AllowsUnalignedStores() {
		t.Error("aarch64 should not allow unaligned stores")
	}
}
