package types

import "testing"

func TestTypeString(t *testing.T) {
	cases := []struct {
		ty   Type
		want string
	}{
		{I8, "i8"},
		{I64, "i64"},
		{V64, "v64"},
		{F128, "f128"},
	}
	for _, c := range cases {
		if got := c.ty.String(); got != c.want {
			t.Errorf("Type(%d).String() = %q, want %q", c.ty, got, c.want)
		}
	}
}

func TestTypeSizeInBits(t *testing.T) {
	cases := []struct {
		ty   Type
		bits int
	}{
		{I8, 8},
		{I32, 32},
		{V64, 64},
		{F32, 32},
		{F128, 128},
	}
	for _, c := range cases {
		if got := c.ty.SizeInBits(); got != c.bits {
			t.Errorf("%s.SizeInBits() = %d, want %d", c.ty, got, c.bits)
		}
	}
}

func TestVisibilityPredicates(t *testing.T) {
	if !WeakDefault.IsWeak() || !WeakHidden.IsWeak() {
		t.Error("expected both weak visibilities to report IsWeak")
	}
	if GlobalDefault.IsWeak() {
		t.Error("GlobalDefault must not be weak")
	}
	if !Local.IsLocal() {
		t.Error("Local must report IsLocal")
	}
	if Local.IsExported() {
		t.Error("Local must not be exported")
	}
	for _, v := range []Visibility{GlobalDefault, GlobalHidden, WeakDefault, WeakHidden} {
		if !v.IsExported() {
			t.Errorf("%s expected to be exported", v)
		}
	}
}

func TestCallingConvIsCaml(t *testing.T) {
	for _, c := range []CallingConv{CC_Caml, CC_CamlAlloc, CC_CamlGC} {
		if !c.IsCaml() {
			t.Errorf("%s expected IsCaml", c)
		}
	}
	if CC_C.IsCaml() {
		t.Error("CC_C must not be Caml")
	}
}

func TestConditionCodeNegateInvolution(t *testing.T) {
	all := []ConditionCode{CondEQ, CondNE, CondLT, CondLE, CondGT, CondGE, CondULT, CondULE, CondUGT, CondUGE, CondO, CondNO}
	for _, c := range all {
		if got := c.Negate().Negate(); got != c {
			t.Errorf("Negate(Negate(%s)) = %s, want %s", c, got, c)
		}
		if c.Negate() == c {
			t.Errorf("Negate(%s) should differ from itself", c)
		}
	}
}
