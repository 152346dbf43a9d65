package bitcode

import (
	"bytes"
	"testing"

	"github.com/nandor-llir/llir/pkg/ir"
)

func TestArchiveRoundTrip(t *testing.T) {
	a, err := Write(ir.NewProgram("a"))
	if err != nil {
		t.Fatalf("Write(a) error = %v", err)
	}
	b, err := Write(ir.NewProgram("b"))
	if err != nil {
		t.Fatalf("Write(b) error = %v", err)
	}

	archive := WriteArchive([][]byte{a, b})
	members, err := ReadArchive(archive)
	if err != nil {
		t.Fatalf("ReadArchive() error = %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("len(members) = %d, want 2", len(members))
	}
	if !bytes.Equal(members[0], a) {
		t.Errorf("members[0] != a's encoding")
	}
	if !bytes.Equal(members[1], b) {
		t.Errorf("members[1] != b's encoding")
	}

	progA, err := Read(members[0])
	if err != nil {
		t.Fatalf("Read(members[0]) error = %v", err)
	}
	if progA.Name() != "a" {
		t.Errorf("progA.Name() = %q, want %q", progA.Name(), "a")
	}
}

func TestReadArchiveRejectsBadMagic(t *testing.T) {
	_, err := ReadArchive([]byte{0, 0, 0, 0})
	if err == nil {
		t.Fatal("expected ReadArchive() on a bad magic prefix to fail")
	}
}
