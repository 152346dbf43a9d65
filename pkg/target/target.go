// Package target wraps the handful of target-triple-derived facts the
// IR, bitcode codec, and tag analysis need: pointer width, the
// architecture kind, and the CPU/feature/ABI strings a Func may
// override per-function. It is not an instruction-selection or
// code-emission package; those remain external per spec.md §1.
package target

import (
	"fmt"
	"strings"
)

// Kind identifies one of the four architectures the wider project
// lowers to. This core never emits code for them; it only needs to
// know pointer width and a couple of ABI defaults.
type Kind uint8

const (
	X86_64 Kind = iota
	AArch64
	PowerPC
	RISCV
)

func (k Kind) String() string {
	switch k {
	case X86_64:
		return "x86_64"
	case AArch64:
		return "aarch64"
	case PowerPC:
		return "ppc64"
	case RISCV:
		return "riscv64"
	default:
		return "<invalid-target>"
	}
}

// Target holds the facts derived from a target triple that the core
// needs. All four supported architectures are 64-bit, and ppc64
// defaults to the ELFv2 ABI; PointerWidth is kept as an explicit field
// rather than hardcoded so a 32-bit future triple needs no structural
// change.
type Target struct {
	Kind         Kind
	Triple       string
	CPU          string
	TuneCPU      string
	Features     string
	ABI          string
	PointerWidth int
	Shared       bool
}

// Parse resolves a target triple string (e.g. "x86_64-unknown-linux-gnu")
// to a Target with default CPU/feature/ABI strings. CPU, TuneCPU,
// Features, and ABI may be overridden afterwards by a Func's own
// strings (spec.md §3.3, Func fields).
func Parse(triple string) (*Target, error) {
	arch, _, _ := strings.Cut(triple, "-")
	switch arch {
	case "x86_64", "amd64":
		return &Target{Kind: X86_64, Triple: triple, PointerWidth: 64}, nil
	case "aarch64", "arm64":
		return &Target{Kind: AArch64, Triple: triple, PointerWidth: 64}, nil
	case "powerpc64", "powerpc64le", "ppc64", "ppc64le":
		return &Target{Kind: PowerPC, Triple: triple, PointerWidth: 64, ABI: "elfv2"}, nil
	case "riscv64":
		return &Target{Kind: RISCV, Triple: triple, PointerWidth: 64}, nil
	default:
		return nil, fmt.Errorf("target: unsupported architecture %q in triple %q", arch, triple)
	}
}

// IsLittleEndian reports whether the target uses little-endian byte
// order. All four supported architectures do in their LLIR-relevant
// configurations.
func (t *Target) IsLittleEndian() bool { return true }

// AllowsUnalignedStores reports whether the target tolerates
// unaligned memory stores without faulting. Only x86-64 does among
// the four supported architectures.
func (t *Target) AllowsUnalignedStores() bool {
	return t.Kind == X86_64
}
