package tags

import "fmt"

// MaskedType tracks per-bit knowledge of an integer value: Known has a
// 1 bit wherever the corresponding bit of Value is certain (spec.md
// §4.6.2). Bits where Known is 0 are undetermined and Value's bit
// there carries no meaning.
type MaskedType struct {
	Value uint64
	Known uint64
}

func (m MaskedType) String() string {
	return fmt.Sprintf("%#x/%#x", m.Value&m.Known, m.Known)
}

// FullyKnown builds a MaskedType whose every bit is certain, equal to
// v.
func FullyKnown(v uint64) MaskedType { return MaskedType{Value: v, Known: ^uint64(0)} }

// joinMask merges two MaskedTypes to the bits they agree on, the
// lattice join used when two incoming Int values disagree (spec.md
// §8 scenario 4).
func joinMask(a, b MaskedType) MaskedType {
	agree := a.Known & b.Known & ^(a.Value ^ b.Value)
	return MaskedType{Value: a.Value & agree, Known: agree}
}

// addMask computes a+b's known bits: value is the ordinary sum, known
// bits are every trailing bit up to (not including) the first
// position where either operand is unknown (spec.md §4.6.2).
func addMask(a, b MaskedType) MaskedType {
	value := a.Value + b.Value
	unknown := ^a.Known | ^b.Known
	return MaskedType{Value: value, Known: trailingKnown(unknown)}
}

// trailingKnown returns a mask of the bits strictly below the lowest
// set bit of unknown (all bits known if unknown is 0).
func trailingKnown(unknown uint64) uint64 {
	if unknown == 0 {
		return ^uint64(0)
	}
	lowest := unknown & -unknown
	return lowest - 1
}

// subMask computes a-b via a + ~b + 1, reusing addMask's known-bits
// propagation (spec.md §4.6.2).
func subMask(a, b MaskedType) MaskedType {
	notB := MaskedType{Value: ^b.Value, Known: b.Known}
	sum := addMask(a, notB)
	return addMask(sum, FullyKnown(1))
}

func andMask(a, b MaskedType) MaskedType {
	// A bit is known 0 if either side is known 0; known 1 if both
	// sides are known 1; otherwise unknown.
	knownZero := (a.Known &^ a.Value) | (b.Known &^ b.Value)
	knownOne := a.Known & a.Value & b.Known & b.Value
	return MaskedType{Value: knownOne, Known: knownZero | knownOne}
}

func orMask(a, b MaskedType) MaskedType {
	knownOne := (a.Known & a.Value) | (b.Known & b.Value)
	knownZero := a.Known &^ a.Value & b.Known &^ b.Value
	return MaskedType{Value: knownOne, Known: knownOne | knownZero}
}

func xorMask(a, b MaskedType) MaskedType {
	known := a.Known & b.Known
	return MaskedType{Value: (a.Value ^ b.Value) & known, Known: known}
}

func notMask(a MaskedType) MaskedType {
	return MaskedType{Value: ^a.Value & a.Known, Known: a.Known}
}

// clearsPage reports whether m "clears the page": at least one bit of
// the upper 52 bits is known zero, meaning a value masked by m cannot
// retain an arbitrary page-aligned pointer's high bits and is treated
// as a plain integer rather than a pointer (spec.md §4.6.2).
func clearsPage(m MaskedType) bool {
	const upper52 = ^uint64(1<<12 - 1)
	knownZeroUpper := m.Known &^ m.Value & upper52
	return knownZeroUpper != 0
}
