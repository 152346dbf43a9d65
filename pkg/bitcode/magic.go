// Package bitcode implements the binary codec that serializes a
// pkg/ir.Program to and from a position-encoded, little-endian byte
// stream, grounded on original_source/core/bitcode{,_reader,_writer}.cpp.
package bitcode

// kLLIRMagic and kLLARMagic identify a single-program bitcode file and
// an archive of bitcode programs respectively.
const (
	kLLIRMagic uint32 = 0x4c4c4952 // "LLIR" little-endian
	kLLARMagic uint32 = 0x4c4c4152 // "LLAR" little-endian
)

// ObjectMagic and ArchiveMagic are the exported forms of kLLIRMagic
// and kLLARMagic, used by pkg/linker to dispatch an input buffer to
// Read or to an archive directory scan without duplicating the
// constant (spec.md §6.1).
const (
	ObjectMagic  = kLLIRMagic
	ArchiveMagic = kLLARMagic
)

// itemKind tags one encoded Atom item (spec.md §4.4 step 6).
type itemKind uint8

const (
	itemInt8 itemKind = iota
	itemInt16
	itemInt32
	itemInt64
	itemFloat64
	itemAlign
	itemSpace
	itemString
	itemExpr
)

// refKind tags one encoded value reference (spec.md §4.4, "Value
// references").
type refKind uint8

const (
	refInst refKind = iota
	refGlobal
	refExpr
	refConst
)

// constKind tags the payload of a refConst value reference.
type constKind uint8

const (
	constInt constKind = iota
	constFloat
	constReg
)
