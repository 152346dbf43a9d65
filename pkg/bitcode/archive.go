package bitcode

import (
	"github.com/nandor-llir/llir/pkg/llerr"
)

// ReadArchive decodes a LLIR archive (spec.md §6.2) into its member
// object blobs, each suitable for a subsequent call to Read.
func ReadArchive(buf []byte) ([][]byte, error) {
	r := newReader(buf)
	magic, err := r.u32()
	if err != nil {
		return nil, err
	}
	if magic != kLLARMagic {
		return nil, llerr.New(llerr.InvalidBitcode, "bad archive magic %#x, want %#x", magic, kLLARMagic)
	}
	count, err := r.u64()
	if err != nil {
		return nil, err
	}
	type dirEntry struct {
		size, offset uint64
	}
	dir := make([]dirEntry, count)
	for i := range dir {
		size, err := r.u64()
		if err != nil {
			return nil, err
		}
		offset, err := r.u64()
		if err != nil {
			return nil, err
		}
		dir[i] = dirEntry{size: size, offset: offset}
	}
	members := make([][]byte, count)
	for i, e := range dir {
		end := e.offset + e.size
		if end > uint64(len(buf)) || e.offset > end {
			return nil, llerr.New(llerr.InvalidBitcode, "archive member %d out of bounds", i)
		}
		members[i] = buf[e.offset:end]
	}
	return members, nil
}

// WriteArchive encodes an ordered list of object blobs as a LLIR
// archive (spec.md §6.2).
func WriteArchive(members [][]byte) []byte {
	w := &writer{}
	w.u32(kLLARMagic)
	w.u64(uint64(len(members)))

	headerEnd := 4 + 8 + 16*len(members)
	offset := uint64(headerEnd)
	for _, m := range members {
		w.u64(uint64(len(m)))
		w.u64(offset)
		offset += uint64(len(m))
	}
	for _, m := range members {
		w.buf.Write(m)
	}
	return w.bytes()
}
