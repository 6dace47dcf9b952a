package protocol

import "encoding/binary"

// WordSize is the granularity of the diff encoding. Payloads are padded to a
// multiple of this size.
const WordSize = 4

// Outer frame types.
const (
	OuterFull uint32 = 0 // body is the aggregate itself
	OuterDiff uint32 = 1 // body is an XOR/RLE stream against the previous aggregate
)

// Inner (per-request) payload types.
const (
	InnerFull uint32 = 0 // payload is the padded getter bytes
	InnerDiff uint32 = 1 // payload is an XOR/RLE stream against the previous payload
)

// AppendUint32 appends v in little-endian byte order.
func AppendUint32(dst []byte, v uint32) []byte {
	return append(dst, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// AppendInt32 appends v in little-endian byte order.
func AppendInt32(dst []byte, v int32) []byte {
	return AppendUint32(dst, uint32(v))
}

// Uint32 reads a little-endian u32 from the start of b.
func Uint32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

// PaddedSize returns n rounded up to a multiple of WordSize.
func PaddedSize(n int) int {
	return (n + WordSize - 1) &^ (WordSize - 1)
}

// AppendPadding appends zero bytes until len(dst) grows by the padding needed
// to bring n up to a WordSize boundary.
func AppendPadding(dst []byte, n int) []byte {
	for i := n; i%WordSize != 0; i++ {
		dst = append(dst, 0)
	}
	return dst
}

// word reads the u32 cell at byte offset off, zero-extending a tail shorter
// than WordSize.
func word(b []byte, off int) uint32 {
	if off+WordSize <= len(b) {
		return binary.LittleEndian.Uint32(b[off:])
	}
	var w [WordSize]byte
	if off < len(b) {
		copy(w[:], b[off:])
	}
	return binary.LittleEndian.Uint32(w[:])
}

// xorWord XORs c into the u32 cell at byte offset off, preserving a tail
// shorter than WordSize.
func xorWord(b []byte, off int, c uint32) {
	if off+WordSize <= len(b) {
		binary.LittleEndian.PutUint32(b[off:], binary.LittleEndian.Uint32(b[off:])^c)
		return
	}
	var w [WordSize]byte
	copy(w[:], b[off:])
	binary.LittleEndian.PutUint32(w[:], binary.LittleEndian.Uint32(w[:])^c)
	copy(b[off:], w[:])
}
