package incppect

import (
	"encoding/binary"
	"math"
)

// View helpers materialize fixed-width values as little-endian byte views for
// getters. The returned slices are small owned arrays; the encoder copies
// them into its own buffers within the same tick, so a getter may build one
// per call without aliasing hazards.

// ViewInt8 returns v as a 1-byte view.
func ViewInt8(v int8) []byte {
	return []byte{byte(v)}
}

// ViewInt16 returns v as a 2-byte little-endian view.
func ViewInt16(v int16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(v))
	return b
}

// ViewInt32 returns v as a 4-byte little-endian view.
func ViewInt32(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

// ViewInt64 returns v as an 8-byte little-endian view.
func ViewInt64(v int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}

// ViewUint32 returns v as a 4-byte little-endian view.
func ViewUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// ViewUint64 returns v as an 8-byte little-endian view.
func ViewUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// ViewFloat32 returns v in IEEE 754 little-endian form.
func ViewFloat32(v float32) []byte {
	return ViewUint32(math.Float32bits(v))
}

// ViewFloat64 returns v in IEEE 754 little-endian form.
func ViewFloat64(v float64) []byte {
	return ViewUint64(math.Float64bits(v))
}

// ViewString returns the bytes of s.
func ViewString(s string) []byte {
	return []byte(s)
}

// ViewBytes passes b through unchanged.
func ViewBytes(b []byte) []byte {
	return b
}
