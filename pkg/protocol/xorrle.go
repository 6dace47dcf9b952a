package protocol

import "errors"

// XOR/RLE errors.
var (
	ErrOddDiffStream = errors.New("protocol: diff stream length not a multiple of 8")
	ErrDiffOverrun   = errors.New("protocol: diff stream writes past destination")
)

// AppendDiff appends the XOR/RLE stream of prev ⊕ cur to dst and returns the
// extended slice. Both buffers are processed as u32 cells; a tail shorter than
// WordSize is zero-extended and processed as one more cell. The stream always
// ends with a (runLength, xorValue) pair, even when the run length is zero.
//
// prev and cur are normally the same length; whichever is shorter is treated
// as zero-extended.
func AppendDiff(dst, prev, cur []byte) []byte {
	var c, n uint32

	size := len(cur)
	if len(prev) > size {
		size = len(prev)
	}
	cells := (size + WordSize - 1) / WordSize

	for i := 0; i < cells; i++ {
		off := i * WordSize
		a := word(prev, off) ^ word(cur, off)
		if a == c {
			n++
			continue
		}
		if n > 0 {
			dst = AppendUint32(dst, n)
			dst = AppendUint32(dst, c)
		}
		n, c = 1, a
	}

	dst = AppendUint32(dst, n)
	return AppendUint32(dst, c)
}

// ApplyDiff XORs an XOR/RLE stream into dst in place. The destination cursor
// advances one u32 cell per run element; a tail cell shorter than WordSize is
// handled byte-wise. Runs that would advance past the end of dst fail with
// ErrDiffOverrun (a zero-valued run against the implicit zero tail is allowed,
// since XOR with the padding is a no-op).
func ApplyDiff(dst, stream []byte) error {
	if len(stream)%(2*WordSize) != 0 {
		return ErrOddDiffStream
	}

	cells := (len(dst) + WordSize - 1) / WordSize
	k := 0
	for i := 0; i < len(stream); i += 2 * WordSize {
		n := Uint32(stream[i:])
		c := Uint32(stream[i+WordSize:])
		for j := uint32(0); j < n; j++ {
			if k >= cells {
				if c == 0 {
					k++
					continue
				}
				return ErrDiffOverrun
			}
			xorWord(dst, k*WordSize, c)
			k++
		}
	}
	return nil
}
