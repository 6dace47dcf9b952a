package protocol

import (
	"bytes"
	"testing"
)

func TestAppendDiffRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		prev []byte
		cur  []byte
	}{
		{
			name: "identical_word_aligned",
			prev: bytes.Repeat([]byte{0xAA}, 64),
			cur:  bytes.Repeat([]byte{0xAA}, 64),
		},
		{
			name: "all_different",
			prev: bytes.Repeat([]byte{0x00}, 32),
			cur:  []byte("abcdefghijklmnopqrstuvwxyz012345"),
		},
		{
			name: "sparse_change",
			prev: bytes.Repeat([]byte{0x11}, 128),
			cur: func() []byte {
				b := bytes.Repeat([]byte{0x11}, 128)
				b[64] = 0xFF
				return b
			}(),
		},
		{
			name: "unaligned_tail",
			prev: []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
			cur:  []byte{1, 2, 3, 4, 9, 9, 9, 9, 9, 9},
		},
		{
			name: "empty",
			prev: nil,
			cur:  nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stream := AppendDiff(nil, tc.prev, tc.cur)

			if len(stream)%8 != 0 {
				t.Fatalf("stream length %d is not a multiple of 8", len(stream))
			}
			if len(stream) < 8 {
				t.Fatalf("stream length %d: final pair must always be present", len(stream))
			}

			// Applying prev ⊕ cur onto prev must reproduce cur.
			got := make([]byte, len(tc.prev))
			copy(got, tc.prev)
			if err := ApplyDiff(got, stream); err != nil {
				t.Fatalf("ApplyDiff() error = %v", err)
			}
			want := tc.cur
			if len(want) > len(got) {
				want = want[:len(got)]
			}
			if !bytes.Equal(got, want) {
				t.Errorf("ApplyDiff() = %x, want %x", got, want)
			}
		})
	}
}

func TestAppendDiffIdenticalCompressesToOnePair(t *testing.T) {
	// 300 identical bytes are 75 u32 cells of zero XOR: one (75, 0) pair.
	buf := bytes.Repeat([]byte{0xAA}, 300)

	stream := AppendDiff(nil, buf, buf)
	if len(stream) != 8 {
		t.Fatalf("stream length = %d, want 8", len(stream))
	}
	if n := Uint32(stream); n != 75 {
		t.Errorf("run length = %d, want 75", n)
	}
	if c := Uint32(stream[4:]); c != 0 {
		t.Errorf("xor value = %#x, want 0", c)
	}
}

func TestAppendDiffEmptyEmitsZeroPair(t *testing.T) {
	stream := AppendDiff(nil, nil, nil)
	if len(stream) != 8 {
		t.Fatalf("stream length = %d, want 8", len(stream))
	}
	if n, c := Uint32(stream), Uint32(stream[4:]); n != 0 || c != 0 {
		t.Errorf("pair = (%d, %#x), want (0, 0)", n, c)
	}
}

func TestAppendDiffTailIsZeroExtended(t *testing.T) {
	// 6-byte buffers: one full cell plus a 2-byte tail cell.
	prev := []byte{0, 0, 0, 0, 0x12, 0x34}
	cur := []byte{0, 0, 0, 0, 0x56, 0x78}

	stream := AppendDiff(nil, prev, cur)

	// Cell 0 XORs to zero, the tail cell to 0x12^0x56 | (0x34^0x78)<<8.
	wantTail := uint32(0x12^0x56) | uint32(0x34^0x78)<<8
	if len(stream) != 16 {
		t.Fatalf("stream length = %d, want 16", len(stream))
	}
	if n, c := Uint32(stream), Uint32(stream[4:]); n != 1 || c != 0 {
		t.Errorf("first pair = (%d, %#x), want (1, 0)", n, c)
	}
	if n, c := Uint32(stream[8:]), Uint32(stream[12:]); n != 1 || c != wantTail {
		t.Errorf("tail pair = (%d, %#x), want (1, %#x)", n, c, wantTail)
	}

	got := make([]byte, len(prev))
	copy(got, prev)
	if err := ApplyDiff(got, stream); err != nil {
		t.Fatalf("ApplyDiff() error = %v", err)
	}
	if !bytes.Equal(got, cur) {
		t.Errorf("ApplyDiff() = %x, want %x", got, cur)
	}
}

func TestApplyDiffErrors(t *testing.T) {
	if err := ApplyDiff(make([]byte, 8), make([]byte, 12)); err != ErrOddDiffStream {
		t.Errorf("odd stream: error = %v, want ErrOddDiffStream", err)
	}

	// Two runs of one non-zero word against a one-cell destination.
	stream := AppendUint32(nil, 2)
	stream = AppendUint32(stream, 0xFF)
	if err := ApplyDiff(make([]byte, 4), stream); err != ErrDiffOverrun {
		t.Errorf("overrun: error = %v, want ErrDiffOverrun", err)
	}

	// A zero-valued run past the end is a no-op against implicit padding.
	stream = AppendUint32(nil, 3)
	stream = AppendUint32(stream, 0)
	if err := ApplyDiff(make([]byte, 4), stream); err != nil {
		t.Errorf("zero run past end: error = %v, want nil", err)
	}
}
