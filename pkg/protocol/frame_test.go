package protocol

import (
	"bytes"
	"testing"
)

// appendRequest appends a full (inner type 0) request encoding with padding.
func appendRequest(dst []byte, id uint32, payload []byte) []byte {
	dst = AppendUint32(dst, id)
	dst = AppendUint32(dst, InnerFull)
	dst = AppendUint32(dst, uint32(PaddedSize(len(payload))))
	dst = append(dst, payload...)
	return AppendPadding(dst, len(payload))
}

func TestDecoderFullFrame(t *testing.T) {
	frame := AppendUint32(nil, OuterFull)
	frame = appendRequest(frame, 7, []byte{1, 0, 0, 0})
	frame = appendRequest(frame, 9, []byte("abc"))

	d := NewDecoder()
	if err := d.Apply(frame); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if got := d.Var(7); !bytes.Equal(got, []byte{1, 0, 0, 0}) {
		t.Errorf("var 7 = %x, want 01000000", got)
	}
	// 3-byte payload arrives zero-padded to 4.
	if got := d.Var(9); !bytes.Equal(got, []byte{'a', 'b', 'c', 0}) {
		t.Errorf("var 9 = %x, want 61626300", got)
	}
	if got := d.Var(42); got != nil {
		t.Errorf("var 42 = %x, want nil", got)
	}
}

func TestDecoderInnerDiff(t *testing.T) {
	prev := bytes.Repeat([]byte{0xAA}, 300)
	cur := bytes.Repeat([]byte{0xAA}, 300)
	cur[0] = 0xAB

	frame := AppendUint32(nil, OuterFull)
	frame = appendRequest(frame, 3, prev)

	d := NewDecoder()
	if err := d.Apply(frame); err != nil {
		t.Fatalf("Apply(full) error = %v", err)
	}

	stream := AppendDiff(nil, prev, cur)
	frame2 := AppendUint32(nil, OuterFull)
	frame2 = AppendUint32(frame2, 3)
	frame2 = AppendUint32(frame2, InnerDiff)
	frame2 = AppendUint32(frame2, uint32(len(stream)))
	frame2 = append(frame2, stream...)

	if err := d.Apply(frame2); err != nil {
		t.Fatalf("Apply(diff) error = %v", err)
	}
	if got := d.Var(3); !bytes.Equal(got, cur) {
		t.Errorf("var 3 mismatch after inner diff")
	}
}

func TestDecoderOuterDiff(t *testing.T) {
	payload1 := bytes.Repeat([]byte{0x10}, 280)
	payload2 := bytes.Repeat([]byte{0x10}, 280)
	payload2[100] = 0x20

	frame1 := AppendUint32(nil, OuterFull)
	frame1 = appendRequest(frame1, 5, payload1)

	frame2full := AppendUint32(nil, OuterFull)
	frame2full = appendRequest(frame2full, 5, payload2)

	// Encode the second frame as an outer diff of the first.
	diff := AppendUint32(nil, OuterDiff)
	diff = AppendDiff(diff, frame1[WordSize:], frame2full[WordSize:])

	d := NewDecoder()
	if err := d.Apply(frame1); err != nil {
		t.Fatalf("Apply(frame1) error = %v", err)
	}
	if err := d.Apply(diff); err != nil {
		t.Fatalf("Apply(outer diff) error = %v", err)
	}
	if got := d.Var(5); !bytes.Equal(got, payload2) {
		t.Errorf("var 5 mismatch after outer diff")
	}
}

func TestDecoderErrors(t *testing.T) {
	d := NewDecoder()

	if err := d.Apply([]byte{1, 2}); err != ErrShortFrame {
		t.Errorf("short frame: error = %v, want ErrShortFrame", err)
	}

	// Outer diff before any full aggregate.
	diff := AppendUint32(nil, OuterDiff)
	diff = AppendUint32(diff, 0)
	diff = AppendUint32(diff, 0)
	if err := d.Apply(diff); err != ErrNoAggregate {
		t.Errorf("diff-first: error = %v, want ErrNoAggregate", err)
	}

	// Payload size running past the frame.
	frame := AppendUint32(nil, OuterFull)
	frame = AppendUint32(frame, 1)
	frame = AppendUint32(frame, InnerFull)
	frame = AppendUint32(frame, 64)
	if err := d.Apply(frame); err != ErrTruncatedFrame {
		t.Errorf("truncated: error = %v, want ErrTruncatedFrame", err)
	}

	// Inner diff for a request the decoder has never seen in full.
	stream := AppendDiff(nil, nil, nil)
	frame = AppendUint32(nil, OuterFull)
	frame = AppendUint32(frame, 77)
	frame = AppendUint32(frame, InnerDiff)
	frame = AppendUint32(frame, uint32(len(stream)))
	frame = append(frame, stream...)
	if err := d.Apply(frame); err != ErrUnknownRequest {
		t.Errorf("unknown request: error = %v, want ErrUnknownRequest", err)
	}
}
