package protocol

import "errors"

// Frame decoding errors.
var (
	ErrShortFrame     = errors.New("protocol: frame shorter than outer type")
	ErrTruncatedFrame = errors.New("protocol: frame truncated mid-request")
	ErrNoAggregate    = errors.New("protocol: outer diff without a previous aggregate")
	ErrUnknownRequest = errors.New("protocol: inner diff for a request never seen in full")
)

// Decoder inverts the two-level diff encoding of server frames. It is the Go
// counterpart of the browser-side script: it keeps the last full aggregate to
// undo outer diffs and a per-request byte buffer to undo inner diffs.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	last []byte
	vars map[uint32][]byte
}

// NewDecoder returns an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{vars: make(map[uint32][]byte)}
}

// Apply consumes one server frame and updates the per-request buffers.
func (d *Decoder) Apply(frame []byte) error {
	if len(frame) < WordSize {
		return ErrShortFrame
	}

	var agg []byte
	switch Uint32(frame) {
	case OuterDiff:
		if d.last == nil {
			return ErrNoAggregate
		}
		agg = make([]byte, len(d.last))
		copy(agg, d.last)
		if err := ApplyDiff(agg[WordSize:], frame[WordSize:]); err != nil {
			return err
		}
	default:
		agg = make([]byte, len(frame))
		copy(agg, frame)
	}

	off := WordSize
	for off < len(agg) {
		if len(agg)-off < 3*WordSize {
			return ErrTruncatedFrame
		}
		id := Uint32(agg[off:])
		inner := Uint32(agg[off+WordSize:])
		size := int(Uint32(agg[off+2*WordSize:]))
		off += 3 * WordSize
		if size < 0 || len(agg)-off < size {
			return ErrTruncatedFrame
		}
		payload := agg[off : off+size]
		off += size

		switch inner {
		case InnerDiff:
			buf, ok := d.vars[id]
			if !ok {
				return ErrUnknownRequest
			}
			if err := ApplyDiff(buf, payload); err != nil {
				return err
			}
		default:
			buf := make([]byte, size)
			copy(buf, payload)
			d.vars[id] = buf
		}
	}

	d.last = agg
	return nil
}

// Var returns the current buffer for a request id, or nil if the id has not
// been decoded yet. The returned slice aliases decoder state and is only
// valid until the next Apply.
func (d *Decoder) Var(id uint32) []byte {
	return d.vars[id]
}

// Vars returns the set of request ids with decoded buffers.
func (d *Decoder) Vars() []uint32 {
	ids := make([]uint32, 0, len(d.vars))
	for id := range d.vars {
		ids = append(ids, id)
	}
	return ids
}
