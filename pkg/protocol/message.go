package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies a client -> server control message.
type Kind uint32

const (
	KindRegister Kind = 1 // text path catalog
	KindActivate Kind = 2 // new active request set
	KindRefresh  Kind = 3 // re-arm previous active set
	KindCustom   Kind = 4 // application-opaque bytes
)

// String returns the string representation of the message kind.
func (k Kind) String() string {
	switch k {
	case KindRegister:
		return "Register"
	case KindActivate:
		return "Activate"
	case KindRefresh:
		return "Refresh"
	case KindCustom:
		return "Custom"
	default:
		return "Unknown"
	}
}

// Control message errors.
var (
	ErrShortMessage   = errors.New("protocol: message shorter than kind prefix")
	ErrSizeMismatch   = errors.New("protocol: activate body is not a whole number of ids")
	ErrTruncatedGroup = errors.New("protocol: register group truncated")
)

// SplitMessage separates the kind prefix from the message body.
func SplitMessage(msg []byte) (Kind, []byte, error) {
	if len(msg) < WordSize {
		return 0, nil, ErrShortMessage
	}
	return Kind(Uint32(msg)), msg[WordSize:], nil
}

// RegisterEntry is one group of a register message: a concrete path bound to
// a client-chosen request id.
type RegisterEntry struct {
	Path      string
	RequestID int32
	Idxs      []int32
}

// ParseRegister parses the whitespace-separated text body of a register
// message. Groups are "path reqID nIdx idx...". A truncated or malformed
// trailing group returns the complete leading entries together with
// ErrTruncatedGroup so the caller can apply what did arrive intact.
//
// Index substitution (-1 -> client id) is the receiver's job, not the
// parser's.
func ParseRegister(body []byte) ([]RegisterEntry, error) {
	fields := strings.Fields(string(body))

	var entries []RegisterEntry
	for i := 0; i < len(fields); {
		path := fields[i]
		i++
		if len(fields)-i < 2 {
			return entries, ErrTruncatedGroup
		}

		reqID, err := parseI32(fields[i])
		if err != nil {
			return entries, fmt.Errorf("%w: request id %q", ErrTruncatedGroup, fields[i])
		}
		i++

		nIdx, err := parseI32(fields[i])
		if err != nil || nIdx < 0 {
			return entries, fmt.Errorf("%w: index count %q", ErrTruncatedGroup, fields[i])
		}
		i++

		if len(fields)-i < int(nIdx) {
			return entries, ErrTruncatedGroup
		}
		var idxs []int32
		for j := int32(0); j < nIdx; j++ {
			idx, err := parseI32(fields[i])
			if err != nil {
				return entries, fmt.Errorf("%w: index %q", ErrTruncatedGroup, fields[i])
			}
			idxs = append(idxs, idx)
			i++
		}

		entries = append(entries, RegisterEntry{Path: path, RequestID: reqID, Idxs: idxs})
	}
	return entries, nil
}

func parseI32(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	return int32(v), err
}

// ParseActivate parses the body of an activate message: a packed vector of
// little-endian request ids.
func ParseActivate(body []byte) ([]int32, error) {
	if len(body)%WordSize != 0 {
		return nil, ErrSizeMismatch
	}
	ids := make([]int32, 0, len(body)/WordSize)
	for off := 0; off < len(body); off += WordSize {
		ids = append(ids, int32(Uint32(body[off:])))
	}
	return ids, nil
}

// AppendRegister appends an encoded register message for entries.
func AppendRegister(dst []byte, entries []RegisterEntry) []byte {
	dst = AppendUint32(dst, uint32(KindRegister))
	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "%s %d %d", e.Path, e.RequestID, len(e.Idxs))
		for _, idx := range e.Idxs {
			fmt.Fprintf(&sb, " %d", idx)
		}
		sb.WriteByte(' ')
	}
	return append(dst, sb.String()...)
}

// AppendActivate appends an encoded activate message for ids.
func AppendActivate(dst []byte, ids []int32) []byte {
	dst = AppendUint32(dst, uint32(KindActivate))
	for _, id := range ids {
		dst = AppendInt32(dst, id)
	}
	return dst
}

// AppendRefresh appends an encoded refresh message.
func AppendRefresh(dst []byte) []byte {
	return AppendUint32(dst, uint32(KindRefresh))
}

// AppendCustom appends an encoded custom message carrying body verbatim.
func AppendCustom(dst, body []byte) []byte {
	dst = AppendUint32(dst, uint32(KindCustom))
	return append(dst, body...)
}
