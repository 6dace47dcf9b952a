package server

import (
	"sort"

	"github.com/incppect/incppect-go/pkg/transport"
)

// request is one client-chosen subscription: a getter plus index arguments,
// with the timestamps that gate its encoding.
type request struct {
	getterID int
	idxs     []int32

	tLastUpdatedMs   int64 // when this request was last encoded; -1 initially
	tLastRequestedMs int64 // last activate/refresh from the client; -1 initially
	tMinUpdateMs     int64 // minimum spacing between encodings
	tTimeoutMs       int64 // staleness cutoff; negative = forever once activated

	// prev is the last encoded payload, zero-padded to a multiple of 4 so a
	// same-length payload can take the diff path on the next tick.
	prev []byte
}

// client is the per-connection state. It is owned by the event-loop
// goroutine; nothing here is shared across threads.
type client struct {
	id   int32
	conn transport.Conn

	tConnectedMs int64
	addr         [4]byte

	// lastActive is the request-id vector from the client's last activate
	// message, re-armed in place by refresh messages.
	lastActive []int32

	requests map[int32]*request

	// Reusable frame-assembly buffers: the aggregate being built, the
	// previous aggregate, the outer-diff scratch, and the inner-diff
	// scratch. Only the encoder mutates them, for the duration of one tick.
	cur     []byte
	prev    []byte
	diff    []byte
	scratch []byte

	// reqOrder is scratch for the per-tick sorted request-id walk.
	reqOrder []int32
}

func newClient(id int32, conn transport.Conn, nowMs int64) *client {
	return &client{
		id:           id,
		conn:         conn,
		tConnectedMs: nowMs,
		addr:         conn.RemoteAddr4(),
		requests:     make(map[int32]*request),
	}
}

// sortedRequestIDs returns the request ids in ascending order. The iteration
// order must be stable across ticks to keep the outer diff aligned.
func (c *client) sortedRequestIDs() []int32 {
	ids := c.reqOrder[:0]
	for id := range c.requests {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	c.reqOrder = ids
	return ids
}
