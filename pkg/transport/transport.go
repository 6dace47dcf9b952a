// Package transport carries the inspection engine's traffic.
//
// The engine is written against the small capability set below; the concrete
// implementation in this package speaks WebSocket (gorilla/websocket) behind
// a chi router that also serves the embedded decoder script and the
// registered static resources. All engine callbacks are delivered on a single
// event-loop goroutine, so the engine never needs locks around per-client
// state.
package transport

// Conn is one client connection.
type Conn interface {
	// ID returns the stable connection id assigned at accept time.
	ID() int32

	// RemoteAddr4 returns the low four bytes of the remote address.
	RemoteAddr4() [4]byte

	// Send queues an outbound message. It returns false when the message
	// increased backpressure (a backlog was already pending or the outbound
	// queue is saturated). Callers may warn but must not retry.
	Send(data []byte, binary, compress bool) bool

	// BufferedAmount reports the number of queued-but-unwritten bytes.
	BufferedAmount() int64

	// Close tears the connection down. Safe to call more than once.
	Close()
}

// Handler receives connection events. Every method is invoked on the
// transport's event-loop goroutine.
type Handler interface {
	HandleOpen(c Conn)
	HandleMessage(c Conn, data []byte, binary bool)
	HandleDrain(c Conn)
	HandleClose(c Conn, code int, reason string)
}

// Transport is the engine-facing surface of the network layer.
type Transport interface {
	// Run starts the event loop and the listener and blocks until Stop.
	Run(h Handler) error

	// Defer schedules fn on the event-loop goroutine. Safe from any thread.
	Defer(fn func())

	// SetResource registers an in-memory static resource, taking precedence
	// over the configured HTTP root. Safe from any thread.
	SetResource(url string, body []byte)

	// Stop shuts the listener down and drains the loop. Safe from any thread.
	Stop()
}
