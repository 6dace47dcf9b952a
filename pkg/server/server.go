// Package server implements the per-connection subscription engine and its
// differential snapshot/encode loop.
//
// A single event-loop goroutine (owned by the transport) runs every callback
// here, so per-client state is single-writer by construction. Application
// getters are invoked synchronously on that goroutine during a tick; the
// application mutates the backing values from its own threads and accepts
// torn reads, which the encoder treats as ordinary snapshots.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sort"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	clientdist "github.com/incppect/incppect-go/client/dist"
	"github.com/incppect/incppect-go/pkg/protocol"
	"github.com/incppect/incppect-go/pkg/registry"
	"github.com/incppect/incppect-go/pkg/transport"
)

// EventType identifies an application-visible client event.
type EventType uint8

const (
	Connect EventType = iota
	Disconnect
	Custom
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case Connect:
		return "Connect"
	case Disconnect:
		return "Disconnect"
	case Custom:
		return "Custom"
	default:
		return "Unknown"
	}
}

// Handler observes client lifecycle and custom messages. Connect carries the
// client's 4-byte address, Disconnect an empty body, Custom the verbatim
// message body.
type Handler func(clientID int32, event EventType, data []byte)

// deferrer schedules work on the event-loop goroutine.
type deferrer interface {
	Defer(fn func())
}

// Server is the inspection engine: variable registry, per-client state, the
// subscription state machine, and the snapshot/encode loop.
type Server struct {
	params  Parameters
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer

	registry *registry.Registry
	handler  Handler

	// Loop-owned state. Only the event-loop goroutine touches these.
	clients     map[int32]*client
	order       []int32 // connected client ids, ascending
	txTotal     float64
	rxTotal     float64
	pendingTick bool
	stopping    bool

	// pendingResources buffers SetResource calls made before Run.
	pendingResources map[string][]byte

	transport transport.Transport
	loop      deferrer

	nConnected atomic.Int32

	// now is the tick timestamp source, overridable in tests.
	now func() int64
}

// New creates a Server with an empty registry plus the built-in telemetry
// paths.
func New() *Server {
	s := &Server{
		registry:         registry.New(),
		clients:          make(map[int32]*client),
		pendingResources: make(map[string][]byte),
		now:              timestampMs,
	}
	s.registerBuiltins()
	return s
}

// Var binds a path template to a getter. Templates may contain %d
// placeholders consumed by the index vector of a request:
//
//	srv.Var("var_int32", func([]int32) []byte { ... })
//	srv.Var("grid[%d].cell[%d]", func(idxs []int32) []byte { ... idxs[0], idxs[1] ... })
//
// The registry is read by the encode loop; register everything before Run.
func (s *Server) Var(path string, getter registry.Getter) bool {
	return s.registry.Register(path, getter)
}

// SetHandler installs the application event handler.
func (s *Server) SetHandler(h Handler) {
	s.handler = h
}

// SetResource registers an in-memory static resource, taking precedence over
// the HTTP root.
func (s *Server) SetResource(url string, body []byte) {
	if s.transport != nil {
		s.transport.SetResource(url, body)
		return
	}
	s.pendingResources[url] = body
}

// NumConnected returns the number of connected clients. Safe from any thread.
func (s *Server) NumConnected() int {
	return int(s.nConnected.Load())
}

// Run starts the server and blocks until Stop. The transport failing to
// construct (bad TLS material, unreachable resource root) is the only fatal
// startup condition.
func (s *Server) Run(params Parameters) error {
	s.configure(params)

	tr := transport.New(transport.Config{
		Addr:           fmt.Sprintf(":%d", s.params.Port),
		MaxPayload:     s.params.MaxPayload,
		IdleTimeout:    s.params.IdleTimeout,
		HTTPRoot:       s.params.HTTPRoot,
		Resources:      s.params.Resources,
		Script:         clientdist.IncppectJS,
		MetricsHandler: s.metricsHandler(),
		SSL:            s.params.SSL,
		SSLKey:         s.params.SSLKey,
		SSLCert:        s.params.SSLCert,
		Logger:         s.params.Logger,
	})
	for url, body := range s.pendingResources {
		tr.SetResource(url, body)
	}
	s.transport = tr
	s.loop = tr

	s.logger.Info("running instance",
		"port", s.params.Port,
		"http_root", s.params.HTTPRoot,
		"ssl", s.params.SSL)

	return tr.Run(s)
}

// RunAsync starts the server in a background goroutine and returns the
// channel Run's result is delivered on.
func (s *Server) RunAsync(params Parameters) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(params) }()
	return errCh
}

// Stop shuts the server down: each client connection is closed on the event
// loop, then the listener. Safe from any thread.
func (s *Server) Stop() {
	if s.transport == nil {
		return
	}
	s.loop.Defer(func() {
		s.stopping = true
		for _, c := range s.clients {
			c.conn.Close()
		}
	})
	s.transport.Stop()
}

// configure applies parameters and builds the ambient pieces. Split from Run
// so tests can drive the engine against a fake transport.
func (s *Server) configure(params Parameters) {
	s.params = params.withDefaults()
	s.logger = s.params.Logger.With("component", "incppect")
	s.metrics = newMetrics()
	if s.params.EnableTracing {
		s.tracer = otel.Tracer("incppect")
	}
}

func (s *Server) metricsHandler() http.Handler {
	if !s.params.EnableMetrics {
		return nil
	}
	return s.metrics.Handler()
}

// registerBuiltins exposes server self-telemetry as ordinary variables. The
// getters run on the event-loop goroutine during a tick, so reading
// loop-owned state is safe.
func (s *Server) registerBuiltins() {
	s.Var("incppect.nclients", func([]int32) []byte {
		return leInt32(int32(len(s.clients)))
	})
	s.Var("incppect.tx_total", func([]int32) []byte {
		return leFloat64(s.txTotal)
	})
	s.Var("incppect.rx_total", func([]int32) []byte {
		return leFloat64(s.rxTotal)
	})
	s.Var("incppect.ip_address[%d]", func(idxs []int32) []byte {
		if len(idxs) == 0 {
			return nil
		}
		i := int(idxs[0])
		if i < 0 || i >= len(s.order) {
			return nil
		}
		c := s.clients[s.order[i]]
		return append([]byte(nil), c.addr[:]...)
	})
}

// HandleOpen creates the client record.
func (s *Server) HandleOpen(conn transport.Conn) {
	c := newClient(conn.ID(), conn, s.now())
	s.clients[c.id] = c
	s.order = insertID(s.order, c.id)
	s.nConnected.Store(int32(len(s.clients)))
	s.metrics.clients.Set(float64(len(s.clients)))

	s.logger.Info("client connected", "client", c.id)
	s.dispatchEvent(c.id, Connect, c.addr[:])
}

// HandleClose destroys the client record.
func (s *Server) HandleClose(conn transport.Conn, code int, reason string) {
	c, ok := s.clients[conn.ID()]
	if !ok {
		return
	}
	delete(s.clients, c.id)
	s.order = removeID(s.order, c.id)
	s.nConnected.Store(int32(len(s.clients)))
	s.metrics.clients.Set(float64(len(s.clients)))

	s.logger.Info("client disconnected", "client", c.id, "code", code, "reason", reason)
	s.dispatchEvent(c.id, Disconnect, nil)
}

// HandleDrain notes that a backpressured connection caught up and gives it a
// fresh tick.
func (s *Server) HandleDrain(conn transport.Conn) {
	s.logger.Debug("drain", "client", conn.ID(), "buffered", conn.BufferedAmount())
	s.scheduleTick()
}

// HandleMessage runs the subscription state machine over one inbound control
// message.
func (s *Server) HandleMessage(conn transport.Conn, data []byte, _ bool) {
	s.rxTotal += float64(len(data))
	s.metrics.rxBytes.Add(float64(len(data)))

	c, ok := s.clients[conn.ID()]
	if !ok {
		return
	}

	kind, body, err := protocol.SplitMessage(data)
	if err != nil {
		s.logger.Warn("dropping malformed message", "client", c.id, "error", err)
		s.metrics.malformedMessages.Inc()
		return
	}

	switch kind {
	case protocol.KindRegister:
		s.handleRegister(c, body)
	case protocol.KindActivate:
		if !s.handleActivate(c, body) {
			return
		}
	case protocol.KindRefresh:
		s.handleRefresh(c)
	case protocol.KindCustom:
		s.handleCustom(c, body)
		// Custom messages never schedule a tick.
		return
	default:
		s.logger.Warn("unknown message kind", "client", c.id, "kind", uint32(kind))
	}

	s.scheduleTick()
}

// handleRegister stores or overwrites the requests named by a path catalog.
// Unknown paths are skipped; a truncated trailing group is dropped while the
// intact leading groups are still applied.
func (s *Server) handleRegister(c *client, body []byte) {
	entries, err := protocol.ParseRegister(body)
	if err != nil {
		s.logger.Warn("register message truncated", "client", c.id, "error", err)
		s.metrics.malformedMessages.Inc()
	}

	for _, e := range entries {
		getterID, ok := s.registry.Resolve(e.Path)
		if !ok {
			s.logger.Warn("unknown path", "client", c.id, "path", e.Path)
			s.metrics.unknownPaths.Inc()
			continue
		}

		idxs := make([]int32, len(e.Idxs))
		for i, idx := range e.Idxs {
			if idx == -1 {
				idx = c.id
			}
			idxs[i] = idx
		}

		s.logger.Debug("registered request",
			"client", c.id, "request", e.RequestID, "path", e.Path, "nidx", len(idxs))

		c.requests[e.RequestID] = &request{
			getterID:         getterID,
			idxs:             idxs,
			tLastUpdatedMs:   -1,
			tLastRequestedMs: -1,
			tMinUpdateMs:     defaultMinUpdate.Milliseconds(),
			tTimeoutMs:       s.params.RequestTimeout.Milliseconds(),
		}
	}
}

// handleActivate replaces the active set with the received ids, filtered to
// known requests. Returns false when the body is malformed.
func (s *Server) handleActivate(c *client, body []byte) bool {
	ids, err := protocol.ParseActivate(body)
	if err != nil {
		s.logger.Warn("dropping invalid activate message", "client", c.id, "error", err)
		s.metrics.malformedMessages.Inc()
		return false
	}

	now := s.now()
	c.lastActive = c.lastActive[:0]
	for _, id := range ids {
		req, ok := c.requests[id]
		if !ok {
			continue
		}
		c.lastActive = append(c.lastActive, id)
		req.tLastRequestedMs = now
		req.tTimeoutMs = s.params.RequestTimeout.Milliseconds()
	}
	return true
}

// handleRefresh re-arms the previous active set.
func (s *Server) handleRefresh(c *client) {
	now := s.now()
	for _, id := range c.lastActive {
		req, ok := c.requests[id]
		if !ok {
			continue
		}
		req.tLastRequestedMs = now
		req.tTimeoutMs = s.params.RequestTimeout.Milliseconds()
	}
}

// handleCustom forwards the body to the application handler.
func (s *Server) handleCustom(c *client, body []byte) {
	if len(body) == 0 {
		return
	}
	s.dispatchEvent(c.id, Custom, body)
}

// dispatchEvent invokes the application handler with panic isolation: a
// handler failure must not corrupt per-client state or kill the event loop.
func (s *Server) dispatchEvent(clientID int32, event EventType, data []byte) {
	if s.handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.metrics.handlerPanics.Inc()
			s.logger.Error("handler panic",
				"client", clientID,
				"event", event,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	s.handler(clientID, event, data)
}

// scheduleTick queues one snapshot/encode pass on the event loop. Multiple
// inbound messages between two ticks coalesce into a single pass.
func (s *Server) scheduleTick() {
	if s.pendingTick || s.stopping {
		return
	}
	s.pendingTick = true
	s.loop.Defer(func() {
		s.pendingTick = false
		s.tick()
	})
}

// insertID inserts id into a sorted slice.
func insertID(ids []int32, id int32) []int32 {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	ids = append(ids, 0)
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}

// removeID removes id from a sorted slice.
func removeID(ids []int32, id int32) []int32 {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	if i < len(ids) && ids[i] == id {
		return append(ids[:i], ids[i+1:]...)
	}
	return ids
}

var processStart = time.Now()
var processStartMs = processStart.UnixMilli()

// timestampMs is a wall-clock-like monotonic millisecond timestamp.
func timestampMs() int64 {
	return processStartMs + time.Since(processStart).Milliseconds()
}
