package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/incppect/incppect-go/pkg/assets"
)

// Config holds configuration for the WebSocket transport.
type Config struct {
	// Addr is the listen address. Default: ":3000".
	Addr string

	// MaxPayload is the read limit for inbound messages and the advisory
	// limit for outbound frames. Default: 262144.
	MaxPayload int

	// IdleTimeout closes a connection that produced no inbound traffic for
	// this long. Default: 120 seconds.
	IdleTimeout time.Duration

	// WriteTimeout bounds a single outbound write. Default: 10 seconds.
	WriteTimeout time.Duration

	// HTTPRoot is the root resources are loaded from. A plain value is a
	// disk directory; an "s3://bucket/prefix" value loads objects from S3.
	// Default: ".".
	HTTPRoot string

	// Resources lists the URLs served from HTTPRoot. An empty entry or a
	// trailing "/" resolves to index.html.
	Resources []string

	// Script is the embedded decoder script served at /incppect.js.
	Script []byte

	// MetricsHandler, when set, is mounted at /metrics.
	MetricsHandler http.Handler

	// SSL selects TLS; SSLKey and SSLCert name the PEM files.
	// Defaults: "key.pem", "cert.pem".
	SSL     bool
	SSLKey  string
	SSLCert string

	// CheckOrigin validates the Origin header of upgrade requests.
	// Default: accept all (the channel is an unauthenticated debug surface).
	CheckOrigin func(r *http.Request) bool

	// Logger is the transport logger. Default: slog.Default().
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.MaxPayload == 0 {
		c.MaxPayload = 256 * 1024
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 120 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.HTTPRoot == "" {
		c.HTTPRoot = "."
	}
	if c.SSLKey == "" {
		c.SSLKey = "key.pem"
	}
	if c.SSLCert == "" {
		c.SSLCert = "cert.pem"
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = func(*http.Request) bool { return true }
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// WebSocket is the gorilla/websocket + chi implementation of Transport.
type WebSocket struct {
	config   Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
	source   assets.Source

	tasks    chan func()
	done     chan struct{}
	doneOnce sync.Once
	loopDone chan struct{}

	handler    Handler
	httpServer *http.Server
	started    atomic.Bool
	nextID     atomic.Int32

	mu        sync.RWMutex
	resources map[string][]byte
}

// New creates a WebSocket transport from config.
func New(config Config) *WebSocket {
	config = config.withDefaults()
	var source assets.Source
	if !strings.HasPrefix(config.HTTPRoot, "s3://") {
		source = assets.DirSource{Root: config.HTTPRoot}
	}
	return &WebSocket{
		source: source,
		config: config,
		logger: config.Logger.With("component", "transport"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:    4096,
			WriteBufferSize:   4096,
			CheckOrigin:       config.CheckOrigin,
			EnableCompression: true,
		},
		tasks:     make(chan func(), 1024),
		done:      make(chan struct{}),
		loopDone:  make(chan struct{}),
		resources: make(map[string][]byte),
	}
}

// SetResource registers an in-memory resource body for a URL. The URL is
// normalized to carry a leading slash.
func (t *WebSocket) SetResource(url string, body []byte) {
	if !strings.HasPrefix(url, "/") {
		url = "/" + url
	}
	t.mu.Lock()
	t.resources[url] = body
	t.mu.Unlock()
}

// Defer schedules fn on the event-loop goroutine. During shutdown the queue
// still accepts work while it has room, so close notifications scheduled by
// the final drain are not lost; only a saturated queue on a stopped loop
// drops the function.
func (t *WebSocket) Defer(fn func()) {
	select {
	case t.tasks <- fn:
		return
	default:
	}
	select {
	case t.tasks <- fn:
	case <-t.done:
	}
}

// Start wires the handler and starts the event loop without listening. Use
// together with Handler() to mount the transport in an external HTTP server
// (integration tests do this via httptest).
func (t *WebSocket) Start(h Handler) {
	if t.started.Swap(true) {
		return
	}
	t.handler = h
	go func() {
		t.loop()
		close(t.loopDone)
	}()
}

// Run starts the event loop and the HTTP(S) listener and blocks until Stop.
func (t *WebSocket) Run(h Handler) error {
	t.Start(h)

	if t.config.SSL {
		if _, err := tls.LoadX509KeyPair(t.config.SSLCert, t.config.SSLKey); err != nil {
			t.logger.Error("tls setup failed, not listening; verify the certificate files",
				"key_file", t.config.SSLKey,
				"cert_file", t.config.SSLCert,
				"error", err)
			t.stopLoop()
			return fmt.Errorf("transport: load tls material: %w", err)
		}
	}

	if t.source == nil {
		source, err := assets.ForRoot(context.Background(), t.config.HTTPRoot)
		if err != nil {
			t.stopLoop()
			return fmt.Errorf("transport: resource root: %w", err)
		}
		t.source = source
	}

	t.httpServer = &http.Server{
		Addr:              t.config.Addr,
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var g errgroup.Group
	g.Go(func() error {
		var err error
		if t.config.SSL {
			t.logger.Info("listening", "addr", t.config.Addr, "protocol", "https")
			err = t.httpServer.ListenAndServeTLS(t.config.SSLCert, t.config.SSLKey)
		} else {
			t.logger.Info("listening", "addr", t.config.Addr, "protocol", "http")
			err = t.httpServer.ListenAndServe()
		}
		t.stopLoop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	err := g.Wait()

	// The loop drains its queue before exiting, so every pending close
	// notification is delivered before Run returns.
	<-t.loopDone
	return err
}

// Stop shuts the listener down and stops the event loop.
func (t *WebSocket) Stop() {
	if t.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.httpServer.Shutdown(ctx); err != nil {
			t.logger.Error("shutdown error", "error", err)
		}
	}
	t.stopLoop()
}

func (t *WebSocket) stopLoop() {
	t.doneOnce.Do(func() { close(t.done) })
}

// loop is the event-loop goroutine. Every Handler callback and every deferred
// task runs here.
func (t *WebSocket) loop() {
	for {
		select {
		case fn := <-t.tasks:
			fn()
		case <-t.done:
			for {
				select {
				case fn := <-t.tasks:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Handler returns the HTTP surface: the WebSocket upgrade, the decoder
// script, registered resources, the optional metrics endpoint, and a
// catch-all.
func (t *WebSocket) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/incppect", t.handleUpgrade)
	r.Get("/incppect.js", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/javascript")
		w.Write(t.config.Script)
	})
	if t.config.MetricsHandler != nil {
		r.Handle("/metrics", t.config.MetricsHandler)
	}
	seen := make(map[string]bool)
	for _, res := range t.config.Resources {
		route := "/" + strings.TrimPrefix(res, "/")
		if seen[route] {
			continue
		}
		seen[route] = true
		r.Get(route, t.serveResource)
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("Resource not found"))
	})

	return r
}

// serveResource answers a registered resource URL: in-memory resources first,
// then the configured root.
func (t *WebSocket) serveResource(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Path
	if url == "" || strings.HasSuffix(url, "/") {
		url += "index.html"
	}

	t.mu.RLock()
	body, ok := t.resources[url]
	t.mu.RUnlock()

	if !ok {
		if t.source == nil {
			http.NotFound(w, r)
			return
		}
		var err error
		body, err = t.source.Load(r.Context(), url)
		if err != nil || len(body) == 0 {
			t.logger.Debug("resource not found", "url", url, "error", err)
			w.Write([]byte("Resource not found"))
			return
		}
	}

	if strings.HasSuffix(url, ".js") {
		w.Header().Set("Content-Type", "text/javascript")
	}
	w.Write(body)
}

// handleUpgrade accepts a WebSocket client and starts its pumps.
func (t *WebSocket) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	ws.SetReadLimit(int64(t.config.MaxPayload))

	c := &wsConn{
		t:    t,
		ws:   ws,
		id:   t.nextID.Add(1),
		addr: remoteAddr4(r.RemoteAddr),
		outq: make(chan outMessage, 64),
		quit: make(chan struct{}),
	}

	t.Defer(func() { t.handler.HandleOpen(c) })
	go c.readPump()
	go c.writePump()
}

// remoteAddr4 extracts the low four bytes of the remote address. IPv4 maps to
// the dotted quad; IPv6 to the tail of the 16-byte form.
func remoteAddr4(remote string) [4]byte {
	var out [4]byte
	ap, err := netip.ParseAddrPort(remote)
	if err != nil {
		return out
	}
	b16 := ap.Addr().As16()
	copy(out[:], b16[12:16])
	return out
}

type outMessage struct {
	data     []byte
	binary   bool
	compress bool
}

// wsConn is one accepted WebSocket connection.
type wsConn struct {
	t    *WebSocket
	ws   *websocket.Conn
	id   int32
	addr [4]byte

	outq       chan outMessage
	quit       chan struct{}
	buffered   atomic.Int64
	backlogged atomic.Bool

	closeOnce  sync.Once
	notifyOnce sync.Once
	closed     atomic.Bool
}

func (c *wsConn) ID() int32            { return c.id }
func (c *wsConn) RemoteAddr4() [4]byte { return c.addr }

func (c *wsConn) BufferedAmount() int64 { return c.buffered.Load() }

// Send queues data for the write pump. The bytes are copied because callers
// reuse their encode buffers on the next tick.
func (c *wsConn) Send(data []byte, binary, compress bool) bool {
	if c.closed.Load() {
		return false
	}

	size := int64(len(data))
	pending := c.buffered.Add(size)

	msg := outMessage{data: append([]byte(nil), data...), binary: binary, compress: compress}
	select {
	case c.outq <- msg:
	default:
		c.buffered.Add(-size)
		c.backlogged.Store(true)
		return false
	}

	// Backpressure increased if something was already queued ahead of us.
	if pending != size {
		c.backlogged.Store(true)
		return false
	}
	return true
}

func (c *wsConn) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.quit)
		c.ws.Close()
		// A server-initiated close must still deliver HandleClose before the
		// loop drains out; a remote close already notified with the real code.
		c.notifyClose(websocket.CloseGoingAway, "")
	})
}

// notifyClose delivers HandleClose exactly once.
func (c *wsConn) notifyClose(code int, reason string) {
	c.notifyOnce.Do(func() {
		c.t.Defer(func() { c.t.handler.HandleClose(c, code, reason) })
	})
}

// readPump reads inbound messages until the connection dies, refreshing the
// idle deadline per message.
func (c *wsConn) readPump() {
	code := websocket.CloseAbnormalClosure
	reason := ""
	defer func() {
		c.notifyClose(code, reason)
		c.Close()
	}()

	for {
		c.ws.SetReadDeadline(time.Now().Add(c.t.config.IdleTimeout))
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				code, reason = ce.Code, ce.Text
			}
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.t.logger.Error("read error", "client", c.id, "error", err)
			}
			return
		}

		msg := data
		binary := mt == websocket.BinaryMessage
		c.t.Defer(func() { c.t.handler.HandleMessage(c, msg, binary) })
	}
}

// writePump owns all writes on the connection, so toggling per-message
// compression is race-free.
func (c *wsConn) writePump() {
	for {
		select {
		case msg := <-c.outq:
			c.ws.SetWriteDeadline(time.Now().Add(c.t.config.WriteTimeout))
			c.ws.EnableWriteCompression(msg.compress)
			mt := websocket.TextMessage
			if msg.binary {
				mt = websocket.BinaryMessage
			}
			err := c.ws.WriteMessage(mt, msg.data)
			drained := c.buffered.Add(-int64(len(msg.data))) == 0
			if err != nil {
				c.t.logger.Error("write error", "client", c.id, "error", err)
				c.Close()
				return
			}
			if drained && c.backlogged.Swap(false) {
				c.t.Defer(func() { c.t.handler.HandleDrain(c) })
			}
		case <-c.quit:
			return
		}
	}
}
