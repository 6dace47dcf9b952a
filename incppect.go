// Package incppect exposes in-process application state to browser pages
// over a persistent WebSocket, using a compact differential binary encoding.
//
// An application registers named variables, each backed by a getter that
// returns a raw byte view; a page requests a subset of them through the
// embedded decoder script and receives the latest values at a fixed tick:
//
//	ins := incppect.New()
//	ins.Var("var_int32", func([]int32) []byte { return incppect.ViewInt32(v) })
//	ins.Var("grid[%d]", func(idxs []int32) []byte { return incppect.ViewInt32(grid[idxs[0]]) })
//	err := ins.Run(incppect.DefaultParameters())
//
// The heavy lifting lives in pkg/server (subscription engine and encode
// loop), pkg/protocol (wire codec) and pkg/transport (WebSocket/HTTP layer);
// this package is the application-facing facade.
package incppect

import (
	"sync"

	"github.com/incppect/incppect-go/pkg/registry"
	"github.com/incppect/incppect-go/pkg/server"
)

// Parameters configures a run. See pkg/server for field documentation.
type Parameters = server.Parameters

// Getter produces the current bytes of a variable for a request's index
// vector. The view only needs to stay valid for the duration of the call.
type Getter = registry.Getter

// EventType identifies an application-visible client event.
type EventType = server.EventType

// Client events delivered to the handler installed with SetHandler.
const (
	Connect    = server.Connect
	Disconnect = server.Disconnect
	Custom     = server.Custom
)

// Handler observes client connect/disconnect/custom events.
type Handler = server.Handler

// DefaultParameters returns Parameters with all defaults filled in.
func DefaultParameters() Parameters {
	return server.DefaultParameters()
}

// Inspector is one inspection service instance: a variable registry plus the
// subscription engine behind a WebSocket/HTTP listener.
type Inspector struct {
	srv *server.Server
}

// New creates an Inspector with the built-in telemetry variables registered.
func New() *Inspector {
	return &Inspector{srv: server.New()}
}

// Var defines a variable to inspect. The path template may contain %d
// placeholders consumed by the request's index vector:
//
//	ins.Var("path0", func([]int32) []byte { ... })
//	ins.Var("path1[%d]", func(idxs []int32) []byte { ... idxs[0] ... })
//	ins.Var("path2[%d].foo[%d]", func(idxs []int32) []byte { ... idxs[0], idxs[1] ... })
//
// Register all variables before Run.
func (i *Inspector) Var(path string, getter Getter) bool {
	return i.srv.Var(path, getter)
}

// SetResource serves url from memory, taking precedence over the HTTP root.
// Useful for serving html/js from within the application binary.
func (i *Inspector) SetResource(url string, body []byte) {
	i.srv.SetResource(url, body)
}

// SetHandler installs the client event handler.
func (i *Inspector) SetHandler(h Handler) {
	i.srv.SetHandler(h)
}

// Run starts the service and blocks until Stop.
func (i *Inspector) Run(params Parameters) error {
	return i.srv.Run(params)
}

// RunAsync starts the service in a background goroutine and returns the
// channel Run's result is delivered on.
func (i *Inspector) RunAsync(params Parameters) <-chan error {
	return i.srv.RunAsync(params)
}

// Stop shuts the service down: every client is closed, then the listener.
// Safe from any thread.
func (i *Inspector) Stop() {
	i.srv.Stop()
}

// NumConnected returns the number of connected clients.
func (i *Inspector) NumConnected() int {
	return i.srv.NumConnected()
}

var (
	defaultInstance *Inspector
	defaultOnce     sync.Once
)

// Default returns the process-wide convenience instance. Applications that
// need more than one service construct their own with New.
func Default() *Inspector {
	defaultOnce.Do(func() { defaultInstance = New() })
	return defaultInstance
}
