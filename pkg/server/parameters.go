package server

import (
	"log/slog"
	"time"
)

// Default parameter values.
const (
	DefaultPort           = 3000
	DefaultMaxPayload     = 256 * 1024
	DefaultRequestTimeout = 3 * time.Second
	DefaultIdleTimeout    = 120 * time.Second

	// defaultMinUpdate is the minimum spacing between encodings of a single
	// request.
	defaultMinUpdate = 16 * time.Millisecond

	// diffThreshold is the strict size above which payloads and aggregates
	// switch to XOR/RLE diff encoding.
	diffThreshold = 256

	// compressThreshold is the strict frame size above which per-message
	// transport compression is requested.
	compressThreshold = 64
)

// Parameters configures a server run.
type Parameters struct {
	// Port is the TCP listen port. Default: 3000.
	Port int

	// MaxPayload is the maximum message size accepted or sent. Oversized
	// outbound frames are still attempted, with a warning. Default: 256KB.
	MaxPayload int

	// RequestTimeout is the per-request staleness cutoff: a request that
	// received no activate/refresh for this long stops being encoded. A
	// negative value means a request stays active forever once activated.
	// Default: 3 seconds.
	RequestTimeout time.Duration

	// IdleTimeout is the connection-level idle cutoff enforced by the
	// transport. Default: 120 seconds.
	IdleTimeout time.Duration

	// HTTPRoot is the root static resources are loaded from: a disk
	// directory or an "s3://bucket/prefix" URL. Default: ".".
	HTTPRoot string

	// Resources lists the URLs to serve from HTTPRoot. An empty entry or a
	// trailing "/" resolves to index.html.
	Resources []string

	// SSL selects TLS; SSLKey and SSLCert name the PEM files.
	// Defaults: "key.pem", "cert.pem".
	SSL     bool
	SSLKey  string
	SSLCert string

	// EnableMetrics mounts the Prometheus endpoint at /metrics.
	EnableMetrics bool

	// EnableTracing emits one OpenTelemetry span per snapshot/encode tick.
	EnableTracing bool

	// Logger is the server logger. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultParameters returns Parameters with all defaults filled in.
func DefaultParameters() Parameters {
	return Parameters{
		Port:           DefaultPort,
		MaxPayload:     DefaultMaxPayload,
		RequestTimeout: DefaultRequestTimeout,
		IdleTimeout:    DefaultIdleTimeout,
		HTTPRoot:       ".",
		SSLKey:         "key.pem",
		SSLCert:        "cert.pem",
	}
}

// withDefaults fills unset fields. A negative RequestTimeout is deliberate
// and preserved.
func (p Parameters) withDefaults() Parameters {
	if p.Port == 0 {
		p.Port = DefaultPort
	}
	if p.MaxPayload == 0 {
		p.MaxPayload = DefaultMaxPayload
	}
	if p.RequestTimeout == 0 {
		p.RequestTimeout = DefaultRequestTimeout
	}
	if p.IdleTimeout == 0 {
		p.IdleTimeout = DefaultIdleTimeout
	}
	if p.HTTPRoot == "" {
		p.HTTPRoot = "."
	}
	if p.SSLKey == "" {
		p.SSLKey = "key.pem"
	}
	if p.SSLCert == "" {
		p.SSLCert = "cert.pem"
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return p
}
