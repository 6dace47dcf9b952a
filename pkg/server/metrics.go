package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of one server instance. Each
// instance owns its registry so multiple servers (and tests) never collide on
// collector registration.
type Metrics struct {
	registry *prometheus.Registry

	clients           prometheus.Gauge
	txBytes           prometheus.Counter
	rxBytes           prometheus.Counter
	framesSent        prometheus.Counter
	backpressureSkips prometheus.Counter
	sendBackpressure  prometheus.Counter
	oversizedFrames   prometheus.Counter
	malformedMessages prometheus.Counter
	unknownPaths      prometheus.Counter
	handlerPanics     prometheus.Counter
	encodeDuration    prometheus.Histogram
}

func newMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		clients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "incppect",
			Name:      "connected_clients",
			Help:      "Number of connected inspection clients",
		}),

		txBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "incppect",
			Name:      "tx_bytes_total",
			Help:      "Total bytes submitted to the transport",
		}),

		rxBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "incppect",
			Name:      "rx_bytes_total",
			Help:      "Total control-message bytes received",
		}),

		framesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "incppect",
			Name:      "frames_sent_total",
			Help:      "Total aggregate frames sent",
		}),

		backpressureSkips: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "incppect",
			Name:      "backpressure_skips_total",
			Help:      "Ticks that skipped a client because its send buffer was not drained",
		}),

		sendBackpressure: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "incppect",
			Name:      "send_backpressure_total",
			Help:      "Sends that increased transport backpressure",
		}),

		oversizedFrames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "incppect",
			Name:      "oversized_frames_total",
			Help:      "Frames exceeding the configured max payload",
		}),

		malformedMessages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "incppect",
			Name:      "malformed_messages_total",
			Help:      "Inbound control messages dropped as malformed",
		}),

		unknownPaths: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "incppect",
			Name:      "unknown_paths_total",
			Help:      "Register entries naming a path not in the registry",
		}),

		handlerPanics: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "incppect",
			Name:      "handler_panics_total",
			Help:      "Application handler panics recovered by the engine",
		}),

		encodeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "incppect",
			Name:      "encode_duration_seconds",
			Help:      "Duration of one snapshot/encode tick across all clients",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Handler returns the HTTP handler for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
