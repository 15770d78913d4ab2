package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the content backend.
type Metrics struct {
	registry           *prometheus.Registry
	requestsTotal      prometheus.Counter
	tokensIssuedTotal  prometheus.Counter
	streamsServedTotal prometheus.Counter
	streamBytesTotal   prometheus.Counter
	activeRelays       prometheus.Gauge
	errorsTotal        prometheus.Counter
}

// New creates and registers Prometheus metrics for the server.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cinevault_requests_total",
		Help: "Total number of HTTP requests received",
	})
	tokensIssuedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cinevault_tokens_issued_total",
		Help: "Total number of video access tokens issued",
	})
	streamsServedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cinevault_streams_served_total",
		Help: "Total number of proxied stream responses started",
	})
	streamBytesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cinevault_stream_bytes_total",
		Help: "Total bytes relayed to clients through the stream proxy",
	})
	activeRelays := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cinevault_active_relays",
		Help: "Number of stream relays currently in flight",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cinevault_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})

	registry.MustRegister(
		requestsTotal,
		tokensIssuedTotal,
		streamsServedTotal,
		streamBytesTotal,
		activeRelays,
		errorsTotal,
	)

	return &Metrics{
		registry:           registry,
		requestsTotal:      requestsTotal,
		tokensIssuedTotal:  tokensIssuedTotal,
		streamsServedTotal: streamsServedTotal,
		streamBytesTotal:   streamBytesTotal,
		activeRelays:       activeRelays,
		errorsTotal:        errorsTotal,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncTokensIssued increments the issued-token counter.
func (m *Metrics) IncTokensIssued() {
	m.tokensIssuedTotal.Inc()
}

// IncStreamsServed increments the proxied-stream counter.
func (m *Metrics) IncStreamsServed() {
	m.streamsServedTotal.Inc()
}

// AddStreamBytes adds n to the relayed-bytes counter.
func (m *Metrics) AddStreamBytes(n int64) {
	m.streamBytesTotal.Add(float64(n))
}

// RelayStarted increments the in-flight relay gauge.
func (m *Metrics) RelayStarted() {
	m.activeRelays.Inc()
}

// RelayFinished decrements the in-flight relay gauge.
func (m *Metrics) RelayFinished() {
	m.activeRelays.Dec()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
