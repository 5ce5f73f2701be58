package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "verifier"

// Tick outcomes
const (
	TickOK     = "ok"
	TickNoop   = "noop"
	TickFailed = "failed"
)

// Event results
const (
	EventReconciled  = "reconciled"
	EventDecodeError = "decode_error"
	EventFailed      = "failed"
)

// Metrics holds the node collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ticks              *prometheus.CounterVec
	events             *prometheus.CounterVec
	lastProcessedBlock prometheus.Gauge
	listenerRunning    prometheus.Gauge
	sessionsCreated    prometheus.Counter
	transitions        *prometheus.CounterVec
	sessionsExpired    *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New creates the collectors and registers them in a dedicated registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "ticks_total",
			Help:      "Listener poll ticks by outcome.",
		}, []string{"outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "events_total",
			Help:      "Contract events seen by the listener by kind and result.",
		}, []string{"kind", "result"}),
		lastProcessedBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "last_processed_block",
			Help:      "Highest block fully reconciled.",
		}),
		listenerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "running",
			Help:      "1 when the listener is polling.",
		}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "created_total",
			Help:      "Verification sessions created.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "transitions_total",
			Help:      "Session status transitions by target status.",
		}, []string{"status"}),
		sessionsExpired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "expired_total",
			Help:      "Sessions expired by the sweep, by source.",
		}, []string{"source"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ticks, m.events, m.lastProcessedBlock, m.listenerRunning,
		m.sessionsCreated, m.transitions, m.sessionsExpired,
		m.httpRequests, m.httpDuration,
	)
	return m
}

// Registry returns the registry holding every collector
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Tick records a listener tick
func (m *Metrics) Tick(outcome string) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(outcome).Inc()
}

// Event records the result of handling one contract event
func (m *Metrics) Event(kind, result string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind, result).Inc()
}

// Watermark sets the last processed block
func (m *Metrics) Watermark(block uint64) {
	if m == nil {
		return
	}
	m.lastProcessedBlock.Set(float64(block))
}

// ListenerRunning flags the listener state
func (m *Metrics) ListenerRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.listenerRunning.Set(1)
		return
	}
	m.listenerRunning.Set(0)
}

// SessionCreated counts a new session
func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.sessionsCreated.Inc()
}

// SessionTransition counts a session moving to status
func (m *Metrics) SessionTransition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

// SessionsExpired counts sessions expired by the sweep. source is cache or store.
func (m *Metrics) SessionsExpired(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsExpired.WithLabelValues(source).Add(float64(n))
}

// Instrument is a chi middleware measuring requests by route pattern
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := []string{r.Method, route, strconv.Itoa(status)}
		m.httpRequests.WithLabelValues(labels...).Inc()
		m.httpDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	})
}
