// Package metrics exposes Prometheus instruments for the leave engine and
// the HTTP surface.
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

	"github.com/warp/leave-ledger/leave"
)

// Collector owns a registry and implements leave.Recorder.
type Collector struct {
	registry *prometheus.Registry

	submitted    *prometheus.CounterVec
	decisions    *prometheus.CounterVec
	failures     *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

var _ leave.Recorder = (*Collector)(nil)

// New creates a Collector with its own registry, including Go runtime and
// process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		submitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leave_requests_submitted_total",
				Help: "Total number of leave requests submitted",
			},
			[]string{"leave_type"},
		),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leave_decisions_total",
				Help: "Total number of leave requests approved or rejected",
			},
			[]string{"status"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leave_engine_failures_total",
				Help: "Total number of failed engine operations by error kind",
			},
			[]string{"operation", "kind"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	c.registry.MustRegister(
		c.submitted,
		c.decisions,
		c.failures,
		c.httpRequests,
		c.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RequestSubmitted implements leave.Recorder.
func (c *Collector) RequestSubmitted(leaveTypeID string) {
	c.submitted.WithLabelValues(leaveTypeID).Inc()
}

// RequestDecided implements leave.Recorder.
func (c *Collector) RequestDecided(status leave.Status) {
	c.decisions.WithLabelValues(string(status)).Inc()
}

// OperationFailed implements leave.Recorder.
func (c *Collector) OperationFailed(op, kind string) {
	c.failures.WithLabelValues(op, kind).Inc()
}

// Middleware records request count and latency, labelled by the chi route
// pattern so path parameters do not explode cardinality.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
