package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voicehub"

// UnmatchedRoute labels requests no route matched. Raw paths are never
// used as label values.
const UnmatchedRoute = "unmatched"

// Metrics owns a private registry with the HTTP collectors of the upload
// API. Upload and sweeper collectors register on the same registry through
// NewUploadMetrics.
type Metrics struct {
	reg      *prometheus.Registry
	inflight prometheus.Gauge
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// New builds the HTTP collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	labels := []string{"code", "method", "route"}

	inflight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Requests currently being served.",
	})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Requests served by status code, method and route template.",
	}, labels)
	// Part signing is fast; small-file uploads stream up to 10 MiB.
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Request latency by status code, method and route template.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, labels)
	reg.MustRegister(inflight, requests, latency)

	return &Metrics{reg: reg, inflight: inflight, requests: requests, latency: latency}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Route returns the mux path template that matched r, or UnmatchedRoute.
// Templates keep object keys and upload ids out of label values.
func Route(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return UnmatchedRoute
	}
	tpl, err := route.GetPathTemplate()
	if err != nil || tpl == "" {
		return UnmatchedRoute
	}
	return tpl
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records inflight requests, request counts and latency. It must
// run as mux middleware so the matched route is known.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.inflight.Inc()
		defer m.inflight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		values := []string{strconv.Itoa(rec.status), r.Method, Route(r)}
		m.requests.WithLabelValues(values...).Inc()
		m.latency.WithLabelValues(values...).Observe(time.Since(start).Seconds())
	})
}
