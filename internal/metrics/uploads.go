package metrics

import (
	"github.com/maneesh/voicehub/internal/apperr"
	"github.com/prometheus/client_golang/prometheus"
)

// UploadMetrics holds collectors for the upload operations.
type UploadMetrics struct {
	ops   *prometheus.CounterVec
	bytes *prometheus.CounterVec
	swept *prometheus.CounterVec
}

// NewUploadMetrics registers upload metrics on the provided registry.
func NewUploadMetrics(reg *prometheus.Registry) *UploadMetrics {
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "uploads",
		Name:      "ops_total",
		Help:      "Upload operations by result. Result is ok or the error kind.",
	}, []string{"op", "result"})
	bytes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "uploads",
		Name:      "bytes_total",
		Help:      "Bytes of completed uploads.",
	}, []string{"op"})
	swept := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweeper",
		Name:      "sessions_total",
		Help:      "Orphaned sessions handled by the sweeper, by result.",
	}, []string{"result"})

	_ = reg.Register(ops)
	_ = reg.Register(bytes)
	_ = reg.Register(swept)

	return &UploadMetrics{ops: ops, bytes: bytes, swept: swept}
}

// Observe records one upload operation.
func (m *UploadMetrics) Observe(op string, bytes int64, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = string(apperr.KindOf(err))
	}
	m.ops.WithLabelValues(op, result).Inc()
	if err == nil && bytes > 0 {
		m.bytes.WithLabelValues(op).Add(float64(bytes))
	}
}

// ObserveSweep records a sweeper pass.
func (m *UploadMetrics) ObserveSweep(aborted, failed int) {
	if m == nil {
		return
	}
	m.swept.WithLabelValues("aborted").Add(float64(aborted))
	m.swept.WithLabelValues("failed").Add(float64(failed))
}
