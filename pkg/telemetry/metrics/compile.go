package metrics

import "github.com/prometheus/client_golang/prometheus"

// CompileMetrics tracks compile outcomes.
type CompileMetrics struct {
	requestsTotal *prometheus.CounterVec
	errorsTotal   prometheus.Counter
	duration      *prometheus.HistogramVec
}

// NewCompileMetrics creates and registers compile metrics.
func NewCompileMetrics(namespace string, buckets []float64, registry *prometheus.Registry) *CompileMetrics {
	cm := &CompileMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compile_requests_total",
				Help:      "Total number of compiles by backend status",
			},
			[]string{"status"},
		),
		errorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compile_errors_total",
				Help:      "Total number of compiles that failed without a result",
			},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "compile_duration_seconds",
				Help:      "End-to-end compile duration in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(cm.requestsTotal, cm.errorsTotal, cm.duration)
	return cm
}
