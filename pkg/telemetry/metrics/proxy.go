package metrics

import "github.com/prometheus/client_golang/prometheus"

// ProxyMetrics tracks proxied output requests.
type ProxyMetrics struct {
	requestsTotal *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	pdfDownloads  *prometheus.CounterVec
}

// NewProxyMetrics creates and registers proxy metrics.
func NewProxyMetrics(namespace string, buckets []float64, registry *prometheus.Registry) *ProxyMetrics {
	pm := &ProxyMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "proxy_requests_total",
				Help:      "Total number of requests proxied to the compile backend",
			},
			[]string{"action", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "proxy_duration_seconds",
				Help:      "Duration of proxied requests in seconds",
				Buckets:   buckets,
			},
			[]string{"action", "status"},
		),
		pdfDownloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pdf_downloads_total",
				Help:      "Total number of PDF download attempts",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(pm.requestsTotal, pm.duration, pm.pdfDownloads)
	return pm
}
