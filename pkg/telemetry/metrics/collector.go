package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/compilegate/pkg/config"
)

// Collector owns every compilegate metric.
type Collector struct {
	enabled  bool
	registry *prometheus.Registry

	compile  *CompileMetrics
	proxy    *ProxyMetrics
	realtime *RealtimeMetrics
}

// NewCollector creates a collector registered on registry, or on a fresh
// private registry when registry is nil.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = config.DefaultMetricsNamespace
	}
	buckets := cfg.DurationBuckets
	if len(buckets) == 0 {
		buckets = config.DefaultDurationBuckets
	}

	return &Collector{
		enabled:  cfg.MetricsEnabled(),
		registry: registry,
		compile:  NewCompileMetrics(namespace, buckets, registry),
		proxy:    NewProxyMetrics(namespace, buckets, registry),
		realtime: NewRealtimeMetrics(namespace, registry),
	}
}

func (c *Collector) on() bool {
	return c != nil && c.enabled
}

// RecordCompile records a compile that produced a result.
func (c *Collector) RecordCompile(status string, duration time.Duration) {
	if !c.on() {
		return
	}
	c.compile.requestsTotal.WithLabelValues(status).Inc()
	c.compile.duration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordCompileError records a compile that failed before a result.
func (c *Collector) RecordCompileError() {
	if !c.on() {
		return
	}
	c.compile.errorsTotal.Inc()
}

// RecordProxyRequest counts a proxied request reaching status, which is
// either an upstream HTTP status or an outcome such as "req-aborted".
func (c *Collector) RecordProxyRequest(action, status string) {
	if !c.on() {
		return
	}
	c.proxy.requestsTotal.WithLabelValues(action, status).Inc()
}

// RecordProxyStatus counts a proxied request by upstream HTTP status code.
func (c *Collector) RecordProxyStatus(action string, code int) {
	c.RecordProxyRequest(action, strconv.Itoa(code))
}

// ObserveProxyDuration records how long a proxied request took.
func (c *Collector) ObserveProxyDuration(action, status string, duration time.Duration) {
	if !c.on() {
		return
	}
	c.proxy.duration.WithLabelValues(action, status).Observe(duration.Seconds())
}

// RecordPDFDownload records a PDF download attempt. outcome is "allowed" or
// "rate_limited".
func (c *Collector) RecordPDFDownload(outcome string) {
	if !c.on() {
		return
	}
	c.proxy.pdfDownloads.WithLabelValues(outcome).Inc()
}

// WSConnected increments the open connection gauge.
func (c *Collector) WSConnected() {
	if !c.on() {
		return
	}
	c.realtime.connections.Inc()
}

// WSDisconnected decrements the open connection gauge.
func (c *Collector) WSDisconnected() {
	if !c.on() {
		return
	}
	c.realtime.connections.Dec()
}

// RecordWSFrame counts a frame sent on the realtime channel.
func (c *Collector) RecordWSFrame(frameType string) {
	if !c.on() {
		return
	}
	c.realtime.framesTotal.WithLabelValues(frameType).Inc()
}

// RecordHeartbeat counts a keepalive ping. transport is "http" or "ws".
func (c *Collector) RecordHeartbeat(transport string) {
	if !c.on() {
		return
	}
	c.realtime.heartbeatsTotal.WithLabelValues(transport).Inc()
}

// Registry returns the registry the collector is registered on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
