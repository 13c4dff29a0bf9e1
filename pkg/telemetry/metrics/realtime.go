package metrics

import "github.com/prometheus/client_golang/prometheus"

// RealtimeMetrics tracks the realtime compile channel and keepalives.
type RealtimeMetrics struct {
	connections     prometheus.Gauge
	framesTotal     *prometheus.CounterVec
	heartbeatsTotal *prometheus.CounterVec
}

// NewRealtimeMetrics creates and registers realtime metrics.
func NewRealtimeMetrics(namespace string, registry *prometheus.Registry) *RealtimeMetrics {
	rm := &RealtimeMetrics{
		connections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ws_connections",
				Help:      "Number of open realtime compile connections",
			},
		),
		framesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ws_frames_total",
				Help:      "Total number of realtime frames sent by type",
			},
			[]string{"type"},
		),
		heartbeatsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "heartbeats_total",
				Help:      "Total number of keepalive pings by transport",
			},
			[]string{"transport"},
		),
	}

	registry.MustRegister(rm.connections, rm.framesTotal, rm.heartbeatsTotal)
	return rm
}
