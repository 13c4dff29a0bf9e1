package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"mercator-hq/compilegate/pkg/config"
)

func newTestCollector(enabled bool) *Collector {
	return NewCollector(&config.MetricsConfig{Enabled: &enabled, Namespace: "test"}, nil)
}

func TestCollector_Records(t *testing.T) {
	c := newTestCollector(true)

	c.RecordCompile("success", 2*time.Second)
	c.RecordCompile("success", time.Second)
	c.RecordCompile("unavailable", time.Second)
	c.RecordCompileError()
	c.RecordProxyStatus("output-file", 200)
	c.RecordProxyRequest("output-file", "req-aborted")
	c.ObserveProxyDuration("output-file", "success", 300*time.Millisecond)
	c.RecordPDFDownload("rate_limited")
	c.WSConnected()
	c.WSConnected()
	c.WSDisconnected()
	c.RecordWSFrame("heartbeat")
	c.RecordHeartbeat("http")

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"compile success", testutil.ToFloat64(c.compile.requestsTotal.WithLabelValues("success")), 2},
		{"compile unavailable", testutil.ToFloat64(c.compile.requestsTotal.WithLabelValues("unavailable")), 1},
		{"compile errors", testutil.ToFloat64(c.compile.errorsTotal), 1},
		{"proxy 200", testutil.ToFloat64(c.proxy.requestsTotal.WithLabelValues("output-file", "200")), 1},
		{"proxy aborted", testutil.ToFloat64(c.proxy.requestsTotal.WithLabelValues("output-file", "req-aborted")), 1},
		{"pdf limited", testutil.ToFloat64(c.proxy.pdfDownloads.WithLabelValues("rate_limited")), 1},
		{"ws connections", testutil.ToFloat64(c.realtime.connections), 1},
		{"ws frames", testutil.ToFloat64(c.realtime.framesTotal.WithLabelValues("heartbeat")), 1},
		{"http heartbeats", testutil.ToFloat64(c.realtime.heartbeatsTotal.WithLabelValues("http")), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestCollector_DisabledAndNil(t *testing.T) {
	c := newTestCollector(false)
	c.RecordCompile("success", time.Second)
	if got := testutil.ToFloat64(c.compile.requestsTotal.WithLabelValues("success")); got != 0 {
		t.Errorf("disabled collector recorded %v", got)
	}

	var nilCollector *Collector
	nilCollector.RecordCompile("success", time.Second)
	nilCollector.RecordProxyStatus("output-file", 500)
	nilCollector.WSConnected()
}

func TestCollector_Handler(t *testing.T) {
	c := newTestCollector(true)
	c.RecordCompile("success", time.Second)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `test_compile_requests_total{status="success"} 1`) {
		t.Errorf("expected compile counter in scrape output:\n%s", rec.Body.String())
	}
}
