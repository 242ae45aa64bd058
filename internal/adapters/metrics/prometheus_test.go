package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/ports"
)

var _ ports.Metrics = (*Prometheus)(nil)

func TestPrometheusCounters(t *testing.T) {
	p := NewPrometheus("m48")
	p.IncCycle("completed")
	p.IncCycle("completed")
	p.IncCycle("busy")
	p.IncRouted("deployment.responses", "delivered")
	p.IncReply("timeout")
	p.ObserveResolveLatency("timeout", 30*time.Second)

	if got := testutil.ToFloat64(p.cycles.WithLabelValues("completed")); got != 2 {
		t.Fatalf("expected 2 completed cycles, got %v", got)
	}
	if got := testutil.ToFloat64(p.routed.WithLabelValues("deployment.responses", "delivered")); got != 1 {
		t.Fatalf("expected 1 routed message, got %v", got)
	}

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`m48_resolution_cycles_total{outcome="busy"} 1`,
		`m48_resolve_replies_total{outcome="timeout"} 1`,
		"m48_resolve_duration_seconds_bucket",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
