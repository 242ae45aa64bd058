package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus records resolution activity on its own registry.
type Prometheus struct {
	registry *prometheus.Registry
	cycles   *prometheus.CounterVec
	replies  *prometheus.CounterVec
	routed   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func NewPrometheus(namespace string) *Prometheus {
	reg := prometheus.NewRegistry()
	p := &Prometheus{
		registry: reg,
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolution_cycles_total",
			Help:      "Resolution cycle transitions by outcome.",
		}, []string{"outcome"}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolve_replies_total",
			Help:      "Replies returned to resolve callers by outcome.",
		}, []string{"outcome"}),
		routed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_messages_routed_total",
			Help:      "Inbound bus messages by topic and routing outcome.",
		}, []string{"topic", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolve_duration_seconds",
			Help:      "Time from resolve request to reply.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		p.cycles, p.replies, p.routed, p.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *Prometheus) IncCycle(outcome string) {
	p.cycles.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) IncReply(outcome string) {
	p.replies.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) IncRouted(topic, outcome string) {
	p.routed.WithLabelValues(topic, outcome).Inc()
}

func (p *Prometheus) ObserveResolveLatency(outcome string, d time.Duration) {
	p.latency.WithLabelValues(outcome).Observe(d.Seconds())
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}
