package ports

import "time"

type Metrics interface {
	IncCycle(outcome string)
	IncReply(outcome string)
	IncRouted(topic, outcome string)
	ObserveResolveLatency(outcome string, d time.Duration)
}

type NopMetrics struct{}

func (NopMetrics) IncCycle(string)                             {}
func (NopMetrics) IncReply(string)                             {}
func (NopMetrics) IncRouted(string, string)                    {}
func (NopMetrics) ObserveResolveLatency(string, time.Duration) {}
