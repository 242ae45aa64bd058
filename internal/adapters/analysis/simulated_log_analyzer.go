package analysis

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// SimulatedLogAnalyzer stands in for a real log analysis backend. It waits a
// random latency within [MinLatency, MaxLatency] before answering.
type SimulatedLogAnalyzer struct {
	MinLatency time.Duration
	MaxLatency time.Duration
}

func NewSimulatedLogAnalyzer(minLatency, maxLatency time.Duration) *SimulatedLogAnalyzer {
	if minLatency < 0 {
		minLatency = 0
	}
	if maxLatency < minLatency {
		maxLatency = minLatency
	}
	return &SimulatedLogAnalyzer{MinLatency: minLatency, MaxLatency: maxLatency}
}

func (a *SimulatedLogAnalyzer) Analyze(ctx context.Context, caseID string) (string, error) {
	if d := a.latency(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Sprintf("Mock log analysis for case %s", caseID), nil
}

func (a *SimulatedLogAnalyzer) latency() time.Duration {
	span := a.MaxLatency - a.MinLatency
	if span <= 0 {
		return a.MinLatency
	}
	return a.MinLatency + rand.N(span+1)
}
