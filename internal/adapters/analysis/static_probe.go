package analysis

import (
	"context"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/domain"
)

var (
	DefaultHealthyServices = []string{"service-a", "service-b", "service-c"}
	DefaultFailedServices  = []string{"service-x"}
)

// StaticDeploymentProbe reports a fixed deployment status for every case.
type StaticDeploymentProbe struct {
	healthy []string
	failed  []string
}

func NewStaticDeploymentProbe(healthy, failed []string) *StaticDeploymentProbe {
	if healthy == nil {
		healthy = DefaultHealthyServices
	}
	if failed == nil {
		failed = DefaultFailedServices
	}
	return &StaticDeploymentProbe{healthy: healthy, failed: failed}
}

func (p *StaticDeploymentProbe) Check(ctx context.Context, _ string) (domain.DeploymentStatus, error) {
	if err := ctx.Err(); err != nil {
		return domain.DeploymentStatus{}, err
	}
	return domain.DeploymentStatus{
		HealthyServices: append([]string(nil), p.healthy...),
		FailedServices:  append([]string(nil), p.failed...),
	}, nil
}
