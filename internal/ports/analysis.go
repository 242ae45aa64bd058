package ports

import (
	"context"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/domain"
)

type LogAnalyzer interface {
	Analyze(ctx context.Context, caseID string) (string, error)
}

type DeploymentProbe interface {
	Check(ctx context.Context, caseID string) (domain.DeploymentStatus, error)
}
