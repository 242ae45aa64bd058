package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/domain"
	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/ports"
)

type responderDeps struct {
	responsesTopic  string
	dispatchTimeout time.Duration
	probe           ports.DeploymentProbe
	dispatcher      *BusDispatcher
	logger          *slog.Logger
}

// Responder answers deployment status requests for one case key. It keeps
// no state between requests.
type Responder struct {
	deps   responderDeps
	caseID string
}

func newResponderFactory(deps responderDeps) EntityFactory {
	return func(_ context.Context, key string, _ EntityHandle) (Entity, error) {
		return &Responder{deps: deps, caseID: key}, nil
	}
}

func (r *Responder) Idle() bool { return true }

func (r *Responder) Handle(ctx context.Context, msg Message) error {
	m, ok := msg.(CheckDeployment)
	if !ok {
		return nil
	}
	status, err := r.deps.probe.Check(ctx, r.caseID)
	if err != nil {
		return fmt.Errorf("deployment probe for case %s: %w", r.caseID, err)
	}
	resp := domain.DeploymentStatusResponse{
		RequestID:       m.Request.RequestID,
		CaseID:          r.caseID,
		HealthyServices: nonNil(status.HealthyServices),
		FailedServices:  nonNil(status.FailedServices),
	}
	env, err := domain.NewEnvelope(resp)
	if err != nil {
		return err
	}
	sendCtx, cancel := context.WithTimeout(ctx, r.deps.dispatchTimeout)
	defer cancel()
	if err := r.deps.dispatcher.Send(sendCtx, r.deps.responsesTopic, r.caseID, env); err != nil {
		return err
	}
	r.deps.logger.DebugContext(ctx, "deployment status replied",
		"module", "application.responder",
		"layer", "application",
		"operation", "check_deployment",
		"outcome", "success",
		"case_id", r.caseID,
		"correlation_id", m.CorrelationID,
	)
	return nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
