package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/domain"
	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/ports"
)

// RouteFunc turns a validated envelope into a message for the entity named by
// its key.
type RouteFunc func(ctx context.Context, env domain.CorrelationEnvelope) error

// BusRouter maps inbound bus messages to entities by key. It holds no
// business logic.
type BusRouter struct {
	routes   map[string]RouteFunc
	inbox    ports.InboxRepository
	dedupTTL time.Duration
	metrics  ports.Metrics
	logger   *slog.Logger
	nowFn    func() time.Time
}

func NewBusRouter(inbox ports.InboxRepository, dedupTTL time.Duration, metrics ports.Metrics, logger *slog.Logger) *BusRouter {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BusRouter{
		routes:   make(map[string]RouteFunc),
		inbox:    inbox,
		dedupTTL: dedupTTL,
		metrics:  metrics,
		logger:   logger,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *BusRouter) Handle(topic string, fn RouteFunc) {
	r.routes[topic] = fn
}

func (r *BusRouter) Topics() []string {
	out := make([]string, 0, len(r.routes))
	for topic := range r.routes {
		out = append(out, topic)
	}
	slices.Sort(out)
	return out
}

func (r *BusRouter) Route(ctx context.Context, msg ports.BusMessage) error {
	route, ok := r.routes[msg.Topic]
	if !ok {
		r.metrics.IncRouted(msg.Topic, "unrouted")
		return fmt.Errorf("%w: no route for topic %s", domain.ErrNotFound, msg.Topic)
	}

	env, err := domain.DecodeEnvelope(msg.Payload)
	if err != nil {
		r.metrics.IncRouted(msg.Topic, "invalid")
		return err
	}
	if err := domain.ValidateEnvelope(env); err != nil {
		r.metrics.IncRouted(msg.Topic, "invalid")
		return err
	}

	messageID := ""
	if r.inbox != nil && env.CorrelationID != "" {
		messageID = msg.Topic + ":" + env.CorrelationID
		dup, err := r.inbox.IsDuplicate(ctx, messageID, r.nowFn())
		if err != nil {
			r.metrics.IncRouted(msg.Topic, "failed")
			return err
		}
		if dup {
			r.metrics.IncRouted(msg.Topic, "duplicate")
			r.logger.DebugContext(ctx, "duplicate envelope dropped",
				"module", "application.router",
				"layer", "application",
				"operation", "route",
				"outcome", "duplicate",
				"topic", msg.Topic,
				"correlation_id", env.CorrelationID,
			)
			return nil
		}
	}

	if err := route(ctx, env); err != nil {
		r.metrics.IncRouted(msg.Topic, "failed")
		return err
	}
	r.metrics.IncRouted(msg.Topic, "delivered")

	if messageID != "" {
		if err := r.inbox.MarkProcessed(ctx, messageID, msg.Topic, r.nowFn(), r.dedupTTL); err != nil {
			r.logger.WarnContext(ctx, "inbox mark failed",
				"module", "application.router",
				"layer", "application",
				"operation", "mark_processed",
				"outcome", "failure",
				"topic", msg.Topic,
				"correlation_id", env.CorrelationID,
				"error", err,
			)
		}
	}
	return nil
}

// OrchestratorRoute delivers deployment status responses to the case
// orchestrator named by the envelope key.
func OrchestratorRoute(lookup EntityLookup) RouteFunc {
	return func(_ context.Context, env domain.CorrelationEnvelope) error {
		var status domain.DeploymentStatusResponse
		if err := json.Unmarshal(env.Payload, &status); err != nil {
			return fmt.Errorf("%w: deployment status response: %v", domain.ErrInvalidEnvelope, err)
		}
		ref, err := lookup.ResolveOrCreate(env.Key)
		if err != nil {
			return err
		}
		return ref.Tell(RemoteReply{CaseID: env.Key, CorrelationID: env.CorrelationID, Status: status})
	}
}

// ResponderRoute delivers deployment status requests to the responder for
// the envelope key.
func ResponderRoute(lookup EntityLookup) RouteFunc {
	return func(_ context.Context, env domain.CorrelationEnvelope) error {
		var req domain.DeploymentStatusRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return fmt.Errorf("%w: deployment status request: %v", domain.ErrInvalidEnvelope, err)
		}
		ref, err := lookup.ResolveOrCreate(env.Key)
		if err != nil {
			return err
		}
		return ref.Tell(CheckDeployment{CaseID: env.Key, CorrelationID: env.CorrelationID, Request: req})
	}
}
