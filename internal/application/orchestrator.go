package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/domain"
	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/ports"
)

type orchestratorDeps struct {
	requestsTopic   string
	dispatchTimeout time.Duration
	cycleTTL        time.Duration
	events          ports.CaseEventLog
	dispatcher      *BusDispatcher
	replies         ports.ReplyChannels
	workers         *WorkerPool
	metrics         ports.Metrics
	logger          *slog.Logger
	nowFn           func() time.Time
	newID           func() string
}

// Orchestrator drives one case through Idle -> AwaitingLocal ->
// AwaitingRemote -> Idle. Only ResolvedCount survives a restart; everything
// else is rebuilt empty.
type Orchestrator struct {
	deps   orchestratorDeps
	caseID string
	self   EntityHandle

	state domain.CaseState
	phase domain.CyclePhase

	pendingReply  string
	results       []string
	correlationID string
	cycleStarted  time.Time
}

func newOrchestratorFactory(deps orchestratorDeps) EntityFactory {
	return func(ctx context.Context, key string, self EntityHandle) (Entity, error) {
		events, err := deps.events.Replay(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("replay case %s: %w", key, err)
		}
		state := domain.Fold(key, events)
		deps.logger.DebugContext(ctx, "case recovered",
			"module", "application.orchestrator",
			"layer", "application",
			"operation", "recover",
			"outcome", "success",
			"case_id", key,
			"resolved_count", state.ResolvedCount,
		)
		return &Orchestrator{
			deps:   deps,
			caseID: key,
			self:   self,
			state:  state,
			phase:  domain.PhaseIdle,
		}, nil
	}
}

// Idle also reports true for a stalled cycle whose caller has already given
// up, so passivation may drop it the same way a restart would.
func (o *Orchestrator) Idle() bool {
	return o.phase == domain.PhaseIdle || o.stale()
}

func (o *Orchestrator) stale() bool {
	if o.phase == domain.PhaseIdle || o.deps.cycleTTL <= 0 {
		return false
	}
	return o.deps.nowFn().Sub(o.cycleStarted) > o.deps.cycleTTL
}

func (o *Orchestrator) Handle(ctx context.Context, msg Message) error {
	switch m := msg.(type) {
	case ResolveCase:
		return o.onResolve(ctx, m)
	case LocalResult:
		o.onLocalResult(ctx, m)
	case RemoteReply:
		o.onRemoteReply(ctx, m)
	case QueryState:
		m.Reply <- o.snapshot()
	default:
		o.ignore(ctx, msg)
	}
	return nil
}

func (o *Orchestrator) snapshot() domain.CaseSnapshot {
	return domain.CaseSnapshot{
		CaseID:        o.caseID,
		ResolvedCount: o.state.ResolvedCount,
		Phase:         o.phase,
	}
}

func (o *Orchestrator) onResolve(ctx context.Context, m ResolveCase) error {
	if m.ReplyChannelID == "" {
		o.deps.metrics.IncCycle("unsupported_mode")
		o.log(ctx, slog.LevelWarn, "resolve without reply channel rejected", "resolve", "rejected", domain.ErrUnsupportedMode)
		return domain.ErrUnsupportedMode
	}
	if o.stale() {
		o.deps.metrics.IncCycle("abandoned")
		o.log(ctx, slog.LevelWarn, "stalled cycle abandoned", "resolve", "abandoned", nil,
			"phase", string(o.phase),
			"reply_channel", o.pendingReply,
		)
		o.reset()
	}
	if o.phase != domain.PhaseIdle {
		o.deps.metrics.IncCycle("busy")
		o.log(ctx, slog.LevelWarn, "resolve rejected while cycle in flight", "resolve", "rejected", domain.ErrCaseBusy,
			"phase", string(o.phase),
		)
		return domain.ErrCaseBusy
	}

	o.pendingReply = m.ReplyChannelID
	o.results = o.results[:0]
	o.correlationID = ""
	o.phase = domain.PhaseAwaitingLocal
	o.cycleStarted = o.deps.nowFn()

	self := o.self
	logger := o.deps.logger
	o.deps.workers.Spawn(ctx, o.caseID, func(res LocalResult) {
		if err := self.Tell(res); err != nil {
			logger.WarnContext(ctx, "local result not delivered",
				"module", "application.worker",
				"layer", "application",
				"operation", "reply",
				"outcome", "failure",
				"case_id", res.CaseID,
				"error", err,
			)
		}
	})
	o.log(ctx, slog.LevelInfo, "resolution cycle started", "resolve", "accepted", nil,
		"reply_channel", m.ReplyChannelID,
	)
	return nil
}

func (o *Orchestrator) onLocalResult(ctx context.Context, m LocalResult) {
	if o.phase != domain.PhaseAwaitingLocal {
		o.ignore(ctx, m)
		return
	}
	o.results = append(o.results, m.Data)
	o.correlationID = o.deps.newID()
	o.phase = domain.PhaseAwaitingRemote

	env, err := domain.NewEnvelope(domain.DeploymentStatusRequest{
		RequestID: o.correlationID,
		CaseID:    o.caseID,
	})
	if err == nil {
		sendCtx, cancel := context.WithTimeout(ctx, o.deps.dispatchTimeout)
		err = o.deps.dispatcher.Send(sendCtx, o.deps.requestsTopic, o.caseID, env)
		cancel()
	}
	if err != nil {
		o.deps.metrics.IncCycle("dispatch_failed")
		o.log(ctx, slog.LevelError, "deployment status request not dispatched", "dispatch", "failure", err,
			"correlation_id", o.correlationID,
		)
		return
	}
	o.log(ctx, slog.LevelDebug, "deployment status requested", "dispatch", "success", nil,
		"correlation_id", o.correlationID,
		"source_id", m.SourceID,
	)
}

func (o *Orchestrator) onRemoteReply(ctx context.Context, m RemoteReply) {
	if o.pendingReply == "" {
		o.deps.metrics.IncCycle("delivery_gap")
		o.log(ctx, slog.LevelWarn, "remote reply without pending caller dropped", "complete", "dropped", domain.ErrDeliveryGap,
			"correlation_id", m.CorrelationID,
			"phase", string(o.phase),
		)
		return
	}
	if o.phase != domain.PhaseAwaitingRemote {
		o.ignore(ctx, m)
		return
	}

	event := domain.NewCycleCompleted(o.deps.newID(), o.caseID, o.state.ResolvedCount+1, o.deps.nowFn())
	if err := o.deps.events.Append(ctx, event); err != nil {
		o.deps.metrics.IncCycle("persist_failed")
		o.log(ctx, slog.LevelError, "cycle completion not persisted, cycle abandoned", "complete", "failure", err,
			"correlation_id", m.CorrelationID,
		)
		o.reset()
		return
	}
	o.state = o.state.Apply(event)

	result := domain.CaseResolved{
		CaseID:        o.caseID,
		Summary:       domain.ComposeSummary(o.results, m.Status, o.state.ResolvedCount),
		ResolvedCount: o.state.ResolvedCount,
	}
	channelID := o.pendingReply
	o.reset()

	if err := o.deps.replies.Publish(ctx, channelID, result); err != nil {
		o.deps.metrics.IncCycle("publish_failed")
		o.log(ctx, slog.LevelError, "case resolution not published", "complete", "failure", err,
			"reply_channel", channelID,
		)
		return
	}
	o.deps.metrics.IncCycle("completed")
	o.log(ctx, slog.LevelInfo, "case resolved", "complete", "success", nil,
		"reply_channel", channelID,
		"resolved_count", result.ResolvedCount,
	)
}

func (o *Orchestrator) reset() {
	o.pendingReply = ""
	o.results = o.results[:0]
	o.correlationID = ""
	o.cycleStarted = time.Time{}
	o.phase = domain.PhaseIdle
}

func (o *Orchestrator) ignore(ctx context.Context, msg Message) {
	o.log(ctx, slog.LevelDebug, "message ignored in current phase", msg.messageName(), "ignored", nil,
		"phase", string(o.phase),
	)
}

func (o *Orchestrator) log(ctx context.Context, level slog.Level, msg, operation, outcome string, err error, attrs ...any) {
	args := []any{
		"module", "application.orchestrator",
		"layer", "application",
		"operation", operation,
		"outcome", outcome,
		"case_id", o.caseID,
	}
	args = append(args, attrs...)
	if err != nil {
		args = append(args, "error", err)
	}
	o.deps.logger.Log(ctx, level, msg, args...)
}
