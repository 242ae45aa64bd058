package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/domain"
	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/ports"
)

// ResolveCase runs one resolution cycle for caseID and blocks until the
// result is published or the reply timeout elapses. A timeout is not an
// error: the caller receives the timeout result.
func (s *Service) ResolveCase(ctx context.Context, caseID string) (domain.CaseResolved, error) {
	if s.orchestrators == nil {
		return domain.CaseResolved{}, fmt.Errorf("%w: role %s does not resolve cases", domain.ErrUnsupportedMode, s.cfg.Role)
	}
	caseID = domain.NormalizeCaseKey(caseID)
	if err := domain.ValidateCaseKey(caseID); err != nil {
		return domain.CaseResolved{}, err
	}
	started := s.nowFn()

	waiter, err := StartReplyWaiter(ctx, s.replies, s.newChannelID(), s.cfg.ReplyTimeout, s.logger)
	if err != nil {
		return domain.CaseResolved{}, err
	}
	ref, err := s.orchestrators.ResolveOrCreate(caseID)
	if err != nil {
		waiter.Close()
		return domain.CaseResolved{}, err
	}

	askCtx, cancel := context.WithTimeout(ctx, s.cfg.ReplyTimeout)
	err = ref.Ask(askCtx, ResolveCase{CaseID: caseID, ReplyChannelID: waiter.ChannelID()})
	cancel()
	if err != nil {
		waiter.Close()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			s.recordReply(started, "timeout")
			return domain.TimeoutResult(), nil
		}
		s.recordReply(started, "rejected")
		return domain.CaseResolved{}, err
	}

	result := waiter.Wait(ctx)
	if result.TimedOut() {
		s.recordReply(started, "timeout")
		s.logger.WarnContext(ctx, "case resolution timed out",
			"module", "application.service",
			"layer", "application",
			"operation", "resolve_case",
			"outcome", "timeout",
			"case_id", caseID,
			"reply_channel", waiter.ChannelID(),
			"error", domain.ErrTimeout,
		)
		return result, nil
	}
	s.recordReply(started, "resolved")
	return result, nil
}

// GetCaseState reads a snapshot through the entity mailbox so it is ordered
// with every other message for the case.
func (s *Service) GetCaseState(ctx context.Context, caseID string) (domain.CaseSnapshot, error) {
	if s.orchestrators == nil {
		return domain.CaseSnapshot{}, fmt.Errorf("%w: role %s does not hold cases", domain.ErrUnsupportedMode, s.cfg.Role)
	}
	caseID = domain.NormalizeCaseKey(caseID)
	if err := domain.ValidateCaseKey(caseID); err != nil {
		return domain.CaseSnapshot{}, err
	}
	ref, err := s.orchestrators.ResolveOrCreate(caseID)
	if err != nil {
		return domain.CaseSnapshot{}, err
	}
	reply := make(chan domain.CaseSnapshot, 1)
	if err := ref.Ask(ctx, QueryState{Reply: reply}); err != nil {
		return domain.CaseSnapshot{}, err
	}
	return <-reply, nil
}

// RouteMessage hands an inbound bus message to the router.
func (s *Service) RouteMessage(ctx context.Context, msg ports.BusMessage) error {
	return s.router.Route(ctx, msg)
}

func (s *Service) recordReply(started time.Time, outcome string) {
	s.metrics.IncReply(outcome)
	s.metrics.ObserveResolveLatency(outcome, s.nowFn().Sub(started))
}
