package application

import (
	"context"
	"fmt"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/domain"
	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/ports"
)

// BusDispatcher puts correlation envelopes on the bus as their bare payload.
// Delivery is at most once from the caller's point of view: failures are
// reported, never retried.
type BusDispatcher struct {
	publisher ports.BusPublisher
}

func NewBusDispatcher(publisher ports.BusPublisher) *BusDispatcher {
	return &BusDispatcher{publisher: publisher}
}

func (d *BusDispatcher) Send(ctx context.Context, topic, partitionKey string, env domain.CorrelationEnvelope) error {
	if err := domain.ValidateEnvelope(env); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDispatchFailure, err)
	}
	if err := d.publisher.Publish(ctx, topic, env.Payload, partitionKey); err != nil {
		return fmt.Errorf("%w: topic %s: %v", domain.ErrDispatchFailure, topic, err)
	}
	return nil
}
