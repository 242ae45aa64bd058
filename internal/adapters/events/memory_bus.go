package events

import (
	"context"
	"sync"
	"time"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/ports"
)

// MemoryBus is a single-process stand-in for the broker. Every consumer
// group sees each message once; consumers only see messages published after
// they were created.
type MemoryBus struct {
	mu        sync.Mutex
	consumers []*MemoryConsumer
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, payload []byte, partitionKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := ports.BusMessage{Topic: topic, Key: partitionKey, Payload: append([]byte(nil), payload...)}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.consumers {
		c.offer(msg)
	}
	return nil
}

// Consumer returns the consumer for group, creating it on first use. Topics
// passed on later calls for the same group are added to its subscription.
func (b *MemoryBus) Consumer(group string, topics []string) *MemoryConsumer {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.consumers {
		if c.group == group {
			c.subscribe(topics)
			return c
		}
	}
	c := &MemoryConsumer{group: group, topics: map[string]bool{}, signal: make(chan struct{}, 1)}
	c.subscribe(topics)
	b.consumers = append(b.consumers, c)
	return c
}

type MemoryConsumer struct {
	group string

	mu      sync.Mutex
	topics  map[string]bool
	pending []ports.BusMessage
	signal  chan struct{}
}

func (c *MemoryConsumer) subscribe(topics []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		c.topics[topic] = true
	}
}

func (c *MemoryConsumer) offer(msg ports.BusMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.topics[msg.Topic] {
		return
	}
	c.pending = append(c.pending, msg)
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

func (c *MemoryConsumer) Poll(ctx context.Context, max int) ([]ports.BusMessage, error) {
	if max <= 0 {
		max = 1
	}
	if out := c.take(max); len(out) > 0 {
		return out, nil
	}
	timer := time.NewTimer(250 * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case <-c.signal:
		return c.take(max), nil
	}
}

func (c *MemoryConsumer) take(max int) []ports.BusMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return nil
	}
	n := min(max, len(c.pending))
	out := make([]ports.BusMessage, n)
	copy(out, c.pending[:n])
	c.pending = c.pending[n:]
	if len(c.pending) == 0 {
		c.pending = nil
	}
	return out
}
