package cache

import (
	"context"
	"sync"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/domain"
	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/ports"
)

// MemoryReplyChannels is the in-process reply channel registry used when no
// Redis is configured.
type MemoryReplyChannels struct {
	mu   sync.Mutex
	subs map[string]map[*memorySubscription]struct{}
}

func NewMemoryReplyChannels() *MemoryReplyChannels {
	return &MemoryReplyChannels{subs: make(map[string]map[*memorySubscription]struct{})}
}

func (m *MemoryReplyChannels) Subscribe(ctx context.Context, channelID string) (ports.ReplySubscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &memorySubscription{owner: m, channelID: channelID, replies: make(chan domain.CaseResolved, 1)}
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.subs[channelID]
	if !ok {
		set = make(map[*memorySubscription]struct{})
		m.subs[channelID] = set
	}
	set[sub] = struct{}{}
	return sub, nil
}

func (m *MemoryReplyChannels) Publish(_ context.Context, channelID string, result domain.CaseResolved) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sub := range m.subs[channelID] {
		select {
		case sub.replies <- result:
		default:
		}
	}
	return nil
}

// Subscribers reports the live subscriptions on channelID.
func (m *MemoryReplyChannels) Subscribers(channelID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[channelID])
}

func (m *MemoryReplyChannels) remove(sub *memorySubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.subs[sub.channelID]
	if !ok {
		return
	}
	if _, live := set[sub]; !live {
		return
	}
	delete(set, sub)
	close(sub.replies)
	if len(set) == 0 {
		delete(m.subs, sub.channelID)
	}
}

type memorySubscription struct {
	owner     *MemoryReplyChannels
	channelID string
	replies   chan domain.CaseResolved
}

func (s *memorySubscription) Replies() <-chan domain.CaseResolved { return s.replies }

func (s *memorySubscription) Unsubscribe() error {
	s.owner.remove(s)
	return nil
}
