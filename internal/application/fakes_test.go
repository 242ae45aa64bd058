package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/domain"
	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/ports"
)

type fakeEventLog struct {
	mu        sync.Mutex
	events    map[string][]domain.CaseEvent
	appendErr error
	replayErr error
	replays   int
}

func newFakeEventLog() *fakeEventLog {
	return &fakeEventLog{events: make(map[string][]domain.CaseEvent)}
}

func (f *fakeEventLog) Append(_ context.Context, event domain.CaseEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.events[event.CaseID] = append(f.events[event.CaseID], event)
	return nil
}

func (f *fakeEventLog) Replay(_ context.Context, caseID string) ([]domain.CaseEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replays++
	if f.replayErr != nil {
		return nil, f.replayErr
	}
	return append([]domain.CaseEvent(nil), f.events[caseID]...), nil
}

func (f *fakeEventLog) replayCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.replays
}

func (f *fakeEventLog) count(caseID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events[caseID])
}

// loopbackBus hands published messages straight to the router, the way a
// single-process bus would.
type loopbackBus struct {
	mu      sync.Mutex
	route   func(ctx context.Context, msg ports.BusMessage) error
	drop    map[string]bool
	fail    map[string]error
	records []ports.BusMessage
}

func newLoopbackBus() *loopbackBus {
	return &loopbackBus{drop: map[string]bool{}, fail: map[string]error{}}
}

func (b *loopbackBus) Publish(ctx context.Context, topic string, payload []byte, partitionKey string) error {
	b.mu.Lock()
	if err := b.fail[topic]; err != nil {
		b.mu.Unlock()
		return err
	}
	msg := ports.BusMessage{Topic: topic, Key: partitionKey, Payload: payload}
	b.records = append(b.records, msg)
	route := b.route
	dropped := b.drop[topic]
	b.mu.Unlock()
	if dropped || route == nil {
		return nil
	}
	return route(ctx, msg)
}

func (b *loopbackBus) published(topic string) []ports.BusMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []ports.BusMessage
	for _, rec := range b.records {
		if rec.Topic == topic {
			out = append(out, rec)
		}
	}
	return out
}

type fakeReplyChannels struct {
	mu     sync.Mutex
	subs   map[string]*fakeSubscription
	closed []string
	pubs   []string
}

func newFakeReplyChannels() *fakeReplyChannels {
	return &fakeReplyChannels{subs: make(map[string]*fakeSubscription)}
}

func (f *fakeReplyChannels) Subscribe(_ context.Context, channelID string) (ports.ReplySubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSubscription{owner: f, channelID: channelID, ch: make(chan domain.CaseResolved, 1)}
	f.subs[channelID] = sub
	return sub, nil
}

func (f *fakeReplyChannels) Publish(_ context.Context, channelID string, result domain.CaseResolved) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pubs = append(f.pubs, channelID)
	sub, ok := f.subs[channelID]
	if !ok {
		return nil
	}
	select {
	case sub.ch <- result:
	default:
	}
	return nil
}

func (f *fakeReplyChannels) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeReplyChannels) published() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.pubs...)
}

type fakeSubscription struct {
	owner     *fakeReplyChannels
	channelID string
	ch        chan domain.CaseResolved
}

func (s *fakeSubscription) Replies() <-chan domain.CaseResolved { return s.ch }

func (s *fakeSubscription) Unsubscribe() error {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	delete(s.owner.subs, s.channelID)
	s.owner.closed = append(s.owner.closed, s.channelID)
	return nil
}

type fakeAnalyzer struct {
	data  string
	err   error
	delay time.Duration
	block bool
}

func (f fakeAnalyzer) Analyze(ctx context.Context, _ string) (string, error) {
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.data, f.err
}

type panicAnalyzer struct{}

func (panicAnalyzer) Analyze(context.Context, string) (string, error) {
	panic("analyzer exploded")
}

type fakeProbe struct {
	status domain.DeploymentStatus
	err    error
}

func (f fakeProbe) Check(context.Context, string) (domain.DeploymentStatus, error) {
	return f.status, f.err
}

type fakeMetrics struct {
	mu     sync.Mutex
	cycles map[string]int
	replys map[string]int
	routed map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{cycles: map[string]int{}, replys: map[string]int{}, routed: map[string]int{}}
}

func (m *fakeMetrics) IncCycle(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles[outcome]++
}

func (m *fakeMetrics) IncReply(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replys[outcome]++
}

func (m *fakeMetrics) IncRouted(topic, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routed[topic+"/"+outcome]++
}

func (m *fakeMetrics) ObserveResolveLatency(string, time.Duration) {}

func (m *fakeMetrics) cycle(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cycles[outcome]
}

func (m *fakeMetrics) route(topic, outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.routed[topic+"/"+outcome]
}

type fakeInbox struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (f *fakeInbox) IsDuplicate(_ context.Context, id string, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[id], nil
}

func (f *fakeInbox) MarkProcessed(_ context.Context, id, _ string, _ time.Time, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	f.seen[id] = true
	return nil
}

type fixture struct {
	service  *Service
	events   *fakeEventLog
	bus      *loopbackBus
	replies  *fakeReplyChannels
	metrics  *fakeMetrics
	inbox    *fakeInbox
	analyzer ports.LogAnalyzer
	probe    fakeProbe
	cfg      Config
}

type fixtureOption func(*fixture)

func withAnalyzer(a ports.LogAnalyzer) fixtureOption {
	return func(f *fixture) { f.analyzer = a }
}

func withReplyTimeout(d time.Duration) fixtureOption {
	return func(f *fixture) { f.cfg.ReplyTimeout = d }
}

func withWorkerTimeout(d time.Duration) fixtureOption {
	return func(f *fixture) { f.cfg.WorkerTimeout = d }
}

func withIdleTimeout(d time.Duration) fixtureOption {
	return func(f *fixture) { f.cfg.EntityIdleTimeout = d }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	f := &fixture{
		events:   newFakeEventLog(),
		bus:      newLoopbackBus(),
		replies:  newFakeReplyChannels(),
		metrics:  newFakeMetrics(),
		inbox:    &fakeInbox{},
		analyzer: fakeAnalyzer{data: "A"},
		probe: fakeProbe{status: domain.DeploymentStatus{
			HealthyServices: []string{"x", "y"},
			FailedServices:  []string{},
		}},
		cfg: Config{
			Role:            RoleStandalone,
			ReplyTimeout:    2 * time.Second,
			DispatchTimeout: time.Second,
			WorkerTimeout:   time.Second,
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	svc, err := NewService(Dependencies{
		Config:        f.cfg,
		EventLog:      f.events,
		Publisher:     f.bus,
		ReplyChannels: f.replies,
		Inbox:         f.inbox,
		Analyzer:      f.analyzer,
		Probe:         f.probe,
		Metrics:       f.metrics,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.service = svc
	f.bus.route = svc.RouteMessage
	t.Cleanup(svc.Close)
	return f
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

var errBoom = errors.New("boom")
