package application

import "sync"

type delivery struct {
	msg Message
	ack chan error
}

// mailbox is an unbounded FIFO drained by exactly one entity goroutine.
// The signal channel has capacity one so repeated enqueues coalesce.
type mailbox struct {
	mu     sync.Mutex
	items  []delivery
	closed bool
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{
		items:  make([]delivery, 0, 8),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue returns false once the mailbox is closed.
func (m *mailbox) Enqueue(d delivery) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.items = append(m.items, d)
	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

func (m *mailbox) TryDequeue() (delivery, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) == 0 {
		return delivery{}, false
	}
	d := m.items[0]
	m.items[0] = delivery{}
	if len(m.items) == 1 {
		m.items = m.items[:0]
	} else {
		m.items = m.items[1:]
	}
	return d, true
}

func (m *mailbox) Wait() <-chan struct{} {
	return m.signal
}

func (m *mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Close rejects further enqueues and returns whatever was still queued.
func (m *mailbox) Close() []delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.signal)
	rest := m.items
	m.items = nil
	return rest
}
