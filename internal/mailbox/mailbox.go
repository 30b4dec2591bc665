package mailbox

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrClosed is returned by Push and Pop once the mailbox has been closed
var ErrClosed = errors.New("mailbox closed")

// Mailbox defines the interface for a rank's incoming message queues.
// Messages are queued per source rank and delivered in arrival order.
// All implementations must be thread-safe for concurrent access
type Mailbox interface {
	// Push appends a payload to the queue of the given source rank
	// Returns ErrClosed after Close
	Push(from int, payload []byte) error

	// Pop removes the oldest payload queued from the given source rank,
	// blocking until one arrives, the context ends or the mailbox closes
	Pop(ctx context.Context, from int) ([]byte, error)

	// Pending returns the number of queued payloads from a source rank
	Pending(from int) int

	// Stats returns mailbox statistics
	Stats() Stats

	// Close wakes all blocked Pop calls with ErrClosed
	Close() error
}

// Stats contains statistics about a mailbox
type Stats struct {
	Queued    int    // Payloads currently waiting
	Bytes     int    // Total size of waiting payloads
	Delivered uint64 // Payloads handed out by Pop
}

// MemoryMailbox implements Mailbox with in-memory queues
// Uses a mutex for the queues and a per-source wake channel for blocked readers
type MemoryMailbox struct {
	mu        sync.Mutex            // Protects all fields below
	queues    map[int][][]byte      // source rank -> FIFO of payloads
	wake      map[int]chan struct{} // closed and replaced on every Push
	delivered uint64
	closed    bool
}

// NewMemoryMailbox creates a new empty mailbox
func NewMemoryMailbox() *MemoryMailbox {
	return &MemoryMailbox{
		queues: make(map[int][][]byte),
		wake:   make(map[int]chan struct{}),
	}
}

// Push stores a copy of the payload so callers may reuse their buffer
func (m *MemoryMailbox) Push(from int, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	stored := make([]byte, len(payload))
	copy(stored, payload)
	m.queues[from] = append(m.queues[from], stored)

	if ch, ok := m.wake[from]; ok {
		close(ch)
		delete(m.wake, from)
	}
	return nil
}

// Pop blocks until a payload from the source rank is available
func (m *MemoryMailbox) Pop(ctx context.Context, from int) ([]byte, error) {
	for {
		m.mu.Lock()
		if q := m.queues[from]; len(q) > 0 {
			payload := q[0]
			q[0] = nil
			m.queues[from] = q[1:]
			m.delivered++
			m.mu.Unlock()
			return payload, nil
		}
		if m.closed {
			m.mu.Unlock()
			return nil, ErrClosed
		}
		ch, ok := m.wake[from]
		if !ok {
			ch = make(chan struct{})
			m.wake[from] = ch
		}
		m.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "waiting for message from rank %d", from)
		}
	}
}

// Pending returns the queue length for one source rank
func (m *MemoryMailbox) Pending(from int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[from])
}

// Stats returns mailbox statistics
func (m *MemoryMailbox) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var st Stats
	for _, q := range m.queues {
		st.Queued += len(q)
		for _, p := range q {
			st.Bytes += len(p)
		}
	}
	st.Delivered = m.delivered
	return st
}

// Close marks the mailbox closed and releases blocked readers
// Closing twice is a no-op
func (m *MemoryMailbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	for from, ch := range m.wake {
		close(ch)
		delete(m.wake, from)
	}
	return nil
}
