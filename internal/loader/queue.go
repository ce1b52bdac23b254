package loader

import (
	"sync"

	"github.com/roach88/nestql/internal/queryir"
)

// pending is one Load call waiting for its batch.
type pending struct {
	key    queryir.KeyCriterion
	result chan result
}

type result struct {
	value any
	err   error
}

// pendingQueue is a thread-safe FIFO of pending loads.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop (prevents goroutine hangs on context cancellation).
type pendingQueue struct {
	mu      sync.Mutex
	entries []pending
	closed  bool
	signal  chan struct{} // Signals entry availability (buffered, size 1)
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{
		entries: make([]pending, 0, 64),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds p to the back of the queue and returns the new length.
// Returns false if the queue is closed.
func (q *pendingQueue) Enqueue(p pending) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, false
	}
	q.entries = append(q.entries, p)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return len(q.entries), true
}

// Drain removes and returns up to max entries from the front.
func (q *pendingQueue) Drain(max int) []pending {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.entries)
	if max > 0 && n > max {
		n = max
	}
	out := make([]pending, n)
	copy(out, q.entries[:n])

	// Nil out drained slots so result channels can be collected.
	for i := 0; i < n; i++ {
		q.entries[i] = pending{}
	}
	if n == len(q.entries) {
		q.entries = q.entries[:0]
	} else {
		q.entries = q.entries[n:]
	}
	return out
}

// Wait returns a channel that signals when entries may be available.
// The channel is closed by Close.
func (q *pendingQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *pendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Close stops further enqueues and wakes any waiter.
func (q *pendingQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
