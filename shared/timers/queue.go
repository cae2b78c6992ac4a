package timers

import "sync"

type expiry struct {
	slot       int
	generation uint64
}

// pendingQueue is a bounded ring of due timers. Producers are expiry
// notifications, the only consumer is DrainPending on the main goroutine.
// mu is held only while head and size move, which keeps notifications out
// for the duration of the mutation.
type pendingQueue struct {
	mu    sync.Mutex
	items []expiry
	head  int
	size  int
}

func newPendingQueue(capacity int) *pendingQueue {
	return &pendingQueue{items: make([]expiry, capacity)}
}

// push reports false when the queue is full and e was dropped.
func (q *pendingQueue) push(e expiry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == len(q.items) {
		return false
	}
	q.items[(q.head+q.size)%len(q.items)] = e
	q.size++
	return true
}

func (q *pendingQueue) pop() (expiry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		return expiry{}, false
	}
	e := q.items[q.head]
	q.head = (q.head + 1) % len(q.items)
	q.size--
	return e, true
}

func (q *pendingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}
