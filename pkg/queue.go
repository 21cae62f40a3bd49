package dlprobe

import "sync"

// EventQueue is the ordered hand-off channel between the measurement
// producer and the consumer. There is exactly one producer, so Push never
// blocks: items buffer without bound. Pop blocks until an item arrives or
// the queue is closed and drained; from then on it reports end-of-stream
// forever. Close is idempotent.
type EventQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Event
	closed bool
}

// NewEventQueue returns an empty, open queue.
func NewEventQueue() *EventQueue {
	q := &EventQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends an event. Pushing after Close is a producer bug; the event
// is dropped rather than resurrecting a terminated stream.
func (q *EventQueue) Push(ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, ev)
	q.cond.Signal()
}

// Pop removes and returns the oldest event. The second value is false
// exactly once the queue is closed and drained, and on every call after.
func (q *EventQueue) Pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return Event{}, false
	}
	ev := q.items[0]
	q.items = q.items[1:]
	return ev, true
}

// Close pushes the terminal marker. Safe to call more than once.
func (q *EventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

// Len reports the number of buffered events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
