// Package queue implements the bounded, thread-safe Task FIFO described in
// spec.md §4.1: blocking enqueue/dequeue, each bounded by a short timeout
// so a pool-shutdown signal is always observed within a small, fixed
// latency regardless of producer/consumer activity.
//
// Rather than a mutex+two-condvar design, this is built on a mutex-guarded
// slice plus two capacity-1 "signal" channels: a non-blocking send to
// either channel wakes one waiter, or, if nobody is waiting, leaves one
// pending token for the next waiter (a send while a token is already
// pending is dropped), and every waiter re-checks its predicate after waking, which
// makes the signal channels safe against the classic lost-wakeup and
// spurious-wakeup hazards condvars are prone to.
package queue

import (
	"sync"
	"time"
)

// Outcome is the result of a non-blocking-forever Enqueue attempt.
type Outcome int

const (
	OK Outcome = iota
	Full
	Empty
	ClosedOutcome
)

const (
	// EnqueueFullWait is the default bounded wait for Enqueue against a
	// full bounded queue, per spec.md §6.
	EnqueueFullWait = 100 * time.Millisecond
	// DequeueEmptyWait is the default bounded wait for Dequeue against an
	// empty queue, per spec.md §6.
	DequeueEmptyWait = 10 * time.Millisecond
)

// Item is anything the queue can hold; pool.Task satisfies it by being
// stored as *pool.Task, which is itself an interface{} payload here to
// avoid an import cycle between queue and pool.
type Item interface{}

// Queue is a bounded (or unbounded, if maxSize == 0) FIFO of Item.
type Queue struct {
	enqueueWait time.Duration
	dequeueWait time.Duration

	mu      sync.Mutex
	items   []Item
	maxSize int
	closed  bool

	notEmpty chan struct{}
	notFull  chan struct{}
}

// New creates a Queue. maxSize == 0 means unbounded.
func New(maxSize int) *Queue {
	return &Queue{
		enqueueWait: EnqueueFullWait,
		dequeueWait: DequeueEmptyWait,
		maxSize:     maxSize,
		notEmpty:    make(chan struct{}, 1),
		notFull:     make(chan struct{}, 1),
	}
}

// WithWaits overrides the bounded wait durations (used by tests and by
// config.PoolConfig.EnqueueFullWait/DequeueEmptyWait).
func (q *Queue) WithWaits(enqueueWait, dequeueWait time.Duration) *Queue {
	q.mu.Lock()
	defer q.mu.Unlock()
	if enqueueWait > 0 {
		q.enqueueWait = enqueueWait
	}
	if dequeueWait > 0 {
		q.dequeueWait = dequeueWait
	}
	return q
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Enqueue appends item to the tail of the queue. If the queue is bounded
// and full, it waits up to the configured enqueue-full duration for room
// before giving up and returning Full without inserting.
func (q *Queue) Enqueue(item Item) Outcome {
	deadline := time.Now().Add(q.enqueueWait)

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ClosedOutcome
		}
		if q.maxSize <= 0 || len(q.items) < q.maxSize {
			q.items = append(q.items, item)
			q.mu.Unlock()
			signal(q.notEmpty)
			return OK
		}
		q.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Full
		}
		select {
		case <-q.notFull:
		case <-time.After(remaining):
			return Full
		}
	}
}

// Dequeue removes and returns the item at the head of the queue. If the
// queue is empty, it waits up to the configured dequeue-empty duration
// before giving up and returning (nil, false).
func (q *Queue) Dequeue() (Item, bool) {
	deadline := time.Now().Add(q.dequeueWait)

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			belowCap := q.maxSize <= 0 || len(q.items) < q.maxSize
			q.mu.Unlock()
			if belowCap {
				signal(q.notFull)
			}
			return item, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, false
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		select {
		case <-q.notEmpty:
		case <-time.After(remaining):
			return nil, false
		}
	}
}

// TryStealOne removes and returns the head item only if the queue has more
// than one item queued, leaving at least one behind so the victim's own
// pipeline stays warm (spec.md §4.4 work-stealing rule). It never blocks:
// if the lock is contended it gives up immediately, matching the "never
// block a victim" requirement.
func (q *Queue) TryStealOne() (Item, bool) {
	if !q.mu.TryLock() {
		return nil, false
	}
	defer q.mu.Unlock()

	if len(q.items) <= 1 {
		return nil, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Len returns the current number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close marks the queue closed, signals each channel once (waking at most
// one Enqueue and one Dequeue waiter; any others see the close when their
// bounded wait ends), and drains remaining items into release so callers
// can free payloads per spec.md §4.1.
func (q *Queue) Close(release func(Item)) {
	q.mu.Lock()
	q.closed = true
	remaining := q.items
	q.items = nil
	q.mu.Unlock()

	signal(q.notEmpty)
	signal(q.notFull)

	if release != nil {
		for _, item := range remaining {
			release(item)
		}
	}
}
