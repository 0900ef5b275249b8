package vm

import (
	"container/heap"
	"time"
)

// loopEntry is one pending wakeup in the event loop's timer heap, keyed by
// fire time. Equal fire times are broken by insertion order (seq) so the
// heap behaves as a stable priority queue.
type loopEntry struct {
	id     int32
	fireAt time.Time
	seq    uint64
	index  int
}

// timerHeap is a container/heap.Interface over pending loopEntry wakeups.
// It is the Go stand-in for the "platform event loop"'s timer handles,
// which spec.md treats as an external collaborator this port has no
// platform binding for (see SPEC_FULL.md §1).
type timerHeap []*loopEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].fireAt.Equal(h[j].fireAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].fireAt.Before(h[j].fireAt)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap) Push(x interface{}) {
	e := x.(*loopEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// loop is the non-blocking, single-goroutine event loop owned by one
// Worker Runtime. It only tracks "when is the next thing due"; firing the
// callback and deciding one-shot-vs-periodic rearm is the Runtime's job
// (loop.go stays ignorant of timer.Record/Context entirely).
type loop struct {
	entries timerHeap
	bySeq   map[int32]*loopEntry
	seq     uint64
}

func newLoop() *loop {
	l := &loop{bySeq: make(map[int32]*loopEntry)}
	heap.Init(&l.entries)
	return l
}

// Schedule (re)schedules id to fire at fireAt. If id was already scheduled
// its old entry is replaced.
func (l *loop) Schedule(id int32, fireAt time.Time) {
	l.Cancel(id)
	l.seq++
	e := &loopEntry{id: id, fireAt: fireAt, seq: l.seq}
	heap.Push(&l.entries, e)
	l.bySeq[id] = e
}

// Cancel removes id from the loop, if present.
func (l *loop) Cancel(id int32) {
	e, ok := l.bySeq[id]
	if !ok {
		return
	}
	heap.Remove(&l.entries, e.index)
	delete(l.bySeq, id)
}

// DuePop pops and returns every id whose fireAt is <= now, in fire order.
func (l *loop) DuePop(now time.Time) []int32 {
	var due []int32
	for l.entries.Len() > 0 && !l.entries[0].fireAt.After(now) {
		e := heap.Pop(&l.entries).(*loopEntry)
		delete(l.bySeq, e.id)
		due = append(due, e.id)
	}
	return due
}

// NextDeadline returns the earliest pending fire time and true, or the
// zero time and false if nothing is scheduled.
func (l *loop) NextDeadline() (time.Time, bool) {
	if l.entries.Len() == 0 {
		return time.Time{}, false
	}
	return l.entries[0].fireAt, true
}

// Pending returns the number of outstanding scheduled wakeups — the
// "handles still active" count RunLoopOnce reports per spec.md §4.2.
func (l *loop) Pending() int {
	return l.entries.Len()
}
