// Package timer implements the per-runtime Timer Registry: a fixed-bucket
// chained hash table from timer-id to Timer Record, as described in
// spec.md §4.3. Exactly one Registry exists per Worker Runtime and it is
// touched by the runtime's own goroutine plus, during shutdown/cancel
// sweeps, guarded by its own mutex so iteration is always safe.
package timer

import (
	"sync"
	"time"
)

// Mode distinguishes one-shot timers from periodic ones.
type Mode int

const (
	OneShot Mode = iota
	Periodic
)

// Owner identifies a Timer Record's owning execution context. The registry
// never calls back through it — it only uses it as an equality-comparable
// key for RemoveOwnedBy — so it is left as an opaque interface{} rather than
// a method set; internal/vm.Runtime type-asserts it back to *vm.Context
// itself when a timer fires.
type Owner = interface{}

// Record is the in-registry representation of one live timer.
type Record struct {
	ID       int32
	Owner    Owner
	Callback func()
	Mode     Mode
	Delay    time.Duration
	FireAt   time.Time

	next *Record
}

// DefaultBuckets is the spec's default bucket count.
const DefaultBuckets = 64

// Registry is the fixed-size chained hash table on timer-id.
type Registry struct {
	mu      sync.Mutex
	buckets []*Record
}

// New creates a Registry with the given bucket count (DefaultBuckets if n<=0).
func New(n int) *Registry {
	if n <= 0 {
		n = DefaultBuckets
	}
	return &Registry{buckets: make([]*Record, n)}
}

func (r *Registry) bucketFor(id int32) int {
	n := len(r.buckets)
	b := int(id) % n
	if b < 0 {
		b += n
	}
	return b
}

// Insert adds rec to the registry. Callers must set rec.ID first.
func (r *Registry) Insert(rec *Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.bucketFor(rec.ID)
	rec.next = r.buckets[b]
	r.buckets[b] = rec
}

// Find returns the record for id, or nil if absent. Absence is the
// expected outcome for clear* calls against an already-fired or
// already-cleared id.
func (r *Registry) Find(id int32) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	for cur := r.buckets[r.bucketFor(id)]; cur != nil; cur = cur.next {
		if cur.ID == id {
			return cur
		}
	}
	return nil
}

// Remove deletes id from the registry, idempotently. Returns the removed
// record, or nil if id was not present.
func (r *Registry) Remove(id int32) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.bucketFor(id)
	var prev *Record
	for cur := r.buckets[b]; cur != nil; cur = cur.next {
		if cur.ID == id {
			if prev == nil {
				r.buckets[b] = cur.next
			} else {
				prev.next = cur.next
			}
			cur.next = nil
			return cur
		}
		prev = cur
	}
	return nil
}

// Each iterates every live record under the registry mutex. fn must not
// call back into the Registry (Insert/Remove/Find would deadlock).
func (r *Registry) Each(fn func(*Record)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, head := range r.buckets {
		for cur := head; cur != nil; cur = cur.next {
			fn(cur)
		}
	}
}

// RemoveOwnedBy removes and returns every record belonging to owner. Used
// by cancel_context_timers (spec.md §4.2) when a context is torn down.
func (r *Registry) RemoveOwnedBy(owner Owner) []*Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []*Record
	for b, head := range r.buckets {
		var prev *Record
		cur := head
		for cur != nil {
			next := cur.next
			if cur.Owner == owner {
				if prev == nil {
					r.buckets[b] = next
				} else {
					prev.next = next
				}
				cur.next = nil
				removed = append(removed, cur)
			} else {
				prev = cur
			}
			cur = next
		}
	}
	return removed
}

// Len returns the number of live records across all buckets. Only used by
// diagnostics/tests; it is O(n).
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, head := range r.buckets {
		for cur := head; cur != nil; cur = cur.next {
			n++
		}
	}
	return n
}
