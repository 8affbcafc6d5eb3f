// Package triage provides the priority queue that orders finalized reports
// for moderator review. Reports involving minors come first, then reports
// with nudity in context, then higher severity. Remaining ties keep
// insertion order.
package triage

import (
	"container/heap"
	"errors"
	"sync"

	"github.com/whisper/modbot/internal/metrics"
)

// ErrUnresolved is returned by Push when the item's nudity flag is still
// pending.
var ErrUnresolved = errors.New("triage: nudity flag not resolved")

// Ranked is an item the queue can order.
type Ranked interface {
	comparable
	IsMinor() bool
	HasNudity() bool
	NudityResolved() bool
	SeverityScore() float64
}

type entry[T Ranked] struct {
	item  T
	seq   uint64
	index int
}

// Less orders a before b when a has higher priority.
func Less[T Ranked](a, b T) bool {
	if a.IsMinor() != b.IsMinor() {
		return a.IsMinor()
	}
	if a.HasNudity() != b.HasNudity() {
		return a.HasNudity()
	}
	return a.SeverityScore() > b.SeverityScore()
}

type entryHeap[T Ranked] []*entry[T]

func (h entryHeap[T]) Len() int { return len(h) }

func (h entryHeap[T]) Less(i, j int) bool {
	a, b := h[i], h[j]
	if Less(a.item, b.item) {
		return true
	}
	if Less(b.item, a.item) {
		return false
	}
	return a.seq < b.seq
}

func (h entryHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap[T]) Push(x any) {
	e := x.(*entry[T])
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap[T]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Queue is a goroutine-safe priority queue of ranked items.
type Queue[T Ranked] struct {
	mu    sync.Mutex
	h     entryHeap[T]
	pos   map[T]*entry[T]
	seq   uint64
	gauge bool
}

// New creates an empty queue.
func New[T Ranked]() *Queue[T] {
	return &Queue[T]{pos: make(map[T]*entry[T])}
}

// WithMetrics makes the queue publish its size to the queue size gauge.
func (q *Queue[T]) WithMetrics() *Queue[T] {
	q.mu.Lock()
	q.gauge = true
	q.report()
	q.mu.Unlock()
	return q
}

func (q *Queue[T]) report() {
	if q.gauge {
		metrics.QueueSize.Set(float64(len(q.h)))
	}
}

// Push inserts item in priority order. Pushing an item already queued is a
// no-op.
func (q *Queue[T]) Push(item T) error {
	if !item.NudityResolved() {
		return ErrUnresolved
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pos[item]; ok {
		return nil
	}
	q.seq++
	e := &entry[T]{item: item, seq: q.seq}
	heap.Push(&q.h, e)
	q.pos[item] = e
	q.report()
	return nil
}

// PeekHighest returns the head without removing it.
func (q *Queue[T]) PeekHighest() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) == 0 {
		var zero T
		return zero, false
	}
	return q.h[0].item, true
}

// PopHighest removes and returns the head.
func (q *Queue[T]) PopHighest() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) == 0 {
		var zero T
		return zero, false
	}
	e := heap.Pop(&q.h).(*entry[T])
	delete(q.pos, e.item)
	q.report()
	return e.item, true
}

// Remove deletes item wherever it sits in the queue. It reports whether the
// item was present.
func (q *Queue[T]) Remove(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.pos[item]
	if !ok {
		return false
	}
	heap.Remove(&q.h, e.index)
	delete(q.pos, item)
	q.report()
	return true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}

// Snapshot returns the queued items in priority order without modifying the
// queue.
func (q *Queue[T]) Snapshot() []T {
	q.mu.Lock()
	cp := make(entryHeap[T], len(q.h))
	for i, e := range q.h {
		c := *e
		cp[i] = &c
	}
	q.mu.Unlock()

	out := make([]T, 0, len(cp))
	for cp.Len() > 0 {
		out = append(out, heap.Pop(&cp).(*entry[T]).item)
	}
	return out
}
