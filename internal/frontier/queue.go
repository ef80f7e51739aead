// Package frontier implements the indexed priority queue that orders players
// awaiting a battlelog fetch.
package frontier

import "container/heap"

// Queue is a min-priority queue keyed by K. Each key appears at most once;
// Upsert on a present key replaces its priority in place. Entries with equal
// priority are popped in insertion order so runs are reproducible.
//
// Queue is not safe for concurrent use.
type Queue[K comparable, P any] struct {
	items itemHeap[K, P]
	index map[K]*item[K, P]
	seq   uint64
}

type item[K comparable, P any] struct {
	key      K
	priority P
	seq      uint64
	pos      int
}

// New returns an empty Queue ordered by less.
func New[K comparable, P any](less func(a, b P) bool) *Queue[K, P] {
	return &Queue[K, P]{
		items: itemHeap[K, P]{less: less},
		index: make(map[K]*item[K, P]),
	}
}

// Len reports the number of queued keys.
func (q *Queue[K, P]) Len() int {
	return len(q.index)
}

// Contains reports whether key is queued.
func (q *Queue[K, P]) Contains(key K) bool {
	_, ok := q.index[key]
	return ok
}

// Get returns the queued priority of key.
func (q *Queue[K, P]) Get(key K) (P, bool) {
	it, ok := q.index[key]
	if !ok {
		var zero P
		return zero, false
	}
	return it.priority, true
}

// Upsert inserts key or replaces the priority of an existing entry.
// A replaced entry keeps its original insertion order for tie-breaking.
func (q *Queue[K, P]) Upsert(key K, priority P) {
	if it, ok := q.index[key]; ok {
		it.priority = priority
		heap.Fix(&q.items, it.pos)
		return
	}
	q.seq++
	it := &item[K, P]{key: key, priority: priority, seq: q.seq}
	q.index[key] = it
	heap.Push(&q.items, it)
}

// Peek returns the entry Pop would return without removing it.
func (q *Queue[K, P]) Peek() (K, P, bool) {
	if len(q.items.entries) == 0 {
		var (
			k K
			p P
		)
		return k, p, false
	}
	it := q.items.entries[0]
	return it.key, it.priority, true
}

// Pop removes and returns the entry with the smallest priority.
func (q *Queue[K, P]) Pop() (K, P, bool) {
	if len(q.items.entries) == 0 {
		var (
			k K
			p P
		)
		return k, p, false
	}
	it, _ := heap.Pop(&q.items).(*item[K, P])
	delete(q.index, it.key)
	return it.key, it.priority, true
}

// Remove deletes key from the queue, reporting whether it was present.
func (q *Queue[K, P]) Remove(key K) bool {
	it, ok := q.index[key]
	if !ok {
		return false
	}
	heap.Remove(&q.items, it.pos)
	delete(q.index, key)
	return true
}

type itemHeap[K comparable, P any] struct {
	entries []*item[K, P]
	less    func(a, b P) bool
}

func (h itemHeap[K, P]) Len() int { return len(h.entries) }

func (h itemHeap[K, P]) Less(i, j int) bool {
	a, b := h.entries[i], h.entries[j]
	if h.less(a.priority, b.priority) {
		return true
	}
	if h.less(b.priority, a.priority) {
		return false
	}
	return a.seq < b.seq
}

func (h itemHeap[K, P]) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
	h.entries[i].pos = i
	h.entries[j].pos = j
}

func (h *itemHeap[K, P]) Push(x any) {
	it, _ := x.(*item[K, P])
	it.pos = len(h.entries)
	h.entries = append(h.entries, it)
}

func (h *itemHeap[K, P]) Pop() any {
	old := h.entries
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.pos = -1
	h.entries = old[:n-1]
	return it
}
