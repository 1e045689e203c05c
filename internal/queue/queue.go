// Package queue provides the lock-guarded FIFO of crawl targets shared by
// the worker pool. There is deliberately no condition variable: workers and
// the orchestrator poll, and an empty queue means the pool is draining.
package queue

import "sync"

// FIFO is a mutex-guarded first-in-first-out queue. The critical section of
// every method is tiny so slow crawl work never serializes workers.
type FIFO[T any] struct {
	mu    sync.Mutex
	items []T
}

// New builds a queue seeded with the given targets.
func New[T any](items ...T) *FIFO[T] {
	q := &FIFO[T]{}
	q.items = append(q.items, items...)
	return q
}

// Enqueue appends one target.
func (q *FIFO[T]) Enqueue(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
}

// Pop removes and returns the oldest target. The second return is false
// when the queue is empty.
func (q *FIFO[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// IsEmpty reports whether the queue has no targets.
func (q *FIFO[T]) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

// Len reports the number of queued targets.
func (q *FIFO[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
