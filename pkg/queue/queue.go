// Package queue implements the bounded blocking FIFO that every stage in the
// pipeline uses as its sole coordination primitive.
package queue

import (
	"sync"

	"github.com/gammazero/deque"

	"github.com/madmazoku/bulkmixer/pkg/foundation/cerrors"
)

// ErrClosed is returned by Put once the queue has been closed. In a
// correctly wired pipeline this never happens in practice: every producer
// stops calling Put before (or concurrently with, tolerating the race) the
// stage that owns the queue calls Close from Join.
var ErrClosed = cerrors.New("queue: put on a closed queue")

// Queue is a FIFO with capacity cap. A cap of 0 means unbounded: Put never
// blocks on fullness. The queue owns one mutex and one condition variable;
// it is the only thing that ever mutates its buffer, counters, or
// closed-flag, and it is the only place a worker may block.
type Queue[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	buf    deque.Deque[T]
	cap    int
	closed bool

	putCount int64
	getCount int64
}

// New returns a Queue with the given capacity (0 = unbounded).
func New[T any](cap int) *Queue[T] {
	q := &Queue[T]{cap: cap}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put blocks while the queue is open, bounded, and full. It returns
// ErrClosed without blocking further if the queue is closed, whether it was
// already closed on entry or became closed while waiting for room.
func (q *Queue[T]) Put(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.closed && q.cap > 0 && q.buf.Len() >= q.cap {
		q.cond.Wait()
	}
	if q.closed {
		return ErrClosed
	}

	q.buf.PushBack(v)
	q.putCount++
	q.cond.Broadcast()
	return nil
}

// Get blocks while the queue is open and empty. It returns ok == false once
// the queue is both closed and drained; every value that was ever Put is
// still delivered by a Get before that happens.
func (q *Queue[T]) Get() (v T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.closed && q.buf.Len() == 0 {
		q.cond.Wait()
	}
	if q.buf.Len() == 0 {
		return v, false
	}

	v = q.buf.PopFront()
	q.getCount++
	q.cond.Broadcast()
	return v, true
}

// Close marks the queue closed and wakes every blocked Put and Get. Close is
// idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Size, PutCount and GetCount are instantaneous snapshots taken under the
// queue's own lock; together they satisfy PutCount - GetCount == Size at
// every observation.
func (q *Queue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buf.Len()
}

func (q *Queue[T]) PutCount() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.putCount
}

func (q *Queue[T]) GetCount() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.getCount
}
