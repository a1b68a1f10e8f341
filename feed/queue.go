package feed

import (
	"context"
	"sync"
)

// DefaultQueueCapacity bounds the ingestion queue when none is configured.
const DefaultQueueCapacity = 1000

// Queue is a bounded FIFO that never blocks producers: when full, Put evicts
// the oldest element to admit the newest. It is safe for any number of
// producers and consumers.
type Queue[T any] struct {
	mu      sync.Mutex
	buf     []T
	head    int
	n       int
	evicted uint64
	ready   chan struct{}
}

func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue[T]{
		buf:   make([]T, capacity),
		ready: make(chan struct{}, 1),
	}
}

// Put enqueues v and reports whether the oldest element was evicted.
func (q *Queue[T]) Put(v T) (evicted bool) {
	q.mu.Lock()
	if q.n == len(q.buf) {
		var zero T
		q.buf[q.head] = zero
		q.head = (q.head + 1) % len(q.buf)
		q.n--
		q.evicted++
		evicted = true
	}
	q.buf[(q.head+q.n)%len(q.buf)] = v
	q.n++
	q.mu.Unlock()

	q.signal()
	return evicted
}

// TryGet dequeues the oldest element without blocking.
func (q *Queue[T]) TryGet() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pop()
}

// Get blocks until an element is available or ctx is done.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		v, ok := q.pop()
		more := q.n > 0
		q.mu.Unlock()
		if ok {
			if more {
				q.signal()
			}
			return v, nil
		}

		select {
		case <-q.ready:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Drain removes and returns everything queued, oldest first.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, 0, q.n)
	for {
		v, ok := q.pop()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

func (q *Queue[T]) Cap() int { return len(q.buf) }

// Evicted counts elements dropped by Put since creation.
func (q *Queue[T]) Evicted() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.evicted
}

func (q *Queue[T]) pop() (T, bool) {
	var zero T
	if q.n == 0 {
		return zero, false
	}
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	return v, true
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
