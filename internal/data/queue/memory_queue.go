package queue

import (
	"context"
	"io"
	"sync"
	"time"
)

// Memory is a bounded in-process FIFO. Offer never blocks: a full or closed
// queue refuses the item and the caller decides what a drop means.
type Memory[T any] struct {
	items  chan T
	mu     sync.RWMutex
	closed bool
}

func NewMemory[T any](capacity int) *Memory[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Memory[T]{items: make(chan T, capacity)}
}

// Offer reports whether the item was queued.
func (q *Memory[T]) Offer(item T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.items <- item:
		return true
	default:
		return false
	}
}

// DequeueBatch waits up to wait for a first item and then takes whatever
// else is ready, up to maxItems. Once closed and drained it returns io.EOF.
func (q *Memory[T]) DequeueBatch(ctx context.Context, maxItems int, wait time.Duration) ([]T, error) {
	if maxItems <= 0 {
		maxItems = 1
	}
	first, ok, err := q.next(ctx, wait)
	if !ok {
		return nil, err
	}

	batch := make([]T, 1, maxItems)
	batch[0] = first
	for len(batch) < maxItems {
		select {
		case v, open := <-q.items:
			if !open {
				return batch, io.EOF
			}
			batch = append(batch, v)
		default:
			return batch, nil
		}
	}
	return batch, nil
}

// next takes one item. ok is false on timeout, cancellation or EOF.
func (q *Memory[T]) next(ctx context.Context, wait time.Duration) (T, bool, error) {
	var zero T
	var timeout <-chan time.Time
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		timeout = timer.C
	}

	if wait <= 0 {
		select {
		case v, open := <-q.items:
			if !open {
				return zero, false, io.EOF
			}
			return v, true, nil
		case <-ctx.Done():
			return zero, false, ctx.Err()
		default:
			return zero, false, nil
		}
	}

	select {
	case v, open := <-q.items:
		if !open {
			return zero, false, io.EOF
		}
		return v, true, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case <-timeout:
		return zero, false, nil
	}
}

func (q *Memory[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.items)
	}
	return nil
}

func (q *Memory[T]) Len() int {
	if q == nil {
		return 0
	}
	return len(q.items)
}
