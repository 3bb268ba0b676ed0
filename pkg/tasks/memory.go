package tasks

import (
	"context"
	"sync"
)

// MemoryQueue is an in-process bounded FIFO backed by a buffered channel.
type MemoryQueue struct {
	mu     sync.RWMutex
	ch     chan IngestTask
	closed bool
}

// NewMemoryQueue creates a queue holding at most capacity pending tasks.
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemoryQueue{ch: make(chan IngestTask, capacity)}
}

// Enqueue appends a task, blocking while the queue is full.
func (q *MemoryQueue) Enqueue(ctx context.Context, task IngestTask) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume delivers tasks in submission order until the queue is closed and drained
// or ctx is cancelled. Handler errors are the handler's business and do not stop the loop.
func (q *MemoryQueue) Consume(ctx context.Context, handle Handler) error {
	for {
		select {
		case task, ok := <-q.ch:
			if !ok {
				return nil
			}
			_ = handle(ctx, task)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops accepting tasks. It is safe to call more than once.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	return nil
}

// Len reports the number of pending tasks.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}
