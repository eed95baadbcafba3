// Package memory provides the in-process company task queue.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/leadership-finder/internal/leadership"
)

// ErrClosed is returned once the queue has been closed and drained.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded FIFO of company tasks. Enqueue blocks while the queue is
// full; Dequeue blocks while it is empty.
type Queue struct {
	ch      chan leadership.CompanyTask
	closing chan struct{}
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
}

var _ leadership.Queue = (*Queue)(nil)

// NewQueue constructs a queue holding up to capacity pending tasks.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch:      make(chan leadership.CompanyTask, capacity),
		closing: make(chan struct{}),
	}
}

// Enqueue adds task, waiting for room or until ctx ends.
func (q *Queue) Enqueue(ctx context.Context, task leadership.CompanyTask) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.closing:
		return ErrClosed
	case q.ch <- task:
		return nil
	}
}

// Dequeue returns the next task. Tasks queued before Close are still
// delivered; ErrClosed follows once they are gone.
func (q *Queue) Dequeue(ctx context.Context) (leadership.CompanyTask, error) {
	select {
	case <-ctx.Done():
		return leadership.CompanyTask{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task, ok := <-q.ch:
		if !ok {
			return leadership.CompanyTask{}, ErrClosed
		}
		return task, nil
	}
}

// Len reports the number of pending tasks.
func (q *Queue) Len() int { return len(q.ch) }

// Close stops intake. Blocked Enqueue calls return ErrClosed.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.closing) })
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
