// Package memory provides the in-process crawl frontier queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/cnblogs-search/internal/crawler"
)

// ErrClosed is returned once the queue is closed and drained.
var ErrClosed = crawler.ErrQueueClosed

// Queue is an unbounded FIFO of crawl targets. Enqueue never blocks, so a
// worker can push follow-up targets without waiting on its peers.
type Queue struct {
	mu     sync.Mutex
	items  []crawler.CrawlTarget
	signal chan struct{}
	closed bool
}

// NewQueue constructs an empty queue.
func NewQueue() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Enqueue appends a target. It fails only if ctx is done or the queue is closed.
func (q *Queue) Enqueue(ctx context.Context, target crawler.CrawlTarget) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("enqueue canceled: %w", err)
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, target)
	q.mu.Unlock()
	q.notify()
	return nil
}

// Dequeue pops the oldest target, blocking until one is available, the queue
// is closed and empty, or ctx ends.
func (q *Queue) Dequeue(ctx context.Context) (crawler.CrawlTarget, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			target := q.items[0]
			q.items[0] = crawler.CrawlTarget{}
			q.items = q.items[1:]
			more := len(q.items) > 0 || q.closed
			q.mu.Unlock()
			if more {
				q.notify()
			}
			return target, nil
		}
		if q.closed {
			q.mu.Unlock()
			q.notify()
			return crawler.CrawlTarget{}, ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return crawler.CrawlTarget{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
		case <-q.signal:
		}
	}
}

// Len reports the number of queued targets.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops further enqueues and wakes blocked consumers. Targets already
// queued can still be dequeued. Closing twice is safe.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notify()
}

func (q *Queue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
