// Package memory provides an in-memory implementation of the queue
// interfaces, used for tests and development without a broker.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"xray-go/internal/queue"
)

// Queue is an in-memory implementation of both Producer and Consumer.
// Messages are carried on a channel, giving simple pub/sub within a
// process. Safe for concurrent use.
type Queue struct {
	messages chan *queue.Message
	closed   bool
	mu       sync.RWMutex
	wg       sync.WaitGroup

	rejected atomic.Int64
}

// NewQueue creates a new in-memory queue with the specified buffer size.
// Publish blocks once the buffer is full until space is available or the
// context is canceled.
func NewQueue(bufferSize int) *Queue {
	return &Queue{
		messages: make(chan *queue.Message, bufferSize),
	}
}

// Publish sends a message to the in-memory queue. The read lock is held
// across the send so Close cannot close the channel mid-publish.
func (q *Queue) Publish(ctx context.Context, msg *queue.Message) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.messages <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start consumes messages and calls the handler for each one. A handler
// error counts the message as rejected; there is no redelivery for the
// in-memory queue, so permanent and transient failures behave the same.
// Blocks until the context is canceled or the queue is closed.
func (q *Queue) Start(ctx context.Context, handler queue.MessageHandler) error {
	q.wg.Add(1)
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-q.messages:
			if !ok {
				return nil
			}
			if err := handler(ctx, msg); err != nil {
				q.rejected.Add(1)
				continue
			}
		}
	}
}

// Close shuts down the queue, stopping all consumers.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.messages)
	q.wg.Wait()
	return nil
}

// Len returns the current number of queued messages. Useful in tests.
func (q *Queue) Len() int {
	return len(q.messages)
}

// Rejected returns how many messages a consumer has rejected. Useful in
// tests asserting reject-without-requeue behavior.
func (q *Queue) Rejected() int {
	return int(q.rejected.Load())
}
