package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrQueueClosed      = errors.New("queue closed")
	ErrAlreadyConsuming = errors.New("queue already has a consumer")
)

const requeueDelay = 100 * time.Millisecond

// MemoryQueue is the in-process Queue used when no broker is configured.
type MemoryQueue struct {
	mu        sync.Mutex
	items     [][]byte
	consuming bool
	closed    bool

	wake chan struct{}
	done chan struct{}
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (q *MemoryQueue) push(body []byte) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, body)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

func (q *MemoryQueue) pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	body := q.items[0]
	q.items = q.items[1:]
	return body, true
}

func (q *MemoryQueue) Publish(ctx context.Context, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return q.push(body)
}

func (q *MemoryQueue) PublishWithDelay(ctx context.Context, message interface{}, delay time.Duration) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	time.AfterFunc(delay, func() {
		if err := q.push(body); err != nil && !errors.Is(err, ErrQueueClosed) {
			logrus.WithError(err).Error("Failed to enqueue delayed message")
		}
	})
	return nil
}

func (q *MemoryQueue) Consume(ctx context.Context, handler func(message []byte) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.consuming {
		return ErrAlreadyConsuming
	}
	q.consuming = true

	go q.handleMessages(ctx, handler)
	return nil
}

func (q *MemoryQueue) handleMessages(ctx context.Context, handler func(message []byte) error) {
	for {
		body, ok := q.pop()
		if !ok {
			select {
			case <-q.wake:
				continue
			case <-ctx.Done():
				return
			case <-q.done:
				return
			}
		}

		if err := handler(body); err != nil {
			logrus.WithError(err).Warn("Failed to process message. Message will be retried")
			time.AfterFunc(requeueDelay, func() { _ = q.push(body) })
		}
	}
}

// Len reports the number of messages waiting for the consumer.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}
