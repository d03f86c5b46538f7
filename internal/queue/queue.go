package queue

import (
	"context"
	"time"
)

// Queue carries fan-out tasks to the single fan-out consumer.
type Queue interface {
	Publish(ctx context.Context, message interface{}) error
	PublishWithDelay(ctx context.Context, message interface{}, delay time.Duration) error
	// Consume starts delivering messages to handler one at a time. A handler
	// error puts the message back on the queue.
	Consume(ctx context.Context, handler func(message []byte) error) error
	Close() error
}

// Task sources
const (
	SourceObserver = "observer"
	SourceSweeper  = "sweeper"
	SourceManual   = "manual"
	SourceRetry    = "retry"
)

type FanoutTask struct {
	RequestID  string    `json:"request_id"`
	Attempt    int       `json:"attempt"`
	Source     string    `json:"source"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func NewFanoutTask(requestID, source string) *FanoutTask {
	return &FanoutTask{
		RequestID:  requestID,
		Source:     source,
		EnqueuedAt: time.Now(),
	}
}
