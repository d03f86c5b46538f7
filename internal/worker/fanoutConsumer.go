package worker

import (
	"context"
	"encoding/json"

	"github.com/ds124wfegd/smartblood/internal/queue"
	"github.com/ds124wfegd/smartblood/internal/service"

	"github.com/sirupsen/logrus"
)

// FanoutConsumer is the single consumer of the fan-out queue.
type FanoutConsumer struct {
	queue  queue.Queue
	fanout service.FanoutService
	retry  *queue.RetryManager
}

func NewFanoutConsumer(q queue.Queue, fanout service.FanoutService, retry *queue.RetryManager) *FanoutConsumer {
	return &FanoutConsumer{
		queue:  q,
		fanout: fanout,
		retry:  retry,
	}
}

// Start registers the handler and blocks until ctx is done.
func (c *FanoutConsumer) Start(ctx context.Context) error {
	if err := c.queue.Consume(ctx, func(message []byte) error {
		return c.Handle(ctx, message)
	}); err != nil {
		return err
	}

	logrus.Info("Fan-out consumer started")
	<-ctx.Done()
	logrus.Info("Fan-out consumer stopped")
	return nil
}

// Handle runs one task. Transient failures are re-published with backoff;
// returning an error hands the message back to the queue.
func (c *FanoutConsumer) Handle(ctx context.Context, message []byte) error {
	var task queue.FanoutTask
	if err := json.Unmarshal(message, &task); err != nil {
		logrus.WithError(err).Error("Dropping malformed fan-out task")
		return nil
	}

	log := logrus.WithFields(logrus.Fields{
		"request_id": task.RequestID,
		"attempt":    task.Attempt,
		"source":     task.Source,
	})

	sent, err := c.fanout.FanOut(ctx, task.RequestID)
	if err == nil {
		if len(sent) > 0 {
			log.WithField("notifications", len(sent)).Debug("Fan-out task done")
		}
		return nil
	}

	retry, delay := c.retry.ShouldRetry(&task, err)
	if !retry {
		log.WithError(err).Error("Fan-out task failed permanently")
		return nil
	}

	next := task
	next.Attempt++
	next.Source = queue.SourceRetry
	if err := c.queue.PublishWithDelay(ctx, &next, delay); err != nil {
		log.WithError(err).Error("Failed to schedule fan-out retry")
		return err
	}

	log.WithError(err).WithField("delay", delay).Warn("Fan-out task scheduled for retry")
	return nil
}
