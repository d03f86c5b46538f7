package worker

import (
	"context"

	"github.com/ds124wfegd/smartblood/internal/entity"
	"github.com/ds124wfegd/smartblood/internal/queue"
	"github.com/ds124wfegd/smartblood/internal/realtime"

	"github.com/sirupsen/logrus"
)

// RequestObserver watches the requests collection and queues a fan-out task
// for every new request that has not been notified yet. Several observers
// may run at once; the fan-out claim makes their duplicate tasks harmless.
type RequestObserver struct {
	name       string
	subscriber realtime.Subscriber
	queue      queue.Queue
}

func NewRequestObserver(name string, subscriber realtime.Subscriber, q queue.Queue) *RequestObserver {
	return &RequestObserver{
		name:       name,
		subscriber: subscriber,
		queue:      q,
	}
}

// Start blocks until ctx is done or the subscription closes.
func (o *RequestObserver) Start(ctx context.Context) error {
	events, err := o.subscriber.Subscribe(ctx, realtime.PathRequests)
	if err != nil {
		return err
	}

	log := logrus.WithField("observer", o.name)
	log.Info("Request observer started")

	for event := range events {
		o.handle(ctx, log, event)
	}

	log.Info("Request observer stopped")
	return nil
}

func (o *RequestObserver) handle(ctx context.Context, log *logrus.Entry, event realtime.ChangeEvent) {
	if event.Op != realtime.OpWrite {
		return
	}

	var request entity.BloodRequest
	if err := event.Decode(&request); err != nil {
		log.WithError(err).WithField("path", event.Path).Warn("Skipping undecodable request event")
		return
	}
	if request.Notified {
		return
	}
	if request.ID == "" {
		request.ID = event.Key()
	}

	if err := o.queue.Publish(ctx, queue.NewFanoutTask(request.ID, queue.SourceObserver)); err != nil {
		// the sweeper picks it up on its next pass
		log.WithError(err).WithField("request_id", request.ID).Error("Failed to enqueue fan-out task")
		return
	}
	log.WithField("request_id", request.ID).Debug("Fan-out task enqueued")
}
