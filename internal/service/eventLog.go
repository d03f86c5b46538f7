package service

import (
	"context"

	"github.com/ds124wfegd/smartblood/internal/entity"
	"github.com/ds124wfegd/smartblood/pkg/kafka"

	"github.com/sirupsen/logrus"
)

// EventPublisher appends domain events to the event log.
type EventPublisher interface {
	Publish(ctx context.Context, event entity.DomainEvent) error
}

type kafkaEventLog struct {
	producer kafka.Producer
}

func NewEventLog(producer kafka.Producer) EventPublisher {
	return &kafkaEventLog{producer: producer}
}

// Publish keys by aggregate so events of one request stay ordered.
func (l *kafkaEventLog) Publish(ctx context.Context, event entity.DomainEvent) error {
	return l.producer.SendMessage(ctx, event.AggregateID, event)
}

type NopEventPublisher struct{}

func (NopEventPublisher) Publish(context.Context, entity.DomainEvent) error { return nil }

// emit never fails the caller: the change is already committed.
func emit(ctx context.Context, events EventPublisher, event entity.DomainEvent) {
	if err := events.Publish(ctx, event); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"event_type":   event.Type,
			"aggregate_id": event.AggregateID,
		}).Warn("Failed to publish domain event")
	}
}
