package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ds124wfegd/smartblood/internal/database"
	"github.com/ds124wfegd/smartblood/internal/entity"
	"github.com/ds124wfegd/smartblood/internal/metrics"

	"github.com/sirupsen/logrus"
)

// Fan-out outcomes reported to metrics
const (
	FanoutCompleted = "completed"
	FanoutSkipped   = "skipped"
	FanoutFailed    = "failed"
)

type fanoutService struct {
	requests      database.RequestRepository
	profiles      database.ProfileRepository
	notifications database.NotificationRepository
	events        EventPublisher
	metrics       *metrics.Metrics
	now           func() time.Time
}

func NewFanoutService(
	requests database.RequestRepository,
	profiles database.ProfileRepository,
	notifications database.NotificationRepository,
	events EventPublisher,
	m *metrics.Metrics,
	now func() time.Time,
) FanoutService {
	return &fanoutService{
		requests:      requests,
		profiles:      profiles,
		notifications: notifications,
		events:        events,
		metrics:       m,
		now:           now,
	}
}

// FanOut claims the request and writes one notification per matching donor.
// On failure the claim is released so a later pass can finish the job;
// notification ids are derived from request and recipient, so a partial
// pass followed by a retry never duplicates.
func (s *fanoutService) FanOut(ctx context.Context, requestID string) ([]*entity.Notification, error) {
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Notified {
		s.metrics.IncrementFanout(FanoutSkipped)
		return nil, nil
	}

	claimed, err := s.requests.ClaimFanout(ctx, requestID)
	if err != nil {
		s.metrics.IncrementFanout(FanoutFailed)
		return nil, err
	}
	if !claimed {
		s.metrics.IncrementFanout(FanoutSkipped)
		return nil, nil
	}

	start := s.now()
	sent, err := s.notify(ctx, request)
	if err != nil {
		s.metrics.IncrementFanout(FanoutFailed)
		if releaseErr := s.requests.ReleaseFanout(ctx, requestID); releaseErr != nil {
			logrus.WithError(releaseErr).WithField("request_id", requestID).Error("Failed to release fan-out claim")
		}
		return nil, fmt.Errorf("fan-out for request %s: %w", requestID, err)
	}

	s.metrics.IncrementFanout(FanoutCompleted)
	s.metrics.AddNotifications(len(sent))
	s.metrics.ObserveFanout(s.now().Sub(start))

	logrus.WithFields(logrus.Fields{
		"request_id": requestID,
		"blood":      request.BloodType,
		"recipients": len(sent),
	}).Info("Fan-out completed")

	emit(ctx, s.events, entity.DomainEvent{
		Type:        entity.EventFanoutCompleted,
		AggregateID: requestID,
		Data: map[string]interface{}{
			"recipients": len(sent),
		},
		OccurredAt: s.now(),
	})

	return sent, nil
}

func (s *fanoutService) notify(ctx context.Context, request *entity.BloodRequest) ([]*entity.Notification, error) {
	donors, err := s.profiles.ListDonorsByBloodType(ctx, request.BloodType)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sent := make([]*entity.Notification, 0, len(donors))
	for _, donor := range donors {
		if request.RequesterID != "" && donor.ID == request.RequesterID {
			continue
		}

		n := &entity.Notification{
			ID:          notificationID(request.ID, donor.ID),
			RecipientID: donor.ID,
			Title:       entity.TitleNewBloodRequest,
			Message:     fmt.Sprintf("New blood request from %s (%s)", request.RequesterName, request.BloodType),
			Timestamp:   now,
			RequestID:   request.ID,
			Location:    request.Location,
			Urgency:     request.Urgency,
			Units:       request.Units,
		}
		if err := s.notifications.Create(ctx, n); err != nil {
			return nil, err
		}
		sent = append(sent, n)
	}
	return sent, nil
}
