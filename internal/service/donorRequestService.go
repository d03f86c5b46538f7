package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ds124wfegd/smartblood/internal/database"
	"github.com/ds124wfegd/smartblood/internal/entity"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type donorRequestService struct {
	donorRequests database.DonorRequestRepository
	profiles      database.ProfileRepository
	events        EventPublisher
	now           func() time.Time
}

func NewDonorRequestService(donorRequests database.DonorRequestRepository, profiles database.ProfileRepository, events EventPublisher, now func() time.Time) DonorRequestService {
	return &donorRequestService{
		donorRequests: donorRequests,
		profiles:      profiles,
		events:        events,
		now:           now,
	}
}

// Create sends a direct request to one donor. The recipient is notified in
// the same write; the sender gets nothing.
func (s *donorRequestService) Create(ctx context.Context, actor Actor, toID string) (*entity.DonorRequest, error) {
	toID = strings.TrimSpace(toID)
	if toID == "" {
		return nil, entity.NewValidationError("to", "is required")
	}
	if actor.ProfileID == "" {
		return nil, entity.NewValidationError("from", "is required")
	}
	if toID == actor.ProfileID {
		return nil, entity.NewValidationError("to", "must not be the sender")
	}

	donor, err := s.profiles.GetByID(ctx, toID)
	if err != nil {
		return nil, err
	}
	if !donor.IsDonor() {
		return nil, entity.NewValidationError("to", "is not a donor")
	}

	sender := actor.Name
	if sender == "" {
		if profile, err := s.profiles.GetByID(ctx, actor.ProfileID); err == nil && profile.Name != "" {
			sender = profile.Name
		} else {
			sender = "Someone"
		}
	}

	now := s.now()
	request := &entity.DonorRequest{
		ID:        uuid.NewString(),
		FromID:    actor.ProfileID,
		ToID:      toID,
		Status:    entity.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	notification := &entity.Notification{
		ID:          notificationID(request.ID, string(entity.StatusPending)),
		RecipientID: toID,
		Title:       entity.TitleNewBloodRequest,
		Message:     fmt.Sprintf("%s requested blood from you.", sender),
		Timestamp:   now,
		RequestID:   request.ID,
	}

	if err := s.donorRequests.Create(ctx, request, notification); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"donor_request_id": request.ID,
		"from":             request.FromID,
		"to":               request.ToID,
	}).Info("Donor request created")

	emit(ctx, s.events, entity.DomainEvent{
		Type:        entity.EventDonorRequestCreated,
		AggregateID: request.ID,
		ActorID:     actor.ProfileID,
		Data: map[string]interface{}{
			"to": request.ToID,
		},
		OccurredAt: now,
	})

	return request, nil
}

func (s *donorRequestService) Incoming(ctx context.Context, profileID string) ([]*entity.DonorRequest, error) {
	return s.donorRequests.ListByRecipient(ctx, profileID)
}

func (s *donorRequestService) Sent(ctx context.Context, profileID string) ([]*entity.DonorRequest, error) {
	return s.donorRequests.ListBySender(ctx, profileID)
}
