package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ds124wfegd/smartblood/internal/database"
	"github.com/ds124wfegd/smartblood/internal/entity"
	"github.com/ds124wfegd/smartblood/internal/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	kindBloodRequest = "blood_request"
	kindDonorRequest = "donor_request"
)

var bloodRequestTransitions = map[entity.RequestStatus][]entity.RequestStatus{
	entity.StatusPending:  {entity.StatusAccepted, entity.StatusCompleted},
	entity.StatusAccepted: {entity.StatusCompleted},
}

var donorRequestTransitions = map[entity.RequestStatus][]entity.RequestStatus{
	entity.StatusPending:  {entity.StatusAccepted, entity.StatusDeclined},
	entity.StatusAccepted: {entity.StatusCompleted},
}

func allowed(table map[entity.RequestStatus][]entity.RequestStatus, from, to entity.RequestStatus) bool {
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}

func CanTransitionBloodRequest(from, to entity.RequestStatus) bool {
	return allowed(bloodRequestTransitions, from, to)
}

func CanTransitionDonorRequest(from, to entity.RequestStatus) bool {
	return allowed(donorRequestTransitions, from, to)
}

func transitionError(from, to entity.RequestStatus) error {
	return fmt.Errorf("%w: %s -> %s", entity.ErrInvalidTransition, from, to)
}

// notificationID is stable per logical notification so retries overwrite
// nothing and create nothing twice.
func notificationID(parts ...string) string {
	name := ""
	for i, p := range parts {
		if i > 0 {
			name += ":"
		}
		name += p
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

type lifecycleService struct {
	profiles      database.ProfileRepository
	requests      database.RequestRepository
	donorRequests database.DonorRequestRepository
	events        EventPublisher
	metrics       *metrics.Metrics
	now           func() time.Time
}

func NewLifecycleService(repos *database.Repositories, events EventPublisher, m *metrics.Metrics, now func() time.Time) LifecycleService {
	return &lifecycleService{
		profiles:      repos.Profiles,
		requests:      repos.Requests,
		donorRequests: repos.DonorRequests,
		events:        events,
		metrics:       m,
		now:           now,
	}
}

// TransitionBloodRequest lets any donor accept a pending request or
// complete a pending or accepted one. The write only lands if the request
// is still in the status read here.
func (s *lifecycleService) TransitionBloodRequest(ctx context.Context, requestID, actorID string, target entity.RequestStatus) (*entity.BloodRequest, error) {
	actor, err := s.profiles.GetByID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsDonor() {
		return nil, entity.ErrNotAuthorized
	}

	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !CanTransitionBloodRequest(request.Status, target) {
		return nil, transitionError(request.Status, target)
	}

	now := s.now()
	change := entity.StatusChange{
		ID:        request.ID,
		From:      request.Status,
		To:        target,
		DonorID:   actor.ID,
		DonorName: actor.Name,
		At:        now,
	}
	if target == entity.StatusCompleted {
		change.CreditProfileID = actor.ID
	}
	if request.RequesterID != "" && request.RequesterID != actor.ID {
		change.Notification = &entity.Notification{
			ID:          notificationID(request.ID, string(target)),
			RecipientID: request.RequesterID,
			Title:       entity.TitleStatusUpdated,
			Message:     fmt.Sprintf("Your blood request was %s by %s.", target, displayName(actor.Name)),
			Timestamp:   now,
			RequestID:   request.ID,
			Location:    request.Location,
			Urgency:     request.Urgency,
			Units:       request.Units,
		}
	}

	applied, err := s.requests.UpdateStatus(ctx, change)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, fmt.Errorf("%w: blood request %s changed concurrently", entity.ErrInvalidTransition, request.ID)
	}

	s.applied(ctx, kindBloodRequest, entity.EventRequestStatusChanged, change, actor.ID)

	updated, err := s.requests.GetByID(ctx, request.ID)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// TransitionDonorRequest is restricted to the donor the request was sent to.
func (s *lifecycleService) TransitionDonorRequest(ctx context.Context, requestID, actorID string, target entity.RequestStatus) (*entity.DonorRequest, error) {
	request, err := s.donorRequests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.ToID != actorID {
		return nil, entity.ErrNotAuthorized
	}
	if !CanTransitionDonorRequest(request.Status, target) {
		return nil, transitionError(request.Status, target)
	}

	now := s.now()
	change := entity.StatusChange{
		ID:   request.ID,
		From: request.Status,
		To:   target,
		At:   now,
		Notification: &entity.Notification{
			ID:          notificationID(request.ID, string(target)),
			RecipientID: request.FromID,
			Title:       entity.TitleStatusUpdated,
			Message:     fmt.Sprintf("Your blood request was %s by the donor.", target),
			Timestamp:   now,
			RequestID:   request.ID,
		},
	}
	if target == entity.StatusCompleted {
		change.CreditProfileID = actorID
	}

	applied, err := s.donorRequests.UpdateStatus(ctx, change)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, fmt.Errorf("%w: donor request %s changed concurrently", entity.ErrInvalidTransition, request.ID)
	}

	s.applied(ctx, kindDonorRequest, entity.EventDonorRequestStatus, change, actorID)

	request.Status = target
	request.UpdatedAt = now
	return request, nil
}

func (s *lifecycleService) applied(ctx context.Context, kind string, eventType entity.EventType, change entity.StatusChange, actorID string) {
	s.metrics.IncrementTransition(kind, string(change.To))
	if change.Notification != nil {
		s.metrics.AddNotifications(1)
	}

	logrus.WithFields(logrus.Fields{
		"kind":       kind,
		"request_id": change.ID,
		"actor_id":   actorID,
		"from":       change.From,
		"to":         change.To,
	}).Info("Request status changed")

	emit(ctx, s.events, entity.DomainEvent{
		Type:        eventType,
		AggregateID: change.ID,
		ActorID:     actorID,
		Data: map[string]interface{}{
			"from":     change.From,
			"to":       change.To,
			"credited": change.CreditProfileID,
		},
		OccurredAt: change.At,
	})
}

func displayName(name string) string {
	if name == "" {
		return "a donor"
	}
	return name
}
