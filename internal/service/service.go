package service

import (
	"context"
	"time"

	"github.com/ds124wfegd/smartblood/internal/database"
	"github.com/ds124wfegd/smartblood/internal/entity"
	"github.com/ds124wfegd/smartblood/internal/metrics"
	"github.com/ds124wfegd/smartblood/pkg/geo"
)

// Actor is the caller as reported by the identity provider.
type Actor struct {
	ProfileID string
	Name      string
	Contact   string
}

type ProfileService interface {
	Upsert(ctx context.Context, id string, req *UpsertProfileRequest) (*entity.Profile, error)
	Get(ctx context.Context, id string) (*entity.Profile, error)
}

type RequestService interface {
	Submit(ctx context.Context, actor Actor, req *SubmitRequest) (*entity.BloodRequest, error)
	// SubmitAdmin stores incomplete records instead of rejecting them; they
	// surface in the flagged view.
	SubmitAdmin(ctx context.Context, req *SubmitRequest) (*entity.BloodRequest, error)
	Get(ctx context.Context, id string) (*entity.BloodRequest, error)
	List(ctx context.Context) ([]*entity.BloodRequest, error)
	Flagged(ctx context.Context) ([]*FlaggedRequest, error)
	Stats(ctx context.Context) (*RequestStats, error)
}

type LifecycleService interface {
	TransitionBloodRequest(ctx context.Context, requestID, actorID string, target entity.RequestStatus) (*entity.BloodRequest, error)
	TransitionDonorRequest(ctx context.Context, requestID, actorID string, target entity.RequestStatus) (*entity.DonorRequest, error)
}

type DonorRequestService interface {
	Create(ctx context.Context, actor Actor, toID string) (*entity.DonorRequest, error)
	Incoming(ctx context.Context, profileID string) ([]*entity.DonorRequest, error)
	Sent(ctx context.Context, profileID string) ([]*entity.DonorRequest, error)
}

type NotificationService interface {
	List(ctx context.Context, recipientID string) (*NotificationList, error)
	MarkRead(ctx context.Context, recipientID, id string) error
}

type MatchService interface {
	FindDonors(ctx context.Context, excludeID, bloodType string, origin *geo.Point) ([]*entity.Profile, error)
	Leaderboard(ctx context.Context) ([]*entity.Profile, error)
}

type FanoutService interface {
	// FanOut notifies every matching donor once per request. A second call
	// for the same request returns no notifications.
	FanOut(ctx context.Context, requestID string) ([]*entity.Notification, error)
}

type Services struct {
	Profiles      ProfileService
	Requests      RequestService
	Lifecycle     LifecycleService
	DonorRequests DonorRequestService
	Notifications NotificationService
	Matcher       MatchService
	Fanout        FanoutService
}

type Dependencies struct {
	Events  EventPublisher
	Metrics *metrics.Metrics

	Fraud           FraudConfig
	RadiusKm        float64
	LeaderboardSize int

	// Clock defaults to time.Now.
	Clock func() time.Time
}

func NewServices(repos *database.Repositories, deps Dependencies) *Services {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Events == nil {
		deps.Events = NopEventPublisher{}
	}

	fraud := NewFraudDetector(repos.Requests, deps.Fraud, deps.Metrics, deps.Clock)

	return &Services{
		Profiles:      NewProfileService(repos.Profiles, deps.Clock),
		Requests:      NewRequestService(repos.Requests, fraud, deps.Events, deps.Metrics, deps.Clock),
		Lifecycle:     NewLifecycleService(repos, deps.Events, deps.Metrics, deps.Clock),
		DonorRequests: NewDonorRequestService(repos.DonorRequests, repos.Profiles, deps.Events, deps.Clock),
		Notifications: NewNotificationService(repos.Notifications),
		Matcher:       NewDonorMatcher(repos.Profiles, deps.RadiusKm, deps.LeaderboardSize),
		Fanout:        NewFanoutService(repos.Requests, repos.Profiles, repos.Notifications, deps.Events, deps.Metrics, deps.Clock),
	}
}
